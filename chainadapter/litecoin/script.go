// Package litecoin implements chainadapter.ChainAdapter over an
// ltcd-compatible full node, the second of this deployment's two UTXO+HTLC
// chains (SPEC_FULL.md §0). Litecoin shares Bitcoin's secp256k1 curve and
// script VM, so this package mirrors htlcscript and chainadapter/bitcoin
// almost line for line, substituting ltcsuite's fork of the same libraries
// everywhere a script or transaction type is involved.
package litecoin

import (
	"crypto/sha256"
	"errors"

	"github.com/ltcsuite/ltcd/chaincfg"
	"github.com/ltcsuite/ltcd/txscript"
	"github.com/ltcsuite/ltcd/wire"
	"github.com/ltcsuite/ltcutil"
)

// errInvalidHash mirrors htlcscript.ErrInvalidHash for this chain's script
// builder.
var errInvalidHash = errors.New("litecoin: hash/secret must be 32 bytes")

// scriptParams mirrors htlcscript.Params, typed against ltcd's txscript
// rather than btcd's.
type scriptParams struct {
	ReceiverPubKey []byte
	SenderPubKey   []byte
	Hashlock       []byte
	Timelock       int64
}

// genHtlcScript builds the same OP_SHA256/OP_IF/OP_CHECKLOCKTIMEVERIFY HTLC
// script as htlcscript.GenScript, against ltcd's script builder.
func genHtlcScript(p scriptParams) ([]byte, error) {
	if len(p.Hashlock) != 32 {
		return nil, errInvalidHash
	}

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(p.Hashlock)
	builder.AddOp(txscript.OP_EQUAL)
	builder.AddOp(txscript.OP_IF)
	builder.AddData(p.ReceiverPubKey)
	builder.AddOp(txscript.OP_ELSE)
	builder.AddInt64(p.Timelock)
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(p.SenderPubKey)
	builder.AddOp(txscript.OP_ENDIF)
	builder.AddOp(txscript.OP_CHECKSIG)
	return builder.Script()
}

// htlcHashlock computes H(secret), the same fixed SHA-256 hash function
// htlcscript.Hashlock uses.
func htlcHashlock(secret []byte) ([]byte, error) {
	if len(secret) != 32 {
		return nil, errInvalidHash
	}
	h := sha256.Sum256(secret)
	return h[:], nil
}

// p2wshAddress derives the P2WSH address for script on net.
func p2wshAddress(script []byte, net *chaincfg.Params) (*ltcutil.AddressWitnessScriptHash, error) {
	witnessProg := sha256.Sum256(script)
	return ltcutil.NewAddressWitnessScriptHash(witnessProg[:], net)
}

// claimWitness and refundWitness mirror htlcscript's witness builders.
func claimWitness(sig, preimage, script []byte) wire.TxWitness {
	return wire.TxWitness{sig, preimage, script}
}

func refundWitness(sig, script []byte) wire.TxWitness {
	return wire.TxWitness{sig, nil, script}
}

// witnessInputSize mirrors htlcscript.WitnessInputSize.
func witnessInputSize(isClaim bool) int {
	const (
		baseWitnessOverhead = 1 + 1 + 73 + 1
		scriptPushOverhead  = 1 + 100
	)
	if isClaim {
		return baseWitnessOverhead + 32 + scriptPushOverhead
	}
	return baseWitnessOverhead + scriptPushOverhead
}

// validateHashlock mirrors htlcscript.ValidateHashlock.
func validateHashlock(preimage, hashlock []byte) error {
	h, err := htlcHashlock(preimage)
	if err != nil {
		return err
	}
	for i := range h {
		if h[i] != hashlock[i] {
			return errors.New("litecoin: preimage does not match hashlock")
		}
	}
	return nil
}
