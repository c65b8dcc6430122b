// Package htlcscript builds and spends the P2WSH HTLC script shared by both
// chain backends (§6.1's HTLC primitive). It generalizes
// submarine.go's genSubmarineSwapScript: that script used a CSV *relative*
// lock suited to a single-chain submarine swap against a Lightning channel;
// ours uses a CLTV *absolute* lock, since spec.md's timelock is an absolute
// unix-seconds deadline compared across two independent chains (I2).
package htlcscript

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil"
)

// ErrInvalidHash is returned when a hashlock or secret isn't 32 bytes.
var ErrInvalidHash = errors.New("htlcscript: hash/secret must be 32 bytes")

// Params bundles the fields needed to construct an HTLC witness script.
type Params struct {
	// ReceiverPubKey is the compressed pubkey of the party who can claim
	// the output by revealing the preimage of Hashlock.
	ReceiverPubKey []byte

	// SenderPubKey is the compressed pubkey of the party who can reclaim
	// the output via refund once Timelock has passed.
	SenderPubKey []byte

	// Hashlock is H(secret), 32 bytes.
	Hashlock []byte

	// Timelock is the absolute unix-seconds (interpreted by the chain as
	// a CLTV locktime) after which Refund becomes valid.
	Timelock int64
}

// GenScript builds the HTLC witness script:
//
//	OP_SHA256 <hashlock> OP_EQUAL
//	OP_IF
//	    <receiverPubKey>
//	OP_ELSE
//	    <timelock> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	    <senderPubKey>
//	OP_ENDIF
//	OP_CHECKSIG
//
// Claim satisfies the OP_IF branch by pushing the preimage; Refund satisfies
// the OP_ELSE branch once the chain's median time past exceeds Timelock.
func GenScript(p Params) ([]byte, error) {
	if len(p.Hashlock) != 32 {
		return nil, ErrInvalidHash
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

// Hashlock computes H(secret) for a 32-byte secret, under the deployment's
// fixed hash function (SHA-256, per spec.md's glossary entry for H).
func Hashlock(secret []byte) ([]byte, error) {
	if len(secret) != 32 {
		return nil, ErrInvalidHash
	}
	h := sha256.Sum256(secret)
	return h[:], nil
}

// P2WSHAddress derives the P2WSH address funds are locked to for the given
// script, on the given chain's network parameters.
func P2WSHAddress(script []byte, net *chaincfg.Params) (*btcutil.AddressWitnessScriptHash, error) {
	witnessProg := sha256.Sum256(script)
	return btcutil.NewAddressWitnessScriptHash(witnessProg[:], net)
}

// ClaimWitness builds the witness stack that spends the HTLC output along
// the claim (OP_IF) branch: a signature, the revealed preimage, then the
// script itself (per BIP0141's witness script rules).
func ClaimWitness(sig, preimage, script []byte) wire.TxWitness {
	return wire.TxWitness{sig, preimage, script}
}

// RefundWitness builds the witness stack that spends the HTLC output along
// the refund (OP_ELSE) branch: a signature, an empty element to route past
// OP_IF's false branch, then the script itself.
func RefundWitness(sig, script []byte) wire.TxWitness {
	return wire.TxWitness{sig, nil, script}
}

// WitnessInputSize estimates the serialized weight contribution of a single
// HTLC input's witness, used by the Adapter's fee policy (§4.1) to size the
// claim/refund transaction fee. isClaim selects between the claim witness
// (which carries a 32-byte preimage) and the smaller refund witness.
func WitnessInputSize(isClaim bool) int {
	const (
		baseWitnessOverhead = 1 + 1 + 73 + 1 // stack count, sig len, sig, empty/preimage len prefix
		scriptPushOverhead  = 1 + 100        // script len prefix + typical script size
	)
	if isClaim {
		return baseWitnessOverhead + 32 + scriptPushOverhead
	}
	return baseWitnessOverhead + scriptPushOverhead
}

// ValidateHashlock returns nil if preimage hashes to hashlock, the I1
// invariant check used before a Claim is ever considered valid.
func ValidateHashlock(preimage, hashlock []byte) error {
	h, err := Hashlock(preimage)
	if err != nil {
		return err
	}
	for i := range h {
		if h[i] != hashlock[i] {
			return fmt.Errorf("htlcscript: preimage does not match hashlock")
		}
	}
	return nil
}
