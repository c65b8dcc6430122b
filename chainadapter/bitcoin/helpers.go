package bitcoin

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil"
)

// pkScriptAddrKey is the map key watchByAddr is indexed by: the raw
// scriptPubKey hex, rather than a derived address string, so the lookup
// never depends on how an address happens to render.
func pkScriptAddrKey(pkScript []byte) string {
	return hex.EncodeToString(pkScript)
}

// selectUtxo picks the first listed UTXO covering amount plus a generous
// fee allowance. A production wallet would coin-select across multiple
// inputs; this adapter funds each HTLC from a single UTXO and returns the
// rest as change, which keeps submitFunding's weight calculation exact.
func selectUtxo(utxos []btcjson.ListUnspentResult, amount int64) (*wire.OutPoint, int64, error) {
	const minReserve = 10000 // sats, generous fee headroom
	for _, u := range utxos {
		if !u.Spendable {
			continue
		}
		satoshis := int64(u.Amount * 1e8)
		if satoshis < amount+minReserve {
			continue
		}
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			continue
		}
		return wire.NewOutPoint(hash, u.Vout), satoshis, nil
	}
	return nil, 0, fmt.Errorf("bitcoin: no spendable utxo covering %d sats", amount)
}

// p2wpkhScriptCode builds the legacy P2PKH-equivalent script BIP0143
// requires as the signed "script code" for a witness v0 key-hash input.
func p2wpkhScriptCode(pubKey []byte, net *chaincfg.Params) ([]byte, error) {
	pkHash := btcutil.Hash160(pubKey)
	addr, err := btcutil.NewAddressPubKeyHash(pkHash, net)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(addr)
}
