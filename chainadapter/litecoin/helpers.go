package litecoin

import (
	"encoding/hex"
	"fmt"

	"github.com/ltcsuite/ltcd/chaincfg"
	"github.com/ltcsuite/ltcd/chaincfg/chainhash"
	"github.com/ltcsuite/ltcd/ltcjson"
	"github.com/ltcsuite/ltcd/txscript"
	"github.com/ltcsuite/ltcd/wire"
	"github.com/ltcsuite/ltcutil"
)

// pkScriptAddrKey mirrors chainadapter/bitcoin's helper of the same name.
func pkScriptAddrKey(pkScript []byte) string {
	return hex.EncodeToString(pkScript)
}

// selectUtxo mirrors chainadapter/bitcoin.selectUtxo against ltcjson's
// listunspent result shape.
func selectUtxo(utxos []ltcjson.ListUnspentResult, amount int64) (*wire.OutPoint, int64, error) {
	const minReserve = 10000
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
	return nil, 0, fmt.Errorf("litecoin: no spendable utxo covering %d sats", amount)
}

// p2wpkhScriptCode mirrors chainadapter/bitcoin.p2wpkhScriptCode.
func p2wpkhScriptCode(pubKey []byte, net *chaincfg.Params) ([]byte, error) {
	pkHash := ltcutil.Hash160(pubKey)
	addr, err := ltcutil.NewAddressPubKeyHash(pkHash, net)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(addr)
}
