package bitcoin

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/txscript"

	"github.com/breez/swapresolver/chainadapter"
)

// anchorMagic tags an OP_RETURN output as one of this module's order-level
// markers, distinguishing it from unrelated OP_RETURN usage on the same
// chain. Resolves the "asymmetric bridge API" open question (SPEC_FULL.md
// §0): rather than requiring a smart-contract bridge only one of the two
// UTXO chains could host, both chains record order-level state the same
// way, as a data-carrier output alongside the value-moving transaction.
var anchorMagic = [4]byte{'X', 'C', 'A', 'R'}

// anchorKind mirrors the three order-level chainadapter.EventKind values
// that have no UTXO output of their own to be inferred from.
type anchorKind byte

const (
	anchorOrderCreated anchorKind = iota
	anchorOrderFulfilled
	anchorOrderRefunded
)

// anchorPayload is the decoded content of an order-marker OP_RETURN output.
// Hashlock/Timelock are only meaningful on an
// anchorOrderCreated marker; Fulfilled/Refunded markers carry OrderHash
// alone.
type anchorPayload struct {
	Kind      anchorKind
	OrderHash [32]byte
	Hashlock  [32]byte
	Timelock  int64
}

// buildAnchorScript serializes an anchorPayload into an OP_RETURN script.
// The encoding is fixed-width and deliberately small (<= 80 bytes) to stay
// within the standard relay policy for OP_RETURN outputs.
func buildAnchorScript(p anchorPayload) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(anchorMagic[:])
	buf.WriteByte(byte(p.Kind))
	buf.Write(p.OrderHash[:])
	buf.Write(p.Hashlock[:])
	var tl [8]byte
	binary.BigEndian.PutUint64(tl[:], uint64(p.Timelock))
	buf.Write(tl[:])

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_RETURN)
	builder.AddData(buf.Bytes())
	return builder.Script()
}

// decodeAnchorScript attempts to parse pkScript as an order marker. ok is
// false for any script that isn't a well-formed anchor, which is the common
// case: most OP_RETURN outputs on the chain belong to unrelated users.
func decodeAnchorScript(pkScript []byte) (payload anchorPayload, ok bool) {
	data, err := extractOpReturnData(pkScript)
	if err != nil || len(data) != 4+1+32+32+8 {
		return anchorPayload{}, false
	}
	if !bytes.Equal(data[:4], anchorMagic[:]) {
		return anchorPayload{}, false
	}

	payload.Kind = anchorKind(data[4])
	copy(payload.OrderHash[:], data[5:37])
	copy(payload.Hashlock[:], data[37:69])
	payload.Timelock = int64(binary.BigEndian.Uint64(data[69:77]))
	return payload, true
}

// extractOpReturnData returns the pushed data of an OP_RETURN <data> script,
// or an error if pkScript isn't that shape.
func extractOpReturnData(pkScript []byte) ([]byte, error) {
	tokenizer := txscript.MakeScriptTokenizer(0, pkScript)
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_RETURN {
		return nil, fmt.Errorf("bitcoin: not an OP_RETURN script")
	}
	if !tokenizer.Next() {
		return nil, fmt.Errorf("bitcoin: OP_RETURN carries no data")
	}
	return tokenizer.Data(), nil
}

// toEventKind maps an anchorKind to its chainadapter.EventKind.
func (k anchorKind) toEventKind() chainadapter.EventKind {
	switch k {
	case anchorOrderFulfilled:
		return chainadapter.EventOrderFulfilled
	case anchorOrderRefunded:
		return chainadapter.EventOrderRefunded
	default:
		return chainadapter.EventOrderCreated
	}
}
