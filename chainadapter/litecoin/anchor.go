package litecoin

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ltcsuite/ltcd/txscript"

	"github.com/breez/swapresolver/chainadapter"
)

// anchorMagic and the wire format mirror chainadapter/bitcoin/anchor.go
// exactly, so the two chains in this deployment record order-level state
// identically (see that file's doc comment for the rationale).
var anchorMagic = [4]byte{'X', 'C', 'A', 'R'}

type anchorKind byte

const (
	anchorOrderCreated anchorKind = iota
	anchorOrderFulfilled
	anchorOrderRefunded
)

type anchorPayload struct {
	Kind      anchorKind
	OrderHash [32]byte
	Hashlock  [32]byte
	Timelock  int64
}

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

func decodeAnchorScript(pkScript []byte) (anchorPayload, bool) {
	data, err := extractOpReturnData(pkScript)
	if err != nil || len(data) != 4+1+32+32+8 {
		return anchorPayload{}, false
	}
	if !bytes.Equal(data[:4], anchorMagic[:]) {
		return anchorPayload{}, false
	}

	var payload anchorPayload
	payload.Kind = anchorKind(data[4])
	copy(payload.OrderHash[:], data[5:37])
	copy(payload.Hashlock[:], data[37:69])
	payload.Timelock = int64(binary.BigEndian.Uint64(data[69:77]))
	return payload, true
}

func extractOpReturnData(pkScript []byte) ([]byte, error) {
	tokenizer := txscript.MakeScriptTokenizer(0, pkScript)
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_RETURN {
		return nil, fmt.Errorf("litecoin: not an OP_RETURN script")
	}
	if !tokenizer.Next() {
		return nil, fmt.Errorf("litecoin: OP_RETURN carries no data")
	}
	return tokenizer.Data(), nil
}

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
