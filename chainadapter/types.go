// Package chainadapter defines the uniform ChainAdapter capability (§4.1):
// a facade over an external ledger that the Ingestor polls for confirmed
// events and the Resolver submits actions through. Concrete backends live
// in chainadapter/bitcoin and chainadapter/litecoin; everything in this
// package is chain-agnostic, generalizing lnwallet.BlockChainIO's interface
// shape to the two-chain, event-sourced model spec.md describes.
package chainadapter

import (
	"context"
	"time"
)

// ChainID identifies one of the two ledgers a swap moves value between.
type ChainID string

// EventKind enumerates the normalized, chain-agnostic event kinds of §3.1.
type EventKind int

const (
	EventOrderCreated EventKind = iota
	EventOrderFulfilled
	EventOrderRefunded
	EventHtlcCreated
	EventHtlcClaimed
	EventHtlcRefunded
)

// String implements fmt.Stringer.
func (k EventKind) String() string {
	switch k {
	case EventOrderCreated:
		return "OrderCreated"
	case EventOrderFulfilled:
		return "OrderFulfilled"
	case EventOrderRefunded:
		return "OrderRefunded"
	case EventHtlcCreated:
		return "HtlcCreated"
	case EventHtlcClaimed:
		return "HtlcClaimed"
	case EventHtlcRefunded:
		return "HtlcRefunded"
	default:
		return "Unknown"
	}
}

// Event is the normalized, chain-agnostic representation of an on-chain
// occurrence (§3.1). The tuple (Chain, TxID, LogIndex) is a stable total
// order within a chain and the key the Resolver deduplicates on (§4.3.2).
type Event struct {
	Kind        EventKind
	Chain       ChainID
	BlockHeight uint64
	TxID        string
	LogIndex    uint32
	Payload     EventPayload
}

// EventPayload carries kind-specific fields. Only the fields relevant to
// Kind are populated; the rest are left at their zero value.
//
//   - OrderCreated / OrderFulfilled / OrderRefunded: OrderHash, Maker,
//     Receiver, TokenIn, TokenOut, AmountIn, AmountOut, Hashlock, Timelock.
//   - HtlcCreated / HtlcClaimed / HtlcRefunded: OrderHash, HtlcID, Sender,
//     Receiver, Token, Amount, Hashlock, Timelock, and (HtlcClaimed only)
//     Secret/HasSecret.
type EventPayload struct {
	OrderHash [32]byte
	Maker     string
	Receiver  string
	Sender    string
	TokenIn   string
	TokenOut  string
	Token     string
	AmountIn  uint64
	AmountOut uint64
	Amount    uint64
	Hashlock  [32]byte
	Timelock  int64
	HtlcID    string
	Secret    [32]byte
	HasSecret bool
}

// ActionKind enumerates the chain actions the Resolver can submit (§4.1).
type ActionKind int

const (
	ActionCreateHtlc ActionKind = iota
	ActionClaim
	ActionRefund
	ActionProcessIncomingOrder
	ActionFulfillIncomingOrder
)

// String implements fmt.Stringer.
func (k ActionKind) String() string {
	switch k {
	case ActionCreateHtlc:
		return "CreateHtlc"
	case ActionClaim:
		return "Claim"
	case ActionRefund:
		return "Refund"
	case ActionProcessIncomingOrder:
		return "ProcessIncomingOrder"
	case ActionFulfillIncomingOrder:
		return "FulfillIncomingOrder"
	default:
		return "Unknown"
	}
}

// Action is a request to submit a state-changing transaction on a chain.
type Action struct {
	Kind      ActionKind
	OrderHash [32]byte
	HtlcID    string
	Receiver  string
	Hashlock  [32]byte
	Timelock  int64
	Token     string
	Amount    uint64
	Secret    [32]byte
}

// FeeQuote is a chain-specific fee estimate, refreshed on a timer by the
// Supervisor (§4.1, §4.4) and read by many, written only by the refresh task.
type FeeQuote struct {
	FeeRate   float64 // native fee units per vbyte/weight unit
	UpdatedAt time.Time
}

// ReceiptStatus is the terminal status of a submitted transaction.
type ReceiptStatus int

const (
	ReceiptUnknown ReceiptStatus = iota
	ReceiptConfirmed
	ReceiptFailed
)

// Receipt describes the outcome of waiting for a submitted transaction.
type Receipt struct {
	Status      ReceiptStatus
	BlockHeight uint64
	Logs        []Event
}

// ChainAdapter is the uniform capability set over an external ledger (§4.1).
type ChainAdapter interface {
	// ID returns the chain identifier this adapter serves.
	ID() ChainID

	// TipHeight returns the chain's current best-known height.
	TipHeight(ctx context.Context) (uint64, error)

	// ConfirmedHeight returns max(0, tipHeight - K), K being the
	// configured confirmation depth.
	ConfirmedHeight(ctx context.Context) (uint64, error)

	// QueryEvents returns normalized events in [fromHeight, toHeight],
	// inclusive, ordered by (BlockHeight, LogIndex). The caller must
	// never request more than MaxBlocksPerQuery blocks; the adapter
	// enforces this.
	QueryEvents(ctx context.Context, fromHeight, toHeight uint64) ([]Event, error)

	// Submit broadcasts the given action and returns its transaction ID.
	// Transient failures are retried internally per the backoff policy
	// in this package; a persistent failure surfaces as an AdapterError
	// of kind SubmitExhausted.
	Submit(ctx context.Context, action Action) (txID string, err error)

	// WaitForReceipt blocks (up to timeout) until txID's outcome is
	// known.
	WaitForReceipt(ctx context.Context, txID string, timeout time.Duration) (*Receipt, error)

	// CurrentFeeQuote returns the most recently refreshed fee quote.
	CurrentFeeQuote() FeeQuote

	// RefreshFeeQuote re-queries the chain's fee oracle. On failure the
	// prior quote is retained (last-write-wins, stale-is-acceptable per
	// §4.1 and the design notes).
	RefreshFeeQuote(ctx context.Context) error
}
