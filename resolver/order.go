// Package resolver implements the Protocol Engine (§4.3): the state
// machine driving a cross-chain atomic swap from OrderCreated through to
// Fulfilled, Refunded, or Failed, plus the timeout sweep, reconciliation,
// and secret-propagation passes, which the Resolver runs on its own
// jittered tickers.
package resolver

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/breez/swapresolver/chainadapter"
)

// State is one of the order lifecycle states of §3.1/§4.3.1.
type State int

const (
	StatePending State = iota
	StateSourceLocked
	StateTargetLocked
	StateFulfilled
	StateRefunded
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateSourceLocked:
		return "SourceLocked"
	case StateTargetLocked:
		return "TargetLocked"
	case StateFulfilled:
		return "Fulfilled"
	case StateRefunded:
		return "Refunded"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether s is one of the terminal states of I4: no
// transition leaves Fulfilled, Refunded, or Failed.
func (s State) IsTerminal() bool {
	return s == StateFulfilled || s == StateRefunded || s == StateFailed
}

// HtlcSide is one leg of a cross-chain order's pair of HTLCs.
type HtlcSide struct {
	Chain     chainadapter.ChainID
	HtlcID    string
	Sender    string
	Receiver  string
	Token     string
	Amount    uint64
	Timelock  int64
	Locked    bool
	Claimed   bool
	Refunded  bool
}

// Order is the Resolver's in-memory (and store-persisted) representation
// of one cross-chain swap, keyed by OrderHash.
type Order struct {
	OrderHash [32]byte
	State     State

	SourceChain chainadapter.ChainID
	TargetChain chainadapter.ChainID

	Maker    string
	Receiver string

	TokenIn   string
	TokenOut  string
	AmountIn  uint64
	AmountOut uint64

	Hashlock [32]byte

	Source HtlcSide
	Target HtlcSide

	Secret    [32]byte
	HasSecret bool

	CreatedAt  time.Time
	UpdatedAt  time.Time
	TerminalAt time.Time

	// NeedsAttention flags an order the automated passes could not
	// safely progress on their own — e.g. an amount/hashlock mismatch
	// observed mid-flight — for an operator to inspect (supplemented
	// feature, SPEC_FULL.md §5).
	NeedsAttention bool
	AttentionNote  string

	// GaveUpWaiting is set by the timeout sweep once the target side
	// never locked within the timeout buffer of the source deadline
	// (§4.3.3 item 2). It does not change State.
	GaveUpWaiting bool

	// lastRefundAttempt throttles the timeout sweep's refund
	// resubmission so a slow confirmation doesn't cause a refund to be
	// rebroadcast every tick.
	lastRefundAttempt time.Time
}

// OrderHashFromEvent derives a stable orderHash the same way both chains'
// bridge contracts would: H(sourceChain || maker || hashlock ||
// sourceTimelock), so two independently-observed OrderCreated events (one
// per chain, via the anchor mechanism) land on the same Order.
func OrderHashFromEvent(sourceChain chainadapter.ChainID, maker string, hashlock [32]byte, timelock int64) [32]byte {
	h := sha256.New()
	h.Write([]byte(sourceChain))
	h.Write([]byte(maker))
	h.Write(hashlock[:])
	var tl [8]byte
	binary.BigEndian.PutUint64(tl[:], uint64(timelock))
	h.Write(tl[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// NewOrder creates a Pending order from an observed OrderCreated event.
func NewOrder(orderHash [32]byte, sourceChain, targetChain chainadapter.ChainID, p chainadapter.EventPayload, now time.Time) *Order {
	return &Order{
		OrderHash:   orderHash,
		State:       StatePending,
		SourceChain: sourceChain,
		TargetChain: targetChain,
		Maker:       p.Maker,
		Receiver:    p.Receiver,
		TokenIn:     p.TokenIn,
		TokenOut:    p.TokenOut,
		AmountIn:    p.AmountIn,
		AmountOut:   p.AmountOut,
		Hashlock:    p.Hashlock,
		Source: HtlcSide{
			Chain:    sourceChain,
			Amount:   p.AmountIn,
			Timelock: p.Timelock,
		},
		Target: HtlcSide{
			Chain:  targetChain,
			Amount: p.AmountOut,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// sideFor returns a pointer to whichever HtlcSide belongs to chain, so
// event handlers can update the right leg without a chain of if/else.
func (o *Order) sideFor(chain chainadapter.ChainID) (*HtlcSide, error) {
	switch chain {
	case o.SourceChain:
		return &o.Source, nil
	case o.TargetChain:
		return &o.Target, nil
	default:
		return nil, fmt.Errorf("resolver: chain %s is not part of order %x", chain, o.OrderHash[:4])
	}
}

// transition moves the order to next, stamping UpdatedAt (and TerminalAt
// if next is terminal). Callers are responsible for checking that the
// transition is valid per I4 before calling this.
func (o *Order) transition(next State, now time.Time) {
	o.State = next
	o.UpdatedAt = now
	if next.IsTerminal() {
		o.TerminalAt = now
	}
}

// BothClaimed reports whether both legs have been claimed, the condition
// under which an order becomes Fulfilled (§4.3.2).
func (o *Order) BothClaimed() bool {
	return o.Source.Claimed && o.Target.Claimed
}
