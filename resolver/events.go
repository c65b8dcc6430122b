package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/breez/swapresolver/chainadapter"
)

// Handle implements ingestor.Handler. It is idempotent in the sense §4.3.2
// requires: the Ingestor has already deduplicated on (chain, txID,
// logIndex) before calling this, so onEvent only has to worry about
// correctly applying an event it has never seen.
func (r *Resolver) Handle(ctx context.Context, e chainadapter.Event) error {
	return r.onEvent(ctx, e)
}

func (r *Resolver) onEvent(ctx context.Context, e chainadapter.Event) error {
	orderHash := e.Payload.OrderHash

	lock := r.lockFor(orderHash)
	lock.Lock()
	defer lock.Unlock()

	switch e.Kind {
	case chainadapter.EventOrderCreated:
		return r.handleOrderCreated(e)
	case chainadapter.EventHtlcCreated:
		return r.handleHtlcCreated(e)
	case chainadapter.EventHtlcClaimed:
		return r.handleHtlcClaimed(e)
	case chainadapter.EventHtlcRefunded:
		return r.handleHtlcRefunded(e)
	case chainadapter.EventOrderFulfilled, chainadapter.EventOrderRefunded:
		return r.handleOrderAdvisory(e)
	default:
		log.Warnf("unhandled event kind %s", e.Kind)
		return nil
	}
}

// handleOrderCreated inserts a Pending order on first observation and
// transitions it straight to SourceLocked, per the dispatch table: the
// source side's anchor transaction is itself the commitment, distinct
// from the source HTLC funding transaction that follows and that
// handleHtlcCreated attaches.
func (r *Resolver) handleOrderCreated(e chainadapter.Event) error {
	orderHash := e.Payload.OrderHash
	now := time.Now()

	r.ordersMu.Lock()
	_, exists := r.orders[orderHash]
	r.ordersMu.Unlock()
	if exists {
		// Replay (the relay echoing back on the target chain, or a
		// redelivered event) — nothing new to do.
		return nil
	}

	target := r.otherChain(e.Chain)
	o := NewOrder(orderHash, e.Chain, target, e.Payload, now)
	o.transition(StateSourceLocked, now)

	if err := r.admit(orderHash, o); err != nil {
		return err
	}

	log.Infof("order %x: created on %s, relaying to %s", orderHash[:4], e.Chain, target)
	r.enqueueAction(target, orderHash, chainadapter.Action{
		Kind:      chainadapter.ActionProcessIncomingOrder,
		OrderHash: orderHash,
		Receiver:  o.Receiver,
		Hashlock:  o.Hashlock,
		Timelock:  o.Source.Timelock,
		Token:     o.TokenOut,
		Amount:    o.AmountOut,
	})
	return nil
}

// handleHtlcCreated attaches the observed HTLC to whichever side of the
// order it belongs to and enforces I2/I3.
func (r *Resolver) handleHtlcCreated(e chainadapter.Event) error {
	orderHash := e.Payload.OrderHash

	r.ordersMu.Lock()
	o, ok := r.orders[orderHash]
	r.ordersMu.Unlock()
	if !ok {
		log.Warnf("HtlcCreated for unknown order %x on %s", orderHash[:4], e.Chain)
		return nil
	}

	side, err := o.sideFor(e.Chain)
	if err != nil {
		return err
	}

	if side.Locked {
		// I6: at most one live HTLC per order per chain. The Ingestor's
		// (chain, txID, logIndex) dedup only catches byte-identical
		// replay of the same event; this rejects a second, genuinely
		// distinct HtlcCreated for a side that already has one.
		log.Warnf("order %x: duplicate HtlcCreated on %s ignored (I6)", orderHash[:4], e.Chain)
		return nil
	}

	now := time.Now()
	side.HtlcID = e.Payload.HtlcID
	side.Sender = e.Payload.Sender
	side.Receiver = e.Payload.Receiver
	side.Token = e.Payload.Token
	side.Locked = true

	if e.Chain == o.SourceChain {
		if e.Payload.Amount != o.AmountIn || e.Payload.Hashlock != o.Hashlock {
			o.transition(StateFailed, now)
			o.NeedsAttention = true
			o.AttentionNote = "source HTLC amount/hashlock mismatch"
			r.persist(orderHash, o)
			return nil
		}
		side.Timelock = e.Payload.Timelock
		r.persist(orderHash, o)
		return nil
	}

	// Target side: verify hashlock equality and I2's timelock skew.
	if e.Payload.Hashlock != o.Hashlock {
		o.transition(StateFailed, now)
		o.NeedsAttention = true
		o.AttentionNote = "target HTLC hashlock mismatch"
		r.persist(orderHash, o)
		return nil
	}
	if e.Payload.Timelock >= o.Source.Timelock {
		o.transition(StateFailed, now)
		o.NeedsAttention = true
		o.AttentionNote = "target timelock does not precede source timelock (I2)"
		r.persist(orderHash, o)
		return nil
	}
	side.Timelock = e.Payload.Timelock

	if o.State == StateSourceLocked {
		o.transition(StateTargetLocked, now)
	}
	r.persist(orderHash, o)
	return nil
}

// handleHtlcClaimed extracts and verifies the revealed secret, stores it,
// and propagates a Claim to the other side if it is still live and owned
// by the resolver.
func (r *Resolver) handleHtlcClaimed(e chainadapter.Event) error {
	orderHash := e.Payload.OrderHash

	r.ordersMu.Lock()
	o, ok := r.orders[orderHash]
	r.ordersMu.Unlock()
	if !ok {
		log.Warnf("HtlcClaimed for unknown order %x on %s", orderHash[:4], e.Chain)
		return nil
	}

	side, err := o.sideFor(e.Chain)
	if err != nil {
		return err
	}

	now := time.Now()
	side.Claimed = true

	if e.Payload.HasSecret {
		if !verifyPreimage(e.Payload.Secret, o.Hashlock) {
			o.NeedsAttention = true
			o.AttentionNote = "claimed secret does not hash to order hashlock (I1 breach)"
			r.persist(orderHash, o)
			return nil
		}
		if err := r.secrets.Put(orderHash, e.Payload.Secret); err != nil {
			log.Errorf("order %x: persisting secret failed: %v", orderHash[:4], err)
		}
		o.Secret = e.Payload.Secret
		o.HasSecret = true

		other, err := o.sideFor(r.otherChain(e.Chain))
		if err == nil && other.Locked && !other.Claimed && !other.Refunded {
			r.enqueueAction(other.Chain, orderHash, chainadapter.Action{
				Kind:      chainadapter.ActionClaim,
				OrderHash: orderHash,
				HtlcID:    other.HtlcID,
				Secret:    e.Payload.Secret,
				Hashlock:  o.Hashlock,
			})
		}
	}

	if o.BothClaimed() {
		o.transition(StateFulfilled, now)
		r.secrets.Clear(orderHash)
	}
	r.persist(orderHash, o)
	return nil
}

// handleHtlcRefunded marks the refunded side and, if it was the source
// side, finalizes the order as Refunded.
func (r *Resolver) handleHtlcRefunded(e chainadapter.Event) error {
	orderHash := e.Payload.OrderHash

	r.ordersMu.Lock()
	o, ok := r.orders[orderHash]
	r.ordersMu.Unlock()
	if !ok {
		log.Warnf("HtlcRefunded for unknown order %x on %s", orderHash[:4], e.Chain)
		return nil
	}

	side, err := o.sideFor(e.Chain)
	if err != nil {
		return err
	}

	now := time.Now()
	side.Refunded = true

	if e.Chain == o.SourceChain {
		o.transition(StateRefunded, now)
		r.secrets.Clear(orderHash)
	}
	r.persist(orderHash, o)
	return nil
}

// handleOrderAdvisory handles an OrderFulfilled/OrderRefunded anchor: it
// doesn't resolve anything and schedules nothing, it only logs the event.
// The periodic reconciliation pass (§4.3.4) covers every live order
// regardless.
func (r *Resolver) handleOrderAdvisory(e chainadapter.Event) error {
	log.Debugf("order %x: advisory %s observed on %s", e.Payload.OrderHash[:4], e.Kind, e.Chain)
	return nil
}

// admit inserts o under orderHash, enforcing the §4.3.7 capacity cap by
// evicting the oldest terminal order if the table is full.
func (r *Resolver) admit(orderHash [32]byte, o *Order) error {
	r.ordersMu.Lock()
	defer r.ordersMu.Unlock()

	if len(r.orders) >= r.maxPendingOrders {
		evicted := r.evictOldestTerminalLocked()
		if !evicted {
			return NewResolverError(ErrCapacity, orderHash, "admit",
				errCapacityExceeded)
		}
	}

	r.orders[orderHash] = o
	if _, ok := r.locks[orderHash]; !ok {
		r.locks[orderHash] = &sync.Mutex{}
	}
	if r.store != nil {
		if err := r.store.PutOrder(orderHash, o); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) evictOldestTerminalLocked() bool {
	var oldestHash [32]byte
	var oldest *Order
	for h, o := range r.orders {
		if !o.State.IsTerminal() {
			continue
		}
		if oldest == nil || o.TerminalAt.Before(oldest.TerminalAt) {
			oldestHash, oldest = h, o
		}
	}
	if oldest == nil {
		return false
	}
	delete(r.orders, oldestHash)
	delete(r.locks, oldestHash)
	if r.store != nil {
		r.store.DeleteOrder(oldestHash)
		r.secrets.Clear(oldestHash)
	}
	return true
}
