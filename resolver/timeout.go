package resolver

import (
	"context"
	"time"

	"github.com/breez/swapresolver/chainadapter"
)

// runTimeoutSweep implements §4.3.3. It is adapted from
// daemon/utxonursery.go's maturity-height sweep: rather than a single
// height-indexed bucket schedule, it walks every live order once per tick
// since the order table here is small enough (capacity-capped at
// maxPendingOrders) that a linear scan every 60s is cheap.
func (r *Resolver) runTimeoutSweep(ctx context.Context) {
	now := time.Now()

	for _, orderHash := range r.liveOrderHashes() {
		r.withOrder(orderHash, func(o *Order) {
			r.sweepOrder(o, orderHash, now)
		})
	}
}

func (r *Resolver) sweepOrder(o *Order, orderHash [32]byte, now time.Time) {
	if o.State == StateFulfilled || o.State == StateRefunded {
		return
	}

	sourceDeadline := time.Unix(o.Source.Timelock, 0)

	// (1) Mandatory refund once the source timelock has passed, even for
	// a Failed order — an invariant breach still entitles the maker to
	// their refund (§7).
	if !now.Before(sourceDeadline) && !o.Source.Refunded {
		if now.Sub(o.lastRefundAttempt) < refundRetryInterval {
			return
		}
		o.lastRefundAttempt = now
		r.enqueueAction(o.SourceChain, orderHash, chainadapter.Action{
			Kind:      chainadapter.ActionRefund,
			OrderHash: orderHash,
			HtlcID:    o.Source.HtlcID,
			Hashlock:  o.Hashlock,
		})
		return
	}

	// (2) Give up waiting for the target side once within the timeout
	// buffer of the source deadline, if it never locked. This doesn't
	// change Order.State — the order still resolves via the on-chain
	// refund above — it only stops treating the order as "in progress"
	// for operator-facing purposes.
	if o.State == StateSourceLocked && !o.GaveUpWaiting {
		giveUpAt := sourceDeadline.Add(-r.orderTimeoutBuffer)
		if !now.Before(giveUpAt) {
			o.GaveUpWaiting = true
			log.Warnf("order %x: target side never locked, giving up with %s until source timelock",
				orderHash[:4], sourceDeadline.Sub(now))
		}
	}
}

// runReconcile is a deliberately narrowed stand-in for §4.3.4's
// cross-chain reconciliation pass. The original calls for re-reading
// authoritative order/HTLC state from both chains via adapter "view"
// calls; chainadapter.ChainAdapter (§4.1) exposes no such call for these
// two UTXO chains — there is no account-style getOrder RPC to query, only
// the event stream the Ingestor already replays. Given that, this pass is
// folded into timeout.go (consolidating reconcile.go) and limited to
// in-memory state: a TargetLocked order whose target flag is unset is
// reverted to SourceLocked, a SourceLocked/Pending order whose source was
// refunded is flagged for operator attention, a secret found in the
// secret store is adopted, and a stalled target-side Claim is re-submitted
// once the source is claimed and the secret is known. See DESIGN.md for
// the full rationale.
func (r *Resolver) runReconcile(ctx context.Context) {
	for _, orderHash := range r.liveOrderHashes() {
		r.withOrder(orderHash, func(o *Order) {
			r.reconcileOrder(o, orderHash)
		})
	}
}

func (r *Resolver) reconcileOrder(o *Order, orderHash [32]byte) {
	switch o.State {
	case StateTargetLocked:
		if !o.Target.Locked {
			o.State = StateSourceLocked
			log.Warnf("order %x: reverting TargetLocked->SourceLocked, target HTLC flag unset", orderHash[:4])
		}
	case StateSourceLocked, StatePending:
		if o.Source.Refunded {
			o.NeedsAttention = true
			o.AttentionNote = "source refunded while order still SourceLocked/Pending internally"
		}
	}

	if !o.HasSecret {
		if secret, ok := r.secrets.Get(orderHash); ok && verifyPreimage(secret, o.Hashlock) {
			o.Secret = secret
			o.HasSecret = true
		}
	}

	if o.Source.Claimed && o.Target.Locked && !o.Target.Claimed && o.HasSecret {
		r.enqueueAction(o.TargetChain, orderHash, chainadapter.Action{
			Kind:      chainadapter.ActionClaim,
			OrderHash: orderHash,
			HtlcID:    o.Target.HtlcID,
			Secret:    o.Secret,
			Hashlock:  o.Hashlock,
		})
	}
}

// runRetentionSweep implements §3.3's terminal-order garbage collection:
// orders that have sat in a terminal state longer than retentionHorizon
// (default 24h) are dropped from memory and the store, and their secret
// (if any still lingers) is cleared. It also prunes the Ingestor's
// (chain, txID, logIndex) dedup set the same way, since both are
// unbounded-growth concerns on the same horizon. A Failed order whose
// source side hasn't been refunded yet is excluded even past the
// horizon — it still owes the mandatory refund of §7's sweepOrder, and
// collecting it early would orphan that obligation.
func (r *Resolver) runRetentionSweep(ctx context.Context) {
	cutoff := time.Now().Add(-r.retentionHorizon)

	r.ordersMu.Lock()
	var toDelete [][32]byte
	for h, o := range r.orders {
		if !o.State.IsTerminal() {
			continue
		}
		if o.State == StateFailed && !o.Source.Refunded {
			continue
		}
		if o.TerminalAt.IsZero() || o.TerminalAt.After(cutoff) {
			continue
		}
		toDelete = append(toDelete, h)
	}
	for _, h := range toDelete {
		delete(r.orders, h)
		delete(r.locks, h)
	}
	r.ordersMu.Unlock()

	for _, h := range toDelete {
		if r.store != nil {
			if err := r.store.DeleteOrder(h); err != nil {
				log.Errorf("retention sweep: deleting order %x failed: %v", h[:4], err)
			}
		}
		r.secrets.Clear(h)
	}
	if len(toDelete) > 0 {
		log.Infof("retention sweep: garbage collected %d terminal order(s)", len(toDelete))
	}

	if r.store != nil {
		if err := r.store.PruneDedupOlderThan(cutoff); err != nil {
			log.Errorf("retention sweep: pruning event dedup set failed: %v", err)
		}
	}
}

// liveOrderHashes returns a snapshot of every non-terminal order's hash,
// taken under ordersMu so the sweep/reconcile passes don't hold that lock
// while they process each order individually (that per-order work instead
// takes the orderHash's own lock via withOrder).
func (r *Resolver) liveOrderHashes() [][32]byte {
	r.ordersMu.Lock()
	defer r.ordersMu.Unlock()

	hashes := make([][32]byte, 0, len(r.orders))
	for h, o := range r.orders {
		// Failed orders are terminal for I4's transition purposes but
		// still owed a mandatory refund at timelock (§7), so they stay
		// in scope for both passes; only Fulfilled/Refunded drop out.
		if o.State == StateFulfilled || o.State == StateRefunded {
			continue
		}
		hashes = append(hashes, h)
	}
	return hashes
}
