package resolver

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/breez/swapresolver/chainadapter"
	"github.com/breez/swapresolver/lntypes"
	"github.com/breez/swapresolver/store"
)

type captureAdapter struct {
	chain chainadapter.ChainID

	mu      sync.Mutex
	actions []chainadapter.Action
}

func (f *captureAdapter) ID() chainadapter.ChainID { return f.chain }
func (f *captureAdapter) TipHeight(ctx context.Context) (uint64, error)       { return 0, nil }
func (f *captureAdapter) ConfirmedHeight(ctx context.Context) (uint64, error) { return 0, nil }
func (f *captureAdapter) QueryEvents(ctx context.Context, from, to uint64) ([]chainadapter.Event, error) {
	return nil, nil
}
func (f *captureAdapter) Submit(ctx context.Context, action chainadapter.Action) (string, error) {
	f.mu.Lock()
	f.actions = append(f.actions, action)
	f.mu.Unlock()
	return "txid", nil
}
func (f *captureAdapter) WaitForReceipt(ctx context.Context, txID string, timeout time.Duration) (*chainadapter.Receipt, error) {
	return nil, nil
}
func (f *captureAdapter) CurrentFeeQuote() chainadapter.FeeQuote       { return chainadapter.FeeQuote{} }
func (f *captureAdapter) RefreshFeeQuote(ctx context.Context) error { return nil }

func (f *captureAdapter) actionsSnapshot() []chainadapter.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chainadapter.Action(nil), f.actions...)
}

func newTestResolver(t *testing.T) (*Resolver, *captureAdapter, *captureAdapter) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	src := &captureAdapter{chain: "chainA"}
	tgt := &captureAdapter{chain: "chainB"}

	r, err := New(Config{
		Adapters: map[chainadapter.ChainID]chainadapter.ChainAdapter{
			"chainA": src,
			"chainB": tgt,
		},
		Store: s,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r, src, tgt
}

func mustHashlock() [32]byte {
	var h [32]byte
	h[0] = 0xAB
	return h
}

func TestOrderCreatedRelaysToOtherChain(t *testing.T) {
	t.Parallel()

	r, _, tgt := newTestResolver(t)
	r.actions.Start()
	defer r.actions.Stop()
	go func() {
		for item := range r.actions.ChanOut() {
			wi := item.(workItem)
			r.submitAction(context.Background(), wi)
		}
	}()

	var orderHash [32]byte
	orderHash[0] = 1
	hashlock := mustHashlock()

	e := chainadapter.Event{
		Kind:  chainadapter.EventOrderCreated,
		Chain: "chainA",
		Payload: chainadapter.EventPayload{
			OrderHash: orderHash,
			Maker:     "maker",
			Receiver:  "receiver",
			AmountIn:  1000,
			AmountOut: 2000,
			Hashlock:  hashlock,
			Timelock:  time.Now().Add(48 * time.Hour).Unix(),
		},
	}

	if err := r.Handle(context.Background(), e); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	r.ordersMu.Lock()
	o, ok := r.orders[orderHash]
	r.ordersMu.Unlock()
	if !ok {
		t.Fatalf("order was not inserted")
	}
	if o.State != StateSourceLocked {
		t.Fatalf("expected SourceLocked, got %s", o.State)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(tgt.actionsSnapshot()) > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	actions := tgt.actionsSnapshot()
	if len(actions) != 1 || actions[0].Kind != chainadapter.ActionProcessIncomingOrder {
		t.Fatalf("expected one ProcessIncomingOrder relay, got %+v", actions)
	}
}

func TestHtlcCreatedTargetLocksAdvancesState(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestResolver(t)

	var orderHash [32]byte
	orderHash[0] = 2
	hashlock := mustHashlock()
	sourceTimelock := time.Now().Add(48 * time.Hour).Unix()

	ctx := context.Background()
	create := chainadapter.Event{
		Kind:  chainadapter.EventOrderCreated,
		Chain: "chainA",
		Payload: chainadapter.EventPayload{
			OrderHash: orderHash,
			AmountIn:  1000,
			AmountOut: 2000,
			Hashlock:  hashlock,
			Timelock:  sourceTimelock,
		},
	}
	if err := r.Handle(ctx, create); err != nil {
		t.Fatalf("Handle create: %v", err)
	}

	srcHtlc := chainadapter.Event{
		Kind:  chainadapter.EventHtlcCreated,
		Chain: "chainA",
		Payload: chainadapter.EventPayload{
			OrderHash: orderHash,
			HtlcID:    "src-htlc",
			Amount:    1000,
			Hashlock:  hashlock,
			Timelock:  sourceTimelock,
		},
	}
	if err := r.Handle(ctx, srcHtlc); err != nil {
		t.Fatalf("Handle src htlc: %v", err)
	}

	tgtHtlc := chainadapter.Event{
		Kind:  chainadapter.EventHtlcCreated,
		Chain: "chainB",
		Payload: chainadapter.EventPayload{
			OrderHash: orderHash,
			HtlcID:    "tgt-htlc",
			Amount:    2000,
			Hashlock:  hashlock,
			Timelock:  sourceTimelock - int64(2*time.Hour/time.Second),
		},
	}
	if err := r.Handle(ctx, tgtHtlc); err != nil {
		t.Fatalf("Handle tgt htlc: %v", err)
	}

	r.ordersMu.Lock()
	o := r.orders[orderHash]
	r.ordersMu.Unlock()

	if o.State != StateTargetLocked {
		t.Fatalf("expected TargetLocked, got %s", o.State)
	}
	if !o.Source.Locked || !o.Target.Locked {
		t.Fatalf("expected both sides locked: %+v", o)
	}
}

func TestHtlcCreatedTargetTimelockViolationFailsOrder(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestResolver(t)

	var orderHash [32]byte
	orderHash[0] = 3
	hashlock := mustHashlock()
	sourceTimelock := time.Now().Add(48 * time.Hour).Unix()

	ctx := context.Background()
	create := chainadapter.Event{
		Kind:  chainadapter.EventOrderCreated,
		Chain: "chainA",
		Payload: chainadapter.EventPayload{
			OrderHash: orderHash,
			Hashlock:  hashlock,
			Timelock:  sourceTimelock,
		},
	}
	if err := r.Handle(ctx, create); err != nil {
		t.Fatalf("Handle create: %v", err)
	}

	// Target timelock violating I2: not strictly before the source
	// timelock.
	tgtHtlc := chainadapter.Event{
		Kind:  chainadapter.EventHtlcCreated,
		Chain: "chainB",
		Payload: chainadapter.EventPayload{
			OrderHash: orderHash,
			Hashlock:  hashlock,
			Timelock:  sourceTimelock + 1,
		},
	}
	if err := r.Handle(ctx, tgtHtlc); err != nil {
		t.Fatalf("Handle tgt htlc: %v", err)
	}

	r.ordersMu.Lock()
	o := r.orders[orderHash]
	r.ordersMu.Unlock()

	if o.State != StateFailed {
		t.Fatalf("expected Failed on I2 violation, got %s", o.State)
	}
	if !o.NeedsAttention {
		t.Fatalf("expected NeedsAttention set")
	}
}

func TestHtlcClaimedPropagatesSecretAndFulfills(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestResolver(t)
	r.actions.Start()
	defer r.actions.Stop()
	go func() {
		for item := range r.actions.ChanOut() {
			wi := item.(workItem)
			r.submitAction(context.Background(), wi)
		}
	}()

	var orderHash [32]byte
	orderHash[0] = 4

	var secret [32]byte
	secret[0] = 0x42
	hashlock := lntypesHash(secret)

	ctx := context.Background()
	sourceTimelock := time.Now().Add(48 * time.Hour).Unix()
	if err := r.Handle(ctx, chainadapter.Event{
		Kind:  chainadapter.EventOrderCreated,
		Chain: "chainA",
		Payload: chainadapter.EventPayload{
			OrderHash: orderHash,
			Hashlock:  hashlock,
			Timelock:  sourceTimelock,
		},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.Handle(ctx, chainadapter.Event{
		Kind:  chainadapter.EventHtlcCreated,
		Chain: "chainA",
		Payload: chainadapter.EventPayload{
			OrderHash: orderHash,
			HtlcID:    "src-htlc",
			Hashlock:  hashlock,
			Timelock:  sourceTimelock,
		},
	}); err != nil {
		t.Fatalf("src htlc: %v", err)
	}
	if err := r.Handle(ctx, chainadapter.Event{
		Kind:  chainadapter.EventHtlcCreated,
		Chain: "chainB",
		Payload: chainadapter.EventPayload{
			OrderHash: orderHash,
			HtlcID:    "tgt-htlc",
			Hashlock:  hashlock,
			Timelock:  sourceTimelock - int64(2*time.Hour/time.Second),
		},
	}); err != nil {
		t.Fatalf("tgt htlc: %v", err)
	}

	// Receiver claims on the target side, revealing the secret.
	if err := r.Handle(ctx, chainadapter.Event{
		Kind:  chainadapter.EventHtlcClaimed,
		Chain: "chainB",
		Payload: chainadapter.EventPayload{
			OrderHash: orderHash,
			Secret:    secret,
			HasSecret: true,
		},
	}); err != nil {
		t.Fatalf("tgt claim: %v", err)
	}

	if _, ok := r.secrets.Get(orderHash); !ok {
		t.Fatalf("expected secret to be stored")
	}

	// Maker's own claim on the source side finalizes the order.
	if err := r.Handle(ctx, chainadapter.Event{
		Kind:  chainadapter.EventHtlcClaimed,
		Chain: "chainA",
		Payload: chainadapter.EventPayload{
			OrderHash: orderHash,
			Secret:    secret,
			HasSecret: true,
		},
	}); err != nil {
		t.Fatalf("src claim: %v", err)
	}

	r.ordersMu.Lock()
	o := r.orders[orderHash]
	r.ordersMu.Unlock()

	if o.State != StateFulfilled {
		t.Fatalf("expected Fulfilled, got %s", o.State)
	}
	if _, ok := r.secrets.Get(orderHash); ok {
		t.Fatalf("expected secret cleared on fulfillment")
	}
}

func TestCapacityEvictsOldestTerminalOrder(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestResolver(t)
	r.maxPendingOrders = 1

	var firstHash [32]byte
	firstHash[0] = 5
	o := NewOrder(firstHash, "chainA", "chainB", chainadapter.EventPayload{
		Hashlock: mustHashlock(),
		Timelock: time.Now().Add(time.Hour).Unix(),
	}, time.Now())
	o.transition(StateRefunded, time.Now())
	if err := r.admit(firstHash, o); err != nil {
		t.Fatalf("admit first: %v", err)
	}

	var secondHash [32]byte
	secondHash[0] = 6
	if err := r.Handle(context.Background(), chainadapter.Event{
		Kind:  chainadapter.EventOrderCreated,
		Chain: "chainA",
		Payload: chainadapter.EventPayload{
			OrderHash: secondHash,
			Hashlock:  mustHashlock(),
			Timelock:  time.Now().Add(time.Hour).Unix(),
		},
	}); err != nil {
		t.Fatalf("admit second via Handle: %v", err)
	}

	r.ordersMu.Lock()
	defer r.ordersMu.Unlock()
	if _, ok := r.orders[firstHash]; ok {
		t.Fatalf("expected the terminal order to be evicted")
	}
	if _, ok := r.orders[secondHash]; !ok {
		t.Fatalf("expected the new order to be admitted")
	}
}

// lntypesHash computes H(secret) under the order's fixed hash function.
func lntypesHash(secret [32]byte) [32]byte {
	return [32]byte(lntypes.Preimage(secret).Hash())
}
