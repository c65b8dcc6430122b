package resolver

import (
	"context"
	"encoding/json"
	"runtime"
	"sync"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/breez/swapresolver/chainadapter"
	"github.com/breez/swapresolver/logging"
	"github.com/breez/swapresolver/queue"
	"github.com/breez/swapresolver/store"
	"github.com/breez/swapresolver/ticker"
)

var log btclog.Logger = logging.NewSubLogger("RSLV")

// Defaults for the periodic passes of §4.3.3/§4.3.4/§4.3.7.
const (
	DefaultTimeoutSweepInterval   = 60 * time.Second
	DefaultReconcileInterval      = 5 * time.Minute
	DefaultOrderTimeoutBuffer     = time.Hour
	DefaultMaxPendingOrders       = 1000
	DefaultRetentionHorizon       = 24 * time.Hour
	DefaultRetentionSweepInterval = time.Hour
	refundRetryInterval           = 10 * time.Minute
	actionQueueBufferSize         = 256
)

// DefaultWorkerCount returns §5's "modest worker pool (default 2 × CPU)"
// sizing for the outbound action-submission pool.
func DefaultWorkerCount() int {
	return 2 * runtime.NumCPU()
}

// Config bundles a Resolver's dependencies and tunables.
type Config struct {
	// Adapters holds exactly the two chains a deployment bridges,
	// keyed by ChainID.
	Adapters map[chainadapter.ChainID]chainadapter.ChainAdapter
	Store    *store.Store

	TimeoutSweepInterval time.Duration
	ReconcileInterval    time.Duration
	OrderTimeoutBuffer   time.Duration
	MaxPendingOrders     int

	// WorkerCount sizes the outbound action-submission pool. Defaults to
	// DefaultWorkerCount() (2 × CPU, per §5) when zero.
	WorkerCount int

	// RetentionHorizon is how long a terminal order survives before the
	// retention sweep garbage-collects it (§3.3). Defaults to
	// DefaultRetentionHorizon when zero.
	RetentionHorizon time.Duration

	// RetentionSweepInterval paces the retention sweep. Defaults to
	// DefaultRetentionSweepInterval when zero.
	RetentionSweepInterval time.Duration
}

// workItem is a unit of outbound work: an Action to submit on Chain, on
// behalf of OrderHash.
type workItem struct {
	Chain     chainadapter.ChainID
	OrderHash [32]byte
	Action    chainadapter.Action
}

// Resolver is the Protocol Engine (§4.3): it consumes normalized events
// (as an ingestor.Handler), maintains every order's state machine, and
// drives cross-chain claims/refunds to completion. Mutation of a given
// order is always performed holding that order's per-orderHash lock
// (serializer.go's role in the original file layout, folded in here —
// see DESIGN.md), so the event handler, the timeout sweep, and the
// reconciliation pass never race on the same order.
type Resolver struct {
	adapters map[chainadapter.ChainID]chainadapter.ChainAdapter
	store    *store.Store
	secrets  *secretStore

	timeoutSweepInterval   time.Duration
	reconcileInterval      time.Duration
	orderTimeoutBuffer     time.Duration
	maxPendingOrders       int
	workerCount            int
	retentionHorizon       time.Duration
	retentionSweepInterval time.Duration

	ordersMu sync.Mutex
	orders   map[[32]byte]*Order
	locks    map[[32]byte]*sync.Mutex

	actions *queue.ConcurrentQueue

	timeoutTicker   ticker.Ticker
	reconcileTicker ticker.Ticker
	retentionTicker ticker.Ticker

	quit chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Resolver and rehydrates its order table from cfg.Store.
func New(cfg Config) (*Resolver, error) {
	sweep := cfg.TimeoutSweepInterval
	if sweep == 0 {
		sweep = DefaultTimeoutSweepInterval
	}
	reconcile := cfg.ReconcileInterval
	if reconcile == 0 {
		reconcile = DefaultReconcileInterval
	}
	buffer := cfg.OrderTimeoutBuffer
	if buffer == 0 {
		buffer = DefaultOrderTimeoutBuffer
	}
	maxPending := cfg.MaxPendingOrders
	if maxPending == 0 {
		maxPending = DefaultMaxPendingOrders
	}
	workers := cfg.WorkerCount
	if workers == 0 {
		workers = DefaultWorkerCount()
	}
	retentionHorizon := cfg.RetentionHorizon
	if retentionHorizon == 0 {
		retentionHorizon = DefaultRetentionHorizon
	}
	retentionSweep := cfg.RetentionSweepInterval
	if retentionSweep == 0 {
		retentionSweep = DefaultRetentionSweepInterval
	}

	r := &Resolver{
		adapters:               cfg.Adapters,
		store:                  cfg.Store,
		secrets:                newSecretStore(cfg.Store),
		timeoutSweepInterval:   sweep,
		reconcileInterval:      reconcile,
		orderTimeoutBuffer:     buffer,
		maxPendingOrders:       maxPending,
		workerCount:            workers,
		retentionHorizon:       retentionHorizon,
		retentionSweepInterval: retentionSweep,
		orders:                 make(map[[32]byte]*Order),
		locks:                  make(map[[32]byte]*sync.Mutex),
		actions:                queue.NewConcurrentQueue(actionQueueBufferSize),
		timeoutTicker:          ticker.New(sweep, 0.1),
		reconcileTicker:        ticker.New(reconcile, 0.1),
		retentionTicker:        ticker.New(retentionSweep, 0.1),
		quit:                   make(chan struct{}),
	}

	if cfg.Store != nil {
		err := cfg.Store.ForEachOrder(func(orderHash [32]byte, data []byte) error {
			var o Order
			if err := json.Unmarshal(data, &o); err != nil {
				return err
			}
			r.orders[orderHash] = &o
			r.locks[orderHash] = &sync.Mutex{}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Start launches the action-submission workers and the periodic passes.
func (r *Resolver) Start(ctx context.Context) {
	r.actions.Start()
	r.timeoutTicker.Start()
	r.reconcileTicker.Start()
	r.retentionTicker.Start()

	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}

	r.wg.Add(1)
	go r.loop(ctx)
}

// Stop drains in-flight work and halts every goroutine Start launched.
func (r *Resolver) Stop() {
	close(r.quit)
	r.timeoutTicker.Stop()
	r.reconcileTicker.Stop()
	r.retentionTicker.Stop()
	r.actions.Stop()
	r.wg.Wait()
}

func (r *Resolver) loop(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-r.quit:
			return
		case <-ctx.Done():
			return
		case <-r.timeoutTicker.Ticks():
			r.runTimeoutSweep(ctx)
		case <-r.reconcileTicker.Ticks():
			r.runReconcile(ctx)
		case <-r.retentionTicker.Ticks():
			r.runRetentionSweep(ctx)
		}
	}
}

func (r *Resolver) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-r.quit:
			return
		case item, ok := <-r.actions.ChanOut():
			if !ok {
				return
			}
			wi, ok := item.(workItem)
			if !ok {
				continue
			}
			r.submitAction(ctx, wi)
		}
	}
}

func (r *Resolver) submitAction(ctx context.Context, wi workItem) {
	adapter, ok := r.adapters[wi.Chain]
	if !ok {
		log.Errorf("order %x: no adapter configured for chain %s", wi.OrderHash[:4], wi.Chain)
		return
	}

	txID, err := adapter.Submit(ctx, wi.Action)
	if err != nil {
		log.Errorf("order %x: submit %s on %s failed: %v",
			wi.OrderHash[:4], wi.Action.Kind, wi.Chain, err)

		// §7: NeedsAttention flags a submission whose retries were
		// exhausted (a persistent RPC outage), surfaced for operator/
		// get_stats visibility. An InvariantBreach is never retried by
		// chainadapter.WithRetry in the first place (see retry.go), so
		// it never reaches here as ErrSubmitExhausted; it's handled at
		// the point the breach is observed (events.go), not here.
		var aerr *chainadapter.AdapterError
		if isAdapterError(err, &aerr) && aerr.Kind == chainadapter.ErrSubmitExhausted {
			r.withOrder(wi.OrderHash, func(o *Order) {
				o.NeedsAttention = true
				o.AttentionNote = "submit retries exhausted: " + err.Error()
			})
		}
		return
	}

	log.Infof("order %x: submitted %s on %s, txID=%s", wi.OrderHash[:4], wi.Action.Kind, wi.Chain, txID)
}

// enqueueAction hands off an outbound submission to the worker pool; it
// never blocks the caller (ConcurrentQueue's whole point), so onEvent and
// the periodic passes stay responsive even when a chain's RPC is slow.
func (r *Resolver) enqueueAction(chain chainadapter.ChainID, orderHash [32]byte, action chainadapter.Action) {
	r.actions.ChanIn() <- workItem{Chain: chain, OrderHash: orderHash, Action: action}
}

// otherChain returns whichever of the two configured chains isn't chain,
// the "source ↔ target" pairing a two-chain deployment implies.
func (r *Resolver) otherChain(chain chainadapter.ChainID) chainadapter.ChainID {
	for id := range r.adapters {
		if id != chain {
			return id
		}
	}
	return ""
}

func (r *Resolver) lockFor(orderHash [32]byte) *sync.Mutex {
	r.ordersMu.Lock()
	defer r.ordersMu.Unlock()
	l, ok := r.locks[orderHash]
	if !ok {
		l = &sync.Mutex{}
		r.locks[orderHash] = l
	}
	return l
}

// withOrder runs fn with orderHash's lock held, persisting the order
// afterward if it still exists. Safe to call from any goroutine.
func (r *Resolver) withOrder(orderHash [32]byte, fn func(o *Order)) {
	lock := r.lockFor(orderHash)
	lock.Lock()
	defer lock.Unlock()

	r.ordersMu.Lock()
	o, ok := r.orders[orderHash]
	r.ordersMu.Unlock()
	if !ok {
		return
	}

	fn(o)
	r.persist(orderHash, o)
}

func (r *Resolver) persist(orderHash [32]byte, o *Order) {
	if r.store == nil {
		return
	}
	if err := r.store.PutOrder(orderHash, o); err != nil {
		log.Errorf("order %x: persisting failed: %v", orderHash[:4], err)
	}
}

func isAdapterError(err error, target **chainadapter.AdapterError) bool {
	for err != nil {
		if ae, ok := err.(*chainadapter.AdapterError); ok {
			*target = ae
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
