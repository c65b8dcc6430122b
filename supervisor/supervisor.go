// Package supervisor owns the lifecycle of every other moving part (§4.4):
// it starts the chain adapters' ingestors and the resolver, schedules the
// periodic fee-refresh and adapter-health passes, and drives shutdown with
// a bounded drain budget. Grounded on daemon/lnd.go and daemon/server.go's
// Start/Stop idiom (atomic started/shutdown guards, a quit channel closed
// once, sequential sub-system startup/teardown) and daemon/chainregistry.go's
// per-chain backend registry, generalized from lnd's bitcoind/neutrino/btcd
// backend choice to this system's two fixed ChainAdapter instances.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/breez/swapresolver/chainadapter"
	"github.com/breez/swapresolver/ingestor"
	"github.com/breez/swapresolver/logging"
	"github.com/breez/swapresolver/resolver"
	"github.com/breez/swapresolver/store"
	"github.com/breez/swapresolver/ticker"
)

var log btclog.Logger = logging.NewSubLogger("SPVR")

// §4.4/§6.2 scheduling defaults.
const (
	DefaultFeeRefreshInterval    = 5 * time.Minute
	DefaultHealthCheckInterval  = 30 * time.Second
	DefaultShutdownDrainBudget  = 30 * time.Second
)

// Config bundles everything the Supervisor needs to bring the system up.
type Config struct {
	Adapters map[chainadapter.ChainID]chainadapter.ChainAdapter
	Store    *store.Store
	Resolver *resolver.Resolver

	FeeRefreshInterval   time.Duration
	HealthCheckInterval  time.Duration
	ShutdownDrainBudget  time.Duration
	IngestorPollInterval time.Duration
}

// chainHealth is the Supervisor's last observation of one chain's liveness,
// exposed via Health() for the control surface's `health()` call (§6.3).
type chainHealth struct {
	Chain            chainadapter.ChainID
	LastTipHeight    uint64
	LastCheckAt      time.Time
	LastCheckErr     error
	HeightAdvancedAt time.Time
}

// Supervisor is the top-level process owner.
type Supervisor struct {
	adapters map[chainadapter.ChainID]chainadapter.ChainAdapter
	store    *store.Store
	resolver *resolver.Resolver

	ingestors []*ingestor.Ingestor

	feeRefreshInterval  time.Duration
	healthCheckInterval time.Duration
	drainBudget         time.Duration

	feeTicker    ticker.Ticker
	healthTicker ticker.Ticker

	healthMu sync.RWMutex
	health   map[chainadapter.ChainID]*chainHealth

	started int32
	stopped int32

	quit chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Supervisor and its per-chain Ingestors. It does not
// start anything — call Start for that.
func New(cfg Config) *Supervisor {
	feeInterval := cfg.FeeRefreshInterval
	if feeInterval == 0 {
		feeInterval = DefaultFeeRefreshInterval
	}
	healthInterval := cfg.HealthCheckInterval
	if healthInterval == 0 {
		healthInterval = DefaultHealthCheckInterval
	}
	drain := cfg.ShutdownDrainBudget
	if drain == 0 {
		drain = DefaultShutdownDrainBudget
	}

	s := &Supervisor{
		adapters:            cfg.Adapters,
		store:               cfg.Store,
		resolver:            cfg.Resolver,
		feeRefreshInterval:  feeInterval,
		healthCheckInterval: healthInterval,
		drainBudget:         drain,
		feeTicker:           ticker.New(feeInterval, 0.1),
		healthTicker:        ticker.New(healthInterval, 0.1),
		health:              make(map[chainadapter.ChainID]*chainHealth),
		quit:                make(chan struct{}),
	}

	for id, a := range cfg.Adapters {
		s.health[id] = &chainHealth{Chain: id}
		s.ingestors = append(s.ingestors, ingestor.New(ingestor.Config{
			Adapter:      a,
			Store:        cfg.Store,
			Handler:      cfg.Resolver.Handle,
			PollInterval: cfg.IngestorPollInterval,
		}))
	}

	return s
}

// Start brings up the resolver, every ingestor, and the periodic passes.
// Safe to call only once; a second call is a no-op.
func (s *Supervisor) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return nil
	}

	if s.resolver == nil {
		return fmt.Errorf("supervisor: no resolver configured")
	}
	s.resolver.Start(ctx)

	for _, ig := range s.ingestors {
		ig.Start(ctx)
	}

	s.feeTicker.Start()
	s.healthTicker.Start()

	s.wg.Add(1)
	go s.loop(ctx)

	log.Infof("supervisor started with %d chain(s)", len(s.adapters))
	return nil
}

// Stop cancels the periodic passes, stops every ingestor and the resolver,
// and waits up to the configured drain budget for everything to settle
// before returning. Safe to call only once.
func (s *Supervisor) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.stopped, 0, 1) {
		return nil
	}

	close(s.quit)
	s.feeTicker.Stop()
	s.healthTicker.Stop()

	for _, ig := range s.ingestors {
		ig.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		if s.resolver != nil {
			s.resolver.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.drainBudget):
		log.Warnf("supervisor: shutdown drain budget (%s) exceeded, forcing exit", s.drainBudget)
	}

	log.Infof("supervisor stopped")
	return nil
}

func (s *Supervisor) loop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-s.quit:
			return
		case <-ctx.Done():
			return
		case <-s.feeTicker.Ticks():
			s.refreshFees(ctx)
		case <-s.healthTicker.Ticks():
			s.checkHealth(ctx)
		}
	}
}

// refreshFees re-queries every chain's fee oracle (§4.4: every 5 min per
// chain). A failed refresh is logged and the adapter keeps its last-known
// quote (§4.1, §9's "stale value is acceptable").
func (s *Supervisor) refreshFees(ctx context.Context) {
	for id, a := range s.adapters {
		if err := a.RefreshFeeQuote(ctx); err != nil {
			log.Errorf("%s: fee refresh failed: %v", id, err)
		}
	}
}

// checkHealth polls each adapter's tip height (§4.4). An adapter whose
// TipHeight call errors is reported unhealthy by the control surface's
// health() call. The time the height last advanced is recorded in
// HeightAdvancedAt, but a height that stops advancing does not mark the
// chain unhealthy.
func (s *Supervisor) checkHealth(ctx context.Context) {
	for id, a := range s.adapters {
		height, err := a.TipHeight(ctx)
		now := time.Now()

		s.healthMu.Lock()
		h := s.health[id]
		if err != nil {
			h.LastCheckErr = err
		} else {
			h.LastCheckErr = nil
			if height > h.LastTipHeight {
				h.HeightAdvancedAt = now
			}
			h.LastTipHeight = height
		}
		h.LastCheckAt = now
		s.healthMu.Unlock()

		if err != nil {
			log.Errorf("%s: health check failed: %v", id, err)
		}
	}
}

// ChainStatus is the control-surface-facing snapshot of one chain's health.
type ChainStatus struct {
	Chain         chainadapter.ChainID
	TipHeight     uint64
	Healthy       bool
	LastError     string
	LastCheckedAt time.Time
}

// Health returns a point-in-time snapshot per chain, backing the §6.3
// health() control-surface call.
func (s *Supervisor) Health() []ChainStatus {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()

	out := make([]ChainStatus, 0, len(s.health))
	for _, h := range s.health {
		status := ChainStatus{
			Chain:         h.Chain,
			TipHeight:     h.LastTipHeight,
			Healthy:       h.LastCheckErr == nil,
			LastCheckedAt: h.LastCheckAt,
		}
		if h.LastCheckErr != nil {
			status.LastError = h.LastCheckErr.Error()
		}
		out = append(out, status)
	}
	return out
}
