// Package ingestor runs the per-chain polling loop that advances a chain's
// Cursor and delivers normalized events to the Resolver in order (§4.2). It
// is grounded on discovery/syncer.go's pattern of a rate-limited,
// cursor-driven query loop — generalized from gossip range-queries between
// peers to chainadapter.ChainAdapter.QueryEvents windows — and uses
// ticker.JitterTicker (rather than discovery/syncer.go's raw time.Ticker)
// so many chains' poll loops don't all wake on the same instant.
package ingestor

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btclog"
	"golang.org/x/time/rate"

	"github.com/breez/swapresolver/chainadapter"
	"github.com/breez/swapresolver/logging"
	"github.com/breez/swapresolver/store"
	"github.com/breez/swapresolver/ticker"
)

var log btclog.Logger = logging.NewSubLogger("INGR")

// Handler is called once per event, in (BlockHeight, LogIndex) order, for
// blocks at or below the chain's confirmed height. The Resolver supplies
// this; a non-nil return aborts the current poll cycle before the cursor
// is advanced, so the event will be retried on the next tick.
type Handler func(ctx context.Context, event chainadapter.Event) error

// DefaultPollInterval and DefaultRateLimit are the §4.2/§6.2 polling
// defaults: one query window per tick, capped at one poll cycle per second
// against the underlying adapter regardless of how aggressively the caller
// drives the loop.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultRateLimit    = 1
)

// Config bundles an Ingestor's dependencies.
type Config struct {
	Adapter      chainadapter.ChainAdapter
	Store        *store.Store
	Handler      Handler
	PollInterval time.Duration
	JitterFrac   float64
}

// Ingestor drives one chain's poll loop: read Cursor, compute the next
// bounded window via chainadapter.ClampWindow, query it, dispatch every
// event in order, advance Cursor only once every event in the window has
// been handled without error.
type Ingestor struct {
	chain   chainadapter.ChainID
	adapter chainadapter.ChainAdapter
	store   *store.Store
	handler Handler
	ticker  ticker.Ticker
	limiter *rate.Limiter

	quit chan struct{}
	done chan struct{}
}

// New constructs an Ingestor for cfg.Adapter's chain. It reads no cursor;
// each poll cycle reads it from cfg.Store, and a chain with no stored
// cursor starts MaxBlocksPerQuery blocks behind the adapter's confirmed
// height ("cold-start initialization" per §4.2).
func New(cfg Config) *Ingestor {
	interval := cfg.PollInterval
	if interval == 0 {
		interval = DefaultPollInterval
	}
	jitter := cfg.JitterFrac
	if jitter == 0 {
		jitter = 0.1
	}

	return &Ingestor{
		chain:   cfg.Adapter.ID(),
		adapter: cfg.Adapter,
		store:   cfg.Store,
		handler: cfg.Handler,
		ticker:  ticker.New(interval, jitter),
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the poll loop in its own goroutine.
func (ig *Ingestor) Start(ctx context.Context) {
	ig.ticker.Start()
	go ig.loop(ctx)
}

// Stop signals the poll loop to exit and blocks until it has.
func (ig *Ingestor) Stop() {
	close(ig.quit)
	ig.ticker.Stop()
	<-ig.done
}

func (ig *Ingestor) loop(ctx context.Context) {
	defer close(ig.done)

	for {
		select {
		case <-ig.quit:
			return
		case <-ctx.Done():
			return
		case <-ig.ticker.Ticks():
			if err := ig.pollOnce(ctx); err != nil {
				log.Errorf("%s: poll cycle failed: %v", ig.chain, err)
			}
		}
	}
}

// pollOnce runs a single cold-start-or-steady-state poll cycle. It never
// advances the cursor past a block whose events it failed to fully apply
// (§4.1's "the Ingestor does not advance its cursor past that block").
func (ig *Ingestor) pollOnce(ctx context.Context) error {
	if err := ig.limiter.Wait(ctx); err != nil {
		return err
	}

	from, err := ig.store.GetCursor(string(ig.chain))
	if err != nil {
		return fmt.Errorf("ingestor: reading cursor: %w", err)
	}
	if from == 0 {
		// Cold start: begin MaxBlocksPerQuery blocks behind the chain's
		// current confirmed height rather than at the tip, so an
		// OrderCreated/HtlcCreated just before first run isn't skipped
		// (§4.2).
		confirmed, err := ig.adapter.ConfirmedHeight(ctx)
		if err != nil {
			return fmt.Errorf("ingestor: cold-start confirmed height: %w", err)
		}
		if confirmed > chainadapter.MaxBlocksPerQuery {
			from = confirmed - chainadapter.MaxBlocksPerQuery
		} else {
			from = 0
		}
	} else {
		from++
	}

	confirmed, err := ig.adapter.ConfirmedHeight(ctx)
	if err != nil {
		return fmt.Errorf("ingestor: confirmed height: %w", err)
	}
	if confirmed < from {
		return nil // nothing new and confirmed yet
	}

	to := chainadapter.ClampWindow(from, confirmed)
	if to < from {
		return nil
	}

	events, err := ig.adapter.QueryEvents(ctx, from, to)
	if err != nil {
		return fmt.Errorf("ingestor: query events [%d,%d]: %w", from, to, err)
	}

	for _, e := range events {
		seen, err := ig.store.SeenEvent(string(e.Chain), e.TxID, e.LogIndex)
		if err != nil {
			return fmt.Errorf("ingestor: dedup check: %w", err)
		}
		if seen {
			continue
		}
		if err := ig.handler(ctx, e); err != nil {
			return fmt.Errorf("ingestor: handling %s event at height %d: %w",
				e.Kind, e.BlockHeight, err)
		}
	}

	return ig.store.SetCursor(string(ig.chain), to)
}
