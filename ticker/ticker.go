// Package ticker provides a recurring-task ticker with randomized jitter, so
// that the Supervisor's periodic passes (fee refresh, adapter health) and
// the Resolver's (timeout sweep, reconciliation, retention) don't all fire
// in lockstep across
// processes and create synchronized bursts of chain RPC calls.
package ticker

import (
	"math/rand"
	"time"
)

// Ticker is satisfied by the JitterTicker below; callers hold the
// interface so that another implementation can be substituted.
type Ticker interface {
	// Ticks returns the channel on which ticks are delivered.
	Ticks() <-chan time.Time

	// Start begins the ticker.
	Start()

	// Stop halts the ticker, releasing its underlying resources.
	Stop()
}

// JitterTicker fires at approximately the configured interval, with each
// individual tick offset by up to ±jitterFraction of the interval, to avoid
// thundering-herd RPC bursts across multiple periodic tasks or resolver
// instances.
type JitterTicker struct {
	interval       time.Duration
	jitterFraction float64

	ticks chan time.Time
	quit  chan struct{}
}

// New constructs a JitterTicker with the given base interval and jitter
// fraction (e.g. 0.10 for ±10%).
func New(interval time.Duration, jitterFraction float64) *JitterTicker {
	return &JitterTicker{
		interval:       interval,
		jitterFraction: jitterFraction,
		ticks:          make(chan time.Time, 1),
		quit:           make(chan struct{}),
	}
}

// Ticks returns the channel on which jittered ticks are delivered.
func (t *JitterTicker) Ticks() <-chan time.Time {
	return t.ticks
}

// Start begins the background goroutine that delivers jittered ticks.
func (t *JitterTicker) Start() {
	go t.run()
}

// Stop halts the ticker.
func (t *JitterTicker) Stop() {
	close(t.quit)
}

func (t *JitterTicker) run() {
	for {
		select {
		case <-time.After(t.nextDelay()):
			select {
			case t.ticks <- time.Now():
			case <-t.quit:
				return
			}
		case <-t.quit:
			return
		}
	}
}

func (t *JitterTicker) nextDelay() time.Duration {
	if t.jitterFraction <= 0 {
		return t.interval
	}

	jitter := float64(t.interval) * t.jitterFraction
	offset := (rand.Float64()*2 - 1) * jitter
	delay := time.Duration(float64(t.interval) + offset)
	if delay <= 0 {
		return t.interval
	}
	return delay
}
