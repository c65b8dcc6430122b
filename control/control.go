// Package control implements the §6.3 control/API surface
// (submit_fulfill, get_order, get_stats, health) as a thin façade over a
// resolverd instance's persisted state and, when embedded in the same
// process, its live Supervisor. SPEC_FULL.md treats the real network
// façade as out of scope (§1's Non-goals still exclude the outer RPC
// surface); cmd/resolverctl talks to this package via direct in-process
// calls rather than over a wire protocol, mirroring cmd/lncli's command
// set without cmd/lncli's gRPC transport.
package control

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/breez/swapresolver/resolver"
	"github.com/breez/swapresolver/store"
	"github.com/breez/swapresolver/supervisor"
)

// Controller is the §6.3 operation set. Sup is optional: Health only
// works when the Controller was constructed inside the same process as
// a running Supervisor (e.g. an embedded control surface inside
// resolverd itself); an external cmd/resolverctl invocation against a
// separate resolverd process has no way to observe live health short of
// an actual RPC transport, which is out of scope here.
type Controller struct {
	Store *store.Store
	Sup   *supervisor.Supervisor
}

// New constructs a Controller over an already-open Store. sup may be nil.
func New(s *store.Store, sup *supervisor.Supervisor) *Controller {
	return &Controller{Store: s, Sup: sup}
}

// OrderStats summarizes the pending order table for get_stats().
type OrderStats struct {
	Total          int
	ByState        map[string]int
	NeedsAttention int
}

// GetOrder implements get_order(orderHash).
func (c *Controller) GetOrder(orderHash [32]byte) (*resolver.Order, error) {
	var o resolver.Order
	if err := c.Store.GetOrder(orderHash, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// GetStats implements get_stats().
func (c *Controller) GetStats() (*OrderStats, error) {
	stats := &OrderStats{ByState: make(map[string]int)}

	err := c.Store.ForEachOrder(func(orderHash [32]byte, data []byte) error {
		var o resolver.Order
		if err := json.Unmarshal(data, &o); err != nil {
			return err
		}
		stats.Total++
		stats.ByState[o.State.String()]++
		if o.NeedsAttention {
			stats.NeedsAttention++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Health implements health(). It requires an embedded, live Supervisor;
// see the Controller doc comment for why an external process can't get
// this any other way in this deployment.
func (c *Controller) Health() ([]supervisor.ChainStatus, error) {
	if c.Sup == nil {
		return nil, fmt.Errorf("control: health() requires an embedded, live supervisor; " +
			"this invocation has store access only")
	}
	return c.Sup.Health(), nil
}

// SubmitFulfill implements submit_fulfill(orderHash, secret): an operator
// override that supplies a secret the automated claim-propagation path
// (resolver's HtlcClaimed handler, §4.3.5) hasn't observed yet, for cases
// like an out-of-band reveal. It writes directly to the secret bucket; a
// live resolverd picks it up on its next reconciliation pass (§4.3.4).
func (c *Controller) SubmitFulfill(orderHash [32]byte, secret [32]byte) error {
	return c.Store.PutSecret(orderHash, secret)
}

// ParseOrderHash decodes a hex-encoded order hash as accepted on the
// command line.
func ParseOrderHash(s string) ([32]byte, error) {
	var h [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("control: invalid order hash %q: %w", s, err)
	}
	if len(b) != 32 {
		return h, fmt.Errorf("control: order hash must be 32 bytes, got %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}
