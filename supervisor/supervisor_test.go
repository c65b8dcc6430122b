package supervisor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/breez/swapresolver/chainadapter"
	"github.com/breez/swapresolver/resolver"
	"github.com/breez/swapresolver/store"
)

type fakeAdapter struct {
	chain       chainadapter.ChainID
	height      uint64
	refreshErr  error
	refreshes   int
}

func (f *fakeAdapter) ID() chainadapter.ChainID                  { return f.chain }
func (f *fakeAdapter) TipHeight(ctx context.Context) (uint64, error) {
	return f.height, nil
}
func (f *fakeAdapter) ConfirmedHeight(ctx context.Context) (uint64, error) {
	return f.height, nil
}
func (f *fakeAdapter) QueryEvents(ctx context.Context, from, to uint64) ([]chainadapter.Event, error) {
	return nil, nil
}
func (f *fakeAdapter) Submit(ctx context.Context, action chainadapter.Action) (string, error) {
	return "", nil
}
func (f *fakeAdapter) WaitForReceipt(ctx context.Context, txID string, timeout time.Duration) (*chainadapter.Receipt, error) {
	return nil, nil
}
func (f *fakeAdapter) CurrentFeeQuote() chainadapter.FeeQuote { return chainadapter.FeeQuote{} }
func (f *fakeAdapter) RefreshFeeQuote(ctx context.Context) error {
	f.refreshes++
	return f.refreshErr
}

func newTestSupervisor(t *testing.T) (*Supervisor, *fakeAdapter) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	a := &fakeAdapter{chain: "chainA", height: 100}
	b := &fakeAdapter{chain: "chainB", height: 50}

	r, err := resolver.New(resolver.Config{
		Adapters: map[chainadapter.ChainID]chainadapter.ChainAdapter{
			"chainA": a,
			"chainB": b,
		},
		Store: s,
	})
	if err != nil {
		t.Fatalf("resolver.New: %v", err)
	}

	sup := New(Config{
		Adapters: map[chainadapter.ChainID]chainadapter.ChainAdapter{
			"chainA": a,
			"chainB": b,
		},
		Store:               s,
		Resolver:            r,
		FeeRefreshInterval:  20 * time.Millisecond,
		HealthCheckInterval: 20 * time.Millisecond,
		ShutdownDrainBudget: time.Second,
	})
	return sup, a
}

func TestStartStopIsIdempotentAndDrainsCleanly(t *testing.T) {
	t.Parallel()

	sup, _ := newTestSupervisor(t)
	ctx := context.Background()

	if err := sup.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Second Start is a no-op, not an error.
	if err := sup.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if err := sup.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Second Stop is a no-op, not a hang.
	if err := sup.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestHealthReflectsTipHeight(t *testing.T) {
	t.Parallel()

	sup, a := newTestSupervisor(t)
	ctx := context.Background()

	if err := sup.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		statuses := sup.Health()
		if len(statuses) == 2 {
			allSeen := true
			for _, st := range statuses {
				if st.TipHeight == 0 {
					allSeen = false
				}
			}
			if allSeen {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
	}

	statuses := sup.Health()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 chain statuses, got %d", len(statuses))
	}
	for _, st := range statuses {
		if !st.Healthy {
			t.Fatalf("expected %s healthy, got error %q", st.Chain, st.LastError)
		}
	}

	_ = a
}
