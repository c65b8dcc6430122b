package ingestor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/breez/swapresolver/chainadapter"
	"github.com/breez/swapresolver/store"
)

type fakeAdapter struct {
	chain     chainadapter.ChainID
	confirmed uint64
	events    map[[2]uint64][]chainadapter.Event
}

func (f *fakeAdapter) ID() chainadapter.ChainID { return f.chain }
func (f *fakeAdapter) TipHeight(ctx context.Context) (uint64, error) {
	return f.confirmed, nil
}
func (f *fakeAdapter) ConfirmedHeight(ctx context.Context) (uint64, error) {
	return f.confirmed, nil
}
func (f *fakeAdapter) QueryEvents(ctx context.Context, from, to uint64) ([]chainadapter.Event, error) {
	return f.events[[2]uint64{from, to}], nil
}
func (f *fakeAdapter) Submit(ctx context.Context, action chainadapter.Action) (string, error) {
	return "", nil
}
func (f *fakeAdapter) WaitForReceipt(ctx context.Context, txID string, timeout time.Duration) (*chainadapter.Receipt, error) {
	return nil, nil
}
func (f *fakeAdapter) CurrentFeeQuote() chainadapter.FeeQuote { return chainadapter.FeeQuote{} }
func (f *fakeAdapter) RefreshFeeQuote(ctx context.Context) error { return nil }

func TestPollOnceDeliversEventsInOrderAndAdvancesCursor(t *testing.T) {
	t.Parallel()

	s, err := store.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	adapter := &fakeAdapter{
		chain:     "chainA",
		confirmed: 10,
		events: map[[2]uint64][]chainadapter.Event{
			{0, 10}: {
				{Kind: chainadapter.EventOrderCreated, Chain: "chainA", BlockHeight: 5, TxID: "tx1", LogIndex: 0},
				{Kind: chainadapter.EventHtlcCreated, Chain: "chainA", BlockHeight: 7, TxID: "tx2", LogIndex: 0},
			},
		},
	}

	var got []chainadapter.Event
	ig := New(Config{
		Adapter: adapter,
		Store:   s,
		Handler: func(ctx context.Context, e chainadapter.Event) error {
			got = append(got, e)
			return nil
		},
	})

	if err := ig.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events delivered, got %d", len(got))
	}
	if got[0].TxID != "tx1" || got[1].TxID != "tx2" {
		t.Fatalf("expected events in order tx1, tx2, got %s, %s", got[0].TxID, got[1].TxID)
	}

	cursor, err := s.GetCursor("chainA")
	if err != nil || cursor != 10 {
		t.Fatalf("expected cursor at 10, got %d, %v", cursor, err)
	}
}

func TestPollOnceSkipsAlreadySeenEvents(t *testing.T) {
	t.Parallel()

	s, err := store.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	if _, err := s.SeenEvent("chainA", "tx1", 0); err != nil {
		t.Fatalf("seed dedup: %v", err)
	}

	adapter := &fakeAdapter{
		chain:     "chainA",
		confirmed: 10,
		events: map[[2]uint64][]chainadapter.Event{
			{0, 10}: {
				{Kind: chainadapter.EventOrderCreated, Chain: "chainA", BlockHeight: 5, TxID: "tx1", LogIndex: 0},
			},
		},
	}

	called := false
	ig := New(Config{
		Adapter: adapter,
		Store:   s,
		Handler: func(ctx context.Context, e chainadapter.Event) error {
			called = true
			return nil
		},
	})

	if err := ig.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}
	if called {
		t.Fatalf("handler should not be invoked for a previously seen event")
	}
}
