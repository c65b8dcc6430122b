package store

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "resolver.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCursorMonotoneAdvance(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	if err := s.SetCursor("chainA", 100); err != nil {
		t.Fatalf("set cursor: %v", err)
	}
	got, err := s.GetCursor("chainA")
	if err != nil || got != 100 {
		t.Fatalf("get cursor = %d, %v", got, err)
	}

	if err := s.SetCursor("chainA", 50); err == nil {
		t.Fatalf("expected error regressing cursor")
	}
}

func TestSeenEventDedup(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	seen, err := s.SeenEvent("chainA", "tx1", 0)
	if err != nil || seen {
		t.Fatalf("expected fresh event, got seen=%v err=%v", seen, err)
	}
	seen, err = s.SeenEvent("chainA", "tx1", 0)
	if err != nil || !seen {
		t.Fatalf("expected dedup hit on replay, got seen=%v err=%v", seen, err)
	}
}

func TestOrderRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	type fakeOrder struct {
		State string
	}
	var hash [32]byte
	hash[0] = 1

	if err := s.PutOrder(hash, fakeOrder{State: "Pending"}); err != nil {
		t.Fatalf("put order: %v", err)
	}

	var out fakeOrder
	if err := s.GetOrder(hash, &out); err != nil {
		t.Fatalf("get order: %v", err)
	}
	if out.State != "Pending" {
		t.Fatalf("unexpected order state: %v", out.State)
	}

	if err := s.DeleteOrder(hash); err != nil {
		t.Fatalf("delete order: %v", err)
	}
	if err := s.GetOrder(hash, &out); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSecretLifecycle(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	var hash, secret [32]byte
	hash[0] = 2
	secret[0] = 0xAB

	if _, ok, err := s.GetSecret(hash); err != nil || ok {
		t.Fatalf("expected no secret yet")
	}
	if err := s.PutSecret(hash, secret); err != nil {
		t.Fatalf("put secret: %v", err)
	}
	got, ok, err := s.GetSecret(hash)
	if err != nil || !ok || got != secret {
		t.Fatalf("get secret mismatch: %v %v %v", got, ok, err)
	}
	if err := s.DeleteSecret(hash); err != nil {
		t.Fatalf("delete secret: %v", err)
	}
	if _, ok, _ := s.GetSecret(hash); ok {
		t.Fatalf("expected secret gone after delete")
	}
}

func TestPruneDedupOlderThan(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	if _, err := s.SeenEvent("chainA", "old-tx", 0); err != nil {
		t.Fatalf("seen event: %v", err)
	}
	if err := s.PruneDedupOlderThan(time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("prune: %v", err)
	}
	seen, err := s.SeenEvent("chainA", "old-tx", 0)
	if err != nil || seen {
		t.Fatalf("expected pruned event to look fresh again, got seen=%v err=%v", seen, err)
	}
}
