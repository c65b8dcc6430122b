package config

import (
	"path/filepath"
	"testing"
)

func TestLoadConfigAppliesDefaultsAndValidates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	args := []string{
		"--datadir", filepath.Join(dir, "data"),
		"--logdir", filepath.Join(dir, "logs"),
		"--chainA.rpchost", "127.0.0.1:18332",
		"--chainB.rpchost", "127.0.0.1:19332",
	}

	cfg, err := LoadConfig(args)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.ConfirmationDepth != defaultConfirmationDepth {
		t.Fatalf("expected default confirmation depth, got %d", cfg.ConfirmationDepth)
	}
	if cfg.MaxPendingOrders != defaultMaxPendingOrders {
		t.Fatalf("expected default max pending orders, got %d", cfg.MaxPendingOrders)
	}
	if cfg.ChainA.RPCHost != "127.0.0.1:18332" {
		t.Fatalf("expected chainA rpchost to be set, got %q", cfg.ChainA.RPCHost)
	}
}

func TestLoadConfigRejectsMissingChainHosts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	args := []string{
		"--datadir", filepath.Join(dir, "data"),
		"--logdir", filepath.Join(dir, "logs"),
	}

	if _, err := LoadConfig(args); err == nil {
		t.Fatalf("expected an error for missing chain RPC hosts")
	}
}

func TestLoadConfigRejectsInvertedTimelockBounds(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	args := []string{
		"--datadir", filepath.Join(dir, "data"),
		"--logdir", filepath.Join(dir, "logs"),
		"--chainA.rpchost", "127.0.0.1:18332",
		"--chainB.rpchost", "127.0.0.1:19332",
		"--min_timelock", "200h",
		"--max_timelock", "100h",
	}

	if _, err := LoadConfig(args); err == nil {
		t.Fatalf("expected an error for inverted timelock bounds")
	}
}
