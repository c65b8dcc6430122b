// Command resolverd runs the swap resolver daemon: it wires the Bitcoin
// and Litecoin chain adapters, the Event Ingestor, the Protocol Engine,
// and the Supervisor, then blocks until signaled to shut down. Mirrors
// cmd/lnd/main.go's role as a thin wrapper around the real daemon entry
// point (ResolverMain), which takes os.Args directly so it can be called
// from tests the way LndMain is.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	btcchaincfg "github.com/btcsuite/btcd/chaincfg"
	btcrpcclient "github.com/btcsuite/btcd/rpcclient"
	ltcchaincfg "github.com/ltcsuite/ltcd/chaincfg"
	ltcrpcclient "github.com/ltcsuite/ltcd/rpcclient"

	"github.com/breez/swapresolver/chainadapter"
	"github.com/breez/swapresolver/chainadapter/bitcoin"
	"github.com/breez/swapresolver/chainadapter/litecoin"
	"github.com/breez/swapresolver/config"
	"github.com/breez/swapresolver/logging"
	"github.com/breez/swapresolver/resolver"
	"github.com/breez/swapresolver/store"
	"github.com/breez/swapresolver/supervisor"
)

const (
	chainA chainadapter.ChainID = "chainA"
	chainB chainadapter.ChainID = "chainB"
)

func main() {
	if err := ResolverMain(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ResolverMain is the daemon's real entry point, separated from main so
// it can be invoked directly (by tests, or by an embedding process) the
// way daemon.LndMain is.
func ResolverMain(args []string) error {
	cfg, err := config.LoadConfig(args[1:])
	if err != nil {
		return err
	}

	if err := logging.InitLogRotator(filepath.Join(cfg.LogDir, "resolverd.log"), 10, 3); err != nil {
		return err
	}

	db, err := store.Open(filepath.Join(cfg.DataDir, "resolver.db"))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	btcAdapter, err := bitcoin.NewAdapter(bitcoin.Config{
		Chain: chainA,
		RPCConfig: &btcrpcclient.ConnConfig{
			Host:         cfg.ChainA.RPCHost,
			User:         cfg.ChainA.RPCUser,
			Pass:         cfg.ChainA.RPCPass,
			HTTPPostMode: true,
			DisableTLS:   true,
		},
		NetParams:                &btcchaincfg.MainNetParams,
		ConfirmDepth:             uint64(cfg.ConfirmationDepth),
		SubmissionKeyWIF:         cfg.ChainA.SubmitWIF,
		MaxConcurrentSubmissions: cfg.MaxConcurrentSubmissions,
		RetryPolicy: chainadapter.RetryPolicy{
			Attempts:  cfg.RetryAttempts,
			BaseDelay: cfg.RetryBaseDelay,
		},
	})
	if err != nil {
		return fmt.Errorf("starting chainA (bitcoin) adapter: %w", err)
	}

	ltcAdapter, err := litecoin.NewAdapter(litecoin.Config{
		Chain: chainB,
		RPCConfig: &ltcrpcclient.ConnConfig{
			Host:         cfg.ChainB.RPCHost,
			User:         cfg.ChainB.RPCUser,
			Pass:         cfg.ChainB.RPCPass,
			HTTPPostMode: true,
			DisableTLS:   true,
		},
		NetParams:                &ltcchaincfg.MainNetParams,
		ConfirmDepth:             uint64(cfg.ConfirmationDepth),
		SubmissionKeyWIF:         cfg.ChainB.SubmitWIF,
		MaxConcurrentSubmissions: cfg.MaxConcurrentSubmissions,
		RetryPolicy: chainadapter.RetryPolicy{
			Attempts:  cfg.RetryAttempts,
			BaseDelay: cfg.RetryBaseDelay,
		},
	})
	if err != nil {
		return fmt.Errorf("starting chainB (litecoin) adapter: %w", err)
	}

	adapters := map[chainadapter.ChainID]chainadapter.ChainAdapter{
		chainA: btcAdapter,
		chainB: ltcAdapter,
	}

	eng, err := resolver.New(resolver.Config{
		Adapters:               adapters,
		Store:                  db,
		OrderTimeoutBuffer:     cfg.OrderTimeoutBuffer,
		MaxPendingOrders:       cfg.MaxPendingOrders,
		WorkerCount:            cfg.WorkerCount,
		RetentionHorizon:       cfg.RetentionHorizon,
		RetentionSweepInterval: cfg.RetentionSweepInterval,
	})
	if err != nil {
		return fmt.Errorf("starting resolver: %w", err)
	}

	sup := supervisor.New(supervisor.Config{
		Adapters:             adapters,
		Store:                db,
		Resolver:             eng,
		IngestorPollInterval: cfg.PollingInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("starting supervisor: %w", err)
	}

	log.Infof("resolverd ready, data dir %s", cfg.DataDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Infof("shutdown signal received, draining")
	cancel()
	if err := sup.Stop(); err != nil {
		return err
	}
	btcAdapter.Shutdown()
	ltcAdapter.Shutdown()
	return nil
}

var log = logging.NewSubLogger("MAIN")
