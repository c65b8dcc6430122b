// Package config defines the resolverd service configuration (§6.2),
// parsed with jessevdk/go-flags the way cmd/lnd/main.go parses the
// teacher's daemon config, with address defaulting/normalization adapted
// from lncfg/address.go.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcutil"
	flags "github.com/jessevdk/go-flags"

	"github.com/breez/swapresolver/chainadapter"
)

const (
	defaultConfigFilename  = "resolverd.conf"
	defaultDataDirname     = "data"
	defaultLogDirname      = "logs"
	defaultLogFilename     = "resolverd.log"
	defaultConfirmationDepth = 3
	defaultPollingInterval  = 5 * time.Second
	defaultMaxBlocksPerQuery = 100
	defaultOrderTimeoutBuffer = 3600 * time.Second
	defaultMaxPendingOrders = 1000
	defaultMinTimelock      = time.Hour
	defaultMaxTimelock      = 7 * 24 * time.Hour
	defaultTimelock         = 24 * time.Hour
	defaultRetryAttempts    = 3
	defaultRetryBaseDelay   = 5 * time.Second
	defaultRPCListen        = "localhost:9735"
	defaultMaxConcurrentSubmissions = 16
	defaultWorkerCount              = 0 // 0 defers to resolver.DefaultWorkerCount() (2x CPU)
	defaultRetentionHorizon         = 24 * time.Hour
	defaultRetentionSweepInterval   = time.Hour
)

var (
	defaultHomeDir    = btcutil.AppDataDir("resolverd", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// ChainConfig holds the §6.2 options that are per-chain: RPC endpoint,
// submission key, and contract addresses.
type ChainConfig struct {
	RPCHost     string `long:"rpchost" description:"RPC endpoint for this chain's full node"`
	RPCUser     string `long:"rpcuser" description:"RPC username"`
	RPCPass     string `long:"rpcpass" description:"RPC password"`
	SubmitWIF   string `long:"submitkey" description:"WIF-encoded private key used to submit HTLC/anchor transactions on this chain"`
	HTLCAddress string `long:"htlcaddress" description:"legacy field, unused by the UTXO deployment's script-derived HTLC addressing"`
}

// Config is the full resolverd configuration, the union of the daemon
// ambient options (data dir, log dir, RPC listen address) and the §6.2
// service options.
type Config struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"The directory to store the bbolt database in"`
	LogDir     string `long:"logdir" description:"Directory to log output"`
	Debug      string `long:"debuglevel" description:"Logging level for all subsystems"`
	RPCListen  string `long:"rpclisten" description:"Address for the resolverctl control surface to listen on"`

	ChainA ChainConfig `group:"ChainA" namespace:"chainA"`
	ChainB ChainConfig `group:"ChainB" namespace:"chainB"`

	ConfirmationDepth  uint32        `long:"confirmation_depth" description:"Number of blocks beyond tip considered final (K)"`
	PollingInterval    time.Duration `long:"polling_interval" description:"Ingestor poll interval per chain"`
	MaxBlocksPerQuery  uint64        `long:"max_blocks_per_query" description:"Maximum blocks per QueryEvents window (W)"`
	OrderTimeoutBuffer time.Duration `long:"order_timeout_buffer" description:"Early give-up window before the source timelock"`
	MaxPendingOrders   int           `long:"max_pending_orders" description:"Capacity of the pending order table"`
	MinTimelock        time.Duration `long:"min_timelock" description:"Minimum timelock accepted on order creation"`
	MaxTimelock        time.Duration `long:"max_timelock" description:"Maximum timelock accepted on order creation"`
	DefaultTimelock    time.Duration `long:"default_timelock" description:"Timelock used when a caller doesn't specify one"`
	RetryAttempts      int           `long:"retry_attempts" description:"Submission retry attempts before SubmitExhausted"`
	RetryBaseDelay     time.Duration `long:"retry_base_delay" description:"Base delay for submission retry backoff"`

	MaxConcurrentSubmissions int           `long:"max_concurrent_submissions" description:"Bounded concurrent-submission counter per chain"`
	WorkerCount              int           `long:"worker_count" description:"Resolver action-submission worker pool size (0 = 2x CPU)"`
	RetentionHorizon         time.Duration `long:"retention_horizon" description:"How long a terminal order is kept before garbage collection"`
	RetentionSweepInterval   time.Duration `long:"retention_sweep_interval" description:"How often the retention sweep runs"`
}

// DefaultConfig returns a Config populated with every §6.2 default.
func DefaultConfig() Config {
	return Config{
		ConfigFile:         defaultConfigFile,
		DataDir:            defaultDataDir,
		LogDir:             defaultLogDir,
		Debug:              "info",
		RPCListen:          defaultRPCListen,
		ConfirmationDepth:  defaultConfirmationDepth,
		PollingInterval:    defaultPollingInterval,
		MaxBlocksPerQuery:  defaultMaxBlocksPerQuery,
		OrderTimeoutBuffer: defaultOrderTimeoutBuffer,
		MaxPendingOrders:   defaultMaxPendingOrders,
		MinTimelock:        defaultMinTimelock,
		MaxTimelock:        defaultMaxTimelock,
		DefaultTimelock:    defaultTimelock,
		RetryAttempts:      defaultRetryAttempts,
		RetryBaseDelay:     defaultRetryBaseDelay,

		MaxConcurrentSubmissions: defaultMaxConcurrentSubmissions,
		WorkerCount:              defaultWorkerCount,
		RetentionHorizon:         defaultRetentionHorizon,
		RetentionSweepInterval:   defaultRetentionSweepInterval,
	}
}

// LoadConfig parses command-line flags over DefaultConfig. No config file
// is read: the ConfigFile option is accepted but not opened.
func LoadConfig(args []string) (*Config, error) {
	cfg := DefaultConfig()

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("config: creating data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return nil, fmt.Errorf("config: creating log dir: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.MinTimelock >= c.MaxTimelock {
		return fmt.Errorf("config: min_timelock must be less than max_timelock")
	}
	if c.DefaultTimelock < c.MinTimelock || c.DefaultTimelock > c.MaxTimelock {
		return fmt.Errorf("config: default_timelock must fall within [min_timelock, max_timelock]")
	}
	if c.MaxPendingOrders <= 0 {
		return fmt.Errorf("config: max_pending_orders must be positive")
	}
	if c.ChainA.RPCHost == "" || c.ChainB.RPCHost == "" {
		return fmt.Errorf("config: both chainA.rpchost and chainB.rpchost are required")
	}
	if _, _, err := net.SplitHostPort(c.RPCListen); err != nil {
		return fmt.Errorf("config: invalid rpclisten address %q: %w", c.RPCListen, err)
	}
	return nil
}

// ChainConfigs returns the two chain configs keyed by the ChainID each is
// bound to; the Supervisor/cmd wiring picks this apart into adapter
// constructors.
func (c *Config) ChainConfigs() map[chainadapter.ChainID]ChainConfig {
	return map[chainadapter.ChainID]ChainConfig{
		"chainA": c.ChainA,
		"chainB": c.ChainB,
	}
}
