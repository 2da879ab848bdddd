package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"bridge/relayer/internal/errs"
	"bridge/relayer/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "BRIDGE"

type ChainConfig struct {
	RPCURL        string        `mapstructure:"rpc_url"`
	InitialWindow uint64        `mapstructure:"initial_window"`
	ScanChunk     uint64        `mapstructure:"scan_chunk"`
	GasLimit      uint64        `mapstructure:"gas_limit"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
}

type KeystoreConfig struct {
	Dir        string `mapstructure:"dir"`
	Address    string `mapstructure:"address"`
	Passphrase string `mapstructure:"passphrase"`
}

type LedgerConfig struct {
	// Backend is "bolt" or "postgres".
	Backend     string `mapstructure:"backend"`
	DataDir     string `mapstructure:"data_dir"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

type RPCConfig struct {
	Attempts       uint          `mapstructure:"attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	ReceiptTimeout time.Duration `mapstructure:"receipt_timeout"`
	ReceiptPoll    time.Duration `mapstructure:"receipt_poll"`
}

type APIConfig struct {
	Listen string `mapstructure:"listen"`
}

type PinningConfig struct {
	APIURL     string `mapstructure:"api_url"`
	GatewayURL string `mapstructure:"gateway_url"`
	JWT        string `mapstructure:"jwt"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Source       ChainConfig    `mapstructure:"source"`
	Destination  ChainConfig    `mapstructure:"destination"`
	ContractInfo string         `mapstructure:"contract_info"`
	KeyFiles     []string       `mapstructure:"key_files"`
	Keystore     KeystoreConfig `mapstructure:"keystore"`
	Ledger       LedgerConfig   `mapstructure:"ledger"`
	RPC          RPCConfig      `mapstructure:"rpc"`
	MaxReverts   int            `mapstructure:"max_reverts"`
	API          APIConfig      `mapstructure:"api"`
	Pinning      PinningConfig  `mapstructure:"pinning"`
	Log          LogConfig      `mapstructure:"log"`
}

func (c *Config) Chain(role models.Role) ChainConfig {
	if role == models.Source {
		return c.Source
	}
	return c.Destination
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.rpc_url", "https://api.avax-test.network/ext/bc/C/rpc")
	v.SetDefault("source.initial_window", 5)
	v.SetDefault("source.scan_chunk", 2048)
	v.SetDefault("source.gas_limit", 200000)
	v.SetDefault("source.poll_interval", "5s")

	v.SetDefault("destination.rpc_url", "https://data-seed-prebsc-1-s1.binance.org:8545/")
	v.SetDefault("destination.initial_window", 10)
	v.SetDefault("destination.scan_chunk", 2048)
	v.SetDefault("destination.gas_limit", 200000)
	v.SetDefault("destination.poll_interval", "5s")

	v.SetDefault("contract_info", "contract_info.json")
	v.SetDefault("key_files", []string{})
	v.SetDefault("keystore.dir", "")
	v.SetDefault("keystore.address", "")
	v.SetDefault("keystore.passphrase", "")

	v.SetDefault("ledger.backend", "bolt")
	v.SetDefault("ledger.data_dir", "data")
	v.SetDefault("ledger.postgres_dsn", "")

	v.SetDefault("rpc.attempts", 3)
	v.SetDefault("rpc.retry_delay", "400ms")
	v.SetDefault("rpc.receipt_timeout", "60s")
	v.SetDefault("rpc.receipt_poll", "2s")

	v.SetDefault("max_reverts", 3)
	v.SetDefault("api.listen", ":8000")

	v.SetDefault("pinning.api_url", "https://api.pinata.cloud")
	v.SetDefault("pinning.gateway_url", "https://gateway.pinata.cloud")
	v.SetDefault("pinning.jwt", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// LoadEnv loads .env style files into the process environment. Missing files
// are skipped.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return errs.Configuration(err, "load env file %s", f)
		}
	}
	return nil
}

// Load reads the config file at path (or relayer.{yaml,json} in the working
// directory when path is empty) and applies BRIDGE_ prefixed environment
// overrides, e.g. BRIDGE_SOURCE_RPC_URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errs.Configuration(err, "read config %s", path)
		}
	} else {
		v.SetConfigName("relayer")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errs.Configuration(err, "read config")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.Configuration(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	for _, role := range models.Roles {
		cc := c.Chain(role)
		if cc.RPCURL == "" {
			return errs.Configuration(nil, "%s.rpc_url is required", role)
		}
		if cc.GasLimit == 0 {
			return errs.Configuration(nil, "%s.gas_limit must be positive", role)
		}
		if cc.ScanChunk == 0 {
			return errs.Configuration(nil, "%s.scan_chunk must be positive", role)
		}
		if cc.PollInterval <= 0 {
			return errs.Configuration(nil, "%s.poll_interval must be positive", role)
		}
	}
	switch c.Ledger.Backend {
	case "bolt":
		if c.Ledger.DataDir == "" {
			return errs.Configuration(nil, "ledger.data_dir is required")
		}
	case "postgres":
		if c.Ledger.PostgresDSN == "" {
			return errs.Configuration(nil, "ledger.postgres_dsn is required for the postgres backend")
		}
	default:
		return errs.Configuration(nil, "unknown ledger.backend %q", c.Ledger.Backend)
	}
	if c.MaxReverts <= 0 {
		return errs.Configuration(nil, "max_reverts must be positive")
	}
	if c.RPC.ReceiptTimeout <= 0 {
		return errs.Configuration(nil, "rpc.receipt_timeout must be positive")
	}
	return nil
}

func (c *Config) CursorDBPath() string {
	return filepath.Join(c.Ledger.DataDir, "cursors.db")
}

func (c *Config) EventDBPath() string {
	return filepath.Join(c.Ledger.DataDir, "events.db")
}
