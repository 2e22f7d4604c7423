package infra

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	uaMu             sync.RWMutex
	currentUserAgent = "drealestate/dev"
)

// GetUserAgent returns the User-Agent sent on outgoing connections. (Thread-safe)
func GetUserAgent() string {
	uaMu.RLock()
	defer uaMu.RUnlock()
	return currentUserAgent
}

// SetUserAgent replaces the User-Agent, normally with name/version from config.
func SetUserAgent(ua string) {
	uaMu.Lock()
	defer uaMu.Unlock()
	currentUserAgent = ua
}

// Config holds every setting of both binaries.
// LoadConfig overrides secrets and endpoints from the environment afterwards.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Chain struct {
		ProviderURL       string  `yaml:"provider_url"` // injected provider, tried first
		DevURL            string  `yaml:"dev_url"`      // local development chain
		WSURL             string  `yaml:"ws_url"`       // event endpoint; derived from the active endpoint if empty
		ContractAddress   string  `yaml:"contract_address"`
		GasLimit          uint64  `yaml:"gas_limit"`
		RequestTimeoutSec int     `yaml:"request_timeout_sec"`
		ReceiptTimeoutSec int     `yaml:"receipt_timeout_sec"`
		TxPerSecond       float64 `yaml:"tx_per_second"`
		TxBurst           int     `yaml:"tx_burst"`
	} `yaml:"chain"`

	DevChain struct {
		Listen        string `yaml:"listen"`
		ChainID       uint64 `yaml:"chain_id"`
		Accounts      int    `yaml:"accounts"`
		BalanceEth    string `yaml:"balance_eth"`
		Seed          string `yaml:"seed"`
		GasPriceWei   string `yaml:"gas_price_wei"`
		DataDir       string `yaml:"data_dir"` // empty: workspace data dir
		SnapshotEvery uint64 `yaml:"snapshot_every"`
	} `yaml:"devchain"`

	API struct {
		Listen      string `yaml:"listen"`
		JWTSecret   string `yaml:"jwt_secret"`
		TokenTTLMin int    `yaml:"token_ttl_min"`
	} `yaml:"api"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text | json
	} `yaml:"logging"`
}

// LoadConfig reads .env (if present) and the YAML file, fills defaults,
// applies environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig is LoadConfig without the file system.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	SetUserAgent(cfg.App.Name + "/" + cfg.App.Version)
	return &cfg, nil
}

func applyDefaults(c *Config) {
	if c.App.Name == "" {
		c.App.Name = AppName
	}
	if c.App.Version == "" {
		c.App.Version = "dev"
	}
	if c.Chain.DevURL == "" {
		c.Chain.DevURL = "http://127.0.0.1:7545"
	}
	if c.Chain.GasLimit == 0 {
		c.Chain.GasLimit = 3_000_000
	}
	if c.Chain.RequestTimeoutSec <= 0 {
		c.Chain.RequestTimeoutSec = 10
	}
	if c.Chain.ReceiptTimeoutSec <= 0 {
		c.Chain.ReceiptTimeoutSec = 60
	}
	if c.Chain.TxBurst <= 0 {
		c.Chain.TxBurst = 5
	}
	if c.DevChain.Listen == "" {
		c.DevChain.Listen = "127.0.0.1:7545"
	}
	if c.DevChain.ChainID == 0 {
		c.DevChain.ChainID = 1337
	}
	if c.DevChain.Accounts <= 0 {
		c.DevChain.Accounts = 10
	}
	if c.DevChain.BalanceEth == "" {
		c.DevChain.BalanceEth = "100"
	}
	if c.DevChain.Seed == "" {
		c.DevChain.Seed = AppName
	}
	if c.DevChain.GasPriceWei == "" {
		c.DevChain.GasPriceWei = "0"
	}
	if c.API.Listen == "" {
		c.API.Listen = "127.0.0.1:8080"
	}
	if c.API.TokenTTLMin <= 0 {
		c.API.TokenTTLMin = 60
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if !hasAnyPrefix(c.Chain.DevURL, "http://", "https://", "ws://", "wss://") {
		return fmt.Errorf("invalid dev URL: %s", c.Chain.DevURL)
	}
	if c.Chain.ProviderURL != "" && !hasAnyPrefix(c.Chain.ProviderURL, "http://", "https://", "ws://", "wss://") {
		return fmt.Errorf("invalid provider URL: %s", c.Chain.ProviderURL)
	}
	if c.Chain.WSURL != "" && !hasAnyPrefix(c.Chain.WSURL, "ws://", "wss://") {
		return fmt.Errorf("invalid WS URL: %s", c.Chain.WSURL)
	}
	if !common.IsHexAddress(c.Chain.ContractAddress) {
		return fmt.Errorf("invalid contract address: %q", c.Chain.ContractAddress)
	}
	if c.Chain.TxPerSecond < 0 {
		return fmt.Errorf("tx_per_second must not be negative")
	}
	if c.DevChain.Accounts > 100 {
		return fmt.Errorf("devchain accounts must be at most 100, got %d", c.DevChain.Accounts)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// ValidateAPI checks the settings only the HTTP gateway needs.
func (c *Config) ValidateAPI() error {
	if c.API.JWTSecret == "" {
		return fmt.Errorf("api.jwt_secret is required (set DREALESTATE_JWT_SECRET)")
	}
	return nil
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// overrideWithEnv lets the environment win over the config file.
func overrideWithEnv(cfg *Config) {
	if cfg.API.JWTSecret != "" && os.Getenv("DREALESTATE_JWT_SECRET") == "" {
		slog.Warn("⚠️  SECURITY WARNING: jwt_secret found in config file, prefer DREALESTATE_JWT_SECRET")
	}

	if v := os.Getenv("DREALESTATE_JWT_SECRET"); v != "" {
		cfg.API.JWTSecret = v
	}
	if v := os.Getenv("DREALESTATE_PROVIDER_URL"); v != "" {
		cfg.Chain.ProviderURL = v
	}
	if v := os.Getenv("DREALESTATE_DEV_URL"); v != "" {
		cfg.Chain.DevURL = v
	}
	if v := os.Getenv("DREALESTATE_CONTRACT_ADDRESS"); v != "" {
		cfg.Chain.ContractAddress = v
	}
}
