// ABOUTME: Configuration loading and parsing for healthledger
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Defaults applied when a value is not configured.
const (
	DefaultInitTimeout      = 10 * time.Second
	DefaultInstanceTimeout  = 10 * time.Second
	DefaultEncryptTimeout   = 30 * time.Second
	DefaultRefreshInterval  = 10 * time.Second
	DefaultFetchConcurrency = 4
	DefaultHTTPAddr         = "127.0.0.1:8484"
)

// ErrNoConfig is returned by Path when no config file can be located.
var ErrNoConfig = errors.New("no config file found")

// Config represents the complete healthledger configuration
type Config struct {
	Ledger     LedgerConfig     `yaml:"ledger" toml:"ledger"`
	Capability CapabilityConfig `yaml:"capability" toml:"capability"`
	Cache      CacheConfig      `yaml:"cache" toml:"cache"`
	API        APIConfig        `yaml:"api" toml:"api"`
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Tailscale  TailscaleConfig  `yaml:"tailscale" toml:"tailscale"`
	Notify     NotifyConfig     `yaml:"notify" toml:"notify"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
}

// LedgerConfig holds the study registry connection
type LedgerConfig struct {
	GRPCAddr        string `yaml:"grpc_addr" toml:"grpc_addr"`
	ContractAddress string `yaml:"contract_address" toml:"contract_address"`
	Account         string `yaml:"account" toml:"account"`
	AuthSecret      string `yaml:"auth_secret" toml:"auth_secret"`

	TokenTTL    time.Duration `yaml:"-" toml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl" toml:"token_ttl"`
}

// Contract returns the parsed contract address. Call after Validate.
func (l LedgerConfig) Contract() common.Address {
	return common.HexToAddress(l.ContractAddress)
}

// AccountAddress returns the parsed submitter address. Call after Validate.
func (l LedgerConfig) AccountAddress() common.Address {
	return common.HexToAddress(l.Account)
}

// NetworkConfig identifies the network the capability encrypts for
type NetworkConfig struct {
	ChainID   uint64 `yaml:"chain_id" toml:"chain_id"`
	PublicKey string `yaml:"public_key" toml:"public_key"` // hex-encoded network key
}

// CapabilityConfig holds encryption capability timing
type CapabilityConfig struct {
	Network NetworkConfig `yaml:"network" toml:"network"`

	InitTimeout     time.Duration `yaml:"-" toml:"-"`
	InstanceTimeout time.Duration `yaml:"-" toml:"-"`
	EncryptTimeout  time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	InitTimeoutRaw     string `yaml:"init_timeout" toml:"init_timeout"`
	InstanceTimeoutRaw string `yaml:"instance_timeout" toml:"instance_timeout"`
	EncryptTimeoutRaw  string `yaml:"encrypt_timeout" toml:"encrypt_timeout"`
}

// CacheConfig holds study cache refresh settings
type CacheConfig struct {
	RefreshInterval    time.Duration `yaml:"-" toml:"-"`
	RefreshIntervalRaw string        `yaml:"refresh_interval" toml:"refresh_interval"`
	FetchConcurrency   int           `yaml:"fetch_concurrency" toml:"fetch_concurrency"`
}

// APIConfig holds the local HTTP API address
type APIConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// NotifyConfig holds notification sinks
type NotifyConfig struct {
	Matrix MatrixConfig `yaml:"matrix" toml:"matrix"`
}

// MatrixConfig holds Matrix notification configuration
type MatrixConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	Homeserver  string `yaml:"homeserver" toml:"homeserver"`
	UserID      string `yaml:"user_id" toml:"user_id"`
	AccessToken string `yaml:"access_token" toml:"access_token"`
	RoomID      string `yaml:"room_id" toml:"room_id"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Path resolves the config file location: HEALTHLEDGER_CONFIG, then
// $XDG_CONFIG_HOME/healthledger/config.yaml, then ~/.config/healthledger/config.yaml.
func Path() (string, error) {
	if p := os.Getenv("HEALTHLEDGER_CONFIG"); p != "" {
		return p, nil
	}

	var candidates []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "healthledger", "config.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "healthledger", "config.yaml"))
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w (set HEALTHLEDGER_CONFIG or create %s)", ErrNoConfig, strings.Join(candidates, " or "))
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Capability.InitTimeout == 0 {
		c.Capability.InitTimeout = DefaultInitTimeout
	}
	if c.Capability.InstanceTimeout == 0 {
		c.Capability.InstanceTimeout = DefaultInstanceTimeout
	}
	if c.Capability.EncryptTimeout == 0 {
		c.Capability.EncryptTimeout = DefaultEncryptTimeout
	}
	if c.Cache.RefreshInterval == 0 {
		c.Cache.RefreshInterval = DefaultRefreshInterval
	}
	if c.Cache.FetchConcurrency == 0 {
		c.Cache.FetchConcurrency = DefaultFetchConcurrency
	}
	if c.API.HTTPAddr == "" {
		c.API.HTTPAddr = DefaultHTTPAddr
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Ledger.GRPCAddr == "" {
		return fmt.Errorf("ledger.grpc_addr is required")
	}
	if !common.IsHexAddress(c.Ledger.ContractAddress) {
		return fmt.Errorf("ledger.contract_address must be a 0x address, got %q", c.Ledger.ContractAddress)
	}
	if !common.IsHexAddress(c.Ledger.Account) {
		return fmt.Errorf("ledger.account must be a 0x address, got %q", c.Ledger.Account)
	}

	if c.Capability.Network.PublicKey == "" {
		return fmt.Errorf("capability.network.public_key is required")
	}
	if c.Capability.InitTimeout < 0 || c.Capability.InstanceTimeout < 0 || c.Capability.EncryptTimeout < 0 {
		return fmt.Errorf("capability timeouts must not be negative")
	}

	if c.Cache.RefreshInterval < 0 {
		return fmt.Errorf("cache.refresh_interval must not be negative")
	}
	if c.Cache.FetchConcurrency < 0 {
		return fmt.Errorf("cache.fetch_concurrency must not be negative")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Notify.Matrix.Enabled {
		m := c.Notify.Matrix
		if m.Homeserver == "" || m.UserID == "" || m.AccessToken == "" || m.RoomID == "" {
			return fmt.Errorf("notify.matrix requires homeserver, user_id, access_token and room_id when enabled")
		}
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"ledger.token_ttl", cfg.Ledger.TokenTTLRaw, &cfg.Ledger.TokenTTL},
		{"capability.init_timeout", cfg.Capability.InitTimeoutRaw, &cfg.Capability.InitTimeout},
		{"capability.instance_timeout", cfg.Capability.InstanceTimeoutRaw, &cfg.Capability.InstanceTimeout},
		{"capability.encrypt_timeout", cfg.Capability.EncryptTimeoutRaw, &cfg.Capability.EncryptTimeout},
		{"cache.refresh_interval", cfg.Cache.RefreshIntervalRaw, &cfg.Cache.RefreshInterval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
