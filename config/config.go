package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"vaultguard/ledger"
	"vaultguard/reconcile"
)

// DefaultPassphraseEnv is consulted for the keystore passphrase before the
// operator is prompted.
const DefaultPassphraseEnv = "VAULT_KEYSTORE_PASSPHRASE"

// Config is the client configuration shared by vaultctl and monitord.
type Config struct {
	RPCURL                string `toml:"RPCURL"`
	ChainID               uint64 `toml:"ChainID"`
	WalletAddress         string `toml:"WalletAddress"`
	RecoveryModuleAddress string `toml:"RecoveryModuleAddress"`
	KeystorePath          string `toml:"KeystorePath"`
	PassphraseEnv         string `toml:"PassphraseEnv"`
	GasPresetsFile        string `toml:"GasPresetsFile"`

	Logs      Logs      `toml:"Logs"`
	Confirm   Confirm   `toml:"Confirm"`
	Log       Log       `toml:"Log"`
	Monitor   Monitor   `toml:"Monitor"`
	Telemetry Telemetry `toml:"Telemetry"`
}

// Logs sizes event log queries.
type Logs struct {
	Window           uint64  `toml:"Window"`
	FallbackWindow   uint64  `toml:"FallbackWindow"`
	QueriesPerSecond float64 `toml:"QueriesPerSecond"`
	Burst            int     `toml:"Burst"`
}

// Confirm bounds confirmation waits.
type Confirm struct {
	PollInterval Duration `toml:"PollInterval"`
	Timeout      Duration `toml:"Timeout"`
}

// Log controls process logging.
type Log struct {
	Env   string `toml:"Env"`
	File  string `toml:"File"`
	Level string `toml:"Level"`
}

// Monitor configures the monitor daemon.
type Monitor struct {
	Listen  string   `toml:"Listen"`
	Refresh Duration `toml:"Refresh"`
}

// Telemetry configures OTLP export. Empty Endpoint falls back to the
// OTEL_EXPORTER_OTLP_* environment.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// Duration decodes TOML strings such as "2s" or "3m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a configuration for a local development node.
func Default() *Config {
	cfg := &Config{
		RPCURL:  "http://127.0.0.1:8545",
		ChainID: 31337,
	}
	cfg.applyDefaults()
	return cfg
}

// Load decodes the TOML file at path, applies defaults and validates the
// result. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config file %s not found; run vaultctl config init", path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.PassphraseEnv) == "" {
		c.PassphraseEnv = DefaultPassphraseEnv
	}
	if c.Logs.Window == 0 {
		c.Logs.Window = reconcile.DefaultWindow
	}
	if c.Logs.FallbackWindow == 0 {
		c.Logs.FallbackWindow = reconcile.DefaultFallbackWindow
	}
	if c.Logs.Burst <= 0 {
		c.Logs.Burst = 1
	}
	if c.Confirm.PollInterval.Duration <= 0 {
		c.Confirm.PollInterval.Duration = ledger.DefaultPollInterval
	}
	if c.Confirm.Timeout.Duration <= 0 {
		c.Confirm.Timeout.Duration = ledger.DefaultConfirmationTimeout
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = "info"
	}
	if strings.TrimSpace(c.Monitor.Listen) == "" {
		c.Monitor.Listen = ":9470"
	}
	if c.Monitor.Refresh.Duration <= 0 {
		c.Monitor.Refresh.Duration = 30 * time.Second
	}
}

// Wallet returns the configured wallet address.
func (c *Config) Wallet() common.Address {
	return common.HexToAddress(c.WalletAddress)
}

// RecoveryModule returns the configured recovery module address, or the
// zero address when none is set.
func (c *Config) RecoveryModule() common.Address {
	if strings.TrimSpace(c.RecoveryModuleAddress) == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.RecoveryModuleAddress)
}

// Write persists cfg as TOML at path, creating parent directories.
func Write(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
