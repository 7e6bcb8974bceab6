package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const walletHex = "0x000000000000000000000000000000000000a11e"

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
RPCURL = "http://127.0.0.1:8545"
ChainID = 1
WalletAddress = "`+walletHex+`"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, DefaultPassphraseEnv, cfg.PassphraseEnv)
	require.Equal(t, uint64(5000), cfg.Logs.Window)
	require.Equal(t, uint64(2000), cfg.Logs.FallbackWindow)
	require.Equal(t, 2*time.Second, cfg.Confirm.PollInterval.Duration)
	require.Equal(t, 3*time.Minute, cfg.Confirm.Timeout.Duration)
	require.Equal(t, ":9470", cfg.Monitor.Listen)
	require.Equal(t, 30*time.Second, cfg.Monitor.Refresh.Duration)
	require.Equal(t, "info", cfg.Log.Level)
	require.True(t, strings.EqualFold(walletHex, cfg.Wallet().Hex()))
}

func TestLoadParsesSections(t *testing.T) {
	path := writeConfig(t, `
RPCURL = "http://node:8545"
ChainID = 5
WalletAddress = "`+walletHex+`"
RecoveryModuleAddress = "0x000000000000000000000000000000000000beef"

[Logs]
Window = 1000
FallbackWindow = 100
QueriesPerSecond = 4.5
Burst = 3

[Confirm]
PollInterval = "500ms"
Timeout = "45s"

[Monitor]
Listen = "127.0.0.1:9000"
Refresh = "10s"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, uint64(1000), cfg.Logs.Window)
	require.Equal(t, uint64(100), cfg.Logs.FallbackWindow)
	require.Equal(t, 4.5, cfg.Logs.QueriesPerSecond)
	require.Equal(t, 3, cfg.Logs.Burst)
	require.Equal(t, 500*time.Millisecond, cfg.Confirm.PollInterval.Duration)
	require.Equal(t, 45*time.Second, cfg.Confirm.Timeout.Duration)
	require.Equal(t, "127.0.0.1:9000", cfg.Monitor.Listen)
	require.Equal(t, 10*time.Second, cfg.Monitor.Refresh.Duration)
	require.True(t, strings.EqualFold("0x000000000000000000000000000000000000beef", cfg.RecoveryModule().Hex()))
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
RPCURL = "http://127.0.0.1:8545"
ChainID = 1
WalletAddress = "`+walletHex+`"
Threshold = 2
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "unknown keys: Threshold")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorContains(t, err, "not found")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "missing rpc", mutate: func(c *Config) { c.RPCURL = "" }, want: "RPCURL"},
		{name: "missing chain", mutate: func(c *Config) { c.ChainID = 0 }, want: "ChainID"},
		{name: "bad wallet", mutate: func(c *Config) { c.WalletAddress = "nope" }, want: "WalletAddress"},
		{name: "zero wallet", mutate: func(c *Config) { c.WalletAddress = "0x0000000000000000000000000000000000000000" }, want: "zero address"},
		{name: "module equals wallet", mutate: func(c *Config) { c.RecoveryModuleAddress = walletHex }, want: "must differ"},
		{name: "fallback too wide", mutate: func(c *Config) { c.Logs.FallbackWindow = c.Logs.Window + 1 }, want: "FallbackWindow"},
		{name: "poll exceeds timeout", mutate: func(c *Config) { c.Confirm.PollInterval.Duration = time.Hour }, want: "PollInterval"},
		{name: "sample ratio", mutate: func(c *Config) { c.Telemetry.SampleRatio = 2 }, want: "SampleRatio"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.WalletAddress = walletHex
			require.NoError(t, cfg.Validate())
			tc.mutate(cfg)
			require.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.WalletAddress = walletHex
	cfg.Confirm.Timeout.Duration = time.Minute
	path := filepath.Join(t.TempDir(), "nested", "vault.toml")

	require.NoError(t, Write(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}
