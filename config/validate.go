package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Validate checks the configuration after defaults have been applied.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCURL) == "" {
		return fmt.Errorf("RPCURL is required")
	}
	if _, err := url.Parse(c.RPCURL); err != nil {
		return fmt.Errorf("RPCURL: %w", err)
	}
	if c.ChainID == 0 {
		return fmt.Errorf("ChainID is required")
	}
	if !common.IsHexAddress(c.WalletAddress) {
		return fmt.Errorf("WalletAddress %q is not a hex address", c.WalletAddress)
	}
	if c.Wallet() == (common.Address{}) {
		return fmt.Errorf("WalletAddress must not be the zero address")
	}
	if raw := strings.TrimSpace(c.RecoveryModuleAddress); raw != "" {
		if !common.IsHexAddress(raw) {
			return fmt.Errorf("RecoveryModuleAddress %q is not a hex address", raw)
		}
		if c.RecoveryModule() == c.Wallet() {
			return fmt.Errorf("RecoveryModuleAddress must differ from WalletAddress")
		}
	}
	if c.Logs.FallbackWindow > c.Logs.Window {
		return fmt.Errorf("Logs.FallbackWindow %d exceeds Logs.Window %d", c.Logs.FallbackWindow, c.Logs.Window)
	}
	if c.Logs.QueriesPerSecond < 0 {
		return fmt.Errorf("Logs.QueriesPerSecond must not be negative")
	}
	if c.Confirm.PollInterval.Duration > c.Confirm.Timeout.Duration {
		return fmt.Errorf("Confirm.PollInterval %s exceeds Confirm.Timeout %s", c.Confirm.PollInterval, c.Confirm.Timeout)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("Telemetry.SampleRatio must be within [0, 1]")
	}
	return nil
}
