package types

import "github.com/ethereum/go-ethereum/common"

// WalletConfig is a read-only snapshot of the wallet governance parameters.
// Snapshots are fetched fresh before each validation step and must not be
// reused across operations.
type WalletConfig struct {
	Address   common.Address   `json:"address"`
	Owners    []common.Address `json:"owners"`
	Threshold uint64           `json:"threshold"`
	Modules   []common.Address `json:"modules"`
}

// IsOwner reports whether addr is in the owner set.
func (c *WalletConfig) IsOwner(addr common.Address) bool {
	if c == nil {
		return false
	}
	for _, owner := range c.Owners {
		if owner == addr {
			return true
		}
	}
	return false
}

// ModuleEnabled reports whether module is listed as enabled.
func (c *WalletConfig) ModuleEnabled(module common.Address) bool {
	if c == nil {
		return false
	}
	for _, m := range c.Modules {
		if m == module {
			return true
		}
	}
	return false
}
