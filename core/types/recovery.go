package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Recovery is a snapshot of a guardian recovery request. An ExecutionTime of
// zero means the request does not exist or was cancelled; approvals recorded
// against such a hash are void.
type Recovery struct {
	Hash          common.Hash      `json:"hash"`
	Wallet        common.Address   `json:"wallet"`
	NewOwners     []common.Address `json:"new_owners"`
	NewThreshold  uint64           `json:"new_threshold"`
	ApprovalCount uint64           `json:"approval_count"`
	ExecutionTime time.Time        `json:"execution_time"`
	Executed      bool             `json:"executed"`
}

// Live reports whether the request still exists and has not been executed.
func (r *Recovery) Live() bool {
	return r != nil && !r.ExecutionTime.IsZero() && !r.Executed
}

// Exists reports whether the ledger still tracks the request.
func (r *Recovery) Exists() bool {
	return r != nil && !r.ExecutionTime.IsZero()
}

// Unlocked reports whether the time-lock has elapsed at now.
func (r *Recovery) Unlocked(now time.Time) bool {
	return r.Exists() && !now.Before(r.ExecutionTime)
}

// RecoveryConfig is the guardian configuration registered for a wallet.
type RecoveryConfig struct {
	Guardians []common.Address `json:"guardians"`
	Threshold uint64           `json:"threshold"`
	Period    time.Duration    `json:"period"`
}

// Configured reports whether any guardian has been registered.
func (c *RecoveryConfig) Configured() bool {
	return c != nil && len(c.Guardians) > 0 && c.Threshold > 0
}
