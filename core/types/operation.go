package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OperationStatus classifies a pending operation snapshot.
type OperationStatus uint8

const (
	// OperationStatusUnknown marks a hash the ledger has no record of.
	OperationStatusUnknown OperationStatus = iota
	// OperationStatusPending is proposed, not executed and not cancelled.
	OperationStatusPending
	// OperationStatusExecuted is terminal.
	OperationStatusExecuted
	// OperationStatusCancelled is terminal unless the hash is re-proposed.
	OperationStatusCancelled
)

// String implements fmt.Stringer for logging and JSON rendering.
func (s OperationStatus) String() string {
	switch s {
	case OperationStatusPending:
		return "pending"
	case OperationStatusExecuted:
		return "executed"
	case OperationStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Operation is a client-side snapshot of a multisig operation as reported by
// the ledger. It is rebuilt on every query and never persisted.
type Operation struct {
	Hash      common.Hash    `json:"hash"`
	To        common.Address `json:"to"`
	Value     *big.Int       `json:"value"`
	Data      []byte         `json:"data"`
	Proposer  common.Address `json:"proposer"`
	Approvals uint64         `json:"approvals"`
	CreatedAt time.Time      `json:"created_at"`
	Executed  bool           `json:"executed"`
	Cancelled bool           `json:"cancelled"`
	// ApprovedBy holds the owners known to have approved. It is only
	// populated by callers that query per-owner flags.
	ApprovedBy map[common.Address]bool `json:"approved_by,omitempty"`
}

// Exists reports whether the ledger holds a record at the hash. The ledger
// never stores a zero proposer for a real proposal.
func (o *Operation) Exists() bool {
	return o != nil && o.Proposer != (common.Address{})
}

// Status derives the lifecycle status from the snapshot flags.
func (o *Operation) Status() OperationStatus {
	switch {
	case !o.Exists():
		return OperationStatusUnknown
	case o.Executed:
		return OperationStatusExecuted
	case o.Cancelled:
		return OperationStatusCancelled
	default:
		return OperationStatusPending
	}
}

// IsPending reports whether the operation can still gather approvals.
func (o *Operation) IsPending() bool { return o.Status() == OperationStatusPending }

// SelfCall reports whether the operation targets the wallet itself.
func (o *Operation) SelfCall(wallet common.Address) bool {
	return o != nil && o.To == wallet
}
