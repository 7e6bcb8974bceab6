package events

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Stage enumerates the steps of a multi-step submission flow.
type Stage string

const (
	StageValidating Stage = "validating"
	StageEstimating Stage = "estimating"
	// StageSubmitted carries the transaction hash. Once emitted the call is
	// in the ledger's hands regardless of what the caller does next.
	StageSubmitted Stage = "submitted"
	StageConfirmed Stage = "confirmed"
	StageVerified  Stage = "verified"
	StageFailed    Stage = "failed"
)

// Terminal reports whether no further progress follows this stage.
func (s Stage) Terminal() bool {
	return s == StageVerified || s == StageFailed
}

// Progress is a single step report for a coordinator flow.
type Progress struct {
	StreamID string         `json:"stream_id,omitempty"`
	Op       string         `json:"op"`
	Stage    Stage          `json:"stage"`
	TxHash   common.Hash    `json:"tx_hash,omitempty"`
	Hash     common.Hash    `json:"hash,omitempty"`
	GasLimit uint64         `json:"gas_limit,omitempty"`
	Message  string         `json:"message,omitempty"`
	At       time.Time      `json:"at"`
	Error    string         `json:"error,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// EventType implements Event.
func (p Progress) EventType() string { return "progress." + string(p.Stage) }

// Report emits a progress step through emitter when one is configured.
func Report(emitter Emitter, op string, stage Stage, mutate func(*Progress)) {
	if emitter == nil {
		return
	}
	p := Progress{Op: op, Stage: stage, At: time.Now().UTC()}
	if mutate != nil {
		mutate(&p)
	}
	emitter.Emit(p)
}
