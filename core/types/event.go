package types

import "github.com/ethereum/go-ethereum/common"

// Event is a decoded ledger notice used to build order-resolved timelines.
// Events are hints; the authoritative state is always re-read.
type Event struct {
	Type        string            `json:"type"`
	Hash        common.Hash       `json:"hash"`
	TxHash      common.Hash       `json:"tx_hash"`
	BlockNumber uint64            `json:"block_number"`
	LogIndex    uint              `json:"log_index"`
	Attributes  map[string]string `json:"attributes"`
}

// Before orders events by block then log index.
func (e Event) Before(other Event) bool {
	if e.BlockNumber != other.BlockNumber {
		return e.BlockNumber < other.BlockNumber
	}
	return e.LogIndex < other.LogIndex
}
