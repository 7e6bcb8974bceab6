package ledger

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrEventNotFound is returned when none of the extraction strategies finds
// the expected notice in a confirmation record. It is not retryable: the
// submission was confirmed but cannot be correlated.
var ErrEventNotFound = errors.New("ledger: expected event not found in receipt")

// EventSpec describes the notice whose first indexed argument identifies the
// created item.
type EventSpec struct {
	Contract  common.Address
	ABI       *abi.ABI
	Name      string
	Field     string
	Signature string
}

// ExtractStrategy names the extraction path that produced a hash.
type ExtractStrategy string

const (
	StrategyDirect    ExtractStrategy = "direct"
	StrategyParsed    ExtractStrategy = "parsed"
	StrategySignature ExtractStrategy = "signature"
)

// ExtractHash recovers the identifier emitted by spec from receipt using, in
// order: a direct match on the contract's own log with the event topic, a
// generic parse of every log against the interface description, and a match
// on the keccak of the literal event signature.
func ExtractHash(receipt *gethtypes.Receipt, spec EventSpec) (common.Hash, ExtractStrategy, error) {
	if receipt == nil {
		return common.Hash{}, "", fmt.Errorf("%w: no receipt", ErrEventNotFound)
	}
	if hash, ok := extractDirect(receipt, spec); ok {
		return hash, StrategyDirect, nil
	}
	if hash, ok := extractParsed(receipt, spec); ok {
		return hash, StrategyParsed, nil
	}
	if hash, ok := extractBySignature(receipt, spec); ok {
		return hash, StrategySignature, nil
	}
	return common.Hash{}, "", fmt.Errorf("%w: %s in %s", ErrEventNotFound, spec.Name, receipt.TxHash.Hex())
}

func extractDirect(receipt *gethtypes.Receipt, spec EventSpec) (common.Hash, bool) {
	if spec.ABI == nil {
		return common.Hash{}, false
	}
	event, ok := spec.ABI.Events[spec.Name]
	if !ok {
		return common.Hash{}, false
	}
	for _, log := range receipt.Logs {
		if log == nil || log.Address != spec.Contract || len(log.Topics) < 2 {
			continue
		}
		if log.Topics[0] == event.ID {
			return log.Topics[1], true
		}
	}
	return common.Hash{}, false
}

func extractParsed(receipt *gethtypes.Receipt, spec EventSpec) (common.Hash, bool) {
	if spec.ABI == nil {
		return common.Hash{}, false
	}
	for _, log := range receipt.Logs {
		if log == nil || len(log.Topics) == 0 {
			continue
		}
		event, err := spec.ABI.EventByID(log.Topics[0])
		if err != nil || event.Name != spec.Name {
			continue
		}
		fields := make(map[string]any)
		if err := abi.ParseTopicsIntoMap(fields, indexedArgs(event.Inputs), log.Topics[1:]); err == nil {
			if hash, ok := asHash(fields[spec.Field]); ok {
				return hash, true
			}
		}
		if err := spec.ABI.UnpackIntoMap(fields, event.Name, log.Data); err == nil {
			if hash, ok := asHash(fields[spec.Field]); ok {
				return hash, true
			}
		}
	}
	return common.Hash{}, false
}

func extractBySignature(receipt *gethtypes.Receipt, spec EventSpec) (common.Hash, bool) {
	if spec.Signature == "" {
		return common.Hash{}, false
	}
	topic := gethcrypto.Keccak256Hash([]byte(spec.Signature))
	for _, log := range receipt.Logs {
		if log == nil || len(log.Topics) == 0 || log.Topics[0] != topic {
			continue
		}
		if len(log.Topics) >= 2 {
			return log.Topics[1], true
		}
		// Emitters that do not index the identifier place it in the first
		// data word.
		if len(log.Data) >= common.HashLength {
			return common.BytesToHash(log.Data[:common.HashLength]), true
		}
	}
	return common.Hash{}, false
}

// HasEvent reports whether receipt carries a notice named name from contract
// whose first indexed argument equals hash.
func HasEvent(receipt *gethtypes.Receipt, contract common.Address, contractABI *abi.ABI, name string, hash common.Hash) bool {
	if receipt == nil || contractABI == nil {
		return false
	}
	event, ok := contractABI.Events[name]
	if !ok {
		return false
	}
	for _, log := range receipt.Logs {
		if log == nil || log.Address != contract || len(log.Topics) < 2 {
			continue
		}
		if log.Topics[0] == event.ID && log.Topics[1] == hash {
			return true
		}
	}
	return false
}

func indexedArgs(args abi.Arguments) abi.Arguments {
	out := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			out = append(out, arg)
		}
	}
	return out
}

func asHash(v any) (common.Hash, bool) {
	switch h := v.(type) {
	case [32]byte:
		return common.Hash(h), true
	case common.Hash:
		return h, true
	default:
		return common.Hash{}, false
	}
}
