package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	coreerrors "vaultguard/core/errors"
	"vaultguard/core/types"
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func printJSON(stdout io.Writer, payload any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return 1
	}
	return 0
}

func printUsageError(stderr io.Writer, msg string) int {
	fmt.Fprintf(stderr, "Error: %s\n", msg)
	return 1
}

// printError renders err and returns the exit status. Tagged failures add
// the kind and any identifiers the operator needs to follow up.
func printError(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	tagged, ok := coreerrors.As(err)
	if !ok {
		return 1
	}
	fmt.Fprintf(stderr, "  kind: %s\n", tagged.Kind)
	if tagged.Hash != (common.Hash{}) {
		fmt.Fprintf(stderr, "  hash: %s\n", tagged.Hash.Hex())
	}
	if tagged.TxHash != (common.Hash{}) {
		fmt.Fprintf(stderr, "  tx: %s\n", tagged.TxHash.Hex())
	}
	if tagged.Approvals > 0 {
		fmt.Fprintf(stderr, "  approvals: %d\n", tagged.Approvals)
	}
	if tagged.Kind.Retryable() {
		return 3
	}
	return 2
}

func parseAddress(flagName, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return common.Address{}, fmt.Errorf("%s is required", flagName)
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s must be a 0x-prefixed address", flagName)
	}
	return common.HexToAddress(raw), nil
}

func parseAddressList(flagName, raw string) ([]common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%s is required", flagName)
	}
	parts := strings.Split(raw, ",")
	out := make([]common.Address, 0, len(parts))
	for _, part := range parts {
		addr, err := parseAddress(flagName, part)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func parseHash(raw string) (common.Hash, error) {
	raw = strings.TrimSpace(raw)
	decoded, err := hexutil.Decode(raw)
	if err != nil || len(decoded) != common.HashLength {
		return common.Hash{}, fmt.Errorf("hash must be 0x followed by 64 hex digits")
	}
	return common.BytesToHash(decoded), nil
}

// singleHash parses the one positional hash argument of a command.
func singleHash(fs *flag.FlagSet, args []string) (common.Hash, error) {
	if err := fs.Parse(args); err != nil {
		return common.Hash{}, err
	}
	if fs.NArg() != 1 {
		return common.Hash{}, errors.New("exactly one operation hash is required")
	}
	return parseHash(fs.Arg(0))
}

func parseValue(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return new(big.Int), nil
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("--value must be a non-negative integer amount in wei")
	}
	return value, nil
}

func parseData(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "0x" {
		return []byte{}, nil
	}
	data, err := hexutil.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("--data must be 0x-prefixed hex: %w", err)
	}
	return data, nil
}

func parseUint(flagName, raw string) (uint64, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || value == 0 {
		return 0, fmt.Errorf("%s must be a positive integer", flagName)
	}
	return value, nil
}

type operationView struct {
	Hash       common.Hash             `json:"hash"`
	Status     string                  `json:"status"`
	To         common.Address          `json:"to"`
	Value      string                  `json:"value"`
	Data       hexutil.Bytes           `json:"data"`
	Proposer   common.Address          `json:"proposer"`
	Approvals  uint64                  `json:"approvals"`
	CreatedAt  string                  `json:"created_at"`
	ApprovedBy map[common.Address]bool `json:"approved_by,omitempty"`
}

func viewOperation(op *types.Operation) operationView {
	value := "0"
	if op.Value != nil {
		value = op.Value.String()
	}
	return operationView{
		Hash:       op.Hash,
		Status:     op.Status().String(),
		To:         op.To,
		Value:      value,
		Data:       op.Data,
		Proposer:   op.Proposer,
		Approvals:  op.Approvals,
		CreatedAt:  op.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		ApprovedBy: op.ApprovedBy,
	}
}

func viewOperations(ops []*types.Operation) []operationView {
	out := make([]operationView, 0, len(ops))
	for _, op := range ops {
		out = append(out, viewOperation(op))
	}
	return out
}
