package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

const (
	// DefaultPollInterval is the receipt polling cadence.
	DefaultPollInterval = 2 * time.Second
	// DefaultConfirmationTimeout is the ceiling on a single confirmation wait.
	DefaultConfirmationTimeout = 3 * time.Minute
)

// ErrConfirmationTimeout is returned when no receipt arrived before the
// ceiling. The submission may still be included later.
var ErrConfirmationTimeout = errors.New("ledger: confirmation wait exceeded ceiling")

// ReceiptSource is the subset of the RPC needed to await confirmations.
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// WaitMined polls for the receipt of txHash until it is available, timeout
// elapses, or ctx is cancelled.
func WaitMined(ctx context.Context, source ReceiptSource, txHash common.Hash, poll, timeout time.Duration) (*gethtypes.Receipt, error) {
	if source == nil {
		return nil, fmt.Errorf("ledger: receipt source not configured")
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultConfirmationTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		receipt, err := source.TransactionReceipt(waitCtx, txHash)
		switch {
		case err == nil && receipt != nil:
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil:
			return nil, fmt.Errorf("ledger: fetch receipt %s: %w", txHash.Hex(), err)
		}
		select {
		case <-waitCtx.Done():
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("ledger: abandoned wait for %s: %w", txHash.Hex(), ctxErr)
			}
			return nil, fmt.Errorf("%w: %s after %s", ErrConfirmationTimeout, txHash.Hex(), timeout)
		case <-ticker.C:
		}
	}
}
