package multisig

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	coreerrors "vaultguard/core/errors"
	"vaultguard/core/types"
	"vaultguard/ledger"
	"vaultguard/reconcile"
)

var historyEvents = []string{
	ledger.EventTransactionProposed,
	ledger.EventTransactionApproved,
	ledger.EventApprovalRevoked,
	ledger.EventTransactionCancelled,
	ledger.EventTransactionExecuted,
}

// Config returns a fresh governance snapshot. It is never cached.
func (c *Coordinator) Config(ctx context.Context) (cfg *types.WalletConfig, err error) {
	const op = "config"
	ctx, finish := c.start(ctx, op)
	defer finish(&err)
	cfg, err = c.wallet.Config(ctx)
	if err != nil {
		return nil, unavailable(op, err, "wallet config")
	}
	return cfg, nil
}

// Operation returns the authoritative record of hash with the per-owner
// approval flags of the current owners.
func (c *Coordinator) Operation(ctx context.Context, hash common.Hash) (record *types.Operation, err error) {
	const op = "operation"
	ctx, finish := c.start(ctx, op, attribute.String("hash", hash.Hex()))
	defer finish(&err)
	record, err = c.wallet.Operation(ctx, hash)
	if err != nil {
		return nil, unavailable(op, err, "operation")
	}
	if !record.Exists() {
		return nil, coreerrors.New(coreerrors.KindNotFound, op, "operation %s not found", hash.Hex()).WithHash(hash)
	}
	owners, err := c.wallet.Owners(ctx)
	if err != nil {
		return nil, unavailable(op, err, "owners")
	}
	record.ApprovedBy, err = c.wallet.Approvers(ctx, hash, owners)
	if err != nil {
		return nil, unavailable(op, err, "approval flags")
	}
	return record, nil
}

// History returns the notices naming hash within the log window, oldest
// first.
func (c *Coordinator) History(ctx context.Context, hash common.Hash) (timeline []types.Event, err error) {
	const op = "history"
	ctx, finish := c.start(ctx, op, attribute.String("hash", hash.Hex()))
	defer finish(&err)
	timeline, err = c.reconciler.Timeline(ctx, c.wallet.Contract(), hash, historyEvents...)
	if err != nil {
		return nil, unavailable(op, err, "event log")
	}
	return timeline, nil
}

// PendingOperations lists operations the ledger reports as neither executed
// nor cancelled, newest proposal first.
func (c *Coordinator) PendingOperations(ctx context.Context) ([]*types.Operation, error) {
	return c.list(ctx, "pending_operations", ledger.EventTransactionProposed, func(o *types.Operation) bool {
		return o.IsPending()
	})
}

// ExecutableOperations lists pending operations whose approvals have reached
// the current threshold.
func (c *Coordinator) ExecutableOperations(ctx context.Context) ([]*types.Operation, error) {
	threshold, err := c.wallet.Threshold(ctx)
	if err != nil {
		return nil, unavailable("executable_operations", err, "threshold")
	}
	return c.list(ctx, "executable_operations", ledger.EventTransactionProposed, func(o *types.Operation) bool {
		return o.IsPending() && o.Approvals >= threshold
	})
}

// ExecutedOperations lists executed operations within the log window.
func (c *Coordinator) ExecutedOperations(ctx context.Context) ([]*types.Operation, error) {
	return c.list(ctx, "executed_operations", ledger.EventTransactionExecuted, func(o *types.Operation) bool {
		return o.Status() == types.OperationStatusExecuted
	})
}

// CancelledOperations lists operations still cancelled on the ledger. A hash
// re-proposed after cancellation is no longer listed.
func (c *Coordinator) CancelledOperations(ctx context.Context) ([]*types.Operation, error) {
	return c.list(ctx, "cancelled_operations", ledger.EventTransactionCancelled, func(o *types.Operation) bool {
		return o.Status() == types.OperationStatusCancelled
	})
}

func (c *Coordinator) list(ctx context.Context, op, event string, keep func(*types.Operation) bool) (out []*types.Operation, err error) {
	ctx, finish := c.start(ctx, op)
	defer finish(&err)
	hashes, err := c.reconciler.Candidates(ctx, c.wallet.Contract(), event)
	if err != nil {
		return nil, unavailable(op, err, "event log")
	}
	out, err = reconcile.Resolve(ctx, hashes, c.wallet.Operation, keep)
	if err != nil {
		return nil, unavailable(op, err, "operations")
	}
	return out, nil
}
