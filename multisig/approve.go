package multisig

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	coreerrors "vaultguard/core/errors"
	"vaultguard/core/types"
	"vaultguard/gas"
	"vaultguard/ledger"
	"vaultguard/submit"
)

type opSnapshot struct {
	record    *types.Operation
	threshold uint64
}

// ApprovalResult describes a confirmed approval or revocation.
type ApprovalResult struct {
	Hash      common.Hash
	TxHash    common.Hash
	Approvals uint64
	Threshold uint64
}

// Executable reports whether the approval count has reached the threshold.
func (r *ApprovalResult) Executable() bool {
	return r != nil && r.Threshold > 0 && r.Approvals >= r.Threshold
}

// Approve records the caller's approval of hash.
func (c *Coordinator) Approve(ctx context.Context, hash common.Hash) (res *ApprovalResult, err error) {
	const op = "approve"
	ctx, finish := c.start(ctx, op, attribute.String("hash", hash.Hex()))
	defer finish(&err)

	if err := c.requireOwner(ctx, op); err != nil {
		return nil, err
	}
	snap, err := c.liveOperation(ctx, op, hash)
	if err != nil {
		return nil, err
	}
	caller := c.wallet.Caller()
	approved, err := c.wallet.IsApproved(ctx, hash, caller)
	if err != nil {
		return nil, unavailable(op, err, "approval flag")
	}
	if approved {
		return nil, &coreerrors.Error{
			Kind:      coreerrors.KindAlreadyApproved,
			Op:        op,
			Message:   "caller " + caller.Hex() + " already approved",
			Hash:      hash,
			Approvals: snap.record.Approvals,
		}
	}
	gasLimit := c.gas.Estimate(ctx, c.wallet.Contract(), gas.PresetSimple, ledger.MethodApprove, hash)
	result, err := c.submitter.Send(ctx, submit.Request{
		Op:       op,
		Contract: c.wallet.Contract(),
		Method:   ledger.MethodApprove,
		Args:     []any{hash},
		GasLimit: gasLimit,
		Hash:     hash,
		Emitter:  c.emitter,
	})
	if err != nil {
		return nil, err
	}
	if result.Reverted {
		return nil, result.Err(op, hash)
	}
	approved, err = c.wallet.IsApproved(ctx, hash, caller)
	if err != nil {
		return nil, unavailable(op, err, "approval flag")
	}
	if !approved {
		return nil, (&coreerrors.Error{
			Kind:    coreerrors.KindSubmissionReverted,
			Op:      op,
			Message: "receipt reported success but the approval is not recorded",
			Hash:    hash,
		}).WithReceipt(result.Receipt)
	}
	record, err := c.wallet.Operation(ctx, hash)
	if err != nil {
		return nil, unavailable(op, err, "operation")
	}
	c.logger.Info("operation approved",
		slog.String("hash", hash.Hex()),
		slog.String("tx", result.TxHash.Hex()),
		slog.Uint64("approvals", record.Approvals),
		slog.Uint64("threshold", snap.threshold))
	return &ApprovalResult{Hash: hash, TxHash: result.TxHash, Approvals: record.Approvals, Threshold: snap.threshold}, nil
}

// Revoke withdraws the caller's approval of hash. The flag is re-read after
// confirmation and the call fails if it did not clear.
func (c *Coordinator) Revoke(ctx context.Context, hash common.Hash) (res *ApprovalResult, err error) {
	const op = "revoke"
	ctx, finish := c.start(ctx, op, attribute.String("hash", hash.Hex()))
	defer finish(&err)

	if err := c.requireOwner(ctx, op); err != nil {
		return nil, err
	}
	snap, err := c.liveOperation(ctx, op, hash)
	if err != nil {
		return nil, err
	}
	caller := c.wallet.Caller()
	approved, err := c.wallet.IsApproved(ctx, hash, caller)
	if err != nil {
		return nil, unavailable(op, err, "approval flag")
	}
	if !approved {
		return nil, coreerrors.New(coreerrors.KindNotApproved, op, "caller %s has not approved", caller.Hex()).WithHash(hash)
	}
	gasLimit := c.gas.Estimate(ctx, c.wallet.Contract(), gas.PresetSimple, ledger.MethodRevoke, hash)
	result, err := c.submitter.Send(ctx, submit.Request{
		Op:       op,
		Contract: c.wallet.Contract(),
		Method:   ledger.MethodRevoke,
		Args:     []any{hash},
		GasLimit: gasLimit,
		Hash:     hash,
		Emitter:  c.emitter,
	})
	if err != nil {
		return nil, err
	}
	if result.Reverted {
		return nil, result.Err(op, hash)
	}
	approved, err = c.wallet.IsApproved(ctx, hash, caller)
	if err != nil {
		return nil, unavailable(op, err, "approval flag")
	}
	if approved {
		return nil, (&coreerrors.Error{
			Kind:    coreerrors.KindSubmissionReverted,
			Op:      op,
			Message: "receipt reported success but the approval flag is still set",
			Hash:    hash,
		}).WithReceipt(result.Receipt)
	}
	record, err := c.wallet.Operation(ctx, hash)
	if err != nil {
		return nil, unavailable(op, err, "operation")
	}
	c.logger.Info("approval revoked",
		slog.String("hash", hash.Hex()),
		slog.String("tx", result.TxHash.Hex()),
		slog.Uint64("approvals", record.Approvals))
	return &ApprovalResult{Hash: hash, TxHash: result.TxHash, Approvals: record.Approvals, Threshold: snap.threshold}, nil
}
