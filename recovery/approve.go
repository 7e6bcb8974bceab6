package recovery

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	coreerrors "vaultguard/core/errors"
	"vaultguard/gas"
	"vaultguard/ledger"
	"vaultguard/submit"
)

// ApprovalResult describes a confirmed guardian approval.
type ApprovalResult struct {
	Hash          common.Hash
	TxHash        common.Hash
	ApprovalCount uint64
	Threshold     uint64
}

// HasApproved reports whether guardian's approval of hash counts. Flags on
// requests with a zero execution time are void, and a set flag on a request
// with no approvals is treated as stale.
func (c *Coordinator) HasApproved(ctx context.Context, hash common.Hash, guardian common.Address) (bool, error) {
	rec, err := c.module.Recovery(ctx, hash)
	if err != nil {
		return false, unavailable("has_approved", err, "recovery")
	}
	if !rec.Exists() {
		return false, nil
	}
	raw, err := c.module.RawApproval(ctx, hash, guardian)
	if err != nil {
		return false, unavailable("has_approved", err, "approval flag")
	}
	if raw && rec.ApprovalCount == 0 {
		c.logger.Warn("ignoring stale guardian approval flag",
			slog.String("hash", hash.Hex()),
			slog.String("guardian", guardian.Hex()))
		return false, nil
	}
	return raw, nil
}

// Approve records the calling guardian's approval of a live request.
func (c *Coordinator) Approve(ctx context.Context, hash common.Hash) (res *ApprovalResult, err error) {
	const op = "approve"
	ctx, finish := c.start(ctx, op, attribute.String("hash", hash.Hex()))
	defer finish(&err)

	if err := c.requireGuardian(ctx, op); err != nil {
		return nil, err
	}
	if _, err := c.liveRecovery(ctx, op, hash); err != nil {
		return nil, err
	}
	caller := c.module.Caller()
	approved, err := c.HasApproved(ctx, hash, caller)
	if err != nil {
		return nil, err
	}
	if approved {
		return nil, coreerrors.New(coreerrors.KindAlreadyApproved, op, "guardian %s already approved", caller.Hex()).WithHash(hash)
	}
	gasLimit := c.gas.Estimate(ctx, c.module.Contract(), gas.PresetSimple, ledger.MethodApproveRecovery, hash)
	result, err := c.submitter.Send(ctx, submit.Request{
		Op:       op,
		Contract: c.module.Contract(),
		Method:   ledger.MethodApproveRecovery,
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
	approved, err = c.HasApproved(ctx, hash, caller)
	if err != nil {
		return nil, err
	}
	if !approved {
		return nil, (&coreerrors.Error{
			Kind:    coreerrors.KindSubmissionReverted,
			Op:      op,
			Message: "receipt reported success but the guardian approval is not recorded",
			Hash:    hash,
		}).WithReceipt(result.Receipt)
	}
	rec, err := c.module.Recovery(ctx, hash)
	if err != nil {
		return nil, unavailable(op, err, "recovery")
	}
	cfg, err := c.module.Config(ctx)
	if err != nil {
		return nil, unavailable(op, err, "recovery config")
	}
	c.logger.Info("recovery approved",
		slog.String("hash", hash.Hex()),
		slog.String("tx", result.TxHash.Hex()),
		slog.Uint64("approvals", rec.ApprovalCount),
		slog.Uint64("threshold", cfg.Threshold))
	return &ApprovalResult{Hash: hash, TxHash: result.TxHash, ApprovalCount: rec.ApprovalCount, Threshold: cfg.Threshold}, nil
}
