package recovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	coreerrors "vaultguard/core/errors"
	"vaultguard/core/types"
	"vaultguard/gas"
	"vaultguard/ledger"
	"vaultguard/submit"
)

// ExecuteResult describes a confirmed recovery execution.
type ExecuteResult struct {
	Hash   common.Hash
	TxHash common.Hash
	// Config is the wallet governance snapshot read after execution.
	Config *types.WalletConfig
}

// CancelResult describes a confirmed owner veto.
type CancelResult struct {
	Hash             common.Hash
	TxHash           common.Hash
	ReceiptDisagreed bool
}

// Execute applies a recovery once the time-lock has elapsed and guardian
// approvals reach the threshold. Anyone may call it; both gates are checked
// here only to fail early, the ledger enforces them.
func (c *Coordinator) Execute(ctx context.Context, hash common.Hash) (res *ExecuteResult, err error) {
	const op = "execute"
	ctx, finish := c.start(ctx, op, attribute.String("hash", hash.Hex()))
	defer finish(&err)

	rec, err := c.liveRecovery(ctx, op, hash)
	if err != nil {
		return nil, err
	}
	if rec.Wallet != c.wallet.Address() {
		return nil, coreerrors.New(coreerrors.KindInvalidArgument, op, "recovery %s targets wallet %s", hash.Hex(), rec.Wallet.Hex()).WithHash(hash)
	}
	now := c.clock()
	if !rec.Unlocked(now) {
		return nil, coreerrors.New(coreerrors.KindTimelockActive, op,
			"time-lock active until %s (%s remaining)", rec.ExecutionTime.Format(time.RFC3339), rec.ExecutionTime.Sub(now).Round(time.Second)).WithHash(hash)
	}
	cfg, err := c.module.Config(ctx)
	if err != nil {
		return nil, unavailable(op, err, "recovery config")
	}
	if rec.ApprovalCount < cfg.Threshold {
		return nil, &coreerrors.Error{
			Kind:      coreerrors.KindThresholdNotMet,
			Op:        op,
			Message:   "guardian approvals below threshold",
			Hash:      hash,
			Approvals: rec.ApprovalCount,
		}
	}
	enabled, err := c.wallet.IsModuleEnabled(ctx, c.module.Address())
	if err != nil {
		return nil, unavailable(op, err, "module status")
	}
	if !enabled {
		return nil, coreerrors.New(coreerrors.KindNotAuthorized, op, "recovery module %s is not enabled on the wallet", c.module.Address().Hex()).WithHash(hash)
	}
	gasLimit, err := c.gas.EstimateOrFail(ctx, c.module.Contract(), gas.PresetComplex, op, ledger.MethodExecuteRecovery, hash)
	if err != nil {
		return nil, err
	}
	result, err := c.submitter.Send(ctx, submit.Request{
		Op:       op,
		Contract: c.module.Contract(),
		Method:   ledger.MethodExecuteRecovery,
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
	after, err := c.module.Recovery(ctx, hash)
	if err != nil {
		return nil, unavailable(op, err, "recovery")
	}
	if !after.Executed {
		return nil, (&coreerrors.Error{
			Kind:    coreerrors.KindSubmissionReverted,
			Op:      op,
			Message: "receipt reported success but the recovery is not executed",
			Hash:    hash,
		}).WithReceipt(result.Receipt)
	}
	walletCfg, err := c.wallet.Config(ctx)
	if err != nil {
		return nil, unavailable(op, err, "wallet config")
	}
	c.logger.Info("recovery executed",
		slog.String("hash", hash.Hex()),
		slog.String("tx", result.TxHash.Hex()),
		slog.Int("owners", len(walletCfg.Owners)),
		slog.Uint64("threshold", walletCfg.Threshold))
	return &ExecuteResult{Hash: hash, TxHash: result.TxHash, Config: walletCfg}, nil
}

// Cancel vetoes a recovery. Only wallet owners may cancel, at any time
// before execution. Cancellation zeroes the execution time, which voids every
// approval recorded against the hash; the request state is re-read whatever
// the receipt status says.
func (c *Coordinator) Cancel(ctx context.Context, hash common.Hash) (res *CancelResult, err error) {
	const op = "cancel"
	ctx, finish := c.start(ctx, op, attribute.String("hash", hash.Hex()))
	defer finish(&err)

	caller := c.module.Caller()
	owner, err := c.wallet.IsOwner(ctx, caller)
	if err != nil {
		return nil, unavailable(op, err, "owner membership")
	}
	if !owner {
		return nil, coreerrors.New(coreerrors.KindNotAuthorized, op, "caller %s is not a wallet owner", caller.Hex())
	}
	if _, err := c.liveRecovery(ctx, op, hash); err != nil {
		return nil, err
	}
	gasLimit := c.gas.Estimate(ctx, c.module.Contract(), gas.PresetSimple, ledger.MethodCancelRecovery, hash)
	result, err := c.submitter.Send(ctx, submit.Request{
		Op:       op,
		Contract: c.module.Contract(),
		Method:   ledger.MethodCancelRecovery,
		Args:     []any{hash},
		GasLimit: gasLimit,
		Hash:     hash,
		Emitter:  c.emitter,
	})
	if err != nil {
		return nil, err
	}
	after, err := c.module.Recovery(ctx, hash)
	if err != nil {
		return nil, unavailable(op, err, "recovery")
	}
	if after.Exists() {
		if result.Reverted {
			return nil, result.Err(op, hash)
		}
		return nil, (&coreerrors.Error{
			Kind:    coreerrors.KindSubmissionReverted,
			Op:      op,
			Message: "receipt reported success but the recovery still exists",
			Hash:    hash,
		}).WithReceipt(result.Receipt)
	}
	if result.Reverted {
		c.logger.Warn("receipt reported failure but ledger shows the recovery cancelled",
			slog.String("hash", hash.Hex()),
			slog.String("tx", result.TxHash.Hex()))
	}
	c.logger.Info("recovery cancelled", slog.String("hash", hash.Hex()), slog.String("tx", result.TxHash.Hex()))
	return &CancelResult{Hash: hash, TxHash: result.TxHash, ReceiptDisagreed: result.Reverted}, nil
}
