package multisig

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel/attribute"

	coreerrors "vaultguard/core/errors"
	"vaultguard/gas"
	"vaultguard/ledger"
	"vaultguard/submit"
)

// CancelResult describes a cancellation confirmed by ledger state.
type CancelResult struct {
	Hash   common.Hash
	TxHash common.Hash
	// ReceiptDisagreed is set when the receipt reported failure but the
	// ledger shows the operation cancelled.
	ReceiptDisagreed bool
}

// ExecuteResult describes a confirmed execution.
type ExecuteResult struct {
	Hash    common.Hash
	TxHash  common.Hash
	Receipt *gethtypes.Receipt
}

// ApproveExecuteResult describes a combined approve-and-execute call.
type ApproveExecuteResult struct {
	Hash      common.Hash
	TxHash    common.Hash
	Approvals uint64
	// Executed reports whether the call also executed the operation.
	Executed bool
}

// Cancel withdraws a pending operation. The proposer may cancel at any time;
// any other owner only once approvals have reached the threshold. The
// cancelled flag is re-read whatever the receipt status says.
func (c *Coordinator) Cancel(ctx context.Context, hash common.Hash) (res *CancelResult, err error) {
	const op = "cancel"
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
	if caller != snap.record.Proposer && snap.record.Approvals < snap.threshold {
		return nil, &coreerrors.Error{
			Kind:      coreerrors.KindNotAuthorized,
			Op:        op,
			Message:   "only the proposer may cancel before approvals reach the threshold",
			Hash:      hash,
			Approvals: snap.record.Approvals,
		}
	}
	gasLimit := c.gas.Estimate(ctx, c.wallet.Contract(), gas.PresetSimple, ledger.MethodCancel, hash)
	result, err := c.submitter.Send(ctx, submit.Request{
		Op:       op,
		Contract: c.wallet.Contract(),
		Method:   ledger.MethodCancel,
		Args:     []any{hash},
		GasLimit: gasLimit,
		Hash:     hash,
		Emitter:  c.emitter,
	})
	if err != nil {
		return nil, err
	}
	record, err := c.wallet.Operation(ctx, hash)
	if err != nil {
		return nil, unavailable(op, err, "operation")
	}
	if !record.Cancelled {
		if result.Reverted {
			return nil, result.Err(op, hash)
		}
		return nil, (&coreerrors.Error{
			Kind:    coreerrors.KindSubmissionReverted,
			Op:      op,
			Message: "receipt reported success but the operation is not cancelled",
			Hash:    hash,
		}).WithReceipt(result.Receipt)
	}
	if result.Reverted {
		c.logger.Warn("receipt reported failure but ledger shows the operation cancelled",
			slog.String("hash", hash.Hex()),
			slog.String("tx", result.TxHash.Hex()))
	}
	c.logger.Info("operation cancelled", slog.String("hash", hash.Hex()), slog.String("tx", result.TxHash.Hex()))
	return &CancelResult{Hash: hash, TxHash: result.TxHash, ReceiptDisagreed: result.Reverted}, nil
}

// Execute runs an operation whose approvals have reached the threshold.
// Governance calls targeting the wallet itself are checked against the
// current owner set before submission.
func (c *Coordinator) Execute(ctx context.Context, hash common.Hash) (res *ExecuteResult, err error) {
	const op = "execute"
	ctx, finish := c.start(ctx, op, attribute.String("hash", hash.Hex()))
	defer finish(&err)

	if err := c.requireOwner(ctx, op); err != nil {
		return nil, err
	}
	snap, err := c.liveOperation(ctx, op, hash)
	if err != nil {
		return nil, err
	}
	if snap.record.Approvals < snap.threshold {
		return nil, &coreerrors.Error{
			Kind:      coreerrors.KindThresholdNotMet,
			Op:        op,
			Message:   "approvals below threshold",
			Hash:      hash,
			Approvals: snap.record.Approvals,
		}
	}
	gasLimit, err := c.executionGas(ctx, op, snap, ledger.MethodExecute, hash)
	if err != nil {
		return nil, err
	}
	result, err := c.submitter.Send(ctx, submit.Request{
		Op:       op,
		Contract: c.wallet.Contract(),
		Method:   ledger.MethodExecute,
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
	record, err := c.wallet.Operation(ctx, hash)
	if err != nil {
		return nil, unavailable(op, err, "operation")
	}
	if !record.Executed {
		return nil, (&coreerrors.Error{
			Kind:    coreerrors.KindSubmissionReverted,
			Op:      op,
			Message: "receipt reported success but the operation is not executed",
			Hash:    hash,
		}).WithReceipt(result.Receipt)
	}
	if !ledger.HasEvent(result.Receipt, c.wallet.Address(), ledger.WalletABI(), ledger.EventTransactionExecuted, hash) {
		c.logger.Warn("execution confirmed by state but receipt carries no execution notice", slog.String("hash", hash.Hex()))
	}
	c.logger.Info("operation executed", slog.String("hash", hash.Hex()), slog.String("tx", result.TxHash.Hex()))
	return &ExecuteResult{Hash: hash, TxHash: result.TxHash, Receipt: result.Receipt}, nil
}

// ApproveAndExecute approves hash and, if that brings approvals to the
// threshold, executes it in the same ledger call. Whether execution happened
// is read from the receipt and confirmed against ledger state.
func (c *Coordinator) ApproveAndExecute(ctx context.Context, hash common.Hash) (res *ApproveExecuteResult, err error) {
	const op = "approve_and_execute"
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
	willExecute := snap.record.Approvals+1 >= snap.threshold
	var gasLimit uint64
	if willExecute {
		gasLimit, err = c.executionGas(ctx, op, snap, ledger.MethodApproveAndExecute, hash)
	} else {
		gasLimit, err = c.gas.EstimateOrFail(ctx, c.wallet.Contract(), gas.PresetSimple, op, ledger.MethodApproveAndExecute, hash)
	}
	if err != nil {
		return nil, err
	}
	result, err := c.submitter.Send(ctx, submit.Request{
		Op:       op,
		Contract: c.wallet.Contract(),
		Method:   ledger.MethodApproveAndExecute,
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
	executed := ledger.HasEvent(result.Receipt, c.wallet.Address(), ledger.WalletABI(), ledger.EventTransactionExecuted, hash)
	record, err := c.wallet.Operation(ctx, hash)
	if err != nil {
		return nil, unavailable(op, err, "operation")
	}
	approved, err = c.wallet.IsApproved(ctx, hash, caller)
	if err != nil {
		return nil, unavailable(op, err, "approval flag")
	}
	switch {
	case !approved && !record.Executed:
		return nil, (&coreerrors.Error{
			Kind:    coreerrors.KindSubmissionReverted,
			Op:      op,
			Message: "receipt reported success but the approval is not recorded",
			Hash:    hash,
		}).WithReceipt(result.Receipt)
	case executed && !record.Executed:
		return nil, (&coreerrors.Error{
			Kind:    coreerrors.KindSubmissionReverted,
			Op:      op,
			Message: "receipt carries an execution notice but the operation is not executed",
			Hash:    hash,
		}).WithReceipt(result.Receipt)
	case !executed && record.Executed:
		c.logger.Warn("operation executed but receipt carries no execution notice", slog.String("hash", hash.Hex()))
		executed = true
	}
	c.logger.Info("operation approved",
		slog.String("hash", hash.Hex()),
		slog.String("tx", result.TxHash.Hex()),
		slog.Bool("executed", executed))
	return &ApproveExecuteResult{Hash: hash, TxHash: result.TxHash, Approvals: record.Approvals, Executed: executed}, nil
}

// executionGas sizes a call that runs the operation payload. Self-calls are
// validated against a fresh owner set and use the static self-call limit.
func (c *Coordinator) executionGas(ctx context.Context, op string, snap *opSnapshot, method string, hash common.Hash) (uint64, error) {
	if snap.record.SelfCall(c.wallet.Address()) {
		if len(snap.record.Data) > 0 {
			cfg, err := c.wallet.Config(ctx)
			if err != nil {
				return 0, unavailable(op, err, "wallet config")
			}
			if err := validateSelfCall(op, cfg, snap.record.Data); err != nil {
				return 0, err
			}
		}
		return c.gas.Default(gas.PresetSelfCall), nil
	}
	preset := gas.PresetStandard
	if len(snap.record.Data) > 0 {
		preset = gas.PresetComplex
	}
	return c.gas.EstimateOrFail(ctx, c.wallet.Contract(), preset, op, method, hash)
}
