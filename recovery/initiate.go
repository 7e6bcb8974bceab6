package recovery

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	coreerrors "vaultguard/core/errors"
	"vaultguard/core/events"
	"vaultguard/core/types"
	"vaultguard/gas"
	"vaultguard/ledger"
	"vaultguard/submit"
)

// InitiateResult describes a confirmed recovery initiation.
type InitiateResult struct {
	Hash     common.Hash
	TxHash   common.Hash
	Recovery *types.Recovery
	// Nonce is the replay counter the hash was salted with.
	Nonce    *big.Int
	Strategy ledger.ExtractStrategy
}

// ExecutableAt returns the earliest execution time set by the ledger.
func (r *InitiateResult) ExecutableAt() time.Time {
	if r == nil || r.Recovery == nil {
		return time.Time{}
	}
	return r.Recovery.ExecutionTime
}

// Initiate opens a recovery request replacing the owner set. Only guardians
// may initiate; the initiator's approval is recorded with the request.
func (c *Coordinator) Initiate(ctx context.Context, newOwners []common.Address, newThreshold uint64) (*InitiateResult, error) {
	return c.initiate(ctx, c.emitter, newOwners, newThreshold)
}

// InitiateStream runs Initiate in the background and reports each step on
// the returned stream.
func (c *Coordinator) InitiateStream(ctx context.Context, newOwners []common.Address, newThreshold uint64) *events.Stream[*InitiateResult] {
	return events.Start(ctx, "initiate", func(ctx context.Context, emitter events.Emitter) (*InitiateResult, error) {
		return c.initiate(ctx, emitter, newOwners, newThreshold)
	})
}

func (c *Coordinator) initiate(ctx context.Context, emitter events.Emitter, newOwners []common.Address, newThreshold uint64) (res *InitiateResult, err error) {
	const op = "initiate"
	ctx, finish := c.start(ctx, op, attribute.Int("new_owners", len(newOwners)), attribute.Int64("new_threshold", int64(newThreshold)))
	defer finish(&err)

	events.Report(emitter, op, events.StageValidating, nil)
	wallet := c.wallet.Address()
	if err := validateOwnerSet(op, "owner", wallet, newOwners, newThreshold); err != nil {
		return nil, err
	}
	if err := c.requireGuardian(ctx, op); err != nil {
		return nil, err
	}
	nonce, err := c.module.Nonce(ctx)
	if err != nil {
		return nil, unavailable(op, err, "recovery nonce")
	}
	hash, err := ledger.RecoveryHash(wallet, newOwners, newThreshold, nonce)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindInvalidArgument, op, err, "derive recovery hash")
	}
	remote, err := c.module.RecoveryHash(ctx, newOwners, newThreshold, nonce)
	if err != nil {
		return nil, unavailable(op, err, "ledger recovery hash")
	}
	if remote != hash {
		return nil, coreerrors.New(coreerrors.KindHashMismatch, op,
			"local hash %s differs from ledger hash %s", hash.Hex(), remote.Hex()).WithHash(remote)
	}

	threshold := new(big.Int).SetUint64(newThreshold)
	gasLimit, err := c.gas.EstimateOrFail(ctx, c.module.Contract(), gas.PresetStandard, op, ledger.MethodInitiateRecovery, wallet, newOwners, threshold)
	if err != nil {
		return nil, err
	}
	events.Report(emitter, op, events.StageEstimating, func(p *events.Progress) {
		p.Hash = hash
		p.GasLimit = gasLimit
	})
	result, err := c.submitter.Send(ctx, submit.Request{
		Op:       op,
		Contract: c.module.Contract(),
		Method:   ledger.MethodInitiateRecovery,
		Args:     []any{wallet, newOwners, threshold},
		GasLimit: gasLimit,
		Hash:     hash,
		Emitter:  emitter,
	})
	if err != nil {
		return nil, err
	}
	if result.Reverted {
		return nil, result.Err(op, hash)
	}
	extracted, strategy, err := ledger.ExtractHash(result.Receipt, ledger.EventSpec{
		Contract:  c.module.Address(),
		ABI:       ledger.RecoveryModuleABI(),
		Name:      ledger.EventRecoveryInitiated,
		Field:     "recoveryHash",
		Signature: ledger.SignatureRecoveryInitiated,
	})
	if err != nil {
		return nil, (&coreerrors.Error{
			Kind:    coreerrors.KindEventNotFound,
			Op:      op,
			Message: "initiation confirmed but its notice could not be found",
			Hash:    hash,
			Err:     err,
		}).WithReceipt(result.Receipt)
	}
	if extracted != hash {
		c.logger.Warn("ledger reported a different recovery hash than derived locally",
			slog.String("derived", hash.Hex()),
			slog.String("reported", extracted.Hex()))
	}
	rec, err := c.module.Recovery(ctx, extracted)
	if err != nil {
		return nil, unavailable(op, err, "recovery")
	}
	if !rec.Live() {
		return nil, (&coreerrors.Error{
			Kind:    coreerrors.KindSubmissionReverted,
			Op:      op,
			Message: "ledger does not report the recovery as live",
			Hash:    extracted,
		}).WithReceipt(result.Receipt)
	}
	events.Report(emitter, op, events.StageVerified, func(p *events.Progress) {
		p.Hash = extracted
		p.TxHash = result.TxHash
		p.Extra = map[string]any{"execution_time": rec.ExecutionTime}
	})
	c.logger.Info("recovery initiated",
		slog.String("hash", extracted.Hex()),
		slog.String("tx", result.TxHash.Hex()),
		slog.Time("executable_at", rec.ExecutionTime))
	return &InitiateResult{Hash: extracted, TxHash: result.TxHash, Recovery: rec, Nonce: nonce, Strategy: strategy}, nil
}
