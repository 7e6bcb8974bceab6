package multisig

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	coreerrors "vaultguard/core/errors"
	"vaultguard/core/events"
	"vaultguard/core/types"
	"vaultguard/gas"
	"vaultguard/ledger"
	"vaultguard/submit"
)

// ProposeResult describes a confirmed proposal.
type ProposeResult struct {
	Hash      common.Hash
	TxHash    common.Hash
	Operation *types.Operation
	// Reused is set when the proposal overwrote a cancelled operation with
	// identical parameters. Approvals gathered before the cancellation do not
	// carry over.
	Reused bool
	// Strategy names how the hash was recovered from the receipt.
	Strategy ledger.ExtractStrategy
}

// Propose submits a new operation. Identical parameters at the current wallet
// sequence number hash identically, so a pending duplicate is rejected with
// KindDuplicate naming the existing hash and its approval count, and an
// executed one with KindAlreadyExecuted.
func (c *Coordinator) Propose(ctx context.Context, to common.Address, value *big.Int, data []byte) (*ProposeResult, error) {
	return c.propose(ctx, c.emitter, to, value, data)
}

// ProposeStream runs Propose in the background and reports each step on the
// returned stream. Abandoning the stream stops waiting; a submission that
// already left the client is not withdrawn.
func (c *Coordinator) ProposeStream(ctx context.Context, to common.Address, value *big.Int, data []byte) *events.Stream[*ProposeResult] {
	return events.Start(ctx, "propose", func(ctx context.Context, emitter events.Emitter) (*ProposeResult, error) {
		return c.propose(ctx, emitter, to, value, data)
	})
}

func (c *Coordinator) propose(ctx context.Context, emitter events.Emitter, to common.Address, value *big.Int, data []byte) (res *ProposeResult, err error) {
	const op = "propose"
	ctx, finish := c.start(ctx, op, attribute.String("to", to.Hex()))
	defer finish(&err)

	events.Report(emitter, op, events.StageValidating, nil)
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		return nil, coreerrors.New(coreerrors.KindInvalidArgument, op, "value must not be negative")
	}
	if data == nil {
		data = []byte{}
	}
	if err := c.requireOwner(ctx, op); err != nil {
		return nil, err
	}
	nonce, err := c.wallet.Nonce(ctx)
	if err != nil {
		return nil, unavailable(op, err, "wallet nonce")
	}
	hash, err := ledger.OperationHash(to, value, data, nonce)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindInvalidArgument, op, err, "derive operation hash")
	}
	remote, err := c.wallet.TransactionHash(ctx, to, value, data, nonce)
	if err != nil {
		return nil, unavailable(op, err, "ledger operation hash")
	}
	if remote != hash {
		return nil, coreerrors.New(coreerrors.KindHashMismatch, op,
			"local hash %s differs from ledger hash %s", hash.Hex(), remote.Hex()).WithHash(remote)
	}

	existing, err := c.wallet.Operation(ctx, hash)
	if err != nil {
		return nil, unavailable(op, err, "existing operation")
	}
	reused := false
	if existing.Exists() {
		switch {
		case existing.Executed:
			return nil, coreerrors.New(coreerrors.KindAlreadyExecuted, op,
				"identical operation %s already executed", hash.Hex()).WithHash(hash)
		case !existing.Cancelled:
			return nil, &coreerrors.Error{
				Kind:      coreerrors.KindDuplicate,
				Op:        op,
				Message:   "identical operation " + hash.Hex() + " is already pending",
				Hash:      hash,
				Approvals: existing.Approvals,
			}
		}
		reused = true
		c.logger.Warn("re-proposing over cancelled operation, prior approvals are discarded",
			slog.String("hash", hash.Hex()),
			slog.String("prior_proposer", existing.Proposer.Hex()))
	}

	selfCall := to == c.wallet.Address()
	if selfCall && len(data) > 0 {
		cfg, err := c.wallet.Config(ctx)
		if err != nil {
			return nil, unavailable(op, err, "wallet config")
		}
		if err := validateSelfCall(op, cfg, data); err != nil {
			return nil, err
		}
	}

	var gasLimit uint64
	switch {
	case selfCall:
		// Simulated cost of self-calls is unreliable.
		gasLimit = c.gas.Default(gas.PresetSelfCall)
	case reused:
		// Simulating over stale cancelled state gives false negatives.
		gasLimit = c.gas.Default(gas.PresetStandard)
	default:
		gasLimit, err = c.gas.EstimateOrFail(ctx, c.wallet.Contract(), gas.PresetStandard, op, ledger.MethodPropose, to, value, data)
		if err != nil {
			return nil, err
		}
	}
	events.Report(emitter, op, events.StageEstimating, func(p *events.Progress) {
		p.Hash = hash
		p.GasLimit = gasLimit
	})

	result, err := c.submitter.Send(ctx, submit.Request{
		Op:       op,
		Contract: c.wallet.Contract(),
		Method:   ledger.MethodPropose,
		Args:     []any{to, value, data},
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
		Contract:  c.wallet.Address(),
		ABI:       ledger.WalletABI(),
		Name:      ledger.EventTransactionProposed,
		Field:     "txHash",
		Signature: ledger.SignatureTransactionProposed,
	})
	if err != nil {
		return nil, (&coreerrors.Error{
			Kind:    coreerrors.KindEventNotFound,
			Op:      op,
			Message: "proposal confirmed but its notice could not be found",
			Hash:    hash,
			Err:     err,
		}).WithReceipt(result.Receipt)
	}
	if extracted != hash {
		c.logger.Warn("ledger reported a different hash than derived locally",
			slog.String("derived", hash.Hex()),
			slog.String("reported", extracted.Hex()))
	}

	record, err := c.wallet.Operation(ctx, extracted)
	if err != nil {
		return nil, unavailable(op, err, "proposed operation")
	}
	if !record.IsPending() {
		return nil, (&coreerrors.Error{
			Kind:    coreerrors.KindSubmissionReverted,
			Op:      op,
			Message: "ledger does not report the proposal as pending",
			Hash:    extracted,
		}).WithReceipt(result.Receipt)
	}
	events.Report(emitter, op, events.StageVerified, func(p *events.Progress) {
		p.Hash = extracted
		p.TxHash = result.TxHash
	})
	c.logger.Info("operation proposed",
		slog.String("hash", extracted.Hex()),
		slog.String("tx", result.TxHash.Hex()),
		slog.Bool("reused", reused),
		slog.String("strategy", string(strategy)))
	return &ProposeResult{
		Hash:      extracted,
		TxHash:    result.TxHash,
		Operation: record,
		Reused:    reused,
		Strategy:  strategy,
	}, nil
}
