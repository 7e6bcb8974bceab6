// Package submit sends a single ledger call and waits for its confirmation
// record, reporting progress and classifying failures.
package submit

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	coreerrors "vaultguard/core/errors"
	"vaultguard/core/events"
	"vaultguard/errdecode"
	"vaultguard/ledger"
)

// Request describes one mutating call.
type Request struct {
	Op       string
	Contract ledger.Contract
	Method   string
	Args     []any
	GasLimit uint64
	// Hash is the operation or recovery the call acts on, if known.
	Hash    common.Hash
	Emitter events.Emitter
}

// Result is the outcome of a confirmed submission. A reverted receipt is a
// result, not an error: callers decide whether ledger state must be re-read
// before failing.
type Result struct {
	TxHash   common.Hash
	Receipt  *gethtypes.Receipt
	Reverted bool
	// Reason is the decoded revert reason of a reverted receipt.
	Reason    string
	RevertErr error
}

// Err returns the tagged failure for a reverted result, or nil.
func (r *Result) Err(op string, hash common.Hash) error {
	if r == nil || !r.Reverted {
		return nil
	}
	err := &coreerrors.Error{
		Kind:    coreerrors.KindSubmissionReverted,
		Op:      op,
		Message: "submission reverted",
		Reason:  r.Reason,
		Hash:    hash,
		Err:     r.RevertErr,
	}
	return err.WithReceipt(r.Receipt)
}

// Submitter drives Transact, Wait and revert replay.
type Submitter struct {
	decoder *errdecode.Decoder
	logger  *slog.Logger
}

// New returns a submitter decoding failures with decoder.
func New(decoder *errdecode.Decoder, logger *slog.Logger) *Submitter {
	if decoder == nil {
		decoder = errdecode.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{decoder: decoder, logger: logger}
}

// Send submits req and waits for the confirmation record. Once a submission
// has left the client, an abandoned or timed-out wait is reported as
// KindTimeout with the transaction hash; the call stays live on the ledger.
func (s *Submitter) Send(ctx context.Context, req Request) (*Result, error) {
	sub, err := req.Contract.Transact(ctx, req.GasLimit, req.Method, req.Args...)
	if err != nil {
		return nil, s.sendError(req, err)
	}
	txHash := sub.Hash()
	events.Report(req.Emitter, req.Op, events.StageSubmitted, func(p *events.Progress) {
		p.TxHash = txHash
		p.Hash = req.Hash
		p.GasLimit = req.GasLimit
	})
	s.logger.Info("submission sent",
		slog.String("op", req.Op),
		slog.String("method", req.Method),
		slog.String("tx", txHash.Hex()),
		slog.String("hash", req.Hash.Hex()),
		slog.Uint64("gas_limit", req.GasLimit))

	receipt, err := sub.Wait(ctx)
	if err != nil {
		kind := coreerrors.KindUnavailable
		msg := "confirmation wait failed"
		switch {
		case stderrors.Is(err, ledger.ErrConfirmationTimeout):
			kind, msg = coreerrors.KindTimeout, "confirmation not received before ceiling; submission may still confirm"
		case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
			kind, msg = coreerrors.KindTimeout, "stopped waiting for confirmation; submission remains live"
		}
		s.logger.Warn("confirmation wait ended without receipt",
			slog.String("op", req.Op),
			slog.String("tx", txHash.Hex()),
			slog.Any("error", err))
		return nil, &coreerrors.Error{Kind: kind, Op: req.Op, Message: msg, Hash: req.Hash, TxHash: txHash, Err: err}
	}
	result := &Result{TxHash: txHash, Receipt: receipt}
	events.Report(req.Emitter, req.Op, events.StageConfirmed, func(p *events.Progress) {
		p.TxHash = txHash
		p.Hash = req.Hash
		p.Extra = map[string]any{"status": receipt.Status, "gas_used": receipt.GasUsed}
	})
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		result.Reverted = true
		result.RevertErr = sub.RevertError(ctx, receipt)
		if result.RevertErr != nil {
			result.Reason = s.decoder.Decode(result.RevertErr)
		} else {
			result.Reason = "receipt reported failure"
		}
		s.logger.Warn("submission reverted",
			slog.String("op", req.Op),
			slog.String("tx", txHash.Hex()),
			slog.String("reason", result.Reason))
	}
	return result, nil
}

func (s *Submitter) sendError(req Request, err error) error {
	reason := s.decoder.Decode(err)
	kind := coreerrors.KindUnavailable
	switch {
	case errdecode.IsUserRejection(err):
		kind = coreerrors.KindUserRejected
	case len(errdecode.RevertData(err)) > 0:
		kind = coreerrors.KindSubmissionReverted
	case stderrors.Is(err, context.DeadlineExceeded):
		kind = coreerrors.KindTimeout
	case stderrors.Is(err, ledger.ErrReadOnly):
		kind = coreerrors.KindNotAuthorized
	}
	s.logger.Warn("submission failed before leaving client",
		slog.String("op", req.Op),
		slog.String("method", req.Method),
		slog.String("reason", reason))
	return &coreerrors.Error{Kind: kind, Op: req.Op, Message: "submit " + req.Method, Reason: reason, Hash: req.Hash, Err: err}
}
