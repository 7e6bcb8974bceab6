// Package multisig coordinates proposals, approvals and executions on a
// multisig wallet. The ledger owns every rule; the coordinator mirrors them
// to fail early, sizes each call, and re-reads ledger state after every
// submission before reporting success.
package multisig

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	coreerrors "vaultguard/core/errors"
	"vaultguard/core/events"
	"vaultguard/errdecode"
	"vaultguard/gas"
	"vaultguard/ledger"
	"vaultguard/observability"
	"vaultguard/reconcile"
	"vaultguard/submit"
)

const component = "multisig"

// Coordinator drives the operation state machine for one wallet and one
// caller identity.
type Coordinator struct {
	wallet     *ledger.Wallet
	gas        *gas.Policy
	decoder    *errdecode.Decoder
	reconciler *reconcile.Reconciler
	submitter  *submit.Submitter
	emitter    events.Emitter
	logger     *slog.Logger
	metrics    *observability.VaultMetrics
	tracer     trace.Tracer
	clock      func() time.Time
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithGasPolicy overrides the gas policy.
func WithGasPolicy(policy *gas.Policy) Option {
	return func(c *Coordinator) { c.gas = policy }
}

// WithDecoder overrides the failure decoder.
func WithDecoder(decoder *errdecode.Decoder) Option {
	return func(c *Coordinator) { c.decoder = decoder }
}

// WithReconciler overrides the event log reconciler used by listings.
func WithReconciler(r *reconcile.Reconciler) Option {
	return func(c *Coordinator) { c.reconciler = r }
}

// WithEmitter receives progress reports of non-streaming calls.
func WithEmitter(emitter events.Emitter) Option {
	return func(c *Coordinator) { c.emitter = emitter }
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithMetrics records operation outcomes.
func WithMetrics(metrics *observability.VaultMetrics) Option {
	return func(c *Coordinator) { c.metrics = metrics }
}

// WithTracer overrides the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coordinator) { c.tracer = tracer }
}

// New binds a coordinator to the wallet contract. The contract's caller is
// the identity every submission is signed as.
func New(contract ledger.Contract, opts ...Option) *Coordinator {
	c := &Coordinator{wallet: ledger.NewWallet(contract), clock: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With(slog.String("component", component), slog.String("wallet", contract.Address().Hex()))
	if c.decoder == nil {
		c.decoder = errdecode.New(ledger.WalletABI(), ledger.RecoveryModuleABI())
	}
	if c.gas == nil {
		c.gas = gas.NewPolicy(gas.WithDecoder(c.decoder), gas.WithMetrics(c.metrics), gas.WithLogger(c.logger))
	}
	if c.reconciler == nil {
		c.reconciler = reconcile.New(reconcile.WithLogger(c.logger), reconcile.WithMetrics(c.metrics))
	}
	if c.emitter == nil {
		c.emitter = events.NoopEmitter{}
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("vaultguard/multisig")
	}
	c.submitter = submit.New(c.decoder, c.logger)
	return c
}

// Wallet returns the typed wallet view.
func (c *Coordinator) Wallet() *ledger.Wallet { return c.wallet }

// Address returns the wallet address.
func (c *Coordinator) Address() common.Address { return c.wallet.Address() }

// Caller returns the identity submissions are signed as.
func (c *Coordinator) Caller() common.Address { return c.wallet.Caller() }

// Decoder returns the failure decoder.
func (c *Coordinator) Decoder() *errdecode.Decoder { return c.decoder }

func (c *Coordinator) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	begin := c.clock()
	attrs = append(attrs, attribute.String("caller", c.wallet.Caller().Hex()))
	ctx, span := c.tracer.Start(ctx, component+"."+op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		defer span.End()
		outcome := "ok"
		if errp != nil && *errp != nil {
			err := *errp
			kind := coreerrors.KindOf(err)
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.metrics.RecordError(component, op, kind.String())
			c.logger.Warn("operation failed",
				slog.String("op", op),
				slog.String("kind", kind.String()),
				slog.Any("error", err))
		} else {
			span.SetStatus(codes.Ok, op)
		}
		c.metrics.ObserveOperation(component, op, outcome, c.clock().Sub(begin))
	}
}

// unavailable tags a failed ledger read.
func unavailable(op string, err error, what string) error {
	return coreerrors.Wrap(coreerrors.KindUnavailable, op, err, "read %s", what)
}

func (c *Coordinator) requireOwner(ctx context.Context, op string) error {
	caller := c.wallet.Caller()
	ok, err := c.wallet.IsOwner(ctx, caller)
	if err != nil {
		return unavailable(op, err, "owner membership")
	}
	if !ok {
		return coreerrors.New(coreerrors.KindNotAuthorized, op, "caller %s is not an owner", caller.Hex())
	}
	return nil
}

// liveOperation fetches hash and rejects records that can no longer change.
func (c *Coordinator) liveOperation(ctx context.Context, op string, hash common.Hash) (*opSnapshot, error) {
	record, err := c.wallet.Operation(ctx, hash)
	if err != nil {
		return nil, unavailable(op, err, "operation")
	}
	switch {
	case !record.Exists():
		return nil, coreerrors.New(coreerrors.KindNotFound, op, "operation %s not found", hash.Hex()).WithHash(hash)
	case record.Executed:
		return nil, coreerrors.New(coreerrors.KindAlreadyExecuted, op, "operation %s already executed", hash.Hex()).WithHash(hash)
	case record.Cancelled:
		return nil, coreerrors.New(coreerrors.KindAlreadyCancelled, op, "operation %s was cancelled", hash.Hex()).WithHash(hash)
	}
	threshold, err := c.wallet.Threshold(ctx)
	if err != nil {
		return nil, unavailable(op, err, "threshold")
	}
	return &opSnapshot{record: record, threshold: threshold}, nil
}
