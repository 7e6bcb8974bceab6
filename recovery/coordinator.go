// Package recovery coordinates guardian recovery of a multisig wallet:
// governed guardian setup, replay-salted initiation, guardian approvals,
// time-locked execution and owner veto.
package recovery

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
	"vaultguard/core/types"
	"vaultguard/errdecode"
	"vaultguard/gas"
	"vaultguard/ledger"
	"vaultguard/multisig"
	"vaultguard/observability"
	"vaultguard/reconcile"
	"vaultguard/submit"
)

const component = "recovery"

// Coordinator drives recovery requests for one wallet and one caller.
type Coordinator struct {
	module     *ledger.RecoveryModule
	wallet     *ledger.Wallet
	multisig   *multisig.Coordinator
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

// WithMultisig sets the coordinator used to propose guardian setup. By
// default one is built over the wallet binding.
func WithMultisig(m *multisig.Coordinator) Option {
	return func(c *Coordinator) { c.multisig = m }
}

// WithClock overrides the clock used for time-lock pre-checks.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithGasPolicy overrides the gas policy.
func WithGasPolicy(policy *gas.Policy) Option {
	return func(c *Coordinator) { c.gas = policy }
}

// WithDecoder overrides the failure decoder.
func WithDecoder(decoder *errdecode.Decoder) Option {
	return func(c *Coordinator) { c.decoder = decoder }
}

// WithReconciler overrides the reconciler used by listings.
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

// New binds a coordinator to the recovery module and the wallet it
// protects. Both bindings must share the same caller identity.
func New(module ledger.Contract, wallet ledger.Contract, opts ...Option) *Coordinator {
	c := &Coordinator{
		module: ledger.NewRecoveryModule(module, wallet.Address()),
		wallet: ledger.NewWallet(wallet),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With(slog.String("component", component), slog.String("wallet", wallet.Address().Hex()))
	if c.decoder == nil {
		c.decoder = errdecode.New(ledger.RecoveryModuleABI(), ledger.WalletABI())
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
		c.tracer = otel.Tracer("vaultguard/recovery")
	}
	if c.multisig == nil {
		c.multisig = multisig.New(wallet,
			multisig.WithGasPolicy(c.gas),
			multisig.WithDecoder(c.decoder),
			multisig.WithReconciler(c.reconciler),
			multisig.WithEmitter(c.emitter),
			multisig.WithLogger(c.logger),
			multisig.WithMetrics(c.metrics),
			multisig.WithTracer(c.tracer))
	}
	c.submitter = submit.New(c.decoder, c.logger)
	return c
}

// Module returns the typed recovery module view.
func (c *Coordinator) Module() *ledger.RecoveryModule { return c.module }

// Caller returns the identity submissions are signed as.
func (c *Coordinator) Caller() common.Address { return c.module.Caller() }

func (c *Coordinator) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	begin := c.clock()
	attrs = append(attrs, attribute.String("caller", c.module.Caller().Hex()))
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

func unavailable(op string, err error, what string) error {
	return coreerrors.Wrap(coreerrors.KindUnavailable, op, err, "read %s", what)
}

func (c *Coordinator) requireGuardian(ctx context.Context, op string) error {
	caller := c.module.Caller()
	ok, err := c.module.IsGuardian(ctx, caller)
	if err != nil {
		return unavailable(op, err, "guardian membership")
	}
	if !ok {
		return coreerrors.New(coreerrors.KindNotAuthorized, op, "caller %s is not a guardian", caller.Hex())
	}
	return nil
}

// validateOwnerSet checks a set of addresses and its threshold. kind names
// the set in messages.
func validateOwnerSet(op, kind string, wallet common.Address, addrs []common.Address, threshold uint64) error {
	if len(addrs) == 0 {
		return coreerrors.New(coreerrors.KindInvalidArgument, op, "at least one %s required", kind)
	}
	seen := make(map[common.Address]struct{}, len(addrs))
	for _, addr := range addrs {
		switch {
		case addr == (common.Address{}):
			return coreerrors.New(coreerrors.KindInvalidArgument, op, "%s must not be the zero address", kind)
		case addr == wallet:
			return coreerrors.New(coreerrors.KindInvalidArgument, op, "wallet cannot be its own %s", kind)
		}
		if _, dup := seen[addr]; dup {
			return coreerrors.New(coreerrors.KindInvalidArgument, op, "duplicate %s %s", kind, addr.Hex())
		}
		seen[addr] = struct{}{}
	}
	if threshold == 0 || threshold > uint64(len(addrs)) {
		return coreerrors.New(coreerrors.KindInvalidArgument, op, "threshold %d outside [1, %d]", threshold, len(addrs))
	}
	return nil
}

// liveRecovery fetches hash and rejects requests that no longer exist or
// already executed.
func (c *Coordinator) liveRecovery(ctx context.Context, op string, hash common.Hash) (*types.Recovery, error) {
	rec, err := c.module.Recovery(ctx, hash)
	if err != nil {
		return nil, unavailable(op, err, "recovery")
	}
	switch {
	case !rec.Exists():
		return nil, coreerrors.New(coreerrors.KindNotFound, op, "recovery %s does not exist or was cancelled", hash.Hex()).WithHash(hash)
	case rec.Executed:
		return nil, coreerrors.New(coreerrors.KindAlreadyExecuted, op, "recovery %s already executed", hash.Hex()).WithHash(hash)
	}
	return rec, nil
}
