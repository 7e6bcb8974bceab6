// Package gas sizes ledger submissions. The node's own estimator is not
// trusted on its own: simulated costs are buffered and clamped per preset,
// and a static default stands in when simulation is skipped or fails.
package gas

import (
	"context"
	stderrors "errors"
	"log/slog"

	coreerrors "vaultguard/core/errors"
	"vaultguard/errdecode"
	"vaultguard/observability"
)

// Estimator simulates a mutating call. ledger.Contract satisfies it.
type Estimator interface {
	Estimate(ctx context.Context, method string, args ...any) (uint64, error)
}

// Policy chooses gas limits using named presets.
type Policy struct {
	presets map[string]Preset
	decoder *errdecode.Decoder
	metrics *observability.VaultMetrics
	logger  *slog.Logger
}

// Option customises a Policy.
type Option func(*Policy)

// WithPresets replaces the preset table. Missing built-in names fall back to
// their defaults.
func WithPresets(presets map[string]Preset) Option {
	return func(p *Policy) {
		for name, preset := range presets {
			p.presets[name] = preset
		}
	}
}

// WithDecoder sets the decoder used to describe failed simulations.
func WithDecoder(decoder *errdecode.Decoder) Option {
	return func(p *Policy) {
		if decoder != nil {
			p.decoder = decoder
		}
	}
}

// WithMetrics records estimate sources.
func WithMetrics(metrics *observability.VaultMetrics) Option {
	return func(p *Policy) { p.metrics = metrics }
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPolicy returns a policy over the built-in presets.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{
		presets: DefaultPresets(),
		decoder: errdecode.New(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Preset returns the named preset, or the standard preset for unknown names.
func (p *Policy) Preset(name string) Preset {
	if preset, ok := p.presets[name]; ok {
		return preset
	}
	return p.presets[PresetStandard]
}

// Default returns the static limit of the named preset without simulating.
func (p *Policy) Default(name string) uint64 {
	preset := p.Preset(name)
	p.metrics.RecordGasEstimate(preset.Name, "default")
	return preset.Default
}

// Estimate simulates method and returns the buffered, clamped cost. A failed
// simulation yields the preset default instead of an error.
func (p *Policy) Estimate(ctx context.Context, est Estimator, name, method string, args ...any) uint64 {
	preset := p.Preset(name)
	raw, err := est.Estimate(ctx, method, args...)
	if err != nil {
		p.logger.Debug("gas simulation failed, using preset default",
			slog.String("preset", preset.Name),
			slog.String("method", method),
			slog.String("reason", p.decoder.Decode(err)))
		p.metrics.RecordGasEstimate(preset.Name, "default")
		return preset.Default
	}
	p.metrics.RecordGasEstimate(preset.Name, "simulated")
	return preset.Apply(raw)
}

// EstimateOrFail simulates method and converts a failed simulation into a
// tagged error carrying the decoded reason. It is used before submissions
// that must not be attempted when the ledger would reject them.
func (p *Policy) EstimateOrFail(ctx context.Context, est Estimator, name, op, method string, args ...any) (uint64, error) {
	preset := p.Preset(name)
	raw, err := est.Estimate(ctx, method, args...)
	if err == nil {
		p.metrics.RecordGasEstimate(preset.Name, "simulated")
		return preset.Apply(raw), nil
	}
	p.metrics.RecordGasEstimate(preset.Name, "failed")
	reason := p.decoder.Decode(err)
	kind := coreerrors.KindSimulationFailed
	switch {
	case errdecode.IsUserRejection(err):
		kind = coreerrors.KindUserRejected
	case stderrors.Is(err, context.DeadlineExceeded):
		kind = coreerrors.KindTimeout
	case stderrors.Is(err, context.Canceled):
		kind = coreerrors.KindUnavailable
	}
	return 0, &coreerrors.Error{
		Kind:    kind,
		Op:      op,
		Message: "simulation of " + method + " failed",
		Reason:  reason,
		Err:     err,
	}
}

// Decoder returns the decoder used to describe failures.
func (p *Policy) Decoder() *errdecode.Decoder { return p.decoder }
