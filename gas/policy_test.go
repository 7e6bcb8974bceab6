package gas

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	coreerrors "vaultguard/core/errors"
)

type estimatorFunc func(ctx context.Context, method string, args ...any) (uint64, error)

func (f estimatorFunc) Estimate(ctx context.Context, method string, args ...any) (uint64, error) {
	return f(ctx, method, args...)
}

func fixed(gas uint64, err error) Estimator {
	return estimatorFunc(func(context.Context, string, ...any) (uint64, error) { return gas, err })
}

func TestPolicyPresetFallsBackToStandard(t *testing.T) {
	p := NewPolicy()
	require.Equal(t, PresetStandard, p.Preset("unheard-of").Name)
	require.Equal(t, uint64(200_000), p.Default(PresetSelfCall))
}

func TestPolicyEstimateFallsBackToDefault(t *testing.T) {
	p := NewPolicy()
	ctx := context.Background()
	require.Equal(t, uint64(150_000), p.Estimate(ctx, fixed(0, errors.New("execution reverted")), PresetSimple, "approveTransaction"))
	require.Equal(t, uint64(300_000), p.Estimate(ctx, fixed(200_000, nil), PresetSimple, "approveTransaction"))
}

func TestPolicyEstimateOrFailClassifies(t *testing.T) {
	p := NewPolicy()
	ctx := context.Background()

	gas, err := p.EstimateOrFail(ctx, fixed(400_000, nil), PresetComplex, "execute", "executeTransaction")
	require.NoError(t, err)
	require.Equal(t, uint64(800_000), gas)

	_, err = p.EstimateOrFail(ctx, fixed(0, errors.New("execution reverted: not ready")), PresetStandard, "propose", "proposeTransaction")
	require.ErrorIs(t, err, coreerrors.ErrSimulationFailed)
	tagged, ok := coreerrors.As(err)
	require.True(t, ok)
	require.Equal(t, "not ready", tagged.Reason)
	require.Equal(t, "propose", tagged.Op)

	_, err = p.EstimateOrFail(ctx, fixed(0, errors.New("user denied transaction signature")), PresetStandard, "propose", "proposeTransaction")
	require.ErrorIs(t, err, coreerrors.ErrUserRejected)

	_, err = p.EstimateOrFail(ctx, fixed(0, context.DeadlineExceeded), PresetStandard, "propose", "proposeTransaction")
	require.ErrorIs(t, err, coreerrors.ErrTimeout)
}

func TestWithPresetsOverrides(t *testing.T) {
	custom := DefaultPresets()[PresetSimple]
	custom.Default = 175_000
	p := NewPolicy(WithPresets(map[string]Preset{PresetSimple: custom}))
	require.Equal(t, uint64(175_000), p.Default(PresetSimple))
	require.Equal(t, uint64(300_000), p.Default(PresetStandard))
}
