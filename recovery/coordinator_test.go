package recovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	coreerrors "vaultguard/core/errors"
	"vaultguard/ledger"
	"vaultguard/ledger/ledgertest"
	"vaultguard/multisig"
)

var (
	ownerA    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	ownerB    = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	guardian1 = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	guardian2 = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	guardian3 = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	heirX     = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	heirY     = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	outsider  = common.HexToAddress("0x00000000000000000000000000000000000000e1")
)

var guardians = []common.Address{guardian1, guardian2, guardian3}

const day = 24 * time.Hour

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// newGuardedChain returns a wallet {A,B}/2 with the module enabled and
// guardians {1,2,3}/2 on a one day time-lock.
func newGuardedChain() *ledgertest.Chain {
	chain := ledgertest.NewChain([]common.Address{ownerA, ownerB}, 2)
	chain.EnableModule(chain.ModuleAddress())
	chain.ConfigureRecovery(guardians, 2, uint64(day/time.Second))
	return chain
}

func as(chain *ledgertest.Chain, caller common.Address) *Coordinator {
	return New(chain.RecoveryModule(caller), chain.Wallet(caller), WithLogger(discard()), WithClock(chain.Now))
}

func requireKind(t *testing.T, err error, kind coreerrors.Kind) *coreerrors.Error {
	t.Helper()
	require.Error(t, err)
	tagged, ok := coreerrors.As(err)
	require.True(t, ok, "untagged error: %v", err)
	require.Equal(t, kind, tagged.Kind, "error: %v", err)
	return tagged
}

func TestSetupConfigValidation(t *testing.T) {
	chain := ledgertest.NewChain([]common.Address{ownerA, ownerB}, 2)
	c := as(chain, ownerA)
	cases := []struct {
		name      string
		guardians []common.Address
		threshold uint64
		days      uint64
	}{
		{"no guardians", nil, 1, 1},
		{"zero guardian", []common.Address{guardian1, {}}, 1, 1},
		{"duplicate guardian", []common.Address{guardian1, guardian1}, 1, 1},
		{"wallet as guardian", []common.Address{chain.WalletAddress()}, 1, 1},
		{"zero threshold", guardians, 0, 1},
		{"threshold above guardians", guardians, 4, 1},
		{"period under a day", guardians, 2, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.SetupConfig(context.Background(), tc.guardians, tc.threshold, tc.days)
			requireKind(t, err, coreerrors.KindInvalidArgument)
		})
	}
	require.Zero(t, chain.Submissions(ledger.MethodPropose))
}

func TestSetupConfigIsGoverned(t *testing.T) {
	ctx := context.Background()
	chain := ledgertest.NewChain([]common.Address{ownerA, ownerB}, 2)
	chain.EnableModule(chain.ModuleAddress())
	a := as(chain, ownerA)

	proposed, err := a.SetupConfig(ctx, guardians, 2, 3)
	require.NoError(t, err)
	require.Equal(t, chain.ModuleAddress(), proposed.Operation.To)

	cfg, err := a.Config(ctx)
	require.NoError(t, err)
	require.False(t, cfg.Configured())

	b := multisig.New(chain.Wallet(ownerB), multisig.WithLogger(discard()))
	res, err := b.ApproveAndExecute(ctx, proposed.Hash)
	require.NoError(t, err)
	require.True(t, res.Executed)

	cfg, err = a.Config(ctx)
	require.NoError(t, err)
	require.Equal(t, guardians, cfg.Guardians)
	require.Equal(t, uint64(2), cfg.Threshold)
	require.Equal(t, 3*day, cfg.Period)
}

func TestRecoveryLifecycle(t *testing.T) {
	ctx := context.Background()
	chain := newGuardedChain()
	newOwners := []common.Address{heirX, heirY}

	initiated, err := as(chain, guardian1).Initiate(ctx, newOwners, 2)
	require.NoError(t, err)
	expected, err := ledger.RecoveryHash(chain.WalletAddress(), newOwners, 2, big.NewInt(0))
	require.NoError(t, err)
	require.Equal(t, expected, initiated.Hash)
	require.Equal(t, int64(0), initiated.Nonce.Int64())
	require.Equal(t, uint64(1), initiated.Recovery.ApprovalCount)
	require.Equal(t, chain.Now().Add(day), initiated.ExecutableAt())

	g1Approved, err := as(chain, guardian1).HasApproved(ctx, initiated.Hash, guardian1)
	require.NoError(t, err)
	require.True(t, g1Approved)

	executor := as(chain, outsider)
	_, err = executor.Execute(ctx, initiated.Hash)
	requireKind(t, err, coreerrors.KindTimelockActive)

	approved, err := as(chain, guardian2).Approve(ctx, initiated.Hash)
	require.NoError(t, err)
	require.Equal(t, uint64(2), approved.ApprovalCount)
	require.Equal(t, uint64(2), approved.Threshold)

	_, err = as(chain, guardian2).Approve(ctx, initiated.Hash)
	requireKind(t, err, coreerrors.KindAlreadyApproved)

	_, err = executor.Execute(ctx, initiated.Hash)
	requireKind(t, err, coreerrors.KindTimelockActive)
	require.Zero(t, chain.Submissions(ledger.MethodExecuteRecovery))

	chain.Advance(day)
	executed, err := executor.Execute(ctx, initiated.Hash)
	require.NoError(t, err)
	require.Equal(t, newOwners, executed.Config.Owners)
	require.Equal(t, uint64(2), executed.Config.Threshold)
	require.Equal(t, newOwners, chain.Owners())

	_, err = executor.Execute(ctx, initiated.Hash)
	requireKind(t, err, coreerrors.KindAlreadyExecuted)
}

func TestExecuteNeedsGuardianThreshold(t *testing.T) {
	ctx := context.Background()
	chain := newGuardedChain()

	initiated, err := as(chain, guardian1).Initiate(ctx, []common.Address{heirX}, 1)
	require.NoError(t, err)
	chain.Advance(day)

	_, err = as(chain, guardian3).Execute(ctx, initiated.Hash)
	tagged := requireKind(t, err, coreerrors.KindThresholdNotMet)
	require.Equal(t, uint64(1), tagged.Approvals)
	require.Zero(t, chain.Submissions(ledger.MethodExecuteRecovery))
}

func TestExecuteNeedsEnabledModule(t *testing.T) {
	ctx := context.Background()
	chain := ledgertest.NewChain([]common.Address{ownerA, ownerB}, 2)
	chain.ConfigureRecovery(guardians, 2, uint64(day/time.Second))

	initiated, err := as(chain, guardian1).Initiate(ctx, []common.Address{heirX}, 1)
	require.NoError(t, err)
	_, err = as(chain, guardian2).Approve(ctx, initiated.Hash)
	require.NoError(t, err)
	chain.Advance(day)

	_, err = as(chain, guardian2).Execute(ctx, initiated.Hash)
	requireKind(t, err, coreerrors.KindNotAuthorized)
	require.Equal(t, []common.Address{ownerA, ownerB}, chain.Owners())
}

func TestInitiateRejections(t *testing.T) {
	ctx := context.Background()
	chain := newGuardedChain()

	_, err := as(chain, outsider).Initiate(ctx, []common.Address{heirX}, 1)
	requireKind(t, err, coreerrors.KindNotAuthorized)

	_, err = as(chain, guardian1).Initiate(ctx, []common.Address{heirX}, 2)
	requireKind(t, err, coreerrors.KindInvalidArgument)

	_, err = as(chain, guardian1).Initiate(ctx, []common.Address{heirX, heirX}, 1)
	requireKind(t, err, coreerrors.KindInvalidArgument)

	require.Zero(t, chain.Submissions(ledger.MethodInitiateRecovery))
}

func TestCancelVoidsApprovals(t *testing.T) {
	ctx := context.Background()
	chain := newGuardedChain()
	newOwners := []common.Address{heirX}

	first, err := as(chain, guardian1).Initiate(ctx, newOwners, 1)
	require.NoError(t, err)
	_, err = as(chain, guardian2).Approve(ctx, first.Hash)
	require.NoError(t, err)

	_, err = as(chain, guardian3).Cancel(ctx, first.Hash)
	requireKind(t, err, coreerrors.KindNotAuthorized)

	cancelled, err := as(chain, ownerA).Cancel(ctx, first.Hash)
	require.NoError(t, err)
	require.False(t, cancelled.ReceiptDisagreed)

	g2 := as(chain, guardian2)
	raw, err := g2.Module().RawApproval(ctx, first.Hash, guardian2)
	require.NoError(t, err)
	require.True(t, raw)
	counted, err := g2.HasApproved(ctx, first.Hash, guardian2)
	require.NoError(t, err)
	require.False(t, counted)

	_, err = as(chain, guardian3).Approve(ctx, first.Hash)
	requireKind(t, err, coreerrors.KindNotFound)
	_, err = as(chain, ownerB).Cancel(ctx, first.Hash)
	requireKind(t, err, coreerrors.KindNotFound)

	second, err := as(chain, guardian1).Initiate(ctx, newOwners, 1)
	require.NoError(t, err)
	require.NotEqual(t, first.Hash, second.Hash)
	require.Equal(t, int64(1), second.Nonce.Int64())
	require.Equal(t, uint64(2), chain.RecoveryNonce())

	counted, err = g2.HasApproved(ctx, second.Hash, guardian2)
	require.NoError(t, err)
	require.False(t, counted)
}

func TestStaleFlagOnLiveRequestIsNotCounted(t *testing.T) {
	ctx := context.Background()
	chain := newGuardedChain()

	initiated, err := as(chain, guardian1).Initiate(ctx, []common.Address{heirX}, 1)
	require.NoError(t, err)
	chain.SetRecoveryApprovals(initiated.Hash, 0)
	chain.SetGuardianFlag(initiated.Hash, guardian2, true)

	g2 := as(chain, guardian2)
	raw, err := g2.Module().RawApproval(ctx, initiated.Hash, guardian2)
	require.NoError(t, err)
	require.True(t, raw)
	counted, err := g2.HasApproved(ctx, initiated.Hash, guardian2)
	require.NoError(t, err)
	require.False(t, counted)

	_, err = g2.Approve(ctx, initiated.Hash)
	tagged := requireKind(t, err, coreerrors.KindSubmissionReverted)
	require.Contains(t, tagged.Reason, "GuardianAlreadyApproved")
	require.Equal(t, 1, chain.Submissions(ledger.MethodApproveRecovery))
}

func TestCancelToleratesFailedSimulation(t *testing.T) {
	ctx := context.Background()
	chain := newGuardedChain()

	initiated, err := as(chain, guardian1).Initiate(ctx, []common.Address{heirX}, 1)
	require.NoError(t, err)
	chain.FailEstimate(ledger.MethodCancelRecovery, errors.New("estimator unavailable"))
	_, err = as(chain, ownerA).Cancel(ctx, initiated.Hash)
	require.NoError(t, err)
	require.Equal(t, 1, chain.Submissions(ledger.MethodCancelRecovery))

	rec, err := as(chain, ownerA).Recovery(ctx, initiated.Hash)
	require.NoError(t, err)
	require.False(t, rec.Exists())
}

func TestCancelTrustsLedgerOverReceipt(t *testing.T) {
	ctx := context.Background()
	chain := newGuardedChain()

	initiated, err := as(chain, guardian1).Initiate(ctx, []common.Address{heirX}, 1)
	require.NoError(t, err)
	chain.InjectFault(ledger.MethodCancelRecovery, ledgertest.Fault{ForceStatus: ledgertest.Status(gethtypes.ReceiptStatusFailed), Once: true})
	res, err := as(chain, ownerA).Cancel(ctx, initiated.Hash)
	require.NoError(t, err)
	require.True(t, res.ReceiptDisagreed)

	other, err := as(chain, guardian1).Initiate(ctx, []common.Address{heirY}, 1)
	require.NoError(t, err)
	chain.InjectFault(ledger.MethodCancelRecovery, ledgertest.Fault{SkipEffects: true, Once: true})
	_, err = as(chain, ownerA).Cancel(ctx, other.Hash)
	requireKind(t, err, coreerrors.KindSubmissionReverted)
}

func TestPendingRecoveriesAndHistory(t *testing.T) {
	ctx := context.Background()
	chain := newGuardedChain()
	g1 := as(chain, guardian1)

	first, err := g1.Initiate(ctx, []common.Address{heirX}, 1)
	require.NoError(t, err)
	second, err := g1.Initiate(ctx, []common.Address{heirY}, 1)
	require.NoError(t, err)

	pending, err := g1.PendingRecoveries(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, second.Hash, pending[0].Hash)
	require.Equal(t, first.Hash, pending[1].Hash)

	_, err = as(chain, ownerA).Cancel(ctx, first.Hash)
	require.NoError(t, err)
	pending, err = g1.PendingRecoveries(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, second.Hash, pending[0].Hash)

	timeline, err := g1.History(ctx, first.Hash)
	require.NoError(t, err)
	var kinds []string
	for _, evt := range timeline {
		kinds = append(kinds, evt.Type)
	}
	require.Equal(t, []string{
		ledger.EventRecoveryInitiated,
		ledger.EventRecoveryApproved,
		ledger.EventRecoveryCancelled,
	}, kinds)

	rec, err := g1.Recovery(ctx, first.Hash)
	require.NoError(t, err)
	require.False(t, rec.Exists())

	_, err = g1.Recovery(ctx, common.HexToHash("0x0404"))
	requireKind(t, err, coreerrors.KindNotFound)
}

func TestInitiateStreamCompletes(t *testing.T) {
	chain := newGuardedChain()
	stream := as(chain, guardian1).InitiateStream(context.Background(), []common.Address{heirX}, 1)
	var last string
	for p := range stream.Events() {
		last = string(p.Stage)
	}
	require.Equal(t, "verified", last)
	res, err := stream.Wait(context.Background())
	require.NoError(t, err)
	require.True(t, res.Recovery.Live())
}
