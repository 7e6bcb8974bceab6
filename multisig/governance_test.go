package multisig

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	coreerrors "vaultguard/core/errors"
	"vaultguard/core/types"
	"vaultguard/ledger"
	"vaultguard/ledger/ledgertest"
)

func TestValidateSelfCall(t *testing.T) {
	wallet := ledgertest.DefaultWalletAddress
	module := common.HexToAddress("0x00000000000000000000000000000000000000d1")
	cfg := &types.WalletConfig{
		Address:   wallet,
		Owners:    []common.Address{ownerA, ownerB, ownerC},
		Threshold: 2,
		Modules:   []common.Address{module},
	}
	must := func(data []byte, err error) []byte {
		require.NoError(t, err)
		return data
	}

	cases := []struct {
		name string
		data []byte
		kind coreerrors.Kind
	}{
		{"add new owner", must(ledger.EncodeAddOwner(outsider)), coreerrors.KindUnknown},
		{"add existing owner", must(ledger.EncodeAddOwner(ownerB)), coreerrors.KindWouldViolateInvariant},
		{"add zero owner", must(ledger.EncodeAddOwner(common.Address{})), coreerrors.KindWouldViolateInvariant},
		{"add wallet as owner", must(ledger.EncodeAddOwner(wallet)), coreerrors.KindWouldViolateInvariant},
		{"remove keeps threshold", must(ledger.EncodeRemoveOwner(ownerC)), coreerrors.KindUnknown},
		{"remove non owner", must(ledger.EncodeRemoveOwner(outsider)), coreerrors.KindWouldViolateInvariant},
		{"replace owner", must(ledger.EncodeReplaceOwner(ownerA, outsider)), coreerrors.KindUnknown},
		{"replace with owner", must(ledger.EncodeReplaceOwner(ownerA, ownerB)), coreerrors.KindWouldViolateInvariant},
		{"threshold at owner count", must(ledger.EncodeChangeThreshold(3)), coreerrors.KindUnknown},
		{"threshold zero", must(ledger.EncodeChangeThreshold(0)), coreerrors.KindWouldViolateInvariant},
		{"threshold above owners", must(ledger.EncodeChangeThreshold(4)), coreerrors.KindWouldViolateInvariant},
		{"enable new module", must(ledger.EncodeEnableModule(outsider)), coreerrors.KindUnknown},
		{"enable enabled module", must(ledger.EncodeEnableModule(module)), coreerrors.KindWouldViolateInvariant},
		{"enable wallet as module", must(ledger.EncodeEnableModule(wallet)), coreerrors.KindWouldViolateInvariant},
		{"disable module", must(ledger.EncodeDisableModule(module)), coreerrors.KindUnknown},
		{"disable unknown module", must(ledger.EncodeDisableModule(outsider)), coreerrors.KindWouldViolateInvariant},
		{"not a governance call", []byte{0xde, 0xad, 0xbe, 0xef}, coreerrors.KindInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSelfCall(cfg, tc.data)
			if tc.kind == coreerrors.KindUnknown {
				require.NoError(t, err)
				return
			}
			require.Equal(t, tc.kind, coreerrors.KindOf(err), "error: %v", err)
		})
	}

	tight := &types.WalletConfig{Address: wallet, Owners: []common.Address{ownerA, ownerB}, Threshold: 2}
	err := ValidateSelfCall(tight, must(ledger.EncodeRemoveOwner(ownerB)))
	require.ErrorIs(t, err, coreerrors.ErrWouldViolateInvariant)
}

func TestRemoveOwnerBelowThresholdNeverSubmits(t *testing.T) {
	f := newFixture([]common.Address{ownerA, ownerB}, 2)
	_, err := f.as(ownerA).ProposeRemoveOwner(context.Background(), ownerB)
	requireKind(t, err, coreerrors.KindWouldViolateInvariant)
	require.Zero(t, f.chain.Submissions(ledger.MethodPropose))
}

func TestRemoveOwnerLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture([]common.Address{ownerA, ownerB, ownerC}, 2)

	proposed, err := f.as(ownerA).ProposeRemoveOwner(ctx, ownerB)
	require.NoError(t, err)
	require.Equal(t, f.chain.WalletAddress(), proposed.Operation.To)

	_, err = f.as(ownerB).Approve(ctx, proposed.Hash)
	require.NoError(t, err)
	_, err = f.as(ownerC).Execute(ctx, proposed.Hash)
	require.NoError(t, err)
	require.Equal(t, []common.Address{ownerA, ownerC}, f.chain.Owners())

	cfg, err := f.as(ownerA).Config(ctx)
	require.NoError(t, err)
	require.Equal(t, []common.Address{ownerA, ownerC}, cfg.Owners)
	require.Equal(t, uint64(2), cfg.Threshold)

	_, err = f.as(ownerB).Propose(ctx, payee, nil, nil)
	requireKind(t, err, coreerrors.KindNotAuthorized)
}

func TestExecuteRevalidatesAgainstCurrentOwners(t *testing.T) {
	ctx := context.Background()
	f := newFixture([]common.Address{ownerA, ownerB, ownerC}, 2)
	a := f.as(ownerA)

	removeB, err := a.ProposeRemoveOwner(ctx, ownerB)
	require.NoError(t, err)
	removeC, err := a.ProposeRemoveOwner(ctx, ownerC)
	require.NoError(t, err)
	require.NotEqual(t, removeB.Hash, removeC.Hash)

	_, err = f.as(ownerB).Approve(ctx, removeB.Hash)
	require.NoError(t, err)
	_, err = f.as(ownerC).Approve(ctx, removeC.Hash)
	require.NoError(t, err)

	_, err = a.Execute(ctx, removeB.Hash)
	require.NoError(t, err)

	_, err = a.Execute(ctx, removeC.Hash)
	requireKind(t, err, coreerrors.KindWouldViolateInvariant)
	require.Equal(t, 1, f.chain.Submissions(ledger.MethodExecute))
	require.Equal(t, []common.Address{ownerA, ownerC}, f.chain.Owners())
}

func TestGovernanceProposals(t *testing.T) {
	ctx := context.Background()
	f := newFixture([]common.Address{ownerA}, 1)
	a := f.as(ownerA)
	module := f.chain.ModuleAddress()

	steps := []func() (*ProposeResult, error){
		func() (*ProposeResult, error) { return a.ProposeAddOwner(ctx, ownerB) },
		func() (*ProposeResult, error) { return a.ProposeChangeThreshold(ctx, 2) },
	}
	for _, step := range steps {
		proposed, err := step()
		require.NoError(t, err)
		_, err = a.Execute(ctx, proposed.Hash)
		require.NoError(t, err)
	}
	require.Equal(t, []common.Address{ownerA, ownerB}, f.chain.Owners())
	require.Equal(t, uint64(2), f.chain.Threshold())

	enable, err := a.ProposeEnableModule(ctx, module)
	require.NoError(t, err)
	_, err = f.as(ownerB).ApproveAndExecute(ctx, enable.Hash)
	require.NoError(t, err)

	cfg, err := a.Config(ctx)
	require.NoError(t, err)
	require.True(t, cfg.ModuleEnabled(module))

	_, err = a.ProposeEnableModule(ctx, module)
	requireKind(t, err, coreerrors.KindWouldViolateInvariant)

	replace, err := a.ProposeReplaceOwner(ctx, ownerB, ownerC)
	require.NoError(t, err)
	_, err = f.as(ownerB).ApproveAndExecute(ctx, replace.Hash)
	require.NoError(t, err)
	require.Equal(t, []common.Address{ownerA, ownerC}, f.chain.Owners())

	disable, err := a.ProposeDisableModule(ctx, module)
	require.NoError(t, err)
	res, err := f.as(ownerC).ApproveAndExecute(ctx, disable.Hash)
	require.NoError(t, err)
	require.True(t, res.Executed)
	cfg, err = a.Config(ctx)
	require.NoError(t, err)
	require.False(t, cfg.ModuleEnabled(module))
}
