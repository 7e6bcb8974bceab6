package multisig

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"vaultguard/core/types"
	"vaultguard/ledger"
)

func hashes(ops []*types.Operation) []common.Hash {
	out := make([]common.Hash, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.Hash)
	}
	return out
}

func TestListingsFollowLedgerState(t *testing.T) {
	ctx := context.Background()
	f := newFixture([]common.Address{ownerA, ownerB, ownerC}, 2)
	a, b := f.as(ownerA), f.as(ownerB)

	first, err := a.Propose(ctx, payee, big.NewInt(1), nil)
	require.NoError(t, err)
	second, err := a.Propose(ctx, payee, big.NewInt(2), nil)
	require.NoError(t, err)
	third, err := a.Propose(ctx, payee, big.NewInt(3), nil)
	require.NoError(t, err)

	pending, err := b.PendingOperations(ctx)
	require.NoError(t, err)
	require.Equal(t, []common.Hash{third.Hash, second.Hash, first.Hash}, hashes(pending))

	executable, err := b.ExecutableOperations(ctx)
	require.NoError(t, err)
	require.Empty(t, executable)

	_, err = b.Approve(ctx, second.Hash)
	require.NoError(t, err)
	executable, err = b.ExecutableOperations(ctx)
	require.NoError(t, err)
	require.Equal(t, []common.Hash{second.Hash}, hashes(executable))

	_, err = b.Execute(ctx, second.Hash)
	require.NoError(t, err)
	_, err = a.Cancel(ctx, third.Hash)
	require.NoError(t, err)

	pending, err = b.PendingOperations(ctx)
	require.NoError(t, err)
	require.Equal(t, []common.Hash{first.Hash}, hashes(pending))

	executed, err := b.ExecutedOperations(ctx)
	require.NoError(t, err)
	require.Equal(t, []common.Hash{second.Hash}, hashes(executed))
	require.True(t, executed[0].Executed)

	cancelled, err := b.CancelledOperations(ctx)
	require.NoError(t, err)
	require.Equal(t, []common.Hash{third.Hash}, hashes(cancelled))
}

func TestHistoryOrdersNotices(t *testing.T) {
	ctx := context.Background()
	f := newFixture([]common.Address{ownerA, ownerB, ownerC}, 2)

	proposed, err := f.as(ownerA).Propose(ctx, payee, big.NewInt(1), nil)
	require.NoError(t, err)
	_, err = f.as(ownerB).Approve(ctx, proposed.Hash)
	require.NoError(t, err)
	_, err = f.as(ownerB).Revoke(ctx, proposed.Hash)
	require.NoError(t, err)
	_, err = f.as(ownerA).Cancel(ctx, proposed.Hash)
	require.NoError(t, err)

	timeline, err := f.as(ownerC).History(ctx, proposed.Hash)
	require.NoError(t, err)
	var kinds []string
	for _, evt := range timeline {
		require.Equal(t, proposed.Hash, evt.Hash)
		kinds = append(kinds, evt.Type)
	}
	require.Equal(t, []string{
		ledger.EventTransactionProposed,
		ledger.EventTransactionApproved,
		ledger.EventTransactionApproved,
		ledger.EventApprovalRevoked,
		ledger.EventTransactionCancelled,
	}, kinds)
	for i := 1; i < len(timeline); i++ {
		require.True(t, timeline[i-1].Before(timeline[i]))
	}
}
