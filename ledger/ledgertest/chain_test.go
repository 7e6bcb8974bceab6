package ledgertest

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"vaultguard/ledger"
)

var (
	ownerA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	ownerB = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	target = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

func transact(t *testing.T, c ledger.Contract, method string, args ...any) *gethtypes.Receipt {
	t.Helper()
	sub, err := c.Transact(context.Background(), 500_000, method, args...)
	require.NoError(t, err)
	receipt, err := sub.Wait(context.Background())
	require.NoError(t, err)
	return receipt
}

func TestChainProposeApproveExecute(t *testing.T) {
	chain := NewChain([]common.Address{ownerA, ownerB}, 2)
	wallet := ledger.NewWallet(chain.Wallet(ownerA))
	ctx := context.Background()

	hash, err := ledger.OperationHash(target, big.NewInt(5), []byte{}, big.NewInt(0))
	require.NoError(t, err)
	receipt := transact(t, chain.Wallet(ownerA), ledger.MethodPropose, target, big.NewInt(5), []byte{})
	require.Equal(t, gethtypes.ReceiptStatusSuccessful, receipt.Status)

	op, err := wallet.Operation(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, ownerA, op.Proposer)
	require.Equal(t, uint64(1), op.Approvals)
	require.Equal(t, chain.Now(), op.CreatedAt)

	receipt = transact(t, chain.Wallet(ownerA), ledger.MethodExecute, hash)
	require.Equal(t, gethtypes.ReceiptStatusFailed, receipt.Status)

	transact(t, chain.Wallet(ownerB), ledger.MethodApprove, hash)
	receipt = transact(t, chain.Wallet(ownerB), ledger.MethodExecute, hash)
	require.Equal(t, gethtypes.ReceiptStatusSuccessful, receipt.Status)
	require.Equal(t, uint64(1), chain.WalletNonce())
	require.True(t, ledger.HasEvent(receipt, chain.WalletAddress(), ledger.WalletABI(), ledger.EventTransactionExecuted, hash))
}

func TestChainRevertedSubmissionRollsBack(t *testing.T) {
	chain := NewChain([]common.Address{ownerA}, 1)
	outsider := common.HexToAddress("0x00000000000000000000000000000000000000e1")
	sub, err := chain.Wallet(outsider).Transact(context.Background(), 300_000, ledger.MethodPropose, target, new(big.Int), []byte{})
	require.NoError(t, err)
	receipt, err := sub.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, gethtypes.ReceiptStatusFailed, receipt.Status)
	require.Empty(t, receipt.Logs)
	require.Error(t, sub.RevertError(context.Background(), receipt))

	_, err = chain.Wallet(outsider).Estimate(context.Background(), ledger.MethodPropose, target, new(big.Int), []byte{})
	require.Error(t, err)
}

func TestChainGovernanceRequiresWallet(t *testing.T) {
	chain := NewChain([]common.Address{ownerA}, 1)
	receipt := transact(t, chain.Wallet(ownerA), ledger.MethodAddOwner, ownerB)
	require.Equal(t, gethtypes.ReceiptStatusFailed, receipt.Status)
	require.Equal(t, []common.Address{ownerA}, chain.Owners())
}

func TestChainSkipEffectsFault(t *testing.T) {
	chain := NewChain([]common.Address{ownerA}, 1)
	chain.InjectFault(ledger.MethodPropose, Fault{SkipEffects: true, Once: true})
	receipt := transact(t, chain.Wallet(ownerA), ledger.MethodPropose, target, new(big.Int), []byte{})
	require.Equal(t, gethtypes.ReceiptStatusSuccessful, receipt.Status)

	hash, err := ledger.OperationHash(target, new(big.Int), []byte{}, new(big.Int))
	require.NoError(t, err)
	op, err := ledger.NewWallet(chain.Wallet(ownerA)).Operation(context.Background(), hash)
	require.NoError(t, err)
	require.False(t, op.Exists())

	logs, err := chain.Wallet(ownerA).FilterLogs(context.Background(), ledger.LogQuery{Event: ledger.EventTransactionProposed, ToBlock: 100})
	require.NoError(t, err)
	require.Empty(t, logs)
}

func TestChainRecoveryLifecycle(t *testing.T) {
	guardian := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	chain := NewChain([]common.Address{ownerA}, 1)
	chain.ConfigureRecovery([]common.Address{guardian}, 1, 86_400)
	chain.EnableModule(chain.ModuleAddress())

	newOwners := []common.Address{ownerB}
	receipt := transact(t, chain.RecoveryModule(guardian), ledger.MethodInitiateRecovery, chain.WalletAddress(), newOwners, big.NewInt(1))
	require.Equal(t, gethtypes.ReceiptStatusSuccessful, receipt.Status)
	hash, err := ledger.RecoveryHash(chain.WalletAddress(), newOwners, 1, big.NewInt(0))
	require.NoError(t, err)
	require.Equal(t, uint64(1), chain.RecoveryNonce())

	receipt = transact(t, chain.RecoveryModule(guardian), ledger.MethodExecuteRecovery, hash)
	require.Equal(t, gethtypes.ReceiptStatusFailed, receipt.Status)

	chain.Advance(24 * time.Hour)
	receipt = transact(t, chain.RecoveryModule(guardian), ledger.MethodExecuteRecovery, hash)
	require.Equal(t, gethtypes.ReceiptStatusSuccessful, receipt.Status)
	require.Equal(t, newOwners, chain.Owners())
}
