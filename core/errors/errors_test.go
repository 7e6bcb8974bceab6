package errors

import (
	stderrors "errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func TestSentinelMatchesByKind(t *testing.T) {
	err := New(KindAlreadyExecuted, "propose", "operation %s already executed", "0x01")
	require.True(t, stderrors.Is(err, ErrAlreadyExecuted))
	require.False(t, stderrors.Is(err, ErrDuplicate))

	wrapped := fmt.Errorf("cli: %w", err)
	require.True(t, stderrors.Is(wrapped, ErrAlreadyExecuted))
	require.Equal(t, KindAlreadyExecuted, KindOf(wrapped))
}

func TestWrapKeepsInnermostKind(t *testing.T) {
	inner := New(KindTimeout, "approve", "stopped waiting")
	outer := Wrap(KindUnavailable, "approve", inner, "read operation")
	require.Same(t, inner, outer)

	plain := stderrors.New("dial tcp: connection refused")
	tagged := Wrap(KindUnavailable, "config", plain, "read %s", "owners")
	require.Equal(t, KindUnavailable, tagged.Kind)
	require.ErrorIs(t, tagged, plain)
	require.Equal(t, "config: read owners: dial tcp: connection refused", tagged.Error())
}

func TestErrorMessagePrefersReason(t *testing.T) {
	err := &Error{Kind: KindSimulationFailed, Op: "approve", Message: "simulation of approveTransaction failed", Reason: "NotOwner(0x01)", Err: stderrors.New("execution reverted")}
	require.Equal(t, "approve: simulation of approveTransaction failed: NotOwner(0x01)", err.Error())

	bare := &Error{Kind: KindThresholdNotMet}
	require.Equal(t, "threshold not met", bare.Error())
}

func TestKindOfUntagged(t *testing.T) {
	require.Equal(t, KindUnknown, KindOf(stderrors.New("boom")))
	require.Equal(t, "unknown", Kind(200).String())
	require.True(t, KindTimeout.Retryable())
	require.True(t, KindUnavailable.Retryable())
	require.False(t, KindSubmissionReverted.Retryable())
}

func TestWithReceiptCopiesTxHash(t *testing.T) {
	receipt := &gethtypes.Receipt{TxHash: common.HexToHash("0xabc"), BlockNumber: big.NewInt(7)}
	err := New(KindSubmissionReverted, "execute", "reverted").WithHash(common.HexToHash("0x01")).WithReceipt(receipt)
	require.Equal(t, receipt.TxHash, err.TxHash)
	require.Equal(t, common.HexToHash("0x01"), err.Hash)

	tagged, ok := As(fmt.Errorf("wrap: %w", err))
	require.True(t, ok)
	require.Same(t, receipt, tagged.Receipt)
}
