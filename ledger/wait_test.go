package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

type receiptSource struct {
	mu       sync.Mutex
	misses   int
	receipt  *gethtypes.Receipt
	err      error
	requests int
}

func (s *receiptSource) TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	if s.err != nil {
		return nil, s.err
	}
	if s.requests <= s.misses {
		return nil, ethereum.NotFound
	}
	return s.receipt, nil
}

func TestWaitMinedPollsUntilReceipt(t *testing.T) {
	want := &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful}
	src := &receiptSource{misses: 2, receipt: want}
	got, err := WaitMined(context.Background(), src, common.HexToHash("0x01"), time.Millisecond, time.Second)
	require.NoError(t, err)
	require.Same(t, want, got)
	require.Equal(t, 3, src.requests)
}

func TestWaitMinedCeiling(t *testing.T) {
	src := &receiptSource{misses: 1 << 30}
	_, err := WaitMined(context.Background(), src, common.HexToHash("0x01"), time.Millisecond, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrConfirmationTimeout)
}

func TestWaitMinedAbandoned(t *testing.T) {
	src := &receiptSource{misses: 1 << 30}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WaitMined(ctx, src, common.HexToHash("0x01"), time.Millisecond, time.Second)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrConfirmationTimeout)
}

func TestWaitMinedTransportFailure(t *testing.T) {
	boom := errors.New("connection reset")
	src := &receiptSource{err: boom}
	_, err := WaitMined(context.Background(), src, common.HexToHash("0x01"), time.Millisecond, time.Second)
	require.ErrorIs(t, err, boom)
}
