package reconcile

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"vaultguard/ledger"
	"vaultguard/ledger/ledgertest"
)

var (
	ownerA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	ownerB = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	target = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

// scriptedSource answers FilterLogs from a queue of results.
type scriptedSource struct {
	head    uint64
	results []error
	logs    []gethtypes.Log
	queries []ledger.LogQuery
}

func (s *scriptedSource) Address() common.Address { return ledgertest.DefaultWalletAddress }
func (s *scriptedSource) ABI() *abi.ABI           { return ledger.WalletABI() }
func (s *scriptedSource) HeadBlock(context.Context) (uint64, error) {
	return s.head, nil
}
func (s *scriptedSource) FilterLogs(_ context.Context, q ledger.LogQuery) ([]gethtypes.Log, error) {
	s.queries = append(s.queries, q)
	if len(s.results) > 0 {
		err := s.results[0]
		s.results = s.results[1:]
		if err != nil {
			return nil, err
		}
	}
	return s.logs, nil
}

func approvedLog(t *testing.T, hash common.Hash, block uint64, index uint) gethtypes.Log {
	t.Helper()
	event := ledger.WalletABI().Events[ledger.EventTransactionApproved]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(2))
	require.NoError(t, err)
	return gethtypes.Log{
		Address:     ledgertest.DefaultWalletAddress,
		Topics:      []common.Hash{event.ID, hash, common.BytesToHash(ownerB.Bytes())},
		Data:        data,
		BlockNumber: block,
		Index:       index,
	}
}

func TestScanNarrowsOnceOnRangeRejection(t *testing.T) {
	hash := common.HexToHash("0x01")
	src := &scriptedSource{
		head:    10_000,
		results: []error{ledger.ErrLogRangeTooLarge},
		logs:    []gethtypes.Log{approvedLog(t, hash, 9_500, 0)},
	}
	notices, err := New().Scan(context.Background(), src, ledger.EventTransactionApproved, nil)
	require.NoError(t, err)
	require.Len(t, notices, 1)
	require.Equal(t, hash, notices[0].Hash)
	require.Equal(t, ownerB, notices[0].Fields["owner"])
	require.Equal(t, big.NewInt(2), notices[0].Fields["approvals"])

	require.Len(t, src.queries, 2)
	require.Equal(t, uint64(5_001), src.queries[0].FromBlock)
	require.Equal(t, uint64(8_001), src.queries[1].FromBlock)
	require.Equal(t, uint64(10_000), src.queries[1].ToBlock)
}

func TestScanExhaustedWindowsYieldEmpty(t *testing.T) {
	src := &scriptedSource{
		head:    10_000,
		results: []error{ledger.ErrLogRangeTooLarge, errors.New("query returned more than 10000 results")},
	}
	notices, err := New().Scan(context.Background(), src, ledger.EventTransactionProposed, nil)
	require.NoError(t, err)
	require.Empty(t, notices)
	require.Len(t, src.queries, 2)
}

func TestScanPropagatesOtherFailures(t *testing.T) {
	boom := errors.New("401 unauthorized")
	src := &scriptedSource{head: 10, results: []error{boom}}
	_, err := New().Scan(context.Background(), src, ledger.EventTransactionProposed, nil)
	require.ErrorIs(t, err, boom)
	require.Len(t, src.queries, 1)
}

func TestScanUnknownEvent(t *testing.T) {
	_, err := New().Scan(context.Background(), &scriptedSource{}, "NoSuchEvent", nil)
	require.Error(t, err)
}

func TestWindowsClampFallback(t *testing.T) {
	primary, fallback := New(WithWindows(1_000, 4_000)).Windows()
	require.Equal(t, uint64(1_000), primary)
	require.Equal(t, uint64(1_000), fallback)
	require.Equal(t, uint64(0), windowStart(10, 5_000))
	require.Equal(t, uint64(6), windowStart(10, 5))
}

func TestDedupNewestFirst(t *testing.T) {
	h1, h2 := common.HexToHash("0x01"), common.HexToHash("0x02")
	notices := []Notice{
		{Hash: h1, BlockNumber: 5, LogIndex: 0},
		{Hash: h2, BlockNumber: 7, LogIndex: 1},
		{Hash: h1, BlockNumber: 9, LogIndex: 0},
		{Hash: h2, BlockNumber: 7, LogIndex: 0},
	}
	require.Equal(t, []common.Hash{h1, h2}, Dedup(notices))
	require.Empty(t, Dedup(nil))
}

func TestResolveKeepsAuthoritativeMatches(t *testing.T) {
	hashes := []common.Hash{common.HexToHash("0x03"), common.HexToHash("0x01"), common.HexToHash("0x02")}
	fetch := func(_ context.Context, h common.Hash) (uint64, error) { return h.Big().Uint64(), nil }
	out, err := Resolve(context.Background(), hashes, fetch, func(v uint64) bool { return v != 1 })
	require.NoError(t, err)
	require.Equal(t, []uint64{3, 2}, out)

	boom := errors.New("boom")
	_, err = Resolve(context.Background(), hashes, func(context.Context, common.Hash) (uint64, error) { return 0, boom }, nil)
	require.ErrorIs(t, err, boom)
}

func TestCandidatesAndTimelineAgainstLedger(t *testing.T) {
	ctx := context.Background()
	chain := ledgertest.NewChain([]common.Address{ownerA, ownerB}, 2)
	walletA := chain.Wallet(ownerA)
	walletB := chain.Wallet(ownerB)

	propose := func(data []byte) common.Hash {
		nonce := new(big.Int).SetUint64(chain.WalletNonce())
		hash, err := ledger.OperationHash(target, new(big.Int), data, nonce)
		require.NoError(t, err)
		sub, err := walletA.Transact(ctx, 300_000, ledger.MethodPropose, target, new(big.Int), data)
		require.NoError(t, err)
		receipt, err := sub.Wait(ctx)
		require.NoError(t, err)
		require.Equal(t, gethtypes.ReceiptStatusSuccessful, receipt.Status)
		return hash
	}
	first := propose([]byte{0x01})
	second := propose([]byte{0x02})
	sub, err := walletB.Transact(ctx, 150_000, ledger.MethodApprove, first)
	require.NoError(t, err)
	_, err = sub.Wait(ctx)
	require.NoError(t, err)

	r := New()
	hashes, err := r.Candidates(ctx, walletA, ledger.EventTransactionProposed)
	require.NoError(t, err)
	require.Equal(t, []common.Hash{second, first}, hashes)

	timeline, err := r.Timeline(ctx, walletA, first, ledger.EventTransactionProposed, ledger.EventTransactionApproved)
	require.NoError(t, err)
	require.Len(t, timeline, 3)
	kinds := make([]string, len(timeline))
	for i, evt := range timeline {
		kinds[i] = evt.Type
		require.Equal(t, first, evt.Hash)
	}
	require.Equal(t, []string{ledger.EventTransactionProposed, ledger.EventTransactionApproved, ledger.EventTransactionApproved}, kinds)
	require.Equal(t, "2", timeline[2].Attributes["approvals"])
	require.Equal(t, ownerB.Hex(), timeline[2].Attributes["owner"])
	require.True(t, timeline[0].Before(timeline[2]))
}
