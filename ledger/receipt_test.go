package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

var (
	testWallet   = common.HexToAddress("0x000000000000000000000000000000000000a11e")
	testProposer = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testTarget   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

func proposedLog(t *testing.T, address common.Address, hash common.Hash) *gethtypes.Log {
	t.Helper()
	event := WalletABI().Events[EventTransactionProposed]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(0), []byte{}, big.NewInt(0))
	require.NoError(t, err)
	return &gethtypes.Log{
		Address: address,
		Topics: []common.Hash{
			event.ID,
			hash,
			common.BytesToHash(testProposer.Bytes()),
			common.BytesToHash(testTarget.Bytes()),
		},
		Data: data,
	}
}

func proposedSpec() EventSpec {
	return EventSpec{
		Contract:  testWallet,
		ABI:       WalletABI(),
		Name:      EventTransactionProposed,
		Field:     "txHash",
		Signature: SignatureTransactionProposed,
	}
}

func TestSignatureConstantsMatchInterface(t *testing.T) {
	require.Equal(t, WalletABI().Events[EventTransactionProposed].ID, gethcrypto.Keccak256Hash([]byte(SignatureTransactionProposed)))
	require.Equal(t, WalletABI().Events[EventTransactionExecuted].ID, gethcrypto.Keccak256Hash([]byte(SignatureTransactionExecuted)))
	require.Equal(t, RecoveryModuleABI().Events[EventRecoveryInitiated].ID, gethcrypto.Keccak256Hash([]byte(SignatureRecoveryInitiated)))
}

func TestExtractHashDirect(t *testing.T) {
	hash := common.HexToHash("0x1234")
	receipt := &gethtypes.Receipt{Logs: []*gethtypes.Log{proposedLog(t, testWallet, hash)}}
	got, strategy, err := ExtractHash(receipt, proposedSpec())
	require.NoError(t, err)
	require.Equal(t, hash, got)
	require.Equal(t, StrategyDirect, strategy)
}

func TestExtractHashParsedFromForwardedLog(t *testing.T) {
	// Emitted through a proxy: the address differs so the direct match
	// misses, but the notice still parses against the interface.
	hash := common.HexToHash("0x5678")
	proxy := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	receipt := &gethtypes.Receipt{Logs: []*gethtypes.Log{proposedLog(t, proxy, hash)}}
	got, strategy, err := ExtractHash(receipt, proposedSpec())
	require.NoError(t, err)
	require.Equal(t, hash, got)
	require.Equal(t, StrategyParsed, strategy)
}

func TestExtractHashBySignature(t *testing.T) {
	hash := common.HexToHash("0x9abc")
	spec := proposedSpec()
	spec.ABI = nil
	receipt := &gethtypes.Receipt{Logs: []*gethtypes.Log{proposedLog(t, testWallet, hash)}}
	got, strategy, err := ExtractHash(receipt, spec)
	require.NoError(t, err)
	require.Equal(t, hash, got)
	require.Equal(t, StrategySignature, strategy)
}

func TestExtractHashMissing(t *testing.T) {
	_, _, err := ExtractHash(&gethtypes.Receipt{}, proposedSpec())
	require.ErrorIs(t, err, ErrEventNotFound)
	_, _, err = ExtractHash(nil, proposedSpec())
	require.ErrorIs(t, err, ErrEventNotFound)
}

func TestHasEvent(t *testing.T) {
	hash := common.HexToHash("0x01")
	event := WalletABI().Events[EventTransactionExecuted]
	receipt := &gethtypes.Receipt{Logs: []*gethtypes.Log{{
		Address: testWallet,
		Topics:  []common.Hash{event.ID, hash, common.BytesToHash(testProposer.Bytes())},
	}}}
	require.True(t, HasEvent(receipt, testWallet, WalletABI(), EventTransactionExecuted, hash))
	require.False(t, HasEvent(receipt, testWallet, WalletABI(), EventTransactionExecuted, common.HexToHash("0x02")))
	require.False(t, HasEvent(receipt, testTarget, WalletABI(), EventTransactionExecuted, hash))
	require.False(t, HasEvent(nil, testWallet, WalletABI(), EventTransactionExecuted, hash))
}
