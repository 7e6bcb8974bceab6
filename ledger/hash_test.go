package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestOperationHashPacksTightly(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	data := []byte{0xde, 0xad, 0xbe, 0xef}
	got, err := OperationHash(to, big.NewInt(1_000), data, big.NewInt(3))
	require.NoError(t, err)

	value := common.LeftPadBytes(big.NewInt(1_000).Bytes(), 32)
	nonce := common.LeftPadBytes(big.NewInt(3).Bytes(), 32)
	want := gethcrypto.Keccak256Hash(to.Bytes(), value, data, nonce)
	require.Equal(t, want, got)
}

func TestOperationHashChangesWithNonce(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	first, err := OperationHash(to, nil, nil, big.NewInt(0))
	require.NoError(t, err)
	second, err := OperationHash(to, nil, nil, big.NewInt(1))
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	again, err := OperationHash(to, new(big.Int), []byte{}, new(big.Int))
	require.NoError(t, err)
	require.Equal(t, first, again)
}

func TestOperationHashRejectsOutOfRangeValues(t *testing.T) {
	to := common.HexToAddress("0x01")
	_, err := OperationHash(to, big.NewInt(-1), nil, big.NewInt(0))
	require.Error(t, err)

	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	_, err = OperationHash(to, big.NewInt(0), nil, huge)
	require.Error(t, err)
}

func TestRecoveryHashSaltedByNonce(t *testing.T) {
	wallet := common.HexToAddress("0x000000000000000000000000000000000000a11e")
	owners := []common.Address{common.HexToAddress("0x0d"), common.HexToAddress("0x0e")}
	first, err := RecoveryHash(wallet, owners, 2, big.NewInt(0))
	require.NoError(t, err)
	second, err := RecoveryHash(wallet, owners, 2, big.NewInt(1))
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	encoded, err := recoveryHashArgs.Pack(wallet, owners, big.NewInt(2), big.NewInt(0))
	require.NoError(t, err)
	require.Equal(t, gethcrypto.Keccak256Hash(encoded), first)
}
