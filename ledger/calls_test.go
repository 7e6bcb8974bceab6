package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestDecodeSelfCallRoundTrip(t *testing.T) {
	owner := common.HexToAddress("0x0a")
	replacement := common.HexToAddress("0x0b")

	data, err := EncodeReplaceOwner(owner, replacement)
	require.NoError(t, err)
	call, err := DecodeSelfCall(data)
	require.NoError(t, err)
	require.Equal(t, MethodReplaceOwner, call.Method)
	require.Equal(t, owner, call.Owner)
	require.Equal(t, replacement, call.NewOwner)

	data, err = EncodeChangeThreshold(3)
	require.NoError(t, err)
	call, err = DecodeSelfCall(data)
	require.NoError(t, err)
	require.Equal(t, uint64(3), call.Threshold)
}

func TestDecodeSelfCallRejectsOtherPayloads(t *testing.T) {
	_, err := DecodeSelfCall([]byte{0x01})
	require.ErrorIs(t, err, ErrUnknownSelfCall)

	// approveTransaction is a wallet method but not a governance call.
	data, err := WalletABI().Pack(MethodApprove, common.HexToHash("0x01"))
	require.NoError(t, err)
	_, err = DecodeSelfCall(data)
	require.ErrorIs(t, err, ErrUnknownSelfCall)

	setup, err := EncodeSetupRecovery([]common.Address{common.HexToAddress("0x0c")}, 1, 86400)
	require.NoError(t, err)
	_, err = DecodeSelfCall(setup)
	require.ErrorIs(t, err, ErrUnknownSelfCall)
}
