package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// OperationHash derives the identifier the wallet assigns to a proposal:
//
//	keccak256(abi.encodePacked(address to, uint256 value, bytes data, uint256 nonce))
//
// The packing must match the ledger bit for bit or duplicate detection breaks.
func OperationHash(to common.Address, value *big.Int, data []byte, nonce *big.Int) (common.Hash, error) {
	packedValue, err := packUint256(value)
	if err != nil {
		return common.Hash{}, fmt.Errorf("ledger: value: %w", err)
	}
	packedNonce, err := packUint256(nonce)
	if err != nil {
		return common.Hash{}, fmt.Errorf("ledger: nonce: %w", err)
	}
	return gethcrypto.Keccak256Hash(to.Bytes(), packedValue[:], data, packedNonce[:]), nil
}

func packUint256(v *big.Int) ([32]byte, error) {
	if v == nil {
		return [32]byte{}, nil
	}
	if v.Sign() < 0 {
		return [32]byte{}, fmt.Errorf("negative uint256 %s", v)
	}
	word, overflow := uint256.FromBig(v)
	if overflow {
		return [32]byte{}, fmt.Errorf("%s overflows uint256", v)
	}
	return word.Bytes32(), nil
}

var recoveryHashArgs = mustArguments("address", "address[]", "uint256", "uint256")

// RecoveryHash derives the identifier of a recovery request:
//
//	keccak256(abi.encode(address wallet, address[] newOwners, uint256 newThreshold, uint256 nonce))
//
// The nonce is the module's replay counter, so identical parameters hash
// differently after every successful initiation.
func RecoveryHash(wallet common.Address, newOwners []common.Address, newThreshold uint64, nonce *big.Int) (common.Hash, error) {
	if _, err := packUint256(nonce); err != nil {
		return common.Hash{}, fmt.Errorf("ledger: nonce: %w", err)
	}
	if newOwners == nil {
		newOwners = []common.Address{}
	}
	encoded, err := recoveryHashArgs.Pack(wallet, newOwners, new(big.Int).SetUint64(newThreshold), nonNil(nonce))
	if err != nil {
		return common.Hash{}, fmt.Errorf("ledger: encode recovery: %w", err)
	}
	return gethcrypto.Keccak256Hash(encoded), nil
}

func mustArguments(kinds ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(kinds))
	for _, kind := range kinds {
		typ, err := abi.NewType(kind, "", nil)
		if err != nil {
			panic(fmt.Sprintf("ledger: abi type %s: %v", kind, err))
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}
