package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnknownSelfCall is returned for payloads that do not match a wallet
// governance method.
var ErrUnknownSelfCall = errors.New("ledger: payload is not a wallet governance call")

// SelfCall is a decoded wallet governance call carried in an operation
// payload that targets the wallet itself.
type SelfCall struct {
	Method    string
	Owner     common.Address
	NewOwner  common.Address
	Module    common.Address
	Threshold uint64
}

var selfCallMethods = map[string]struct{}{
	MethodAddOwner:        {},
	MethodRemoveOwner:     {},
	MethodReplaceOwner:    {},
	MethodChangeThreshold: {},
	MethodEnableModule:    {},
	MethodDisableModule:   {},
}

// DecodeSelfCall decodes data against the wallet governance methods.
func DecodeSelfCall(data []byte) (*SelfCall, error) {
	if len(data) < 4 {
		return nil, ErrUnknownSelfCall
	}
	method, err := WalletABI().MethodById(data[:4])
	if err != nil {
		return nil, ErrUnknownSelfCall
	}
	if _, ok := selfCallMethods[method.Name]; !ok {
		return nil, ErrUnknownSelfCall
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("ledger: malformed %s payload: %w", method.Name, err)
	}
	call := &SelfCall{Method: method.Name}
	switch method.Name {
	case MethodAddOwner, MethodRemoveOwner:
		call.Owner, err = outAddress(args, 0, method.Name)
	case MethodReplaceOwner:
		if call.Owner, err = outAddress(args, 0, method.Name); err == nil {
			call.NewOwner, err = outAddress(args, 1, method.Name)
		}
	case MethodChangeThreshold:
		call.Threshold, err = outUint64(args, 0, method.Name)
	case MethodEnableModule, MethodDisableModule:
		call.Module, err = outAddress(args, 0, method.Name)
	}
	if err != nil {
		return nil, err
	}
	return call, nil
}

// EncodeAddOwner builds the payload adding owner.
func EncodeAddOwner(owner common.Address) ([]byte, error) {
	return WalletABI().Pack(MethodAddOwner, owner)
}

// EncodeRemoveOwner builds the payload removing owner.
func EncodeRemoveOwner(owner common.Address) ([]byte, error) {
	return WalletABI().Pack(MethodRemoveOwner, owner)
}

// EncodeReplaceOwner builds the payload swapping oldOwner for newOwner.
func EncodeReplaceOwner(oldOwner, newOwner common.Address) ([]byte, error) {
	return WalletABI().Pack(MethodReplaceOwner, oldOwner, newOwner)
}

// EncodeChangeThreshold builds the payload changing the approval threshold.
func EncodeChangeThreshold(threshold uint64) ([]byte, error) {
	return WalletABI().Pack(MethodChangeThreshold, new(big.Int).SetUint64(threshold))
}

// EncodeEnableModule builds the payload enabling a capability module.
func EncodeEnableModule(module common.Address) ([]byte, error) {
	return WalletABI().Pack(MethodEnableModule, module)
}

// EncodeDisableModule builds the payload disabling a capability module.
func EncodeDisableModule(module common.Address) ([]byte, error) {
	return WalletABI().Pack(MethodDisableModule, module)
}

// EncodeSetupRecovery builds the recovery module call that registers
// guardians for the calling wallet. The wallet must execute it, so the
// payload travels inside a multisig operation.
func EncodeSetupRecovery(guardians []common.Address, threshold uint64, period uint64) ([]byte, error) {
	return RecoveryModuleABI().Pack(MethodSetupRecovery, guardians, new(big.Int).SetUint64(threshold), new(big.Int).SetUint64(period))
}
