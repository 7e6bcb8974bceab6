package ledger

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"vaultguard/core/types"
)

// RecoveryModule is the typed view over the guardian recovery module, scoped
// to a single wallet.
type RecoveryModule struct {
	contract Contract
	wallet   common.Address
}

// NewRecoveryModule wraps contract for the recovery of wallet.
func NewRecoveryModule(contract Contract, wallet common.Address) *RecoveryModule {
	return &RecoveryModule{contract: contract, wallet: wallet}
}

// Contract returns the underlying binding.
func (m *RecoveryModule) Contract() Contract { return m.contract }

// Address returns the module address.
func (m *RecoveryModule) Address() common.Address { return m.contract.Address() }

// Wallet returns the wallet the module view is scoped to.
func (m *RecoveryModule) Wallet() common.Address { return m.wallet }

// Caller returns the identity submissions are signed as.
func (m *RecoveryModule) Caller() common.Address { return m.contract.From() }

// Config returns the guardian configuration of the wallet.
func (m *RecoveryModule) Config(ctx context.Context) (*types.RecoveryConfig, error) {
	out, err := m.contract.Call(ctx, MethodGetRecoveryConfig, m.wallet)
	if err != nil {
		return nil, err
	}
	guardians, err := outAddresses(out, 0, MethodGetRecoveryConfig)
	if err != nil {
		return nil, err
	}
	threshold, err := outUint64(out, 1, MethodGetRecoveryConfig)
	if err != nil {
		return nil, err
	}
	period, err := outUint64(out, 2, MethodGetRecoveryConfig)
	if err != nil {
		return nil, err
	}
	return &types.RecoveryConfig{
		Guardians: guardians,
		Threshold: threshold,
		Period:    time.Duration(period) * time.Second,
	}, nil
}

// IsGuardian reports whether addr is a guardian of the wallet.
func (m *RecoveryModule) IsGuardian(ctx context.Context, addr common.Address) (bool, error) {
	out, err := m.contract.Call(ctx, MethodIsGuardian, m.wallet, addr)
	if err != nil {
		return false, err
	}
	return outBool(out, 0, MethodIsGuardian)
}

// Nonce returns the replay counter salting recovery hashes.
func (m *RecoveryModule) Nonce(ctx context.Context) (*big.Int, error) {
	out, err := m.contract.Call(ctx, MethodRecoveryNonce, m.wallet)
	if err != nil {
		return nil, err
	}
	return outBig(out, 0, MethodRecoveryNonce)
}

// RecoveryHash asks the ledger for the hash of a request at nonce.
func (m *RecoveryModule) RecoveryHash(ctx context.Context, newOwners []common.Address, newThreshold uint64, nonce *big.Int) (common.Hash, error) {
	out, err := m.contract.Call(ctx, MethodGetRecoveryHash, m.wallet, newOwners, new(big.Int).SetUint64(newThreshold), nonNil(nonce))
	if err != nil {
		return common.Hash{}, err
	}
	return outHash(out, 0, MethodGetRecoveryHash)
}

// Recovery fetches the authoritative request at hash. A zero execution time
// means the request does not exist or was cancelled.
func (m *RecoveryModule) Recovery(ctx context.Context, hash common.Hash) (*types.Recovery, error) {
	out, err := m.contract.Call(ctx, MethodGetRecovery, hash)
	if err != nil {
		return nil, err
	}
	rec := &types.Recovery{Hash: hash}
	if rec.Wallet, err = outAddress(out, 0, MethodGetRecovery); err != nil {
		return nil, err
	}
	if rec.NewOwners, err = outAddresses(out, 1, MethodGetRecovery); err != nil {
		return nil, err
	}
	if rec.NewThreshold, err = outUint64(out, 2, MethodGetRecovery); err != nil {
		return nil, err
	}
	if rec.ApprovalCount, err = outUint64(out, 3, MethodGetRecovery); err != nil {
		return nil, err
	}
	execAt, err := outUint64(out, 4, MethodGetRecovery)
	if err != nil {
		return nil, err
	}
	if execAt > 0 {
		rec.ExecutionTime = time.Unix(int64(execAt), 0).UTC()
	}
	if rec.Executed, err = outBool(out, 5, MethodGetRecovery); err != nil {
		return nil, err
	}
	return rec, nil
}

// RawApproval returns the guardian approval flag exactly as stored. Callers
// deciding approval state should use recovery.Coordinator.HasApproved, which
// voids flags on dead requests.
func (m *RecoveryModule) RawApproval(ctx context.Context, hash common.Hash, guardian common.Address) (bool, error) {
	out, err := m.contract.Call(ctx, MethodHasApproved, hash, guardian)
	if err != nil {
		return false, err
	}
	return outBool(out, 0, MethodHasApproved)
}
