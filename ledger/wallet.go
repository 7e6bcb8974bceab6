package ledger

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"vaultguard/core/types"
)

// Wallet is the typed view over the multisig wallet contract.
type Wallet struct {
	contract Contract
}

// NewWallet wraps contract, which must be bound to the wallet interface.
func NewWallet(contract Contract) *Wallet {
	return &Wallet{contract: contract}
}

// Contract returns the underlying binding.
func (w *Wallet) Contract() Contract { return w.contract }

// Address returns the wallet address.
func (w *Wallet) Address() common.Address { return w.contract.Address() }

// Caller returns the identity submissions are signed as.
func (w *Wallet) Caller() common.Address { return w.contract.From() }

// Owners returns the current owner set.
func (w *Wallet) Owners(ctx context.Context) ([]common.Address, error) {
	out, err := w.contract.Call(ctx, MethodGetOwners)
	if err != nil {
		return nil, err
	}
	return outAddresses(out, 0, MethodGetOwners)
}

// Threshold returns the number of approvals required for execution.
func (w *Wallet) Threshold(ctx context.Context) (uint64, error) {
	out, err := w.contract.Call(ctx, MethodThreshold)
	if err != nil {
		return 0, err
	}
	return outUint64(out, 0, MethodThreshold)
}

// IsOwner reports whether addr is currently an owner.
func (w *Wallet) IsOwner(ctx context.Context, addr common.Address) (bool, error) {
	out, err := w.contract.Call(ctx, MethodIsOwner, addr)
	if err != nil {
		return false, err
	}
	return outBool(out, 0, MethodIsOwner)
}

// Nonce returns the wallet sequence number used in operation hashes.
func (w *Wallet) Nonce(ctx context.Context) (*big.Int, error) {
	out, err := w.contract.Call(ctx, MethodNonce)
	if err != nil {
		return nil, err
	}
	return outBig(out, 0, MethodNonce)
}

// TransactionHash asks the ledger to derive the operation hash.
func (w *Wallet) TransactionHash(ctx context.Context, to common.Address, value *big.Int, data []byte, nonce *big.Int) (common.Hash, error) {
	out, err := w.contract.Call(ctx, MethodGetTransactionHash, to, nonNil(value), nonNilBytes(data), nonNil(nonce))
	if err != nil {
		return common.Hash{}, err
	}
	return outHash(out, 0, MethodGetTransactionHash)
}

// Operation fetches the authoritative record at hash. A missing record is
// returned with a zero proposer; see types.Operation.Exists.
func (w *Wallet) Operation(ctx context.Context, hash common.Hash) (*types.Operation, error) {
	out, err := w.contract.Call(ctx, MethodGetTransaction, hash)
	if err != nil {
		return nil, err
	}
	op := &types.Operation{Hash: hash}
	if op.To, err = outAddress(out, 0, MethodGetTransaction); err != nil {
		return nil, err
	}
	if op.Value, err = outBig(out, 1, MethodGetTransaction); err != nil {
		return nil, err
	}
	if op.Data, err = outBytes(out, 2, MethodGetTransaction); err != nil {
		return nil, err
	}
	if op.Proposer, err = outAddress(out, 3, MethodGetTransaction); err != nil {
		return nil, err
	}
	if op.Approvals, err = outUint64(out, 4, MethodGetTransaction); err != nil {
		return nil, err
	}
	created, err := outUint64(out, 5, MethodGetTransaction)
	if err != nil {
		return nil, err
	}
	if created > 0 {
		op.CreatedAt = time.Unix(int64(created), 0).UTC()
	}
	if op.Executed, err = outBool(out, 6, MethodGetTransaction); err != nil {
		return nil, err
	}
	if op.Cancelled, err = outBool(out, 7, MethodGetTransaction); err != nil {
		return nil, err
	}
	return op, nil
}

// IsApproved reports the raw approval flag for owner on hash.
func (w *Wallet) IsApproved(ctx context.Context, hash common.Hash, owner common.Address) (bool, error) {
	out, err := w.contract.Call(ctx, MethodIsApproved, hash, owner)
	if err != nil {
		return false, err
	}
	return outBool(out, 0, MethodIsApproved)
}

// Approvers returns the per-owner approval map for hash across owners.
func (w *Wallet) Approvers(ctx context.Context, hash common.Hash, owners []common.Address) (map[common.Address]bool, error) {
	approved := make(map[common.Address]bool, len(owners))
	for _, owner := range owners {
		ok, err := w.IsApproved(ctx, hash, owner)
		if err != nil {
			return nil, err
		}
		approved[owner] = ok
	}
	return approved, nil
}

// IsModuleEnabled reports whether module may act on the wallet.
func (w *Wallet) IsModuleEnabled(ctx context.Context, module common.Address) (bool, error) {
	out, err := w.contract.Call(ctx, MethodIsModuleEnabled, module)
	if err != nil {
		return false, err
	}
	return outBool(out, 0, MethodIsModuleEnabled)
}

// Modules returns the enabled capability modules.
func (w *Wallet) Modules(ctx context.Context) ([]common.Address, error) {
	out, err := w.contract.Call(ctx, MethodGetModules)
	if err != nil {
		return nil, err
	}
	return outAddresses(out, 0, MethodGetModules)
}

// Config fetches a fresh governance snapshot.
func (w *Wallet) Config(ctx context.Context) (*types.WalletConfig, error) {
	owners, err := w.Owners(ctx)
	if err != nil {
		return nil, err
	}
	threshold, err := w.Threshold(ctx)
	if err != nil {
		return nil, err
	}
	modules, err := w.Modules(ctx)
	if err != nil {
		return nil, err
	}
	return &types.WalletConfig{
		Address:   w.Address(),
		Owners:    owners,
		Threshold: threshold,
		Modules:   modules,
	}, nil
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func nonNilBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
