package multisig

import (
	"context"
	stderrors "errors"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "vaultguard/core/errors"
	"vaultguard/core/types"
	"vaultguard/ledger"
)

// ValidateSelfCall checks that executing a wallet governance payload against
// cfg would keep the owner set and threshold consistent.
func ValidateSelfCall(cfg *types.WalletConfig, data []byte) error {
	return validateSelfCall("validate_self_call", cfg, data)
}

func validateSelfCall(op string, cfg *types.WalletConfig, data []byte) error {
	call, err := ledger.DecodeSelfCall(data)
	if err != nil {
		if stderrors.Is(err, ledger.ErrUnknownSelfCall) {
			return coreerrors.Wrap(coreerrors.KindInvalidArgument, op, err, "payload targeting the wallet is not a governance call")
		}
		return coreerrors.Wrap(coreerrors.KindInvalidArgument, op, err, "decode governance payload")
	}
	owners := uint64(len(cfg.Owners))
	violation := func(format string, args ...any) error {
		return coreerrors.New(coreerrors.KindWouldViolateInvariant, op, format, args...)
	}
	switch call.Method {
	case ledger.MethodAddOwner:
		if err := checkNewOwner(cfg, call.Owner); err != nil {
			return violation("%s", err)
		}
	case ledger.MethodRemoveOwner:
		if !cfg.IsOwner(call.Owner) {
			return violation("%s is not an owner", call.Owner.Hex())
		}
		if owners-1 < cfg.Threshold {
			return violation("removing %s leaves %d owners, below threshold %d", call.Owner.Hex(), owners-1, cfg.Threshold)
		}
	case ledger.MethodReplaceOwner:
		if !cfg.IsOwner(call.Owner) {
			return violation("%s is not an owner", call.Owner.Hex())
		}
		if err := checkNewOwner(cfg, call.NewOwner); err != nil {
			return violation("%s", err)
		}
	case ledger.MethodChangeThreshold:
		if call.Threshold == 0 || call.Threshold > owners {
			return violation("threshold %d outside [1, %d]", call.Threshold, owners)
		}
	case ledger.MethodEnableModule:
		if call.Module == (common.Address{}) || call.Module == cfg.Address {
			return violation("invalid module %s", call.Module.Hex())
		}
		if cfg.ModuleEnabled(call.Module) {
			return violation("module %s already enabled", call.Module.Hex())
		}
	case ledger.MethodDisableModule:
		if !cfg.ModuleEnabled(call.Module) {
			return violation("module %s is not enabled", call.Module.Hex())
		}
	}
	return nil
}

type ownerError string

func (e ownerError) Error() string { return string(e) }

func checkNewOwner(cfg *types.WalletConfig, owner common.Address) error {
	switch {
	case owner == (common.Address{}):
		return ownerError("owner must not be the zero address")
	case owner == cfg.Address:
		return ownerError("wallet cannot own itself")
	case cfg.IsOwner(owner):
		return ownerError(owner.Hex() + " is already an owner")
	}
	return nil
}

func (c *Coordinator) proposeSelfCall(ctx context.Context, op string, data []byte, encErr error) (*ProposeResult, error) {
	if encErr != nil {
		return nil, coreerrors.Wrap(coreerrors.KindInvalidArgument, op, encErr, "encode governance payload")
	}
	return c.Propose(ctx, c.wallet.Address(), nil, data)
}

// ProposeAddOwner proposes adding owner.
func (c *Coordinator) ProposeAddOwner(ctx context.Context, owner common.Address) (*ProposeResult, error) {
	data, err := ledger.EncodeAddOwner(owner)
	return c.proposeSelfCall(ctx, "propose_add_owner", data, err)
}

// ProposeRemoveOwner proposes removing owner. It fails before submission
// when the remaining owners would fall below the threshold.
func (c *Coordinator) ProposeRemoveOwner(ctx context.Context, owner common.Address) (*ProposeResult, error) {
	data, err := ledger.EncodeRemoveOwner(owner)
	return c.proposeSelfCall(ctx, "propose_remove_owner", data, err)
}

// ProposeReplaceOwner proposes swapping oldOwner for newOwner.
func (c *Coordinator) ProposeReplaceOwner(ctx context.Context, oldOwner, newOwner common.Address) (*ProposeResult, error) {
	data, err := ledger.EncodeReplaceOwner(oldOwner, newOwner)
	return c.proposeSelfCall(ctx, "propose_replace_owner", data, err)
}

// ProposeChangeThreshold proposes a new approval threshold.
func (c *Coordinator) ProposeChangeThreshold(ctx context.Context, threshold uint64) (*ProposeResult, error) {
	data, err := ledger.EncodeChangeThreshold(threshold)
	return c.proposeSelfCall(ctx, "propose_change_threshold", data, err)
}

// ProposeEnableModule proposes enabling a capability module.
func (c *Coordinator) ProposeEnableModule(ctx context.Context, module common.Address) (*ProposeResult, error) {
	data, err := ledger.EncodeEnableModule(module)
	return c.proposeSelfCall(ctx, "propose_enable_module", data, err)
}

// ProposeDisableModule proposes disabling a capability module.
func (c *Coordinator) ProposeDisableModule(ctx context.Context, module common.Address) (*ProposeResult, error) {
	data, err := ledger.EncodeDisableModule(module)
	return c.proposeSelfCall(ctx, "propose_disable_module", data, err)
}
