package recovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	coreerrors "vaultguard/core/errors"
	"vaultguard/core/types"
	"vaultguard/ledger"
	"vaultguard/multisig"
)

// MinPeriodDays is the shortest accepted recovery time-lock.
const MinPeriodDays = 1

// SetupConfig proposes a guardian configuration as a multisig operation
// targeting the recovery module. The configuration takes effect only once
// the owners approve and execute it.
func (c *Coordinator) SetupConfig(ctx context.Context, guardians []common.Address, threshold uint64, periodDays uint64) (res *multisig.ProposeResult, err error) {
	const op = "setup_config"
	ctx, finish := c.start(ctx, op, attribute.Int("guardians", len(guardians)))
	defer finish(&err)

	if err := validateOwnerSet(op, "guardian", c.wallet.Address(), guardians, threshold); err != nil {
		return nil, err
	}
	if periodDays < MinPeriodDays {
		return nil, coreerrors.New(coreerrors.KindInvalidArgument, op, "recovery period must be at least %d day", MinPeriodDays)
	}
	period := time.Duration(periodDays) * 24 * time.Hour
	data, err := ledger.EncodeSetupRecovery(guardians, threshold, uint64(period/time.Second))
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindInvalidArgument, op, err, "encode guardian setup")
	}
	enabled, err := c.wallet.IsModuleEnabled(ctx, c.module.Address())
	if err != nil {
		return nil, unavailable(op, err, "module status")
	}
	if !enabled {
		c.logger.Warn("recovery module is not enabled on the wallet, configured guardians cannot execute until it is",
			slog.String("module", c.module.Address().Hex()))
	}
	res, err = c.multisig.Propose(ctx, c.module.Address(), nil, data)
	if err != nil {
		return nil, err
	}
	c.logger.Info("guardian setup proposed",
		slog.String("hash", res.Hash.Hex()),
		slog.Int("guardians", len(guardians)),
		slog.Uint64("threshold", threshold),
		slog.Duration("period", period))
	return res, nil
}

// Config returns the guardian configuration registered for the wallet.
func (c *Coordinator) Config(ctx context.Context) (cfg *types.RecoveryConfig, err error) {
	const op = "config"
	ctx, finish := c.start(ctx, op)
	defer finish(&err)
	cfg, err = c.module.Config(ctx)
	if err != nil {
		return nil, unavailable(op, err, "recovery config")
	}
	return cfg, nil
}
