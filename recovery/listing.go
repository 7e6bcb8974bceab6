package recovery

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	coreerrors "vaultguard/core/errors"
	"vaultguard/core/types"
	"vaultguard/ledger"
	"vaultguard/reconcile"
)

var historyEvents = []string{
	ledger.EventRecoveryInitiated,
	ledger.EventRecoveryApproved,
	ledger.EventRecoveryExecuted,
	ledger.EventRecoveryCancelled,
}

// Recovery returns the authoritative record of hash. Cancelled requests are
// returned with a zero execution time.
func (c *Coordinator) Recovery(ctx context.Context, hash common.Hash) (rec *types.Recovery, err error) {
	const op = "recovery"
	ctx, finish := c.start(ctx, op, attribute.String("hash", hash.Hex()))
	defer finish(&err)
	rec, err = c.module.Recovery(ctx, hash)
	if err != nil {
		return nil, unavailable(op, err, "recovery")
	}
	if rec.Wallet == (common.Address{}) {
		return nil, coreerrors.New(coreerrors.KindNotFound, op, "recovery %s not found", hash.Hex()).WithHash(hash)
	}
	return rec, nil
}

// PendingRecoveries lists live requests against the wallet, newest first.
func (c *Coordinator) PendingRecoveries(ctx context.Context) (out []*types.Recovery, err error) {
	const op = "pending_recoveries"
	ctx, finish := c.start(ctx, op)
	defer finish(&err)
	wallet := c.wallet.Address()
	// RecoveryInitiated indexes recoveryHash, wallet, initiator.
	topics := [][]common.Hash{nil, {common.BytesToHash(wallet.Bytes())}}
	notices, err := c.reconciler.Scan(ctx, c.module.Contract(), ledger.EventRecoveryInitiated, topics)
	if err != nil {
		return nil, unavailable(op, err, "event log")
	}
	out, err = reconcile.Resolve(ctx, reconcile.Dedup(notices), c.module.Recovery, func(r *types.Recovery) bool {
		return r.Live() && r.Wallet == wallet
	})
	if err != nil {
		return nil, unavailable(op, err, "recoveries")
	}
	return out, nil
}

// History returns the notices naming hash within the log window, oldest
// first.
func (c *Coordinator) History(ctx context.Context, hash common.Hash) (timeline []types.Event, err error) {
	const op = "history"
	ctx, finish := c.start(ctx, op, attribute.String("hash", hash.Hex()))
	defer finish(&err)
	timeline, err = c.reconciler.Timeline(ctx, c.module.Contract(), hash, historyEvents...)
	if err != nil {
		return nil, unavailable(op, err, "event log")
	}
	return timeline, nil
}
