package monitord

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"vaultguard/core/types"
	"vaultguard/observability"
)

// WalletSource is the read side of the multisig coordinator.
type WalletSource interface {
	Config(ctx context.Context) (*types.WalletConfig, error)
	PendingOperations(ctx context.Context) ([]*types.Operation, error)
}

// RecoverySource is the read side of the recovery coordinator.
type RecoverySource interface {
	Config(ctx context.Context) (*types.RecoveryConfig, error)
	PendingRecoveries(ctx context.Context) ([]*types.Recovery, error)
}

// OperationView renders a pending operation for the HTTP API.
type OperationView struct {
	Hash       common.Hash    `json:"hash"`
	To         common.Address `json:"to"`
	Value      string         `json:"value"`
	Data       hexutil.Bytes  `json:"data"`
	Proposer   common.Address `json:"proposer"`
	Approvals  uint64         `json:"approvals"`
	Threshold  uint64         `json:"threshold"`
	Executable bool           `json:"executable"`
	SelfCall   bool           `json:"self_call"`
	CreatedAt  time.Time      `json:"created_at"`
}

// RecoveryView renders a live recovery request.
type RecoveryView struct {
	Hash          common.Hash      `json:"hash"`
	NewOwners     []common.Address `json:"new_owners"`
	NewThreshold  uint64           `json:"new_threshold"`
	Approvals     uint64           `json:"approvals"`
	Threshold     uint64           `json:"threshold"`
	ExecutionTime time.Time        `json:"execution_time"`
	Unlocked      bool             `json:"unlocked"`
}

// Snapshot is the result of the last refresh. Fields from a failed refresh
// keep their previous values; Error names the failure.
type Snapshot struct {
	Wallet      *types.WalletConfig   `json:"wallet,omitempty"`
	Recovery    *types.RecoveryConfig `json:"recovery,omitempty"`
	Operations  []OperationView       `json:"operations"`
	Recoveries  []RecoveryView        `json:"recoveries"`
	RefreshedAt time.Time             `json:"refreshed_at"`
	Error       string                `json:"error,omitempty"`
}

// Monitor periodically reconciles the wallet and recovery module state.
type Monitor struct {
	wallet   WalletSource
	recovery RecoverySource
	interval time.Duration
	metrics  *observability.VaultMetrics
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.RWMutex
	snap Snapshot
}

// Option customises a Monitor.
type Option func(*Monitor)

// WithRecovery adds the guardian recovery module to each refresh.
func WithRecovery(src RecoverySource) Option {
	return func(m *Monitor) { m.recovery = src }
}

// WithInterval sets the refresh cadence.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithMetrics publishes pending gauges after each refresh.
func WithMetrics(metrics *observability.VaultMetrics) Option {
	return func(m *Monitor) { m.metrics = metrics }
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// WithClock overrides the time source used for time-lock checks.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor constructs a monitor over wallet.
func NewMonitor(wallet WalletSource, opts ...Option) *Monitor {
	m := &Monitor{
		wallet:   wallet,
		interval: 30 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With(slog.String("component", "monitord"))
	return m
}

// Snapshot returns the last refresh result.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Healthy reports whether the last refresh succeeded within two intervals.
func (m *Monitor) Healthy() bool {
	snap := m.Snapshot()
	if snap.Error != "" || snap.RefreshedAt.IsZero() {
		return false
	}
	return m.now().Sub(snap.RefreshedAt) <= 2*m.interval
}

// Run refreshes immediately and then on every interval until ctx ends.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		if err := m.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Warn("monitor refresh failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Refresh re-reads the ledger and replaces the snapshot.
func (m *Monitor) Refresh(ctx context.Context) error {
	next, err := m.collect(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.snap.Error = err.Error()
		return err
	}
	m.snap = next
	if m.metrics != nil {
		m.metrics.SetPending("operations", len(next.Operations))
		m.metrics.SetPending("recoveries", len(next.Recoveries))
	}
	m.logger.Debug("monitor refreshed",
		slog.Int("operations", len(next.Operations)),
		slog.Int("recoveries", len(next.Recoveries)))
	return nil
}

func (m *Monitor) collect(ctx context.Context) (Snapshot, error) {
	now := m.now()
	snap := Snapshot{RefreshedAt: now, Operations: []OperationView{}, Recoveries: []RecoveryView{}}

	cfg, err := m.wallet.Config(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Wallet = cfg
	ops, err := m.wallet.PendingOperations(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	for _, op := range ops {
		value := "0"
		if op.Value != nil {
			value = op.Value.String()
		}
		snap.Operations = append(snap.Operations, OperationView{
			Hash:       op.Hash,
			To:         op.To,
			Value:      value,
			Data:       op.Data,
			Proposer:   op.Proposer,
			Approvals:  op.Approvals,
			Threshold:  cfg.Threshold,
			Executable: op.Approvals >= cfg.Threshold,
			SelfCall:   op.SelfCall(cfg.Address),
			CreatedAt:  op.CreatedAt,
		})
	}

	if m.recovery == nil {
		return snap, nil
	}
	rcfg, err := m.recovery.Config(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Recovery = rcfg
	recs, err := m.recovery.PendingRecoveries(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	for _, rec := range recs {
		snap.Recoveries = append(snap.Recoveries, RecoveryView{
			Hash:          rec.Hash,
			NewOwners:     rec.NewOwners,
			NewThreshold:  rec.NewThreshold,
			Approvals:     rec.ApprovalCount,
			Threshold:     rcfg.Threshold,
			ExecutionTime: rec.ExecutionTime,
			Unlocked:      rec.Unlocked(now),
		})
	}
	return snap, nil
}
