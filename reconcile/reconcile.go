// Package reconcile rebuilds client-side views from the ledger's event log.
// Notices are only hints about which hashes to look at; callers re-read the
// authoritative record of every candidate before trusting it.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/time/rate"

	"vaultguard/core/types"
	"vaultguard/ledger"
	"vaultguard/observability"
)

const (
	// DefaultWindow is the number of trailing blocks queried first.
	DefaultWindow uint64 = 5000
	// DefaultFallbackWindow is queried once when the first window is
	// rejected as too large.
	DefaultFallbackWindow uint64 = 2000
)

// Source is the log view of one contract. ledger.Contract satisfies it.
type Source interface {
	Address() common.Address
	ABI() *abi.ABI
	FilterLogs(ctx context.Context, q ledger.LogQuery) ([]gethtypes.Log, error)
	HeadBlock(ctx context.Context) (uint64, error)
}

// Notice is a decoded log entry.
type Notice struct {
	Event       string
	Hash        common.Hash
	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint
	Fields      map[string]any
}

// Before orders notices by position in the log.
func (n Notice) Before(other Notice) bool {
	if n.BlockNumber != other.BlockNumber {
		return n.BlockNumber < other.BlockNumber
	}
	return n.LogIndex < other.LogIndex
}

// Reconciler queries trailing log windows, narrowing once when the remote
// rejects the window size.
type Reconciler struct {
	window   uint64
	fallback uint64
	limiter  *rate.Limiter
	logger   *slog.Logger
	metrics  *observability.VaultMetrics
}

// Option customises a Reconciler.
type Option func(*Reconciler)

// WithWindows overrides the primary and fallback window sizes.
func WithWindows(primary, fallback uint64) Option {
	return func(r *Reconciler) {
		if primary > 0 {
			r.window = primary
		}
		if fallback > 0 {
			r.fallback = fallback
		}
	}
}

// WithRateLimit paces log queries so provider throttling is not confused
// with range rejections. A non-positive qps disables pacing.
func WithRateLimit(qps float64, burst int) Option {
	return func(r *Reconciler) {
		if qps <= 0 {
			r.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(qps), burst)
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records query outcomes.
func WithMetrics(metrics *observability.VaultMetrics) Option {
	return func(r *Reconciler) { r.metrics = metrics }
}

// New returns a reconciler with the default windows.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{
		window:   DefaultWindow,
		fallback: DefaultFallbackWindow,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.fallback > r.window {
		r.fallback = r.window
	}
	return r
}

// Windows returns the primary and fallback window sizes.
func (r *Reconciler) Windows() (uint64, uint64) { return r.window, r.fallback }

// Scan returns the notices of event emitted by src within the trailing
// window. When every window is rejected as too large the result is empty and
// no error is returned; other query failures propagate.
func (r *Reconciler) Scan(ctx context.Context, src Source, event string, topics [][]common.Hash) ([]Notice, error) {
	def, ok := src.ABI().Events[event]
	if !ok {
		return nil, fmt.Errorf("reconcile: unknown event %q", event)
	}
	head, err := src.HeadBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: head block: %w", err)
	}
	windows := []uint64{r.window}
	if r.fallback > 0 && r.fallback < r.window {
		windows = append(windows, r.fallback)
	}
	for attempt, window := range windows {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		q := ledger.LogQuery{Event: event, Topics: topics, FromBlock: windowStart(head, window), ToBlock: head}
		logs, err := src.FilterLogs(ctx, q)
		if err == nil {
			r.metrics.RecordLogQuery(event, window, "ok")
			notices := decode(def, logs)
			observability.Events().RecordNotices(event, len(notices))
			return notices, nil
		}
		if !ledger.IsRangeTooLarge(err) {
			r.metrics.RecordLogQuery(event, window, "error")
			return nil, fmt.Errorf("reconcile: query %s: %w", event, err)
		}
		r.metrics.RecordLogQuery(event, window, "range_too_large")
		r.logger.Warn("log window rejected as too large",
			slog.String("event", event),
			slog.Uint64("window", window),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err))
	}
	r.logger.Warn("log windows exhausted, returning empty result",
		slog.String("event", event),
		slog.Uint64("head", head))
	return nil, nil
}

// Candidates scans every event and returns the distinct hashes they name,
// most recently seen first.
func (r *Reconciler) Candidates(ctx context.Context, src Source, events ...string) ([]common.Hash, error) {
	var all []Notice
	for _, event := range events {
		notices, err := r.Scan(ctx, src, event, nil)
		if err != nil {
			return nil, err
		}
		all = append(all, notices...)
	}
	return Dedup(all), nil
}

// Dedup returns the distinct hashes named by notices, newest first. Hashes
// are compared case-insensitively by their hex form.
func Dedup(notices []Notice) []common.Hash {
	sorted := append([]Notice(nil), notices...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[j].Before(sorted[i]) })
	seen := make(map[string]struct{}, len(sorted))
	out := make([]common.Hash, 0, len(sorted))
	for _, n := range sorted {
		key := strings.ToLower(n.Hash.Hex())
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n.Hash)
	}
	return out
}

// Resolve fetches the authoritative record of every hash and keeps those
// accepted by keep. Records are returned in the order of hashes.
func Resolve[T any](ctx context.Context, hashes []common.Hash, fetch func(context.Context, common.Hash) (T, error), keep func(T) bool) ([]T, error) {
	out := make([]T, 0, len(hashes))
	for _, hash := range hashes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := fetch(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("reconcile: fetch %s: %w", hash.Hex(), err)
		}
		if keep == nil || keep(record) {
			out = append(out, record)
		}
	}
	return out, nil
}

// Timeline returns the notices naming hash across events, oldest first.
func (r *Reconciler) Timeline(ctx context.Context, src Source, hash common.Hash, events ...string) ([]types.Event, error) {
	var all []Notice
	for _, event := range events {
		notices, err := r.Scan(ctx, src, event, [][]common.Hash{{hash}})
		if err != nil {
			return nil, err
		}
		all = append(all, notices...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Before(all[j]) })
	out := make([]types.Event, 0, len(all))
	for _, n := range all {
		out = append(out, types.Event{
			Type:        n.Event,
			Hash:        n.Hash,
			TxHash:      n.TxHash,
			BlockNumber: n.BlockNumber,
			LogIndex:    n.LogIndex,
			Attributes:  attributes(n.Fields),
		})
	}
	return out, nil
}

func windowStart(head, window uint64) uint64 {
	if window == 0 || head+1 <= window {
		return 0
	}
	return head - window + 1
}

func decode(def abi.Event, logs []gethtypes.Log) []Notice {
	indexed := make(abi.Arguments, 0, len(def.Inputs))
	for _, arg := range def.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	out := make([]Notice, 0, len(logs))
	for _, log := range logs {
		if len(log.Topics) < 2 || log.Topics[0] != def.ID || log.Removed {
			continue
		}
		fields := make(map[string]any)
		if err := abi.ParseTopicsIntoMap(fields, indexed, log.Topics[1:]); err != nil {
			fields = map[string]any{}
		}
		if len(log.Data) > 0 {
			if values, err := def.Inputs.NonIndexed().Unpack(log.Data); err == nil {
				for i, arg := range def.Inputs.NonIndexed() {
					fields[arg.Name] = values[i]
				}
			}
		}
		out = append(out, Notice{
			Event:       def.Name,
			Hash:        log.Topics[1],
			TxHash:      log.TxHash,
			BlockNumber: log.BlockNumber,
			LogIndex:    log.Index,
			Fields:      fields,
		})
	}
	return out
}

func attributes(fields map[string]any) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(fields))
	for key, value := range fields {
		out[key] = formatField(value)
	}
	return out
}

func formatField(value any) string {
	switch v := value.(type) {
	case common.Address:
		return v.Hex()
	case []common.Address:
		parts := make([]string, len(v))
		for i, a := range v {
			parts[i] = a.Hex()
		}
		return strings.Join(parts, ",")
	case common.Hash:
		return v.Hex()
	case [32]byte:
		return common.Hash(v).Hex()
	case *big.Int:
		return v.String()
	case []byte:
		return "0x" + common.Bytes2Hex(v)
	default:
		return fmt.Sprint(v)
	}
}
