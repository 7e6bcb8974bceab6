// Package client wires configuration into ledger bindings and coordinators
// for the command line tools.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"vaultguard/cmd/internal/passphrase"
	"vaultguard/config"
	"vaultguard/crypto"
	"vaultguard/errdecode"
	"vaultguard/gas"
	"vaultguard/ledger"
	"vaultguard/multisig"
	"vaultguard/observability"
	"vaultguard/observability/logging"
	telemetry "vaultguard/observability/otel"
	"vaultguard/reconcile"
	"vaultguard/recovery"
)

// Client holds the coordinators bound to one RPC connection.
type Client struct {
	Multisig *multisig.Coordinator
	// Recovery is nil when no recovery module is configured.
	Recovery *recovery.Coordinator

	close func()
}

// Close releases the RPC connection.
func (c *Client) Close() {
	if c != nil && c.close != nil {
		c.close()
	}
}

// Open dials cfg.RPCURL, checks the chain identifier and binds the wallet and
// recovery module. A nil signer yields a read-only client.
func Open(ctx context.Context, cfg *config.Config, signer *ledger.Signer, logger *slog.Logger) (*Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := logging.RedactEndpoint(cfg.RPCURL)
	backend, err := ledger.Dial(dialCtx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	chainID, err := backend.ChainID(dialCtx)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	if chainID.Uint64() != cfg.ChainID {
		backend.Close()
		return nil, fmt.Errorf("endpoint reports chain %s, config expects %d", chainID, cfg.ChainID)
	}
	c, err := Bind(cfg, backend, signer, logger)
	if err != nil {
		backend.Close()
		return nil, err
	}
	c.close = backend.Close
	logger.Info("ledger connected",
		logging.EndpointField("rpc", cfg.RPCURL),
		slog.Uint64("chain_id", cfg.ChainID),
		slog.String("wallet", cfg.Wallet().Hex()))
	return c, nil
}

// Bind builds coordinators over an existing backend.
func Bind(cfg *config.Config, backend ledger.Backend, signer *ledger.Signer, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	presets := gas.DefaultPresets()
	if path := strings.TrimSpace(cfg.GasPresetsFile); path != "" {
		loaded, err := gas.LoadPresets(path)
		if err != nil {
			return nil, err
		}
		presets = loaded
	}
	metrics := observability.Vault()
	decoder := errdecode.New(ledger.WalletABI(), ledger.RecoveryModuleABI())
	policy := gas.NewPolicy(
		gas.WithPresets(presets),
		gas.WithDecoder(decoder),
		gas.WithMetrics(metrics),
		gas.WithLogger(logger))
	reconciler := reconcile.New(
		reconcile.WithWindows(cfg.Logs.Window, cfg.Logs.FallbackWindow),
		reconcile.WithRateLimit(cfg.Logs.QueriesPerSecond, cfg.Logs.Burst),
		reconcile.WithLogger(logger),
		reconcile.WithMetrics(metrics))

	opts := []ledger.BindOption{ledger.WithConfirmation(cfg.Confirm.PollInterval.Duration, cfg.Confirm.Timeout.Duration)}
	if signer != nil {
		opts = append(opts, ledger.WithSigner(signer))
	}
	wallet := ledger.NewBoundContract(cfg.Wallet(), ledger.WalletABI(), backend, opts...)

	c := &Client{}
	c.Multisig = multisig.New(wallet,
		multisig.WithGasPolicy(policy),
		multisig.WithDecoder(decoder),
		multisig.WithReconciler(reconciler),
		multisig.WithLogger(logger),
		multisig.WithMetrics(metrics))
	if module := cfg.RecoveryModule(); module != (common.Address{}) {
		c.Recovery = recovery.New(
			ledger.NewBoundContract(module, ledger.RecoveryModuleABI(), backend, opts...),
			wallet,
			recovery.WithMultisig(c.Multisig),
			recovery.WithGasPolicy(policy),
			recovery.WithDecoder(decoder),
			recovery.WithReconciler(reconciler),
			recovery.WithLogger(logger),
			recovery.WithMetrics(metrics))
	}
	return c, nil
}

// LoadSigner decrypts cfg.KeystorePath with the passphrase from src.
func LoadSigner(cfg *config.Config, src *passphrase.Source, logger *slog.Logger) (*ledger.Signer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	path := strings.TrimSpace(cfg.KeystorePath)
	if path == "" {
		return nil, fmt.Errorf("KeystorePath is not configured")
	}
	pass, err := src.Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("load keystore %s: %w", path, err)
	}
	signer, err := ledger.NewSigner(key.PrivateKey, new(big.Int).SetUint64(cfg.ChainID))
	if err != nil {
		return nil, err
	}
	logger.Info("keystore unlocked",
		logging.MaskField("keystore", path),
		slog.String("signer", signer.Address().Hex()))
	return signer, nil
}

// TelemetryConfig maps the [Telemetry] section onto exporter settings. An
// empty endpoint defers to the OTLP environment variables.
func TelemetryConfig(cfg *config.Config, service string) telemetry.Config {
	out := telemetry.FromEnv(service, cfg.Log.Env)
	t := cfg.Telemetry
	if endpoint := strings.TrimSpace(t.Endpoint); endpoint != "" {
		out.Endpoint = endpoint
		out.Insecure = t.Insecure
		out.Headers = telemetry.ParseHeaders(t.Headers)
	}
	if t.SampleRatio > 0 {
		out.SampleRatio = t.SampleRatio
	}
	out.Traces = t.Traces
	out.Metrics = t.Metrics
	return out
}
