package main

import (
	"context"
	"fmt"
	"os"

	"vaultguard/cmd/internal/client"
	"vaultguard/cmd/internal/passphrase"
	"vaultguard/config"
	"vaultguard/ledger"
	"vaultguard/multisig"
	"vaultguard/observability/logging"
	telemetry "vaultguard/observability/otel"
	"vaultguard/recovery"
)

type session struct {
	multisig *multisig.Coordinator
	recovery *recovery.Coordinator
	close    func()
}

func (s *session) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}

func (s *session) requireRecovery() error {
	if s.recovery == nil {
		return fmt.Errorf("RecoveryModuleAddress is not configured")
	}
	return nil
}

// openSession builds coordinators for one command. signing selects whether
// the keystore is unlocked.
var openSession = dialSession

func dialSession(ctx context.Context, signing bool) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := logging.SetLevel(cfg.Log.Level); err != nil {
		return nil, err
	}
	logger := logging.SetupTo(os.Stderr, "vaultctl", cfg.Log.Env, cfg.Log.File)

	shutdownTelemetry, err := telemetry.Init(ctx, client.TelemetryConfig(cfg, "vaultctl"))
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var signer *ledger.Signer
	if signing {
		signer, err = client.LoadSigner(cfg, passphrase.NewSource(cfg.PassphraseEnv), logger)
		if err != nil {
			_ = shutdownTelemetry(context.Background())
			return nil, err
		}
	}
	c, err := client.Open(ctx, cfg, signer, logger)
	if err != nil {
		_ = shutdownTelemetry(context.Background())
		return nil, err
	}
	return &session{
		multisig: c.Multisig,
		recovery: c.Recovery,
		close: func() {
			c.Close()
			_ = shutdownTelemetry(context.Background())
		},
	}, nil
}
