package main

import (
	"fmt"
	"io"
	"strings"

	"vaultguard/cmd/internal/passphrase"
	"vaultguard/config"
	"vaultguard/crypto"
)

// keystoreParams is lowered in tests.
var keystoreParams = crypto.StandardScrypt

func runKeyCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "new":
		return runKeyNew(args[1:], stdout, stderr)
	case "address":
		return runKeyAddress(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown key subcommand: %s\n", args[0])
		return 1
	}
}

func runKeyNew(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("key new", stderr)
	var out, passEnv string
	fs.StringVar(&out, "out", "", "keystore file to create")
	fs.StringVar(&passEnv, "passphrase-env", config.DefaultPassphraseEnv, "environment variable holding the passphrase")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(out) == "" {
		return printUsageError(stderr, "--out is required")
	}
	pass, err := passphrase.NewSource(passEnv).Get()
	if err != nil {
		return printError(stderr, err)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, err)
	}
	if err := crypto.SaveToKeystoreWithParams(out, key, pass, keystoreParams); err != nil {
		return printError(stderr, err)
	}
	fmt.Fprintln(stdout, key.Address().Hex())
	return 0
}

func runKeyAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("key address", stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return printError(stderr, err)
	}
	if strings.TrimSpace(cfg.KeystorePath) == "" {
		return printUsageError(stderr, "KeystorePath is not configured")
	}
	pass, err := passphrase.NewSource(cfg.PassphraseEnv).Get()
	if err != nil {
		return printError(stderr, err)
	}
	key, err := crypto.LoadFromKeystore(cfg.KeystorePath, pass)
	if err != nil {
		return printError(stderr, err)
	}
	fmt.Fprintln(stdout, key.Address().Hex())
	return 0
}
