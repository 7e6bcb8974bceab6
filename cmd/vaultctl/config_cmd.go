package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"

	"vaultguard/config"
)

func runConfigCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "init":
		return runConfigInit(args[1:], stdout, stderr)
	case "show":
		return runConfigShow(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown config subcommand: %s\n", args[0])
		return 1
	}
}

func runConfigInit(args []string, stdout, stderr io.Writer) int {
	flags := newFlagSet("config init", stderr)
	cfg := config.Default()
	var force bool
	flags.BoolVar(&force, "force", false, "overwrite an existing file")
	flags.StringVar(&cfg.RPCURL, "rpc", cfg.RPCURL, "JSON-RPC endpoint")
	flags.Uint64Var(&cfg.ChainID, "chain-id", cfg.ChainID, "expected chain identifier")
	flags.StringVar(&cfg.WalletAddress, "wallet", "", "multisig wallet address")
	flags.StringVar(&cfg.RecoveryModuleAddress, "module", "", "recovery module address")
	flags.StringVar(&cfg.KeystorePath, "keystore", "", "signing keystore path")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if flags.NArg() > 0 {
		return printUsageError(stderr, "unexpected positional arguments")
	}
	if err := cfg.Validate(); err != nil {
		return printUsageError(stderr, err.Error())
	}
	if _, err := os.Stat(configPath); err == nil && !force {
		return printUsageError(stderr, fmt.Sprintf("%s already exists; pass --force to overwrite", configPath))
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return printError(stderr, err)
	}
	if err := config.Write(configPath, cfg); err != nil {
		return printError(stderr, err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", configPath)
	return 0
}

func runConfigShow(args []string, stdout, stderr io.Writer) int {
	flags := newFlagSet("config show", stderr)
	if err := flags.Parse(args); err != nil {
		return 1
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return printError(stderr, err)
	}
	if err := toml.NewEncoder(stdout).Encode(cfg); err != nil {
		return printError(stderr, err)
	}
	return 0
}
