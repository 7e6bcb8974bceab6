package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

var (
	configPath     = defaultConfigPath()
	commandTimeout = 5 * time.Minute
)

func defaultConfigPath() string {
	if value := strings.TrimSpace(os.Getenv("VAULT_CONFIG")); value != "" {
		return value
	}
	return "vault.toml"
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args, stderr)
	if err != nil {
		return 1
	}
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}

	switch args[0] {
	case "config":
		return runConfigCommand(args[1:], stdout, stderr)
	case "key":
		return runKeyCommand(args[1:], stdout, stderr)
	case "propose":
		return runPropose(args[1:], stdout, stderr)
	case "approve":
		return runApprove(args[1:], stdout, stderr)
	case "revoke":
		return runRevoke(args[1:], stdout, stderr)
	case "cancel":
		return runCancel(args[1:], stdout, stderr)
	case "execute":
		return runExecute(args[1:], stdout, stderr)
	case "approve-execute":
		return runApproveExecute(args[1:], stdout, stderr)
	case "pending":
		return runPending(args[1:], stdout, stderr)
	case "show":
		return runShow(args[1:], stdout, stderr)
	case "history":
		return runHistory(args[1:], stdout, stderr)
	case "owner":
		return runOwnerCommand(args[1:], stdout, stderr)
	case "recovery":
		return runRecoveryCommand(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func applyGlobalFlags(args []string, stderr io.Writer) ([]string, error) {
	fs := flag.NewFlagSet("vaultctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&configPath, "config", defaultConfigPath(), "path to vault client configuration")
	fs.DurationVar(&commandTimeout, "timeout", 5*time.Minute, "overall deadline for one command")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs.Args(), nil
}

// commandContext bounds a command by --timeout and cancels on SIGINT.
func commandContext() (context.Context, context.CancelFunc) {
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(sigCtx, commandTimeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func usage() string {
	return strings.TrimSpace(`
Usage: vaultctl [--config path] [--timeout 5m] <command> [flags]

Configuration:
  config init [--force] [--rpc url] [--chain-id n] [--wallet addr] [--module addr] [--keystore path]
  config show
  key new --out path
  key address

Operations:
  propose --to addr [--value wei] [--data 0x...] [--watch]
  approve <hash>
  revoke <hash>
  cancel <hash>
  execute <hash>
  approve-execute <hash>
  pending [--state pending|executable|executed|cancelled]
  show <hash>
  history <hash>

Owner management (proposed as wallet operations):
  owner add <addr>
  owner remove <addr>
  owner replace <old> <new>
  owner threshold <n>
  owner enable-module <addr>
  owner disable-module <addr>

Guardian recovery:
  recovery setup --guardians a,b,c --threshold n --period-days d
  recovery initiate --owners a,b --threshold n [--watch]
  recovery approve <hash>
  recovery execute <hash>
  recovery cancel <hash>
  recovery pending
  recovery show <hash>
  recovery history <hash>
  recovery config`)
}
