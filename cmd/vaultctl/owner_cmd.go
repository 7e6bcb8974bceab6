package main

import (
	"context"
	"fmt"
	"io"

	"vaultguard/multisig"
)

func runOwnerCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	sub, rest := args[0], args[1:]

	var (
		propose func(ctx context.Context, m *multisig.Coordinator) (*multisig.ProposeResult, error)
		want    = 1
	)
	if sub == "replace" {
		want = 2
	}
	if len(rest) != want {
		return printUsageError(stderr, fmt.Sprintf("owner %s takes %d argument(s)", sub, want))
	}

	switch sub {
	case "add", "remove", "enable-module", "disable-module":
		addr, err := parseAddress("address", rest[0])
		if err != nil {
			return printUsageError(stderr, err.Error())
		}
		propose = func(ctx context.Context, m *multisig.Coordinator) (*multisig.ProposeResult, error) {
			switch sub {
			case "add":
				return m.ProposeAddOwner(ctx, addr)
			case "remove":
				return m.ProposeRemoveOwner(ctx, addr)
			case "enable-module":
				return m.ProposeEnableModule(ctx, addr)
			default:
				return m.ProposeDisableModule(ctx, addr)
			}
		}
	case "replace":
		oldOwner, err := parseAddress("old owner", rest[0])
		if err != nil {
			return printUsageError(stderr, err.Error())
		}
		newOwner, err := parseAddress("new owner", rest[1])
		if err != nil {
			return printUsageError(stderr, err.Error())
		}
		propose = func(ctx context.Context, m *multisig.Coordinator) (*multisig.ProposeResult, error) {
			return m.ProposeReplaceOwner(ctx, oldOwner, newOwner)
		}
	case "threshold":
		threshold, err := parseUint("threshold", rest[0])
		if err != nil {
			return printUsageError(stderr, err.Error())
		}
		propose = func(ctx context.Context, m *multisig.Coordinator) (*multisig.ProposeResult, error) {
			return m.ProposeChangeThreshold(ctx, threshold)
		}
	default:
		fmt.Fprintf(stderr, "Unknown owner subcommand: %s\n", sub)
		return 1
	}

	ctx, cancel := commandContext()
	defer cancel()
	s, err := openSession(ctx, true)
	if err != nil {
		return printError(stderr, err)
	}
	defer s.Close()
	res, err := propose(ctx, s.multisig)
	if err != nil {
		return printError(stderr, err)
	}
	return printJSON(stdout, proposeOutput(res.Hash, res.TxHash, res.Operation, res.Reused, string(res.Strategy)))
}
