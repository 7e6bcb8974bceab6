package main

import (
	"context"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"

	"vaultguard/core/events"
	"vaultguard/core/types"
)

// watch prints progress reports to stderr until the flow returns.
func watch[T any](ctx context.Context, stream *events.Stream[T], stderr io.Writer) (T, error) {
	for p := range stream.Events() {
		line := fmt.Sprintf("[%s] %s", p.Op, p.Stage)
		if p.TxHash != (common.Hash{}) {
			line += " tx=" + p.TxHash.Hex()
		}
		if p.Hash != (common.Hash{}) {
			line += " hash=" + p.Hash.Hex()
		}
		if p.GasLimit > 0 {
			line += fmt.Sprintf(" gas=%d", p.GasLimit)
		}
		if p.Error != "" {
			line += " error=" + p.Error
		}
		fmt.Fprintln(stderr, line)
	}
	return stream.Wait(ctx)
}

func runPropose(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("propose", stderr)
	var (
		toStr    string
		valueStr string
		dataStr  string
		watching bool
	)
	fs.StringVar(&toStr, "to", "", "destination address")
	fs.StringVar(&valueStr, "value", "0", "value in wei")
	fs.StringVar(&dataStr, "data", "", "0x-prefixed call data")
	fs.BoolVar(&watching, "watch", false, "print each submission step")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		return printUsageError(stderr, "unexpected positional arguments")
	}
	to, err := parseAddress("--to", toStr)
	if err != nil {
		return printUsageError(stderr, err.Error())
	}
	value, err := parseValue(valueStr)
	if err != nil {
		return printUsageError(stderr, err.Error())
	}
	data, err := parseData(dataStr)
	if err != nil {
		return printUsageError(stderr, err.Error())
	}

	ctx, cancel := commandContext()
	defer cancel()
	s, err := openSession(ctx, true)
	if err != nil {
		return printError(stderr, err)
	}
	defer s.Close()

	if watching {
		res, err := watch(ctx, s.multisig.ProposeStream(ctx, to, value, data), stderr)
		if err != nil {
			return printError(stderr, err)
		}
		return printJSON(stdout, proposeOutput(res.Hash, res.TxHash, res.Operation, res.Reused, string(res.Strategy)))
	}
	res, err := s.multisig.Propose(ctx, to, value, data)
	if err != nil {
		return printError(stderr, err)
	}
	return printJSON(stdout, proposeOutput(res.Hash, res.TxHash, res.Operation, res.Reused, string(res.Strategy)))
}

func proposeOutput(hash, tx common.Hash, op *types.Operation, reused bool, strategy string) map[string]any {
	out := map[string]any{
		"hash":     hash,
		"tx":       tx,
		"reused":   reused,
		"strategy": strategy,
	}
	if op != nil {
		out["operation"] = viewOperation(op)
	}
	return out
}

func runApprove(args []string, stdout, stderr io.Writer) int {
	hash, err := singleHash(newFlagSet("approve", stderr), args)
	if err != nil {
		return printUsageError(stderr, err.Error())
	}
	ctx, cancel := commandContext()
	defer cancel()
	s, err := openSession(ctx, true)
	if err != nil {
		return printError(stderr, err)
	}
	defer s.Close()
	res, err := s.multisig.Approve(ctx, hash)
	if err != nil {
		return printError(stderr, err)
	}
	return printJSON(stdout, map[string]any{
		"hash":       res.Hash,
		"tx":         res.TxHash,
		"approvals":  res.Approvals,
		"threshold":  res.Threshold,
		"executable": res.Executable(),
	})
}

func runRevoke(args []string, stdout, stderr io.Writer) int {
	hash, err := singleHash(newFlagSet("revoke", stderr), args)
	if err != nil {
		return printUsageError(stderr, err.Error())
	}
	ctx, cancel := commandContext()
	defer cancel()
	s, err := openSession(ctx, true)
	if err != nil {
		return printError(stderr, err)
	}
	defer s.Close()
	res, err := s.multisig.Revoke(ctx, hash)
	if err != nil {
		return printError(stderr, err)
	}
	return printJSON(stdout, map[string]any{
		"hash":      res.Hash,
		"tx":        res.TxHash,
		"approvals": res.Approvals,
		"threshold": res.Threshold,
	})
}

func runCancel(args []string, stdout, stderr io.Writer) int {
	hash, err := singleHash(newFlagSet("cancel", stderr), args)
	if err != nil {
		return printUsageError(stderr, err.Error())
	}
	ctx, cancel := commandContext()
	defer cancel()
	s, err := openSession(ctx, true)
	if err != nil {
		return printError(stderr, err)
	}
	defer s.Close()
	res, err := s.multisig.Cancel(ctx, hash)
	if err != nil {
		return printError(stderr, err)
	}
	return printJSON(stdout, map[string]any{
		"hash":              res.Hash,
		"tx":                res.TxHash,
		"receipt_disagreed": res.ReceiptDisagreed,
	})
}

func runExecute(args []string, stdout, stderr io.Writer) int {
	hash, err := singleHash(newFlagSet("execute", stderr), args)
	if err != nil {
		return printUsageError(stderr, err.Error())
	}
	ctx, cancel := commandContext()
	defer cancel()
	s, err := openSession(ctx, true)
	if err != nil {
		return printError(stderr, err)
	}
	defer s.Close()
	res, err := s.multisig.Execute(ctx, hash)
	if err != nil {
		return printError(stderr, err)
	}
	out := map[string]any{"hash": res.Hash, "tx": res.TxHash}
	if res.Receipt != nil {
		out["block"] = res.Receipt.BlockNumber
		out["gas_used"] = res.Receipt.GasUsed
	}
	return printJSON(stdout, out)
}

func runApproveExecute(args []string, stdout, stderr io.Writer) int {
	hash, err := singleHash(newFlagSet("approve-execute", stderr), args)
	if err != nil {
		return printUsageError(stderr, err.Error())
	}
	ctx, cancel := commandContext()
	defer cancel()
	s, err := openSession(ctx, true)
	if err != nil {
		return printError(stderr, err)
	}
	defer s.Close()
	res, err := s.multisig.ApproveAndExecute(ctx, hash)
	if err != nil {
		return printError(stderr, err)
	}
	return printJSON(stdout, map[string]any{
		"hash":      res.Hash,
		"tx":        res.TxHash,
		"approvals": res.Approvals,
		"executed":  res.Executed,
	})
}

func runPending(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("pending", stderr)
	var state string
	fs.StringVar(&state, "state", "pending", "pending, executable, executed or cancelled")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		return printUsageError(stderr, "unexpected positional arguments")
	}
	switch state {
	case "pending", "executable", "executed", "cancelled":
	default:
		return printUsageError(stderr, "--state must be pending, executable, executed or cancelled")
	}

	ctx, cancel := commandContext()
	defer cancel()
	s, err := openSession(ctx, false)
	if err != nil {
		return printError(stderr, err)
	}
	defer s.Close()

	var ops []*types.Operation
	switch state {
	case "pending":
		ops, err = s.multisig.PendingOperations(ctx)
	case "executable":
		ops, err = s.multisig.ExecutableOperations(ctx)
	case "executed":
		ops, err = s.multisig.ExecutedOperations(ctx)
	case "cancelled":
		ops, err = s.multisig.CancelledOperations(ctx)
	}
	if err != nil {
		return printError(stderr, err)
	}
	return printJSON(stdout, viewOperations(ops))
}

func runShow(args []string, stdout, stderr io.Writer) int {
	hash, err := singleHash(newFlagSet("show", stderr), args)
	if err != nil {
		return printUsageError(stderr, err.Error())
	}
	ctx, cancel := commandContext()
	defer cancel()
	s, err := openSession(ctx, false)
	if err != nil {
		return printError(stderr, err)
	}
	defer s.Close()
	op, err := s.multisig.Operation(ctx, hash)
	if err != nil {
		return printError(stderr, err)
	}
	return printJSON(stdout, viewOperation(op))
}

func runHistory(args []string, stdout, stderr io.Writer) int {
	hash, err := singleHash(newFlagSet("history", stderr), args)
	if err != nil {
		return printUsageError(stderr, err.Error())
	}
	ctx, cancel := commandContext()
	defer cancel()
	s, err := openSession(ctx, false)
	if err != nil {
		return printError(stderr, err)
	}
	defer s.Close()
	timeline, err := s.multisig.History(ctx, hash)
	if err != nil {
		return printError(stderr, err)
	}
	if timeline == nil {
		timeline = []types.Event{}
	}
	return printJSON(stdout, timeline)
}
