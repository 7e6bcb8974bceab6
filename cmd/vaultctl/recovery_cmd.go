package main

import (
	"fmt"
	"io"
	"time"

	"vaultguard/core/types"
	"vaultguard/recovery"
)

func runRecoveryCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "setup":
		return runRecoverySetup(args[1:], stdout, stderr)
	case "initiate":
		return runRecoveryInitiate(args[1:], stdout, stderr)
	case "approve", "execute", "cancel":
		return runRecoveryAction(args[0], args[1:], stdout, stderr)
	case "pending":
		return runRecoveryPending(args[1:], stdout, stderr)
	case "show", "history":
		return runRecoveryLookup(args[0], args[1:], stdout, stderr)
	case "config":
		return runRecoveryConfig(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown recovery subcommand: %s\n", args[0])
		return 1
	}
}

type recoveryView struct {
	Hash          string   `json:"hash"`
	Wallet        string   `json:"wallet"`
	NewOwners     []string `json:"new_owners"`
	NewThreshold  uint64   `json:"new_threshold"`
	Approvals     uint64   `json:"approvals"`
	ExecutionTime string   `json:"execution_time,omitempty"`
	Executed      bool     `json:"executed"`
	Live          bool     `json:"live"`
}

func viewRecovery(rec *types.Recovery) recoveryView {
	owners := make([]string, 0, len(rec.NewOwners))
	for _, owner := range rec.NewOwners {
		owners = append(owners, owner.Hex())
	}
	view := recoveryView{
		Hash:         rec.Hash.Hex(),
		Wallet:       rec.Wallet.Hex(),
		NewOwners:    owners,
		NewThreshold: rec.NewThreshold,
		Approvals:    rec.ApprovalCount,
		Executed:     rec.Executed,
		Live:         rec.Live(),
	}
	if !rec.ExecutionTime.IsZero() {
		view.ExecutionTime = rec.ExecutionTime.UTC().Format(time.RFC3339)
	}
	return view
}

func runRecoverySetup(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("recovery setup", stderr)
	var (
		guardiansStr string
		threshold    uint64
		periodDays   uint64
	)
	fs.StringVar(&guardiansStr, "guardians", "", "comma separated guardian addresses")
	fs.Uint64Var(&threshold, "threshold", 0, "guardian approvals required")
	fs.Uint64Var(&periodDays, "period-days", recovery.MinPeriodDays, "time-lock in days")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		return printUsageError(stderr, "unexpected positional arguments")
	}
	guardians, err := parseAddressList("--guardians", guardiansStr)
	if err != nil {
		return printUsageError(stderr, err.Error())
	}
	if threshold == 0 {
		return printUsageError(stderr, "--threshold must be a positive integer")
	}

	ctx, cancel := commandContext()
	defer cancel()
	s, err := openSession(ctx, true)
	if err != nil {
		return printError(stderr, err)
	}
	defer s.Close()
	if err := s.requireRecovery(); err != nil {
		return printError(stderr, err)
	}
	res, err := s.recovery.SetupConfig(ctx, guardians, threshold, periodDays)
	if err != nil {
		return printError(stderr, err)
	}
	return printJSON(stdout, proposeOutput(res.Hash, res.TxHash, res.Operation, res.Reused, string(res.Strategy)))
}

func runRecoveryInitiate(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("recovery initiate", stderr)
	var (
		ownersStr string
		threshold uint64
		watching  bool
	)
	fs.StringVar(&ownersStr, "owners", "", "comma separated replacement owners")
	fs.Uint64Var(&threshold, "threshold", 0, "replacement owner threshold")
	fs.BoolVar(&watching, "watch", false, "print each submission step")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		return printUsageError(stderr, "unexpected positional arguments")
	}
	owners, err := parseAddressList("--owners", ownersStr)
	if err != nil {
		return printUsageError(stderr, err.Error())
	}
	if threshold == 0 {
		return printUsageError(stderr, "--threshold must be a positive integer")
	}

	ctx, cancel := commandContext()
	defer cancel()
	s, err := openSession(ctx, true)
	if err != nil {
		return printError(stderr, err)
	}
	defer s.Close()
	if err := s.requireRecovery(); err != nil {
		return printError(stderr, err)
	}

	var res *recovery.InitiateResult
	if watching {
		res, err = watch(ctx, s.recovery.InitiateStream(ctx, owners, threshold), stderr)
	} else {
		res, err = s.recovery.Initiate(ctx, owners, threshold)
	}
	if err != nil {
		return printError(stderr, err)
	}
	out := map[string]any{
		"hash":          res.Hash,
		"tx":            res.TxHash,
		"nonce":         res.Nonce.String(),
		"strategy":      string(res.Strategy),
		"executable_at": res.ExecutableAt().UTC().Format(time.RFC3339),
	}
	if res.Recovery != nil {
		out["recovery"] = viewRecovery(res.Recovery)
	}
	return printJSON(stdout, out)
}

func runRecoveryAction(action string, args []string, stdout, stderr io.Writer) int {
	hash, err := singleHash(newFlagSet("recovery "+action, stderr), args)
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
	if err := s.requireRecovery(); err != nil {
		return printError(stderr, err)
	}

	switch action {
	case "approve":
		res, err := s.recovery.Approve(ctx, hash)
		if err != nil {
			return printError(stderr, err)
		}
		return printJSON(stdout, map[string]any{
			"hash":      res.Hash,
			"tx":        res.TxHash,
			"approvals": res.ApprovalCount,
			"threshold": res.Threshold,
		})
	case "execute":
		res, err := s.recovery.Execute(ctx, hash)
		if err != nil {
			return printError(stderr, err)
		}
		out := map[string]any{"hash": res.Hash, "tx": res.TxHash}
		if res.Config != nil {
			out["owners"] = res.Config.Owners
			out["threshold"] = res.Config.Threshold
		}
		return printJSON(stdout, out)
	default:
		res, err := s.recovery.Cancel(ctx, hash)
		if err != nil {
			return printError(stderr, err)
		}
		return printJSON(stdout, map[string]any{
			"hash":              res.Hash,
			"tx":                res.TxHash,
			"receipt_disagreed": res.ReceiptDisagreed,
		})
	}
}

func runRecoveryPending(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("recovery pending", stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		return printUsageError(stderr, "unexpected positional arguments")
	}
	ctx, cancel := commandContext()
	defer cancel()
	s, err := openSession(ctx, false)
	if err != nil {
		return printError(stderr, err)
	}
	defer s.Close()
	if err := s.requireRecovery(); err != nil {
		return printError(stderr, err)
	}
	recs, err := s.recovery.PendingRecoveries(ctx)
	if err != nil {
		return printError(stderr, err)
	}
	out := make([]recoveryView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, viewRecovery(rec))
	}
	return printJSON(stdout, out)
}

func runRecoveryLookup(action string, args []string, stdout, stderr io.Writer) int {
	hash, err := singleHash(newFlagSet("recovery "+action, stderr), args)
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
	if err := s.requireRecovery(); err != nil {
		return printError(stderr, err)
	}
	if action == "history" {
		timeline, err := s.recovery.History(ctx, hash)
		if err != nil {
			return printError(stderr, err)
		}
		if timeline == nil {
			timeline = []types.Event{}
		}
		return printJSON(stdout, timeline)
	}
	rec, err := s.recovery.Recovery(ctx, hash)
	if err != nil {
		return printError(stderr, err)
	}
	return printJSON(stdout, viewRecovery(rec))
}

func runRecoveryConfig(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("recovery config", stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	ctx, cancel := commandContext()
	defer cancel()
	s, err := openSession(ctx, false)
	if err != nil {
		return printError(stderr, err)
	}
	defer s.Close()
	if err := s.requireRecovery(); err != nil {
		return printError(stderr, err)
	}
	cfg, err := s.recovery.Config(ctx)
	if err != nil {
		return printError(stderr, err)
	}
	return printJSON(stdout, map[string]any{
		"guardians":  cfg.Guardians,
		"threshold":  cfg.Threshold,
		"period":     cfg.Period.String(),
		"configured": cfg.Configured(),
		"module":     s.recovery.Module().Address(),
	})
}
