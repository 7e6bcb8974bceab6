package ledgertest

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"vaultguard/ledger"
)

// minRecoveryPeriod mirrors the module's one day floor.
const minRecoveryPeriod = 24 * 60 * 60

type recoveryConfig struct {
	guardians []common.Address
	threshold uint64
	period    uint64
}

type recoveryRecord struct {
	wallet       common.Address
	newOwners    []common.Address
	newThreshold uint64
	approvals    map[common.Address]bool
	count        uint64
	execTime     uint64
	executed     bool
}

type recoveryState struct {
	configs  map[common.Address]*recoveryConfig
	nonces   map[common.Address]uint64
	requests map[common.Hash]*recoveryRecord
}

func (s recoveryState) clone() recoveryState {
	out := recoveryState{
		configs:  make(map[common.Address]*recoveryConfig, len(s.configs)),
		nonces:   make(map[common.Address]uint64, len(s.nonces)),
		requests: make(map[common.Hash]*recoveryRecord, len(s.requests)),
	}
	for k, v := range s.configs {
		cp := *v
		cp.guardians = append([]common.Address(nil), v.guardians...)
		out.configs[k] = &cp
	}
	for k, v := range s.nonces {
		out.nonces[k] = v
	}
	for k, v := range s.requests {
		cp := *v
		cp.newOwners = append([]common.Address(nil), v.newOwners...)
		cp.approvals = make(map[common.Address]bool, len(v.approvals))
		for g, ok := range v.approvals {
			cp.approvals[g] = ok
		}
		out.requests[k] = &cp
	}
	return out
}

func (s *recoveryState) isGuardian(wallet, addr common.Address) bool {
	cfg, ok := s.configs[wallet]
	return ok && indexOf(cfg.guardians, addr) >= 0
}

// ConfigureRecovery registers guardians for the wallet directly, bypassing
// the governed path.
func (c *Chain) ConfigureRecovery(guardians []common.Address, threshold uint64, periodSeconds uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recovery.configs[c.walletAddr] = &recoveryConfig{
		guardians: append([]common.Address(nil), guardians...),
		threshold: threshold,
		period:    periodSeconds,
	}
}

// SetGuardianFlag overwrites the raw approval flag of guardian on a request,
// leaving the approval count untouched.
func (c *Chain) SetGuardianFlag(hash common.Hash, guardian common.Address, approved bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.recovery.requests[hash]; ok {
		rec.approvals[guardian] = approved
	}
}

// SetRecoveryApprovals overwrites the stored guardian approval count of a
// request, leaving the flags untouched.
func (c *Chain) SetRecoveryApprovals(hash common.Hash, count uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.recovery.requests[hash]; ok {
		rec.count = count
	}
}

// RecoveryNonce returns the module replay counter for the wallet.
func (c *Chain) RecoveryNonce() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recovery.nonces[c.walletAddr]
}

func (c *Chain) recoveryView(method string, args []any) ([]any, error) {
	r := &c.recovery
	switch method {
	case ledger.MethodGetRecoveryConfig:
		cfg, ok := r.configs[args[0].(common.Address)]
		if !ok {
			return []any{[]common.Address{}, new(big.Int), new(big.Int)}, nil
		}
		return []any{append([]common.Address{}, cfg.guardians...), u256(cfg.threshold), u256(cfg.period)}, nil
	case ledger.MethodIsGuardian:
		return []any{r.isGuardian(args[0].(common.Address), args[1].(common.Address))}, nil
	case ledger.MethodRecoveryNonce:
		return []any{u256(r.nonces[args[0].(common.Address)])}, nil
	case ledger.MethodGetRecoveryHash:
		threshold := args[2].(*big.Int)
		hash, err := ledger.RecoveryHash(args[0].(common.Address), args[1].([]common.Address), threshold.Uint64(), args[3].(*big.Int))
		if err != nil {
			return nil, err
		}
		return []any{hash}, nil
	case ledger.MethodGetRecovery:
		rec, ok := r.requests[hashArg(args[0])]
		if !ok {
			return []any{common.Address{}, []common.Address{}, new(big.Int), new(big.Int), new(big.Int), false}, nil
		}
		return []any{rec.wallet, append([]common.Address{}, rec.newOwners...), u256(rec.newThreshold), u256(rec.count), u256(rec.execTime), rec.executed}, nil
	case ledger.MethodHasApproved:
		rec, ok := r.requests[hashArg(args[0])]
		return []any{ok && rec.approvals[args[1].(common.Address)]}, nil
	default:
		return nil, fmt.Errorf("ledgertest: %s is not a recovery view", method)
	}
}

func (c *Chain) recoveryApply(from common.Address, method string, args []any) ([]*gethtypes.Log, []any, error) {
	switch method {
	case ledger.MethodSetupRecovery:
		logs, err := c.setupRecovery(from, args[0].([]common.Address), args[1].(*big.Int), args[2].(*big.Int))
		return logs, nil, err
	case ledger.MethodInitiateRecovery:
		return c.initiateRecovery(from, args[0].(common.Address), args[1].([]common.Address), args[2].(*big.Int))
	case ledger.MethodApproveRecovery:
		logs, err := c.approveRecovery(from, hashArg(args[0]))
		return logs, nil, err
	case ledger.MethodExecuteRecovery:
		logs, err := c.executeRecovery(hashArg(args[0]))
		return logs, nil, err
	case ledger.MethodCancelRecovery:
		logs, err := c.cancelRecovery(from, hashArg(args[0]))
		return logs, nil, err
	default:
		return nil, nil, fmt.Errorf("ledgertest: %s is not a recovery call", method)
	}
}

func validSet(addrs []common.Address, threshold *big.Int) bool {
	if len(addrs) == 0 || threshold.Sign() == 0 || threshold.Cmp(u256(uint64(len(addrs)))) > 0 {
		return false
	}
	seen := make(map[common.Address]struct{}, len(addrs))
	for _, addr := range addrs {
		if addr == (common.Address{}) {
			return false
		}
		if _, dup := seen[addr]; dup {
			return false
		}
		seen[addr] = struct{}{}
	}
	return true
}

func (c *Chain) setupRecovery(wallet common.Address, guardians []common.Address, threshold, period *big.Int) ([]*gethtypes.Log, error) {
	if !validSet(guardians, threshold) || period.Cmp(u256(minRecoveryPeriod)) < 0 || !period.IsUint64() {
		return nil, revert(c.moduleABI, "InvalidRecoveryConfig")
	}
	c.recovery.configs[wallet] = &recoveryConfig{
		guardians: append([]common.Address(nil), guardians...),
		threshold: threshold.Uint64(),
		period:    period.Uint64(),
	}
	return []*gethtypes.Log{c.newLog(c.moduleAddr, c.moduleABI, ledger.EventRecoveryConfigured,
		[]common.Hash{addrTopic(wallet)}, guardians, threshold, period)}, nil
}

func (c *Chain) initiateRecovery(from, wallet common.Address, newOwners []common.Address, newThreshold *big.Int) ([]*gethtypes.Log, []any, error) {
	if !c.recovery.isGuardian(wallet, from) {
		return nil, nil, revert(c.moduleABI, "NotGuardian", from)
	}
	if !validSet(newOwners, newThreshold) {
		return nil, nil, revert(c.moduleABI, "InvalidRecoveryConfig")
	}
	nonce := c.recovery.nonces[wallet]
	hash, err := ledger.RecoveryHash(wallet, newOwners, newThreshold.Uint64(), u256(nonce))
	if err != nil {
		return nil, nil, err
	}
	c.recovery.nonces[wallet] = nonce + 1
	execTime := uint64(c.now.Unix()) + c.recovery.configs[wallet].period
	c.recovery.requests[hash] = &recoveryRecord{
		wallet:       wallet,
		newOwners:    append([]common.Address(nil), newOwners...),
		newThreshold: newThreshold.Uint64(),
		approvals:    map[common.Address]bool{from: true},
		count:        1,
		execTime:     execTime,
	}
	logs := []*gethtypes.Log{
		c.newLog(c.moduleAddr, c.moduleABI, ledger.EventRecoveryInitiated,
			[]common.Hash{hash, addrTopic(wallet), addrTopic(from)}, newOwners, newThreshold, u256(execTime)),
		c.newLog(c.moduleAddr, c.moduleABI, ledger.EventRecoveryApproved,
			[]common.Hash{hash, addrTopic(from)}, u256(1)),
	}
	return logs, []any{hash}, nil
}

func (c *Chain) liveRecovery(hash common.Hash) (*recoveryRecord, error) {
	rec, ok := c.recovery.requests[hash]
	if !ok || rec.execTime == 0 {
		return nil, revert(c.moduleABI, "RecoveryNotFound", hash)
	}
	if rec.executed {
		return nil, revert(c.moduleABI, "RecoveryAlreadyExecuted", hash)
	}
	return rec, nil
}

func (c *Chain) approveRecovery(from common.Address, hash common.Hash) ([]*gethtypes.Log, error) {
	rec, err := c.liveRecovery(hash)
	if err != nil {
		return nil, err
	}
	if !c.recovery.isGuardian(rec.wallet, from) {
		return nil, revert(c.moduleABI, "NotGuardian", from)
	}
	if rec.approvals[from] {
		return nil, revert(c.moduleABI, "GuardianAlreadyApproved", hash, from)
	}
	rec.approvals[from] = true
	rec.count++
	return []*gethtypes.Log{c.newLog(c.moduleAddr, c.moduleABI, ledger.EventRecoveryApproved,
		[]common.Hash{hash, addrTopic(from)}, u256(rec.count))}, nil
}

func (c *Chain) executeRecovery(hash common.Hash) ([]*gethtypes.Log, error) {
	rec, err := c.liveRecovery(hash)
	if err != nil {
		return nil, err
	}
	if uint64(c.now.Unix()) < rec.execTime {
		return nil, revert(c.moduleABI, "RecoveryTimelockActive", u256(rec.execTime))
	}
	cfg := c.recovery.configs[rec.wallet]
	if cfg == nil || rec.count < cfg.threshold {
		threshold := uint64(0)
		if cfg != nil {
			threshold = cfg.threshold
		}
		return nil, revert(c.moduleABI, "RecoveryThresholdNotMet", u256(rec.count), u256(threshold))
	}
	if rec.wallet != c.walletAddr || !c.wallet.moduleEnabled(c.moduleAddr) {
		return nil, revert(c.moduleABI, "ModuleNotEnabled", rec.wallet)
	}
	rec.executed = true
	c.wallet.owners = append([]common.Address(nil), rec.newOwners...)
	c.wallet.threshold = rec.newThreshold
	return []*gethtypes.Log{c.newLog(c.moduleAddr, c.moduleABI, ledger.EventRecoveryExecuted,
		[]common.Hash{hash, addrTopic(rec.wallet)})}, nil
}

func (c *Chain) cancelRecovery(from common.Address, hash common.Hash) ([]*gethtypes.Log, error) {
	rec, err := c.liveRecovery(hash)
	if err != nil {
		return nil, err
	}
	if rec.wallet != c.walletAddr || !c.wallet.isOwner(from) {
		return nil, revert(c.moduleABI, "NotWalletOwner", from)
	}
	// Flags survive cancellation; only the zero execution time voids them.
	rec.execTime = 0
	rec.count = 0
	return []*gethtypes.Log{c.newLog(c.moduleAddr, c.moduleABI, ledger.EventRecoveryCancelled,
		[]common.Hash{hash, addrTopic(rec.wallet), addrTopic(from)})}, nil
}
