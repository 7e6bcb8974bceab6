package ledgertest

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"vaultguard/ledger"
)

type opRecord struct {
	to        common.Address
	value     *big.Int
	data      []byte
	proposer  common.Address
	approvals map[common.Address]bool
	count     uint64
	createdAt uint64
	executed  bool
	cancelled bool
}

type walletState struct {
	owners    []common.Address
	threshold uint64
	nonce     uint64
	modules   []common.Address
	ops       map[common.Hash]*opRecord
}

func (s walletState) clone() walletState {
	out := walletState{
		owners:    append([]common.Address(nil), s.owners...),
		threshold: s.threshold,
		nonce:     s.nonce,
		modules:   append([]common.Address(nil), s.modules...),
		ops:       make(map[common.Hash]*opRecord, len(s.ops)),
	}
	for hash, op := range s.ops {
		cp := *op
		cp.value = new(big.Int).Set(op.value)
		cp.data = append([]byte(nil), op.data...)
		cp.approvals = make(map[common.Address]bool, len(op.approvals))
		for k, v := range op.approvals {
			cp.approvals[k] = v
		}
		out.ops[hash] = &cp
	}
	return out
}

func (s *walletState) isOwner(addr common.Address) bool {
	return indexOf(s.owners, addr) >= 0
}

func (s *walletState) moduleEnabled(addr common.Address) bool {
	return indexOf(s.modules, addr) >= 0
}

func indexOf(list []common.Address, addr common.Address) int {
	for i, a := range list {
		if a == addr {
			return i
		}
	}
	return -1
}

// EnableModule enables module on the wallet without going through
// governance, as a deployment script would.
func (c *Chain) EnableModule(module common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.wallet.moduleEnabled(module) {
		c.wallet.modules = append(c.wallet.modules, module)
	}
}

// Owners returns the current owner set.
func (c *Chain) Owners() []common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]common.Address(nil), c.wallet.owners...)
}

// Threshold returns the current approval threshold.
func (c *Chain) Threshold() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wallet.threshold
}

// WalletNonce returns the wallet sequence number.
func (c *Chain) WalletNonce() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wallet.nonce
}

// SetApprovalCount overwrites the stored approval count of an operation so
// tests can reproduce records whose count and flags disagree.
func (c *Chain) SetApprovalCount(hash common.Hash, count uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if op, ok := c.wallet.ops[hash]; ok {
		op.count = count
	}
}

func (c *Chain) walletView(method string, args []any) ([]any, error) {
	w := &c.wallet
	switch method {
	case ledger.MethodGetOwners:
		return []any{append([]common.Address{}, w.owners...)}, nil
	case ledger.MethodThreshold:
		return []any{u256(w.threshold)}, nil
	case ledger.MethodIsOwner:
		return []any{w.isOwner(args[0].(common.Address))}, nil
	case ledger.MethodNonce:
		return []any{u256(w.nonce)}, nil
	case ledger.MethodGetTransactionHash:
		hash, err := ledger.OperationHash(args[0].(common.Address), args[1].(*big.Int), args[2].([]byte), args[3].(*big.Int))
		if err != nil {
			return nil, err
		}
		return []any{hash}, nil
	case ledger.MethodGetTransaction:
		op, ok := w.ops[hashArg(args[0])]
		if !ok {
			return []any{common.Address{}, new(big.Int), []byte{}, common.Address{}, new(big.Int), new(big.Int), false, false}, nil
		}
		return []any{op.to, new(big.Int).Set(op.value), append([]byte{}, op.data...), op.proposer, u256(op.count), u256(op.createdAt), op.executed, op.cancelled}, nil
	case ledger.MethodIsApproved:
		op, ok := w.ops[hashArg(args[0])]
		return []any{ok && op.approvals[args[1].(common.Address)]}, nil
	case ledger.MethodIsModuleEnabled:
		return []any{w.moduleEnabled(args[0].(common.Address))}, nil
	case ledger.MethodGetModules:
		return []any{append([]common.Address{}, w.modules...)}, nil
	default:
		return nil, fmt.Errorf("ledgertest: %s is not a wallet view", method)
	}
}

func (c *Chain) walletApply(from common.Address, method string, args []any) ([]*gethtypes.Log, []any, error) {
	switch method {
	case ledger.MethodPropose:
		return c.propose(from, args[0].(common.Address), args[1].(*big.Int), args[2].([]byte))
	case ledger.MethodApprove:
		logs, err := c.approve(from, hashArg(args[0]))
		return logs, nil, err
	case ledger.MethodRevoke:
		logs, err := c.revoke(from, hashArg(args[0]))
		return logs, nil, err
	case ledger.MethodCancel:
		logs, err := c.cancel(from, hashArg(args[0]))
		return logs, nil, err
	case ledger.MethodExecute:
		logs, err := c.execute(from, hashArg(args[0]))
		return logs, []any{[]byte{}}, err
	case ledger.MethodApproveAndExecute:
		hash := hashArg(args[0])
		logs, err := c.approve(from, hash)
		if err != nil {
			return nil, nil, err
		}
		if c.wallet.ops[hash].count < c.wallet.threshold {
			return logs, []any{false}, nil
		}
		execLogs, err := c.execute(from, hash)
		if err != nil {
			return nil, nil, err
		}
		return append(logs, execLogs...), []any{true}, nil
	case ledger.MethodAddOwner, ledger.MethodRemoveOwner, ledger.MethodReplaceOwner,
		ledger.MethodChangeThreshold, ledger.MethodEnableModule, ledger.MethodDisableModule:
		if from != c.walletAddr {
			return nil, nil, revert(c.walletABI, "OnlyWallet")
		}
		logs, err := c.governance(method, args)
		return logs, nil, err
	default:
		return nil, nil, fmt.Errorf("ledgertest: %s is not a wallet call", method)
	}
}

func (c *Chain) requireOwner(from common.Address) error {
	if !c.wallet.isOwner(from) {
		return revert(c.walletABI, "NotOwner", from)
	}
	return nil
}

// liveOp returns the record at hash if it can still change state.
func (c *Chain) liveOp(hash common.Hash) (*opRecord, error) {
	op, ok := c.wallet.ops[hash]
	if !ok || op.proposer == (common.Address{}) {
		return nil, revert(c.walletABI, "TransactionNotFound", hash)
	}
	if op.executed {
		return nil, revert(c.walletABI, "TransactionAlreadyExecuted", hash)
	}
	if op.cancelled {
		return nil, revert(c.walletABI, "TransactionAlreadyCancelled", hash)
	}
	return op, nil
}

func (c *Chain) propose(from, to common.Address, value *big.Int, data []byte) ([]*gethtypes.Log, []any, error) {
	if err := c.requireOwner(from); err != nil {
		return nil, nil, err
	}
	nonce := u256(c.wallet.nonce)
	hash, err := ledger.OperationHash(to, value, data, nonce)
	if err != nil {
		return nil, nil, err
	}
	record := &opRecord{
		to:        to,
		value:     new(big.Int).Set(value),
		data:      append([]byte(nil), data...),
		proposer:  from,
		approvals: make(map[common.Address]bool),
		createdAt: uint64(c.now.Unix()),
	}
	// A fresh proposal counts the proposer's approval. Reusing a cancelled
	// hash only resets the record, leaving the approval set empty.
	reused := false
	if existing, ok := c.wallet.ops[hash]; ok {
		switch {
		case existing.executed:
			return nil, nil, revert(c.walletABI, "TransactionAlreadyExecuted", hash)
		case !existing.cancelled:
			return nil, nil, revert(c.walletABI, "TransactionExists", hash)
		}
		reused = true
	}
	if !reused {
		record.approvals[from] = true
		record.count = 1
	}
	c.wallet.ops[hash] = record

	logs := []*gethtypes.Log{
		c.newLog(c.walletAddr, c.walletABI, ledger.EventTransactionProposed,
			[]common.Hash{hash, addrTopic(from), addrTopic(to)}, value, data, nonce),
	}
	if !reused {
		logs = append(logs, c.newLog(c.walletAddr, c.walletABI, ledger.EventTransactionApproved,
			[]common.Hash{hash, addrTopic(from)}, u256(1)))
	}
	return logs, []any{hash}, nil
}

func (c *Chain) approve(from common.Address, hash common.Hash) ([]*gethtypes.Log, error) {
	if err := c.requireOwner(from); err != nil {
		return nil, err
	}
	op, err := c.liveOp(hash)
	if err != nil {
		return nil, err
	}
	if op.approvals[from] {
		return nil, revert(c.walletABI, "AlreadyApproved", hash, from)
	}
	op.approvals[from] = true
	op.count++
	return []*gethtypes.Log{c.newLog(c.walletAddr, c.walletABI, ledger.EventTransactionApproved,
		[]common.Hash{hash, addrTopic(from)}, u256(op.count))}, nil
}

func (c *Chain) revoke(from common.Address, hash common.Hash) ([]*gethtypes.Log, error) {
	if err := c.requireOwner(from); err != nil {
		return nil, err
	}
	op, err := c.liveOp(hash)
	if err != nil {
		return nil, err
	}
	if !op.approvals[from] {
		return nil, revert(c.walletABI, "NotApproved", hash, from)
	}
	op.approvals[from] = false
	if op.count > 0 {
		op.count--
	}
	return []*gethtypes.Log{c.newLog(c.walletAddr, c.walletABI, ledger.EventApprovalRevoked,
		[]common.Hash{hash, addrTopic(from)}, u256(op.count))}, nil
}

func (c *Chain) cancel(from common.Address, hash common.Hash) ([]*gethtypes.Log, error) {
	if err := c.requireOwner(from); err != nil {
		return nil, err
	}
	op, err := c.liveOp(hash)
	if err != nil {
		return nil, err
	}
	if from != op.proposer && op.count < c.wallet.threshold {
		return nil, revert(c.walletABI, "NotAuthorizedToCancel", from)
	}
	op.cancelled = true
	return []*gethtypes.Log{c.newLog(c.walletAddr, c.walletABI, ledger.EventTransactionCancelled,
		[]common.Hash{hash, addrTopic(from)})}, nil
}

func (c *Chain) execute(from common.Address, hash common.Hash) ([]*gethtypes.Log, error) {
	if err := c.requireOwner(from); err != nil {
		return nil, err
	}
	op, err := c.liveOp(hash)
	if err != nil {
		return nil, err
	}
	if op.count < c.wallet.threshold {
		return nil, revert(c.walletABI, "InsufficientApprovals", u256(op.count), u256(c.wallet.threshold))
	}
	op.executed = true
	c.wallet.nonce++

	var logs []*gethtypes.Log
	if len(op.data) > 0 {
		sub, err := c.dispatch(op.to, op.data)
		if err != nil {
			return nil, revert(c.walletABI, "ExecutionFailed", hash)
		}
		logs = append(logs, sub...)
	}
	logs = append(logs, c.newLog(c.walletAddr, c.walletABI, ledger.EventTransactionExecuted,
		[]common.Hash{hash, addrTopic(from)}))
	return logs, nil
}

// dispatch performs the inner call of an executed operation with the wallet
// as the caller. Calls to unknown destinations succeed without effect.
func (c *Chain) dispatch(to common.Address, data []byte) ([]*gethtypes.Log, error) {
	if len(data) < 4 {
		return nil, nil
	}
	switch to {
	case c.walletAddr:
		method, err := c.walletABI.MethodById(data[:4])
		if err != nil {
			return nil, err
		}
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}
		logs, _, err := c.walletApply(c.walletAddr, method.Name, args)
		return logs, err
	case c.moduleAddr:
		method, err := c.moduleABI.MethodById(data[:4])
		if err != nil {
			return nil, err
		}
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}
		logs, _, err := c.recoveryApply(c.walletAddr, method.Name, args)
		return logs, err
	default:
		return nil, nil
	}
}

func (c *Chain) governance(method string, args []any) ([]*gethtypes.Log, error) {
	w := &c.wallet
	switch method {
	case ledger.MethodAddOwner:
		owner := args[0].(common.Address)
		if owner == (common.Address{}) || owner == c.walletAddr || w.isOwner(owner) {
			return nil, revert(c.walletABI, "InvalidOwner", owner)
		}
		w.owners = append(w.owners, owner)
		return []*gethtypes.Log{c.newLog(c.walletAddr, c.walletABI, ledger.EventOwnerAdded, []common.Hash{addrTopic(owner)})}, nil
	case ledger.MethodRemoveOwner:
		owner := args[0].(common.Address)
		idx := indexOf(w.owners, owner)
		if idx < 0 {
			return nil, revert(c.walletABI, "InvalidOwner", owner)
		}
		remaining := uint64(len(w.owners) - 1)
		if remaining < w.threshold {
			return nil, revert(c.walletABI, "InvalidThreshold", u256(w.threshold), u256(remaining))
		}
		w.owners = append(w.owners[:idx:idx], w.owners[idx+1:]...)
		return []*gethtypes.Log{c.newLog(c.walletAddr, c.walletABI, ledger.EventOwnerRemoved, []common.Hash{addrTopic(owner)})}, nil
	case ledger.MethodReplaceOwner:
		oldOwner, newOwner := args[0].(common.Address), args[1].(common.Address)
		idx := indexOf(w.owners, oldOwner)
		if idx < 0 {
			return nil, revert(c.walletABI, "InvalidOwner", oldOwner)
		}
		if newOwner == (common.Address{}) || newOwner == c.walletAddr || w.isOwner(newOwner) {
			return nil, revert(c.walletABI, "InvalidOwner", newOwner)
		}
		w.owners[idx] = newOwner
		return []*gethtypes.Log{
			c.newLog(c.walletAddr, c.walletABI, ledger.EventOwnerRemoved, []common.Hash{addrTopic(oldOwner)}),
			c.newLog(c.walletAddr, c.walletABI, ledger.EventOwnerAdded, []common.Hash{addrTopic(newOwner)}),
		}, nil
	case ledger.MethodChangeThreshold:
		threshold := args[0].(*big.Int)
		if threshold.Sign() == 0 || threshold.Cmp(u256(uint64(len(w.owners)))) > 0 {
			return nil, revert(c.walletABI, "InvalidThreshold", threshold, u256(uint64(len(w.owners))))
		}
		w.threshold = threshold.Uint64()
		return []*gethtypes.Log{c.newLog(c.walletAddr, c.walletABI, ledger.EventThresholdChanged, nil, threshold)}, nil
	case ledger.MethodEnableModule:
		module := args[0].(common.Address)
		if module == (common.Address{}) || module == c.walletAddr || w.moduleEnabled(module) {
			return nil, revert(c.walletABI, "InvalidModule", module)
		}
		w.modules = append(w.modules, module)
		return []*gethtypes.Log{c.newLog(c.walletAddr, c.walletABI, ledger.EventModuleEnabled, []common.Hash{addrTopic(module)})}, nil
	case ledger.MethodDisableModule:
		module := args[0].(common.Address)
		idx := indexOf(w.modules, module)
		if idx < 0 {
			return nil, revert(c.walletABI, "InvalidModule", module)
		}
		w.modules = append(w.modules[:idx:idx], w.modules[idx+1:]...)
		return []*gethtypes.Log{c.newLog(c.walletAddr, c.walletABI, ledger.EventModuleDisabled, []common.Hash{addrTopic(module)})}, nil
	}
	return nil, fmt.Errorf("ledgertest: %s is not a governance call", method)
}

func hashArg(v any) common.Hash {
	switch h := v.(type) {
	case [32]byte:
		return common.Hash(h)
	case common.Hash:
		return h
	case []byte:
		return common.BytesToHash(h)
	default:
		panic(fmt.Sprintf("ledgertest: %T is not bytes32", v))
	}
}
