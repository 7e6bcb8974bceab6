// Package ledgertest provides an in-memory ledger that enforces the wallet
// and recovery module rules, for exercising coordinators without a node.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"vaultguard/ledger"
)

var (
	// DefaultWalletAddress is the address the simulated wallet lives at.
	DefaultWalletAddress = common.HexToAddress("0x000000000000000000000000000000000000a11e")
	// DefaultModuleAddress is the address of the simulated recovery module.
	DefaultModuleAddress = common.HexToAddress("0x000000000000000000000000000000000000beef")
)

// RevertError mimics the JSON-RPC error returned for reverted calls.
type RevertError struct {
	Data []byte
}

func (e *RevertError) Error() string { return "execution reverted" }

// ErrorCode implements rpc.Error.
func (e *RevertError) ErrorCode() int { return 3 }

// ErrorData implements rpc.DataError.
func (e *RevertError) ErrorData() interface{} { return hexutil.Encode(e.Data) }

// RangeError mimics a provider rejecting an oversized log query.
type RangeError struct {
	Limit uint64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("query exceeds max block range %d", e.Limit)
}

// ErrorCode implements rpc.Error.
func (e *RangeError) ErrorCode() int { return -32005 }

// Fault alters how the ledger reports a submission of one method.
type Fault struct {
	// SendError fails the submission before it leaves the client.
	SendError error
	// SkipEffects reports success without applying the state change.
	SkipEffects bool
	// ForceStatus overrides the receipt status after the call is applied.
	ForceStatus *uint64
	// DropLogs strips emitted notices from the receipt.
	DropLogs bool
	// RewriteLogs replaces the receipt notices.
	RewriteLogs func(logs []*gethtypes.Log) []*gethtypes.Log
	// NeverConfirm makes Wait block until its context ends.
	NeverConfirm bool
	// Once removes the fault after it has been applied.
	Once bool
}

// Status returns a pointer for Fault.ForceStatus.
func Status(status uint64) *uint64 { return &status }

// Chain is a single-wallet simulated ledger.
type Chain struct {
	mu sync.Mutex

	walletAddr common.Address
	moduleAddr common.Address
	walletABI  *abi.ABI
	moduleABI  *abi.ABI

	block   uint64
	now     time.Time
	txCount uint64
	logs    []gethtypes.Log

	wallet   walletState
	recovery recoveryState

	// MaxLogSpan rejects log windows wider than this many blocks when set.
	MaxLogSpan uint64

	faults         map[string]Fault
	estimateErrors map[string]error
	calls          map[string]int
	submissions    map[string]int
	filterQueries  []ledger.LogQuery
}

// NewChain creates a ledger whose wallet has owners and threshold.
func NewChain(owners []common.Address, threshold uint64) *Chain {
	return &Chain{
		walletAddr: DefaultWalletAddress,
		moduleAddr: DefaultModuleAddress,
		walletABI:  ledger.WalletABI(),
		moduleABI:  ledger.RecoveryModuleABI(),
		block:      1,
		now:        time.Unix(1_700_000_000, 0).UTC(),
		wallet: walletState{
			owners:    append([]common.Address(nil), owners...),
			threshold: threshold,
			ops:       make(map[common.Hash]*opRecord),
		},
		recovery: recoveryState{
			configs:  make(map[common.Address]*recoveryConfig),
			nonces:   make(map[common.Address]uint64),
			requests: make(map[common.Hash]*recoveryRecord),
		},
		faults:         make(map[string]Fault),
		estimateErrors: make(map[string]error),
		calls:          make(map[string]int),
		submissions:    make(map[string]int),
	}
}

// WalletAddress returns the simulated wallet address.
func (c *Chain) WalletAddress() common.Address { return c.walletAddr }

// ModuleAddress returns the simulated recovery module address.
func (c *Chain) ModuleAddress() common.Address { return c.moduleAddr }

// Wallet returns a wallet binding acting as from.
func (c *Chain) Wallet(from common.Address) ledger.Contract {
	return &binding{chain: c, address: c.walletAddr, abi: c.walletABI, from: from}
}

// RecoveryModule returns a recovery module binding acting as from.
func (c *Chain) RecoveryModule(from common.Address) ledger.Contract {
	return &binding{chain: c, address: c.moduleAddr, abi: c.moduleABI, from: from}
}

// Now returns the ledger clock.
func (c *Chain) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the ledger clock forward.
func (c *Chain) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Mine advances the head by n empty blocks.
func (c *Chain) Mine(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block += n
}

// InjectFault installs a fault for submissions of method.
func (c *Chain) InjectFault(method string, fault Fault) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults[method] = fault
}

// FailEstimate makes simulations of method return err.
func (c *Chain) FailEstimate(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.estimateErrors, method)
		return
	}
	c.estimateErrors[method] = err
}

// Submissions returns how many times method was submitted.
func (c *Chain) Submissions(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submissions[method]
}

// Calls returns how many times the read-only method was queried.
func (c *Chain) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// FilterQueries returns the log windows requested so far.
func (c *Chain) FilterQueries() []ledger.LogQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ledger.LogQuery(nil), c.filterQueries...)
}

type binding struct {
	chain   *Chain
	address common.Address
	abi     *abi.ABI
	from    common.Address
}

func (b *binding) Address() common.Address { return b.address }
func (b *binding) From() common.Address    { return b.from }
func (b *binding) ABI() *abi.ABI           { return b.abi }

// Call packs and unpacks through the interface description so argument and
// result types match a real node.
func (b *binding) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, decoded, err := b.decode(method, args)
	if err != nil {
		return nil, err
	}
	c := b.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[method]++
	values, err := c.view(b.address, m.Name, decoded)
	if err != nil {
		return nil, err
	}
	packed, err := m.Outputs.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("ledgertest: pack %s outputs: %w", method, err)
	}
	return b.abi.Unpack(method, packed)
}

func (b *binding) Estimate(ctx context.Context, method string, args ...any) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m, decoded, err := b.decode(method, args)
	if err != nil {
		return 0, err
	}
	c := b.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.estimateErrors[method]; ok {
		return 0, err
	}
	snap := c.snapshot()
	_, _, err = c.apply(b.address, b.from, m.Name, decoded)
	c.restore(snap)
	if err != nil {
		return 0, err
	}
	return 60_000 + uint64(len(m.ID)+len(args))*1_000, nil
}

func (b *binding) Transact(ctx context.Context, gasLimit uint64, method string, args ...any) (ledger.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if gasLimit == 0 {
		return nil, fmt.Errorf("ledgertest: gas limit required for %s", method)
	}
	m, decoded, err := b.decode(method, args)
	if err != nil {
		return nil, err
	}
	c := b.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	fault, faulted := c.faults[method]
	if faulted && fault.Once {
		delete(c.faults, method)
	}
	if faulted && fault.SendError != nil {
		return nil, fault.SendError
	}
	c.submissions[method]++
	c.txCount++
	c.block++
	txHash := gethcrypto.Keccak256Hash(b.from.Bytes(), []byte(method), new(big.Int).SetUint64(c.txCount).Bytes())

	snap := c.snapshot()
	logs, _, applyErr := c.apply(b.address, b.from, m.Name, decoded)
	receipt := &gethtypes.Receipt{
		Type:        gethtypes.DynamicFeeTxType,
		TxHash:      txHash,
		BlockNumber: new(big.Int).SetUint64(c.block),
		GasUsed:     gasLimit / 2,
		Status:      gethtypes.ReceiptStatusSuccessful,
	}
	var revert error
	if applyErr != nil {
		c.restore(snap)
		logs = nil
		receipt.Status = gethtypes.ReceiptStatusFailed
		revert = applyErr
	}
	if faulted {
		if fault.SkipEffects {
			c.restore(snap)
		}
		if fault.ForceStatus != nil {
			receipt.Status = *fault.ForceStatus
		}
		if fault.DropLogs {
			logs = nil
		}
	}
	for i, log := range logs {
		log.BlockNumber = c.block
		log.TxHash = txHash
		log.Index = uint(i)
		if !faulted || !fault.SkipEffects {
			c.logs = append(c.logs, *log)
		}
	}
	if faulted && fault.RewriteLogs != nil {
		logs = fault.RewriteLogs(logs)
	}
	receipt.Logs = logs
	return &submission{hash: txHash, receipt: receipt, revert: revert, neverConfirm: faulted && fault.NeverConfirm}, nil
}

func (b *binding) FilterLogs(ctx context.Context, q ledger.LogQuery) ([]gethtypes.Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	event, ok := b.abi.Events[q.Event]
	if !ok {
		return nil, fmt.Errorf("ledgertest: unknown event %q", q.Event)
	}
	c := b.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filterQueries = append(c.filterQueries, q)
	if c.MaxLogSpan > 0 && q.Span() > c.MaxLogSpan {
		return nil, fmt.Errorf("%w: %v", ledger.ErrLogRangeTooLarge, &RangeError{Limit: c.MaxLogSpan})
	}
	var out []gethtypes.Log
	for _, log := range c.logs {
		if log.Address != b.address || log.BlockNumber < q.FromBlock || log.BlockNumber > q.ToBlock {
			continue
		}
		if len(log.Topics) == 0 || log.Topics[0] != event.ID {
			continue
		}
		if !topicsMatch(log.Topics[1:], q.Topics) {
			continue
		}
		out = append(out, log)
	}
	return out, nil
}

func (b *binding) HeadBlock(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.chain.mu.Lock()
	defer b.chain.mu.Unlock()
	return b.chain.block, nil
}

func (b *binding) decode(method string, args []any) (abi.Method, []any, error) {
	m, ok := b.abi.Methods[method]
	if !ok {
		return abi.Method{}, nil, fmt.Errorf("ledgertest: unknown method %q", method)
	}
	packed, err := b.abi.Pack(method, args...)
	if err != nil {
		return abi.Method{}, nil, fmt.Errorf("ledgertest: pack %s: %w", method, err)
	}
	decoded, err := m.Inputs.Unpack(packed[4:])
	if err != nil {
		return abi.Method{}, nil, fmt.Errorf("ledgertest: unpack %s: %w", method, err)
	}
	return m, decoded, nil
}

func topicsMatch(topics []common.Hash, filter [][]common.Hash) bool {
	for i, allowed := range filter {
		if len(allowed) == 0 {
			continue
		}
		if i >= len(topics) {
			return false
		}
		matched := false
		for _, want := range allowed {
			if topics[i] == want {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

type submission struct {
	hash         common.Hash
	receipt      *gethtypes.Receipt
	revert       error
	neverConfirm bool
}

func (s *submission) Hash() common.Hash { return s.hash }

func (s *submission) Wait(ctx context.Context) (*gethtypes.Receipt, error) {
	if s.neverConfirm {
		<-ctx.Done()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ledger.ErrConfirmationTimeout, s.hash.Hex())
		}
		return nil, ctx.Err()
	}
	return s.receipt, nil
}

func (s *submission) RevertError(ctx context.Context, receipt *gethtypes.Receipt) error {
	if receipt == nil || receipt.Status == gethtypes.ReceiptStatusSuccessful {
		return nil
	}
	return s.revert
}

// revert builds the revert payload for a custom error.
func revert(contractABI *abi.ABI, name string, args ...any) error {
	def, ok := contractABI.Errors[name]
	if !ok {
		panic(fmt.Sprintf("ledgertest: unknown error %s", name))
	}
	packed, err := def.Inputs.Pack(args...)
	if err != nil {
		panic(fmt.Sprintf("ledgertest: pack error %s: %v", name, err))
	}
	data := append(append([]byte{}, def.ID[:4]...), packed...)
	return &RevertError{Data: data}
}

// RevertWithReason builds a revert carrying an Error(string) payload.
func RevertWithReason(reason string) error {
	typ, _ := abi.NewType("string", "", nil)
	packed, err := abi.Arguments{{Type: typ}}.Pack(reason)
	if err != nil {
		panic(err)
	}
	selector := gethcrypto.Keccak256([]byte("Error(string)"))[:4]
	return &RevertError{Data: append(append([]byte{}, selector...), packed...)}
}

func (c *Chain) newLog(contract common.Address, contractABI *abi.ABI, name string, indexed []common.Hash, data ...any) *gethtypes.Log {
	event, ok := contractABI.Events[name]
	if !ok {
		panic(fmt.Sprintf("ledgertest: unknown event %s", name))
	}
	packed, err := event.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		panic(fmt.Sprintf("ledgertest: pack event %s: %v", name, err))
	}
	topics := append([]common.Hash{event.ID}, indexed...)
	return &gethtypes.Log{Address: contract, Topics: topics, Data: packed}
}

func addrTopic(addr common.Address) common.Hash { return common.BytesToHash(addr.Bytes()) }

func u256(v uint64) *big.Int { return new(big.Int).SetUint64(v) }

type snapshot struct {
	wallet   walletState
	recovery recoveryState
}

func (c *Chain) snapshot() snapshot {
	return snapshot{wallet: c.wallet.clone(), recovery: c.recovery.clone()}
}

func (c *Chain) restore(s snapshot) {
	c.wallet = s.wallet
	c.recovery = s.recovery
}

func (c *Chain) view(contract common.Address, method string, args []any) ([]any, error) {
	switch contract {
	case c.walletAddr:
		return c.walletView(method, args)
	case c.moduleAddr:
		return c.recoveryView(method, args)
	default:
		return nil, fmt.Errorf("ledgertest: no contract at %s", contract.Hex())
	}
}

func (c *Chain) apply(contract, from common.Address, method string, args []any) ([]*gethtypes.Log, []any, error) {
	switch contract {
	case c.walletAddr:
		return c.walletApply(from, method, args)
	case c.moduleAddr:
		return c.recoveryApply(from, method, args)
	default:
		return nil, nil, fmt.Errorf("ledgertest: no contract at %s", contract.Hex())
	}
}
