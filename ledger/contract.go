package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// ErrReadOnly is returned when a mutating call is attempted without a signer.
var ErrReadOnly = errors.New("ledger: contract bound without signer")

// LogQuery selects notices of one kind emitted by a contract within an
// inclusive block window. Topics holds filters for the indexed arguments, in
// declaration order, after the event signature topic.
type LogQuery struct {
	Event     string
	Topics    [][]common.Hash
	FromBlock uint64
	ToBlock   uint64
}

// Span returns the number of blocks covered by the window.
func (q LogQuery) Span() uint64 {
	if q.ToBlock < q.FromBlock {
		return 0
	}
	return q.ToBlock - q.FromBlock + 1
}

// Submission is a call that has left the client. Its effect is decided only
// by the ledger; abandoning Wait does not withdraw it.
type Submission interface {
	Hash() common.Hash
	// Wait blocks until a confirmation record is available, the confirmation
	// ceiling elapses, or ctx is cancelled.
	Wait(ctx context.Context) (*gethtypes.Receipt, error)
	// RevertError replays the call at the receipt's block to recover the
	// revert payload of a failed submission. It returns nil when the replay
	// succeeds.
	RevertError(ctx context.Context, receipt *gethtypes.Receipt) error
}

// Contract is the request/response view of a deployed ledger contract bound
// to a single caller identity.
type Contract interface {
	Address() common.Address
	From() common.Address
	ABI() *abi.ABI
	// Call performs a read-only query and returns the unpacked outputs.
	Call(ctx context.Context, method string, args ...any) ([]any, error)
	// Estimate simulates a mutating call and returns its gas cost.
	Estimate(ctx context.Context, method string, args ...any) (uint64, error)
	// Transact signs and submits a mutating call with the supplied gas limit.
	Transact(ctx context.Context, gasLimit uint64, method string, args ...any) (Submission, error)
	// FilterLogs queries the append-only log. Windows the remote rejects as
	// too large fail with an error matching ErrLogRangeTooLarge.
	FilterLogs(ctx context.Context, q LogQuery) ([]gethtypes.Log, error)
	HeadBlock(ctx context.Context) (uint64, error)
}

// BoundContract implements Contract over a JSON-RPC backend.
type BoundContract struct {
	address common.Address
	abi     *abi.ABI
	backend Backend
	signer  *Signer
	caller  common.Address

	pollInterval time.Duration
	timeout      time.Duration
}

// BindOption customises a BoundContract.
type BindOption func(*BoundContract)

// WithSigner attaches the key used for submissions. The signer's address
// becomes the caller identity.
func WithSigner(signer *Signer) BindOption {
	return func(c *BoundContract) {
		c.signer = signer
		if signer != nil {
			c.caller = signer.Address()
		}
	}
}

// WithCaller sets the identity used for simulations on a read-only binding.
func WithCaller(addr common.Address) BindOption {
	return func(c *BoundContract) { c.caller = addr }
}

// WithConfirmation overrides the receipt polling cadence and the ceiling on
// how long the client waits for a confirmation record.
func WithConfirmation(poll, timeout time.Duration) BindOption {
	return func(c *BoundContract) {
		if poll > 0 {
			c.pollInterval = poll
		}
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewBoundContract binds the interface description to address.
func NewBoundContract(address common.Address, contractABI *abi.ABI, backend Backend, opts ...BindOption) *BoundContract {
	c := &BoundContract{
		address:      address,
		abi:          contractABI,
		backend:      backend,
		pollInterval: DefaultPollInterval,
		timeout:      DefaultConfirmationTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Address implements Contract.
func (c *BoundContract) Address() common.Address { return c.address }

// From implements Contract.
func (c *BoundContract) From() common.Address { return c.caller }

// ABI implements Contract.
func (c *BoundContract) ABI() *abi.ABI { return c.abi }

// Call implements Contract.
func (c *BoundContract) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: pack %s: %w", method, err)
	}
	to := c.address
	output, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.caller, To: &to, Data: input}, nil)
	if err != nil {
		return nil, err
	}
	values, err := c.abi.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("ledger: unpack %s: %w", method, err)
	}
	return values, nil
}

// Estimate implements Contract.
func (c *BoundContract) Estimate(ctx context.Context, method string, args ...any) (uint64, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return 0, fmt.Errorf("ledger: pack %s: %w", method, err)
	}
	to := c.address
	return c.backend.EstimateGas(ctx, ethereum.CallMsg{From: c.caller, To: &to, Data: input})
}

// Transact implements Contract.
func (c *BoundContract) Transact(ctx context.Context, gasLimit uint64, method string, args ...any) (Submission, error) {
	if c.signer == nil {
		return nil, ErrReadOnly
	}
	if gasLimit == 0 {
		return nil, fmt.Errorf("ledger: gas limit required for %s", method)
	}
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: pack %s: %w", method, err)
	}
	nonce, err := c.backend.PendingNonceAt(ctx, c.signer.Address())
	if err != nil {
		return nil, fmt.Errorf("ledger: pending nonce: %w", err)
	}
	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: suggest tip: %w", err)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: fetch head: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head != nil && head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}
	to := c.address
	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   c.signer.ChainID(),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     new(big.Int),
		Data:      input,
	})
	signed, err := c.signer.SignTx(tx)
	if err != nil {
		return nil, fmt.Errorf("ledger: sign %s: %w", method, err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, err
	}
	return &pendingTx{contract: c, tx: signed}, nil
}

// FilterLogs implements Contract.
func (c *BoundContract) FilterLogs(ctx context.Context, q LogQuery) ([]gethtypes.Log, error) {
	event, ok := c.abi.Events[q.Event]
	if !ok {
		return nil, fmt.Errorf("ledger: unknown event %q", q.Event)
	}
	topics := make([][]common.Hash, 0, len(q.Topics)+1)
	topics = append(topics, []common.Hash{event.ID})
	topics = append(topics, q.Topics...)
	logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(q.FromBlock),
		ToBlock:   new(big.Int).SetUint64(q.ToBlock),
		Addresses: []common.Address{c.address},
		Topics:    topics,
	})
	if err != nil {
		if IsRangeTooLarge(err) {
			return nil, fmt.Errorf("%w: %v", ErrLogRangeTooLarge, err)
		}
		return nil, err
	}
	return logs, nil
}

// HeadBlock implements Contract.
func (c *BoundContract) HeadBlock(ctx context.Context) (uint64, error) {
	return c.backend.BlockNumber(ctx)
}

type pendingTx struct {
	contract *BoundContract
	tx       *gethtypes.Transaction
}

func (p *pendingTx) Hash() common.Hash { return p.tx.Hash() }

func (p *pendingTx) Wait(ctx context.Context) (*gethtypes.Receipt, error) {
	return WaitMined(ctx, p.contract.backend, p.tx.Hash(), p.contract.pollInterval, p.contract.timeout)
}

func (p *pendingTx) RevertError(ctx context.Context, receipt *gethtypes.Receipt) error {
	if receipt == nil || receipt.Status == gethtypes.ReceiptStatusSuccessful {
		return nil
	}
	msg := ethereum.CallMsg{
		From:  p.contract.caller,
		To:    p.tx.To(),
		Gas:   p.tx.Gas(),
		Value: p.tx.Value(),
		Data:  p.tx.Data(),
	}
	_, err := p.contract.backend.CallContract(ctx, msg, receipt.BlockNumber)
	return err
}
