package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Kind enumerates the closed set of failure categories surfaced by the
// coordinators.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindUserRejected
	KindNotAuthorized
	KindNotFound
	KindAlreadyExecuted
	KindAlreadyCancelled
	KindAlreadyApproved
	KindNotApproved
	KindDuplicate
	KindThresholdNotMet
	KindWouldViolateInvariant
	KindTimelockActive
	KindInvalidArgument
	KindHashMismatch
	KindSimulationFailed
	KindSubmissionReverted
	KindEventNotFound
	KindTimeout
	KindUnavailable
	// KindLogRangeTooLarge is recovered inside the reconciler and never
	// returned from a public method.
	KindLogRangeTooLarge
)

var kindNames = map[Kind]string{
	KindUnknown:               "unknown",
	KindUserRejected:          "user_rejected",
	KindNotAuthorized:         "not_authorized",
	KindNotFound:              "not_found",
	KindAlreadyExecuted:       "already_executed",
	KindAlreadyCancelled:      "already_cancelled",
	KindAlreadyApproved:       "already_approved",
	KindNotApproved:           "not_approved",
	KindDuplicate:             "duplicate",
	KindThresholdNotMet:       "threshold_not_met",
	KindWouldViolateInvariant: "would_violate_invariant",
	KindTimelockActive:        "timelock_active",
	KindInvalidArgument:       "invalid_argument",
	KindHashMismatch:          "hash_mismatch",
	KindSimulationFailed:      "simulation_failed",
	KindSubmissionReverted:    "submission_reverted",
	KindEventNotFound:         "event_not_found",
	KindTimeout:               "timeout",
	KindUnavailable:           "unavailable",
	KindLogRangeTooLarge:      "log_range_too_large",
}

// String returns the stable label used in logs and metrics.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// Retryable reports whether repeating the same call may succeed without any
// change in ledger state.
func (k Kind) Retryable() bool {
	switch k {
	case KindTimeout, KindUnavailable:
		return true
	default:
		return false
	}
}

// Error is the tagged failure returned by every coordinator operation.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	// Reason is the decoded remote failure reason, when one was available.
	Reason string
	// Hash identifies the operation or recovery the failure refers to.
	Hash common.Hash
	// TxHash is set once a submission has left the client.
	TxHash common.Hash
	// Approvals carries the current approval count for duplicate and
	// threshold failures.
	Approvals uint64
	Receipt   *gethtypes.Receipt
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	msg := e.Message
	if msg == "" {
		msg = strings.ReplaceAll(e.Kind.String(), "_", " ")
	}
	b.WriteString(msg)
	if e.Reason != "" && !strings.Contains(msg, e.Reason) {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil && e.Reason == "" {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel values by kind so callers can write
// errors.Is(err, errors.ErrAlreadyExecuted).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if t.sentinel() {
		return t.Kind == e.Kind
	}
	return t == e
}

func (e *Error) sentinel() bool {
	return e.Op == "" && e.Message == "" && e.Err == nil && e.Receipt == nil
}

// Sentinels usable with errors.Is.
var (
	ErrUserRejected          = &Error{Kind: KindUserRejected}
	ErrNotAuthorized         = &Error{Kind: KindNotAuthorized}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrAlreadyExecuted       = &Error{Kind: KindAlreadyExecuted}
	ErrAlreadyCancelled      = &Error{Kind: KindAlreadyCancelled}
	ErrAlreadyApproved       = &Error{Kind: KindAlreadyApproved}
	ErrNotApproved           = &Error{Kind: KindNotApproved}
	ErrDuplicate             = &Error{Kind: KindDuplicate}
	ErrThresholdNotMet       = &Error{Kind: KindThresholdNotMet}
	ErrWouldViolateInvariant = &Error{Kind: KindWouldViolateInvariant}
	ErrTimelockActive        = &Error{Kind: KindTimelockActive}
	ErrInvalidArgument       = &Error{Kind: KindInvalidArgument}
	ErrHashMismatch          = &Error{Kind: KindHashMismatch}
	ErrSimulationFailed      = &Error{Kind: KindSimulationFailed}
	ErrSubmissionReverted    = &Error{Kind: KindSubmissionReverted}
	ErrEventNotFound         = &Error{Kind: KindEventNotFound}
	ErrTimeout               = &Error{Kind: KindTimeout}
	ErrUnavailable           = &Error{Kind: KindUnavailable}
	ErrLogRangeTooLarge      = &Error{Kind: KindLogRangeTooLarge}
)

// New constructs a tagged error with a formatted message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags cause with kind. A cause that already carries a kind is returned
// unchanged so the innermost classification wins.
func Wrap(kind Kind, op string, cause error, format string, args ...any) *Error {
	var existing *Error
	if stderrors.As(cause, &existing) && existing.Kind != KindUnknown {
		return existing
	}
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf extracts the kind from err, returning KindUnknown for untagged errors.
func KindOf(err error) Kind {
	var tagged *Error
	if stderrors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindUnknown
}

// As is a convenience wrapper around errors.As for *Error.
func As(err error) (*Error, bool) {
	var tagged *Error
	ok := stderrors.As(err, &tagged)
	return tagged, ok
}

// WithHash annotates e with the affected hash and returns it.
func (e *Error) WithHash(hash common.Hash) *Error {
	e.Hash = hash
	return e
}

// WithReason annotates e with a decoded reason and returns it.
func (e *Error) WithReason(reason string) *Error {
	e.Reason = reason
	return e
}

// WithReceipt attaches the confirmation record and its transaction hash.
func (e *Error) WithReceipt(receipt *gethtypes.Receipt) *Error {
	e.Receipt = receipt
	if receipt != nil {
		e.TxHash = receipt.TxHash
	}
	return e
}
