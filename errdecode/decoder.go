// Package errdecode turns failures returned by the ledger client into short
// human-readable reasons.
package errdecode

import (
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	lru "github.com/hashicorp/golang-lru/v2"

	coreerrors "vaultguard/core/errors"
)

const (
	// UserRejectedMessage is returned for every failure classified as a
	// signer refusal, whatever the underlying wording.
	UserRejectedMessage = "Transaction was rejected by user"
	// UnknownMessage is the reason of last resort.
	UnknownMessage = "Unknown error"

	selectorCacheSize = 256
)

var (
	errorStringSelector = [4]byte{0x08, 0xc3, 0x79, 0xa0}
	panicSelector       = [4]byte{0x4e, 0x48, 0x7b, 0x71}
)

// rejectionCodes are provider codes used when the signer refuses a request.
var rejectionCodes = map[int]struct{}{
	4001: {},
	5000: {},
}

var rejectionFragments = []string{"rejected", "denied", "cancelled", "action_rejected"}

// Reasoner is implemented by errors carrying an explicit revert reason.
type Reasoner interface {
	Reason() string
}

// Decoder resolves revert payloads against a fixed set of interface
// descriptions. It is safe for concurrent use.
type Decoder struct {
	abis  []*abi.ABI
	cache *lru.Cache[[4]byte, *abi.Error]
}

// New returns a decoder that resolves custom errors declared in abis.
func New(abis ...*abi.ABI) *Decoder {
	cache, err := lru.New[[4]byte, *abi.Error](selectorCacheSize)
	if err != nil {
		// Only reachable with a non-positive size.
		panic(err)
	}
	filtered := make([]*abi.ABI, 0, len(abis))
	for _, a := range abis {
		if a != nil {
			filtered = append(filtered, a)
		}
	}
	return &Decoder{abis: filtered, cache: cache}
}

// Decode returns the most specific reason available for err. Tiers are tried
// in order: an explicit reason field, a structured decode of the revert
// payload, and a raw string heuristic. Signer refusals short-circuit to
// UserRejectedMessage before any tier runs.
func (d *Decoder) Decode(err error) string {
	if err == nil {
		return ""
	}
	if IsUserRejection(err) {
		return UserRejectedMessage
	}
	if reason := explicitReason(err); reason != "" {
		return reason
	}
	if data := RevertData(err); len(data) > 0 {
		if reason, decodeErr := d.decodeStructured(data); decodeErr == nil && reason != "" {
			return reason
		}
		if reason, ok := decodeRawString(data); ok {
			return reason
		}
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return UnknownMessage
}

// IsUserRejection reports whether err is a signer refusal. Errors carrying
// revert data are never refusals: their messages come from the contract.
func IsUserRejection(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, coreerrors.ErrUserRejected) {
		return true
	}
	if tagged, ok := coreerrors.As(err); ok && tagged.Kind != coreerrors.KindUnknown {
		return false
	}
	if len(RevertData(err)) > 0 {
		return false
	}
	var rpcErr rpc.Error
	if stderrors.As(err, &rpcErr) {
		if _, ok := rejectionCodes[rpcErr.ErrorCode()]; ok {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range rejectionFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// RevertData extracts the raw revert payload carried by err, if any.
func RevertData(err error) []byte {
	var dataErr rpc.DataError
	if !stderrors.As(err, &dataErr) {
		return nil
	}
	switch data := dataErr.ErrorData().(type) {
	case []byte:
		return data
	case string:
		raw, decodeErr := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(data, "0x"), "0X"))
		if decodeErr != nil {
			return nil
		}
		return raw
	case fmt.Stringer:
		raw, decodeErr := hex.DecodeString(strings.TrimPrefix(data.String(), "0x"))
		if decodeErr != nil {
			return nil
		}
		return raw
	default:
		return nil
	}
}

// ErrorName returns the name of the custom error encoded in err's revert
// payload, or "" when it is absent or unknown to the decoder.
func (d *Decoder) ErrorName(err error) string {
	data := RevertData(err)
	if len(data) < 4 {
		return ""
	}
	def, ok := d.lookup(data)
	if !ok {
		return ""
	}
	return def.Name
}

func explicitReason(err error) string {
	var reasoner Reasoner
	if stderrors.As(err, &reasoner) {
		if reason := strings.TrimSpace(reasoner.Reason()); reason != "" {
			return reason
		}
	}
	if tagged, ok := coreerrors.As(err); ok && strings.TrimSpace(tagged.Reason) != "" {
		return strings.TrimSpace(tagged.Reason)
	}
	const marker = "execution reverted:"
	msg := err.Error()
	if idx := strings.Index(strings.ToLower(msg), marker); idx >= 0 {
		return strings.TrimSpace(msg[idx+len(marker):])
	}
	return ""
}

func (d *Decoder) decodeStructured(data []byte) (string, error) {
	if len(data) < 4 {
		return "", fmt.Errorf("errdecode: payload too short (%d bytes)", len(data))
	}
	var selector [4]byte
	copy(selector[:], data[:4])
	switch selector {
	case errorStringSelector:
		return abi.UnpackRevert(data)
	case panicSelector:
		values, err := mustType("uint256").Unpack(data[4:])
		if err != nil {
			return "", err
		}
		code, _ := values[0].(*big.Int)
		return panicReason(code), nil
	}
	def, ok := d.lookup(data)
	if !ok {
		return "", fmt.Errorf("errdecode: unknown selector %#x", selector)
	}
	values, err := def.Inputs.Unpack(data[4:])
	if err != nil {
		return "", fmt.Errorf("errdecode: unpack %s: %w", def.Name, err)
	}
	return formatCustom(def.Name, values), nil
}

func (d *Decoder) lookup(data []byte) (*abi.Error, bool) {
	var selector [4]byte
	copy(selector[:], data[:4])
	if def, ok := d.cache.Get(selector); ok {
		return def, def != nil
	}
	for _, a := range d.abis {
		def, err := a.ErrorByID(selector)
		if err == nil {
			d.cache.Add(selector, def)
			return def, true
		}
	}
	d.cache.Add(selector, nil)
	return nil, false
}

// decodeRawString reads data as an ABI-encoded string, with or without a
// leading selector.
func decodeRawString(data []byte) (string, bool) {
	for _, body := range [][]byte{data, trimSelector(data)} {
		if s, ok := rawString(body); ok {
			return s, true
		}
	}
	return "", false
}

func trimSelector(data []byte) []byte {
	if len(data) < 4 {
		return nil
	}
	return data[4:]
}

func rawString(body []byte) (string, bool) {
	if len(body) < 64 {
		return "", false
	}
	size := uint64(len(body))
	offset := new(big.Int).SetBytes(body[:32])
	if !offset.IsUint64() || offset.Uint64() > size-32 {
		return "", false
	}
	start := offset.Uint64()
	length := new(big.Int).SetBytes(body[start : start+32])
	if !length.IsUint64() || length.Uint64() == 0 || length.Uint64() > size-start-32 {
		return "", false
	}
	raw := body[start+32 : start+32+length.Uint64()]
	if !utf8.Valid(raw) {
		return "", false
	}
	for _, r := range string(raw) {
		if r < 0x20 && r != '\n' && r != '\t' {
			return "", false
		}
	}
	return string(raw), true
}

func formatCustom(name string, values []any) string {
	if len(values) == 0 {
		return name
	}
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, formatValue(v))
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
}

func formatValue(v any) string {
	switch val := v.(type) {
	case common.Address:
		return val.Hex()
	case []common.Address:
		out := make([]string, len(val))
		for i, a := range val {
			out[i] = a.Hex()
		}
		return "[" + strings.Join(out, ", ") + "]"
	case [32]byte:
		return common.Hash(val).Hex()
	case common.Hash:
		return val.Hex()
	case *big.Int:
		if val == nil {
			return "0"
		}
		return val.String()
	case []byte:
		return "0x" + hex.EncodeToString(val)
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprint(val)
	}
}

var panicReasons = map[uint64]string{
	0x01: "assertion failed",
	0x11: "arithmetic overflow or underflow",
	0x12: "division or modulo by zero",
	0x21: "invalid enum value",
	0x22: "invalid storage byte array",
	0x31: "pop on empty array",
	0x32: "array index out of bounds",
	0x41: "out of memory",
	0x51: "call to uninitialised function",
}

func panicReason(code *big.Int) string {
	if code == nil || !code.IsUint64() {
		return "panic"
	}
	if desc, ok := panicReasons[code.Uint64()]; ok {
		return fmt.Sprintf("panic: %s (0x%x)", desc, code.Uint64())
	}
	return fmt.Sprintf("panic: code 0x%x", code.Uint64())
}

func mustType(kind string) abi.Arguments {
	typ, err := abi.NewType(kind, "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: typ}}
}
