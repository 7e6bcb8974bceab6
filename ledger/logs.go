package ledger

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// ErrLogRangeTooLarge marks log queries the remote rejected for covering too
// many blocks or returning too many results.
var ErrLogRangeTooLarge = errors.New("ledger: log query range too large")

// rangeErrorCodes are JSON-RPC codes providers use for oversized log queries.
var rangeErrorCodes = map[int]struct{}{
	-32005: {},
	-32602: {},
}

var rangeErrorFragments = []string{
	"block range",
	"range too large",
	"range is too large",
	"query returned more than",
	"too many blocks",
	"exceed maximum block range",
	"exceeds max results",
	"log response size exceeded",
	"query timeout exceeded",
}

// IsRangeTooLarge reports whether err is a remote rejection of the log window
// size rather than a transport or permission failure.
func IsRangeTooLarge(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrLogRangeTooLarge) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range rangeErrorFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		if _, ok := rangeErrorCodes[rpcErr.ErrorCode()]; ok {
			// -32602 is also used for plain invalid params, so require a
			// range-flavoured message alongside it.
			return rpcErr.ErrorCode() == -32005 || strings.Contains(msg, "range")
		}
	}
	return false
}
