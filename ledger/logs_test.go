package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type codedError struct {
	code int
	msg  string
}

func (e *codedError) Error() string  { return e.msg }
func (e *codedError) ErrorCode() int { return e.code }

func TestIsRangeTooLarge(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", fmt.Errorf("wrap: %w", ErrLogRangeTooLarge), true},
		{"message", errors.New("query returned more than 10000 results"), true},
		{"limit code", &codedError{code: -32005, msg: "limit exceeded"}, true},
		{"invalid params with range", &codedError{code: -32602, msg: "invalid range"}, true},
		{"invalid params", &codedError{code: -32602, msg: "invalid argument 0"}, false},
		{"transport", errors.New("dial tcp 127.0.0.1:8545: connection refused"), false},
		{"permission", &codedError{code: -32001, msg: "unauthorized"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsRangeTooLarge(tc.err))
		})
	}
}

func TestLogQuerySpan(t *testing.T) {
	require.Equal(t, uint64(5000), LogQuery{FromBlock: 1001, ToBlock: 6000}.Span())
	require.Equal(t, uint64(0), LogQuery{FromBlock: 10, ToBlock: 9}.Span())
}
