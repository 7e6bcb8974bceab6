package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

func outAt(out []any, i int, method string) (any, error) {
	if i >= len(out) {
		return nil, fmt.Errorf("ledger: %s returned %d values, want index %d", method, len(out), i)
	}
	return out[i], nil
}

func outAddress(out []any, i int, method string) (common.Address, error) {
	v, err := outAt(out, i, method)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := v.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("ledger: %s[%d] is %T, want address", method, i, v)
	}
	return addr, nil
}

func outAddresses(out []any, i int, method string) ([]common.Address, error) {
	v, err := outAt(out, i, method)
	if err != nil {
		return nil, err
	}
	addrs, ok := v.([]common.Address)
	if !ok {
		return nil, fmt.Errorf("ledger: %s[%d] is %T, want address[]", method, i, v)
	}
	return append([]common.Address(nil), addrs...), nil
}

func outBig(out []any, i int, method string) (*big.Int, error) {
	v, err := outAt(out, i, method)
	if err != nil {
		return nil, err
	}
	n, ok := v.(*big.Int)
	if !ok || n == nil {
		return nil, fmt.Errorf("ledger: %s[%d] is %T, want uint256", method, i, v)
	}
	return new(big.Int).Set(n), nil
}

func outUint64(out []any, i int, method string) (uint64, error) {
	n, err := outBig(out, i, method)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("ledger: %s[%d] value %s exceeds uint64", method, i, n)
	}
	return n.Uint64(), nil
}

func outBool(out []any, i int, method string) (bool, error) {
	v, err := outAt(out, i, method)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("ledger: %s[%d] is %T, want bool", method, i, v)
	}
	return b, nil
}

func outBytes(out []any, i int, method string) ([]byte, error) {
	v, err := outAt(out, i, method)
	if err != nil {
		return nil, err
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("ledger: %s[%d] is %T, want bytes", method, i, v)
	}
	return append([]byte(nil), b...), nil
}

func outHash(out []any, i int, method string) (common.Hash, error) {
	v, err := outAt(out, i, method)
	if err != nil {
		return common.Hash{}, err
	}
	h, ok := asHash(v)
	if !ok {
		return common.Hash{}, fmt.Errorf("ledger: %s[%d] is %T, want bytes32", method, i, v)
	}
	return h, nil
}
