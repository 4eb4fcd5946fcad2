package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Amounts are stored as 32 byte big-endian blobs. SQLite compares blobs with
// memcmp, so ORDER BY on an amount column is numeric order.

func encodeAmount(v *uint256.Int) []byte {
	if v == nil {
		v = new(uint256.Int)
	}
	b := v.Bytes32()
	return b[:]
}

func decodeAmount(b []byte) (*uint256.Int, error) {
	if len(b) == 0 {
		return new(uint256.Int), nil
	}
	if len(b) > 32 {
		return nil, fmt.Errorf("amount blob has %d bytes", len(b))
	}
	return new(uint256.Int).SetBytes(b), nil
}

func zero() *uint256.Int { return new(uint256.Int) }

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return zero()
	}
	return v
}

func add(op string, a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(orZero(a), orZero(b))
	if overflow {
		return nil, fail(CodeOverflow, op, "%s + %s", orZero(a).Dec(), orZero(b).Dec())
	}
	return out, nil
}

// sub fails with code when b > a.
func sub(op string, code Code, a, b *uint256.Int) (*uint256.Int, error) {
	out, underflow := new(uint256.Int).SubOverflow(orZero(a), orZero(b))
	if underflow {
		return nil, fail(code, op, "have %s, need %s", orZero(a).Dec(), orZero(b).Dec())
	}
	return out, nil
}

func mul(op string, a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(orZero(a), orZero(b))
	if overflow {
		return nil, fail(CodeOverflow, op, "%s * %s", orZero(a).Dec(), orZero(b).Dec())
	}
	return out, nil
}

func minAmount(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a.Clone()
	}
	return b.Clone()
}
