package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// DefaultKarmaScale is the number of decimal places between a human Karma
// value and ledger base units.
const DefaultKarmaScale = 9

var errBadAmount = errors.New("invalid amount")

func pow10(k uint) (*uint256.Int, error) {
	ten := uint256.NewInt(10)
	out := uint256.NewInt(1)
	for i := uint(0); i < k; i++ {
		next, overflow := new(uint256.Int).MulOverflow(out, ten)
		if overflow {
			return nil, fmt.Errorf("%w: scale %d too large", errBadAmount, k)
		}
		out = next
	}
	return out, nil
}

// ScaleUp converts a human decimal string such as "12.5" into base units,
// value × 10^k. More than k fractional digits is an error, as is overflow.
func ScaleUp(human string, k uint) (*uint256.Int, error) {
	human = strings.TrimSpace(human)
	if human == "" {
		return nil, fmt.Errorf("%w: empty", errBadAmount)
	}
	whole, frac, _ := strings.Cut(human, ".")
	if whole == "" {
		whole = "0"
	}
	if uint(len(frac)) > k {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", errBadAmount, human, k)
	}
	frac += strings.Repeat("0", int(k)-len(frac))
	digits := strings.TrimLeft(whole+frac, "0")
	if digits == "" {
		return new(uint256.Int), nil
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("%w: %q", errBadAmount, human)
		}
	}
	v, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadAmount, err)
	}
	return v, nil
}

// ScaleDown renders base units as a human decimal string with trailing
// fractional zeros removed.
func ScaleDown(amount *uint256.Int, k uint) string {
	if amount == nil {
		return "0"
	}
	s := amount.Dec()
	if k == 0 {
		return s
	}
	if uint(len(s)) <= k {
		s = strings.Repeat("0", int(k)-len(s)+1) + s
	}
	cut := len(s) - int(k)
	whole, frac := s[:cut], strings.TrimRight(s[cut:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// WholeKarma is n human Karma at scale k. It panics on overflow and is meant
// for constants and tests.
func WholeKarma(n uint64, k uint) *uint256.Int {
	p, err := pow10(k)
	if err != nil {
		panic(err)
	}
	v, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(n), p)
	if overflow {
		panic("types: karma amount overflows")
	}
	return v
}
