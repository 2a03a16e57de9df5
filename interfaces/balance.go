package interfaces

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	ErrBalanceOverflow  = errors.New("balance overflow")
	ErrBalanceUnderflow = errors.New("balance underflow")
)

// Balance is an amount of native tokens in the smallest denomination.
// It is a value type; the zero value is a zero balance.
// Text and JSON encodings use a decimal string so that 128-bit amounts survive JSON clients.
type Balance struct {
	v uint256.Int
}

// NewBalance returns a balance holding n units.
func NewBalance(n uint64) Balance {
	var b Balance
	b.v.SetUint64(n)
	return b
}

// ParseBalance parses a base-10 amount.
func ParseBalance(s string) (Balance, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Balance{}, fmt.Errorf("invalid balance %q: %w", s, err)
	}
	return Balance{v: *v}, nil
}

// MustParseBalance is ParseBalance for constants; it panics on malformed input.
func MustParseBalance(s string) Balance {
	b, err := ParseBalance(s)
	if err != nil {
		panic(err)
	}
	return b
}

// BalanceFromBig converts a non-negative big integer that fits in 256 bits.
func BalanceFromBig(x *big.Int) (Balance, error) {
	if x.Sign() < 0 {
		return Balance{}, ErrBalanceUnderflow
	}
	v, overflow := uint256.FromBig(x)
	if overflow {
		return Balance{}, ErrBalanceOverflow
	}
	return Balance{v: *v}, nil
}

func (b Balance) String() string {
	return b.v.Dec()
}

func (b Balance) Cmp(other Balance) int {
	return b.v.Cmp(&other.v)
}

func (b Balance) Lt(other Balance) bool {
	return b.v.Lt(&other.v)
}

func (b Balance) IsZero() bool {
	return b.v.IsZero()
}

// Add returns b+other or ErrBalanceOverflow.
func (b Balance) Add(other Balance) (Balance, error) {
	var res Balance
	if _, overflow := res.v.AddOverflow(&b.v, &other.v); overflow {
		return Balance{}, ErrBalanceOverflow
	}
	return res, nil
}

// Sub returns b-other or ErrBalanceUnderflow.
func (b Balance) Sub(other Balance) (Balance, error) {
	var res Balance
	if _, underflow := res.v.SubOverflow(&b.v, &other.v); underflow {
		return Balance{}, ErrBalanceUnderflow
	}
	return res, nil
}

// Big returns the amount as a new big.Int.
func (b Balance) Big() *big.Int {
	return b.v.ToBig()
}

func (b Balance) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *Balance) UnmarshalText(text []byte) error {
	parsed, err := ParseBalance(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}
