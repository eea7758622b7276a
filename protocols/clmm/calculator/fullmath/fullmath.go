// Package fullmath holds the widening multiply/divide helpers shared by the
// CLMM and stable-swap engines. Every function writes into a destination and
// is exact: products are formed at full width before dividing, and the
// rounding direction is always explicit.
package fullmath

import (
	"errors"
	"math/big"
	"sync"
)

var (
	ErrDivideByZero = errors.New("division by zero")
	ErrOverflow     = errors.New("result overflows target width")
	ErrNegative     = errors.New("unsigned operand is negative")

	one = big.NewInt(1)

	// Q64 is 1.0 in Q64.64.
	Q64 = new(big.Int).Lsh(one, 64)
	// MaxU64 is 2^64 - 1.
	MaxU64 = new(big.Int).Sub(new(big.Int).Lsh(one, 64), one)
	// MaxU128 is 2^128 - 1.
	MaxU128 = new(big.Int).Sub(new(big.Int).Lsh(one, 128), one)
	// MaxU256 is 2^256 - 1.
	MaxU256 = new(big.Int).Sub(new(big.Int).Lsh(one, 256), one)
)

type scratch struct {
	product *big.Int
	rem     *big.Int
	half    *big.Int
}

var pool = sync.Pool{
	New: func() any {
		return &scratch{
			product: new(big.Int),
			rem:     new(big.Int),
			half:    new(big.Int),
		}
	},
}

// MulDivFloor writes floor(a*b/denom) into dest.
func MulDivFloor(dest, a, b, denom *big.Int) error {
	if denom.Sign() == 0 {
		return ErrDivideByZero
	}
	s := pool.Get().(*scratch)
	defer pool.Put(s)

	s.product.Mul(a, b)
	dest.Quo(s.product, denom)
	return nil
}

// MulDivCeil writes ceil(a*b/denom) into dest.
func MulDivCeil(dest, a, b, denom *big.Int) error {
	if denom.Sign() == 0 {
		return ErrDivideByZero
	}
	s := pool.Get().(*scratch)
	defer pool.Put(s)

	s.product.Mul(a, b)
	dest.QuoRem(s.product, denom, s.rem)
	if s.rem.Sign() > 0 {
		dest.Add(dest, one)
	}
	return nil
}

// MulDivRound writes a*b/denom rounded half up into dest.
func MulDivRound(dest, a, b, denom *big.Int) error {
	if denom.Sign() == 0 {
		return ErrDivideByZero
	}
	s := pool.Get().(*scratch)
	defer pool.Put(s)

	s.product.Mul(a, b)
	s.half.Rsh(denom, 1)
	s.product.Add(s.product, s.half)
	dest.Quo(s.product, denom)
	return nil
}

// DivRound writes num/denom into dest, rounding up when roundUp is set and
// the division is inexact.
func DivRound(dest, num, denom *big.Int, roundUp bool) error {
	if denom.Sign() == 0 {
		return ErrDivideByZero
	}
	s := pool.Get().(*scratch)
	defer pool.Put(s)

	s.product.Set(num)
	dest.QuoRem(s.product, denom, s.rem)
	if roundUp && s.rem.Sign() > 0 {
		dest.Add(dest, one)
	}
	return nil
}

// MulShr writes (a*b) >> shift into dest, adding one when roundUp is set and
// any shifted-out bit was non-zero.
func MulShr(dest, a, b *big.Int, shift uint, roundUp bool) {
	s := pool.Get().(*scratch)
	defer pool.Put(s)

	s.product.Mul(a, b)
	inexact := roundUp && s.product.TrailingZeroBits() < shift && s.product.Sign() != 0
	dest.Rsh(s.product, shift)
	if inexact {
		dest.Add(dest, one)
	}
}

// ShlDiv writes (a << shift) / denom into dest with the requested rounding.
func ShlDiv(dest, a *big.Int, shift uint, denom *big.Int, roundUp bool) error {
	if denom.Sign() == 0 {
		return ErrDivideByZero
	}
	s := pool.Get().(*scratch)
	defer pool.Put(s)

	s.product.Lsh(a, shift)
	dest.QuoRem(s.product, denom, s.rem)
	if roundUp && s.rem.Sign() > 0 {
		dest.Add(dest, one)
	}
	return nil
}

// CheckU64 reports ErrOverflow when x does not fit an unsigned 64-bit word.
func CheckU64(x *big.Int) error {
	return checkRange(x, MaxU64)
}

// CheckU128 reports ErrOverflow when x does not fit 128 unsigned bits.
func CheckU128(x *big.Int) error {
	return checkRange(x, MaxU128)
}

// CheckU256 reports ErrOverflow when x does not fit 256 unsigned bits.
func CheckU256(x *big.Int) error {
	return checkRange(x, MaxU256)
}

func checkRange(x, max *big.Int) error {
	if x.Sign() < 0 {
		return ErrNegative
	}
	if x.Cmp(max) > 0 {
		return ErrOverflow
	}
	return nil
}

// WrappingAddU128 writes (a + b) mod 2^128 into dest.
func WrappingAddU128(dest, a, b *big.Int) {
	dest.Add(a, b)
	dest.And(dest, MaxU128)
}

// WrappingSubU128 writes (a - b) mod 2^128 into dest.
func WrappingSubU128(dest, a, b *big.Int) {
	dest.Sub(a, b)
	// And on a negative big.Int uses two's complement semantics.
	dest.And(dest, MaxU128)
}
