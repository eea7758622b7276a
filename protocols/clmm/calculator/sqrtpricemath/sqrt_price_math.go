package sqrtpricemath

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/fullmath"
	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/tickmath"
)

var (
	// Resolution is the number of fractional bits in the Q64.64 format.
	Resolution = uint(64)

	ErrLiquidityZero          = errors.New("liquidity must be greater than zero")
	ErrSqrtPriceZero          = errors.New("sqrt price must be greater than zero")
	ErrMultiplicationOverflow = errors.New("multiplication overflow")
	ErrDenominatorUnderflow   = errors.New("denominator underflow")
)

// SqrtPriceMath holds reusable big.Int objects to avoid memory allocations.
// Instances are managed by a sync.Pool for safe concurrent use.
type SqrtPriceMath struct {
	product     *big.Int
	numerator   *big.Int
	denominator *big.Int
	diff        *big.Int
	delta       *big.Int
}

// pool manages a pool of SqrtPriceMath objects.
var pool = sync.Pool{
	New: func() any {
		return &SqrtPriceMath{
			product:     new(big.Int),
			numerator:   new(big.Int),
			denominator: new(big.Int),
			diff:        new(big.Int),
			delta:       new(big.Int),
		}
	},
}

// --- Public API with Destination-Passing ---

// GetDeltaA is the amount of asset A between two prices at a liquidity:
// L * |p1 - p0| * 2^64 / (p0 * p1).
func GetDeltaA(dest, sqrtPrice0, sqrtPrice1, liquidity *big.Int, roundUp bool) error {
	s := pool.Get().(*SqrtPriceMath)
	defer pool.Put(s)
	return s.getDeltaA(dest, sqrtPrice0, sqrtPrice1, liquidity, roundUp)
}

// GetDeltaB is the amount of asset B between two prices at a liquidity:
// L * |p1 - p0| / 2^64.
func GetDeltaB(dest, sqrtPrice0, sqrtPrice1, liquidity *big.Int, roundUp bool) {
	s := pool.Get().(*SqrtPriceMath)
	defer pool.Put(s)
	s.getDeltaB(dest, sqrtPrice0, sqrtPrice1, liquidity, roundUp)
}

// GetNextSqrtPriceAUp moves the price by an amount of asset A, rounding the
// new price up. add is true when A flows into the pool.
func GetNextSqrtPriceAUp(dest, sqrtPrice, liquidity, amount *big.Int, add bool) error {
	s := pool.Get().(*SqrtPriceMath)
	defer pool.Put(s)
	return s.getNextSqrtPriceAUp(dest, sqrtPrice, liquidity, amount, add)
}

// GetNextSqrtPriceBDown moves the price by an amount of asset B, rounding the
// new price down. add is true when B flows into the pool.
func GetNextSqrtPriceBDown(dest, sqrtPrice, liquidity, amount *big.Int, add bool) error {
	s := pool.Get().(*SqrtPriceMath)
	defer pool.Put(s)
	return s.getNextSqrtPriceBDown(dest, sqrtPrice, liquidity, amount, add)
}

// GetNextSqrtPriceFromInput calculates the next sqrt price given an input amount.
func GetNextSqrtPriceFromInput(dest, sqrtPrice, liquidity, amountIn *big.Int, aToB bool) error {
	if sqrtPrice.Sign() <= 0 {
		return ErrSqrtPriceZero
	}
	if liquidity.Sign() <= 0 {
		return ErrLiquidityZero
	}

	if aToB {
		return GetNextSqrtPriceAUp(dest, sqrtPrice, liquidity, amountIn, true)
	}
	return GetNextSqrtPriceBDown(dest, sqrtPrice, liquidity, amountIn, true)
}

// GetNextSqrtPriceFromOutput calculates the next sqrt price given an output amount.
func GetNextSqrtPriceFromOutput(dest, sqrtPrice, liquidity, amountOut *big.Int, aToB bool) error {
	if sqrtPrice.Sign() <= 0 {
		return ErrSqrtPriceZero
	}
	if liquidity.Sign() <= 0 {
		return ErrLiquidityZero
	}

	if aToB {
		return GetNextSqrtPriceBDown(dest, sqrtPrice, liquidity, amountOut, false)
	}
	return GetNextSqrtPriceAUp(dest, sqrtPrice, liquidity, amountOut, false)
}

// GetDeltaUpFromInput is the input needed to move the price from current to
// target, rounded up.
func GetDeltaUpFromInput(dest, currentSqrtPrice, targetSqrtPrice, liquidity *big.Int, aToB bool) error {
	if aToB {
		return GetDeltaA(dest, targetSqrtPrice, currentSqrtPrice, liquidity, true)
	}
	GetDeltaB(dest, currentSqrtPrice, targetSqrtPrice, liquidity, true)
	return nil
}

// GetDeltaDownFromOutput is the output released by moving the price from
// current to target, rounded down.
func GetDeltaDownFromOutput(dest, currentSqrtPrice, targetSqrtPrice, liquidity *big.Int, aToB bool) error {
	if aToB {
		GetDeltaB(dest, targetSqrtPrice, currentSqrtPrice, liquidity, false)
		return nil
	}
	return GetDeltaA(dest, currentSqrtPrice, targetSqrtPrice, liquidity, false)
}

// --- Internal Implementations ---

func (s *SqrtPriceMath) getDeltaA(dest, sqrtPrice0, sqrtPrice1, liquidity *big.Int, roundUp bool) error {
	s.diff.Sub(sqrtPrice0, sqrtPrice1)
	s.diff.Abs(s.diff)
	if s.diff.Sign() == 0 || liquidity.Sign() == 0 {
		dest.SetUint64(0)
		return nil
	}

	s.numerator.Mul(liquidity, s.diff)
	s.numerator.Lsh(s.numerator, Resolution)
	if err := fullmath.CheckU256(s.numerator); err != nil {
		return fmt.Errorf("%w: delta A numerator", ErrMultiplicationOverflow)
	}
	s.denominator.Mul(sqrtPrice0, sqrtPrice1)
	return fullmath.DivRound(dest, s.numerator, s.denominator, roundUp)
}

func (s *SqrtPriceMath) getDeltaB(dest, sqrtPrice0, sqrtPrice1, liquidity *big.Int, roundUp bool) {
	s.diff.Sub(sqrtPrice0, sqrtPrice1)
	s.diff.Abs(s.diff)
	if s.diff.Sign() == 0 || liquidity.Sign() == 0 {
		dest.SetUint64(0)
		return
	}
	fullmath.MulShr(dest, liquidity, s.diff, Resolution, roundUp)
}

func (s *SqrtPriceMath) getNextSqrtPriceAUp(dest, sqrtPrice, liquidity, amount *big.Int, add bool) error {
	if amount.Sign() == 0 {
		dest.Set(sqrtPrice)
		return nil
	}

	s.numerator.Mul(sqrtPrice, liquidity)
	s.numerator.Lsh(s.numerator, Resolution)
	if err := fullmath.CheckU256(s.numerator); err != nil {
		return fmt.Errorf("%w: next price numerator", ErrMultiplicationOverflow)
	}

	s.denominator.Lsh(liquidity, Resolution)
	s.product.Mul(sqrtPrice, amount)
	if add {
		s.denominator.Add(s.denominator, s.product)
	} else {
		if s.denominator.Cmp(s.product) <= 0 {
			return ErrDenominatorUnderflow
		}
		s.denominator.Sub(s.denominator, s.product)
	}

	if err := fullmath.DivRound(s.delta, s.numerator, s.denominator, true); err != nil {
		return err
	}
	if err := checkBounds(s.delta); err != nil {
		return err
	}
	dest.Set(s.delta)
	return nil
}

func (s *SqrtPriceMath) getNextSqrtPriceBDown(dest, sqrtPrice, liquidity, amount *big.Int, add bool) error {
	if err := fullmath.ShlDiv(s.delta, amount, Resolution, liquidity, !add); err != nil {
		return err
	}

	if add {
		s.delta.Add(sqrtPrice, s.delta)
	} else {
		s.delta.Sub(sqrtPrice, s.delta)
	}
	if err := checkBounds(s.delta); err != nil {
		return err
	}
	dest.Set(s.delta)
	return nil
}

func checkBounds(sqrtPrice *big.Int) error {
	if sqrtPrice.Cmp(tickmath.MIN_SQRT_PRICE) < 0 || sqrtPrice.Cmp(tickmath.MAX_SQRT_PRICE) > 0 {
		return fmt.Errorf("%w: %s", tickmath.ErrSqrtPriceOutOfBounds, sqrtPrice)
	}
	return nil
}
