package liquiditymath

import (
	"errors"
	"math/big"

	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/fullmath"
)

var (
	ErrLiquidityOverflow  = errors.New("liquidity overflow")
	ErrLiquidityUnderflow = errors.New("liquidity underflow")
)

// AddDelta writes x + delta into dest, where x is an unsigned 128-bit
// liquidity and delta is signed. dest is left untouched on error.
func AddDelta(dest, x, delta *big.Int) error {
	sum := new(big.Int).Add(x, delta)
	if sum.Sign() < 0 {
		return ErrLiquidityUnderflow
	}
	if sum.Cmp(fullmath.MaxU128) > 0 {
		return ErrLiquidityOverflow
	}
	dest.Set(sum)
	return nil
}

// CrossDelta applies a tick's liquidity_net to the running liquidity when the
// price crosses that tick. Moving down (aToB) subtracts the net instead of
// adding it.
func CrossDelta(dest, liquidity, liquidityNet *big.Int, aToB bool) error {
	if !aToB {
		return AddDelta(dest, liquidity, liquidityNet)
	}
	return AddDelta(dest, liquidity, new(big.Int).Neg(liquidityNet))
}
