package swapmath

import (
	"errors"
	"math/big"
	"sync"

	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/fullmath"
	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/sqrtpricemath"
)

var (
	// FeeDenominator is the denominator for fee rates, representing 100% or 1,000,000 ppm.
	FeeDenominator = big.NewInt(1_000_000)

	ErrInvalidFeeRate = errors.New("fee rate must be below 1,000,000 ppm")
)

// SwapMath holds reusable big.Int objects for all calculations to avoid memory allocations.
// Instances are managed by a sync.Pool for safe concurrent use.
type SwapMath struct {
	// --- Return Values ---
	nextSqrtPrice *big.Int
	amountIn      *big.Int
	amountOut     *big.Int
	feeAmount     *big.Int

	// --- Temporary Internal Values ---
	amountLessFee *big.Int
	maxAmount     *big.Int
	feeComplement *big.Int
	product       *big.Int
}

var swapMathPool = sync.Pool{
	New: func() any {
		return &SwapMath{
			nextSqrtPrice: new(big.Int),
			amountIn:      new(big.Int),
			amountOut:     new(big.Int),
			feeAmount:     new(big.Int),
			amountLessFee: new(big.Int),
			maxAmount:     new(big.Int),
			feeComplement: new(big.Int),
			product:       new(big.Int),
		}
	},
}

// ComputeSwapStep calculates the result of a swap within a single tick range:
// the price reached, the amounts exchanged and the fee taken.
//
// amountRemaining is the input still to be sold when byAmountIn is true and
// the output still to be bought otherwise. feeRate is in ppm.
//
// recomputePartialInput selects the fee ordering of an exact-input step that
// stops short of the target. When false the whole net amount is booked as
// input and the fee is the gross amount less the net amount. When true the
// input is recomputed from the price actually reached, rounding up, and the
// fee absorbs whatever is left of amountRemaining. Exact-output steps that
// stop short likewise recompute the output from the price reached, capped at
// amountRemaining.
func ComputeSwapStep(
	// destination pointers
	nextSqrtPrice *big.Int,
	amountIn *big.Int,
	amountOut *big.Int,
	feeAmount *big.Int,

	currentSqrtPrice *big.Int,
	targetSqrtPrice *big.Int,
	liquidity *big.Int,
	amountRemaining *big.Int,
	feeRate *big.Int,
	aToB bool,
	byAmountIn bool,
	recomputePartialInput bool,
) error {
	if feeRate.Sign() < 0 || feeRate.Cmp(FeeDenominator) >= 0 {
		return ErrInvalidFeeRate
	}

	s := swapMathPool.Get().(*SwapMath)
	defer swapMathPool.Put(s)

	if err := s.computeSwapStep(currentSqrtPrice, targetSqrtPrice, liquidity, amountRemaining, feeRate, aToB, byAmountIn, recomputePartialInput); err != nil {
		return err
	}

	// Copy out so the pooled values can be safely reused.
	nextSqrtPrice.Set(s.nextSqrtPrice)
	amountIn.Set(s.amountIn)
	amountOut.Set(s.amountOut)
	feeAmount.Set(s.feeAmount)
	return nil
}

func (s *SwapMath) computeSwapStep(
	current, target, liquidity, amountRemaining, feeRate *big.Int,
	aToB, byAmountIn, recomputePartialInput bool,
) error {
	s.amountIn.SetUint64(0)
	s.amountOut.SetUint64(0)
	s.feeAmount.SetUint64(0)

	// Without liquidity the price jumps straight to the target.
	if liquidity.Sign() == 0 {
		s.nextSqrtPrice.Set(target)
		return nil
	}

	s.feeComplement.Sub(FeeDenominator, feeRate)

	if byAmountIn {
		return s.exactInput(current, target, liquidity, amountRemaining, feeRate, aToB, recomputePartialInput)
	}
	return s.exactOutput(current, target, liquidity, amountRemaining, feeRate, aToB, recomputePartialInput)
}

func (s *SwapMath) exactInput(
	current, target, liquidity, amountRemaining, feeRate *big.Int,
	aToB, recomputePartialInput bool,
) error {
	if err := fullmath.MulDivFloor(s.amountLessFee, amountRemaining, s.feeComplement, FeeDenominator); err != nil {
		return err
	}
	if err := sqrtpricemath.GetDeltaUpFromInput(s.maxAmount, current, target, liquidity, aToB); err != nil {
		return err
	}

	if s.maxAmount.Cmp(s.amountLessFee) <= 0 {
		// the whole range is consumed
		s.nextSqrtPrice.Set(target)
		s.amountIn.Set(s.maxAmount)
		if err := fullmath.MulDivCeil(s.feeAmount, s.amountIn, feeRate, s.feeComplement); err != nil {
			return err
		}
	} else {
		if err := sqrtpricemath.GetNextSqrtPriceFromInput(s.nextSqrtPrice, current, liquidity, s.amountLessFee, aToB); err != nil {
			return err
		}
		if recomputePartialInput {
			if err := sqrtpricemath.GetDeltaUpFromInput(s.amountIn, current, s.nextSqrtPrice, liquidity, aToB); err != nil {
				return err
			}
		} else {
			s.amountIn.Set(s.amountLessFee)
		}
		s.feeAmount.Sub(amountRemaining, s.amountIn)
	}

	return sqrtpricemath.GetDeltaDownFromOutput(s.amountOut, current, s.nextSqrtPrice, liquidity, aToB)
}

func (s *SwapMath) exactOutput(
	current, target, liquidity, amountRemaining, feeRate *big.Int,
	aToB, recomputePartialOutput bool,
) error {
	if err := sqrtpricemath.GetDeltaDownFromOutput(s.maxAmount, current, target, liquidity, aToB); err != nil {
		return err
	}

	if s.maxAmount.Cmp(amountRemaining) <= 0 {
		s.nextSqrtPrice.Set(target)
		s.amountOut.Set(s.maxAmount)
	} else {
		if err := sqrtpricemath.GetNextSqrtPriceFromOutput(s.nextSqrtPrice, current, liquidity, amountRemaining, aToB); err != nil {
			return err
		}
		if recomputePartialOutput {
			if err := sqrtpricemath.GetDeltaDownFromOutput(s.amountOut, current, s.nextSqrtPrice, liquidity, aToB); err != nil {
				return err
			}
			if s.amountOut.Cmp(amountRemaining) > 0 {
				s.amountOut.Set(amountRemaining)
			}
		} else {
			s.amountOut.Set(amountRemaining)
		}
	}

	if err := sqrtpricemath.GetDeltaUpFromInput(s.amountIn, current, s.nextSqrtPrice, liquidity, aToB); err != nil {
		return err
	}
	return fullmath.MulDivCeil(s.feeAmount, s.amountIn, feeRate, s.feeComplement)
}
