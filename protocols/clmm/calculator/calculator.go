// Package calculator runs swaps against a CLMM pool. One engine serves every
// dialect; the pool's Dialect selects tick lookup, fee ordering and protocol
// fee rounding.
package calculator

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	"github.com/defistate/defistate-router-go/protocols/clmm"
	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/fullmath"
	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/liquiditymath"
	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/swapmath"
	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/tickmath"
)

var (
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrInvalidPriceLimit = errors.New("invalid sqrt price limit")
	ErrPoolLocked        = errors.New("pool is locked")
	ErrAssetMismatch     = errors.New("asset mismatch")

	// Q64F is 2^64 as a float, the scale of a Q64.64 price.
	Q64F = new(big.Float).SetInt(fullmath.Q64)

	// spotPricePrecision is the mantissa size of spot prices, in bits.
	spotPricePrecision uint = 256
)

// SwapParams describes one swap request.
type SwapParams struct {
	AToB       bool
	ByAmountIn bool
	// Amount is the input to sell when ByAmountIn is set and the output to
	// buy otherwise.
	Amount *big.Int
	// SqrtPriceLimit bounds the price move; nil means the global bound in
	// the swap direction.
	SqrtPriceLimit *big.Int
	// Simulate leaves the pool untouched.
	Simulate bool
}

// SwapResult reports what a swap did (or would do) to the pool.
type SwapResult struct {
	// AmountIn excludes fees; the total paid in is AmountIn + FeeAmount.
	AmountIn  *big.Int
	AmountOut *big.Int
	// FeeAmount includes the protocol's cut.
	FeeAmount       *big.Int
	ProtocolFee     *big.Int
	AmountRemaining *big.Int

	SqrtPriceAfter *big.Int
	TickAfter      int32
	LiquidityAfter *big.Int

	Steps int
	// Exhausted is set when the swap ran out of initialized ticks before
	// filling the requested amount.
	Exhausted bool
}

// crossing records a tick crossed during the loop along with the global fee
// growth at that moment, so a commit can replay it.
type crossing struct {
	index            int32
	feeGrowthGlobalA *big.Int
	feeGrowthGlobalB *big.Int
}

// swapState holds the running state of one swap plus scratch values reused
// across steps.
type swapState struct {
	amountRemaining *big.Int
	amountIn        *big.Int
	amountOut       *big.Int
	feeAmount       *big.Int
	protocolFee     *big.Int
	sqrtPrice       *big.Int
	tick            int32
	liquidity       *big.Int
	feeGrowthGlobal *big.Int
	steps           int
	exhausted       bool
	crossings       []crossing

	// --- Reusable temporary variables for the loop ---
	sqrtPriceStart *big.Int
	tickPrice      *big.Int
	targetPrice    *big.Int
	stepAmountIn   *big.Int
	stepAmountOut  *big.Int
	stepFeeAmount  *big.Int
	stepProtocol   *big.Int
	feeRate        *big.Int
	temp           *big.Int
}

var swapStatePool = sync.Pool{
	New: func() any {
		return &swapState{
			amountRemaining: new(big.Int),
			amountIn:        new(big.Int),
			amountOut:       new(big.Int),
			feeAmount:       new(big.Int),
			protocolFee:     new(big.Int),
			sqrtPrice:       new(big.Int),
			liquidity:       new(big.Int),
			feeGrowthGlobal: new(big.Int),
			sqrtPriceStart:  new(big.Int),
			tickPrice:       new(big.Int),
			targetPrice:     new(big.Int),
			stepAmountIn:    new(big.Int),
			stepAmountOut:   new(big.Int),
			stepFeeAmount:   new(big.Int),
			stepProtocol:    new(big.Int),
			feeRate:         new(big.Int),
			temp:            new(big.Int),
		}
	},
}

func (s *swapState) reset(pool *clmm.Pool, p SwapParams) {
	s.amountRemaining.Set(p.Amount)
	s.amountIn.SetUint64(0)
	s.amountOut.SetUint64(0)
	s.feeAmount.SetUint64(0)
	s.protocolFee.SetUint64(0)
	s.sqrtPrice.Set(pool.SqrtPrice)
	s.tick = pool.TickCurrentIndex
	s.liquidity.Set(pool.Liquidity)
	if p.AToB {
		s.feeGrowthGlobal.Set(pool.FeeGrowthGlobalA)
	} else {
		s.feeGrowthGlobal.Set(pool.FeeGrowthGlobalB)
	}
	s.feeRate.SetUint64(pool.FeeRate)
	s.steps = 0
	s.exhausted = false
	s.crossings = s.crossings[:0]
}

func (s *swapState) result() SwapResult {
	return SwapResult{
		AmountIn:        new(big.Int).Set(s.amountIn),
		AmountOut:       new(big.Int).Set(s.amountOut),
		FeeAmount:       new(big.Int).Set(s.feeAmount),
		ProtocolFee:     new(big.Int).Set(s.protocolFee),
		AmountRemaining: new(big.Int).Set(s.amountRemaining),
		SqrtPriceAfter:  new(big.Int).Set(s.sqrtPrice),
		TickAfter:       s.tick,
		LiquidityAfter:  new(big.Int).Set(s.liquidity),
		Steps:           s.steps,
		Exhausted:       s.exhausted,
	}
}

// Swap runs a swap against pool. In simulate mode the pool is only read, so
// any number of simulations may run concurrently on one pool. Otherwise the
// result is committed; see ApplySwap.
func Swap(pool *clmm.Pool, p SwapParams) (SwapResult, error) {
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return SwapResult{}, ErrInvalidAmount
	}
	if !pool.Unlocked {
		return SwapResult{}, fmt.Errorf("%w: pool %s", ErrPoolLocked, pool.ID.Hex())
	}

	limit, err := priceLimit(pool, p)
	if err != nil {
		return SwapResult{}, err
	}

	state := swapStatePool.Get().(*swapState)
	defer swapStatePool.Put(state)
	state.reset(pool, p)

	if err := swap(state, pool, limit, p.AToB, p.ByAmountIn); err != nil {
		return SwapResult{}, fmt.Errorf("pool %s (aToB=%v, tick %d): %w", pool.ID.Hex(), p.AToB, state.tick, err)
	}

	if !p.Simulate {
		if err := commit(state, pool, p.AToB); err != nil {
			return SwapResult{}, err
		}
	}
	return state.result(), nil
}

func priceLimit(pool *clmm.Pool, p SwapParams) (*big.Int, error) {
	if p.SqrtPriceLimit == nil {
		if p.AToB {
			return tickmath.MIN_SQRT_PRICE, nil
		}
		return tickmath.MAX_SQRT_PRICE, nil
	}
	limit := p.SqrtPriceLimit
	if p.AToB {
		if limit.Cmp(pool.SqrtPrice) > 0 || limit.Cmp(tickmath.MIN_SQRT_PRICE) < 0 {
			return nil, fmt.Errorf("%w: %s for a price decrease from %s", ErrInvalidPriceLimit, limit, pool.SqrtPrice)
		}
	} else if limit.Cmp(pool.SqrtPrice) < 0 || limit.Cmp(tickmath.MAX_SQRT_PRICE) > 0 {
		return nil, fmt.Errorf("%w: %s for a price increase from %s", ErrInvalidPriceLimit, limit, pool.SqrtPrice)
	}
	return limit, nil
}

// swap is the core loop. It never writes to pool.
func swap(s *swapState, pool *clmm.Pool, limit *big.Int, aToB, byAmountIn bool) error {
	dialect := pool.Dialect

	for s.amountRemaining.Sign() > 0 && s.sqrtPrice.Cmp(limit) != 0 {
		s.sqrtPriceStart.Set(s.sqrtPrice)

		nextTick, ok := pool.Ticks.NextInitializedTick(s.tick, aToB)
		if !ok {
			s.exhausted = true
			break
		}
		if err := tickmath.GetSqrtPriceAtTick(s.tickPrice, nextTick); err != nil {
			return err
		}

		if (aToB && s.tickPrice.Cmp(limit) < 0) || (!aToB && s.tickPrice.Cmp(limit) > 0) {
			s.targetPrice.Set(limit)
		} else {
			s.targetPrice.Set(s.tickPrice)
		}

		err := swapmath.ComputeSwapStep(
			s.sqrtPrice, s.stepAmountIn, s.stepAmountOut, s.stepFeeAmount, // Destination pointers
			s.sqrtPriceStart,
			s.targetPrice,
			s.liquidity,
			s.amountRemaining,
			s.feeRate,
			aToB,
			byAmountIn,
			dialect.RecomputePartialInput,
		)
		if err != nil {
			return err
		}
		s.steps++

		if byAmountIn {
			s.temp.Add(s.stepAmountIn, s.stepFeeAmount)
			s.amountRemaining.Sub(s.amountRemaining, s.temp)
		} else {
			s.amountRemaining.Sub(s.amountRemaining, s.stepAmountOut)
		}
		s.amountIn.Add(s.amountIn, s.stepAmountIn)
		s.amountOut.Add(s.amountOut, s.stepAmountOut)
		s.feeAmount.Add(s.feeAmount, s.stepFeeAmount)

		if err := s.accrueFees(pool); err != nil {
			return err
		}

		if s.sqrtPrice.Cmp(s.tickPrice) == 0 {
			if err := liquiditymath.CrossDelta(s.temp, s.liquidity, tickNet(pool, nextTick), aToB); err != nil {
				return fmt.Errorf("cross tick %d: %w", nextTick, err)
			}
			s.liquidity.Set(s.temp)
			s.recordCrossing(pool, nextTick, aToB)

			if aToB {
				s.tick = nextTick - 1
			} else {
				s.tick = nextTick
			}
		} else if s.sqrtPrice.Cmp(s.sqrtPriceStart) != 0 {
			s.tick, err = tickmath.GetTickAtSqrtPrice(s.sqrtPrice)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func tickNet(pool *clmm.Pool, index int32) *big.Int {
	t, _ := pool.Ticks.Get(index)
	return t.LiquidityNet
}

// accrueFees splits the step fee between the protocol and liquidity
// providers and grows the global fee accumulator of the input side.
func (s *swapState) accrueFees(pool *clmm.Pool) error {
	if s.stepFeeAmount.Sign() == 0 {
		return nil
	}
	lpFee := s.temp.Set(s.stepFeeAmount)

	if pool.ProtocolFeeRate > 0 {
		s.stepProtocol.SetUint64(pool.ProtocolFeeRate)
		s.stepProtocol.Mul(s.stepProtocol, s.stepFeeAmount)
		denom := new(big.Int).SetUint64(pool.Dialect.ProtocolFeeDenominator)
		if err := fullmath.DivRound(s.stepProtocol, s.stepProtocol, denom, pool.Dialect.ProtocolFeeRoundUp); err != nil {
			return err
		}
		lpFee.Sub(lpFee, s.stepProtocol)
		s.protocolFee.Add(s.protocolFee, s.stepProtocol)
	}

	if s.liquidity.Sign() > 0 {
		if err := fullmath.ShlDiv(lpFee, lpFee, 64, s.liquidity, false); err != nil {
			return err
		}
		fullmath.WrappingAddU128(s.feeGrowthGlobal, s.feeGrowthGlobal, lpFee)
	}
	return nil
}

func (s *swapState) recordCrossing(pool *clmm.Pool, index int32, aToB bool) {
	c := crossing{index: index}
	if aToB {
		c.feeGrowthGlobalA = new(big.Int).Set(s.feeGrowthGlobal)
		c.feeGrowthGlobalB = pool.FeeGrowthGlobalB
	} else {
		c.feeGrowthGlobalA = pool.FeeGrowthGlobalA
		c.feeGrowthGlobalB = new(big.Int).Set(s.feeGrowthGlobal)
	}
	s.crossings = append(s.crossings, c)
}

// commit writes a finished swap into pool. Crossings are replayed through
// TickSet.Cross, and the resulting liquidity must agree with both the loop
// and the directional tick sum before anything is published.
func commit(s *swapState, pool *clmm.Pool, aToB bool) error {
	ticks := pool.Ticks.Clone()
	liquidity := new(big.Int).Set(pool.Liquidity)
	for _, c := range s.crossings {
		if err := ticks.Cross(liquidity, c.index, aToB, c.feeGrowthGlobalA, c.feeGrowthGlobalB, liquidity); err != nil {
			return fmt.Errorf("pool %s: %w", pool.ID.Hex(), err)
		}
	}
	if liquidity.Cmp(s.liquidity) != 0 {
		return fmt.Errorf("%w: pool %s replayed crossings give %s, swap ended with %s",
			clmm.ErrDirectionalLiquidity, pool.ID.Hex(), liquidity, s.liquidity)
	}
	if expected := ticks.DirectionalLiquidity(s.tick); expected.Cmp(liquidity) != 0 {
		return fmt.Errorf("%w: pool %s tick %d liquidity %s, ticks sum to %s",
			clmm.ErrDirectionalLiquidity, pool.ID.Hex(), s.tick, liquidity, expected)
	}

	pool.SqrtPrice = new(big.Int).Set(s.sqrtPrice)
	pool.TickCurrentIndex = s.tick
	pool.Liquidity = liquidity
	pool.Ticks = ticks
	if aToB {
		pool.FeeGrowthGlobalA = new(big.Int).Set(s.feeGrowthGlobal)
		pool.ProtocolFeeA = new(big.Int).Add(pool.ProtocolFeeA, s.protocolFee)
	} else {
		pool.FeeGrowthGlobalB = new(big.Int).Set(s.feeGrowthGlobal)
		pool.ProtocolFeeB = new(big.Int).Add(pool.ProtocolFeeB, s.protocolFee)
	}
	return nil
}

// ApplySwap runs a swap and commits it to pool. The pool is unchanged when an
// error is returned.
func ApplySwap(pool *clmm.Pool, aToB, byAmountIn bool, amount, sqrtPriceLimit *big.Int) (SwapResult, error) {
	return Swap(pool, SwapParams{
		AToB:           aToB,
		ByAmountIn:     byAmountIn,
		Amount:         amount,
		SqrtPriceLimit: sqrtPriceLimit,
	})
}

// SimulateSwap runs an exact-input swap without touching pool.
func SimulateSwap(pool *clmm.Pool, amountIn *big.Int, aToB bool) (SwapResult, error) {
	return Swap(pool, SwapParams{
		AToB:       aToB,
		ByAmountIn: true,
		Amount:     amountIn,
		Simulate:   true,
	})
}

// GetAmountOut calculates the amount out for a given exact amount in. A swap
// that runs out of liquidity returns the partial output; use SimulateSwap to
// tell the two apart.
func GetAmountOut(pool *clmm.Pool, amountIn *big.Int, aToB bool) (*big.Int, error) {
	res, err := SimulateSwap(pool, amountIn, aToB)
	if err != nil {
		return nil, err
	}
	return res.AmountOut, nil
}

// GetAmountIn calculates the gross input, fees included, needed to receive
// amountOut.
func GetAmountIn(pool *clmm.Pool, amountOut *big.Int, aToB bool) (*big.Int, error) {
	res, err := Swap(pool, SwapParams{
		AToB:     aToB,
		Amount:   amountOut,
		Simulate: true,
	})
	if err != nil {
		return nil, err
	}
	return res.AmountIn.Add(res.AmountIn, res.FeeAmount), nil
}

// AToB reports the swap direction for selling assetIn into pool.
func AToB(pool *clmm.Pool, assetIn assetregistry.AssetID) (bool, error) {
	switch assetIn {
	case pool.AssetA:
		return true, nil
	case pool.AssetB:
		return false, nil
	}
	return false, fmt.Errorf("%w: %s is not in pool %s", ErrAssetMismatch, assetIn, pool.ID.Hex())
}

// GetSpotPrice returns the marginal, pre-fee price of the swap direction:
// units of B per unit of A when aToB is true, units of A per unit of B
// otherwise.
func GetSpotPrice(pool *clmm.Pool, aToB bool) *big.Float {
	price := new(big.Float).SetPrec(spotPricePrecision).SetInt(pool.SqrtPrice)
	price.Quo(price, Q64F)
	price.Mul(price, price)
	if aToB {
		return price
	}
	if price.Sign() == 0 {
		return price
	}
	return new(big.Float).SetPrec(spotPricePrecision).Quo(big.NewFloat(1), price)
}
