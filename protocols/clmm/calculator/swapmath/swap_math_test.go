package swapmath

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/sqrtpricemath"
	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/tickmath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper to create a random big.Int up to a given bit length.
func newRandInt(bits int) *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		panic(err)
	}
	return n
}

func randSqrtPrice() *big.Int {
	span := new(big.Int).Sub(tickmath.MAX_SQRT_PRICE, tickmath.MIN_SQRT_PRICE)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		panic(err)
	}
	return n.Add(n, tickmath.MIN_SQRT_PRICE)
}

func fromString(s string) *big.Int {
	n, _ := new(big.Int).SetString(s, 10)
	return n
}

func priceAt(t *testing.T, tick int32) *big.Int {
	p := new(big.Int)
	require.NoError(t, tickmath.GetSqrtPriceAtTick(p, tick))
	return p
}

type stepResult struct {
	next, in, out, fee *big.Int
}

func step(t *testing.T, current, target, liquidity, amount *big.Int, fee int64, aToB, byIn, recompute bool) stepResult {
	r := stepResult{new(big.Int), new(big.Int), new(big.Int), new(big.Int)}
	err := ComputeSwapStep(r.next, r.in, r.out, r.fee, current, target, liquidity, amount, big.NewInt(fee), aToB, byIn, recompute)
	require.NoError(t, err)
	return r
}

var (
	liquidity = fromString("1517882343751509868544")
	current   = fromString("1304381782533278269440")
)

func TestComputeSwapStep_PartialSteps(t *testing.T) {
	upper := priceAt(t, 86129)
	lower := priceAt(t, 84222)

	testCases := []struct {
		name      string
		amount    int64
		fee       int64
		aToB      bool
		recompute bool
		in        string
		out       string
		feeAmount string
	}{
		{"b to a, no fee", 42_000_000_000_000_000, 0, false, false, "42000000000000000", "8399996712957", "0"},
		{"a to b, no fee", 13_370_000_000_000, 0, true, false, "13370000000000", "66849958362998925", "0"},
		{"b to a, 0.3%", 42_000_000_000_000_000, 3000, false, false, "41874000000000000", "8374796732650", "126000000000000"},
		{"a to b, 0.3%", 13_370_000_000_000, 3000, true, false, "13329890000000", "66649408612446105", "40110000000"},
		{"recomputed input, no fee", 42_000_000_000_000_000, 0, false, true, "41999999999999943", "8399996712957", "57"},
		{"recomputed input, 0.3%", 42_000_000_000_000_000, 3000, false, true, "41873999999999997", "8374796732650", "126000000000003"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			target := upper
			if tc.aToB {
				target = lower
			}
			r := step(t, current, target, liquidity, big.NewInt(tc.amount), tc.fee, tc.aToB, true, tc.recompute)

			assert.Equal(t, tc.in, r.in.String())
			assert.Equal(t, tc.out, r.out.String())
			assert.Equal(t, tc.feeAmount, r.fee.String())
			assert.NotEqual(t, 0, r.next.Cmp(target), "step should stop inside the range")

			// gross input is fully consumed on a partial step
			sum := new(big.Int).Add(r.in, r.fee)
			assert.Equal(t, big.NewInt(tc.amount).String(), sum.String())
		})
	}

	t.Run("next price", func(t *testing.T) {
		r := step(t, current, upper, liquidity, big.NewInt(42_000_000_000_000_000), 0, false, true, false)
		assert.Equal(t, "1304382292957063278323", r.next.String())

		r = step(t, current, lower, liquidity, big.NewInt(13_370_000_000_000), 0, true, true, false)
		assert.Equal(t, "1304380970109259809245", r.next.String())
	})
}

func TestComputeSwapStep_FullStep(t *testing.T) {
	lower := priceAt(t, 84222)
	huge := fromString("1000000000000000000000000000000")

	for _, recompute := range []bool{false, true} {
		r := step(t, current, lower, liquidity, huge, 3000, true, true, recompute)

		assert.Equal(t, 0, r.next.Cmp(lower))
		assert.Equal(t, "5000209190920489524168", r.out.String())

		expectedIn := new(big.Int)
		require.NoError(t, sqrtpricemath.GetDeltaA(expectedIn, lower, current, liquidity, true))
		assert.Equal(t, expectedIn.String(), r.in.String())

		// fee = ceil(in * 3000 / 997000)
		num := new(big.Int).Mul(r.in, big.NewInt(3000))
		expectedFee, rem := new(big.Int).QuoRem(num, big.NewInt(997_000), new(big.Int))
		if rem.Sign() > 0 {
			expectedFee.Add(expectedFee, big.NewInt(1))
		}
		assert.Equal(t, expectedFee.String(), r.fee.String())
	}
}

func TestComputeSwapStep_ExactOutput(t *testing.T) {
	upper := priceAt(t, 86129)
	lower := priceAt(t, 84222)

	r := step(t, current, upper, liquidity, big.NewInt(8_399_996_712_957), 0, false, false, false)
	assert.Equal(t, "8399996712957", r.out.String())
	assert.Equal(t, "41999999999996652", r.in.String())
	assert.Zero(t, r.fee.Sign())

	r = step(t, current, lower, liquidity, big.NewInt(66_849_958_362_998_925), 0, true, false, true)
	assert.Equal(t, "66849958362998925", r.out.String())
	assert.Equal(t, "13370000000000", r.in.String())
}

func TestComputeSwapStep_EdgeCases(t *testing.T) {
	upper := priceAt(t, 86129)

	t.Run("zero liquidity jumps to target", func(t *testing.T) {
		r := step(t, current, upper, new(big.Int), big.NewInt(1_000), 3000, false, true, false)
		assert.Equal(t, 0, r.next.Cmp(upper))
		assert.Zero(t, r.in.Sign())
		assert.Zero(t, r.out.Sign())
		assert.Zero(t, r.fee.Sign())
	})

	t.Run("invalid fee rate", func(t *testing.T) {
		r := stepResult{new(big.Int), new(big.Int), new(big.Int), new(big.Int)}
		err := ComputeSwapStep(r.next, r.in, r.out, r.fee, current, upper, liquidity, big.NewInt(1), big.NewInt(1_000_000), false, true, false)
		assert.ErrorIs(t, err, ErrInvalidFeeRate)
	})

	t.Run("current equals target", func(t *testing.T) {
		r := step(t, current, current, liquidity, big.NewInt(1_000), 3000, false, true, false)
		assert.Equal(t, 0, r.next.Cmp(current))
		assert.Zero(t, r.in.Sign())
		assert.Zero(t, r.out.Sign())
		assert.Zero(t, r.fee.Sign())
	})
}

// TestComputeSwapStep_Invariants simulates fuzz testing by running the function
// on a large number of random inputs and verifying its mathematical properties.
func TestComputeSwapStep_Invariants(t *testing.T) {
	for i := 0; i < 1000; i++ {
		price := randSqrtPrice()
		target := randSqrtPrice()
		liq := newRandInt(90)
		amountRemaining := newRandInt(100)
		fee := newRandInt(20)
		if fee.Cmp(FeeDenominator) >= 0 {
			fee.Sub(FeeDenominator, big.NewInt(1))
		}
		aToB := target.Cmp(price) <= 0
		byIn := i%2 == 0
		recompute := i%4 < 2

		next, amountIn, amountOut, feeAmount := new(big.Int), new(big.Int), new(big.Int), new(big.Int)
		err := ComputeSwapStep(next, amountIn, amountOut, feeAmount, price, target, liq, amountRemaining, fee, aToB, byIn, recompute)
		if err != nil {
			// prices pushed past the bounds are legitimately rejected
			continue
		}

		sumIn := new(big.Int).Add(amountIn, feeAmount)
		if byIn {
			assert.True(t, sumIn.Cmp(amountRemaining) <= 0, "in %s + fee %s > remaining %s", amountIn, feeAmount, amountRemaining)
		} else {
			assert.True(t, amountOut.Cmp(amountRemaining) <= 0)
		}

		// didn't reach price target, entire amount must be consumed
		if next.Cmp(target) != 0 && byIn {
			assert.Zero(t, sumIn.Cmp(amountRemaining))
		}

		// next price is between price and price target
		if aToB {
			assert.True(t, next.Cmp(price) <= 0)
			assert.True(t, next.Cmp(target) >= 0)
		} else {
			assert.True(t, next.Cmp(price) >= 0)
			assert.True(t, next.Cmp(target) <= 0)
		}
	}
}
