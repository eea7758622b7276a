package sqrtpricemath

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/tickmath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Helper Functions ---

// newRandInt generates a random big.Int up to a given number of bits.
func newRandInt(bits int) *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		panic(err)
	}
	return n
}

func fromString(s string) *big.Int {
	n, _ := new(big.Int).SetString(s, 10)
	return n
}

// randSqrtPrice returns a random price inside the valid Q64.64 range.
func randSqrtPrice() *big.Int {
	span := new(big.Int).Sub(tickmath.MAX_SQRT_PRICE, tickmath.MIN_SQRT_PRICE)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		panic(err)
	}
	return n.Add(n, tickmath.MIN_SQRT_PRICE)
}

var (
	liquidity = fromString("1517882343751509868544")
	current   = fromString("1304381782533278269440")
)

// --- Reference Values ---

func TestGetDeltas(t *testing.T) {
	upper := new(big.Int)
	require.NoError(t, tickmath.GetSqrtPriceAtTick(upper, 86129))
	lower := new(big.Int)
	require.NoError(t, tickmath.GetSqrtPriceAtTick(lower, 84222))

	t.Run("delta A", func(t *testing.T) {
		up, down := new(big.Int), new(big.Int)
		require.NoError(t, GetDeltaA(up, current, upper, liquidity, true))
		require.NoError(t, GetDeltaA(down, upper, current, liquidity, false))
		assert.Equal(t, "998628802115141959", up.String())
		assert.Equal(t, "998628802115141958", down.String())
	})

	t.Run("delta B", func(t *testing.T) {
		up, down := new(big.Int), new(big.Int)
		GetDeltaB(up, current, lower, liquidity, true)
		GetDeltaB(down, lower, current, liquidity, false)
		assert.Equal(t, "5000209190920489524169", up.String())
		assert.Equal(t, "5000209190920489524168", down.String())
	})

	t.Run("zero liquidity or equal prices", func(t *testing.T) {
		dest := big.NewInt(7)
		require.NoError(t, GetDeltaA(dest, current, upper, new(big.Int), true))
		assert.Zero(t, dest.Sign())

		dest.SetInt64(7)
		GetDeltaB(dest, current, current, liquidity, true)
		assert.Zero(t, dest.Sign())
	})
}

func TestGetNextSqrtPrice(t *testing.T) {
	testCases := []struct {
		name     string
		fn       func(dest *big.Int) error
		expected string
	}{
		{"A in", func(d *big.Int) error {
			return GetNextSqrtPriceAUp(d, current, liquidity, big.NewInt(13_370_000_000_000), true)
		}, "1304380970109259809245"},
		{"A out", func(d *big.Int) error {
			return GetNextSqrtPriceAUp(d, current, liquidity, big.NewInt(1_000_000_000_000), false)
		}, "1304381843298017410752"},
		{"B in", func(d *big.Int) error {
			return GetNextSqrtPriceBDown(d, current, liquidity, big.NewInt(42_000_000_000_000_000), true)
		}, "1304382292957063278323"},
		{"B out", func(d *big.Int) error {
			return GetNextSqrtPriceBDown(d, current, liquidity, big.NewInt(42_000_000_000_000_000), false)
		}, "1304381272109493260556"},
		{"zero amount keeps price", func(d *big.Int) error {
			return GetNextSqrtPriceAUp(d, current, liquidity, new(big.Int), true)
		}, "1304381782533278269440"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dest := new(big.Int)
			require.NoError(t, tc.fn(dest))
			assert.Equal(t, tc.expected, dest.String())
		})
	}

	t.Run("zero liquidity rejected", func(t *testing.T) {
		err := GetNextSqrtPriceFromInput(new(big.Int), current, new(big.Int), big.NewInt(1), true)
		assert.ErrorIs(t, err, ErrLiquidityZero)
		err = GetNextSqrtPriceFromOutput(new(big.Int), new(big.Int), liquidity, big.NewInt(1), true)
		assert.ErrorIs(t, err, ErrSqrtPriceZero)
	})

	t.Run("price leaving range is rejected", func(t *testing.T) {
		huge := new(big.Int).Lsh(big.NewInt(1), 63)
		err := GetNextSqrtPriceBDown(new(big.Int), tickmath.MAX_SQRT_PRICE, big.NewInt(1), huge, true)
		assert.ErrorIs(t, err, tickmath.ErrSqrtPriceOutOfBounds)
	})

	t.Run("output larger than reserve", func(t *testing.T) {
		err := GetNextSqrtPriceAUp(new(big.Int), current, big.NewInt(1), big.NewInt(1_000_000), false)
		assert.ErrorIs(t, err, ErrDenominatorUnderflow)
	})
}

// --- Invariant Tests (Simulating Fuzzing) ---

func TestGetDeltaA_Invariants(t *testing.T) {
	for i := 0; i < 1000; i++ {
		p0, p1 := randSqrtPrice(), randSqrtPrice()
		l := newRandInt(64)

		down, up := new(big.Int), new(big.Int)
		require.NoError(t, GetDeltaA(down, p0, p1, l, false))
		require.NoError(t, GetDeltaA(up, p1, p0, l, true))

		assert.True(t, down.Cmp(up) <= 0)
		diff := new(big.Int).Sub(up, down)
		assert.True(t, diff.Cmp(big.NewInt(2)) < 0)
	}
}

func TestGetDeltaB_Invariants(t *testing.T) {
	for i := 0; i < 1000; i++ {
		p0, p1 := randSqrtPrice(), randSqrtPrice()
		l := newRandInt(128)

		down, up := new(big.Int), new(big.Int)
		GetDeltaB(down, p0, p1, l, false)
		GetDeltaB(up, p1, p0, l, true)

		assert.True(t, down.Cmp(up) <= 0)
		diff := new(big.Int).Sub(up, down)
		assert.True(t, diff.Cmp(big.NewInt(2)) < 0)
	}
}

// TestNextPriceFromInput_Invariants checks that the input needed to reach the
// computed price never exceeds the input supplied, and that price moves in the
// expected direction.
func TestNextPriceFromInput_Invariants(t *testing.T) {
	for i := 0; i < 1000; i++ {
		p := randSqrtPrice()
		l := newRandInt(64)
		if l.Sign() == 0 {
			l.SetInt64(1)
		}
		amount := newRandInt(64)
		aToB := i%2 == 0

		next := new(big.Int)
		if err := GetNextSqrtPriceFromInput(next, p, l, amount, aToB); err != nil {
			// moving past the price bounds is a legitimate rejection
			require.ErrorIs(t, err, tickmath.ErrSqrtPriceOutOfBounds)
			continue
		}

		if aToB {
			assert.True(t, next.Cmp(p) <= 0, "a->b must not raise the price")
		} else {
			assert.True(t, next.Cmp(p) >= 0, "b->a must not lower the price")
		}

		needed := new(big.Int)
		require.NoError(t, GetDeltaUpFromInput(needed, p, next, l, aToB))
		assert.True(t, needed.Cmp(amount) <= 0, "needed %s > supplied %s", needed, amount)
	}
}
