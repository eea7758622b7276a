package optimizer

import (
	"crypto/rand"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// peakAt is the strictly concave objective -(x - t)^2.
func peakAt(t *big.Int) Objective {
	return func(x *big.Int) (*big.Int, error) {
		d := new(big.Int).Sub(x, t)
		return d.Neg(d.Mul(d, d)), nil
	}
}

func TestGoldenSection_ConcaveWithinOne(t *testing.T) {
	for i := 0; i < 200; i++ {
		target, err := rand.Int(rand.Reader, MaxAmountIn)
		require.NoError(t, err)

		got, err := GoldenSection(new(big.Int), MaxAmountIn, peakAt(target))
		require.NoError(t, err)

		diff := new(big.Int).Sub(got, target)
		assert.LessOrEqual(t, diff.CmpAbs(big.NewInt(1)), 0, "target %s got %s", target, got)
	}
}

func TestGoldenSection_SmallBrackets(t *testing.T) {
	for lo := int64(0); lo < 4; lo++ {
		for hi := lo; hi < lo+12; hi++ {
			for target := lo; target <= hi; target++ {
				got, err := GoldenSection(big.NewInt(lo), big.NewInt(hi), peakAt(big.NewInt(target)))
				require.NoError(t, err)
				d := got.Int64() - target
				assert.True(t, d >= -1 && d <= 1, "[%d,%d] target %d got %d", lo, hi, target, got.Int64())
				assert.True(t, got.Int64() >= lo && got.Int64() <= hi)
			}
		}
	}
}

func TestGoldenSection_Edges(t *testing.T) {
	t.Run("PeakAtZero", func(t *testing.T) {
		got, err := GoldenSection(new(big.Int), MaxAmountIn, peakAt(new(big.Int)))
		require.NoError(t, err)
		assert.Equal(t, 0, got.Sign())
	})

	t.Run("PeakAtMax", func(t *testing.T) {
		got, err := GoldenSection(new(big.Int), MaxAmountIn, peakAt(MaxAmountIn))
		require.NoError(t, err)
		diff := new(big.Int).Sub(MaxAmountIn, got)
		assert.LessOrEqual(t, diff.Cmp(big.NewInt(1)), 0)
	})

	t.Run("EmptyBracket", func(t *testing.T) {
		got, err := GoldenSection(big.NewInt(7), big.NewInt(7), peakAt(new(big.Int)))
		require.NoError(t, err)
		assert.Equal(t, int64(7), got.Int64())
	})

	t.Run("DoesNotWriteBounds", func(t *testing.T) {
		lo, hi := big.NewInt(0), big.NewInt(1000)
		_, err := GoldenSection(lo, hi, peakAt(big.NewInt(300)))
		require.NoError(t, err)
		assert.Equal(t, int64(0), lo.Int64())
		assert.Equal(t, int64(1000), hi.Int64())
	})

	t.Run("ObjectiveError", func(t *testing.T) {
		boom := errors.New("boom")
		calls := 0
		_, err := GoldenSection(new(big.Int), MaxAmountIn, func(x *big.Int) (*big.Int, error) {
			calls++
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})
}

func TestGoldenSection_EvaluationBound(t *testing.T) {
	calls := 0
	f := peakAt(big.NewInt(123456789))
	_, err := GoldenSection(new(big.Int), MaxAmountIn, func(x *big.Int) (*big.Int, error) {
		calls++
		return f(x)
	})
	require.NoError(t, err)
	// about log_phi(2^64) iterations of two probes each
	assert.LessOrEqual(t, calls, 2*96)
}
