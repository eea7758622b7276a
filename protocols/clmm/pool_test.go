package clmm

import (
	"math/big"
	"testing"

	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/tickmath"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Validate(t *testing.T) {
	t.Run("valid pool", func(t *testing.T) {
		require.NoError(t, newTestPool(t, 1, 1000).Validate())
	})

	t.Run("directional liquidity mismatch", func(t *testing.T) {
		pool := newTestPool(t, 1, 1000)
		pool.Liquidity.SetUint64(999)
		assert.ErrorIs(t, pool.Validate(), ErrDirectionalLiquidity)
	})

	t.Run("tick inconsistent with price", func(t *testing.T) {
		pool := newTestPool(t, 1, 1000)
		pool.TickCurrentIndex = 2
		assert.ErrorIs(t, pool.Validate(), ErrTickMismatch)
	})

	t.Run("tick off by one is tolerated", func(t *testing.T) {
		pool := newTestPool(t, 1, 1000)
		pool.TickCurrentIndex = -1
		require.NoError(t, pool.Validate())
	})

	t.Run("price out of range", func(t *testing.T) {
		pool := newTestPool(t, 1, 1000)
		pool.SqrtPrice = new(big.Int).Add(tickmath.MAX_SQRT_PRICE, big.NewInt(1))
		assert.ErrorIs(t, pool.Validate(), ErrSqrtPriceOutOfRange)
	})

	t.Run("bad fee rates", func(t *testing.T) {
		pool := newTestPool(t, 1, 1000)
		pool.FeeRate = FeeRateDenominator
		assert.ErrorIs(t, pool.Validate(), ErrInvalidFeeRate)

		pool = newTestPool(t, 1, 1000)
		pool.ProtocolFeeRate = pool.Dialect.ProtocolFeeDenominator + 1
		assert.ErrorIs(t, pool.Validate(), ErrInvalidProtocolFee)
	})

	t.Run("missing fields", func(t *testing.T) {
		pool := newTestPool(t, 1, 1000)
		pool.ProtocolFeeB = nil
		assert.ErrorIs(t, pool.Validate(), ErrMissingField)
	})
}

func TestPool_ModifyLiquidity(t *testing.T) {
	pool, err := NewPool(common.HexToHash("0x01"), testAssetA, testAssetB, Turbos, 10, 500, new(big.Int).Lsh(big.NewInt(1), 64))
	require.NoError(t, err)

	// out of range position leaves active liquidity alone
	require.NoError(t, pool.ModifyLiquidity(100, 200, big.NewInt(50)))
	assert.Zero(t, pool.Liquidity.Sign())

	require.NoError(t, pool.ModifyLiquidity(-100, 100, big.NewInt(70)))
	assert.Equal(t, "70", pool.Liquidity.String())
	require.NoError(t, pool.Validate())

	tick, ok := pool.Ticks.Get(100)
	require.True(t, ok)
	// shared tick: upper of one range, lower of the other
	assert.Equal(t, "-20", tick.LiquidityNet.String())
	assert.Equal(t, "120", tick.LiquidityGross.String())

	t.Run("removing all liquidity clears ticks", func(t *testing.T) {
		require.NoError(t, pool.ModifyLiquidity(-100, 100, big.NewInt(-70)))
		assert.Zero(t, pool.Liquidity.Sign())

		lower, ok := pool.Ticks.Get(-100)
		require.True(t, ok, "ticks are never removed")
		assert.False(t, lower.Initialized)
		assert.Zero(t, lower.LiquidityGross.Sign())
		assert.Equal(t, 2, pool.Ticks.Len())
		require.NoError(t, pool.Validate())
	})

	t.Run("rejects bad ranges", func(t *testing.T) {
		assert.ErrorIs(t, pool.ModifyLiquidity(10, 10, big.NewInt(1)), ErrInvalidTickRange)
		assert.ErrorIs(t, pool.ModifyLiquidity(5, 20, big.NewInt(1)), ErrInvalidTickRange)
	})

	t.Run("underflow leaves pool unchanged", func(t *testing.T) {
		before := pool.Clone()
		err := pool.ModifyLiquidity(100, 200, big.NewInt(-51))
		require.Error(t, err)
		assert.Equal(t, before.Liquidity.String(), pool.Liquidity.String())
		assert.Equal(t, before.Ticks.Len(), pool.Ticks.Len())
		tick, _ := pool.Ticks.Get(100)
		assert.Equal(t, "50", tick.LiquidityGross.String())
	})
}

func TestPool_Clone(t *testing.T) {
	pool := newTestPool(t, 1, 1000)
	c := pool.Clone()

	c.SqrtPrice.SetUint64(1)
	c.FeeGrowthGlobalA.SetUint64(5)
	tick, _ := c.Ticks.Get(-60)
	tick.LiquidityNet.SetUint64(0)

	assert.NotEqual(t, "1", pool.SqrtPrice.String())
	assert.Zero(t, pool.FeeGrowthGlobalA.Sign())
	orig, _ := pool.Ticks.Get(-60)
	assert.Equal(t, "1000", orig.LiquidityNet.String())
}

func TestDialectByName(t *testing.T) {
	d, ok := DialectByName("turbos")
	require.True(t, ok)
	assert.Equal(t, Turbos, d)
	assert.Equal(t, "bitmap", d.TickLookup.String())

	_, ok = DialectByName("uniswap")
	assert.False(t, ok)
}
