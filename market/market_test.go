package market

import (
	"math/big"
	"testing"

	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	"github.com/defistate/defistate-router-go/protocols/clmm"
	"github.com/defistate/defistate-router-go/protocols/constantproduct"
	"github.com/defistate/defistate-router-go/protocols/stableswap"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sui  assetregistry.AssetID = "0x2::sui::SUI"
	usdc assetregistry.AssetID = "0xdba34672e30cb065b1f93e3ab55318768fd6fef66c15942c9f7cb846e2f900e7::usdc::USDC"
	usdt assetregistry.AssetID = "0xc060006111016b8a020ad5b33834984a437aaa7d3c74c18e09a95d48aceab08c::coin::COIN"
)

func fromString(s string) *big.Int {
	n, _ := new(big.Int).SetString(s, 10)
	return n
}

func newCLMM(t *testing.T) *Market {
	t.Helper()
	pool, err := clmm.NewPool(common.HexToHash("0xc1"), sui, usdc, clmm.Cetus, 1, 0, fromString("1304381782533278269440"))
	require.NoError(t, err)
	require.NoError(t, pool.ModifyLiquidity(84222, 86129, fromString("1517882343751509868544")))
	return NewCLMM(pool)
}

func newStable() *Market {
	return NewStable(&stableswap.Pool{
		ID:       common.HexToHash("0x5a"),
		AssetX:   usdc,
		AssetY:   usdt,
		ReserveX: big.NewInt(1_000_000_000_000),
		ReserveY: big.NewInt(1_000_000_000_000),
		ScaleX:   1_000_000,
		ScaleY:   1_000_000,
		Unlocked: true,
	})
}

func newConstantProduct() *Market {
	return NewConstantProduct(&constantproduct.Pool{
		ID:       common.HexToHash("0xcb"),
		AssetA:   usdc,
		AssetB:   sui,
		ReserveA: big.NewInt(100_000_000),
		ReserveB: fromString("50000000000000000000"),
		FeeBps:   30,
		Unlocked: true,
	})
}

func TestMarket_AmountOut(t *testing.T) {
	testCases := []struct {
		name     string
		market   *Market
		origin   assetregistry.AssetID
		amount   string
		expected string
	}{
		{"clmm b to a", newCLMM(t), usdc, "42000000000000000", "8399996712957"},
		{"clmm a to b", newCLMM(t), sui, "13370000000000", "66849958362998925"},
		{"clmm exhausted", newCLMM(t), sui, "1000000000000000000000000000000", "0"},
		{"stable", newStable(), usdc, "1000000000", "999999999"},
		{"constant product", newConstantProduct(), usdc, "1000000", "493579017198530649"},
		{"zero amount", newConstantProduct(), usdc, "0", "0"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := tc.market.AmountOut(fromString(tc.amount), tc.origin)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, out.String())
		})
	}
}

func TestMarket_LockedIsNotViable(t *testing.T) {
	markets := []*Market{newCLMM(t), newStable(), newConstantProduct()}
	markets[0].CLMM.Unlocked = false
	markets[1].Stable.Unlocked = false
	markets[2].ConstantProduct.Unlocked = false

	for _, m := range markets {
		t.Run(m.Kind.String(), func(t *testing.T) {
			assert.False(t, m.Viable())
			origin, _ := m.Assets()
			out, err := m.AmountOut(big.NewInt(1_000_000), origin)
			require.NoError(t, err)
			assert.Zero(t, out.Sign())
		})
	}
}

func TestMarket_EmptyIsNotViable(t *testing.T) {
	m := newStable()
	m.Stable.ReserveY.SetInt64(0)
	assert.False(t, m.Viable())
	out, err := m.AmountOut(big.NewInt(1_000_000), usdc)
	require.NoError(t, err)
	assert.Zero(t, out.Sign())
}

func TestMarket_AssetMismatch(t *testing.T) {
	m := newStable()
	_, err := m.AmountOut(big.NewInt(1), sui)
	assert.ErrorIs(t, err, ErrAssetMismatch)
	_, err = m.SpotPrice(sui)
	assert.ErrorIs(t, err, ErrAssetMismatch)
	_, err = m.Other(sui)
	assert.ErrorIs(t, err, ErrAssetMismatch)

	other, err := m.Other(usdc)
	require.NoError(t, err)
	assert.Equal(t, usdt, other)
}

func TestMarket_SpotPrice(t *testing.T) {
	m := newConstantProduct()
	forward, err := m.SpotPrice(usdc)
	require.NoError(t, err)
	backward, err := m.SpotPrice(sui)
	require.NoError(t, err)

	product := new(big.Float).Mul(forward, backward)
	f, _ := product.Float64()
	assert.InDelta(t, 1.0, f, 1e-12)

	cl := newCLMM(t)
	p, err := cl.SpotPrice(sui)
	require.NoError(t, err)
	f, _ = p.Float64()
	assert.InDelta(t, 5000, f, 0.01)
}

func TestMarket_ApplySwap(t *testing.T) {
	t.Run("commits", func(t *testing.T) {
		m := newConstantProduct()
		out, err := m.ApplySwap(big.NewInt(1_000_000), usdc)
		require.NoError(t, err)
		assert.Equal(t, "493579017198530649", out.String())
		assert.Equal(t, "101000000", m.ConstantProduct.ReserveA.String())
	})

	t.Run("clmm partial fill is rejected and not committed", func(t *testing.T) {
		m := newCLMM(t)
		before := new(big.Int).Set(m.CLMM.SqrtPrice)
		_, err := m.ApplySwap(fromString("1000000000000000000000000000000"), sui)
		assert.ErrorIs(t, err, ErrPartialFill)
		assert.Equal(t, before.String(), m.CLMM.SqrtPrice.String())
	})

	t.Run("clmm commits", func(t *testing.T) {
		m := newCLMM(t)
		before := new(big.Int).Set(m.CLMM.SqrtPrice)
		out, err := m.ApplySwap(fromString("42000000000000000"), usdc)
		require.NoError(t, err)
		assert.Equal(t, "8399996712957", out.String())
		assert.Equal(t, 1, m.CLMM.SqrtPrice.Cmp(before))
		require.NoError(t, m.Validate())
	})
}

func TestMarket_Validate(t *testing.T) {
	require.NoError(t, newCLMM(t).Validate())
	require.NoError(t, newStable().Validate())
	require.NoError(t, newConstantProduct().Validate())

	same := newConstantProduct()
	same.ConstantProduct.AssetB = usdc
	assert.ErrorIs(t, same.Validate(), ErrSameAsset)

	broken := &Market{Kind: KindStable}
	assert.ErrorIs(t, broken.Validate(), ErrKindMismatch)

	unknown := &Market{Kind: 9}
	assert.ErrorIs(t, unknown.Validate(), ErrUnknownKind)

	drifted := newCLMM(t)
	drifted.CLMM.Liquidity.Add(drifted.CLMM.Liquidity, big.NewInt(1))
	assert.ErrorIs(t, drifted.Validate(), clmm.ErrDirectionalLiquidity)
}

func TestMarket_Clone(t *testing.T) {
	m := newCLMM(t)
	c := m.Clone()
	require.Equal(t, m.ID(), c.ID())
	c.CLMM.Liquidity.SetInt64(0)
	assert.NotZero(t, m.CLMM.Liquidity.Sign())
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindCLMM, KindStable, KindConstantProduct} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("orderbook")
	assert.ErrorIs(t, err, ErrUnknownKind)
}
