package optimizer

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"math/rand"
	"testing"

	"github.com/defistate/defistate-router-go/graph"
	"github.com/defistate/defistate-router-go/market"
	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	"github.com/defistate/defistate-router-go/protocols/clmm"
	"github.com/defistate/defistate-router-go/protocols/constantproduct"
	cpcalc "github.com/defistate/defistate-router-go/protocols/constantproduct/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	usdc = assetregistry.AssetID("0x5::usdc::USDC")
	sui  = assetregistry.AssetID("0x2::sui::SUI")
	weth = assetregistry.AssetID("0x7::weth::WETH")
)

func id(b byte) common.Hash { return common.BytesToHash([]byte{b}) }

func cpPool(b byte, a0, a1 assetregistry.AssetID, r0, r1 int64, fee uint16) *constantproduct.Pool {
	return &constantproduct.Pool{
		ID:       id(b),
		AssetA:   a0,
		AssetB:   a1,
		ReserveA: big.NewInt(r0),
		ReserveB: big.NewInt(r1),
		FeeBps:   fee,
		Unlocked: true,
	}
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func buildGraph(t *testing.T, pools ...*constantproduct.Pool) (*graph.System, *graph.Graph) {
	t.Helper()
	s, err := graph.NewSystem(&graph.Config{Logger: quiet(), Registry: prometheus.NewRegistry()})
	require.NoError(t, err)
	markets := make([]*market.Market, len(pools))
	for i, p := range pools {
		markets[i] = market.NewConstantProduct(p)
	}
	require.NoError(t, s.AddMarkets(markets))
	return s, s.Snapshot()
}

func newTestOptimizer(t *testing.T, workers int) *Optimizer {
	t.Helper()
	o, err := NewOptimizer(&Config{
		Workers:  workers,
		Logger:   quiet(),
		Registry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	return o
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestNewOptimizer_Validation(t *testing.T) {
	reg := prometheus.NewRegistry()
	testCases := []struct {
		name string
		cfg  *Config
		err  string
	}{
		{"NoWorkers", &Config{Logger: quiet(), Registry: reg}, "config: Workers must be positive"},
		{"NegativeCache", &Config{Workers: 1, CacheSize: -1, Logger: quiet(), Registry: reg}, "config: CacheSize cannot be negative"},
		{"NoLogger", &Config{Workers: 1, Registry: reg}, "config: Logger cannot be nil"},
		{"NoRegistry", &Config{Workers: 1, Logger: quiet()}, "config: Registry cannot be nil"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewOptimizer(tc.cfg)
			assert.EqualError(t, err, tc.err)
		})
	}
}

// TestSearch_ConstantProductMatchesClosedForm checks that the search lands
// on the analytic optimum's profit. Integer truncation makes the profit
// curve flat to within one unit over a plateau roughly 870,000 units wide
// around the real-valued optimum, so the amount in can sit anywhere on it
// and only the profit is compared.
func TestSearch_ConstantProductMatchesClosedForm(t *testing.T) {
	pool := cpPool(1, usdc, sui, 1_000_000_000_000, 4_000_000_000_000, 2500)
	_, g := buildGraph(t, pool)

	paths, err := Expand(g, []assetregistry.AssetID{usdc, sui})
	require.NoError(t, err)
	require.Len(t, paths, 1)

	res, err := Search(g, paths[0])
	require.NoError(t, err)

	optimal, err := cpcalc.OptimalAmountIn(pool, usdc, big.NewInt(1), big.NewInt(1))
	require.NoError(t, err)
	optimalOut, err := cpcalc.GetAmountOut(pool, optimal, usdc)
	require.NoError(t, err)
	optimalProfit := new(big.Int).Sub(optimalOut, optimal)

	shortfall := new(big.Int).Sub(optimalProfit, res.Profit)
	assert.LessOrEqual(t, shortfall.Cmp(big.NewInt(2)), 0, "profit %s, closed form %s", res.Profit, optimalProfit)
	assert.Equal(t, "714531179816", res.Profit.String())
	assert.Equal(t, new(big.Int).Sub(res.AmountOut, res.AmountIn), res.Profit)
}

func cyclePools() []*constantproduct.Pool {
	return []*constantproduct.Pool{
		cpPool(1, usdc, sui, 1_000_000_000_000, 4_000_000_000_000, 30),
		cpPool(2, sui, usdc, 2_000_000_000_000, 1_000_000_000_000, 30),
		cpPool(3, sui, usdc, 2_000_000_000_000, 900_000_000_000, 30),
	}
}

func TestOptimizeStartingAmountIn_Cycle(t *testing.T) {
	_, g := buildGraph(t, cyclePools()...)
	o := newTestOptimizer(t, 4)

	res, err := o.OptimizeStartingAmountIn(context.Background(), g, []assetregistry.AssetID{usdc, sui, usdc})
	require.NoError(t, err)

	require.Len(t, res.Path, 2)
	assert.Equal(t, Leg{Origin: usdc, Destination: sui, Market: res.Path[0].Market, MarketID: id(1)}, res.Path[0])
	assert.Equal(t, id(2), res.Path[1].MarketID)
	assert.Equal(t, "137343078533", res.AmountIn.String())
	assert.Equal(t, "193649659138", res.AmountOut.String())
	assert.Equal(t, "56306580605", res.Profit.String())

	// every pool trades both ways, so each hop has three choices
	assert.Equal(t, 9.0, counterValue(t, o.metrics.expansions))
	assert.Equal(t, 0.0, counterValue(t, o.metrics.expansionErrors))
}

func TestOptimizeStartingAmountIn_SecondBest(t *testing.T) {
	pools := cyclePools()
	_, g := buildGraph(t, pools[0], pools[2])
	o := newTestOptimizer(t, 1)

	res, err := o.OptimizeStartingAmountIn(context.Background(), g, []assetregistry.AssetID{usdc, sui, usdc})
	require.NoError(t, err)
	assert.Equal(t, id(3), res.Path[1].MarketID)
	assert.Equal(t, "113103713613", res.AmountIn.String())
	assert.Equal(t, "38185522405", res.Profit.String())
}

func TestOptimizeStartingAmountIn_TiesGoToEarlierExpansion(t *testing.T) {
	pools := cyclePools()
	twin := cpPool(4, sui, usdc, 2_000_000_000_000, 1_000_000_000_000, 30)
	_, g := buildGraph(t, pools[0], pools[1], twin)

	for _, workers := range []int{1, 8} {
		o := newTestOptimizer(t, workers)
		res, err := o.OptimizeStartingAmountIn(context.Background(), g, []assetregistry.AssetID{usdc, sui, usdc})
		require.NoError(t, err)
		assert.Equal(t, id(2), res.Path[1].MarketID)
	}
}

// TestOptimizeStartingAmountIn_LockedLeg: a locked market collapses its
// expansions to zero and is never chosen over a tradable one, even one that
// loses money.
func TestOptimizeStartingAmountIn_LockedLeg(t *testing.T) {
	locked := cpPool(5, sui, usdc, 1_000_000_000_000, 1_000_000_000_000, 0)
	locked.Unlocked = false
	losing := cpPool(6, sui, usdc, 4_000_000_000_000, 900_000_000_000, 30)
	entry := cpPool(1, usdc, sui, 1_000_000_000_000, 4_000_000_000_000, 30)

	_, g := buildGraph(t, locked, entry, losing)

	paths, err := Expand(g, []assetregistry.AssetID{usdc, sui, usdc})
	require.NoError(t, err)
	for _, path := range paths {
		if path[1].MarketID != id(5) {
			continue
		}
		for _, amount := range []int64{1, 1_000, 1_000_000_000} {
			out, err := path.AmountOut(g, big.NewInt(amount))
			require.NoError(t, err)
			assert.Equal(t, 0, out.Sign())
		}
		assert.False(t, path.Viable(g))
	}

	o := newTestOptimizer(t, 2)
	res, err := o.OptimizeStartingAmountIn(context.Background(), g, []assetregistry.AssetID{usdc, sui, usdc})
	require.NoError(t, err)
	assert.NotEqual(t, id(5), res.Path[1].MarketID)
	assert.True(t, res.Path.Viable(g))

	// with nothing else on offer the locked path is still a result
	lockedWeth := cpPool(7, usdc, weth, 1_000_000, 1_000_000, 0)
	lockedWeth.Unlocked = false
	_, onlyLocked := buildGraph(t, lockedWeth)
	res, err = o.OptimizeStartingAmountIn(context.Background(), onlyLocked, []assetregistry.AssetID{usdc, weth})
	require.NoError(t, err)
	assert.Equal(t, 0, res.AmountIn.Sign())
	assert.Equal(t, 0, res.AmountOut.Sign())
	assert.Equal(t, 0, res.Profit.Sign())
}

func TestOptimizeStartingAmountIn_DropsFailingExpansion(t *testing.T) {
	s, err := graph.NewSystem(&graph.Config{Logger: quiet(), Registry: prometheus.NewRegistry()})
	require.NoError(t, err)

	pool, err := clmm.NewPool(id(9), sui, usdc, clmm.Cetus, 1, 0, mustBig("1304381782533278269440"))
	require.NoError(t, err)
	require.NoError(t, pool.ModifyLiquidity(84222, 86129, mustBig("1517882343751509868544")))
	require.NoError(t, s.AddMarkets([]*market.Market{
		market.NewCLMM(pool),
		market.NewConstantProduct(cpPool(1, usdc, sui, 1_000_000_000_000, 4_000_000_000_000, 30)),
	}))
	g := s.Snapshot()

	// corrupt the snapshot's copy so crossing the upper tick underflows
	_, broken, ok := g.MarketByID(id(9))
	require.True(t, ok)
	broken.CLMM.Liquidity = big.NewInt(1)

	o := newTestOptimizer(t, 2)
	res, err := o.OptimizeStartingAmountIn(context.Background(), g, []assetregistry.AssetID{usdc, sui})
	require.NoError(t, err)
	assert.Equal(t, id(1), res.Path[0].MarketID)
	assert.Equal(t, 1.0, counterValue(t, o.metrics.expansionErrors))

	s.RemoveMarkets([]common.Hash{id(1)})
	g2 := s.Snapshot()
	_, broken, _ = g2.MarketByID(id(9))
	broken.CLMM.Liquidity = big.NewInt(1)
	_, err = o.OptimizeStartingAmountIn(context.Background(), g2, []assetregistry.AssetID{usdc, sui})
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestOptimizeStartingAmountIn_InputErrors(t *testing.T) {
	_, g := buildGraph(t, cyclePools()...)
	o := newTestOptimizer(t, 1)
	ctx := context.Background()

	_, err := o.OptimizeStartingAmountIn(ctx, g, []assetregistry.AssetID{usdc})
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = o.OptimizeStartingAmountIn(ctx, g, []assetregistry.AssetID{usdc, usdc})
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = o.OptimizeStartingAmountIn(ctx, g, []assetregistry.AssetID{usdc, sui, weth})
	assert.ErrorIs(t, err, ErrEdgeNotFound)
	assert.Contains(t, err.Error(), "hop 1")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = o.OptimizeStartingAmountIn(cancelled, g, []assetregistry.AssetID{usdc, sui, usdc})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExpand_Order(t *testing.T) {
	_, g := buildGraph(t,
		cpPool(1, usdc, sui, 1_000, 1_000, 30),
		cpPool(2, usdc, sui, 1_000, 1_000, 30),
		cpPool(3, sui, weth, 1_000, 1_000, 30),
		cpPool(4, weth, sui, 1_000, 1_000, 30),
	)

	paths, err := Expand(g, []assetregistry.AssetID{usdc, sui, weth})
	require.NoError(t, err)
	require.Len(t, paths, 4)

	var got [][2]common.Hash
	for _, p := range paths {
		require.NoError(t, p.Validate())
		got = append(got, [2]common.Hash{p[0].MarketID, p[1].MarketID})
	}
	assert.Equal(t, [][2]common.Hash{
		{id(1), id(3)}, {id(1), id(4)},
		{id(2), id(3)}, {id(2), id(4)},
	}, got)
}

func TestPath_Validate(t *testing.T) {
	assert.ErrorIs(t, Path{}.Validate(), ErrInvalidPath)
	assert.ErrorIs(t, Path{
		{Origin: usdc, Destination: sui},
		{Origin: weth, Destination: usdc},
	}.Validate(), ErrInvalidPath)
	assert.NoError(t, Path{
		{Origin: usdc, Destination: sui},
		{Origin: sui, Destination: usdc},
	}.Validate())
}

func TestExpansionCache(t *testing.T) {
	s, g := buildGraph(t, cyclePools()...)
	o := newTestOptimizer(t, 1)
	assets := []assetregistry.AssetID{usdc, sui, usdc}

	first, err := o.expansions(g, assets)
	require.NoError(t, err)
	second, err := o.expansions(g, assets)
	require.NoError(t, err)
	assert.Equal(t, 1.0, counterValue(t, o.metrics.cacheHits))
	assert.Equal(t, first, second)

	// a new generation misses and sees the new market set
	s.RemoveMarkets([]common.Hash{id(3)})
	third, err := o.expansions(s.Snapshot(), assets)
	require.NoError(t, err)
	assert.Equal(t, 1.0, counterValue(t, o.metrics.cacheHits))
	assert.Len(t, third, 2)

	// results never alias the cached paths
	res, err := o.OptimizeStartingAmountIn(context.Background(), g, assets)
	require.NoError(t, err)
	res.Path[0].MarketID = common.Hash{}
	again, err := o.expansions(g, assets)
	require.NoError(t, err)
	assert.Equal(t, id(1), again[0][0].MarketID)

	assert.NotEqual(t, hashAssets([]assetregistry.AssetID{"ab", "c"}), hashAssets([]assetregistry.AssetID{"a", "bc"}))
}

// Two systems publish snapshots with the same generation; an optimizer
// shared between them must not reuse one graph's expansions on the other.
func TestExpansionCache_SharedAcrossSystems(t *testing.T) {
	pools := cyclePools()
	_, small := buildGraph(t, pools[0], pools[2])
	_, full := buildGraph(t, pools...)
	require.Equal(t, small.Generation(), full.Generation())
	require.NotEqual(t, small.SystemID(), full.SystemID())

	o := newTestOptimizer(t, 1)
	assets := []assetregistry.AssetID{usdc, sui, usdc}

	res, err := o.OptimizeStartingAmountIn(context.Background(), small, assets)
	require.NoError(t, err)
	assert.Equal(t, id(3), res.Path[1].MarketID)

	res, err = o.OptimizeStartingAmountIn(context.Background(), full, assets)
	require.NoError(t, err)
	assert.Equal(t, id(2), res.Path[1].MarketID)
	assert.Equal(t, "56306580605", res.Profit.String())
	assert.Equal(t, 0.0, counterValue(t, o.metrics.cacheHits))
	// 2x2 expansions on the small graph, then 3x3 on the full one
	assert.Equal(t, 13.0, counterValue(t, o.metrics.expansions))
}

// TestSearch_BeatsGrid compares the search against a coarse scan on random
// profitable two-pool cycles, where the profit curve is unimodal.
func TestSearch_BeatsGrid(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	fees := []uint16{0, 5, 30, 100}
	checked := 0

	for checked < 25 {
		r := make([]int64, 4)
		for i := range r {
			r[i] = 1_000_000_000 + rng.Int63n(999_000_000_000_000)
		}
		_, g := buildGraph(t,
			cpPool(1, usdc, sui, r[0], r[1], fees[rng.Intn(len(fees))]),
			cpPool(2, sui, usdc, r[2], r[3], fees[rng.Intn(len(fees))]),
		)
		path := Path{
			{Origin: usdc, Destination: sui, Market: 0, MarketID: id(1)},
			{Origin: sui, Destination: usdc, Market: 1, MarketID: id(2)},
		}

		top := big.NewInt(r[0])
		for _, v := range r[1:] {
			if big.NewInt(v).Cmp(top) > 0 {
				top.SetInt64(v)
			}
		}
		top.Mul(top, big.NewInt(4))

		gridBest := big.NewInt(0)
		for i := int64(0); i <= 500; i++ {
			x := new(big.Int).Mul(top, big.NewInt(i))
			x.Quo(x, big.NewInt(500))
			out, err := path.AmountOut(g, x)
			require.NoError(t, err)
			if p := out.Sub(out, x); p.Cmp(gridBest) > 0 {
				gridBest = p
			}
		}
		if gridBest.Sign() <= 0 {
			continue
		}
		checked++

		res, err := Search(g, path)
		require.NoError(t, err)
		shortfall := new(big.Int).Sub(gridBest, res.Profit)
		assert.LessOrEqual(t, shortfall.Cmp(big.NewInt(2)), 0, "reserves %v: search %s, grid %s", r, res.Profit, gridBest)
	}
}

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad integer " + s)
	}
	return v
}
