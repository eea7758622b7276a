package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-router-go/graph"
	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const DefaultCacheSize = 1024

type Config struct {
	// Workers bounds how many expansions are searched at once.
	Workers int
	// CacheSize is the number of asset sequences whose expansions are kept.
	// Zero selects DefaultCacheSize.
	CacheSize int
	Logger    Logger
	Registry  prometheus.Registerer
}

func (c *Config) validate() error {
	if c.Workers <= 0 {
		return errors.New("config: Workers must be positive")
	}
	if c.CacheSize < 0 {
		return errors.New("config: CacheSize cannot be negative")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	return nil
}

// Optimizer finds the most profitable input amount along an asset path.
// It only reads the graph snapshots it is given and is safe for concurrent
// use.
type Optimizer struct {
	workers int
	cache   *lru.Cache
	logger  Logger
	metrics *Metrics
}

func NewOptimizer(cfg *Config) (*Optimizer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	size := cfg.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	cache, err := newCache(size)
	if err != nil {
		return nil, fmt.Errorf("creating expansion cache: %w", err)
	}
	return &Optimizer{
		workers: cfg.Workers,
		cache:   cache,
		logger:  cfg.Logger,
		metrics: NewMetrics(cfg.Registry),
	}, nil
}

// Search runs the golden-section search on one concrete path.
func Search(g *graph.Graph, path Path) (*OptimizedResult, error) {
	if err := path.Validate(); err != nil {
		return nil, err
	}

	profit := func(x *big.Int) (*big.Int, error) {
		out, err := path.AmountOut(g, x)
		if err != nil {
			return nil, err
		}
		return out.Sub(out, x), nil
	}

	amountIn, err := GoldenSection(new(big.Int), MaxAmountIn, profit)
	if err != nil {
		return nil, err
	}
	amountOut, err := path.AmountOut(g, amountIn)
	if err != nil {
		return nil, err
	}

	owned := make(Path, len(path))
	copy(owned, path)
	return &OptimizedResult{
		Path:      owned,
		AmountIn:  amountIn,
		AmountOut: amountOut,
		Profit:    new(big.Int).Sub(amountOut, amountIn),
	}, nil
}

// OptimizeStartingAmountIn expands assets into every combination of markets
// in g, searches each for its most profitable input and returns the best by
// profit. Equal profits go to the earlier expansion.
//
// A market error drops only the expansion that hit it and is logged; the
// call fails with ErrNoResult when nothing survives. Cancelling ctx stops
// scheduling further expansions.
func (o *Optimizer) OptimizeStartingAmountIn(ctx context.Context, g *graph.Graph, assets []assetregistry.AssetID) (*OptimizedResult, error) {
	timer := prometheus.NewTimer(o.metrics.optimizeDuration)
	defer timer.ObserveDuration()

	paths, err := o.expansions(g, assets)
	if err != nil {
		return nil, err
	}

	results := make([]*candidate, len(paths))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(o.workers)
	for i, path := range paths {
		if err := egCtx.Err(); err != nil {
			break
		}
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			o.metrics.expansions.Inc()
			res, err := Search(g, path)
			if err != nil {
				o.metrics.expansionErrors.Inc()
				o.logger.Error("dropping expansion",
					"expansion", i,
					"generation", g.Generation(),
					"path", describe(path),
					"error", err,
				)
				return nil
			}
			results[i] = &candidate{result: res, viable: path.Viable(g)}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var top *candidate
	for _, c := range results {
		if c == nil {
			continue
		}
		if top == nil || c.better(top) {
			top = c
		}
	}
	if top == nil {
		return nil, fmt.Errorf("%w: %d expansions of %v", ErrNoResult, len(paths), assets)
	}
	best := top.result

	o.logger.Debug("path optimized",
		"assets", assets,
		"expansions", len(paths),
		"amountIn", best.AmountIn,
		"profit", best.Profit,
	)
	return best, nil
}

type candidate struct {
	result *OptimizedResult
	viable bool
}

// better ranks c against o. A path through a locked or empty market only
// wins when no path avoids one; otherwise profit decides and the earlier
// expansion keeps ties.
func (c *candidate) better(o *candidate) bool {
	if c.viable != o.viable {
		return c.viable
	}
	return c.result.Profit.Cmp(o.result.Profit) > 0
}

func describe(path Path) []string {
	out := make([]string, len(path))
	for i, leg := range path {
		out[i] = fmt.Sprintf("%s->%s@%s", leg.Origin, leg.Destination, leg.MarketID.Hex())
	}
	return out
}
