package optimizer

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/defistate/defistate-router-go/graph"
	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	lru "github.com/hashicorp/golang-lru"
)

// cacheKey names one asset sequence on one snapshot. Generations are only
// unique within a graph.System, so the system id is part of the key.
type cacheKey struct {
	assets     uint64
	system     uint64
	generation uint64
}

type cacheEntry struct {
	assets []assetregistry.AssetID
	paths  []Path
}

// hashAssets fingerprints an asset sequence. A zero byte separates ids so
// ["ab","c"] and ["a","bc"] differ.
func hashAssets(assets []assetregistry.AssetID) uint64 {
	d := xxhash.New()
	for _, a := range assets {
		_, _ = d.WriteString(string(a))
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}

func sameAssets(a, b []assetregistry.AssetID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Expand lists every combination of concrete markets along assets, in
// lexicographic order of the per-hop edge positions.
func Expand(g *graph.Graph, assets []assetregistry.AssetID) ([]Path, error) {
	if len(assets) < 2 {
		return nil, fmt.Errorf("%w: need at least two assets, got %d", ErrInvalidPath, len(assets))
	}

	hops := make([][]graph.EdgeMarket, len(assets)-1)
	total := 1
	for i := range hops {
		from, to := assets[i], assets[i+1]
		if from == to {
			return nil, fmt.Errorf("%w: hop %d trades %s against itself", ErrInvalidPath, i, from)
		}
		edge, ok := g.Edge(from, to)
		if !ok {
			return nil, fmt.Errorf("%w: hop %d %s -> %s", ErrEdgeNotFound, i, from, to)
		}
		hops[i] = edge
		total *= len(edge)
	}

	paths := make([]Path, 0, total)
	choice := make([]int, len(hops))
	for {
		path := make(Path, len(hops))
		for i, pick := range choice {
			h := hops[i][pick].Market
			path[i] = Leg{
				Origin:      assets[i],
				Destination: assets[i+1],
				Market:      h,
				MarketID:    g.Market(h).ID(),
			}
		}
		paths = append(paths, path)

		// odometer increment, last hop fastest
		i := len(choice) - 1
		for ; i >= 0; i-- {
			choice[i]++
			if choice[i] < len(hops[i]) {
				break
			}
			choice[i] = 0
		}
		if i < 0 {
			return paths, nil
		}
	}
}

// expansions serves Expand through the LRU. Entries are keyed by snapshot
// so a graph never sees handles issued by another one.
func (o *Optimizer) expansions(g *graph.Graph, assets []assetregistry.AssetID) ([]Path, error) {
	key := cacheKey{assets: hashAssets(assets), system: g.SystemID(), generation: g.Generation()}
	if v, ok := o.cache.Get(key); ok {
		if e := v.(*cacheEntry); sameAssets(e.assets, assets) {
			o.metrics.cacheHits.Inc()
			return e.paths, nil
		}
	}

	paths, err := Expand(g, assets)
	if err != nil {
		return nil, err
	}
	owned := make([]assetregistry.AssetID, len(assets))
	copy(owned, assets)
	o.cache.Add(key, &cacheEntry{assets: owned, paths: paths})
	return paths, nil
}

func newCache(size int) (*lru.Cache, error) {
	return lru.New(size)
}
