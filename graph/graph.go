package graph

import (
	"math/big"

	"github.com/defistate/defistate-router-go/market"
	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	"github.com/defistate/defistate-router-go/protocols/marketregistry"
	"github.com/ethereum/go-ethereum/common"
)

// EdgeMarket is one market able to convert an edge's origin into its
// destination. Market is a handle into the owning Graph.
type EdgeMarket struct {
	Market int
	// SpotPrice is destination units per origin unit before fees. It is nil
	// when the market could not be priced at insertion (an empty pool).
	SpotPrice *big.Float
}

// Graph is an immutable snapshot of the directed market graph. Handles are
// only meaningful within the snapshot that issued them.
type Graph struct {
	system     uint64
	generation uint64

	view        *marketregistry.View
	assetIndex  map[assetregistry.AssetID]int
	marketIndex map[common.Hash]int

	// markets and edges are indexed by the view's market and edge handles.
	// A removed market leaves a nil entry until the registry compacts.
	markets []*market.Market
	edges   [][]EdgeMarket
}

func newGraph(system, generation uint64, view *marketregistry.View, live map[common.Hash]*entry) *Graph {
	g := &Graph{
		system:      system,
		generation:  generation,
		view:        view,
		assetIndex:  make(map[assetregistry.AssetID]int, len(view.Assets)),
		marketIndex: make(map[common.Hash]int, len(view.Markets)),
		markets:     make([]*market.Market, len(view.Markets)),
		edges:       make([][]EdgeMarket, len(view.EdgeTargets)),
	}
	for i, id := range view.Assets {
		g.assetIndex[id] = i
	}
	for i, id := range view.Markets {
		if e, ok := live[id]; ok {
			g.markets[i] = e.market
			g.marketIndex[id] = i
		}
	}

	for from, adj := range view.Adjacency {
		origin := view.Assets[from]
		for _, edgeIndex := range adj {
			list := make([]EdgeMarket, 0, len(view.EdgeMarkets[edgeIndex]))
			for _, h := range view.EdgeMarkets[edgeIndex] {
				e, ok := live[view.Markets[h]]
				if !ok {
					continue
				}
				list = append(list, EdgeMarket{Market: h, SpotPrice: e.spotPrice(origin)})
			}
			g.edges[edgeIndex] = list
		}
	}
	return g
}

// Generation increases every time a new snapshot is published.
func (g *Graph) Generation() uint64 {
	return g.generation
}

// SystemID identifies the System that published g. Together with
// Generation it names a snapshot uniquely within the process.
func (g *Graph) SystemID() uint64 {
	return g.system
}

// Edge returns the markets converting from into to, in insertion order.
func (g *Graph) Edge(from, to assetregistry.AssetID) ([]EdgeMarket, bool) {
	fromIndex, ok := g.assetIndex[from]
	if !ok {
		return nil, false
	}
	toIndex, ok := g.assetIndex[to]
	if !ok {
		return nil, false
	}
	for _, edgeIndex := range g.view.Adjacency[fromIndex] {
		if g.view.EdgeTargets[edgeIndex] == toIndex {
			list := g.edges[edgeIndex]
			return list, len(list) > 0
		}
	}
	return nil, false
}

// Market resolves a handle. It returns nil for a handle of a removed market.
func (g *Graph) Market(handle int) *market.Market {
	if handle < 0 || handle >= len(g.markets) {
		return nil
	}
	return g.markets[handle]
}

func (g *Graph) MarketByID(id common.Hash) (int, *market.Market, bool) {
	h, ok := g.marketIndex[id]
	if !ok {
		return 0, nil, false
	}
	return h, g.markets[h], true
}

// Markets returns the live markets in handle order.
func (g *Graph) Markets() []*market.Market {
	out := make([]*market.Market, 0, len(g.marketIndex))
	for _, m := range g.markets {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// Assets returns every asset with at least one outgoing market.
func (g *Graph) Assets() []assetregistry.AssetID {
	var out []assetregistry.AssetID
	for i, id := range g.view.Assets {
		if g.hasOutgoing(i) {
			out = append(out, id)
		}
	}
	return out
}

func (g *Graph) hasOutgoing(assetIndex int) bool {
	for _, edgeIndex := range g.view.Adjacency[assetIndex] {
		if len(g.edges[edgeIndex]) > 0 {
			return true
		}
	}
	return false
}

// Neighbors returns the assets reachable from origin in one hop.
func (g *Graph) Neighbors(origin assetregistry.AssetID) []assetregistry.AssetID {
	fromIndex, ok := g.assetIndex[origin]
	if !ok {
		return nil
	}
	var out []assetregistry.AssetID
	for _, edgeIndex := range g.view.Adjacency[fromIndex] {
		if len(g.edges[edgeIndex]) > 0 {
			out = append(out, g.view.Assets[g.view.EdgeTargets[edgeIndex]])
		}
	}
	return out
}
