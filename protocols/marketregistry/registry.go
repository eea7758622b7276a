package marketregistry

import (
	"bytes"
	"sort"

	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultCompactionThreshold is used when a non-positive threshold is given.
const DefaultCompactionThreshold = 1000

// View is a snapshot of the registry's arrays. Indices into Assets and
// Markets are the handles used by every other field; an edge with an empty
// market list is dangling and must be skipped.
type View struct {
	Assets      []assetregistry.AssetID `json:"assets"`
	Markets     []common.Hash           `json:"markets"`
	Adjacency   [][]int                 `json:"adjacency"`
	EdgeTargets []int                   `json:"edgeTargets"`
	EdgeMarkets [][]int                 `json:"edgeMarkets"`
}

// Registry interns assets and markets into integer handles and keeps the
// directed edges between them. It is not safe for concurrent use.
type Registry struct {
	assetToIndex  map[assetregistry.AssetID]int
	marketToIndex map[common.Hash]int

	assets      []assetregistry.AssetID
	markets     []common.Hash
	adjacency   [][]int
	edgeTargets []int
	edgeMarkets [][]int

	danglingEdgeCount   int
	compactionThreshold int
}

// New creates an empty registry that compacts itself once more than
// compactionThreshold edges are dangling.
func New(compactionThreshold int) *Registry {
	if compactionThreshold <= 0 {
		compactionThreshold = DefaultCompactionThreshold
	}
	return &Registry{
		assetToIndex:        make(map[assetregistry.AssetID]int),
		marketToIndex:       make(map[common.Hash]int),
		assets:              make([]assetregistry.AssetID, 0),
		markets:             make([]common.Hash, 0),
		adjacency:           make([][]int, 0),
		edgeTargets:         make([]int, 0),
		edgeMarkets:         make([][]int, 0),
		compactionThreshold: compactionThreshold,
	}
}

func (r *Registry) internAsset(id assetregistry.AssetID) int {
	index, exists := r.assetToIndex[id]
	if !exists {
		index = len(r.assets)
		r.assets = append(r.assets, id)
		r.assetToIndex[id] = index
		r.adjacency = append(r.adjacency, nil)
	}
	return index
}

func (r *Registry) addEdge(from, to assetregistry.AssetID, marketID common.Hash) {
	fromIndex := r.internAsset(from)
	toIndex := r.internAsset(to)
	marketIndex, exists := r.marketToIndex[marketID]
	if !exists {
		marketIndex = len(r.markets)
		r.markets = append(r.markets, marketID)
		r.marketToIndex[marketID] = marketIndex
	}

	for _, edgeIndex := range r.adjacency[fromIndex] {
		if r.edgeTargets[edgeIndex] != toIndex {
			continue
		}
		for _, existing := range r.edgeMarkets[edgeIndex] {
			if existing == marketIndex {
				return
			}
		}
		if len(r.edgeMarkets[edgeIndex]) == 0 {
			// reviving a dangling edge
			r.danglingEdgeCount--
		}
		r.edgeMarkets[edgeIndex] = append(r.edgeMarkets[edgeIndex], marketIndex)
		return
	}

	newEdgeIndex := len(r.edgeTargets)
	r.edgeTargets = append(r.edgeTargets, toIndex)
	r.edgeMarkets = append(r.edgeMarkets, []int{marketIndex})
	r.adjacency[fromIndex] = append(r.adjacency[fromIndex], newEdgeIndex)
}

// Add connects every pair of assets with marketID in both directions.
// Adding a market twice is a no-op.
func (r *Registry) Add(assets []assetregistry.AssetID, marketID common.Hash) {
	for i := 0; i < len(assets); i++ {
		for j := i + 1; j < len(assets); j++ {
			r.addEdge(assets[i], assets[j], marketID)
			r.addEdge(assets[j], assets[i], marketID)
		}
	}
}

// RemoveMarket drops marketID from every edge. Edges left without markets
// become dangling until the next compaction.
func (r *Registry) RemoveMarket(marketID common.Hash) {
	marketIndex, exists := r.marketToIndex[marketID]
	if !exists {
		return
	}

	for edgeIndex, marketList := range r.edgeMarkets {
		if len(marketList) == 0 {
			continue
		}
		kept := make([]int, 0, len(marketList))
		for _, m := range marketList {
			if m != marketIndex {
				kept = append(kept, m)
			}
		}
		if len(kept) == len(marketList) {
			continue
		}
		r.edgeMarkets[edgeIndex] = kept
		if len(kept) == 0 {
			r.danglingEdgeCount++
		}
	}
	r.maybeCompact()
}

// RemoveAsset drops every edge into or out of assetID and returns the
// markets that were on them, sorted by id.
func (r *Registry) RemoveAsset(assetID assetregistry.AssetID) []common.Hash {
	assetIndex, exists := r.assetToIndex[assetID]
	if !exists {
		return nil
	}

	dropped := make(map[int]struct{})
	drop := func(edgeIndex int) {
		if len(r.edgeMarkets[edgeIndex]) == 0 {
			return
		}
		for _, m := range r.edgeMarkets[edgeIndex] {
			dropped[m] = struct{}{}
		}
		r.edgeMarkets[edgeIndex] = nil
		r.danglingEdgeCount++
	}

	for _, edgeIndex := range r.adjacency[assetIndex] {
		drop(edgeIndex)
	}
	for edgeIndex, target := range r.edgeTargets {
		if target == assetIndex {
			drop(edgeIndex)
		}
	}

	ids := make([]common.Hash, 0, len(dropped))
	for m := range dropped {
		ids = append(ids, r.markets[m])
	}
	sortHashes(ids)

	r.maybeCompact()
	return ids
}

func (r *Registry) maybeCompact() {
	if r.danglingEdgeCount > r.compactionThreshold {
		r.compact()
	}
}

// compact rebuilds the arrays without dangling edges and without assets or
// markets that no live edge references. Handles change.
func (r *Registry) compact() {
	if r.danglingEdgeCount == 0 {
		return
	}

	oldToNewEdge := make(map[int]int, len(r.edgeTargets)-r.danglingEdgeCount)
	edgeTargets := make([]int, 0, len(r.edgeTargets)-r.danglingEdgeCount)
	edgeMarkets := make([][]int, 0, len(r.edgeTargets)-r.danglingEdgeCount)
	for readIdx, marketList := range r.edgeMarkets {
		if len(marketList) == 0 {
			continue
		}
		oldToNewEdge[readIdx] = len(edgeTargets)
		edgeTargets = append(edgeTargets, r.edgeTargets[readIdx])
		edgeMarkets = append(edgeMarkets, marketList)
	}

	usedAssets := make(map[int]struct{})
	usedMarkets := make(map[int]struct{})
	for _, target := range edgeTargets {
		usedAssets[target] = struct{}{}
	}
	for i, adj := range r.adjacency {
		for _, e := range adj {
			if _, ok := oldToNewEdge[e]; ok {
				usedAssets[i] = struct{}{}
				break
			}
		}
	}
	for _, marketList := range edgeMarkets {
		for _, m := range marketList {
			usedMarkets[m] = struct{}{}
		}
	}

	oldToNewAsset := make(map[int]int, len(usedAssets))
	assets := make([]assetregistry.AssetID, 0, len(usedAssets))
	assetToIndex := make(map[assetregistry.AssetID]int, len(usedAssets))
	for oldIdx, id := range r.assets {
		if _, ok := usedAssets[oldIdx]; ok {
			oldToNewAsset[oldIdx] = len(assets)
			assetToIndex[id] = len(assets)
			assets = append(assets, id)
		}
	}

	oldToNewMarket := make(map[int]int, len(usedMarkets))
	markets := make([]common.Hash, 0, len(usedMarkets))
	marketToIndex := make(map[common.Hash]int, len(usedMarkets))
	for oldIdx, id := range r.markets {
		if _, ok := usedMarkets[oldIdx]; ok {
			oldToNewMarket[oldIdx] = len(markets)
			marketToIndex[id] = len(markets)
			markets = append(markets, id)
		}
	}

	for i := range edgeTargets {
		edgeTargets[i] = oldToNewAsset[edgeTargets[i]]
	}
	for i, marketList := range edgeMarkets {
		remapped := make([]int, len(marketList))
		for j, m := range marketList {
			remapped[j] = oldToNewMarket[m]
		}
		edgeMarkets[i] = remapped
	}

	adjacency := make([][]int, len(assets))
	for oldIdx, adj := range r.adjacency {
		newIdx, ok := oldToNewAsset[oldIdx]
		if !ok {
			continue
		}
		list := make([]int, 0, len(adj))
		for _, e := range adj {
			if ne, ok := oldToNewEdge[e]; ok {
				list = append(list, ne)
			}
		}
		adjacency[newIdx] = list
	}

	r.assets = assets
	r.assetToIndex = assetToIndex
	r.markets = markets
	r.marketToIndex = marketToIndex
	r.edgeTargets = edgeTargets
	r.edgeMarkets = edgeMarkets
	r.adjacency = adjacency
	r.danglingEdgeCount = 0
}

// MarketsForAsset returns the ids of the live markets touching assetID,
// sorted by id.
func (r *Registry) MarketsForAsset(assetID assetregistry.AssetID) []common.Hash {
	assetIndex, exists := r.assetToIndex[assetID]
	if !exists {
		return nil
	}

	unique := make(map[common.Hash]struct{})
	for _, edgeIndex := range r.adjacency[assetIndex] {
		for _, m := range r.edgeMarkets[edgeIndex] {
			unique[r.markets[m]] = struct{}{}
		}
	}
	if len(unique) == 0 {
		return nil
	}
	ids := make([]common.Hash, 0, len(unique))
	for id := range unique {
		ids = append(ids, id)
	}
	sortHashes(ids)
	return ids
}

// View returns a deep copy of the registry's arrays.
func (r *Registry) View() *View {
	assets := make([]assetregistry.AssetID, len(r.assets))
	copy(assets, r.assets)

	markets := make([]common.Hash, len(r.markets))
	copy(markets, r.markets)

	adjacency := make([][]int, len(r.adjacency))
	for i, adj := range r.adjacency {
		adjacency[i] = append(make([]int, 0, len(adj)), adj...)
	}

	edgeTargets := make([]int, len(r.edgeTargets))
	copy(edgeTargets, r.edgeTargets)

	edgeMarkets := make([][]int, len(r.edgeMarkets))
	for i, marketList := range r.edgeMarkets {
		edgeMarkets[i] = append(make([]int, 0, len(marketList)), marketList...)
	}

	return &View{
		Assets:      assets,
		Markets:     markets,
		Adjacency:   adjacency,
		EdgeTargets: edgeTargets,
		EdgeMarkets: edgeMarkets,
	}
}

func sortHashes(ids []common.Hash) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}
