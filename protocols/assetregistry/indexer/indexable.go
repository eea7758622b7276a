package indexer

import (
	"strings"

	"github.com/defistate/defistate-router-go/protocols/assetregistry"
)

// Indexer builds IndexedAssetSystem values.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed asset system from a raw slice of assets.
func (i *Indexer) Index(assets []assetregistry.Asset) IndexedAssetSystem {
	return NewIndexableAssetSystem(assets)
}

// IndexableAssetSystem provides fast, indexed access to asset data.
// Symbols are matched case-insensitively; when two assets share a symbol
// the first one wins.
type IndexableAssetSystem struct {
	byID     map[assetregistry.AssetID]assetregistry.Asset
	bySymbol map[string]assetregistry.Asset
	all      []assetregistry.Asset
}

// NewIndexableAssetSystem creates a new indexed asset system from a raw slice.
func NewIndexableAssetSystem(assets []assetregistry.Asset) *IndexableAssetSystem {
	byID := make(map[assetregistry.AssetID]assetregistry.Asset, len(assets))
	bySymbol := make(map[string]assetregistry.Asset, len(assets))

	for _, a := range assets {
		byID[a.ID] = a
		key := strings.ToUpper(a.Symbol)
		if _, taken := bySymbol[key]; !taken && key != "" {
			bySymbol[key] = a
		}
	}

	return &IndexableAssetSystem{
		byID:     byID,
		bySymbol: bySymbol,
		all:      assets,
	}
}

// GetByID retrieves an asset by its coin type.
func (ias *IndexableAssetSystem) GetByID(id assetregistry.AssetID) (assetregistry.Asset, bool) {
	a, ok := ias.byID[id]
	return a, ok
}

// GetBySymbol retrieves an asset by its ticker symbol.
func (ias *IndexableAssetSystem) GetBySymbol(symbol string) (assetregistry.Asset, bool) {
	a, ok := ias.bySymbol[strings.ToUpper(symbol)]
	return a, ok
}

// Resolve looks ref up as a coin type first and as a symbol second.
func (ias *IndexableAssetSystem) Resolve(ref string) (assetregistry.Asset, bool) {
	if a, ok := ias.byID[assetregistry.AssetID(ref)]; ok {
		return a, true
	}
	return ias.GetBySymbol(ref)
}

// All returns a defensive copy of the slice of all assets in the system.
func (ias *IndexableAssetSystem) All() []assetregistry.Asset {
	allCopy := make([]assetregistry.Asset, len(ias.all))
	copy(allCopy, ias.all)
	return allCopy
}
