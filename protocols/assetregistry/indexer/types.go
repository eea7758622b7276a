package indexer

import (
	"github.com/defistate/defistate-router-go/protocols/assetregistry"
)

// IndexedAssetSystem defines the methods for accessing indexed asset data.
type IndexedAssetSystem interface {
	GetByID(id assetregistry.AssetID) (assetregistry.Asset, bool)
	GetBySymbol(symbol string) (assetregistry.Asset, bool)
	Resolve(ref string) (assetregistry.Asset, bool)
	All() []assetregistry.Asset
}
