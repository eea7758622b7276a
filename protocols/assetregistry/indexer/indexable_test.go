package indexer

import (
	"testing"

	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexableAssetSystem(t *testing.T) {
	// --- Test Data Setup ---
	sui := assetregistry.AssetID("0x2::sui::SUI")
	usdc := assetregistry.AssetID("0xdba34672e30cb065b1f93e3ab55318768fd6fef66c15942c9f7cb846e2f900e7::usdc::USDC")
	bridgedUSDC := assetregistry.AssetID("0x5d4b302506645c37ff133b98c4b50a5ae14841659738d6d733d59d0d217a93bf::coin::COIN")

	testAssets := []assetregistry.Asset{
		{ID: sui, Symbol: "SUI", Decimals: 9},
		{ID: usdc, Symbol: "USDC", Decimals: 6},
		{ID: bridgedUSDC, Symbol: "USDC", Decimals: 6},
	}

	indexer := NewIndexableAssetSystem(testAssets)
	require.NotNil(t, indexer)

	t.Run("Successful Lookups", func(t *testing.T) {
		a, found := indexer.GetByID(sui)
		assert.True(t, found)
		assert.Equal(t, "SUI", a.Symbol)

		a, found = indexer.GetBySymbol("usdc")
		assert.True(t, found, "symbol lookups are case-insensitive")
		assert.Equal(t, usdc, a.ID, "the first asset with a symbol wins")
	})

	t.Run("Resolve", func(t *testing.T) {
		a, found := indexer.Resolve(string(bridgedUSDC))
		require.True(t, found)
		assert.Equal(t, bridgedUSDC, a.ID)

		a, found = indexer.Resolve("SUI")
		require.True(t, found)
		assert.Equal(t, sui, a.ID)

		_, found = indexer.Resolve("WETH")
		assert.False(t, found)
	})

	t.Run("All Method", func(t *testing.T) {
		all := indexer.All()
		assert.Len(t, all, 3)

		all[0].Symbol = "MODIFIED"
		original, _ := indexer.GetByID(sui)
		assert.Equal(t, "SUI", original.Symbol, "Modifying the returned slice should not affect the internal state")
	})

	t.Run("Edge Case - Nil Slice", func(t *testing.T) {
		nilIndexer := New().Index(nil)
		require.NotNil(t, nilIndexer)

		_, found := nilIndexer.GetByID(sui)
		assert.False(t, found)

		all := nilIndexer.All()
		assert.Len(t, all, 0)
		assert.NotNil(t, all, "All() should return an empty slice, not nil")
	})
}
