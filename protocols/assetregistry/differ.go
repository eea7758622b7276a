package assetregistry

type AssetSystemDiff struct {
	Additions []Asset   `json:"additions,omitempty"`
	Updates   []Asset   `json:"updates,omitempty"`
	Deletions []AssetID `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d AssetSystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two sets of assets, keyed by id.
func Differ(old, new []Asset) AssetSystemDiff {
	oldAssets := make(map[AssetID]Asset, len(old))
	for _, asset := range old {
		oldAssets[asset.ID] = asset
	}

	newAssets := make(map[AssetID]Asset, len(new))
	for _, asset := range new {
		newAssets[asset.ID] = asset
	}

	var additions []Asset
	var updates []Asset
	var deletions []AssetID

	for id, newAsset := range newAssets {
		oldAsset, exists := oldAssets[id]
		if !exists {
			additions = append(additions, newAsset)
			continue
		}
		if oldAsset != newAsset {
			updates = append(updates, newAsset)
		}
	}

	for id := range oldAssets {
		if _, exists := newAssets[id]; !exists {
			deletions = append(deletions, id)
		}
	}

	return AssetSystemDiff{
		Additions: additions,
		Updates:   updates,
		Deletions: deletions,
	}
}
