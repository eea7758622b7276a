package assetregistry

import "sort"

// Patcher builds a new asset set by applying a diff to a previous one. The
// result is sorted by id so repeated patches are deterministic.
func Patcher(prevState []Asset, diff AssetSystemDiff) ([]Asset, error) {
	// Asset holds no pointers, so a plain copy is safe.
	next := make(map[AssetID]Asset, len(prevState))
	for _, asset := range prevState {
		next[asset.ID] = asset
	}

	for _, id := range diff.Deletions {
		delete(next, id)
	}
	for _, asset := range diff.Updates {
		next[asset.ID] = asset
	}
	for _, asset := range diff.Additions {
		next[asset.ID] = asset
	}

	finalState := make([]Asset, 0, len(next))
	for _, asset := range next {
		finalState = append(finalState, asset)
	}
	sort.Slice(finalState, func(i, j int) bool {
		return finalState[i].ID.Less(finalState[j].ID)
	})
	return finalState, nil
}
