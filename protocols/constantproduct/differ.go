package constantproduct

import "github.com/ethereum/go-ethereum/common"

// --- Diff Structures with Helper Methods ---

type ConstantProductSystemDiff struct {
	Additions []*Pool       `json:"additions,omitempty"`
	Updates   []*Pool       `json:"updates,omitempty"`
	Deletions []common.Hash `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d ConstantProductSystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two states of constant-product
// pools. Both lists are keyed by pool id; a pool present in both is an update
// only when one of its mutable fields moved.
func Differ(old, new []*Pool) ConstantProductSystemDiff {
	oldPools := make(map[common.Hash]*Pool, len(old))
	for _, pool := range old {
		oldPools[pool.ID] = pool
	}
	newPools := make(map[common.Hash]*Pool, len(new))
	for _, pool := range new {
		newPools[pool.ID] = pool
	}

	var diff ConstantProductSystemDiff
	for id, newPool := range newPools {
		oldPool, exists := oldPools[id]
		if !exists {
			diff.Additions = append(diff.Additions, newPool)
			continue
		}
		if oldPool.ReserveA.Cmp(newPool.ReserveA) != 0 ||
			oldPool.ReserveB.Cmp(newPool.ReserveB) != 0 ||
			oldPool.FeeBps != newPool.FeeBps ||
			oldPool.Unlocked != newPool.Unlocked {
			diff.Updates = append(diff.Updates, newPool)
		}
	}
	for id := range oldPools {
		if _, exists := newPools[id]; !exists {
			diff.Deletions = append(diff.Deletions, id)
		}
	}
	return diff
}
