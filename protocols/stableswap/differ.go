package stableswap

import (
	"github.com/ethereum/go-ethereum/common"
)

type StableSwapSystemDiff struct {
	Additions []*Pool       `json:"additions,omitempty"`
	Updates   []*Pool       `json:"updates,omitempty"`
	Deletions []common.Hash `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d StableSwapSystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

func poolChanged(old, new *Pool) bool {
	return old.ReserveX.Cmp(new.ReserveX) != 0 ||
		old.ReserveY.Cmp(new.ReserveY) != 0 ||
		old.ProtocolFee != new.ProtocolFee ||
		old.LPFee != new.LPFee ||
		old.ScaleX != new.ScaleX ||
		old.ScaleY != new.ScaleY ||
		old.Unlocked != new.Unlocked
}

// Differ calculates the difference between two states of stable pools.
func Differ(old, new []*Pool) StableSwapSystemDiff {
	oldPools := make(map[common.Hash]*Pool, len(old))
	for _, pool := range old {
		oldPools[pool.ID] = pool
	}
	newPools := make(map[common.Hash]*Pool, len(new))
	for _, pool := range new {
		newPools[pool.ID] = pool
	}

	var diff StableSwapSystemDiff
	for id, newPool := range newPools {
		oldPool, exists := oldPools[id]
		if !exists {
			diff.Additions = append(diff.Additions, newPool)
		} else if poolChanged(oldPool, newPool) {
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
