package clmm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type CLMMSystemDiff struct {
	Additions []*Pool       `json:"additions,omitempty"`
	Updates   []*Pool       `json:"updates,omitempty"`
	Deletions []common.Hash `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d CLMMSystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

func intsDiffer(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a != b
	}
	return a.Cmp(b) != 0
}

func poolChanged(old, new *Pool) bool {
	// 1. core dynamic fields
	if old.TickCurrentIndex != new.TickCurrentIndex ||
		old.Unlocked != new.Unlocked ||
		old.FeeRate != new.FeeRate ||
		old.ProtocolFeeRate != new.ProtocolFeeRate ||
		old.Dialect != new.Dialect {
		return true
	}
	if intsDiffer(old.SqrtPrice, new.SqrtPrice) ||
		intsDiffer(old.Liquidity, new.Liquidity) ||
		intsDiffer(old.FeeGrowthGlobalA, new.FeeGrowthGlobalA) ||
		intsDiffer(old.FeeGrowthGlobalB, new.FeeGrowthGlobalB) ||
		intsDiffer(old.ProtocolFeeA, new.ProtocolFeeA) ||
		intsDiffer(old.ProtocolFeeB, new.ProtocolFeeB) {
		return true
	}

	// 2. initialized ticks, which Initialized() already returns in index order
	if (old.Ticks == nil) != (new.Ticks == nil) {
		return true
	}
	if old.Ticks == nil {
		return false
	}
	if old.Ticks.Len() != new.Ticks.Len() {
		return true
	}
	oldTicks, newTicks := old.Ticks.Initialized(), new.Ticks.Initialized()
	for i := range oldTicks {
		o, n := oldTicks[i], newTicks[i]
		if o.Index != n.Index ||
			intsDiffer(o.LiquidityNet, n.LiquidityNet) ||
			intsDiffer(o.LiquidityGross, n.LiquidityGross) ||
			intsDiffer(o.FeeGrowthOutsideA, n.FeeGrowthOutsideA) ||
			intsDiffer(o.FeeGrowthOutsideB, n.FeeGrowthOutsideB) {
			return true
		}
	}
	return false
}

// Differ calculates the difference between two states of CLMM pools, keyed by
// pool id.
func Differ(old, new []*Pool) CLMMSystemDiff {
	oldPools := make(map[common.Hash]*Pool, len(old))
	for _, pool := range old {
		oldPools[pool.ID] = pool
	}
	newPools := make(map[common.Hash]*Pool, len(new))
	for _, pool := range new {
		newPools[pool.ID] = pool
	}

	var additions []*Pool
	var updates []*Pool
	var deletions []common.Hash

	for id, newPool := range newPools {
		oldPool, exists := oldPools[id]
		if !exists {
			additions = append(additions, newPool)
		} else if poolChanged(oldPool, newPool) {
			updates = append(updates, newPool)
		}
	}

	for id := range oldPools {
		if _, exists := newPools[id]; !exists {
			deletions = append(deletions, id)
		}
	}

	return CLMMSystemDiff{
		Additions: additions,
		Updates:   updates,
		Deletions: deletions,
	}
}
