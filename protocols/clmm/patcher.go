package clmm

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Patcher constructs a new CLMM state by applying a diff to a previous one.
// Every pool in the result is a deep copy, so neither input is aliased.
func Patcher(prevState []*Pool, diff CLMMSystemDiff) ([]*Pool, error) {
	next := make(map[common.Hash]*Pool, len(prevState))
	for _, pool := range prevState {
		next[pool.ID] = pool
	}

	for _, id := range diff.Deletions {
		delete(next, id)
	}
	for _, pool := range diff.Updates {
		next[pool.ID] = pool
	}
	for _, pool := range diff.Additions {
		next[pool.ID] = pool
	}

	finalState := make([]*Pool, 0, len(next))
	for _, pool := range next {
		finalState = append(finalState, pool.Clone())
	}
	sort.Slice(finalState, func(i, j int) bool {
		return bytes.Compare(finalState[i].ID[:], finalState[j].ID[:]) < 0
	})
	return finalState, nil
}
