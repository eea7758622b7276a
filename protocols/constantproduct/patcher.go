package constantproduct

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Patcher constructs a new constant-product state by applying a diff to a
// previous one. Every returned pool owns its reserves, and the result is
// sorted by id so that equal inputs produce equal outputs.
func Patcher(prevState []*Pool, diff ConstantProductSystemDiff) ([]*Pool, error) {
	next := make(map[common.Hash]*Pool, len(prevState))
	for _, pool := range prevState {
		next[pool.ID] = pool
	}

	for _, id := range diff.Deletions {
		delete(next, id)
	}
	for _, updated := range diff.Updates {
		next[updated.ID] = updated
	}
	for _, added := range diff.Additions {
		next[added.ID] = added
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
