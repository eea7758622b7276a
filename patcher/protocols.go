package patcher

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	"github.com/defistate/defistate-router-go/protocols/clmm"
	"github.com/defistate/defistate-router-go/protocols/constantproduct"
	"github.com/defistate/defistate-router-go/protocols/stableswap"
)

var ErrUnexpectedData = errors.New("patcher: unexpected protocol data type")

// DefaultPatchers returns a patcher for every schema the router knows.
func DefaultPatchers() map[engine.ProtocolSchema]PatcherFunc {
	return map[engine.ProtocolSchema]PatcherFunc{
		engine.SchemaAssets:          typed(assetregistry.Patcher),
		engine.SchemaCLMM:            typed(clmm.Patcher),
		engine.SchemaStable:          typed(stableswap.Patcher),
		engine.SchemaConstantProduct: typed(constantproduct.Patcher),
	}
}

func typed[S any, D any](patch func(prev S, diff D) (S, error)) PatcherFunc {
	return func(prevState, diffData any) (any, error) {
		var prev S
		if prevState != nil {
			v, ok := prevState.(S)
			if !ok {
				return nil, fmt.Errorf("%w: state is %T, want %T", ErrUnexpectedData, prevState, prev)
			}
			prev = v
		}
		diff, ok := diffData.(D)
		if !ok {
			var want D
			return nil, fmt.Errorf("%w: diff is %T, want %T", ErrUnexpectedData, diffData, want)
		}
		return patch(prev, diff)
	}
}
