package differ

import (
	"fmt"

	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	"github.com/defistate/defistate-router-go/protocols/clmm"
	"github.com/defistate/defistate-router-go/protocols/constantproduct"
	"github.com/defistate/defistate-router-go/protocols/stableswap"
)

// DefaultProtocolDiffers returns a differ for every schema the router knows.
func DefaultProtocolDiffers() map[engine.ProtocolSchema]ProtocolDiffer {
	return map[engine.ProtocolSchema]ProtocolDiffer{
		engine.SchemaAssets:          typed(assetregistry.Differ),
		engine.SchemaCLMM:            typed(clmm.Differ),
		engine.SchemaStable:          typed(stableswap.Differ),
		engine.SchemaConstantProduct: typed(constantproduct.Differ),
	}
}

// typed adapts a per-protocol differ to the untyped ProtocolDiffer. A nil
// old value stands for an empty state.
func typed[S any, D any](differ func(old, new S) D) ProtocolDiffer {
	return func(old, new any) (any, error) {
		var oldState, newState S
		if old != nil {
			v, ok := old.(S)
			if !ok {
				return nil, fmt.Errorf("%w: old is %T, want %T", ErrUnexpectedData, old, oldState)
			}
			oldState = v
		}
		if new != nil {
			v, ok := new.(S)
			if !ok {
				return nil, fmt.Errorf("%w: new is %T, want %T", ErrUnexpectedData, new, newState)
			}
			newState = v
		}
		return differ(oldState, newState), nil
	}
}
