package patcher

import (
	"fmt"
	"slices"

	"github.com/defistate/defistate-router-go/differ"
	"github.com/defistate/defistate-router-go/engine"
)

// PatcherFunc rebuilds one protocol's data from its previous data and a
// diff. prevState is nil for a protocol that first appears in the diff, and
// it must never be mutated: the previous engine.State may still be read by
// the graph that was built from it.
type PatcherFunc func(prevState any, diffData any) (newState any, err error)

type StatePatcherConfig struct {
	// Patchers is keyed by schema, e.g. engine.SchemaCLMM -> clmm.Patcher.
	Patchers map[engine.ProtocolSchema]PatcherFunc
}

func (c *StatePatcherConfig) validate() error {
	for schema, patcher := range c.Patchers {
		if patcher == nil {
			return fmt.Errorf("config: patcher for schema %q cannot be nil", schema)
		}
	}
	return nil
}

// StatePatcher applies a differ.StateDiff to the state it was taken from.
type StatePatcher struct {
	patchers map[engine.ProtocolSchema]PatcherFunc
}

func NewStatePatcher(cfg *StatePatcherConfig) (*StatePatcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	patchers := make(map[engine.ProtocolSchema]PatcherFunc, len(cfg.Patchers))
	for k, v := range cfg.Patchers {
		patchers[k] = v
	}
	return &StatePatcher{patchers: patchers}, nil
}

// Patch returns the state at diff.ToCheckpoint. Protocols the diff does not
// mention are shared by reference with oldState.
func (p *StatePatcher) Patch(oldState *engine.State, diff *differ.StateDiff) (*engine.State, error) {
	if oldState.Checkpoint.Sequence != diff.FromCheckpoint {
		return nil, fmt.Errorf("patcher: mismatch fromCheckpoint (state=%d, diff=%d)", oldState.Checkpoint.Sequence, diff.FromCheckpoint)
	}

	protocols := make(map[engine.ProtocolID]engine.ProtocolState, len(oldState.Protocols))
	for id, ps := range oldState.Protocols {
		protocols[id] = ps
	}
	for _, id := range diff.Removed {
		delete(protocols, id)
	}

	// sorted so that the first failing protocol is the same on every run
	ids := make([]engine.ProtocolID, 0, len(diff.Protocols))
	for id := range diff.Protocols {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		ps, err := p.patchProtocol(id, oldState.Protocols, diff.Protocols[id])
		if err != nil {
			return nil, err
		}
		protocols[id] = ps
	}

	return &engine.State{
		ChainID:    oldState.ChainID,
		Timestamp:  diff.Timestamp,
		Checkpoint: diff.ToCheckpoint,
		Protocols:  protocols,
	}, nil
}

func (p *StatePatcher) patchProtocol(id engine.ProtocolID, old map[engine.ProtocolID]engine.ProtocolState, pd differ.ProtocolDiff) (engine.ProtocolState, error) {
	patch, ok := p.patchers[pd.Schema]
	if !ok {
		return engine.ProtocolState{}, fmt.Errorf("patcher: no patcher registered for schema %q (protocol=%s)", pd.Schema, id)
	}

	var prev any
	if ps, exists := old[id]; exists {
		if ps.Schema != pd.Schema {
			return engine.ProtocolState{}, fmt.Errorf("patcher: schema mismatch for protocol %s (old=%s, diff=%s)", id, ps.Schema, pd.Schema)
		}
		prev = ps.Data
	}

	data, err := patch(prev, pd.Data)
	if err != nil {
		return engine.ProtocolState{}, fmt.Errorf("patcher: failed to patch protocol %s: %w", id, err)
	}
	// metadata always comes from the diff
	return engine.ProtocolState{
		Meta:             pd.Meta,
		SyncedCheckpoint: pd.SyncedCheckpoint,
		Schema:           pd.Schema,
		Data:             data,
		Error:            pd.Error,
	}, nil
}
