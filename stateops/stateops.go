package stateops

import (
	"fmt"
	"sort"

	"github.com/defistate/defistate-router-go/differ"
	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/patcher"
	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	"github.com/defistate/defistate-router-go/protocols/clmm"
	"github.com/defistate/defistate-router-go/protocols/constantproduct"
	"github.com/defistate/defistate-router-go/protocols/stableswap"
	"github.com/prometheus/client_golang/prometheus"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StateOps pairs the differ and the patcher for every schema the router
// understands.
//
// The differ computes the delta between two snapshots; the patcher applies
// a delta to the older snapshot to reconstruct the newer one.
type StateOps struct {
	*differ.StateDiffer
	*patcher.StatePatcher

	logger Logger
}

func NewStateOps(
	logger Logger,
	prometheusRegistry prometheus.Registerer,
) (*StateOps, error) {
	stateDiffer, err := differ.NewStateDiffer(&differ.StateDifferConfig{
		ProtocolDiffers: differ.DefaultProtocolDiffers(),
		Logger:          logger,
		Registry:        prometheusRegistry,
	})
	if err != nil {
		return nil, err
	}

	statePatcher, err := patcher.NewStatePatcher(&patcher.StatePatcherConfig{
		Patchers: patcher.DefaultPatchers(),
	})
	if err != nil {
		return nil, err
	}

	return &StateOps{
		StateDiffer:  stateDiffer,
		StatePatcher: statePatcher,
		logger:       logger,
	}, nil
}

// Advance moves from prev to next the way a streaming consumer would: it
// diffs the two snapshots and patches prev with the result. The patched
// state, not next itself, is returned so the diff is always exercised.
func (ops *StateOps) Advance(prev, next *engine.State) (*differ.StateDiff, *engine.State, error) {
	diff, err := ops.Diff(prev, next)
	if err != nil {
		return nil, nil, fmt.Errorf("diff %d -> %d: %w", prev.Checkpoint.Sequence, next.Checkpoint.Sequence, err)
	}
	patched, err := ops.Patch(prev, diff)
	if err != nil {
		return nil, nil, fmt.Errorf("patch %d -> %d: %w", prev.Checkpoint.Sequence, next.Checkpoint.Sequence, err)
	}

	ops.logger.Debug("state advanced",
		"from", diff.FromCheckpoint,
		"to", diff.ToCheckpoint.Sequence,
		"protocols", len(diff.Protocols),
		"removed", len(diff.Removed),
	)
	return diff, patched, nil
}

// Change counts what one protocol's diff adds, updates and deletes.
type Change struct {
	Protocol engine.ProtocolID     `json:"protocol"`
	Schema   engine.ProtocolSchema `json:"schema"`
	Added    int                   `json:"added"`
	Updated  int                   `json:"updated"`
	Deleted  int                   `json:"deleted"`
	Removed  bool                  `json:"removed,omitempty"`
}

// Empty reports whether the change touches nothing.
func (c Change) Empty() bool {
	return c.Added == 0 && c.Updated == 0 && c.Deleted == 0 && !c.Removed
}

// Summarize counts the changes of every protocol in diff. Data of an
// unknown type counts as nothing.
func Summarize(diff *differ.StateDiff) []Change {
	changes := make([]Change, 0, len(diff.Protocols)+len(diff.Removed))
	for id, pd := range diff.Protocols {
		c := Change{Protocol: id, Schema: pd.Schema}
		switch d := pd.Data.(type) {
		case assetregistry.AssetSystemDiff:
			c.Added, c.Updated, c.Deleted = len(d.Additions), len(d.Updates), len(d.Deletions)
		case clmm.CLMMSystemDiff:
			c.Added, c.Updated, c.Deleted = len(d.Additions), len(d.Updates), len(d.Deletions)
		case stableswap.StableSwapSystemDiff:
			c.Added, c.Updated, c.Deleted = len(d.Additions), len(d.Updates), len(d.Deletions)
		case constantproduct.ConstantProductSystemDiff:
			c.Added, c.Updated, c.Deleted = len(d.Additions), len(d.Updates), len(d.Deletions)
		}
		changes = append(changes, c)
	}
	for _, id := range diff.Removed {
		changes = append(changes, Change{Protocol: id, Removed: true})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Protocol < changes[j].Protocol })
	return changes
}
