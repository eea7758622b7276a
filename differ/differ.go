package differ

import (
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-router-go/engine"
	"github.com/prometheus/client_golang/prometheus"
)

// --- Config and Main Struct ---
type ProtocolDiffer func(old, new any) (diff any, err error)

// StateDifferConfig holds all the individual differ functions and dependencies.
type StateDifferConfig struct {
	// One differ per schema (data contract), not per protocol identity.
	ProtocolDiffers map[engine.ProtocolSchema]ProtocolDiffer
	Registry        prometheus.Registerer
	Logger          Logger
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *StateDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	for schema, d := range c.ProtocolDiffers {
		if d == nil {
			return fmt.Errorf("config: differ for schema %q cannot be nil", schema)
		}
	}
	return nil
}

// StateDiffer computes StateDiffs between two snapshots.
type StateDiffer struct {
	metrics         *Metrics
	logger          Logger
	protocolDiffers map[engine.ProtocolSchema]ProtocolDiffer
}

// NewStateDiffer constructs a new differ from a configuration, returning an error if the config is invalid.
func NewStateDiffer(cfg *StateDifferConfig) (*StateDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	protocolDiffers := make(map[engine.ProtocolSchema]ProtocolDiffer, len(cfg.ProtocolDiffers))
	for schema, protocolDiffer := range cfg.ProtocolDiffers {
		protocolDiffers[schema] = protocolDiffer
	}

	return &StateDiffer{
		metrics:         NewMetrics(cfg.Registry),
		logger:          cfg.Logger,
		protocolDiffers: protocolDiffers,
	}, nil
}

// Diff compares two error-free snapshots. Protocols present in new but not
// in old are diffed against an empty state; protocols that disappeared are
// listed in Removed.
func (d *StateDiffer) Diff(old, new *engine.State) (*StateDiff, error) {
	totalTimer := prometheus.NewTimer(d.metrics.diffDuration)
	defer totalTimer.ObserveDuration()

	if old.HasErrors() || new.HasErrors() {
		d.metrics.diffErrors.Inc()
		return nil, ErrStateHasErrors
	}

	protocolDiffs := make(map[engine.ProtocolID]ProtocolDiff)
	for protocolID, newProtocolState := range new.Protocols {
		var oldData any
		if oldProtocolState, ok := old.Protocols[protocolID]; ok {
			if oldProtocolState.Schema != newProtocolState.Schema {
				d.metrics.diffErrors.Inc()
				return nil, fmt.Errorf("%w: protocol %s (old=%s, new=%s)", ErrSchemaChanged, protocolID, oldProtocolState.Schema, newProtocolState.Schema)
			}
			oldData = oldProtocolState.Data
		}

		differFunc, exists := d.protocolDiffers[newProtocolState.Schema]
		if !exists {
			d.metrics.diffErrors.Inc()
			return nil, fmt.Errorf("no differ registered for schema %q", newProtocolState.Schema)
		}
		diffData, err := differFunc(oldData, newProtocolState.Data)
		if err != nil {
			d.metrics.diffErrors.Inc()
			return nil, fmt.Errorf("protocol %s: %w", protocolID, err)
		}

		protocolDiffs[protocolID] = ProtocolDiff{
			Meta:             newProtocolState.Meta,
			SyncedCheckpoint: newProtocolState.SyncedCheckpoint,
			Schema:           newProtocolState.Schema,
			Data:             diffData,
		}
	}

	var removed []engine.ProtocolID
	for protocolID := range old.Protocols {
		if _, ok := new.Protocols[protocolID]; !ok {
			removed = append(removed, protocolID)
		}
	}

	d.logger.Debug("state diffed",
		"from", old.Checkpoint.Sequence,
		"to", new.Checkpoint.Sequence,
		"protocols", len(protocolDiffs),
		"removed", len(removed),
	)

	return &StateDiff{
		Timestamp:      uint64(time.Now().UnixNano()),
		FromCheckpoint: old.Checkpoint.Sequence,
		ToCheckpoint:   new.Checkpoint,
		Protocols:      protocolDiffs,
		Removed:        removed,
	}, nil
}
