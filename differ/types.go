package differ

import (
	"errors"

	"github.com/defistate/defistate-router-go/engine"
)

var (
	ErrStateHasErrors = errors.New("differ: state carries protocol errors")
	ErrSchemaChanged  = errors.New("differ: protocol schema changed")
	ErrUnexpectedData = errors.New("differ: unexpected protocol data type")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type ProtocolDiff struct {
	Meta engine.ProtocolMeta `json:"meta"`

	// SyncedCheckpoint is the checkpoint the protocol's data reflects.
	SyncedCheckpoint *uint64 `json:"syncedCheckpoint,omitempty"`

	// Schema is the decode contract for Data.
	// Examples:
	// "router/clmm@v1"
	// "router/stable@v1"
	Schema engine.ProtocolSchema `json:"schema"`

	// Data is the protocol diff, shaped by Schema.
	Data any `json:"data,omitempty"`

	// Error is populated if this protocol is out-of-sync or failed for this checkpoint.
	Error string `json:"error,omitempty"`
}

// StateDiff summarizes the changes from FromCheckpoint to ToCheckpoint.
type StateDiff struct {
	Timestamp      uint64                             `json:"timestamp"`
	FromCheckpoint uint64                             `json:"fromCheckpoint"`
	ToCheckpoint   engine.CheckpointSummary           `json:"toCheckpoint"`
	Protocols      map[engine.ProtocolID]ProtocolDiff `json:"protocols"`
	Removed        []engine.ProtocolID                `json:"removed,omitempty"`
}
