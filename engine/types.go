// Package engine defines the snapshot the ingestion layer hands the router:
// every pool the router may price, grouped by protocol, at one checkpoint.
package engine

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/defistate/defistate-router-go/market"
	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	"github.com/defistate/defistate-router-go/protocols/clmm"
	"github.com/defistate/defistate-router-go/protocols/constantproduct"
	"github.com/defistate/defistate-router-go/protocols/stableswap"
	"github.com/ethereum/go-ethereum/common"
)

type ProtocolName string
type ProtocolID string

// ProtocolSchema defines the decode contract for a protocol's data.
type ProtocolSchema string

// Schemas understood by the router. Data of a ProtocolState with one of these
// schemas has the Go type noted beside it.
const (
	SchemaAssets          ProtocolSchema = "router/assets@v1"           // []assetregistry.Asset
	SchemaCLMM            ProtocolSchema = "router/clmm@v1"             // []*clmm.Pool
	SchemaStable          ProtocolSchema = "router/stable@v1"           // []*stableswap.Pool
	SchemaConstantProduct ProtocolSchema = "router/constant-product@v1" // []*constantproduct.Pool
)

var (
	ErrSchemaMismatch  = errors.New("protocol data does not match its schema")
	ErrUnknownSchema   = errors.New("unknown protocol schema")
	ErrProtocolFailure = errors.New("protocol reported an error")
)

type ProtocolMeta struct {
	Name ProtocolName `json:"name"`           // human label
	Tags []string     `json:"tags,omitempty"` // "dex", "clmm", etc.
}

type ProtocolState struct {
	Meta ProtocolMeta `json:"meta"`

	// SyncedCheckpoint is the checkpoint the protocol's data reflects.
	SyncedCheckpoint *uint64 `json:"syncedCheckpoint,omitempty"`

	// Schema is the decode contract for Data.
	Schema ProtocolSchema `json:"schema"`

	// Data is the protocol view, shaped by Schema.
	Data any `json:"data,omitempty"`

	// Error is populated if this protocol is out-of-sync or failed for this checkpoint.
	Error string `json:"error,omitempty"`
}

// CheckpointSummary identifies the chain position a State was taken at.
type CheckpointSummary struct {
	Sequence   uint64      `json:"sequence"`
	Digest     common.Hash `json:"digest"`
	Timestamp  uint64      `json:"timestamp"`
	ReceivedAt int64       `json:"receivedAt"` // unix nanoseconds when ingestion picked the checkpoint up
}

// State is a full snapshot of the markets known to the router.
type State struct {
	ChainID    string                       `json:"chainId"`
	Timestamp  uint64                       `json:"timestamp"`
	Checkpoint CheckpointSummary            `json:"checkpoint"`
	Protocols  map[ProtocolID]ProtocolState `json:"protocols"`
}

func (state *State) HasErrors() bool {
	for _, pr := range state.Protocols {
		if pr.Error != "" {
			return true
		}
	}
	return false
}

// Assets collects the asset metadata of every assets-schema protocol.
func (state *State) Assets() ([]assetregistry.Asset, error) {
	var assets []assetregistry.Asset
	for id, pr := range state.Protocols {
		if pr.Schema != SchemaAssets {
			continue
		}
		data, ok := pr.Data.([]assetregistry.Asset)
		if !ok && pr.Data != nil {
			return nil, fmt.Errorf("%w: protocol %s schema %s holds %T", ErrSchemaMismatch, id, pr.Schema, pr.Data)
		}
		assets = append(assets, data...)
	}
	return assets, nil
}

// Markets flattens every pool of the state into markets. Protocols that
// reported an error are rejected rather than skipped, so a partial state is
// never mistaken for a complete one. The result is sorted by market id.
func (state *State) Markets() ([]*market.Market, error) {
	var markets []*market.Market
	for id, pr := range state.Protocols {
		if pr.Error != "" {
			return nil, fmt.Errorf("%w: protocol %s: %s", ErrProtocolFailure, id, pr.Error)
		}
		mismatch := func() error {
			return fmt.Errorf("%w: protocol %s schema %s holds %T", ErrSchemaMismatch, id, pr.Schema, pr.Data)
		}

		switch pr.Schema {
		case SchemaAssets:
		case SchemaCLMM:
			pools, ok := pr.Data.([]*clmm.Pool)
			if !ok && pr.Data != nil {
				return nil, mismatch()
			}
			for _, p := range pools {
				markets = append(markets, market.NewCLMM(p))
			}
		case SchemaStable:
			pools, ok := pr.Data.([]*stableswap.Pool)
			if !ok && pr.Data != nil {
				return nil, mismatch()
			}
			for _, p := range pools {
				markets = append(markets, market.NewStable(p))
			}
		case SchemaConstantProduct:
			pools, ok := pr.Data.([]*constantproduct.Pool)
			if !ok && pr.Data != nil {
				return nil, mismatch()
			}
			for _, p := range pools {
				markets = append(markets, market.NewConstantProduct(p))
			}
		default:
			return nil, fmt.Errorf("%w: protocol %s schema %q", ErrUnknownSchema, id, pr.Schema)
		}
	}
	sort.Slice(markets, func(i, j int) bool {
		a, b := markets[i].ID(), markets[j].ID()
		return bytes.Compare(a[:], b[:]) < 0
	})
	return markets, nil
}
