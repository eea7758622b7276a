// Package fixture decodes hand-written YAML market snapshots into an
// engine.State the router can refresh its graph from.
package fixture

import (
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/market"
	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	"github.com/defistate/defistate-router-go/protocols/clmm"
	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/tickmath"
	"github.com/defistate/defistate-router-go/protocols/constantproduct"
	"github.com/defistate/defistate-router-go/protocols/stableswap"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v3"
)

// AssetsProtocol is the protocol id the fixture's asset list is published under.
const AssetsProtocol engine.ProtocolID = "assets"

var (
	ErrInvalidFixture = errors.New("fixture: invalid")
	ErrInvalidInt     = errors.New("fixture: invalid integer")
)

// Int is a big integer written as a decimal string or a bare YAML integer.
type Int struct {
	*big.Int
}

func (i *Int) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: line %d is not a scalar", ErrInvalidInt, node.Line)
	}
	v, ok := new(big.Int).SetString(node.Value, 10)
	if !ok {
		return fmt.Errorf("%w: line %d: %q", ErrInvalidInt, node.Line, node.Value)
	}
	i.Int = v
	return nil
}

func (i Int) value() *big.Int {
	if i.Int == nil {
		return nil
	}
	return new(big.Int).Set(i.Int)
}

type Asset struct {
	ID       string `yaml:"id"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
}

// Position is liquidity added over [Lower, Upper) of a clmm market.
type Position struct {
	Lower     int32 `yaml:"lower"`
	Upper     int32 `yaml:"upper"`
	Liquidity Int   `yaml:"liquidity"`
}

// Market is one pool of any kind. Fields that do not apply to Kind are ignored.
type Market struct {
	Kind     string `yaml:"kind"`
	Protocol string `yaml:"protocol"` // defaults to Kind
	ID       string `yaml:"id"`
	AssetA   string `yaml:"asset_a"`
	AssetB   string `yaml:"asset_b"`
	Locked   bool   `yaml:"locked"`

	// constant_product and stable
	ReserveA Int `yaml:"reserve_a"`
	ReserveB Int `yaml:"reserve_b"`

	// constant_product
	FeeBps uint16 `yaml:"fee_bps"`

	// stable
	LPFee       uint64 `yaml:"lp_fee"`
	ProtocolFee uint64 `yaml:"protocol_fee"`
	ScaleA      uint64 `yaml:"scale_a"`
	ScaleB      uint64 `yaml:"scale_b"`

	// clmm; the price is taken from SqrtPrice, or from Tick when it is unset
	Dialect         string     `yaml:"dialect"`
	SqrtPrice       Int        `yaml:"sqrt_price"`
	Tick            *int32     `yaml:"tick"`
	TickSpacing     int32      `yaml:"tick_spacing"`
	FeeRate         uint64     `yaml:"fee_rate"`
	ProtocolFeeRate uint64     `yaml:"protocol_fee_rate"`
	Positions       []Position `yaml:"positions"`
}

// Fixture is the YAML document.
type Fixture struct {
	ChainID    string   `yaml:"chain_id"`
	Checkpoint uint64   `yaml:"checkpoint"`
	Digest     string   `yaml:"digest"`
	Timestamp  uint64   `yaml:"timestamp"`
	Assets     []Asset  `yaml:"assets"`
	Markets    []Market `yaml:"markets"`
}

// Load reads and decodes the fixture at path.
func Load(path string) (*engine.State, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fixture: read %s: %w", path, err)
	}
	state, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return state, nil
}

// Decode parses a YAML fixture into a state. Every market is validated.
func Decode(raw []byte) (*engine.State, error) {
	var f Fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("fixture: parse: %w", err)
	}
	return f.State()
}

// State builds the engine state the fixture describes. Markets are grouped
// into one protocol per Protocol (or Kind) with the matching schema.
func (f *Fixture) State() (*engine.State, error) {
	checkpoint := f.Checkpoint
	state := &engine.State{
		ChainID:   f.ChainID,
		Timestamp: f.Timestamp,
		Checkpoint: engine.CheckpointSummary{
			Sequence:  f.Checkpoint,
			Digest:    common.HexToHash(f.Digest),
			Timestamp: f.Timestamp,
		},
		Protocols: make(map[engine.ProtocolID]engine.ProtocolState),
	}

	assets := make([]assetregistry.Asset, 0, len(f.Assets))
	seen := make(map[assetregistry.AssetID]struct{}, len(f.Assets))
	for i, a := range f.Assets {
		id := assetregistry.AssetID(a.ID)
		if err := id.Validate(); err != nil {
			return nil, fmt.Errorf("%w: assets[%d]: %w", ErrInvalidFixture, i, err)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: assets[%d]: duplicate %s", ErrInvalidFixture, i, id)
		}
		seen[id] = struct{}{}
		assets = append(assets, assetregistry.Asset{ID: id, Symbol: a.Symbol, Decimals: a.Decimals})
	}
	state.Protocols[AssetsProtocol] = engine.ProtocolState{
		Meta:             engine.ProtocolMeta{Name: engine.ProtocolName(AssetsProtocol), Tags: []string{"registry"}},
		SyncedCheckpoint: &checkpoint,
		Schema:           engine.SchemaAssets,
		Data:             assets,
	}

	ids := make(map[common.Hash]int, len(f.Markets))
	for i := range f.Markets {
		entry := &f.Markets[i]
		m, err := entry.build()
		if err != nil {
			return nil, fmt.Errorf("%w: markets[%d]: %w", ErrInvalidFixture, i, err)
		}
		if prev, dup := ids[m.ID()]; dup {
			return nil, fmt.Errorf("%w: markets[%d]: id %s already used by markets[%d]", ErrInvalidFixture, i, m.ID().Hex(), prev)
		}
		ids[m.ID()] = i

		a, b := m.Assets()
		for _, asset := range []assetregistry.AssetID{a, b} {
			if _, ok := seen[asset]; !ok {
				return nil, fmt.Errorf("%w: markets[%d]: asset %s is not listed", ErrInvalidFixture, i, asset)
			}
		}

		protocol := engine.ProtocolID(entry.Protocol)
		if protocol == "" {
			protocol = engine.ProtocolID(m.Kind.String())
		}
		if err := add(state, protocol, m, &checkpoint); err != nil {
			return nil, fmt.Errorf("%w: markets[%d]: %w", ErrInvalidFixture, i, err)
		}
	}
	return state, nil
}

func schemaOf(kind market.Kind) engine.ProtocolSchema {
	switch kind {
	case market.KindCLMM:
		return engine.SchemaCLMM
	case market.KindStable:
		return engine.SchemaStable
	default:
		return engine.SchemaConstantProduct
	}
}

// add appends m to the protocol's pool list, creating the protocol on first use.
func add(state *engine.State, protocol engine.ProtocolID, m *market.Market, checkpoint *uint64) error {
	if protocol == AssetsProtocol {
		return fmt.Errorf("protocol id %q is reserved", protocol)
	}
	schema := schemaOf(m.Kind)
	pr, ok := state.Protocols[protocol]
	if !ok {
		pr = engine.ProtocolState{
			Meta:             engine.ProtocolMeta{Name: engine.ProtocolName(protocol), Tags: []string{"dex", m.Kind.String()}},
			SyncedCheckpoint: checkpoint,
			Schema:           schema,
		}
	} else if pr.Schema != schema {
		return fmt.Errorf("protocol %s mixes %s and %s markets", protocol, pr.Schema, schema)
	}

	switch m.Kind {
	case market.KindCLMM:
		pools, _ := pr.Data.([]*clmm.Pool)
		pr.Data = append(pools, m.CLMM)
	case market.KindStable:
		pools, _ := pr.Data.([]*stableswap.Pool)
		pr.Data = append(pools, m.Stable)
	case market.KindConstantProduct:
		pools, _ := pr.Data.([]*constantproduct.Pool)
		pr.Data = append(pools, m.ConstantProduct)
	}
	state.Protocols[protocol] = pr
	return nil
}

func parseID(s string) (common.Hash, error) {
	raw, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("id %q: %w", s, err)
	}
	if len(raw) == 0 || len(raw) > common.HashLength {
		return common.Hash{}, fmt.Errorf("id %q must be 1 to %d bytes", s, common.HashLength)
	}
	return common.BytesToHash(raw), nil
}

func (s *Market) build() (*market.Market, error) {
	kind, err := market.ParseKind(s.Kind)
	if err != nil {
		return nil, err
	}
	id, err := parseID(s.ID)
	if err != nil {
		return nil, err
	}
	assetA, assetB := assetregistry.AssetID(s.AssetA), assetregistry.AssetID(s.AssetB)

	var m *market.Market
	switch kind {
	case market.KindConstantProduct:
		m = market.NewConstantProduct(&constantproduct.Pool{
			ID:       id,
			AssetA:   assetA,
			AssetB:   assetB,
			ReserveA: s.ReserveA.value(),
			ReserveB: s.ReserveB.value(),
			FeeBps:   s.FeeBps,
			Unlocked: !s.Locked,
		})
	case market.KindStable:
		m = market.NewStable(&stableswap.Pool{
			ID:          id,
			AssetX:      assetA,
			AssetY:      assetB,
			ReserveX:    s.ReserveA.value(),
			ReserveY:    s.ReserveB.value(),
			ProtocolFee: s.ProtocolFee,
			LPFee:       s.LPFee,
			ScaleX:      s.ScaleA,
			ScaleY:      s.ScaleB,
			Unlocked:    !s.Locked,
		})
	case market.KindCLMM:
		pool, err := s.buildCLMM(id, assetA, assetB)
		if err != nil {
			return nil, err
		}
		m = market.NewCLMM(pool)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Market) buildCLMM(id common.Hash, assetA, assetB assetregistry.AssetID) (*clmm.Pool, error) {
	dialect, ok := clmm.DialectByName(s.Dialect)
	if !ok {
		return nil, fmt.Errorf("unknown clmm dialect %q", s.Dialect)
	}

	sqrtPrice := s.SqrtPrice.value()
	if sqrtPrice == nil {
		if s.Tick == nil {
			return nil, errors.New("clmm market needs sqrt_price or tick")
		}
		sqrtPrice = new(big.Int)
		if err := tickmath.GetSqrtPriceAtTick(sqrtPrice, *s.Tick); err != nil {
			return nil, fmt.Errorf("tick %d: %w", *s.Tick, err)
		}
	}

	pool, err := clmm.NewPool(id, assetA, assetB, dialect, s.TickSpacing, s.FeeRate, sqrtPrice)
	if err != nil {
		return nil, err
	}
	pool.ProtocolFeeRate = s.ProtocolFeeRate
	for j, pos := range s.Positions {
		if pos.Liquidity.Int == nil {
			return nil, fmt.Errorf("positions[%d]: liquidity is required", j)
		}
		if err := pool.ModifyLiquidity(pos.Lower, pos.Upper, pos.Liquidity.Int); err != nil {
			return nil, fmt.Errorf("positions[%d]: %w", j, err)
		}
	}
	pool.Unlocked = !s.Locked
	return pool, nil
}
