package graph

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/market"
	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	"github.com/defistate/defistate-router-go/protocols/marketregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

var ErrMarketNotFound = errors.New("graph: market not found")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type Config struct {
	// CompactionThreshold is the number of dangling edges tolerated before
	// the underlying registry is rebuilt. Zero selects the default.
	CompactionThreshold int
	Logger              Logger
	Registry            prometheus.Registerer
}

func (c *Config) validate() error {
	if c.CompactionThreshold < 0 {
		return errors.New("config: CompactionThreshold cannot be negative")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	return nil
}

// entry is a market together with the spot prices computed when it was
// inserted, one per selling side.
type entry struct {
	market *market.Market
	assetA assetregistry.AssetID
	priceA *big.Float
	priceB *big.Float
}

func newEntry(m *market.Market) *entry {
	a, b := m.Assets()
	e := &entry{market: m, assetA: a}
	// an unpriceable market still routes; the optimizer quotes it as zero
	e.priceA, _ = m.SpotPrice(a)
	e.priceB, _ = m.SpotPrice(b)
	return e
}

func (e *entry) spotPrice(origin assetregistry.AssetID) *big.Float {
	if origin == e.assetA {
		return e.priceA
	}
	return e.priceB
}

// systemIDs hands out process-unique System ids, starting at 1.
var systemIDs atomic.Uint64

// System owns the directed market graph. Writers are serialized; readers
// take the current *Graph with Snapshot and never block.
type System struct {
	id         uint64
	mu         sync.RWMutex
	registry   *marketregistry.Registry
	markets    map[common.Hash]*entry
	generation uint64

	current atomic.Pointer[Graph]

	logger  Logger
	metrics *Metrics
}

func NewSystem(cfg *Config) (*System, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &System{
		id:       systemIDs.Add(1),
		registry: marketregistry.New(cfg.CompactionThreshold),
		markets:  make(map[common.Hash]*entry),
		logger:   cfg.Logger,
		metrics:  NewMetrics(cfg.Registry),
	}
	s.publish()
	return s, nil
}

// publish builds a new snapshot from the registry and swaps it in.
// It MUST be called with s.mu held for writing.
func (s *System) publish() {
	s.generation++
	s.current.Store(newGraph(s.id, s.generation, s.registry.View(), s.markets))
	s.metrics.markets.Set(float64(len(s.markets)))
	s.metrics.generations.Inc()
}

// Snapshot returns the current immutable graph.
func (s *System) Snapshot() *Graph {
	return s.current.Load()
}

// validateMarkets checks a batch up front so a bad market never leaves the
// graph half updated.
func validateMarkets(markets []*market.Market) error {
	var errs []error
	for _, m := range markets {
		if m == nil {
			errs = append(errs, errors.New("nil market"))
			continue
		}
		if err := m.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("market %s: %w", m.ID().Hex(), err))
		}
	}
	return errors.Join(errs...)
}

// insert adds or replaces one market. A replacement trading different
// assets is unlinked from its old edges first.
func (s *System) insert(m *market.Market) {
	id := m.ID()
	a, b := m.Assets()
	if old, ok := s.markets[id]; ok {
		oldA, oldB := old.market.Assets()
		if oldA != a || oldB != b {
			s.registry.RemoveMarket(id)
		}
	}
	s.registry.Add([]assetregistry.AssetID{a, b}, id)
	s.markets[id] = newEntry(m)
}

// AddMarkets inserts or replaces markets in one atomic step. The graph
// takes ownership of the markets; callers must not write to them after.
func (s *System) AddMarkets(markets []*market.Market) error {
	if err := validateMarkets(markets); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(markets) == 0 {
		return nil
	}
	for _, m := range markets {
		s.insert(m)
	}
	s.publish()
	return nil
}

// RemoveMarkets drops markets by id. Unknown ids are ignored.
func (s *System) RemoveMarkets(ids []common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ids) == 0 {
		return
	}
	for _, id := range ids {
		if _, ok := s.markets[id]; !ok {
			continue
		}
		s.registry.RemoveMarket(id)
		delete(s.markets, id)
	}
	s.publish()
}

// RemoveAssets drops every market trading any of the given assets.
func (s *System) RemoveAssets(ids []assetregistry.AssetID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ids) == 0 {
		return
	}
	for _, id := range ids {
		for _, marketID := range s.registry.RemoveAsset(id) {
			delete(s.markets, marketID)
		}
	}
	s.publish()
}

// Refresh makes the graph mirror the markets of state. Markets missing from
// state are removed and every other market is replaced by a private copy.
func (s *System) Refresh(state *engine.State) error {
	markets, err := state.Markets()
	if err != nil {
		return err
	}
	if err := validateMarkets(markets); err != nil {
		return fmt.Errorf("checkpoint %d: %w", state.Checkpoint.Sequence, err)
	}

	owned := make([]*market.Market, len(markets))
	keep := make(map[common.Hash]struct{}, len(markets))
	for i, m := range markets {
		owned[i] = m.Clone()
		keep[m.ID()] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int
	for id := range s.markets {
		if _, ok := keep[id]; !ok {
			s.registry.RemoveMarket(id)
			delete(s.markets, id)
			removed++
		}
	}
	var added int
	for _, m := range owned {
		if _, ok := s.markets[m.ID()]; !ok {
			added++
		}
		s.insert(m)
	}
	s.publish()

	s.logger.Info("graph refreshed",
		"checkpoint", state.Checkpoint.Sequence,
		"generation", s.generation,
		"markets", len(s.markets),
		"added", added,
		"removed", removed,
	)
	return nil
}

// ApplySwap commits an exact-input swap to one market. The market is copied
// before the swap so snapshots already handed out keep the old state; the
// result is published as a new snapshot.
func (s *System) ApplySwap(id common.Hash, amountIn *big.Int, origin assetregistry.AssetID) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, id.Hex())
	}

	next := e.market.Clone()
	out, err := next.ApplySwap(amountIn, origin)
	if err != nil {
		return nil, fmt.Errorf("market %s: %w", id.Hex(), err)
	}
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("market %s after swap: %w", id.Hex(), err)
	}

	s.markets[id] = newEntry(next)
	s.publish()

	s.logger.Debug("swap applied",
		"market", id.Hex(),
		"origin", origin,
		"amountIn", amountIn,
		"amountOut", out,
	)
	return out, nil
}
