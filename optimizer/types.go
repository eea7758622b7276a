package optimizer

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-router-go/graph"
	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrEdgeNotFound = errors.New("optimizer: no market between assets")
	ErrNoResult     = errors.New("optimizer: no expansion produced a result")
	ErrInvalidPath  = errors.New("optimizer: invalid path")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Leg is one hop of a path through a single market. Market is a handle
// into the graph snapshot the leg was expanded from.
type Leg struct {
	Origin      assetregistry.AssetID `json:"origin"`
	Destination assetregistry.AssetID `json:"destination"`
	Market      int                   `json:"-"`
	MarketID    common.Hash           `json:"market"`
}

// Path is a chain of legs where each destination is the next origin.
type Path []Leg

// Validate checks that the legs chain.
func (p Path) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	for i := 1; i < len(p); i++ {
		if p[i-1].Destination != p[i].Origin {
			return fmt.Errorf("%w: leg %d ends at %s but leg %d starts at %s", ErrInvalidPath, i-1, p[i-1].Destination, i, p[i].Origin)
		}
	}
	return nil
}

// AmountOut feeds amountIn through every leg in order. A leg that cannot
// fill collapses the whole path to zero; errors are defects in a market's
// data and carry the leg that raised them.
func (p Path) AmountOut(g *graph.Graph, amountIn *big.Int) (*big.Int, error) {
	amount := amountIn
	for i, leg := range p {
		if amount.Sign() <= 0 {
			return new(big.Int), nil
		}
		m := g.Market(leg.Market)
		if m == nil {
			return nil, fmt.Errorf("%w: leg %d market %s not in snapshot", ErrInvalidPath, i, leg.MarketID.Hex())
		}
		out, err := m.AmountOut(amount, leg.Origin)
		if err != nil {
			return nil, fmt.Errorf("leg %d (%s -> %s) market %s: %w", i, leg.Origin, leg.Destination, leg.MarketID.Hex(), err)
		}
		amount = out
	}
	return new(big.Int).Set(amount), nil
}

// OptimizedResult is the best trade size found for one path.
type OptimizedResult struct {
	Path      Path     `json:"path"`
	AmountIn  *big.Int `json:"amountIn"`
	AmountOut *big.Int `json:"amountOut"`
	// Profit is AmountOut - AmountIn and may be negative.
	Profit *big.Int `json:"profit"`
}

// Viable reports whether every market on the path can trade at all.
func (p Path) Viable(g *graph.Graph) bool {
	for _, leg := range p {
		m := g.Market(leg.Market)
		if m == nil || !m.Viable() {
			return false
		}
	}
	return true
}
