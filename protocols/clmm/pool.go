package clmm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/fullmath"
	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/liquiditymath"
	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/tickmath"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrDirectionalLiquidity = errors.New("pool liquidity does not match directional tick liquidity")
	ErrSqrtPriceOutOfRange  = errors.New("sqrt price outside global bounds")
	ErrTickMismatch         = errors.New("sqrt price inconsistent with current tick")
	ErrInvalidTickSpacing   = errors.New("tick spacing must be positive")
	ErrInvalidFeeRate       = errors.New("fee rate must be below 1,000,000 ppm")
	ErrInvalidProtocolFee   = errors.New("protocol fee rate exceeds its denominator")
	ErrInvalidTickRange     = errors.New("invalid tick range")
	ErrMissingField         = errors.New("required pool field is nil")
)

// FeeRateDenominator is the denominator of Pool.FeeRate (ppm).
const FeeRateDenominator = 1_000_000

// TickLookup selects how a pool finds its next initialized tick.
type TickLookup uint8

const (
	// TickLookupOrdered binary-searches the sorted list of initialized ticks.
	TickLookupOrdered TickLookup = iota
	// TickLookupBitmap walks 256-bit words of the tick bitmap.
	TickLookupBitmap
)

func (l TickLookup) String() string {
	switch l {
	case TickLookupOrdered:
		return "ordered"
	case TickLookupBitmap:
		return "bitmap"
	default:
		return fmt.Sprintf("TickLookup(%d)", uint8(l))
	}
}

// Dialect captures the conventions that differ between CLMM deployments.
// The swap engine is shared; only these knobs change.
type Dialect struct {
	Name       string
	TickLookup TickLookup
	// RecomputePartialInput recomputes a partial step's input from the price
	// actually reached instead of booking the whole net amount.
	RecomputePartialInput bool
	// ProtocolFeeDenominator is the denominator of Pool.ProtocolFeeRate.
	ProtocolFeeDenominator uint64
	// ProtocolFeeRoundUp rounds the protocol's cut of each step fee up.
	ProtocolFeeRoundUp bool
}

var (
	Cetus = Dialect{
		Name:                   "cetus",
		TickLookup:             TickLookupOrdered,
		RecomputePartialInput:  false,
		ProtocolFeeDenominator: 10_000,
		ProtocolFeeRoundUp:     true,
	}
	Turbos = Dialect{
		Name:                   "turbos",
		TickLookup:             TickLookupBitmap,
		RecomputePartialInput:  true,
		ProtocolFeeDenominator: 1_000_000,
		ProtocolFeeRoundUp:     false,
	}
	KriyaCLMM = Dialect{
		Name:                   "kriya-clmm",
		TickLookup:             TickLookupBitmap,
		RecomputePartialInput:  true,
		ProtocolFeeDenominator: 1_000_000,
		ProtocolFeeRoundUp:     false,
	}

	dialects = map[string]Dialect{
		Cetus.Name:     Cetus,
		Turbos.Name:    Turbos,
		KriyaCLMM.Name: KriyaCLMM,
	}
)

// DialectByName returns one of the preset dialects.
func DialectByName(name string) (Dialect, bool) {
	d, ok := dialects[name]
	return d, ok
}

// Pool is the full state of a concentrated-liquidity pool.
type Pool struct {
	ID      common.Hash           `json:"id"`
	AssetA  assetregistry.AssetID `json:"assetA"`
	AssetB  assetregistry.AssetID `json:"assetB"`
	Dialect Dialect               `json:"dialect"`

	SqrtPrice        *big.Int `json:"sqrtPrice"`
	TickCurrentIndex int32    `json:"tickCurrentIndex"`
	TickSpacing      int32    `json:"tickSpacing"`
	Liquidity        *big.Int `json:"liquidity"`

	// FeeRate is in ppm; ProtocolFeeRate is in units of the dialect's
	// protocol fee denominator.
	FeeRate         uint64 `json:"feeRate"`
	ProtocolFeeRate uint64 `json:"protocolFeeRate"`

	FeeGrowthGlobalA *big.Int `json:"feeGrowthGlobalA"`
	FeeGrowthGlobalB *big.Int `json:"feeGrowthGlobalB"`
	ProtocolFeeA     *big.Int `json:"protocolFeeA"`
	ProtocolFeeB     *big.Int `json:"protocolFeeB"`

	Unlocked bool     `json:"unlocked"`
	Ticks    *TickSet `json:"ticks"`
}

// NewPool returns an empty pool at the given price with zeroed accumulators.
func NewPool(id common.Hash, assetA, assetB assetregistry.AssetID, dialect Dialect, tickSpacing int32, feeRate uint64, sqrtPrice *big.Int) (*Pool, error) {
	if tickSpacing <= 0 {
		return nil, ErrInvalidTickSpacing
	}
	tick, err := tickmath.GetTickAtSqrtPrice(sqrtPrice)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", id.Hex(), err)
	}
	return &Pool{
		ID:               id,
		AssetA:           assetA,
		AssetB:           assetB,
		Dialect:          dialect,
		SqrtPrice:        new(big.Int).Set(sqrtPrice),
		TickCurrentIndex: tick,
		TickSpacing:      tickSpacing,
		Liquidity:        new(big.Int),
		FeeRate:          feeRate,
		FeeGrowthGlobalA: new(big.Int),
		FeeGrowthGlobalB: new(big.Int),
		ProtocolFeeA:     new(big.Int),
		ProtocolFeeB:     new(big.Int),
		Unlocked:         true,
		Ticks:            NewTickSet(tickSpacing, dialect.TickLookup),
	}, nil
}

// Validate checks every structural invariant of the pool: bounds, the
// price/tick relation and directional liquidity accounting.
func (p *Pool) Validate() error {
	if p.SqrtPrice == nil || p.Liquidity == nil || p.Ticks == nil ||
		p.FeeGrowthGlobalA == nil || p.FeeGrowthGlobalB == nil ||
		p.ProtocolFeeA == nil || p.ProtocolFeeB == nil {
		return fmt.Errorf("%w: pool %s", ErrMissingField, p.ID.Hex())
	}
	if p.TickSpacing <= 0 || p.Ticks.Spacing() != p.TickSpacing {
		return fmt.Errorf("%w: pool %s spacing %d", ErrInvalidTickSpacing, p.ID.Hex(), p.TickSpacing)
	}
	if p.FeeRate >= FeeRateDenominator {
		return fmt.Errorf("%w: pool %s fee %d", ErrInvalidFeeRate, p.ID.Hex(), p.FeeRate)
	}
	if p.Dialect.ProtocolFeeDenominator == 0 || p.ProtocolFeeRate > p.Dialect.ProtocolFeeDenominator {
		return fmt.Errorf("%w: pool %s protocol fee %d/%d", ErrInvalidProtocolFee, p.ID.Hex(), p.ProtocolFeeRate, p.Dialect.ProtocolFeeDenominator)
	}
	if err := fullmath.CheckU128(p.Liquidity); err != nil {
		return fmt.Errorf("pool %s liquidity: %w", p.ID.Hex(), err)
	}
	if p.SqrtPrice.Cmp(tickmath.MIN_SQRT_PRICE) < 0 || p.SqrtPrice.Cmp(tickmath.MAX_SQRT_PRICE) > 0 {
		return fmt.Errorf("%w: pool %s sqrt price %s", ErrSqrtPriceOutOfRange, p.ID.Hex(), p.SqrtPrice)
	}

	tick, err := tickmath.GetTickAtSqrtPrice(p.SqrtPrice)
	if err != nil {
		return fmt.Errorf("pool %s: %w", p.ID.Hex(), err)
	}
	if d := tick - p.TickCurrentIndex; d > 1 || d < -1 {
		return fmt.Errorf("%w: pool %s price implies tick %d, pool tick %d", ErrTickMismatch, p.ID.Hex(), tick, p.TickCurrentIndex)
	}

	return p.CheckDirectionalLiquidity()
}

// CheckDirectionalLiquidity verifies that the active liquidity equals the
// signed sum of liquidity_net over every tick at or below the current tick.
func (p *Pool) CheckDirectionalLiquidity() error {
	expected := p.Ticks.DirectionalLiquidity(p.TickCurrentIndex)
	if expected.Cmp(p.Liquidity) != 0 {
		return fmt.Errorf("%w: pool %s tick %d liquidity %s, ticks sum to %s",
			ErrDirectionalLiquidity, p.ID.Hex(), p.TickCurrentIndex, p.Liquidity, expected)
	}
	return nil
}

// ModifyLiquidity adds (or removes, for a negative delta) liquidity across
// [lower, upper). Both ticks are created lazily and cleared when their gross
// liquidity drops to zero. The pool is left unchanged on error.
func (p *Pool) ModifyLiquidity(lower, upper int32, delta *big.Int) error {
	if lower >= upper || lower < tickmath.MIN_TICK || upper > tickmath.MAX_TICK {
		return fmt.Errorf("%w: pool %s [%d, %d)", ErrInvalidTickRange, p.ID.Hex(), lower, upper)
	}
	if lower%p.TickSpacing != 0 || upper%p.TickSpacing != 0 {
		return fmt.Errorf("%w: pool %s [%d, %d) spacing %d", ErrInvalidTickRange, p.ID.Hex(), lower, upper, p.TickSpacing)
	}
	if delta.Sign() == 0 {
		return nil
	}

	active := lower <= p.TickCurrentIndex && p.TickCurrentIndex < upper
	newLiquidity := new(big.Int).Set(p.Liquidity)
	if active {
		if err := liquiditymath.AddDelta(newLiquidity, p.Liquidity, delta); err != nil {
			return fmt.Errorf("pool %s: %w", p.ID.Hex(), err)
		}
	}

	if _, err := p.Ticks.Update(lower, p.TickCurrentIndex, delta, false, p.FeeGrowthGlobalA, p.FeeGrowthGlobalB); err != nil {
		return fmt.Errorf("pool %s lower tick %d: %w", p.ID.Hex(), lower, err)
	}
	if _, err := p.Ticks.Update(upper, p.TickCurrentIndex, delta, true, p.FeeGrowthGlobalA, p.FeeGrowthGlobalB); err != nil {
		// undo the lower update so the pool stays consistent
		undo := new(big.Int).Neg(delta)
		if _, rerr := p.Ticks.Update(lower, p.TickCurrentIndex, undo, false, p.FeeGrowthGlobalA, p.FeeGrowthGlobalB); rerr != nil {
			return errors.Join(fmt.Errorf("pool %s upper tick %d: %w", p.ID.Hex(), upper, err), rerr)
		}
		return fmt.Errorf("pool %s upper tick %d: %w", p.ID.Hex(), upper, err)
	}

	p.Liquidity = newLiquidity
	return nil
}

// Clone returns a deep copy that shares no mutable state with p.
func (p *Pool) Clone() *Pool {
	c := *p
	c.SqrtPrice = cloneInt(p.SqrtPrice)
	c.Liquidity = cloneInt(p.Liquidity)
	c.FeeGrowthGlobalA = cloneInt(p.FeeGrowthGlobalA)
	c.FeeGrowthGlobalB = cloneInt(p.FeeGrowthGlobalB)
	c.ProtocolFeeA = cloneInt(p.ProtocolFeeA)
	c.ProtocolFeeB = cloneInt(p.ProtocolFeeB)
	if p.Ticks != nil {
		c.Ticks = p.Ticks.Clone()
	}
	return &c
}

func cloneInt(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}
