// Package market is the closed set of pool kinds the router can price. A
// Market wraps exactly one pool and dispatches on Kind.
package market

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	"github.com/defistate/defistate-router-go/protocols/clmm"
	clmmcalc "github.com/defistate/defistate-router-go/protocols/clmm/calculator"
	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/fullmath"
	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/sqrtpricemath"
	"github.com/defistate/defistate-router-go/protocols/constantproduct"
	cpcalc "github.com/defistate/defistate-router-go/protocols/constantproduct/calculator"
	"github.com/defistate/defistate-router-go/protocols/stableswap"
	stablecalc "github.com/defistate/defistate-router-go/protocols/stableswap/calculator"
	"github.com/ethereum/go-ethereum/common"
)

type Kind uint8

const (
	KindCLMM Kind = iota + 1
	KindStable
	KindConstantProduct
)

func (k Kind) String() string {
	switch k {
	case KindCLMM:
		return "clmm"
	case KindStable:
		return "stable"
	case KindConstantProduct:
		return "constant_product"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "clmm":
		return KindCLMM, nil
	case "stable":
		return KindStable, nil
	case "constant_product":
		return KindConstantProduct, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

var (
	ErrUnknownKind   = errors.New("unknown market kind")
	ErrKindMismatch  = errors.New("market kind does not match its pool")
	ErrAssetMismatch = errors.New("asset is not traded by market")
	ErrSameAsset     = errors.New("market trades an asset against itself")

	// ErrPartialFill is returned by ApplySwap when a pool cannot absorb the
	// whole input.
	ErrPartialFill = errors.New("swap only partially filled")
)

// Market is a tagged union over the supported pools. Exactly the pointer
// selected by Kind is set.
type Market struct {
	Kind            Kind
	CLMM            *clmm.Pool
	Stable          *stableswap.Pool
	ConstantProduct *constantproduct.Pool
}

func NewCLMM(p *clmm.Pool) *Market { return &Market{Kind: KindCLMM, CLMM: p} }

func NewStable(p *stableswap.Pool) *Market { return &Market{Kind: KindStable, Stable: p} }

func NewConstantProduct(p *constantproduct.Pool) *Market {
	return &Market{Kind: KindConstantProduct, ConstantProduct: p}
}

// ID is the on-chain object id of the wrapped pool.
func (m *Market) ID() common.Hash {
	switch m.Kind {
	case KindCLMM:
		return m.CLMM.ID
	case KindStable:
		return m.Stable.ID
	case KindConstantProduct:
		return m.ConstantProduct.ID
	}
	return common.Hash{}
}

// Assets returns the two assets in pool order.
func (m *Market) Assets() (assetregistry.AssetID, assetregistry.AssetID) {
	switch m.Kind {
	case KindCLMM:
		return m.CLMM.AssetA, m.CLMM.AssetB
	case KindStable:
		return m.Stable.AssetX, m.Stable.AssetY
	case KindConstantProduct:
		return m.ConstantProduct.AssetA, m.ConstantProduct.AssetB
	}
	return "", ""
}

// Other returns the asset received when selling origin.
func (m *Market) Other(origin assetregistry.AssetID) (assetregistry.AssetID, error) {
	a, b := m.Assets()
	switch origin {
	case a:
		return b, nil
	case b:
		return a, nil
	}
	return "", fmt.Errorf("%w: %s in %s market %s", ErrAssetMismatch, origin, m.Kind, m.ID().Hex())
}

// forward reports whether selling origin runs the pool in its first
// direction (a to b, x to y).
func (m *Market) forward(origin assetregistry.AssetID) (bool, error) {
	a, b := m.Assets()
	switch origin {
	case a:
		return true, nil
	case b:
		return false, nil
	}
	return false, fmt.Errorf("%w: %s in %s market %s", ErrAssetMismatch, origin, m.Kind, m.ID().Hex())
}

// Validate checks the pool behind the market, including the CLMM
// directional-liquidity invariant.
func (m *Market) Validate() error {
	var err error
	switch m.Kind {
	case KindCLMM:
		if m.CLMM == nil {
			return fmt.Errorf("%w: %s", ErrKindMismatch, m.Kind)
		}
		err = m.CLMM.Validate()
	case KindStable:
		if m.Stable == nil {
			return fmt.Errorf("%w: %s", ErrKindMismatch, m.Kind)
		}
		err = m.Stable.Validate()
	case KindConstantProduct:
		if m.ConstantProduct == nil {
			return fmt.Errorf("%w: %s", ErrKindMismatch, m.Kind)
		}
		err = m.ConstantProduct.Validate()
	default:
		return fmt.Errorf("%w: %d", ErrUnknownKind, uint8(m.Kind))
	}
	if err != nil {
		return err
	}
	if a, b := m.Assets(); a == b {
		return fmt.Errorf("%w: %s", ErrSameAsset, a)
	}
	return nil
}

// Viable reports whether the market can be traded at all: it is unlocked
// and holds liquidity.
func (m *Market) Viable() bool {
	switch m.Kind {
	case KindCLMM:
		return m.CLMM.Unlocked && m.CLMM.Liquidity.Sign() > 0
	case KindStable:
		return m.Stable.Unlocked && m.Stable.ReserveX.Sign() > 0 && m.Stable.ReserveY.Sign() > 0
	case KindConstantProduct:
		return m.ConstantProduct.Unlocked && m.ConstantProduct.ReserveA.Sign() > 0 && m.ConstantProduct.ReserveB.Sign() > 0
	}
	return false
}

// nonViable reports errors that mean "this trade cannot be filled" rather
// than a defect in the pool's data.
func nonViable(err error) bool {
	return errors.Is(err, clmmcalc.ErrPoolLocked) ||
		errors.Is(err, stablecalc.ErrPoolLocked) ||
		errors.Is(err, cpcalc.ErrPoolLocked) ||
		errors.Is(err, stablecalc.ErrZeroReserve) ||
		errors.Is(err, stablecalc.ErrOverflow) ||
		errors.Is(err, stablecalc.ErrInsufficientOut) ||
		errors.Is(err, fullmath.ErrOverflow) ||
		errors.Is(err, sqrtpricemath.ErrMultiplicationOverflow)
}

// AmountOut simulates selling amountIn of origin. A market that cannot fill
// the whole amount (locked, empty, out of liquidity, or too small a pool for
// the amount to be representable) quotes zero rather than failing; only
// inconsistent pool data is returned as an error. The pool is never written.
func (m *Market) AmountOut(amountIn *big.Int, origin assetregistry.AssetID) (*big.Int, error) {
	forward, err := m.forward(origin)
	if err != nil {
		return nil, err
	}
	if amountIn.Sign() <= 0 || !m.Viable() {
		return new(big.Int), nil
	}

	var out *big.Int
	switch m.Kind {
	case KindCLMM:
		var res clmmcalc.SwapResult
		res, err = clmmcalc.SimulateSwap(m.CLMM, amountIn, forward)
		if err == nil {
			if res.Exhausted || res.AmountRemaining.Sign() > 0 {
				return new(big.Int), nil
			}
			out = res.AmountOut
		}
	case KindStable:
		out, err = stablecalc.GetAmountOut(m.Stable, amountIn, forward)
	case KindConstantProduct:
		out, err = cpcalc.GetAmountOut(m.ConstantProduct, amountIn, origin)
	}
	if err != nil {
		if nonViable(err) {
			return new(big.Int), nil
		}
		return nil, err
	}
	return out, nil
}

// SpotPrice is the marginal, pre-fee price of selling origin: raw units of
// the other asset per raw unit of origin.
func (m *Market) SpotPrice(origin assetregistry.AssetID) (*big.Float, error) {
	forward, err := m.forward(origin)
	if err != nil {
		return nil, err
	}
	switch m.Kind {
	case KindCLMM:
		return clmmcalc.GetSpotPrice(m.CLMM, forward), nil
	case KindStable:
		return stablecalc.GetSpotPrice(m.Stable, forward), nil
	case KindConstantProduct:
		return cpcalc.GetSpotPrice(m.ConstantProduct, origin)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(m.Kind))
}

// ApplySwap commits an exact-input swap of amountIn of origin to the wrapped
// pool and returns the output. Unlike AmountOut every failure is an error,
// including a CLMM swap that runs out of liquidity before filling.
func (m *Market) ApplySwap(amountIn *big.Int, origin assetregistry.AssetID) (*big.Int, error) {
	forward, err := m.forward(origin)
	if err != nil {
		return nil, err
	}
	switch m.Kind {
	case KindCLMM:
		// check the fill on a simulation first so a partial swap never commits
		sim, err := clmmcalc.SimulateSwap(m.CLMM, amountIn, forward)
		if err != nil {
			return nil, err
		}
		if sim.Exhausted || sim.AmountRemaining.Sign() > 0 {
			return nil, fmt.Errorf("%w: market %s filled %s of %s", ErrPartialFill, m.ID().Hex(), new(big.Int).Sub(amountIn, sim.AmountRemaining), amountIn)
		}
		res, err := clmmcalc.ApplySwap(m.CLMM, forward, true, amountIn, nil)
		if err != nil {
			return nil, err
		}
		return res.AmountOut, nil
	case KindStable:
		res, err := stablecalc.ApplySwap(m.Stable, amountIn, forward)
		if err != nil {
			return nil, err
		}
		return res.AmountOut, nil
	case KindConstantProduct:
		return cpcalc.ApplySwap(m.ConstantProduct, amountIn, origin)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(m.Kind))
}

// Clone deep-copies the market and its pool.
func (m *Market) Clone() *Market {
	c := &Market{Kind: m.Kind}
	switch m.Kind {
	case KindCLMM:
		c.CLMM = m.CLMM.Clone()
	case KindStable:
		c.Stable = m.Stable.Clone()
	case KindConstantProduct:
		c.ConstantProduct = m.ConstantProduct.Clone()
	}
	return c
}
