package stableswap

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	"github.com/ethereum/go-ethereum/common"
)

// FeeDenominator is the denominator of the protocol and LP fee rates (ppm).
const FeeDenominator = 1_000_000

var (
	ErrInvalidFee   = errors.New("fee rates must sum below 1,000,000 ppm")
	ErrInvalidScale = errors.New("asset scale must be positive")
	ErrMissingField = errors.New("required pool field is nil")
	ErrNegative     = errors.New("reserve is negative")
)

// Pool is a two-asset pool priced on the x^3*y + x*y^3 invariant. Reserves
// are raw on-chain amounts; Scale is 10^decimals of each asset.
type Pool struct {
	ID     common.Hash           `json:"id"`
	AssetX assetregistry.AssetID `json:"assetX"`
	AssetY assetregistry.AssetID `json:"assetY"`

	ReserveX *big.Int `json:"reserveX"`
	ReserveY *big.Int `json:"reserveY"`

	// fees in ppm of the input amount
	ProtocolFee uint64 `json:"protocolFee"`
	LPFee       uint64 `json:"lpFee"`

	ScaleX uint64 `json:"scaleX"`
	ScaleY uint64 `json:"scaleY"`

	Unlocked bool `json:"unlocked"`
}

// Validate checks that the pool can be priced.
func (p *Pool) Validate() error {
	if p.ReserveX == nil || p.ReserveY == nil {
		return fmt.Errorf("%w: pool %s", ErrMissingField, p.ID.Hex())
	}
	if p.ReserveX.Sign() < 0 || p.ReserveY.Sign() < 0 {
		return fmt.Errorf("%w: pool %s", ErrNegative, p.ID.Hex())
	}
	if p.ScaleX == 0 || p.ScaleY == 0 {
		return fmt.Errorf("%w: pool %s", ErrInvalidScale, p.ID.Hex())
	}
	if p.ProtocolFee+p.LPFee >= FeeDenominator {
		return fmt.Errorf("%w: pool %s fees %d+%d", ErrInvalidFee, p.ID.Hex(), p.ProtocolFee, p.LPFee)
	}
	return nil
}

// Clone returns a deep copy.
func (p *Pool) Clone() *Pool {
	c := *p
	if p.ReserveX != nil {
		c.ReserveX = new(big.Int).Set(p.ReserveX)
	}
	if p.ReserveY != nil {
		c.ReserveY = new(big.Int).Set(p.ReserveY)
	}
	return &c
}
