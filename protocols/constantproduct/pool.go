package constantproduct

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	"github.com/ethereum/go-ethereum/common"
)

// BasisPoints is 100% in basis points.
const BasisPoints = 10_000

var (
	ErrInvalidFee   = errors.New("fee must be below 10,000 bps")
	ErrMissingField = errors.New("required pool field is nil")
	ErrNegative     = errors.New("reserve is negative")
)

// Pool is an x*y=k pool.
type Pool struct {
	ID       common.Hash           `json:"id"`
	AssetA   assetregistry.AssetID `json:"assetA"`
	AssetB   assetregistry.AssetID `json:"assetB"`
	ReserveA *big.Int              `json:"reserveA"`
	ReserveB *big.Int              `json:"reserveB"`
	FeeBps   uint16                `json:"feeBps"` // i.e 30 for 0.3%
	Unlocked bool                  `json:"unlocked"`
}

func (p *Pool) Validate() error {
	if p.ReserveA == nil || p.ReserveB == nil {
		return fmt.Errorf("%w: pool %s", ErrMissingField, p.ID.Hex())
	}
	if p.ReserveA.Sign() < 0 || p.ReserveB.Sign() < 0 {
		return fmt.Errorf("%w: pool %s", ErrNegative, p.ID.Hex())
	}
	if p.FeeBps >= BasisPoints {
		return fmt.Errorf("%w: pool %s fee %d", ErrInvalidFee, p.ID.Hex(), p.FeeBps)
	}
	return nil
}

// Clone returns a deep copy.
func (p *Pool) Clone() *Pool {
	c := *p
	if p.ReserveA != nil {
		c.ReserveA = new(big.Int).Set(p.ReserveA)
	}
	if p.ReserveB != nil {
		c.ReserveB = new(big.Int).Set(p.ReserveB)
	}
	return &c
}
