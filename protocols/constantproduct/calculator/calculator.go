package calculator

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	"github.com/defistate/defistate-router-go/protocols/constantproduct"
)

const spotPricePrecision = 256

var (
	// basisPointDivisor is a constant representing 100% in basis points (10000).
	basisPointDivisor = big.NewInt(constantproduct.BasisPoints)

	// ErrInvalidAmount is returned when an input/output amount is negative.
	ErrInvalidAmount = errors.New("amount must be non-nil and non-negative")
	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrAssetMismatch is returned when the input asset is not one of the pool's assets.
	ErrAssetMismatch = errors.New("asset mismatch")
	// ErrInvalidState is returned for internal calculation errors, like division by zero.
	ErrInvalidState = errors.New("invalid internal state")
	// ErrInsufficientLiquidity is returned when an amountOut is requested that is greater than or equal to the available reserve.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")
	ErrPoolLocked            = errors.New("pool is locked")
)

// Calculator holds reusable big.Int objects to avoid memory allocations during calculations.
// Instances are NOT safe for concurrent use by themselves; they are handed
// out by calculatorPool.
type Calculator struct {
	feeMultiplier   *big.Int
	amountInWithFee *big.Int
	numerator       *big.Int
	denominator     *big.Int
}

var calculatorPool = sync.Pool{
	New: func() any {
		return &Calculator{
			feeMultiplier:   new(big.Int),
			amountInWithFee: new(big.Int),
			numerator:       new(big.Int),
			denominator:     new(big.Int),
		}
	},
}

// GetAmountOut calculates the output amount for selling amountIn of assetIn.
// A pool with an empty reserve quotes zero.
func GetAmountOut(pool *constantproduct.Pool, amountIn *big.Int, assetIn assetregistry.AssetID) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountOut(pool, amountIn, assetIn)
}

// GetAmountIn calculates the input needed to receive amountOut of the asset
// opposite assetIn.
func GetAmountIn(pool *constantproduct.Pool, amountOut *big.Int, assetIn assetregistry.AssetID) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountIn(pool, amountOut, assetIn)
}

// SimulateSwap returns the output of a swap and the pool state after it. The
// input pool is not modified and the returned pool shares no memory with it.
func SimulateSwap(pool *constantproduct.Pool, amountIn *big.Int, assetIn assetregistry.AssetID) (*big.Int, *constantproduct.Pool, error) {
	if !pool.Unlocked {
		return nil, nil, fmt.Errorf("%w: pool %s", ErrPoolLocked, pool.ID.Hex())
	}
	amountOut, err := GetAmountOut(pool, amountIn, assetIn)
	if err != nil {
		return nil, nil, err
	}

	next := pool.Clone()
	if assetIn == pool.AssetA {
		next.ReserveA.Add(next.ReserveA, amountIn)
		next.ReserveB.Sub(next.ReserveB, amountOut)
	} else {
		next.ReserveB.Add(next.ReserveB, amountIn)
		next.ReserveA.Sub(next.ReserveA, amountOut)
	}
	return amountOut, next, nil
}

// ApplySwap commits a swap to pool and returns its output.
func ApplySwap(pool *constantproduct.Pool, amountIn *big.Int, assetIn assetregistry.AssetID) (*big.Int, error) {
	amountOut, next, err := SimulateSwap(pool, amountIn, assetIn)
	if err != nil {
		return nil, err
	}
	pool.ReserveA, pool.ReserveB = next.ReserveA, next.ReserveB
	return amountOut, nil
}

func (c *Calculator) getAmountOut(pool *constantproduct.Pool, amountIn *big.Int, assetIn assetregistry.AssetID) (*big.Int, error) {
	if amountIn == nil {
		return nil, ErrNilAmount
	}
	if amountIn.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	reserveIn, reserveOut, err := GetReserves(pool, assetIn)
	if err != nil {
		return nil, err
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return new(big.Int), nil
	}

	// amountOut = reserveOut * amountIn * (10000 - fee) / (reserveIn * 10000 + amountIn * (10000 - fee))
	c.feeMultiplier.SetInt64(int64(constantproduct.BasisPoints - int(pool.FeeBps)))
	c.amountInWithFee.Mul(amountIn, c.feeMultiplier)
	c.numerator.Mul(reserveOut, c.amountInWithFee)
	c.denominator.Mul(reserveIn, basisPointDivisor)
	c.denominator.Add(c.denominator, c.amountInWithFee)

	if c.denominator.Sign() == 0 {
		return nil, fmt.Errorf("%w: pool %s denominator is zero", ErrInvalidState, pool.ID.Hex())
	}
	return new(big.Int).Quo(c.numerator, c.denominator), nil
}

func (c *Calculator) getAmountIn(pool *constantproduct.Pool, amountOut *big.Int, assetIn assetregistry.AssetID) (*big.Int, error) {
	if amountOut == nil {
		return nil, ErrNilAmount
	}
	if amountOut.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	reserveIn, reserveOut, err := GetReserves(pool, assetIn)
	if err != nil {
		return nil, err
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 || amountOut.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("%w: pool %s requested %s of reserve %s", ErrInsufficientLiquidity, pool.ID.Hex(), amountOut, reserveOut)
	}

	// amountIn = reserveIn * amountOut * 10000 / ((reserveOut - amountOut) * (10000 - fee)) + 1
	c.numerator.Mul(reserveIn, amountOut)
	c.numerator.Mul(c.numerator, basisPointDivisor)
	c.feeMultiplier.SetInt64(int64(constantproduct.BasisPoints - int(pool.FeeBps)))
	c.denominator.Sub(reserveOut, amountOut)
	c.denominator.Mul(c.denominator, c.feeMultiplier)

	if c.denominator.Sign() == 0 {
		return nil, fmt.Errorf("%w: pool %s denominator is zero", ErrInvalidState, pool.ID.Hex())
	}
	amountIn := new(big.Int).Quo(c.numerator, c.denominator)
	return amountIn.Add(amountIn, big.NewInt(1)), nil
}

// GetReserves orders the pool's reserves for selling assetIn.
func GetReserves(pool *constantproduct.Pool, assetIn assetregistry.AssetID) (reserveIn, reserveOut *big.Int, err error) {
	switch assetIn {
	case pool.AssetA:
		return pool.ReserveA, pool.ReserveB, nil
	case pool.AssetB:
		return pool.ReserveB, pool.ReserveA, nil
	}
	return nil, nil, fmt.Errorf("%w: %s is not in pool %s", ErrAssetMismatch, assetIn, pool.ID.Hex())
}

// GetSpotPrice returns the marginal, pre-fee price of selling assetIn:
// reserveOut / reserveIn in raw units. An empty pool prices at zero.
func GetSpotPrice(pool *constantproduct.Pool, assetIn assetregistry.AssetID) (*big.Float, error) {
	reserveIn, reserveOut, err := GetReserves(pool, assetIn)
	if err != nil {
		return nil, err
	}
	if reserveIn.Sign() <= 0 {
		return new(big.Float), nil
	}
	price := new(big.Float).SetPrec(spotPricePrecision).SetInt(reserveOut)
	return price.Quo(price, new(big.Float).SetPrec(spotPricePrecision).SetInt(reserveIn)), nil
}

// OptimalAmountIn is the closed-form input that maximizes out(x) - x when
// selling into pool and receiving the same asset back at price numerator /
// denominator (raw units of assetIn per unit of the output asset). It is
// zero when no trade is profitable.
//
// With g = (10000 - fee) / 10000, the optimum of Rout*g*x/(Rin + g*x)*p - x
// is x* = (sqrt(Rin*Rout*g*p) - Rin) / g.
func OptimalAmountIn(pool *constantproduct.Pool, assetIn assetregistry.AssetID, numerator, denominator *big.Int) (*big.Int, error) {
	reserveIn, reserveOut, err := GetReserves(pool, assetIn)
	if err != nil {
		return nil, err
	}
	if denominator.Sign() <= 0 {
		return nil, fmt.Errorf("%w: price denominator %s", ErrInvalidState, denominator)
	}
	gNum := big.NewInt(int64(constantproduct.BasisPoints - int(pool.FeeBps)))

	// sqrt(Rin*Rout*gNum*num*10000 / den) / 10000 = sqrt(Rin*Rout*g*p)
	radicand := new(big.Int).Mul(reserveIn, reserveOut)
	radicand.Mul(radicand, gNum)
	radicand.Mul(radicand, numerator)
	radicand.Mul(radicand, basisPointDivisor)
	radicand.Quo(radicand, denominator)
	root := new(big.Int).Sqrt(radicand)

	// x* = (root/10000 - Rin) * 10000 / gNum = (root - Rin*10000) / gNum
	x := new(big.Int).Mul(reserveIn, basisPointDivisor)
	x.Sub(root, x)
	if x.Sign() <= 0 {
		return new(big.Int), nil
	}
	return x.Quo(x, gNum), nil
}
