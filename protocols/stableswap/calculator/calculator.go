// Package calculator prices swaps on the stable invariant f(x, y) = x^3*y + x*y^3.
// The invariant is evaluated on 256-bit integers; any overflow is an error
// rather than a wrapped value.
package calculator

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	"github.com/defistate/defistate-router-go/protocols/stableswap"
	"github.com/holiman/uint256"
)

const (
	// maxIterations bounds the Newton solver.
	maxIterations = 255
)

var (
	ErrOverflow        = errors.New("stable invariant overflows 256 bits")
	ErrNotConverged    = errors.New("stable solver did not converge")
	ErrDivergence      = errors.New("stable solver step widened")
	ErrZeroDerivative  = errors.New("stable invariant derivative is zero")
	ErrZeroReserve     = errors.New("scaled reserve is zero")
	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrPoolLocked      = errors.New("pool is locked")
	ErrAssetMismatch   = errors.New("asset mismatch")
	ErrInsufficientOut = errors.New("output exceeds reserve")
	ErrInvariantBroken = errors.New("stable invariant decreased")

	// normalizedDecimals is the fixed precision reserves are scaled to.
	normalizedDecimals = uint256.NewInt(100_000_000)

	feeDenominator = big.NewInt(stableswap.FeeDenominator)
	three          = uint256.NewInt(3)
	one            = uint256.NewInt(1)
)

// mul returns x*y, or ErrOverflow.
func mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

func add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// F evaluates the invariant x^3*y + x*y^3.
func F(x, y *uint256.Int) (*uint256.Int, error) {
	x2, err := mul(x, x)
	if err != nil {
		return nil, err
	}
	x3, err := mul(x2, x)
	if err != nil {
		return nil, err
	}
	a, err := mul(x3, y)
	if err != nil {
		return nil, err
	}
	y2, err := mul(y, y)
	if err != nil {
		return nil, err
	}
	y3, err := mul(y2, y)
	if err != nil {
		return nil, err
	}
	b, err := mul(x, y3)
	if err != nil {
		return nil, err
	}
	return add(a, b)
}

// D evaluates the partial derivative of F in y: 3*x*y^2 + x^3.
func D(x, y *uint256.Int) (*uint256.Int, error) {
	y2, err := mul(y, y)
	if err != nil {
		return nil, err
	}
	xy2, err := mul(x, y2)
	if err != nil {
		return nil, err
	}
	a, err := mul(three, xy2)
	if err != nil {
		return nil, err
	}
	x2, err := mul(x, x)
	if err != nil {
		return nil, err
	}
	x3, err := mul(x2, x)
	if err != nil {
		return nil, err
	}
	return add(a, x3)
}

// GetY solves F(x, y) = k for y by Newton iteration starting from y0. It
// stops once a step moves y by at most one unit. A step wider than the
// previous one plus one means the iteration is not converging and is
// reported as ErrDivergence.
func GetY(x, k, y0 *uint256.Int) (*uint256.Int, error) {
	return newton(x, k, y0, D, maxIterations)
}

// newton is GetY's loop with the slope and the iteration budget as inputs.
func newton(x, k, y0 *uint256.Int, slope func(x, y *uint256.Int) (*uint256.Int, error), iterations int) (*uint256.Int, error) {
	y := new(uint256.Int).Set(y0)
	prev := new(uint256.Int)
	var prevStep *uint256.Int
	step := new(uint256.Int)

	for i := 0; i < iterations; i++ {
		prev.Set(y)

		f, err := F(x, y)
		if err != nil {
			return nil, err
		}
		d, err := slope(x, y)
		if err != nil {
			return nil, err
		}
		if d.IsZero() {
			return nil, ErrZeroDerivative
		}

		if f.Lt(k) {
			dy := new(uint256.Int).Sub(k, f)
			dy.Div(dy, d)
			dy, err = add(dy, one)
			if err != nil {
				return nil, err
			}
			if y, err = add(y, dy); err != nil {
				return nil, err
			}
		} else {
			dy := new(uint256.Int).Sub(f, k)
			dy.Div(dy, d)
			if dy.Gt(y) {
				dy.Set(y)
			}
			y = new(uint256.Int).Sub(y, dy)
		}

		if y.Gt(prev) {
			step.Sub(y, prev)
		} else {
			step.Sub(prev, y)
		}
		if step.CmpUint64(1) <= 0 {
			return y, nil
		}
		if prevStep != nil {
			limit, err := add(prevStep, one)
			if err != nil {
				return nil, err
			}
			if step.Gt(limit) {
				return nil, fmt.Errorf("%w: iteration %d step %s after %s", ErrDivergence, i, step.Dec(), prevStep.Dec())
			}
		} else {
			prevStep = new(uint256.Int)
		}
		prevStep.Set(step)
	}
	return nil, fmt.Errorf("%w: %d iterations", ErrNotConverged, iterations)
}

// SwapResult describes an exact-input stable swap.
type SwapResult struct {
	AmountIn    *big.Int
	AmountOut   *big.Int
	ProtocolFee *big.Int
	LPFee       *big.Int
	// reserves after the swap; the protocol fee leaves the pool while the
	// LP fee stays in it
	ReserveXAfter *big.Int
	ReserveYAfter *big.Int
}

// normalize scales a raw amount to 8 decimals.
func normalize(v *big.Int, scale uint64) (*uint256.Int, error) {
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrOverflow
	}
	u, err := mul(u, normalizedDecimals)
	if err != nil {
		return nil, err
	}
	return u.Div(u, uint256.NewInt(scale)), nil
}

func denormalize(v *uint256.Int, scale uint64) (*big.Int, error) {
	u, err := mul(v, uint256.NewInt(scale))
	if err != nil {
		return nil, err
	}
	return u.Div(u, normalizedDecimals).ToBig(), nil
}

// fees returns the protocol and LP cut of amountIn, each floored.
func fees(pool *stableswap.Pool, amountIn *big.Int) (protocol, lp *big.Int) {
	protocol = new(big.Int).Mul(amountIn, new(big.Int).SetUint64(pool.ProtocolFee))
	protocol.Quo(protocol, feeDenominator)
	lp = new(big.Int).Mul(amountIn, new(big.Int).SetUint64(pool.LPFee))
	lp.Quo(lp, feeDenominator)
	return protocol, lp
}

// SimulateSwap prices an exact-input swap without touching pool.
func SimulateSwap(pool *stableswap.Pool, amountIn *big.Int, xToY bool) (SwapResult, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return SwapResult{}, ErrInvalidAmount
	}
	if !pool.Unlocked {
		return SwapResult{}, fmt.Errorf("%w: pool %s", ErrPoolLocked, pool.ID.Hex())
	}

	reserveIn, reserveOut := pool.ReserveX, pool.ReserveY
	scaleIn, scaleOut := pool.ScaleX, pool.ScaleY
	if !xToY {
		reserveIn, reserveOut = reserveOut, reserveIn
		scaleIn, scaleOut = scaleOut, scaleIn
	}

	protocolFee, lpFee := fees(pool, amountIn)
	net := new(big.Int).Sub(amountIn, protocolFee)
	net.Sub(net, lpFee)

	out, err := amountOut(net, reserveIn, reserveOut, scaleIn, scaleOut)
	if err != nil {
		return SwapResult{}, fmt.Errorf("pool %s (xToY=%v): %w", pool.ID.Hex(), xToY, err)
	}
	if out.Cmp(reserveOut) >= 0 {
		return SwapResult{}, fmt.Errorf("%w: pool %s out %s reserve %s", ErrInsufficientOut, pool.ID.Hex(), out, reserveOut)
	}

	newIn := new(big.Int).Add(reserveIn, amountIn)
	newIn.Sub(newIn, protocolFee)
	newOut := new(big.Int).Sub(reserveOut, out)

	res := SwapResult{
		AmountIn:    new(big.Int).Set(amountIn),
		AmountOut:   out,
		ProtocolFee: protocolFee,
		LPFee:       lpFee,
	}
	if xToY {
		res.ReserveXAfter, res.ReserveYAfter = newIn, newOut
	} else {
		res.ReserveXAfter, res.ReserveYAfter = newOut, newIn
	}
	return res, nil
}

// amountOut solves the invariant for the output of a net input amount.
func amountOut(net, reserveIn, reserveOut *big.Int, scaleIn, scaleOut uint64) (*big.Int, error) {
	x, err := normalize(reserveIn, scaleIn)
	if err != nil {
		return nil, err
	}
	y, err := normalize(reserveOut, scaleOut)
	if err != nil {
		return nil, err
	}
	if x.IsZero() || y.IsZero() {
		return nil, ErrZeroReserve
	}
	dx, err := normalize(net, scaleIn)
	if err != nil {
		return nil, err
	}

	k, err := F(x, y)
	if err != nil {
		return nil, err
	}
	newX, err := add(x, dx)
	if err != nil {
		return nil, err
	}
	newY, err := GetY(newX, k, y)
	if err != nil {
		return nil, err
	}
	if !newY.Lt(y) {
		return new(big.Int), nil
	}
	return denormalize(new(uint256.Int).Sub(y, newY), scaleOut)
}

// GetAmountOut returns the output of selling amountIn into pool.
func GetAmountOut(pool *stableswap.Pool, amountIn *big.Int, xToY bool) (*big.Int, error) {
	res, err := SimulateSwap(pool, amountIn, xToY)
	if err != nil {
		return nil, err
	}
	return res.AmountOut, nil
}

// ApplySwap commits an exact-input swap to pool. The scaled invariant must
// not decrease; the pool is unchanged when an error is returned.
func ApplySwap(pool *stableswap.Pool, amountIn *big.Int, xToY bool) (SwapResult, error) {
	res, err := SimulateSwap(pool, amountIn, xToY)
	if err != nil {
		return SwapResult{}, err
	}

	before, err := Invariant(pool.ReserveX, pool.ReserveY, pool.ScaleX, pool.ScaleY)
	if err != nil {
		return SwapResult{}, err
	}
	after, err := Invariant(res.ReserveXAfter, res.ReserveYAfter, pool.ScaleX, pool.ScaleY)
	if err != nil {
		return SwapResult{}, err
	}
	if after.Lt(before) {
		return SwapResult{}, fmt.Errorf("%w: pool %s from %s to %s", ErrInvariantBroken, pool.ID.Hex(), before.Dec(), after.Dec())
	}

	pool.ReserveX = new(big.Int).Set(res.ReserveXAfter)
	pool.ReserveY = new(big.Int).Set(res.ReserveYAfter)
	return res, nil
}

// Invariant evaluates F on normalized reserves.
func Invariant(reserveX, reserveY *big.Int, scaleX, scaleY uint64) (*uint256.Int, error) {
	x, err := normalize(reserveX, scaleX)
	if err != nil {
		return nil, err
	}
	y, err := normalize(reserveY, scaleY)
	if err != nil {
		return nil, err
	}
	return F(x, y)
}

// XToY reports the swap direction for selling assetIn into pool.
func XToY(pool *stableswap.Pool, assetIn assetregistry.AssetID) (bool, error) {
	switch assetIn {
	case pool.AssetX:
		return true, nil
	case pool.AssetY:
		return false, nil
	}
	return false, fmt.Errorf("%w: %s is not in pool %s", ErrAssetMismatch, assetIn, pool.ID.Hex())
}

// GetSpotPrice returns the marginal, pre-fee price of the swap direction in
// raw units: Y received per X sold when xToY is true, and X per Y otherwise.
// On the curve dy/dx = (3x^2*y + y^3) / (x^3 + 3x*y^2).
func GetSpotPrice(pool *stableswap.Pool, xToY bool) *big.Float {
	const prec = 256
	x := new(big.Float).SetPrec(prec).SetInt(pool.ReserveX)
	x.Quo(x, new(big.Float).SetUint64(pool.ScaleX))
	y := new(big.Float).SetPrec(prec).SetInt(pool.ReserveY)
	y.Quo(y, new(big.Float).SetUint64(pool.ScaleY))
	if x.Sign() == 0 || y.Sign() == 0 {
		return new(big.Float)
	}

	x2 := new(big.Float).SetPrec(prec).Mul(x, x)
	y2 := new(big.Float).SetPrec(prec).Mul(y, y)

	num := new(big.Float).SetPrec(prec).Mul(big.NewFloat(3), x2)
	num.Mul(num, y)
	num.Add(num, new(big.Float).SetPrec(prec).Mul(y2, y))

	den := new(big.Float).SetPrec(prec).Mul(x2, x)
	t := new(big.Float).SetPrec(prec).Mul(big.NewFloat(3), x)
	den.Add(den, t.Mul(t, y2))

	// marginal price in whole units, then back to raw units
	price := new(big.Float).SetPrec(prec).Quo(num, den)
	price.Mul(price, new(big.Float).SetUint64(pool.ScaleY))
	price.Quo(price, new(big.Float).SetUint64(pool.ScaleX))
	if xToY {
		return price
	}
	return new(big.Float).SetPrec(prec).Quo(big.NewFloat(1), price)
}
