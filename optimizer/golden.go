package optimizer

import (
	"math/big"
)

var (
	// 75025/121393 is F(25)/F(26), a rational stand-in for 1/phi.
	goldenNumerator   = big.NewInt(75025)
	goldenDenominator = big.NewInt(121393)

	// MaxAmountIn bounds the search: amounts are u64 on chain.
	MaxAmountIn = new(big.Int).SetUint64(^uint64(0))

	one = big.NewInt(1)
)

// Objective is a function to be maximized over integers.
type Objective func(x *big.Int) (*big.Int, error)

// GoldenSection searches [lo, hi] for the argmax of a unimodal f. It keeps
// the maximum inside the bracket, stops once the bracket is at most one wide
// and returns its midpoint, rounded down. An error from f aborts the search.
func GoldenSection(lo, hi *big.Int, f Objective) (*big.Int, error) {
	a := new(big.Int).Set(lo)
	b := new(big.Int).Set(hi)
	span := new(big.Int)
	step := new(big.Int)

	for span.Sub(b, a).Cmp(one) > 0 {
		step.Mul(span, goldenNumerator)
		step.Quo(step, goldenDenominator)

		c := new(big.Int).Sub(b, step)
		d := new(big.Int).Add(a, step)
		// on short brackets the floor can invert or merge the probes
		merged := false
		switch c.Cmp(d) {
		case 1:
			c, d = d, c
		case 0:
			merged = true
			d = new(big.Int).Add(c, one)
		}

		fc, err := f(c)
		if err != nil {
			return nil, err
		}
		fd, err := f(d)
		if err != nil {
			return nil, err
		}

		if fc.Cmp(fd) > 0 {
			if merged {
				// d is c+1, so the peak is at or left of c
				b = c
			} else {
				b = d
			}
		} else {
			a = c
		}
	}

	mid := new(big.Int).Add(a, b)
	return mid.Rsh(mid, 1), nil
}
