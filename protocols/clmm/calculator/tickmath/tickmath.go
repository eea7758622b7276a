package tickmath

import (
	"errors"
	"math/big"
	"sync"

	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/bitmath"
	"github.com/holiman/uint256"
)

var (
	// MIN_TICK is the minimum tick that may be passed to GetSqrtPriceAtTick.
	MIN_TICK = int32(-443636)
	// MAX_TICK is the maximum tick that may be passed to GetSqrtPriceAtTick.
	MAX_TICK = int32(443636)

	// MIN_SQRT_PRICE is GetSqrtPriceAtTick(MIN_TICK) in Q64.64.
	MIN_SQRT_PRICE = big.NewInt(4295048016)
	// MAX_SQRT_PRICE is GetSqrtPriceAtTick(MAX_TICK) in Q64.64.
	MAX_SQRT_PRICE, _ = new(big.Int).SetString("79226673515401279992447579055", 10)

	ErrTickOutOfBounds      = errors.New("tick out of bounds")
	ErrSqrtPriceOutOfBounds = errors.New("sqrt price out of bounds")

	minSqrtPrice = uint256.MustFromBig(MIN_SQRT_PRICE)
	maxSqrtPrice = uint256.MustFromBig(MAX_SQRT_PRICE)

	// negativeRatios[i] is sqrt(1.0001^-(2^i)) in Q64.64.
	negativeRatios = [19]*uint256.Int{
		uint256.MustFromDecimal("18445821805675392311"),
		uint256.MustFromDecimal("18444899583751176498"),
		uint256.MustFromDecimal("18443055278223354162"),
		uint256.MustFromDecimal("18439367220385604838"),
		uint256.MustFromDecimal("18431993317065449817"),
		uint256.MustFromDecimal("18417254355718160513"),
		uint256.MustFromDecimal("18387811781193591352"),
		uint256.MustFromDecimal("18329067761203520168"),
		uint256.MustFromDecimal("18212142134806087854"),
		uint256.MustFromDecimal("17980523815641551639"),
		uint256.MustFromDecimal("17526086738831147013"),
		uint256.MustFromDecimal("16651378430235024244"),
		uint256.MustFromDecimal("15030750278693429944"),
		uint256.MustFromDecimal("12247334978882834399"),
		uint256.MustFromDecimal("8131365268884726200"),
		uint256.MustFromDecimal("3584323654723342297"),
		uint256.MustFromDecimal("696457651847595233"),
		uint256.MustFromDecimal("26294789957452057"),
		uint256.MustFromDecimal("37481735321082"),
	}

	// positiveRatios[i] is sqrt(1.0001^(2^i)) in Q64.96; the extra 32 bits
	// are dropped after the ladder.
	positiveRatios = [19]*uint256.Int{
		uint256.MustFromDecimal("79232123823359799118286999567"),
		uint256.MustFromDecimal("79236085330515764027303304731"),
		uint256.MustFromDecimal("79244008939048815603706035061"),
		uint256.MustFromDecimal("79259858533276714757314932305"),
		uint256.MustFromDecimal("79291567232598584799939703904"),
		uint256.MustFromDecimal("79355022692464371645785046466"),
		uint256.MustFromDecimal("79482085999252804386437311141"),
		uint256.MustFromDecimal("79736823300114093921829183326"),
		uint256.MustFromDecimal("80248749790819932309965073892"),
		uint256.MustFromDecimal("81282483887344747381513967011"),
		uint256.MustFromDecimal("83390072131320151908154831281"),
		uint256.MustFromDecimal("87770609709833776024991924138"),
		uint256.MustFromDecimal("97234110755111693312479820773"),
		uint256.MustFromDecimal("119332217159966728226237229890"),
		uint256.MustFromDecimal("179736315981702064433883588727"),
		uint256.MustFromDecimal("407748233172238350107850275304"),
		uint256.MustFromDecimal("2098478828474011932436660412517"),
		uint256.MustFromDecimal("55581415166113811149459800483533"),
		uint256.MustFromDecimal("38992368544603139932233054999993551"),
	}

	q64 = new(uint256.Int).Lsh(uint256.NewInt(1), 64)
	q96 = new(uint256.Int).Lsh(uint256.NewInt(1), 96)

	// log_sqrt(1.0001)(2) in Q32.64 and the error bounds of the log2 estimate.
	logSqrt10001      = big.NewInt(59543866431366)
	tickLowOffset     = big.NewInt(184467440737095516)
	tickHighOffset, _ = new(big.Int).SetString("15793534762490258745", 10)
)

// tickMath holds reusable objects to avoid memory allocations.
type tickMath struct {
	ratio *uint256.Int
	r     *uint256.Int
	f     *uint256.Int
	price *uint256.Int
	ls    *big.Int
	low   *big.Int
	high  *big.Int
}

// pool manages a pool of tickMath objects for safe concurrent use.
var pool = sync.Pool{
	New: func() any {
		return &tickMath{
			ratio: new(uint256.Int),
			r:     new(uint256.Int),
			f:     new(uint256.Int),
			price: new(uint256.Int),
			ls:    new(big.Int),
			low:   new(big.Int),
			high:  new(big.Int),
		}
	},
}

// GetSqrtPriceAtTick calculates sqrt(1.0001^tick) * 2^64.
func GetSqrtPriceAtTick(dest *big.Int, tick int32) error {
	if tick < MIN_TICK || tick > MAX_TICK {
		return ErrTickOutOfBounds
	}

	tm := pool.Get().(*tickMath)
	defer pool.Put(tm)

	tm.sqrtPriceAtTick(tick)
	tm.ratio.IntoBig(&dest)
	return nil
}

// sqrtPriceAtTick leaves the Q64.64 price for an in-range tick in tm.ratio.
func (tm *tickMath) sqrtPriceAtTick(tick int32) {
	absTick := uint32(tick)
	if tick < 0 {
		absTick = uint32(-tick)
	}

	if tick < 0 {
		if absTick&0x1 != 0 {
			tm.ratio.Set(negativeRatios[0])
		} else {
			tm.ratio.Set(q64)
		}
		for i := 1; i < len(negativeRatios); i++ {
			if absTick&(1<<i) != 0 {
				tm.ratio.Mul(tm.ratio, negativeRatios[i]).Rsh(tm.ratio, 64)
			}
		}
		return
	}

	if absTick&0x1 != 0 {
		tm.ratio.Set(positiveRatios[0])
	} else {
		tm.ratio.Set(q96)
	}
	for i := 1; i < len(positiveRatios); i++ {
		if absTick&(1<<i) != 0 {
			tm.ratio.Mul(tm.ratio, positiveRatios[i]).Rsh(tm.ratio, 96)
		}
	}
	tm.ratio.Rsh(tm.ratio, 32)
}

// GetTickAtSqrtPrice returns the greatest tick whose price is <= sqrtPrice.
// It estimates log2 with 14 rounds of squaring and then resolves the two
// candidate ticks the estimate's error bounds allow.
func GetTickAtSqrtPrice(sqrtPrice *big.Int) (int32, error) {
	if sqrtPrice.Sign() < 0 || sqrtPrice.BitLen() > 128 {
		return 0, ErrSqrtPriceOutOfBounds
	}

	tm := pool.Get().(*tickMath)
	defer pool.Put(tm)

	tm.price.SetFromBig(sqrtPrice)
	if tm.price.Lt(minSqrtPrice) || tm.price.Gt(maxSqrtPrice) {
		return 0, ErrSqrtPriceOutOfBounds
	}

	msb, err := bitmath.MostSignificantBit(tm.price)
	if err != nil {
		return 0, err
	}

	// integer part of log2 in Q32.32
	log2X32 := (int64(msb) - 64) << 32

	// normalise to [2^63, 2^64)
	if msb >= 64 {
		tm.r.Rsh(tm.price, uint(msb-63))
	} else {
		tm.r.Lsh(tm.price, uint(63-msb))
	}

	for shift := 31; shift >= 18; shift-- {
		tm.r.Mul(tm.r, tm.r).Rsh(tm.r, 63)
		tm.f.Rsh(tm.r, 64)
		f := tm.f.Uint64()
		log2X32 |= int64(f) << shift
		tm.r.Rsh(tm.r, uint(f))
	}

	tm.ls.SetInt64(log2X32)
	tm.ls.Mul(tm.ls, logSqrt10001)

	// Rsh on a negative big.Int is an arithmetic shift.
	tm.low.Sub(tm.ls, tickLowOffset).Rsh(tm.low, 64)
	tm.high.Add(tm.ls, tickHighOffset).Rsh(tm.high, 64)

	tickLow := int32(tm.low.Int64())
	tickHigh := int32(tm.high.Int64())
	if tickLow == tickHigh {
		return tickLow, nil
	}

	if tickHigh > MAX_TICK {
		return tickLow, nil
	}
	tm.sqrtPriceAtTick(tickHigh)
	if tm.ratio.Cmp(tm.price) <= 0 {
		return tickHigh, nil
	}
	return tickLow, nil
}
