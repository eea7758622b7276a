package clmm

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/fullmath"
	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/liquiditymath"
	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/tickbitmap"
	"github.com/defistate/defistate-router-go/protocols/clmm/calculator/tickmath"
)

var (
	ErrTickNotFound       = errors.New("tick not found")
	ErrTickNotInitialized = errors.New("tick not initialized")
	ErrTickNotSpaced      = tickbitmap.ErrTickNotSpaced
)

// Tick is the per-tick state of a pool. LiquidityNet is the signed delta
// applied when the price crosses the tick upwards.
type Tick struct {
	Index             int32    `json:"index"`
	SqrtPrice         *big.Int `json:"sqrtPrice"`
	LiquidityNet      *big.Int `json:"liquidityNet"`
	LiquidityGross    *big.Int `json:"liquidityGross"`
	FeeGrowthOutsideA *big.Int `json:"feeGrowthOutsideA"`
	FeeGrowthOutsideB *big.Int `json:"feeGrowthOutsideB"`
	Initialized       bool     `json:"initialized"`
}

func newTick(index int32) (*Tick, error) {
	price := new(big.Int)
	if err := tickmath.GetSqrtPriceAtTick(price, index); err != nil {
		return nil, fmt.Errorf("tick %d: %w", index, err)
	}
	return &Tick{
		Index:             index,
		SqrtPrice:         price,
		LiquidityNet:      new(big.Int),
		LiquidityGross:    new(big.Int),
		FeeGrowthOutsideA: new(big.Int),
		FeeGrowthOutsideB: new(big.Int),
	}, nil
}

func (t *Tick) clone() *Tick {
	c := *t
	c.SqrtPrice = cloneInt(t.SqrtPrice)
	c.LiquidityNet = cloneInt(t.LiquidityNet)
	c.LiquidityGross = cloneInt(t.LiquidityGross)
	c.FeeGrowthOutsideA = cloneInt(t.FeeGrowthOutsideA)
	c.FeeGrowthOutsideB = cloneInt(t.FeeGrowthOutsideB)
	return &c
}

// clear zeroes every field except the index and price.
func (t *Tick) clear() {
	t.LiquidityNet.SetUint64(0)
	t.LiquidityGross.SetUint64(0)
	t.FeeGrowthOutsideA.SetUint64(0)
	t.FeeGrowthOutsideB.SetUint64(0)
	t.Initialized = false
}

// TickSet stores the ticks of one pool. Ticks are created on first use and
// never removed; a tick whose gross liquidity returns to zero is cleared in
// place. The sorted index of initialized ticks and the bitmap (bitmap
// dialects only) always mark exactly the initialized ticks.
type TickSet struct {
	spacing     int32
	lookup      TickLookup
	ticks       map[int32]*Tick
	initialized []int32
	bitmap      tickbitmap.Bitmap
}

// NewTickSet creates an empty tick set.
func NewTickSet(spacing int32, lookup TickLookup) *TickSet {
	ts := &TickSet{
		spacing: spacing,
		lookup:  lookup,
		ticks:   make(map[int32]*Tick),
	}
	if lookup == TickLookupBitmap {
		ts.bitmap = tickbitmap.Bitmap{}
	}
	return ts
}

func (ts *TickSet) Spacing() int32 { return ts.spacing }

func (ts *TickSet) Lookup() TickLookup { return ts.lookup }

// Len returns the number of initialized ticks.
func (ts *TickSet) Len() int { return len(ts.initialized) }

// Get returns the tick at index, initialized or not.
func (ts *TickSet) Get(index int32) (*Tick, bool) {
	t, ok := ts.ticks[index]
	return t, ok
}

// Initialized returns the initialized ticks in ascending index order.
// The ticks are live; callers must not modify them.
func (ts *TickSet) Initialized() []*Tick {
	out := make([]*Tick, len(ts.initialized))
	for i, idx := range ts.initialized {
		out[i] = ts.ticks[idx]
	}
	return out
}

// Insert loads a tick as hydrated from chain state. The price is derived
// from the index when missing, and Initialized follows LiquidityGross.
func (ts *TickSet) Insert(t Tick) error {
	if t.Index%ts.spacing != 0 {
		return fmt.Errorf("%w: tick %d, spacing %d", ErrTickNotSpaced, t.Index, ts.spacing)
	}
	tick, err := newTick(t.Index)
	if err != nil {
		return err
	}
	if t.SqrtPrice != nil && t.SqrtPrice.Cmp(tick.SqrtPrice) != 0 {
		return fmt.Errorf("tick %d: sqrt price %s does not match %s", t.Index, t.SqrtPrice, tick.SqrtPrice)
	}
	setIfNotNil(tick.LiquidityNet, t.LiquidityNet)
	setIfNotNil(tick.LiquidityGross, t.LiquidityGross)
	setIfNotNil(tick.FeeGrowthOutsideA, t.FeeGrowthOutsideA)
	setIfNotNil(tick.FeeGrowthOutsideB, t.FeeGrowthOutsideB)
	if err := fullmath.CheckU128(tick.LiquidityGross); err != nil {
		return fmt.Errorf("tick %d liquidity gross: %w", t.Index, err)
	}
	tick.Initialized = tick.LiquidityGross.Sign() > 0

	wasInitialized := false
	if old, ok := ts.ticks[t.Index]; ok {
		wasInitialized = old.Initialized
	}
	ts.ticks[t.Index] = tick
	if wasInitialized != tick.Initialized {
		return ts.Flip(t.Index)
	}
	return nil
}

func setIfNotNil(dest, src *big.Int) {
	if src != nil {
		dest.Set(src)
	}
}

// NextInitializedTick returns the nearest initialized tick at or below
// current when aToB is true, or strictly above current otherwise.
func (ts *TickSet) NextInitializedTick(current int32, aToB bool) (int32, bool) {
	if ts.lookup == TickLookupBitmap {
		return ts.bitmap.NextInitializedTick(current, ts.spacing, aToB, tickmath.MIN_TICK, tickmath.MAX_TICK)
	}

	// smallest position holding an index > current
	i := sort.Search(len(ts.initialized), func(i int) bool {
		return ts.initialized[i] > current
	})
	if aToB {
		if i == 0 {
			return 0, false
		}
		return ts.initialized[i-1], true
	}
	if i == len(ts.initialized) {
		return 0, false
	}
	return ts.initialized[i], true
}

// Cross moves the price across an initialized tick. It writes the new
// running liquidity into dest and flips the tick's fee growth outside
// against the current global accumulators.
func (ts *TickSet) Cross(dest *big.Int, index int32, aToB bool, feeGrowthGlobalA, feeGrowthGlobalB, liquidity *big.Int) error {
	t, ok := ts.ticks[index]
	if !ok {
		return fmt.Errorf("%w: %d", ErrTickNotFound, index)
	}
	if !t.Initialized {
		return fmt.Errorf("%w: %d", ErrTickNotInitialized, index)
	}
	if err := liquiditymath.CrossDelta(dest, liquidity, t.LiquidityNet, aToB); err != nil {
		return fmt.Errorf("cross tick %d (aToB=%v): %w", index, aToB, err)
	}
	fullmath.WrappingSubU128(t.FeeGrowthOutsideA, feeGrowthGlobalA, t.FeeGrowthOutsideA)
	fullmath.WrappingSubU128(t.FeeGrowthOutsideB, feeGrowthGlobalB, t.FeeGrowthOutsideB)
	return nil
}

// Flip toggles the initialized mark of index in the lookup structures.
func (ts *TickSet) Flip(index int32) error {
	if index%ts.spacing != 0 {
		return fmt.Errorf("%w: tick %d, spacing %d", ErrTickNotSpaced, index, ts.spacing)
	}
	if ts.bitmap != nil {
		if err := ts.bitmap.FlipTick(index, ts.spacing); err != nil {
			return err
		}
	}

	i := sort.Search(len(ts.initialized), func(i int) bool {
		return ts.initialized[i] >= index
	})
	if i < len(ts.initialized) && ts.initialized[i] == index {
		ts.initialized = append(ts.initialized[:i], ts.initialized[i+1:]...)
		return nil
	}
	ts.initialized = append(ts.initialized, 0)
	copy(ts.initialized[i+1:], ts.initialized[i:])
	ts.initialized[i] = index
	return nil
}

// Update applies a position's liquidity change to one of its boundary
// ticks. upper marks the tick as the range's upper bound, where net
// liquidity moves opposite to the delta. It reports whether the tick
// switched between initialized and cleared. The tick is unchanged on error.
func (ts *TickSet) Update(index, tickCurrent int32, liquidityDelta *big.Int, upper bool, feeGrowthGlobalA, feeGrowthGlobalB *big.Int) (flipped bool, err error) {
	if index%ts.spacing != 0 {
		return false, fmt.Errorf("%w: tick %d, spacing %d", ErrTickNotSpaced, index, ts.spacing)
	}

	t, ok := ts.ticks[index]
	if !ok {
		if t, err = newTick(index); err != nil {
			return false, err
		}
	}

	gross := new(big.Int)
	if err := liquiditymath.AddDelta(gross, t.LiquidityGross, liquidityDelta); err != nil {
		return false, err
	}
	net := new(big.Int)
	if upper {
		net.Sub(t.LiquidityNet, liquidityDelta)
	} else {
		net.Add(t.LiquidityNet, liquidityDelta)
	}
	if net.BitLen() > 127 {
		return false, fmt.Errorf("%w: net liquidity of tick %d", liquiditymath.ErrLiquidityOverflow, index)
	}

	ts.ticks[index] = t
	flipped = (gross.Sign() == 0) != (t.LiquidityGross.Sign() == 0)

	if gross.Sign() == 0 {
		t.clear()
		if flipped {
			return true, ts.Flip(index)
		}
		return false, nil
	}

	if t.LiquidityGross.Sign() == 0 && index <= tickCurrent {
		// by convention all growth before initialization happened below the tick
		t.FeeGrowthOutsideA.Set(feeGrowthGlobalA)
		t.FeeGrowthOutsideB.Set(feeGrowthGlobalB)
	}
	t.LiquidityGross.Set(gross)
	t.LiquidityNet.Set(net)
	t.Initialized = true

	if flipped {
		return true, ts.Flip(index)
	}
	return false, nil
}

// DirectionalLiquidity sums liquidity_net over every initialized tick at or
// below tickCurrent.
func (ts *TickSet) DirectionalLiquidity(tickCurrent int32) *big.Int {
	sum := new(big.Int)
	for _, idx := range ts.initialized {
		if idx > tickCurrent {
			break
		}
		sum.Add(sum, ts.ticks[idx].LiquidityNet)
	}
	return sum
}

// Clone returns a deep copy of the tick set.
func (ts *TickSet) Clone() *TickSet {
	c := &TickSet{
		spacing:     ts.spacing,
		lookup:      ts.lookup,
		ticks:       make(map[int32]*Tick, len(ts.ticks)),
		initialized: append([]int32(nil), ts.initialized...),
	}
	for idx, t := range ts.ticks {
		c.ticks[idx] = t.clone()
	}
	if ts.bitmap != nil {
		c.bitmap = ts.bitmap.Clone()
	}
	return c
}
