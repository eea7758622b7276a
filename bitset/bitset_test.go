package bitset

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitSet_SetAndIsSet(t *testing.T) {
	// Create a BitSet to hold 100 bits.
	numBits := uint64(100)
	bs := NewBitSet(numBits)

	// Set a few specific bits.
	bs.Set(0)
	bs.Set(63)
	bs.Set(64)
	bs.Set(99)

	// Check that these bits are set.
	if !bs.IsSet(0) {
		t.Error("expected bit 0 to be set")
	}
	if !bs.IsSet(63) {
		t.Error("expected bit 63 to be set")
	}
	if !bs.IsSet(64) {
		t.Error("expected bit 64 to be set")
	}
	if !bs.IsSet(99) {
		t.Error("expected bit 99 to be set")
	}

	// Check that a bit we didn't set is not set.
	if bs.IsSet(1) {
		t.Error("expected bit 1 to be not set")
	}
}

func TestBitSet_Unset(t *testing.T) {
	// Create a BitSet to hold 100 bits.
	numBits := uint64(100)
	bs := NewBitSet(numBits)

	// Set several bits.
	bs.Set(10)
	bs.Set(20)
	bs.Set(30)

	// Confirm they are set.
	if !bs.IsSet(10) || !bs.IsSet(20) || !bs.IsSet(30) {
		t.Error("expected bits 10, 20, and 30 to be set")
	}

	// Now unset bit 20.
	bs.Unset(20)

	// Verify that bit 20 is now cleared, while others remain set.
	if bs.IsSet(20) {
		t.Error("expected bit 20 to be unset")
	}
	if !bs.IsSet(10) || !bs.IsSet(30) {
		t.Error("expected bits 10 and 30 to remain set")
	}
}

func TestBitSet_SetFrom(t *testing.T) {
	// Case 1: Successful copy
	src := BitSet{0b1010, 0b1111}
	dst := BitSet{0, 0}

	dst.SetFrom(src)

	for i := range src {
		if dst[i] != src[i] {
			t.Errorf("BitSet.SetFrom failed: dst[%d]=%b, want %b", i, dst[i], src[i])
		}
	}

	// Case 2: Mismatched size should panic
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("BitSet.SetFrom did not panic on mismatched lengths")
		}
	}()

	shortDst := BitSet{0}
	shortDst.SetFrom(src) // should panic
}

func TestBitSet_Toggle(t *testing.T) {
	bs := NewBitSet(256)
	assert.True(t, bs.Toggle(200))
	assert.True(t, bs.IsSet(200))
	assert.False(t, bs.Toggle(200))
	assert.True(t, bs.IsEmpty())
}

func TestBitSet_NextAndPrevSet(t *testing.T) {
	bs := NewBitSet(256)
	bs.Set(3)
	bs.Set(64)
	bs.Set(255)

	tests := []struct {
		name      string
		from      uint64
		wantNext  uint64
		okNext    bool
		wantPrev  uint64
		okPrev    bool
	}{
		{"below first", 0, 3, true, 0, false},
		{"on first", 3, 3, true, 3, true},
		{"between", 10, 64, true, 3, true},
		{"word boundary", 63, 64, true, 3, true},
		{"on second", 64, 64, true, 64, true},
		{"after second", 65, 255, true, 64, true},
		{"last bit", 255, 255, true, 255, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, ok := bs.NextSet(tc.from)
			assert.Equal(t, tc.okNext, ok)
			if ok {
				assert.Equal(t, tc.wantNext, next)
			}
			prev, ok := bs.PrevSet(tc.from)
			assert.Equal(t, tc.okPrev, ok)
			if ok {
				assert.Equal(t, tc.wantPrev, prev)
			}
		})
	}

	t.Run("out of range", func(t *testing.T) {
		_, ok := bs.NextSet(256)
		assert.False(t, ok)
		prev, ok := bs.PrevSet(10_000)
		require.True(t, ok)
		assert.Equal(t, uint64(255), prev)
	})
}

// TestBitSet_ScanMatchesLinear compares the word-wise scans against a bit-by-bit walk.
func TestBitSet_ScanMatchesLinear(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		bs := NewBitSet(256)
		for j := 0; j < rng.Intn(6); j++ {
			bs.Set(uint64(rng.Intn(256)))
		}
		from := uint64(rng.Intn(256))

		wantNext, wantNextOK := uint64(0), false
		for k := from; k < 256; k++ {
			if bs.IsSet(k) {
				wantNext, wantNextOK = k, true
				break
			}
		}
		wantPrev, wantPrevOK := uint64(0), false
		for k := int(from); k >= 0; k-- {
			if bs.IsSet(uint64(k)) {
				wantPrev, wantPrevOK = uint64(k), true
				break
			}
		}

		next, ok := bs.NextSet(from)
		require.Equal(t, wantNextOK, ok)
		require.Equal(t, wantNext, next)
		prev, ok := bs.PrevSet(from)
		require.Equal(t, wantPrevOK, ok)
		require.Equal(t, wantPrev, prev)
	}
}
