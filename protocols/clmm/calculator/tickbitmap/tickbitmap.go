// Package tickbitmap tracks initialized ticks as a sparse map of 256-bit
// words and finds the next initialized tick in either direction.
package tickbitmap

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-router-go/bitset"
)

// WordBits is the number of compressed ticks covered by one bitmap word.
const WordBits = 256

var ErrTickNotSpaced = errors.New("tick is not a multiple of tick spacing")

// Bitmap maps a word position to its 256-bit word. Bit i of word w marks
// compressed tick w*256+i as initialized.
type Bitmap map[int16]bitset.BitSet

// Position splits a compressed tick into its word position and bit position.
func Position(compressed int32) (wordPos int16, bitPos uint8) {
	return int16(compressed >> 8), uint8(compressed & 0xff)
}

// compress rounds a tick towards negative infinity onto the spacing grid.
func compress(tick, spacing int32) int32 {
	compressed := tick / spacing
	if tick < 0 && tick%spacing != 0 {
		compressed--
	}
	return compressed
}

// FlipTick toggles the initialized bit of tick. Empty words are dropped so
// the map only ever holds words with at least one bit set.
func (b Bitmap) FlipTick(tick, spacing int32) error {
	if spacing <= 0 || tick%spacing != 0 {
		return fmt.Errorf("%w: tick %d, spacing %d", ErrTickNotSpaced, tick, spacing)
	}
	wordPos, bitPos := Position(tick / spacing)

	word, ok := b[wordPos]
	if !ok {
		word = bitset.NewBitSet(WordBits)
		b[wordPos] = word
	}
	word.Toggle(uint64(bitPos))
	if word.IsEmpty() {
		delete(b, wordPos)
	}
	return nil
}

// IsInitialized reports whether the bit for tick is set.
func (b Bitmap) IsInitialized(tick, spacing int32) bool {
	if spacing <= 0 || tick%spacing != 0 {
		return false
	}
	wordPos, bitPos := Position(tick / spacing)
	word, ok := b[wordPos]
	return ok && word.IsSet(uint64(bitPos))
}

// NextInitializedTickWithinOneWord returns the next initialized tick contained
// in the same word as tick (lte) or the word just right of it (!lte).
//
//   - If lte is true, it looks for the largest initialized tick <= tick.
//   - If lte is false, it looks for the smallest initialized tick > tick.
//
// When nothing is found it returns the word boundary it stopped at together
// with initialized=false, so callers can resume the search from there.
func (b Bitmap) NextInitializedTickWithinOneWord(tick, spacing int32, lte bool) (next int32, initialized bool) {
	compressed := compress(tick, spacing)

	if lte {
		wordPos, bitPos := Position(compressed)
		if word, ok := b[wordPos]; ok {
			if found, ok := word.PrevSet(uint64(bitPos)); ok {
				return (compressed - int32(bitPos) + int32(found)) * spacing, true
			}
		}
		return (compressed - int32(bitPos)) * spacing, false
	}

	// start from the next compressed tick because the current one is excluded
	compressed++
	wordPos, bitPos := Position(compressed)
	if word, ok := b[wordPos]; ok {
		if found, ok := word.NextSet(uint64(bitPos)); ok {
			return (compressed + int32(found) - int32(bitPos)) * spacing, true
		}
	}
	return (compressed + int32(WordBits-1) - int32(bitPos)) * spacing, false
}

// NextInitializedTick walks word by word from tick until it finds an
// initialized tick or passes the [minTick, maxTick] range. The search is
// inclusive of tick when lte is true and exclusive otherwise.
func (b Bitmap) NextInitializedTick(tick, spacing int32, lte bool, minTick, maxTick int32) (int32, bool) {
	if len(b) == 0 {
		return 0, false
	}
	for {
		next, initialized := b.NextInitializedTickWithinOneWord(tick, spacing, lte)
		if initialized {
			if next < minTick || next > maxTick {
				return 0, false
			}
			return next, true
		}
		if lte {
			if next <= minTick {
				return 0, false
			}
			// continue from the last tick of the word below
			tick = next - 1
		} else {
			if next >= maxTick {
				return 0, false
			}
			tick = next
		}
	}
}

// Clone returns a deep copy of the bitmap.
func (b Bitmap) Clone() Bitmap {
	c := make(Bitmap, len(b))
	for pos, word := range b {
		c[pos] = word.Clone()
	}
	return c
}
