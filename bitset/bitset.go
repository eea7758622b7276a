package bitset

import (
	"fmt"
	"math/bits"
)

func NewBitSet(len uint64) BitSet {
	words := (len + 63) / 64
	bits := make([]uint64, words)
	return bits
}

// BitSet is a fixed-size set of bits packed into 64-bit words.
// Bit i lives in word i/64 at position i%64.
type BitSet []uint64

// Len returns the number of addressable bits.
func (b BitSet) Len() uint64 {
	return uint64(len(b)) * 64
}

func (b BitSet) IsSet(index uint64) bool {
	wordPosition := index / 64
	bitPosition := index % 64
	mask := uint64(1) << bitPosition

	return (b[wordPosition] & mask) != 0
}

func (b BitSet) Set(index uint64) {
	wordPosition := index / 64
	bitPosition := index % 64
	mask := uint64(1) << bitPosition

	b[wordPosition] |= mask
}

func (b BitSet) Unset(index uint64) {
	wordPosition := index / 64
	bitPosition := index % 64
	mask := uint64(1) << bitPosition

	b[wordPosition] = b[wordPosition] &^ mask
}

// Toggle flips a single bit and reports whether it is set afterwards.
func (b BitSet) Toggle(index uint64) bool {
	wordPosition := index / 64
	bitPosition := index % 64
	mask := uint64(1) << bitPosition

	b[wordPosition] ^= mask
	return b[wordPosition]&mask != 0
}

// IsEmpty reports whether no bit is set.
func (b BitSet) IsEmpty() bool {
	for _, w := range b {
		if w != 0 {
			return false
		}
	}
	return true
}

// NextSet returns the lowest set bit at or above index.
func (b BitSet) NextSet(index uint64) (uint64, bool) {
	if index >= b.Len() {
		return 0, false
	}
	wordPosition := index / 64
	// mask off everything below index in the first word
	word := b[wordPosition] & (^uint64(0) << (index % 64))
	for {
		if word != 0 {
			return wordPosition*64 + uint64(bits.TrailingZeros64(word)), true
		}
		wordPosition++
		if wordPosition >= uint64(len(b)) {
			return 0, false
		}
		word = b[wordPosition]
	}
}

// PrevSet returns the highest set bit at or below index.
func (b BitSet) PrevSet(index uint64) (uint64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	if index >= b.Len() {
		index = b.Len() - 1
	}
	wordPosition := index / 64
	// keep bits 0..index%64 of the first word
	word := b[wordPosition] & (^uint64(0) >> (63 - index%64))
	for {
		if word != 0 {
			return wordPosition*64 + uint64(63-bits.LeadingZeros64(word)), true
		}
		if wordPosition == 0 {
			return 0, false
		}
		wordPosition--
		word = b[wordPosition]
	}
}

func (b BitSet) Clear() {
	for i := range b {
		b[i] = 0
	}
}

func (b BitSet) SetFrom(o BitSet) {
	if len(b) != len(o) {
		panic(fmt.Sprintf("bitsets must be same size: got %d vs %d", len(b), len(o)))
	}
	copy(b, o)
}

// Clone returns an independent copy.
func (b BitSet) Clone() BitSet {
	if b == nil {
		return nil
	}
	c := make(BitSet, len(b))
	copy(c, b)
	return c
}
