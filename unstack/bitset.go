package unstack

// bitSet is a compact set of block positions.
type bitSet struct {
	bits []uint64
}

// newBitSet creates a bitSet that can hold values up to maxVal (inclusive)
// without growing.
func newBitSet(maxVal int) *bitSet {
	words := (maxVal + 64) / 64
	return &bitSet{bits: make([]uint64, words)}
}

// Set adds val to the set.
func (b *bitSet) Set(val int) {
	word := val / 64
	if word >= len(b.bits) {
		b.grow(word + 1)
	}
	b.bits[word] |= 1 << (uint(val) % 64)
}

// Has returns true if val is in the set.
func (b *bitSet) Has(val int) bool {
	word := val / 64
	if word >= len(b.bits) {
		return false
	}
	return b.bits[word]&(1<<(uint(val)%64)) != 0
}

// Count returns the number of elements in the set.
func (b *bitSet) Count() int {
	count := 0
	for _, word := range b.bits {
		for word != 0 {
			word &= word - 1
			count++
		}
	}
	return count
}

func (b *bitSet) grow(n int) {
	newBits := make([]uint64, n)
	copy(newBits, b.bits)
	b.bits = newBits
}
