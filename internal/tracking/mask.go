package tracking

import "math/bits"

// Mask is the set of dirty field ordinals of one entry.
type Mask uint64

// Has reports whether ordinal i is set.
func (m Mask) Has(i int) bool { return m&(1<<uint(i)) != 0 }

// With returns m with ordinal i set.
func (m Mask) With(i int) Mask { return m | 1<<uint(i) }

// Len is the number of set ordinals.
func (m Mask) Len() int { return bits.OnesCount64(uint64(m)) }

// Ordinals lists the set ordinals in ascending order.
func (m Mask) Ordinals() []int {
	out := make([]int, 0, m.Len())
	for v := uint64(m); v != 0; v &= v - 1 {
		out = append(out, bits.TrailingZeros64(v))
	}
	return out
}
