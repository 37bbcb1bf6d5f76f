// Package nibble implements a zero-copy view over a byte buffer addressed
// at nibble (4-bit) granularity, the key primitive every trie page builds
// on to represent a 64-nibble Ethereum key and its suffixes.
package nibble

import "fmt"

// Path is a length-prefixed nibble sequence backed by a byte span. Two
// nibbles share each byte; Odd selects whether the first logical nibble
// occupies the high or low half of span[0].
type Path struct {
	span   []byte
	odd    bool
	length int // number of nibbles
}

// FromKey builds a Path over key, optionally skipping the first
// nibbleFrom nibbles (used when descending past an already-matched
// prefix without copying).
func FromKey(key []byte, nibbleFrom int) Path {
	total := len(key)*2 - nibbleFrom
	if total < 0 {
		total = 0
	}
	byteOff := nibbleFrom / 2
	odd := nibbleFrom%2 == 1
	return Path{span: key[byteOff:], odd: odd, length: total}
}

// Length returns the number of nibbles in the path.
func (p Path) Length() int { return p.length }

// IsOdd reports whether the first nibble occupies the low half of span[0]
// (the high half being skipped).
func (p Path) IsOdd() bool { return p.odd }

// Get returns the nibble at logical index i.
func (p Path) Get(i int) byte {
	if i < 0 || i >= p.length {
		panic(fmt.Sprintf("nibble: index %d out of range (length %d)", i, p.length))
	}
	pos := i
	if p.odd {
		pos++
	}
	b := p.span[pos/2]
	if pos%2 == 0 {
		return b >> 4
	}
	return b & 0x0F
}

// FirstNibble returns Get(0); it is the hot path for branch dispatch.
func (p Path) FirstNibble() byte {
	if p.length == 0 {
		panic("nibble: FirstNibble on empty path")
	}
	return p.Get(0)
}

// SliceFrom returns the suffix starting at nibble n.
func (p Path) SliceFrom(n int) Path {
	if n < 0 || n > p.length {
		panic(fmt.Sprintf("nibble: SliceFrom(%d) out of range (length %d)", n, p.length))
	}
	logicalStart := n
	if p.odd {
		logicalStart++
	}
	return Path{
		span:   p.span[logicalStart/2:],
		odd:    logicalStart%2 == 1,
		length: p.length - n,
	}
}

// SliceTo returns the prefix ending before nibble n (length n).
func (p Path) SliceTo(n int) Path {
	if n < 0 || n > p.length {
		panic(fmt.Sprintf("nibble: SliceTo(%d) out of range (length %d)", n, p.length))
	}
	return Path{span: p.span, odd: p.odd, length: n}
}

// byteLen returns how many bytes of span are actually addressed by p.
func (p Path) byteLen() int {
	total := p.length
	if p.odd {
		total++
	}
	return (total + 1) / 2
}

// WriteTo serializes p as one header byte (odd | length<<1) followed by
// ceil((length+odd)/2) payload bytes, and returns the unused remainder of
// dst.
func (p Path) WriteTo(dst []byte) []byte {
	oddBit := byte(0)
	if p.odd {
		oddBit = 1
	}
	dst[0] = oddBit | byte(p.length)<<1
	dst = dst[1:]
	n := p.byteLen()
	copy(dst, p.span[:n])
	return dst[n:]
}

// EncodedLen returns the number of bytes WriteTo will consume.
func (p Path) EncodedLen() int {
	return 1 + p.byteLen()
}

// ReadFrom parses a Path previously written by WriteTo and returns it
// together with the unconsumed remainder of src.
func ReadFrom(src []byte) (Path, []byte) {
	header := src[0]
	odd := header&1 == 1
	length := int(header >> 1)
	rest := src[1:]
	p := Path{span: rest, odd: odd, length: length}
	n := p.byteLen()
	return p, rest[n:]
}

// FindFirstDifferentNibble returns the length of the common prefix of p
// and other, in nibbles. It is oblivious to the unused half-nibble of the
// host byte when the two paths' Odd bits differ: comparison always
// proceeds nibble-by-nibble logically, never by raw byte compare when the
// alignment differs.
func (p Path) FindFirstDifferentNibble(other Path) int {
	max := p.length
	if other.length < max {
		max = other.length
	}

	if p.odd != other.odd {
		// Misaligned: nibble-by-nibble is the only safe strategy.
		for i := 0; i < max; i++ {
			if p.Get(i) != other.Get(i) {
				return i
			}
		}
		return max
	}

	// Aligned: the first nibble may still be a lone half-nibble (Odd),
	// compare it separately so everything after starts at a byte boundary.
	i, byteIdx := 0, 0
	if p.odd {
		if p.Get(0) != other.Get(0) {
			return 0
		}
		i, byteIdx = 1, 1
	}

	pBytes, oBytes := p.span, other.span

	for _, stride := range []int{8, 4, 1} {
		for max-i >= 2*stride && equalBytes(pBytes[byteIdx:byteIdx+stride], oBytes[byteIdx:byteIdx+stride]) {
			byteIdx += stride
			i += stride * 2
		}
	}

	// Tail: at most one stride's worth of nibbles left to resolve one at a time.
	for i < max {
		if p.Get(i) != other.Get(i) {
			return i
		}
		i++
	}
	return max
}

func equalBytes(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Equals reports whether p and other represent the same nibble sequence.
func (p Path) Equals(other Path) bool {
	if p.length != other.length {
		return false
	}
	return p.FindFirstDifferentNibble(other) == p.length
}

// Bytes materializes p into its own backing buffer (header-less: just the
// packed nibble payload), for callers that need an owned copy rather than
// a view into the original span — e.g. when building a new leaf/extension
// suffix that will outlive the source page.
func (p Path) Bytes() []byte {
	out := make([]byte, p.byteLen())
	tmp := make([]byte, p.EncodedLen())
	rest := p.WriteTo(tmp)
	_ = rest
	copy(out, tmp[1:])
	return out
}
