package precommit

import "github.com/paprikadb/paprika/pkg/nibble"

// hexPrefix packs p into the reference trie's compact path encoding: a
// leading flag nibble (bit 1 set for a Leaf, bit 0 set for an odd-length
// path) folded into the first byte, followed by the path's remaining
// nibbles packed two to a byte.
func hexPrefix(p nibble.Path, isLeaf bool) []byte {
	n := p.Length()
	odd := n%2 == 1

	var flag byte
	if isLeaf {
		flag |= 2
	}
	if odd {
		flag |= 1
	}

	out := make([]byte, 0, n/2+1)
	i := 0
	if odd {
		out = append(out, flag<<4|p.Get(0))
		i = 1
	} else {
		out = append(out, flag<<4)
	}
	for ; i < n; i += 2 {
		out = append(out, p.Get(i)<<4|p.Get(i+1))
	}
	return out
}
