// Package trie implements the Branch/Leaf/Extension node variants of a
// hexary Patricia-Merkle trie and their structural mutation rules,
// storing each node as a single FixedMap entry inside its own
// page.ValuePage addressed by a page.DbAddress — one node per page,
// rather than the multi-node-per-page packing a JumpPage fan-out
// directory over many nodes' ValuePages would give (see DESIGN.md's
// Open Question decision on this point for the tradeoff).
//
// Grounded on the teacher's pkg/btree.go structural operations
// (treeInsert/nodeSplit3/nodeSplit2/treeDelete/nodeMerge/shouldMerge):
// the recurse-mutate-return-new-node COW shape is reused, generalized
// from splitting an oversized B-tree node by key count to creating
// Branch/Extension nodes on a first nibble mismatch.
package trie

import (
	"encoding/binary"
	"fmt"

	"github.com/paprikadb/paprika/pkg/nibble"
	"github.com/paprikadb/paprika/pkg/page"
	"github.com/paprikadb/paprika/pkg/rlp"
)

// Kind discriminates the three node variants a page can hold.
type Kind byte

const (
	KindLeaf Kind = iota + 1
	KindExtension
	KindBranch
)

// Node is the in-memory, decoded form of whatever is stored on a node's
// page. Exactly one of the kind-specific field groups is meaningful,
// selected by Kind.
type Node struct {
	Kind Kind
	Path nibble.Path // Leaf/Extension: path suffix from this node downward

	Value []byte // Leaf only

	Child page.DbAddress // Extension only

	Children [16]page.DbAddress // Branch only; page.Null = empty slot
}

// nibbleHash reduces a nibble path to the 16-bit hash FixedMap indexes
// by, derived from the already-available Keccak primitive rather than
// introducing a second hash function.
func nibbleHash(p nibble.Path) uint16 {
	h := rlp.Keccak256(p.Bytes())
	return binary.BigEndian.Uint16(h[:2])
}

// encode serializes n as [nibble.Path][kind][kind payload], the exact
// bytes stored as a FixedMap entry.
func (n Node) encode() []byte {
	buf := make([]byte, n.Path.EncodedLen())
	n.Path.WriteTo(buf)
	buf = append(buf, byte(n.Kind))

	switch n.Kind {
	case KindLeaf:
		lenBuf := make([]byte, 2)
		binary.LittleEndian.PutUint16(lenBuf, uint16(len(n.Value)))
		buf = append(buf, lenBuf...)
		buf = append(buf, n.Value...)
	case KindExtension:
		addrBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(addrBuf, n.Child.Raw())
		buf = append(buf, addrBuf...)
	case KindBranch:
		var mask uint16
		for i, c := range n.Children {
			if !c.IsNull() {
				mask |= 1 << uint(i)
			}
		}
		maskBuf := make([]byte, 2)
		binary.LittleEndian.PutUint16(maskBuf, mask)
		buf = append(buf, maskBuf...)
		for i, c := range n.Children {
			if mask&(1<<uint(i)) == 0 {
				continue
			}
			addrBuf := make([]byte, 4)
			binary.LittleEndian.PutUint32(addrBuf, c.Raw())
			buf = append(buf, addrBuf...)
		}
	default:
		panic(fmt.Sprintf("trie: encode: unknown kind %d", n.Kind))
	}
	return buf
}

// decode parses bytes previously produced by encode.
func decode(buf []byte) Node {
	p, rest := nibble.ReadFrom(buf)
	n := Node{Path: p, Kind: Kind(rest[0])}
	rest = rest[1:]

	switch n.Kind {
	case KindLeaf:
		vlen := binary.LittleEndian.Uint16(rest)
		n.Value = append([]byte(nil), rest[2:2+int(vlen)]...)
	case KindExtension:
		n.Child = page.FromRaw(binary.LittleEndian.Uint32(rest))
	case KindBranch:
		mask := binary.LittleEndian.Uint16(rest)
		rest = rest[2:]
		off := 0
		for i := 0; i < 16; i++ {
			if mask&(1<<uint(i)) == 0 {
				continue
			}
			n.Children[i] = page.FromRaw(binary.LittleEndian.Uint32(rest[off:]))
			off += 4
		}
	default:
		panic(fmt.Sprintf("trie: decode: unknown kind %d", n.Kind))
	}
	return n
}

// childCount returns how many non-empty slots a Branch node has.
func (n Node) childCount() int {
	count := 0
	for _, c := range n.Children {
		if !c.IsNull() {
			count++
		}
	}
	return count
}

// onlyChild returns the single occupied slot's nibble and address; only
// valid when childCount() == 1.
func (n Node) onlyChild() (nib int, addr page.DbAddress) {
	for i, c := range n.Children {
		if !c.IsNull() {
			return i, c
		}
	}
	panic("trie: onlyChild called with no children")
}

// pathFromNibbles packs nibble values (each 0..15) into a freshly owned
// Path, used by the delete path's branch/extension collapse to build a
// merged prefix that no longer aliases any page's backing array.
func pathFromNibbles(nibbles []byte) nibble.Path {
	buf := make([]byte, (len(nibbles)+1)/2)
	for i, nb := range nibbles {
		if i%2 == 0 {
			buf[i/2] = nb << 4
		} else {
			buf[i/2] |= nb & 0x0F
		}
	}
	return nibble.FromKey(buf, 0).SliceTo(len(nibbles))
}

// concatPaths returns a owned Path holding a's nibbles followed by b's.
func concatPaths(a, b nibble.Path) nibble.Path {
	nibbles := make([]byte, 0, a.Length()+b.Length())
	for i := 0; i < a.Length(); i++ {
		nibbles = append(nibbles, a.Get(i))
	}
	for i := 0; i < b.Length(); i++ {
		nibbles = append(nibbles, b.Get(i))
	}
	return pathFromNibbles(nibbles)
}

// prependNibble returns a owned Path holding nib followed by p's nibbles.
func prependNibble(nib byte, p nibble.Path) nibble.Path {
	nibbles := make([]byte, 0, p.Length()+1)
	nibbles = append(nibbles, nib)
	for i := 0; i < p.Length(); i++ {
		nibbles = append(nibbles, p.Get(i))
	}
	return pathFromNibbles(nibbles)
}
