package trie

import (
	"fmt"

	"github.com/paprikadb/paprika/pkg/nibble"
	"github.com/paprikadb/paprika/pkg/page"
)

// Get traverses from root looking up path, per the node kinds in §4.7:
// a Leaf matches only if its whole remaining path matches, an Extension
// is followed only if path starts with its prefix, a Branch dispatches
// on the next nibble.
func Get(src PageSource, root page.DbAddress, path nibble.Path) ([]byte, bool) {
	if root.IsNull() {
		return nil, false
	}
	n := loadNode(src, root)
	switch n.Kind {
	case KindLeaf:
		if n.Path.Equals(path) {
			return n.Value, true
		}
		return nil, false
	case KindExtension:
		if path.Length() < n.Path.Length() || !n.Path.Equals(path.SliceTo(n.Path.Length())) {
			return nil, false
		}
		return Get(src, n.Child, path.SliceFrom(n.Path.Length()))
	case KindBranch:
		if path.Length() == 0 {
			return nil, false
		}
		child := n.Children[path.FirstNibble()]
		if child.IsNull() {
			return nil, false
		}
		return Get(src, child, path.SliceFrom(1))
	default:
		panic(fmt.Sprintf("trie: Get: unknown kind %d", n.Kind))
	}
}

// Insert applies the structural-mutation algorithm of §4.7 to place
// value at path, returning the new root address. The page at the old
// root (and every node along the path that had to be rewritten) is
// registered on src for future reuse — callers must not dereference the
// old root after a successful Insert.
func Insert(src PageSource, root page.DbAddress, path nibble.Path, value []byte) (page.DbAddress, error) {
	if root.IsNull() {
		return storeNode(src, Node{Kind: KindLeaf, Path: path, Value: value})
	}
	node := loadNode(src, root)
	newRoot, err := insertInto(src, node, path, value)
	if err != nil {
		return page.Null, err
	}
	if newRoot != root {
		src.RegisterForFutureReuse(root)
	}
	return newRoot, nil
}

func insertInto(src PageSource, n Node, path nibble.Path, value []byte) (page.DbAddress, error) {
	switch n.Kind {
	case KindLeaf:
		return insertIntoLeaf(src, n, path, value)
	case KindBranch:
		return insertIntoBranch(src, n, path, value)
	case KindExtension:
		return insertIntoExtension(src, n, path, value)
	default:
		panic(fmt.Sprintf("trie: insertInto: unknown kind %d", n.Kind))
	}
}

// insertIntoLeaf implements §4.7 rule 2.
func insertIntoLeaf(src PageSource, n Node, path nibble.Path, value []byte) (page.DbAddress, error) {
	if n.Path.Equals(path) {
		return storeNode(src, Node{Kind: KindLeaf, Path: path, Value: value})
	}

	d := n.Path.FindFirstDifferentNibble(path)
	branch, err := twoLeafBranch(src, n.Path, n.Value, path, value, d)
	if err != nil {
		return page.Null, err
	}
	if d == 0 {
		return branch, nil
	}
	return storeNode(src, Node{Kind: KindExtension, Path: path.SliceTo(d), Child: branch})
}

// twoLeafBranch builds the Branch node that holds two diverging leaves
// at the nibble where pathA and pathB first differ (d).
func twoLeafBranch(src PageSource, pathA nibble.Path, valueA []byte, pathB nibble.Path, valueB []byte, d int) (page.DbAddress, error) {
	addrA, err := storeNode(src, Node{Kind: KindLeaf, Path: pathA.SliceFrom(d + 1), Value: valueA})
	if err != nil {
		return page.Null, err
	}
	addrB, err := storeNode(src, Node{Kind: KindLeaf, Path: pathB.SliceFrom(d + 1), Value: valueB})
	if err != nil {
		return page.Null, err
	}

	var children [16]page.DbAddress
	children[pathA.Get(d)] = addrA
	children[pathB.Get(d)] = addrB
	return storeNode(src, Node{Kind: KindBranch, Children: children})
}

// insertIntoBranch implements §4.7 rule 3.
func insertIntoBranch(src PageSource, n Node, path nibble.Path, value []byte) (page.DbAddress, error) {
	nib := path.FirstNibble()
	rest := path.SliceFrom(1)
	child := n.Children[nib]

	var newChild page.DbAddress
	var err error
	if child.IsNull() {
		newChild, err = storeNode(src, Node{Kind: KindLeaf, Path: rest, Value: value})
	} else {
		childNode := loadNode(src, child)
		newChild, err = insertInto(src, childNode, rest, value)
		if err == nil && newChild != child {
			src.RegisterForFutureReuse(child)
		}
	}
	if err != nil {
		return page.Null, err
	}

	newChildren := n.Children
	newChildren[nib] = newChild
	return storeNode(src, Node{Kind: KindBranch, Children: newChildren})
}

// insertIntoExtension implements §4.7 rule 4.
func insertIntoExtension(src PageSource, n Node, path nibble.Path, value []byte) (page.DbAddress, error) {
	if path.Length() >= n.Path.Length() && n.Path.Equals(path.SliceTo(n.Path.Length())) {
		rest := path.SliceFrom(n.Path.Length())
		childNode := loadNode(src, n.Child)
		newChild, err := insertInto(src, childNode, rest, value)
		if err != nil {
			return page.Null, err
		}
		if newChild != n.Child {
			src.RegisterForFutureReuse(n.Child)
		}
		return storeNode(src, Node{Kind: KindExtension, Path: n.Path, Child: newChild})
	}

	d := n.Path.FindFirstDifferentNibble(path)
	branch, err := splitExtensionBranch(src, n.Path, n.Child, path, value, d)
	if err != nil {
		return page.Null, err
	}
	if d == 0 {
		return branch, nil
	}
	return storeNode(src, Node{Kind: KindExtension, Path: path.SliceTo(d), Child: branch})
}

// splitExtensionBranch builds the Branch introduced when a new key
// diverges from an Extension's prefix at nibble d: the Extension's
// original subtree continues on one side (re-wrapped in a shorter
// Extension if more than one nibble remains before its child), and a
// fresh Leaf for the new key's value sits on the other.
//
// Assumes fixed-width keys (every path has the same total nibble
// length, as Ethereum's 32-byte keccak-keyed accounts and storage slots
// do): d is therefore always a valid index into both paths, never
// exactly one path's length.
func splitExtensionBranch(src PageSource, extPath nibble.Path, origChild page.DbAddress, path nibble.Path, value []byte, d int) (page.DbAddress, error) {
	if d >= extPath.Length() || d >= path.Length() {
		panic("trie: splitExtensionBranch: split point at or past a path's end (variable-width keys unsupported)")
	}

	origSide := origChild
	if extPath.Length()-(d+1) > 0 {
		var err error
		origSide, err = storeNode(src, Node{Kind: KindExtension, Path: extPath.SliceFrom(d + 1), Child: origChild})
		if err != nil {
			return page.Null, err
		}
	}

	leafAddr, err := storeNode(src, Node{Kind: KindLeaf, Path: path.SliceFrom(d + 1), Value: value})
	if err != nil {
		return page.Null, err
	}

	var children [16]page.DbAddress
	children[extPath.Get(d)] = origSide
	children[path.Get(d)] = leafAddr
	return storeNode(src, Node{Kind: KindBranch, Children: children})
}
