package trie

import (
	"fmt"

	"github.com/paprikadb/paprika/pkg/nibble"
	"github.com/paprikadb/paprika/pkg/page"
)

// Destroy removes the single entry at path, if present, collapsing any
// Branch left with one child and merging any Extension left pointing at
// another Extension or a Leaf. A lookup for a path not present is a
// no-op: the returned root equals the one passed in.
func Destroy(src PageSource, root page.DbAddress, path nibble.Path) (page.DbAddress, error) {
	if root.IsNull() {
		return page.Null, nil
	}
	newRoot, err := deleteInto(src, root, path)
	if err != nil {
		return page.Null, err
	}
	if newRoot != root {
		src.RegisterForFutureReuse(root)
	}
	return newRoot, nil
}

// DeleteByPrefix removes every entry whose path starts with prefix,
// abandoning every page in the affected subtree rather than visiting
// entries one at a time. This is the commit-time replay of a queued
// register_delete_by_prefix request: the account trie's destroy(account)
// is expressed one layer up as a DeleteByPrefix over the storage trie
// keyed by the account's path.
func DeleteByPrefix(src PageSource, root page.DbAddress, prefix nibble.Path) (page.DbAddress, error) {
	if root.IsNull() {
		return page.Null, nil
	}
	newRoot, err := deleteByPrefixInto(src, root, prefix)
	if err != nil {
		return page.Null, err
	}
	if newRoot != root {
		src.RegisterForFutureReuse(root)
	}
	return newRoot, nil
}

func deleteInto(src PageSource, addr page.DbAddress, path nibble.Path) (page.DbAddress, error) {
	n := loadNode(src, addr)
	switch n.Kind {
	case KindLeaf:
		if !n.Path.Equals(path) {
			return addr, nil
		}
		return page.Null, nil

	case KindExtension:
		if path.Length() < n.Path.Length() || !n.Path.Equals(path.SliceTo(n.Path.Length())) {
			return addr, nil
		}
		newChild, err := deleteInto(src, n.Child, path.SliceFrom(n.Path.Length()))
		if err != nil {
			return addr, err
		}
		if newChild == n.Child {
			return addr, nil
		}
		src.RegisterForFutureReuse(n.Child)
		return collapseExtensionChild(src, n.Path, newChild)

	case KindBranch:
		if path.Length() == 0 {
			return addr, nil
		}
		nib := path.FirstNibble()
		child := n.Children[nib]
		if child.IsNull() {
			return addr, nil
		}
		newChild, err := deleteInto(src, child, path.SliceFrom(1))
		if err != nil {
			return addr, err
		}
		if newChild == child {
			return addr, nil
		}
		src.RegisterForFutureReuse(child)
		newChildren := n.Children
		newChildren[nib] = newChild
		return collapseBranchChildren(src, newChildren)

	default:
		panic(fmt.Sprintf("trie: deleteInto: unknown kind %d", n.Kind))
	}
}

func deleteByPrefixInto(src PageSource, addr page.DbAddress, prefix nibble.Path) (page.DbAddress, error) {
	n := loadNode(src, addr)
	switch n.Kind {
	case KindLeaf:
		if prefix.Length() > n.Path.Length() || !n.Path.SliceTo(prefix.Length()).Equals(prefix) {
			return addr, nil
		}
		abandonSubtree(src, addr)
		return page.Null, nil

	case KindExtension:
		if prefix.Length() <= n.Path.Length() {
			if !n.Path.SliceTo(prefix.Length()).Equals(prefix) {
				return addr, nil
			}
			abandonSubtree(src, addr)
			return page.Null, nil
		}
		if !n.Path.Equals(prefix.SliceTo(n.Path.Length())) {
			return addr, nil
		}
		newChild, err := deleteByPrefixInto(src, n.Child, prefix.SliceFrom(n.Path.Length()))
		if err != nil {
			return addr, err
		}
		if newChild == n.Child {
			return addr, nil
		}
		src.RegisterForFutureReuse(n.Child)
		return collapseExtensionChild(src, n.Path, newChild)

	case KindBranch:
		if prefix.Length() == 0 {
			abandonSubtree(src, addr)
			return page.Null, nil
		}
		nib := prefix.FirstNibble()
		child := n.Children[nib]
		if child.IsNull() {
			return addr, nil
		}
		newChild, err := deleteByPrefixInto(src, child, prefix.SliceFrom(1))
		if err != nil {
			return addr, err
		}
		if newChild == child {
			return addr, nil
		}
		src.RegisterForFutureReuse(child)
		newChildren := n.Children
		newChildren[nib] = newChild
		return collapseBranchChildren(src, newChildren)

	default:
		panic(fmt.Sprintf("trie: deleteByPrefixInto: unknown kind %d", n.Kind))
	}
}

// abandonSubtree registers every page reachable from addr for reuse,
// including addr itself.
func abandonSubtree(src PageSource, addr page.DbAddress) {
	if addr.IsNull() {
		return
	}
	n := loadNode(src, addr)
	switch n.Kind {
	case KindExtension:
		abandonSubtree(src, n.Child)
	case KindBranch:
		for _, c := range n.Children {
			abandonSubtree(src, c)
		}
	}
	src.RegisterForFutureReuse(addr)
}

// collapseExtensionChild builds the replacement for an Extension whose
// child was just rewritten to newChild, merging adjacent
// Extension/Leaf nodes so no Extension ever points directly at another
// Extension.
func collapseExtensionChild(src PageSource, extPath nibble.Path, newChild page.DbAddress) (page.DbAddress, error) {
	if newChild.IsNull() {
		return page.Null, nil
	}
	childNode := loadNode(src, newChild)
	switch childNode.Kind {
	case KindLeaf:
		src.RegisterForFutureReuse(newChild)
		return storeNode(src, Node{Kind: KindLeaf, Path: concatPaths(extPath, childNode.Path), Value: childNode.Value})
	case KindExtension:
		src.RegisterForFutureReuse(newChild)
		return storeNode(src, Node{Kind: KindExtension, Path: concatPaths(extPath, childNode.Path), Child: childNode.Child})
	default:
		return storeNode(src, Node{Kind: KindExtension, Path: extPath, Child: newChild})
	}
}

// collapseBranchChildren builds the replacement for a Branch whose
// children array was just rewritten: a Branch left with zero children
// vanishes, one left with exactly one child collapses into that child
// (merging a nibble prefix into it), and one left with two or more
// stays a Branch.
func collapseBranchChildren(src PageSource, children [16]page.DbAddress) (page.DbAddress, error) {
	switch (Node{Children: children}).childCount() {
	case 0:
		return page.Null, nil
	case 1:
		onlyNib, onlyAddr := (Node{Children: children}).onlyChild()
		onlyNode := loadNode(src, onlyAddr)
		switch onlyNode.Kind {
		case KindLeaf:
			src.RegisterForFutureReuse(onlyAddr)
			return storeNode(src, Node{Kind: KindLeaf, Path: prependNibble(byte(onlyNib), onlyNode.Path), Value: onlyNode.Value})
		case KindExtension:
			src.RegisterForFutureReuse(onlyAddr)
			return storeNode(src, Node{Kind: KindExtension, Path: prependNibble(byte(onlyNib), onlyNode.Path), Child: onlyNode.Child})
		default:
			return storeNode(src, Node{Kind: KindExtension, Path: pathFromNibbles([]byte{byte(onlyNib)}), Child: onlyAddr})
		}
	default:
		return storeNode(src, Node{Kind: KindBranch, Children: children})
	}
}
