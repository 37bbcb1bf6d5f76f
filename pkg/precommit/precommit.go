// Package precommit computes the Merkle state hash for a trie root
// before it is stamped into a committed RootPage. Nodes themselves never
// carry their own hash (pkg/trie only stores structure); this package
// walks a committed subtree bottom-up, RLP-encoding each node and
// applying the hash-or-inline rule to its children, exactly the
// reference trie's canonical hashing rule.
//
// Grounded on the teacher's pkg/btree bottom-up rebuild discipline: every
// structural change there returns a new top node for the caller to link
// in; here the same recurse-then-combine shape produces a hash instead
// of a replacement pointer, with an RlpMemo standing in for the
// teacher's absence of memoization (a trie node's content at a given
// address is immutable once written under copy-on-write, so memoizing
// by address is sound as long as address reuse across batches is
// accounted for).
package precommit

import (
	"github.com/paprikadb/paprika/pkg/page"
	"github.com/paprikadb/paprika/pkg/rlp"
	"github.com/paprikadb/paprika/pkg/trie"
)

// emptyRootHash is Keccak256(RLP("")), the canonical hash of a trie with
// no entries.
var emptyRootHash = rlp.Keccak256(rlp.EncodeBytes(nil))

// Parallelism selects how a Branch node's sixteen children are hashed.
type Parallelism int

const (
	// ParallelismNone hashes every child on the calling goroutine.
	ParallelismNone Parallelism = iota
	// ParallelismLimited hashes children across a bounded worker pool.
	ParallelismLimited
	// ParallelismUnlimited hashes every non-empty child concurrently.
	ParallelismUnlimited
)

// Options configures a Hasher.
type Options struct {
	Parallelism Parallelism
	// Limit bounds concurrent child hashes when Parallelism is
	// ParallelismLimited. Ignored otherwise.
	Limit int
}

func (o Options) workers() int {
	switch o.Parallelism {
	case ParallelismLimited:
		if o.Limit > 0 {
			return o.Limit
		}
		return 1
	case ParallelismUnlimited:
		return 16 // a Branch never has more than 16 children
	default:
		return 1
	}
}

// Hasher computes Merkle roots over a trie.PageSource, memoizing each
// node's RLP encoding in an RlpMemo so a block that touches only a few
// leaves does not re-encode the untouched majority of the trie.
type Hasher struct {
	opts Options
	memo *RlpMemo
}

// NewHasher creates a Hasher with a fresh, empty RlpMemo.
func NewHasher(opts Options) *Hasher {
	return &Hasher{opts: opts, memo: newRlpMemo()}
}

// RootHash returns the 32-byte state hash of the trie rooted at addr. An
// empty trie (addr.IsNull()) hashes to the canonical empty-root constant,
// matching the reference trie's convention.
//
// Unlike child references elsewhere in the trie, the root is always
// hashed in full (never inlined) regardless of its encoded size.
func (h *Hasher) RootHash(src trie.PageSource, addr page.DbAddress) ([32]byte, error) {
	if addr.IsNull() {
		return emptyRootHash, nil
	}
	encoded, err := h.encodeNode(src, addr)
	if err != nil {
		return [32]byte{}, err
	}
	return rlp.Keccak256(encoded), nil
}

// encodeNode returns node addr's RLP encoding, consulting and populating
// the memo keyed by (addr, the page's batch id). Never mutates src.
func (h *Hasher) encodeNode(src trie.PageSource, addr page.DbAddress) ([]byte, error) {
	batchID := src.GetAt(addr).BatchID()
	key := memoKey{addr: addr, batchID: batchID}
	if cached, ok := h.memo.get(key); ok {
		return cached, nil
	}

	node := trie.LoadNode(src, addr)
	var encoded []byte
	var err error
	switch node.Kind {
	case trie.KindLeaf:
		encoded = rlp.EncodeList([][]byte{
			rlp.EncodeBytes(hexPrefix(node.Path, true)),
			rlp.EncodeBytes(node.Value),
		})
	case trie.KindExtension:
		var childEncoded []byte
		childEncoded, err = h.encodeNode(src, node.Child)
		if err != nil {
			return nil, err
		}
		encoded = rlp.EncodeList([][]byte{
			rlp.EncodeBytes(hexPrefix(node.Path, false)),
			rlp.HashOrInline(childEncoded),
		})
	case trie.KindBranch:
		var items [][]byte
		items, err = h.encodeBranchChildren(src, node.Children)
		if err != nil {
			return nil, err
		}
		encoded = rlp.EncodeList(items)
	}

	h.memo.put(key, encoded)
	return encoded, nil
}

// encodeBranchChildren returns the hash-or-inline reference for each of
// a Branch's 16 slots plus the trailing 17th value slot required by the
// canonical Branch RLP shape (16 children + 1 value), empty slots
// encoding to the empty byte string; this trie never stores a value
// alongside a Branch (values live only on Leaf nodes), so the 17th slot
// is always empty. Distinct non-empty subtrees are hashed concurrently
// when h.opts calls for it; the list itself is always assembled
// serially afterward, since RLP's list encoding depends on every item's
// final byte length.
func (h *Hasher) encodeBranchChildren(src trie.PageSource, children [16]page.DbAddress) ([][]byte, error) {
	items := make([][]byte, 17)
	items[16] = rlp.EncodeBytes(nil)

	if h.opts.Parallelism == ParallelismNone {
		for i, c := range children {
			if c.IsNull() {
				items[i] = rlp.EncodeBytes(nil)
				continue
			}
			encoded, err := h.encodeNode(src, c)
			if err != nil {
				return nil, err
			}
			items[i] = rlp.HashOrInline(encoded)
		}
		return items, nil
	}

	sem := make(chan struct{}, h.opts.workers())
	errs := make([]error, 16)
	done := make(chan int, 16)
	pending := 0
	for i, c := range children {
		if c.IsNull() {
			items[i] = rlp.EncodeBytes(nil)
			continue
		}
		pending++
		go func(i int, c page.DbAddress) {
			sem <- struct{}{}
			defer func() { <-sem }()
			encoded, err := h.encodeNode(src, c)
			if err != nil {
				errs[i] = err
			} else {
				items[i] = rlp.HashOrInline(encoded)
			}
			done <- i
		}(i, c)
	}
	for n := 0; n < pending; n++ {
		<-done
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}
