package blockchain

import (
	"sync"

	"github.com/paprikadb/paprika/pkg/nibble"
	"github.com/paprikadb/paprika/pkg/page"
	"github.com/paprikadb/paprika/pkg/trie"
)

// defaultPrefetchBudget bounds how many paths a single Prefetcher will
// warm before CanPrefetchFurther starts reporting false.
const defaultPrefetchBudget = 64

// Prefetcher lets execution ask the store to warm trie pages for
// addresses or storage cells it expects to touch soon, off the commit
// critical path. It has no effect on correctness: GetAccount/GetStorage
// return the same result whether or not a path was prefetched first.
type Prefetcher interface {
	// CanPrefetchFurther reports whether any prefetch budget remains.
	CanPrefetchFurther() bool
	// PrefetchAccount warms the trie path for addr.
	PrefetchAccount(addr Address)
	// PrefetchStorage warms the trie path for (addr, slot).
	PrefetchStorage(addr Address, slot StorageKey)
}

// prefetcher walks trie.Get against a fixed root snapshot purely for
// its side effect of touching (and thereby mmap-faulting in, or
// populating the OS page cache for) every page along the path; it
// discards the looked-up value.
type prefetcher struct {
	mu        sync.Mutex
	src       trie.PageSource
	root      page.DbAddress
	remaining int
}

func newPrefetcher(src trie.PageSource, root page.DbAddress, budget int) *prefetcher {
	return &prefetcher{src: src, root: root, remaining: budget}
}

func (p *prefetcher) CanPrefetchFurther() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remaining > 0
}

func (p *prefetcher) PrefetchAccount(addr Address) {
	p.touch(AccountPath(addr))
}

func (p *prefetcher) PrefetchStorage(addr Address, slot StorageKey) {
	p.touch(StoragePath(addr, slot))
}

func (p *prefetcher) touch(path nibble.Path) {
	p.mu.Lock()
	if p.remaining <= 0 {
		p.mu.Unlock()
		return
	}
	p.remaining--
	p.mu.Unlock()

	trie.Get(p.src, p.root, path)
}
