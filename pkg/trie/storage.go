package trie

import (
	"fmt"

	"github.com/paprikadb/paprika/pkg/fixedmap"
	"github.com/paprikadb/paprika/pkg/page"
)

// PageSource is the subset of pkg/batch.Context (or a read-only
// equivalent) the trie needs: fetch a page by address, copy-on-write it
// into the current batch, or allocate a fresh one. pkg/batch.Context
// satisfies this interface.
type PageSource interface {
	GetAt(addr page.DbAddress) page.Page
	GetWritableCopy(addr page.DbAddress) (page.Page, page.DbAddress, error)
	GetNewPage() (page.Page, page.DbAddress, error)
	RegisterForFutureReuse(addr page.DbAddress)
}

// LoadNode reads the single node stored at addr. Exported for
// pkg/precommit, which needs to walk a committed trie read-only to
// compute Merkle hashes without duplicating the page layout here.
func LoadNode(src PageSource, addr page.DbAddress) Node {
	return loadNode(src, addr)
}

// loadNode reads the single node stored at addr.
func loadNode(src PageSource, addr page.DbAddress) Node {
	vp := page.AsValuePage(src.GetAt(addr))
	m := fixedmap.New(vp.MapArea())
	entry, ok := m.TryGet(m.FirstHash())
	if !ok {
		panic(fmt.Sprintf("trie: page %v has no node entry", addr))
	}
	return decode(entry)
}

// storeNode allocates a fresh page for n and returns its address. Used
// whenever a node is created or structurally replaced (COW: the old
// page, if any, must be separately registered for reuse by the caller).
func storeNode(src PageSource, n Node) (page.DbAddress, error) {
	p, addr, err := src.GetNewPage()
	if err != nil {
		return page.Null, err
	}
	vp := page.AsValuePage(p)
	vp.Init()
	m := fixedmap.New(vp.MapArea())
	m.Init()
	if err := m.TrySet(nibbleHash(n.Path), n.encode()); err != nil {
		return page.Null, fmt.Errorf("trie: node page overflow: %w", err)
	}
	return addr, nil
}
