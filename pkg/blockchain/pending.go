package blockchain

import "github.com/paprikadb/paprika/pkg/page"

// writeOpKind discriminates one logical mutation recorded in a
// WorldState's write log.
type writeOpKind int

const (
	opSetAccount writeOpKind = iota
	opSetStorage
	opDestroyAccount
)

// writeOp is one logical write, kept alongside the staging trie so
// Finalize can replay it against a real paged.ReadWriteBatch without
// needing to walk the speculative trie's pages (which live in a batch
// id space Finalize never reuses).
type writeOp struct {
	kind  writeOpKind
	addr  Address
	slot  StorageKey
	value []byte
}

// pendingBlock is one committed-but-not-yet-durable WorldState, kept
// alive in the Blockchain's in-memory DAG until Finalize walks it into
// the paged store.
type pendingBlock struct {
	hash        [32]byte
	parentHash  [32]byte
	parent      *pendingBlock // nil when parentHash names a persisted root
	blockNumber uint64
	root        page.DbAddress // this block's trie root, in the shared arena
	writeLog    []writeOp
	refCount    int
}

// syntheticRootPage builds an in-memory RootPage (never arena-backed,
// never written to disk) exposing dataRoot as a parent snapshot's data
// root. batch.New only ever reads DataRoot()/AbandonedHead()/BatchID()
// off the page it's handed, so a bare in-memory page satisfies it
// without requiring the pending parent to have ever occupied a real
// root-ring slot.
func syntheticRootPage(dataRoot page.DbAddress, batchID uint32) page.RootPage {
	p := page.AsRootPage(make(page.Page, page.Size))
	p.SetBatchID(batchID)
	p.SetDataRoot(dataRoot)
	p.SetAbandonedHead(page.Null)
	return p
}
