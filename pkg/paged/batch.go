package paged

import (
	"fmt"

	"github.com/paprikadb/paprika/pkg/batch"
	"github.com/paprikadb/paprika/pkg/nibble"
	"github.com/paprikadb/paprika/pkg/page"
	"github.com/paprikadb/paprika/pkg/pagemanager"
	"github.com/paprikadb/paprika/pkg/trie"
)

// ReadOnlyBatch pins one historical root for the duration of a read
// session. It must be released when the session ends; Release calls
// after the first are no-ops.
type ReadOnlyBatch struct {
	db       *Db
	root     page.RootPage
	released bool
}

// TryGet looks up key against this batch's pinned snapshot.
func (b *ReadOnlyBatch) TryGet(key nibble.Path) ([]byte, bool) {
	return trie.Get(readOnlySource{b.db.pm}, b.root.DataRoot(), key)
}

// StateHash returns the pinned snapshot's state hash.
func (b *ReadOnlyBatch) StateHash() [32]byte { return b.root.StateHash() }

// BlockNumber returns the pinned snapshot's block number.
func (b *ReadOnlyBatch) BlockNumber() uint64 { return b.root.BlockNumber() }

// BatchID returns the pinned snapshot's batch id.
func (b *ReadOnlyBatch) BatchID() uint32 { return b.root.BatchID() }

// Release unpins the snapshot, allowing its batch's abandoned pages to
// be reclaimed once it is no longer the oldest live reader. Safe to call
// more than once.
func (b *ReadOnlyBatch) Release() {
	if b.released {
		return
	}
	b.released = true
	b.db.release(b.root.BatchID())
}

// readOnlySource adapts a pagemanager.Manager to trie.PageSource for
// read-only traversal; the mutating methods panic because nothing on a
// read-only path should ever call them.
type readOnlySource struct {
	pm *pagemanager.Manager
}

func (r readOnlySource) GetAt(addr page.DbAddress) page.Page { return r.pm.GetAt(addr) }

func (r readOnlySource) GetWritableCopy(page.DbAddress) (page.Page, page.DbAddress, error) {
	panic("paged: read-only batch attempted a write")
}

func (r readOnlySource) GetNewPage() (page.Page, page.DbAddress, error) {
	panic("paged: read-only batch attempted an allocation")
}

func (r readOnlySource) RegisterForFutureReuse(page.DbAddress) {
	panic("paged: read-only batch attempted to abandon a page")
}

// ReadWriteBatch is the single mutable session open against a Db at a
// time. Set/Destroy/RegisterDeleteByPrefix mutate in memory; prefix
// deletions are queued and replayed at Commit, per §4.6's contract with
// the pre-commit hook.
type ReadWriteBatch struct {
	db  *Db
	ctx *batch.Context

	root                 page.DbAddress
	pendingPrefixDeletes []nibble.Path

	closed bool
}

// TryGet looks up key against this batch's in-progress trie.
func (b *ReadWriteBatch) TryGet(key nibble.Path) ([]byte, bool) {
	return trie.Get(b.ctx, b.root, key)
}

// Set inserts or overwrites key with value.
func (b *ReadWriteBatch) Set(key nibble.Path, value []byte) error {
	newRoot, err := trie.Insert(b.ctx, b.root, key, value)
	if err != nil {
		return err
	}
	b.root = newRoot
	return nil
}

// Destroy removes accountPath's own entry and every storage cell nested
// under it, via a deferred prefix deletion replayed on Commit.
func (b *ReadWriteBatch) Destroy(accountPath nibble.Path) {
	b.RegisterDeleteByPrefix(accountPath)
}

// RegisterDeleteByPrefix queues a bulk deletion of every key starting
// with prefix, applied when Commit walks the pending deletions.
func (b *ReadWriteBatch) RegisterDeleteByPrefix(prefix nibble.Path) {
	b.pendingPrefixDeletes = append(b.pendingPrefixDeletes, prefix)
}

// BatchID returns this batch's id.
func (b *ReadWriteBatch) BatchID() uint32 { return b.ctx.BatchID() }

// Commit replays queued prefix deletions, publishes the new root, and
// releases the single-writer slot. opts.StateHash is expected to already
// reflect the pre-commit hook's Merkle computation over this batch's
// writes.
func (b *ReadWriteBatch) Commit(opts batch.CommitOptions) error {
	if b.closed {
		return fmt.Errorf("paged: batch already closed")
	}

	for _, prefix := range b.pendingPrefixDeletes {
		newRoot, err := trie.DeleteByPrefix(b.ctx, b.root, prefix)
		if err != nil {
			return err
		}
		b.root = newRoot
	}
	b.pendingPrefixDeletes = nil

	b.ctx.SetDataRoot(b.root)
	if err := b.ctx.Commit(opts); err != nil {
		return err
	}

	b.closed = true
	b.db.releaseWriter()
	return nil
}

// Abort discards every page allocated by this batch and releases the
// single-writer slot without publishing a root.
func (b *ReadWriteBatch) Abort() {
	if b.closed {
		return
	}
	b.ctx.Abort()
	b.closed = true
	b.db.releaseWriter()
}
