package blockchain

import (
	"github.com/paprikadb/paprika/pkg/batch"
	"github.com/paprikadb/paprika/pkg/paged"
)

// RawState is the unmerkleized writing path used for bulk/snap-sync
// imports: it mutates a real read-write batch directly against the
// durable store, bypassing both the pending DAG and the pre-commit
// hook's hash computation. The caller supplies an already-trusted state
// hash at Commit time (typically sourced from the chain being synced
// from), which is stamped into the new root page exactly as a normal
// WorldState's pre-commit-computed hash would be.
type RawState struct {
	rw     *paged.ReadWriteBatch
	closed bool
}

// SetAccount writes addr's account directly into the durable trie.
func (rs *RawState) SetAccount(addr Address, account Account) error {
	return rs.rw.Set(AccountPath(addr), account.EncodeRLP())
}

// SetStorage writes the value at (addr, slot) directly into the durable
// trie.
func (rs *RawState) SetStorage(addr Address, slot StorageKey, value []byte) error {
	return rs.rw.Set(StoragePath(addr, slot), value)
}

// DestroyAccount queues addr's account and all of its storage cells for
// removal, applied when Commit replays pending prefix deletions.
func (rs *RawState) DestroyAccount(addr Address) {
	rs.rw.Destroy(AccountPath(addr))
}

// Commit publishes blockNumber's root, stamped with the caller-supplied
// trustedStateHash rather than one computed by the pre-commit hook.
func (rs *RawState) Commit(blockNumber uint64, trustedStateHash [32]byte) error {
	if rs.closed {
		return ErrWorldStateClosed
	}
	rs.closed = true
	return rs.rw.Commit(batch.CommitOptions{StateHash: trustedStateHash, BlockNumber: blockNumber})
}

// Abort discards every write made through this RawState.
func (rs *RawState) Abort() {
	if rs.closed {
		return
	}
	rs.closed = true
	rs.rw.Abort()
}
