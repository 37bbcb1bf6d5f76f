package blockchain

import (
	"errors"

	"github.com/cespare/xxhash/v2"
	"github.com/paprikadb/paprika/pkg/batch"
	"github.com/paprikadb/paprika/pkg/bufferpool"
	"github.com/paprikadb/paprika/pkg/page"
	"github.com/paprikadb/paprika/pkg/trie"
)

// ErrWorldStateClosed is returned by any operation against a WorldState
// after a Commit that did not ask to stay open.
var ErrWorldStateClosed = errors.New("blockchain: world state already committed")

// WorldState is one pending block's mutable view of account and storage
// state: a speculative trie built over its own batch.Context, sharing
// the durable store's page arena but never itself committed to the
// arena's root ring. Single-threaded per instance, matching the
// reference engine's WorldState contract.
type WorldState struct {
	bc  *Blockchain
	ctx *batch.Context

	root       page.DbAddress
	parentHash [32]byte
	parent     *pendingBlock

	writeLog []writeOp
	closed   bool

	// cache short-circuits GetAccount/GetStorage for keys already written
	// by this WorldState, instead of re-walking the speculative trie.
	// Reset wholesale on DestroyAccount, since a SpanDictionary has no
	// prefix-delete primitive of its own; the trie stays authoritative
	// either way, so dropping unrelated cache entries costs only a cache
	// miss, never correctness.
	cache *bufferpool.SpanDictionary

	block *pendingBlock // set once Commit has run at least once
}

func cacheHash(key []byte) uint64 { return xxhash.Sum64(key) }

func (ws *WorldState) checkOpen() error {
	if ws.closed {
		return ErrWorldStateClosed
	}
	return nil
}

// GetAccount returns the account stored at addr, if any.
func (ws *WorldState) GetAccount(addr Address) (Account, bool) {
	if v, _, ok := ws.cache.TryGet(addr[:], cacheHash(addr[:])); ok {
		return mustDecodeAccount(v), true
	}
	raw, ok := trie.Get(ws.ctx, ws.root, AccountPath(addr))
	if !ok {
		return Account{}, false
	}
	return mustDecodeAccount(raw), true
}

// SetAccount inserts or overwrites addr's account.
func (ws *WorldState) SetAccount(addr Address, account Account) error {
	if err := ws.checkOpen(); err != nil {
		return err
	}
	encoded := account.EncodeRLP()
	newRoot, err := trie.Insert(ws.ctx, ws.root, AccountPath(addr), encoded)
	if err != nil {
		return err
	}
	ws.root = newRoot
	ws.writeLog = append(ws.writeLog, writeOp{kind: opSetAccount, addr: addr, value: encoded})
	ws.cache.Set(addr[:], cacheHash(addr[:]), encoded, 0)
	return nil
}

// DestroyAccount removes addr's account entry and every storage cell
// nested beneath it in one prefix sweep.
func (ws *WorldState) DestroyAccount(addr Address) error {
	if err := ws.checkOpen(); err != nil {
		return err
	}
	newRoot, err := trie.DeleteByPrefix(ws.ctx, ws.root, AccountPath(addr))
	if err != nil {
		return err
	}
	ws.root = newRoot
	ws.writeLog = append(ws.writeLog, writeOp{kind: opDestroyAccount, addr: addr})
	ws.resetCache()
	return nil
}

// GetStorage returns the raw value stored at (addr, slot), if any.
func (ws *WorldState) GetStorage(addr Address, slot StorageKey) ([]byte, bool) {
	key := storageCacheKey(addr, slot)
	if v, _, ok := ws.cache.TryGet(key, cacheHash(key)); ok {
		return v, true
	}
	return trie.Get(ws.ctx, ws.root, StoragePath(addr, slot))
}

// SetStorage inserts or overwrites the value at (addr, slot).
func (ws *WorldState) SetStorage(addr Address, slot StorageKey, value []byte) error {
	if err := ws.checkOpen(); err != nil {
		return err
	}
	newRoot, err := trie.Insert(ws.ctx, ws.root, StoragePath(addr, slot), value)
	if err != nil {
		return err
	}
	ws.root = newRoot
	ws.writeLog = append(ws.writeLog, writeOp{kind: opSetStorage, addr: addr, slot: slot, value: value})
	key := storageCacheKey(addr, slot)
	ws.cache.Set(key, cacheHash(key), value, 0)
	return nil
}

func storageCacheKey(addr Address, slot StorageKey) []byte {
	key := make([]byte, 0, len(addr)+len(slot))
	key = append(key, addr[:]...)
	key = append(key, slot[:]...)
	return key
}

// resetCache drops every cached read, trading a round of cache misses
// for correctness after a prefix delete a SpanDictionary cannot express
// directly.
func (ws *WorldState) resetCache() {
	ws.cache.Release()
	ws.cache = bufferpool.NewSpanDictionary(ws.bc.pool, bufferpool.SpanDictionaryOptions{})
}

// Commit runs the pre-commit hook over this block's trie, stamps
// blockNumber, and registers the block in the blockchain's pending DAG
// so a later Finalize can reach it. With keepOpen, the instance keeps
// accepting writes and may be committed again under a new block number
// (reindexing its entry in the pending DAG under the new hash); without
// it, the instance moves to Committed and rejects further writes.
func (ws *WorldState) Commit(blockNumber uint64, keepOpen bool) ([32]byte, error) {
	if err := ws.checkOpen(); err != nil {
		return [32]byte{}, err
	}

	hash, err := ws.bc.hasher.RootHash(ws.ctx, ws.root)
	if err != nil {
		return [32]byte{}, err
	}

	ws.bc.registerPending(ws, hash, blockNumber)

	if !keepOpen {
		ws.closed = true
		ws.cache.Release()
	}
	return hash, nil
}

// Discard abandons this WorldState without committing it: its
// speculative pages are reclaimed immediately and, if it was opened
// against a pending parent, that parent's reference count is released.
// Safe to call instead of Commit for a losing fork that never reached
// its own commit.
func (ws *WorldState) Discard() {
	if ws.closed {
		return
	}
	ws.closed = true
	ws.ctx.Abort()
	ws.cache.Release()
	if ws.parent != nil {
		ws.parent.refCount--
	}
}

// OpenPrefetcher returns a budget-bounded Prefetcher that lets execution
// warm this WorldState's trie pages ahead of need. Prefetching has no
// effect on correctness: GetAccount/GetStorage behave identically
// whether or not a path was prefetched first.
func (ws *WorldState) OpenPrefetcher() Prefetcher {
	return newPrefetcher(ws.ctx, ws.root, defaultPrefetchBudget)
}
