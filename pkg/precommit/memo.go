package precommit

import (
	"sync"

	"github.com/paprikadb/paprika/pkg/page"
)

// memoKey identifies a node's content for caching purposes. addr alone
// is not enough: pagemanager reclaims and reuses abandoned addresses
// across later batches under copy-on-write, so two different nodes can
// share an address over the engine's lifetime. Pairing addr with the
// page's batch id (stamped once at allocation and never changed
// in-place) makes the pair stable for as long as the page is reachable.
type memoKey struct {
	addr    page.DbAddress
	batchID uint32
}

// RlpMemo caches a node's RLP encoding keyed by (address, batch id), so
// a PreCommit hook that walks a trie repeatedly across neighboring
// blocks does not re-encode subtrees no batch since has touched. Safe
// for concurrent use by the Hasher's parallel hashing modes.
type RlpMemo struct {
	mu      sync.Mutex
	entries map[memoKey][]byte
}

func newRlpMemo() *RlpMemo {
	return &RlpMemo{entries: make(map[memoKey][]byte)}
}

func (m *RlpMemo) get(k memoKey) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[k]
	return v, ok
}

func (m *RlpMemo) put(k memoKey, v []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[k] = v
}

// Len returns the number of memoized node encodings, for tests and
// diagnostics.
func (m *RlpMemo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
