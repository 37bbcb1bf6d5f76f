// Package paged implements the durable store: a ring of root pages
// giving each of the last pagemanager.RingSize committed batches its own
// historical snapshot, read-only batches that pin one of those snapshots,
// and a single read-write batch that mutates the trie and publishes a
// new root on commit.
//
// Grounded on the teacher's pkg/storage/transaction.go (KVTX.Begin /
// Commit / Abort): the same open/commit/abort state machine, generalized
// from one shared B-tree to a ring of independently addressable root
// snapshots. The read-only lookup-by-hash-falling-back-to-latest pattern
// follows pkg/version/store.go's GetVersionAsOf / GetLatestVersion,
// generalized from a time index to a state-hash search over the root
// ring.
package paged

import (
	"errors"
	"sync"

	"github.com/paprikadb/paprika/internal/paprikalog"
	"github.com/paprikadb/paprika/internal/paprikametrics"
	"github.com/paprikadb/paprika/pkg/batch"
	"github.com/paprikadb/paprika/pkg/page"
	"github.com/paprikadb/paprika/pkg/pagemanager"
)

// ErrNoRoots is returned by a read-only open against a db that has never
// had a read-write batch committed.
var ErrNoRoots = errors.New("paged: no committed roots yet")

// ErrBatchAlreadyOpen is returned by BeginNextBatch while another
// read-write batch is still open (single-writer invariant).
var ErrBatchAlreadyOpen = errors.New("paged: a read-write batch is already open")

// Options configures a Db.
type Options struct {
	Path    string
	Logger  *paprikalog.Logger
	Metrics *paprikametrics.Metrics
}

func (o Options) logger() *paprikalog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return paprikalog.Noop()
}

func (o Options) metrics() *paprikametrics.Metrics {
	if o.Metrics != nil {
		return o.Metrics
	}
	return paprikametrics.Noop()
}

// Db is a single-writer, multi-reader store over a pagemanager.Manager
// arena: root-ring lookups, reader ref-counting, and the one-at-a-time
// read-write batch.
type Db struct {
	mu sync.Mutex

	pm *pagemanager.Manager

	readerRefs map[uint32]int // batch id -> live ReadOnlyBatch count
	rwOpen     bool

	log     *paprikalog.Logger
	metrics *paprikametrics.Metrics
}

// New creates a fresh arena at opts.Path and its Db.
func New(opts Options) (*Db, error) {
	pm, err := pagemanager.New(pagemanager.Options{Path: opts.Path, Logger: opts.Logger, Metrics: opts.Metrics})
	if err != nil {
		return nil, err
	}
	return newDb(pm, opts), nil
}

// Open maps an existing arena at opts.Path and its Db.
func Open(opts Options) (*Db, error) {
	pm, err := pagemanager.Open(pagemanager.Options{Path: opts.Path, Logger: opts.Logger, Metrics: opts.Metrics})
	if err != nil {
		return nil, err
	}
	return newDb(pm, opts), nil
}

func newDb(pm *pagemanager.Manager, opts Options) *Db {
	return &Db{
		pm:         pm,
		readerRefs: make(map[uint32]int),
		log:        opts.logger().Component("paged-db"),
		metrics:    opts.metrics(),
	}
}

// Close unmaps the underlying arena. The caller must have released every
// ReadOnlyBatch and closed any open ReadWriteBatch first.
func (db *Db) Close() error { return db.pm.Close() }

// Manager exposes the underlying page arena for pkg/blockchain, which
// needs to open its own speculative batch.Context instances (one per
// pending block) ahead of this Db's own single-writer ring commit.
func (db *Db) Manager() *pagemanager.Manager { return db.pm }

// LatestRoot returns the most recently committed root, or ok=false for a
// db with no committed batches yet.
func (db *Db) LatestRoot() (page.RootPage, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.latestRealRoot()
}

// RootByStateHash returns the ring's root for hash, if still present in
// the history window.
func (db *Db) RootByStateHash(hash [32]byte) (page.RootPage, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.rootByStateHash(hash)
}

// isRealRoot reports whether a ring slot holds an actual commit rather
// than pagemanager.New's initial phantom stamp (batch ids 0..RingSize-1,
// assigned one per slot so the ring starts full). The first real
// read-write batch is therefore always assigned batch id RingSize.
func isRealRoot(r page.RootPage) bool {
	return r.BatchID() >= pagemanager.RingSize
}

func (db *Db) latestRealRoot() (page.RootPage, bool) {
	var best page.RootPage
	var bestID uint32
	found := false
	for i := uint32(0); i < pagemanager.RingSize; i++ {
		r := db.pm.RootSlot(i)
		if !isRealRoot(r) {
			continue
		}
		if !found || r.BatchID() > bestID {
			best, bestID, found = r, r.BatchID(), true
		}
	}
	return best, found
}

func (db *Db) rootByStateHash(hash [32]byte) (page.RootPage, bool) {
	for i := uint32(0); i < pagemanager.RingSize; i++ {
		r := db.pm.RootSlot(i)
		if !isRealRoot(r) {
			continue
		}
		if r.StateHash() == hash {
			return r, true
		}
	}
	return page.RootPage{}, false
}

// HasState reports whether hash is still present in the history window.
func (db *Db) HasState(hash [32]byte) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, ok := db.rootByStateHash(hash)
	return ok
}

// BeginReadOnlyBatch pins the latest committed root. Fails with
// ErrNoRoots for a db with no committed batches yet.
func (db *Db) BeginReadOnlyBatch() (*ReadOnlyBatch, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	root, ok := db.latestRealRoot()
	if !ok {
		return nil, ErrNoRoots
	}
	return db.pinRootLocked(root), nil
}

// BeginReadOnlyBatchOrLatest searches the ring for hash, falling back to
// the latest committed root if hash is not (or no longer) present.
func (db *Db) BeginReadOnlyBatchOrLatest(hash [32]byte) (*ReadOnlyBatch, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	root, ok := db.rootByStateHash(hash)
	if !ok {
		root, ok = db.latestRealRoot()
		if !ok {
			return nil, ErrNoRoots
		}
	}
	return db.pinRootLocked(root), nil
}

func (db *Db) pinRootLocked(root page.RootPage) *ReadOnlyBatch {
	db.readerRefs[root.BatchID()]++
	db.metrics.ReadOnlyBatchesActive.Inc()
	return &ReadOnlyBatch{db: db, root: root}
}

func (db *Db) release(batchID uint32) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.readerRefs[batchID]--
	if db.readerRefs[batchID] <= 0 {
		delete(db.readerRefs, batchID)
	}
	db.metrics.ReadOnlyBatchesActive.Dec()
}

// CountReadOnlyBatches returns the number of currently live read-only
// batches, for leak detection.
func (db *Db) CountReadOnlyBatches() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	total := 0
	for _, n := range db.readerRefs {
		total += n
	}
	return total
}

// minLiveReaderBatchID returns the lowest batch id with a live reader
// pinned. With no live readers, nothing protects batches older than the
// latest commit, so old abandoned chains are fully reclaimable.
func (db *Db) minLiveReaderBatchID() uint32 {
	min := uint32(0)
	found := false
	for id, n := range db.readerRefs {
		if n == 0 {
			continue
		}
		if !found || id < min {
			min, found = id, true
		}
	}
	if found {
		return min
	}
	if root, ok := db.latestRealRoot(); ok {
		return root.BatchID() + 1
	}
	return pagemanager.RingSize
}

// BeginNextBatch opens the single read-write batch, anchored at the
// latest committed root (or an empty trie, for the first-ever batch).
func (db *Db) BeginNextBatch() (*ReadWriteBatch, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.rwOpen {
		return nil, ErrBatchAlreadyOpen
	}

	var prevRoot page.RootPage
	var nextID uint32
	if root, ok := db.latestRealRoot(); ok {
		prevRoot = root
		nextID = root.BatchID() + 1
	} else {
		prevRoot = db.pm.RootSlot(pagemanager.RingSize - 1)
		nextID = pagemanager.RingSize
	}

	ctx := batch.New(db.pm, nextID, prevRoot, db.minLiveReaderBatchID(), batch.Options{Logger: db.log, Metrics: db.metrics})
	db.rwOpen = true

	db.log.Debug().Uint32("batch_id", nextID).Msg("read-write batch opened")
	return &ReadWriteBatch{db: db, ctx: ctx, root: prevRoot.DataRoot()}, nil
}

func (db *Db) releaseWriter() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.rwOpen = false
}
