// Package blockchain implements the in-memory DAG of pending WorldStates
// sitting in front of pkg/paged's single durable root: children hash
// their parent's state, accumulate writes against their own speculative
// trie, and are only walked into the durable store once Finalize names
// the winning chain.
//
// Grounded on the teacher's pkg/version/store.go ancestor-chain walking
// (GetVersionAsOf climbing a linear version history), generalized from a
// flat list to a branching DAG of pending blocks whose finalized tail
// collapses back into pkg/paged's own linear batch-id sequence. The
// finalize journal is pkg/wal repurposed wholesale (see journal.go).
package blockchain

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paprikadb/paprika/internal/paprikalog"
	"github.com/paprikadb/paprika/internal/paprikametrics"
	"github.com/paprikadb/paprika/pkg/batch"
	"github.com/paprikadb/paprika/pkg/bufferpool"
	"github.com/paprikadb/paprika/pkg/paged"
	"github.com/paprikadb/paprika/pkg/page"
	"github.com/paprikadb/paprika/pkg/pagemanager"
	"github.com/paprikadb/paprika/pkg/precommit"
)

// GenesisParentHash is the sentinel parent hash naming "no parent": a
// brand-new chain's first block. A genuine Keccak-256 digest is never
// all zero, so this never collides with a real state hash, including
// the canonical empty-trie hash (which is itself a Keccak digest, not
// the zero value).
var GenesisParentHash = [32]byte{}

var (
	// ErrUnknownParent is returned by StartNew when parentHash names
	// neither a pending WorldState nor a persisted root still in the
	// history window.
	ErrUnknownParent = errors.New("blockchain: unknown parent hash")
	// ErrUnknownState is returned by StartReadOnly/Finalize when hash
	// names neither a pending nor a persisted state.
	ErrUnknownState = errors.New("blockchain: unknown state hash")
)

// Options configures a Blockchain.
type Options struct {
	// JournalPath roots the finalize-progress journal. Empty disables
	// it (Record becomes a no-op); fine for tests and ephemeral chains.
	JournalPath string
	Hasher      precommit.Options
	Logger      *paprikalog.Logger
	Metrics     *paprikametrics.Metrics
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

type finalizeRequest struct {
	hash   [32]byte
	result chan error
}

// Blockchain owns the pending-block DAG in front of a durable *paged.Db:
// it is the single shared precommit.Hasher (so RlpMemo survives across
// blocks, per the reference engine's "siblings unchanged this block need
// not be rehashed next block" rule), the staging batch id allocator, the
// finalize journal, and the background finalizer goroutine.
type Blockchain struct {
	db      *paged.Db
	hasher  *precommit.Hasher
	journal *Journal
	log     *paprikalog.Logger
	metrics *paprikametrics.Metrics

	// pool backs every pending WorldState's short-lived read cache: one
	// SpanDictionary per WorldState, rented from here and returned the
	// moment that WorldState commits (without keepOpen) or is discarded.
	pool *bufferpool.Pool

	mu               sync.Mutex
	pending          map[[32]byte]*pendingBlock
	lastFlushedBlock uint64
	waiters          map[uint64][]chan error

	stagingIDCounter uint32

	finalizeCh chan finalizeRequest
	closeCh    chan struct{}
	flusherWG  sync.WaitGroup
}

// New opens a Blockchain in front of db.
func New(db *paged.Db, opts Options) (*Blockchain, error) {
	j, err := OpenJournal(opts.JournalPath)
	if err != nil {
		return nil, err
	}

	bc := &Blockchain{
		db:               db,
		hasher:           precommit.NewHasher(opts.Hasher),
		journal:          j,
		log:              opts.logger().Component("blockchain"),
		metrics:          opts.metrics(),
		pool:             bufferpool.New(bufferpool.Options{Metrics: opts.metrics()}),
		pending:          make(map[[32]byte]*pendingBlock),
		waiters:          make(map[uint64][]chan error),
		stagingIDCounter: math.MaxUint32,
		finalizeCh:       make(chan finalizeRequest, 64),
		closeCh:          make(chan struct{}),
	}

	if root, ok := db.LatestRoot(); ok {
		bc.lastFlushedBlock = root.BlockNumber()
	}

	bc.flusherWG.Add(1)
	go bc.runFlusher()
	return bc, nil
}

// nextStagingID allocates a batch id for a speculative batch.Context.
// Staging ids count down from math.MaxUint32 while the durable store's
// real commit ids count up from pagemanager.RingSize; kept in disjoint
// ranges so the precommit memo's (address, batch id) key never aliases
// a staging page against an unrelated durably-committed one.
func (bc *Blockchain) nextStagingID() uint32 {
	return atomic.AddUint32(&bc.stagingIDCounter, ^uint32(0)) // -1, wrapping never reached in practice
}

// StartNew opens a new pending WorldState as a child of parentHash,
// which must name either a currently pending WorldState or a persisted
// root still within the history window. GenesisParentHash is only valid
// against a db with no committed batches yet.
func (bc *Blockchain) StartNew(parentHash [32]byte) (*WorldState, error) {
	bc.mu.Lock()

	var prevRoot page.RootPage
	var startRoot page.DbAddress
	var parent *pendingBlock

	switch {
	case parentHash == GenesisParentHash:
		if _, ok := bc.db.LatestRoot(); ok {
			bc.mu.Unlock()
			return nil, ErrUnknownParent
		}
		prevRoot = syntheticRootPage(page.Null, 0)
		startRoot = page.Null
	default:
		if pb, ok := bc.pending[parentHash]; ok {
			pb.refCount++
			parent = pb
			prevRoot = syntheticRootPage(pb.root, 0)
			startRoot = pb.root
		} else if root, ok := bc.db.RootByStateHash(parentHash); ok {
			prevRoot = root
			startRoot = root.DataRoot()
		} else {
			bc.mu.Unlock()
			return nil, ErrUnknownParent
		}
	}

	stagingID := bc.nextStagingID()
	bc.mu.Unlock()

	ctx := batch.New(bc.db.Manager(), stagingID, prevRoot, 0, batch.Options{Logger: bc.log, Metrics: bc.metrics})
	cache := bufferpool.NewSpanDictionary(bc.pool, bufferpool.SpanDictionaryOptions{})
	return &WorldState{bc: bc, ctx: ctx, root: startRoot, parentHash: parentHash, parent: parent, cache: cache}, nil
}

// StartRaw opens the unmerkleized bulk-import path: a real read-write
// batch against the durable store, bypassing both the pending DAG and
// the pre-commit hook.
func (bc *Blockchain) StartRaw() (*RawState, error) {
	rw, err := bc.db.BeginNextBatch()
	if err != nil {
		return nil, err
	}
	return &RawState{rw: rw}, nil
}

// StartReadOnly pins the persisted root whose state hash is exactly
// hash, failing with ErrUnknownState if it is not (or no longer)
// present in the history window. Pending (not yet finalized) states are
// not reachable through this call.
func (bc *Blockchain) StartReadOnly(hash [32]byte) (*ReadOnlyWorldState, error) {
	rb, err := bc.db.BeginReadOnlyBatchOrLatest(hash)
	if err != nil {
		return nil, err
	}
	if rb.StateHash() != hash {
		rb.Release()
		return nil, ErrUnknownState
	}
	return &ReadOnlyWorldState{rb: rb}, nil
}

// BuildReadOnlyAccessor pins every persisted root currently in the
// history ring, so recent blocks' hashes stay reachable immediately
// after a restart rather than only after they are next referenced.
// Callers must Dispose each returned accessor once done.
func (bc *Blockchain) BuildReadOnlyAccessor() ([]*ReadOnlyWorldState, error) {
	pm := bc.db.Manager()
	var out []*ReadOnlyWorldState
	for i := uint32(0); i < pagemanager.RingSize; i++ {
		root := pm.RootSlot(i)
		if root.BatchID() < pagemanager.RingSize {
			continue // phantom stamp from a freshly created arena, not a real commit
		}
		rb, err := bc.db.BeginReadOnlyBatchOrLatest(root.StateHash())
		if err != nil {
			continue
		}
		out = append(out, &ReadOnlyWorldState{rb: rb})
	}
	return out, nil
}

// HasState reports whether hash names a state reachable right now,
// either still pending or already persisted.
func (bc *Blockchain) HasState(hash [32]byte) bool {
	bc.mu.Lock()
	_, pending := bc.pending[hash]
	bc.mu.Unlock()
	return pending || bc.db.HasState(hash)
}

// registerPending indexes ws's most recent commit in the pending DAG,
// reindexing under the new hash on a keepOpen recommit.
func (bc *Blockchain) registerPending(ws *WorldState, hash [32]byte, blockNumber uint64) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	pb := ws.block
	if pb == nil {
		pb = &pendingBlock{parentHash: ws.parentHash, parent: ws.parent}
		ws.block = pb
	} else {
		delete(bc.pending, pb.hash)
	}

	pb.hash = hash
	pb.blockNumber = blockNumber
	pb.root = ws.root
	pb.writeLog = append([]writeOp(nil), ws.writeLog...)

	bc.pending[hash] = pb
	bc.metrics.PendingDAGDepth.Set(float64(len(bc.pending)))
}

// Finalize selects the unique chain from the current persisted root to
// the pending block named by hash, serializes each block into its own
// durable batch in parent-to-child order, and publishes the new root.
// It returns a channel that receives the terminal error (nil on
// success) once the finalizer has processed the request.
func (bc *Blockchain) Finalize(hash [32]byte) <-chan error {
	result := make(chan error, 1)
	select {
	case bc.finalizeCh <- finalizeRequest{hash: hash, result: result}:
	case <-bc.closeCh:
		result <- errors.New("blockchain: closed")
	}
	return result
}

func (bc *Blockchain) runFlusher() {
	defer bc.flusherWG.Done()
	for {
		select {
		case req := <-bc.finalizeCh:
			req.result <- bc.doFinalize(req.hash)
		case <-bc.closeCh:
			for {
				select {
				case req := <-bc.finalizeCh:
					req.result <- bc.doFinalize(req.hash)
				default:
					return
				}
			}
		}
	}
}

func (bc *Blockchain) doFinalize(hash [32]byte) error {
	bc.mu.Lock()
	pb, ok := bc.pending[hash]
	if !ok {
		bc.mu.Unlock()
		if bc.db.HasState(hash) {
			return nil
		}
		return ErrUnknownState
	}

	var chain []*pendingBlock
	for cur := pb; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	bc.mu.Unlock()

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	start := time.Now()
	for i, block := range chain {
		if err := bc.finalizeOne(block); err != nil {
			// Fail the waiters of this block and of every block after it
			// in the chain, since none of them can be flushed now.
			bc.mu.Lock()
			var failed []chan error
			for _, b := range chain[i:] {
				failed = append(failed, bc.waiters[b.blockNumber]...)
				delete(bc.waiters, b.blockNumber)
			}
			bc.mu.Unlock()
			for _, ch := range failed {
				ch <- err
				close(ch)
			}
			return err
		}
	}
	paprikametrics.ObserveSince(bc.metrics.FinalizeDuration, start)
	return nil
}

func (bc *Blockchain) finalizeOne(block *pendingBlock) error {
	if bc.db.HasState(block.hash) {
		bc.dropPending(block)
		return nil
	}

	if err := bc.journal.Record(JournalEntry{
		LSN:         bc.journal.NextLSN(),
		OpType:      OpEnteredFinalize,
		BlockNumber: block.blockNumber,
		BlockHash:   block.hash,
	}); err != nil {
		return err
	}

	rw, err := bc.db.BeginNextBatch()
	if err != nil {
		return err
	}
	for _, op := range block.writeLog {
		switch op.kind {
		case opSetAccount:
			err = rw.Set(AccountPath(op.addr), op.value)
		case opSetStorage:
			err = rw.Set(StoragePath(op.addr, op.slot), op.value)
		case opDestroyAccount:
			rw.Destroy(AccountPath(op.addr))
		}
		if err != nil {
			rw.Abort()
			return err
		}
	}

	if err := rw.Commit(batch.CommitOptions{StateHash: block.hash, BlockNumber: block.blockNumber}); err != nil {
		return err
	}

	if err := bc.journal.Record(JournalEntry{
		LSN:         bc.journal.NextLSN(),
		OpType:      OpFinalized,
		BlockNumber: block.blockNumber,
		BatchID:     rw.BatchID(),
		BlockHash:   block.hash,
	}); err != nil {
		// The batch is already durably committed; a journal write
		// failure here only degrades restart bookkeeping, not
		// correctness, so it is logged rather than surfaced.
		bc.log.Error().Err(err).Uint64("block_number", block.blockNumber).Msg("finalize journal record failed")
	}

	bc.metrics.FinalizeBlocksTotal.Inc()
	bc.dropPending(block)
	bc.advanceFlushed(block.blockNumber)
	return nil
}

func (bc *Blockchain) dropPending(block *pendingBlock) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	delete(bc.pending, block.hash)
	bc.metrics.PendingDAGDepth.Set(float64(len(bc.pending)))
}

func (bc *Blockchain) advanceFlushed(blockNumber uint64) {
	bc.mu.Lock()
	if blockNumber > bc.lastFlushedBlock {
		bc.lastFlushedBlock = blockNumber
	}
	var ready []chan error
	for bn, chans := range bc.waiters {
		if bn <= bc.lastFlushedBlock {
			ready = append(ready, chans...)
			delete(bc.waiters, bn)
		}
	}
	bc.mu.Unlock()

	for _, ch := range ready {
		ch <- nil
		close(ch)
	}
}

// WaitTillFlush returns a channel that receives nil once blockNumber has
// been durably committed to the paged store (immediately, if it already
// has).
func (bc *Blockchain) WaitTillFlush(blockNumber uint64) <-chan error {
	bc.mu.Lock()
	if blockNumber <= bc.lastFlushedBlock {
		bc.mu.Unlock()
		ch := make(chan error, 1)
		ch <- nil
		return ch
	}
	ch := make(chan error, 1)
	bc.waiters[blockNumber] = append(bc.waiters[blockNumber], ch)
	bc.mu.Unlock()
	return ch
}

// Close stops the background finalizer, waiting for it to drain any
// request already accepted, then closes the finalize journal.
func (bc *Blockchain) Close() error {
	close(bc.closeCh)
	bc.flusherWG.Wait()
	return bc.journal.Close()
}

// ReadOnlyWorldState is a pinned, read-only view of one persisted root.
type ReadOnlyWorldState struct {
	rb *paged.ReadOnlyBatch
}

// GetAccount returns addr's account, if any.
func (r *ReadOnlyWorldState) GetAccount(addr Address) (Account, bool) {
	raw, ok := r.rb.TryGet(AccountPath(addr))
	if !ok {
		return Account{}, false
	}
	return mustDecodeAccount(raw), true
}

// GetStorage returns the value at (addr, slot), if any.
func (r *ReadOnlyWorldState) GetStorage(addr Address, slot StorageKey) ([]byte, bool) {
	return r.rb.TryGet(StoragePath(addr, slot))
}

// BlockNumber returns the pinned snapshot's block number.
func (r *ReadOnlyWorldState) BlockNumber() uint64 { return r.rb.BlockNumber() }

// StateHash returns the pinned snapshot's state hash.
func (r *ReadOnlyWorldState) StateHash() [32]byte { return r.rb.StateHash() }

// Dispose releases the pinned snapshot.
func (r *ReadOnlyWorldState) Dispose() { r.rb.Release() }
