// Package batch implements the per-batch allocator and copy-on-write
// gate that sits between the trie/blockchain layers and the raw page
// arena: every page a write batch touches is either freshly allocated
// or copy-on-write'd exactly once per batch, and every page it makes
// unreachable is registered for future reuse once no live reader can
// still see it.
//
// Grounded on the teacher's pkg/storage/freelist.go (FreeList.PushTail /
// PopHead, maxSeq gating against consuming not-yet-committed frees) and
// pkg/storage/transaction.go (KVTX.Begin/Commit/Abort): the same
// "snapshot current durable state, mutate in memory, commit-or-revert"
// transaction shape, generalized from a single global free list guarded
// by one sequence counter to a per-batch abandoned-page registry gated
// by the minimum live reader's batch id instead of a transaction
// sequence number.
package batch

import (
	"fmt"
	"time"

	"github.com/paprikadb/paprika/internal/paprikalog"
	"github.com/paprikadb/paprika/internal/paprikametrics"
	"github.com/paprikadb/paprika/pkg/page"
	"github.com/paprikadb/paprika/pkg/pagemanager"
)

// Options configures a Context.
type Options struct {
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

// CommitOptions carries the fields a write batch stamps into its new
// root page.
type CommitOptions struct {
	StateHash   [32]byte
	BlockNumber uint64
}

// Context is the single in-flight write batch's view of the arena. Not
// safe for concurrent use — the spec's single-writer model means there
// is at most one live Context at a time.
type Context struct {
	pm      *pagemanager.Manager
	batchID uint32

	// minLiveReaderBatchID is the oldest batch id any currently open
	// read-only batch might still be reading from (invariant 6); pages
	// abandoned by batches older than this may be safely reclaimed.
	minLiveReaderBatchID uint32

	prevRoot page.RootPage

	dataRoot  page.DbAddress
	dirty     []page.DbAddress // every page allocated or COW'd this batch
	abandoned []page.DbAddress // pages this batch made unreachable

	log     *paprikalog.Logger
	metrics *paprikametrics.Metrics
}

// New opens a write batch at batchID, anchored at prevRoot (the most
// recently committed root), gated by minLiveReaderBatchID.
func New(pm *pagemanager.Manager, batchID uint32, prevRoot page.RootPage, minLiveReaderBatchID uint32, opts Options) *Context {
	return &Context{
		pm:                   pm,
		batchID:              batchID,
		minLiveReaderBatchID: minLiveReaderBatchID,
		prevRoot:             prevRoot,
		dataRoot:             prevRoot.DataRoot(),
		log:                  opts.logger().Component("batch"),
		metrics:              opts.metrics(),
	}
}

// GetAt delegates straight to the PageManager; reading a page never
// requires a batch-local copy.
func (c *Context) GetAt(addr page.DbAddress) page.Page { return c.pm.GetAt(addr) }

// GetAddress delegates straight to the PageManager.
func (c *Context) GetAddress(p page.Page) page.DbAddress { return c.pm.GetAddress(p) }

// GetNewPage allocates a fresh page stamped with this batch's id.
func (c *Context) GetNewPage() (page.Page, page.DbAddress, error) {
	p, addr, err := c.pm.GetClean()
	if err != nil {
		return nil, page.Null, err
	}
	p.SetBatchID(c.batchID)
	c.dirty = append(c.dirty, addr)
	return p, addr, nil
}

// GetWritableCopy returns a page the caller may mutate in place: if addr
// already belongs to this batch (it was allocated or copied earlier in
// the same batch), it is returned as-is; otherwise a fresh copy is made,
// the original is registered for future reuse, and the copy's address is
// returned in its place. Callers must always replace their stored
// reference to addr with the returned address.
func (c *Context) GetWritableCopy(addr page.DbAddress) (page.Page, page.DbAddress, error) {
	p := c.pm.GetAt(addr)
	if p.BatchID() == c.batchID {
		return p, addr, nil
	}

	newPage, newAddr, err := c.pm.GetClean()
	if err != nil {
		return nil, page.Null, err
	}
	p.CopyTo(newPage)
	newPage.SetBatchID(c.batchID)

	c.dirty = append(c.dirty, newAddr)
	c.RegisterForFutureReuse(addr)
	return newPage, newAddr, nil
}

// RegisterForFutureReuse marks addr as unreachable from this batch
// onward. It is not returned to the PageManager immediately — only once
// a future commit observes minLiveReaderBatchID has advanced past the
// batch that is doing the registering.
func (c *Context) RegisterForFutureReuse(addr page.DbAddress) {
	c.abandoned = append(c.abandoned, addr)
}

// SetDataRoot records the address of the new trie root page for this
// batch, to be stamped into the committed RootPage.
func (c *Context) SetDataRoot(addr page.DbAddress) { c.dataRoot = addr }

// DataRoot returns the trie root page address currently staged for commit.
func (c *Context) DataRoot() page.DbAddress { return c.dataRoot }

// BatchID returns this batch's id.
func (c *Context) BatchID() uint32 { return c.batchID }

// Commit durably persists this batch's changes: it collects the
// abandoned pages now safe to reclaim, chains this batch's own freshly
// abandoned pages into new AbandonedPage links, writes every dirty data
// page, writes and flushes the new root page (data before root), and
// only then hands the reclaimable pages back to the PageManager's free
// stack.
func (c *Context) Commit(opts CommitOptions) error {
	start := time.Now()

	reclaimable, keptHead := reclaimAbandonedChain(c.pm, c.prevRoot.AbandonedHead(), c.minLiveReaderBatchID)

	newHead, err := appendAbandonedChain(c, keptHead, c.abandoned)
	if err != nil {
		c.metrics.BatchCommitsTotal.WithLabelValues("aborted").Inc()
		return err
	}

	if err := c.pm.WritePages(c.dirty, pagemanager.FlushDataOnly); err != nil {
		c.metrics.BatchCommitsTotal.WithLabelValues("aborted").Inc()
		return fmt.Errorf("batch: flush data pages: %w", err)
	}

	slot := c.batchID % pagemanager.RingSize
	root := c.pm.RootSlot(slot)
	root.SetMagicVersion()
	root.SetBatchID(c.batchID)
	root.SetBlockNumber(opts.BlockNumber)
	root.SetStateHash(opts.StateHash)
	root.SetDataRoot(c.dataRoot)
	root.SetAbandonedHead(newHead)

	rootAddr := page.NewPageAddress(slot)
	if err := c.pm.WritePages([]page.DbAddress{rootAddr}, pagemanager.FlushDataAndRoot); err != nil {
		c.metrics.BatchCommitsTotal.WithLabelValues("aborted").Inc()
		return fmt.Errorf("batch: flush root page: %w", err)
	}

	c.pm.Reclaim(reclaimable)

	c.metrics.BatchCommitsTotal.WithLabelValues("committed").Inc()
	paprikametrics.ObserveSince(c.metrics.BatchCommitDuration, start)
	c.log.Info().
		Uint32("batch_id", c.batchID).
		Int("dirty_pages", len(c.dirty)).
		Int("abandoned_pages", len(c.abandoned)).
		Int("reclaimed_pages", len(reclaimable)).
		Msg("batch committed")
	return nil
}

// Abort discards this batch's changes. Every page it allocated was
// never linked into any reachable root, so all of them — both freshly
// allocated pages and the copy-on-write copies it made — are
// immediately safe to reclaim. The originals it copied from are left
// alone, since the previous root still references them.
func (c *Context) Abort() {
	c.pm.Reclaim(c.dirty)
	c.metrics.BatchCommitsTotal.WithLabelValues("aborted").Inc()
	c.log.Info().Uint32("batch_id", c.batchID).Msg("batch aborted")
}
