package batch

import (
	"path/filepath"
	"testing"

	"github.com/paprikadb/paprika/pkg/page"
	"github.com/paprikadb/paprika/pkg/pagemanager"
)

func newTestPageManager(t *testing.T) *pagemanager.Manager {
	t.Helper()
	pm, err := pagemanager.New(pagemanager.Options{Path: filepath.Join(t.TempDir(), "arena.paprika")})
	if err != nil {
		t.Fatalf("pagemanager.New() failed: %v", err)
	}
	t.Cleanup(func() { _ = pm.Close() })
	return pm
}

func TestGetNewPageStampsBatchID(t *testing.T) {
	pm := newTestPageManager(t)
	ctx := New(pm, 1, pm.RootSlot(0), 0, Options{})

	p, addr, err := ctx.GetNewPage()
	if err != nil {
		t.Fatalf("GetNewPage() failed: %v", err)
	}
	if p.BatchID() != 1 {
		t.Errorf("BatchID() = %d, want 1", p.BatchID())
	}
	if addr.IsNull() {
		t.Errorf("expected a non-null address")
	}
}

func TestGetWritableCopyReusesOwnBatchPage(t *testing.T) {
	pm := newTestPageManager(t)
	ctx := New(pm, 1, pm.RootSlot(0), 0, Options{})

	_, addr, err := ctx.GetNewPage()
	if err != nil {
		t.Fatalf("GetNewPage() failed: %v", err)
	}

	_, addr2, err := ctx.GetWritableCopy(addr)
	if err != nil {
		t.Fatalf("GetWritableCopy() failed: %v", err)
	}
	if addr2 != addr {
		t.Errorf("GetWritableCopy should return the same page when already owned by this batch")
	}
}

func TestGetWritableCopyCopiesForeignBatchPage(t *testing.T) {
	pm := newTestPageManager(t)

	older := New(pm, 1, pm.RootSlot(0), 0, Options{})
	p, addr, err := older.GetNewPage()
	if err != nil {
		t.Fatalf("GetNewPage() failed: %v", err)
	}
	p[50] = 0x42

	current := New(pm, 2, pm.RootSlot(0), 0, Options{})
	copyPage, copyAddr, err := current.GetWritableCopy(addr)
	if err != nil {
		t.Fatalf("GetWritableCopy() failed: %v", err)
	}
	if copyAddr == addr {
		t.Errorf("expected a new address for a cross-batch copy")
	}
	if copyPage[50] != 0x42 {
		t.Errorf("COW copy lost original contents")
	}
	if copyPage.BatchID() != 2 {
		t.Errorf("COW copy should be stamped with the current batch id")
	}
}

func TestCommitWritesRootAndAdvancesBatch(t *testing.T) {
	pm := newTestPageManager(t)
	ctx := New(pm, 1, pm.RootSlot(0), 0, Options{})

	_, dataAddr, err := ctx.GetNewPage()
	if err != nil {
		t.Fatalf("GetNewPage() failed: %v", err)
	}
	ctx.SetDataRoot(dataAddr)

	hash := [32]byte{9, 9, 9}
	if err := ctx.Commit(CommitOptions{StateHash: hash, BlockNumber: 7}); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	root := pm.RootSlot(1 % pagemanager.RingSize)
	if root.BatchID() != 1 {
		t.Errorf("root BatchID() = %d, want 1", root.BatchID())
	}
	if root.BlockNumber() != 7 {
		t.Errorf("root BlockNumber() = %d, want 7", root.BlockNumber())
	}
	if root.StateHash() != hash {
		t.Errorf("root StateHash() mismatch")
	}
	if root.DataRoot() != dataAddr {
		t.Errorf("root DataRoot() = %v, want %v", root.DataRoot(), dataAddr)
	}
}

func TestCommitChainsAbandonedPages(t *testing.T) {
	pm := newTestPageManager(t)

	batch1 := New(pm, 1, pm.RootSlot(0), 0, Options{})
	_, toAbandon, err := batch1.GetNewPage()
	if err != nil {
		t.Fatalf("GetNewPage() failed: %v", err)
	}
	_, dataAddr, err := batch1.GetNewPage()
	if err != nil {
		t.Fatalf("GetNewPage() failed: %v", err)
	}
	batch1.SetDataRoot(dataAddr)
	batch1.RegisterForFutureReuse(toAbandon)

	if err := batch1.Commit(CommitOptions{BlockNumber: 1}); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	root := pm.RootSlot(1 % pagemanager.RingSize)
	if root.AbandonedHead().IsNull() {
		t.Fatalf("expected a non-null abandoned head after registering a page")
	}

	link := page.AsAbandonedPage(pm.GetAt(root.AbandonedHead()))
	if link.Count() != 1 || link.At(0) != toAbandon {
		t.Errorf("abandoned chain does not record the registered page")
	}
}

func TestCommitReclaimsOldAbandonedPagesPastWatermark(t *testing.T) {
	pm := newTestPageManager(t)

	batch1 := New(pm, 1, pm.RootSlot(0), 0, Options{})
	_, toAbandon, err := batch1.GetNewPage()
	if err != nil {
		t.Fatalf("GetNewPage() failed: %v", err)
	}
	_, dataAddr1, err := batch1.GetNewPage()
	if err != nil {
		t.Fatalf("GetNewPage() failed: %v", err)
	}
	batch1.SetDataRoot(dataAddr1)
	batch1.RegisterForFutureReuse(toAbandon)
	if err := batch1.Commit(CommitOptions{BlockNumber: 1}); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	prevRoot := pm.RootSlot(1 % pagemanager.RingSize)
	// minLiveReaderBatchID = 2 means nothing from batch 1 is protected anymore.
	batch2 := New(pm, 2, prevRoot, 2, Options{})
	_, dataAddr2, err := batch2.GetNewPage()
	if err != nil {
		t.Fatalf("GetNewPage() failed: %v", err)
	}
	batch2.SetDataRoot(dataAddr2)
	if err := batch2.Commit(CommitOptions{BlockNumber: 2}); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	root2 := pm.RootSlot(2 % pagemanager.RingSize)
	if !root2.AbandonedHead().IsNull() {
		t.Errorf("expected the reclaimed-past-watermark chain to be empty, got head %v", root2.AbandonedHead())
	}
}

func TestAbortReclaimsAllocatedPages(t *testing.T) {
	pm := newTestPageManager(t)
	before := pm.PageCount()

	ctx := New(pm, 1, pm.RootSlot(0), 0, Options{})
	if _, _, err := ctx.GetNewPage(); err != nil {
		t.Fatalf("GetNewPage() failed: %v", err)
	}
	ctx.Abort()

	// A subsequent GetClean should reuse the aborted page rather than
	// growing the arena further.
	_, _, err := pm.GetClean()
	if err != nil {
		t.Fatalf("GetClean() failed: %v", err)
	}
	if pm.PageCount() != before+1 {
		t.Errorf("PageCount() = %d, want %d (aborted page should have been reused)", pm.PageCount(), before+1)
	}
}
