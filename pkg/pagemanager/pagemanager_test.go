package pagemanager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paprikadb/paprika/pkg/page"
)

func writeJunkFile(path string, size int) error {
	return os.WriteFile(path, make([]byte, size), 0o644)
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	m, err := New(Options{Path: filepath.Join(dir, "arena.paprika")})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestNewInitializesRootRing(t *testing.T) {
	m := newTestManager(t)
	if m.PageCount() < RingSize {
		t.Fatalf("PageCount() = %d, want at least %d", m.PageCount(), RingSize)
	}
	for i := uint32(0); i < RingSize; i++ {
		root := m.RootSlot(i)
		if root.IsEmpty() {
			t.Errorf("root slot %d should be initialized", i)
		}
		if root.BatchID() != i {
			t.Errorf("root slot %d has batch id %d, want %d", i, root.BatchID(), i)
		}
	}
}

func TestGetCleanGrowsArenaAndZeroes(t *testing.T) {
	m := newTestManager(t)
	before := m.PageCount()

	p, addr, err := m.GetClean()
	if err != nil {
		t.Fatalf("GetClean() failed: %v", err)
	}
	if addr.IsSamePage() {
		t.Fatalf("GetClean should return a page-index address")
	}
	for _, b := range p {
		if b != 0 {
			t.Fatalf("fresh page is not zeroed")
		}
	}

	p[100] = 0xAB
	fetched := m.GetAt(addr)
	if fetched[100] != 0xAB {
		t.Errorf("GetAt did not return the same backing memory as GetClean")
	}
	if m.PageCount() <= before {
		t.Errorf("PageCount() did not grow: before=%d after=%d", before, m.PageCount())
	}
}

func TestGetAddressRoundTrip(t *testing.T) {
	m := newTestManager(t)
	p, addr, err := m.GetClean()
	if err != nil {
		t.Fatalf("GetClean() failed: %v", err)
	}
	got := m.GetAddress(p)
	if got != addr {
		t.Errorf("GetAddress() = %v, want %v", got, addr)
	}
}

func TestReclaimFeedsGetClean(t *testing.T) {
	m := newTestManager(t)
	_, addr1, err := m.GetClean()
	if err != nil {
		t.Fatalf("GetClean() failed: %v", err)
	}

	m.Reclaim([]page.DbAddress{addr1})

	_, addr2, err := m.GetClean()
	if err != nil {
		t.Fatalf("GetClean() failed: %v", err)
	}
	if addr2 != addr1 {
		t.Errorf("expected reclaimed address %v to be reused, got %v", addr1, addr2)
	}
}

func TestWritePagesFlushesWithoutError(t *testing.T) {
	m := newTestManager(t)
	_, addr, err := m.GetClean()
	if err != nil {
		t.Fatalf("GetClean() failed: %v", err)
	}
	if err := m.WritePages([]page.DbAddress{addr}, FlushDataOnly); err != nil {
		t.Errorf("WritePages(FlushDataOnly) failed: %v", err)
	}
	if err := m.WritePages([]page.DbAddress{addr}, FlushDataAndRoot); err != nil {
		t.Errorf("WritePages(FlushDataAndRoot) failed: %v", err)
	}
}

func TestOpenRejectsNonPageAlignedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.paprika")
	m := newTestManager(t)
	_ = m

	// Build a file that is not a multiple of the page size.
	if err := writeJunkFile(path, page.Size+1); err != nil {
		t.Fatalf("writeJunkFile: %v", err)
	}
	if _, err := Open(Options{Path: path}); err == nil {
		t.Errorf("expected Open to reject a non-page-aligned file")
	}
}
