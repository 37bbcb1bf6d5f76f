package bufferpool

import (
	"testing"

	"github.com/paprikadb/paprika/pkg/page"
)

func TestRentReturnsZeroedPage(t *testing.T) {
	pool := New(Options{})
	pg := pool.Rent()
	if len(pg) != page.Size {
		t.Fatalf("Rent() returned %d bytes, want %d", len(pg), page.Size)
	}
	for i, b := range pg {
		if b != 0 {
			t.Fatalf("Rent() byte %d = %d, want 0", i, b)
		}
	}
}

func TestReturnRecyclesPage(t *testing.T) {
	pool := New(Options{})
	pg := pool.Rent()
	copy(pg, []byte("dirty"))
	pool.Return(pg)

	allocatedAfterFirstRent := pool.AllocatedMB()
	if allocatedAfterFirstRent <= 0 {
		t.Fatalf("AllocatedMB() = %v, want > 0 after one allocation", allocatedAfterFirstRent)
	}

	reused := pool.Rent()
	for i, b := range reused {
		if b != 0 {
			t.Fatalf("reused page byte %d = %d, want 0 (Rent must re-zero)", i, b)
		}
	}

	// The second Rent() should have reused the returned backing array
	// rather than allocating a fresh one.
	if got := pool.AllocatedMB(); got != allocatedAfterFirstRent {
		t.Errorf("AllocatedMB() grew on a Rent() that should have reused a free page: %v -> %v", allocatedAfterFirstRent, got)
	}
}

func TestAssertCountDetectsLeak(t *testing.T) {
	pool := New(Options{})
	pg := pool.Rent()

	if err := pool.AssertCount(0); err == nil {
		t.Errorf("AssertCount(0) with one page still rented should fail")
	}

	pool.Return(pg)
	if err := pool.AssertCount(0); err != nil {
		t.Errorf("AssertCount(0) after Return() failed: %v", err)
	}
}

func TestAssertCountIncludesStackTraces(t *testing.T) {
	pool := New(Options{CaptureStackTraces: true})
	_ = pool.Rent()

	err := pool.AssertCount(0)
	if err == nil {
		t.Fatal("expected AssertCount to fail with one outstanding rental")
	}
	if len(err.Error()) < len("bufferpool: 1 pages rented, want 0") {
		t.Errorf("AssertCount() error missing detail: %v", err)
	}
}

func TestRentedCountTracksOutstandingPages(t *testing.T) {
	pool := New(Options{})
	if pool.RentedCount() != 0 {
		t.Fatalf("RentedCount() = %d, want 0", pool.RentedCount())
	}
	a := pool.Rent()
	b := pool.Rent()
	if pool.RentedCount() != 2 {
		t.Fatalf("RentedCount() = %d, want 2", pool.RentedCount())
	}
	pool.Return(a)
	if pool.RentedCount() != 1 {
		t.Fatalf("RentedCount() = %d, want 1", pool.RentedCount())
	}
	pool.Return(b)
	if pool.RentedCount() != 0 {
		t.Fatalf("RentedCount() = %d, want 0", pool.RentedCount())
	}
}
