// Package bufferpool implements an in-memory page allocator and an
// append-only, page-chained multimap built on top of it. Unlike
// pkg/pagemanager's mmap arena, a Pool never touches disk: it exists to
// back the blockchain layer's short-lived per-block dictionaries, which
// are discarded (or merged into a commit) long before they would ever
// need durability.
//
// Grounded on the teacher's page-append discipline in pkg/storage (pages
// handed out one at a time, freed pages kept on a reuse list rather than
// returned to the OS) generalized to plain heap memory, and on
// ryogrid-bltree-go-for-embedding/bufmgr.go's hash-table-over-pages shape
// for the dictionary built on top (pkg/fixedmap here plays the role its
// hashTable/latch chain plays there, scaled down to the single-writer
// case this engine requires).
package bufferpool

import (
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/paprikadb/paprika/internal/paprikametrics"
	"github.com/paprikadb/paprika/pkg/page"
)

// Options configures a Pool.
type Options struct {
	// CaptureStackTraces records the call site of every Rent, included in
	// AssertCount's error when a leak is detected. Expensive; intended for
	// tests and debugging, not production use.
	CaptureStackTraces bool

	Metrics *paprikametrics.Metrics
}

func (o Options) metrics() *paprikametrics.Metrics {
	if o.Metrics != nil {
		return o.Metrics
	}
	return paprikametrics.Noop()
}

// Pool rents and returns fixed page.Size-byte pages backed by plain Go
// memory. Safe for concurrent use.
type Pool struct {
	mu sync.Mutex

	free []page.Page

	rented    int
	allocated int // total pages ever allocated, rented or not

	captureStacks bool
	stacks        map[*byte]string // keyed by &page[0]

	metrics *paprikametrics.Metrics
}

// New creates an empty Pool.
func New(opts Options) *Pool {
	p := &Pool{
		captureStacks: opts.CaptureStackTraces,
		metrics:       opts.metrics(),
	}
	if p.captureStacks {
		p.stacks = make(map[*byte]string)
	}
	return p
}

// Rent returns a zero-initialized page, either reused from the free list
// or freshly allocated.
func (p *Pool) Rent() page.Page {
	p.mu.Lock()
	defer p.mu.Unlock()

	var pg page.Page
	if n := len(p.free); n > 0 {
		pg = p.free[n-1]
		p.free = p.free[:n-1]
		pg.Clear()
	} else {
		pg = make(page.Page, page.Size)
		p.allocated++
	}

	p.rented++
	if p.captureStacks {
		p.stacks[&pg[0]] = string(debug.Stack())
	}
	p.metrics.BufferPoolPagesRented.Inc()
	p.metrics.BufferPoolAllocatedMB.Set(p.allocatedMBLocked())
	return pg
}

// Return releases pg back to the pool for reuse. pg must have come from
// Rent on this Pool and must not be used again afterward.
func (p *Pool) Return(pg page.Page) {
	if len(pg) != page.Size {
		panic("bufferpool: returned page has the wrong size")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.captureStacks {
		delete(p.stacks, &pg[0])
	}
	p.free = append(p.free, pg)
	p.rented--
	p.metrics.BufferPoolPagesRented.Dec()
}

// AllocatedMB returns the total memory, in megabytes, ever allocated by
// this pool (rented or sitting on the free list). It never shrinks.
func (p *Pool) AllocatedMB() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocatedMBLocked()
}

func (p *Pool) allocatedMBLocked() float64 {
	return float64(p.allocated) * float64(page.Size) / (1024 * 1024)
}

// RentedCount returns the number of pages currently rented out.
func (p *Pool) RentedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rented
}

// AssertCount fails with a descriptive error if the number of pages
// currently rented out does not equal want, for leak detection between
// test cases or at the end of a block's lifetime. When CaptureStackTraces
// was set, the error includes every outstanding Rent call site.
func (p *Pool) AssertCount(want int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rented == want {
		return nil
	}
	if !p.captureStacks {
		return fmt.Errorf("bufferpool: %d pages rented, want %d", p.rented, want)
	}

	var sites []string
	for _, s := range p.stacks {
		sites = append(sites, s)
	}
	return fmt.Errorf("bufferpool: %d pages rented, want %d; outstanding allocation sites:\n%s",
		p.rented, want, strings.Join(sites, "\n---\n"))
}
