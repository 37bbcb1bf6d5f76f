// Package pagemanager owns the memory-mapped arena backing a Paprika
// store: a growable file of fixed-size pages, a ring of root pages at
// the front of the arena, and a stack of reclaimed page addresses that
// the batch layer (pkg/batch) feeds back in once they are safe to reuse.
//
// Grounded on the teacher's pkg/storage/kv.go (mmap.chunks, extendMmap,
// pageRead/pageWrite/pageAppend/pageAlloc): the same "mmap a growable
// file, hand out page-sized slices, append new pages past the flushed
// high-water mark" shape, generalized from a single growing B-tree file
// with one meta page to a fixed-size-page arena with a ring of root
// pages (RingSize of them) and typed data pages past the ring. Uses
// edsrzf/mmap-go in place of the teacher's raw syscall.Mmap, matching
// the portable mmap dependency carried by this corpus's larger chain
// clients.
package pagemanager

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/edsrzf/mmap-go"

	"github.com/paprikadb/paprika/internal/paprikalog"
	"github.com/paprikadb/paprika/internal/paprikametrics"
	"github.com/paprikadb/paprika/pkg/page"
)

// RingSize is the number of root-page slots kept at the front of the
// arena, i.e. the depth of the historical-root window (invariant 2: a
// read-only batch may be opened against any of the last RingSize
// committed roots).
const RingSize = 16

// growthPages is how many pages a single arena extension adds; every
// extension adds the same fixed amount (no doubling).
const growthPages = 1024

// Options configures a Manager. Reused across Open and New.
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

// Manager owns the arena's file handle and mmap region. It is not safe
// for concurrent mutation: per the single-writer model, exactly one
// writer batch at a time may call GetClean/Reclaim/grow, though many
// readers may call GetAt/GetAddress concurrently with it (invariant 3).
type Manager struct {
	mu sync.RWMutex

	path string
	file *os.File
	mm   mmap.MMap

	pageCount uint32 // logical number of pages allocated so far, including the root ring
	mapped    uint32 // physical capacity of mm, in pages (>= pageCount)

	reclaimed []page.DbAddress // addresses safe to reuse, fed by pkg/batch

	log     *paprikalog.Logger
	metrics *paprikametrics.Metrics
}

// New creates a fresh arena at opts.Path, truncating any existing file,
// and initializes the root ring with empty root pages.
func New(opts Options) (*Manager, error) {
	f, err := os.OpenFile(opts.Path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pagemanager: create arena: %w", err)
	}

	m := &Manager{
		path:    opts.Path,
		file:    f,
		log:     opts.logger().Component("page-manager"),
		metrics: opts.metrics(),
	}

	if err := m.growCapacityTo(RingSize + growthPages); err != nil {
		_ = f.Close()
		return nil, err
	}
	m.pageCount = RingSize

	for i := uint32(0); i < RingSize; i++ {
		root := page.AsRootPage(m.rawPage(i))
		root.Init()
		root.SetBatchID(i)
	}

	m.log.Info().Str("path", opts.Path).Uint32("pages", m.pageCount).Msg("arena created")
	return m, nil
}

// Open maps an existing arena file and validates its root ring.
func Open(opts Options) (*Manager, error) {
	f, err := os.OpenFile(opts.Path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pagemanager: open arena: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("pagemanager: stat arena: %w", err)
	}
	if info.Size()%page.Size != 0 {
		_ = f.Close()
		return nil, fmt.Errorf("pagemanager: arena size %d is not page-aligned", info.Size())
	}

	m := &Manager{
		path:    opts.Path,
		file:    f,
		log:     opts.logger().Component("page-manager"),
		metrics: opts.metrics(),
	}
	m.pageCount = uint32(info.Size() / page.Size)
	if m.pageCount < RingSize {
		_ = f.Close()
		return nil, fmt.Errorf("pagemanager: arena has %d pages, need at least %d for the root ring", m.pageCount, RingSize)
	}

	mm, err := mmap.MapRegion(f, int(m.pageCount)*page.Size, mmap.RDWR, 0, 0)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("pagemanager: mmap: %w", err)
	}
	m.mm = mm
	m.mapped = m.pageCount

	for i := uint32(0); i < RingSize; i++ {
		root := page.AsRootPage(m.rawPage(i))
		if root.IsEmpty() {
			continue
		}
		magic, version := root.MagicVersion()
		if magic != page.Magic {
			m.closeMapping()
			return nil, fmt.Errorf("pagemanager: root slot %d has bad magic %x", i, magic)
		}
		if version != page.Version {
			m.closeMapping()
			return nil, fmt.Errorf("pagemanager: root slot %d has unsupported version %d", i, version)
		}
	}

	m.log.Info().Str("path", opts.Path).Uint32("pages", m.pageCount).Msg("arena opened")
	return m, nil
}

func (m *Manager) closeMapping() {
	if m.mm != nil {
		_ = m.mm.Unmap()
	}
	_ = m.file.Close()
}

// Close unmaps the arena and closes its file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mm != nil {
		if err := m.mm.Unmap(); err != nil {
			return fmt.Errorf("pagemanager: unmap: %w", err)
		}
		m.mm = nil
	}
	return m.file.Close()
}

func (m *Manager) rawPage(index uint32) page.Page {
	off := int(index) * page.Size
	return page.Page(m.mm[off : off+page.Size])
}

// GetAt returns the page addressed by addr. addr must be a page-index
// address; GetAt panics on a same-page chain reference.
func (m *Manager) GetAt(addr page.DbAddress) page.Page {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if addr.IsSamePage() {
		panic("pagemanager: GetAt called with a same-page address")
	}
	idx := addr.PageIndex()
	if idx >= m.pageCount {
		panic(fmt.Sprintf("pagemanager: page index %d out of range (have %d)", idx, m.pageCount))
	}
	return m.rawPage(idx)
}

// RootSlot returns the root page at ring position i (0 <= i < RingSize).
func (m *Manager) RootSlot(i uint32) page.RootPage {
	return page.AsRootPage(m.GetAt(page.NewPageAddress(i)))
}

// GetAddress returns the DbAddress of a page previously obtained from
// this Manager via GetAt/GetClean.
func (m *Manager) GetAddress(p page.Page) page.DbAddress {
	m.mu.RLock()
	defer m.mu.RUnlock()
	base := uintptr(unsafe.Pointer(&m.mm[0]))
	target := uintptr(unsafe.Pointer(&p[0]))
	idx := (target - base) / page.Size
	return page.NewPageAddress(uint32(idx))
}

// GetClean returns a zeroed page and its address, either reused from the
// reclaimed stack (pkg/batch feeds this) or freshly grown at the end of
// the arena.
func (m *Manager) GetClean() (page.Page, page.DbAddress, error) {
	m.mu.Lock()
	if n := len(m.reclaimed); n > 0 {
		addr := m.reclaimed[n-1]
		m.reclaimed = m.reclaimed[:n-1]
		m.mu.Unlock()

		p := m.GetAt(addr)
		p.Clear()
		m.metrics.PagesReclaimedTotal.Inc()
		return p, addr, nil
	}
	m.mu.Unlock()

	return m.grow()
}

func (m *Manager) grow() (page.Page, page.DbAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.pageCount
	if idx+1 > m.mapped {
		if err := m.growCapacityToLocked(idx + growthPages); err != nil {
			return nil, page.Null, err
		}
	}
	m.pageCount++

	p := m.rawPage(idx)
	p.Clear()
	m.metrics.PagesAllocatedTotal.Inc()
	return p, page.NewPageAddress(idx), nil
}

// growCapacityTo extends the arena's file and mapping so it can hold at
// least n pages, without changing the logical pageCount.
func (m *Manager) growCapacityTo(n uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.growCapacityToLocked(n)
}

func (m *Manager) growCapacityToLocked(n uint32) error {
	if n <= m.mapped {
		return nil
	}

	if err := m.file.Truncate(int64(n) * page.Size); err != nil {
		return fmt.Errorf("pagemanager: grow file: %w", err)
	}

	if m.mm != nil {
		if err := m.mm.Unmap(); err != nil {
			return fmt.Errorf("pagemanager: unmap for regrow: %w", err)
		}
	}

	mm, err := mmap.MapRegion(m.file, int(n)*page.Size, mmap.RDWR, 0, 0)
	if err != nil {
		return fmt.Errorf("pagemanager: remap: %w", err)
	}
	m.mm = mm
	m.mapped = n
	m.metrics.PageManagerSizeBytes.Set(float64(n) * page.Size)
	return nil
}

// Reclaim pushes addresses that pkg/batch has determined are safe to
// hand back out by GetClean (i.e. their originating batch id is below
// every live reader's min_live_reader_batch_id per invariant 6).
func (m *Manager) Reclaim(addrs []page.DbAddress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reclaimed = append(m.reclaimed, addrs...)
	m.metrics.PagesAbandonedTotal.Add(float64(len(addrs)))
}

// PageCount returns the current size of the arena in pages.
func (m *Manager) PageCount() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pageCount
}
