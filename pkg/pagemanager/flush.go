package pagemanager

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/paprikadb/paprika/pkg/page"
)

// Durability selects how far WritePages pushes bytes toward disk,
// matching the spec's two-phase commit: data pages are made durable
// before the root page that points at them, so a crash between the two
// phases can never observe a root referencing un-flushed data.
type Durability int

const (
	// NoWrite leaves pages only in the mmap'd arena, relying on the OS
	// page cache; used for read-only batches that never call commit.
	NoWrite Durability = iota
	// FlushDataOnly msyncs the arena and fsyncs the file, but is used
	// for the first phase of a commit, before the new root is written.
	FlushDataOnly
	// FlushDataAndRoot is the second phase: called after the new root
	// page has been written, to make the root durable too.
	FlushDataAndRoot
)

// WritePages makes the given pages durable per mode. Because the arena
// is a single mmap region, msync is whole-mapping granularity; the
// two-phase guarantee instead comes from sequencing — callers must
// write and flush data pages (FlushDataOnly) strictly before writing
// and flushing the root page (FlushDataAndRoot), never in the same
// call.
func (m *Manager) WritePages(addrs []page.DbAddress, mode Durability) error {
	if mode == NoWrite {
		return nil
	}

	m.mu.RLock()
	mm := m.mm
	f := m.file
	m.mu.RUnlock()

	if err := mm.Flush(); err != nil {
		return fmt.Errorf("pagemanager: msync: %w", err)
	}
	if err := unix.Fsync(int(f.Fd())); err != nil {
		return fmt.Errorf("pagemanager: fsync: %w", err)
	}

	switch mode {
	case FlushDataOnly:
		m.log.Debug().Int("pages", len(addrs)).Msg("data pages flushed")
	case FlushDataAndRoot:
		m.log.Debug().Int("pages", len(addrs)).Msg("root page flushed")
	}
	return nil
}

// FlushAll msyncs and fsyncs the entire arena unconditionally. Close does
// not call it.
func (m *Manager) FlushAll() error {
	return m.WritePages(nil, FlushDataAndRoot)
}
