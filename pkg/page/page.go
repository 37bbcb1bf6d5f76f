// Package page defines the 4 KiB page primitives the paged store maps
// over its arena: the shared page header, DbAddress (the pointer type
// used everywhere in place of real pointers), and the typed page views
// (RootPage, AbandonedPage, JumpPage, ValuePage).
//
// Grounded on the teacher's pkg/storage meta-page layout (fixed-size
// header fields accessed via encoding/binary), generalized from a single
// meta page to a whole family of typed, header-tagged pages.
package page

import "encoding/binary"

// Size is the fixed page size of the arena; every allocation, every mmap
// extension, and every DbAddress unit is expressed in this granularity.
const Size = 4096

// HeaderSize is the shared 8-byte page header: batch id (4B) + flags (1B)
// + reserved (3B).
const HeaderSize = 8

// Flag bits stored in the page header.
const (
	FlagWritable  = 1 << 0
	FlagRoot      = 1 << 1
	FlagAbandoned = 1 << 2
	FlagJump      = 1 << 3
	FlagValue     = 1 << 4
)

// Page is a 4 KiB byte region with a shared header and a type-specific
// payload. It never owns its backing memory — that memory is a slice into
// the PageManager's mmap arena (or, for BufferPool pages, a slice into an
// in-memory arena).
type Page []byte

// BatchID returns the id of the batch that last wrote this page.
func (p Page) BatchID() uint32 {
	return binary.LittleEndian.Uint32(p[0:4])
}

// SetBatchID stamps the page with the writing batch's id.
func (p Page) SetBatchID(id uint32) {
	binary.LittleEndian.PutUint32(p[0:4], id)
}

// Flags returns the page's type/writable flag byte.
func (p Page) Flags() byte {
	return p[4]
}

// SetFlags overwrites the page's flag byte.
func (p Page) SetFlags(f byte) {
	p[4] = f
}

// HasFlag reports whether every bit in mask is set in the page's flags.
func (p Page) HasFlag(mask byte) bool {
	return p[4]&mask == mask
}

// Payload returns the mutable region following the shared header.
func (p Page) Payload() []byte {
	return p[HeaderSize:]
}

// Clear zeroes the entire page, header included.
func (p Page) Clear() {
	for i := range p {
		p[i] = 0
	}
}

// CopyTo copies p's full contents (header and payload) into dst, which
// must be at least Size bytes.
func (p Page) CopyTo(dst Page) {
	copy(dst, p)
}
