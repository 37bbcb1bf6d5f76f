// Package fixedmap implements a page-resident, hash-indexed slot array:
// a front-growing table of fixed 8-byte slots paired with a back-growing
// payload heap, both carved out of a single byte span supplied by the
// caller (typically a page's FixedMap area per pkg/page.ValuePage).
//
// Grounded on the teacher's pkg/btree node layout (BNode.getOffset /
// setOffset / kvPos): the same "header, then a growing offset/pointer
// table, then a payload region" shape, generalized from a sorted B-tree
// leaf (binary-searched by key) to a hash-indexed slot array that can be
// probed in O(1) and periodically defragmented to reclaim tombstoned
// payload bytes.
package fixedmap

import (
	"encoding/binary"
	"errors"
)

// ErrFull is returned by TrySet when neither the slot table nor the
// payload heap has room for a new entry.
var ErrFull = errors.New("fixedmap: page is full")

const (
	headerSize = 6 // low (u16) + high (u16) + deleted (u16)
	slotSize   = 8

	offHeaderLow     = 0
	offHeaderHigh    = 2
	offHeaderDeleted = 4

	// slot layout (8 bytes, little-endian):
	//   bits 0..14  (15 bits): payload address (byte offset into the heap)
	//   bit  15     (1 bit):   deleted flag
	//   bits 16..31 (16 bits): hash of the key
	//   bits 32..63 (32 bits): reserved, always zero
	slotAddrMask   = 0x7FFF
	slotDeletedBit = uint16(1) << 15
)

// Map is a FixedMap view over a caller-owned byte span. The span is not
// copied; all mutations are visible to the caller immediately.
type Map struct {
	span []byte
}

// New constructs a Map over span, which must already be either freshly
// zeroed or a previously initialized FixedMap (headers are read as-is).
func New(span []byte) Map { return Map{span: span} }

// Init resets span's header, making it an empty map. The slot table
// starts right after the header and grows forward; the payload heap
// starts at the end of span and grows backward as entries are added.
func (m Map) Init() {
	binary.LittleEndian.PutUint16(m.span[offHeaderLow:], headerSize)
	binary.LittleEndian.PutUint16(m.span[offHeaderHigh:], uint16(len(m.span)))
	binary.LittleEndian.PutUint16(m.span[offHeaderDeleted:], 0)
}

func (m Map) low() uint16  { return binary.LittleEndian.Uint16(m.span[offHeaderLow:]) }
func (m Map) high() uint16 { return binary.LittleEndian.Uint16(m.span[offHeaderHigh:]) }
func (m Map) deleted() uint16 {
	return binary.LittleEndian.Uint16(m.span[offHeaderDeleted:])
}

func (m Map) setLow(v uint16)     { binary.LittleEndian.PutUint16(m.span[offHeaderLow:], v) }
func (m Map) setHigh(v uint16)    { binary.LittleEndian.PutUint16(m.span[offHeaderHigh:], v) }
func (m Map) setDeleted(v uint16) { binary.LittleEndian.PutUint16(m.span[offHeaderDeleted:], v) }

// slotCount returns the number of occupied slot-table entries (including
// tombstoned ones awaiting Defragment).
func (m Map) slotCount() int {
	return int(m.low()-headerSize) / slotSize
}

func (m Map) slotOffset(i int) int { return headerSize + i*slotSize }

func (m Map) slotRaw(i int) uint64 {
	off := m.slotOffset(i)
	return binary.LittleEndian.Uint64(m.span[off:])
}

func (m Map) setSlotRaw(i int, v uint64) {
	off := m.slotOffset(i)
	binary.LittleEndian.PutUint64(m.span[off:], v)
}

func slotHash(raw uint64) uint16    { return uint16(raw >> 16) }
func slotAddr(raw uint64) uint16    { return uint16(raw & slotAddrMask) }
func slotIsDeleted(raw uint64) bool { return uint16(raw)&slotDeletedBit != 0 }

func makeSlot(hash uint16, addr uint16, deleted bool) uint64 {
	lo := addr & slotAddrMask
	if deleted {
		lo |= slotDeletedBit
	}
	return uint64(hash)<<16 | uint64(lo)
}

// entryAt returns the raw bytes of the payload entry stored at the given
// heap address: a 2-byte length prefix followed by the payload itself.
func (m Map) entryAt(addr uint16) []byte {
	n := binary.LittleEndian.Uint16(m.span[addr:])
	return m.span[int(addr)+2 : int(addr)+2+int(n)]
}

// FirstHash returns the hash stored in the first live slot, for callers
// (like pkg/trie's single-entry node pages) that know a map holds
// exactly one entry but don't already know its key. Panics if the map
// has no live entries.
func (m Map) FirstHash() uint16 {
	n := m.slotCount()
	for i := 0; i < n; i++ {
		raw := m.slotRaw(i)
		if !slotIsDeleted(raw) {
			return slotHash(raw)
		}
	}
	panic("fixedmap: FirstHash called on a map with no live entries")
}

// TryGet looks up key (already reduced to a 16-bit hash by the caller's
// key scheme) and returns its value and whether it was found. Ties
// (hash collisions) are resolved by the caller re-checking the returned
// value against the full key, since FixedMap stores only the hash, not
// the key itself — callers that need the original key embed it in the
// value payload.
func (m Map) TryGet(hash uint16) ([]byte, bool) {
	n := m.slotCount()
	for i := 0; i < n; i++ {
		raw := m.slotRaw(i)
		if slotIsDeleted(raw) {
			continue
		}
		if slotHash(raw) == hash {
			return m.entryAt(slotAddr(raw)), true
		}
	}
	return nil, false
}

// TryGetAll returns every live value whose slot hash matches, for
// callers that must disambiguate collisions themselves (e.g. by
// comparing an embedded key).
func (m Map) TryGetAll(hash uint16) [][]byte {
	var out [][]byte
	n := m.slotCount()
	for i := 0; i < n; i++ {
		raw := m.slotRaw(i)
		if slotIsDeleted(raw) {
			continue
		}
		if slotHash(raw) == hash {
			out = append(out, m.entryAt(slotAddr(raw)))
		}
	}
	return out
}

// TrySet stores value under hash. If a live entry already occupies hash
// and its payload is exactly len(value) bytes, the payload is overwritten
// in place. Otherwise any existing live entry under hash is tombstoned
// and a new slot-table entry and payload-heap entry are appended. If
// there is no room for the append, TrySet reclaims tombstoned space with
// a Defragment and retries once before giving up; it returns ErrFull
// only if the entry still doesn't fit after that.
func (m Map) TrySet(hash uint16, value []byte) error {
	if idx, ok := m.findLive(hash); ok {
		raw := m.slotRaw(idx)
		addr := slotAddr(raw)
		existingLen := binary.LittleEndian.Uint16(m.span[addr:])
		if int(existingLen) == len(value) {
			copy(m.span[int(addr)+2:], value)
			return nil
		}
		m.setSlotRaw(idx, raw|uint64(slotDeletedBit))
		m.setDeleted(m.deleted() + 1)
	}

	if m.tryAppend(hash, value) {
		return nil
	}
	if m.deleted() == 0 {
		return ErrFull
	}
	m.Defragment()
	if m.tryAppend(hash, value) {
		return nil
	}
	return ErrFull
}

// findLive returns the slot index of the first live entry stored under
// hash, if any.
func (m Map) findLive(hash uint16) (int, bool) {
	n := m.slotCount()
	for i := 0; i < n; i++ {
		raw := m.slotRaw(i)
		if slotIsDeleted(raw) {
			continue
		}
		if slotHash(raw) == hash {
			return i, true
		}
	}
	return 0, false
}

// tryAppend adds a brand new slot-table entry and payload-heap entry for
// (hash, value), reporting whether there was room.
func (m Map) tryAppend(hash uint16, value []byte) bool {
	needed := 2 + len(value) // length prefix + payload
	newLow := int(m.low()) + slotSize
	newHigh := int(m.high()) - needed
	if newLow > newHigh || newHigh < 0 {
		return false
	}

	addr := uint16(newHigh)
	binary.LittleEndian.PutUint16(m.span[addr:], uint16(len(value)))
	copy(m.span[int(addr)+2:], value)

	idx := m.slotCount()
	m.setSlotRaw(idx, makeSlot(hash, addr, false))

	m.setLow(uint16(newLow))
	m.setHigh(uint16(newHigh))
	return true
}

// Delete tombstones the first live slot matching hash whose stored value
// equals want (use a nil want to delete the first match regardless of
// value). Reports whether an entry was removed.
func Delete(m Map, hash uint16, want []byte) bool {
	n := m.slotCount()
	for i := 0; i < n; i++ {
		raw := m.slotRaw(i)
		if slotIsDeleted(raw) {
			continue
		}
		if slotHash(raw) != hash {
			continue
		}
		if want != nil {
			if !bytesEqual(m.entryAt(slotAddr(raw)), want) {
				continue
			}
		}
		m.setSlotRaw(i, raw|uint64(slotDeletedBit))
		m.setDeleted(m.deleted() + 1)
		return true
	}
	return false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Defragment compacts the payload heap, dropping tombstoned slots and
// reclaiming the space occupied by deleted values. It rebuilds the map
// in place: the caller must not hold onto byte slices returned by
// TryGet/TryGetAll across a Defragment call, since the heap is
// relocated.
func (m Map) Defragment() {
	n := m.slotCount()
	type kept struct {
		hash  uint16
		value []byte
	}
	entries := make([]kept, 0, n)
	for i := 0; i < n; i++ {
		raw := m.slotRaw(i)
		if slotIsDeleted(raw) {
			continue
		}
		v := m.entryAt(slotAddr(raw))
		cp := make([]byte, len(v))
		copy(cp, v)
		entries = append(entries, kept{hash: slotHash(raw), value: cp})
	}

	m.Init()
	for _, e := range entries {
		// Space was already validated by the map's prior occupancy; a
		// defragment can never run out of room for entries it already held.
		_ = m.TrySet(e.hash, e.value)
	}
}

// Utilization returns the fraction (0..1) of span currently consumed by
// live and tombstoned data, used by callers deciding whether to
// Defragment before giving up with ErrFull.
func (m Map) Utilization() float64 {
	used := int(m.low()) + (len(m.span) - int(m.high()))
	return float64(used) / float64(len(m.span))
}

// DeletedCount returns the number of tombstoned slots awaiting reclaim.
func (m Map) DeletedCount() int { return int(m.deleted()) }

// Len returns the number of live (non-tombstoned) entries.
func (m Map) Len() int {
	n := m.slotCount()
	count := 0
	for i := 0; i < n; i++ {
		if !slotIsDeleted(m.slotRaw(i)) {
			count++
		}
	}
	return count
}
