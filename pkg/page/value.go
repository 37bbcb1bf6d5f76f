package page

import "encoding/binary"

const (
	valueOffOverflow = 0
	valueOffMapArea  = 4
)

// ValuePage is a typed view over a page holding trie node / value entries
// in a page-resident FixedMap, plus a field for an overflow page pointer.
// Nothing in this module chains overflow pages: pkg/trie stores one node
// per page and returns an error when a node does not fit.
//
// The FixedMap area occupies the rest of the payload after the overflow
// pointer; pkg/fixedmap operates directly on the byte slice returned by
// MapArea, so ValuePage owns only the overflow-pointer field.
type ValuePage struct {
	Page Page
}

// AsValuePage interprets p as a ValuePage view.
func AsValuePage(p Page) ValuePage { return ValuePage{Page: p} }

func (v ValuePage) payload() []byte { return v.Page.Payload() }

// Overflow returns the address of the page this one overflows into, or
// Null if there is none.
func (v ValuePage) Overflow() DbAddress {
	return FromRaw(binary.LittleEndian.Uint32(v.payload()[valueOffOverflow:]))
}

// SetOverflow chains this page to the given overflow page.
func (v ValuePage) SetOverflow(addr DbAddress) {
	binary.LittleEndian.PutUint32(v.payload()[valueOffOverflow:], addr.Raw())
}

// MapArea returns the byte region a FixedMap should be built over.
func (v ValuePage) MapArea() []byte {
	return v.payload()[valueOffMapArea:]
}

// Init stamps a fresh value page with no overflow; the FixedMap area is
// left for pkg/fixedmap to initialize.
func (v ValuePage) Init() {
	v.Page.SetFlags(FlagValue)
	v.SetOverflow(Null)
}
