package page

import "encoding/binary"

const (
	abandonedOffBatchOrigin = 0
	abandonedOffNext        = 4
	abandonedOffCount       = 8
	abandonedOffAddresses   = 10
)

// AbandonedPage is a typed view over a page holding one link of a batch's
// abandoned-page list: the pages it freed, chained to the next link so the
// whole list can be walked once min_live_reader_batch_id admits reclaiming
// them.
type AbandonedPage struct {
	Page Page
}

// AsAbandonedPage interprets p as an AbandonedPage view.
func AsAbandonedPage(p Page) AbandonedPage { return AbandonedPage{Page: p} }

func (a AbandonedPage) payload() []byte { return a.Page.Payload() }

// Capacity returns the maximum number of addresses this page can hold.
func (a AbandonedPage) Capacity() int {
	return (len(a.payload()) - abandonedOffAddresses) / 4
}

func (a AbandonedPage) BatchIDOfOrigin() uint32 {
	return binary.LittleEndian.Uint32(a.payload()[abandonedOffBatchOrigin:])
}

func (a AbandonedPage) SetBatchIDOfOrigin(id uint32) {
	binary.LittleEndian.PutUint32(a.payload()[abandonedOffBatchOrigin:], id)
}

func (a AbandonedPage) Next() DbAddress {
	return FromRaw(binary.LittleEndian.Uint32(a.payload()[abandonedOffNext:]))
}

func (a AbandonedPage) SetNext(addr DbAddress) {
	binary.LittleEndian.PutUint32(a.payload()[abandonedOffNext:], addr.Raw())
}

func (a AbandonedPage) Count() uint16 {
	return binary.LittleEndian.Uint16(a.payload()[abandonedOffCount:])
}

func (a AbandonedPage) setCount(n uint16) {
	binary.LittleEndian.PutUint16(a.payload()[abandonedOffCount:], n)
}

// At returns the i-th abandoned address, i < Count().
func (a AbandonedPage) At(i int) DbAddress {
	off := abandonedOffAddresses + i*4
	return FromRaw(binary.LittleEndian.Uint32(a.payload()[off:]))
}

// Push appends addr to this link's address list. It reports false if the
// link is already full (Count() == Capacity()), in which case the caller
// must allocate a new link and chain it via SetNext.
func (a AbandonedPage) Push(addr DbAddress) bool {
	n := int(a.Count())
	if n >= a.Capacity() {
		return false
	}
	off := abandonedOffAddresses + n*4
	binary.LittleEndian.PutUint32(a.payload()[off:], addr.Raw())
	a.setCount(uint16(n + 1))
	return true
}

// Init stamps a fresh, empty abandoned-page link for the given batch id.
func (a AbandonedPage) Init(batchID uint32) {
	a.Page.SetFlags(FlagAbandoned)
	a.SetBatchIDOfOrigin(batchID)
	a.SetNext(Null)
	a.setCount(0)
}
