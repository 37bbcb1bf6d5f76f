package page

import "encoding/binary"

// Magic identifies a Paprika arena file; Version is the on-disk format
// version written into every root page.
const (
	Magic   uint32 = 0x50415052 // "PAPR"
	Version uint16 = 1
)

const (
	rootOffBatchID       = 0
	rootOffStateHash     = 4
	rootOffBlockNumber   = 36
	rootOffDataRoot      = 44
	rootOffAbandonedHead = 48
	rootOffMagic         = 52
	rootOffVersion       = 56
	RootPayloadSize      = 58
)

// RootPage is a typed view over a page holding the persistent directory
// for one batch id: its state hash, block number, the root of the data
// tree, and the head of that batch's abandoned-page list.
type RootPage struct {
	Page Page
}

// AsRootPage interprets p as a RootPage view; the caller is responsible
// for having set FlagRoot.
func AsRootPage(p Page) RootPage { return RootPage{Page: p} }

func (r RootPage) payload() []byte { return r.Page.Payload() }

func (r RootPage) BatchID() uint32 {
	return binary.LittleEndian.Uint32(r.payload()[rootOffBatchID:])
}

func (r RootPage) SetBatchID(id uint32) {
	binary.LittleEndian.PutUint32(r.payload()[rootOffBatchID:], id)
	r.Page.SetBatchID(id)
}

func (r RootPage) StateHash() [32]byte {
	var h [32]byte
	copy(h[:], r.payload()[rootOffStateHash:rootOffStateHash+32])
	return h
}

func (r RootPage) SetStateHash(h [32]byte) {
	copy(r.payload()[rootOffStateHash:rootOffStateHash+32], h[:])
}

func (r RootPage) BlockNumber() uint64 {
	return binary.LittleEndian.Uint64(r.payload()[rootOffBlockNumber:])
}

func (r RootPage) SetBlockNumber(n uint64) {
	binary.LittleEndian.PutUint64(r.payload()[rootOffBlockNumber:], n)
}

func (r RootPage) DataRoot() DbAddress {
	return FromRaw(binary.LittleEndian.Uint32(r.payload()[rootOffDataRoot:]))
}

func (r RootPage) SetDataRoot(a DbAddress) {
	binary.LittleEndian.PutUint32(r.payload()[rootOffDataRoot:], a.Raw())
}

func (r RootPage) AbandonedHead() DbAddress {
	return FromRaw(binary.LittleEndian.Uint32(r.payload()[rootOffAbandonedHead:]))
}

func (r RootPage) SetAbandonedHead(a DbAddress) {
	binary.LittleEndian.PutUint32(r.payload()[rootOffAbandonedHead:], a.Raw())
}

func (r RootPage) MagicVersion() (uint32, uint16) {
	return binary.LittleEndian.Uint32(r.payload()[rootOffMagic:]),
		binary.LittleEndian.Uint16(r.payload()[rootOffVersion:])
}

func (r RootPage) SetMagicVersion() {
	binary.LittleEndian.PutUint32(r.payload()[rootOffMagic:], Magic)
	binary.LittleEndian.PutUint16(r.payload()[rootOffVersion:], Version)
}

// IsEmpty reports whether this root slot has never been written (used to
// distinguish "no roots yet" on a freshly created arena).
func (r RootPage) IsEmpty() bool {
	magic, _ := r.MagicVersion()
	return magic != Magic
}

// Init stamps r as a fresh, empty root for batch id 0 of a brand-new arena.
func (r RootPage) Init() {
	r.Page.SetFlags(FlagRoot)
	r.SetMagicVersion()
	r.SetBatchID(0)
	r.SetBlockNumber(0)
	r.SetDataRoot(Null)
	r.SetAbandonedHead(Null)
}
