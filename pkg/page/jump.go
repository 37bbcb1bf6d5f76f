package page

import "encoding/binary"

// JumpPage is a typed view over a page holding a flat array of DbAddress
// slots: each slot is a 4-byte DbAddress, indexed 0..Capacity()-1.
// pkg/trie does not use it; every trie node lives in its own ValuePage.
type JumpPage struct {
	Page Page
}

// AsJumpPage interprets p as a JumpPage view.
func AsJumpPage(p Page) JumpPage { return JumpPage{Page: p} }

func (j JumpPage) payload() []byte { return j.Page.Payload() }

// Capacity returns the number of address slots this page holds.
func (j JumpPage) Capacity() int { return len(j.payload()) / 4 }

// At returns the address stored at slot i.
func (j JumpPage) At(i int) DbAddress {
	return FromRaw(binary.LittleEndian.Uint32(j.payload()[i*4:]))
}

// Set stores addr at slot i.
func (j JumpPage) Set(i int, addr DbAddress) {
	binary.LittleEndian.PutUint32(j.payload()[i*4:], addr.Raw())
}

// Init stamps a fresh, all-null jump page.
func (j JumpPage) Init() {
	j.Page.SetFlags(FlagJump)
	for i := 0; i < j.Capacity(); i++ {
		j.Set(i, Null)
	}
}
