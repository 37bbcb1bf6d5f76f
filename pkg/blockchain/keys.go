package blockchain

import (
	"github.com/paprikadb/paprika/pkg/nibble"
	"github.com/paprikadb/paprika/pkg/rlp"
)

// Address is a 20-byte account address.
type Address [20]byte

// StorageKey is a 32-byte storage slot key.
type StorageKey [32]byte

// AccountPath derives the 64-nibble trie path an account lives at: the
// Keccak-256 hash of its address, exactly as the reference trie indexes
// accounts by address hash rather than raw address.
func AccountPath(addr Address) nibble.Path {
	h := rlp.Keccak256(addr[:])
	return nibble.FromKey(h[:], 0)
}

// StoragePath derives the 128-nibble trie path a storage cell lives at:
// AccountPath(addr) followed by the Keccak-256 hash of slot. Because the
// first 64 nibbles are exactly AccountPath(addr), deleting everything
// under that 64-nibble prefix (trie.DeleteByPrefix) removes the account
// and every one of its storage cells in one sweep — the composite
// Key::StorageCell(account_path, storage_path) addressing, built so
// DestroyAccount needs no bookkeeping beyond the prefix it already owns.
func StoragePath(addr Address, slot StorageKey) nibble.Path {
	accountHash := rlp.Keccak256(addr[:])
	slotHash := rlp.Keccak256(slot[:])
	key := make([]byte, 0, 64)
	key = append(key, accountHash[:]...)
	key = append(key, slotHash[:]...)
	return nibble.FromKey(key, 0)
}
