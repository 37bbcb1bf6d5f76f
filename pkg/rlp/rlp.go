// Package rlp implements the narrow subset of Ethereum's Recursive
// Length Prefix encoding the trie layer actually needs: byte-string
// encoding, list encoding, the hash-or-inline rule used for
// Branch/Extension child references, and just enough decoding
// (DecodeBytes/DecodeList) to read a flat list of byte strings back,
// which is all account values need. It is not a general-purpose RLP
// library and performs no struct reflection — callers build their own
// []byte/[][]byte shapes and hand them to EncodeBytes/EncodeList.
package rlp

import "golang.org/x/crypto/sha3"

// EncodeBytes RLP-encodes a single byte string per the spec: a lone
// byte < 0x80 encodes to itself; a short string (<= 55 bytes) gets a
// single length-prefix byte; a long string gets a length-of-length
// prefix followed by the big-endian length.
func EncodeBytes(b []byte) []byte {
	if len(b) == 1 && b[0] < 0x80 {
		return []byte{b[0]}
	}
	return append(lengthPrefix(0x80, len(b)), b...)
}

// EncodeList RLP-encodes a list of already-encoded items by
// concatenating them and prefixing the result with a list length
// header.
func EncodeList(items [][]byte) []byte {
	var payload []byte
	for _, it := range items {
		payload = append(payload, it...)
	}
	return append(lengthPrefix(0xC0, len(payload)), payload...)
}

// lengthPrefix builds the prefix byte(s) for a string (base 0x80) or
// list (base 0xC0) of the given payload length.
func lengthPrefix(base byte, n int) []byte {
	if n <= 55 {
		return []byte{base + byte(n)}
	}
	lenBytes := bigEndianMinimal(uint64(n))
	return append([]byte{base + 55 + byte(len(lenBytes))}, lenBytes...)
}

func bigEndianMinimal(v uint64) []byte {
	if v == 0 {
		return []byte{0}
	}
	var buf [8]byte
	n := 0
	for v > 0 {
		buf[7-n] = byte(v)
		v >>= 8
		n++
	}
	return buf[8-n:]
}

// Keccak256 hashes data with Keccak-256 (not the later-standardized
// SHA3-256, which differs in padding — Ethereum uses the original
// Keccak submission).
func Keccak256(data ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	h.Sum(out[:0])
	return out
}

// HashOrInline implements the Branch/Extension child-reference rule: an
// RLP-encoded child blob shorter than 32 bytes is embedded verbatim in
// its parent's encoding; one that is 32 bytes or longer is replaced by
// its Keccak-256 hash (itself RLP-encoded as a 32-byte string).
func HashOrInline(encoded []byte) []byte {
	if len(encoded) < 32 {
		return encoded
	}
	hash := Keccak256(encoded)
	return EncodeBytes(hash[:])
}
