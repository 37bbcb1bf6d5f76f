package rlp

import (
	"bytes"
	"testing"
)

func TestEncodeBytesSingleByte(t *testing.T) {
	got := EncodeBytes([]byte{0x42})
	want := []byte{0x42}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeBytes(0x42) = %x, want %x", got, want)
	}
}

func TestEncodeBytesShortString(t *testing.T) {
	got := EncodeBytes([]byte("dog"))
	want := []byte{0x83, 'd', 'o', 'g'}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeBytes(\"dog\") = %x, want %x", got, want)
	}
}

func TestEncodeBytesEmpty(t *testing.T) {
	got := EncodeBytes(nil)
	want := []byte{0x80}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeBytes(nil) = %x, want %x", got, want)
	}
}

func TestEncodeBytesLongString(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAA}, 60)
	got := EncodeBytes(payload)
	if got[0] != 0xB8 { // 0x80 + 55 + 1 (one length-of-length byte)
		t.Fatalf("unexpected long-string prefix byte: %x", got[0])
	}
	if got[1] != 60 {
		t.Errorf("length byte = %d, want 60", got[1])
	}
	if !bytes.Equal(got[2:], payload) {
		t.Errorf("payload mismatch")
	}
}

func TestEncodeListConcatenatesItems(t *testing.T) {
	items := [][]byte{EncodeBytes([]byte("cat")), EncodeBytes([]byte("dog"))}
	got := EncodeList(items)
	want := []byte{0xC8, 0x83, 'c', 'a', 't', 0x83, 'd', 'o', 'g'}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeList = %x, want %x", got, want)
	}
}

func TestKeccak256KnownVector(t *testing.T) {
	// Keccak-256 of the empty input.
	got := Keccak256()
	want := mustHex("c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470")
	if !bytes.Equal(got[:], want) {
		t.Errorf("Keccak256() = %x, want %x", got, want)
	}
}

func TestHashOrInlineShortEncodingIsVerbatim(t *testing.T) {
	short := EncodeBytes([]byte("short"))
	got := HashOrInline(short)
	if !bytes.Equal(got, short) {
		t.Errorf("HashOrInline should return short encodings verbatim")
	}
}

func TestHashOrInlineLongEncodingIsHashed(t *testing.T) {
	long := EncodeBytes(bytes.Repeat([]byte{0x01}, 40))
	got := HashOrInline(long)
	if len(got) != 33 { // 0x80+32 prefix byte + 32-byte hash
		t.Fatalf("expected a 33-byte RLP-encoded hash, got %d bytes", len(got))
	}
	if bytes.Equal(got, long) {
		t.Errorf("HashOrInline should not return a >=32-byte encoding verbatim")
	}
}

func TestDecodeBytesRoundTripsShortAndLongStrings(t *testing.T) {
	for _, payload := range [][]byte{nil, []byte{0x42}, []byte("dog"), bytes.Repeat([]byte{0xAA}, 60)} {
		encoded := EncodeBytes(payload)
		got, rest, err := DecodeBytes(encoded)
		if err != nil {
			t.Fatalf("DecodeBytes(%x) failed: %v", encoded, err)
		}
		if len(rest) != 0 {
			t.Errorf("DecodeBytes(%x) left %d trailing bytes, want 0", encoded, len(rest))
		}
		if !bytes.Equal(got, payload) && !(len(got) == 0 && len(payload) == 0) {
			t.Errorf("DecodeBytes(%x) = %x, want %x", encoded, got, payload)
		}
	}
}

func TestDecodeListRoundTripsEncodeList(t *testing.T) {
	items := [][]byte{[]byte("cat"), []byte("dog"), nil}
	encoded := EncodeList([][]byte{EncodeBytes(items[0]), EncodeBytes(items[1]), EncodeBytes(items[2])})

	got, rest, err := DecodeList(encoded)
	if err != nil {
		t.Fatalf("DecodeList(%x) failed: %v", encoded, err)
	}
	if len(rest) != 0 {
		t.Errorf("DecodeList left %d trailing bytes, want 0", len(rest))
	}
	if len(got) != len(items) {
		t.Fatalf("DecodeList returned %d items, want %d", len(got), len(items))
	}
	for i := range items {
		if !bytes.Equal(got[i], items[i]) && !(len(got[i]) == 0 && len(items[i]) == 0) {
			t.Errorf("item %d = %x, want %x", i, got[i], items[i])
		}
	}
}

func TestDecodeListRejectsByteString(t *testing.T) {
	if _, _, err := DecodeList(EncodeBytes([]byte("dog"))); err == nil {
		t.Error("DecodeList(EncodeBytes(...)) should fail: not a list")
	}
}

func TestDecodeBytesRejectsList(t *testing.T) {
	if _, _, err := DecodeBytes(EncodeList([][]byte{EncodeBytes([]byte("dog"))})); err == nil {
		t.Error("DecodeBytes(EncodeList(...)) should fail: not a byte string")
	}
}

func mustHex(s string) []byte {
	out := make([]byte, len(s)/2)
	for i := range out {
		hi := hexVal(s[i*2])
		lo := hexVal(s[i*2+1])
		out[i] = hi<<4 | lo
	}
	return out
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
