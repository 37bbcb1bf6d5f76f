package rlp

import "fmt"

// decodeHeader parses b's leading RLP item header, reporting whether
// it is a list, the bytes making up its payload, and whatever follows
// the item in b.
func decodeHeader(b []byte) (isList bool, payload []byte, rest []byte, err error) {
	if len(b) == 0 {
		return false, nil, nil, fmt.Errorf("rlp: decode: empty input")
	}
	prefix := b[0]
	switch {
	case prefix < 0x80:
		return false, b[0:1], b[1:], nil
	case prefix <= 0xB7:
		n := int(prefix - 0x80)
		if len(b) < 1+n {
			return false, nil, nil, fmt.Errorf("rlp: decode: short string truncated")
		}
		return false, b[1 : 1+n], b[1+n:], nil
	case prefix <= 0xBF:
		lenOfLen := int(prefix - 0xB7)
		if len(b) < 1+lenOfLen {
			return false, nil, nil, fmt.Errorf("rlp: decode: long string header truncated")
		}
		n := int(beUint(b[1 : 1+lenOfLen]))
		start := 1 + lenOfLen
		if len(b) < start+n {
			return false, nil, nil, fmt.Errorf("rlp: decode: long string truncated")
		}
		return false, b[start : start+n], b[start+n:], nil
	case prefix <= 0xF7:
		n := int(prefix - 0xC0)
		if len(b) < 1+n {
			return true, nil, nil, fmt.Errorf("rlp: decode: short list truncated")
		}
		return true, b[1 : 1+n], b[1+n:], nil
	default:
		lenOfLen := int(prefix - 0xF7)
		if len(b) < 1+lenOfLen {
			return true, nil, nil, fmt.Errorf("rlp: decode: long list header truncated")
		}
		n := int(beUint(b[1 : 1+lenOfLen]))
		start := 1 + lenOfLen
		if len(b) < start+n {
			return true, nil, nil, fmt.Errorf("rlp: decode: long list truncated")
		}
		return true, b[start : start+n], b[start+n:], nil
	}
}

func beUint(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// DecodeBytes parses a single RLP byte-string item from the front of
// b, returning its decoded value and whatever bytes follow it.
func DecodeBytes(b []byte) (value []byte, rest []byte, err error) {
	isList, payload, rest, err := decodeHeader(b)
	if err != nil {
		return nil, nil, err
	}
	if isList {
		return nil, nil, fmt.Errorf("rlp: decode: expected a byte string, got a list")
	}
	return payload, rest, nil
}

// DecodeList parses an RLP list of byte-string items from the front
// of b, returning each item's decoded value and whatever bytes follow
// the list. It does not support nested lists, which is the only shape
// callers (account encoding) need.
func DecodeList(b []byte) (items [][]byte, rest []byte, err error) {
	isList, payload, rest, err := decodeHeader(b)
	if err != nil {
		return nil, nil, err
	}
	if !isList {
		return nil, nil, fmt.Errorf("rlp: decode: expected a list, got a byte string")
	}
	for len(payload) > 0 {
		var item []byte
		item, payload, err = DecodeBytes(payload)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, item)
	}
	return items, rest, nil
}
