package host

import (
	"encoding/binary"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// Hex word codec
// ───────────────────────────────────────────────────────────────────────────
//
// The legacy host interface carries exactly one 32-bit value per LBA,
// written as a 10-character literal of the form 0xXXXXXXXX. The value is
// stored as 4 little-endian bytes at offset 0 of the page; the rest of
// the page is zero. The encoding is part of the host contract and cannot
// change without breaking round-trip expectations.

// HexWordLen is the required length of a host value literal.
const HexWordLen = 10

// ParseHexWord parses a strict 0xXXXXXXXX literal. Upper and lower case
// digits are both accepted, nothing else is.
func ParseHexWord(s string) (uint32, error) {
	if len(s) != HexWordLen || s[0] != '0' || s[1] != 'x' {
		return 0, fmt.Errorf("invalid value %q (format: 0xXXXXXXXX)", s)
	}
	var v uint32
	for i := 2; i < HexWordLen; i++ {
		c := s[i]
		var d uint32
		switch {
		case c >= '0' && c <= '9':
			d = uint32(c - '0')
		case c >= 'A' && c <= 'F':
			d = uint32(c-'A') + 10
		case c >= 'a' && c <= 'f':
			d = uint32(c-'a') + 10
		default:
			return 0, fmt.Errorf("invalid value %q: digit %q", s, c)
		}
		v = v<<4 | d
	}
	return v, nil
}

// FormatHexWord renders a value as the 0xXXXXXXXX literal.
func FormatHexWord(v uint32) string {
	return fmt.Sprintf("0x%08X", v)
}

// EncodePayload builds a full page payload carrying v in its first four
// bytes, little endian, remainder zero.
func EncodePayload(v uint32, pageSize int) []byte {
	buf := make([]byte, pageSize)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

// DecodePayload extracts the host value from a page payload.
func DecodePayload(p []byte) uint32 {
	if len(p) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(p)
}
