// Package ddml implements the typed-field command codec driving every
// message's wire encoding and sponge transcript, as specified in §4.B. Three
// contexts share the command vocabulary: Sizeof (byte accounting only),
// Wrap (encode + transcript), and Unwrap (decode + transcript).
package ddml

import (
	"fmt"

	"github.com/WebFirstLanguage/strandweave/pkg/ddmlerr"
)

// PutUint8/16/32/64 and GetUint... implement the Uint{8,16,32,64} primitive
// codec types (§3): big-endian, fixed-width.

func putUint8(b []byte, v uint8) { b[0] = v }
func getUint8(b []byte) uint8    { return b[0] }

func putUint16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}
func getUint16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
func getUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
}
func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// encodeSize encodes a length prefix as one length-of-length byte followed
// by the big-endian value bytes (the Size primitive type, §3).
func encodeSize(n int) []byte {
	if n < 0 {
		panic("ddml: negative size")
	}
	v := uint64(n)
	var body []byte
	switch {
	case v == 0:
		body = []byte{0}
	case v < 1<<8:
		body = []byte{byte(v)}
	case v < 1<<16:
		body = []byte{byte(v >> 8), byte(v)}
	case v < 1<<24:
		body = []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	default:
		body = []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	}
	out := make([]byte, 1+len(body))
	out[0] = byte(len(body))
	copy(out[1:], body)
	return out
}

// decodeSize reads a Size prefix from the front of b, returning the decoded
// length and the number of bytes consumed.
func decodeSize(b []byte) (int, int, error) {
	if len(b) < 1 {
		return 0, 0, fmt.Errorf("ddml: %w: empty size prefix", ddmlerr.ErrBufferExhausted)
	}
	lol := int(b[0])
	if lol > 8 || len(b) < 1+lol {
		return 0, 0, fmt.Errorf("ddml: %w: truncated size prefix", ddmlerr.ErrBufferExhausted)
	}
	var v uint64
	for i := 0; i < lol; i++ {
		v = v<<8 | uint64(b[1+i])
	}
	return int(v), 1 + lol, nil
}
