// Package sponge implements the duplex sponge construction that drives every
// message's cryptographic transcript, as specified in §4.A. It wraps the
// Keccak-f[1600] permutation behind a rate/capacity split and exposes
// absorb, squeeze, encrypt, decrypt, commit, fork and join.
package sponge

import (
	"fmt"

	"github.com/WebFirstLanguage/strandweave/internal/keccakf"
)

// Rate and Capacity are the public (I/O-driven) and secret (permutation-only)
// partitions of the state, matching SHA3-256-class parameters.
const (
	Rate     = 136
	Capacity = keccakf.Width - Rate // 64
)

// Sponge is a duplex sponge over Keccak-f[1600].
type Sponge struct {
	state  [keccakf.Width]byte
	offset int
}

// New returns a freshly zeroed sponge.
func New() *Sponge {
	return &Sponge{}
}

// Absorb mixes data into the rate partition, permuting at rate boundaries.
func (s *Sponge) Absorb(data []byte) {
	for len(data) > 0 {
		n := Rate - s.offset
		if n > len(data) {
			n = len(data)
		}
		for i := 0; i < n; i++ {
			s.state[s.offset+i] ^= data[i]
		}
		s.offset += n
		data = data[n:]
		if s.offset == Rate {
			s.permute()
		}
	}
}

// Squeeze draws n bytes from the rate partition, permuting as needed.
// Squeezed bytes must never be re-absorbed as if they were fresh input.
func (s *Sponge) Squeeze(n int) []byte {
	out := make([]byte, n)
	s.squeezeInto(out)
	return out
}

// SqueezeInto draws len(dst) bytes into dst, permuting as needed.
func (s *Sponge) SqueezeInto(dst []byte) {
	s.squeezeInto(dst)
}

func (s *Sponge) squeezeInto(dst []byte) {
	for len(dst) > 0 {
		n := Rate - s.offset
		if n > len(dst) {
			n = len(dst)
		}
		copy(dst[:n], s.state[s.offset:s.offset+n])
		s.offset += n
		dst = dst[n:]
		if s.offset == Rate {
			s.permute()
		}
	}
}

// Encrypt returns ciphertext = pt XOR squeeze(|pt|), absorbing the resulting
// ciphertext back into the state chunk by chunk.
func (s *Sponge) Encrypt(pt []byte) []byte {
	ct := make([]byte, len(pt))
	remaining := pt
	off := 0
	for len(remaining) > 0 {
		n := Rate - s.offset
		if n > len(remaining) {
			n = len(remaining)
		}
		for i := 0; i < n; i++ {
			c := remaining[i] ^ s.state[s.offset+i]
			ct[off+i] = c
			s.state[s.offset+i] = c
		}
		s.offset += n
		off += n
		remaining = remaining[n:]
		if s.offset == Rate {
			s.permute()
		}
	}
	return ct
}

// Decrypt is the inverse of Encrypt: pt = ct XOR rate, then the ciphertext
// (the bytes already in the rate) is left absorbed.
func (s *Sponge) Decrypt(ct []byte) []byte {
	pt := make([]byte, len(ct))
	remaining := ct
	off := 0
	for len(remaining) > 0 {
		n := Rate - s.offset
		if n > len(remaining) {
			n = len(remaining)
		}
		for i := 0; i < n; i++ {
			p := remaining[i] ^ s.state[s.offset+i]
			pt[off+i] = p
			s.state[s.offset+i] = remaining[i]
		}
		s.offset += n
		off += n
		remaining = remaining[n:]
		if s.offset == Rate {
			s.permute()
		}
	}
	return pt
}

// Commit forces a permutation round if the rate partition has pending,
// uncommitted data, and is idempotent on an already-committed sponge.
func (s *Sponge) Commit() {
	if s.offset > 0 {
		s.permute()
	}
}

// Fork returns an independent deep clone of the sponge.
func (s *Sponge) Fork() *Sponge {
	clone := *s
	return &clone
}

// Join absorbs other's finalized outer (full rate) and inner (capacity)
// partitions into s. other must be committed: joining a sponge
// with a pending rate write is a caller error.
func (s *Sponge) Join(other *Sponge) error {
	if other.offset != 0 {
		return fmt.Errorf("sponge: join of uncommitted sponge (pending offset %d)", other.offset)
	}
	s.Absorb(other.outer())
	s.Absorb(other.inner())
	return nil
}

// outer returns a copy of the whole rate partition, whatever the current
// offset (Join only reads it from committed sponges, whose offset is 0).
func (s *Sponge) outer() []byte {
	out := make([]byte, Rate)
	copy(out, s.state[:Rate])
	return out
}

// inner returns the capacity partition.
func (s *Sponge) inner() []byte {
	out := make([]byte, Capacity)
	copy(out, s.state[Rate:])
	return out
}

func (s *Sponge) permute() {
	keccakf.Permute(&s.state)
	s.offset = 0
}

// Offset reports the current write/read position within the rate partition.
// Exposed for persistence (§6) and tests; not part of the cryptographic API.
func (s *Sponge) Offset() int {
	return s.offset
}

// Bytes returns a copy of the raw 200-byte state. Exposed for persistence.
func (s *Sponge) Bytes() [keccakf.Width]byte {
	return s.state
}

// FromBytes reconstructs a sponge from a raw state and offset, as saved by
// Bytes/Offset. Used by pkg/persist to rehydrate a spongos_store entry
// without replaying the chain.
func FromBytes(state [keccakf.Width]byte, offset int) *Sponge {
	return &Sponge{state: state, offset: offset}
}
