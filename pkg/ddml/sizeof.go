package ddml

import "github.com/WebFirstLanguage/strandweave/pkg/identity"

// Sizeof accounts for the wire length a Wrap would produce without touching
// a sponge or allocating the payload itself. The message builders do not
// use it; they append to the Wrap buffer as they go.
type Sizeof struct {
	n int
}

// NewSizeof starts a fresh byte-accounting context.
func NewSizeof() *Sizeof {
	return &Sizeof{}
}

// Size returns the accumulated byte count.
func (s *Sizeof) Size() int {
	return s.n
}

func (s *Sizeof) Absorb(x []byte)    { s.n += len(x) }
func (s *Sizeof) AbsorbUint8(uint8)  { s.n += 1 }
func (s *Sizeof) AbsorbUint16(uint16) { s.n += 2 }
func (s *Sizeof) AbsorbUint32(uint32) { s.n += 4 }
func (s *Sizeof) AbsorbUint64(uint64) { s.n += 8 }

// AbsorbBytes accounts for a Size-prefixed byte string.
func (s *Sizeof) AbsorbBytes(x []byte) {
	s.n += len(encodeSize(len(x))) + len(x)
}

// AbsorbNBytes accounts for a fixed-width, length-unprefixed byte string.
func (s *Sizeof) AbsorbNBytes(x []byte) {
	s.n += len(x)
}

// Mask accounts for masked bytes, which are wire-length-preserving.
func (s *Sizeof) Mask(x []byte) {
	s.n += len(x)
}

// MaskBytes accounts for a Size-prefixed masked byte string.
func (s *Sizeof) MaskBytes(x []byte) {
	s.n += len(encodeSize(len(x))) + len(x)
}

// Skip accounts for raw passthrough bytes.
func (s *Sizeof) Skip(x []byte)        { s.n += len(x) }
func (s *Sizeof) SkipUint64(uint64)    { s.n += 8 }

// SqueezeMac accounts for an n-byte MAC tag.
func (s *Sizeof) SqueezeMac(n int) { s.n += n }

// AbsorbExternal and SqueezeExternal contribute no wire bytes.
func (s *Sizeof) AbsorbExternal([]byte)  {}
func (s *Sizeof) SqueezeExternal(int) []byte { return nil }

// Commit contributes no wire bytes.
func (s *Sizeof) Commit() {}

// Fork runs f over a fresh accounting context and adds its total, mirroring
// Wrap.Fork's "shared output stream" semantics.
func (s *Sizeof) Fork(f func(fork *Sizeof) error) error {
	fork := &Sizeof{}
	if err := f(fork); err != nil {
		return err
	}
	s.n += fork.n
	return nil
}

// Sign accounts for a fixed 64-byte Ed25519 signature.
func (s *Sizeof) Sign(identity.Identity) error {
	s.n += 64
	return nil
}

// X25519 contributes no wire bytes (key agreement only mutates the sponge).
func (s *Sizeof) X25519([32]byte, [32]byte) error { return nil }

// X25519EncryptKey accounts for a 32-byte ephemeral public key followed by
// the masked key material.
func (s *Sizeof) X25519EncryptKey(_ [32]byte, keyMaterial []byte, _ [32]byte, _ [32]byte) error {
	s.n += 32 + len(keyMaterial)
	return nil
}
