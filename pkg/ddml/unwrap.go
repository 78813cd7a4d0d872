package ddml

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/flynn/noise"
	"golang.org/x/crypto/curve25519"

	"github.com/WebFirstLanguage/strandweave/pkg/ddmlerr"
	"github.com/WebFirstLanguage/strandweave/pkg/identity"
	"github.com/WebFirstLanguage/strandweave/pkg/sponge"
)

// Unwrap drives field commands in declaration order, reading bytes from an
// internal cursor while mutating a sponge. The read order must exactly
// mirror the wrap side's write order.
type Unwrap struct {
	buf    []byte
	pos    int
	sponge *sponge.Sponge
}

// NewUnwrap starts an unwrap context over buf, reading from its front.
func NewUnwrap(buf []byte, s *sponge.Sponge) *Unwrap {
	return &Unwrap{buf: buf, sponge: s}
}

// Sponge returns the underlying sponge.
func (u *Unwrap) Sponge() *sponge.Sponge {
	return u.sponge
}

// Remaining reports how many unread bytes are left in the stream.
func (u *Unwrap) Remaining() int {
	return len(u.buf) - u.pos
}

func (u *Unwrap) take(n int) ([]byte, error) {
	if u.Remaining() < n {
		return nil, fmt.Errorf("ddml: %w: need %d bytes, have %d", ddmlerr.ErrBufferExhausted, n, u.Remaining())
	}
	b := u.buf[u.pos : u.pos+n]
	u.pos += n
	return b, nil
}

// Absorb reads n bytes from the stream, absorbs them, and returns them.
func (u *Unwrap) Absorb(n int) ([]byte, error) {
	b, err := u.take(n)
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), b...)
	u.sponge.Absorb(out)
	return out, nil
}

func (u *Unwrap) AbsorbUint8() (uint8, error) {
	b, err := u.Absorb(1)
	if err != nil {
		return 0, err
	}
	return getUint8(b), nil
}

func (u *Unwrap) AbsorbUint16() (uint16, error) {
	b, err := u.Absorb(2)
	if err != nil {
		return 0, err
	}
	return getUint16(b), nil
}

func (u *Unwrap) AbsorbUint32() (uint32, error) {
	b, err := u.Absorb(4)
	if err != nil {
		return 0, err
	}
	return getUint32(b), nil
}

func (u *Unwrap) AbsorbUint64() (uint64, error) {
	b, err := u.Absorb(8)
	if err != nil {
		return 0, err
	}
	return getUint64(b), nil
}

// AbsorbBytes reads a Size-prefixed byte string.
func (u *Unwrap) AbsorbBytes() ([]byte, error) {
	sizePrefix, err := u.peekSize()
	if err != nil {
		return nil, err
	}
	if _, err := u.Absorb(sizePrefix.consumed); err != nil {
		return nil, err
	}
	return u.Absorb(sizePrefix.n)
}

// AbsorbNBytes reads a fixed-width, length-unprefixed byte string.
func (u *Unwrap) AbsorbNBytes(n int) ([]byte, error) {
	return u.Absorb(n)
}

type sizePrefix struct {
	n        int
	consumed int
}

func (u *Unwrap) peekSize() (sizePrefix, error) {
	if u.Remaining() < 1 {
		return sizePrefix{}, fmt.Errorf("ddml: %w: empty size prefix", ddmlerr.ErrBufferExhausted)
	}
	n, consumed, err := decodeSize(u.buf[u.pos:])
	if err != nil {
		return sizePrefix{}, err
	}
	return sizePrefix{n: n, consumed: consumed}, nil
}

// Mask reads n ciphertext bytes, decrypts them through the sponge, and
// returns the plaintext.
func (u *Unwrap) Mask(n int) ([]byte, error) {
	ct, err := u.take(n)
	if err != nil {
		return nil, err
	}
	return u.sponge.Decrypt(ct), nil
}

// MaskBytes reads a clear Size prefix (absorbed, not masked) followed by
// that many masked bytes.
func (u *Unwrap) MaskBytes() ([]byte, error) {
	sp, err := u.peekSize()
	if err != nil {
		return nil, err
	}
	if _, err := u.Absorb(sp.consumed); err != nil {
		return nil, err
	}
	return u.Mask(sp.n)
}

// Skip reads n bytes with no sponge mutation.
func (u *Unwrap) Skip(n int) ([]byte, error) {
	return u.take(n)
}

// SkipUint64 reads a fixed-width big-endian uint64 with no sponge mutation.
func (u *Unwrap) SkipUint64() (uint64, error) {
	b, err := u.Skip(8)
	if err != nil {
		return 0, err
	}
	return getUint64(b), nil
}

// SqueezeMac reads n bytes and compares them against sponge.Squeeze(n);
// a mismatch is ErrMacMismatch.
func (u *Unwrap) SqueezeMac(n int) error {
	got, err := u.take(n)
	if err != nil {
		return err
	}
	want := u.sponge.Squeeze(n)
	if !bytes.Equal(got, want) {
		return fmt.Errorf("ddml: %w", ddmlerr.ErrMacMismatch)
	}
	return nil
}

// AbsorbExternal absorbs bytes into the sponge with no stream I/O.
func (u *Unwrap) AbsorbExternal(x []byte) {
	u.sponge.Absorb(x)
}

// SqueezeExternal squeezes n bytes from the sponge with no stream I/O.
func (u *Unwrap) SqueezeExternal(n int) []byte {
	return u.sponge.Squeeze(n)
}

// Commit forces a permutation round if the sponge has pending rate data.
func (u *Unwrap) Commit() {
	u.sponge.Commit()
}

// Join absorbs another (already-committed) sponge's finalized state into
// this context's sponge.
func (u *Unwrap) Join(linked *sponge.Sponge) error {
	if err := u.sponge.Join(linked); err != nil {
		return fmt.Errorf("ddml: %w", ddmlerr.ErrLinkedNotCommitted)
	}
	return nil
}

// Fork clones the sponge and runs f over a side Unwrap context that shares
// this context's input cursor but mutates only the forked sponge.
func (u *Unwrap) Fork(f func(fork *Unwrap) error) error {
	fork := &Unwrap{buf: u.buf, pos: u.pos, sponge: u.sponge.Fork()}
	if err := f(fork); err != nil {
		return err
	}
	u.pos = fork.pos
	return nil
}

// Verify commits, squeezes a 64-byte external hash, reads a 64-byte Ed25519
// signature, and verifies it against identifier. A mismatch is
// ErrBadSignature.
func (u *Unwrap) Verify(identifier identity.Identifier) error {
	if identifier.Kind != identity.KindEd25519 {
		return fmt.Errorf("ddml: %w", ddmlerr.ErrBadIdentifierTag)
	}
	u.Commit()
	hash := u.SqueezeExternal(64)
	sig, err := u.take(64)
	if err != nil {
		return err
	}
	if !ed25519.Verify(identifier.Ed25519[:], hash, sig) {
		return fmt.Errorf("ddml: %w", ddmlerr.ErrBadSignature)
	}
	return nil
}

// X25519 derives a Diffie-Hellman shared secret and absorbs it into the
// sponge without any stream I/O.
func (u *Unwrap) X25519(ownSK, peerPK [32]byte) error {
	shared, err := curve25519.X25519(ownSK[:], peerPK[:])
	if err != nil {
		return fmt.Errorf("ddml: x25519: %w", err)
	}
	u.AbsorbExternal(shared)
	return nil
}

// X25519DecryptKey reads ephemeral_pk || masked_key (masked_key is
// keyMaterialSize bytes) from the stream, derives the shared secret with
// the receiver's own static SK, and unmasks the key material inside a
// forked sponge.
func (u *Unwrap) X25519DecryptKey(ownSK [32]byte, keyMaterialSize int) ([]byte, error) {
	ephemeralPK, err := u.take(32)
	if err != nil {
		return nil, err
	}
	var epk [32]byte
	copy(epk[:], ephemeralPK)

	var out []byte
	err = u.Fork(func(fork *Unwrap) error {
		shared := noise.DH25519.DH(ownSK[:], epk[:])
		fork.AbsorbExternal(shared)
		plaintext, err := fork.Mask(keyMaterialSize)
		if err != nil {
			return err
		}
		out = plaintext
		return nil
	})
	return out, err
}
