package ddml

import (
	"fmt"

	"github.com/flynn/noise"
	"golang.org/x/crypto/curve25519"

	"github.com/WebFirstLanguage/strandweave/pkg/ddmlerr"
	"github.com/WebFirstLanguage/strandweave/pkg/identity"
	"github.com/WebFirstLanguage/strandweave/pkg/sponge"
)

// Wrap drives field commands in declaration order, writing bytes to an
// internal buffer while mutating a sponge. Fields are encoded in the same
// order builders unwrap them in; any deviation desynchronizes the sponge.
type Wrap struct {
	buf    []byte
	sponge *sponge.Sponge
}

// NewWrap starts a wrap context over the given sponge.
func NewWrap(s *sponge.Sponge) *Wrap {
	return &Wrap{sponge: s}
}

// Bytes returns the bytes written so far.
func (w *Wrap) Bytes() []byte {
	return w.buf
}

// Sponge returns the underlying sponge (for builders that need to stash it
// post-wrap into the spongos store).
func (w *Wrap) Sponge() *sponge.Sponge {
	return w.sponge
}

func (w *Wrap) emit(b []byte) {
	w.buf = append(w.buf, b...)
}

// Absorb appends raw bytes to the stream and absorbs them into the sponge.
func (w *Wrap) Absorb(x []byte) {
	w.emit(x)
	w.sponge.Absorb(x)
}

// AbsorbUint8/16/32/64 absorb a fixed-width big-endian integer.
func (w *Wrap) AbsorbUint8(v uint8) {
	var b [1]byte
	putUint8(b[:], v)
	w.Absorb(b[:])
}

func (w *Wrap) AbsorbUint16(v uint16) {
	var b [2]byte
	putUint16(b[:], v)
	w.Absorb(b[:])
}

func (w *Wrap) AbsorbUint32(v uint32) {
	var b [4]byte
	putUint32(b[:], v)
	w.Absorb(b[:])
}

func (w *Wrap) AbsorbUint64(v uint64) {
	var b [8]byte
	putUint64(b[:], v)
	w.Absorb(b[:])
}

// AbsorbBytes absorbs a Size-prefixed byte string (the Bytes primitive).
func (w *Wrap) AbsorbBytes(x []byte) {
	w.Absorb(encodeSize(len(x)))
	w.Absorb(x)
}

// AbsorbNBytes absorbs a fixed-width, length-unprefixed byte string (the
// NBytes primitive).
func (w *Wrap) AbsorbNBytes(x []byte) {
	w.Absorb(x)
}

// Mask encrypts x through the sponge and appends the ciphertext to the
// stream.
func (w *Wrap) Mask(x []byte) {
	ct := w.sponge.Encrypt(x)
	w.emit(ct)
}

// MaskBytes masks a Size-prefixed byte string: the size prefix itself is
// absorbed in the clear (so an unwrapper can learn how many ciphertext
// bytes follow), and the payload is masked.
func (w *Wrap) MaskBytes(x []byte) {
	w.Absorb(encodeSize(len(x)))
	w.Mask(x)
}

// Skip appends raw bytes to the stream without mutating the sponge. Used
// for fields that must not influence the transcript, such as HDF.sequence.
func (w *Wrap) Skip(x []byte) {
	w.emit(x)
}

// SkipUint64 skips a fixed-width big-endian uint64.
func (w *Wrap) SkipUint64(v uint64) {
	var b [8]byte
	putUint64(b[:], v)
	w.Skip(b[:])
}

// SqueezeMac squeezes n bytes from the sponge and appends them to the
// stream as a MAC.
func (w *Wrap) SqueezeMac(n int) []byte {
	tag := w.sponge.Squeeze(n)
	w.emit(tag)
	return tag
}

// AbsorbExternal absorbs bytes into the sponge with no stream I/O. Used for
// the linked_msg_id, which the unwrap side recovers from the transport
// lookup key rather than from the wire.
func (w *Wrap) AbsorbExternal(x []byte) {
	w.sponge.Absorb(x)
}

// SqueezeExternal squeezes n bytes from the sponge with no stream I/O,
// typically used as the hash input to Sign/Verify.
func (w *Wrap) SqueezeExternal(n int) []byte {
	return w.sponge.Squeeze(n)
}

// Commit forces a permutation round if the sponge has pending rate data.
func (w *Wrap) Commit() {
	w.sponge.Commit()
}

// Join absorbs another (already-committed) sponge's finalized state into
// this context's sponge. linked must be committed: the linked sponge must
// be committed before the join, and the joining state must not itself have
// a pending rate write.
func (w *Wrap) Join(linked *sponge.Sponge) error {
	if err := w.sponge.Join(linked); err != nil {
		return fmt.Errorf("ddml: %w", ddmlerr.ErrLinkedNotCommitted)
	}
	return nil
}

// Fork clones the sponge and runs f over a side Wrap context that shares
// this context's output stream but mutates only the forked sponge; the
// outer sponge is unchanged. Used to derive per-recipient key slots without
// polluting the main transcript.
func (w *Wrap) Fork(f func(fork *Wrap) error) error {
	fork := &Wrap{sponge: w.sponge.Fork()}
	if err := f(fork); err != nil {
		return err
	}
	w.emit(fork.buf)
	return nil
}

// Sign commits, squeezes a 64-byte external hash, signs it with identity,
// and appends the 64-byte Ed25519 signature to the stream. PSK identities
// cannot sign.
func (w *Wrap) Sign(id identity.Identity) error {
	signer, ok := id.(*identity.Ed25519Identity)
	if !ok || !id.CanSign() {
		return fmt.Errorf("ddml: %w", ddmlerr.ErrNoSignatureCapability)
	}
	w.Commit()
	hash := w.SqueezeExternal(64)
	sig := signer.Sign(hash)
	w.emit(sig)
	return nil
}

// X25519 derives a Diffie-Hellman shared secret between ownSK and peerPK
// and absorbs it into the sponge without any stream I/O.
func (w *Wrap) X25519(ownSK, peerPK [32]byte) error {
	shared, err := curve25519.X25519(ownSK[:], peerPK[:])
	if err != nil {
		return fmt.Errorf("ddml: x25519: %w", err)
	}
	w.AbsorbExternal(shared)
	return nil
}

// X25519EncryptKey takes a caller-supplied ephemeral X25519 keypair, derives
// a shared secret with peerPK inside a forked sponge, and masks keyMaterial
// under that fork. The wire output is ephemeral_pk || masked_key.
func (w *Wrap) X25519EncryptKey(peerPK [32]byte, keyMaterial []byte, ephemeralSK, ephemeralPK [32]byte) error {
	w.emit(ephemeralPK[:])
	return w.Fork(func(fork *Wrap) error {
		shared := noise.DH25519.DH(ephemeralSK[:], peerPK[:])
		fork.AbsorbExternal(shared)
		fork.Mask(keyMaterial)
		return nil
	})
}
