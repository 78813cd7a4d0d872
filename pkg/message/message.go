// Package message implements the seven typed message bodies (§4.E): one
// wrap/unwrap pair per type, each driving the DDML codec (pkg/ddml) over a
// sponge already positioned by the caller (fresh for ANNOUNCE, joined from a
// linked message's finalized state for everything else).
//
// Two fields are carried beyond the literal per-type list in §4.E: ANNOUNCE
// additionally masks the author's X25519 public key, and SUBSCRIBE
// additionally masks the subscriber's. Ed25519-to-X25519 derivation
// (identity.Ed25519Identity.X25519Public) only works from the owning
// party's secret seed, so without this addition neither side could ever
// learn the other's key-agreement key and the x25519 step in SUBSCRIBE
// would be undriveable. This is the deterministic, injective binding
// §4.C leaves to the implementation.
package message

import (
	"crypto/rand"
	"fmt"

	"github.com/flynn/noise"

	"github.com/WebFirstLanguage/strandweave/pkg/ddml"
	"github.com/WebFirstLanguage/strandweave/pkg/ddmlerr"
	"github.com/WebFirstLanguage/strandweave/pkg/identity"
)

// Keyload recipient slots carry a one-byte kind discriminator ahead of their
// key material so an unwrapper can tell an X25519-wrapped slot from a
// PSK-wrapped one without already knowing the recipient list: absorb_external
// carries no stream bytes, so nothing else in the wire format identifies a
// slot's owner. This resolves that gap (see DESIGN.md).
const (
	slotKindX25519 byte = 0x00
	slotKindPSK    byte = 0x01
)

// confirmTagSize is the length of the per-slot squeeze-compare tag that lets
// an unwrapper recognize a successfully decrypted slot (§4.H: "attempt to
// unwrap each recipient slot until one matches own identity").
const confirmTagSize = 8

// RecipientInput is one KEYLOAD recipient as known to the author.
type RecipientInput struct {
	Identifier identity.Identifier
	X25519Pub  [32]byte // used when Identifier.Kind == identity.KindEd25519
	PSK        [32]byte // used when Identifier.Kind == identity.KindPskID
}

// SelfCredentials is the unwrap-side key material a KEYLOAD recipient tries
// against every slot in turn.
type SelfCredentials struct {
	Identifier identity.Identifier
	HasX25519  bool
	X25519SK   [32]byte
	KnownPSKs  [][32]byte
}

// freshX25519Ephemeral generates a one-shot X25519 keypair for a single
// KEYLOAD recipient slot, via the same noise.DH25519 function the rest of
// the corpus reaches for whenever it needs an X25519 keypair fed into a
// framed protocol handshake.
func freshX25519Ephemeral() (sk, pk [32]byte, err error) {
	kp, err := noise.DH25519.GenerateKeypair(rand.Reader)
	if err != nil {
		return [32]byte{}, [32]byte{}, fmt.Errorf("message: generate ephemeral x25519 key: %w", err)
	}
	copy(sk[:], kp.Private)
	copy(pk[:], kp.Public)
	return sk, pk, nil
}

func badIdentifierTag(tag byte) error {
	return fmt.Errorf("message: %w: 0x%02x", ddmlerr.ErrBadIdentifierTag, tag)
}

func badSlotKind(kind byte) error {
	return fmt.Errorf("message: bad keyload slot kind 0x%02x: %w", kind, ddmlerr.ErrBadIdentifierTag)
}

// maskIdentifier masks a tagged Identifier as a whole. Its companion,
// unmaskIdentifier, decrypts the 1-byte tag first so it can learn how many
// further bytes the body needs before decrypting it — the same trick
// pkg/wire uses for HDF.PublisherID.
func maskIdentifier(w *ddml.Wrap, id identity.Identifier) {
	w.Mask(id.Encode())
}

func unmaskIdentifier(u *ddml.Unwrap) (identity.Identifier, error) {
	tagByte, err := u.Mask(1)
	if err != nil {
		return identity.Identifier{}, err
	}
	switch identity.Kind(tagByte[0]) {
	case identity.KindEd25519:
		body, err := u.Mask(32)
		if err != nil {
			return identity.Identifier{}, err
		}
		var pk [32]byte
		copy(pk[:], body)
		return identity.Ed25519Identifier(pk), nil
	case identity.KindPskID:
		body, err := u.Mask(16)
		if err != nil {
			return identity.Identifier{}, err
		}
		var id [16]byte
		copy(id[:], body)
		return identity.PskIdentifier(id), nil
	default:
		return identity.Identifier{}, badIdentifierTag(tagByte[0])
	}
}
