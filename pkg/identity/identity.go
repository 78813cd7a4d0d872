// Package identity implements the three sending-side key-material kinds the
// core messaging protocol recognizes — Ed25519 signing identities, X25519
// key-agreement derivation, and pre-shared-key identities — as specified in
// §3 and §4.C. Identifiers are the tagged-union wire handle for any party.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"github.com/WebFirstLanguage/strandweave/pkg/config"
	"github.com/WebFirstLanguage/strandweave/pkg/sponge"
)

// Kind distinguishes the two Identifier variants the wire format supports.
type Kind byte

const (
	KindEd25519 Kind = config.IdentifierTagEd25519
	KindPskID   Kind = config.IdentifierTagPskID
)

// Identifier is the tagged-union handle for any protocol party: either an
// Ed25519 public key or a pre-shared-key id. Equality and hashing are
// structural, so an Identifier is safe to use as a map key.
type Identifier struct {
	Kind    Kind
	Ed25519 [32]byte
	PskID   [16]byte
}

// Ed25519Identifier builds an Identifier for an Ed25519 public key.
func Ed25519Identifier(pub [32]byte) Identifier {
	return Identifier{Kind: KindEd25519, Ed25519: pub}
}

// PskIdentifier builds an Identifier for a pre-shared-key id.
func PskIdentifier(id [16]byte) Identifier {
	return Identifier{Kind: KindPskID, PskID: id}
}

// Encode serializes the identifier as a 1-byte tag followed by its body.
func (id Identifier) Encode() []byte {
	switch id.Kind {
	case KindEd25519:
		out := make([]byte, 1+32)
		out[0] = byte(KindEd25519)
		copy(out[1:], id.Ed25519[:])
		return out
	case KindPskID:
		out := make([]byte, 1+16)
		out[0] = byte(KindPskID)
		copy(out[1:], id.PskID[:])
		return out
	default:
		panic("identity: invalid identifier kind")
	}
}

// DecodeIdentifier reads a tagged identifier from the front of b, returning
// the identifier and the number of bytes consumed.
func DecodeIdentifier(b []byte) (Identifier, int, error) {
	if len(b) < 1 {
		return Identifier{}, 0, fmt.Errorf("identity: empty identifier buffer")
	}
	switch Kind(b[0]) {
	case KindEd25519:
		if len(b) < 1+32 {
			return Identifier{}, 0, fmt.Errorf("identity: short ed25519 identifier")
		}
		var pk [32]byte
		copy(pk[:], b[1:33])
		return Ed25519Identifier(pk), 33, nil
	case KindPskID:
		if len(b) < 1+16 {
			return Identifier{}, 0, fmt.Errorf("identity: short psk identifier")
		}
		var id [16]byte
		copy(id[:], b[1:17])
		return PskIdentifier(id), 17, nil
	default:
		return Identifier{}, 0, fmt.Errorf("identity: bad identifier tag 0x%02x", b[0])
	}
}

// Equal reports whether two identifiers are structurally identical.
func (id Identifier) Equal(other Identifier) bool {
	return id == other
}

func (id Identifier) String() string {
	switch id.Kind {
	case KindEd25519:
		return fmt.Sprintf("ed25519:%x", id.Ed25519[:8])
	case KindPskID:
		return fmt.Sprintf("psk:%x", id.PskID[:8])
	default:
		return "invalid-identifier"
	}
}

// Identity is sending-side key material: an Ed25519Identity or a
// PskIdentity.
type Identity interface {
	// Identifier returns this identity's public handle.
	Identifier() Identifier
	// CanSign reports whether Sign is usable; PSK identities cannot sign.
	CanSign() bool
}

// Ed25519Identity can sign, derive an X25519 key-agreement key, and decrypt
// key slots addressed to its public key.
type Ed25519Identity struct {
	sk ed25519.PrivateKey
}

// NewEd25519Identity wraps an existing Ed25519 private key.
func NewEd25519Identity(sk ed25519.PrivateKey) *Ed25519Identity {
	return &Ed25519Identity{sk: sk}
}

// GenerateEd25519Identity creates a fresh, randomly keyed Ed25519 identity.
func GenerateEd25519Identity() (*Ed25519Identity, error) {
	_, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate ed25519 key: %w", err)
	}
	return &Ed25519Identity{sk: sk}, nil
}

// DeriveEd25519Identity deterministically derives an Ed25519 identity from a
// seed: sk_seed = sponge.init.absorb("ED25519"+seed).squeeze(32), per §4.C.
func DeriveEd25519Identity(seed []byte) *Ed25519Identity {
	s := sponge.New()
	s.Absorb([]byte("ED25519"))
	s.Absorb(seed)
	skSeed := s.Squeeze(32)
	return &Ed25519Identity{sk: ed25519.NewKeyFromSeed(skSeed)}
}

// PublicKey returns the raw Ed25519 public key.
func (i *Ed25519Identity) PublicKey() ed25519.PublicKey {
	return i.sk.Public().(ed25519.PublicKey)
}

// Seed returns the 32-byte seed this identity's private key was generated
// or derived from. Exposed for pkg/persist, which needs it to round-trip an
// Ed25519Identity through a save file.
func (i *Ed25519Identity) Seed() []byte {
	return i.sk.Seed()
}

// Identifier returns this identity's Ed25519 public-key handle.
func (i *Ed25519Identity) Identifier() Identifier {
	var pk [32]byte
	copy(pk[:], i.PublicKey())
	return Ed25519Identifier(pk)
}

// CanSign always reports true for an Ed25519 identity.
func (i *Ed25519Identity) CanSign() bool { return true }

// Sign signs an already-squeezed transcript hash with the Ed25519 key.
func (i *Ed25519Identity) Sign(hash []byte) []byte {
	return ed25519.Sign(i.sk, hash)
}

// X25519Private derives this identity's X25519 key-agreement private key.
// The mapping from the Ed25519 seed to an X25519 scalar only needs to be
// deterministic and injective (§4.C); this module derives it through the
// sponge rather than a curve-specific bit-twiddle, so it composes with the
// rest of the protocol's seed-derivation story.
func (i *Ed25519Identity) X25519Private() [32]byte {
	s := sponge.New()
	s.Absorb([]byte("X25519"))
	s.Absorb(i.sk.Seed())
	var sk [32]byte
	copy(sk[:], s.Squeeze(32))
	return sk
}

// X25519Public derives this identity's X25519 key-agreement public key.
func (i *Ed25519Identity) X25519Public() [32]byte {
	sk := i.X25519Private()
	var pub [32]byte
	curve25519.ScalarBaseMult(&pub, &sk)
	return pub
}

// PskIdentity cannot sign; it uses a pre-shared key as a key-slot unlocker.
type PskIdentity struct {
	id  [16]byte
	psk [32]byte
}

// NewPskIdentity wraps an existing 32-byte pre-shared key, deriving its id
// as PskId = sponge.init.absorb("PSKID"+psk).squeeze(16), per §4.C.
func NewPskIdentity(psk [32]byte) *PskIdentity {
	s := sponge.New()
	s.Absorb([]byte("PSKID"))
	s.Absorb(psk[:])
	var id [16]byte
	copy(id[:], s.Squeeze(16))
	return &PskIdentity{id: id, psk: psk}
}

// DerivePskIdentity deterministically derives a PSK identity from a seed:
// psk = sponge.init.absorb("PSK"+seed).squeeze(32), per §4.C.
func DerivePskIdentity(seed []byte) *PskIdentity {
	s := sponge.New()
	s.Absorb([]byte("PSK"))
	s.Absorb(seed)
	var psk [32]byte
	copy(psk[:], s.Squeeze(32))
	return NewPskIdentity(psk)
}

// Identifier returns this identity's PskId handle.
func (i *PskIdentity) Identifier() Identifier {
	return PskIdentifier(i.id)
}

// CanSign always reports false for a PSK identity.
func (i *PskIdentity) CanSign() bool { return false }

// PSK returns the raw 32-byte pre-shared key.
func (i *PskIdentity) PSK() [32]byte {
	return i.psk
}
