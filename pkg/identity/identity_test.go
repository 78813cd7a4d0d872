package identity_test

import (
	"bytes"
	"testing"

	"github.com/WebFirstLanguage/strandweave/pkg/identity"
)

func TestEd25519IdentifierRoundTrip(t *testing.T) {
	id := identity.DeriveEd25519Identity([]byte("AUTHOR9SEED"))
	enc := id.Identifier().Encode()
	if len(enc) != 33 {
		t.Fatalf("expected 33-byte encoding, got %d", len(enc))
	}

	decoded, n, err := identity.DecodeIdentifier(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != 33 {
		t.Fatalf("expected 33 bytes consumed, got %d", n)
	}
	if !decoded.Equal(id.Identifier()) {
		t.Fatalf("round-tripped identifier does not match original")
	}
}

func TestPskIdentifierRoundTrip(t *testing.T) {
	psk := identity.NewPskIdentity([32]byte{0x42})
	enc := psk.Identifier().Encode()
	if len(enc) != 17 {
		t.Fatalf("expected 17-byte encoding, got %d", len(enc))
	}
	decoded, n, err := identity.DecodeIdentifier(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != 17 || !decoded.Equal(psk.Identifier()) {
		t.Fatalf("psk identifier did not round-trip")
	}
}

func TestDeriveEd25519IsDeterministic(t *testing.T) {
	a := identity.DeriveEd25519Identity([]byte("AUTHOR9SEED"))
	b := identity.DeriveEd25519Identity([]byte("AUTHOR9SEED"))
	if !bytes.Equal(a.PublicKey(), b.PublicKey()) {
		t.Fatalf("deriving from the same seed twice produced different keys")
	}
	c := identity.DeriveEd25519Identity([]byte("SUB9A9SEED"))
	if bytes.Equal(a.PublicKey(), c.PublicKey()) {
		t.Fatalf("different seeds produced the same key")
	}
}

func TestX25519DerivationIsDeterministic(t *testing.T) {
	a := identity.DeriveEd25519Identity([]byte("AUTHOR9SEED"))
	b := identity.DeriveEd25519Identity([]byte("AUTHOR9SEED"))
	if a.X25519Public() != b.X25519Public() {
		t.Fatalf("x25519 derivation is not a pure function of the ed25519 seed")
	}
}

func TestPskCannotSign(t *testing.T) {
	psk := identity.NewPskIdentity([32]byte{0x42})
	if psk.CanSign() {
		t.Fatalf("psk identity must not report signing capability")
	}
}

func TestBadIdentifierTag(t *testing.T) {
	if _, _, err := identity.DecodeIdentifier([]byte{0x02, 0x00}); err == nil {
		t.Fatalf("expected an error for an unknown identifier tag")
	}
}
