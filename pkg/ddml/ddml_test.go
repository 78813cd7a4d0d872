package ddml_test

import (
	"bytes"
	"errors"
	"testing"

	"golang.org/x/crypto/curve25519"

	"github.com/WebFirstLanguage/strandweave/pkg/ddml"
	"github.com/WebFirstLanguage/strandweave/pkg/ddmlerr"
	"github.com/WebFirstLanguage/strandweave/pkg/identity"
	"github.com/WebFirstLanguage/strandweave/pkg/sponge"
)

func TestWrapUnwrapRoundTrip(t *testing.T) {
	w := ddml.NewWrap(sponge.New())
	w.AbsorbUint32(42)
	w.AbsorbBytes([]byte("hello branch"))
	w.MaskBytes([]byte("secret payload"))
	tag := w.SqueezeMac(32)

	u := ddml.NewUnwrap(w.Bytes(), sponge.New())
	n, err := u.AbsorbUint32()
	if err != nil || n != 42 {
		t.Fatalf("absorb uint32: got %d, err %v", n, err)
	}
	s, err := u.AbsorbBytes()
	if err != nil || string(s) != "hello branch" {
		t.Fatalf("absorb bytes: got %q, err %v", s, err)
	}
	payload, err := u.MaskBytes()
	if err != nil || string(payload) != "secret payload" {
		t.Fatalf("mask bytes: got %q, err %v", payload, err)
	}
	if err := u.SqueezeMac(32); err != nil {
		t.Fatalf("mac mismatch: %v", err)
	}
	_ = tag
	if u.Remaining() != 0 {
		t.Fatalf("expected stream fully consumed, %d bytes left", u.Remaining())
	}
}

func TestUnwrapDetectsMacMismatch(t *testing.T) {
	w := ddml.NewWrap(sponge.New())
	w.AbsorbBytes([]byte("payload"))
	w.SqueezeMac(16)
	corrupted := append([]byte(nil), w.Bytes()...)
	corrupted[len(corrupted)-1] ^= 0xFF

	u := ddml.NewUnwrap(corrupted, sponge.New())
	if _, err := u.AbsorbBytes(); err != nil {
		t.Fatalf("absorb bytes: %v", err)
	}
	if err := u.SqueezeMac(16); err == nil {
		t.Fatalf("expected mac mismatch")
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	id := identity.DeriveEd25519Identity([]byte("SIGNER9SEED"))

	w := ddml.NewWrap(sponge.New())
	w.AbsorbBytes([]byte("announce body"))
	if err := w.Sign(id); err != nil {
		t.Fatalf("sign: %v", err)
	}

	u := ddml.NewUnwrap(w.Bytes(), sponge.New())
	if _, err := u.AbsorbBytes(); err != nil {
		t.Fatalf("absorb bytes: %v", err)
	}
	if err := u.Verify(id.Identifier()); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	id := identity.DeriveEd25519Identity([]byte("SIGNER9SEED"))

	w := ddml.NewWrap(sponge.New())
	w.AbsorbBytes([]byte("announce body"))
	if err := w.Sign(id); err != nil {
		t.Fatalf("sign: %v", err)
	}
	tampered := append([]byte(nil), w.Bytes()...)
	tampered[2] ^= 0x01 // perturb a body byte inside the Size-prefixed field

	u := ddml.NewUnwrap(tampered, sponge.New())
	if _, err := u.AbsorbBytes(); err != nil {
		t.Fatalf("absorb bytes: %v", err)
	}
	if err := u.Verify(id.Identifier()); err == nil {
		t.Fatalf("expected signature verification to fail on tampered body")
	}
}

func TestPskIsNotASignatureCapability(t *testing.T) {
	psk := identity.DerivePskIdentity([]byte("PSKSEED"))
	w := ddml.NewWrap(sponge.New())
	w.AbsorbBytes([]byte("body"))
	if err := w.Sign(psk); err == nil {
		t.Fatalf("expected psk identity to be rejected as a signer")
	} else if !errors.Is(err, ddmlerr.ErrNoSignatureCapability) {
		t.Fatalf("expected ErrNoSignatureCapability, got %v", err)
	}
}

func TestForkDoesNotMutateOuterSponge(t *testing.T) {
	w := ddml.NewWrap(sponge.New())
	w.Absorb([]byte("shared prefix"))

	withoutFork := ddml.NewWrap(sponge.New())
	withoutFork.Absorb([]byte("shared prefix"))
	wantTag := withoutFork.SqueezeMac(16)

	if err := w.Fork(func(fork *ddml.Wrap) error {
		fork.Absorb([]byte("per-recipient data"))
		fork.SqueezeMac(16)
		return nil
	}); err != nil {
		t.Fatalf("fork: %v", err)
	}
	gotTag := w.SqueezeMac(16)

	if !bytes.Equal(gotTag, wantTag) {
		t.Fatalf("fork leaked state into the outer sponge: got %x want %x", gotTag, wantTag)
	}
}

func TestX25519EncryptDecryptKeyRoundTrip(t *testing.T) {
	recipient := identity.DeriveEd25519Identity([]byte("RECIPIENT9SEED"))
	recipientSK := recipient.X25519Private()
	recipientPK := recipient.X25519Public()

	var ephemeralSK, ephemeralPK [32]byte
	copy(ephemeralSK[:], []byte("EPHEMERALSECRETKEY0000000000000"))
	ephemeralPK = curveBase(ephemeralSK)

	sessionKey := bytesOfLen(32, 0x42)

	w := ddml.NewWrap(sponge.New())
	if err := w.X25519EncryptKey(recipientPK, sessionKey, ephemeralSK, ephemeralPK); err != nil {
		t.Fatalf("encrypt key: %v", err)
	}

	u := ddml.NewUnwrap(w.Bytes(), sponge.New())
	got, err := u.X25519DecryptKey(recipientSK, len(sessionKey))
	if err != nil {
		t.Fatalf("decrypt key: %v", err)
	}
	if !bytes.Equal(got, sessionKey) {
		t.Fatalf("decrypted key material does not match: got %x want %x", got, sessionKey)
	}
}

func TestSizeofMatchesWrapLength(t *testing.T) {
	sz := ddml.NewSizeof()
	sz.AbsorbUint32(7)
	sz.AbsorbBytes([]byte("topic-name"))
	sz.MaskBytes([]byte("payload bytes"))
	sz.SqueezeMac(32)

	w := ddml.NewWrap(sponge.New())
	w.AbsorbUint32(7)
	w.AbsorbBytes([]byte("topic-name"))
	w.MaskBytes([]byte("payload bytes"))
	w.SqueezeMac(32)

	if sz.Size() != len(w.Bytes()) {
		t.Fatalf("sizeof mismatch: sizeof=%d wrap=%d", sz.Size(), len(w.Bytes()))
	}
}

func bytesOfLen(n int, b byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func curveBase(sk [32]byte) [32]byte {
	var pub [32]byte
	curve25519.ScalarBaseMult(&pub, &sk)
	return pub
}
