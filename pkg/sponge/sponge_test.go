package sponge_test

import (
	"bytes"
	"testing"

	"github.com/WebFirstLanguage/strandweave/pkg/sponge"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	pt := []byte("the quick brown fox jumps over the lazy dog, repeatedly, to exceed one rate block")

	enc := sponge.New()
	enc.Absorb([]byte("shared-key"))
	ct := enc.Encrypt(pt)

	dec := sponge.New()
	dec.Absorb([]byte("shared-key"))
	got := dec.Decrypt(ct)

	if !bytes.Equal(got, pt) {
		t.Fatalf("decrypt mismatch: got %q want %q", got, pt)
	}
}

func TestCommitIdempotent(t *testing.T) {
	s := sponge.New()
	s.Absorb([]byte("hello"))
	s.Commit()
	before := s.Bytes()
	s.Commit()
	after := s.Bytes()
	if before != after || s.Offset() != 0 {
		t.Fatalf("commit is not idempotent")
	}
}

func TestSqueezeDeterministic(t *testing.T) {
	mk := func() []byte {
		s := sponge.New()
		s.Absorb([]byte("domain-separated-input"))
		return s.Squeeze(32)
	}
	a, b := mk(), mk()
	if !bytes.Equal(a, b) {
		t.Fatalf("squeeze is not a pure function of absorbed input")
	}
}

func TestAbsorbBoundaryPermutes(t *testing.T) {
	s := sponge.New()
	s.Absorb(bytes.Repeat([]byte{0x42}, sponge.Rate))
	if s.Offset() != 0 {
		t.Fatalf("offset should reset to 0 after a full rate block, got %d", s.Offset())
	}
}

func TestJoinRequiresCommittedSponge(t *testing.T) {
	left := sponge.New()
	right := sponge.New()
	right.Absorb([]byte("partial")) // leaves a pending, uncommitted offset

	if err := left.Join(right); err == nil {
		t.Fatalf("expected Join to reject an uncommitted sponge")
	}

	right.Commit()
	if err := left.Join(right); err != nil {
		t.Fatalf("Join of a committed sponge should succeed: %v", err)
	}
}

func TestForkIsIndependent(t *testing.T) {
	base := sponge.New()
	base.Absorb([]byte("base"))
	base.Commit()

	fork := base.Fork()
	fork.Absorb([]byte("only-on-fork"))

	baseBytes := base.Bytes()
	fork.Commit()
	forkBytes := fork.Bytes()

	if baseBytes == forkBytes {
		t.Fatalf("fork mutation leaked back into the original sponge")
	}
}

func TestJoinIsDeterministic(t *testing.T) {
	mkJoined := func() [200]byte {
		link := sponge.New()
		link.Absorb([]byte("linked-message"))
		link.Commit()

		s := sponge.New()
		s.Absorb([]byte("new-message-prelude"))
		if err := s.Join(link); err != nil {
			t.Fatalf("join: %v", err)
		}
		s.Commit()
		return s.Bytes()
	}
	a, b := mkJoined(), mkJoined()
	if a != b {
		t.Fatalf("join is not a pure function of its inputs")
	}
}
