package address_test

import (
	"testing"

	"github.com/WebFirstLanguage/strandweave/pkg/address"
	"github.com/WebFirstLanguage/strandweave/pkg/identity"
)

func TestAppAddrIsPureFunctionOfInputs(t *testing.T) {
	author := identity.DeriveEd25519Identity([]byte("AUTHOR9SEED")).Identifier()
	topic, err := address.NewTopic("BASE")
	if err != nil {
		t.Fatalf("new topic: %v", err)
	}

	a := address.DeriveAppAddr(author, topic, 7)
	b := address.DeriveAppAddr(author, topic, 7)
	if a != b {
		t.Fatalf("AppAddr is not deterministic")
	}

	c := address.DeriveAppAddr(author, topic, 8)
	if a == c {
		t.Fatalf("different nonces produced the same AppAddr")
	}
}

func TestMsgIDIsPureFunctionOfInputs(t *testing.T) {
	author := identity.DeriveEd25519Identity([]byte("AUTHOR9SEED")).Identifier()
	topic, _ := address.NewTopic("BASE")
	root := address.DeriveAppAddr(author, topic, 1)

	a := address.DeriveMsgID(root, author, topic, 1)
	b := address.DeriveMsgID(root, author, topic, 1)
	if a != b {
		t.Fatalf("MsgID is not deterministic")
	}

	c := address.DeriveMsgID(root, author, topic, 2)
	if a == c {
		t.Fatalf("different sequence numbers produced the same MsgID")
	}
}

func TestTopicNormalizationUnifiesEquivalentUnicodeForms(t *testing.T) {
	// U+00E9 (precomposed "e acute") and the canonically-equivalent
	// U+0065 U+0301 (bare "e" + combining acute accent) are NFKC
	// equivalent; both callers should land on the same topic.
	precomposedName := "caf\u00e9"
	decomposedName := "cafe\u0301"

	precomposed, err := address.NewTopic(precomposedName)
	if err != nil {
		t.Fatalf("new topic (precomposed): %v", err)
	}
	decomposed, err := address.NewTopic(decomposedName)
	if err != nil {
		t.Fatalf("new topic (decomposed): %v", err)
	}
	if !precomposed.Equal(decomposed) {
		t.Fatalf("NFKC-equivalent topic names produced different Topic bytes")
	}
	if address.HashTopic(precomposed) != address.HashTopic(decomposed) {
		t.Fatalf("NFKC-equivalent topic names produced different TopicHash values")
	}
}

func TestTopicTooLongIsRejected(t *testing.T) {
	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := address.NewTopic(string(long)); err == nil {
		t.Fatalf("expected an error for an over-long topic")
	}
}

func TestAddressIndexConcatenation(t *testing.T) {
	var a address.AppAddr
	var m address.MsgID
	for i := range a {
		a[i] = byte(i)
	}
	for i := range m {
		m[i] = byte(0x80 + i)
	}
	addr := address.Address{AppAddr: a, MsgID: m}
	idx := addr.Index()
	if len(idx) != 44 {
		t.Fatalf("expected a 44-byte index, got %d", len(idx))
	}
	for i := range a {
		if idx[i] != a[i] {
			t.Fatalf("app addr not at index prefix")
		}
	}
	for i := range m {
		if idx[32+i] != m[i] {
			t.Fatalf("msg id not at index suffix")
		}
	}
}
