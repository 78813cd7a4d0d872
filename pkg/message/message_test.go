package message_test

import (
	"bytes"
	"testing"

	"github.com/WebFirstLanguage/strandweave/pkg/address"
	"github.com/WebFirstLanguage/strandweave/pkg/ddml"
	"github.com/WebFirstLanguage/strandweave/pkg/identity"
	"github.com/WebFirstLanguage/strandweave/pkg/message"
	"github.com/WebFirstLanguage/strandweave/pkg/sponge"
)

func TestAnnounceRoundTrip(t *testing.T) {
	author := identity.DeriveEd25519Identity([]byte("AUTHOR9SEED"))
	topic, err := address.NewTopic("BASE")
	if err != nil {
		t.Fatalf("new topic: %v", err)
	}

	w := ddml.NewWrap(sponge.New())
	if err := message.WrapAnnounce(w, author, topic); err != nil {
		t.Fatalf("wrap announce: %v", err)
	}

	u := ddml.NewUnwrap(w.Bytes(), sponge.New())
	got, err := message.UnwrapAnnounce(u)
	if err != nil {
		t.Fatalf("unwrap announce: %v", err)
	}
	if got.AuthorIdentifier != author.Identifier() {
		t.Fatalf("author identifier mismatch")
	}
	if got.AuthorX25519Pub != author.X25519Public() {
		t.Fatalf("author x25519 pubkey mismatch")
	}
	if !got.BaseTopic.Equal(topic) {
		t.Fatalf("topic mismatch: got %q want %q", got.BaseTopic, topic)
	}
	if u.Remaining() != 0 {
		t.Fatalf("unexpected trailing bytes: %d", u.Remaining())
	}
}

func TestBranchAnnounceRoundTrip(t *testing.T) {
	author := identity.DeriveEd25519Identity([]byte("AUTHOR9SEED"))
	baseTopic, _ := address.NewTopic("BASE")
	branchTopic, _ := address.NewTopic("BRANCH-1")

	aw := ddml.NewWrap(sponge.New())
	if err := message.WrapAnnounce(aw, author, baseTopic); err != nil {
		t.Fatalf("wrap announce: %v", err)
	}

	bw := ddml.NewWrap(sponge.New())
	if err := message.WrapBranchAnnounce(bw, aw.Sponge(), author, branchTopic); err != nil {
		t.Fatalf("wrap branch announce: %v", err)
	}

	au := ddml.NewUnwrap(aw.Bytes(), sponge.New())
	if _, err := message.UnwrapAnnounce(au); err != nil {
		t.Fatalf("unwrap announce: %v", err)
	}

	bu := ddml.NewUnwrap(bw.Bytes(), sponge.New())
	got, err := message.UnwrapBranchAnnounce(bu, au.Sponge())
	if err != nil {
		t.Fatalf("unwrap branch announce: %v", err)
	}
	if got.AuthorIdentifier != author.Identifier() {
		t.Fatalf("author identifier mismatch")
	}
	if !got.NewTopic.Equal(branchTopic) {
		t.Fatalf("branch topic mismatch")
	}
}

func TestSubscribeRoundTrip(t *testing.T) {
	author := identity.DeriveEd25519Identity([]byte("AUTHOR9SEED"))
	subscriber := identity.DeriveEd25519Identity([]byte("SUB9A9SEED"))
	baseTopic, _ := address.NewTopic("BASE")

	aw := ddml.NewWrap(sponge.New())
	if err := message.WrapAnnounce(aw, author, baseTopic); err != nil {
		t.Fatalf("wrap announce: %v", err)
	}

	sw := ddml.NewWrap(sponge.New())
	if err := message.WrapSubscribe(sw, aw.Sponge(), subscriber, author.X25519Public()); err != nil {
		t.Fatalf("wrap subscribe: %v", err)
	}

	au := ddml.NewUnwrap(aw.Bytes(), sponge.New())
	announce, err := message.UnwrapAnnounce(au)
	if err != nil {
		t.Fatalf("unwrap announce: %v", err)
	}

	su := ddml.NewUnwrap(sw.Bytes(), sponge.New())
	got, err := message.UnwrapSubscribe(su, au.Sponge(), author.X25519Private())
	if err != nil {
		t.Fatalf("unwrap subscribe: %v", err)
	}
	if got.SubscriberIdentifier != subscriber.Identifier() {
		t.Fatalf("subscriber identifier mismatch")
	}
	if got.SubscriberX25519Pub != subscriber.X25519Public() {
		t.Fatalf("subscriber x25519 pubkey mismatch")
	}
	if announce.AuthorIdentifier != author.Identifier() {
		t.Fatalf("author identifier mismatch")
	}
}

func TestUnsubscribeRoundTrip(t *testing.T) {
	subscriber := identity.DeriveEd25519Identity([]byte("SUB9A9SEED"))
	linked := freshCommittedSponge("prior keyload transcript")

	w := ddml.NewWrap(sponge.New())
	if err := message.WrapUnsubscribe(w, linked, subscriber); err != nil {
		t.Fatalf("wrap unsubscribe: %v", err)
	}

	u := ddml.NewUnwrap(w.Bytes(), sponge.New())
	got, err := message.UnwrapUnsubscribe(u, freshCommittedSponge("prior keyload transcript"))
	if err != nil {
		t.Fatalf("unwrap unsubscribe: %v", err)
	}
	if got.SubscriberIdentifier != subscriber.Identifier() {
		t.Fatalf("subscriber identifier mismatch")
	}
}

func TestSignedPacketRoundTrip(t *testing.T) {
	publisher := identity.DeriveEd25519Identity([]byte("AUTHOR9SEED"))
	linked := freshCommittedSponge("link-signed")

	w := ddml.NewWrap(sponge.New())
	if err := message.WrapSignedPacket(w, linked, publisher, []byte("public hello"), []byte("secret payload")); err != nil {
		t.Fatalf("wrap signed packet: %v", err)
	}

	u := ddml.NewUnwrap(w.Bytes(), sponge.New())
	got, err := message.UnwrapSignedPacket(u, freshCommittedSponge("link-signed"))
	if err != nil {
		t.Fatalf("unwrap signed packet: %v", err)
	}
	if got.PublisherIdentifier != publisher.Identifier() {
		t.Fatalf("publisher identifier mismatch")
	}
	if !bytes.Equal(got.PublicPayload, []byte("public hello")) {
		t.Fatalf("public payload mismatch: %q", got.PublicPayload)
	}
	if !bytes.Equal(got.MaskedPayload, []byte("secret payload")) {
		t.Fatalf("masked payload mismatch: %q", got.MaskedPayload)
	}
}

func TestTaggedPacketRoundTrip(t *testing.T) {
	linked := freshCommittedSponge("link-tagged")

	w := ddml.NewWrap(sponge.New())
	if err := message.WrapTaggedPacket(w, linked, []byte("pub"), []byte("masked content")); err != nil {
		t.Fatalf("wrap tagged packet: %v", err)
	}

	u := ddml.NewUnwrap(w.Bytes(), sponge.New())
	got, err := message.UnwrapTaggedPacket(u, freshCommittedSponge("link-tagged"))
	if err != nil {
		t.Fatalf("unwrap tagged packet: %v", err)
	}
	if !bytes.Equal(got.MaskedPayload, []byte("masked content")) {
		t.Fatalf("masked payload mismatch: %q", got.MaskedPayload)
	}
}

func TestTaggedPacketRejectsWrongSessionKeySponge(t *testing.T) {
	linked := freshCommittedSponge("link-tagged")
	other := freshCommittedSponge("a-different-branch")

	w := ddml.NewWrap(sponge.New())
	if err := message.WrapTaggedPacket(w, linked, []byte("pub"), []byte("masked content")); err != nil {
		t.Fatalf("wrap tagged packet: %v", err)
	}

	u := ddml.NewUnwrap(w.Bytes(), sponge.New())
	if _, err := message.UnwrapTaggedPacket(u, other); err == nil {
		t.Fatalf("expected failure unwrapping with the wrong linked sponge")
	}
}

func TestKeyloadGatesRecipients(t *testing.T) {
	author := identity.DeriveEd25519Identity([]byte("AUTHOR9SEED"))
	insider := identity.DeriveEd25519Identity([]byte("INSIDER9SEED"))
	outsider := identity.DeriveEd25519Identity([]byte("OUTSIDER9SEED"))
	pskHolder := identity.DerivePskIdentity([]byte("SHARED9SECRET"))

	linked := freshCommittedSponge("link-keyload")
	var nonce [16]byte
	copy(nonce[:], []byte("0123456789abcdef"))
	var sessionKey [32]byte
	copy(sessionKey[:], []byte("00112233445566778899aabbccddeef"))

	recipients := []message.RecipientInput{
		{Identifier: insider.Identifier(), X25519Pub: insider.X25519Public()},
		{Identifier: pskHolder.Identifier(), PSK: pskHolder.PSK()},
	}

	w := ddml.NewWrap(sponge.New())
	if err := message.WrapKeyload(w, linked, nonce, sessionKey, recipients, author); err != nil {
		t.Fatalf("wrap keyload: %v", err)
	}

	// Insider recovers the session key through their own slot.
	uIn := ddml.NewUnwrap(w.Bytes(), sponge.New())
	gotIn, err := message.UnwrapKeyload(uIn, freshCommittedSponge("link-keyload"), author.Identifier(), message.SelfCredentials{
		Identifier: insider.Identifier(),
		HasX25519:  true,
		X25519SK:   insider.X25519Private(),
	}, 64)
	if err != nil {
		t.Fatalf("insider unwrap keyload: %v", err)
	}
	if !gotIn.Authorized || gotIn.SessionKey != sessionKey {
		t.Fatalf("insider should have recovered the session key, got authorized=%v key=%x", gotIn.Authorized, gotIn.SessionKey)
	}

	// PSK holder recovers the session key through the PSK slot.
	uPsk := ddml.NewUnwrap(w.Bytes(), sponge.New())
	gotPsk, err := message.UnwrapKeyload(uPsk, freshCommittedSponge("link-keyload"), author.Identifier(), message.SelfCredentials{
		Identifier: pskHolder.Identifier(),
		KnownPSKs:  [][32]byte{pskHolder.PSK()},
	}, 64)
	if err != nil {
		t.Fatalf("psk holder unwrap keyload: %v", err)
	}
	if !gotPsk.Authorized || gotPsk.SessionKey != sessionKey {
		t.Fatalf("psk holder should have recovered the session key, got authorized=%v", gotPsk.Authorized)
	}

	// Outsider has no matching slot and is not authorized.
	uOut := ddml.NewUnwrap(w.Bytes(), sponge.New())
	gotOut, err := message.UnwrapKeyload(uOut, freshCommittedSponge("link-keyload"), author.Identifier(), message.SelfCredentials{
		Identifier: outsider.Identifier(),
		HasX25519:  true,
		X25519SK:   outsider.X25519Private(),
	}, 64)
	if err != nil {
		t.Fatalf("outsider unwrap keyload: %v", err)
	}
	if gotOut.Authorized {
		t.Fatalf("outsider should not be authorized")
	}
}

func freshCommittedSponge(label string) *sponge.Sponge {
	s := sponge.New()
	s.Absorb([]byte(label))
	s.Commit()
	return s
}
