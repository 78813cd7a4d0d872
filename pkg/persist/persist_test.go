package persist_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/WebFirstLanguage/strandweave/pkg/address"
	"github.com/WebFirstLanguage/strandweave/pkg/bus/bucket"
	"github.com/WebFirstLanguage/strandweave/pkg/identity"
	"github.com/WebFirstLanguage/strandweave/pkg/persist"
	"github.com/WebFirstLanguage/strandweave/pkg/user"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	transport := bucket.New()

	author := user.New(identity.DeriveEd25519Identity([]byte("AUTHOR9SEED")), transport)
	subscriber := user.New(identity.DeriveEd25519Identity([]byte("SUB9A9SEED")), transport)

	appAddr, err := author.CreateStream(ctx, "BASE")
	if err != nil {
		t.Fatalf("create_stream: %v", err)
	}
	announceAddr := address.Address{
		AppAddr: appAddr,
		MsgID:   address.DeriveMsgID(appAddr, author.Identity.Identifier(), author.Streams[appAddr].BaseTopic, 0),
	}
	if _, err := subscriber.ReceiveAnnouncement(ctx, announceAddr); err != nil {
		t.Fatalf("subscriber receive_announcement: %v", err)
	}

	subAddr, err := subscriber.Subscribe(ctx, appAddr)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := author.Receive(ctx, subAddr); err != nil {
		t.Fatalf("receive subscribe: %v", err)
	}

	topic := author.Streams[appAddr].BaseTopic
	if _, err := author.SendKeyload(ctx, appAddr, topic, []identity.Identifier{subscriber.Identity.Identifier()}); err != nil {
		t.Fatalf("send_keyload: %v", err)
	}
	if _, err := author.SendTaggedPacket(ctx, appAddr, topic, []byte("public"), []byte("secret")); err != nil {
		t.Fatalf("send_tagged_packet: %v", err)
	}

	saved, err := persist.Save(author)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	restored, err := persist.Load(saved, transport)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	resaved, err := persist.Save(restored)
	if err != nil {
		t.Fatalf("re-save: %v", err)
	}
	if !bytes.Equal(saved, resaved) {
		t.Fatalf("save(load(save(user))) != save(user): canonical encoding is not stable across a round trip")
	}

	stream, ok := restored.Streams[appAddr]
	if !ok {
		t.Fatalf("restored user has no stream for %x", appAddr)
	}
	if stream.AuthorID != author.Identity.Identifier() {
		t.Fatalf("restored stream author mismatch")
	}
	branch, ok := stream.Branches[topic.String()]
	if !ok {
		t.Fatalf("restored stream missing base branch")
	}
	if !branch.HasSessionKey {
		t.Fatalf("restored branch lost its session key authorization")
	}
	if cur, ok := branch.Cursors[author.Identity.Identifier()]; !ok || cur.Current != 2 {
		t.Fatalf("restored author cursor = %+v, want current=2 (keyload, tagged_packet)", cur)
	}
	if stream.Store.Len() != 1 {
		t.Fatalf("restored key store has %d recipients, want 1", stream.Store.Len())
	}
}

func TestLoadRejectsCorruptedData(t *testing.T) {
	ctx := context.Background()
	transport := bucket.New()
	author := user.New(identity.DeriveEd25519Identity([]byte("AUTHOR9SEED")), transport)
	if _, err := author.CreateStream(ctx, "BASE"); err != nil {
		t.Fatalf("create_stream: %v", err)
	}

	saved, err := persist.Save(author)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	tampered := append([]byte(nil), saved...)
	tampered[40] ^= 0xff

	if _, err := persist.Load(tampered, transport); err == nil {
		t.Fatalf("load of tampered save data succeeded, want checksum error")
	}
}

func TestLoadRejectsTruncatedData(t *testing.T) {
	if _, err := persist.Load([]byte{1, 2, 3}, bucket.New()); err == nil {
		t.Fatalf("load of truncated data succeeded, want an error")
	}
}
