package syncloop_test

import (
	"context"
	"testing"

	"github.com/WebFirstLanguage/strandweave/pkg/address"
	"github.com/WebFirstLanguage/strandweave/pkg/bus/bucket"
	"github.com/WebFirstLanguage/strandweave/pkg/identity"
	"github.com/WebFirstLanguage/strandweave/pkg/syncloop"
	"github.com/WebFirstLanguage/strandweave/pkg/user"
)

func TestFetchNextDrainsMultipleMessagesInOnePass(t *testing.T) {
	ctx := context.Background()
	transport := bucket.New()

	author := user.New(identity.DeriveEd25519Identity([]byte("AUTHOR9SEED")), transport)
	reader := user.New(identity.DeriveEd25519Identity([]byte("SUB9A9SEED")), transport)

	appAddr, err := author.CreateStream(ctx, "BASE")
	if err != nil {
		t.Fatalf("create_stream: %v", err)
	}
	topic, err := address.NewTopic("BASE")
	if err != nil {
		t.Fatalf("new topic: %v", err)
	}
	announceAddr := address.Address{
		AppAddr: appAddr,
		MsgID:   address.DeriveMsgID(appAddr, author.Identity.Identifier(), topic, 0),
	}
	if _, err := reader.ReceiveAnnouncement(ctx, announceAddr); err != nil {
		t.Fatalf("reader receive_announcement: %v", err)
	}

	if _, err := author.SendTaggedPacket(ctx, appAddr, topic, []byte("one"), nil); err != nil {
		t.Fatalf("send_tagged_packet 1: %v", err)
	}
	if _, err := author.SendTaggedPacket(ctx, appAddr, topic, []byte("two"), nil); err != nil {
		t.Fatalf("send_tagged_packet 2: %v", err)
	}
	if _, err := author.SendTaggedPacket(ctx, appAddr, topic, []byte("three"), nil); err != nil {
		t.Fatalf("send_tagged_packet 3: %v", err)
	}

	got, err := syncloop.FetchNext(ctx, reader, appAddr, topic)
	if err != nil {
		t.Fatalf("fetch_next: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("fetch_next drained %d messages, want 3", len(got))
	}
	for i, r := range got {
		if r.TaggedPacket == nil {
			t.Fatalf("message %d: expected a TaggedPacket", i)
		}
	}
	if string(got[0].TaggedPacket.PublicPayload) != "one" ||
		string(got[1].TaggedPacket.PublicPayload) != "two" ||
		string(got[2].TaggedPacket.PublicPayload) != "three" {
		t.Fatalf("fetch_next returned out-of-order public payloads: %q, %q, %q",
			got[0].TaggedPacket.PublicPayload, got[1].TaggedPacket.PublicPayload, got[2].TaggedPacket.PublicPayload)
	}

	again, err := syncloop.FetchNext(ctx, reader, appAddr, topic)
	if err != nil {
		t.Fatalf("second fetch_next: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second fetch_next found %d unexpected messages", len(again))
	}
}
