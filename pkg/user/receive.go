package user

import (
	"context"
	"fmt"

	"github.com/WebFirstLanguage/strandweave/pkg/address"
	"github.com/WebFirstLanguage/strandweave/pkg/config"
	"github.com/WebFirstLanguage/strandweave/pkg/ddml"
	"github.com/WebFirstLanguage/strandweave/pkg/ddmlerr"
	"github.com/WebFirstLanguage/strandweave/pkg/identity"
	"github.com/WebFirstLanguage/strandweave/pkg/message"
	"github.com/WebFirstLanguage/strandweave/pkg/sponge"
	"github.com/WebFirstLanguage/strandweave/pkg/wire"
)

// Received is one dispatched message's decoded content (§4.H, §4.I). Exactly
// one of the typed fields is populated, matching Type.
type Received struct {
	Type      uint8
	Publisher identity.Identifier
	Sequence  uint64

	Announce     *message.AnnounceContent
	Subscribe    *message.SubscribeContent
	Unsubscribe  *message.UnsubscribeContent
	Keyload      *message.KeyloadContent
	SignedPacket *message.SignedPacketContent
	TaggedPacket *message.TaggedPacketContent
}

// selfCredentials builds the key material this user tries against a
// KEYLOAD's recipient slots, from whichever concrete identity they hold.
func (u *User) selfCredentials() message.SelfCredentials {
	switch id := u.Identity.(type) {
	case *identity.Ed25519Identity:
		return message.SelfCredentials{Identifier: id.Identifier(), HasX25519: true, X25519SK: id.X25519Private()}
	case *identity.PskIdentity:
		return message.SelfCredentials{Identifier: id.Identifier(), KnownPSKs: [][32]byte{id.PSK()}}
	default:
		return message.SelfCredentials{Identifier: u.Identity.Identifier()}
	}
}

// Receive fetches and unwraps whatever message sits at addr, dispatching on
// its message_type (§4.H, §4.I). The scenarios in §8 drive every message
// type but ANNOUNCE and BRANCH_ANNOUNCE through this single entry point.
//
// ANNOUNCE is handled here directly, since it is the one type with no
// pre-existing StreamState to dispatch through — it creates one.
// BRANCH_ANNOUNCE is deliberately not dispatched here: its link target is
// never recoverable from a receiver's own branch bookkeeping (it is what
// introduces the branch), so it needs the caller's explicit root via
// ReceiveBranchAnnounce instead.
func (u *User) Receive(ctx context.Context, addr address.Address) (Received, error) {
	raw, err := u.fetchOne(ctx, addr)
	if err != nil {
		return Received{}, err
	}

	un := ddml.NewUnwrap(raw, sponge.New())
	prefix, err := wire.UnwrapHDFPrefix(un)
	if err != nil {
		return Received{}, err
	}

	if prefix.MessageType == config.MsgTypeAnnounce {
		return u.receiveAnnounce(un, prefix, addr)
	}
	if prefix.MessageType == config.MsgTypeBranchAnnounce {
		return Received{}, fmt.Errorf("user: receive: %w: branch_announce requires an explicit root, use ReceiveBranchAnnounce", ddmlerr.ErrLinkNotFound)
	}

	stream, err := u.stream(addr.AppAddr)
	if err != nil {
		return Received{}, err
	}

	var topic address.Topic
	if prefix.MessageType == config.MsgTypeSubscribe {
		topic = stream.BaseTopic
	} else {
		t, ok := stream.TopicByHash[prefix.TopicHash]
		if !ok {
			return Received{}, fmt.Errorf("user: receive: %w", ddmlerr.ErrUnknownBranch)
		}
		topic = t
	}
	branch := stream.branch(topic)

	var linkMsgID address.MsgID
	if prefix.MessageType == config.MsgTypeSubscribe {
		id, ok := branch.LatestKnownPerPub[stream.AuthorID]
		if !ok {
			return Received{}, fmt.Errorf("user: receive: %w: no announcement observed", ddmlerr.ErrLinkNotFound)
		}
		linkMsgID = id
	} else {
		id, err := linkFor(branch, prefix.PublisherID, stream.AuthorID)
		if err != nil {
			return Received{}, err
		}
		linkMsgID = id
	}

	if err := checkCursor(branch, prefix.PublisherID, prefix.Sequence, addr.MsgID); err != nil {
		return Received{}, err
	}
	linked, err := u.linkedSponge(stream, linkMsgID)
	if err != nil {
		return Received{}, err
	}
	if _, err := wire.FinishHDF(un, prefix, linkMsgID); err != nil {
		return Received{}, err
	}
	if _, err := wire.UnwrapPCFPrelude(un); err != nil {
		return Received{}, err
	}

	result := Received{Type: prefix.MessageType, Publisher: prefix.PublisherID, Sequence: prefix.Sequence}

	switch prefix.MessageType {
	case config.MsgTypeSubscribe:
		ed, ok := u.Identity.(*identity.Ed25519Identity)
		if !ok {
			return Received{}, fmt.Errorf("user: receive: %w", ddmlerr.ErrNoSignatureCapability)
		}
		content, err := message.UnwrapSubscribe(un, linked, ed.X25519Private())
		if err != nil {
			return Received{}, err
		}
		stream.Store.Put(RecipientRecord{
			Identifier: content.SubscriberIdentifier,
			X25519Pub:  content.SubscriberX25519Pub,
			HasX25519:  true,
		})
		result.Subscribe = &content

	case config.MsgTypeUnsubscribe:
		content, err := message.UnwrapUnsubscribe(un, linked)
		if err != nil {
			return Received{}, err
		}
		stream.Store.Remove(content.SubscriberIdentifier)
		result.Unsubscribe = &content

	case config.MsgTypeKeyload:
		content, err := message.UnwrapKeyload(un, linked, prefix.PublisherID, u.selfCredentials(), config.SignatureSize)
		if err != nil {
			return Received{}, err
		}
		branch.LatestKeyloadMsgID = addr.MsgID
		if content.Authorized {
			branch.KeyloadCursor = prefix.Sequence
			branch.SessionKey = content.SessionKey
			branch.HasSessionKey = true
		}
		result.Keyload = &content

	case config.MsgTypeSignedPacket:
		content, err := message.UnwrapSignedPacket(un, linked)
		if err != nil {
			return Received{}, err
		}
		if !branch.HasSessionKey {
			content.MaskedPayload = nil
			result.SignedPacket = &content
			return result, fmt.Errorf("user: receive: %w", ddmlerr.ErrNotAuthorized)
		}
		result.SignedPacket = &content

	case config.MsgTypeTaggedPacket:
		content, err := message.UnwrapTaggedPacket(un, linked)
		if err != nil {
			return Received{}, err
		}
		if !branch.HasSessionKey {
			content.MaskedPayload = nil
			result.TaggedPacket = &content
			return result, fmt.Errorf("user: receive: %w", ddmlerr.ErrNotAuthorized)
		}
		result.TaggedPacket = &content

	default:
		return Received{}, fmt.Errorf("user: receive: %w: type %d", ddmlerr.ErrUnknownMessageType, prefix.MessageType)
	}

	branch.cursor(prefix.PublisherID).bump(prefix.Sequence)
	branch.LatestKnownPerPub[prefix.PublisherID] = addr.MsgID
	stream.Spongos[addr.MsgID] = un.Sponge()

	return result, nil
}

// receiveAnnounce handles the bootstrap case: there is no StreamState yet,
// so this both decodes the ANNOUNCE and creates one.
func (u *User) receiveAnnounce(un *ddml.Unwrap, prefix wire.HDFPrefix, addr address.Address) (Received, error) {
	if _, err := wire.FinishHDF(un, prefix, address.ZeroMsgID); err != nil {
		return Received{}, err
	}
	if _, err := wire.UnwrapPCFPrelude(un); err != nil {
		return Received{}, err
	}
	content, err := message.UnwrapAnnounce(un)
	if err != nil {
		return Received{}, err
	}

	if existing, ok := u.Streams[addr.AppAddr]; ok {
		branch := existing.branch(content.BaseTopic)
		if err := checkCursor(branch, content.AuthorIdentifier, prefix.Sequence, addr.MsgID); err != nil {
			return Received{}, err
		}
		branch.cursor(content.AuthorIdentifier).bump(prefix.Sequence)
		branch.LatestKnownPerPub[content.AuthorIdentifier] = addr.MsgID
		existing.Spongos[addr.MsgID] = un.Sponge()
		return Received{Type: prefix.MessageType, Publisher: prefix.PublisherID, Sequence: prefix.Sequence, Announce: &content}, nil
	}

	stream := newStreamState(addr.AppAddr, content.AuthorIdentifier, content.AuthorX25519Pub, content.BaseTopic)
	branch := stream.branch(content.BaseTopic)
	branch.LatestKnownPerPub[content.AuthorIdentifier] = addr.MsgID
	branch.cursor(content.AuthorIdentifier).bump(0)
	stream.Spongos[addr.MsgID] = un.Sponge()
	u.Streams[addr.AppAddr] = stream

	return Received{Type: prefix.MessageType, Publisher: prefix.PublisherID, Sequence: prefix.Sequence, Announce: &content}, nil
}
