package user

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/WebFirstLanguage/strandweave/pkg/address"
	"github.com/WebFirstLanguage/strandweave/pkg/bus"
	"github.com/WebFirstLanguage/strandweave/pkg/config"
	"github.com/WebFirstLanguage/strandweave/pkg/ddml"
	"github.com/WebFirstLanguage/strandweave/pkg/ddmlerr"
	"github.com/WebFirstLanguage/strandweave/pkg/message"
	"github.com/WebFirstLanguage/strandweave/pkg/sponge"
	"github.com/WebFirstLanguage/strandweave/pkg/wire"
)

// CreateStream publishes a new stream's ANNOUNCE (§4.H). The AppAddr is
// derived from this user's identity, topicName and a freshly sampled
// nonce, so repeated calls with the same topic name never collide.
func (u *User) CreateStream(ctx context.Context, topicName string) (address.AppAddr, error) {
	author, err := u.signingIdentity()
	if err != nil {
		return address.AppAddr{}, fmt.Errorf("user: create_stream: %w", err)
	}
	topic, err := address.NewTopic(topicName)
	if err != nil {
		return address.AppAddr{}, err
	}

	var nonceBuf [8]byte
	if _, err := rand.Read(nonceBuf[:]); err != nil {
		return address.AppAddr{}, fmt.Errorf("user: create_stream: sample nonce: %w", err)
	}
	nonce := binary.BigEndian.Uint64(nonceBuf[:])
	appAddr := address.DeriveAppAddr(author.Identifier(), topic, nonce)

	w := ddml.NewWrap(sponge.New())
	wire.WrapHDF(w, buildHeader(config.MsgTypeAnnounce, topic, author.Identifier(), 0, address.ZeroMsgID))
	wire.WrapPCFPrelude(w, wire.FinalPrelude)
	if err := message.WrapAnnounce(w, author, topic); err != nil {
		return address.AppAddr{}, err
	}

	msgID := address.DeriveMsgID(appAddr, author.Identifier(), topic, 0)
	addr := address.Address{AppAddr: appAddr, MsgID: msgID}
	if err := u.Transport.Send(ctx, addr, w.Bytes()); err != nil {
		return address.AppAddr{}, bus.Wrap(addr, err)
	}

	stream := newStreamState(appAddr, author.Identifier(), author.X25519Public(), topic)
	branch := stream.branch(topic)
	branch.LatestMsgID = msgID
	branch.LatestKnownPerPub[author.Identifier()] = msgID
	branch.cursor(author.Identifier()).bump(0)
	stream.Spongos[msgID] = w.Sponge()
	u.Streams[appAddr] = stream

	return appAddr, nil
}

// ReceiveAnnouncement fetches and unwraps the ANNOUNCE at addr, seeding a
// new StreamState for it (§4.H). Any user, not just a future subscriber,
// may call this.
func (u *User) ReceiveAnnouncement(ctx context.Context, addr address.Address) (message.AnnounceContent, error) {
	raw, err := u.fetchOne(ctx, addr)
	if err != nil {
		return message.AnnounceContent{}, err
	}

	un := ddml.NewUnwrap(raw, sponge.New())
	prefix, err := wire.UnwrapHDFPrefix(un)
	if err != nil {
		return message.AnnounceContent{}, err
	}
	if prefix.MessageType != config.MsgTypeAnnounce {
		return message.AnnounceContent{}, fmt.Errorf("user: receive_announcement: %w: type %d", ddmlerr.ErrUnknownMessageType, prefix.MessageType)
	}
	if _, err := wire.FinishHDF(un, prefix, address.ZeroMsgID); err != nil {
		return message.AnnounceContent{}, err
	}
	if _, err := wire.UnwrapPCFPrelude(un); err != nil {
		return message.AnnounceContent{}, err
	}
	content, err := message.UnwrapAnnounce(un)
	if err != nil {
		return message.AnnounceContent{}, err
	}

	stream := newStreamState(addr.AppAddr, content.AuthorIdentifier, content.AuthorX25519Pub, content.BaseTopic)
	branch := stream.branch(content.BaseTopic)
	branch.LatestKnownPerPub[content.AuthorIdentifier] = addr.MsgID
	branch.cursor(content.AuthorIdentifier).bump(0)
	stream.Spongos[addr.MsgID] = un.Sponge()
	u.Streams[addr.AppAddr] = stream

	return content, nil
}

// NewBranch publishes a BRANCH_ANNOUNCE rooted at rootMsgID, opening
// newTopic as a branch of the stream at appAddr. Author-only: a branch's
// root of trust is the stream author's signature over the new topic.
func (u *User) NewBranch(ctx context.Context, appAddr address.AppAddr, rootMsgID address.MsgID, newTopicName string) (address.Address, error) {
	author, err := u.signingIdentity()
	if err != nil {
		return address.Address{}, fmt.Errorf("user: new_branch: %w", err)
	}
	stream, err := u.stream(appAddr)
	if err != nil {
		return address.Address{}, err
	}
	if stream.AuthorID != author.Identifier() {
		return address.Address{}, fmt.Errorf("user: new_branch: %w", ddmlerr.ErrNotAuthor)
	}
	rootSponge, err := u.linkedSponge(stream, rootMsgID)
	if err != nil {
		return address.Address{}, err
	}
	newTopic, err := address.NewTopic(newTopicName)
	if err != nil {
		return address.Address{}, err
	}

	branch := stream.branch(newTopic)
	seq := branch.cursor(author.Identifier()).Current + 1

	w := ddml.NewWrap(sponge.New())
	wire.WrapHDF(w, buildHeader(config.MsgTypeBranchAnnounce, newTopic, author.Identifier(), seq, rootMsgID))
	wire.WrapPCFPrelude(w, wire.FinalPrelude)
	if err := message.WrapBranchAnnounce(w, rootSponge, author, newTopic); err != nil {
		return address.Address{}, err
	}

	msgID := address.DeriveMsgID(appAddr, author.Identifier(), newTopic, seq)
	addr := address.Address{AppAddr: appAddr, MsgID: msgID}
	if err := u.Transport.Send(ctx, addr, w.Bytes()); err != nil {
		return address.Address{}, bus.Wrap(addr, err)
	}

	branch.cursor(author.Identifier()).bump(seq)
	branch.LatestMsgID = msgID
	branch.LatestKnownPerPub[author.Identifier()] = msgID
	stream.Spongos[msgID] = w.Sponge()

	return addr, nil
}

// ReceiveBranchAnnounce fetches and unwraps the BRANCH_ANNOUNCE at addr,
// rooted at rootMsgID (already known to the caller, e.g. the base
// announcement or another branch's tip — a BRANCH_ANNOUNCE is the one
// message type whose root isn't recoverable from this stream's own branch
// bookkeeping, since it's what introduces the branch).
func (u *User) ReceiveBranchAnnounce(ctx context.Context, appAddr address.AppAddr, addr address.Address, rootMsgID address.MsgID) (message.BranchAnnounceContent, error) {
	stream, err := u.stream(appAddr)
	if err != nil {
		return message.BranchAnnounceContent{}, err
	}
	rootSponge, err := u.linkedSponge(stream, rootMsgID)
	if err != nil {
		return message.BranchAnnounceContent{}, err
	}

	raw, err := u.fetchOne(ctx, addr)
	if err != nil {
		return message.BranchAnnounceContent{}, err
	}

	un := ddml.NewUnwrap(raw, sponge.New())
	prefix, err := wire.UnwrapHDFPrefix(un)
	if err != nil {
		return message.BranchAnnounceContent{}, err
	}
	if prefix.MessageType != config.MsgTypeBranchAnnounce {
		return message.BranchAnnounceContent{}, fmt.Errorf("user: receive_branch_announce: %w: type %d", ddmlerr.ErrUnknownMessageType, prefix.MessageType)
	}
	if _, err := wire.FinishHDF(un, prefix, rootMsgID); err != nil {
		return message.BranchAnnounceContent{}, err
	}
	if _, err := wire.UnwrapPCFPrelude(un); err != nil {
		return message.BranchAnnounceContent{}, err
	}
	content, err := message.UnwrapBranchAnnounce(un, rootSponge)
	if err != nil {
		return message.BranchAnnounceContent{}, err
	}

	branch := stream.branch(content.NewTopic)
	if err := checkCursor(branch, prefix.PublisherID, prefix.Sequence, addr.MsgID); err != nil {
		return message.BranchAnnounceContent{}, err
	}
	branch.cursor(prefix.PublisherID).bump(prefix.Sequence)
	branch.LatestKnownPerPub[prefix.PublisherID] = addr.MsgID
	stream.Spongos[addr.MsgID] = un.Sponge()

	return content, nil
}
