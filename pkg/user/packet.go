package user

import (
	"context"
	"fmt"

	"github.com/WebFirstLanguage/strandweave/pkg/address"
	"github.com/WebFirstLanguage/strandweave/pkg/bus"
	"github.com/WebFirstLanguage/strandweave/pkg/config"
	"github.com/WebFirstLanguage/strandweave/pkg/ddml"
	"github.com/WebFirstLanguage/strandweave/pkg/ddmlerr"
	"github.com/WebFirstLanguage/strandweave/pkg/identity"
	"github.com/WebFirstLanguage/strandweave/pkg/message"
	"github.com/WebFirstLanguage/strandweave/pkg/sponge"
	"github.com/WebFirstLanguage/strandweave/pkg/wire"
)

// authorizedSenderBranch resolves the branch a packet send is targeting and
// checks that publisher is allowed to publish on it: either the stream
// author, or a publisher already authorized by some keyload on this
// branch.
func (u *User) authorizedSenderBranch(appAddr address.AppAddr, topic address.Topic, publisher identity.Identifier) (*StreamState, *BranchState, error) {
	stream, err := u.stream(appAddr)
	if err != nil {
		return nil, nil, err
	}
	branch, ok := stream.Branches[topic.String()]
	if !ok {
		return nil, nil, fmt.Errorf("user: %w", ddmlerr.ErrUnknownBranch)
	}
	if stream.AuthorID != publisher && branch.KeyloadCursor == 0 {
		return nil, nil, fmt.Errorf("user: %w", ddmlerr.ErrNotKeyloadAuthorized)
	}
	return stream, branch, nil
}

// SendSignedPacket publishes a SIGNED_PACKET on topic (§4.H). The caller
// must be the stream author or already authorized by a keyload on topic.
func (u *User) SendSignedPacket(ctx context.Context, appAddr address.AppAddr, topic address.Topic, publicPayload, maskedPayload []byte) (address.Address, error) {
	publisher, err := u.signingIdentity()
	if err != nil {
		return address.Address{}, fmt.Errorf("user: send_signed_packet: %w", err)
	}
	stream, branch, err := u.authorizedSenderBranch(appAddr, topic, publisher.Identifier())
	if err != nil {
		return address.Address{}, err
	}

	linkMsgID, err := linkFor(branch, publisher.Identifier(), stream.AuthorID)
	if err != nil {
		return address.Address{}, err
	}
	linked, err := u.linkedSponge(stream, linkMsgID)
	if err != nil {
		return address.Address{}, err
	}

	seq := branch.cursor(publisher.Identifier()).Current + 1

	w := ddml.NewWrap(sponge.New())
	wire.WrapHDF(w, buildHeader(config.MsgTypeSignedPacket, topic, publisher.Identifier(), seq, linkMsgID))
	wire.WrapPCFPrelude(w, wire.FinalPrelude)
	if err := message.WrapSignedPacket(w, linked, publisher, publicPayload, maskedPayload); err != nil {
		return address.Address{}, err
	}

	msgID := address.DeriveMsgID(appAddr, publisher.Identifier(), topic, seq)
	addr := address.Address{AppAddr: appAddr, MsgID: msgID}
	if err := u.Transport.Send(ctx, addr, w.Bytes()); err != nil {
		return address.Address{}, bus.Wrap(addr, err)
	}

	branch.cursor(publisher.Identifier()).bump(seq)
	branch.LatestMsgID = msgID
	branch.LatestKnownPerPub[publisher.Identifier()] = msgID
	stream.Spongos[msgID] = w.Sponge()

	return addr, nil
}

// SendTaggedPacket publishes a TAGGED_PACKET on topic (§4.H). Unlike
// SIGNED_PACKET it carries no publisher identity and needs no signing
// capability, but the sender must still be the stream author or already
// keyload-authorized — its trailing MAC authenticates branch membership,
// which is established by the same Join chain any publisher here uses.
func (u *User) SendTaggedPacket(ctx context.Context, appAddr address.AppAddr, topic address.Topic, publicPayload, maskedPayload []byte) (address.Address, error) {
	stream, branch, err := u.authorizedSenderBranch(appAddr, topic, u.Identity.Identifier())
	if err != nil {
		return address.Address{}, err
	}

	linkMsgID, err := linkFor(branch, u.Identity.Identifier(), stream.AuthorID)
	if err != nil {
		return address.Address{}, err
	}
	linked, err := u.linkedSponge(stream, linkMsgID)
	if err != nil {
		return address.Address{}, err
	}

	seq := branch.cursor(u.Identity.Identifier()).Current + 1

	w := ddml.NewWrap(sponge.New())
	wire.WrapHDF(w, buildHeader(config.MsgTypeTaggedPacket, topic, u.Identity.Identifier(), seq, linkMsgID))
	wire.WrapPCFPrelude(w, wire.FinalPrelude)
	if err := message.WrapTaggedPacket(w, linked, publicPayload, maskedPayload); err != nil {
		return address.Address{}, err
	}

	msgID := address.DeriveMsgID(appAddr, u.Identity.Identifier(), topic, seq)
	addr := address.Address{AppAddr: appAddr, MsgID: msgID}
	if err := u.Transport.Send(ctx, addr, w.Bytes()); err != nil {
		return address.Address{}, bus.Wrap(addr, err)
	}

	branch.cursor(u.Identity.Identifier()).bump(seq)
	branch.LatestMsgID = msgID
	branch.LatestKnownPerPub[u.Identity.Identifier()] = msgID
	stream.Spongos[msgID] = w.Sponge()

	return addr, nil
}
