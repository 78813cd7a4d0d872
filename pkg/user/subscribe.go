package user

import (
	"context"
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

// Subscribe publishes a SUBSCRIBE linked to appAddr's announcement (§4.H).
func (u *User) Subscribe(ctx context.Context, appAddr address.AppAddr) (address.Address, error) {
	subscriber, err := u.signingIdentity()
	if err != nil {
		return address.Address{}, fmt.Errorf("user: subscribe: %w", err)
	}
	stream, err := u.stream(appAddr)
	if err != nil {
		return address.Address{}, err
	}
	branch := stream.branch(stream.BaseTopic)
	announceMsgID, ok := branch.LatestKnownPerPub[stream.AuthorID]
	if !ok {
		return address.Address{}, fmt.Errorf("user: subscribe: %w: no announcement observed", ddmlerr.ErrLinkNotFound)
	}
	linked, err := u.linkedSponge(stream, announceMsgID)
	if err != nil {
		return address.Address{}, err
	}

	seq := branch.cursor(subscriber.Identifier()).Current + 1

	w := ddml.NewWrap(sponge.New())
	wire.WrapHDF(w, buildHeader(config.MsgTypeSubscribe, stream.BaseTopic, subscriber.Identifier(), seq, announceMsgID))
	wire.WrapPCFPrelude(w, wire.FinalPrelude)
	if err := message.WrapSubscribe(w, linked, subscriber, stream.AuthorX25519Pub); err != nil {
		return address.Address{}, err
	}

	msgID := address.DeriveMsgID(appAddr, subscriber.Identifier(), stream.BaseTopic, seq)
	addr := address.Address{AppAddr: appAddr, MsgID: msgID}
	if err := u.Transport.Send(ctx, addr, w.Bytes()); err != nil {
		return address.Address{}, bus.Wrap(addr, err)
	}

	branch.cursor(subscriber.Identifier()).bump(seq)
	branch.LatestKnownPerPub[subscriber.Identifier()] = msgID
	stream.Spongos[msgID] = w.Sponge()

	return addr, nil
}

// Unsubscribe publishes an UNSUBSCRIBE linked to the branch's most recent
// keyload, asking to be dropped from future recipient lists.
func (u *User) Unsubscribe(ctx context.Context, appAddr address.AppAddr, topic address.Topic) (address.Address, error) {
	subscriber, err := u.signingIdentity()
	if err != nil {
		return address.Address{}, fmt.Errorf("user: unsubscribe: %w", err)
	}
	stream, err := u.stream(appAddr)
	if err != nil {
		return address.Address{}, err
	}
	branch, ok := stream.Branches[topic.String()]
	if !ok {
		return address.Address{}, fmt.Errorf("user: unsubscribe: %w", ddmlerr.ErrUnknownBranch)
	}
	linkMsgID, err := linkFor(branch, subscriber.Identifier(), stream.AuthorID)
	if err != nil {
		return address.Address{}, err
	}
	linked, err := u.linkedSponge(stream, linkMsgID)
	if err != nil {
		return address.Address{}, err
	}

	seq := branch.cursor(subscriber.Identifier()).Current + 1

	w := ddml.NewWrap(sponge.New())
	wire.WrapHDF(w, buildHeader(config.MsgTypeUnsubscribe, topic, subscriber.Identifier(), seq, linkMsgID))
	wire.WrapPCFPrelude(w, wire.FinalPrelude)
	if err := message.WrapUnsubscribe(w, linked, subscriber); err != nil {
		return address.Address{}, err
	}

	msgID := address.DeriveMsgID(appAddr, subscriber.Identifier(), topic, seq)
	addr := address.Address{AppAddr: appAddr, MsgID: msgID}
	if err := u.Transport.Send(ctx, addr, w.Bytes()); err != nil {
		return address.Address{}, bus.Wrap(addr, err)
	}

	branch.cursor(subscriber.Identifier()).bump(seq)
	branch.LatestKnownPerPub[subscriber.Identifier()] = msgID
	stream.Spongos[msgID] = w.Sponge()

	return addr, nil
}
