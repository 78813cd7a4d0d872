package user

import (
	"context"
	"crypto/rand"
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

// SendKeyload publishes a KEYLOAD on topic authorizing recipients with a
// fresh session key (§4.H). Author-only; every recipient must already be
// registered in the stream's KeyStore.
func (u *User) SendKeyload(ctx context.Context, appAddr address.AppAddr, topic address.Topic, recipients []identity.Identifier) (address.Address, error) {
	author, err := u.signingIdentity()
	if err != nil {
		return address.Address{}, fmt.Errorf("user: send_keyload: %w", err)
	}
	stream, err := u.stream(appAddr)
	if err != nil {
		return address.Address{}, err
	}
	if stream.AuthorID != author.Identifier() {
		return address.Address{}, fmt.Errorf("user: send_keyload: %w", ddmlerr.ErrNotAuthor)
	}
	branch, ok := stream.Branches[topic.String()]
	if !ok {
		return address.Address{}, fmt.Errorf("user: send_keyload: %w", ddmlerr.ErrUnknownBranch)
	}

	inputs := make([]message.RecipientInput, 0, len(recipients))
	for _, id := range recipients {
		rec, ok := stream.Store.Get(id)
		if !ok {
			return address.Address{}, fmt.Errorf("user: send_keyload: %w: %s", ddmlerr.ErrUnknownRecipient, id)
		}
		inputs = append(inputs, message.RecipientInput{Identifier: rec.Identifier, X25519Pub: rec.X25519Pub, PSK: rec.PSK})
	}

	linkMsgID, err := linkFor(branch, author.Identifier(), stream.AuthorID)
	if err != nil {
		return address.Address{}, err
	}
	linked, err := u.linkedSponge(stream, linkMsgID)
	if err != nil {
		return address.Address{}, err
	}

	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return address.Address{}, fmt.Errorf("user: send_keyload: sample nonce: %w", err)
	}
	var sessionKey [32]byte
	if _, err := rand.Read(sessionKey[:]); err != nil {
		return address.Address{}, fmt.Errorf("user: send_keyload: sample session key: %w", err)
	}

	seq := branch.cursor(author.Identifier()).Current + 1

	w := ddml.NewWrap(sponge.New())
	wire.WrapHDF(w, buildHeader(config.MsgTypeKeyload, topic, author.Identifier(), seq, linkMsgID))
	wire.WrapPCFPrelude(w, wire.FinalPrelude)
	if err := message.WrapKeyload(w, linked, nonce, sessionKey, inputs, author); err != nil {
		return address.Address{}, err
	}

	msgID := address.DeriveMsgID(appAddr, author.Identifier(), topic, seq)
	addr := address.Address{AppAddr: appAddr, MsgID: msgID}
	if err := u.Transport.Send(ctx, addr, w.Bytes()); err != nil {
		return address.Address{}, bus.Wrap(addr, err)
	}

	branch.cursor(author.Identifier()).bump(seq)
	branch.LatestMsgID = msgID
	branch.LatestKnownPerPub[author.Identifier()] = msgID
	branch.LatestKeyloadMsgID = msgID
	stream.Spongos[msgID] = w.Sponge()

	// The author is implicitly authorized on their own branch from the
	// moment they create the keyload.
	branch.KeyloadCursor = seq
	branch.SessionKey = sessionKey
	branch.HasSessionKey = true

	return addr, nil
}
