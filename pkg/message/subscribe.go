package message

import (
	"github.com/WebFirstLanguage/strandweave/pkg/ddml"
	"github.com/WebFirstLanguage/strandweave/pkg/identity"
	"github.com/WebFirstLanguage/strandweave/pkg/sponge"
)

// SubscribeContent is SUBSCRIBE's payload: a subscriber announcing their
// identity and key-agreement public key to the stream's author.
type SubscribeContent struct {
	SubscriberIdentifier identity.Identifier
	SubscriberX25519Pub  [32]byte
}

// WrapSubscribe drives SUBSCRIBE's content, joining from the linked
// ANNOUNCE (or BRANCH_ANNOUNCE) and performing an x25519 key agreement with
// the author so the resulting sponge state is shared only between the
// subscriber and the author.
//
// The subscriber's identity and key-agreement public key are masked before
// the x25519 step (ahead of their literal order in §4.E): the author's
// unwrap side needs the subscriber's X25519 public key in hand before it can
// reproduce the same shared secret, and nothing earlier in the message
// carries it.
func WrapSubscribe(w *ddml.Wrap, linked *sponge.Sponge, subscriber *identity.Ed25519Identity, authorX25519Pub [32]byte) error {
	if err := w.Join(linked); err != nil {
		return err
	}
	maskIdentifier(w, subscriber.Identifier())
	subX25519Pub := subscriber.X25519Public()
	w.Mask(subX25519Pub[:])
	if err := w.X25519(subscriber.X25519Private(), authorX25519Pub); err != nil {
		return err
	}
	if err := w.Sign(subscriber); err != nil {
		return err
	}
	w.Commit()
	return nil
}

// UnwrapSubscribe reads SUBSCRIBE's content from u. ownX25519SK is the
// author's own key-agreement private key.
func UnwrapSubscribe(u *ddml.Unwrap, linked *sponge.Sponge, ownX25519SK [32]byte) (SubscribeContent, error) {
	if err := u.Join(linked); err != nil {
		return SubscribeContent{}, err
	}
	subID, err := unmaskIdentifier(u)
	if err != nil {
		return SubscribeContent{}, err
	}
	x25519Raw, err := u.Mask(32)
	if err != nil {
		return SubscribeContent{}, err
	}
	var subX25519Pub [32]byte
	copy(subX25519Pub[:], x25519Raw)

	if err := u.X25519(ownX25519SK, subX25519Pub); err != nil {
		return SubscribeContent{}, err
	}
	if err := u.Verify(subID); err != nil {
		return SubscribeContent{}, err
	}
	u.Commit()

	return SubscribeContent{SubscriberIdentifier: subID, SubscriberX25519Pub: subX25519Pub}, nil
}
