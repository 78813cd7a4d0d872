package message

import (
	"github.com/WebFirstLanguage/strandweave/pkg/ddml"
	"github.com/WebFirstLanguage/strandweave/pkg/identity"
	"github.com/WebFirstLanguage/strandweave/pkg/sponge"
)

// UnsubscribeContent is UNSUBSCRIBE's payload: the subscriber asking to be
// dropped from future keyloads.
type UnsubscribeContent struct {
	SubscriberIdentifier identity.Identifier
}

// WrapUnsubscribe drives UNSUBSCRIBE's content, joining from the branch's
// most recent keyload.
func WrapUnsubscribe(w *ddml.Wrap, linked *sponge.Sponge, subscriber *identity.Ed25519Identity) error {
	if err := w.Join(linked); err != nil {
		return err
	}
	maskIdentifier(w, subscriber.Identifier())
	if err := w.Sign(subscriber); err != nil {
		return err
	}
	w.Commit()
	return nil
}

// UnwrapUnsubscribe reads UNSUBSCRIBE's content from u.
func UnwrapUnsubscribe(u *ddml.Unwrap, linked *sponge.Sponge) (UnsubscribeContent, error) {
	if err := u.Join(linked); err != nil {
		return UnsubscribeContent{}, err
	}
	subID, err := unmaskIdentifier(u)
	if err != nil {
		return UnsubscribeContent{}, err
	}
	if err := u.Verify(subID); err != nil {
		return UnsubscribeContent{}, err
	}
	u.Commit()

	return UnsubscribeContent{SubscriberIdentifier: subID}, nil
}
