package message

import (
	"github.com/WebFirstLanguage/strandweave/pkg/ddml"
	"github.com/WebFirstLanguage/strandweave/pkg/identity"
	"github.com/WebFirstLanguage/strandweave/pkg/sponge"
)

// SignedPacketContent is SIGNED_PACKET's payload: a plaintext public part
// and a masked part. Both are recovered by anyone holding the linked
// sponge state; pkg/user withholds the masked part from a reader whose
// branch has no session key.
type SignedPacketContent struct {
	PublisherIdentifier identity.Identifier
	PublicPayload       []byte
	MaskedPayload       []byte
}

// WrapSignedPacket drives SIGNED_PACKET's content, binding the publisher's
// identity via a trailing signature.
func WrapSignedPacket(w *ddml.Wrap, linked *sponge.Sponge, publisher *identity.Ed25519Identity, publicPayload, maskedPayload []byte) error {
	if err := w.Join(linked); err != nil {
		return err
	}
	maskIdentifier(w, publisher.Identifier())
	w.AbsorbBytes(publicPayload)
	w.MaskBytes(maskedPayload)
	if err := w.Sign(publisher); err != nil {
		return err
	}
	w.Commit()
	return nil
}

// UnwrapSignedPacket reads SIGNED_PACKET's content from u.
func UnwrapSignedPacket(u *ddml.Unwrap, linked *sponge.Sponge) (SignedPacketContent, error) {
	if err := u.Join(linked); err != nil {
		return SignedPacketContent{}, err
	}
	publisherID, err := unmaskIdentifier(u)
	if err != nil {
		return SignedPacketContent{}, err
	}
	publicPayload, err := u.AbsorbBytes()
	if err != nil {
		return SignedPacketContent{}, err
	}
	maskedPayload, err := u.MaskBytes()
	if err != nil {
		return SignedPacketContent{}, err
	}
	if err := u.Verify(publisherID); err != nil {
		return SignedPacketContent{}, err
	}
	u.Commit()

	return SignedPacketContent{
		PublisherIdentifier: publisherID,
		PublicPayload:       publicPayload,
		MaskedPayload:       maskedPayload,
	}, nil
}
