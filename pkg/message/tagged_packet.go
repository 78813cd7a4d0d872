package message

import (
	"github.com/WebFirstLanguage/strandweave/pkg/config"
	"github.com/WebFirstLanguage/strandweave/pkg/ddml"
	"github.com/WebFirstLanguage/strandweave/pkg/sponge"
)

// TaggedPacketContent is TAGGED_PACKET's payload: unlike SIGNED_PACKET it
// carries no publisher identity — its trailing MAC authenticates membership
// in the branch's session key, not any one publisher.
type TaggedPacketContent struct {
	PublicPayload []byte
	MaskedPayload []byte
}

// WrapTaggedPacket drives TAGGED_PACKET's content.
func WrapTaggedPacket(w *ddml.Wrap, linked *sponge.Sponge, publicPayload, maskedPayload []byte) error {
	if err := w.Join(linked); err != nil {
		return err
	}
	w.AbsorbBytes(publicPayload)
	w.MaskBytes(maskedPayload)
	w.SqueezeMac(config.MacSize)
	w.Commit()
	return nil
}

// UnwrapTaggedPacket reads TAGGED_PACKET's content from u. Join and Mask
// do not detect a wrong linked sponge; a caller whose linked state differs
// from the sender's decrypts garbage and fails here, at the MAC.
func UnwrapTaggedPacket(u *ddml.Unwrap, linked *sponge.Sponge) (TaggedPacketContent, error) {
	if err := u.Join(linked); err != nil {
		return TaggedPacketContent{}, err
	}
	publicPayload, err := u.AbsorbBytes()
	if err != nil {
		return TaggedPacketContent{}, err
	}
	maskedPayload, err := u.MaskBytes()
	if err != nil {
		return TaggedPacketContent{}, err
	}
	if err := u.SqueezeMac(config.MacSize); err != nil {
		return TaggedPacketContent{}, err
	}
	u.Commit()

	return TaggedPacketContent{PublicPayload: publicPayload, MaskedPayload: maskedPayload}, nil
}
