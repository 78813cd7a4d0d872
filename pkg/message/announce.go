package message

import (
	"github.com/WebFirstLanguage/strandweave/pkg/address"
	"github.com/WebFirstLanguage/strandweave/pkg/ddml"
	"github.com/WebFirstLanguage/strandweave/pkg/identity"
)

// AnnounceContent is ANNOUNCE's payload: the author's identity, their
// key-agreement public key, and the base topic the stream is rooted at.
type AnnounceContent struct {
	AuthorIdentifier identity.Identifier
	AuthorX25519Pub  [32]byte
	BaseTopic        address.Topic
}

// WrapAnnounce drives ANNOUNCE's content over a fresh sponge (ANNOUNCE never
// joins a linked message: it is the root of a stream).
func WrapAnnounce(w *ddml.Wrap, author *identity.Ed25519Identity, baseTopic address.Topic) error {
	maskIdentifier(w, author.Identifier())
	x25519Pub := author.X25519Public()
	w.Mask(x25519Pub[:])
	w.MaskBytes(baseTopic.Bytes())
	if err := w.Sign(author); err != nil {
		return err
	}
	w.Commit()
	return nil
}

// UnwrapAnnounce reads ANNOUNCE's content from u.
func UnwrapAnnounce(u *ddml.Unwrap) (AnnounceContent, error) {
	authorID, err := unmaskIdentifier(u)
	if err != nil {
		return AnnounceContent{}, err
	}
	x25519Raw, err := u.Mask(32)
	if err != nil {
		return AnnounceContent{}, err
	}
	var x25519Pub [32]byte
	copy(x25519Pub[:], x25519Raw)

	topicRaw, err := u.MaskBytes()
	if err != nil {
		return AnnounceContent{}, err
	}
	topic, err := address.TopicFromBytes(topicRaw)
	if err != nil {
		return AnnounceContent{}, err
	}

	if err := u.Verify(authorID); err != nil {
		return AnnounceContent{}, err
	}
	u.Commit()

	return AnnounceContent{
		AuthorIdentifier: authorID,
		AuthorX25519Pub:  x25519Pub,
		BaseTopic:        topic,
	}, nil
}
