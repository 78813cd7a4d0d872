package message

import (
	"github.com/WebFirstLanguage/strandweave/pkg/address"
	"github.com/WebFirstLanguage/strandweave/pkg/ddml"
	"github.com/WebFirstLanguage/strandweave/pkg/identity"
	"github.com/WebFirstLanguage/strandweave/pkg/sponge"
)

// BranchAnnounceContent is BRANCH_ANNOUNCE's payload: the author re-asserts
// their identity and opens a new topic under the same stream root.
type BranchAnnounceContent struct {
	AuthorIdentifier identity.Identifier
	NewTopic         address.Topic
}

// WrapBranchAnnounce drives BRANCH_ANNOUNCE's content, joining from the
// linked message (the prior ANNOUNCE or BRANCH_ANNOUNCE in this stream).
func WrapBranchAnnounce(w *ddml.Wrap, linked *sponge.Sponge, author *identity.Ed25519Identity, newTopic address.Topic) error {
	if err := w.Join(linked); err != nil {
		return err
	}
	maskIdentifier(w, author.Identifier())
	w.MaskBytes(newTopic.Bytes())
	if err := w.Sign(author); err != nil {
		return err
	}
	w.Commit()
	return nil
}

// UnwrapBranchAnnounce reads BRANCH_ANNOUNCE's content from u.
func UnwrapBranchAnnounce(u *ddml.Unwrap, linked *sponge.Sponge) (BranchAnnounceContent, error) {
	if err := u.Join(linked); err != nil {
		return BranchAnnounceContent{}, err
	}
	authorID, err := unmaskIdentifier(u)
	if err != nil {
		return BranchAnnounceContent{}, err
	}
	topicRaw, err := u.MaskBytes()
	if err != nil {
		return BranchAnnounceContent{}, err
	}
	topic, err := address.TopicFromBytes(topicRaw)
	if err != nil {
		return BranchAnnounceContent{}, err
	}
	if err := u.Verify(authorID); err != nil {
		return BranchAnnounceContent{}, err
	}
	u.Commit()

	return BranchAnnounceContent{AuthorIdentifier: authorID, NewTopic: topic}, nil
}
