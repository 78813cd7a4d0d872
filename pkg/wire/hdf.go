// Package wire implements the two framing layers every message shares: the
// fixed-shape header (HDF) and the payload content frame (PCF), as
// specified in §3 and §6.
package wire

import (
	"fmt"

	"github.com/WebFirstLanguage/strandweave/pkg/address"
	"github.com/WebFirstLanguage/strandweave/pkg/config"
	"github.com/WebFirstLanguage/strandweave/pkg/ddml"
	"github.com/WebFirstLanguage/strandweave/pkg/ddmlerr"
	"github.com/WebFirstLanguage/strandweave/pkg/identity"
)

// HDF is the fixed-shape header prepended to every message (§3, §6).
type HDF struct {
	Version     uint8
	MessageType uint8
	TopicHash   address.TopicHash
	PublisherID identity.Identifier
	Sequence    uint64
	// LinkedMsgID is absorbed into the transcript but never carried on the
	// wire: the unwrap side recovers it from the address it fetched.
	LinkedMsgID address.MsgID
}

// WrapHDF drives the HDF fields, in declaration order, through w.
func WrapHDF(w *ddml.Wrap, h HDF) {
	w.AbsorbUint8(h.Version)
	w.AbsorbUint8(h.MessageType)
	w.Mask(h.TopicHash[:])
	w.Mask(h.PublisherID.Encode())
	w.Skip(beU64(h.Sequence))
	w.AbsorbExternal(h.LinkedMsgID[:])
}

// HDFPrefix is every HDF field up to, but not including, linked_msg_id. All
// of it — including the masked topic_hash and publisher_id — decodes without
// knowing what the message links to, which lets a caller inspect
// message_type and publisher before it has to commit to a link target (see
// UnwrapHDFPrefix).
type HDFPrefix struct {
	Version     uint8
	MessageType uint8
	TopicHash   address.TopicHash
	PublisherID identity.Identifier
	Sequence    uint64
}

// UnwrapHDFPrefix reads every HDF field except linked_msg_id. Splitting this
// out of UnwrapHDF lets a caller that doesn't yet know which prior message
// this one links to (the sync loop, dispatching on a freshly-fetched blob of
// unknown type) first learn message_type and publisher, decide the correct
// link target from its own branch state, and only then call FinishHDF.
func UnwrapHDFPrefix(u *ddml.Unwrap) (HDFPrefix, error) {
	var p HDFPrefix

	version, err := u.AbsorbUint8()
	if err != nil {
		return HDFPrefix{}, err
	}
	if version != config.ProtocolVersion {
		return HDFPrefix{}, fmt.Errorf("wire: %w: version %d", ddmlerr.ErrVersionUnsupported, version)
	}
	p.Version = version

	msgType, err := u.AbsorbUint8()
	if err != nil {
		return HDFPrefix{}, err
	}
	if msgType > config.MsgTypeTaggedPacket {
		return HDFPrefix{}, fmt.Errorf("wire: %w: type %d", ddmlerr.ErrUnknownMessageType, msgType)
	}
	p.MessageType = msgType

	topicHash, err := u.Mask(config.TopicHashSize)
	if err != nil {
		return HDFPrefix{}, err
	}
	copy(p.TopicHash[:], topicHash)

	publisherID, err := unmaskIdentifier(u)
	if err != nil {
		return HDFPrefix{}, err
	}
	p.PublisherID = publisherID

	seq, err := u.SkipUint64()
	if err != nil {
		return HDFPrefix{}, err
	}
	p.Sequence = seq

	return p, nil
}

// FinishHDF absorbs linked_msg_id (the caller-supplied link target) and
// assembles the complete HDF from an already-decoded prefix.
func FinishHDF(u *ddml.Unwrap, prefix HDFPrefix, linkedMsgID address.MsgID) (HDF, error) {
	u.AbsorbExternal(linkedMsgID[:])
	return HDF{
		Version:     prefix.Version,
		MessageType: prefix.MessageType,
		TopicHash:   prefix.TopicHash,
		PublisherID: prefix.PublisherID,
		Sequence:    prefix.Sequence,
		LinkedMsgID: linkedMsgID,
	}, nil
}

// UnwrapHDF reads the HDF fields from u. linkedMsgID must be supplied by the
// caller (recovered from its own branch state, per §3) since it is never
// transcribed on the wire. Callers that must dispatch on message_type
// before they know the link target should use UnwrapHDFPrefix and FinishHDF
// directly instead.
func UnwrapHDF(u *ddml.Unwrap, linkedMsgID address.MsgID) (HDF, error) {
	prefix, err := UnwrapHDFPrefix(u)
	if err != nil {
		return HDF{}, err
	}
	return FinishHDF(u, prefix, linkedMsgID)
}

// unmaskIdentifier decrypts a masked Identifier whose length is determined
// by its own leading tag byte: the tag is decrypted first, then the body is
// decrypted at the length the tag implies.
func unmaskIdentifier(u *ddml.Unwrap) (identity.Identifier, error) {
	tagByte, err := u.Mask(1)
	if err != nil {
		return identity.Identifier{}, err
	}
	switch identity.Kind(tagByte[0]) {
	case identity.KindEd25519:
		body, err := u.Mask(32)
		if err != nil {
			return identity.Identifier{}, err
		}
		var pk [32]byte
		copy(pk[:], body)
		return identity.Ed25519Identifier(pk), nil
	case identity.KindPskID:
		body, err := u.Mask(16)
		if err != nil {
			return identity.Identifier{}, err
		}
		var id [16]byte
		copy(id[:], body)
		return identity.PskIdentifier(id), nil
	default:
		return identity.Identifier{}, fmt.Errorf("wire: %w: 0x%02x", ddmlerr.ErrBadIdentifierTag, tagByte[0])
	}
}

func beU64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}
