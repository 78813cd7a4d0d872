// Package ddmlerr defines the distinguishable error kinds for the protocol's
// wrap/unwrap and state-machine operations, as specified in §7. Call sites
// wrap these with fmt.Errorf("...: %w", ErrX) so errors.Is matches across
// component boundaries (codec -> message builder -> user state machine).
package ddmlerr

import "errors"

var (
	// ErrVersionUnsupported is returned when HDF.version != the one
	// version this module emits and accepts.
	ErrVersionUnsupported = errors.New("ddml: unsupported protocol version")

	// ErrUnknownMessageType is returned when HDF.message_type is not one
	// of the seven enumerated values.
	ErrUnknownMessageType = errors.New("ddml: unknown message type")

	// ErrBadIdentifierTag is returned when an Identifier's tag byte is not
	// in {0x00, 0x01}.
	ErrBadIdentifierTag = errors.New("ddml: bad identifier tag")

	// ErrLinkNotFound is returned when HDF.linked_msg_id is not present in
	// the spongos store.
	ErrLinkNotFound = errors.New("ddml: linked message not found")

	// ErrBadSignature is returned when Ed25519 verification fails.
	ErrBadSignature = errors.New("ddml: bad signature")

	// ErrMacMismatch is returned when a squeeze-compare MAC check fails.
	ErrMacMismatch = errors.New("ddml: mac mismatch")

	// ErrCursorReplay is returned when a received sequence number is <=
	// the stored cursor for that publisher.
	ErrCursorReplay = errors.New("ddml: cursor replay")

	// ErrAddressCollision is returned when a wrap produced an address that
	// already holds a different message on the transport.
	ErrAddressCollision = errors.New("ddml: address collision")

	// ErrNotAuthorized is returned when masked content can't be read
	// because no keyload slot for the reader's identity was found.
	ErrNotAuthorized = errors.New("ddml: not authorized")

	// ErrNoSignatureCapability is returned when a PSK identity is asked to
	// sign.
	ErrNoSignatureCapability = errors.New("ddml: identity cannot sign")

	// ErrTransportError wraps an opaque transport failure.
	ErrTransportError = errors.New("ddml: transport error")

	// ErrBufferExhausted is returned when a wrap/unwrap stream runs off
	// the end of its buffer.
	ErrBufferExhausted = errors.New("ddml: buffer exhausted")

	// ErrUnsupportedFrame is returned for PCF frame_type values other than
	// FINAL; INIT/INTER are reserved for unspecified future multi-frame
	// payloads (§9 Open Question).
	ErrUnsupportedFrame = errors.New("ddml: unsupported frame type")

	// ErrLinkedNotCommitted is returned when a join is attempted against a
	// sponge with a pending, uncommitted rate write.
	ErrLinkedNotCommitted = errors.New("ddml: linked sponge not committed")

	// ErrUnknownStream is returned when an operation names an AppAddr the
	// user has never seen an announcement for.
	ErrUnknownStream = errors.New("ddml: unknown stream")

	// ErrUnknownBranch is returned when an operation names a Topic the
	// user has no branch state for.
	ErrUnknownBranch = errors.New("ddml: unknown branch")

	// ErrNotAuthor is returned when an author-only operation is attempted
	// by a non-author identity.
	ErrNotAuthor = errors.New("ddml: not the stream author")

	// ErrUnknownRecipient is returned when send_keyload names a recipient
	// not present in the KeyStore.
	ErrUnknownRecipient = errors.New("ddml: unknown keyload recipient")

	// ErrNotKeyloadAuthorized is returned when a non-author publisher
	// attempts to send a signed/tagged packet before any keyload on the
	// branch has authorized them.
	ErrNotKeyloadAuthorized = errors.New("ddml: publisher not authorized by any keyload")
)
