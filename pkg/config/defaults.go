// Package config centralizes the protocol's cross-cutting tunables: wire
// version, frame layout constants, and tag/address sizes, mirroring how the
// corpus keeps its defaults in one small package rather than scattering
// magic numbers across components.
package config

// ProtocolVersion is the only HDF version this module emits and accepts.
// Any other value is ErrVersionUnsupported.
const ProtocolVersion = 1

// Message type tags (HDF.message_type), as enumerated in §3.
const (
	MsgTypeAnnounce       = 0
	MsgTypeBranchAnnounce = 1
	MsgTypeSubscribe      = 2
	MsgTypeUnsubscribe    = 3
	MsgTypeKeyload        = 4
	MsgTypeSignedPacket   = 5
	MsgTypeTaggedPacket   = 6
)

// PCF frame_type values (§3).
const (
	FrameInit  = 0
	FrameInter = 1
	FrameFinal = 2
)

// Fixed sizes, in bytes, used throughout the address/header/codec layers.
const (
	AppAddrSize   = 32
	MsgIDSize     = 12
	TopicHashSize = 16
	TopicMaxSize  = 32
	MacSize       = 32 // TAGGED_PACKET squeeze mac
	SignatureSize = 64 // Ed25519 signature
	X25519PubSize = 32
	PskIDSize     = 16
	PskSize       = 32
	NonceSize     = 16
	SessionKeySize = 32
)

// Identifier tag bytes (§6).
const (
	IdentifierTagEd25519 = 0x00
	IdentifierTagPskID   = 0x01
)

// AddressIndexSize is the size of the transport index: AppAddr || MsgId.
const AddressIndexSize = AppAddrSize + MsgIDSize
