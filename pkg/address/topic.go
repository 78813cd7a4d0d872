// Package address implements the deterministic derivation of a message's
// transport tag from (stream root, publisher, branch topic, sequence
// number), as specified in §3 and §4.D.
package address

import (
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/WebFirstLanguage/strandweave/pkg/config"
	"github.com/WebFirstLanguage/strandweave/pkg/identity"
	"github.com/WebFirstLanguage/strandweave/pkg/sponge"
)

// Topic is a ≤32-byte label for a branch. Topic.Bytes is the unpadded form
// used by every sponge derivation that takes a topic as input.
type Topic struct {
	raw [config.TopicMaxSize]byte
	n   int
}

// NewTopic builds a Topic from a human-supplied name. The name is first
// NFKC-normalized (so two callers who typed the same branch name with
// different Unicode representations derive the same TopicHash and chain);
// a name whose UTF-8 encoding then exceeds TopicMaxSize bytes is rejected.
func NewTopic(name string) (Topic, error) {
	normalized := norm.NFKC.String(name)
	b := []byte(normalized)
	if len(b) > config.TopicMaxSize {
		return Topic{}, fmt.Errorf("address: topic %q exceeds %d bytes after normalization", name, config.TopicMaxSize)
	}
	var t Topic
	copy(t.raw[:], b)
	t.n = len(b)
	return t, nil
}

// Bytes returns the topic's significant bytes (not zero-padded).
func (t Topic) Bytes() []byte {
	return t.raw[:t.n]
}

// TopicFromBytes reconstructs a Topic from bytes already normalized upstream
// (e.g. decoded off the wire), without re-running NFKC normalization.
func TopicFromBytes(b []byte) (Topic, error) {
	if len(b) > config.TopicMaxSize {
		return Topic{}, fmt.Errorf("address: topic exceeds %d bytes", config.TopicMaxSize)
	}
	var t Topic
	copy(t.raw[:], b)
	t.n = len(b)
	return t, nil
}

// Equal reports whether two topics carry the same bytes.
func (t Topic) Equal(other Topic) bool {
	return t.n == other.n && t.raw == other.raw
}

func (t Topic) String() string {
	return string(t.Bytes())
}

// TopicHash is the 16-byte hash-compression of a Topic used in the HDF for
// fixed-width carriage (§3). This module resolves the unspecified
// compression function as a sponge absorb+squeeze under a fixed domain
// label, consistent with every other derivation in this package (AppAddr,
// MsgId) and with identity's seed derivations — see DESIGN.md for the Open
// Question this settles.
type TopicHash [config.TopicHashSize]byte

// HashTopic compresses a Topic into its fixed-width TopicHash.
func HashTopic(t Topic) TopicHash {
	s := sponge.New()
	s.Absorb([]byte("TOPICHASH"))
	s.Absorb(t.Bytes())
	var h TopicHash
	copy(h[:], s.Squeeze(config.TopicHashSize))
	return h
}

// AppAddr is the 32-byte stream-root identifier, derived once at stream
// creation from (author identifier, base topic, nonce), per §4.D.
type AppAddr [config.AppAddrSize]byte

// DeriveAppAddr computes AppAddr(author_id, base_topic, nonce).
func DeriveAppAddr(author identity.Identifier, baseTopic Topic, nonce uint64) AppAddr {
	s := sponge.New()
	s.Absorb([]byte("APPADDR"))
	s.Absorb(author.Encode())
	s.Absorb(baseTopic.Bytes())
	s.Absorb(beU64(nonce))
	var addr AppAddr
	copy(addr[:], s.Squeeze(config.AppAddrSize))
	return addr
}

// MsgID is the 12-byte per-message identifier, derived at each publish.
type MsgID [config.MsgIDSize]byte

// ZeroMsgID is the sentinel linked id used by ANNOUNCE, the first message of
// any stream, which links to nothing.
var ZeroMsgID MsgID

// DeriveMsgID computes MsgId(app_addr, publisher_id, topic, seq).
func DeriveMsgID(appAddr AppAddr, publisher identity.Identifier, topic Topic, seq uint64) MsgID {
	s := sponge.New()
	s.Absorb(appAddr[:])
	s.Absorb(publisher.Encode())
	s.Absorb(topic.Bytes())
	s.Absorb(beU64(seq))
	var id MsgID
	copy(id[:], s.Squeeze(config.MsgIDSize))
	return id
}

// IndexSize is the byte length of a transport index: AppAddr || MsgId.
const IndexSize = config.AddressIndexSize

// Address is (AppAddr, MsgId); the transport index is their concatenation.
type Address struct {
	AppAddr AppAddr
	MsgID   MsgID
}

// Index returns the 44-byte big-endian transport index for this address.
func (a Address) Index() [IndexSize]byte {
	var idx [config.AddressIndexSize]byte
	copy(idx[:config.AppAddrSize], a.AppAddr[:])
	copy(idx[config.AppAddrSize:], a.MsgID[:])
	return idx
}

func beU64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}
