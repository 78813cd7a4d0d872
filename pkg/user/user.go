// Package user implements the per-user protocol state machine (§4.H): the
// valid transitions over a user's streams, branches, key store and cursors,
// wiring the message builders (pkg/message) through the header/frame
// layers (pkg/wire) and a content-addressed transport (pkg/bus).
package user

import (
	"context"
	"fmt"

	"github.com/WebFirstLanguage/strandweave/pkg/address"
	"github.com/WebFirstLanguage/strandweave/pkg/bus"
	"github.com/WebFirstLanguage/strandweave/pkg/config"
	"github.com/WebFirstLanguage/strandweave/pkg/ddmlerr"
	"github.com/WebFirstLanguage/strandweave/pkg/identity"
	"github.com/WebFirstLanguage/strandweave/pkg/sponge"
	"github.com/WebFirstLanguage/strandweave/pkg/wire"
)

// Cursor is a per-publisher sequence watermark (§4.H).
type Cursor struct {
	Current     uint64
	HighestSeen uint64
}

// bump applies the cursor update rule: both fields are monotonically
// non-decreasing, independent of each other.
func (c *Cursor) bump(n uint64) {
	if n > c.Current {
		c.Current = n
	}
	if n > c.HighestSeen {
		c.HighestSeen = n
	}
}

// BranchState is one branch's chain state within a stream.
type BranchState struct {
	Topic address.Topic

	// LatestMsgID is the tip of this user's own chain in this branch, if
	// they have published here.
	LatestMsgID address.MsgID

	// LatestKnownPerPub is the most recent message this user has observed
	// from each publisher in this branch.
	LatestKnownPerPub map[identity.Identifier]address.MsgID

	// LatestKeyloadMsgID is the most recent KEYLOAD this user has observed
	// in this branch; new publishers with no chain of their own yet link
	// from here.
	LatestKeyloadMsgID address.MsgID

	Cursors map[identity.Identifier]*Cursor

	// KeyloadCursor is the sequence of the last keyload that authorized
	// this user on this branch; zero means never authorized.
	KeyloadCursor uint64
	SessionKey    [32]byte
	HasSessionKey bool
}

func newBranchState(topic address.Topic) *BranchState {
	return &BranchState{
		Topic:             topic,
		LatestKnownPerPub: make(map[identity.Identifier]address.MsgID),
		Cursors:           make(map[identity.Identifier]*Cursor),
	}
}

func (b *BranchState) cursor(id identity.Identifier) *Cursor {
	c, ok := b.Cursors[id]
	if !ok {
		c = &Cursor{}
		b.Cursors[id] = c
	}
	return c
}

// linkFor resolves the sponge a new or incoming message from publisher
// should join from: the publisher's own previous message in this branch if
// one exists, else (for any publisher but the author) the branch's most
// recent keyload — the anchor every freshly authorized publisher's first
// message links from.
func linkFor(branch *BranchState, publisher, author identity.Identifier) (address.MsgID, error) {
	if id, ok := branch.LatestKnownPerPub[publisher]; ok {
		return id, nil
	}
	if publisher == author {
		return address.MsgID{}, fmt.Errorf("user: %w: author has no prior message in branch %q", ddmlerr.ErrLinkNotFound, branch.Topic)
	}
	if branch.LatestKeyloadMsgID == (address.MsgID{}) {
		return address.MsgID{}, fmt.Errorf("user: %w: no keyload observed on branch %q yet", ddmlerr.ErrNotKeyloadAuthorized, branch.Topic)
	}
	return branch.LatestKeyloadMsgID, nil
}

// checkCursor rejects a fork attempt: a new MsgId at a sequence already at
// or below the publisher's current cursor. A second delivery of the exact
// same MsgId at the same sequence is not a fork — it is the idempotent
// re-receive scenario (§8 S4) — and is let through to re-derive identical
// content without further mutation.
func checkCursor(branch *BranchState, publisher identity.Identifier, seq uint64, msgID address.MsgID) error {
	cur := branch.cursor(publisher)
	if seq > cur.Current {
		return nil
	}
	if known, ok := branch.LatestKnownPerPub[publisher]; ok && known == msgID {
		return nil
	}
	return fmt.Errorf("user: %w: publisher %s sequence %d", ddmlerr.ErrCursorReplay, publisher, seq)
}

// StreamState is one stream's state: its author, base topic, branches, key
// store and the sponge checkpoints needed to join future messages.
type StreamState struct {
	AppAddr         address.AppAddr
	AuthorID        identity.Identifier
	AuthorX25519Pub [32]byte
	BaseTopic       address.Topic

	Branches    map[string]*BranchState
	TopicByHash map[address.TopicHash]address.Topic

	Store *KeyStore

	// Spongos is the finalized sponge state of every message this user
	// has sent or received, keyed by MsgId, so a later message can join
	// from it.
	Spongos map[address.MsgID]*sponge.Sponge
}

func newStreamState(appAddr address.AppAddr, authorID identity.Identifier, authorX25519Pub [32]byte, baseTopic address.Topic) *StreamState {
	return &StreamState{
		AppAddr:         appAddr,
		AuthorID:        authorID,
		AuthorX25519Pub: authorX25519Pub,
		BaseTopic:       baseTopic,
		Branches:        map[string]*BranchState{baseTopic.String(): newBranchState(baseTopic)},
		TopicByHash:     map[address.TopicHash]address.Topic{address.HashTopic(baseTopic): baseTopic},
		Store:           NewKeyStore(),
		Spongos:         make(map[address.MsgID]*sponge.Sponge),
	}
}

// branch looks up topic's branch, registering its hash for later header
// lookups if this is the first time the stream has seen it.
func (s *StreamState) branch(topic address.Topic) *BranchState {
	key := topic.String()
	b, ok := s.Branches[key]
	if !ok {
		b = newBranchState(topic)
		s.Branches[key] = b
		s.TopicByHash[address.HashTopic(topic)] = topic
	}
	return b
}

// User is one party's protocol handle: an identity, a transport, and the
// streams it is participating in. Per §5, a User is not internally
// synchronized — the caller serializes calls to the same handle.
type User struct {
	Identity  identity.Identity
	Transport bus.Transport
	Streams   map[address.AppAddr]*StreamState
}

// New builds a User around id, publishing to and reading from transport.
func New(id identity.Identity, transport bus.Transport) *User {
	return &User{
		Identity:  id,
		Transport: transport,
		Streams:   make(map[address.AppAddr]*StreamState),
	}
}

// signingIdentity returns the user's identity as a signing-capable
// Ed25519Identity, or ErrNoSignatureCapability if it holds a PSK identity
// instead.
func (u *User) signingIdentity() (*identity.Ed25519Identity, error) {
	ed, ok := u.Identity.(*identity.Ed25519Identity)
	if !ok {
		return nil, fmt.Errorf("user: %w", ddmlerr.ErrNoSignatureCapability)
	}
	return ed, nil
}

func (u *User) stream(appAddr address.AppAddr) (*StreamState, error) {
	s, ok := u.Streams[appAddr]
	if !ok {
		return nil, fmt.Errorf("user: %w", ddmlerr.ErrUnknownStream)
	}
	return s, nil
}

// fetchOne fetches exactly one message at addr. Zero messages is
// LinkNotFound (nothing published there yet); more than one is
// AddressCollision (§7) — the core treats that as a transport-level
// integrity violation, not something to arbitrate between.
func (u *User) fetchOne(ctx context.Context, addr address.Address) ([]byte, error) {
	msgs, err := u.Transport.Recv(ctx, addr)
	if err != nil {
		return nil, bus.Wrap(addr, fmt.Errorf("%w: %v", ddmlerr.ErrTransportError, err))
	}
	switch len(msgs) {
	case 0:
		return nil, fmt.Errorf("user: %w: %x", ddmlerr.ErrLinkNotFound, addr.Index())
	case 1:
		return msgs[0], nil
	default:
		return nil, fmt.Errorf("user: %w: %x", ddmlerr.ErrAddressCollision, addr.Index())
	}
}

func (u *User) linkedSponge(stream *StreamState, msgID address.MsgID) (*sponge.Sponge, error) {
	s, ok := stream.Spongos[msgID]
	if !ok {
		return nil, fmt.Errorf("user: %w: %x", ddmlerr.ErrLinkNotFound, msgID)
	}
	return s, nil
}

// buildHeader is the common wrap-side envelope prelude every message
// builder is driven after: HDF then PCF, both on the fresh sponge the
// message-specific builder will itself Join from the link.
func buildHeader(msgType uint8, topic address.Topic, publisher identity.Identifier, seq uint64, linked address.MsgID) wire.HDF {
	return wire.HDF{
		Version:     config.ProtocolVersion,
		MessageType: msgType,
		TopicHash:   address.HashTopic(topic),
		PublisherID: publisher,
		Sequence:    seq,
		LinkedMsgID: linked,
	}
}
