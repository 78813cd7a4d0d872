// Package persist saves and restores a user.User's protocol state (§6):
// its identity, every stream it knows about, each branch's cursors and
// authorization state, and the finalized sponge checkpoints needed to keep
// joining new messages without replaying the whole transcript.
//
// State is encoded as canonical CBOR (pkg/codec/cborcanon) so the same
// User always serializes to the same bytes, and is checksummed with
// BLAKE3 so a truncated or corrupted save file is rejected on Load rather
// than silently producing a half-restored User.
package persist

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"lukechampine.com/blake3"

	"github.com/WebFirstLanguage/strandweave/pkg/address"
	"github.com/WebFirstLanguage/strandweave/pkg/bus"
	"github.com/WebFirstLanguage/strandweave/pkg/codec/cborcanon"
	"github.com/WebFirstLanguage/strandweave/pkg/identity"
	"github.com/WebFirstLanguage/strandweave/pkg/sponge"
	"github.com/WebFirstLanguage/strandweave/pkg/user"
)

const checksumSize = 32

const (
	identityKindEd25519 = 0
	identityKindPsk     = 1
)

type identityDTO struct {
	Kind        byte
	Ed25519Seed [32]byte
	PSK         [32]byte
}

type spongeDTO struct {
	State  [sponge.Rate + sponge.Capacity]byte
	Offset int
}

type cursorDTO struct {
	Current     uint64
	HighestSeen uint64
}

type branchDTO struct {
	Topic              []byte
	LatestMsgID        address.MsgID
	LatestKnownPerPub  map[identity.Identifier]address.MsgID
	LatestKeyloadMsgID address.MsgID
	Cursors            map[identity.Identifier]cursorDTO
	KeyloadCursor      uint64
	SessionKey         [32]byte
	HasSessionKey      bool
}

type streamDTO struct {
	AuthorID        identity.Identifier
	AuthorX25519Pub [32]byte
	BaseTopic       []byte
	Branches        map[string]branchDTO
	Recipients      []user.RecipientRecord
	Spongos         map[address.MsgID]spongeDTO
}

type snapshot struct {
	Identity identityDTO
	Streams  map[address.AppAddr]streamDTO
}

// Save serializes u's full protocol state to canonical CBOR, BLAKE3-checksummed.
func Save(u *user.User) ([]byte, error) {
	idDTO, err := encodeIdentity(u.Identity)
	if err != nil {
		return nil, fmt.Errorf("persist: save: %w", err)
	}

	snap := snapshot{
		Identity: idDTO,
		Streams:  make(map[address.AppAddr]streamDTO, len(u.Streams)),
	}
	for appAddr, stream := range u.Streams {
		sd := streamDTO{
			AuthorID:        stream.AuthorID,
			AuthorX25519Pub: stream.AuthorX25519Pub,
			BaseTopic:       stream.BaseTopic.Bytes(),
			Branches:        make(map[string]branchDTO, len(stream.Branches)),
			Spongos:         make(map[address.MsgID]spongeDTO, len(stream.Spongos)),
		}
		for key, branch := range stream.Branches {
			bd := branchDTO{
				Topic:              branch.Topic.Bytes(),
				LatestMsgID:        branch.LatestMsgID,
				LatestKnownPerPub:  branch.LatestKnownPerPub,
				LatestKeyloadMsgID: branch.LatestKeyloadMsgID,
				Cursors:            make(map[identity.Identifier]cursorDTO, len(branch.Cursors)),
				KeyloadCursor:      branch.KeyloadCursor,
				SessionKey:         branch.SessionKey,
				HasSessionKey:      branch.HasSessionKey,
			}
			for id, c := range branch.Cursors {
				bd.Cursors[id] = cursorDTO{Current: c.Current, HighestSeen: c.HighestSeen}
			}
			sd.Branches[key] = bd
		}
		for _, id := range stream.Store.Identifiers() {
			rec, ok := stream.Store.Get(id)
			if !ok {
				continue
			}
			sd.Recipients = append(sd.Recipients, rec)
		}
		for msgID, sp := range stream.Spongos {
			sd.Spongos[msgID] = spongeDTO{State: sp.Bytes(), Offset: sp.Offset()}
		}
		snap.Streams[appAddr] = sd
	}

	payload, err := cborcanon.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("persist: save: marshal: %w", err)
	}
	sum := blake3.Sum256(payload)
	out := make([]byte, 0, len(payload)+checksumSize)
	out = append(out, sum[:]...)
	out = append(out, payload...)
	return out, nil
}

// Load rebuilds a User from data previously produced by Save, wiring it to
// transport. The checksum is verified before any CBOR decoding is attempted.
func Load(data []byte, transport bus.Transport) (*user.User, error) {
	if len(data) < checksumSize {
		return nil, fmt.Errorf("persist: load: truncated save data")
	}
	wantSum, payload := data[:checksumSize], data[checksumSize:]
	gotSum := blake3.Sum256(payload)
	if !bytes.Equal(wantSum, gotSum[:]) {
		return nil, fmt.Errorf("persist: load: checksum mismatch, save data is corrupt")
	}

	var snap snapshot
	if err := cborcanon.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("persist: load: unmarshal: %w", err)
	}

	id, err := decodeIdentity(snap.Identity)
	if err != nil {
		return nil, fmt.Errorf("persist: load: %w", err)
	}
	u := user.New(id, transport)

	for appAddr, sd := range snap.Streams {
		baseTopic, err := address.TopicFromBytes(sd.BaseTopic)
		if err != nil {
			return nil, fmt.Errorf("persist: load: base topic: %w", err)
		}
		stream := &user.StreamState{
			AppAddr:         appAddr,
			AuthorID:        sd.AuthorID,
			AuthorX25519Pub: sd.AuthorX25519Pub,
			BaseTopic:       baseTopic,
			Branches:        make(map[string]*user.BranchState, len(sd.Branches)),
			TopicByHash:     make(map[address.TopicHash]address.Topic, len(sd.Branches)),
			Store:           user.NewKeyStore(),
			Spongos:         make(map[address.MsgID]*sponge.Sponge, len(sd.Spongos)),
		}
		for key, bd := range sd.Branches {
			topic, err := address.TopicFromBytes(bd.Topic)
			if err != nil {
				return nil, fmt.Errorf("persist: load: branch topic: %w", err)
			}
			branch := &user.BranchState{
				Topic:              topic,
				LatestMsgID:        bd.LatestMsgID,
				LatestKnownPerPub:  bd.LatestKnownPerPub,
				LatestKeyloadMsgID: bd.LatestKeyloadMsgID,
				Cursors:            make(map[identity.Identifier]*user.Cursor, len(bd.Cursors)),
				KeyloadCursor:      bd.KeyloadCursor,
				SessionKey:         bd.SessionKey,
				HasSessionKey:      bd.HasSessionKey,
			}
			for id, c := range bd.Cursors {
				branch.Cursors[id] = &user.Cursor{Current: c.Current, HighestSeen: c.HighestSeen}
			}
			if branch.LatestKnownPerPub == nil {
				branch.LatestKnownPerPub = make(map[identity.Identifier]address.MsgID)
			}
			stream.Branches[key] = branch
			stream.TopicByHash[address.HashTopic(topic)] = topic
		}
		for _, rec := range sd.Recipients {
			stream.Store.Put(rec)
		}
		for msgID, spd := range sd.Spongos {
			stream.Spongos[msgID] = sponge.FromBytes(spd.State, spd.Offset)
		}
		u.Streams[appAddr] = stream
	}

	return u, nil
}

func encodeIdentity(id identity.Identity) (identityDTO, error) {
	switch v := id.(type) {
	case *identity.Ed25519Identity:
		var seed [32]byte
		copy(seed[:], v.Seed())
		return identityDTO{Kind: identityKindEd25519, Ed25519Seed: seed}, nil
	case *identity.PskIdentity:
		return identityDTO{Kind: identityKindPsk, PSK: v.PSK()}, nil
	default:
		return identityDTO{}, fmt.Errorf("persist: unsupported identity type %T", id)
	}
}

func decodeIdentity(dto identityDTO) (identity.Identity, error) {
	switch dto.Kind {
	case identityKindEd25519:
		return identity.NewEd25519Identity(ed25519.NewKeyFromSeed(dto.Ed25519Seed[:])), nil
	case identityKindPsk:
		return identity.NewPskIdentity(dto.PSK), nil
	default:
		return nil, fmt.Errorf("persist: unknown identity kind %d", dto.Kind)
	}
}
