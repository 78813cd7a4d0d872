package user

import "github.com/WebFirstLanguage/strandweave/pkg/identity"

// RecipientRecord is everything a keyload sender needs to know about one
// potential recipient: how to address a key slot to them.
type RecipientRecord struct {
	Identifier identity.Identifier
	X25519Pub  [32]byte
	HasX25519  bool
	PSK        [32]byte
	HasPSK     bool
}

// KeyStore is an author's registry of subscribers eligible for keyload
// recipient lists (§4.H), populated by receive_subscribe and by registering
// a pre-shared key directly.
type KeyStore struct {
	recipients map[identity.Identifier]RecipientRecord
}

// NewKeyStore returns an empty KeyStore.
func NewKeyStore() *KeyStore {
	return &KeyStore{recipients: make(map[identity.Identifier]RecipientRecord)}
}

// Put inserts or replaces rec, keyed by its identifier.
func (k *KeyStore) Put(rec RecipientRecord) {
	k.recipients[rec.Identifier] = rec
}

// Get looks up a recipient by identifier.
func (k *KeyStore) Get(id identity.Identifier) (RecipientRecord, bool) {
	rec, ok := k.recipients[id]
	return rec, ok
}

// Remove drops a recipient. Idempotent: removing an absent identifier is a
// no-op, per §4.H's removal invariant.
func (k *KeyStore) Remove(id identity.Identifier) {
	delete(k.recipients, id)
}

// RegisterPSK registers a pre-shared key as a recipient the author can
// include in a keyload's recipient list, identified by its derived PskId.
func (k *KeyStore) RegisterPSK(psk [32]byte) identity.Identifier {
	id := identity.NewPskIdentity(psk).Identifier()
	k.Put(RecipientRecord{Identifier: id, PSK: psk, HasPSK: true})
	return id
}

// Len reports how many recipients are registered. Test helper.
func (k *KeyStore) Len() int {
	return len(k.recipients)
}

// Identifiers returns every registered recipient's identifier, in no
// particular order. Used by the sync loop (§4.I) to enumerate candidate
// publishers.
func (k *KeyStore) Identifiers() []identity.Identifier {
	out := make([]identity.Identifier, 0, len(k.recipients))
	for id := range k.recipients {
		out = append(out, id)
	}
	return out
}
