package message

import (
	"bytes"

	"github.com/WebFirstLanguage/strandweave/pkg/ddml"
	"github.com/WebFirstLanguage/strandweave/pkg/identity"
	"github.com/WebFirstLanguage/strandweave/pkg/sponge"
)

// KeyloadContent is KEYLOAD's payload as seen by a single recipient:
// the nonce, and — only if this recipient held a matching slot — the
// session key it unlocks.
type KeyloadContent struct {
	Nonce      [16]byte
	SessionKey [32]byte
	Authorized bool
}

// WrapKeyload drives KEYLOAD's content: a nonce and a session key masked
// under the main transcript (readable by anyone already following the
// branch, per the non-goal that the sponge's transcript is not hidden from
// an observer who can replay it), followed by one forked, per-recipient
// slot re-encrypting the same session key under each recipient's own key
// material so a party who hasn't followed the branch from its start can
// still recover it.
func WrapKeyload(w *ddml.Wrap, linked *sponge.Sponge, nonce [16]byte, sessionKey [32]byte, recipients []RecipientInput, author *identity.Ed25519Identity) error {
	if err := w.Join(linked); err != nil {
		return err
	}
	w.Mask(nonce[:])
	w.Mask(sessionKey[:])

	for _, r := range recipients {
		if err := wrapKeyloadSlot(w, r, sessionKey); err != nil {
			return err
		}
	}

	if err := w.Sign(author); err != nil {
		return err
	}
	w.Commit()
	return nil
}

func wrapKeyloadSlot(w *ddml.Wrap, r RecipientInput, sessionKey [32]byte) error {
	return w.Fork(func(fork *ddml.Wrap) error {
		switch r.Identifier.Kind {
		case identity.KindEd25519:
			fork.Absorb([]byte{slotKindX25519})
			fork.AbsorbExternal(r.Identifier.Encode())
			ephemeralSK, ephemeralPK, err := freshX25519Ephemeral()
			if err != nil {
				return err
			}
			if err := fork.X25519EncryptKey(r.X25519Pub, sessionKey[:], ephemeralSK, ephemeralPK); err != nil {
				return err
			}
			fork.SqueezeMac(confirmTagSize)
			return nil
		case identity.KindPskID:
			fork.Absorb([]byte{slotKindPSK})
			fork.AbsorbExternal(r.PSK[:])
			fork.Mask(sessionKey[:])
			fork.SqueezeMac(confirmTagSize)
			return nil
		default:
			return badIdentifierTag(byte(r.Identifier.Kind))
		}
	})
}

// UnwrapKeyload reads KEYLOAD's content from u. The main-transcript session
// key copy is decrypted only to keep the sponge's cursor synchronized (its
// plaintext is discarded): this implementation treats only a matching
// per-recipient slot as authorization, matching §4.H's "attempt to unwrap
// each recipient slot until one matches own identity" and its Keyload
// gating property — not the underlying cipher's literal recoverability.
// trailingBytes is the fixed size of what follows the recipient loop (the
// 64-byte signature), so the loop knows when to stop.
func UnwrapKeyload(u *ddml.Unwrap, linked *sponge.Sponge, authorIdentifier identity.Identifier, self SelfCredentials, trailingBytes int) (KeyloadContent, error) {
	if err := u.Join(linked); err != nil {
		return KeyloadContent{}, err
	}
	nonceRaw, err := u.Mask(16)
	if err != nil {
		return KeyloadContent{}, err
	}
	var nonce [16]byte
	copy(nonce[:], nonceRaw)

	if _, err := u.Mask(32); err != nil {
		return KeyloadContent{}, err
	}

	var sessionKey [32]byte
	authorized := false

	for u.Remaining() > trailingBytes {
		found, key, err := unwrapKeyloadSlot(u, self)
		if err != nil {
			return KeyloadContent{}, err
		}
		if found {
			authorized = true
			sessionKey = key
		}
	}

	if err := u.Verify(authorIdentifier); err != nil {
		return KeyloadContent{}, err
	}
	u.Commit()

	return KeyloadContent{Nonce: nonce, SessionKey: sessionKey, Authorized: authorized}, nil
}

// x25519SlotBytes is ephemeral_pk(32) || masked_key(32) || confirm_tag(8).
const x25519SlotBytes = 32 + 32 + confirmTagSize

// pskSlotBytes is masked_key(32) || confirm_tag(8).
const pskSlotBytes = 32 + confirmTagSize

func unwrapKeyloadSlot(u *ddml.Unwrap, self SelfCredentials) (found bool, key [32]byte, err error) {
	err = u.Fork(func(fork *ddml.Unwrap) error {
		kindByte, err := fork.Absorb(1)
		if err != nil {
			return err
		}
		switch kindByte[0] {
		case slotKindX25519:
			fork.AbsorbExternal(self.Identifier.Encode())
			if !self.HasX25519 {
				if _, err := fork.Skip(x25519SlotBytes); err != nil {
					return err
				}
				return nil
			}
			plaintext, derr := fork.X25519DecryptKey(self.X25519SK, 32)
			if derr != nil {
				return derr
			}
			if merr := fork.SqueezeMac(confirmTagSize); merr == nil {
				copy(key[:], plaintext)
				found = true
			}
			return nil
		case slotKindPSK:
			raw, err := fork.Skip(pskSlotBytes)
			if err != nil {
				return err
			}
			ciphertext, tag := raw[:32], raw[32:]
			base := fork.Sponge()
			for _, psk := range self.KnownPSKs {
				trial := base.Fork()
				trial.Absorb(psk[:])
				plaintext := trial.Decrypt(append([]byte(nil), ciphertext...))
				wantTag := trial.Squeeze(confirmTagSize)
				if bytes.Equal(wantTag, tag) {
					copy(key[:], plaintext)
					found = true
					break
				}
			}
			return nil
		default:
			return badSlotKind(kindByte[0])
		}
	})
	return found, key, err
}
