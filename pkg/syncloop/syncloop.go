// Package syncloop implements fetch_next (§4.I): polling a branch's known
// publishers for their next message and draining everything newly
// available in one call.
package syncloop

import (
	"context"
	"fmt"

	"github.com/WebFirstLanguage/strandweave/pkg/address"
	"github.com/WebFirstLanguage/strandweave/pkg/ddmlerr"
	"github.com/WebFirstLanguage/strandweave/pkg/identity"
	"github.com/WebFirstLanguage/strandweave/pkg/user"
)

// FetchNext polls every publisher known to the stream — its author and
// whoever is registered in the stream's KeyStore — at
// MsgId(app_addr, publisher, topic, cursor.current+1), unwrapping whatever
// the transport returns. A pass that advances at least one publisher's
// cursor is repeated, so a publisher who has posted several messages since
// the last call is fully drained in one FetchNext rather than one message
// at a time. Ordering across publishers is unspecified, per §4.I;
// ordering within one publisher is strictly the sequence in which their
// cursor advances.
func FetchNext(ctx context.Context, u *user.User, appAddr address.AppAddr, topic address.Topic) ([]user.Received, error) {
	stream, ok := u.Streams[appAddr]
	if !ok {
		return nil, fmt.Errorf("syncloop: %w", ddmlerr.ErrUnknownStream)
	}
	branch, ok := stream.Branches[topic.String()]
	if !ok {
		return nil, fmt.Errorf("syncloop: %w", ddmlerr.ErrUnknownBranch)
	}

	var out []user.Received
	for {
		progressed := false
		for _, pub := range candidatePublishers(stream) {
			next := uint64(1)
			if cur, ok := branch.Cursors[pub]; ok {
				next = cur.Current + 1
			}

			addr := address.Address{
				AppAddr: appAddr,
				MsgID:   address.DeriveMsgID(appAddr, pub, topic, next),
			}
			received, err := u.Receive(ctx, addr)
			if err != nil {
				// Non-fatal per §7's propagation policy: no candidate at
				// this address yet, or an unwrap rejected it outright —
				// either way this publisher made no progress this round.
				continue
			}
			out = append(out, received)
			progressed = true
		}
		if !progressed {
			return out, nil
		}
	}
}

// candidatePublishers lists every identifier FetchNext should poll: the
// stream author plus every recipient this user's KeyStore has learned of
// (via SUBSCRIBE or a registered PSK).
func candidatePublishers(stream *user.StreamState) []identity.Identifier {
	seen := map[identity.Identifier]bool{stream.AuthorID: true}
	out := []identity.Identifier{stream.AuthorID}
	for _, id := range stream.Store.Identifiers() {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
