// Package bucket implements an in-memory bus.Transport: a map keyed by the
// 44-byte transport index, each entry a append-only list of published
// message bytes. Used for single-process tests and local development.
package bucket

import (
	"context"
	"sync"

	"github.com/WebFirstLanguage/strandweave/pkg/address"
	"github.com/WebFirstLanguage/strandweave/pkg/bus"
)

// Bucket is a concurrency-safe in-memory bus.Transport.
type Bucket struct {
	mu   sync.Mutex
	msgs map[[address.IndexSize]byte][][]byte
}

var _ bus.Transport = (*Bucket)(nil)

// New returns an empty Bucket.
func New() *Bucket {
	return &Bucket{msgs: make(map[[address.IndexSize]byte][][]byte)}
}

// Send appends msg to addr's message list. The copy is defensive: callers
// retain ownership of msg after Send returns.
func (b *Bucket) Send(_ context.Context, addr address.Address, msg []byte) error {
	stored := append([]byte(nil), msg...)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs[addr.Index()] = append(b.msgs[addr.Index()], stored)
	return nil
}

// Recv returns every message ever sent to addr, in send order. A nil slice
// (not an error) signals nothing has been published there yet.
func (b *Bucket) Recv(_ context.Context, addr address.Address) ([][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs, ok := b.msgs[addr.Index()]
	if !ok {
		return nil, nil
	}
	out := make([][]byte, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Len reports how many distinct addresses currently hold messages. Test
// helper only.
func (b *Bucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs)
}
