// Package bus defines the content-addressed transport contract the core
// protocol depends on (§6): a key→bag-of-bytes store addressed by the
// 44-byte transport index. The core treats everything below this interface
// as an external collaborator.
package bus

import (
	"context"
	"fmt"

	"github.com/WebFirstLanguage/strandweave/pkg/address"
)

// Transport is the minimum contract the core protocol needs from a
// transport. Send publishes bytes at addr; Recv returns every message ever
// published at addr, in publish order. Recv returning zero messages is not
// an error — it means "nothing here yet".
type Transport interface {
	Send(ctx context.Context, addr address.Address, msg []byte) error
	Recv(ctx context.Context, addr address.Address) ([][]byte, error)
}

// Error wraps a transport failure with the address that was being
// attempted, satisfying the core's TransportError kind (§7).
type Error struct {
	Addr address.Address
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("bus: transport error at %x: %v", e.Addr.Index(), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap builds a bus.Error pinning addr to the underlying cause.
func Wrap(addr address.Address, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Addr: addr, Err: err}
}
