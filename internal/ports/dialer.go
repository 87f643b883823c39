package ports

import (
	"context"
	"net"
)

// Dialer abstracts TCP connection setup for dependency injection.
// The standard *net.Dialer satisfies this interface.
type Dialer interface {
	// DialContext connects to the address on the named network.
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}
