// Package tcp provides the network side of the APRS-IS session.
package tcp

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DefaultKeepAlive is the TCP keep-alive period for APRS-IS sessions.
const DefaultKeepAlive = 30 * time.Second

// Dialer implements ports.Dialer with a standard net.Dialer.
type Dialer struct {
	dialer net.Dialer
}

// NewDialer creates a dialer with TCP keep-alives enabled.
// Per-attempt timeouts come from the context.
func NewDialer() *Dialer {
	return &Dialer{dialer: net.Dialer{KeepAlive: DefaultKeepAlive}}
}

// DialContext connects to address.
func (d *Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return d.dialer.DialContext(ctx, network, address)
}

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Preflight checks that host resolves before the first connection attempt.
// An unresolvable host is a startup failure, not something to retry.
func Preflight(ctx context.Context, r Resolver, host string) ([]string, error) {
	if r == nil {
		r = net.DefaultResolver
	}
	if ip := net.ParseIP(host); ip != nil {
		return []string{ip.String()}, nil
	}
	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("resolve %s: no addresses", host)
	}
	return addrs, nil
}
