// Package reach implements the cheap TCP reachability pre-filter run before any protocol work.
package reach

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/woozymasta/mclookup/internal/protocol"
)

// Check opens and immediately closes a TCP connection to addr.
// A nil error means the port accepted the connection. Failures wrap
// protocol.ErrConnection or protocol.ErrTimeout.
func Check(ctx context.Context, addr netip.AddrPort, timeout time.Duration) error {
	d := net.Dialer{Timeout: timeout}

	conn, err := d.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return protocol.Classify(err)
	}

	return conn.Close()
}
