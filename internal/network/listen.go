package network

import (
	"context"
	"net"
)

// Listen opens a TCP listener with SO_REUSEADDR set where the platform
// supports it, so a restarted process can rebind a port still in
// TIME_WAIT.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{Control: reuseAddr}
	return lc.Listen(ctx, "tcp", addr)
}
