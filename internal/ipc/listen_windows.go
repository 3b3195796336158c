//go:build windows

package ipc

import (
	"fmt"
	"net"
	"strings"
	"time"

	"slidebridge/internal/config"
)

// listen binds the control socket. Unix sockets are missing on older
// supported Windows builds, so the daemon listens on loopback TCP instead;
// non-loopback addresses are rejected.
func listen(cfg config.IPCConfig) (net.Listener, error) {
	if !strings.HasPrefix(cfg.ListenAddr, "127.0.0.1:") && !strings.HasPrefix(cfg.ListenAddr, "localhost:") {
		return nil, fmt.Errorf("control socket must stay on loopback, got %q", cfg.ListenAddr)
	}
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}
	return ln, nil
}

// dial connects to a running daemon's control socket.
func dial(cfg config.IPCConfig, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", cfg.ListenAddr, timeout)
}
