//go:build !windows

package ipc

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"slidebridge/internal/config"
)

// listen binds the control socket. On unixes this is a filesystem socket
// restricted to the owning user.
func listen(cfg config.IPCConfig) (net.Listener, error) {
	dir := filepath.Dir(cfg.SocketPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}
	// A stale socket from a crashed daemon blocks the bind.
	if err := os.Remove(cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.SocketPath, err)
	}
	if err := os.Chmod(cfg.SocketPath, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}
	return ln, nil
}

// dial connects to a running daemon's control socket.
func dial(cfg config.IPCConfig, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", cfg.SocketPath, timeout)
}
