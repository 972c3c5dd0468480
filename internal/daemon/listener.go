package daemon

import (
	"fmt"
	"net"
	"os"
	"runtime"

	"github.com/dshills/ct/internal/config"
)

// Listen opens the transport endpoint selected by cfg's effective
// transport (spec §6.1). The endpoint path embeds workspaceFingerprint
// to isolate per-workspace daemons.
func Listen(cfg config.Config, workspaceFingerprint string) (net.Listener, error) {
	switch cfg.EffectiveTransport() {
	case config.TransportUnix:
		return listenUnix(cfg.ResolvedSocketPath(workspaceFingerprint))
	case config.TransportTCP:
		return net.Listen("tcp", cfg.TCPAddr)
	case config.TransportPipe:
		// Named pipes need a Windows-specific driver (no such
		// dependency appears anywhere in the retrieved corpus); this
		// build supports Unix-family and TCP transports only.
		return nil, fmt.Errorf("daemon: named pipe transport is not supported on %s by this build", runtime.GOOS)
	default:
		return nil, fmt.Errorf("daemon: unknown transport %q", cfg.Transport)
	}
}

func listenUnix(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("daemon: clear stale socket %s: %w", path, err)
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("daemon: listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("daemon: restrict socket permissions: %w", err)
	}
	return l, nil
}
