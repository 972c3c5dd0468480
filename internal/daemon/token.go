package daemon

import (
	"crypto/subtle"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/dshills/ct/internal/config"
)

// issueSessionToken writes a fresh session token to the per-user
// runtime-directory file spec §6.3 describes, restricted to owner
// read/write, and returns the token. Only the TCP transport gates
// connections on it; Unix socket and named pipe transports already
// restrict access to the invoking user via filesystem permissions.
func issueSessionToken(cfg config.Config, workspaceFingerprint string) (string, error) {
	token := uuid.NewString()
	path := cfg.SessionTokenPath(workspaceFingerprint)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("daemon: create session token dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(token), 0o600); err != nil {
		return "", fmt.Errorf("daemon: write session token: %w", err)
	}
	return token, nil
}

// checkToken reports whether presented matches expected, using a
// constant-time comparison so a TCP-transport attacker can't learn
// the token a byte at a time via response timing.
func checkToken(expected, presented string) bool {
	if expected == "" {
		return true // gating only applies when a token was issued
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}
