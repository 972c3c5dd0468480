package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/dshills/ct/internal/config"
	"github.com/dshills/ct/internal/fingerprint"
	"github.com/dshills/ct/internal/ingest"
	"github.com/dshills/ct/pkg/types"
)

// Client is a single-connection handle to a running ctd, used by
// cmd/ct to send one command and read its response.
type Client struct {
	conn  net.Conn
	r     *bufio.Scanner
	token string
}

// Dial connects to the daemon serving workspaceRoot, optionally
// spawning it first when cfg.Autostart is set and no daemon answers
// (spec §6.5's autostart key).
func Dial(ctx context.Context, cfg config.Config, workspaceRoot string) (*Client, error) {
	members, err := ingest.DiscoverMembers(ctx, workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("client: discover workspace members: %w", err)
	}
	roots := make(map[string]string, len(members))
	for _, m := range members {
		roots[m.Name] = m.Dir
	}
	fp, err := fingerprint.Workspace(roots)
	if err != nil {
		return nil, fmt.Errorf("client: compute workspace fingerprint: %w", err)
	}

	c, err := dialOnce(cfg, fp)
	if err == nil {
		return c, nil
	}
	if !cfg.Autostart {
		return nil, fmt.Errorf("%w: %v", errDaemonUnavailable, err)
	}

	if err := spawnDaemon(workspaceRoot); err != nil {
		return nil, fmt.Errorf("client: autostart daemon: %w", err)
	}
	for attempt := 0; attempt < 20; attempt++ {
		time.Sleep(150 * time.Millisecond)
		c, err = dialOnce(cfg, fp)
		if err == nil {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: daemon did not come up after autostart: %v", errDaemonUnavailable, err)
}

func dialOnce(cfg config.Config, fp string) (*Client, error) {
	var conn net.Conn
	var err error
	switch cfg.EffectiveTransport() {
	case config.TransportUnix:
		conn, err = net.Dial("unix", cfg.ResolvedSocketPath(fp))
	case config.TransportTCP:
		conn, err = net.Dial("tcp", cfg.TCPAddr)
	default:
		return nil, fmt.Errorf("client: unsupported transport %q", cfg.Transport)
	}
	if err != nil {
		return nil, err
	}

	var token string
	if cfg.EffectiveTransport() == config.TransportTCP {
		b, rerr := os.ReadFile(cfg.SessionTokenPath(fp))
		if rerr != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("client: read session token: %w", rerr)
		}
		token = string(b)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)
	return &Client{conn: conn, r: scanner, token: token}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Send writes one request and reads back exactly one response line.
func (c *Client) Send(cmd string, params map[string]any, decision string) (types.Response, error) {
	req := types.Request{
		Cmd:             cmd,
		RequestID:       fmt.Sprintf("%s-%d", cmd, time.Now().UnixNano()),
		ProtocolVersion: types.ProtocolVersion,
		Params:          params,
		Decision:        decision,
		Token:           c.token,
	}
	b, err := json.Marshal(req)
	if err != nil {
		return types.Response{}, fmt.Errorf("client: marshal request: %w", err)
	}
	b = append(b, '\n')
	if _, err := c.conn.Write(b); err != nil {
		return types.Response{}, fmt.Errorf("client: write request: %w", err)
	}

	if !c.r.Scan() {
		if err := c.r.Err(); err != nil {
			return types.Response{}, fmt.Errorf("client: read response: %w", err)
		}
		return types.Response{}, fmt.Errorf("client: connection closed before response")
	}
	var resp types.Response
	if err := json.Unmarshal(c.r.Bytes(), &resp); err != nil {
		return types.Response{}, fmt.Errorf("client: decode response: %w", err)
	}
	return resp, nil
}

// spawnDaemon starts ctd detached, pointed at workspaceRoot, and
// returns immediately; Dial's retry loop waits for it to come up.
// cmd/ct and cmd/ctd ship as separate binaries on PATH.
func spawnDaemon(workspaceRoot string) error {
	ctdPath, err := exec.LookPath("ctd")
	if err != nil {
		return fmt.Errorf("client: ctd not found on PATH: %w", err)
	}
	cmd := exec.Command(ctdPath, "--workspace", workspaceRoot)
	return cmd.Start()
}

var errDaemonUnavailable = errors.New("client: daemon unavailable")
