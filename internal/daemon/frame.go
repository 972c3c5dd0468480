package daemon

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/dshills/ct/pkg/types"
)

// maxFrameBytes bounds a single request line; a client sending a
// pathologically long line is disconnected rather than allowed to
// grow the read buffer without limit.
const maxFrameBytes = 4 << 20

type frameReader struct {
	conn    net.Conn
	scanner *bufio.Scanner
	timeout time.Duration
}

func newFrameReader(conn net.Conn, timeout time.Duration) *frameReader {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)
	return &frameReader{conn: conn, scanner: scanner, timeout: timeout}
}

// readRequest blocks for at most r.timeout (spec §5's idle-read
// timeout) waiting for the next newline-terminated line, then decodes
// it as a types.Request.
func (r *frameReader) readRequest() (types.Request, error) {
	if r.timeout > 0 {
		if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
			return types.Request{}, fmt.Errorf("daemon: set read deadline: %w", err)
		}
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return types.Request{}, err
		}
		return types.Request{}, fmt.Errorf("daemon: connection closed")
	}

	var req types.Request
	if err := json.Unmarshal(r.scanner.Bytes(), &req); err != nil {
		return types.Request{}, fmt.Errorf("daemon: malformed request frame: %w", err)
	}
	return req, nil
}

type frameWriter struct {
	conn net.Conn
}

func newFrameWriter(conn net.Conn) *frameWriter {
	return &frameWriter{conn: conn}
}

// writeResponse writes one JSON-encoded line, escaping embedded
// newlines the way json.Marshal already does for string fields (spec
// §6.2's "every payload must escape embedded newlines").
func (w *frameWriter) writeResponse(resp types.Response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("daemon: marshal response: %w", err)
	}
	b = append(b, '\n')
	_, err = w.conn.Write(b)
	return err
}
