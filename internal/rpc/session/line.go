package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/PolybrainAI/polybrain-core/internal/rpc"
)

// MaxFrameSize bounds a single incoming line frame.
const MaxFrameSize = 1 << 20

var crlf = []byte("\r\n")

// DecodeError is returned for a line that is not a valid client frame. The
// peer has already been sent a RequestError frame.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("bad request format: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// LineTransport speaks JSON frames terminated by CRLF. A frame may itself
// contain bare newlines, so pretty-printed JSON is accepted.
type LineTransport struct {
	conn    io.ReadWriter
	scanner *bufio.Scanner

	mu sync.Mutex
}

// NewLineTransport wraps the server side of a connection.
func NewLineTransport(conn io.ReadWriter) *LineTransport {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), MaxFrameSize)
	scanner.Split(scanCRLF)
	return &LineTransport{conn: conn, scanner: scanner}
}

// Receive reads the next non-blank frame. Cancelling ctx unblocks the read
// when the connection supports read deadlines.
func (t *LineTransport) Receive(ctx context.Context) (rpc.ClientFrame, error) {
	if err := ctx.Err(); err != nil {
		return rpc.ClientFrame{}, err
	}
	if d, ok := t.conn.(deadliner); ok {
		stop := context.AfterFunc(ctx, func() { _ = d.SetReadDeadline(time.Now()) })
		defer stop()
	}

	for t.scanner.Scan() {
		line := bytes.TrimSpace(t.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var frame rpc.ClientFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			_ = t.Send(ctx, rpc.ServerFrame{Error: &rpc.ErrorFrame{
				Name:      rpc.ErrRequest,
				Message:   "Bad Request Format: " + err.Error(),
				Operation: "Deserialize Request",
			}})
			return rpc.ClientFrame{}, &DecodeError{Err: err}
		}
		return frame, nil
	}
	if err := t.scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return rpc.ClientFrame{}, ctx.Err()
		}
		return rpc.ClientFrame{}, err
	}
	return rpc.ClientFrame{}, io.EOF
}

// Send writes one frame followed by CRLF.
func (t *LineTransport) Send(ctx context.Context, frame rpc.ServerFrame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err = t.conn.Write(append(data, crlf...))
	return err
}

// scanCRLF splits on "\r\n" only.
func scanCRLF(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.Index(data, crlf); i >= 0 {
		return i + len(crlf), data[:i], nil
	}
	if atEOF {
		if len(bytes.TrimSpace(data)) == 0 {
			return len(data), nil, nil
		}
		return 0, nil, errors.New("connection closed inside a frame")
	}
	return 0, nil, nil
}
