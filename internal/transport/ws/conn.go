// Package ws provides the WebSocket transport built on gobwas/ws.
package ws

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/dialog-session/internal/transport"
)

// closeTimeout bounds the best-effort close frame write.
const closeTimeout = time.Second

// lockedWriter serializes writes so control frame replies issued while
// reading never interleave with data frames.
type lockedWriter struct {
	mu   sync.Mutex
	conn net.Conn
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.Write(p)
}

type readWriter struct {
	io.Reader
	io.Writer
}

// Conn adapts a WebSocket net.Conn to transport.Conn using text frames.
type Conn struct {
	conn       net.Conn
	rw         readWriter
	state      ws.State
	remoteAddr string
	closeOnce  sync.Once
	closeErr   error
}

var _ transport.Conn = (*Conn)(nil)

// NewClientConn wraps a dialed connection. br holds bytes the handshake
// already buffered and may be nil.
func NewClientConn(conn net.Conn, br *bufio.Reader) *Conn {
	return newConn(conn, br, ws.StateClientSide, conn.RemoteAddr().String())
}

// NewServerConn wraps an upgraded connection with the specified remote address.
func NewServerConn(conn net.Conn, br *bufio.Reader, addr string) *Conn {
	return newConn(conn, br, ws.StateServerSide, addr)
}

func newConn(conn net.Conn, br *bufio.Reader, state ws.State, addr string) *Conn {
	var r io.Reader = conn
	if br != nil {
		r = br
	}
	return &Conn{
		conn:       conn,
		rw:         readWriter{Reader: r, Writer: &lockedWriter{conn: conn}},
		state:      state,
		remoteAddr: addr,
	}
}

// Read implements transport.Conn.
// Reads the next text or binary frame; control frames are answered inline.
// The context only contributes its deadline, Close unblocks a pending Read.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
		defer c.conn.SetReadDeadline(time.Time{})
	}

	var (
		data []byte
		err  error
	)
	if c.state.ClientSide() {
		data, _, err = wsutil.ReadServerData(c.rw)
	} else {
		data, _, err = wsutil.ReadClientData(c.rw)
	}
	if err != nil {
		var closed wsutil.ClosedError
		if errors.As(err, &closed) {
			return nil, fmt.Errorf("%w: %d %s", transport.ErrClosed, closed.Code, closed.Reason)
		}
		return nil, err
	}
	return data, nil
}

// Write implements transport.Conn.
// Writes a text frame to the WebSocket connection.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}

	return c.writeFrame(ws.OpText, data)
}

// writeFrame encodes a whole frame before handing it to the socket in a
// single write. Client payloads are masked in place, so a copy is encoded.
func (c *Conn) writeFrame(op ws.OpCode, data []byte) error {
	payload := append([]byte(nil), data...)
	var frame bytes.Buffer
	var err error
	if c.state.ClientSide() {
		err = wsutil.WriteClientMessage(&frame, op, payload)
	} else {
		err = wsutil.WriteServerMessage(&frame, op, payload)
	}
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	_, err = c.rw.Write(frame.Bytes())
	return err
}

// Close implements transport.Conn.
// Sends a normal closure frame on a best-effort basis, then closes the socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = c.conn.SetWriteDeadline(time.Now().Add(closeTimeout))
		_ = c.writeFrame(ws.OpClose, body)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}
