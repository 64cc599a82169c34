package ws

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gobwas/ws"

	"github.com/omochice/dialog-session/internal/transport"
)

// Dialer opens client WebSocket connections.
type Dialer struct {
	// Timeout bounds the TCP connect and handshake; zero means no limit
	// beyond the context.
	Timeout time.Duration
	// Header is sent with the upgrade request.
	Header http.Header
}

var _ transport.Dialer = Dialer{}

// Dial implements transport.Dialer.
func (d Dialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	dialer := ws.Dialer{Timeout: d.Timeout}
	if d.Header != nil {
		dialer.Header = ws.HandshakeHeaderHTTP(d.Header)
	}

	conn, br, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return NewClientConn(conn, br), nil
}

// Upgrade upgrades an HTTP request to a server-side WebSocket Conn.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	conn, rw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}
	return NewServerConn(conn, rw.Reader, r.RemoteAddr), nil
}
