// Package connection owns the single live transport connection of a session:
// connect, close, send, and lifecycle notification over an events.Bus.
package connection

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/omochice/dialog-session/internal/events"
	"github.com/omochice/dialog-session/internal/logging"
	"github.com/omochice/dialog-session/internal/transport"
	"github.com/omochice/dialog-session/pkg/protocol"
)

const (
	// DefaultDialTimeout bounds a connection attempt.
	DefaultDialTimeout = 10 * time.Second
	// sendBuffer is the per-connection outbound frame buffer.
	sendBuffer = 64
	// writeTimeout bounds a single frame write.
	writeTimeout = 10 * time.Second
)

// State is the connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// TransportError reports a dial, read or write failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Executor runs event deliveries. Session loops supply one that marshals
// onto their serial queue.
type Executor func(func())

// Options configures a Manager.
type Options struct {
	// URL is the backend WebSocket endpoint; tokens are added as the "token"
	// and "push_token" query parameters.
	URL         string
	Dialer      transport.Dialer
	Bus         *events.Bus
	DialTimeout time.Duration
	// Executor defaults to running deliveries inline.
	Executor Executor
	Logger   logging.Logger
}

// instance is one connection attempt and, if it succeeds, its live socket.
type instance struct {
	id        uint64
	auth      string
	push      string
	cancel    context.CancelFunc
	conn      transport.Conn
	out       chan []byte
	connected bool
	// live is cleared once the instance is torn down; message deliveries
	// check it at execution time.
	mu   sync.Mutex
	live bool
}

func (i *instance) alive() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.live
}

func (i *instance) kill() {
	i.mu.Lock()
	i.live = false
	i.mu.Unlock()
}

// Manager owns exactly one transport at a time. It never retries on its
// own: callers drive reconnection by invoking Connect again.
type Manager struct {
	url         string
	dialer      transport.Dialer
	bus         *events.Bus
	dialTimeout time.Duration
	exec        Executor
	log         logging.Logger

	mu    sync.Mutex
	state State
	cur   *instance
	seq   uint64
}

// New creates a Manager in the Disconnected state.
func New(opts Options) *Manager {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.Executor == nil {
		opts.Executor = func(fn func()) { fn() }
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	return &Manager{
		url:         opts.URL,
		dialer:      opts.Dialer,
		bus:         opts.Bus,
		dialTimeout: opts.DialTimeout,
		exec:        opts.Executor,
		log:         logging.OrNoop(opts.Logger),
	}
}

// Bus returns the bus lifecycle events are emitted on.
func (m *Manager) Bus() *events.Bus { return m.bus }

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ID returns the current connection instance id, or 0 when there is none.
func (m *Manager) ID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return 0
	}
	return m.cur.id
}

// Connect opens a connection authenticated with the given tokens. It is a
// no-op while connecting or connected with identical tokens; otherwise any
// existing connection is torn down first. Completion is reported on the bus.
func (m *Manager) Connect(authToken, pushToken string) {
	m.mu.Lock()
	if cur := m.cur; cur != nil && cur.auth == authToken && cur.push == pushToken &&
		(m.state == Connecting || m.state == Connected) {
		m.mu.Unlock()
		return
	}
	old := m.detachLocked()

	m.seq++
	ctx, cancel := context.WithTimeout(context.Background(), m.dialTimeout)
	inst := &instance{
		id:     m.seq,
		auth:   authToken,
		push:   pushToken,
		cancel: cancel,
		live:   true,
	}
	m.cur = inst
	m.state = Connecting
	m.mu.Unlock()

	// The old instance's closed event is posted before the new dial starts,
	// so it always precedes the new instance's events.
	m.teardown(old)

	m.log.Debug("connecting", "conn", inst.id, "push_token", logging.Redact(pushToken))
	go m.dial(ctx, inst)
}

// Close tears down the current connection. It is a no-op when disconnected.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.cur == nil {
		m.mu.Unlock()
		return
	}
	m.state = Closing
	old := m.detachLocked()
	m.mu.Unlock()

	m.teardown(old)

	m.mu.Lock()
	if m.cur == nil {
		m.state = Disconnected
	}
	m.mu.Unlock()
}

// Send encodes msg and queues it for the live connection. It reports false
// when the payload was dropped: not connected, encode failure, or a full
// outbound buffer. Nothing is queued across reconnects.
func (m *Manager) Send(msg protocol.Message) bool {
	data, err := msg.Encode()
	if err != nil {
		m.log.Error("failed to encode outbound message", "type", msg.Type, "error", err)
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Connected || m.cur == nil {
		m.log.Debug("dropped outbound message", "type", msg.Type, "state", m.state)
		return false
	}
	select {
	case m.cur.out <- data:
		return true
	default:
		m.log.Warn("outbound buffer full, dropped message", "type", msg.Type, "conn", m.cur.id)
		return false
	}
}

// detachLocked unlinks the current instance so no further message events
// from it are delivered. Caller holds m.mu and sets the next state.
func (m *Manager) detachLocked() *instance {
	old := m.cur
	if old == nil {
		return nil
	}
	m.cur = nil
	old.kill()
	if old.out != nil {
		close(old.out)
	}
	return old
}

// teardown releases an instance detached by detachLocked.
func (m *Manager) teardown(inst *instance) {
	if inst == nil {
		return
	}
	inst.cancel()
	if inst.conn != nil {
		if err := inst.conn.Close(); err != nil {
			m.log.Debug("close failed", "conn", inst.id, "error", err)
		}
	}
	if inst.connected {
		m.log.Info("connection closed", "conn", inst.id)
		m.emit(events.Event{Kind: events.Closed, Conn: inst.id})
	}
}

func (m *Manager) dial(ctx context.Context, inst *instance) {
	target, err := m.endpoint(inst.auth, inst.push)
	var conn transport.Conn
	if err == nil {
		conn, err = m.dialer.Dial(ctx, target)
	}

	m.mu.Lock()
	if m.cur != inst {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		m.cur = nil
		m.state = Disconnected
		inst.kill()
		m.mu.Unlock()
		inst.cancel()
		m.log.Warn("connect failed", "conn", inst.id, "error", err)
		m.emit(events.Event{Kind: events.Error, Conn: inst.id, Err: &TransportError{Op: "dial", Err: err}})
		return
	}
	inst.conn = conn
	inst.connected = true
	inst.out = make(chan []byte, sendBuffer)
	m.state = Connected
	m.mu.Unlock()

	m.log.Info("connected", "conn", inst.id, "remote", conn.RemoteAddr())
	m.emit(events.Event{Kind: events.Connected, Conn: inst.id})

	go m.writeLoop(inst, inst.out)
	go m.readLoop(inst)
}

func (m *Manager) endpoint(authToken, pushToken string) (string, error) {
	u, err := url.Parse(m.url)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	q := u.Query()
	q.Set("token", authToken)
	q.Set("push_token", pushToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// readLoop continuously receives frames until the connection ends.
func (m *Manager) readLoop(inst *instance) {
	for {
		data, err := inst.conn.Read(context.Background())
		if err != nil {
			m.drop(inst, err)
			return
		}
		m.exec(func() {
			if inst.alive() {
				m.bus.Emit(events.Event{Kind: events.Message, Conn: inst.id, Data: data})
			}
		})
	}
}

// writeLoop drains the outbound buffer; the buffer is closed on teardown.
func (m *Manager) writeLoop(inst *instance, out <-chan []byte) {
	for data := range out {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := inst.conn.Write(ctx, data)
		cancel()
		if err != nil {
			m.log.Warn("failed to write frame", "conn", inst.id, "error", err)
			// Closing the socket fails the pending read, which reports the drop.
			_ = inst.conn.Close()
			return
		}
	}
}

// drop handles the end of a connection the manager did not close itself.
func (m *Manager) drop(inst *instance, err error) {
	m.mu.Lock()
	if m.cur != inst {
		m.mu.Unlock()
		return
	}
	m.detachLocked()
	m.state = Disconnected
	m.mu.Unlock()

	inst.cancel()
	_ = inst.conn.Close()

	if errors.Is(err, transport.ErrClosed) {
		m.log.Info("connection closed by server", "conn", inst.id)
	} else {
		m.log.Warn("connection lost", "conn", inst.id, "error", err)
		m.emit(events.Event{Kind: events.Error, Conn: inst.id, Err: &TransportError{Op: "read", Err: err}})
	}
	m.emit(events.Event{Kind: events.Closed, Conn: inst.id})
}

func (m *Manager) emit(ev events.Event) {
	m.exec(func() { m.bus.Emit(ev) })
}
