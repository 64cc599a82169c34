package connection_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/dialog-session/internal/connection"
	"github.com/omochice/dialog-session/internal/events"
	"github.com/omochice/dialog-session/internal/transport"
	"github.com/omochice/dialog-session/pkg/protocol"
)

const waitFor = time.Second

// fakeConn is an in-memory transport.Conn.
type fakeConn struct {
	readCh    chan []byte
	readErr   chan error
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written [][]byte
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		readCh:  make(chan []byte, 10),
		readErr: make(chan error, 1),
		done:    make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.readCh:
		return data, nil
	case err := <-c.readErr:
		return nil, err
	case <-c.done:
		return nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) Write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("write on closed connection")
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

func (c *fakeConn) RemoteAddr() string { return "fake:1" }

func (c *fakeConn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

var _ transport.Conn = (*fakeConn)(nil)

// fakeDialer hands out queued conns and records dialed URLs.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
	urls  []string
}

func (d *fakeDialer) Dial(ctx context.Context, target string) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, target)
	if d.err != nil {
		return nil, d.err
	}
	if len(d.conns) == 0 {
		return nil, errors.New("no conn queued")
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

func (d *fakeDialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// recorder captures bus events in delivery order.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func record(bus *events.Bus) *recorder {
	r := &recorder{}
	for _, kind := range []events.Kind{events.Connected, events.Message, events.Error, events.Closed} {
		bus.Subscribe(kind, func(ev events.Event) {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		})
	}
	return r
}

func (r *recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *recorder) Kinds() []events.Kind {
	var kinds []events.Kind
	for _, ev := range r.Events() {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func newManager(d *fakeDialer) (*connection.Manager, *recorder) {
	bus := events.NewBus()
	rec := record(bus)
	m := connection.New(connection.Options{
		URL:    "ws://backend.test/ws",
		Dialer: d,
		Bus:    bus,
	})
	return m, rec
}

func waitState(t *testing.T, m *connection.Manager, want connection.State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want }, waitFor, time.Millisecond,
		"state never became %s", want)
}

func TestManager_ConnectEmitsConnected(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{conns: []*fakeConn{conn}}
	m, rec := newManager(d)

	assert.Equal(t, connection.Disconnected, m.State())
	m.Connect("auth-1", "push-1")

	waitState(t, m, connection.Connected)
	require.Eventually(t, func() bool { return len(rec.Events()) == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, []events.Kind{events.Connected}, rec.Kinds())

	u, err := url.Parse(d.URLs()[0])
	require.NoError(t, err)
	assert.Equal(t, "auth-1", u.Query().Get("token"))
	assert.Equal(t, "push-1", u.Query().Get("push_token"))
	assert.Equal(t, "/ws", u.Path)
}

func TestManager_ConnectIdempotentWithSameTokens(t *testing.T) {
	d := &fakeDialer{conns: []*fakeConn{newFakeConn(), newFakeConn()}}
	m, _ := newManager(d)

	m.Connect("auth", "push")
	waitState(t, m, connection.Connected)
	id := m.ID()
	m.Connect("auth", "push")

	assert.Len(t, d.URLs(), 1)
	assert.Equal(t, id, m.ID())
}

func TestManager_ReconnectClosesPreviousFirst(t *testing.T) {
	first, second := newFakeConn(), newFakeConn()
	d := &fakeDialer{conns: []*fakeConn{first, second}}
	m, rec := newManager(d)

	m.Connect("auth", "push-1")
	waitState(t, m, connection.Connected)
	firstID := m.ID()

	m.Connect("auth", "push-2")
	assert.True(t, first.IsClosed())
	waitState(t, m, connection.Connected)
	secondID := m.ID()

	second.readCh <- []byte(`{"type":"success","id":"x"}`)
	require.Eventually(t, func() bool { return len(rec.Events()) == 4 }, waitFor, time.Millisecond)

	evs := rec.Events()
	assert.Equal(t, []events.Kind{events.Connected, events.Closed, events.Connected, events.Message}, rec.Kinds())
	assert.Equal(t, firstID, evs[0].Conn)
	assert.Equal(t, firstID, evs[1].Conn)
	assert.Equal(t, secondID, evs[2].Conn)
	assert.Equal(t, secondID, evs[3].Conn)
}

func TestManager_NoMessagesAfterClose(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{conns: []*fakeConn{conn}}
	m, rec := newManager(d)

	m.Connect("auth", "push")
	waitState(t, m, connection.Connected)
	m.Close()

	assert.Equal(t, connection.Disconnected, m.State())
	conn.readCh <- []byte(`{"type":"message","uid":"1"}`)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, []events.Kind{events.Connected, events.Closed}, rec.Kinds())
}

func TestManager_CloseWhenDisconnectedIsNoop(t *testing.T) {
	m, rec := newManager(&fakeDialer{})

	assert.NotPanics(t, m.Close)
	assert.NotPanics(t, m.Close)
	assert.Empty(t, rec.Events())
	assert.Equal(t, connection.Disconnected, m.State())
}

func TestManager_SendWhenDisconnectedIsDropped(t *testing.T) {
	m, _ := newManager(&fakeDialer{})

	assert.False(t, m.Send(protocol.DialogsRequest(0)))
}

func TestManager_SendWritesFrame(t *testing.T) {
	conn := newFakeConn()
	m, _ := newManager(&fakeDialer{conns: []*fakeConn{conn}})

	m.Connect("auth", "push")
	waitState(t, m, connection.Connected)

	require.True(t, m.Send(protocol.DialogsRequest(30)))
	require.Eventually(t, func() bool { return len(conn.Written()) == 1 }, waitFor, time.Millisecond)
	assert.JSONEq(t, `{"type":"dialogs","offset":30,"limit":30}`, string(conn.Written()[0]))
}

func TestManager_SendRejectsUnencodable(t *testing.T) {
	conn := newFakeConn()
	m, _ := newManager(&fakeDialer{conns: []*fakeConn{conn}})
	m.Connect("auth", "push")
	waitState(t, m, connection.Connected)

	assert.False(t, m.Send(protocol.Message{}))
}

func TestManager_DialFailure(t *testing.T) {
	d := &fakeDialer{err: errors.New("connection refused")}
	m, rec := newManager(d)

	m.Connect("auth", "push")

	require.Eventually(t, func() bool { return len(rec.Events()) == 1 }, waitFor, time.Millisecond)
	ev := rec.Events()[0]
	assert.Equal(t, events.Error, ev.Kind)
	var terr *connection.TransportError
	require.ErrorAs(t, ev.Err, &terr)
	assert.Equal(t, "dial", terr.Op)
	assert.Equal(t, connection.Disconnected, m.State())
}

func TestManager_ConnectionLost(t *testing.T) {
	conn := newFakeConn()
	m, rec := newManager(&fakeDialer{conns: []*fakeConn{conn}})
	m.Connect("auth", "push")
	waitState(t, m, connection.Connected)

	conn.readErr <- errors.New("connection reset by peer")

	require.Eventually(t, func() bool { return len(rec.Events()) == 3 }, waitFor, time.Millisecond)
	assert.Equal(t, []events.Kind{events.Connected, events.Error, events.Closed}, rec.Kinds())
	assert.Equal(t, connection.Disconnected, m.State())
	assert.True(t, conn.IsClosed())
	assert.False(t, m.Send(protocol.DialogsRequest(0)))
}

func TestManager_ServerClosedCleanly(t *testing.T) {
	conn := newFakeConn()
	m, rec := newManager(&fakeDialer{conns: []*fakeConn{conn}})
	m.Connect("auth", "push")
	waitState(t, m, connection.Connected)

	conn.readErr <- transport.ErrClosed

	require.Eventually(t, func() bool { return len(rec.Events()) == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, []events.Kind{events.Connected, events.Closed}, rec.Kinds())
}

func TestManager_MessagesFollowConnected(t *testing.T) {
	conn := newFakeConn()
	conn.readCh <- []byte(`{"type":"dialogs","info":[]}`)
	m, rec := newManager(&fakeDialer{conns: []*fakeConn{conn}})

	m.Connect("auth", "push")

	require.Eventually(t, func() bool { return len(rec.Events()) == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, []events.Kind{events.Connected, events.Message}, rec.Kinds())
	assert.Equal(t, `{"type":"dialogs","info":[]}`, string(rec.Events()[1].Data))
}

func TestManager_CloseWhileConnecting(t *testing.T) {
	release := make(chan struct{})
	conn := newFakeConn()
	bus := events.NewBus()
	rec := record(bus)
	m := connection.New(connection.Options{
		URL: "ws://backend.test/ws",
		Dialer: transport.DialerFunc(func(ctx context.Context, _ string) (transport.Conn, error) {
			<-release
			return conn, nil
		}),
		Bus: bus,
	})

	m.Connect("auth", "push")
	assert.Equal(t, connection.Connecting, m.State())
	m.Close()
	close(release)

	require.Eventually(t, conn.IsClosed, waitFor, time.Millisecond, "late dial result must be discarded")
	assert.Equal(t, connection.Disconnected, m.State())
	assert.Empty(t, rec.Events())
}

func TestManager_ExecutorReceivesDeliveries(t *testing.T) {
	var mu sync.Mutex
	var queued []func()
	conn := newFakeConn()
	bus := events.NewBus()
	rec := record(bus)
	m := connection.New(connection.Options{
		URL:    "ws://backend.test/ws",
		Dialer: &fakeDialer{conns: []*fakeConn{conn}},
		Bus:    bus,
		Executor: func(fn func()) {
			mu.Lock()
			queued = append(queued, fn)
			mu.Unlock()
		},
	})

	m.Connect("auth", "push")
	waitState(t, m, connection.Connected)
	conn.readCh <- []byte(`{"type":"success","id":"1"}`)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(queued) == 2
	}, waitFor, time.Millisecond)
	assert.Empty(t, rec.Events(), "nothing is delivered until the executor runs")

	// A teardown before the queued message runs suppresses it.
	m.Close()
	mu.Lock()
	pending := append([]func(){}, queued...)
	mu.Unlock()
	for _, fn := range pending {
		fn()
	}
	mu.Lock()
	for _, fn := range queued[len(pending):] {
		fn()
	}
	mu.Unlock()

	assert.Equal(t, []events.Kind{events.Connected, events.Closed}, rec.Kinds())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", connection.Disconnected.String())
	assert.Equal(t, "connecting", connection.Connecting.String())
	assert.Equal(t, "connected", connection.Connected.String())
	assert.Equal(t, "closing", connection.Closing.String())
}
