// Package session ties a token source, a connection manager and the dialog
// controller together on one serial execution loop.
//
// Every bus event, dialog mutation and user command runs on the goroutine
// executing Run. Listeners subscribed through Bus are called there too and
// must not block.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/omochice/dialog-session/internal/connection"
	"github.com/omochice/dialog-session/internal/dialogs"
	"github.com/omochice/dialog-session/internal/events"
	"github.com/omochice/dialog-session/internal/logging"
	"github.com/omochice/dialog-session/internal/token"
	"github.com/omochice/dialog-session/internal/transport"
)

// Options configures a Session.
type Options struct {
	URL         string
	Tokens      token.Source
	Dialer      transport.Dialer
	DialTimeout time.Duration
	Reconnect   ReconnectPolicy
	// Initial returns the notification the application was launched from,
	// if any. It is consulted on login.
	Initial func(ctx context.Context) (Notification, bool)
	Logger  logging.Logger
}

// Session is one authenticated connection plus its dialog state.
type Session struct {
	id      string
	bus     *events.Bus
	loop    *loop
	conn    *connection.Manager
	ctrl    *dialogs.Controller
	tokens  token.Source
	initial func(ctx context.Context) (Notification, bool)
	timeout time.Duration
	log     logging.Logger

	// Loop owned state.
	loggedIn       bool
	initialHandled bool
	cancelTokens   func()
	auth, push     string
	live           uint64
	recon          *reconnector
	retry          *time.Timer
}

// New creates a logged out Session. Nothing happens until Run is started
// and Login is called.
func New(opts Options) *Session {
	id := uuid.NewString()
	log := logging.OrNoop(opts.Logger).With("session_id", id)
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = connection.DefaultDialTimeout
	}
	if opts.Reconnect.MaxDelay < opts.Reconnect.BaseDelay {
		opts.Reconnect.MaxDelay = opts.Reconnect.BaseDelay
	}

	s := &Session{
		id:      id,
		bus:     events.NewBus(),
		loop:    newLoop(),
		tokens:  opts.Tokens,
		initial: opts.Initial,
		timeout: opts.DialTimeout,
		log:     log,
		recon:   newReconnector(opts.Reconnect),
	}
	s.conn = connection.New(connection.Options{
		URL:         opts.URL,
		Dialer:      opts.Dialer,
		Bus:         s.bus,
		DialTimeout: opts.DialTimeout,
		Executor:    s.loop.post,
		Logger:      log,
	})
	s.ctrl = dialogs.NewController(s.bus, s.conn, log)

	s.bus.Subscribe(events.Connected, s.onConnected)
	s.bus.Subscribe(events.Error, s.onError)
	s.bus.Subscribe(events.Closed, s.onClosed)
	return s
}

// ID returns the session id used in log records.
func (s *Session) ID() string { return s.id }

// Bus returns the session's event bus.
func (s *Session) Bus() *events.Bus { return s.bus }

// State returns the connection state.
func (s *Session) State() connection.State { return s.conn.State() }

// Run executes the session loop until ctx is done, then closes the
// connection.
func (s *Session) Run(ctx context.Context) error {
	s.log.Debug("session loop started")
	err := s.loop.run(ctx)
	s.shutdown()
	s.log.Debug("session loop stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Do runs fn on the session loop with the dialog controller and waits for it.
// It returns ctx.Err() if ctx ends first; fn may still run later. After Run
// has returned it fails with ErrStopped.
func (s *Session) Do(ctx context.Context, fn func(c *dialogs.Controller)) error {
	return s.loop.do(ctx, func() { fn(s.ctrl) })
}

// Login starts following token changes, handles the launch notification
// and connects once a push token is available.
func (s *Session) Login(ctx context.Context) error {
	push := token.PushTokenOrEmpty(ctx, s.tokens)
	var (
		initial    Notification
		hasInitial bool
	)
	if s.initial != nil {
		initial, hasInitial = s.initial(ctx)
	}

	return s.loop.do(ctx, func() {
		s.loggedIn = true
		s.log.Info("logged in")
		if hasInitial && !s.initialHandled && initial.OpenedFromTray && initial.ID != "" {
			s.handleNotification(initial)
		}
		if s.cancelTokens == nil {
			s.cancelTokens = s.tokens.OnChange(s.tokenChanged)
		}
		if push == "" {
			s.log.Warn("push token unavailable, connection deferred")
			return
		}
		s.connect(s.tokens.AuthToken(), push)
	})
}

// Logout stops following token changes, closes the connection and drops
// all dialog state.
func (s *Session) Logout(ctx context.Context) error {
	return s.loop.do(ctx, func() {
		if s.cancelTokens != nil {
			s.cancelTokens()
			s.cancelTokens = nil
		}
		s.loggedIn = false
		s.initialHandled = false
		s.disconnect()
		s.ctrl.Reset()
		s.log.Info("logged out")
	})
}

// tokenChanged runs on the caller of the token source. The push token is
// fetched here so the loop never blocks on it.
func (s *Session) tokenChanged(c token.Change) {
	auth := s.tokens.AuthToken()
	push := c.Token
	if c.Kind == token.Auth {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		push = token.PushTokenOrEmpty(ctx, s.tokens)
		cancel()
	}
	s.loop.post(func() {
		if !s.loggedIn {
			return
		}
		s.log.Info("token rotated, reconnecting", "kind", c.Kind, "push_token", logging.Redact(push))
		s.disconnect()
		if push == "" {
			return
		}
		s.connect(auth, push)
	})
}

func (s *Session) connect(auth, push string) {
	s.auth, s.push = auth, push
	s.conn.Connect(auth, push)
}

// disconnect closes the connection without scheduling a retry.
func (s *Session) disconnect() {
	s.stopRetry()
	s.recon.reset()
	s.auth, s.push = "", ""
	s.live = 0
	s.conn.Close()
}

func (s *Session) shutdown() {
	s.stopRetry()
	if s.cancelTokens != nil {
		s.cancelTokens()
		s.cancelTokens = nil
	}
	s.live = 0
	s.conn.Close()
}

func (s *Session) onConnected(ev events.Event) {
	s.live = ev.Conn
	s.recon.reset()
}

func (s *Session) onError(ev events.Event) {
	var terr *connection.TransportError
	if !errors.As(ev.Err, &terr) || terr.Op != "dial" {
		return
	}
	if s.conn.State() != connection.Disconnected {
		return
	}
	s.scheduleRetry()
}

func (s *Session) onClosed(ev events.Event) {
	if ev.Conn != s.live {
		return
	}
	s.live = 0
	s.scheduleRetry()
}

// scheduleRetry re-dials with the last tokens after a backoff delay. The
// session is the retry driver; the manager never retries on its own.
func (s *Session) scheduleRetry() {
	if !s.loggedIn || s.push == "" || s.retry != nil {
		return
	}
	if !s.recon.shouldReconnect() {
		s.log.Warn("giving up reconnecting", "attempts", s.recon.attempt)
		return
	}
	delay := s.recon.nextDelay()
	s.log.Info("reconnecting", "attempt", s.recon.attempt, "delay", delay)

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.loop.post(func() {
			if s.retry != t {
				return
			}
			s.retry = nil
			if s.loggedIn && s.push != "" {
				s.conn.Connect(s.auth, s.push)
			}
		})
	})
	s.retry = t
}

func (s *Session) stopRetry() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
}
