// Package token supplies the authentication and push-delivery tokens a
// session connects with, and notifies when either rotates.
package token

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ErrUnavailable reports that a token could not be fetched. Callers treat it
// as "no token yet".
var ErrUnavailable = errors.New("token unavailable")

// Kind identifies which token changed.
type Kind int

const (
	Auth Kind = iota
	Push
)

func (k Kind) String() string {
	if k == Push {
		return "push"
	}
	return "auth"
}

// Change describes a token rotation.
type Change struct {
	Kind  Kind
	Token string
}

// Source supplies the current tokens.
type Source interface {
	// AuthToken returns the current authentication token.
	AuthToken() string
	// PushToken fetches the current push-delivery token. It may fail with
	// ErrUnavailable.
	PushToken(ctx context.Context) (string, error)
	// OnChange registers fn for token rotations and returns its disposer.
	OnChange(fn func(Change)) (cancel func())
}

// PushTokenOrEmpty fetches the push token, mapping any failure to "".
func PushTokenOrEmpty(ctx context.Context, src Source) string {
	tok, err := src.PushToken(ctx)
	if err != nil {
		return ""
	}
	return tok
}

// Memory is an in-process Source whose tokens are set explicitly.
type Memory struct {
	mu        sync.Mutex
	auth      string
	push      string
	listeners map[int]func(Change)
	nextID    int
}

var _ Source = (*Memory)(nil)

// NewMemory creates a Memory source with initial tokens.
func NewMemory(auth, push string) *Memory {
	return &Memory{auth: auth, push: push, listeners: make(map[int]func(Change))}
}

// AuthToken implements Source.
func (m *Memory) AuthToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.auth
}

// PushToken implements Source; an empty push token is ErrUnavailable.
func (m *Memory) PushToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.push == "" {
		return "", ErrUnavailable
	}
	return m.push, nil
}

// OnChange implements Source.
func (m *Memory) OnChange(fn func(Change)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// SetAuth rotates the authentication token.
func (m *Memory) SetAuth(tok string) { m.set(Auth, tok) }

// SetPush rotates the push-delivery token.
func (m *Memory) SetPush(tok string) { m.set(Push, tok) }

func (m *Memory) set(kind Kind, tok string) {
	m.mu.Lock()
	cur := &m.auth
	if kind == Push {
		cur = &m.push
	}
	if *cur == tok {
		m.mu.Unlock()
		return
	}
	*cur = tok
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	fns := make([]func(Change), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, m.listeners[id])
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(Change{Kind: kind, Token: tok})
	}
}
