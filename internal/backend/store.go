package backend

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/omochice/dialog-session/pkg/protocol"
)

// ErrInvalidUID indicates an empty dialog uid.
var ErrInvalidUID = errors.New("invalid dialog uid")

// Store holds dialogs ordered most recently active first.
type Store interface {
	// Page returns up to limit dialogs starting at offset.
	Page(ctx context.Context, offset, limit int) ([]protocol.Dialog, error)
	// Upsert inserts or replaces d and makes it the most recent dialog.
	Upsert(ctx context.Context, d protocol.Dialog) error
	// Delete removes the dialogs with the given uids and returns how many
	// existed.
	Delete(ctx context.Context, uids []string) (int, error)
	Close() error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	dialogs []protocol.Dialog
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Page implements Store.
func (s *MemoryStore) Page(ctx context.Context, offset, limit int) ([]protocol.Dialog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if offset < 0 || offset >= len(s.dialogs) {
		return []protocol.Dialog{}, nil
	}
	end := min(offset+limit, len(s.dialogs))
	return slices.Clone(s.dialogs[offset:end]), nil
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(ctx context.Context, d protocol.Dialog) error {
	if d.UID == "" {
		return ErrInvalidUID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialogs = slices.DeleteFunc(s.dialogs, func(cur protocol.Dialog) bool { return cur.UID == d.UID })
	s.dialogs = slices.Insert(s.dialogs, 0, d)
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, uids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.dialogs)
	s.dialogs = slices.DeleteFunc(s.dialogs, func(d protocol.Dialog) bool {
		return slices.Contains(uids, d.UID)
	})
	return before - len(s.dialogs), nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
