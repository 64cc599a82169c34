// Package dialogs keeps the locally held dialog list consistent with page
// loads, pushed messages and confirmed deletions, and drives pagination and
// batch selection against the connection.
package dialogs

import (
	"slices"

	"github.com/omochice/dialog-session/pkg/protocol"
)

// Summary is one conversation summary.
type Summary struct {
	UID         string
	Name        string
	LastMessage string
	IsOwn       bool
	IsRead      bool
}

// FromWire converts a wire dialog.
func FromWire(d protocol.Dialog) Summary {
	return Summary{UID: d.UID, Name: d.Name, LastMessage: d.Message, IsOwn: d.IsOwn, IsRead: d.IsRead}
}

// Store is the ordered dialog list, most recently active first.
// It is not safe for concurrent use; sessions mutate it from one loop.
type Store struct {
	items     []Summary
	observers []func()
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// OnChange registers fn to run after every mutation.
func (s *Store) OnChange(fn func()) {
	s.observers = append(s.observers, fn)
}

func (s *Store) changed() {
	for _, fn := range s.observers {
		fn()
	}
}

// Len returns the number of summaries.
func (s *Store) Len() int { return len(s.items) }

// Items returns a copy of the list in order.
func (s *Store) Items() []Summary {
	return slices.Clone(s.items)
}

// Get returns the first summary with uid.
func (s *Store) Get(uid string) (Summary, bool) {
	i := s.Index(uid)
	if i < 0 {
		return Summary{}, false
	}
	return s.items[i], true
}

// Index returns the position of the first summary with uid, or -1.
func (s *Store) Index(uid string) int {
	return slices.IndexFunc(s.items, func(d Summary) bool { return d.UID == uid })
}

// Contains reports whether uid is present.
func (s *Store) Contains(uid string) bool { return s.Index(uid) >= 0 }

// ApplyPage merges a page response. Offset 0 replaces the list; any other
// offset appends after the existing entries. Pages are not deduplicated
// against each other: the server owns offset correctness.
func (s *Store) ApplyPage(offset int, page []Summary) {
	if offset == 0 {
		s.items = slices.Clone(page)
	} else {
		s.items = append(s.items, page...)
	}
	s.changed()
}

// ApplyMessage moves the conversation uid to the front, overwriting its
// name and last message and marking it unread and not own. Unknown uids are
// synthesized at the front. Any duplicate entries for uid collapse into one.
func (s *Store) ApplyMessage(uid, name, text string) {
	merged, _ := s.Get(uid)
	merged.UID = uid
	merged.Name = name
	merged.LastMessage = text
	merged.IsOwn = false
	merged.IsRead = false

	next := make([]Summary, 0, len(s.items)+1)
	next = append(next, merged)
	for _, d := range s.items {
		if d.UID != uid {
			next = append(next, d)
		}
	}
	s.items = next
	s.changed()
}

// Remove deletes every summary whose uid is in uids and returns how many
// entries were removed.
func (s *Store) Remove(uids []string) int {
	drop := make(map[string]struct{}, len(uids))
	for _, uid := range uids {
		drop[uid] = struct{}{}
	}
	before := len(s.items)
	s.items = slices.DeleteFunc(s.items, func(d Summary) bool {
		_, ok := drop[d.UID]
		return ok
	})
	removed := before - len(s.items)
	s.changed()
	return removed
}

// MarkRead flags uid as read.
func (s *Store) MarkRead(uid string) bool {
	changed := false
	for i := range s.items {
		if s.items[i].UID == uid && !s.items[i].IsRead {
			s.items[i].IsRead = true
			changed = true
		}
	}
	if changed {
		s.changed()
	}
	return changed
}

// Clear empties the list.
func (s *Store) Clear() {
	s.items = nil
	s.changed()
}
