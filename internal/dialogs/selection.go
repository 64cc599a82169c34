package dialogs

import (
	"slices"

	"github.com/omochice/dialog-session/pkg/protocol"
)

// Mode is the interaction mode of the dialog list.
type Mode int

const (
	ModeDefault Mode = iota
	ModeSelect
)

func (m Mode) String() string {
	switch m {
	case ModeDefault:
		return "default"
	case ModeSelect:
		return "select"
	default:
		return "unknown"
	}
}

// Selection tracks the uids marked for a batch delete and correlates
// delete commands with their confirmations.
type Selection struct {
	store *Store
	send  Sender

	set        map[string]struct{}
	mode       Mode
	processing bool
	// pending maps a delete command id to the uids it was issued for.
	pending   map[string][]string
	observers []func()
}

// NewSelection creates an empty Selection in default mode.
func NewSelection(store *Store, send Sender) *Selection {
	return &Selection{
		store:   store,
		send:    send,
		set:     make(map[string]struct{}),
		pending: make(map[string][]string),
	}
}

// OnChange registers fn to run whenever the set, mode or processing flag
// changes.
func (s *Selection) OnChange(fn func()) {
	s.observers = append(s.observers, fn)
}

func (s *Selection) changed() {
	for _, fn := range s.observers {
		fn()
	}
}

// Mode returns the interaction mode.
func (s *Selection) Mode() Mode { return s.mode }

// Processing reports whether a delete command awaits confirmation.
func (s *Selection) Processing() bool { return s.processing }

// Len returns the number of selected uids.
func (s *Selection) Len() int { return len(s.set) }

// Has reports whether uid is selected.
func (s *Selection) Has(uid string) bool {
	_, ok := s.set[uid]
	return ok
}

// UIDs returns the selected uids in sorted order.
func (s *Selection) UIDs() []string {
	out := make([]string, 0, len(s.set))
	for uid := range s.set {
		out = append(out, uid)
	}
	slices.Sort(out)
	return out
}

// Toggle adds or removes uid. Selecting a uid that is not in the store is
// rejected. The first selection enters select mode and removing the last
// returns to default mode.
func (s *Selection) Toggle(uid string, selected bool) bool {
	if selected {
		if s.Has(uid) {
			return true
		}
		if !s.store.Contains(uid) {
			return false
		}
		s.set[uid] = struct{}{}
	} else {
		if !s.Has(uid) {
			return true
		}
		delete(s.set, uid)
	}
	s.syncMode()
	s.changed()
	return true
}

// DeleteSelected sends one batch delete for the whole selection. It is a
// no-op when nothing is selected or a delete is already awaiting
// confirmation.
func (s *Selection) DeleteSelected() bool {
	if len(s.set) == 0 || s.processing {
		return false
	}
	cmd := protocol.DeleteRequest(s.UIDs())
	if !s.send.Send(cmd) {
		return false
	}
	s.pending[cmd.ID] = cmd.UIDs
	s.processing = true
	s.changed()
	return true
}

// HandleSuccess applies a delete confirmation: the dialogs named by the
// command are removed, the selection is cleared and the mode returns to
// default. It reports false for ids that are not delete confirmations.
func (s *Selection) HandleSuccess(id string) bool {
	uids, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	} else if uids, ok = protocol.ParseDeleteID(id); !ok {
		return false
	}
	s.store.Remove(uids)
	clear(s.set)
	s.mode = ModeDefault
	s.processing = false
	s.changed()
	return true
}

// Settle clears the processing flag after a response that does not confirm
// a delete. Pending commands stay known so a later confirmation still
// removes the dialogs it names.
func (s *Selection) Settle() {
	if !s.processing {
		return
	}
	s.processing = false
	s.changed()
}

// Fail abandons every pending delete after a connection level failure.
// The selection itself is kept so the user can retry.
func (s *Selection) Fail() {
	clear(s.pending)
	if !s.processing {
		return
	}
	s.processing = false
	s.changed()
}

// Exit leaves select mode, dropping the selection.
func (s *Selection) Exit() {
	if s.mode == ModeDefault && len(s.set) == 0 && !s.processing {
		return
	}
	clear(s.set)
	clear(s.pending)
	s.mode = ModeDefault
	s.processing = false
	s.changed()
}

// Prune drops selected uids that are no longer in the store.
func (s *Selection) Prune() {
	pruned := false
	for uid := range s.set {
		if !s.store.Contains(uid) {
			delete(s.set, uid)
			pruned = true
		}
	}
	if !pruned {
		return
	}
	s.syncMode()
	s.changed()
}

func (s *Selection) syncMode() {
	if len(s.set) == 0 {
		s.mode = ModeDefault
	} else {
		s.mode = ModeSelect
	}
}
