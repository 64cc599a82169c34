package dialogs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/dialog-session/internal/dialogs"
	"github.com/omochice/dialog-session/pkg/protocol"
)

func newSelection(t *testing.T, ids ...string) (*dialogs.Store, *dialogs.Selection, *fakeSender) {
	t.Helper()
	store := dialogs.NewStore()
	page := make([]dialogs.Summary, 0, len(ids))
	for _, id := range ids {
		page = append(page, dialogs.Summary{UID: id})
	}
	store.ApplyPage(0, page)
	sender := &fakeSender{}
	sel := dialogs.NewSelection(store, sender)
	store.OnChange(sel.Prune)
	return store, sel, sender
}

func TestSelection_ToggleSwitchesMode(t *testing.T) {
	_, sel, _ := newSelection(t, "1", "2")
	var modes []dialogs.Mode
	sel.OnChange(func() { modes = append(modes, sel.Mode()) })

	require.True(t, sel.Toggle("1", true))
	require.True(t, sel.Toggle("2", true))
	require.True(t, sel.Toggle("1", false))
	require.True(t, sel.Toggle("2", false))

	assert.Equal(t, []dialogs.Mode{dialogs.ModeSelect, dialogs.ModeSelect, dialogs.ModeSelect, dialogs.ModeDefault}, modes)
	assert.Equal(t, 0, sel.Len())
}

func TestSelection_ToggleRejectsUnknownUID(t *testing.T) {
	_, sel, _ := newSelection(t, "1")

	assert.False(t, sel.Toggle("missing", true))
	assert.Equal(t, dialogs.ModeDefault, sel.Mode())
	assert.True(t, sel.Toggle("missing", false), "unselecting is always allowed")
}

func TestSelection_DeleteSelected(t *testing.T) {
	_, sel, sender := newSelection(t, "b", "a", "c")
	sel.Toggle("b", true)
	sel.Toggle("a", true)

	require.True(t, sel.DeleteSelected())

	assert.Equal(t, protocol.Message{
		Type: protocol.MessageTypeDelete,
		ID:   "DEL-a;b",
		UIDs: []string{"a", "b"},
	}, sender.last())
	assert.True(t, sel.Processing())
	assert.False(t, sel.DeleteSelected(), "already processing")
	assert.Len(t, sender.sent, 1)
}

func TestSelection_DeleteSelectedEmptyIsNoop(t *testing.T) {
	_, sel, sender := newSelection(t, "1")

	assert.False(t, sel.DeleteSelected())
	assert.Empty(t, sender.sent)
	assert.False(t, sel.Processing())
}

func TestSelection_DeleteSelectedDropped(t *testing.T) {
	_, sel, sender := newSelection(t, "1")
	sel.Toggle("1", true)
	sender.offline = true

	assert.False(t, sel.DeleteSelected())
	assert.False(t, sel.Processing())
	assert.Equal(t, 1, sel.Len())
}

func TestSelection_DeleteConfirmationScenario(t *testing.T) {
	store, sel, _ := newSelection(t, "0", "1", "3", "2")
	sel.Toggle("1", true)
	sel.Toggle("2", true)
	require.True(t, sel.DeleteSelected())

	require.True(t, sel.HandleSuccess("DEL-1;2"))

	assert.Equal(t, []string{"0", "3"}, uids(store.Items()))
	assert.Equal(t, 0, sel.Len())
	assert.Equal(t, dialogs.ModeDefault, sel.Mode())
	assert.False(t, sel.Processing())
}

func TestSelection_HandleSuccessWithoutPendingCommand(t *testing.T) {
	store, sel, _ := newSelection(t, "1", "2", "3")

	require.True(t, sel.HandleSuccess("DEL-1;3"))

	assert.Equal(t, []string{"2"}, uids(store.Items()))
}

func TestSelection_HandleSuccessIgnoresOtherIDs(t *testing.T) {
	store, sel, _ := newSelection(t, "1")
	sel.Toggle("1", true)

	assert.False(t, sel.HandleSuccess("READ-1"))
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 1, sel.Len())
}

func TestSelection_SettleKeepsPendingCommand(t *testing.T) {
	store, sel, _ := newSelection(t, "1", "2")
	sel.Toggle("1", true)
	require.True(t, sel.DeleteSelected())

	sel.Settle()
	assert.False(t, sel.Processing())
	assert.Equal(t, []string{"1"}, sel.UIDs())

	require.True(t, sel.HandleSuccess("DEL-1"))
	assert.Equal(t, []string{"2"}, uids(store.Items()))
	assert.False(t, sel.Processing())
}

func TestSelection_FailKeepsSelection(t *testing.T) {
	_, sel, _ := newSelection(t, "1")
	sel.Toggle("1", true)
	require.True(t, sel.DeleteSelected())

	sel.Fail()

	assert.False(t, sel.Processing())
	assert.Equal(t, []string{"1"}, sel.UIDs())
	assert.True(t, sel.DeleteSelected(), "retry after failure")
}

func TestSelection_Exit(t *testing.T) {
	_, sel, _ := newSelection(t, "1", "2")
	sel.Toggle("1", true)
	sel.Toggle("2", true)
	require.True(t, sel.DeleteSelected())

	sel.Exit()

	assert.Equal(t, dialogs.ModeDefault, sel.Mode())
	assert.Equal(t, 0, sel.Len())
	assert.False(t, sel.Processing())
}

func TestSelection_PrunedWhenDialogsDisappear(t *testing.T) {
	store, sel, _ := newSelection(t, "1", "2")
	sel.Toggle("1", true)

	store.ApplyPage(0, []dialogs.Summary{{UID: "2"}})

	assert.Equal(t, 0, sel.Len())
	assert.Equal(t, dialogs.ModeDefault, sel.Mode())
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "default", dialogs.ModeDefault.String())
	assert.Equal(t, "select", dialogs.ModeSelect.String())
	assert.Equal(t, "unknown", dialogs.Mode(7).String())
}
