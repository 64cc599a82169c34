package dialogs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/dialog-session/internal/dialogs"
	"github.com/omochice/dialog-session/pkg/protocol"
)

func TestPager_LoadMoreRequestsAtCurrentCount(t *testing.T) {
	store := dialogs.NewStore()
	store.ApplyPage(0, []dialogs.Summary{{UID: "1"}, {UID: "2"}})
	sender := &fakeSender{}
	p := dialogs.NewPager(store, sender)

	require.True(t, p.LoadMore())

	assert.Equal(t, protocol.DialogsRequest(2), sender.last())
	assert.Equal(t, protocol.PageSize, sender.last().Limit)
	assert.True(t, p.Loading())
}

func TestPager_LoadMoreTwiceSendsOnce(t *testing.T) {
	sender := &fakeSender{}
	p := dialogs.NewPager(dialogs.NewStore(), sender)

	assert.True(t, p.LoadMore())
	assert.False(t, p.LoadMore())

	assert.Len(t, sender.sent, 1)
}

func TestPager_LoadMoreBlockedByRefresh(t *testing.T) {
	sender := &fakeSender{}
	p := dialogs.NewPager(dialogs.NewStore(), sender)

	require.True(t, p.Refresh())
	assert.False(t, p.LoadMore())

	assert.Len(t, sender.sent, 1)
}

func TestPager_HandlePageAppliesAtRequestedOffset(t *testing.T) {
	store := dialogs.NewStore()
	sender := &fakeSender{}
	p := dialogs.NewPager(store, sender)

	require.True(t, p.LoadInitial())
	p.HandlePage([]dialogs.Summary{{UID: "1", Name: "A"}})
	require.True(t, p.LoadMore())
	assert.Equal(t, 1, sender.last().Offset)
	p.HandlePage([]dialogs.Summary{{UID: "2", Name: "B"}})

	assert.Equal(t, []dialogs.Summary{{UID: "1", Name: "A"}, {UID: "2", Name: "B"}}, store.Items())
	assert.False(t, p.Busy())
}

func TestPager_RefreshClearsStore(t *testing.T) {
	store := dialogs.NewStore()
	store.ApplyPage(0, []dialogs.Summary{{UID: "1"}, {UID: "2"}})
	sender := &fakeSender{}
	p := dialogs.NewPager(store, sender)

	require.True(t, p.Refresh())

	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 0, p.Offset())
	assert.True(t, p.Refreshing())
	assert.Equal(t, protocol.DialogsRequest(0), sender.last())
	assert.False(t, p.Refresh(), "refresh already in flight")

	p.HandlePage([]dialogs.Summary{{UID: "3"}})
	assert.Equal(t, []string{"3"}, uids(store.Items()))
	assert.False(t, p.Refreshing())
}

func TestPager_DroppedSendResetsFlags(t *testing.T) {
	sender := &fakeSender{offline: true}
	p := dialogs.NewPager(dialogs.NewStore(), sender)

	assert.False(t, p.LoadMore())
	assert.False(t, p.Busy())

	sender.offline = false
	assert.True(t, p.LoadMore(), "a dropped request never blocks the next")
}

func TestPager_LoadInitialIgnoresStaleFlags(t *testing.T) {
	sender := &fakeSender{}
	p := dialogs.NewPager(dialogs.NewStore(), sender)

	require.True(t, p.LoadMore())
	require.True(t, p.LoadInitial())

	assert.Len(t, sender.sent, 2)
	assert.Equal(t, 0, sender.last().Offset)
}

func TestPager_ObserversSeeFlagChanges(t *testing.T) {
	p := dialogs.NewPager(dialogs.NewStore(), &fakeSender{})
	var seen []bool
	p.OnChange(func() { seen = append(seen, p.Loading()) })

	p.LoadMore()
	p.Reset()
	p.Reset()

	assert.Equal(t, []bool{true, false}, seen)
}

func TestPager_RefreshDropsEarlierReplies(t *testing.T) {
	store := dialogs.NewStore()
	store.ApplyPage(0, []dialogs.Summary{{UID: "1"}, {UID: "2"}})
	sender := &fakeSender{}
	p := dialogs.NewPager(store, sender)

	require.True(t, p.LoadMore())
	require.True(t, p.Refresh())
	assert.True(t, p.Loading())
	assert.True(t, p.Refreshing())

	offset, applied := p.HandlePage([]dialogs.Summary{{UID: "3"}})
	assert.Equal(t, 2, offset)
	assert.False(t, applied)
	assert.Equal(t, 0, store.Len())
	assert.False(t, p.Loading())
	assert.True(t, p.Refreshing(), "refresh still outstanding")
	assert.False(t, p.LoadMore())

	offset, applied = p.HandlePage([]dialogs.Summary{{UID: "1"}, {UID: "2"}})
	assert.Equal(t, 0, offset)
	assert.True(t, applied)
	assert.Equal(t, []string{"1", "2"}, uids(store.Items()))
	assert.False(t, p.Busy())
}

func TestPager_UnmatchedReplyAppends(t *testing.T) {
	store := dialogs.NewStore()
	store.ApplyPage(0, []dialogs.Summary{{UID: "1"}})
	p := dialogs.NewPager(store, &fakeSender{})

	offset, applied := p.HandlePage([]dialogs.Summary{{UID: "2"}})

	assert.Equal(t, 1, offset)
	assert.True(t, applied)
	assert.Equal(t, []string{"1", "2"}, uids(store.Items()))
}

func TestPager_ResetForgetsOutstandingRequests(t *testing.T) {
	store := dialogs.NewStore()
	sender := &fakeSender{}
	p := dialogs.NewPager(store, sender)
	require.True(t, p.Refresh())

	p.Reset()

	assert.False(t, p.Busy())
	assert.True(t, p.Refresh())
}
