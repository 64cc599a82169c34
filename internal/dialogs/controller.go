package dialogs

import (
	"github.com/omochice/dialog-session/internal/events"
	"github.com/omochice/dialog-session/internal/logging"
	"github.com/omochice/dialog-session/internal/notice"
	"github.com/omochice/dialog-session/pkg/protocol"
)

// OpenRequest asks the presentation layer to open a conversation. It is the
// Value of an events.OpenDialog event.
type OpenRequest struct {
	UID        string
	Name       string
	MarkAsRead bool
}

// SelectionState is the Value of an events.SelectionChanged event.
type SelectionState struct {
	Mode Mode
	UIDs []string
}

// LoadState is the Value of an events.LoadingChanged event.
type LoadState struct {
	Loading    bool
	Refreshing bool
	Processing bool
}

// Controller routes connection events into the dialog state and announces
// every resulting change on the bus. All of its methods must run on the
// goroutine that delivers bus events.
type Controller struct {
	bus   *events.Bus
	store *Store
	pager *Pager
	sel   *Selection
	log   logging.Logger

	subs []events.Subscription
	last LoadState
}

// NewController wires a Store, Pager and Selection to bus, sending requests
// through send.
func NewController(bus *events.Bus, send Sender, log logging.Logger) *Controller {
	store := NewStore()
	c := &Controller{
		bus:   bus,
		store: store,
		pager: NewPager(store, send),
		sel:   NewSelection(store, send),
		log:   logging.OrNoop(log),
	}

	store.OnChange(func() {
		c.sel.Prune()
		c.bus.Emit(events.Event{Kind: events.DialogsChanged, Value: c.store.Items()})
	})
	c.pager.OnChange(c.loadChanged)
	c.sel.OnChange(func() {
		c.bus.Emit(events.Event{Kind: events.SelectionChanged, Value: c.Selected()})
		c.loadChanged()
	})

	c.subs = []events.Subscription{
		bus.Subscribe(events.Connected, c.onConnected),
		bus.Subscribe(events.Message, c.onMessage),
		bus.Subscribe(events.Error, c.onError),
		bus.Subscribe(events.Closed, c.onClosed),
	}
	return c
}

// Store returns the dialog list.
func (c *Controller) Store() *Store { return c.store }

// Pager returns the pagination controller.
func (c *Controller) Pager() *Pager { return c.pager }

// Selection returns the selection controller.
func (c *Controller) Selection() *Selection { return c.sel }

// Selected returns a snapshot of the selection.
func (c *Controller) Selected() SelectionState {
	return SelectionState{Mode: c.sel.Mode(), UIDs: c.sel.UIDs()}
}

// Loading returns a snapshot of the in-flight flags.
func (c *Controller) Loading() LoadState {
	return LoadState{
		Loading:    c.pager.Loading(),
		Refreshing: c.pager.Refreshing(),
		Processing: c.sel.Processing(),
	}
}

// Open requests that the conversation uid be opened. Dialogs the user did
// not write and has not read are marked read.
func (c *Controller) Open(uid string) bool {
	d, ok := c.store.Get(uid)
	if !ok {
		return false
	}
	req := OpenRequest{UID: d.UID, Name: d.Name, MarkAsRead: !d.IsOwn && !d.IsRead}
	if req.MarkAsRead {
		c.store.MarkRead(uid)
	}
	c.bus.Emit(events.Event{Kind: events.OpenDialog, Value: req})
	return true
}

// Reset drops every dialog and the selection.
func (c *Controller) Reset() {
	c.sel.Exit()
	c.pager.Reset()
	c.store.Clear()
}

// Detach unsubscribes from the bus.
func (c *Controller) Detach() {
	for _, s := range c.subs {
		s.Unsubscribe()
	}
	c.subs = nil
}

func (c *Controller) onConnected(ev events.Event) {
	c.log.Debug("requesting first page", "conn", ev.Conn)
	c.pager.LoadInitial()
}

func (c *Controller) onMessage(ev events.Event) {
	var msg protocol.Message
	if err := msg.Decode(ev.Data); err != nil {
		c.log.Warn("failed to decode inbound payload", "conn", ev.Conn, "error", err)
		c.pager.Reset()
		c.sel.Fail()
		c.bus.Emit(events.Event{Kind: events.Notice, Value: notice.Error("Server error", "")})
		return
	}

	switch msg.Type {
	case protocol.MessageTypeDialogs:
		page := make([]Summary, 0, len(msg.Info))
		for _, d := range msg.Info {
			page = append(page, FromWire(d))
		}
		offset, applied := c.pager.HandlePage(page)
		c.log.Debug("received page", "conn", ev.Conn, "offset", offset, "count", len(page), "applied", applied)
		c.sel.Settle()
	case protocol.MessageTypeMessage:
		c.store.ApplyMessage(msg.UID, msg.Name, msg.Text)
	case protocol.MessageTypeSuccess:
		if protocol.IsDeleteConfirmation(msg.ID) && c.sel.HandleSuccess(msg.ID) {
			c.log.Debug("delete confirmed", "conn", ev.Conn, "id", msg.ID)
			return
		}
		c.sel.Settle()
	default:
		c.log.Debug("ignoring inbound payload", "conn", ev.Conn, "type", msg.Type)
	}
}

func (c *Controller) onError(ev events.Event) {
	c.pager.Reset()
	c.sel.Fail()
	c.bus.Emit(events.Event{Kind: events.Notice, Value: notice.Error("Connection error", errText(ev.Err))})
}

func (c *Controller) onClosed(ev events.Event) {
	c.pager.Reset()
	c.sel.Fail()
}

func (c *Controller) loadChanged() {
	cur := c.Loading()
	if cur == c.last {
		return
	}
	c.last = cur
	c.bus.Emit(events.Event{Kind: events.LoadingChanged, Value: cur})
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
