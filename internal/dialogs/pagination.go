package dialogs

import "github.com/omochice/dialog-session/pkg/protocol"

// Sender queues an outbound message and reports false when it was dropped.
// connection.Manager satisfies it.
type Sender interface {
	Send(msg protocol.Message) bool
}

// pending is one outstanding page request. Replies arrive in request
// order over the single connection, so they are matched first in first out.
type pending struct {
	offset  int
	refresh bool
	// stale requests were overtaken by a later first page; their reply is
	// dropped.
	stale bool
}

// Pager drives offset based page requests against a Sender and applies page
// responses to a Store.
type Pager struct {
	store *Store
	send  Sender

	offset     int
	queue      []pending
	loading    bool
	refreshing bool
	observers  []func()
}

// NewPager creates a Pager for store.
func NewPager(store *Store, send Sender) *Pager {
	return &Pager{store: store, send: send}
}

// OnChange registers fn to run whenever a flag changes.
func (p *Pager) OnChange(fn func()) {
	p.observers = append(p.observers, fn)
}

// Offset returns the offset of the most recent page request.
func (p *Pager) Offset() int { return p.offset }

// Loading reports whether a page request other than a refresh is in flight.
func (p *Pager) Loading() bool { return p.loading }

// Refreshing reports whether a refresh is in flight.
func (p *Pager) Refreshing() bool { return p.refreshing }

// Busy reports whether any page request is in flight.
func (p *Pager) Busy() bool { return len(p.queue) > 0 }

// LoadInitial requests the first page without clearing the store. It is
// issued on every connected event, so it ignores in-flight flags: a request
// left unresolved by a previous connection never blocks it.
func (p *Pager) LoadInitial() bool {
	p.invalidate()
	return p.request(pending{offset: 0})
}

// LoadMore requests the page after the dialogs already held. It is a no-op
// while another page request is in flight.
func (p *Pager) LoadMore() bool {
	if p.Busy() {
		return false
	}
	return p.request(pending{offset: p.store.Len()})
}

// Refresh clears the store and requests the first page again. It is a
// no-op while a refresh is already in flight. Replies to earlier requests
// are discarded.
func (p *Pager) Refresh() bool {
	if p.refreshing {
		return false
	}
	p.store.Clear()
	p.invalidate()
	return p.request(pending{offset: 0, refresh: true})
}

// HandlePage applies a page response at the offset of the request it
// answers. It returns that offset and false when the reply was stale and
// dropped. A reply with nothing outstanding is appended.
func (p *Pager) HandlePage(page []Summary) (int, bool) {
	req := pending{offset: p.store.Len()}
	if len(p.queue) > 0 {
		req = p.queue[0]
		p.queue = p.queue[1:]
	}
	if !req.stale {
		p.store.ApplyPage(req.offset, page)
	}
	p.update()
	return req.offset, !req.stale
}

// Reset forgets every outstanding request and clears the in-flight flags.
// It is called when replies can no longer be matched: a decode failure, an
// error or a closed connection.
func (p *Pager) Reset() {
	p.queue = nil
	p.update()
}

func (p *Pager) invalidate() {
	for i := range p.queue {
		p.queue[i].stale = true
	}
}

func (p *Pager) request(req pending) bool {
	p.offset = req.offset
	p.queue = append(p.queue, req)
	p.update()
	if !p.send.Send(protocol.DialogsRequest(req.offset)) {
		// Nothing is queued while disconnected; the next connected event
		// reissues the first page.
		p.queue = p.queue[:len(p.queue)-1]
		p.update()
		return false
	}
	return true
}

func (p *Pager) update() {
	loading, refreshing := false, false
	for _, req := range p.queue {
		if req.refresh {
			refreshing = true
		} else {
			loading = true
		}
	}
	if p.loading == loading && p.refreshing == refreshing {
		return
	}
	p.loading = loading
	p.refreshing = refreshing
	for _, fn := range p.observers {
		fn()
	}
}
