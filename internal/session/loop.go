package session

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned by operations that need the session loop after Run
// has returned.
var ErrStopped = errors.New("session loop stopped")

// loop runs posted functions one at a time, in posting order, on the
// goroutine that calls run. Posting never blocks.
type loop struct {
	mu    sync.Mutex
	tasks []func()
	wake  chan struct{}

	stopOnce sync.Once
	stopped  chan struct{}
}

func newLoop() *loop {
	return &loop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

func (l *loop) post(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// run executes tasks until ctx is done. Tasks still queued at that point are
// discarded and the loop cannot be run again.
func (l *loop) run(ctx context.Context) error {
	defer l.stopOnce.Do(func() { close(l.stopped) })
	select {
	case <-l.stopped:
		return ErrStopped
	default:
	}
	for {
		l.mu.Lock()
		tasks := l.tasks
		l.tasks = nil
		l.mu.Unlock()

		for _, fn := range tasks {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fn()
		}
		if len(tasks) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// do posts fn and waits for it to finish. Before run starts fn stays queued;
// once run has returned do fails with ErrStopped.
func (l *loop) do(ctx context.Context, fn func()) error {
	select {
	case <-l.stopped:
		return ErrStopped
	default:
	}
	done := make(chan struct{})
	l.post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
