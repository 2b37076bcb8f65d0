package usecase

import (
	"context"
	"sync"
	"time"
)

// retryQueue keeps at most one pending re-check timer per notification.
type retryQueue struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func newRetryQueue() *retryQueue {
	return &retryQueue{timers: make(map[string]*time.Timer)}
}

// schedule replaces any pending timer for id.
func (q *retryQueue) schedule(ctx context.Context, id string, delay time.Duration, fn func(context.Context, string)) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return
	}
	if existing, ok := q.timers[id]; ok {
		existing.Stop()
	}
	if delay < 0 {
		delay = 0
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		q.mu.Lock()
		if q.timers[id] != t {
			q.mu.Unlock()
			return
		}
		delete(q.timers, id)
		q.mu.Unlock()

		fn(ctx, id)
	})
	q.timers[id] = t
}

func (q *retryQueue) cancel(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if t, ok := q.timers[id]; ok {
		t.Stop()
		delete(q.timers, id)
	}
}

func (q *retryQueue) pending(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, ok := q.timers[id]
	return ok
}

func (q *retryQueue) stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stopped = true
	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
}
