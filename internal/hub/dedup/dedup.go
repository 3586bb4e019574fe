// Package dedup provides the correlation-id idempotency window for
// retried createThread/sendMessage calls: a client that retries a call
// after a transport failure, without knowing whether the original request
// landed, replays the same correlation id and expects the original
// result back rather than a duplicate effect.
package dedup

import (
	"sync"
	"time"
)

type entry struct {
	result    interface{}
	err       error
	expiresAt time.Time
}

// Window remembers the outcome of recent calls keyed by correlation id,
// for a bounded duration, so a retried call can be answered from memory
// instead of re-executed.
type Window struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
}

// New creates a Window with the given retention ttl (default 30s).
func New(ttl time.Duration) *Window {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Window{
		entries: make(map[string]entry),
		ttl:     ttl,
	}
}

// Lookup returns the remembered (result, err) for correlationID, if any
// and not yet expired.
func (w *Window) Lookup(correlationID string) (interface{}, error, bool) {
	if correlationID == "" {
		return nil, nil, false
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entries[correlationID]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, nil, false
	}
	return e.result, e.err, true
}

// Remember records the outcome of correlationID for the retention window.
func (w *Window) Remember(correlationID string, result interface{}, err error) {
	if correlationID == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.entries[correlationID] = entry{
		result:    result,
		err:       err,
		expiresAt: time.Now().Add(w.ttl),
	}
	w.sweepLocked()
}

// sweepLocked drops expired entries. Called opportunistically on write
// so the map never grows unbounded without a separate ticker goroutine.
func (w *Window) sweepLocked() {
	now := time.Now()
	for id, e := range w.entries {
		if now.After(e.expiresAt) {
			delete(w.entries, id)
		}
	}
}
