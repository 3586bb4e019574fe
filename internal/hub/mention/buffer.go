// Package mention implements the Mention Router and the per-agent
// MentionBuffer: a bounded FIFO of pending deliveries with an oldest-drop
// overflow policy and an observable drop counter.
package mention

import (
	"sync"

	"github.com/kandev/coordhub/internal/hub/model"
)

// Buffer is a bounded FIFO of pending MentionDeliveries for one agent.
// On overflow, the oldest entry is dropped and the drop is counted.
type Buffer struct {
	mu      sync.Mutex
	items   []model.MentionDelivery
	softCap int
	dropped int64
}

// NewBuffer creates a Buffer bounded at softCap entries.
func NewBuffer(softCap int) *Buffer {
	if softCap <= 0 {
		softCap = 1024
	}
	return &Buffer{softCap: softCap}
}

// Push appends d, dropping the oldest entry (and bumping the drop
// counter) if the buffer is at capacity.
func (b *Buffer) Push(d model.MentionDelivery) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) >= b.softCap {
		b.items = b.items[1:]
		b.dropped++
	}
	b.items = append(b.items, d)
}

// Drain removes and returns up to max pending deliveries, oldest first.
// The removed deliveries are no longer observable to any future wait.
func (b *Buffer) Drain(max int) []model.MentionDelivery {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == 0 {
		return nil
	}
	n := len(b.items)
	if max > 0 && n > max {
		n = max
	}
	out := make([]model.MentionDelivery, n)
	copy(out, b.items[:n])
	b.items = b.items[n:]
	return out
}

// Len returns the number of pending deliveries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Dropped returns the cumulative number of deliveries dropped due to
// overflow, observable via listAgents detail mode.
func (b *Buffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
