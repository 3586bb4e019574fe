package bus

import (
	"context"
	"sync"

	"github.com/kandev/coordhub/internal/common/logger"
)

// MemoryEventBus is an in-process fan-out bus used when no NATS URL is
// configured. It mirrors the documented "empty broker URL means
// in-memory bus" convention: good enough for a single Hub instance or
// for tests, with no cross-process visibility.
type MemoryEventBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *logger.Logger
}

// NewMemoryEventBus creates an in-memory event bus.
func NewMemoryEventBus(log *logger.Logger) *MemoryEventBus {
	return &MemoryEventBus{
		handlers: make(map[string][]Handler),
		logger:   log,
	}
}

func (b *MemoryEventBus) Publish(ctx context.Context, subject string, event *Event) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[subject]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			b.logger.Warn("in-memory event handler failed")
		}
	}
	return nil
}

func (b *MemoryEventBus) Subscribe(subject string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	b.handlers[subject] = append(b.handlers[subject], handler)
	idx := len(b.handlers[subject]) - 1
	b.mu.Unlock()

	return &memorySubscription{bus: b, subject: subject, idx: idx}, nil
}

func (b *MemoryEventBus) Close() {}

func (b *MemoryEventBus) IsConnected() bool { return true }

type memorySubscription struct {
	bus     *MemoryEventBus
	subject string
	idx     int
}

func (s *memorySubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	handlers := s.bus.handlers[s.subject]
	if s.idx < 0 || s.idx >= len(handlers) {
		return nil
	}
	s.bus.handlers[s.subject] = append(handlers[:s.idx], handlers[s.idx+1:]...)
	return nil
}
