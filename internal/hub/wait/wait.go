// Package wait implements the Wait Coordinator: the long-poll
// waitForMentions semantics, single-flight per agent, and the hard upper
// bound on the timeout argument. A parked call is a buffered response
// channel selected against context cancellation and a timer.
package wait

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/kandev/coordhub/internal/common/errors"
	"github.com/kandev/coordhub/internal/common/logger"
	"github.com/kandev/coordhub/internal/hub/mention"
	"github.com/kandev/coordhub/internal/hub/model"
)

type waiter struct {
	ch chan []model.MentionDelivery
}

// Coordinator serves waitForMentions calls. It drains the Mention
// Router's per-agent buffer directly where possible and otherwise parks
// the caller until a delivery arrives or the timeout elapses.
type Coordinator struct {
	mu         sync.Mutex
	waiters    map[string]*waiter
	router     *mention.Router
	maxTimeout time.Duration
	drainCap   int
	logger     *logger.Logger
}

// New creates a Coordinator. maxTimeout caps the timeout argument a
// caller may request (default 60s); drainCap
// bounds how many buffered deliveries a single call returns at once.
func New(router *mention.Router, maxTimeout time.Duration, drainCap int, log *logger.Logger) *Coordinator {
	return &Coordinator{
		waiters:    make(map[string]*waiter),
		router:     router,
		maxTimeout: maxTimeout,
		drainCap:   drainCap,
		logger:     log.WithFields(zap.String("component", "wait-coordinator")),
	}
}

// Wait implements waitForMentions(agentId, timeoutMs). ctx is the
// caller's request context; its cancellation, like Cancel on session
// close, resolves the wait with an empty batch rather than an error.
func (c *Coordinator) Wait(ctx context.Context, agentID string, timeoutMs int) ([]model.MentionDelivery, error) {
	if timeoutMs < 0 || timeoutMs > int(c.maxTimeout/time.Millisecond) {
		return nil, apperrors.TimeoutTooLarge(timeoutMs, int(c.maxTimeout/time.Millisecond))
	}

	if batch := c.router.Drain(agentID, c.drainCap); len(batch) > 0 {
		return batch, nil
	}

	c.mu.Lock()
	if _, active := c.waiters[agentID]; active {
		c.mu.Unlock()
		return nil, apperrors.WaitAlreadyActive(agentID)
	}
	w := &waiter{ch: make(chan []model.MentionDelivery, 1)}
	c.waiters[agentID] = w
	c.mu.Unlock()

	timer := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
	defer timer.Stop()

	select {
	case batch := <-w.ch:
		return batch, nil

	case <-timer.C:
		c.clearWaiter(agentID, w)
		select {
		case batch := <-w.ch:
			return batch, nil
		default:
			return nil, nil
		}

	case <-ctx.Done():
		c.clearWaiter(agentID, w)
		select {
		case batch := <-w.ch:
			return batch, nil
		default:
			return nil, nil
		}
	}
}

func (c *Coordinator) clearWaiter(agentID string, w *waiter) {
	c.mu.Lock()
	if current, ok := c.waiters[agentID]; ok && current == w {
		delete(c.waiters, agentID)
	}
	c.mu.Unlock()
}

// TryDeliver implements mention.WaitNotifier: it hands d directly to a
// currently parked waiter for agentID, if one exists, bypassing the
// buffer entirely.
func (c *Coordinator) TryDeliver(agentID string, d model.MentionDelivery) bool {
	c.mu.Lock()
	w, ok := c.waiters[agentID]
	if ok {
		delete(c.waiters, agentID)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	w.ch <- []model.MentionDelivery{d}
	return true
}

// IsWaiting reports whether agentID currently has a parked wait. Only
// tests call it, to observe a parked wait; no control flow depends on it.
func (c *Coordinator) IsWaiting(agentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.waiters[agentID]
	return ok
}

// Cancel resolves agentID's parked wait, if any, with an empty batch.
// Wired to session eviction: closing a session cancels any parked
// waitForMentions on that session.
func (c *Coordinator) Cancel(agentID string) {
	c.mu.Lock()
	w, ok := c.waiters[agentID]
	if ok {
		delete(c.waiters, agentID)
	}
	c.mu.Unlock()

	if ok {
		w.ch <- []model.MentionDelivery{}
	}
}
