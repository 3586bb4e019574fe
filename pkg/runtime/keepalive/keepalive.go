// Package keepalive implements the Keepalive Engine: a ticker that
// periodically calls listAgents on behalf of the local agent purely to
// keep its registry entry's LastActivity fresh, defeating infrastructure
// that prunes connections it judges idle. It is off by default
// (KEEPALIVE_MODE=off) since an agent that is already calling
// waitForMentions or sendMessage regularly needs no extra signal.
package keepalive

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/coordhub/internal/common/logger"
	"github.com/kandev/coordhub/pkg/runtime"
)

// Engine pings listAgents(includeDetails=false) on a fixed interval.
type Engine struct {
	client   *runtime.Client
	selfID   string
	interval time.Duration
	logger   *logger.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates an Engine. interval is KEEPALIVE_INTERVAL_MS from the
// environment, applicable only when KEEPALIVE_MODE=active.
func New(client *runtime.Client, selfID string, interval time.Duration, log *logger.Logger) *Engine {
	return &Engine{
		client:   client,
		selfID:   selfID,
		interval: interval,
		logger:   log.WithFields(zap.String("component", "keepalive"), zap.String("agent_id", selfID)),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the ping loop. Callers should only invoke this when
// KEEPALIVE_MODE=active; New itself has no opinion on the mode.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go e.run(ctx)
}

// Stop halts the loop and waits for it to exit.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.pingSafely(ctx)
		}
	}
}

// pingSafely never lets a single failed or panicking ping bring down the
// agent process: the keepalive signal is a convenience, not a
// correctness requirement.
func (e *Engine) pingSafely(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("keepalive ping panicked", zap.Any("panic", r))
		}
	}()

	if _, err := e.client.ListAgents(ctx, e.selfID, false); err != nil {
		e.logger.Warn("keepalive ping failed", zap.Error(err))
	}
}
