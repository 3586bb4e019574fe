// Package dispatch implements the Dispatch Loop: the agent process's
// main loop, which parks in waitForMentions and only invokes the Agent
// Brain when a batch actually arrives -- the cost gate that keeps an
// idle agent from burning a model call per poll.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/kandev/coordhub/internal/common/errors"
	"github.com/kandev/coordhub/internal/common/logger"
	"github.com/kandev/coordhub/internal/hub/model"
	"github.com/kandev/coordhub/pkg/runtime"
	"github.com/kandev/coordhub/pkg/runtime/brain"
)

// defaultMaxWaitMs mirrors the Hub's default ceiling on a wait's
// timeoutMs argument. When the Hub rejects a wait as too large, the loop
// clamps to this and retries rather than spinning on the same rejection.
const defaultMaxWaitMs = 60000

// idleBackoff is how long the loop pauses after an empty batch or a
// failed wait before parking again.
const idleBackoff = time.Second

// Loop repeatedly waits for mentions addressed to selfID and, only when
// a non-empty batch arrives, hands it to a Brain and posts its Actions
// back as messages.
type Loop struct {
	client        *runtime.Client
	brain         brain.Brain
	selfID        string
	waitTimeoutMs int
	logger        *logger.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Loop. waitTimeoutMs bounds each waitForMentions call
// (WAIT_TIMEOUT_MS from the environment). The Hub rejects a value above
// its ceiling with TimeoutTooLarge, and the loop then clamps it itself.
func New(client *runtime.Client, b brain.Brain, selfID string, waitTimeoutMs int, log *logger.Logger) *Loop {
	return &Loop{
		client:        client,
		brain:         b,
		selfID:        selfID,
		waitTimeoutMs: waitTimeoutMs,
		logger:        log.WithFields(zap.String("component", "dispatch-loop"), zap.String("agent_id", selfID)),
		stopCh:        make(chan struct{}),
	}
}

// Start runs the loop in a background goroutine until ctx is cancelled
// or Stop is called.
func (l *Loop) Start(ctx context.Context) {
	l.wg.Add(1)
	go l.run(ctx)
}

// Stop halts the loop and waits for it to exit.
func (l *Loop) Stop() {
	close(l.stopCh)
	l.wg.Wait()
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		default:
		}

		batch, err := l.client.Wait(ctx, l.selfID, l.waitTimeoutMs)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) && appErr.Code == apperrors.ErrCodeTimeoutTooLarge {
				l.clampWaitTimeout()
				continue
			}
			l.logger.Warn("waitForMentions failed, retrying", zap.Error(err))
			l.pause(ctx)
			continue
		}

		// Cost gate: an empty batch (plain timeout, or a cancelled wait
		// from session eviction) never reaches the Brain.
		if len(batch) == 0 {
			l.pause(ctx)
			continue
		}

		l.dispatch(ctx, batch)
	}
}

// clampWaitTimeout reacts to a TimeoutTooLarge rejection: first clamp to
// the well-known default ceiling, and if the Hub's configured ceiling is
// lower still, probe downward until a wait is accepted.
func (l *Loop) clampWaitTimeout() {
	old := l.waitTimeoutMs
	if l.waitTimeoutMs > defaultMaxWaitMs {
		l.waitTimeoutMs = defaultMaxWaitMs
	} else {
		l.waitTimeoutMs /= 2
		if l.waitTimeoutMs < 1000 {
			l.waitTimeoutMs = 1000
		}
	}
	l.logger.Warn("wait timeout rejected as too large, clamping",
		zap.Int("old_ms", old), zap.Int("new_ms", l.waitTimeoutMs))
}

func (l *Loop) pause(ctx context.Context) {
	timer := time.NewTimer(idleBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-l.stopCh:
	case <-timer.C:
	}
}

// dispatch hands batch to the Brain and posts whatever Actions it
// returns. A Brain failure is contained here, never killing the loop,
// and reported back into every originating thread so the mentioning
// agent never hangs waiting silently for a reply that will never come.
func (l *Loop) dispatch(ctx context.Context, batch []model.MentionDelivery) {
	actions, err := l.brain.Decide(ctx, l.selfID, batch)
	if err != nil {
		l.logger.Error("brain decide failed", zap.Error(err))
		l.reportBrainFailure(ctx, batch, err)
		return
	}

	for _, action := range actions {
		if _, err := l.client.SendMessage(ctx, action.ThreadID, l.selfID, action.Body, action.Mentions); err != nil {
			l.logger.Error("failed to post brain action",
				zap.String("thread_id", action.ThreadID), zap.Error(err))
		}
	}
}

func (l *Loop) reportBrainFailure(ctx context.Context, batch []model.MentionDelivery, cause error) {
	notified := make(map[string]bool, len(batch))
	for _, d := range batch {
		if notified[d.ThreadID] {
			continue
		}
		notified[d.ThreadID] = true
		body := "error: failed to process your mention (" + cause.Error() + ")"
		if _, err := l.client.SendMessage(ctx, d.ThreadID, l.selfID, body, []string{d.SenderID}); err != nil {
			l.logger.Error("failed to report brain failure to thread",
				zap.String("thread_id", d.ThreadID), zap.Error(err))
		}
	}
}
