package mention

import (
	"sync"

	"go.uber.org/zap"

	"github.com/kandev/coordhub/internal/common/logger"
	"github.com/kandev/coordhub/internal/hub/model"
)

// WaitNotifier lets the Router hand a delivery directly to a currently
// parked waitForMentions call, bypassing the buffer entirely. It
// is implemented by internal/hub/wait.Coordinator; the dependency runs
// this direction (mention -> wait interface) to avoid an import cycle.
type WaitNotifier interface {
	TryDeliver(agentID string, d model.MentionDelivery) bool
}

// Router is the Mention Router: on message append, it enqueues a
// MentionDelivery into each mentioned agent's buffer, or hands it
// directly to a parked waiter if one exists.
type Router struct {
	mu       sync.Mutex
	buffers  map[string]*Buffer
	softCap  int
	notifier WaitNotifier
	logger   *logger.Logger
}

// New creates a Router. notifier may be nil until wired (see hub.go,
// which breaks the router<->wait construction cycle by setting it after
// both are built).
func New(softCap int, log *logger.Logger) *Router {
	return &Router{
		buffers: make(map[string]*Buffer),
		softCap: softCap,
		logger:  log.WithFields(zap.String("component", "mention-router")),
	}
}

// SetNotifier wires the Wait Coordinator in after construction.
func (r *Router) SetNotifier(n WaitNotifier) {
	r.notifier = n
}

// Route delivers msg to every mentioned agent except the sender: a
// sender is never self-delivered even if present in its own mentions.
func (r *Router) Route(msg *model.Message) {
	for _, target := range msg.Mentions {
		if target == msg.SenderID {
			continue
		}
		delivery := model.MentionDelivery{
			TargetAgentID: target,
			ThreadID:      msg.ThreadID,
			MessageID:     msg.MessageID,
			SenderID:      msg.SenderID,
			Body:          msg.Body,
			PostedAt:      msg.PostedAt,
		}

		if r.notifier != nil && r.notifier.TryDeliver(target, delivery) {
			continue
		}

		buf := r.bufferFor(target)
		before := buf.Dropped()
		buf.Push(delivery)
		if after := buf.Dropped(); after > before {
			r.logger.Warn("mention buffer overflow, oldest delivery dropped",
				zap.String("agent_id", target), zap.Int64("dropped_total", after))
		}
	}
}

// Drain drains up to max pending deliveries for agentID.
func (r *Router) Drain(agentID string, max int) []model.MentionDelivery {
	return r.bufferFor(agentID).Drain(max)
}

// Depth returns the current buffer depth and cumulative drop count for
// agentID, for listAgents detail mode.
func (r *Router) Depth(agentID string) (depth int, dropped int64) {
	r.mu.Lock()
	buf, ok := r.buffers[agentID]
	r.mu.Unlock()
	if !ok {
		return 0, 0
	}
	return buf.Len(), buf.Dropped()
}

// Discard removes agentID's buffer entirely, called when the agent is
// fully evicted from the registry (explicit close or grace-window
// timeout).
func (r *Router) Discard(agentID string) {
	r.mu.Lock()
	delete(r.buffers, agentID)
	r.mu.Unlock()
}

func (r *Router) bufferFor(agentID string) *Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf, ok := r.buffers[agentID]
	if !ok {
		buf = NewBuffer(r.softCap)
		r.buffers[agentID] = buf
	}
	return buf
}
