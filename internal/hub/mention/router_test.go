package mention

import (
	"testing"

	"github.com/kandev/coordhub/internal/common/logger"
	"github.com/kandev/coordhub/internal/hub/model"
)

func newTestLogger() *logger.Logger {
	log, _ := logger.New(logger.Config{Level: "error", Format: "json", OutputPath: "stdout"})
	return log
}

func TestRouteExcludesSenderFromOwnMentions(t *testing.T) {
	r := New(10, newTestLogger())
	r.Route(&model.Message{SenderID: "alice", Mentions: []string{"alice", "bob"}})

	if r.Drain("alice", 10) != nil {
		t.Error("sender should never be self-delivered")
	}
	if got := r.Drain("bob", 10); len(got) != 1 {
		t.Errorf("expected bob to receive 1 delivery, got %d", len(got))
	}
}

func TestRouteBuffersWhenNoNotifier(t *testing.T) {
	r := New(10, newTestLogger())
	r.Route(&model.Message{SenderID: "alice", ThreadID: "t1", MessageID: "m1", Mentions: []string{"bob"}})

	depth, dropped := r.Depth("bob")
	if depth != 1 {
		t.Errorf("expected buffer depth 1, got %d", depth)
	}
	if dropped != 0 {
		t.Errorf("expected 0 dropped, got %d", dropped)
	}
}

type fakeNotifier struct {
	delivered map[string]model.MentionDelivery
	accept    bool
}

func (f *fakeNotifier) TryDeliver(agentID string, d model.MentionDelivery) bool {
	if !f.accept {
		return false
	}
	if f.delivered == nil {
		f.delivered = make(map[string]model.MentionDelivery)
	}
	f.delivered[agentID] = d
	return true
}

func TestRouteBypassesBufferWhenNotifierAccepts(t *testing.T) {
	r := New(10, newTestLogger())
	notifier := &fakeNotifier{accept: true}
	r.SetNotifier(notifier)

	r.Route(&model.Message{SenderID: "alice", Mentions: []string{"bob"}})

	if _, ok := notifier.delivered["bob"]; !ok {
		t.Error("expected the notifier to receive the delivery directly")
	}
	if depth, _ := r.Depth("bob"); depth != 0 {
		t.Errorf("expected buffer untouched when notifier accepts, got depth %d", depth)
	}
}

func TestRouteFallsBackToBufferWhenNotifierDeclines(t *testing.T) {
	r := New(10, newTestLogger())
	notifier := &fakeNotifier{accept: false}
	r.SetNotifier(notifier)

	r.Route(&model.Message{SenderID: "alice", Mentions: []string{"bob"}})

	if depth, _ := r.Depth("bob"); depth != 1 {
		t.Errorf("expected delivery buffered when notifier declines, got depth %d", depth)
	}
}

func TestDiscardRemovesBuffer(t *testing.T) {
	r := New(10, newTestLogger())
	r.Route(&model.Message{SenderID: "alice", Mentions: []string{"bob"}})
	r.Discard("bob")

	if depth, dropped := r.Depth("bob"); depth != 0 || dropped != 0 {
		t.Errorf("expected a fresh empty buffer after discard, got depth=%d dropped=%d", depth, dropped)
	}
}

func TestDepthForUnknownAgentIsZero(t *testing.T) {
	r := New(10, newTestLogger())
	if depth, dropped := r.Depth("ghost"); depth != 0 || dropped != 0 {
		t.Errorf("expected zero depth/dropped for unknown agent, got depth=%d dropped=%d", depth, dropped)
	}
}
