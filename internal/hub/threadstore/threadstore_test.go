package threadstore

import (
	"testing"

	"github.com/kandev/coordhub/internal/common/errors"
	"github.com/kandev/coordhub/internal/common/logger"
	"github.com/kandev/coordhub/internal/hub/model"
)

func newTestLogger() *logger.Logger {
	log, _ := logger.New(logger.Config{Level: "error", Format: "json", OutputPath: "stdout"})
	return log
}

type fakeRouter struct {
	routed []*model.Message
}

func (f *fakeRouter) Route(msg *model.Message) {
	f.routed = append(f.routed, msg)
}

type fakeChecker struct {
	registered map[string]bool
}

func (f *fakeChecker) IsRegistered(agentID string) bool {
	return f.registered[agentID]
}

func newChecker(ids ...string) *fakeChecker {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return &fakeChecker{registered: m}
}

func TestCreateThreadRejectsUnknownParticipant(t *testing.T) {
	checker := newChecker("alice")
	store := New(&fakeRouter{}, checker, 0, newTestLogger())

	_, err := store.CreateThread("t1", "demo", "alice", []string{"bob"})
	if err == nil {
		t.Fatal("expected error for unregistered participant")
	}
	if errors.GetHTTPStatus(err) != 404 {
		t.Errorf("expected a 404-mapped error, got %v", err)
	}
}

func TestCreateThreadRejectsUnknownCreator(t *testing.T) {
	checker := newChecker("bob")
	store := New(&fakeRouter{}, checker, 0, newTestLogger())

	_, err := store.CreateThread("t1", "demo", "alice", []string{"bob"})
	if err == nil {
		t.Fatal("expected error for unregistered creator")
	}
}

func TestCreateThreadIsIdempotentByThreadID(t *testing.T) {
	checker := newChecker("alice", "bob")
	store := New(&fakeRouter{}, checker, 0, newTestLogger())

	first, err := store.CreateThread("t1", "demo", "alice", []string{"bob"})
	if err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}
	second, err := store.CreateThread("t1", "demo", "alice", []string{"bob"})
	if err != nil {
		t.Fatalf("second CreateThread failed: %v", err)
	}
	if first != second {
		t.Error("expected the same thread to be returned for a repeated threadID")
	}
}

func TestAddParticipantValidatesRequesterAndAgent(t *testing.T) {
	checker := newChecker("alice", "bob", "carol")
	store := New(&fakeRouter{}, checker, 0, newTestLogger())
	_, _ = store.CreateThread("t1", "demo", "alice", nil)

	if err := store.AddParticipant("t1", "someone-else", "carol"); err == nil {
		t.Error("expected error when requester is not a participant")
	}
	if err := store.AddParticipant("t1", "alice", "unregistered"); err == nil {
		t.Error("expected error when added agent is not registered")
	}
	if err := store.AddParticipant("t1", "alice", "carol"); err != nil {
		t.Fatalf("AddParticipant failed: %v", err)
	}

	thread, _ := store.Get("t1")
	if !thread.HasParticipant("carol") {
		t.Error("expected carol to be a participant after AddParticipant")
	}
}

func TestRemoveParticipantClosesThreadWhenEmpty(t *testing.T) {
	checker := newChecker("alice")
	store := New(&fakeRouter{}, checker, 0, newTestLogger())
	_, _ = store.CreateThread("t1", "demo", "alice", nil)

	if err := store.RemoveParticipant("t1", "alice", "alice"); err != nil {
		t.Fatalf("RemoveParticipant failed: %v", err)
	}

	thread, _ := store.Get("t1")
	if !thread.Closed {
		t.Error("expected thread to auto-close once its last participant is removed")
	}
}

func TestRemoveParticipantRequiresRequesterParticipation(t *testing.T) {
	checker := newChecker("alice", "bob")
	store := New(&fakeRouter{}, checker, 0, newTestLogger())
	_, _ = store.CreateThread("t1", "demo", "alice", []string{"bob"})

	if err := store.RemoveParticipant("t1", "nobody", "bob"); err == nil {
		t.Error("expected error when requester is not a participant")
	}
}

func TestSendMessageRejectsNonParticipantSender(t *testing.T) {
	checker := newChecker("alice", "bob")
	store := New(&fakeRouter{}, checker, 0, newTestLogger())
	_, _ = store.CreateThread("t1", "demo", "alice", nil)

	if _, err := store.SendMessage("t1", "m1", "bob", "hi", nil); err == nil {
		t.Error("expected error for a sender that is not a participant")
	}
}

func TestSendMessageRejectsMentionOfNonParticipant(t *testing.T) {
	checker := newChecker("alice", "bob")
	store := New(&fakeRouter{}, checker, 0, newTestLogger())
	_, _ = store.CreateThread("t1", "demo", "alice", nil)

	if _, err := store.SendMessage("t1", "m1", "alice", "hi @bob", []string{"bob"}); err == nil {
		t.Error("expected error for mentioning a non-participant")
	}
}

func TestSendMessageRoutesToRouter(t *testing.T) {
	checker := newChecker("alice", "bob")
	router := &fakeRouter{}
	store := New(router, checker, 0, newTestLogger())
	_, _ = store.CreateThread("t1", "demo", "alice", []string{"bob"})

	msg, err := store.SendMessage("t1", "m1", "alice", "hi @bob", []string{"bob"})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if len(router.routed) != 1 || router.routed[0] != msg {
		t.Error("expected SendMessage to route the posted message exactly once")
	}
}

func TestSendMessageRejectsClosedThread(t *testing.T) {
	checker := newChecker("alice")
	store := New(&fakeRouter{}, checker, 0, newTestLogger())
	_, _ = store.CreateThread("t1", "demo", "alice", nil)
	_ = store.CloseThread("t1")

	if _, err := store.SendMessage("t1", "m1", "alice", "hi", nil); err == nil {
		t.Error("expected error posting to a closed thread")
	}
}

func TestSendMessageTrimsLogToMaxLog(t *testing.T) {
	checker := newChecker("alice")
	store := New(&fakeRouter{}, checker, 2, newTestLogger())
	_, _ = store.CreateThread("t1", "demo", "alice", nil)

	for i := 0; i < 5; i++ {
		if _, err := store.SendMessage("t1", "m", "alice", "hi", nil); err != nil {
			t.Fatalf("SendMessage failed: %v", err)
		}
	}

	thread, _ := store.Get("t1")
	if len(thread.Log) != 2 {
		t.Errorf("expected log trimmed to 2 entries, got %d", len(thread.Log))
	}
}
