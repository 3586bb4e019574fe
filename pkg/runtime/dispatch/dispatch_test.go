package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kandev/coordhub/internal/common/logger"
	"github.com/kandev/coordhub/internal/hub/model"
	"github.com/kandev/coordhub/pkg/runtime"
	"github.com/kandev/coordhub/pkg/runtime/brain"
)

func newTestLogger() *logger.Logger {
	log, _ := logger.New(logger.Config{Level: "error", Format: "json", OutputPath: "stdout"})
	return log
}

type stubBrain struct {
	decideCalls int32
	actions     []brain.Action
}

func (s *stubBrain) Decide(ctx context.Context, selfID string, batch []model.MentionDelivery) ([]brain.Action, error) {
	atomic.AddInt32(&s.decideCalls, 1)
	return s.actions, nil
}

// newHub starts a stub Hub that returns one non-empty wait batch then
// empty timeouts thereafter, and records sent messages.
func newHub(t *testing.T, delivery model.MentionDelivery) (*httptest.Server, *int32) {
	t.Helper()
	var waitCalls int32
	var sentCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/agents/worker-1/wait", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&waitCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"deliveries": []model.MentionDelivery{delivery},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"deliveries": []model.MentionDelivery{}})
	})
	mux.HandleFunc("/api/v1/threads/t1/messages", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&sentCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"messageId": "m-reply"})
	})

	return httptest.NewServer(mux), &sentCalls
}

func TestDispatchLoopSkipsBrainOnEmptyBatch(t *testing.T) {
	delivery := model.MentionDelivery{ThreadID: "t1", SenderID: "alice", MessageID: "m1", Body: "hi"}
	server, sentCalls := newHub(t, delivery)
	defer server.Close()

	client := runtime.NewClient(server.URL)
	b := &stubBrain{actions: []brain.Action{{ThreadID: "t1", Body: "ack", Mentions: []string{"alice"}}}}

	loop := New(client, b, "worker-1", 50, newTestLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	loop.Start(ctx)
	<-ctx.Done()
	loop.Stop()

	if atomic.LoadInt32(&b.decideCalls) != 1 {
		t.Errorf("expected Brain.Decide called exactly once (for the single non-empty batch), got %d", b.decideCalls)
	}
	if atomic.LoadInt32(sentCalls) != 1 {
		t.Errorf("expected exactly 1 message posted from the brain's action, got %d", *sentCalls)
	}
}

func TestDispatchLoopClampsRejectedWaitTimeout(t *testing.T) {
	var sawClamped int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/agents/worker-1/wait", func(w http.ResponseWriter, r *http.Request) {
		timeoutMs := r.URL.Query().Get("timeoutMs")
		w.Header().Set("Content-Type", "application/json")
		if timeoutMs == "120000" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]string{"code": "TIMEOUT_TOO_LARGE", "message": "too large"},
			})
			return
		}
		if timeoutMs == "60000" {
			atomic.StoreInt32(&sawClamped, 1)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"deliveries": []model.MentionDelivery{}})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := runtime.NewClient(server.URL)
	loop := New(client, &stubBrain{}, "worker-1", 120000, newTestLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	loop.Start(ctx)
	<-ctx.Done()
	loop.Stop()

	if atomic.LoadInt32(&sawClamped) != 1 {
		t.Error("expected the loop to retry with the wait timeout clamped to 60000ms")
	}
}

func TestDispatchLoopStopsCleanly(t *testing.T) {
	server, _ := newHub(t, model.MentionDelivery{})
	defer server.Close()

	client := runtime.NewClient(server.URL)
	b := &stubBrain{}
	loop := New(client, b, "worker-1", 50, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop.Start(ctx)
	loop.Stop() // must return without hanging
}
