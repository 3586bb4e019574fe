package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kandev/coordhub/internal/common/logger"
	"github.com/kandev/coordhub/pkg/wire"
)

func newTestLogger() *logger.Logger {
	log, _ := logger.New(logger.Config{Level: "error", Format: "json", OutputPath: "stdout"})
	return log
}

func TestSSEClientPushThenServeWritesFrame(t *testing.T) {
	client := NewSSEClient("agent-1", "sess-1", newTestLogger())

	frame, _ := wire.NewNotification(wire.KindMentionDelivery, map[string]string{"hello": "world"})
	if !client.Push(frame) {
		t.Fatal("expected Push to succeed on a fresh client")
	}

	rec := httptest.NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)

	done := make(chan error, 1)
	go func() {
		done <- client.Serve(rec, req, time.Hour)
	}()

	deadline := time.Now().Add(time.Second)
	for !strings.Contains(rec.Body.String(), "mentionDelivery") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !strings.Contains(rec.Body.String(), "mentionDelivery") {
		t.Fatalf("expected the pushed frame to reach the response body, got: %s", rec.Body.String())
	}

	cancel()
	<-done
}

func TestSSEClientCloseEmitsSessionClosedFrame(t *testing.T) {
	client := NewSSEClient("agent-1", "sess-1", newTestLogger())

	rec := httptest.NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)

	done := make(chan error, 1)
	go func() {
		done <- client.Serve(rec, req, time.Hour)
	}()

	time.Sleep(10 * time.Millisecond)
	client.Close("Displaced")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Serve to return after Close")
	}

	if !strings.Contains(rec.Body.String(), "sessionClosed") {
		t.Errorf("expected a sessionClosed frame in the stream, got: %s", rec.Body.String())
	}
	if client.Reason() != "Displaced" {
		t.Errorf("expected reason 'Displaced', got %q", client.Reason())
	}
}

func TestSSEClientCloseIsIdempotent(t *testing.T) {
	client := NewSSEClient("agent-1", "sess-1", newTestLogger())
	client.Close("first")
	client.Close("second") // must not panic on a double close

	if client.Reason() != "first" {
		t.Errorf("expected the first close reason to stick, got %q", client.Reason())
	}
}

func TestSSEClientPushDropsSessionOnBackpressure(t *testing.T) {
	client := NewSSEClient("agent-1", "sess-1", newTestLogger())

	frame, _ := wire.NewNotification(wire.KindHeartbeat, struct{}{})
	for i := 0; i < sendQueueCap; i++ {
		if !client.Push(frame) {
			t.Fatalf("expected push %d to succeed before the queue is full", i)
		}
	}

	if client.Push(frame) {
		t.Error("expected the push that overflows the queue to fail")
	}
	if client.Reason() != "Backpressure" {
		t.Errorf("expected the client to self-close with reason 'Backpressure', got %q", client.Reason())
	}
}
