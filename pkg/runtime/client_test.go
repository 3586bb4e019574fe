package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	apperrors "github.com/kandev/coordhub/internal/common/errors"
)

func TestNewClientParsesIdentityHandshakeFromURL(t *testing.T) {
	c := NewClient("http://hub.internal:8080?applicationId=app-1&privacyKey=secret&waitForAgents=3")

	if c.baseURL != "http://hub.internal:8080" {
		t.Errorf("expected query stripped from base url, got %q", c.baseURL)
	}
	if c.applicationID != "app-1" || c.privacyKey != "secret" {
		t.Errorf("expected application scope parsed, got app=%q key=%q", c.applicationID, c.privacyKey)
	}
	if c.WaitForAgentsHint() != 3 {
		t.Errorf("expected waitForAgents hint 3, got %d", c.WaitForAgentsHint())
	}
}

func TestNewClientPlainURLHasNoScope(t *testing.T) {
	c := NewClient("http://localhost:8080")
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("expected base url unchanged, got %q", c.baseURL)
	}
	if c.WaitForAgentsHint() != 0 {
		t.Errorf("expected no hint, got %d", c.WaitForAgentsHint())
	}
}

func TestOpenSessionSendsApplicationScope(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"sessionId": "sess-1"})
	}))
	defer server.Close()

	c := NewClient(server.URL + "?applicationId=app-1&privacyKey=secret")
	if _, err := c.OpenSession(context.Background(), "agent-1", "worker", nil); err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}

	if got["applicationId"] != "app-1" || got["privacyKey"] != "secret" {
		t.Errorf("expected application scope in request body, got %+v", got)
	}
}

func TestErrorBodyMapsToAppErrorCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"code": apperrors.ErrCodeThreadClosed, "message": "thread 't1' is closed"},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL)
	_, err := c.SendMessage(context.Background(), "t1", "alice", "hi", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %T: %v", err, err)
	}
	if appErr.Code != apperrors.ErrCodeThreadClosed {
		t.Errorf("expected code %q, got %q", apperrors.ErrCodeThreadClosed, appErr.Code)
	}
}

func TestSendMessageRetriesTransientFailureWithStableCorrelationID(t *testing.T) {
	var attempts int32
	correlations := make(map[string]bool)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlations[r.Header.Get(CorrelationIDHeader)] = true
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"messageId": "m-1"})
	}))
	defer server.Close()

	c := NewClient(server.URL)
	messageID, err := c.SendMessage(context.Background(), "t1", "alice", "hi", nil)
	if err != nil {
		t.Fatalf("expected the retried send to succeed, got %v", err)
	}
	if messageID != "m-1" {
		t.Errorf("expected message id m-1, got %q", messageID)
	}
	if atomic.LoadInt32(&attempts) != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", attempts)
	}
	if len(correlations) != 1 {
		t.Errorf("expected one correlation id reused across attempts, saw %d distinct", len(correlations))
	}
}

func TestSendMessageDoesNotRetryValidationFailure(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"code": apperrors.ErrCodeMentionNotParticipant, "message": "nope"},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL)
	if _, err := c.SendMessage(context.Background(), "t1", "alice", "hi @ghost", []string{"ghost"}); err == nil {
		t.Fatal("expected the validation failure to surface")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("expected a single attempt for a permanent error, got %d", attempts)
	}
}

func TestWaitReturnsDeliveries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("timeoutMs") != "500" {
			t.Errorf("expected timeoutMs=500, got %q", r.URL.Query().Get("timeoutMs"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"deliveries": []map[string]string{{"threadId": "t1", "messageId": "m1", "senderId": "alice"}},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL)
	batch, err := c.Wait(context.Background(), "bob", 500)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if len(batch) != 1 || batch[0].MessageID != "m1" {
		t.Errorf("unexpected batch: %+v", batch)
	}
}
