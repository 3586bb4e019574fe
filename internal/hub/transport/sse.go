// Package transport implements the Hub's Transport Layer: one durable
// server-push channel per agent session carrying heartbeat and
// sessionClosed frames (mention deliveries are returned by the
// waitForMentions long-poll in internal/hub/api, not pushed here), plus
// the bounded-queue backpressure policy. The pump is a ticker-driven heartbeat + select
// loop over an outbound channel writing to an SSE response; client->
// server traffic goes over separate POST handlers in internal/hub/api,
// since SSE carries no inbound frames.
package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/coordhub/internal/common/logger"
	"github.com/kandev/coordhub/pkg/wire"
)

const sendQueueCap = 256

// SSEClient is the downstream push channel for one agent session. It
// satisfies internal/hub/registry.Downstream.
type SSEClient struct {
	agentID   string
	sessionID string

	send      chan *wire.Frame
	closeCh   chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	closeReason string

	logger *logger.Logger
}

// NewSSEClient creates a push channel for agentID/sessionID.
func NewSSEClient(agentID, sessionID string, log *logger.Logger) *SSEClient {
	return &SSEClient{
		agentID:   agentID,
		sessionID: sessionID,
		send:      make(chan *wire.Frame, sendQueueCap),
		closeCh:   make(chan struct{}),
		logger: log.WithFields(
			zap.String("component", "sse-transport"),
			zap.String("agent_id", agentID),
			zap.String("session_id", sessionID),
		),
	}
}

// Push enqueues frame for delivery. It never blocks: if the outbound
// queue is saturated, the session is the slowest session and the
// backpressure policy terminates it -- Push closes the client with
// reason "Backpressure" and reports failure to the caller.
func (c *SSEClient) Push(frame *wire.Frame) bool {
	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn("push channel saturated, dropping session")
		c.Close("Backpressure")
		return false
	}
}

// Close terminates the session's push channel with reason. Idempotent.
func (c *SSEClient) Close(reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeReason = reason
		c.mu.Unlock()
		close(c.closeCh)
	})
}

// Reason returns the reason the channel was closed, if it has been.
func (c *SSEClient) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeReason
}

// Serve writes frames to w as an SSE stream until the request context is
// cancelled (client disconnected) or Close is called (server-initiated
// teardown, e.g. displacement or eviction). heartbeatInterval should be
// well under the deployment's idle-prune window (10-15s).
func (c *SSEClient) Serve(w http.ResponseWriter, r *http.Request, heartbeatInterval time.Duration) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("transport: response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return nil
			}
			if err := writeFrame(w, frame); err != nil {
				return err
			}
			flusher.Flush()

		case <-ticker.C:
			hb, _ := wire.NewNotification(wire.KindHeartbeat, struct{}{})
			if err := writeFrame(w, hb); err != nil {
				return err
			}
			flusher.Flush()

		case <-c.closeCh:
			reason := c.Reason()
			closed, _ := wire.NewNotification(wire.KindSessionClosed, map[string]string{"reason": reason})
			_ = writeFrame(w, closed)
			flusher.Flush()
			return nil

		case <-r.Context().Done():
			c.logger.Debug("client disconnected")
			return r.Context().Err()
		}
	}
}

func writeFrame(w http.ResponseWriter, frame *wire.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("transport: marshal frame: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
