// Package connection implements the Client Runtime's Connection Manager:
// it opens a session, consumes the Hub's SSE push stream, and reconnects
// with backoff on any break, always re-registering through openSession
// (which the Hub treats as a reattach or a fresh registration depending
// on whether the grace window has elapsed). The exponential backoff uses
// cenkalti/backoff/v5 rather than hand-rolled backoff math.
package connection

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/kandev/coordhub/internal/common/logger"
	"github.com/kandev/coordhub/pkg/runtime"
	"github.com/kandev/coordhub/pkg/wire"
)

// Handler receives frames pushed over the SSE stream.
type Handler interface {
	HandleFrame(frame *wire.Frame)
}

// Manager owns the lifecycle of one agent's connection to the Hub:
// registering, streaming, and transparently reconnecting.
type Manager struct {
	client       *runtime.Client
	agentID      string
	description  string
	capabilities []string
	handler      Handler
	logger       *logger.Logger
	maxBackoff   time.Duration

	httpClient *http.Client
}

// New creates a Manager for agentID. maxBackoff caps the exponential
// reconnect backoff (1s, 2s, 4s, ...); if zero, it defaults to 16s.
func New(client *runtime.Client, agentID, description string, capabilities []string, handler Handler, log *logger.Logger, maxBackoff time.Duration) *Manager {
	if maxBackoff <= 0 {
		maxBackoff = 16 * time.Second
	}
	return &Manager{
		client:       client,
		agentID:      agentID,
		description:  description,
		capabilities: capabilities,
		handler:      handler,
		logger:       log.WithFields(zap.String("component", "connection-manager"), zap.String("agent_id", agentID)),
		maxBackoff:   maxBackoff,
		httpClient:   &http.Client{}, // no timeout: this is a long-lived stream
	}
}

// Run opens a session and streams events until ctx is cancelled,
// reconnecting with exponential backoff on any break. Blocks until ctx
// is done.
func (m *Manager) Run(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = m.maxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0

	for {
		if ctx.Err() != nil {
			return
		}

		if err := m.connectAndStream(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := b.NextBackOff()
			m.logger.Warn("connection lost, reconnecting", zap.Error(err), zap.Duration("backoff", delay))
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		b.Reset()
	}
}

// connectAndStream performs one openSession + SSE-consume cycle. It
// returns when the stream ends, whether cleanly (ctx cancelled) or due
// to a transport failure.
func (m *Manager) connectAndStream(ctx context.Context) error {
	if _, err := m.client.OpenSession(ctx, m.agentID, m.description, m.capabilities); err != nil {
		return fmt.Errorf("connection: openSession failed: %w", err)
	}
	m.logger.Info("session opened")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.client.EventsURL(m.agentID), nil)
	if err != nil {
		return fmt.Errorf("connection: build events request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connection: events stream open failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("connection: events stream returned status %d", resp.StatusCode)
	}

	return m.consume(resp.Body)
}

func (m *Manager) consume(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame wire.Frame
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
			m.logger.Warn("failed to decode sse frame", zap.Error(err))
			continue
		}
		if frame.Kind == wire.KindSessionClosed {
			return fmt.Errorf("connection: session closed by hub")
		}
		if m.handler != nil {
			m.handler.HandleFrame(&frame)
		}
	}
	return scanner.Err()
}
