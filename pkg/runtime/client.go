// Package runtime implements the Client Runtime: the library an agent
// process links to reach the Coordination Hub's Tool Surface, maintain
// its session, and run the keepalive/dispatch loops. Transient HTTP
// failures are retried with cenkalti/backoff/v5 under a stable
// correlation id so a retried mutation is deduplicated Hub-side.
package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	apperrors "github.com/kandev/coordhub/internal/common/errors"
	"github.com/kandev/coordhub/internal/hub/model"
)

// CorrelationIDHeader names the idempotency-key header the Hub's API
// reads for retried createThread/sendMessage calls.
const CorrelationIDHeader = "X-Correlation-Id"

// Client binds the Tool Surface operations to the Hub's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries uint

	applicationID string
	privacyKey    string
	waitForAgents int
}

// NewClient creates a Client. baseURL is the Hub's HTTP origin, e.g.
// "http://localhost:8080". The URL may carry the identity-handshake
// query parameters (applicationId, privacyKey, waitForAgents) so the
// whole coordination endpoint can be pasted into configuration as one
// string; they are stripped from the origin and sent with openSession
// instead. The underlying http.Client carries no fixed Timeout:
// waitForMentions may legitimately run up to the Hub's maximum wait
// bound (60s by default), so every call's deadline is governed by its
// own context instead of a client-wide cap that would truncate long
// waits.
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		maxRetries: 3,
	}
	if u, err := url.Parse(baseURL); err == nil && u.RawQuery != "" {
		q := u.Query()
		c.applicationID = q.Get("applicationId")
		c.privacyKey = q.Get("privacyKey")
		c.waitForAgents, _ = strconv.Atoi(q.Get("waitForAgents"))
		u.RawQuery = ""
		u.Fragment = ""
		c.baseURL = strings.TrimSuffix(u.String(), "/")
	}
	return c
}

// WaitForAgentsHint returns the advisory minimum peer count carried on
// the coordination URL, or 0 if none was given. The runtime may use it
// to hold off dispatch until enough peers are registered.
func (c *Client) WaitForAgentsHint() int {
	return c.waitForAgents
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// defaultRequestTimeout bounds ordinary (non-wait) Tool-Surface calls
// when the caller hasn't already set its own deadline. waitForMentions
// sets a deadline of its own sized to timeoutMs before reaching do, so
// it is unaffected by this default.
const defaultRequestTimeout = 15 * time.Second

// do issues one HTTP request and decodes its JSON response into out (if
// non-nil). A non-2xx response is translated into the matching AppError
// taxonomy kind where the Hub's error code is recognized.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, headers map[string]string) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultRequestTimeout)
		defer cancel()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("runtime: marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("runtime: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.TransportError("request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.TransportError("failed to read response body", err)
	}

	if resp.StatusCode >= 300 {
		var eb errorBody
		if jsonErr := json.Unmarshal(data, &eb); jsonErr == nil && eb.Error.Code != "" {
			return &apperrors.AppError{Code: eb.Error.Code, Message: eb.Error.Message, HTTPStatus: resp.StatusCode}
		}
		return apperrors.TransportError(fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("runtime: decode response: %w", err)
		}
	}
	return nil
}

// isRetryable reports whether err represents a transient failure worth
// retrying: a transport-level error, never a rejected Tool-Surface call
// (ThreadClosed, NotAParticipant, etc. are permanent for the given args).
func isRetryable(err error) bool {
	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		return true
	}
	return appErr.Code == apperrors.ErrCodeTransportError || appErr.Code == apperrors.ErrCodeServiceUnavailable
}

// withRetry runs op, retrying transient failures with an exponential
// backoff. A single correlationID is reused across every attempt so a
// request that actually landed on the Hub before a response was lost is
// answered from the idempotency window instead of applied twice.
func withRetry[T any](ctx context.Context, maxRetries uint, op func() (T, error)) (T, error) {
	wrapped := func() (T, error) {
		v, err := op()
		if err != nil && isRetryable(err) {
			return v, err
		}
		if err != nil {
			return v, backoff.Permanent(err)
		}
		return v, nil
	}
	return backoff.Retry(ctx, wrapped, backoff.WithMaxTries(maxRetries+1), backoff.WithBackOff(backoff.NewExponentialBackOff()))
}

// OpenSession implements openSession(agentId, description, capabilities).
// It returns the Hub-assigned session id; the SSE event stream itself
// is addressed by agentID (see EventsURL).
func (c *Client) OpenSession(ctx context.Context, agentID, description string, capabilities []string) (string, error) {
	reqBody := map[string]interface{}{
		"agentId":       agentID,
		"applicationId": c.applicationID,
		"privacyKey":    c.privacyKey,
		"description":   description,
		"capabilities":  capabilities,
		"waitForAgents": c.waitForAgents,
	}
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", reqBody, &resp, nil); err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

// EventsURL returns the SSE endpoint to stream for agentID.
func (c *Client) EventsURL(agentID string) string {
	return c.baseURL + "/api/v1/sessions/" + agentID + "/events"
}

// CloseSession implements closeSession(agentId).
func (c *Client) CloseSession(ctx context.Context, agentID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/sessions/"+agentID, nil, nil, nil)
}

// ListAgents implements listAgents(includeDetails). callerAgentID, when
// non-empty, counts as keepalive activity for that agent.
func (c *Client) ListAgents(ctx context.Context, callerAgentID string, includeDetails bool) ([]model.AgentSummary, error) {
	path := fmt.Sprintf("/api/v1/agents?includeDetails=%s&callerAgentId=%s", strconv.FormatBool(includeDetails), callerAgentID)
	var resp struct {
		Agents []model.AgentSummary `json:"agents"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, nil); err != nil {
		return nil, err
	}
	return resp.Agents, nil
}

// CreateThread implements createThread(name, participants), retrying
// transient failures under a single correlation id.
func (c *Client) CreateThread(ctx context.Context, createdBy, name string, participants []string) (string, error) {
	correlationID := uuid.New().String()
	reqBody := map[string]interface{}{
		"createdBy":    createdBy,
		"name":         name,
		"participants": participants,
	}
	return withRetry(ctx, c.maxRetries, func() (string, error) {
		var resp struct {
			ThreadID string `json:"threadId"`
		}
		err := c.do(ctx, http.MethodPost, "/api/v1/threads", reqBody, &resp, map[string]string{CorrelationIDHeader: correlationID})
		return resp.ThreadID, err
	})
}

// AddParticipant implements addParticipant(threadId, agentId).
func (c *Client) AddParticipant(ctx context.Context, threadID, requester, agentID string) error {
	reqBody := map[string]string{"requester": requester, "agentId": agentID}
	return c.doWithBody(ctx, http.MethodPost, "/api/v1/threads/"+threadID+"/participants", reqBody)
}

// RemoveParticipant implements removeParticipant(threadId, agentId).
func (c *Client) RemoveParticipant(ctx context.Context, threadID, requester, agentID string) error {
	reqBody := map[string]string{"requester": requester, "agentId": agentID}
	return c.doWithBody(ctx, http.MethodDelete, "/api/v1/threads/"+threadID+"/participants", reqBody)
}

// CloseThread implements closeThread(threadId). Idempotent.
func (c *Client) CloseThread(ctx context.Context, threadID, requester string) error {
	reqBody := map[string]string{"requester": requester}
	return c.do(ctx, http.MethodPost, "/api/v1/threads/"+threadID+"/close", reqBody, nil, nil)
}

// SendMessage implements sendMessage(threadId, body, mentions), retrying
// transient failures under a single correlation id.
func (c *Client) SendMessage(ctx context.Context, threadID, senderID, body string, mentions []string) (string, error) {
	correlationID := uuid.New().String()
	reqBody := map[string]interface{}{
		"senderId": senderID,
		"body":     body,
		"mentions": mentions,
	}
	return withRetry(ctx, c.maxRetries, func() (string, error) {
		var resp struct {
			MessageID string `json:"messageId"`
		}
		err := c.do(ctx, http.MethodPost, "/api/v1/threads/"+threadID+"/messages", reqBody, &resp, map[string]string{CorrelationIDHeader: correlationID})
		return resp.MessageID, err
	})
}

// Wait implements waitForMentions(agentId, timeoutMs).
// It is not retried: a retried long-poll after a dropped connection
// would simply park again, which is the correct behavior already, not a
// failure to paper over.
func (c *Client) Wait(ctx context.Context, agentID string, timeoutMs int) ([]model.MentionDelivery, error) {
	path := fmt.Sprintf("/api/v1/agents/%s/wait?timeoutMs=%d", agentID, timeoutMs)

	waitCtx := ctx
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) < time.Duration(timeoutMs)*time.Millisecond+5*time.Second {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond+5*time.Second)
		defer cancel()
	}

	var resp struct {
		Deliveries []model.MentionDelivery `json:"deliveries"`
	}
	if err := c.do(waitCtx, http.MethodGet, path, nil, &resp, nil); err != nil {
		return nil, err
	}
	return resp.Deliveries, nil
}

func (c *Client) doWithBody(ctx context.Context, method, path string, body interface{}) error {
	return c.do(ctx, method, path, body, nil, nil)
}
