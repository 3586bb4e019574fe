// Package hub wires the Session Registry, Thread Store, Mention Router,
// Wait Coordinator, and idempotency Window into the Tool Surface: the
// single set of operations both the HTTP API in internal/hub/api and any
// in-process caller invoke. Wiring order: construct leaf dependencies
// first, break the router<->wait cycle with SetNotifier, then build the
// registry's onEvict closure over both.
package hub

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kandev/coordhub/internal/common/config"
	apperrors "github.com/kandev/coordhub/internal/common/errors"
	"github.com/kandev/coordhub/internal/common/logger"
	"github.com/kandev/coordhub/internal/events/bus"
	"github.com/kandev/coordhub/internal/hub/dedup"
	"github.com/kandev/coordhub/internal/hub/mention"
	"github.com/kandev/coordhub/internal/hub/model"
	"github.com/kandev/coordhub/internal/hub/registry"
	"github.com/kandev/coordhub/internal/hub/threadstore"
	"github.com/kandev/coordhub/internal/hub/wait"
)

// Hub is the Coordination Hub: the process-wide set of collaborators
// backing every Tool-Surface operation.
type Hub struct {
	cfg *config.HubConfig
	log *logger.Logger

	registry *registry.Registry
	threads  *threadstore.Store
	router   *mention.Router
	wait     *wait.Coordinator
	dedupe   *dedup.Window
	eventBus bus.EventBus
}

// New builds a Hub from cfg, wiring every collaborator together. Start
// must be called before the Hub serves traffic; Stop releases background
// goroutines.
func New(cfg *config.HubConfig, log *logger.Logger, eventBus bus.EventBus) *Hub {
	router := mention.New(cfg.Buffer.SoftCap, log)
	waitCoord := wait.New(router, time.Duration(cfg.Wait.MaxTimeoutMs)*time.Millisecond, cfg.Wait.DrainCap, log)
	router.SetNotifier(waitCoord)

	graceWindow := time.Duration(cfg.Wait.ReconnectGraceMs) * time.Millisecond
	onEvict := func(agentID string) {
		router.Discard(agentID)
		waitCoord.Cancel(agentID)
	}
	reg := registry.New(eventBus, log, graceWindow, onEvict)

	threads := threadstore.New(router, reg, 0, log)
	dedupe := dedup.New(30 * time.Second)

	return &Hub{
		cfg:      cfg,
		log:      log.WithFields(),
		registry: reg,
		threads:  threads,
		router:   router,
		wait:     waitCoord,
		dedupe:   dedupe,
		eventBus: eventBus,
	}
}

// Start begins the registry's background eviction loop.
func (h *Hub) Start(ctx context.Context) {
	h.registry.Start(ctx)
}

// Stop halts background goroutines.
func (h *Hub) Stop() {
	h.registry.Stop()
}

// Authorize checks privacyKey against the Hub's configured application
// key. An empty configured key disables the check entirely.
func (h *Hub) Authorize(privacyKey string) error {
	if h.cfg.Auth.ApplicationKey == "" {
		return nil
	}
	if privacyKey != h.cfg.Auth.ApplicationKey {
		return apperrors.Unauthorized("invalid application key")
	}
	return nil
}

// OpenSession implements openSession(applicationId, agentId, description).
// downstream is the caller's push-channel handle (an SSE or
// websocket client satisfying registry.Downstream); sessionID is a fresh
// identifier minted by the caller's transport layer.
func (h *Hub) OpenSession(agentID, applicationID, description string, capabilities []string, sessionID string, downstream registry.Downstream) error {
	if agentID == "" {
		return apperrors.BadRequest("agentId is required")
	}
	return h.registry.OpenSession(agentID, applicationID, description, capabilities, sessionID, downstream)
}

// MarkDisconnected records an unexpected downstream break for agentID,
// starting its reconnect grace window.
func (h *Hub) MarkDisconnected(agentID string) {
	h.registry.MarkDisconnected(agentID)
}

// AttachDebugDownstream swaps agentID's live downstream for downstream,
// used by the optional websocket debug transport
// (internal/hub/transport/wsfallback.go) to attach onto an already
// registered session without re-running full openSession validation.
func (h *Hub) AttachDebugDownstream(agentID, sessionID string, downstream registry.Downstream) error {
	return h.registry.AttachDownstream(agentID, sessionID, downstream)
}

// CloseSession implements closeSession(agentId): immediate
// deregistration, buffer discard, and cancellation of any parked wait.
func (h *Hub) CloseSession(agentID string) {
	h.registry.CloseSession(agentID)
}

// Downstream returns agentID's live push-channel handle, if connected.
func (h *Hub) Downstream(agentID string) (registry.Downstream, bool) {
	return h.registry.Downstream(agentID)
}

// IsRegistered reports whether agentID currently has a registry entry.
func (h *Hub) IsRegistered(agentID string) bool {
	return h.registry.IsRegistered(agentID)
}

// ListAgents implements listAgents(includeDetails). callerAgentID, when
// non-empty, has its activity touched as a side effect -- this is the
// keepalive codepath.
func (h *Hub) ListAgents(callerAgentID string, includeDetails bool) []model.AgentSummary {
	return h.registry.ListAgents(callerAgentID, includeDetails, h.router.Depth)
}

// CreateThread implements createThread(name, participants).
// correlationID, if supplied, makes the call idempotent under retry: a
// second call with the same id returns the original thread id without
// re-validating participants.
func (h *Hub) CreateThread(createdBy, name string, participants []string, correlationID string) (string, error) {
	if cached, err, ok := h.dedupe.Lookup(correlationID); ok {
		if err != nil {
			return "", err
		}
		return cached.(string), nil
	}

	threadID := uuid.New().String()
	t, err := h.threads.CreateThread(threadID, name, createdBy, participants)
	if err != nil {
		h.dedupe.Remember(correlationID, "", err)
		return "", err
	}

	h.registry.Touch(createdBy)
	h.publishThreadEvent(bus.EventThreadCreated, t.ThreadID)
	h.dedupe.Remember(correlationID, t.ThreadID, nil)
	return t.ThreadID, nil
}

// AddParticipant implements addParticipant(threadId, agentId).
func (h *Hub) AddParticipant(threadID, requester, agentID string) error {
	if err := h.threads.AddParticipant(threadID, requester, agentID); err != nil {
		return err
	}
	h.registry.Touch(requester)
	return nil
}

// RemoveParticipant implements removeParticipant(threadId, agentId).
// Removing the last remaining participant closes the thread.
func (h *Hub) RemoveParticipant(threadID, requester, agentID string) error {
	if err := h.threads.RemoveParticipant(threadID, requester, agentID); err != nil {
		return err
	}
	h.registry.Touch(requester)
	return nil
}

// CloseThread implements closeThread(threadId): idempotent, permitted to
// any current participant.
func (h *Hub) CloseThread(threadID, requester string) error {
	t, ok := h.threads.Get(threadID)
	if !ok {
		return apperrors.NotFound("thread", threadID)
	}
	if t.Closed {
		return nil
	}
	if !t.HasParticipant(requester) {
		return apperrors.NotAParticipant(threadID, requester)
	}
	if err := h.threads.CloseThread(threadID); err != nil {
		return err
	}
	h.registry.Touch(requester)
	h.publishThreadEvent(bus.EventThreadClosed, threadID)
	return nil
}

// SendMessage implements sendMessage(threadId, body, mentions). When
// mentions is empty, it is parsed from body at post time; an explicit
// mentions argument always takes precedence. correlationID makes a
// retried send idempotent, returning the original messageId rather than
// posting twice.
func (h *Hub) SendMessage(threadID, senderID, body string, mentions []string, correlationID string) (string, error) {
	if cached, err, ok := h.dedupe.Lookup(correlationID); ok {
		if err != nil {
			return "", err
		}
		return cached.(string), nil
	}

	if len(mentions) == 0 {
		mentions = mention.ParseBody(body)
	}

	messageID := uuid.New().String()
	msg, err := h.threads.SendMessage(threadID, messageID, senderID, body, mentions)
	if err != nil {
		h.dedupe.Remember(correlationID, "", err)
		return "", err
	}

	h.registry.Touch(senderID)
	h.dedupe.Remember(correlationID, msg.MessageID, nil)
	return msg.MessageID, nil
}

// Wait implements waitForMentions(agentId, timeoutMs).
func (h *Hub) Wait(ctx context.Context, agentID string, timeoutMs int) ([]model.MentionDelivery, error) {
	if !h.registry.IsRegistered(agentID) {
		return nil, apperrors.UnknownAgent(agentID)
	}
	batch, err := h.wait.Wait(ctx, agentID, timeoutMs)
	if err == nil {
		h.registry.Touch(agentID)
	}
	return batch, err
}

func (h *Hub) publishThreadEvent(eventType, threadID string) {
	if h.eventBus == nil {
		return
	}
	evt := bus.NewEvent(eventType, "thread-store", map[string]interface{}{"thread_id": threadID})
	if err := h.eventBus.Publish(context.Background(), eventType, evt); err != nil {
		h.log.Warn("failed to publish thread event", zap.String("event_type", eventType), zap.Error(err))
	}
}
