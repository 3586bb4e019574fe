package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/kandev/coordhub/internal/common/errors"
	"github.com/kandev/coordhub/internal/common/logger"
	"github.com/kandev/coordhub/internal/hub"
	"github.com/kandev/coordhub/internal/hub/model"
	"github.com/kandev/coordhub/internal/hub/transport"
)

// CorrelationIDHeader carries the idempotency key for retried
// createThread/sendMessage calls. Absent is fine: the call is simply not
// deduplicated.
const CorrelationIDHeader = "X-Correlation-Id"

// DefaultHeartbeatInterval is how often the SSE stream emits a heartbeat
// frame, well under any reasonable idle-connection-prune window.
const DefaultHeartbeatInterval = 10 * time.Second

// Handler adapts *hub.Hub's Tool Surface to gin.
type Handler struct {
	hub    *hub.Hub
	logger *logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(h *hub.Hub, log *logger.Logger) *Handler {
	return &Handler{hub: h, logger: log.WithFields(zap.String("component", "hub-api"))}
}

// OpenSession handles POST /api/v1/sessions: registers the agent and
// returns the session id the caller must then stream events for via
// StreamEvents.
func (h *Handler) OpenSession(c *gin.Context) {
	var req OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.BadRequest("invalid request body: "+err.Error()))
		return
	}

	if err := h.hub.Authorize(req.PrivacyKey); err != nil {
		respondError(c, err)
		return
	}

	sessionID := c.Request.Header.Get("X-Session-Id")
	if sessionID == "" {
		sessionID = req.AgentID + "-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}

	client := transport.NewSSEClient(req.AgentID, sessionID, h.logger)
	if err := h.hub.OpenSession(req.AgentID, req.ApplicationID, req.Description, req.Capabilities, sessionID, client); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, OpenSessionResponse{AgentID: req.AgentID, SessionID: sessionID})
}

// StreamEvents handles GET /api/v1/sessions/:agentId/events: the Hub's
// Transport Layer push channel for agentId's currently open session.
// Disconnection (context cancellation) marks the agent as awaiting
// reconnect rather than evicting it immediately.
func (h *Handler) StreamEvents(c *gin.Context) {
	agentID := c.Param("agentId")
	downstream, ok := h.hub.Downstream(agentID)
	if !ok {
		respondError(c, apperrors.UnknownAgent(agentID))
		return
	}
	client, ok := downstream.(*transport.SSEClient)
	if !ok {
		respondError(c, apperrors.InternalError("session is not an SSE session", nil))
		return
	}

	if err := client.Serve(c.Writer, c.Request, DefaultHeartbeatInterval); err != nil {
		h.logger.Debug("sse stream ended", zap.String("agent_id", agentID), zap.Error(err))
	}
	h.hub.MarkDisconnected(agentID)
}

// StreamEventsWS handles GET /api/v1/sessions/:agentId/events/ws: an
// optional debug transport that lets an operator attach generic
// websocket tooling to an already
// registered agent's push channel instead of the default SSE stream.
// agentId must already be registered via OpenSession; attaching here
// installs the websocket connection as that session's new downstream,
// which the registry treats the same way it treats any reattach.
func (h *Handler) StreamEventsWS(c *gin.Context) {
	agentID := c.Param("agentId")
	if !h.hub.IsRegistered(agentID) {
		respondError(c, apperrors.UnknownAgent(agentID))
		return
	}

	sessionID := c.Query("sessionId")
	if sessionID == "" {
		sessionID = agentID + "-ws-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}

	client, err := transport.UpgradeWSClient(c.Writer, c.Request, agentID, sessionID, h.logger)
	if err != nil {
		h.logger.Warn("websocket debug upgrade failed", zap.String("agent_id", agentID), zap.Error(err))
		return
	}

	if err := h.hub.AttachDebugDownstream(agentID, sessionID, client); err != nil {
		client.Close("AttachFailed")
		return
	}

	done := make(chan struct{})
	go func() {
		client.WritePump()
		close(done)
	}()
	client.ReadPump(func() {})
	<-done
	h.hub.MarkDisconnected(agentID)
}

// CloseSession handles DELETE /api/v1/sessions/:agentId.
func (h *Handler) CloseSession(c *gin.Context) {
	agentID := c.Param("agentId")
	h.hub.CloseSession(agentID)
	c.Status(http.StatusNoContent)
}

// ListAgents handles GET /api/v1/agents?includeDetails=bool. The caller
// identifies itself via ?callerAgentId= so listAgents can count as
// keepalive activity; unauthenticated/inspection callers may omit it.
func (h *Handler) ListAgents(c *gin.Context) {
	includeDetails, _ := strconv.ParseBool(c.Query("includeDetails"))
	callerAgentID := c.Query("callerAgentId")

	agents := h.hub.ListAgents(callerAgentID, includeDetails)
	c.JSON(http.StatusOK, ListAgentsResponse{Agents: agents})
}

// CreateThread handles POST /api/v1/threads.
func (h *Handler) CreateThread(c *gin.Context) {
	var req CreateThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.BadRequest("invalid request body: "+err.Error()))
		return
	}

	threadID, err := h.hub.CreateThread(req.CreatedBy, req.Name, req.Participants, c.GetHeader(CorrelationIDHeader))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreateThreadResponse{ThreadID: threadID})
}

// AddParticipant handles POST /api/v1/threads/:threadId/participants.
func (h *Handler) AddParticipant(c *gin.Context) {
	threadID := c.Param("threadId")
	var req ParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.BadRequest("invalid request body: "+err.Error()))
		return
	}

	if err := h.hub.AddParticipant(threadID, req.Requester, req.AgentID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveParticipant handles DELETE /api/v1/threads/:threadId/participants.
func (h *Handler) RemoveParticipant(c *gin.Context) {
	threadID := c.Param("threadId")
	var req ParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.BadRequest("invalid request body: "+err.Error()))
		return
	}

	if err := h.hub.RemoveParticipant(threadID, req.Requester, req.AgentID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CloseThread handles POST /api/v1/threads/:threadId/close. Idempotent.
func (h *Handler) CloseThread(c *gin.Context) {
	threadID := c.Param("threadId")
	var req CloseThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.BadRequest("invalid request body: "+err.Error()))
		return
	}

	if err := h.hub.CloseThread(threadID, req.Requester); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SendMessage handles POST /api/v1/threads/:threadId/messages.
func (h *Handler) SendMessage(c *gin.Context) {
	threadID := c.Param("threadId")
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.BadRequest("invalid request body: "+err.Error()))
		return
	}

	messageID, err := h.hub.SendMessage(threadID, req.SenderID, req.Body, req.Mentions, c.GetHeader(CorrelationIDHeader))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, SendMessageResponse{MessageID: messageID})
}

// Wait handles GET /api/v1/agents/:agentId/wait?timeoutMs=N: the
// waitForMentions long-poll. It blocks for up to timeoutMs, or until the
// request is cancelled by the client closing the connection.
func (h *Handler) Wait(c *gin.Context) {
	agentID := c.Param("agentId")

	timeoutMs, err := strconv.Atoi(c.DefaultQuery("timeoutMs", "20000"))
	if err != nil {
		respondError(c, apperrors.BadRequest("timeoutMs must be an integer"))
		return
	}

	deliveries, err := h.hub.Wait(c.Request.Context(), agentID, timeoutMs)
	if err != nil {
		respondError(c, err)
		return
	}
	if deliveries == nil {
		deliveries = []model.MentionDelivery{}
	}
	c.JSON(http.StatusOK, WaitResponse{Deliveries: deliveries})
}

// Health handles GET /healthz.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
