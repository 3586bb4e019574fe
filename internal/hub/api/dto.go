package api

import "github.com/kandev/coordhub/internal/hub/model"

// OpenSessionRequest is the body of POST /api/v1/sessions. ApplicationID
// and PrivacyKey scope the session to an application; WaitForAgents is an
// advisory minimum peer count the agent's runtime may use to decide when
// to begin real work (the Hub records nothing for it).
type OpenSessionRequest struct {
	AgentID       string   `json:"agentId" binding:"required"`
	ApplicationID string   `json:"applicationId"`
	PrivacyKey    string   `json:"privacyKey"`
	Description   string   `json:"description"`
	Capabilities  []string `json:"capabilities"`
	WaitForAgents int      `json:"waitForAgents"`
}

// OpenSessionResponse acknowledges a successful openSession call. The
// client then opens the SSE stream at GET /api/v1/sessions/:agentId/events.
type OpenSessionResponse struct {
	AgentID   string `json:"agentId"`
	SessionID string `json:"sessionId"`
}

// ListAgentsResponse is the body of GET /api/v1/agents.
type ListAgentsResponse struct {
	Agents []model.AgentSummary `json:"agents"`
}

// CreateThreadRequest is the body of POST /api/v1/threads.
type CreateThreadRequest struct {
	Name         string   `json:"name" binding:"required"`
	CreatedBy    string   `json:"createdBy" binding:"required"`
	Participants []string `json:"participants"`
}

// CreateThreadResponse is the response to a successful createThread call.
type CreateThreadResponse struct {
	ThreadID string `json:"threadId"`
}

// ParticipantRequest is the body of POST/DELETE
// /api/v1/threads/:threadId/participants.
type ParticipantRequest struct {
	Requester string `json:"requester" binding:"required"`
	AgentID   string `json:"agentId" binding:"required"`
}

// CloseThreadRequest is the body of POST /api/v1/threads/:threadId/close.
type CloseThreadRequest struct {
	Requester string `json:"requester" binding:"required"`
}

// SendMessageRequest is the body of POST /api/v1/threads/:threadId/messages.
type SendMessageRequest struct {
	SenderID string   `json:"senderId" binding:"required"`
	Body     string   `json:"body" binding:"required"`
	Mentions []string `json:"mentions"`
}

// SendMessageResponse is the response to a successful sendMessage call.
type SendMessageResponse struct {
	MessageID string `json:"messageId"`
}

// WaitResponse is the body of GET
// /api/v1/agents/:agentId/wait?timeoutMs=N.
type WaitResponse struct {
	Deliveries []model.MentionDelivery `json:"deliveries"`
}
