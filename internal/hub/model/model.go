// Package model defines the data model of the coordination fabric: agents,
// sessions, threads, messages, and mention deliveries. Records are held by
// the registries in internal/hub/{registry,threadstore,mention}; these
// types hold opaque ids to each other rather than back-references, so the
// agent<->session<->thread cycle never has to be broken by hand.
package model

import "time"

// AgentSummary is the read-only view of a registered agent returned by
// listAgents.
type AgentSummary struct {
	AgentID      string    `json:"agentId"`
	Description  string    `json:"description"`
	Capabilities []string  `json:"capabilities"`
	RegisteredAt time.Time `json:"registeredAt"`

	// Populated only when includeDetails=true.
	LastActivityAt   *time.Time `json:"lastActivityAt,omitempty"`
	MentionBufferLen *int       `json:"mentionBufferDepth,omitempty"`
	DroppedMentions  *int64     `json:"droppedMentions,omitempty"`
}

// Thread is a named, participant-scoped, append-only sequence of messages.
type Thread struct {
	ThreadID     string
	Name         string
	CreatedBy    string
	Participants map[string]struct{}
	Closed       bool
	Log          []*Message
}

// HasParticipant reports whether agentID is currently a thread participant.
func (t *Thread) HasParticipant(agentID string) bool {
	_, ok := t.Participants[agentID]
	return ok
}

// Message is an immutable, appended record in a thread's log.
type Message struct {
	MessageID string
	ThreadID  string
	SenderID  string
	Body      string
	Mentions  []string
	PostedAt  time.Time
}

// MentionDelivery is a single addressed-work record handed to the
// mentioned agent via waitForMentions.
type MentionDelivery struct {
	TargetAgentID string    `json:"targetAgentId"`
	ThreadID      string    `json:"threadId"`
	MessageID     string    `json:"messageId"`
	SenderID      string    `json:"senderId"`
	Body          string    `json:"body"`
	PostedAt      time.Time `json:"postedAt"`
}
