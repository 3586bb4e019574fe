// Package threadstore implements the Thread Store: named,
// participant-scoped message threads with participant validation on
// every operation and routing to the Mention Router on every append.
package threadstore

import (
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/kandev/coordhub/internal/common/errors"
	"github.com/kandev/coordhub/internal/common/logger"
	"github.com/kandev/coordhub/internal/hub/mention"
	"github.com/kandev/coordhub/internal/hub/model"
)

// Router is the subset of mention.Router the Store depends on.
type Router interface {
	Route(msg *model.Message)
}

var _ Router = (*mention.Router)(nil)

// AgentChecker is the subset of the Session Registry the Store depends on
// to reject references to agents with no live registration: all
// participants must be currently registered.
type AgentChecker interface {
	IsRegistered(agentID string) bool
}

// Store holds every thread created since Hub startup. Threads do not
// survive a restart.
type Store struct {
	mu      sync.RWMutex
	threads map[string]*model.Thread
	maxLog  int

	router  Router
	checker AgentChecker
	logger  *logger.Logger
}

// New creates a Store. maxLog bounds the retained message log per thread
// (0 disables trimming).
func New(router Router, checker AgentChecker, maxLog int, log *logger.Logger) *Store {
	return &Store{
		threads: make(map[string]*model.Thread),
		maxLog:  maxLog,
		router:  router,
		checker: checker,
		logger:  log.WithFields(zap.String("component", "thread-store")),
	}
}

// CreateThread creates a new thread named name, owned by createdBy, with
// the given initial participants (createdBy is always included). Every
// named participant, including createdBy, must currently be registered.
func (s *Store) CreateThread(threadID, name, createdBy string, participants []string) (*model.Thread, error) {
	if s.checker != nil {
		if !s.checker.IsRegistered(createdBy) {
			return nil, apperrors.UnknownAgent(createdBy)
		}
		for _, p := range participants {
			if !s.checker.IsRegistered(p) {
				return nil, apperrors.UnknownAgent(p)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.threads[threadID]; exists {
		return s.threads[threadID], nil // dedup layer already guarantees idempotency; tolerate a second call
	}

	participantSet := make(map[string]struct{}, len(participants)+1)
	participantSet[createdBy] = struct{}{}
	for _, p := range participants {
		participantSet[p] = struct{}{}
	}

	t := &model.Thread{
		ThreadID:     threadID,
		Name:         name,
		CreatedBy:    createdBy,
		Participants: participantSet,
	}
	s.threads[threadID] = t
	s.logger.Info("thread created", zap.String("thread_id", threadID), zap.String("name", name))
	return t, nil
}

// AddParticipant adds agentID to threadID's participant set. requester must
// currently be a participant of the thread; agentID must be registered.
func (s *Store) AddParticipant(threadID, requester, agentID string) error {
	if s.checker != nil && !s.checker.IsRegistered(agentID) {
		return apperrors.UnknownAgent(agentID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[threadID]
	if !ok {
		return apperrors.NotFound("thread", threadID)
	}
	if t.Closed {
		return apperrors.ThreadClosed(threadID)
	}
	if !t.HasParticipant(requester) {
		return apperrors.NotAParticipant(threadID, requester)
	}
	t.Participants[agentID] = struct{}{}
	return nil
}

// RemoveParticipant removes agentID from threadID's participant set.
// requester must currently be a participant. Its past messages remain in
// the log; it can no longer send to or be mentioned in the thread.
// Removing the last remaining participant closes the thread.
func (s *Store) RemoveParticipant(threadID, requester, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[threadID]
	if !ok {
		return apperrors.NotFound("thread", threadID)
	}
	if !t.HasParticipant(requester) {
		return apperrors.NotAParticipant(threadID, requester)
	}
	delete(t.Participants, agentID)
	if len(t.Participants) == 0 {
		t.Closed = true
		s.logger.Info("thread closed after last participant removed", zap.String("thread_id", threadID))
	}
	return nil
}

// CloseThread marks threadID closed. Closed threads reject new messages
// and new participants but remain readable.
func (s *Store) CloseThread(threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[threadID]
	if !ok {
		return apperrors.NotFound("thread", threadID)
	}
	t.Closed = true
	s.logger.Info("thread closed", zap.String("thread_id", threadID))
	return nil
}

// SendMessage appends a message from senderID to threadID, mentioning
// mentions, and routes it to the Mention Router. senderID must be a
// participant; every mentioned agent must also be a participant.
func (s *Store) SendMessage(threadID, messageID, senderID, body string, mentions []string) (*model.Message, error) {
	s.mu.Lock()
	t, ok := s.threads[threadID]
	if !ok {
		s.mu.Unlock()
		return nil, apperrors.NotFound("thread", threadID)
	}
	if t.Closed {
		s.mu.Unlock()
		return nil, apperrors.ThreadClosed(threadID)
	}
	if !t.HasParticipant(senderID) {
		s.mu.Unlock()
		return nil, apperrors.NotAParticipant(threadID, senderID)
	}
	for _, m := range mentions {
		if !t.HasParticipant(m) {
			s.mu.Unlock()
			return nil, apperrors.MentionNotParticipant(threadID, m)
		}
	}

	msg := &model.Message{
		MessageID: messageID,
		ThreadID:  threadID,
		SenderID:  senderID,
		Body:      body,
		Mentions:  mentions,
		PostedAt:  time.Now().UTC(),
	}
	t.Log = append(t.Log, msg)
	if s.maxLog > 0 && len(t.Log) > s.maxLog {
		t.Log = t.Log[len(t.Log)-s.maxLog:]
	}
	s.mu.Unlock()

	if s.router != nil {
		s.router.Route(msg)
	}
	return msg, nil
}

// Get returns threadID, if it exists.
func (s *Store) Get(threadID string) (*model.Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[threadID]
	return t, ok
}
