// Package registry implements the Hub's Session Registry: the map of
// live sessions to agents, displacement semantics, and the reconnect
// grace window. A background ticker sweeps disconnected agents whose
// grace window has elapsed.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/kandev/coordhub/internal/common/errors"
	"github.com/kandev/coordhub/internal/common/logger"
	"github.com/kandev/coordhub/internal/events/bus"
	"github.com/kandev/coordhub/internal/hub/model"
)

// Downstream is the push-channel handle the registry holds on behalf of
// a live session so it can be torn down on displacement or eviction
// without the registry knowing anything about SSE/websocket framing.
type Downstream interface {
	Close(reason string)
}

type agentRecord struct {
	AgentID       string
	ApplicationID string
	Description   string
	Capabilities  []string
	SessionID     string
	RegisteredAt  time.Time
	LastActivity  time.Time
	Downstream    Downstream

	connected      bool
	disconnectedAt time.Time
}

// EvictFunc is called once an agent is fully evicted (registry entry and
// mention buffer deleted). Hub wires this to the Mention Router so the
// buffer is discarded in lockstep with the registry entry.
type EvictFunc func(agentID string)

// Registry is the Hub's session registry: a single coordinating value
// guarding all agent/session bookkeeping behind one lock.
type Registry struct {
	mu          sync.RWMutex
	agents      map[string]*agentRecord
	graceWindow time.Duration

	eventBus bus.EventBus
	logger   *logger.Logger
	onEvict  EvictFunc

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Registry. graceWindow is the reconnect grace window
// (default 30s); onEvict is invoked for every agent fully
// evicted, whether by explicit closeSession or by grace-window timeout.
func New(eventBus bus.EventBus, log *logger.Logger, graceWindow time.Duration, onEvict EvictFunc) *Registry {
	return &Registry{
		agents:      make(map[string]*agentRecord),
		graceWindow: graceWindow,
		eventBus:    eventBus,
		logger:      log.WithFields(zap.String("component", "session-registry")),
		onEvict:     onEvict,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the background eviction loop.
func (r *Registry) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.evictionLoop(ctx)
}

// Stop halts the eviction loop and waits for it to exit.
func (r *Registry) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

// OpenSession establishes or displaces a session for agentID.
// If the agent currently has a live (connected) session, the old one is
// closed with reason "Displaced" and the new one installed. If the agent
// is within its reconnect grace window (disconnected but not yet
// evicted), the existing mention-buffer continuity is preserved and this
// call is treated as a reattach rather than a fresh registration.
func (r *Registry) OpenSession(agentID, applicationID, description string, capabilities []string, sessionID string, downstream Downstream) error {
	if agentID == "" {
		return fmt.Errorf("agentId is required")
	}

	r.mu.Lock()
	existing, had := r.agents[agentID]
	now := time.Now().UTC()

	if had && existing.connected {
		r.logger.Info("displacing existing session",
			zap.String("agent_id", agentID), zap.String("old_session_id", existing.SessionID))
		old := existing.Downstream
		r.mu.Unlock()
		if old != nil {
			old.Close("Displaced")
		}
		r.publish(bus.EventAgentDisplaced, agentID, sessionID)
		r.mu.Lock()
	}

	registeredAt := now
	if had {
		registeredAt = existing.RegisteredAt // reattach/displacement keeps original registration time
	}

	r.agents[agentID] = &agentRecord{
		AgentID:       agentID,
		ApplicationID: applicationID,
		Description:   description,
		Capabilities:  capabilities,
		SessionID:     sessionID,
		RegisteredAt:  registeredAt,
		LastActivity:  now,
		Downstream:    downstream,
		connected:     true,
	}
	r.mu.Unlock()

	r.logger.Info("session opened", zap.String("agent_id", agentID), zap.String("session_id", sessionID))
	r.publish(bus.EventAgentRegistered, agentID, sessionID)
	return nil
}

// AttachDownstream swaps the live downstream handle for an already
// registered agentID, closing its previous handle (if any) with reason
// "Displaced". Unlike OpenSession, it does not create a new agent record
// or reset capabilities/description: it is for a session reattaching
// over a different transport (e.g. the debug websocket fallback),
// not for a competing registration. Returns UnknownAgent if agentID has
// no registry entry at all.
func (r *Registry) AttachDownstream(agentID, sessionID string, downstream Downstream) error {
	r.mu.Lock()
	rec, ok := r.agents[agentID]
	if !ok {
		r.mu.Unlock()
		return apperrors.UnknownAgent(agentID)
	}
	old := rec.Downstream
	rec.Downstream = downstream
	rec.SessionID = sessionID
	rec.connected = true
	rec.LastActivity = time.Now().UTC()
	r.mu.Unlock()

	if old != nil {
		old.Close("Displaced")
	}
	return nil
}

// MarkDisconnected records that agentID's downstream channel broke
// without an explicit closeSession call. The agent remains registered
// until the reconnect grace window elapses.
func (r *Registry) MarkDisconnected(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.agents[agentID]
	if !ok || !rec.connected {
		return
	}
	rec.connected = false
	rec.disconnectedAt = time.Now().UTC()
	rec.Downstream = nil
	r.logger.Debug("session disconnected, awaiting reconnect", zap.String("agent_id", agentID))
}

// CloseSession removes agentID's registration immediately. Idempotent.
func (r *Registry) CloseSession(agentID string) {
	r.mu.Lock()
	_, ok := r.agents[agentID]
	if ok {
		delete(r.agents, agentID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	r.logger.Info("session closed", zap.String("agent_id", agentID))
	if r.onEvict != nil {
		r.onEvict(agentID)
	}
}

// Touch records activity for agentID, resetting its eviction timer.
// listAgents counts as activity; Touch is also called on other
// Tool-Surface operations that take agentID as the acting party.
func (r *Registry) Touch(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.agents[agentID]; ok {
		rec.LastActivity = time.Now().UTC()
	}
}

// IsRegistered reports whether agentID currently has a registry entry
// (connected or within its grace window).
func (r *Registry) IsRegistered(agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[agentID]
	return ok
}

// Downstream returns the live downstream handle for agentID, if connected.
func (r *Registry) Downstream(agentID string) (Downstream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.agents[agentID]
	if !ok || !rec.connected {
		return nil, false
	}
	return rec.Downstream, true
}

// ListAgents returns a snapshot of all registered agents. callerAgentID,
// if non-empty and currently registered, has its activity touched as a
// side effect (this is the keepalive-ping codepath). detailsFn supplies
// the mention-buffer depth/drop-count for detail mode without the
// registry depending on the mention package.
func (r *Registry) ListAgents(callerAgentID string, includeDetails bool, detailsFn func(agentID string) (depth int, dropped int64)) []model.AgentSummary {
	r.mu.Lock()
	if callerAgentID != "" {
		if rec, ok := r.agents[callerAgentID]; ok {
			rec.LastActivity = time.Now().UTC()
		}
	}

	out := make([]model.AgentSummary, 0, len(r.agents))
	for _, rec := range r.agents {
		s := model.AgentSummary{
			AgentID:      rec.AgentID,
			Description:  rec.Description,
			Capabilities: rec.Capabilities,
			RegisteredAt: rec.RegisteredAt,
		}
		if includeDetails {
			lastActivity := rec.LastActivity
			s.LastActivityAt = &lastActivity
		}
		out = append(out, s)
	}
	r.mu.Unlock()

	if includeDetails && detailsFn != nil {
		for i := range out {
			depth, dropped := detailsFn(out[i].AgentID)
			out[i].MentionBufferLen = &depth
			out[i].DroppedMentions = &dropped
		}
	}
	return out
}

func (r *Registry) publish(eventType, agentID, sessionID string) {
	if r.eventBus == nil {
		return
	}
	evt := bus.NewEvent(eventType, "session-registry", map[string]interface{}{
		"agent_id":   agentID,
		"session_id": sessionID,
	})
	if err := r.eventBus.Publish(context.Background(), eventType, evt); err != nil {
		r.logger.Warn("failed to publish registry event", zap.String("event_type", eventType), zap.Error(err))
	}
}

// evictionLoop periodically sweeps disconnected agents past their grace
// window and removes them.
func (r *Registry) evictionLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Registry) sweep() {
	now := time.Now().UTC()

	r.mu.Lock()
	var evicted []string
	for id, rec := range r.agents {
		if rec.connected {
			continue
		}
		since := rec.disconnectedAt
		if rec.LastActivity.After(since) {
			since = rec.LastActivity
		}
		if now.Sub(since) >= r.graceWindow {
			delete(r.agents, id)
			evicted = append(evicted, id)
		}
	}
	r.mu.Unlock()

	for _, id := range evicted {
		r.logger.Info("agent evicted after grace window", zap.String("agent_id", id))
		r.publish(bus.EventAgentEvicted, id, "")
		if r.onEvict != nil {
			r.onEvict(id)
		}
	}
}
