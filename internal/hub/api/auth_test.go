package api

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/kandev/coordhub/internal/common/config"
	"github.com/kandev/coordhub/internal/hub"
)

func newKeyedRouter(key string) *gin.Engine {
	cfg := &config.HubConfig{
		Wait:   config.WaitConfig{MaxTimeoutMs: 5000, DrainCap: 32, ReconnectGraceMs: 50},
		Buffer: config.BufferConfig{SoftCap: 64},
		Auth:   config.AuthConfig{ApplicationKey: key},
	}
	h := hub.New(cfg, newTestLogger(), nil)

	engine := gin.New()
	SetupRoutes(engine, h, newTestLogger())
	return engine
}

func TestOpenSessionRejectsWrongApplicationKey(t *testing.T) {
	engine := newKeyedRouter("secret")

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/sessions", OpenSessionRequest{
		AgentID: "alice", PrivacyKey: "wrong",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a wrong application key, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestOpenSessionAcceptsMatchingApplicationKey(t *testing.T) {
	engine := newKeyedRouter("secret")

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/sessions", OpenSessionRequest{
		AgentID: "alice", PrivacyKey: "secret", ApplicationID: "app-1",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201 with the right key, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestOpenSessionWithoutConfiguredKeyIsOpen(t *testing.T) {
	engine := newKeyedRouter("")

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/sessions", OpenSessionRequest{AgentID: "alice"}, nil)
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201 when no key is configured, got %d: %s", rec.Code, rec.Body.String())
	}
}
