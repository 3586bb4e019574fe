// Command agent runs a Client Runtime process: it registers with the
// Coordination Hub, keeps a liveness stream open, and runs the Dispatch
// Loop against a MockBrain. Wiring order mirrors cmd/hub/main.go,
// adapted from serving HTTP to driving the Client Runtime's background
// loops.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/coordhub/internal/common/config"
	"github.com/kandev/coordhub/internal/common/logger"
	"github.com/kandev/coordhub/pkg/runtime"
	"github.com/kandev/coordhub/pkg/runtime/brain"
	"github.com/kandev/coordhub/pkg/runtime/connection"
	"github.com/kandev/coordhub/pkg/runtime/dispatch"
	"github.com/kandev/coordhub/pkg/runtime/keepalive"
	"github.com/kandev/coordhub/pkg/wire"
)

// loggingFrameHandler logs every push frame it sees. A real agent
// process would also use sessionClosed frames to trigger faster
// re-registration, but the Connection Manager already reconnects on any
// stream break, including one induced by an unread sessionClosed frame.
type loggingFrameHandler struct {
	log *logger.Logger
}

func (h *loggingFrameHandler) HandleFrame(frame *wire.Frame) {
	h.log.Debug("received push frame", zap.String("kind", string(frame.Kind)))
}

// waitForPeers polls listAgents until at least min agents are registered
// or ctx is cancelled. Polling doubles as keepalive activity.
func waitForPeers(ctx context.Context, client *runtime.Client, selfID string, min int, log *logger.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		agents, err := client.ListAgents(ctx, selfID, false)
		if err == nil && len(agents) >= min {
			return
		}
		if err != nil {
			log.Warn("peer discovery poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func main() {
	cfg, err := config.LoadRuntime()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load runtime configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: "info", Format: "text", OutputPath: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting agent", zap.String("agent_id", cfg.AgentID), zap.String("hub_url", cfg.HubURL))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := runtime.NewClient(cfg.HubURL)

	connMgr := connection.New(client, cfg.AgentID, "client runtime agent", nil, &loggingFrameHandler{log: log}, log,
		time.Duration(cfg.ReconnectMaxBackoffMs)*time.Millisecond)
	go connMgr.Run(ctx)

	var keepaliveEngine *keepalive.Engine
	if cfg.KeepaliveMode == "active" {
		keepaliveEngine = keepalive.New(client, cfg.AgentID, time.Duration(cfg.KeepaliveIntervalMs)*time.Millisecond, log)
		keepaliveEngine.Start(ctx)
	}

	// Honor the advisory waitForAgents hint carried on HUB_URL: hold off
	// dispatch until enough peers are registered, so a freshly deployed
	// fleet doesn't route work into a half-empty registry.
	if hint := client.WaitForAgentsHint(); hint > 0 {
		waitForPeers(ctx, client, cfg.AgentID, hint, log)
	}

	loop := dispatch.New(client, brain.NewMockBrain(log), cfg.AgentID, cfg.WaitTimeoutMs, log)
	loop.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down agent")
	cancel()
	loop.Stop()
	if keepaliveEngine != nil {
		keepaliveEngine.Stop()
	}
	_ = client.CloseSession(context.Background(), cfg.AgentID)

	log.Info("agent stopped")
}
