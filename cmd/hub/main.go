// Command hub runs the Coordination Hub: the HTTP/SSE server backing the
// Tool Surface. Wiring order: config, logger, context, event bus,
// domain layer, HTTP server, graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kandev/coordhub/internal/common/config"
	"github.com/kandev/coordhub/internal/common/logger"
	"github.com/kandev/coordhub/internal/events/bus"
	"github.com/kandev/coordhub/internal/hub"
	"github.com/kandev/coordhub/internal/hub/api"
)

func main() {
	cfg, err := config.LoadHub()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting coordination hub")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var eventBus bus.EventBus
	if cfg.NATS.URL == "" {
		eventBus = bus.NewMemoryEventBus(log)
		log.Info("using in-memory event bus (no nats.url configured)")
	} else {
		natsBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			log.Fatal("failed to connect to nats", zap.Error(err))
		}
		eventBus = natsBus
	}
	defer eventBus.Close()

	h := hub.New(cfg, log, eventBus)
	h.Start(ctx)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	api.SetupRoutes(engine, h, log)

	// WriteTimeout is intentionally left at zero: the SSE stream at
	// GET /api/v1/sessions/:agentId/events is a long-lived write that a
	// fixed server-wide write deadline would sever mid-session.
	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     engine,
		ReadTimeout: cfg.Server.ReadTimeoutDuration(),
	}

	go func() {
		log.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start http server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down coordination hub")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}
	h.Stop()

	log.Info("coordination hub stopped")
}
