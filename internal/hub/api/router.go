package api

import (
	"github.com/gin-gonic/gin"

	"github.com/kandev/coordhub/internal/common/logger"
	"github.com/kandev/coordhub/internal/hub"
)

// SetupRoutes registers the Hub's HTTP surface on engine: session
// lifecycle and SSE transport, the Tool Surface (agents/threads), and a
// liveness probe.
func SetupRoutes(engine *gin.Engine, h *hub.Hub, log *logger.Logger) {
	engine.Use(Recovery(log), RequestLogger(log), ErrorHandler(log), CORS())

	handler := NewHandler(h, log)

	engine.GET("/healthz", handler.Health)

	v1 := engine.Group("/api/v1")
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", handler.OpenSession)
			sessions.GET("/:agentId/events", handler.StreamEvents)
			sessions.GET("/:agentId/events/ws", handler.StreamEventsWS)
			sessions.DELETE("/:agentId", handler.CloseSession)
		}

		agents := v1.Group("/agents")
		{
			agents.GET("", handler.ListAgents)
			agents.GET("/:agentId/wait", handler.Wait)
		}

		threads := v1.Group("/threads")
		{
			threads.POST("", handler.CreateThread)
			threads.POST("/:threadId/participants", handler.AddParticipant)
			threads.DELETE("/:threadId/participants", handler.RemoveParticipant)
			threads.POST("/:threadId/close", handler.CloseThread)
			threads.POST("/:threadId/messages", handler.SendMessage)
		}
	}
}
