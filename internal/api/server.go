package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sentinelops/incident-engine/internal/knowledge"
	"github.com/sentinelops/incident-engine/internal/orchestrator"
	"github.com/sentinelops/incident-engine/internal/safety"
)

// Server is the operator-facing HTTP API: incident triggers, approvals,
// incident history, and administrative controls.
type Server struct {
	logger    *slog.Logger
	orch      *orchestrator.Orchestrator
	incidents orchestrator.IncidentStore
	knowledge *knowledge.Store
	gate      *safety.Gate

	httpServer *http.Server
}

// NewServer wires the routes and returns a server ready to listen on addr.
func NewServer(
	logger *slog.Logger,
	addr string,
	orch *orchestrator.Orchestrator,
	incidents orchestrator.IncidentStore,
	store *knowledge.Store,
	gate *safety.Gate,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		logger:    logger,
		orch:      orch,
		incidents: incidents,
		knowledge: store,
		gate:      gate,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", s.handleHealth)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/incidents", s.handleCreateIncident)
		v1.GET("/incidents", s.handleListIncidents)
		v1.GET("/incidents/:id", s.handleGetIncident)
		v1.POST("/incidents/:id/approve", s.handleApprove)
		v1.POST("/incidents/:id/deny", s.handleDeny)
		v1.POST("/incidents/:id/retry", s.handleRetry)
		v1.POST("/alarms", s.handleAlarm)
		v1.POST("/knowledge/rebuild", s.handleRebuildIndex)
		v1.POST("/safety/reset", s.handleSafetyReset)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("took", time.Since(start)))
	}
}
