// Package api exposes the connection HTTP surface: the sync endpoints the UI
// drives and the provider webhook.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/repobrain/repobrain/internal/core/ports/driven"
	"github.com/repobrain/repobrain/internal/core/ports/driving"
	"github.com/repobrain/repobrain/internal/logger"
)

// Server wires the driving and driven ports into the HTTP surface.
type Server struct {
	materialiser driving.Materialiser
	engine       driving.SyncEngine
	connections  driven.ConnectionStore
	sessions     driven.SessionStore
	providers    driven.ProviderFactory
	workspaces   driven.WorkspaceFactory

	webhookSecret string
}

// Deps carries the server's dependencies.
type Deps struct {
	Materialiser  driving.Materialiser
	Engine        driving.SyncEngine
	Connections   driven.ConnectionStore
	Sessions      driven.SessionStore
	Providers     driven.ProviderFactory
	Workspaces    driven.WorkspaceFactory
	WebhookSecret string
}

// NewServer creates the API server.
func NewServer(deps Deps) *Server {
	return &Server{
		materialiser:  deps.Materialiser,
		engine:        deps.Engine,
		connections:   deps.Connections,
		sessions:      deps.Sessions,
		providers:     deps.Providers,
		workspaces:    deps.Workspaces,
		webhookSecret: deps.WebhookSecret,
	}
}

// Router builds the gin router with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	sync := router.Group("/sync")
	{
		sync.POST("/analyze", s.handleAnalyze)
		sync.POST("/manual", s.handleManualSync)
		sync.GET("/repositories", s.handleRepositories)
		sync.GET("/connected", s.handleConnected)
		sync.DELETE("/disconnect/*repoKey", s.handleDisconnect)
		sync.GET("/sync-status", s.handleSyncStatus)
		sync.POST("/auto-sync", s.handleAutoSync)
	}
	router.POST("/webhook/github", s.handleWebhook)

	return router
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port int) error {
	if port <= 0 {
		port = 8080
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Warn("api shutdown: %v", err)
		}
	}()

	logger.Info("api listening on :%d", port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// respondError writes the stable error body every endpoint uses.
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": code, "message": message})
}
