package httpserver

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"stripe-fire-sync/internal/config"
	"stripe-fire-sync/internal/domain"
	"stripe-fire-sync/internal/service/syncer"
)

// SyncService runs and inspects reconciliation passes.
type SyncService interface {
	Run(ctx context.Context, job config.Job) (*syncer.Report, error)
	Purge(ctx context.Context, collection, refKey string) (int, error)
	Runs(ctx context.Context, collection string, limit int) ([]domain.SyncRun, error)
}

// Deps are the services behind the admin routes.
type Deps struct {
	SyncSvc SyncService
	// DefaultJob supplies the variant and field keys a sync request does not override.
	DefaultJob config.Job
	// MetricsHandler is served on /metrics when set.
	MetricsHandler http.Handler
	AllowedOrigins []string
}

// buildRouter wires routes for the API.
func buildRouter(logger *log.Logger, db Pinger, deps Deps) (*gin.Engine, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if deps.SyncSvc == nil {
		return nil, fmt.Errorf("httpserver: sync service required")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())

	if len(deps.AllowedOrigins) > 0 {
		corsCfg := cors.Config{
			AllowOrigins:  deps.AllowedOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders: []string{"Content-Length"},
			MaxAge:        12 * time.Hour,
		}
		if err := corsCfg.Validate(); err != nil {
			return nil, fmt.Errorf("httpserver: cors: %w", err)
		}
		router.Use(cors.New(corsCfg))
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))
	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	h := &syncHandler{svc: deps.SyncSvc, defaultJob: deps.DefaultJob, logger: logger}
	collections := router.Group("/collections/:collection")
	collections.POST("/sync", h.sync)
	collections.POST("/purge", h.purge)
	collections.GET("/runs", h.runs)

	return router, nil
}
