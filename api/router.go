// Package api exposes the simulation pipeline over HTTP: a health check, a
// simulate endpoint accepting scalar configuration overrides, and one-time
// result downloads guarded by single-use tokens.
package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmolinero/pvbess/app"
	"github.com/dmolinero/pvbess/config"
	"github.com/dmolinero/pvbess/infra/logger"
)

// Runner executes a simulation under a (possibly overridden) configuration.
// Implemented by app.Service.
type Runner interface {
	Simulate(ctx context.Context, cfg *config.Config) (*app.Outcome, error)
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(cfg *config.Config, runner Runner, log logger.Logger) *gin.Engine {
	if log == nil {
		log = logger.NopLogger{}
	}
	h := &handler{
		cfg:       cfg,
		runner:    runner,
		log:       log,
		downloads: newDownloadStore(),
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	if cfg.Metrics.PrometheusEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/api/v1")
	v1.POST("/simulate", h.simulate)
	v1.GET("/download/:token", h.download)
	return r
}
