package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dsvrelay/dsv-relay/internal/config"
	"github.com/dsvrelay/dsv-relay/internal/middleware"
	"github.com/dsvrelay/dsv-relay/internal/report"
)

type RouterOptions struct {
	Reports *report.Service
	Config  *config.Manager
	Logger  *zap.Logger
	// Gatherer backs the metrics endpoint; nil leaves it unregistered.
	Gatherer prometheus.Gatherer
}

// NewRouter wires the public HTTP surface.
func NewRouter(opts RouterOptions) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := opts.Config

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.AccessLog(logger),
		middleware.Recovery(logger),
		middleware.CORS(func() []string { return cfg.Get().Server.CORS.Origins }),
	)

	r.GET("/health", HandleHealth)

	reports := NewReportHandler(opts.Reports, func() int64 { return cfg.Get().Server.MaxUploadSize }, logger)
	r.POST("/api/report", reports.Submit)

	if m := cfg.Get().Metrics; m.Enabled && opts.Gatherer != nil {
		path := m.Path
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
	return r
}

// HandleHealth reports liveness.
func HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
