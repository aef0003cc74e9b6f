package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-authoring-api/internal/service"
	"github.com/noah-isme/edu-authoring-api/pkg/jobs"
	"github.com/noah-isme/edu-authoring-api/pkg/response"
)

// ReadinessCheck probes one dependency.
type ReadinessCheck func(ctx context.Context) error

type metricsSource interface {
	Handler() http.Handler
	Snapshot() service.MetricsSnapshot
}

type queueStats interface {
	Stats() jobs.Stats
}

type cacheFlusher interface {
	Flush(ctx context.Context) error
}

// MetricsHandler exposes observability and operations endpoints.
type MetricsHandler struct {
	metrics metricsSource
	queue   queueStats
	cache   cacheFlusher
	checks  map[string]ReadinessCheck
}

// NewMetricsHandler constructs a metrics handler. queue, cache and checks are optional.
func NewMetricsHandler(metrics metricsSource, queue queueStats, cache cacheFlusher, checks map[string]ReadinessCheck) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, queue: queue, cache: cache, checks: checks}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness probes.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready runs every dependency probe and reports 503 when any fails.
func (h *MetricsHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": results})
}

// Summary godoc
// @Summary In-process metrics and correction queue counters
// @Tags Ops
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /ops/metrics/summary [get]
func (h *MetricsHandler) Summary(c *gin.Context) {
	payload := gin.H{}
	if h.metrics != nil {
		payload["metrics"] = h.metrics.Snapshot()
	}
	if h.queue != nil {
		payload["correction_queue"] = h.queue.Stats()
	}
	response.OK(c, payload)
}

// FlushCache godoc
// @Summary Drop every cached generation result
// @Tags Ops
// @Success 204
// @Router /ops/cache [delete]
func (h *MetricsHandler) FlushCache(c *gin.Context) {
	if h.cache != nil {
		if err := h.cache.Flush(c.Request.Context()); err != nil {
			response.Error(c, err)
			return
		}
	}
	response.NoContent(c)
}
