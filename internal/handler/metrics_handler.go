package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/univ-lab/timetable-api/internal/service"
)

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	prom http.Handler
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics *service.MetricsService) *MetricsHandler {
	h := &MetricsHandler{}
	if metrics != nil {
		h.prom = metrics.Handler()
	}
	return h
}

// Prometheus serves the metrics scrape endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.prom == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.prom.ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness probes.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
