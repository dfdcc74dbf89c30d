package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/livehls/models"
	"github.com/use-agent/livehls/observability"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// PoolReporter exposes browser tab pool statistics.
type PoolReporter interface {
	Stats() models.PoolStats
}

// Health returns a handler for GET /api/v1/health. pool is nil when the
// browser tier is disabled.
//
// Reports pool utilisation and degrades status when > 80% of tabs are active.
func Health(pool PoolReporter, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := models.HealthResponse{
			Status:  "healthy",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Browser: pool != nil,
			Version: Version,
		}

		if pool != nil {
			stats := pool.Stats()
			resp.PoolStats = stats
			if stats.MaxPages > 0 && stats.ActivePages > int(float64(stats.MaxPages)*0.8) {
				resp.Status = "degraded"
			}
			observability.BrowserPages.WithLabelValues("active").Set(float64(stats.ActivePages))
			observability.BrowserPages.WithLabelValues("total").Set(float64(stats.Pages))
		}

		c.JSON(http.StatusOK, resp)
	}
}
