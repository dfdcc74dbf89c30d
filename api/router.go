package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/use-agent/livehls/api/handler"
	"github.com/use-agent/livehls/api/middleware"
	"github.com/use-agent/livehls/cache"
	"github.com/use-agent/livehls/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
// pool is nil when the browser tier is disabled.
//
// Middleware chain:
//
//	Global:   Recovery → RequestID → Logging → CORS
//	Resolve:  Auth (if enabled) → RateLimit
//
// Health and metrics sit outside auth so monitoring probes always work.
func NewRouter(res cache.Resolver, pool handler.PoolReporter, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type", "X-API-Key", "Authorization"},
		ExposeHeaders:   []string{middleware.RequestIDHeader, "Location"},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(pool, startTime))

	// Protected routes: auth + rate limit.
	protected := r.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	resolve := handler.Resolve(res)
	protected.GET("/live", resolve)
	protected.POST("/live", resolve)
	protected.GET("/live/:id", resolve)
	protected.GET("/api/v1/resolve", resolve)

	return r
}
