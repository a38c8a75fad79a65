package http

import (
	"github.com/gin-gonic/gin"

	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ache-predictor/internal/interfaces/http/handlers"
	"github.com/turtacn/ache-predictor/internal/interfaces/http/middleware"
	"github.com/turtacn/ache-predictor/internal/interfaces/http/openapi"
)

// RouterConfig aggregates all handler and middleware dependencies required
// to construct the route tree. Nil handlers leave their routes unmounted.
type RouterConfig struct {
	PredictionHandler *handlers.PredictionHandler
	JobHandler        *handlers.JobHandler
	MoleculeHandler   *handlers.MoleculeHandler
	PageHandler       *handlers.PageHandler
	HealthHandler     *handlers.HealthHandler
	OpenAPI           *openapi.Document

	// AuthMiddleware guards /api/v1 when set.
	AuthMiddleware *middleware.AuthMiddleware
	CORS           *middleware.CORSConfig
	RateLimiter    middleware.RateLimiter
	RateLimit      middleware.RateLimitConfig

	Logger           logging.Logger
	Metrics          *prometheus.AppMetrics
	MetricsCollector prometheus.MetricsCollector
	// MetricsPath defaults to /metrics.
	MetricsPath string
}

// NewRouter builds the gin engine: global middleware in the order request ID,
// recovery, access log, CORS, rate limit; public probes, metrics, page and
// contract; then the /api/v1 group behind optional bearer auth.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	log := cfg.Logger.Named("http")

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestLogging(log, cfg.Metrics, middleware.DefaultLoggingConfig()))
	if cfg.CORS != nil {
		r.Use(middleware.CORS(*cfg.CORS))
	}
	if cfg.RateLimiter != nil {
		r.Use(middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, log))
	}

	if h := cfg.HealthHandler; h != nil {
		r.GET("/healthz", h.Liveness)
		r.GET("/readyz", h.Readiness)
		r.GET("/healthz/detail", h.Detailed)
	}
	if cfg.MetricsCollector != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.MetricsCollector.Handler()))
	}
	if h := cfg.PageHandler; h != nil {
		r.SetHTMLTemplate(handlers.PageTemplates())
		r.GET("/", h.Index)
		r.POST("/", h.Upload)
	}
	if cfg.OpenAPI != nil {
		r.GET("/api/v1/openapi.json", cfg.OpenAPI.Handler())
	}

	api := r.Group("/api/v1")
	if cfg.AuthMiddleware != nil {
		api.Use(cfg.AuthMiddleware.Handler())
	}
	registerPredictionRoutes(api, cfg.PredictionHandler)
	registerJobRoutes(api, cfg.JobHandler)
	registerMoleculeRoutes(api, cfg.MoleculeHandler)

	return r
}

func registerPredictionRoutes(r *gin.RouterGroup, h *handlers.PredictionHandler) {
	if h == nil {
		return
	}
	pr := r.Group("/predictions")
	pr.POST("", h.Create)
	pr.GET("", h.List)
	pr.GET("/search", h.Search)
	pr.GET("/:id", h.Get)
	pr.GET("/:id/download", h.Download)
}

func registerJobRoutes(r *gin.RouterGroup, h *handlers.JobHandler) {
	if h == nil {
		return
	}
	r.POST("/jobs", h.Submit)
	r.GET("/jobs/:id", h.Get)
}

func registerMoleculeRoutes(r *gin.RouterGroup, h *handlers.MoleculeHandler) {
	if h == nil {
		return
	}
	r.GET("/molecules/:id/similar", h.Similar)
	r.GET("/molecules/:id/history", h.History)
}

//Personal.AI order the ending
