package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/neurobot/backend/internal/config"
	"github.com/neurobot/backend/internal/frontend"
	"github.com/neurobot/backend/internal/health"
	"github.com/neurobot/backend/internal/ingest"
	"github.com/neurobot/backend/internal/logging"
	"github.com/neurobot/backend/internal/metrics"
)

// Deps are the handlers the router mounts.
type Deps struct {
	Live    http.Handler
	Ingest  *ingest.Handler
	Health  *health.Reporter
	Metrics *metrics.Metrics
}

func NewRouter(cfg *config.Config, d Deps, log *zap.Logger) *gin.Engine {
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.RedirectTrailingSlash = false
	r.Use(gin.CustomRecovery(func(c *gin.Context, err any) {
		log.Error("handler panic", zap.Any("panic", err), zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
	}))
	r.Use(logging.Gin(log))
	r.Use(corsMiddleware(cfg.Server.Origins()))

	live := gin.WrapH(d.Live)
	r.GET("/ws", live)
	r.GET("/ws/", live)
	r.GET("/ws/neuro/", live)

	assets := frontend.FS()
	r.StaticFS("/static", assets)
	r.GET("/", func(c *gin.Context) { c.FileFromFS("/", assets) })

	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	api := r.Group("/api", securityHeaders(), gzip.Gzip(gzip.DefaultCompression))
	{
		limit := ingest.RateLimit(cfg.Ingest.RatePerSecond, cfg.Ingest.Burst, d.Metrics)
		api.POST("/upload_eeg/", limit, d.Ingest.Upload)
		api.POST("/upload_eeg", limit, d.Ingest.Upload)
		api.POST("/eeg", limit, d.Ingest.Upload)

		api.GET("/records/:id", d.Ingest.GetRecord)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, d.Health.Report(c.Request.Context()))
		})
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "not found"})
	})
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return cors.Default()
	}
	return cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	})
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		c.Next()
	}
}
