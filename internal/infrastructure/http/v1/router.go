package v1

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/geoclash/maptiles/internal/infrastructure/http/v1/handler"
	"github.com/geoclash/maptiles/pkg/logger"
	"github.com/geoclash/maptiles/pkg/telemetry"
)

func NewRouter(handler *handler.Handler, l logger.Logger, telemetryEnabled bool) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())

	if telemetryEnabled {
		r.Use(telemetry.GinMiddleware("geoclash-maptiles"))
	}

	r.Use(ginZapLogger(l))

	api := r.Group("/api")
	v1 := api.Group("/v1")

	v1.GET("/healthz", handler.Healthz)
	v1.GET("/tile/:z/:x/:y", handler.Tile)
	v1.GET("/stats", handler.Stats)
	v1.POST("/cache/clear", handler.ClearCache)
	v1.POST("/provider", handler.SetProvider)
	v1.POST("/preload", handler.Preload)

	// Prometheus metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func ginZapLogger(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := logger.WithLogger(c.Request.Context(), l)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()

		c.Next()

		latency := time.Since(start)

		l.Info("request",
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
			"latency", latency,
			"size", c.Writer.Size(),
		)
	}
}
