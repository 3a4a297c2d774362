// Package routes cung cấp tất cả routing functions cho Property Search Service
//
// Cấu trúc:
// - api.go: API routes (/v1/*), health và metrics
// - web.go: Web routes (/, /docs)
// - routes.go: Controllers và SetupAllRoutes
//
// Sử dụng:
// routes.SetupAllRoutes(router, controllers, metrics, logger)
package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/property-search/app/controllers"
	"github.com/property-search/internal/observability"
	"go.uber.org/zap"
)

// Controllers tập hợp controllers được đăng ký vào router. Admin có thể nil.
type Controllers struct {
	Address    *controllers.AddressController
	BulkSearch *controllers.BulkSearchController
	Admin      *controllers.AdminController
	Health     *controllers.HealthController
}

// SetupAllRoutes thiết lập tất cả routes
func SetupAllRoutes(router *gin.Engine, ctrl Controllers, metrics *observability.Metrics, logger *zap.Logger) {
	setupMiddleware(router, metrics, observability.OrNop(logger))

	SetupWebRoutes(router)
	SetupHealthRoutes(router, ctrl.Health)
	SetupAPIRoutes(router, ctrl)
	SetupMetricsRoutes(router, metrics)

	// 404 handler
	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{
			"error":  "Route not found",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})
}

// setupMiddleware thiết lập middleware cho router
func setupMiddleware(router *gin.Engine, metrics *observability.Metrics, logger *zap.Logger) {
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	if metrics != nil {
		router.Use(metrics.GinMiddleware())
	}
}

// requestLogger log mỗi request bằng zap
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
