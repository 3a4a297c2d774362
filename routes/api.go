package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/property-search/app/controllers"
	"github.com/property-search/internal/observability"
)

// SetupAPIRoutes thiết lập tất cả API routes
func SetupAPIRoutes(router *gin.Engine, ctrl Controllers) {
	v1 := router.Group("/v1")
	{
		bulk := v1.Group("/bulk-search")
		{
			bulk.POST("", ctrl.BulkSearch.Submit)
			bulk.GET("/:requestId", ctrl.BulkSearch.GetStatus)
			bulk.DELETE("/:requestId", ctrl.BulkSearch.Cancel)
			bulk.GET("/:requestId/results", ctrl.BulkSearch.Results)
		}
		v1.GET("/bulk-export/:requestId", ctrl.BulkSearch.Export)

		v1.POST("/address/validate", ctrl.Address.ValidateAddress)

		if ctrl.Admin != nil {
			admin := v1.Group("/admin")
			{
				admin.POST("/seed", ctrl.Admin.SeedAddresses)
				admin.POST("/indexes/build", ctrl.Admin.BuildIndexes)
				admin.POST("/cache/invalidate", ctrl.Admin.InvalidateCache)
				admin.GET("/stats", ctrl.Admin.GetStats)
			}
		}
	}
}

// SetupHealthRoutes thiết lập health check routes
func SetupHealthRoutes(router *gin.Engine, health *controllers.HealthController) {
	if health == nil {
		health = controllers.NewHealthController("", nil)
	}
	router.GET("/health", health.HealthCheck)
	router.GET("/ready", health.Ready)
	router.GET("/live", health.Live)
}

// SetupMetricsRoutes thiết lập metrics routes (cho Prometheus)
func SetupMetricsRoutes(router *gin.Engine, metrics *observability.Metrics) {
	if metrics == nil {
		return
	}
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
}
