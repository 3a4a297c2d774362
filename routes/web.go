package routes

import (
	"github.com/gin-gonic/gin"
)

// SetupWebRoutes thiết lập web routes
func SetupWebRoutes(router *gin.Engine) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "Property Search Service",
			"docs":    "/docs",
		})
	})

	router.GET("/docs", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"api": "Property Search API v1",
			"endpoints": map[string]string{
				"bulk_search": "POST /v1/bulk-search",
				"job_status":  "GET /v1/bulk-search/:requestId",
				"cancel":      "DELETE /v1/bulk-search/:requestId",
				"results":     "GET /v1/bulk-search/:requestId/results?gzip=1",
				"export":      "GET /v1/bulk-export/:requestId",
				"validate":    "POST /v1/address/validate",
				"health":      "GET /health",
				"metrics":     "GET /metrics",
			},
		})
	})
}
