package controllers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/property-search/app/responses"
)

// HealthCheck kiểm tra một dependency, nil nghĩa là healthy
type HealthCheck func(ctx context.Context) error

const healthCheckTimeout = 2 * time.Second

// HealthController health, readiness và liveness
type HealthController struct {
	version   string
	startTime time.Time
	checks    map[string]HealthCheck
}

// NewHealthController tạo mới HealthController với các check theo tên
func NewHealthController(version string, checks map[string]HealthCheck) *HealthController {
	if checks == nil {
		checks = map[string]HealthCheck{}
	}
	return &HealthController{version: version, startTime: time.Now(), checks: checks}
}

// HealthCheck trạng thái tổng quan, luôn trả 200
func (hc *HealthController) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, hc.report(c.Request.Context()))
}

// Ready trả 503 nếu một dependency chưa sẵn sàng
func (hc *HealthController) Ready(c *gin.Context) {
	report := hc.report(c.Request.Context())
	status := http.StatusOK
	if report.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// Live process còn sống
func (hc *HealthController) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (hc *HealthController) report(ctx context.Context) responses.HealthCheckResponse {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	overall := "healthy"
	services := make(map[string]string, len(names))
	for _, name := range names {
		if err := hc.checks[name](ctx); err != nil {
			services[name] = "unhealthy: " + err.Error()
			overall = "degraded"
			continue
		}
		services[name] = "healthy"
	}

	return responses.HealthCheckResponse{
		Status:    overall,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(hc.startTime).Round(time.Second).String(),
		Version:   hc.version,
		Services:  services,
	}
}
