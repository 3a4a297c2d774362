package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/property-search/app/models"
	"github.com/property-search/app/requests"
	"github.com/property-search/app/responses"
	"github.com/property-search/app/services"
	"github.com/property-search/internal/observability"
	"go.uber.org/zap"
)

// AdminController controller xử lý các request admin
type AdminController struct {
	adminService *services.AdminService
	logger       *zap.Logger
}

// NewAdminController tạo mới AdminController
func NewAdminController(adminService *services.AdminService, logger *zap.Logger) *AdminController {
	return &AdminController{
		adminService: adminService,
		logger:       observability.OrNop(logger),
	}
}

// SeedAddresses nạp địa chỉ tham chiếu vào postal index. dry_run=true chỉ validate.
func (ac *AdminController) SeedAddresses(c *gin.Context) {
	var req requests.SeedAddressesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, responses.NewErrorResponse(
			"INVALID_REQUEST", "Request không hợp lệ: "+err.Error(), nil))
		return
	}

	if c.Query("dry_run") == "true" {
		validation, _ := ac.adminService.ValidateSeedData(req.Addresses)
		c.JSON(http.StatusOK, validation)
		return
	}

	result, err := ac.adminService.SeedAddresses(c.Request.Context(), req.Addresses, req.RebuildIndexes)
	switch {
	case errors.Is(err, services.ErrNoSeedData):
		c.JSON(http.StatusBadRequest, responses.NewErrorResponse("VALIDATION_ERROR", err.Error(), nil))
		return
	case errors.Is(err, models.ErrLookupUnavailable):
		c.JSON(http.StatusServiceUnavailable, responses.NewErrorResponse("SERVICE_UNAVAILABLE", err.Error(), nil))
		return
	case err != nil:
		ac.logger.Error("Lỗi seed postal index", zap.Error(err))
		c.JSON(http.StatusInternalServerError, responses.NewErrorResponse("SEED_ERROR", "Lỗi seed postal index: "+err.Error(), result))
		return
	}
	c.JSON(http.StatusOK, result)
}

// BuildIndexes cấu hình lại postal index
func (ac *AdminController) BuildIndexes(c *gin.Context) {
	if err := ac.adminService.BuildIndexes(); err != nil {
		ac.logger.Error("Lỗi build indexes", zap.Error(err))
		c.JSON(http.StatusInternalServerError, responses.NewErrorResponse("BUILD_INDEX_ERROR", "Lỗi build indexes: "+err.Error(), nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Indexes built"})
}

// InvalidateCache xóa cache tra cứu postcode
func (ac *AdminController) InvalidateCache(c *gin.Context) {
	if err := ac.adminService.InvalidateCache(c.Request.Context()); err != nil {
		ac.logger.Error("Lỗi invalidate cache", zap.Error(err))
		c.JSON(http.StatusInternalServerError, responses.NewErrorResponse("INVALIDATE_ERROR", "Lỗi invalidate cache: "+err.Error(), nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cache invalidated"})
}

// GetStats thống kê runtime và cache
func (ac *AdminController) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, ac.adminService.GetSystemStats(c.Request.Context()))
}
