package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/property-search/app/models"
	"github.com/property-search/app/requests"
	"github.com/property-search/app/responses"
	"github.com/property-search/internal/observability"
	"go.uber.org/zap"
)

// AddressMatcher validate địa chỉ với dữ liệu Royal Mail
type AddressMatcher interface {
	ValidateAddress(ctx context.Context, candidate models.AddressCandidate) models.MatchResult
	ValidateFreeText(ctx context.Context, raw string) models.MatchResult
}

// AddressController controller xử lý các request liên quan đến địa chỉ
type AddressController struct {
	matcher AddressMatcher
	logger  *zap.Logger
}

// NewAddressController tạo mới AddressController
func NewAddressController(matcher AddressMatcher, logger *zap.Logger) *AddressController {
	return &AddressController{
		matcher: matcher,
		logger:  observability.OrNop(logger),
	}
}

// ValidateAddress validate một địa chỉ. Lỗi tra cứu nằm trong issues, luôn trả 200.
func (ac *AddressController) ValidateAddress(c *gin.Context) {
	var req requests.ValidateAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, responses.NewErrorResponse(
			"INVALID_REQUEST", "Request không hợp lệ: "+err.Error(), nil))
		return
	}

	var result models.MatchResult
	if req.IsFreeText() {
		result = ac.matcher.ValidateFreeText(c.Request.Context(), req.Address)
	} else {
		result = ac.matcher.ValidateAddress(c.Request.Context(), req.Candidate())
	}

	ac.logger.Debug("Validate địa chỉ",
		zap.Bool("free_text", req.IsFreeText()),
		zap.Bool("is_valid", result.IsValid),
		zap.Float64("confidence", result.Confidence))
	c.JSON(http.StatusOK, result)
}
