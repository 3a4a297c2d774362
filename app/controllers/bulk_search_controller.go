package controllers

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/property-search/app/models"
	"github.com/property-search/app/requests"
	"github.com/property-search/app/responses"
	"github.com/property-search/app/services"
	"github.com/property-search/internal/observability"
	"go.uber.org/zap"
)

// BulkSearchController controller cho bulk search và export
type BulkSearchController struct {
	bulkSearch *services.BulkSearchService
	export     *services.ExportService
	logger     *zap.Logger
}

// NewBulkSearchController tạo mới BulkSearchController
func NewBulkSearchController(bulkSearch *services.BulkSearchService, export *services.ExportService, logger *zap.Logger) *BulkSearchController {
	return &BulkSearchController{
		bulkSearch: bulkSearch,
		export:     export,
		logger:     observability.OrNop(logger),
	}
}

// Submit nhận bulk search request, trả 202 với requestId
func (bc *BulkSearchController) Submit(c *gin.Context) {
	var body requests.BulkSearchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, responses.NewErrorResponse(
			"INVALID_REQUEST", "Request không hợp lệ: "+err.Error(), nil))
		return
	}

	req, err := body.ToModel()
	if err != nil {
		bc.respondError(c, err)
		return
	}

	job, err := bc.bulkSearch.Submit(c.Request.Context(), req)
	if err != nil {
		bc.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, responses.NewSubmitResponse(job))
}

// GetStatus snapshot trạng thái và kết quả hiện có của job
func (bc *BulkSearchController) GetStatus(c *gin.Context) {
	job, err := bc.bulkSearch.GetStatus(c.Request.Context(), c.Param("requestId"))
	if err != nil {
		bc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, responses.NewJobStatusResponse(job))
}

// Cancel yêu cầu hủy job đang chạy
func (bc *BulkSearchController) Cancel(c *gin.Context) {
	requestID := c.Param("requestId")
	if err := bc.bulkSearch.Cancel(c.Request.Context(), requestID); err != nil {
		bc.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, responses.CancelResponse{
		RequestID: requestID,
		Message:   "Cancellation requested",
	})
}

// Results stream kết quả dạng NDJSON, gzip=1 để nén
func (bc *BulkSearchController) Results(c *gin.Context) {
	requestID := c.Param("requestId")
	if _, err := bc.bulkSearch.GetStatus(c.Request.Context(), requestID); err != nil {
		bc.respondError(c, err)
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	var writer gin.ResponseWriter = c.Writer
	if c.Query("gzip") == "1" {
		c.Header("Content-Encoding", "gzip")
		gzWriter := gzip.NewWriter(c.Writer)
		defer gzWriter.Close()
		writer = &gzipResponseWriter{ResponseWriter: c.Writer, gzWriter: gzWriter}
	}
	c.Status(http.StatusOK)

	n, err := bc.export.StreamResults(c.Request.Context(), requestID, writer)
	if err != nil {
		bc.logger.Error("Lỗi stream kết quả", zap.String("request_id", requestID), zap.Int("rows", n), zap.Error(err))
	}
}

// Export tải CSV của job đã completed
func (bc *BulkSearchController) Export(c *gin.Context) {
	requestID := c.Param("requestId")

	var buf bytes.Buffer
	if err := bc.export.ExportCSV(c.Request.Context(), requestID, &buf); err != nil {
		bc.respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="bulk-search-%s.csv"`, requestID))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// respondError map lỗi service sang HTTP status
func (bc *BulkSearchController) respondError(c *gin.Context, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, responses.NewErrorResponse("VALIDATION_ERROR", "Request không hợp lệ", verr.Issues))
	case errors.Is(err, models.ErrJobNotFound):
		c.JSON(http.StatusNotFound, responses.NewErrorResponse("JOB_NOT_FOUND", "Không tìm thấy job: "+c.Param("requestId"), nil))
	case errors.Is(err, models.ErrJobNotReady):
		c.JSON(http.StatusConflict, responses.NewErrorResponse("JOB_NOT_READY", "Job chưa hoàn thành", nil))
	case errors.Is(err, models.ErrJobTerminal):
		c.JSON(http.StatusConflict, responses.NewErrorResponse("JOB_FINISHED", "Job đã kết thúc", nil))
	case errors.Is(err, models.ErrEngineStopped):
		c.JSON(http.StatusServiceUnavailable, responses.NewErrorResponse("SERVICE_UNAVAILABLE", err.Error(), nil))
	default:
		bc.logger.Error("Lỗi xử lý bulk search", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, responses.NewErrorResponse("INTERNAL_ERROR", "Lỗi hệ thống", nil))
	}
}

// gzipResponseWriter wrapper cho gzip writer
type gzipResponseWriter struct {
	gin.ResponseWriter
	gzWriter *gzip.Writer
}

func (w *gzipResponseWriter) Write(data []byte) (int, error) {
	return w.gzWriter.Write(data)
}

func (w *gzipResponseWriter) WriteString(s string) (int, error) {
	return w.gzWriter.Write([]byte(s))
}

func (w *gzipResponseWriter) Flush() {
	w.gzWriter.Flush()
	w.ResponseWriter.Flush()
}
