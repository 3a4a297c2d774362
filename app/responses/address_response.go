package responses

import (
	"time"

	"github.com/property-search/app/models"
)

// ErrorResponse response lỗi
type ErrorResponse struct {
	Error     string      `json:"error"`             // Mã lỗi
	Message   string      `json:"message"`           // Thông báo lỗi
	Details   interface{} `json:"details,omitempty"` // Chi tiết lỗi
	Timestamp string      `json:"timestamp"`         // Thời gian xảy ra lỗi
}

// NewErrorResponse tạo ErrorResponse với timestamp hiện tại
func NewErrorResponse(code, message string, details interface{}) ErrorResponse {
	return ErrorResponse{
		Error:     code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// SubmitResponse response khi nhận bulk search job
type SubmitResponse struct {
	RequestID        string           `json:"requestId"`
	Status           models.JobStatus `json:"status"`
	TotalRecords     int              `json:"totalRecords"`
	ProcessedRecords int              `json:"processedRecords"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// NewSubmitResponse tạo SubmitResponse từ job vừa tạo
func NewSubmitResponse(job *models.BulkSearchJob) SubmitResponse {
	return SubmitResponse{
		RequestID:        job.RequestID,
		Status:           job.Status,
		TotalRecords:     job.TotalRecords,
		ProcessedRecords: job.ProcessedRecords,
		CreatedAt:        job.CreatedAt,
	}
}

// JobStatusResponse snapshot của job kèm tiến độ
type JobStatusResponse struct {
	*models.BulkSearchJob
	Progress float64 `json:"progress"` // 0.0 - 1.0
}

// NewJobStatusResponse tạo JobStatusResponse
func NewJobStatusResponse(job *models.BulkSearchJob) JobStatusResponse {
	return JobStatusResponse{BulkSearchJob: job, Progress: job.Progress()}
}

// CancelResponse response khi nhận yêu cầu hủy job
type CancelResponse struct {
	RequestID string `json:"requestId"`
	Message   string `json:"message"`
}

// HealthCheckResponse response kiểm tra sức khỏe
type HealthCheckResponse struct {
	Status    string            `json:"status"`    // healthy | degraded
	Timestamp string            `json:"timestamp"` // Thời gian kiểm tra
	Uptime    string            `json:"uptime"`    // Thời gian hoạt động
	Version   string            `json:"version"`   // Phiên bản
	Services  map[string]string `json:"services"`  // Trạng thái các service
}
