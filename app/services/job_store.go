package services

import (
	"context"

	"github.com/property-search/app/models"
)

// JobStore lưu trạng thái bulk search job.
// Mọi thay đổi của một job được tuần tự hóa trong store.
type JobStore interface {
	// Create lưu job mới ở trạng thái pending
	Create(ctx context.Context, job *models.BulkSearchJob) error

	// Get trả về snapshot của job, ErrJobNotFound nếu không có
	Get(ctx context.Context, requestID string) (*models.BulkSearchJob, error)

	// MarkProcessing chuyển pending -> processing
	MarkProcessing(ctx context.Context, requestID string) error

	// MarkCancelled đánh dấu job đã bị yêu cầu hủy, job vẫn chạy tới khi settle
	MarkCancelled(ctx context.Context, requestID string) error

	// UpdateProgress ghi nguyên tử kết quả, lỗi và số item đã xử lý của một work item.
	// Trả ErrProgressOverflow nếu processed vượt total, ErrJobTerminal nếu job đã kết thúc.
	UpdateProgress(ctx context.Context, requestID string, delta models.ItemDelta) error

	// Finalize đặt trạng thái cuối, chỉ thành công một lần
	Finalize(ctx context.Context, requestID string, status models.JobStatus, errs ...string) error
}
