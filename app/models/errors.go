package models

import (
	"errors"
	"strings"
)

var (
	// ErrJobNotFound không có job với request id này
	ErrJobNotFound = errors.New("bulk search job not found")
	// ErrJobNotReady job chưa completed nên chưa export được
	ErrJobNotReady = errors.New("bulk search job is not ready for export")
	// ErrJobTerminal job đã kết thúc, không nhận thêm thay đổi
	ErrJobTerminal = errors.New("bulk search job already finished")
	// ErrJobExists request id đã tồn tại trong store
	ErrJobExists = errors.New("bulk search job already exists")
	// ErrProgressOverflow processedRecords sẽ vượt totalRecords
	ErrProgressOverflow = errors.New("processed records would exceed total records")

	// ErrRecordNotFound registry không có bản ghi cho khóa tra cứu
	ErrRecordNotFound = errors.New("registry record not found")
	// ErrLookupUnavailable dịch vụ tra cứu bên ngoài không truy cập được
	ErrLookupUnavailable = errors.New("lookup service unavailable")
)

// ValidationError lỗi validate request, chứa danh sách vấn đề
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + strings.Join(e.Issues, "; ")
}

// Add thêm một vấn đề
func (e *ValidationError) Add(issue string) {
	e.Issues = append(e.Issues, issue)
}

// ErrOrNil trả về nil nếu không có vấn đề nào
func (e *ValidationError) ErrOrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}

// ErrEngineStopped engine đang shutdown, không nhận job mới
var ErrEngineStopped = errors.New("bulk search engine is shutting down")

// CancelledMessage lỗi ghi vào job khi bị hủy
const CancelledMessage = "job cancelled"
