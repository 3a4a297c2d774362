package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/property-search/app/models"
	"go.uber.org/zap"
)

// jobEntry một job trong arena, khóa riêng cho từng job
type jobEntry struct {
	mu        sync.Mutex
	job       *models.BulkSearchJob
	propIndex map[string]int // property key -> vị trí trong Results.Properties
}

// MemoryJobStore job store in-memory
type MemoryJobStore struct {
	mu        sync.RWMutex
	entries   map[string]*jobEntry
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewMemoryJobStore tạo mới MemoryJobStore. retention <= 0 thì không dọn job cũ.
func NewMemoryJobStore(retention time.Duration, logger *zap.Logger) *MemoryJobStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryJobStore{
		entries:   make(map[string]*jobEntry),
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Create lưu job mới
func (s *MemoryJobStore) Create(ctx context.Context, job *models.BulkSearchJob) error {
	if job == nil || job.RequestID == "" {
		return fmt.Errorf("job thiếu request id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[job.RequestID]; exists {
		return models.ErrJobExists
	}

	stored := job.Clone()
	stored.Status = models.JobStatusPending
	s.entries[job.RequestID] = &jobEntry{
		job:       stored,
		propIndex: make(map[string]int),
	}
	return nil
}

func (s *MemoryJobStore) entry(requestID string) (*jobEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[requestID]
	if !ok {
		return nil, models.ErrJobNotFound
	}
	return e, nil
}

// Get trả về bản sao của job
func (s *MemoryJobStore) Get(ctx context.Context, requestID string) (*models.BulkSearchJob, error) {
	e, err := s.entry(requestID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), nil
}

// MarkProcessing chuyển job sang processing
func (s *MemoryJobStore) MarkProcessing(ctx context.Context, requestID string) error {
	e, err := s.entry(requestID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.Status.IsTerminal() {
		return models.ErrJobTerminal
	}
	if e.job.Status == models.JobStatusPending {
		now := s.now()
		e.job.Status = models.JobStatusProcessing
		e.job.StartedAt = &now
	}
	return nil
}

// MarkCancelled đặt cờ cancelled cho job chưa kết thúc
func (s *MemoryJobStore) MarkCancelled(ctx context.Context, requestID string) error {
	e, err := s.entry(requestID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.Status.IsTerminal() {
		return models.ErrJobTerminal
	}
	e.job.Cancelled = true
	return nil
}

// UpdateProgress áp dụng delta của một work item dưới khóa của job
func (s *MemoryJobStore) UpdateProgress(ctx context.Context, requestID string, delta models.ItemDelta) error {
	e, err := s.entry(requestID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	job := e.job
	if job.Status.IsTerminal() {
		return models.ErrJobTerminal
	}
	if delta.Processed < 0 || job.ProcessedRecords+delta.Processed > job.TotalRecords {
		return models.ErrProgressOverflow
	}

	limit := job.MaxResults
	for _, rec := range delta.Ownership {
		if len(job.Results.OwnershipRecords) >= limit {
			break
		}
		job.Results.OwnershipRecords = append(job.Results.OwnershipRecords, rec)
	}
	for _, rec := range delta.PricePaid {
		if len(job.Results.PricePaidRecords) >= limit {
			break
		}
		job.Results.PricePaidRecords = append(job.Results.PricePaidRecords, rec)
	}
	for _, prop := range delta.Properties {
		// trùng key: bản ghi sau ghi đè bản trước
		if idx, ok := e.propIndex[prop.Key]; ok {
			job.Results.Properties[idx] = prop
			continue
		}
		if len(job.Results.Properties) >= limit {
			continue
		}
		e.propIndex[prop.Key] = len(job.Results.Properties)
		job.Results.Properties = append(job.Results.Properties, prop)
	}

	job.Errors = append(job.Errors, delta.Errors...)
	job.ProcessedRecords += delta.Processed
	return nil
}

// Finalize đặt trạng thái cuối cho job
func (s *MemoryJobStore) Finalize(ctx context.Context, requestID string, status models.JobStatus, errs ...string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("trạng thái cuối không hợp lệ: %s", status)
	}

	e, err := s.entry(requestID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.Status.IsTerminal() {
		return models.ErrJobTerminal
	}
	now := s.now()
	e.job.Status = status
	e.job.CompletedAt = &now
	e.job.Errors = append(e.job.Errors, errs...)
	return nil
}

// Size số job đang lưu
func (s *MemoryJobStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// CleanupExpired xóa các job đã kết thúc lâu hơn retention
func (s *MemoryJobStore) CleanupExpired() int {
	if s.retention <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		e.mu.Lock()
		expired := e.job.Status.IsTerminal() && e.job.CompletedAt != nil && e.job.CompletedAt.Before(cutoff)
		e.mu.Unlock()
		if expired {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// StartCleanupWorker khởi động worker dọn job cũ, dừng khi ctx bị hủy
func (s *MemoryJobStore) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.CleanupExpired(); n > 0 {
					s.logger.Info("Đã dọn bulk search job hết hạn", zap.Int("removed", n))
				}
			}
		}
	}()
}
