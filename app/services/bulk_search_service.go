package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/property-search/app/models"
	"github.com/property-search/helpers/utils"
	"github.com/property-search/internal/normalizer"
	"github.com/property-search/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OwnershipRegistry tra cứu bản ghi sở hữu (HM Land Registry)
type OwnershipRegistry interface {
	LookupOwnership(ctx context.Context, key models.SearchKey) ([]models.OwnershipRecord, error)
}

// PricePaidRegistry tra cứu giao dịch Price Paid Data
type PricePaidRegistry interface {
	LookupPricePaid(ctx context.Context, key models.SearchKey, from, to *time.Time) ([]models.PricePaidRecord, error)
}

// AddressValidator validate địa chỉ của property trước khi ghi kết quả
type AddressValidator interface {
	ValidateAddress(ctx context.Context, candidate models.AddressCandidate) models.MatchResult
}

// EngineConfig cấu hình worker pool của bulk search
type EngineConfig struct {
	Workers         int
	ItemTimeout     time.Duration
	VerifyAddresses bool
}

const (
	defaultWorkers     = 8
	defaultItemTimeout = 30 * time.Second
	finalizeTimeout    = 10 * time.Second
)

// BulkSearchService chạy bulk search job bất đồng bộ
type BulkSearchService struct {
	store     JobStore
	ownership OwnershipRegistry
	pricePaid PricePaidRegistry
	validator AddressValidator
	cfg       EngineConfig
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
	newID     func() string

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu      sync.Mutex
	running map[string]context.CancelFunc
	closed  bool
}

// NewBulkSearchService tạo mới engine. validator có thể nil.
func NewBulkSearchService(
	store JobStore,
	ownership OwnershipRegistry,
	pricePaid PricePaidRegistry,
	validator AddressValidator,
	cfg EngineConfig,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *BulkSearchService {
	if cfg.Workers < 1 {
		cfg.Workers = defaultWorkers
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = defaultItemTimeout
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())

	return &BulkSearchService{
		store:      store,
		ownership:  ownership,
		pricePaid:  pricePaid,
		validator:  validator,
		cfg:        cfg,
		logger:     observability.OrNop(logger),
		metrics:    metrics,
		now:        time.Now,
		newID:      utils.GenerateUUID,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		running:    make(map[string]context.CancelFunc),
	}
}

// NormalizeBulkSearchRequest validate và chuẩn hóa request: postcode dạng "SW1A 1AA",
// title number upper-case, bỏ trùng. Trả *models.ValidationError khi không hợp lệ.
func NormalizeBulkSearchRequest(req models.BulkSearchRequest) (models.BulkSearchRequest, error) {
	verr := &models.ValidationError{}
	out := models.BulkSearchRequest{
		SearchType: req.SearchType,
		DateFrom:   req.DateFrom,
		DateTo:     req.DateTo,
		MaxResults: req.MaxResults,
	}

	if !req.SearchType.IsValid() {
		verr.Add(fmt.Sprintf("searchType must be one of ownership, price_paid, both (got %q)", req.SearchType))
	}

	seen := make(map[string]bool)
	for _, raw := range req.Postcodes {
		pc := normalizer.FormatPostcode(raw)
		if pc == "" {
			verr.Add(fmt.Sprintf("invalid postcode: %q", raw))
			continue
		}
		if !seen["p:"+pc] {
			seen["p:"+pc] = true
			out.Postcodes = append(out.Postcodes, pc)
		}
	}
	for _, raw := range req.TitleNumbers {
		tn := normalizer.NormalizeTitleNumber(raw)
		if !normalizer.IsValidTitleNumber(tn) {
			verr.Add(fmt.Sprintf("invalid title number: %q", raw))
			continue
		}
		if !seen["t:"+tn] {
			seen["t:"+tn] = true
			out.TitleNumbers = append(out.TitleNumbers, tn)
		}
	}

	keys := len(out.Postcodes) + len(out.TitleNumbers)
	switch {
	case keys == 0 && len(req.Postcodes)+len(req.TitleNumbers) == 0:
		verr.Add("at least one postcode or title number is required")
	case keys > models.MaxSearchKeys:
		verr.Add(fmt.Sprintf("at most %d postcodes and title numbers combined are allowed (got %d)", models.MaxSearchKeys, keys))
	}

	if req.DateFrom != nil && req.DateTo != nil && req.DateFrom.After(*req.DateTo) {
		verr.Add("dateFrom must not be after dateTo")
	}
	if req.MaxResults < models.MinMaxResults || req.MaxResults > models.MaxMaxResults {
		verr.Add(fmt.Sprintf("maxResults must be between %d and %d", models.MinMaxResults, models.MaxMaxResults))
	}

	if err := verr.ErrOrNil(); err != nil {
		return models.BulkSearchRequest{}, err
	}
	return out, nil
}

// ExpandWorkItems mỗi khóa x mỗi nhánh một item: postcode trước, title sau
func ExpandWorkItems(req models.BulkSearchRequest) []models.WorkItem {
	branches := req.SearchType.Branches()
	items := make([]models.WorkItem, 0, (len(req.Postcodes)+len(req.TitleNumbers))*len(branches))
	for _, pc := range req.Postcodes {
		for _, b := range branches {
			items = append(items, models.WorkItem{Key: models.SearchKey{Kind: models.KeyKindPostcode, Value: pc}, Branch: b})
		}
	}
	for _, tn := range req.TitleNumbers {
		for _, b := range branches {
			items = append(items, models.WorkItem{Key: models.SearchKey{Kind: models.KeyKindTitleNumber, Value: tn}, Branch: b})
		}
	}
	return items
}

// Submit validate request, tạo job pending và chạy nền. Trả về ngay.
func (s *BulkSearchService) Submit(ctx context.Context, req models.BulkSearchRequest) (*models.BulkSearchJob, error) {
	normalized, err := NormalizeBulkSearchRequest(req)
	if err != nil {
		return nil, err
	}

	items := ExpandWorkItems(normalized)
	job := &models.BulkSearchJob{
		RequestID:    s.newID(),
		Status:       models.JobStatusPending,
		SearchType:   normalized.SearchType,
		MaxResults:   normalized.MaxResults,
		TotalRecords: len(items),
		Results: models.BulkSearchResults{
			Properties:       []models.PropertyRecord{},
			OwnershipRecords: []models.OwnershipRecord{},
			PricePaidRecords: []models.PricePaidRecord{},
		},
		Errors:    []string{},
		CreatedAt: s.now(),
	}

	// đăng ký trước khi lưu để Cancel luôn thấy job đang chạy
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, models.ErrEngineStopped
	}
	jobCtx, cancel := context.WithCancel(s.baseCtx)
	s.running[job.RequestID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	if err := s.store.Create(ctx, job); err != nil {
		s.mu.Lock()
		delete(s.running, job.RequestID)
		s.mu.Unlock()
		cancel()
		s.wg.Done()
		return nil, fmt.Errorf("lỗi tạo bulk search job: %w", err)
	}

	s.metrics.IncJobSubmitted(string(normalized.SearchType))
	s.logger.Info("Bulk search job submitted",
		zap.String("request_id", job.RequestID),
		zap.String("search_type", string(normalized.SearchType)),
		zap.Int("total_records", job.TotalRecords))

	go s.run(jobCtx, job.RequestID, normalized, items)
	return job.Clone(), nil
}

// GetStatus snapshot của job
func (s *BulkSearchService) GetStatus(ctx context.Context, requestID string) (*models.BulkSearchJob, error) {
	return s.store.Get(ctx, requestID)
}

// Cancel yêu cầu hủy job: ngừng lấy item mới, item đang chạy vẫn hoàn tất,
// job kết thúc ở failed với lỗi "job cancelled"
func (s *BulkSearchService) Cancel(ctx context.Context, requestID string) error {
	job, err := s.store.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return models.ErrJobTerminal
	}

	if err := s.store.MarkCancelled(ctx, requestID); err != nil {
		return err
	}

	s.mu.Lock()
	cancel, ok := s.running[requestID]
	s.mu.Unlock()

	if ok {
		cancel()
	} else {
		// job không chạy trên instance này (ví dụ còn sót lại sau restart)
		if err := s.store.Finalize(ctx, requestID, models.JobStatusFailed, models.CancelledMessage); err != nil {
			return err
		}
		s.metrics.IncJobFinished(string(models.JobStatusFailed))
	}

	s.logger.Info("Bulk search job cancel requested", zap.String("request_id", requestID))
	return nil
}

// Shutdown hủy mọi job đang chạy và chờ chúng settle hoặc ctx hết hạn
func (s *BulkSearchService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.baseCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run xử lý toàn bộ work item của một job
func (s *BulkSearchService) run(ctx context.Context, requestID string, req models.BulkSearchRequest, items []models.WorkItem) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		if cancel, ok := s.running[requestID]; ok {
			cancel()
			delete(s.running, requestID)
		}
		s.mu.Unlock()
	}()

	logger := s.logger.With(zap.String("request_id", requestID))
	storeCtx := context.WithoutCancel(ctx)

	if err := s.store.MarkProcessing(storeCtx, requestID); err != nil {
		logger.Error("Không thể chuyển job sang processing", zap.Error(err))
		s.finalize(requestID, models.JobStatusFailed, fmt.Sprintf("job store: %v", err))
		return
	}

	workers := s.cfg.Workers
	if workers > len(items) {
		workers = len(items)
	}

	queue := make(chan models.WorkItem)
	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(queue)
		for _, item := range items {
			select {
			case <-groupCtx.Done():
				return nil
			case queue <- item:
			}
		}
		return nil
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for item := range queue {
				if groupCtx.Err() != nil {
					continue
				}
				delta := s.processItem(groupCtx, req, item)
				if err := s.store.UpdateProgress(storeCtx, requestID, delta); err != nil {
					return fmt.Errorf("job store: %w", err)
				}
			}
			return nil
		})
	}

	err := g.Wait()
	switch {
	case err != nil:
		logger.Error("Bulk search job failed", zap.Error(err))
		s.finalize(requestID, models.JobStatusFailed, err.Error())
	case ctx.Err() != nil:
		logger.Info("Bulk search job cancelled")
		s.finalize(requestID, models.JobStatusFailed, models.CancelledMessage)
	default:
		logger.Info("Bulk search job completed", zap.Int("total_records", len(items)))
		s.finalize(requestID, models.JobStatusCompleted)
	}
}

func (s *BulkSearchService) finalize(requestID string, status models.JobStatus, errs ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if err := s.store.Finalize(ctx, requestID, status, errs...); err != nil {
		s.logger.Error("Không thể finalize job",
			zap.String("request_id", requestID),
			zap.String("status", string(status)),
			zap.Error(err))
		return
	}
	s.metrics.IncJobFinished(string(status))
}

// processItem gọi registry cho một item. Lookup chạy trên context tách khỏi
// tín hiệu hủy của job, chỉ bị giới hạn bởi item timeout.
func (s *BulkSearchService) processItem(ctx context.Context, req models.BulkSearchRequest, item models.WorkItem) (delta models.ItemDelta) {
	delta.Processed = 1
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			delta = models.ItemDelta{
				Processed: 1,
				Errors:    []string{fmt.Sprintf("%s: %s lookup panicked: %v", item.Key, item.Branch, r)},
			}
			outcome = "panic"
			s.logger.Error("Work item panic", zap.String("key", item.Key.String()), zap.Any("panic", r))
		}
		s.metrics.IncItemProcessed(string(item.Branch), outcome)
	}()

	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ItemTimeout)
	defer cancel()

	var err error
	switch item.Branch {
	case models.SearchTypeOwnership:
		err = s.processOwnership(lookupCtx, item, &delta)
	case models.SearchTypePricePaid:
		err = s.processPricePaid(lookupCtx, req, item, &delta)
	default:
		err = fmt.Errorf("unknown branch %q", item.Branch)
	}

	switch {
	case err == nil:
	case errors.Is(err, models.ErrRecordNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
		delta.Errors = append(delta.Errors, fmt.Sprintf("%s: %s lookup failed: %v", item.Key, item.Branch, err))
	}
	return delta
}

func (s *BulkSearchService) processOwnership(ctx context.Context, item models.WorkItem, delta *models.ItemDelta) error {
	if s.ownership == nil {
		return models.ErrLookupUnavailable
	}
	records, err := s.ownership.LookupOwnership(ctx, item.Key)
	if err != nil {
		return err
	}

	now := s.now()
	delta.Ownership = records
	for _, rec := range records {
		prop := models.PropertyFromOwnership(rec, now)
		if s.cfg.VerifyAddresses && s.validator != nil && !prop.Address.IsEmpty() {
			match := s.validator.ValidateAddress(ctx, prop.Address)
			prop.AddressMatch = &match
		}
		delta.Properties = append(delta.Properties, prop)
	}
	return nil
}

func (s *BulkSearchService) processPricePaid(ctx context.Context, req models.BulkSearchRequest, item models.WorkItem, delta *models.ItemDelta) error {
	if s.pricePaid == nil {
		return models.ErrLookupUnavailable
	}
	records, err := s.pricePaid.LookupPricePaid(ctx, item.Key, req.DateFrom, req.DateTo)
	if err != nil {
		return err
	}

	for _, rec := range records {
		if withinDates(rec.TransactionDate, req.DateFrom, req.DateTo) {
			delta.PricePaid = append(delta.PricePaid, rec)
		}
	}
	return nil
}

// withinDates so sánh theo ngày (YYYY-MM-DD), hai đầu inclusive
func withinDates(d time.Time, from, to *time.Time) bool {
	day := d.Format("2006-01-02")
	if from != nil && day < from.Format("2006-01-02") {
		return false
	}
	if to != nil && day > to.Format("2006-01-02") {
		return false
	}
	return true
}
