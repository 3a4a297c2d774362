package services

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/property-search/app/models"
	"github.com/property-search/internal/normalizer"
	"github.com/property-search/internal/observability"
	"go.uber.org/zap"
)

// PostalIndexAdmin thao tác quản trị trên postal index (Meilisearch)
type PostalIndexAdmin interface {
	BuildIndexes() error
	SeedAddresses(addresses []models.AddressCandidate, batchSize int) (int, error)
}

// PostalCacheAdmin thao tác quản trị trên cache tra cứu postcode
type PostalCacheAdmin interface {
	Clear(ctx context.Context) error
	GetStats(ctx context.Context) (*CacheStats, error)
}

// AdminService service quản lý admin functions
type AdminService struct {
	index     PostalIndexAdmin
	cache     PostalCacheAdmin
	logger    *zap.Logger
	startTime time.Time
}

// SeedValidation kết quả kiểm tra dữ liệu seed
type SeedValidation struct {
	Passed   bool     `json:"passed"`
	Accepted int      `json:"accepted"`
	Warnings []string `json:"warnings"`
}

// SeedResult kết quả seed postal index
type SeedResult struct {
	AddressesSeeded  int   `json:"addresses_seeded"`
	Skipped          int   `json:"skipped"`
	IndexesBuilt     bool  `json:"indexes_built"`
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// SystemStats thống kê hệ thống
type SystemStats struct {
	Uptime      string                 `json:"uptime"`
	MemoryUsage map[string]interface{} `json:"memory_usage"`
	Goroutines  int                    `json:"goroutines"`
	Cache       *CacheStats            `json:"cache,omitempty"`
}

const (
	seedBatchSize  = 1000
	maxSeedWarning = 50
)

// ErrNoSeedData không có địa chỉ hợp lệ để seed
var ErrNoSeedData = errors.New("no valid addresses to seed")

// NewAdminService tạo mới AdminService. index và cache có thể nil.
func NewAdminService(index PostalIndexAdmin, cache PostalCacheAdmin, logger *zap.Logger) *AdminService {
	return &AdminService{
		index:     index,
		cache:     cache,
		logger:    observability.OrNop(logger),
		startTime: time.Now(),
	}
}

// ValidateSeedData kiểm tra từng địa chỉ: postcode hợp lệ và có address line 1
func (as *AdminService) ValidateSeedData(addresses []models.AddressCandidate) (*SeedValidation, []models.AddressCandidate) {
	v := &SeedValidation{Warnings: []string{}}
	valid := make([]models.AddressCandidate, 0, len(addresses))

	for i, a := range addresses {
		var issue string
		switch {
		case !normalizer.IsValidPostcode(a.Postcode):
			issue = fmt.Sprintf("row %d: invalid postcode %q", i, a.Postcode)
		case a.AddressLine1 == "":
			issue = fmt.Sprintf("row %d: missing address line 1", i)
		}
		if issue != "" {
			if len(v.Warnings) < maxSeedWarning {
				v.Warnings = append(v.Warnings, issue)
			}
			continue
		}
		a.Postcode = normalizer.FormatPostcode(a.Postcode)
		valid = append(valid, a)
	}

	v.Accepted = len(valid)
	v.Passed = len(valid) > 0
	return v, valid
}

// SeedAddresses nạp địa chỉ hợp lệ vào postal index rồi xóa cache tra cứu
func (as *AdminService) SeedAddresses(ctx context.Context, addresses []models.AddressCandidate, rebuildIndexes bool) (*SeedResult, error) {
	if as.index == nil {
		return nil, models.ErrLookupUnavailable
	}
	start := time.Now()

	validation, valid := as.ValidateSeedData(addresses)
	if !validation.Passed {
		return nil, ErrNoSeedData
	}

	result := &SeedResult{Skipped: len(addresses) - len(valid)}
	if rebuildIndexes {
		if err := as.index.BuildIndexes(); err != nil {
			return nil, err
		}
		result.IndexesBuilt = true
	}

	n, err := as.index.SeedAddresses(valid, seedBatchSize)
	result.AddressesSeeded = n
	if err != nil {
		return result, err
	}

	if err := as.InvalidateCache(ctx); err != nil {
		as.logger.Warn("Lỗi invalidate cache sau khi seed", zap.Error(err))
	}

	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	as.logger.Info("Seed postal index thành công",
		zap.Int("seeded", n),
		zap.Int("skipped", result.Skipped),
		zap.Int64("duration_ms", result.ProcessingTimeMs))
	return result, nil
}

// BuildIndexes cấu hình lại postal index
func (as *AdminService) BuildIndexes() error {
	if as.index == nil {
		return models.ErrLookupUnavailable
	}
	return as.index.BuildIndexes()
}

// InvalidateCache xóa toàn bộ cache tra cứu postcode
func (as *AdminService) InvalidateCache(ctx context.Context) error {
	if as.cache == nil {
		return nil
	}
	return as.cache.Clear(ctx)
}

// GetSystemStats lấy thống kê runtime và cache
func (as *AdminService) GetSystemStats(ctx context.Context) *SystemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := &SystemStats{
		Uptime: time.Since(as.startTime).Round(time.Second).String(),
		MemoryUsage: map[string]interface{}{
			"alloc_mb":       bToMb(m.Alloc),
			"total_alloc_mb": bToMb(m.TotalAlloc),
			"sys_mb":         bToMb(m.Sys),
			"num_gc":         m.NumGC,
		},
		Goroutines: runtime.NumGoroutine(),
	}

	if as.cache != nil {
		cacheStats, err := as.cache.GetStats(ctx)
		if err != nil {
			as.logger.Warn("Lỗi lấy cache stats", zap.Error(err))
		} else {
			stats.Cache = cacheStats
		}
	}
	return stats
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
