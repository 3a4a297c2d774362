package services

import (
	"context"

	"github.com/property-search/app/models"
)

// CacheStats thống kê cache
type CacheStats struct {
	HitRate    float64 `json:"hit_rate"`
	TotalHits  int64   `json:"total_hits"`
	TotalMiss  int64   `json:"total_miss"`
	TotalItems int64   `json:"total_items"`
}

// PostalCache cache danh sách địa chỉ theo postcode
type PostalCache interface {
	// Get lấy danh sách địa chỉ, found=false nếu miss
	Get(ctx context.Context, postcode string) ([]models.AddressCandidate, bool, error)

	// Set lưu danh sách địa chỉ (kể cả danh sách rỗng)
	Set(ctx context.Context, postcode string, candidates []models.AddressCandidate) error

	// Clear xóa toàn bộ cache
	Clear(ctx context.Context) error

	// GetStats thống kê hit/miss
	GetStats(ctx context.Context) (*CacheStats, error)

	// Close đóng kết nối (nếu cần)
	Close() error
}
