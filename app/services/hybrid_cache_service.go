package services

import (
	"context"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/property-search/app/models"
	"github.com/property-search/internal/matcher"
	"github.com/property-search/internal/normalizer"
	"github.com/property-search/internal/observability"
	"go.uber.org/zap"
)

// CachedPostalLookup bọc PostalLookup với cache LRU in-process (L1)
// và Redis (L2, tùy chọn). Lỗi lookup không được cache.
type CachedPostalLookup struct {
	next    matcher.PostalLookup
	l1      *lru.Cache[string, []models.AddressCandidate]
	l2      PostalCache
	logger  *zap.Logger
	metrics *observability.Metrics

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedPostalLookup tạo mới lookup có cache. l2 có thể nil.
func NewCachedPostalLookup(next matcher.PostalLookup, l1Size int, l2 PostalCache, logger *zap.Logger, metrics *observability.Metrics) (*CachedPostalLookup, error) {
	if l1Size <= 0 {
		l1Size = 10000
	}
	l1, err := lru.New[string, []models.AddressCandidate](l1Size)
	if err != nil {
		return nil, fmt.Errorf("không thể tạo LRU cache: %w", err)
	}
	return &CachedPostalLookup{
		next:    next,
		l1:      l1,
		l2:      l2,
		logger:  observability.OrNop(logger),
		metrics: metrics,
	}, nil
}

// LookupByPostcode L1 -> L2 -> nguồn gốc, kết quả từ nguồn được ghi lại vào cả hai tầng
func (c *CachedPostalLookup) LookupByPostcode(ctx context.Context, postcode string) ([]models.AddressCandidate, error) {
	key := normalizer.NormalizePostcode(postcode)

	if candidates, ok := c.l1.Get(key); ok {
		c.hits.Add(1)
		c.metrics.IncCacheLookup("lru", true)
		return cloneCandidates(candidates), nil
	}
	c.metrics.IncCacheLookup("lru", false)

	if c.l2 != nil {
		candidates, found, err := c.l2.Get(ctx, key)
		if err != nil {
			c.logger.Warn("Lỗi Redis cache, fallback nguồn gốc", zap.Error(err))
		} else if found {
			c.hits.Add(1)
			c.metrics.IncCacheLookup("redis", true)
			c.l1.Add(key, candidates)
			return cloneCandidates(candidates), nil
		} else {
			c.metrics.IncCacheLookup("redis", false)
		}
	}

	c.misses.Add(1)
	candidates, err := c.next.LookupByPostcode(ctx, postcode)
	if err != nil {
		return nil, err
	}

	c.l1.Add(key, cloneCandidates(candidates))
	if c.l2 != nil {
		if err := c.l2.Set(ctx, key, candidates); err != nil {
			c.logger.Warn("Lỗi lưu vào Redis", zap.Error(err), zap.String("postcode", key))
		}
	}
	return candidates, nil
}

// Clear xóa cả hai tầng cache
func (c *CachedPostalLookup) Clear(ctx context.Context) error {
	c.l1.Purge()
	if c.l2 != nil {
		return c.l2.Clear(ctx)
	}
	return nil
}

// GetStats thống kê của lookup có cache
func (c *CachedPostalLookup) GetStats(ctx context.Context) (*CacheStats, error) {
	hits, misses := c.hits.Load(), c.misses.Load()
	hitRate := float64(0)
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return &CacheStats{
		HitRate:    hitRate,
		TotalHits:  hits,
		TotalMiss:  misses,
		TotalItems: int64(c.l1.Len()),
	}, nil
}

func cloneCandidates(in []models.AddressCandidate) []models.AddressCandidate {
	return append(make([]models.AddressCandidate, 0, len(in)), in...)
}
