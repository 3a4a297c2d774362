package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/property-search/app/models"
	"github.com/property-search/internal/normalizer"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCacheService cache postal lookup trên Redis, dùng chung giữa các instance
type RedisCacheService struct {
	client *redis.Client
	logger *zap.Logger
	prefix string
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisCacheService tạo mới Redis cache service và ping thử
func NewRedisCacheService(redisURL string, ttl time.Duration, logger *zap.Logger) (*RedisCacheService, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("lỗi parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("không thể kết nối Redis: %w", err)
	}

	return NewRedisCacheServiceWithClient(client, ttl, logger), nil
}

// NewRedisCacheServiceWithClient dùng client có sẵn
func NewRedisCacheServiceWithClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCacheService{
		client: client,
		logger: logger,
		prefix: "postal:",
		ttl:    ttl,
	}
}

func (rcs *RedisCacheService) key(postcode string) string {
	return rcs.prefix + normalizer.NormalizePostcode(postcode)
}

// Get lấy danh sách địa chỉ từ Redis
func (rcs *RedisCacheService) Get(ctx context.Context, postcode string) ([]models.AddressCandidate, bool, error) {
	cacheKey := rcs.key(postcode)

	val, err := rcs.client.Get(ctx, cacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		rcs.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		rcs.logger.Error("Lỗi get từ Redis", zap.Error(err), zap.String("key", cacheKey))
		return nil, false, err
	}

	var candidates []models.AddressCandidate
	if err := json.Unmarshal(val, &candidates); err != nil {
		rcs.logger.Error("Lỗi unmarshal cache data", zap.Error(err))
		return nil, false, err
	}

	rcs.hits.Add(1)
	return candidates, true, nil
}

// Set lưu danh sách địa chỉ vào Redis với TTL
func (rcs *RedisCacheService) Set(ctx context.Context, postcode string, candidates []models.AddressCandidate) error {
	if candidates == nil {
		candidates = []models.AddressCandidate{}
	}
	data, err := json.Marshal(candidates)
	if err != nil {
		return fmt.Errorf("lỗi marshal cache data: %w", err)
	}

	cacheKey := rcs.key(postcode)
	if err := rcs.client.Set(ctx, cacheKey, data, rcs.ttl).Err(); err != nil {
		rcs.logger.Error("Lỗi set vào Redis", zap.Error(err), zap.String("key", cacheKey))
		return err
	}
	return nil
}

// Clear xóa các key postal bằng SCAN
func (rcs *RedisCacheService) Clear(ctx context.Context) error {
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := rcs.client.Scan(ctx, cursor, rcs.prefix+"*", 500).Result()
		if err != nil {
			return fmt.Errorf("lỗi scan keys: %w", err)
		}
		if len(keys) > 0 {
			if err := rcs.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("lỗi xóa keys: %w", err)
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	rcs.logger.Info("Đã clear Redis postal cache", zap.Int("keys_deleted", deleted))
	return nil
}

// GetStats thống kê hit/miss của instance này
func (rcs *RedisCacheService) GetStats(ctx context.Context) (*CacheStats, error) {
	hits, misses := rcs.hits.Load(), rcs.misses.Load()
	hitRate := float64(0)
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	items, err := rcs.client.DBSize(ctx).Result()
	if err != nil {
		rcs.logger.Warn("Không thể lấy Redis dbsize", zap.Error(err))
	}

	return &CacheStats{
		HitRate:    hitRate,
		TotalHits:  hits,
		TotalMiss:  misses,
		TotalItems: items,
	}, nil
}

// Ping kiểm tra kết nối Redis (cho /ready)
func (rcs *RedisCacheService) Ping(ctx context.Context) error {
	return rcs.client.Ping(ctx).Err()
}

// Close đóng kết nối Redis
func (rcs *RedisCacheService) Close() error {
	return rcs.client.Close()
}
