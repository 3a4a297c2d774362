// Package bootstrap khởi tạo các thành phần dùng chung cho cmd/api và cmd/worker
package bootstrap

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/property-search/app/config"
	"github.com/property-search/app/controllers"
	"github.com/property-search/app/services"
	"github.com/property-search/internal/matcher"
	"github.com/property-search/internal/observability"
	"github.com/property-search/internal/registry"
	"github.com/property-search/internal/search"
	"github.com/property-search/internal/similarity"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
)

// Components các thành phần đã được nối dây
type Components struct {
	Config       *config.Config
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	PostalIndex  *search.PostalIndex
	RedisCache   *services.RedisCacheService
	PostalLookup *services.CachedPostalLookup
	Matcher      *matcher.AddressMatcher
	Registry     *registry.Client
	Store        services.JobStore
	MemoryStore  *services.MemoryJobStore

	mongoClient *mongo.Client
}

// New khởi tạo postal lookup (Meilisearch + LRU + Redis), matcher, registry client và job store
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (*Components, error) {
	logger = observability.OrNop(logger)
	c := &Components{Config: cfg, Logger: logger, Metrics: metrics}

	c.PostalIndex = search.NewPostalIndex(search.SearchConfig{
		Host:          cfg.Meilisearch.URL,
		APIKey:        cfg.Meilisearch.MasterKey,
		IndexName:     cfg.Meilisearch.Index,
		Timeout:       cfg.Meilisearch.Timeout,
		MaxCandidates: cfg.Meilisearch.MaxCandidates,
	}, logger)

	var l2 services.PostalCache
	if cfg.Redis.Enabled {
		redisCache, err := services.NewRedisCacheService(cfg.Redis.URL, cfg.Redis.TTL, logger)
		if err != nil {
			return nil, err
		}
		c.RedisCache = redisCache
		l2 = redisCache
	}

	lookup, err := services.NewCachedPostalLookup(c.PostalIndex, cfg.Cache.L1Size, l2, logger, metrics)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}
	c.PostalLookup = lookup

	c.Matcher = matcher.NewAddressMatcher(lookup, matcher.Config{
		Weights: matcher.Weights{
			AddressLine1: cfg.Matcher.Weights.AddressLine1,
			TownOrCity:   cfg.Matcher.Weights.TownOrCity,
			Postcode:     cfg.Matcher.Weights.Postcode,
		},
		Threshold:     cfg.Matcher.Threshold,
		Scorer:        similarity.New(cfg.Matcher.Scorer),
		Abbreviations: cfg.Matcher.Abbreviations,
	}, logger, metrics)

	c.Registry, err = registry.NewClient(registry.Config{
		BaseURL:           cfg.Registry.BaseURL,
		APIKey:            cfg.Registry.APIKey,
		Timeout:           cfg.Registry.Timeout,
		RequestsPerSecond: cfg.Registry.RequestsPerSecond,
		Burst:             cfg.Registry.Burst,
	}, logger, metrics)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}

	if err := c.initStore(ctx); err != nil {
		c.Close(ctx)
		return nil, err
	}
	return c, nil
}

func (c *Components) initStore(ctx context.Context) error {
	cfg := c.Config
	switch cfg.Store.Backend {
	case StoreMongo:
		client, err := initMongoDB(ctx, cfg.Mongo.URL, c.Logger)
		if err != nil {
			return err
		}
		c.mongoClient = client
		store, err := services.NewMongoJobStore(client.Database(cfg.Mongo.Database), cfg.Mongo.Collection, cfg.Store.Retention, c.Logger)
		if err != nil {
			return err
		}
		c.Store = store
	default:
		c.MemoryStore = services.NewMemoryJobStore(cfg.Store.Retention, c.Logger)
		c.Store = c.MemoryStore
	}
	c.Logger.Info("Job store ready", zap.String("backend", cfg.Store.Backend))
	return nil
}

// NewEngine tạo bulk search engine; matcher chỉ được dùng khi bật verify_addresses
func (c *Components) NewEngine() *services.BulkSearchService {
	var validator services.AddressValidator
	if c.Config.Engine.VerifyAddresses {
		validator = c.Matcher
	}
	return services.NewBulkSearchService(c.Store, c.Registry, c.Registry, validator, services.EngineConfig{
		Workers:         c.Config.Engine.Workers,
		ItemTimeout:     c.Config.Engine.ItemTimeout,
		VerifyAddresses: c.Config.Engine.VerifyAddresses,
	}, c.Logger, c.Metrics)
}

// NewAdminService tạo AdminService trên postal index và cache
func (c *Components) NewAdminService() *services.AdminService {
	return services.NewAdminService(c.PostalIndex, c.PostalLookup, c.Logger)
}

// HealthChecks các check cho /health và /ready
func (c *Components) HealthChecks() map[string]controllers.HealthCheck {
	checks := map[string]controllers.HealthCheck{
		"meilisearch": func(ctx context.Context) error { return c.PostalIndex.Healthy(ctx) },
	}
	if c.RedisCache != nil {
		checks["redis"] = c.RedisCache.Ping
	}
	if c.mongoClient != nil {
		checks["mongodb"] = func(ctx context.Context) error { return c.mongoClient.Ping(ctx, nil) }
	}
	return checks
}

// Close đóng kết nối Redis và MongoDB
func (c *Components) Close(ctx context.Context) {
	if c.RedisCache != nil {
		if err := c.RedisCache.Close(); err != nil {
			c.Logger.Error("Error closing Redis", zap.Error(err))
		}
	}
	if c.mongoClient != nil {
		if err := c.mongoClient.Disconnect(ctx); err != nil {
			c.Logger.Error("Error disconnecting MongoDB", zap.Error(err))
		}
	}
}

func initMongoDB(ctx context.Context, uri string, logger *zap.Logger) (*mongo.Client, error) {
	logger.Info("Connecting to MongoDB", zap.String("uri", redactURI(uri)))

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("lỗi kết nối MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("lỗi ping MongoDB: %w", err)
	}

	logger.Info("Successfully connected to MongoDB")
	return client, nil
}

// redactURI ẩn user/password trong connection string trước khi log
func redactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "[invalid uri]"
	}
	if u.User != nil {
		u.User = url.User("xxxxx")
	}
	return u.String()
}
