package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AppConfig cấu hình chung của service
type AppConfig struct {
	Port     string `mapstructure:"port"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

// MeilisearchConfig cấu hình index địa chỉ Royal Mail
type MeilisearchConfig struct {
	URL           string        `mapstructure:"url"`
	MasterKey     string        `mapstructure:"master_key"`
	Index         string        `mapstructure:"index"`
	MaxCandidates int           `mapstructure:"max_candidates"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// MongoConfig kết nối MongoDB cho job store
type MongoConfig struct {
	URL        string `mapstructure:"url"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// RedisConfig cache postal lookup dùng chung giữa các instance
type RedisConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// CacheConfig cache LRU in-process
type CacheConfig struct {
	L1Size int `mapstructure:"l1_size"`
}

// StoreConfig chọn backend job store
type StoreConfig struct {
	Backend         string        `mapstructure:"backend"` // memory | mongo
	Retention       time.Duration `mapstructure:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// WeightsConfig trọng số matcher
type WeightsConfig struct {
	AddressLine1 float64 `mapstructure:"address_line1"`
	TownOrCity   float64 `mapstructure:"town_or_city"`
	Postcode     float64 `mapstructure:"postcode"`
}

// MatcherConfig cấu hình address matcher
type MatcherConfig struct {
	Scorer        string            `mapstructure:"scorer"`
	Threshold     float64           `mapstructure:"threshold"`
	Weights       WeightsConfig     `mapstructure:"weights"`
	Abbreviations map[string]string `mapstructure:"abbreviations"` // bổ sung, ghi đè bảng embedded
}

// EngineConfig cấu hình bulk search engine
type EngineConfig struct {
	Workers         int           `mapstructure:"workers"`
	ItemTimeout     time.Duration `mapstructure:"item_timeout"`
	VerifyAddresses bool          `mapstructure:"verify_addresses"`
}

// RegistryConfig registry gateway (ownership + price paid)
type RegistryConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// Config cấu hình đầy đủ của service
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Meilisearch MeilisearchConfig `mapstructure:"meilisearch"`
	Mongo       MongoConfig       `mapstructure:"mongo"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Store       StoreConfig       `mapstructure:"store"`
	Matcher     MatcherConfig     `mapstructure:"matcher"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Registry    RegistryConfig    `mapstructure:"registry"`
}

// setDefaults giá trị mặc định, cũng là danh sách key mà AutomaticEnv nhận
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("meilisearch.url", "http://localhost:7700")
	v.SetDefault("meilisearch.master_key", "")
	v.SetDefault("meilisearch.index", "postal_addresses")
	v.SetDefault("meilisearch.max_candidates", 100)
	v.SetDefault("meilisearch.timeout", "5s")

	v.SetDefault("mongo.url", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "property_search")
	v.SetDefault("mongo.collection", "bulk_search_jobs")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379")
	v.SetDefault("redis.ttl", "24h")

	v.SetDefault("cache.l1_size", 10000)

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.retention", "24h")
	v.SetDefault("store.cleanup_interval", "10m")

	v.SetDefault("matcher.scorer", "levenshtein")
	v.SetDefault("matcher.threshold", 0.8)
	v.SetDefault("matcher.weights.address_line1", 0.4)
	v.SetDefault("matcher.weights.town_or_city", 0.3)
	v.SetDefault("matcher.weights.postcode", 0.3)

	v.SetDefault("engine.workers", 8)
	v.SetDefault("engine.item_timeout", "30s")
	v.SetDefault("engine.verify_addresses", false)

	v.SetDefault("registry.base_url", "http://localhost:9090")
	v.SetDefault("registry.api_key", "")
	v.SetDefault("registry.timeout", "10s")
	v.SetDefault("registry.requests_per_second", 10.0)
	v.SetDefault("registry.burst", 5)
}

// Load đọc .env (nếu có), config/app.yaml và biến môi trường.
// ENV override theo dạng ENGINE_WORKERS=16, MATCHER_THRESHOLD=0.85.
// configPaths rỗng thì tìm ở ./config và thư mục hiện tại.
func Load(configPaths ...string) (*Config, error) {
	// .env không bắt buộc
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	if len(configPaths) == 0 {
		configPaths = []string{"./config", "."}
	}
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("lỗi đọc config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("lỗi parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate kiểm tra các giá trị không hợp lệ
func (c *Config) Validate() error {
	var issues []string
	if c.Engine.Workers < 1 {
		issues = append(issues, "engine.workers phải >= 1")
	}
	if c.Engine.ItemTimeout <= 0 {
		issues = append(issues, "engine.item_timeout phải > 0")
	}
	if c.Matcher.Threshold <= 0 || c.Matcher.Threshold > 1 {
		issues = append(issues, "matcher.threshold phải trong (0, 1]")
	}
	w := c.Matcher.Weights
	if w.AddressLine1 < 0 || w.TownOrCity < 0 || w.Postcode < 0 || w.AddressLine1+w.TownOrCity+w.Postcode == 0 {
		issues = append(issues, "matcher.weights phải không âm và có tổng > 0")
	}
	switch c.Store.Backend {
	case "memory", "mongo":
	default:
		issues = append(issues, fmt.Sprintf("store.backend không hỗ trợ: %q", c.Store.Backend))
	}
	if len(issues) > 0 {
		return fmt.Errorf("config không hợp lệ: %s", strings.Join(issues, "; "))
	}
	return nil
}

// IsProduction env là production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production")
}
