package search

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meilisearch/meilisearch-go"
	"github.com/property-search/app/models"
	"github.com/property-search/internal/normalizer"
	"go.uber.org/zap"
)

// DefaultPostalIndex tên index địa chỉ Royal Mail
const DefaultPostalIndex = "postal_addresses"

// SearchConfig cấu hình cho Meilisearch
type SearchConfig struct {
	Host          string
	APIKey        string
	IndexName     string
	Timeout       time.Duration
	MaxCandidates int
}

// PostalIndex tra cứu danh sách địa chỉ theo postcode trên Meilisearch
type PostalIndex struct {
	client    *ClientWrapper
	logger    *zap.Logger
	indexName string
	limit     int64
	timeout   time.Duration
}

// NewPostalIndex tạo mới PostalIndex, không kiểm tra kết nối
func NewPostalIndex(config SearchConfig, logger *zap.Logger) *PostalIndex {
	if config.IndexName == "" {
		config.IndexName = DefaultPostalIndex
	}
	if config.MaxCandidates <= 0 {
		config.MaxCandidates = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostalIndex{
		client:    NewClientWrapper(config.Host, config.APIKey),
		logger:    logger,
		indexName: config.IndexName,
		limit:     int64(config.MaxCandidates),
		timeout:   config.Timeout,
	}
}

// Healthy kiểm tra Meilisearch sẵn sàng (cho /ready)
func (p *PostalIndex) Healthy(ctx context.Context) error {
	return p.client.Healthy(ctx)
}

// LookupByPostcode trả về các địa chỉ thuộc postcode, theo thứ tự index trả về.
// Mỗi lần gọi bị giới hạn bởi Timeout và deadline của ctx.
func (p *PostalIndex) LookupByPostcode(ctx context.Context, postcode string) ([]models.AddressCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := normalizer.NormalizePostcode(postcode)
	if key == "" {
		return nil, errors.New("postcode không được để trống")
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	result, err := p.client.SearchIndex(ctx, p.indexName, "", FilterPostcode(key), p.limit)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// timeout hoặc bị hủy thì log lỗi context
			err = ctxErr
		}
		p.logger.Error("Lỗi tìm kiếm postcode", zap.String("postcode", key), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrLookupUnavailable, err)
	}
	return parseAddressHits(result), nil
}

// parseAddressHits parse kết quả Meilisearch thành AddressCandidate
func parseAddressHits(result *meilisearch.SearchResponse) []models.AddressCandidate {
	if result == nil {
		return nil
	}

	candidates := make([]models.AddressCandidate, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}

		c := models.AddressCandidate{}
		if v, ok := hitMap["address_line1"].(string); ok {
			c.AddressLine1 = v
		}
		if v, ok := hitMap["locality"].(string); ok {
			c.Locality = v
		}
		if v, ok := hitMap["town_or_city"].(string); ok {
			c.TownOrCity = v
		}
		if v, ok := hitMap["county"].(string); ok {
			c.County = v
		}
		if v, ok := hitMap["postcode"].(string); ok {
			c.Postcode = v
		}
		switch v := hitMap["uprn"].(type) {
		case string:
			c.UPRN = v
		case float64:
			c.UPRN = fmt.Sprintf("%.0f", v)
		}
		candidates = append(candidates, c)
	}
	return candidates
}

// BuildIndexes cấu hình index: filter theo postcode_key, tìm theo line1 và town
func (p *PostalIndex) BuildIndexes() error {
	index := p.client.Index(p.indexName)

	task, err := index.UpdateSettings(&meilisearch.Settings{
		SearchableAttributes: []string{"address_line1", "locality", "town_or_city"},
		FilterableAttributes: []string{"postcode_key", "uprn"},
		SortableAttributes:   []string{"address_line1"},
		RankingRules:         []string{"words", "typo", "proximity", "attribute", "sort", "exactness"},
		Synonyms: map[string][]string{
			"st":  {"street"},
			"rd":  {"road"},
			"ave": {"avenue"},
		},
	})
	if err != nil {
		return fmt.Errorf("lỗi cấu hình index: %w", err)
	}

	p.logger.Info("Đã cấu hình index Meilisearch", zap.String("index", p.indexName), zap.Int64("task_uid", task.TaskUID))
	return nil
}

// SeedAddresses nạp địa chỉ tham chiếu vào index theo batch
func (p *PostalIndex) SeedAddresses(addresses []models.AddressCandidate, batchSize int) (int, error) {
	if len(addresses) == 0 {
		return 0, errors.New("không có dữ liệu để seed")
	}
	if batchSize <= 0 {
		batchSize = 1000
	}

	documents := make([]map[string]interface{}, 0, len(addresses))
	for _, a := range addresses {
		documents = append(documents, addressDocument(a))
	}

	index := p.client.Index(p.indexName)
	for i := 0; i < len(documents); i += batchSize {
		end := i + batchSize
		if end > len(documents) {
			end = len(documents)
		}

		task, err := index.AddDocuments(documents[i:end], "id")
		if err != nil {
			return i, fmt.Errorf("lỗi thêm documents batch %d-%d: %w", i, end, err)
		}
		p.logger.Info("Đã thêm batch documents",
			zap.Int("from", i),
			zap.Int("to", end),
			zap.Int64("task_uid", task.TaskUID))
	}

	p.logger.Info("Đã seed postal index", zap.Int("total_documents", len(documents)))
	return len(documents), nil
}

// addressDocument document Meilisearch cho một địa chỉ; id là UPRN hoặc hash địa chỉ
func addressDocument(a models.AddressCandidate) map[string]interface{} {
	id := a.UPRN
	if id == "" {
		sum := sha1.Sum([]byte(strings.ToLower(a.SingleLine())))
		id = "h" + hex.EncodeToString(sum[:])
	}
	return map[string]interface{}{
		"id":            id,
		"uprn":          a.UPRN,
		"address_line1": a.AddressLine1,
		"locality":      a.Locality,
		"town_or_city":  a.TownOrCity,
		"county":        a.County,
		"postcode":      normalizer.FormatPostcode(a.Postcode),
		"postcode_key":  normalizer.NormalizePostcode(a.Postcode),
	}
}
