// Package search bọc Meilisearch client cho index địa chỉ Royal Mail
package search

import (
	"context"
	"fmt"

	ms "github.com/meilisearch/meilisearch-go"
)

// ClientWrapper wraps Meilisearch client, chỉ dùng các field tương thích Meilisearch 1.5.x
type ClientWrapper struct {
	cli ms.ServiceManager
}

// NewClientWrapper creates new Meilisearch client wrapper
func NewClientWrapper(url, key string) *ClientWrapper {
	return &ClientWrapper{cli: ms.New(url, ms.WithAPIKey(key))}
}

// SearchIndex tìm kiếm trên một index với filter và limit
func (c *ClientWrapper) SearchIndex(ctx context.Context, index string, q string, filter string, limit int64) (*ms.SearchResponse, error) {
	req := &ms.SearchRequest{
		Limit:  limit,
		Filter: filter, // e.g. postcode_key = "SW1A1AA"
	}
	return c.cli.Index(index).SearchWithContext(ctx, q, req)
}

// Index trả về index manager để cấu hình hoặc thêm documents
func (c *ClientWrapper) Index(index string) ms.IndexManager {
	return c.cli.Index(index)
}

// Healthy kiểm tra Meilisearch có phản hồi không
func (c *ClientWrapper) Healthy(ctx context.Context) error {
	if _, err := c.cli.HealthWithContext(ctx); err != nil {
		return fmt.Errorf("không thể kết nối Meilisearch: %w", err)
	}
	return nil
}

// FilterPostcode filter theo postcode đã bỏ khoảng trắng
func FilterPostcode(postcodeKey string) string {
	return fmt.Sprintf("postcode_key = %q", postcodeKey)
}
