// Package registry client HTTP cho HM Land Registry (ownership) và Price Paid Data
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/property-search/app/models"
	"github.com/property-search/internal/observability"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// Config cấu hình registry gateway
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client gọi registry gateway qua JSON/HTTP
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *HostLimiter
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewClient tạo mới registry client
func NewClient(cfg Config, logger *zap.Logger, metrics *observability.Metrics) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("registry base url không hợp lệ: %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    base,
		apiKey:     cfg.APIKey,
		limiter:    NewHostLimiter(cfg.RequestsPerSecond, cfg.Burst),
		logger:     observability.OrNop(logger),
		metrics:    metrics,
	}, nil
}

type addressWire struct {
	AddressLine1 string `json:"address_line1"`
	Locality     string `json:"locality"`
	TownOrCity   string `json:"town_or_city"`
	County       string `json:"county"`
	Postcode     string `json:"postcode"`
	UPRN         string `json:"uprn"`
}

func (a addressWire) toModel() models.AddressCandidate {
	return models.AddressCandidate{
		AddressLine1: a.AddressLine1,
		Locality:     a.Locality,
		TownOrCity:   a.TownOrCity,
		County:       a.County,
		Postcode:     a.Postcode,
		UPRN:         a.UPRN,
	}
}

type ownershipWire struct {
	TitleNumber string      `json:"title_number"`
	Tenure      string      `json:"tenure"`
	Proprietors []string    `json:"proprietors"`
	UPRN        string      `json:"uprn"`
	LastUpdated string      `json:"last_updated"`
	Address     addressWire `json:"address"`
}

type ownershipResponse struct {
	Records []ownershipWire `json:"records"`
}

type pricePaidWire struct {
	TransactionID string      `json:"transaction_id"`
	TitleNumber   string      `json:"title_number"`
	Price         int64       `json:"price"`
	Date          string      `json:"date"`
	PropertyType  string      `json:"property_type"`
	Tenure        string      `json:"tenure"`
	NewBuild      bool        `json:"new_build"`
	Address       addressWire `json:"address"`
}

type pricePaidResponse struct {
	Transactions []pricePaidWire `json:"transactions"`
}

// LookupOwnership tra cứu bản ghi sở hữu theo postcode hoặc title number
func (c *Client) LookupOwnership(ctx context.Context, key models.SearchKey) ([]models.OwnershipRecord, error) {
	q := url.Values{}
	q.Set(string(key.Kind), key.Value)

	var resp ownershipResponse
	if err := c.getJSON(ctx, "ownership", "/ownership", q, &resp); err != nil {
		return nil, err
	}

	out := make([]models.OwnershipRecord, 0, len(resp.Records))
	for _, r := range resp.Records {
		rec := models.OwnershipRecord{
			TitleNumber: r.TitleNumber,
			Tenure:      r.Tenure,
			Proprietors: r.Proprietors,
			Address:     r.Address.toModel(),
			SearchKey:   key,
		}
		if rec.Address.UPRN == "" {
			rec.Address.UPRN = r.UPRN
		}
		if t, err := parseTime(r.LastUpdated); err == nil && !t.IsZero() {
			rec.LastUpdated = &t
		}
		out = append(out, rec)
	}
	return out, nil
}

// LookupPricePaid tra cứu giao dịch theo khóa, from/to được gửi lên gateway
// nhưng caller vẫn phải lọc lại
func (c *Client) LookupPricePaid(ctx context.Context, key models.SearchKey, from, to *time.Time) ([]models.PricePaidRecord, error) {
	q := url.Values{}
	q.Set(string(key.Kind), key.Value)
	if from != nil {
		q.Set("date_from", from.Format(dateLayout))
	}
	if to != nil {
		q.Set("date_to", to.Format(dateLayout))
	}

	var resp pricePaidResponse
	if err := c.getJSON(ctx, "price_paid", "/price-paid", q, &resp); err != nil {
		return nil, err
	}

	out := make([]models.PricePaidRecord, 0, len(resp.Transactions))
	for _, r := range resp.Transactions {
		date, err := parseTime(r.Date)
		if err != nil || date.IsZero() {
			c.logger.Warn("Bỏ qua giao dịch có ngày không hợp lệ",
				zap.String("transaction_id", r.TransactionID),
				zap.String("date", r.Date))
			continue
		}
		out = append(out, models.PricePaidRecord{
			TransactionID:   r.TransactionID,
			TitleNumber:     r.TitleNumber,
			Price:           r.Price,
			TransactionDate: date,
			PropertyType:    r.PropertyType,
			Tenure:          r.Tenure,
			NewBuild:        r.NewBuild,
			Address:         r.Address.toModel(),
			SearchKey:       key,
		})
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, source, path string, q url.Values, dst interface{}) error {
	endpoint := c.baseURL + path + "?" + q.Encode()
	if err := c.limiter.WaitURL(ctx, endpoint); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.ObserveLookup(source, time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %v", models.ErrLookupUnavailable, source, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return models.ErrRecordNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %s returned %d", models.ErrLookupUnavailable, source, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %d: %s", source, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("lỗi decode %s response: %w", source, err)
	}
	return nil
}

// parseTime nhận "2006-01-02" hoặc RFC3339, chuỗi rỗng cho zero time
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
