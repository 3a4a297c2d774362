// Package matcher validate địa chỉ UK bằng fuzzy matching với danh sách địa chỉ
// tham chiếu lấy theo postcode.
package matcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/property-search/app/models"
	"github.com/property-search/internal/external"
	"github.com/property-search/internal/normalizer"
	"github.com/property-search/internal/observability"
	"github.com/property-search/internal/similarity"
	"go.uber.org/zap"
)

// PostalLookup nguồn địa chỉ tham chiếu (Royal Mail PAF) theo postcode
type PostalLookup interface {
	LookupByPostcode(ctx context.Context, postcode string) ([]models.AddressCandidate, error)
}

// Weights trọng số cho từng field khi tính điểm
type Weights struct {
	AddressLine1 float64 `json:"addressLine1"`
	TownOrCity   float64 `json:"townOrCity"`
	Postcode     float64 `json:"postcode"`
}

// DefaultWeights 0.4 line1, 0.3 town, 0.3 postcode
func DefaultWeights() Weights {
	return Weights{AddressLine1: 0.4, TownOrCity: 0.3, Postcode: 0.3}
}

// DefaultThreshold ngưỡng confidence để coi địa chỉ là hợp lệ
const DefaultThreshold = 0.8

// Config cấu hình matcher
type Config struct {
	Weights       Weights
	Threshold     float64
	Scorer        similarity.Scorer
	Abbreviations map[string]string // bổ sung vào bảng embedded, key trùng thì ghi đè
}

// AddressMatcher so khớp địa chỉ người dùng với dữ liệu Royal Mail
type AddressMatcher struct {
	lookup     PostalLookup
	scorer     similarity.Scorer
	normalizer *normalizer.TextNormalizer
	weights    Weights
	threshold  float64
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewAddressMatcher tạo mới AddressMatcher, field thiếu trong cfg lấy mặc định
func NewAddressMatcher(lookup PostalLookup, cfg Config, logger *zap.Logger, metrics *observability.Metrics) *AddressMatcher {
	if cfg.Scorer == nil {
		cfg.Scorer = similarity.Levenshtein{}
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = DefaultThreshold
	}
	return &AddressMatcher{
		lookup:     lookup,
		scorer:     cfg.Scorer,
		normalizer: newNormalizer(cfg.Abbreviations),
		weights:    cfg.Weights,
		threshold:  cfg.Threshold,
		logger:     observability.OrNop(logger),
		metrics:    metrics,
	}
}

func newNormalizer(extra map[string]string) *normalizer.TextNormalizer {
	if len(extra) == 0 {
		return normalizer.NewTextNormalizer()
	}
	abbr := map[string]string{}
	if rules, err := normalizer.LoadRulesConfig(); err == nil {
		abbr = rules.Abbreviations()
	}
	for k, v := range extra {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		abbr[k] = strings.ToLower(strings.TrimSpace(v))
	}
	return normalizer.NewTextNormalizerWithRules(abbr)
}

// Threshold ngưỡng đang dùng
func (m *AddressMatcher) Threshold() float64 {
	return m.threshold
}

// ValidateAddress validate một địa chỉ. Không bao giờ trả lỗi:
// mọi sự cố được phản ánh trong Issues của kết quả.
func (m *AddressMatcher) ValidateAddress(ctx context.Context, in models.AddressCandidate) models.MatchResult {
	if !normalizer.IsValidPostcode(in.Postcode) {
		m.metrics.IncMatchOutcome("invalid_postcode")
		return models.MatchResult{Issues: []string{models.IssueInvalidPostcode}}
	}
	postcode := normalizer.FormatPostcode(in.Postcode)

	candidates, err := m.fetch(ctx, postcode)
	if err != nil {
		m.logger.Warn("Postal lookup failed",
			zap.String("postcode", postcode),
			zap.Error(err))
		m.metrics.IncMatchOutcome("unavailable")
		return models.MatchResult{Issues: []string{models.IssueServiceUnavailable}}
	}

	if len(candidates) == 0 {
		m.metrics.IncMatchOutcome("not_found")
		return models.MatchResult{Issues: []string{models.IssueAddressNotFound}}
	}

	input := m.prepare(in)
	bestIdx, bestScore := -1, -1.0
	for i, c := range candidates {
		// chỉ thay khi lớn hơn hẳn: hòa thì giữ candidate gặp trước
		if s := m.score(input, m.prepare(c)); s > bestScore {
			bestIdx, bestScore = i, s
		}
	}

	best := candidates[bestIdx]
	result := models.MatchResult{
		Confidence:       bestScore,
		SuggestedAddress: &best,
		Issues:           []string{},
	}
	if bestScore >= m.threshold {
		result.IsValid = true
		m.metrics.IncMatchOutcome("valid")
	} else {
		result.Issues = append(result.Issues, models.IssueAddressNotFound)
		m.metrics.IncMatchOutcome("below_threshold")
	}

	m.logger.Debug("Address validated",
		zap.String("postcode", postcode),
		zap.Int("candidates", len(candidates)),
		zap.Float64("confidence", bestScore))
	return result
}

// ValidateFreeText tách địa chỉ một dòng thành field rồi validate
func (m *AddressMatcher) ValidateFreeText(ctx context.Context, raw string) models.MatchResult {
	return m.ValidateAddress(ctx, external.SplitAddress(raw))
}

func (m *AddressMatcher) fetch(ctx context.Context, postcode string) (candidates []models.AddressCandidate, err error) {
	if m.lookup == nil {
		return nil, models.ErrLookupUnavailable
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: postal lookup panic: %v", models.ErrLookupUnavailable, r)
		}
	}()

	start := time.Now()
	candidates, err = m.lookup.LookupByPostcode(ctx, postcode)
	m.metrics.ObserveLookup("postal", time.Since(start))
	return candidates, err
}

// preparedAddress field đã chuẩn hóa dùng để so sánh
type preparedAddress struct {
	line1    string
	town     string
	postcode string
}

func (m *AddressMatcher) prepare(a models.AddressCandidate) preparedAddress {
	return preparedAddress{
		line1:    m.normalizer.Normalize(a.AddressLine1),
		town:     m.normalizer.Normalize(a.TownOrCity),
		postcode: normalizer.NormalizePostcode(a.Postcode),
	}
}

// score tổng có trọng số, field thiếu ở một phía bị bỏ cùng trọng số của nó
func (m *AddressMatcher) score(input, cand preparedAddress) float64 {
	var total, weight float64

	if input.line1 != "" && cand.line1 != "" {
		total += m.weights.AddressLine1 * m.scorer.Score(input.line1, cand.line1)
		weight += m.weights.AddressLine1
	}
	if input.town != "" && cand.town != "" {
		total += m.weights.TownOrCity * m.scorer.Score(input.town, cand.town)
		weight += m.weights.TownOrCity
	}
	if input.postcode != "" && cand.postcode != "" {
		if input.postcode == cand.postcode {
			total += m.weights.Postcode
		}
		weight += m.weights.Postcode
	}

	if weight <= 0 {
		return 0
	}
	s := total / weight
	if s > 1 {
		return 1
	}
	return s
}
