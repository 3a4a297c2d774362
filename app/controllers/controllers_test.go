package controllers

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/property-search/app/models"
	"github.com/property-search/app/responses"
	"github.com/property-search/app/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubOwnership struct {
	release chan struct{}
}

func (s stubOwnership) LookupOwnership(ctx context.Context, key models.SearchKey) ([]models.OwnershipRecord, error) {
	if s.release != nil {
		<-s.release
	}
	return []models.OwnershipRecord{{
		TitleNumber: "NGL" + strings.ReplaceAll(key.Value, " ", ""),
		Tenure:      "freehold",
		Proprietors: []string{"Jane Smith"},
		Address:     models.AddressCandidate{AddressLine1: "1 Test Street", TownOrCity: "London", Postcode: key.Value, UPRN: "100"},
		SearchKey:   key,
	}}, nil
}

type stubPricePaid struct{}

func (stubPricePaid) LookupPricePaid(ctx context.Context, key models.SearchKey, from, to *time.Time) ([]models.PricePaidRecord, error) {
	return []models.PricePaidRecord{{
		TransactionID:   "TX1",
		Price:           450000,
		TransactionDate: time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC),
		SearchKey:       key,
	}}, nil
}

type stubMatcher struct {
	lastFreeText string
	lastAddress  models.AddressCandidate
}

func (m *stubMatcher) ValidateAddress(ctx context.Context, a models.AddressCandidate) models.MatchResult {
	m.lastAddress = a
	if a.Postcode == "" {
		return models.MatchResult{Issues: []string{models.IssueInvalidPostcode}}
	}
	return models.MatchResult{IsValid: true, Confidence: 1, SuggestedAddress: &a, Issues: []string{}}
}

func (m *stubMatcher) ValidateFreeText(ctx context.Context, raw string) models.MatchResult {
	m.lastFreeText = raw
	return models.MatchResult{IsValid: true, Confidence: 0.9, Issues: []string{}}
}

type statusBody struct {
	models.BulkSearchJob
	Progress float64 `json:"progress"`
}

func newTestRouter(t *testing.T, own services.OwnershipRegistry) (*gin.Engine, *stubMatcher) {
	t.Helper()
	store := services.NewMemoryJobStore(time.Hour, zap.NewNop())
	engine := services.NewBulkSearchService(store, own, stubPricePaid{}, nil,
		services.EngineConfig{Workers: 2, ItemTimeout: 5 * time.Second}, zap.NewNop(), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = engine.Shutdown(ctx)
	})

	bulk := NewBulkSearchController(engine, services.NewExportService(store, zap.NewNop()), zap.NewNop())
	matcher := &stubMatcher{}
	address := NewAddressController(matcher, zap.NewNop())

	router := gin.New()
	router.POST("/v1/bulk-search", bulk.Submit)
	router.GET("/v1/bulk-search/:requestId", bulk.GetStatus)
	router.DELETE("/v1/bulk-search/:requestId", bulk.Cancel)
	router.GET("/v1/bulk-search/:requestId/results", bulk.Results)
	router.GET("/v1/bulk-export/:requestId", bulk.Export)
	router.POST("/v1/address/validate", address.ValidateAddress)
	return router, matcher
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func submit(t *testing.T, router *gin.Engine, body string) responses.SubmitResponse {
	t.Helper()
	rec := doRequest(router, http.MethodPost, "/v1/bulk-search", body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp responses.SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RequestID)
	return resp
}

func waitForStatus(t *testing.T, router *gin.Engine, requestID string, want models.JobStatus) statusBody {
	t.Helper()
	var body statusBody
	require.Eventually(t, func() bool {
		rec := doRequest(router, http.MethodGet, "/v1/bulk-search/"+requestID, "")
		if rec.Code != http.StatusOK {
			return false
		}
		body = statusBody{}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			return false
		}
		return body.Status == want
	}, 5*time.Second, 10*time.Millisecond)
	return body
}

func TestBulkSearch_SubmitPollExport(t *testing.T) {
	router, _ := newTestRouter(t, stubOwnership{})

	resp := submit(t, router, `{"searchType":"both","postcodes":["sw1a1aa"],"maxResults":10}`)
	assert.Equal(t, models.JobStatusPending, resp.Status)
	assert.Equal(t, 2, resp.TotalRecords)
	assert.Equal(t, 0, resp.ProcessedRecords)

	status := waitForStatus(t, router, resp.RequestID, models.JobStatusCompleted)
	assert.Equal(t, 2, status.ProcessedRecords)
	assert.Equal(t, 1.0, status.Progress)
	assert.Len(t, status.Results.OwnershipRecords, 1)
	assert.Len(t, status.Results.PricePaidRecords, 1)
	assert.Len(t, status.Results.Properties, 1)
	assert.Empty(t, status.Errors)

	rec := doRequest(router, http.MethodGet, "/v1/bulk-export/"+resp.RequestID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, services.ExportColumns, rows[0])
	assert.Equal(t, services.RecordTypeProperty, rows[1][0])
	assert.Equal(t, services.RecordTypeOwnership, rows[2][0])
	assert.Equal(t, services.RecordTypePricePaid, rows[3][0])
}

func TestBulkSearch_ValidationError(t *testing.T) {
	router, _ := newTestRouter(t, stubOwnership{})

	rec := doRequest(router, http.MethodPost, "/v1/bulk-search", `{"searchType":"everything","postcodes":["INVALID"]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp responses.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "VALIDATION_ERROR", resp.Error)
	issues, ok := resp.Details.([]interface{})
	require.True(t, ok)
	assert.Len(t, issues, 2)
	assert.NotEmpty(t, resp.Timestamp)
}

func TestBulkSearch_BadDateAndMalformedJSON(t *testing.T) {
	router, _ := newTestRouter(t, stubOwnership{})

	rec := doRequest(router, http.MethodPost, "/v1/bulk-search", `{"searchType":"price_paid","postcodes":["SW1A 1AA"],"dateFrom":"2020/01/01"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")

	rec = doRequest(router, http.MethodPost, "/v1/bulk-search", `{"searchType":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_REQUEST")
}

func TestBulkSearch_UnknownJob(t *testing.T) {
	router, _ := newTestRouter(t, stubOwnership{})

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/v1/bulk-search/missing"},
		{http.MethodDelete, "/v1/bulk-search/missing"},
		{http.MethodGet, "/v1/bulk-search/missing/results"},
		{http.MethodGet, "/v1/bulk-export/missing"},
	} {
		rec := doRequest(router, tc.method, tc.path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", tc.method, tc.path)
		assert.Contains(t, rec.Body.String(), "JOB_NOT_FOUND")
	}
}

func TestBulkSearch_ExportNotReady(t *testing.T) {
	release := make(chan struct{})
	router, _ := newTestRouter(t, stubOwnership{release: release})

	resp := submit(t, router, `{"searchType":"ownership","postcodes":["SW1A 1AA"]}`)
	rec := doRequest(router, http.MethodGet, "/v1/bulk-export/"+resp.RequestID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "JOB_NOT_READY")

	close(release)
	waitForStatus(t, router, resp.RequestID, models.JobStatusCompleted)
	rec = doRequest(router, http.MethodGet, "/v1/bulk-export/"+resp.RequestID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBulkSearch_Cancel(t *testing.T) {
	release := make(chan struct{})
	router, _ := newTestRouter(t, stubOwnership{release: release})

	resp := submit(t, router, `{"searchType":"ownership","postcodes":["SW1A 1AA","M1 1AE","B33 8TH","CR2 6XH"]}`)
	rec := doRequest(router, http.MethodDelete, "/v1/bulk-search/"+resp.RequestID, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	close(release)
	status := waitForStatus(t, router, resp.RequestID, models.JobStatusFailed)
	assert.Contains(t, status.Errors, models.CancelledMessage)
	assert.NotNil(t, status.CompletedAt)

	rec = doRequest(router, http.MethodDelete, "/v1/bulk-search/"+resp.RequestID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBulkSearch_ResultsNDJSON(t *testing.T) {
	router, _ := newTestRouter(t, stubOwnership{})
	resp := submit(t, router, `{"searchType":"ownership","titleNumbers":["NGL123"]}`)
	waitForStatus(t, router, resp.RequestID, models.JobStatusCompleted)

	rec := doRequest(router, http.MethodGet, "/v1/bulk-search/"+resp.RequestID+"/results", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.Equal(t, 2, countLines(t, rec.Body))

	rec = doRequest(router, http.MethodGet, "/v1/bulk-search/"+resp.RequestID+"/results?gzip=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	gz, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	defer gz.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(gz)
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(t, &buf))
}

func countLines(t *testing.T, r io.Reader) int {
	t.Helper()
	n := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		var row services.ExportRow
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &row))
		n++
	}
	return n
}

func TestAddressController_Validate(t *testing.T) {
	router, matcher := newTestRouter(t, stubOwnership{})

	rec := doRequest(router, http.MethodPost, "/v1/address/validate",
		`{"addressLine1":"10 Downing Street","townOrCity":"London","postcode":"SW1A 2AA"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var result models.MatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.IsValid)
	assert.Equal(t, "10 Downing Street", matcher.lastAddress.AddressLine1)

	rec = doRequest(router, http.MethodPost, "/v1/address/validate", `{"address":"10 Downing Street, London SW1A 2AA"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10 Downing Street, London SW1A 2AA", matcher.lastFreeText)

	// lỗi nghiệp vụ vẫn là 200
	rec = doRequest(router, http.MethodPost, "/v1/address/validate", `{"addressLine1":"Somewhere"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.IsValid)
	assert.Equal(t, []string{models.IssueInvalidPostcode}, result.Issues)

	rec = doRequest(router, http.MethodPost, "/v1/address/validate", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthController(t *testing.T) {
	healthy := NewHealthController("1.0.0", map[string]HealthCheck{
		"meilisearch": func(ctx context.Context) error { return nil },
	})
	degraded := NewHealthController("1.0.0", map[string]HealthCheck{
		"meilisearch": func(ctx context.Context) error { return nil },
		"redis":       func(ctx context.Context) error { return errors.New("connection refused") },
	})

	router := gin.New()
	router.GET("/ok/health", healthy.HealthCheck)
	router.GET("/ok/ready", healthy.Ready)
	router.GET("/bad/health", degraded.HealthCheck)
	router.GET("/bad/ready", degraded.Ready)
	router.GET("/live", degraded.Live)

	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/ok/ready", "").Code)
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/live", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, doRequest(router, http.MethodGet, "/bad/ready", "").Code)

	rec := doRequest(router, http.MethodGet, "/bad/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var report responses.HealthCheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "degraded", report.Status)
	assert.Equal(t, "healthy", report.Services["meilisearch"])
	assert.Contains(t, report.Services["redis"], "connection refused")
	assert.Equal(t, "1.0.0", report.Version)
}
