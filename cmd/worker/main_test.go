package main

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/property-search/app/models"
	"github.com/property-search/app/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedRegistry struct {
	delay time.Duration
}

func (f fixedRegistry) LookupOwnership(ctx context.Context, key models.SearchKey) ([]models.OwnershipRecord, error) {
	time.Sleep(f.delay)
	return []models.OwnershipRecord{{
		TitleNumber: "NGL1",
		Address:     models.AddressCandidate{AddressLine1: "1 Test Street", Postcode: "SW1A 1AA", UPRN: "42"},
		SearchKey:   key,
	}}, nil
}

func (f fixedRegistry) LookupPricePaid(ctx context.Context, key models.SearchKey, from, to *time.Time) ([]models.PricePaidRecord, error) {
	time.Sleep(f.delay)
	return []models.PricePaidRecord{{
		TransactionID:   "TX1",
		Price:           300000,
		TransactionDate: time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
		SearchKey:       key,
	}}, nil
}

func newEngine(t *testing.T, reg fixedRegistry) *services.BulkSearchService {
	t.Helper()
	store := services.NewMemoryJobStore(0, zap.NewNop())
	engine := services.NewBulkSearchService(store, reg, reg, nil, services.EngineConfig{Workers: 1}, zap.NewNop(), nil)
	t.Cleanup(func() { _ = engine.Shutdown(context.Background()) })
	return engine
}

func TestReadRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"searchType":"both","postcodes":["SW1A 1AA"],"dateFrom":"2020-01-01"}`), 0o600))

	req, err := readRequest(path)
	require.NoError(t, err)
	assert.Equal(t, models.SearchTypeBoth, req.SearchType)
	assert.Equal(t, models.DefaultMaxResult, req.MaxResults)
	require.NotNil(t, req.DateFrom)

	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))
	_, err = readRequest(path)
	assert.Error(t, err)
}

func TestRunJob_WritesCSV(t *testing.T) {
	engine := newEngine(t, fixedRegistry{})
	req := models.BulkSearchRequest{SearchType: models.SearchTypeBoth, Postcodes: []string{"SW1A 1AA"}, MaxResults: 10}

	var out strings.Builder
	job, err := runJob(context.Background(), engine, req, &out, 5*time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)

	rows, err := csv.NewReader(strings.NewReader(out.String())).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	assert.Equal(t, services.ExportColumns, rows[0])
}

func TestRunJob_InterruptCancels(t *testing.T) {
	engine := newEngine(t, fixedRegistry{delay: 50 * time.Millisecond})
	req := models.BulkSearchRequest{
		SearchType: models.SearchTypeOwnership,
		Postcodes:  []string{"SW1A 1AA", "M1 1AE", "B33 8TH", "CR2 6XH", "EC1A 1BB"},
		MaxResults: 10,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var out strings.Builder
	job, err := runJob(ctx, engine, req, &out, 5*time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.Errors, models.CancelledMessage)
	assert.Empty(t, out.String())
}

func TestRunJob_InvalidRequest(t *testing.T) {
	engine := newEngine(t, fixedRegistry{})
	_, err := runJob(context.Background(), engine, models.BulkSearchRequest{SearchType: "nope", MaxResults: 1}, &strings.Builder{}, time.Millisecond, zap.NewNop())
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}
