package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/property-search/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeOwnershipRegistry struct {
	lookup func(ctx context.Context, key models.SearchKey) ([]models.OwnershipRecord, error)
}

func (f fakeOwnershipRegistry) LookupOwnership(ctx context.Context, key models.SearchKey) ([]models.OwnershipRecord, error) {
	return f.lookup(ctx, key)
}

type fakePricePaidRegistry struct {
	lookup func(ctx context.Context, key models.SearchKey, from, to *time.Time) ([]models.PricePaidRecord, error)
}

func (f fakePricePaidRegistry) LookupPricePaid(ctx context.Context, key models.SearchKey, from, to *time.Time) ([]models.PricePaidRecord, error) {
	return f.lookup(ctx, key, from, to)
}

type fakeValidator struct {
	validate func(ctx context.Context, c models.AddressCandidate) models.MatchResult
}

func (f fakeValidator) ValidateAddress(ctx context.Context, c models.AddressCandidate) models.MatchResult {
	return f.validate(ctx, c)
}

// failingStore job store trả lỗi khi ghi tiến độ
type failingStore struct {
	*MemoryJobStore
}

func (f failingStore) UpdateProgress(context.Context, string, models.ItemDelta) error {
	return errors.New("disk full")
}

func oneOwnership() fakeOwnershipRegistry {
	return fakeOwnershipRegistry{lookup: func(ctx context.Context, key models.SearchKey) ([]models.OwnershipRecord, error) {
		return []models.OwnershipRecord{{
			TitleNumber: "T-" + key.Value,
			Address:     models.AddressCandidate{AddressLine1: "1 Test Street", Postcode: key.Value},
			SearchKey:   key,
		}}, nil
	}}
}

func onePricePaid() fakePricePaidRegistry {
	return fakePricePaidRegistry{lookup: func(ctx context.Context, key models.SearchKey, from, to *time.Time) ([]models.PricePaidRecord, error) {
		return []models.PricePaidRecord{{
			TransactionID:   "TX-" + key.Value,
			Price:           250000,
			TransactionDate: time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC),
			SearchKey:       key,
		}}, nil
	}}
}

func newTestEngine(t *testing.T, store JobStore, own OwnershipRegistry, pp PricePaidRegistry, cfg EngineConfig) *BulkSearchService {
	t.Helper()
	svc := NewBulkSearchService(store, own, pp, nil, cfg, zap.NewNop(), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc
}

func waitTerminal(t *testing.T, svc *BulkSearchService, id string) *models.BulkSearchJob {
	t.Helper()
	var job *models.BulkSearchJob
	require.Eventually(t, func() bool {
		j, err := svc.GetStatus(context.Background(), id)
		if err != nil {
			return false
		}
		job = j
		return j.Status.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)
	return job
}

func validRequest(postcodes ...string) models.BulkSearchRequest {
	return models.BulkSearchRequest{
		SearchType: models.SearchTypeBoth,
		Postcodes:  postcodes,
		MaxResults: 1000,
	}
}

func TestBulkSearch_BothBranches(t *testing.T) {
	store := NewMemoryJobStore(0, nil)
	svc := newTestEngine(t, store, oneOwnership(), onePricePaid(), EngineConfig{Workers: 4})

	job, err := svc.Submit(context.Background(), validRequest("SW1A 1AA", "EC1A 1BB"))
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, 4, job.TotalRecords)
	assert.Equal(t, 0, job.ProcessedRecords)

	done := waitTerminal(t, svc, job.RequestID)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, 4, done.TotalRecords)
	assert.Equal(t, 4, done.ProcessedRecords)
	assert.Len(t, done.Results.OwnershipRecords, 2)
	assert.Len(t, done.Results.PricePaidRecords, 2)
	assert.Len(t, done.Results.Properties, 2)
	assert.Empty(t, done.Errors)
	assert.NotNil(t, done.StartedAt)
	require.NotNil(t, done.CompletedAt)
	assert.False(t, done.CompletedAt.Before(done.CreatedAt))
}

func TestBulkSearch_ValidationCreatesNoJob(t *testing.T) {
	keys := make([]string, 0, 101)
	for i := 0; i < 101; i++ {
		keys = append(keys, fmt.Sprintf("NGL%d", i+1))
	}

	testCases := []struct {
		name string
		req  models.BulkSearchRequest
		want string
	}{
		{name: "too many keys", req: models.BulkSearchRequest{SearchType: models.SearchTypeOwnership, TitleNumbers: keys, MaxResults: 10}, want: "at most 100"},
		{name: "no keys", req: models.BulkSearchRequest{SearchType: models.SearchTypeOwnership, MaxResults: 10}, want: "at least one"},
		{name: "bad search type", req: models.BulkSearchRequest{SearchType: "everything", Postcodes: []string{"M1 1AE"}, MaxResults: 10}, want: "searchType"},
		{name: "bad postcode", req: models.BulkSearchRequest{SearchType: models.SearchTypeOwnership, Postcodes: []string{"INVALID"}, MaxResults: 10}, want: "invalid postcode"},
		{name: "bad title", req: models.BulkSearchRequest{SearchType: models.SearchTypeOwnership, TitleNumbers: []string{"ABCD1"}, MaxResults: 10}, want: "invalid title number"},
		{name: "max results zero", req: models.BulkSearchRequest{SearchType: models.SearchTypeOwnership, Postcodes: []string{"M1 1AE"}}, want: "maxResults"},
		{name: "max results too big", req: models.BulkSearchRequest{SearchType: models.SearchTypeOwnership, Postcodes: []string{"M1 1AE"}, MaxResults: 10001}, want: "maxResults"},
		{name: "dates reversed", req: models.BulkSearchRequest{
			SearchType: models.SearchTypePricePaid, Postcodes: []string{"M1 1AE"}, MaxResults: 10,
			DateFrom: ptrTime(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)),
			DateTo:   ptrTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		}, want: "dateFrom"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := NewMemoryJobStore(0, nil)
			svc := newTestEngine(t, store, oneOwnership(), onePricePaid(), EngineConfig{})

			job, err := svc.Submit(context.Background(), tc.req)
			assert.Nil(t, job)
			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, err.Error(), tc.want)
			assert.Equal(t, 0, store.Size())
		})
	}
}

func TestBulkSearch_HundredCombinedKeysAccepted(t *testing.T) {
	titles := make([]string, 0, 60)
	for i := 0; i < 60; i++ {
		titles = append(titles, fmt.Sprintf("NGL%d", i+1))
	}
	postcodes := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		postcodes = append(postcodes, fmt.Sprintf("M%d 1AE", i+1))
	}

	store := NewMemoryJobStore(0, nil)
	svc := newTestEngine(t, store, oneOwnership(), onePricePaid(), EngineConfig{Workers: 8})

	job, err := svc.Submit(context.Background(), models.BulkSearchRequest{
		SearchType:   models.SearchTypeOwnership,
		Postcodes:    postcodes,
		TitleNumbers: titles,
		MaxResults:   1000,
	})
	require.NoError(t, err)
	assert.Equal(t, 100, job.TotalRecords)

	done := waitTerminal(t, svc, job.RequestID)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, 100, done.ProcessedRecords)
	assert.Equal(t, done.TotalRecords, done.ProcessedRecords)
	assert.Len(t, done.Results.OwnershipRecords, 100)

	// thêm một key là vượt giới hạn
	_, err = svc.Submit(context.Background(), models.BulkSearchRequest{
		SearchType:   models.SearchTypeOwnership,
		Postcodes:    append(postcodes, "M99 1AE"),
		TitleNumbers: titles,
		MaxResults:   1000,
	})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "at most 100")
}

func TestNormalizeBulkSearchRequest_Dedupes(t *testing.T) {
	out, err := NormalizeBulkSearchRequest(models.BulkSearchRequest{
		SearchType:   models.SearchTypeOwnership,
		Postcodes:    []string{"sw1a1aa", "SW1A 1AA", " M1 1AE "},
		TitleNumbers: []string{"ngl1", "NGL1"},
		MaxResults:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"SW1A 1AA", "M1 1AE"}, out.Postcodes)
	assert.Equal(t, []string{"NGL1"}, out.TitleNumbers)
}

func TestExpandWorkItems_Order(t *testing.T) {
	items := ExpandWorkItems(models.BulkSearchRequest{
		SearchType:   models.SearchTypeBoth,
		Postcodes:    []string{"M1 1AE"},
		TitleNumbers: []string{"NGL1"},
	})
	require.Len(t, items, 4)
	assert.Equal(t, models.WorkItem{Key: models.SearchKey{Kind: models.KeyKindPostcode, Value: "M1 1AE"}, Branch: models.SearchTypeOwnership}, items[0])
	assert.Equal(t, models.SearchTypePricePaid, items[1].Branch)
	assert.Equal(t, models.KeyKindTitleNumber, items[2].Key.Kind)
	assert.Equal(t, models.SearchTypePricePaid, items[3].Branch)
}

func TestBulkSearch_AllItemsFail(t *testing.T) {
	own := fakeOwnershipRegistry{lookup: func(context.Context, models.SearchKey) ([]models.OwnershipRecord, error) {
		return nil, fmt.Errorf("%w: gateway 502", models.ErrLookupUnavailable)
	}}
	store := NewMemoryJobStore(0, nil)
	svc := newTestEngine(t, store, own, onePricePaid(), EngineConfig{Workers: 2})

	req := validRequest("SW1A 1AA", "EC1A 1BB", "M1 1AE")
	req.SearchType = models.SearchTypeOwnership
	job, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)

	done := waitTerminal(t, svc, job.RequestID)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, 3, done.ProcessedRecords)
	assert.Len(t, done.Errors, 3)
	assert.Contains(t, done.Errors[0], "ownership lookup failed")
}

func TestBulkSearch_NotFoundIsEmpty(t *testing.T) {
	own := fakeOwnershipRegistry{lookup: func(context.Context, models.SearchKey) ([]models.OwnershipRecord, error) {
		return nil, models.ErrRecordNotFound
	}}
	svc := newTestEngine(t, NewMemoryJobStore(0, nil), own, onePricePaid(), EngineConfig{})

	req := validRequest("SW1A 1AA")
	req.SearchType = models.SearchTypeOwnership
	job, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)

	done := waitTerminal(t, svc, job.RequestID)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, 1, done.ProcessedRecords)
	assert.Empty(t, done.Errors)
	assert.Empty(t, done.Results.OwnershipRecords)
}

func TestBulkSearch_PanicBecomesError(t *testing.T) {
	own := fakeOwnershipRegistry{lookup: func(context.Context, models.SearchKey) ([]models.OwnershipRecord, error) {
		panic("nil map")
	}}
	svc := newTestEngine(t, NewMemoryJobStore(0, nil), own, onePricePaid(), EngineConfig{})

	job, err := svc.Submit(context.Background(), validRequest("SW1A 1AA"))
	require.NoError(t, err)

	done := waitTerminal(t, svc, job.RequestID)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, 2, done.ProcessedRecords)
	require.Len(t, done.Errors, 1)
	assert.Contains(t, done.Errors[0], "panicked")
	assert.Len(t, done.Results.PricePaidRecords, 1)
}

func TestBulkSearch_StoreFailureFailsJob(t *testing.T) {
	store := failingStore{NewMemoryJobStore(0, nil)}
	svc := newTestEngine(t, store, oneOwnership(), onePricePaid(), EngineConfig{Workers: 2})

	job, err := svc.Submit(context.Background(), validRequest("SW1A 1AA"))
	require.NoError(t, err)

	done := waitTerminal(t, svc, job.RequestID)
	assert.Equal(t, models.JobStatusFailed, done.Status)
	require.NotEmpty(t, done.Errors)
	assert.Contains(t, done.Errors[len(done.Errors)-1], "disk full")
}

func TestBulkSearch_DateFilterAndCap(t *testing.T) {
	pp := fakePricePaidRegistry{lookup: func(ctx context.Context, key models.SearchKey, from, to *time.Time) ([]models.PricePaidRecord, error) {
		var out []models.PricePaidRecord
		for i, d := range []string{"2019-12-31", "2020-01-01", "2020-06-15", "2020-12-31", "2021-01-01"} {
			day, _ := time.Parse("2006-01-02", d)
			out = append(out, models.PricePaidRecord{TransactionID: fmt.Sprintf("%s-%d", key.Value, i), TransactionDate: day})
		}
		return out, nil
	}}
	svc := newTestEngine(t, NewMemoryJobStore(0, nil), oneOwnership(), pp, EngineConfig{Workers: 1})

	req := models.BulkSearchRequest{
		SearchType: models.SearchTypePricePaid,
		Postcodes:  []string{"SW1A 1AA", "M1 1AE"},
		DateFrom:   ptrTime(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)),
		DateTo:     ptrTime(time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC)),
		MaxResults: 4,
	}
	job, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)

	done := waitTerminal(t, svc, job.RequestID)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	// 3 bản ghi trong khoảng mỗi postcode, bucket bị cắt ở 4
	require.Len(t, done.Results.PricePaidRecords, 4)
	for _, rec := range done.Results.PricePaidRecords {
		assert.Equal(t, 2020, rec.TransactionDate.Year())
	}
}

func TestBulkSearch_PropertiesLastWriteWins(t *testing.T) {
	var calls atomic.Int32
	own := fakeOwnershipRegistry{lookup: func(ctx context.Context, key models.SearchKey) ([]models.OwnershipRecord, error) {
		n := calls.Add(1)
		return []models.OwnershipRecord{{
			TitleNumber: fmt.Sprintf("T%d", n),
			Address:     models.AddressCandidate{AddressLine1: "1 Shared Road", UPRN: "100"},
		}}, nil
	}}
	svc := newTestEngine(t, NewMemoryJobStore(0, nil), own, onePricePaid(), EngineConfig{Workers: 1})

	req := validRequest("SW1A 1AA", "M1 1AE")
	req.SearchType = models.SearchTypeOwnership
	job, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)

	done := waitTerminal(t, svc, job.RequestID)
	assert.Len(t, done.Results.OwnershipRecords, 2)
	require.Len(t, done.Results.Properties, 1)
	assert.Equal(t, "uprn:100", done.Results.Properties[0].Key)
	assert.Equal(t, "T2", done.Results.Properties[0].TitleNumber)
}

func TestBulkSearch_VerifyAddresses(t *testing.T) {
	validator := fakeValidator{validate: func(ctx context.Context, c models.AddressCandidate) models.MatchResult {
		return models.MatchResult{IsValid: true, Confidence: 0.93, SuggestedAddress: &c, Issues: []string{}}
	}}
	svc := NewBulkSearchService(NewMemoryJobStore(0, nil), oneOwnership(), onePricePaid(), validator,
		EngineConfig{Workers: 2, VerifyAddresses: true}, zap.NewNop(), nil)
	defer svc.Shutdown(context.Background())

	req := validRequest("SW1A 1AA")
	req.SearchType = models.SearchTypeOwnership
	job, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)

	done := waitTerminal(t, svc, job.RequestID)
	require.Len(t, done.Results.Properties, 1)
	require.NotNil(t, done.Results.Properties[0].AddressMatch)
	assert.Equal(t, 0.93, done.Results.Properties[0].AddressMatch.Confidence)
}

func TestBulkSearch_Cancel(t *testing.T) {
	started := make(chan struct{}, 10)
	release := make(chan struct{})
	var calls atomic.Int32
	own := fakeOwnershipRegistry{lookup: func(ctx context.Context, key models.SearchKey) ([]models.OwnershipRecord, error) {
		calls.Add(1)
		started <- struct{}{}
		<-release
		// lookup không bị hủy theo job
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return []models.OwnershipRecord{{TitleNumber: key.Value}}, nil
	}}
	svc := newTestEngine(t, NewMemoryJobStore(0, nil), own, onePricePaid(), EngineConfig{Workers: 1})

	req := validRequest("SW1A 1AA", "M1 1AE", "EC1A 1BB")
	req.SearchType = models.SearchTypeOwnership
	job, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)

	<-started
	require.NoError(t, svc.Cancel(context.Background(), job.RequestID))

	snap, err := svc.GetStatus(context.Background(), job.RequestID)
	require.NoError(t, err)
	assert.True(t, snap.Cancelled)
	close(release)

	done := waitTerminal(t, svc, job.RequestID)
	assert.Equal(t, models.JobStatusFailed, done.Status)
	assert.Contains(t, done.Errors, models.CancelledMessage)
	assert.Equal(t, 1, done.ProcessedRecords)
	assert.Len(t, done.Results.OwnershipRecords, 1, "in-flight lookup completes")
	assert.Equal(t, int32(1), calls.Load())

	assert.ErrorIs(t, svc.Cancel(context.Background(), job.RequestID), models.ErrJobTerminal)
	assert.ErrorIs(t, svc.Cancel(context.Background(), "unknown"), models.ErrJobNotFound)
}

func TestBulkSearch_CancelOrphanedJob(t *testing.T) {
	store := NewMemoryJobStore(0, nil)
	newStoredJob(t, store, "orphan", 2, 10)
	svc := newTestEngine(t, store, oneOwnership(), onePricePaid(), EngineConfig{})

	require.NoError(t, svc.Cancel(context.Background(), "orphan"))
	job, err := store.Get(context.Background(), "orphan")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, []string{models.CancelledMessage}, job.Errors)
}

func TestBulkSearch_Shutdown(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	started := make(chan struct{})
	own := fakeOwnershipRegistry{lookup: func(ctx context.Context, key models.SearchKey) ([]models.OwnershipRecord, error) {
		once.Do(func() { close(started) })
		<-release
		return nil, nil
	}}
	store := NewMemoryJobStore(0, nil)
	svc := NewBulkSearchService(store, own, onePricePaid(), nil, EngineConfig{Workers: 1}, nil, nil)

	req := validRequest("SW1A 1AA", "M1 1AE")
	req.SearchType = models.SearchTypeOwnership
	job, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	<-started

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Shutdown(context.Background()) }()
	require.Eventually(t, func() bool { return svc.baseCtx.Err() != nil }, time.Second, time.Millisecond)
	close(release)
	require.NoError(t, <-errCh)

	got, err := store.Get(context.Background(), job.RequestID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.True(t, strings.Contains(strings.Join(got.Errors, ","), models.CancelledMessage))

	_, err = svc.Submit(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrEngineStopped)
}

func TestBulkSearch_ConcurrentJobsIndependent(t *testing.T) {
	svc := newTestEngine(t, NewMemoryJobStore(0, nil), oneOwnership(), onePricePaid(), EngineConfig{Workers: 3})

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		job, err := svc.Submit(context.Background(), validRequest("SW1A 1AA", "M1 1AE"))
		require.NoError(t, err)
		ids = append(ids, job.RequestID)
	}
	for _, id := range ids {
		done := waitTerminal(t, svc, id)
		assert.Equal(t, models.JobStatusCompleted, done.Status)
		assert.Equal(t, 4, done.ProcessedRecords)
	}
}

func TestWithinDates(t *testing.T) {
	d := time.Date(2020, 5, 5, 13, 0, 0, 0, time.UTC)
	assert.True(t, withinDates(d, nil, nil))
	assert.True(t, withinDates(d, ptrTime(time.Date(2020, 5, 5, 0, 0, 0, 0, time.UTC)), ptrTime(time.Date(2020, 5, 5, 0, 0, 0, 0, time.UTC))))
	assert.False(t, withinDates(d, ptrTime(time.Date(2020, 5, 6, 0, 0, 0, 0, time.UTC)), nil))
	assert.False(t, withinDates(d, nil, ptrTime(time.Date(2020, 5, 4, 0, 0, 0, 0, time.UTC))))
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
