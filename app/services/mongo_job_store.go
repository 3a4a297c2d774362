package services

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/property-search/app/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// jobDocument document lưu trong collection bulk_search_jobs.
// Properties là sub-document theo hash của property key nên $set ghi đè tự nhiên.
type jobDocument struct {
	RequestID        string                           `bson:"_id"`
	Status           models.JobStatus                 `bson:"status"`
	SearchType       models.SearchType                `bson:"search_type"`
	MaxResults       int                              `bson:"max_results"`
	TotalRecords     int                              `bson:"total_records"`
	ProcessedRecords int                              `bson:"processed_records"`
	Properties       map[string]models.PropertyRecord `bson:"properties"`
	OwnershipRecords []models.OwnershipRecord         `bson:"ownership_records"`
	PricePaidRecords []models.PricePaidRecord         `bson:"price_paid_records"`
	Errors           []string                         `bson:"errors"`
	Cancelled        bool                             `bson:"cancelled"`
	CreatedAt        time.Time                        `bson:"created_at"`
	StartedAt        *time.Time                       `bson:"started_at,omitempty"`
	CompletedAt      *time.Time                       `bson:"completed_at,omitempty"`
}

func newJobDocument(job *models.BulkSearchJob) jobDocument {
	doc := jobDocument{
		RequestID:        job.RequestID,
		Status:           models.JobStatusPending,
		SearchType:       job.SearchType,
		MaxResults:       job.MaxResults,
		TotalRecords:     job.TotalRecords,
		ProcessedRecords: job.ProcessedRecords,
		Properties:       make(map[string]models.PropertyRecord, len(job.Results.Properties)),
		OwnershipRecords: append([]models.OwnershipRecord{}, job.Results.OwnershipRecords...),
		PricePaidRecords: append([]models.PricePaidRecord{}, job.Results.PricePaidRecords...),
		Errors:           append([]string{}, job.Errors...),
		CreatedAt:        job.CreatedAt,
	}
	for _, p := range job.Results.Properties {
		doc.Properties[propertyField(p.Key)] = p
	}
	return doc
}

// toJob dựng lại job; properties sắp theo thời gian ghi rồi key, cắt ở MaxResults
func (d jobDocument) toJob() *models.BulkSearchJob {
	props := make([]models.PropertyRecord, 0, len(d.Properties))
	for _, p := range d.Properties {
		props = append(props, p)
	}
	sort.Slice(props, func(i, j int) bool {
		if !props[i].UpdatedAt.Equal(props[j].UpdatedAt) {
			return props[i].UpdatedAt.Before(props[j].UpdatedAt)
		}
		return props[i].Key < props[j].Key
	})
	if d.MaxResults > 0 && len(props) > d.MaxResults {
		props = props[:d.MaxResults]
	}

	job := &models.BulkSearchJob{
		RequestID:        d.RequestID,
		Status:           d.Status,
		SearchType:       d.SearchType,
		MaxResults:       d.MaxResults,
		TotalRecords:     d.TotalRecords,
		ProcessedRecords: d.ProcessedRecords,
		Results: models.BulkSearchResults{
			Properties:       props,
			OwnershipRecords: d.OwnershipRecords,
			PricePaidRecords: d.PricePaidRecords,
		},
		Errors:      d.Errors,
		Cancelled:   d.Cancelled,
		CreatedAt:   d.CreatedAt,
		StartedAt:   d.StartedAt,
		CompletedAt: d.CompletedAt,
	}
	return job.Clone()
}

// propertyField tên field an toàn cho bson (không chứa '.' hay '$')
func propertyField(key string) string {
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

var activeStatuses = bson.A{models.JobStatusPending, models.JobStatusProcessing}

// MongoJobStore job store bền vững trên MongoDB
type MongoJobStore struct {
	collection *mongo.Collection
	logger     *zap.Logger
	now        func() time.Time

	// max_results theo job, cần cho $slice khi $push
	limits sync.Map
}

// NewMongoJobStore tạo mới MongoJobStore và index (TTL theo completed_at)
func NewMongoJobStore(db *mongo.Database, collection string, retention time.Duration, logger *zap.Logger) (*MongoJobStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if collection == "" {
		collection = "bulk_search_jobs"
	}
	coll := db.Collection(collection)

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{bson.E{Key: "status", Value: 1}}},
		{Keys: bson.D{bson.E{Key: "created_at", Value: 1}}},
	}
	if retention > 0 {
		indexModels = append(indexModels, mongo.IndexModel{
			Keys:    bson.D{bson.E{Key: "completed_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retention.Seconds())),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		logger.Warn("Không thể tạo indexes cho bulk_search_jobs", zap.Error(err))
	}

	return &MongoJobStore{
		collection: coll,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Create insert job mới
func (s *MongoJobStore) Create(ctx context.Context, job *models.BulkSearchJob) error {
	if job == nil || job.RequestID == "" {
		return fmt.Errorf("job thiếu request id")
	}
	if _, err := s.collection.InsertOne(ctx, newJobDocument(job)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.ErrJobExists
		}
		return fmt.Errorf("lỗi insert job: %w", err)
	}
	s.limits.Store(job.RequestID, job.MaxResults)
	return nil
}

// Get đọc job theo request id
func (s *MongoJobStore) Get(ctx context.Context, requestID string) (*models.BulkSearchJob, error) {
	var doc jobDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": requestID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrJobNotFound
		}
		return nil, fmt.Errorf("lỗi đọc job: %w", err)
	}
	s.limits.Store(doc.RequestID, doc.MaxResults)
	return doc.toJob(), nil
}

// MarkProcessing chuyển pending -> processing
func (s *MongoJobStore) MarkProcessing(ctx context.Context, requestID string) error {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": requestID, "status": models.JobStatusPending},
		bson.M{"$set": bson.M{"status": models.JobStatusProcessing, "started_at": s.now()}},
	)
	if err != nil {
		return fmt.Errorf("lỗi cập nhật job: %w", err)
	}
	if res.MatchedCount == 0 {
		job, err := s.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			return models.ErrJobTerminal
		}
	}
	return nil
}

// MarkCancelled đặt cờ cancelled
func (s *MongoJobStore) MarkCancelled(ctx context.Context, requestID string) error {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": requestID, "status": bson.M{"$in": activeStatuses}},
		bson.M{"$set": bson.M{"cancelled": true}},
	)
	if err != nil {
		return fmt.Errorf("lỗi cập nhật job: %w", err)
	}
	if res.MatchedCount == 0 {
		return s.explainMiss(ctx, requestID, models.ErrJobTerminal)
	}
	return nil
}

// UpdateProgress một UpdateOne duy nhất, filter $expr chặn processed vượt total
func (s *MongoJobStore) UpdateProgress(ctx context.Context, requestID string, delta models.ItemDelta) error {
	if delta.Processed < 0 {
		return models.ErrProgressOverflow
	}
	limit, err := s.limitFor(ctx, requestID)
	if err != nil {
		return err
	}

	filter, update := progressUpdate(requestID, delta, limit)
	res, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("lỗi cập nhật tiến độ job: %w", err)
	}
	if res.MatchedCount == 0 {
		return s.explainMiss(ctx, requestID, models.ErrProgressOverflow)
	}
	return nil
}

// progressUpdate dựng filter và update cho UpdateProgress
func progressUpdate(requestID string, delta models.ItemDelta, limit int) (bson.M, bson.M) {
	filter := bson.M{
		"_id":    requestID,
		"status": bson.M{"$in": activeStatuses},
		"$expr": bson.M{"$lte": bson.A{
			bson.M{"$add": bson.A{"$processed_records", delta.Processed}},
			"$total_records",
		}},
	}

	update := bson.M{"$inc": bson.M{"processed_records": delta.Processed}}

	push := bson.M{}
	if len(delta.Ownership) > 0 {
		push["ownership_records"] = bson.M{"$each": delta.Ownership, "$slice": limit}
	}
	if len(delta.PricePaid) > 0 {
		push["price_paid_records"] = bson.M{"$each": delta.PricePaid, "$slice": limit}
	}
	if len(delta.Errors) > 0 {
		push["errors"] = bson.M{"$each": delta.Errors}
	}
	if len(push) > 0 {
		update["$push"] = push
	}

	if len(delta.Properties) > 0 {
		set := bson.M{}
		for _, p := range delta.Properties {
			set["properties."+propertyField(p.Key)] = p
		}
		update["$set"] = set
	}
	return filter, update
}

// Finalize đặt trạng thái cuối, chỉ khớp khi job còn active
func (s *MongoJobStore) Finalize(ctx context.Context, requestID string, status models.JobStatus, errs ...string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("trạng thái cuối không hợp lệ: %s", status)
	}

	update := bson.M{"$set": bson.M{"status": status, "completed_at": s.now()}}
	if len(errs) > 0 {
		update["$push"] = bson.M{"errors": bson.M{"$each": errs}}
	}

	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": requestID, "status": bson.M{"$in": activeStatuses}},
		update,
	)
	if err != nil {
		return fmt.Errorf("lỗi finalize job: %w", err)
	}
	if res.MatchedCount == 0 {
		return s.explainMiss(ctx, requestID, models.ErrJobTerminal)
	}
	s.limits.Delete(requestID)
	return nil
}

func (s *MongoJobStore) limitFor(ctx context.Context, requestID string) (int, error) {
	if v, ok := s.limits.Load(requestID); ok {
		return v.(int), nil
	}
	job, err := s.Get(ctx, requestID)
	if err != nil {
		return 0, err
	}
	return job.MaxResults, nil
}

// explainMiss phân biệt lý do UpdateOne không khớp document nào
func (s *MongoJobStore) explainMiss(ctx context.Context, requestID string, fallback error) error {
	job, err := s.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return models.ErrJobTerminal
	}
	return fallback
}
