package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/property-search/app/models"
	"github.com/property-search/internal/observability"
	"go.uber.org/zap"
)

// Các loại dòng trong file export
const (
	RecordTypeProperty  = "property"
	RecordTypeOwnership = "ownership"
	RecordTypePricePaid = "price_paid"
)

// ExportColumns header CSV theo đúng thứ tự
var ExportColumns = []string{
	"record_type", "title_number", "uprn",
	"address_line1", "locality", "town_or_city", "county", "postcode",
	"tenure", "proprietors", "price", "transaction_date", "property_type",
	"transaction_id", "match_confidence",
}

// ExportRow một dòng export, dùng chung cho CSV và NDJSON
type ExportRow struct {
	RecordType      string `json:"record_type"`
	TitleNumber     string `json:"title_number,omitempty"`
	UPRN            string `json:"uprn,omitempty"`
	AddressLine1    string `json:"address_line1,omitempty"`
	Locality        string `json:"locality,omitempty"`
	TownOrCity      string `json:"town_or_city,omitempty"`
	County          string `json:"county,omitempty"`
	Postcode        string `json:"postcode,omitempty"`
	Tenure          string `json:"tenure,omitempty"`
	Proprietors     string `json:"proprietors,omitempty"`
	Price           string `json:"price,omitempty"`
	TransactionDate string `json:"transaction_date,omitempty"`
	PropertyType    string `json:"property_type,omitempty"`
	TransactionID   string `json:"transaction_id,omitempty"`
	MatchConfidence string `json:"match_confidence,omitempty"`
}

// Values giá trị theo thứ tự ExportColumns
func (r ExportRow) Values() []string {
	return []string{
		r.RecordType, r.TitleNumber, r.UPRN,
		r.AddressLine1, r.Locality, r.TownOrCity, r.County, r.Postcode,
		r.Tenure, r.Proprietors, r.Price, r.TransactionDate, r.PropertyType,
		r.TransactionID, r.MatchConfidence,
	}
}

func (r *ExportRow) setAddress(a models.AddressCandidate) {
	r.AddressLine1 = a.AddressLine1
	r.Locality = a.Locality
	r.TownOrCity = a.TownOrCity
	r.County = a.County
	r.Postcode = a.Postcode
	if r.UPRN == "" {
		r.UPRN = a.UPRN
	}
}

// BuildExportRows properties, rồi ownership, rồi price paid
func BuildExportRows(results models.BulkSearchResults) []ExportRow {
	rows := make([]ExportRow, 0, len(results.Properties)+len(results.OwnershipRecords)+len(results.PricePaidRecords))

	for _, p := range results.Properties {
		row := ExportRow{RecordType: RecordTypeProperty, TitleNumber: p.TitleNumber, UPRN: p.UPRN}
		row.setAddress(p.Address)
		if p.AddressMatch != nil {
			row.MatchConfidence = strconv.FormatFloat(p.AddressMatch.Confidence, 'f', 4, 64)
		}
		rows = append(rows, row)
	}
	for _, o := range results.OwnershipRecords {
		row := ExportRow{
			RecordType:  RecordTypeOwnership,
			TitleNumber: o.TitleNumber,
			Tenure:      o.Tenure,
			Proprietors: strings.Join(o.Proprietors, "; "),
		}
		row.setAddress(o.Address)
		rows = append(rows, row)
	}
	for _, pp := range results.PricePaidRecords {
		row := ExportRow{
			RecordType:    RecordTypePricePaid,
			TitleNumber:   pp.TitleNumber,
			Tenure:        pp.Tenure,
			Price:         strconv.FormatInt(pp.Price, 10),
			PropertyType:  pp.PropertyType,
			TransactionID: pp.TransactionID,
		}
		if !pp.TransactionDate.IsZero() {
			row.TransactionDate = pp.TransactionDate.Format("2006-01-02")
		}
		row.setAddress(pp.Address)
		rows = append(rows, row)
	}
	return rows
}

// ExportService sinh file export cho bulk search job
type ExportService struct {
	store  JobStore
	logger *zap.Logger
}

// NewExportService tạo mới ExportService
func NewExportService(store JobStore, logger *zap.Logger) *ExportService {
	return &ExportService{store: store, logger: observability.OrNop(logger)}
}

// ExportCSV ghi CSV của job đã completed. Header luôn được ghi.
func (es *ExportService) ExportCSV(ctx context.Context, requestID string, w io.Writer) error {
	job, err := es.store.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusCompleted {
		return models.ErrJobNotReady
	}
	return WriteCSV(w, job.Results)
}

// WriteCSV ghi header và các dòng kết quả
func WriteCSV(w io.Writer, results models.BulkSearchResults) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return fmt.Errorf("lỗi ghi CSV header: %w", err)
	}
	for _, row := range BuildExportRows(results) {
		if err := cw.Write(row.Values()); err != nil {
			return fmt.Errorf("lỗi ghi CSV: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// StreamResults ghi kết quả hiện có của job dạng NDJSON, với mọi trạng thái
func (es *ExportService) StreamResults(ctx context.Context, requestID string, w io.Writer) (int, error) {
	job, err := es.store.Get(ctx, requestID)
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	n := 0
	for _, row := range BuildExportRows(job.Results) {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := enc.Encode(row); err != nil {
			return n, fmt.Errorf("lỗi ghi NDJSON: %w", err)
		}
		n++
	}
	es.logger.Debug("Đã stream kết quả", zap.String("request_id", requestID), zap.Int("rows", n))
	return n, nil
}
