package models

import (
	"time"
)

// SearchType loại tra cứu của bulk search
type SearchType string

const (
	SearchTypeOwnership SearchType = "ownership"
	SearchTypePricePaid SearchType = "price_paid"
	SearchTypeBoth      SearchType = "both"
)

// IsValid kiểm tra search type có hợp lệ không
func (st SearchType) IsValid() bool {
	switch st {
	case SearchTypeOwnership, SearchTypePricePaid, SearchTypeBoth:
		return true
	}
	return false
}

// Branches trả về các nhánh tra cứu theo thứ tự xử lý
func (st SearchType) Branches() []SearchType {
	switch st {
	case SearchTypeOwnership:
		return []SearchType{SearchTypeOwnership}
	case SearchTypePricePaid:
		return []SearchType{SearchTypePricePaid}
	case SearchTypeBoth:
		return []SearchType{SearchTypeOwnership, SearchTypePricePaid}
	}
	return nil
}

// Giới hạn của một bulk search request
const (
	MaxSearchKeys    = 100
	MinMaxResults    = 1
	MaxMaxResults    = 10000
	DefaultMaxResult = 1000
)

// BulkSearchRequest request bulk search đã được chuẩn hóa
type BulkSearchRequest struct {
	SearchType   SearchType `json:"searchType"`
	Postcodes    []string   `json:"postcodes"`
	TitleNumbers []string   `json:"titleNumbers"`
	DateFrom     *time.Time `json:"dateFrom,omitempty"`
	DateTo       *time.Time `json:"dateTo,omitempty"`
	MaxResults   int        `json:"maxResults"`
}

// JobStatus trạng thái bulk search job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal job đã kết thúc (completed hoặc failed)
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// KeyKind loại khóa tra cứu của một work item
type KeyKind string

const (
	KeyKindPostcode    KeyKind = "postcode"
	KeyKindTitleNumber KeyKind = "title_number"
)

// SearchKey khóa tra cứu registry (postcode hoặc title number)
type SearchKey struct {
	Kind  KeyKind `json:"kind" bson:"kind"`
	Value string  `json:"value" bson:"value"`
}

// String hiển thị khóa cho log và thông báo lỗi
func (k SearchKey) String() string {
	if k.Kind == KeyKindTitleNumber {
		return "title " + k.Value
	}
	return "postcode " + k.Value
}

// WorkItem một đơn vị công việc: một khóa x một nhánh tra cứu
type WorkItem struct {
	Key    SearchKey  `json:"key"`
	Branch SearchType `json:"branch"`
}

// BulkSearchResults các bucket kết quả của job
type BulkSearchResults struct {
	Properties       []PropertyRecord  `json:"properties"`
	OwnershipRecords []OwnershipRecord `json:"ownershipRecords"`
	PricePaidRecords []PricePaidRecord `json:"pricePaidRecords"`
}

// BulkSearchJob trạng thái và kết quả một bulk search
type BulkSearchJob struct {
	RequestID        string            `json:"requestId"`
	Status           JobStatus         `json:"status"`
	SearchType       SearchType        `json:"searchType"`
	MaxResults       int               `json:"maxResults"`
	TotalRecords     int               `json:"totalRecords"`
	ProcessedRecords int               `json:"processedRecords"`
	Results          BulkSearchResults `json:"results"`
	Errors           []string          `json:"errors"`
	Cancelled        bool              `json:"cancelled,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	StartedAt        *time.Time        `json:"startedAt,omitempty"`
	CompletedAt      *time.Time        `json:"completedAt,omitempty"`
}

// Progress tỉ lệ hoàn thành (0.0 - 1.0)
func (j *BulkSearchJob) Progress() float64 {
	if j.TotalRecords == 0 {
		return 0
	}
	return float64(j.ProcessedRecords) / float64(j.TotalRecords)
}

// Clone deep copy để trả snapshot cho client mà không chia sẻ slice
func (j *BulkSearchJob) Clone() *BulkSearchJob {
	out := *j
	out.Results = BulkSearchResults{
		Properties:       append(make([]PropertyRecord, 0, len(j.Results.Properties)), j.Results.Properties...),
		OwnershipRecords: append(make([]OwnershipRecord, 0, len(j.Results.OwnershipRecords)), j.Results.OwnershipRecords...),
		PricePaidRecords: append(make([]PricePaidRecord, 0, len(j.Results.PricePaidRecords)), j.Results.PricePaidRecords...),
	}
	out.Errors = append(make([]string, 0, len(j.Errors)), j.Errors...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// ItemDelta thay đổi do một work item tạo ra, được ghi nguyên tử vào job store
type ItemDelta struct {
	Processed  int
	Properties []PropertyRecord
	Ownership  []OwnershipRecord
	PricePaid  []PricePaidRecord
	Errors     []string
}
