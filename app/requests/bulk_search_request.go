package requests

import (
	"fmt"
	"strings"
	"time"

	"github.com/property-search/app/models"
)

// DateLayout định dạng ngày của dateFrom/dateTo
const DateLayout = "2006-01-02"

// BulkSearchRequest body của POST /v1/bulk-search
type BulkSearchRequest struct {
	SearchType   string   `json:"searchType" binding:"required"` // ownership | price_paid | both
	Postcodes    []string `json:"postcodes,omitempty"`           // Danh sách postcode
	TitleNumbers []string `json:"titleNumbers,omitempty"`        // Danh sách title number
	DateFrom     string   `json:"dateFrom,omitempty"`            // YYYY-MM-DD
	DateTo       string   `json:"dateTo,omitempty"`              // YYYY-MM-DD
	MaxResults   *int     `json:"maxResults,omitempty"`          // Mặc định 1000
}

// ToModel chuyển sang models.BulkSearchRequest. Ngày sai định dạng trả *models.ValidationError.
func (r BulkSearchRequest) ToModel() (models.BulkSearchRequest, error) {
	verr := &models.ValidationError{}
	out := models.BulkSearchRequest{
		SearchType:   models.SearchType(strings.TrimSpace(r.SearchType)),
		Postcodes:    r.Postcodes,
		TitleNumbers: r.TitleNumbers,
		MaxResults:   models.DefaultMaxResult,
	}
	if r.MaxResults != nil {
		out.MaxResults = *r.MaxResults
	}

	var err error
	if out.DateFrom, err = parseDate(r.DateFrom); err != nil {
		verr.Add(fmt.Sprintf("dateFrom must be YYYY-MM-DD: %q", r.DateFrom))
	}
	if out.DateTo, err = parseDate(r.DateTo); err != nil {
		verr.Add(fmt.Sprintf("dateTo must be YYYY-MM-DD: %q", r.DateTo))
	}

	if err := verr.ErrOrNil(); err != nil {
		return models.BulkSearchRequest{}, err
	}
	return out, nil
}

func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
