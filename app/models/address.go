package models

import "strings"

// AddressCandidate địa chỉ dạng cấu trúc (từ Royal Mail PAF hoặc từ client)
type AddressCandidate struct {
	AddressLine1 string `json:"addressLine1,omitempty" bson:"address_line1,omitempty"` // Số nhà + tên đường
	Locality     string `json:"locality,omitempty" bson:"locality,omitempty"`          // Khu vực
	TownOrCity   string `json:"townOrCity,omitempty" bson:"town_or_city,omitempty"`    // Thị trấn/thành phố
	County       string `json:"county,omitempty" bson:"county,omitempty"`              // Hạt
	Postcode     string `json:"postcode,omitempty" bson:"postcode,omitempty"`          // Mã bưu chính
	UPRN         string `json:"uprn,omitempty" bson:"uprn,omitempty"`                  // Unique Property Reference Number
}

// IsEmpty kiểm tra địa chỉ không có field cấu trúc nào
func (a AddressCandidate) IsEmpty() bool {
	return strings.TrimSpace(a.AddressLine1) == "" &&
		strings.TrimSpace(a.Locality) == "" &&
		strings.TrimSpace(a.TownOrCity) == "" &&
		strings.TrimSpace(a.County) == "" &&
		strings.TrimSpace(a.Postcode) == ""
}

// SingleLine ghép địa chỉ thành một dòng, bỏ qua field rỗng
func (a AddressCandidate) SingleLine() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{a.AddressLine1, a.Locality, a.TownOrCity, a.County, a.Postcode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// MatchResult kết quả validate một địa chỉ
type MatchResult struct {
	IsValid          bool              `json:"isValid" bson:"is_valid"`
	Confidence       float64           `json:"confidence" bson:"confidence"`
	SuggestedAddress *AddressCandidate `json:"suggestedAddress,omitempty" bson:"suggested_address,omitempty"`
	Issues           []string          `json:"issues" bson:"issues"`
}

// Issue messages
const (
	IssueInvalidPostcode    = "Invalid postcode"
	IssueServiceUnavailable = "Address validation service unavailable"
	IssueAddressNotFound    = "Address not found in Royal Mail database"
)
