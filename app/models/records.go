package models

import (
	"strings"
	"time"
)

// OwnershipRecord bản ghi sở hữu từ HM Land Registry
type OwnershipRecord struct {
	TitleNumber string           `json:"titleNumber" bson:"title_number"`
	Tenure      string           `json:"tenure,omitempty" bson:"tenure,omitempty"` // freehold / leasehold
	Proprietors []string         `json:"proprietors,omitempty" bson:"proprietors,omitempty"`
	Address     AddressCandidate `json:"address" bson:"address"`
	LastUpdated *time.Time       `json:"lastUpdated,omitempty" bson:"last_updated,omitempty"`
	SearchKey   SearchKey        `json:"searchKey" bson:"search_key"`
}

// PricePaidRecord giao dịch mua bán trong Price Paid Data
type PricePaidRecord struct {
	TransactionID   string           `json:"transactionId" bson:"transaction_id"`
	TitleNumber     string           `json:"titleNumber,omitempty" bson:"title_number,omitempty"`
	Price           int64            `json:"price" bson:"price"` // Bảng Anh, không có phần lẻ
	TransactionDate time.Time        `json:"transactionDate" bson:"transaction_date"`
	PropertyType    string           `json:"propertyType,omitempty" bson:"property_type,omitempty"`
	Tenure          string           `json:"tenure,omitempty" bson:"tenure,omitempty"`
	NewBuild        bool             `json:"newBuild" bson:"new_build"`
	Address         AddressCandidate `json:"address" bson:"address"`
	SearchKey       SearchKey        `json:"searchKey" bson:"search_key"`
}

// PropertyRecord bất động sản tổng hợp từ các bản ghi sở hữu
type PropertyRecord struct {
	Key          string           `json:"key" bson:"key"`
	UPRN         string           `json:"uprn,omitempty" bson:"uprn,omitempty"`
	TitleNumber  string           `json:"titleNumber,omitempty" bson:"title_number,omitempty"`
	Address      AddressCandidate `json:"address" bson:"address"`
	AddressMatch *MatchResult     `json:"addressMatch,omitempty" bson:"address_match,omitempty"`
	UpdatedAt    time.Time        `json:"updatedAt" bson:"updated_at"`
}

// PropertyKey khóa dedupe: UPRN, rồi title number, rồi địa chỉ
func PropertyKey(uprn, titleNumber string, address AddressCandidate) string {
	if uprn = strings.TrimSpace(uprn); uprn != "" {
		return "uprn:" + uprn
	}
	if titleNumber = strings.TrimSpace(titleNumber); titleNumber != "" {
		return "title:" + strings.ToUpper(titleNumber)
	}
	return "addr:" + strings.ToLower(address.SingleLine())
}

// PropertyFromOwnership dựng PropertyRecord từ bản ghi sở hữu
func PropertyFromOwnership(rec OwnershipRecord, now time.Time) PropertyRecord {
	uprn := rec.Address.UPRN
	return PropertyRecord{
		Key:         PropertyKey(uprn, rec.TitleNumber, rec.Address),
		UPRN:        uprn,
		TitleNumber: rec.TitleNumber,
		Address:     rec.Address,
		UpdatedAt:   now,
	}
}
