package requests

import "github.com/property-search/app/models"

// ValidateAddressRequest request validate một địa chỉ.
// Gửi field cấu trúc hoặc chỉ một dòng Address tự do.
type ValidateAddressRequest struct {
	AddressLine1 string `json:"addressLine1"`       // Số nhà + tên đường
	Locality     string `json:"locality,omitempty"` // Khu vực
	TownOrCity   string `json:"townOrCity"`         // Thị trấn/thành phố
	County       string `json:"county,omitempty"`   // Hạt
	Postcode     string `json:"postcode"`           // Mã bưu chính
	Address      string `json:"address,omitempty"`  // Địa chỉ một dòng
}

// IsFreeText request chỉ có địa chỉ một dòng
func (r ValidateAddressRequest) IsFreeText() bool {
	return r.Address != "" && r.Candidate().IsEmpty()
}

// Candidate chuyển sang AddressCandidate
func (r ValidateAddressRequest) Candidate() models.AddressCandidate {
	return models.AddressCandidate{
		AddressLine1: r.AddressLine1,
		Locality:     r.Locality,
		TownOrCity:   r.TownOrCity,
		County:       r.County,
		Postcode:     r.Postcode,
	}
}

// SeedAddressesRequest request nạp địa chỉ tham chiếu vào postal index
type SeedAddressesRequest struct {
	Addresses      []models.AddressCandidate `json:"addresses" binding:"required,min=1,max=50000"` // Danh sách địa chỉ
	RebuildIndexes bool                      `json:"rebuildIndexes,omitempty"`                      // Có cấu hình lại index không
}
