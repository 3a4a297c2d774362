//go:build !libpostal

package external

import (
	"strings"

	"github.com/property-search/app/models"
	"github.com/property-search/internal/normalizer"
)

// SplitAddress tách địa chỉ tự do theo dấu phẩy khi không build với libpostal.
// Postcode được lấy ra trước, phần đầu là line1, phần cuối là town,
// các phần ở giữa gộp vào locality.
func SplitAddress(raw string) models.AddressCandidate {
	postcode, rest := normalizer.ExtractPostcode(strings.TrimSpace(raw))
	out := models.AddressCandidate{Postcode: postcode}

	var parts []string
	for _, p := range strings.Split(rest, ",") {
		if p = strings.Join(strings.Fields(p), " "); p != "" {
			parts = append(parts, p)
		}
	}

	switch len(parts) {
	case 0:
	case 1:
		out.AddressLine1 = parts[0]
	default:
		out.AddressLine1 = parts[0]
		out.TownOrCity = parts[len(parts)-1]
		if len(parts) > 2 {
			out.Locality = strings.Join(parts[1:len(parts)-1], ", ")
		}
	}
	return out
}
