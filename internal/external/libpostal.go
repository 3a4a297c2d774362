//go:build libpostal

package external

import (
	"strings"

	"github.com/openvenues/gopostal/expand"
	"github.com/openvenues/gopostal/parser"
	"github.com/property-search/app/models"
	"github.com/property-search/internal/normalizer"
)

// SplitAddress tách địa chỉ tự do thành các field bằng libpostal
func SplitAddress(raw string) models.AddressCandidate {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.AddressCandidate{}
	}

	opts := expand.DefaultOptions()
	opts.Languages = []string{"en"}
	best := raw
	if exps := expand.ExpandAddress(raw, opts); len(exps) > 0 {
		best = exps[0]
	}

	var house, road, unit string
	out := models.AddressCandidate{}
	for _, c := range parser.ParseAddress(best) {
		switch c.Label {
		case "house_number":
			house = c.Value
		case "road":
			road = c.Value
		case "unit", "house":
			unit = c.Value
		case "suburb", "city_district":
			out.Locality = c.Value
		case "city":
			out.TownOrCity = c.Value
		case "state_district", "state":
			if out.County == "" {
				out.County = c.Value
			}
		case "postcode":
			out.Postcode = normalizer.FormatPostcode(c.Value)
		}
	}

	line := strings.TrimSpace(strings.Join([]string{unit, house, road}, " "))
	out.AddressLine1 = strings.Join(strings.Fields(line), " ")
	return out
}
