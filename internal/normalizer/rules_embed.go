package normalizer

import (
	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed data/abbreviations.yaml
var abbreviationsYAML []byte

// RulesConfig chứa các bảng viết tắt được load từ YAML
type RulesConfig struct {
	StreetSuffixes map[string]string `yaml:"street_suffixes"`
	BuildingTerms  map[string]string `yaml:"building_terms"`
	Directions     map[string]string `yaml:"directions"`
}

// LoadRulesConfig load cấu hình rules từ embedded YAML
func LoadRulesConfig() (*RulesConfig, error) {
	config := &RulesConfig{}
	if err := yaml.Unmarshal(abbreviationsYAML, config); err != nil {
		return nil, err
	}
	return config, nil
}

// Abbreviations gộp tất cả bảng thành một map token -> dạng đầy đủ
func (rc *RulesConfig) Abbreviations() map[string]string {
	out := make(map[string]string, len(rc.StreetSuffixes)+len(rc.BuildingTerms)+len(rc.Directions))
	for _, m := range []map[string]string{rc.Directions, rc.BuildingTerms, rc.StreetSuffixes} {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
