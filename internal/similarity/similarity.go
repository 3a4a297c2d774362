// Package similarity cung cấp các hàm đo độ giống nhau giữa hai chuỗi, trả về [0,1].
package similarity

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"
)

// Scorer đo độ giống nhau giữa hai chuỗi. Kết quả nằm trong [0,1],
// đối xứng và Score(x, x) = 1. Scorer phân biệt hoa thường, caller tự lower-case.
type Scorer interface {
	Score(a, b string) float64
}

// Tên các scorer hỗ trợ trong config
const (
	ScorerLevenshtein = "levenshtein"
	ScorerJaroWinkler = "jaro_winkler"
)

// Levenshtein normalized edit distance: 1 - dist / max(len)
type Levenshtein struct{}

// Score tính 1 - levenshtein(a,b) / max(len(a), len(b)); hai chuỗi rỗng cho 1
func (Levenshtein) Score(a, b string) float64 {
	return Score(a, b)
}

// Score normalized Levenshtein similarity, độ dài tính theo rune
func Score(a, b string) float64 {
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	if a == b {
		return 1
	}

	dist := levenshtein.ComputeDistance(a, b)
	score := 1 - float64(dist)/float64(longest)
	if score < 0 {
		return 0
	}
	return score
}

// JaroWinkler scorer thay thế, ưu tiên chuỗi có chung tiền tố
type JaroWinkler struct {
	BoostThreshold float64
	PrefixSize     int
}

// NewJaroWinkler tạo JaroWinkler với tham số mặc định (0.7, 4)
func NewJaroWinkler() JaroWinkler {
	return JaroWinkler{BoostThreshold: 0.7, PrefixSize: 4}
}

// Score Jaro-Winkler similarity, lấy trung bình hai chiều để đảm bảo đối xứng
func (jw JaroWinkler) Score(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	s := (smetrics.JaroWinkler(a, b, jw.BoostThreshold, jw.PrefixSize) +
		smetrics.JaroWinkler(b, a, jw.BoostThreshold, jw.PrefixSize)) / 2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// New chọn scorer theo tên trong config, mặc định Levenshtein
func New(name string) Scorer {
	switch name {
	case ScorerJaroWinkler:
		return NewJaroWinkler()
	default:
		return Levenshtein{}
	}
}
