package normalizer

import (
	"strings"
	"sync"
	"unicode"
)

// TextNormalizer chuẩn hóa field địa chỉ trước khi tính similarity
type TextNormalizer struct {
	abbreviations map[string]string
}

// NewTextNormalizer tạo normalizer với bảng viết tắt embedded.
// Nếu YAML lỗi thì normalizer vẫn chạy, chỉ không mở rộng viết tắt.
func NewTextNormalizer() *TextNormalizer {
	tn := &TextNormalizer{abbreviations: map[string]string{}}
	if rules, err := LoadRulesConfig(); err == nil {
		tn.abbreviations = rules.Abbreviations()
	}
	return tn
}

// NewTextNormalizerWithRules tạo normalizer với bảng viết tắt tùy chỉnh
func NewTextNormalizerWithRules(abbreviations map[string]string) *TextNormalizer {
	if abbreviations == nil {
		abbreviations = map[string]string{}
	}
	return &TextNormalizer{abbreviations: abbreviations}
}

// Normalize lower-case, ASCII, bỏ dấu câu, gộp khoảng trắng và mở rộng viết tắt.
// "10 Downing St." -> "10 downing street"
func (tn *TextNormalizer) Normalize(s string) string {
	s = FoldASCII(s)
	if s == "" {
		return ""
	}

	// "john's" -> "johns", các dấu câu khác thành khoảng trắng
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\'' || r == '`':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	tokens := strings.Fields(b.String())
	for i, tok := range tokens {
		if full, ok := tn.abbreviations[tok]; ok {
			tokens[i] = full
		}
	}
	return strings.Join(tokens, " ")
}

var (
	defaultNormalizer     *TextNormalizer
	defaultNormalizerOnce sync.Once
)

// NormalizeText chuẩn hóa bằng normalizer mặc định (bảng viết tắt embedded)
func NormalizeText(s string) string {
	defaultNormalizerOnce.Do(func() {
		defaultNormalizer = NewTextNormalizer()
	})
	return defaultNormalizer.Normalize(s)
}
