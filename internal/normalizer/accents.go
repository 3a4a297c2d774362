package normalizer

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/cases"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StripDiacritics loại bỏ dấu (Ŵ -> W, é -> e) một cách an toàn
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	out, _, _ := transform.String(t, s)
	return out
}

// isMn kiểm tra xem rune có phải là diacritic mark không
func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}

// FoldASCII case-fold rồi chuyển về ASCII, dùng trước khi so sánh chuỗi
func FoldASCII(s string) string {
	folded := cases.Fold().String(StripDiacritics(s))
	return strings.ToLower(unidecode.Unidecode(folded))
}
