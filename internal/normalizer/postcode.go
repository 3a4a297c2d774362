package normalizer

import (
	"regexp"
	"strings"
	"unicode"
)

// ukPostcodeRe định dạng postcode UK sau khi bỏ khoảng trắng và upper-case:
// 1-2 chữ cái, 1 số, tùy chọn 1 ký tự alnum, 1 số, 2 chữ cái
var ukPostcodeRe = regexp.MustCompile(`^[A-Z]{1,2}[0-9][A-Z0-9]?[0-9][A-Z]{2}$`)

// postcodeInTextRe tìm postcode nằm trong chuỗi địa chỉ tự do
var postcodeInTextRe = regexp.MustCompile(`(?i)\b([A-Z]{1,2}[0-9][A-Z0-9]?)\s*([0-9][A-Z]{2})\b`)

// NormalizePostcode bỏ toàn bộ khoảng trắng và upper-case: "sw1a 1aa" -> "SW1A1AA"
func NormalizePostcode(postcode string) string {
	var b strings.Builder
	b.Grow(len(postcode))
	for _, r := range postcode {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// IsValidPostcode kiểm tra định dạng postcode UK
func IsValidPostcode(postcode string) bool {
	return ukPostcodeRe.MatchString(NormalizePostcode(postcode))
}

// FormatPostcode dạng chuẩn có một khoảng trắng trước inward code: "SW1A 1AA".
// Trả về chuỗi rỗng nếu postcode không hợp lệ.
func FormatPostcode(postcode string) string {
	n := NormalizePostcode(postcode)
	if !ukPostcodeRe.MatchString(n) {
		return ""
	}
	return n[:len(n)-3] + " " + n[len(n)-3:]
}

// ExtractPostcode tìm postcode cuối cùng trong chuỗi, trả về postcode và phần còn lại
func ExtractPostcode(text string) (postcode string, rest string) {
	locs := postcodeInTextRe.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return "", text
	}
	loc := locs[len(locs)-1]
	postcode = FormatPostcode(text[loc[0]:loc[1]])
	rest = strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
	return postcode, strings.Trim(rest, " ,")
}
