package normalizer

import (
	"regexp"
	"strings"
)

// titleNumberRe title number HM Land Registry: tối đa 3 chữ cái + số, ví dụ "NGL123456", "1234"
var titleNumberRe = regexp.MustCompile(`^[A-Z]{0,3}[0-9]{1,8}$`)

// NormalizeTitleNumber trim, bỏ khoảng trắng và upper-case
func NormalizeTitleNumber(title string) string {
	return strings.ToUpper(strings.Join(strings.Fields(title), ""))
}

// IsValidTitleNumber kiểm tra định dạng title number
func IsValidTitleNumber(title string) bool {
	return titleNumberRe.MatchString(NormalizeTitleNumber(title))
}
