package util

import (
	"strings"
	"unicode"
)

// Slugify 由标题派生 slug：仅保留小写字母、数字和连字符，
// 且首尾不出现连字符
func Slugify(title string) string {
	var b strings.Builder
	lastHyphen := true // 抑制开头的连字符

	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case unicode.IsLetter(r) && r < 128, unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	return strings.TrimRight(b.String(), "-")
}
