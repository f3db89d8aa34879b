package util

import (
	"strings"
	"unicode"
)

// markdown 标记字符，统计字数前先剥掉，避免格式符号被算作单词
var markdownReplacer = strings.NewReplacer(
	"*", "", "_", "", "#", "", "`", "",
	"[", "", "]", "", "(", "", ")", "",
	">", "", "~", "", "|", "",
)

// CountWords 统计正文单词数：去掉 markdown 标记后按空白切分，
// 只统计仍含有字母或数字的词元
func CountWords(text string) int {
	if text == "" {
		return 0
	}

	count := 0
	for _, token := range strings.Fields(text) {
		stripped := markdownReplacer.Replace(token)
		if containsWordRune(stripped) {
			count++
		}
	}
	return count
}

func containsWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
