package normalize

import (
	"strings"
	"unicode"
)

// NormalizePhone 规范化为 +7 开头的号码,只覆盖俄罗斯号码规则
//
//	89261234567 -> +79261234567
//	9261234567  -> +79261234567
//
// 其他长度保留原始数字并补 "+"
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case digits == "":
		return ""
	case len(digits) == 11 && (digits[0] == '7' || digits[0] == '8'):
		return "+7" + digits[1:]
	case len(digits) == 10:
		return "+7" + digits
	default:
		return "+" + digits
	}
}

// Phones 规范化 tel: 链接并去重,保持首次出现的顺序
func Phones(hrefs []string) []string {
	out := make([]string, 0, len(hrefs))
	seen := make(map[string]struct{}, len(hrefs))
	for _, href := range hrefs {
		raw := strings.TrimSpace(href)
		if len(raw) >= 4 && strings.EqualFold(raw[:4], "tel:") {
			raw = raw[4:]
		}
		phone := NormalizePhone(raw)
		if phone == "" {
			continue
		}
		if _, ok := seen[phone]; ok {
			continue
		}
		seen[phone] = struct{}{}
		out = append(out, phone)
	}
	return out
}

func isSpace(s string) bool {
	return strings.IndexFunc(s, unicode.IsSpace) >= 0
}
