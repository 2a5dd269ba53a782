package normalize

import (
	"net/url"
	"strings"
)

// PublicMailProviders 公共邮箱域名,不能用来推断商户官网
var PublicMailProviders = []string{
	"gmail.com", "yandex.ru", "yandex.com", "mail.ru", "bk.ru",
	"list.ru", "inbox.ru", "yahoo.com", "hotmail.com", "outlook.com",
	"icloud.com", "rambler.ru", "ya.ru",
}

// NormalizeEmail 去掉 mailto: 前缀与查询串,统一小写
func NormalizeEmail(href string) string {
	s := strings.TrimSpace(href)
	if len(s) >= 7 && strings.EqualFold(s[:7], "mailto:") {
		s = s[7:]
	}
	s, _, _ = strings.Cut(s, "?")
	if unescaped, err := url.PathUnescape(s); err == nil {
		s = unescaped
	}
	s = strings.ToLower(strings.TrimSpace(s))
	local, domain, ok := strings.Cut(s, "@")
	if !ok || local == "" || domain == "" || isSpace(s) {
		return ""
	}
	return s
}

// Emails 规范化 mailto: 链接并去重
func Emails(hrefs []string) []string {
	out := make([]string, 0, len(hrefs))
	seen := make(map[string]struct{}, len(hrefs))
	for _, href := range hrefs {
		email := NormalizeEmail(href)
		if email == "" {
			continue
		}
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}
	return out
}

// WebsiteFromEmails 取第一个非公共邮箱的域名作为备用官网
func WebsiteFromEmails(emails []string) (string, bool) {
	for _, email := range emails {
		_, domain, ok := strings.Cut(email, "@")
		if !ok || domain == "" {
			continue
		}
		domain = strings.ToLower(domain)
		if isPublicProvider(domain) {
			continue
		}
		return "http://" + domain, true
	}
	return "", false
}

func isPublicProvider(domain string) bool {
	for _, p := range PublicMailProviders {
		if domain == p {
			return true
		}
	}
	return false
}
