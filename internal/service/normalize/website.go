package normalize

import (
	"strings"
	"unicode"
)

// DeniedHosts 平台、聚合站与社交网络,命中主机名的链接永远不会被当作官网
var DeniedHosts = []string{
	"2gis.", "google.", "yandex.", "otello.ru", "vk.com", "t.me",
	"instagram.com", "facebook.com", "twitter.com", "ok.ru",
	"youtube.com", "whatsapp.com", "wa.me", "apple.com",
	"play.google.com", "apps.apple.com", "booking.com", "tripadvisor.",
	"delivery-club.ru", "eda.yandex", "zoon.ru", "yell.ru", "onelink.me",
	"uber.com", "gettaxi", "city-mobil", "dostavista",
}

// DeniedTextKeywords 链接文字含有这些词时不是商户官网(应用下载、外卖、导航等)
var DeniedTextKeywords = []string{
	"скачать", "download", "app", "приложение", "google play", "app store",
	"заказать", "доставка", "меню", "такси", "маршрут", "поехать", "отзывы",
	"вход", "регистрация", "лицензионное", "соглашение", "политика", "конфиденциальности",
}

var websiteLabels = []string{"сайт", "website", "веб-сайт"}

// Link 详情页上的外链及其可见文字
type Link struct {
	Href string
	Text string
}

// RankWebsites 过滤并排序候选官网:
// 文字本身像域名或是"сайт"标签的链接排在前面,其余按文档顺序追加,按链接去重后截断到 max。
// 结果为空时用 emails 中第一个非公共邮箱的域名兜底。
func RankWebsites(links []Link, emails []string, max int) []string {
	var priority, rest []string
	for _, l := range links {
		href := strings.TrimSpace(l.Href)
		if !strings.HasPrefix(strings.ToLower(href), "http") {
			continue
		}
		if IsDeniedHost(href) {
			continue
		}
		text := strings.ToLower(strings.TrimSpace(l.Text))
		if hasDeniedKeyword(text) {
			continue
		}
		if looksLikeDomain(text) || isWebsiteLabel(text) {
			priority = append(priority, href)
			continue
		}
		rest = append(rest, href)
	}

	out := make([]string, 0, max)
	seen := make(map[string]struct{})
	for _, href := range append(priority, rest...) {
		if len(out) >= max {
			break
		}
		if _, ok := seen[href]; ok {
			continue
		}
		seen[href] = struct{}{}
		out = append(out, href)
	}

	if len(out) == 0 && max > 0 {
		if site, ok := WebsiteFromEmails(emails); ok {
			out = append(out, site)
		}
	}
	return out
}

// IsDeniedHost 判断链接主机是否属于平台/社交域名
func IsDeniedHost(href string) bool {
	host := Host(href)
	if host == "" {
		return true
	}
	for _, d := range DeniedHosts {
		if matchHostLabels(host, d) {
			return true
		}
	}
	return false
}

// matchHostLabels 按标签边界匹配:"ok.ru" 命中 "m.ok.ru" 但不命中 "book.ru",
// 以 "." 结尾的条目("2gis.")匹配任意顶级域
func matchHostLabels(host, d string) bool {
	for from := 0; from <= len(host)-len(d); {
		i := strings.Index(host[from:], d)
		if i < 0 {
			return false
		}
		pos := from + i
		end := pos + len(d)
		if (pos == 0 || host[pos-1] == '.') &&
			(end == len(host) || strings.HasSuffix(d, ".") || host[end] == '.') {
			return true
		}
		from = pos + 1
	}
	return false
}

// 单词关键字只匹配词首,避免 "app" 误伤 "happy.ru"
func hasDeniedKeyword(text string) bool {
	if text == "" {
		return false
	}
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	for _, kw := range DeniedTextKeywords {
		if strings.Contains(kw, " ") {
			if strings.Contains(text, kw) {
				return true
			}
			continue
		}
		for _, w := range words {
			if strings.HasPrefix(w, kw) {
				return true
			}
		}
	}
	return false
}

func looksLikeDomain(text string) bool {
	return len([]rune(text)) > 3 &&
		strings.Contains(text, ".") &&
		!isSpace(text) &&
		!strings.HasSuffix(text, "...") &&
		!strings.HasSuffix(text, "…")
}

func isWebsiteLabel(text string) bool {
	for _, l := range websiteLabels {
		if text == l {
			return true
		}
	}
	return false
}
