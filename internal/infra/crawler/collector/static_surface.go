package collector

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/LouYuanbo1/dirscraper/internal/config"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/chrome"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/profile"
)

// staticSurface 不渲染脚本的 Surface: colly 获取 HTML,goquery 查询。
// 适用于服务端渲染的详情页,以及没有浏览器的环境。
type staticSurface struct {
	fetcher *collyFetcher
	doc     *goquery.Document
	url     string
}

func InitStaticSurface(cfg config.CollyConfig, p profile.Profile) chrome.Surface {
	return &staticSurface{fetcher: newCollyFetcher(cfg, p)}
}

func (ss *staticSurface) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return &chrome.NavigationError{URL: url, Err: err}
	}
	resp, err := ss.fetcher.fetch(url)
	if resp.status == http.StatusTooManyRequests {
		return &chrome.RateLimitError{URL: url, Reason: "http 429"}
	}
	if err != nil {
		return &chrome.NavigationError{URL: url, Err: err}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.body))
	if err != nil {
		return &chrome.NavigationError{URL: url, Err: fmt.Errorf("parse html: %w", err)}
	}
	ss.doc = doc
	ss.url = url
	return nil
}

func (ss *staticSurface) CurrentURL() string {
	return ss.url
}

func (ss *staticSurface) WaitFor(ctx context.Context, timeout time.Duration, sels ...chrome.Selector) bool {
	// 静态文档不会变化,检查一次即可
	for _, sel := range sels {
		if len(ss.Query(ctx, sel)) > 0 {
			return true
		}
	}
	return false
}

func (ss *staticSurface) Query(ctx context.Context, sel chrome.Selector) []chrome.Element {
	if ss.doc == nil {
		return nil
	}
	css := sel.CSS
	if css == "" {
		css = "*"
	}
	var out []chrome.Element
	ss.doc.Find(css).Each(func(_ int, s *goquery.Selection) {
		if sel.MatchesOwnText(ownText(s)) {
			out = append(out, staticElement{sel: s})
		}
	})
	return out
}

// Click 静态文档没有交互
func (ss *staticSurface) Click(ctx context.Context, el chrome.Element) {}

func (ss *staticSurface) RunScript(ctx context.Context, fn string, args ...any) (any, error) {
	return nil, chrome.ErrScriptUnsupported
}

func (ss *staticSurface) RunScriptOn(ctx context.Context, el chrome.Element, fn string, args ...any) (any, error) {
	return nil, chrome.ErrScriptUnsupported
}

func (ss *staticSurface) Close() error {
	ss.doc = nil
	return nil
}

type staticElement struct {
	sel *goquery.Selection
}

func (e staticElement) Attribute(name string) string {
	return e.sel.AttrOr(name, "")
}

func (e staticElement) Text() string {
	return strings.TrimSpace(e.sel.Text())
}

func ownText(s *goquery.Selection) string {
	var b strings.Builder
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if len(c.Nodes) > 0 && c.Nodes[0].Type == html.TextNode {
			b.WriteString(c.Nodes[0].Data)
		}
	})
	return b.String()
}
