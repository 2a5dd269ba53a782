package discovery

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/LouYuanbo1/dirscraper/internal/config"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/chrome"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/pacer"
	"github.com/LouYuanbo1/dirscraper/param"
)

// 搜索页上的分类提示: 顶部标签、分类链接、分类块、建议按钮
var suggestionSelectors = []chrome.Selector{
	chrome.CSS("div[class*='_1e8064'] a"),
	chrome.CSS("a[href*='/rubric/']"),
	chrome.CSS("div[class*='rubric']"),
	chrome.CSS("div[class*='suggest'] div[role*='button']"),
}

// labels 之后的链接: "Рубрики" 块与 "Возможно, вы искали" 块
var suggestionLabels = []string{"Рубрики", "Rubrics", "озможно, вы искали"}

// Expander 把宽泛的查询词展开成目录中的具体分类
type Expander interface {
	Expand(ctx context.Context, target param.DiscoveryTarget) []string
}

type expander struct {
	surface chrome.Surface
	pacer   *pacer.Pacer
	cfg     config.DiscoveryConfig
	logger  logrus.FieldLogger
}

func InitExpander(surface chrome.Surface, p *pacer.Pacer, cfg config.DiscoveryConfig, logger logrus.FieldLogger) Expander {
	return &expander{surface: surface, pacer: p, cfg: cfg, logger: logger}
}

// Expand 返回分类名称;没有找到或出错时返回 nil,调用方继续使用原查询词
func (e *expander) Expand(ctx context.Context, target param.DiscoveryTarget) []string {
	if target.IsURL() {
		return nil
	}
	log := e.logger.WithField("query", target.QueryTerm)
	searchURL := SearchURL(e.cfg.SiteURL, target)
	if err := visit(ctx, e.surface, e.pacer, searchURL, e.cfg.RateLimitMarker); err != nil {
		log.WithError(err).Warn("suggestion lookup failed")
		return nil
	}
	e.surface.WaitFor(ctx, e.cfg.WaitTimeout.Duration, suggestionSelectors...)

	var texts []string
	for _, sel := range suggestionSelectors {
		for _, el := range e.surface.Query(ctx, sel) {
			texts = append(texts, el.Text())
		}
	}
	texts = append(texts, e.labelledLinks(ctx, log)...)

	seen := make(map[string]struct{})
	var out []string
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if !isSuggestion(text, target.QueryTerm) {
			continue
		}
		key := strings.ToLower(text)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, text)
		if e.cfg.MaxSuggestions > 0 && len(out) >= e.cfg.MaxSuggestions {
			break
		}
	}
	if len(out) > 0 {
		log.WithField("suggestions", out).Info("query expanded")
	}
	return out
}

func (e *expander) labelledLinks(ctx context.Context, log logrus.FieldLogger) []string {
	res, err := e.surface.RunScript(ctx, labelledLinksJS, suggestionLabels)
	if err != nil {
		log.WithError(err).Debug("labelled suggestion lookup skipped")
		return nil
	}
	raw, _ := res.([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// isSuggestion 过滤地址(含数字与逗号)、过短的文字以及查询词本身
func isSuggestion(text, query string) bool {
	if utf8.RuneCountInString(text) <= 3 {
		return false
	}
	if strings.Contains(text, ",") && strings.IndexFunc(text, unicode.IsDigit) >= 0 {
		return false
	}
	return !strings.EqualFold(text, strings.TrimSpace(query))
}
