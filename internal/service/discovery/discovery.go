package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/LouYuanbo1/dirscraper/internal/config"
	"github.com/LouYuanbo1/dirscraper/internal/domain/model"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/chrome"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/collector"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/pacer"
	"github.com/LouYuanbo1/dirscraper/internal/service/normalize"
	"github.com/LouYuanbo1/dirscraper/param"
)

// Discoverer 为一个 DiscoveryTarget 枚举条目,返回的条目数不超过 target.ItemCap。
// 出错时同时返回已经收集到的条目。
type Discoverer interface {
	Discover(ctx context.Context, target param.DiscoveryTarget) ([]model.ItemHandle, error)
}

// 搜索结果中的详情页链接
var itemLinkSelector = chrome.CSS("a[href*='/firm/']")

// InitDiscoverer 按配置选择浏览器策略;启用数据接口时优先使用接口,拿不到结果再回退到浏览器
func InitDiscoverer(cfg *config.Config, surface chrome.Surface, p *pacer.Pacer, catalog collector.CatalogClient, logger logrus.FieldLogger) (Discoverer, error) {
	var browser Discoverer
	switch cfg.Crawl.Strategy {
	case param.StrategyScroll:
		browser = InitScrollDiscoverer(surface, p, cfg.Discovery, logger)
	case param.StrategyPagination:
		browser = InitPaginationDiscoverer(surface, p, cfg.Discovery, logger)
	default:
		return nil, fmt.Errorf("unknown browser strategy %q", cfg.Crawl.Strategy)
	}
	if !cfg.Crawl.UseAPI || catalog == nil {
		return browser, nil
	}
	return &fallbackDiscoverer{
		primary:  InitAPIDiscoverer(catalog, p, cfg.Discovery.SiteURL, cfg.Catalog.MaxPages, logger),
		fallback: browser,
		logger:   logger,
	}, nil
}

type fallbackDiscoverer struct {
	primary  Discoverer
	fallback Discoverer
	logger   logrus.FieldLogger
}

func (fd *fallbackDiscoverer) Discover(ctx context.Context, target param.DiscoveryTarget) ([]model.ItemHandle, error) {
	handles, err := fd.primary.Discover(ctx, target)
	if len(handles) > 0 {
		return handles, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	log := fd.logger.WithField("query", target.QueryTerm)
	if err != nil {
		log = log.WithError(err)
	}
	log.Info("catalog api returned nothing, falling back to browser discovery")
	return fd.fallback.Discover(ctx, target)
}

// SearchURL 查询词为链接时原样使用,否则拼成站内搜索地址
func SearchURL(siteURL string, target param.DiscoveryTarget) string {
	if target.IsURL() {
		return target.QueryTerm
	}
	return fmt.Sprintf("%s/%s/search/%s", strings.TrimRight(siteURL, "/"), target.Region, url.PathEscape(target.QueryTerm))
}

// linkSet 按发现顺序去重的条目集合,达到上限后不再接收
type linkSet struct {
	cap   int
	seen  map[string]struct{}
	items []model.ItemHandle
}

func newLinkSet(limit int) *linkSet {
	return &linkSet{cap: limit, seen: make(map[string]struct{})}
}

func (ls *linkSet) add(h model.ItemHandle) bool {
	if ls.full() || h.CanonicalURL == "" {
		return false
	}
	if _, ok := ls.seen[h.CanonicalURL]; ok {
		return false
	}
	ls.seen[h.CanonicalURL] = struct{}{}
	ls.items = append(ls.items, h)
	return true
}

// addHrefs 规范化并加入详情页链接,返回新增数量
func (ls *linkSet) addHrefs(base string, hrefs []string) int {
	added := 0
	for _, href := range hrefs {
		canonical, ok := normalize.CanonicalURL(base, href)
		if !ok || !strings.Contains(canonical, "/firm/") {
			continue
		}
		if ls.add(model.ItemHandle{CanonicalURL: canonical}) {
			added++
		}
	}
	return added
}

func (ls *linkSet) full() bool {
	return ls.cap > 0 && len(ls.items) >= ls.cap
}

func (ls *linkSet) len() int {
	return len(ls.items)
}

func (ls *linkSet) handles() []model.ItemHandle {
	return ls.items
}

// visit 按节奏导航并检查限流提示,限流时延长该会话的下一次等待
func visit(ctx context.Context, s chrome.Surface, p *pacer.Pacer, target string, markers []string) error {
	if err := p.Wait(ctx); err != nil {
		return err
	}
	if err := s.Navigate(ctx, target); err != nil {
		if chrome.IsRateLimited(err) {
			p.Penalize()
		}
		return err
	}
	if err := chrome.CheckRateLimit(ctx, s, markers); err != nil {
		p.Penalize()
		return err
	}
	return nil
}

func itemHrefs(ctx context.Context, s chrome.Surface) ([]chrome.Element, []string) {
	els := s.Query(ctx, itemLinkSelector)
	hrefs := make([]string, 0, len(els))
	for _, el := range els {
		hrefs = append(hrefs, el.Attribute("href"))
	}
	return els, hrefs
}
