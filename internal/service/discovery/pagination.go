package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/LouYuanbo1/dirscraper/internal/config"
	"github.com/LouYuanbo1/dirscraper/internal/domain/model"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/chrome"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/pacer"
	"github.com/LouYuanbo1/dirscraper/param"
)

// 明确的"没有更多结果"提示
var endMarkerSelector = chrome.WithText("div, span, p, h2",
	"Ничего не нашлось", "ничего не найдено", "Nothing found", "No results")

type paginationDiscoverer struct {
	surface chrome.Surface
	pacer   *pacer.Pacer
	cfg     config.DiscoveryConfig
	logger  logrus.FieldLogger
}

// InitPaginationDiscoverer 通过地址中的页码逐页收集链接
func InitPaginationDiscoverer(surface chrome.Surface, p *pacer.Pacer, cfg config.DiscoveryConfig, logger logrus.FieldLogger) Discoverer {
	return &paginationDiscoverer{surface: surface, pacer: p, cfg: cfg, logger: logger}
}

// PageURL 第一页是搜索地址本身,之后追加 /page/{n}
func PageURL(base string, page int) string {
	if page <= 1 {
		return base
	}
	return fmt.Sprintf("%s/page/%d", strings.TrimRight(base, "/"), page)
}

func (pd *paginationDiscoverer) Discover(ctx context.Context, target param.DiscoveryTarget) ([]model.ItemHandle, error) {
	base := SearchURL(pd.cfg.SiteURL, target)
	log := pd.logger.WithFields(logrus.Fields{"query": target.QueryTerm, "strategy": param.StrategyPagination})
	log.WithField("url", base).Info("collecting links")

	set := newLinkSet(target.ItemCap)
	empty := 0
	for page := 1; pd.cfg.MaxPages <= 0 || page <= pd.cfg.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return set.handles(), err
		}
		pageURL := PageURL(base, page)
		pageLog := log.WithField("page", page)

		if err := visit(ctx, pd.surface, pd.pacer, pageURL, pd.cfg.RateLimitMarker); err != nil {
			if ctx.Err() != nil {
				return set.handles(), ctx.Err()
			}
			// 限流或网络抖动造成的空页,与真正的结尾区分开,计入连续空页
			pageLog.WithError(err).Warn("page visit failed")
			empty++
			if empty >= pd.cfg.EmptyPageLimit {
				break
			}
			continue
		}

		pd.surface.WaitFor(ctx, pd.cfg.WaitTimeout.Duration, itemLinkSelector, endMarkerSelector)
		_, hrefs := itemHrefs(ctx, pd.surface)
		added := set.addHrefs(pd.surface.CurrentURL(), hrefs)
		pageLog.WithField("collected", set.len()).Debugf("+%d links", added)

		if set.full() {
			break
		}
		if len(pd.surface.Query(ctx, endMarkerSelector)) > 0 {
			pageLog.Info("end of results marker found")
			break
		}
		if added == 0 {
			empty++
			if empty >= pd.cfg.EmptyPageLimit {
				pageLog.Info("too many consecutive empty pages, stopping")
				break
			}
		} else {
			empty = 0
		}
	}

	log.WithField("collected", set.len()).Info("pagination discovery finished")
	return set.handles(), nil
}
