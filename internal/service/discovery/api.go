package discovery

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/LouYuanbo1/dirscraper/internal/domain/entity"
	"github.com/LouYuanbo1/dirscraper/internal/domain/model"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/chrome"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/collector"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/pacer"
	"github.com/LouYuanbo1/dirscraper/param"
)

const (
	// 连续两页为空即认为接口没有更多数据
	apiEmptyPageLimit   = 2
	apiRateLimitRetries = 3
)

type apiDiscoverer struct {
	client   collector.CatalogClient
	pacer    *pacer.Pacer
	siteURL  string
	maxPages int
	logger   logrus.FieldLogger
}

// InitAPIDiscoverer 直接分页请求目录的数据接口,不经过浏览器
func InitAPIDiscoverer(client collector.CatalogClient, p *pacer.Pacer, siteURL string, maxPages int, logger logrus.FieldLogger) Discoverer {
	return &apiDiscoverer{client: client, pacer: p, siteURL: siteURL, maxPages: maxPages, logger: logger}
}

func (ad *apiDiscoverer) Discover(ctx context.Context, target param.DiscoveryTarget) ([]model.ItemHandle, error) {
	// 接口只能按关键词查询
	if target.IsURL() {
		return nil, nil
	}
	log := ad.logger.WithFields(logrus.Fields{"query": target.QueryTerm, "strategy": param.StrategyAPI})

	set := newLinkSet(target.ItemCap)
	empty := 0
	for page := 1; ad.maxPages <= 0 || page <= ad.maxPages; page++ {
		resp, err := ad.search(ctx, target, page, log)
		if err != nil {
			return set.handles(), err
		}

		items := resp.Result.Items
		for i := range items {
			var c entity.Crawlable = &items[i]
			if h, ok := c.ToItemHandle(ad.siteURL, target.Region); ok {
				set.add(h)
			}
		}
		log.WithFields(logrus.Fields{"page": page, "collected": set.len(), "total": resp.Result.Total}).Debug("catalog page fetched")

		if len(items) == 0 {
			empty++
			if empty >= apiEmptyPageLimit {
				break
			}
		} else {
			empty = 0
			// 不满一页说明已经是最后一页
			if size := ad.client.PageSize(); size > 0 && len(items) < size {
				break
			}
		}
		want := target.ItemCap
		if total := resp.Result.Total; total > 0 && total < want {
			want = total
		}
		if set.len() >= want {
			break
		}
	}

	log.WithField("collected", set.len()).Info("api discovery finished")
	return set.handles(), nil
}

// search 限流时惩罚等待后重试同一页
func (ad *apiDiscoverer) search(ctx context.Context, target param.DiscoveryTarget, page int, log logrus.FieldLogger) (*entity.CatalogResponse, error) {
	var lastErr error
	for attempt := 0; attempt < apiRateLimitRetries; attempt++ {
		if err := ad.pacer.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := ad.client.Search(ctx, target.QueryTerm, target.RegionID, page)
		if err == nil {
			return resp, nil
		}
		if !chrome.IsRateLimited(err) {
			return nil, err
		}
		log.WithError(err).WithField("page", page).Warn("catalog api rate limited")
		ad.pacer.Penalize()
		lastErr = err
	}
	return nil, lastErr
}
