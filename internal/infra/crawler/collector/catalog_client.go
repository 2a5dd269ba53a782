package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/LouYuanbo1/dirscraper/internal/config"
	"github.com/LouYuanbo1/dirscraper/internal/domain/entity"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/chrome"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/profile"
)

// CatalogClient 目录后端只读数据接口,分页查询条目
type CatalogClient interface {
	Search(ctx context.Context, query, regionID string, page int) (*entity.CatalogResponse, error)
	PageSize() int
}

type catalogClient struct {
	fetcher  *collyFetcher
	endpoint string
	key      string
	pageSize int
}

func InitCatalogClient(cfg *config.Config, p profile.Profile) CatalogClient {
	pageSize := cfg.Catalog.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	f := newCollyFetcher(cfg.Colly, p)
	f.headers["Accept"] = "application/json"
	return &catalogClient{
		fetcher:  f,
		endpoint: cfg.Catalog.Endpoint,
		key:      cfg.Catalog.Key,
		pageSize: pageSize,
	}
}

func (cc *catalogClient) PageSize() int {
	return cc.pageSize
}

func (cc *catalogClient) Search(ctx context.Context, query, regionID string, page int) (*entity.CatalogResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("page", strconv.Itoa(page))
	params.Set("page_size", strconv.Itoa(cc.pageSize))
	params.Set("type", "branch")
	if regionID != "" {
		params.Set("region_id", regionID)
	}
	if cc.key != "" {
		params.Set("key", cc.key)
	}
	reqURL := cc.endpoint + "?" + params.Encode()

	resp, err := cc.fetcher.fetch(reqURL)
	if resp.status == http.StatusTooManyRequests {
		return nil, &chrome.RateLimitError{URL: cc.endpoint, Reason: "http 429"}
	}
	if err != nil {
		return nil, fmt.Errorf("catalog request page %d: %w", page, err)
	}

	var out entity.CatalogResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, fmt.Errorf("decode catalog page %d: %w", page, err)
	}
	// 接口把业务错误放在 meta 中,HTTP 状态仍然是 200
	switch {
	case out.Meta.Code == http.StatusTooManyRequests:
		return nil, &chrome.RateLimitError{URL: cc.endpoint, Reason: out.Meta.Error.Message}
	case out.Meta.Code == http.StatusNotFound:
		// 没有结果
		return &out, nil
	case out.Meta.Code >= 400:
		return nil, fmt.Errorf("catalog error %d: %s %s", out.Meta.Code, out.Meta.Error.Type, out.Meta.Error.Message)
	}
	return &out, nil
}
