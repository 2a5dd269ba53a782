package collector

import (
	"net/http"

	"github.com/gocolly/colly/v2"

	"github.com/LouYuanbo1/dirscraper/internal/config"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/profile"
)

type collyFetcher struct {
	colly          *colly.Collector
	acceptLanguage string
	headers        map[string]string
}

type response struct {
	status int
	body   []byte
	header http.Header
}

// newCollyFetcher 同步、允许重复访问的采集器,请求头跟随会话身份
func newCollyFetcher(cfg config.CollyConfig, p profile.Profile) *collyFetcher {
	ua := cfg.UserAgent
	if ua == "" {
		ua = p.UserAgent
	}
	opts := []colly.CollectorOption{
		colly.UserAgent(ua),
		colly.AllowURLRevisit(),
	}
	if cfg.IgnoreRobotsTxt {
		opts = append(opts, colly.IgnoreRobotsTxt())
	}
	c := colly.NewCollector(opts...)
	if cfg.RequestTimeout.Duration > 0 {
		c.SetRequestTimeout(cfg.RequestTimeout.Duration)
	}
	if p.Proxy != "" {
		_ = c.SetProxy(p.Proxy)
	}
	return &collyFetcher{
		colly:          c,
		acceptLanguage: p.AcceptLanguage(),
		headers:        map[string]string{},
	}
}

// fetch 同步获取一个地址。非 2xx 时 err 不为空,但仍返回状态码
func (cf *collyFetcher) fetch(url string) (response, error) {
	var (
		resp   response
		reqErr error
	)
	// Clone 共享底层 http 客户端,回调互不干扰
	c := cf.colly.Clone()
	c.OnRequest(func(r *colly.Request) {
		if cf.acceptLanguage != "" {
			r.Headers.Set("Accept-Language", cf.acceptLanguage)
		}
		for k, v := range cf.headers {
			r.Headers.Set(k, v)
		}
	})
	c.OnResponse(func(r *colly.Response) {
		resp.status = r.StatusCode
		resp.body = r.Body
		if r.Headers != nil {
			resp.header = *r.Headers
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			resp.status = r.StatusCode
			resp.body = r.Body
		}
		reqErr = err
	})
	if err := c.Visit(url); err != nil && reqErr == nil {
		reqErr = err
	}
	return resp, reqErr
}
