package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/LouYuanbo1/dirscraper/internal/config"
	"github.com/LouYuanbo1/dirscraper/internal/domain/model"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/chrome"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/pacer"
	"github.com/LouYuanbo1/dirscraper/internal/service/normalize"
)

// 每个字段的选择器按具体程度排列,第一个非空结果生效
var (
	headingSelectors = []chrome.Selector{
		chrome.CSS("h1"),
		chrome.CSS("[itemprop='name']"),
	}
	addressSelectors = []chrome.Selector{
		chrome.CSS("a[href*='/geo/']"),
		chrome.CSS("[itemprop='address']"),
		chrome.CSS("address"),
		chrome.CSS("div[class*='address']"),
	}
	revealPhoneSelector = chrome.WithText("div, button", "Показать телефон", "Show phone")
	phoneSelector       = chrome.CSS("a[href^='tel:']")
	emailSelector       = chrome.CSS("a[href^='mailto:']")
	outboundSelector    = chrome.CSS("a[href^='http']")
)

// ErrHeadingTimeout 详情页主要内容没有在超时内出现,可以重试
var ErrHeadingTimeout = errors.New("primary heading did not appear")

// Locality 写入每条记录的城市与国家
type Locality struct {
	City    string
	Country string
}

// Extractor 访问一个详情页并抽取记录。
// 重试耗尽后返回错误,调用方记录日志并丢弃该条目,不影响后续页面。
type Extractor interface {
	Extract(ctx context.Context, url string) (*model.Record, error)
}

type extractor struct {
	surface  chrome.Surface
	pacer    *pacer.Pacer
	cfg      config.ExtractConfig
	markers  []string
	locality Locality
	logger   logrus.FieldLogger
}

func InitExtractor(surface chrome.Surface, p *pacer.Pacer, cfg config.ExtractConfig, rateLimitMarkers []string, locality Locality, logger logrus.FieldLogger) Extractor {
	return &extractor{
		surface:  surface,
		pacer:    p,
		cfg:      cfg,
		markers:  rateLimitMarkers,
		locality: locality,
		logger:   logger,
	}
}

func (e *extractor) Extract(ctx context.Context, url string) (*model.Record, error) {
	log := e.logger.WithField("url", url)
	attempts := max(1, e.cfg.MaxAttempts)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		rec, err := e.visit(ctx, url)
		if err == nil {
			return rec, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !chrome.IsRetryable(err) && !errors.Is(err, ErrHeadingTimeout) {
			break
		}
		log.WithError(err).WithField("attempt", attempt).Warn("page visit failed")
		if attempt < attempts {
			if err := pacer.Sleep(ctx, e.backoff(attempt)); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("extract %s: %w", url, lastErr)
}

// backoff 随尝试次数线性增长
func (e *extractor) backoff(attempt int) time.Duration {
	return time.Duration(attempt) * e.cfg.Backoff.Duration
}

func (e *extractor) visit(ctx context.Context, url string) (*model.Record, error) {
	if err := e.pacer.Wait(ctx); err != nil {
		return nil, err
	}
	if err := e.surface.Navigate(ctx, url); err != nil {
		if chrome.IsRateLimited(err) {
			e.pacer.Penalize()
		}
		return nil, err
	}
	if err := chrome.CheckRateLimit(ctx, e.surface, e.markers); err != nil {
		e.pacer.Penalize()
		return nil, err
	}
	if !e.surface.WaitFor(ctx, e.cfg.HeadingTimeout.Duration, headingSelectors...) {
		return nil, ErrHeadingTimeout
	}
	return e.record(ctx, url), nil
}

// record 字段缺失时保持空值,不视为错误
func (e *extractor) record(ctx context.Context, url string) *model.Record {
	rec := &model.Record{
		Name:      chrome.FirstText(ctx, e.surface, headingSelectors...),
		Address:   chrome.FirstText(ctx, e.surface, addressSelectors...),
		SourceURL: url,
		City:      e.locality.City,
		Country:   e.locality.Country,
	}

	e.revealPhones(ctx)
	rec.Phones = normalize.Phones(chrome.Attributes(ctx, e.surface, phoneSelector, "href"))
	rec.Emails = normalize.Emails(chrome.Attributes(ctx, e.surface, emailSelector, "href"))

	outbound := e.surface.Query(ctx, outboundSelector)
	links := make([]normalize.Link, 0, len(outbound))
	for _, el := range outbound {
		links = append(links, normalize.Link{Href: el.Attribute("href"), Text: el.Text()})
	}
	rec.Websites = normalize.RankWebsites(links, rec.Emails, e.cfg.WebsiteCap)
	return rec
}

// revealPhones 点击"显示电话"按钮,点击失败不影响抽取
func (e *extractor) revealPhones(ctx context.Context) {
	for _, btn := range e.surface.Query(ctx, revealPhoneSelector) {
		e.surface.Click(ctx, btn)
		if err := pacer.Sleep(ctx, e.cfg.RevealDelay.Duration); err != nil {
			return
		}
	}
}
