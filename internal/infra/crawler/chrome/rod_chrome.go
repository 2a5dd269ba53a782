package chrome

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/profile"
)

const clickTimeout = 3 * time.Second

type rodSurface struct {
	browser    *rod.Browser
	page       *rod.Page
	navTimeout time.Duration
	lastURL    string
	// cleanup 释放启动器进程与用户数据目录
	cleanup func()
}

// InitRodSurface 在已连接的浏览器上创建 stealth 页面并应用会话身份
func InitRodSurface(browser *rod.Browser, p profile.Profile, navTimeout time.Duration, cleanup func()) (Surface, error) {
	page, err := stealth.Page(browser)
	if err != nil {
		return nil, fmt.Errorf("create stealth page: %w", err)
	}
	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             p.Viewport.Width,
		Height:            p.Viewport.Height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("set viewport: %w", err)
	}
	err = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      p.UserAgent,
		AcceptLanguage: p.AcceptLanguage(),
	})
	if err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("set user agent: %w", err)
	}
	if _, err := page.EvalOnNewDocument(stealthJS); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("install stealth script: %w", err)
	}
	return &rodSurface{
		browser:    browser,
		page:       page,
		navTimeout: navTimeout,
		cleanup:    cleanup,
	}, nil
}

func (rs *rodSurface) Navigate(ctx context.Context, url string) error {
	page := rs.page.Context(ctx).Timeout(rs.navTimeout)
	defer page.CancelTimeout()

	if err := page.Navigate(url); err != nil {
		return &NavigationError{URL: url, Err: err}
	}
	if err := page.WaitLoad(); err != nil {
		return &NavigationError{URL: url, Err: err}
	}
	rs.lastURL = url
	return nil
}

func (rs *rodSurface) CurrentURL() string {
	info, err := rs.page.Info()
	if err != nil || info.URL == "" {
		return rs.lastURL
	}
	return info.URL
}

func (rs *rodSurface) WaitFor(ctx context.Context, timeout time.Duration, sels ...Selector) bool {
	return WaitAny(ctx, rs, timeout, sels...)
}

func (rs *rodSurface) Query(ctx context.Context, sel Selector) []Element {
	texts := sel.TextContains
	if texts == nil {
		texts = []string{}
	}
	els, err := rs.page.Context(ctx).ElementsByJS(rod.Eval(queryJS, sel.CSS, texts))
	if err != nil {
		return nil
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, rodElement{el: el})
	}
	return out
}

func (rs *rodSurface) Click(ctx context.Context, el Element) {
	re, ok := el.(rodElement)
	if !ok {
		return
	}
	target := re.el.Context(ctx).Timeout(clickTimeout)
	defer target.CancelTimeout()
	if err := target.Click(proto.InputMouseButtonLeft, 1); err != nil {
		// 被遮挡时退回到脚本点击
		_, _ = re.el.Context(ctx).Eval(`() => this.click()`)
	}
}

func (rs *rodSurface) RunScript(ctx context.Context, fn string, args ...any) (any, error) {
	res, err := rs.page.Context(ctx).Eval(fn, args...)
	if err != nil {
		return nil, err
	}
	return res.Value.Val(), nil
}

func (rs *rodSurface) RunScriptOn(ctx context.Context, el Element, fn string, args ...any) (any, error) {
	re, ok := el.(rodElement)
	if !ok {
		return nil, fmt.Errorf("element %T does not belong to a rod surface", el)
	}
	res, err := re.el.Context(ctx).Eval("(...args) => ("+fn+")(this, ...args)", args...)
	if err != nil {
		return nil, err
	}
	return res.Value.Val(), nil
}

func (rs *rodSurface) PressPageDown(ctx context.Context) error {
	return rs.page.Context(ctx).KeyActions().Press(input.PageDown).Do()
}

func (rs *rodSurface) Close() error {
	var errs []error
	if err := rs.page.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close page: %w", err))
	}
	if err := rs.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	if rs.cleanup != nil {
		rs.cleanup()
	}
	return errors.Join(errs...)
}

type rodElement struct {
	el *rod.Element
}

func (e rodElement) Attribute(name string) string {
	v, err := e.el.Attribute(name)
	if err != nil || v == nil {
		return ""
	}
	return *v
}

func (e rodElement) Text() string {
	text, err := e.el.Text()
	if err != nil {
		return ""
	}
	return text
}
