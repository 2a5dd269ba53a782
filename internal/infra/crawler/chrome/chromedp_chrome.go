package chrome

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/LouYuanbo1/dirscraper/internal/config"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/profile"
)

// chromedp 没有跨调用的元素句柄,查询时给元素打上 data-dsid 标记,之后按标记定位
const markJS = `(found) => {
	const ids = [];
	for (const n of found) {
		if (!n.dataset.dsid) {
			window.__dsSeq = (window.__dsSeq || 0) + 1;
			n.dataset.dsid = String(window.__dsSeq);
		}
		ids.push(n.dataset.dsid);
	}
	return ids;
}`

type chromedpSurface struct {
	allocCtxFuc context.CancelFunc
	pageCtx     context.Context
	pageCtxFuc  context.CancelFunc
	navTimeout  time.Duration
	lastURL     string
}

// InitChromedpSurface 启动一个独立的 chromedp 浏览器会话
func InitChromedpSurface(ctx context.Context, cfg config.ChromedpConfig, p profile.Profile, userDataDir string, navTimeout time.Duration) (Surface, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", cfg.DisableBlinkFeatures),
		chromedp.Flag("incognito", cfg.Incognito),
		chromedp.Flag("disable-dev-shm-usage", cfg.DisableDevShmUsage),
		chromedp.Flag("no-sandbox", cfg.NoSandbox),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("lang", p.Locale),
		chromedp.UserAgent(p.UserAgent),
		chromedp.WindowSize(p.Viewport.Width, p.Viewport.Height),
	)
	if userDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(userDataDir))
	}
	if p.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(p.Proxy))
	}

	// 会话生命周期由 Close 控制,不跟随调用方 ctx
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	pageCtx, cancelPage := chromedp.NewContext(allocCtx)

	err := chromedp.Run(pageCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": p.AcceptLanguage()}),
		emulation.SetDeviceMetricsOverride(int64(p.Viewport.Width), int64(p.Viewport.Height), 1, false),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthJS).Do(ctx)
			return err
		}),
	)
	if err != nil {
		cancelPage()
		cancelAlloc()
		return nil, fmt.Errorf("start chromedp session: %w", err)
	}

	return &chromedpSurface{
		allocCtxFuc: cancelAlloc,
		pageCtx:     pageCtx,
		pageCtxFuc:  cancelPage,
		navTimeout:  navTimeout,
	}, nil
}

// run 在会话上执行动作,同时响应调用方 ctx 的取消
func (cs *chromedpSurface) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(cs.pageCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (cs *chromedpSurface) Navigate(ctx context.Context, url string) error {
	if err := cs.run(ctx, cs.navTimeout, chromedp.Navigate(url)); err != nil {
		return &NavigationError{URL: url, Err: err}
	}
	cs.lastURL = url
	return nil
}

func (cs *chromedpSurface) CurrentURL() string {
	var loc string
	if err := cs.run(context.Background(), 5*time.Second, chromedp.Location(&loc)); err != nil || loc == "" {
		return cs.lastURL
	}
	return loc
}

func (cs *chromedpSurface) WaitFor(ctx context.Context, timeout time.Duration, sels ...Selector) bool {
	return WaitAny(ctx, cs, timeout, sels...)
}

func (cs *chromedpSurface) Query(ctx context.Context, sel Selector) []Element {
	texts := sel.TextContains
	if texts == nil {
		texts = []string{}
	}
	expr := fmt.Sprintf("(%s)((%s)(%s, %s))", markJS, queryJS, mustJSON(sel.CSS), mustJSON(texts))
	var ids []string
	if err := cs.run(ctx, cs.navTimeout, chromedp.Evaluate(expr, &ids)); err != nil {
		return nil
	}
	out := make([]Element, 0, len(ids))
	for _, id := range ids {
		out = append(out, cdpElement{surface: cs, ctx: ctx, id: id})
	}
	return out
}

func (cs *chromedpSurface) Click(ctx context.Context, el Element) {
	_, _ = cs.RunScriptOn(ctx, el, `(el) => el.click()`)
}

func (cs *chromedpSurface) RunScript(ctx context.Context, fn string, args ...any) (any, error) {
	expr := fmt.Sprintf("(() => { const r = (%s)(...%s); return r === undefined ? null : r; })()", fn, mustJSON(args))
	var res any
	if err := cs.run(ctx, cs.navTimeout, chromedp.Evaluate(expr, &res)); err != nil {
		return nil, err
	}
	return res, nil
}

func (cs *chromedpSurface) RunScriptOn(ctx context.Context, el Element, fn string, args ...any) (any, error) {
	ce, ok := el.(cdpElement)
	if !ok {
		return nil, fmt.Errorf("element %T does not belong to a chromedp surface", el)
	}
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector('[data-dsid="' + %s + '"]');
		if (!el) return null;
		const r = (%s)(el, ...%s);
		return r === undefined ? null : r;
	})()`, mustJSON(ce.id), fn, mustJSON(args))
	var res any
	if err := cs.run(ctx, cs.navTimeout, chromedp.Evaluate(expr, &res)); err != nil {
		return nil, err
	}
	return res, nil
}

func (cs *chromedpSurface) PressPageDown(ctx context.Context) error {
	return cs.run(ctx, cs.navTimeout, chromedp.KeyEvent(kb.PageDown))
}

func (cs *chromedpSurface) Close() error {
	cs.pageCtxFuc()
	cs.allocCtxFuc()
	return nil
}

type cdpElement struct {
	surface *chromedpSurface
	ctx     context.Context
	id      string
}

func (e cdpElement) Attribute(name string) string {
	v, err := e.surface.RunScriptOn(e.ctx, e, `(el, name) => el.getAttribute(name) || ''`, name)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func (e cdpElement) Text() string {
	v, err := e.surface.RunScriptOn(e.ctx, e, `(el) => el.innerText || el.textContent || ''`)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return strconv.Quote(fmt.Sprint(v))
	}
	return string(b)
}
