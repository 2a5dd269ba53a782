// Package chrometest 提供内存中的 Surface 实现,供上层组件测试使用
package chrometest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/chrome"
)

// Element 假元素,Own 是自身文本,TextContains 条件按它匹配
type Element struct {
	Attrs map[string]string
	Own   string
	Body  string
}

func (e *Element) Attribute(name string) string {
	return e.Attrs[name]
}

func (e *Element) Text() string {
	if e.Body != "" {
		return e.Body
	}
	return e.Own
}

// Link 构造一个 <a href=...>text</a>
func Link(href, text string) *Element {
	return &Element{Attrs: map[string]string{"href": href}, Own: text}
}

// Text 构造只有文本的元素
func Text(text string) *Element {
	return &Element{Own: text}
}

// Page 一个假页面,元素按选择器的 CSS 字符串索引
type Page struct {
	URL      string
	Elements map[string][]*Element
	// Script 处理 RunScript/RunScriptOn,el 为 nil 表示页面级脚本
	Script  func(p *Page, el *Element, fn string, args []any) (any, error)
	OnClick func(p *Page, el *Element)
}

func (p *Page) Add(css string, els ...*Element) {
	if p.Elements == nil {
		p.Elements = make(map[string][]*Element)
	}
	p.Elements[css] = append(p.Elements[css], els...)
}

// Surface 可编排的 chrome.Surface 假实现
type Surface struct {
	mu sync.Mutex

	Pages map[string]*Page
	// NavErrs 每次导航按顺序弹出一个错误,nil 表示成功
	NavErrs map[string][]error

	current     *Page
	currentURL  string
	Navigations []string
	PageDowns   int
	Clicks      int
	Closed      bool
}

var _ chrome.Surface = (*Surface)(nil)
var _ chrome.KeyPresser = (*Surface)(nil)

func New() *Surface {
	return &Surface{
		Pages:   make(map[string]*Page),
		NavErrs: make(map[string][]error),
	}
}

// Page 返回(必要时创建)指定地址的页面
func (s *Surface) Page(url string) *Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Pages[url]
	if !ok {
		p = &Page{URL: url}
		s.Pages[url] = p
	}
	return p
}

func (s *Surface) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return &chrome.NavigationError{URL: url, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Navigations = append(s.Navigations, url)
	if errs := s.NavErrs[url]; len(errs) > 0 {
		err := errs[0]
		s.NavErrs[url] = errs[1:]
		if err != nil {
			return err
		}
	}
	p, ok := s.Pages[url]
	if !ok {
		return &chrome.NavigationError{URL: url, Err: errors.New("no such page")}
	}
	s.current = p
	s.currentURL = url
	return nil
}

func (s *Surface) CurrentURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentURL
}

func (s *Surface) WaitFor(ctx context.Context, timeout time.Duration, sels ...chrome.Selector) bool {
	// 假页面是静态的,不需要真正等待
	for _, sel := range sels {
		if len(s.Query(ctx, sel)) > 0 {
			return true
		}
	}
	return false
}

func (s *Surface) Query(ctx context.Context, sel chrome.Selector) []chrome.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	var out []chrome.Element
	for _, el := range s.current.Elements[sel.CSS] {
		if sel.MatchesOwnText(el.Own) {
			out = append(out, el)
		}
	}
	return out
}

func (s *Surface) Click(ctx context.Context, el chrome.Element) {
	s.mu.Lock()
	p := s.current
	s.Clicks++
	s.mu.Unlock()
	fe, ok := el.(*Element)
	if !ok || p == nil || p.OnClick == nil {
		return
	}
	p.OnClick(p, fe)
}

func (s *Surface) RunScript(ctx context.Context, fn string, args ...any) (any, error) {
	return s.runScript(nil, fn, args)
}

func (s *Surface) RunScriptOn(ctx context.Context, el chrome.Element, fn string, args ...any) (any, error) {
	fe, ok := el.(*Element)
	if !ok {
		return nil, errors.New("foreign element")
	}
	return s.runScript(fe, fn, args)
}

func (s *Surface) runScript(el *Element, fn string, args []any) (any, error) {
	s.mu.Lock()
	p := s.current
	s.mu.Unlock()
	if p == nil || p.Script == nil {
		return nil, nil
	}
	return p.Script(p, el, fn, args)
}

func (s *Surface) PressPageDown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PageDowns++
	return nil
}

func (s *Surface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// NavigationCount 某个地址被导航的次数
func (s *Surface) NavigationCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.Navigations {
		if u == url {
			n++
		}
	}
	return n
}
