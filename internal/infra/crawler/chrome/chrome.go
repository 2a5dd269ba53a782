package chrome

import (
	"context"
	"strings"
	"time"
)

// Surface 一个可控的浏览器会话,上层组件只依赖这个接口。
// 每个 Surface 独占一个会话,不能跨 goroutine 共享。
type Surface interface {
	// Navigate 网络错误或超时返回 *NavigationError
	Navigate(ctx context.Context, url string) error
	// WaitFor 任一选择器命中返回 true,超时返回 false,超时不是错误
	WaitFor(ctx context.Context, timeout time.Duration, sels ...Selector) bool
	// Query 按文档顺序返回匹配的元素
	Query(ctx context.Context, sel Selector) []Element
	// Click 尽力点击,失败被吞掉
	Click(ctx context.Context, el Element)
	// RunScript 执行函数表达式 fn(...args)
	RunScript(ctx context.Context, fn string, args ...any) (any, error)
	// RunScriptOn 执行 fn(el, ...args)
	RunScriptOn(ctx context.Context, el Element, fn string, args ...any) (any, error)
	// CurrentURL 当前页面地址,用于解析相对链接
	CurrentURL() string
	Close() error
}

// KeyPresser 支持键盘输入的会话
type KeyPresser interface {
	PressPageDown(ctx context.Context) error
}

// Element 不透明的元素句柄,元素失效时访问器返回空字符串
type Element interface {
	Attribute(name string) string
	Text() string
}

// Selector 结构选择器,可以附加文字条件。
// TextContains 非空时只保留自身文本包含其中任一片段的元素(不区分大小写)。
type Selector struct {
	CSS          string
	TextContains []string
}

func CSS(css string) Selector {
	return Selector{CSS: css}
}

func WithText(css string, texts ...string) Selector {
	return Selector{CSS: css, TextContains: texts}
}

func (s Selector) String() string {
	if len(s.TextContains) == 0 {
		return s.CSS
	}
	return s.CSS + " ~ " + strings.Join(s.TextContains, "|")
}

// FirstText 依次尝试选择器,返回第一个非空文本
func FirstText(ctx context.Context, s Surface, sels ...Selector) string {
	for _, sel := range sels {
		for _, el := range s.Query(ctx, sel) {
			if text := strings.TrimSpace(el.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

// Attributes 收集所有匹配元素的属性值,忽略空值
func Attributes(ctx context.Context, s Surface, sel Selector, name string) []string {
	els := s.Query(ctx, sel)
	out := make([]string, 0, len(els))
	for _, el := range els {
		if v := strings.TrimSpace(el.Attribute(name)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

const pollInterval = 250 * time.Millisecond

// Poll 轮询 cond 直到返回 true、超时或 ctx 取消
func Poll(ctx context.Context, timeout time.Duration, cond func() bool) bool {
	if cond() {
		return true
	}
	if timeout <= 0 {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return cond()
		case <-ticker.C:
			if cond() {
				return true
			}
		}
	}
}

// WaitAny 基于 Query 的通用 WaitFor 实现
func WaitAny(ctx context.Context, s Surface, timeout time.Duration, sels ...Selector) bool {
	return Poll(ctx, timeout, func() bool {
		for _, sel := range sels {
			if len(s.Query(ctx, sel)) > 0 {
				return true
			}
		}
		return false
	})
}

// MatchesOwnText 判断元素自身文本是否命中选择器的文字条件
func (s Selector) MatchesOwnText(own string) bool {
	if len(s.TextContains) == 0 {
		return true
	}
	own = strings.ToLower(own)
	for _, t := range s.TextContains {
		if strings.Contains(own, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// RateLimitCSS 限流提示可能出现在页面任意可见元素中;脚本、样式等不渲染的节点不参与匹配
const RateLimitCSS = "body *:not(script):not(style):not(noscript):not(template)"

// CheckRateLimit 页面上出现任一限流提示时返回 *RateLimitError
func CheckRateLimit(ctx context.Context, s Surface, markers []string) error {
	if len(markers) == 0 {
		return nil
	}
	els := s.Query(ctx, WithText(RateLimitCSS, markers...))
	if len(els) == 0 {
		return nil
	}
	return &RateLimitError{URL: s.CurrentURL(), Reason: strings.TrimSpace(els[0].Text())}
}
