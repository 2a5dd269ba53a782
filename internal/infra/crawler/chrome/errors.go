package chrome

import (
	"context"
	"errors"
	"fmt"
)

// ErrScriptUnsupported 静态渲染不执行脚本
var ErrScriptUnsupported = errors.New("script execution is not supported by this surface")

// NavigationError 打开页面时的网络错误或超时,可以重试
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// SessionInitError 浏览器会话启动失败,只影响对应的 worker
type SessionInitError struct {
	Worker int
	Err    error
}

func (e *SessionInitError) Error() string {
	return fmt.Sprintf("worker %d: session init: %v", e.Worker, e.Err)
}

func (e *SessionInitError) Unwrap() error {
	return e.Err
}

// RateLimitError 目标站点返回限流信号,调用方应延长下一次请求前的等待
type RateLimitError struct {
	URL    string
	Reason string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited at %s: %s", e.URL, e.Reason)
}

// IsRetryable 导航错误与限流可以重试,ctx 取消不重试
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var navErr *NavigationError
	var rlErr *RateLimitError
	return errors.As(err, &navErr) || errors.As(err, &rlErr)
}

// IsRateLimited 判断错误链中是否有限流信号
func IsRateLimited(err error) bool {
	var rlErr *RateLimitError
	return errors.As(err, &rlErr)
}
