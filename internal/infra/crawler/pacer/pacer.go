package pacer

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/LouYuanbo1/dirscraper/internal/config"
)

// Pacer 单个会话的请求节奏: 令牌桶限速,随机抖动,收到限流信号后的惩罚等待。
// 每个 worker 持有自己的 Pacer。
type Pacer struct {
	limiter  *rate.Limiter
	standard time.Duration
	random   time.Duration
	penalty  time.Duration

	mu           sync.Mutex
	penaltyUntil time.Time
	now          func() time.Time
}

func New(cfg config.PacerConfig) *Pacer {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Pacer{
		limiter:  rate.NewLimiter(limit, burst),
		standard: cfg.StandardSleep.Duration,
		random:   cfg.RandomDelay.Duration,
		penalty:  cfg.Penalty.Duration,
		now:      time.Now,
	}
}

// Wait 在每次导航前调用: 先等惩罚窗口结束,再取令牌,最后加随机抖动
func (p *Pacer) Wait(ctx context.Context) error {
	if rest := p.penaltyLeft(); rest > 0 {
		if err := Sleep(ctx, rest); err != nil {
			return err
		}
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	return Sleep(ctx, p.Jitter())
}

// Settle 滚动或点击后等待懒加载内容
func (p *Pacer) Settle(ctx context.Context) error {
	return Sleep(ctx, p.Jitter())
}

// Jitter 基础等待加随机延迟
func (p *Pacer) Jitter() time.Duration {
	d := p.standard
	if p.random > 0 {
		d += time.Duration(rand.Float64() * float64(p.random))
	}
	return d
}

// Penalize 收到限流信号,下一次请求前至少等待一个惩罚窗口
func (p *Pacer) Penalize() {
	p.mu.Lock()
	defer p.mu.Unlock()
	until := p.now().Add(p.penalty)
	if until.After(p.penaltyUntil) {
		p.penaltyUntil = until
	}
}

func (p *Pacer) penaltyLeft() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.penaltyUntil.Sub(p.now())
}

// Sleep 可被 ctx 打断的等待
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
