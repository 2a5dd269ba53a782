package profile

import (
	"math/rand/v2"
	"strings"

	"github.com/corpix/uarand"

	"github.com/LouYuanbo1/dirscraper/internal/config"
)

var defaultViewport = config.Viewport{Width: 1920, Height: 1080}

// Profile 会话身份,创建后不可修改,随会话一起丢弃
type Profile struct {
	UserAgent string
	Viewport  config.Viewport
	Locale    string
	// Proxy 为空表示直连
	Proxy string
}

// New 按配置随机生成会话身份,未配置 UA 列表时使用 uarand
func New(cfg config.SessionConfig) Profile {
	p := Profile{
		UserAgent: uarand.GetRandom(),
		Viewport:  defaultViewport,
		Locale:    cfg.Locale,
		Proxy:     cfg.Proxy,
	}
	if len(cfg.UserAgents) > 0 {
		p.UserAgent = cfg.UserAgents[rand.IntN(len(cfg.UserAgents))]
	}
	if len(cfg.Viewports) > 0 {
		p.Viewport = cfg.Viewports[rand.IntN(len(cfg.Viewports))]
	}
	if p.Locale == "" {
		p.Locale = "ru-RU"
	}
	return p
}

// AcceptLanguage 形如 "ru-RU,ru;q=0.9"
func (p Profile) AcceptLanguage() string {
	lang, _, _ := strings.Cut(p.Locale, "-")
	if lang == "" || lang == p.Locale {
		return p.Locale
	}
	return p.Locale + "," + lang + ";q=0.9"
}
