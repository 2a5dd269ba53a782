package parallel

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-rod/rod"
	"github.com/sirupsen/logrus"

	"github.com/LouYuanbo1/dirscraper/internal/config"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/chrome"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/collector"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/options"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/pacer"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/profile"
)

type sessionFactory struct {
	cfg    *config.Config
	logger logrus.FieldLogger
}

// InitSessionFactory 按配置的引擎创建会话工厂,每个 worker 一个独立浏览器
func InitSessionFactory(cfg *config.Config, logger logrus.FieldLogger) (SessionFactory, error) {
	switch cfg.Crawl.Engine {
	case config.EngineRod, config.EngineChromedp, config.EngineStatic:
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Crawl.Engine)
	}
	return &sessionFactory{cfg: cfg, logger: logger}, nil
}

func (sf *sessionFactory) Open(ctx context.Context, workerID int) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &chrome.SessionInitError{Worker: workerID, Err: err}
	}
	prof := profile.New(sf.cfg.Session)
	sf.logger.WithFields(logrus.Fields{
		"worker_id":  workerID,
		"engine":     sf.cfg.Crawl.Engine,
		"user_agent": prof.UserAgent,
		"viewport":   fmt.Sprintf("%dx%d", prof.Viewport.Width, prof.Viewport.Height),
	}).Info("open session")

	var (
		surface chrome.Surface
		err     error
	)
	switch sf.cfg.Crawl.Engine {
	case config.EngineRod:
		surface, err = sf.openRod(workerID, prof)
	case config.EngineChromedp:
		surface, err = chrome.InitChromedpSurface(ctx, sf.cfg.Chromedp, prof,
			instanceDir(sf.cfg.Chromedp.UserDataDir, workerID), sf.cfg.Session.NavigationTimeout.Duration)
	case config.EngineStatic:
		colly := sf.cfg.Colly
		if colly.RequestTimeout.Duration == 0 {
			colly.RequestTimeout = sf.cfg.Session.NavigationTimeout
		}
		surface = collector.InitStaticSurface(colly, prof)
	}
	if err != nil {
		return nil, &chrome.SessionInitError{Worker: workerID, Err: err}
	}
	return &Session{
		ID:      workerID,
		Surface: surface,
		Profile: prof,
		Pacer:   pacer.New(sf.cfg.Pacer),
	}, nil
}

func (sf *sessionFactory) openRod(workerID int, prof profile.Profile) (chrome.Surface, error) {
	rc := sf.cfg.Rod
	// 多个浏览器不能共用同一个用户数据目录
	userDataDir := instanceDir(rc.UserDataDir, workerID)
	port := 0
	if rc.BasicRemoteDebuggingPort > 0 {
		port = rc.BasicRemoteDebuggingPort + workerID
	}
	l := options.CreateLauncher(rc.UserMode,
		options.WithBin(rc.Bin),
		options.WithUserDataDir(userDataDir),
		options.WithHeadless(rc.Headless),
		options.WithDisableBlinkFeatures(rc.DisableBlinkFeatures),
		options.WithIncognito(rc.Incognito),
		options.WithDisableDevShmUsage(rc.DisableDevShmUsage),
		options.WithNoSandbox(rc.NoSandbox),
		options.WithUserAgent(prof.UserAgent),
		options.WithLeakless(rc.Leakless),
		options.WithDisableBackgroundNetworking(rc.DisableBackgroundNetworking),
		options.WithDisableBackgroundTimerThrottling(rc.DisableBackgroundTimerThrottling),
		options.WithRemoteDebuggingPort(port),
		options.WithProxy(prof.Proxy),
		options.WithLang(prof.Locale),
		options.WithWindowSize(prof.Viewport.Width, prof.Viewport.Height),
		options.WithDisableGPU(),
	)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	cleanup := func() {
		l.Kill()
		// 未指定目录时 rod 使用临时目录,用完删除
		if userDataDir == "" {
			l.Cleanup()
		}
	}

	browser := rod.New().ControlURL(controlURL).Trace(rc.Trace)
	if err := browser.Connect(); err != nil {
		cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	surface, err := chrome.InitRodSurface(browser, prof, sf.cfg.Session.NavigationTimeout.Duration, cleanup)
	if err != nil {
		_ = browser.Close()
		cleanup()
		return nil, err
	}
	return surface, nil
}

func instanceDir(base string, workerID int) string {
	if base == "" {
		return ""
	}
	return filepath.Join(base, fmt.Sprintf("instance_%d", workerID))
}
