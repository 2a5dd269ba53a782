package discovery

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/LouYuanbo1/dirscraper/internal/config"
	"github.com/LouYuanbo1/dirscraper/internal/domain/model"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/chrome"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/pacer"
	"github.com/LouYuanbo1/dirscraper/param"
)

var scrollContainerSelector = chrome.CSS("[data-ds-scroll]")

const wheelDeltaY = 1000

// ScrollState 一轮滚动时刺激函数可以使用的元素
type ScrollState struct {
	// Container 为 nil 表示还没找到可滚动的容器
	Container chrome.Element
	Last      chrome.Element
}

// Stimulus 一种滚动信号。虚拟列表可能只监听其中一种,所以每轮全部触发。
type Stimulus struct {
	Name string
	Fire func(ctx context.Context, s chrome.Surface, st ScrollState) error
}

var errNoTarget = errors.New("no element to act on")

// DefaultStimuli 滚轮事件、直接写 scrollTop、把最后一个链接滚入视口、PageDown
var DefaultStimuli = []Stimulus{
	{Name: "wheel", Fire: func(ctx context.Context, s chrome.Surface, st ScrollState) error {
		if st.Container == nil {
			return errNoTarget
		}
		_, err := s.RunScriptOn(ctx, st.Container, wheelJS, wheelDeltaY)
		return err
	}},
	{Name: "scroll_top", Fire: func(ctx context.Context, s chrome.Surface, st ScrollState) error {
		if st.Container == nil {
			return errNoTarget
		}
		_, err := s.RunScriptOn(ctx, st.Container, scrollTopJS)
		return err
	}},
	{Name: "scroll_into_view", Fire: func(ctx context.Context, s chrome.Surface, st ScrollState) error {
		if st.Last == nil {
			return errNoTarget
		}
		_, err := s.RunScriptOn(ctx, st.Last, scrollIntoViewJS)
		return err
	}},
	{Name: "page_down", Fire: func(ctx context.Context, s chrome.Surface, st ScrollState) error {
		kp, ok := s.(chrome.KeyPresser)
		if !ok {
			return chrome.ErrScriptUnsupported
		}
		return kp.PressPageDown(ctx)
	}},
}

type scrollDiscoverer struct {
	surface chrome.Surface
	pacer   *pacer.Pacer
	cfg     config.DiscoveryConfig
	stimuli []Stimulus
	logger  logrus.FieldLogger
}

// InitScrollDiscoverer 在虚拟滚动的结果列表中收集链接
func InitScrollDiscoverer(surface chrome.Surface, p *pacer.Pacer, cfg config.DiscoveryConfig, logger logrus.FieldLogger) Discoverer {
	return &scrollDiscoverer{
		surface: surface,
		pacer:   p,
		cfg:     cfg,
		stimuli: DefaultStimuli,
		logger:  logger,
	}
}

func (sd *scrollDiscoverer) Discover(ctx context.Context, target param.DiscoveryTarget) ([]model.ItemHandle, error) {
	startURL := SearchURL(sd.cfg.SiteURL, target)
	log := sd.logger.WithFields(logrus.Fields{"query": target.QueryTerm, "strategy": param.StrategyScroll})
	log.WithField("url", startURL).Info("collecting links")

	if err := visit(ctx, sd.surface, sd.pacer, startURL, sd.cfg.RateLimitMarker); err != nil {
		return nil, err
	}
	if sd.cfg.Zoom > 0 {
		if _, err := sd.surface.RunScript(ctx, zoomJS, sd.cfg.Zoom); err != nil {
			log.WithError(err).Debug("zoom out failed")
		}
	}
	sd.surface.WaitFor(ctx, sd.cfg.WaitTimeout.Duration, itemLinkSelector)

	set := newLinkSet(target.ItemCap)
	var st ScrollState
	noNew := 0
	for iter := 0; iter < sd.cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return set.handles(), err
		}
		els, hrefs := itemHrefs(ctx, sd.surface)
		added := set.addHrefs(sd.surface.CurrentURL(), hrefs)
		if added > 0 {
			log.WithField("collected", set.len()).Debugf("+%d links", added)
		}
		if set.full() {
			break
		}

		if added == 0 {
			noNew++
			if err := chrome.CheckRateLimit(ctx, sd.surface, sd.cfg.RateLimitMarker); err != nil {
				log.WithError(err).Warn("rate limited while scrolling, backing off")
				sd.pacer.Penalize()
				if err := sd.pacer.Wait(ctx); err != nil {
					return set.handles(), err
				}
			}
		} else {
			noNew = 0
			if st.Container == nil && len(els) > 0 {
				st.Container = sd.findContainer(ctx, els[0])
				if st.Container != nil {
					log.Debug("found scrollable result container")
				}
			}
		}
		if noNew >= sd.cfg.NoNewLimit {
			log.WithField("iterations", iter+1).Info("no new items after repeated scrolls, stopping")
			break
		}

		if len(els) > 0 {
			st.Last = els[len(els)-1]
		}
		if !sd.fire(ctx, st, log) {
			log.Info("surface cannot scroll, keeping first screen")
			break
		}
		if err := sd.pacer.Settle(ctx); err != nil {
			return set.handles(), err
		}
	}

	log.WithField("collected", set.len()).Info("scroll discovery finished")
	return set.handles(), nil
}

func (sd *scrollDiscoverer) findContainer(ctx context.Context, link chrome.Element) chrome.Element {
	marked, err := sd.surface.RunScriptOn(ctx, link, markScrollableJS)
	if err != nil || marked != true {
		return nil
	}
	containers := sd.surface.Query(ctx, scrollContainerSelector)
	if len(containers) == 0 {
		return nil
	}
	return containers[0]
}

// fire 触发所有刺激,只要有一种真正作用到了会话上就返回 true
func (sd *scrollDiscoverer) fire(ctx context.Context, st ScrollState, log logrus.FieldLogger) bool {
	supported := false
	for _, stim := range sd.stimuli {
		err := stim.Fire(ctx, sd.surface, st)
		switch {
		case err == nil:
			supported = true
		case errors.Is(err, chrome.ErrScriptUnsupported):
		case errors.Is(err, errNoTarget):
		default:
			supported = true
			log.WithError(err).WithField("stimulus", stim.Name).Debug("scroll stimulus failed")
		}
	}
	return supported
}
