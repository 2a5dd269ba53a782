package discovery

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LouYuanbo1/dirscraper/internal/config"
	"github.com/LouYuanbo1/dirscraper/internal/domain/entity"
	"github.com/LouYuanbo1/dirscraper/internal/domain/model"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/chrome"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/chrome/chrometest"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/pacer"
	"github.com/LouYuanbo1/dirscraper/internal/infra/logging"
	"github.com/LouYuanbo1/dirscraper/param"
)

const site = "https://2gis.test"

func testConfig() config.DiscoveryConfig {
	return config.DiscoveryConfig{
		SiteURL:         site,
		NoNewLimit:      3,
		MaxIterations:   50,
		EmptyPageLimit:  3,
		Zoom:            0.5,
		RateLimitMarker: []string{"Слишком много запросов"},
	}
}

func noPause() *pacer.Pacer {
	return pacer.New(config.PacerConfig{})
}

func firmLinks(from, to int) []*chrometest.Element {
	var out []*chrometest.Element
	for i := from; i <= to; i++ {
		out = append(out, chrometest.Link(fmt.Sprintf("/moscow/firm/%d?stat=abc#reviews", i), fmt.Sprintf("Фирма %d", i)))
	}
	return out
}

func urls(handles []model.ItemHandle) []string {
	out := make([]string, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.CanonicalURL)
	}
	return out
}

// virtualList 模拟虚拟列表: 每次滚轮事件追加一批链接,直到 total
func virtualList(p *chrometest.Page, batch, total int) {
	loaded := batch
	p.Add(itemLinkSelector.CSS, firmLinks(1, batch)...)
	p.Script = func(p *chrometest.Page, el *chrometest.Element, fn string, args []any) (any, error) {
		switch fn {
		case markScrollableJS:
			p.Add(scrollContainerSelector.CSS, &chrometest.Element{})
			return true, nil
		case wheelJS:
			if loaded < total {
				next := min(loaded+batch, total)
				p.Add(itemLinkSelector.CSS, firmLinks(loaded+1, next)...)
				loaded = next
			}
			return true, nil
		}
		return nil, nil
	}
}

func TestScrollDiscoverer(t *testing.T) {
	t.Parallel()

	target := param.DiscoveryTarget{Region: "moscow", QueryTerm: "кафе", ItemCap: 7}

	t.Run("collects until cap", func(t *testing.T) {
		t.Parallel()
		s := chrometest.New()
		virtualList(s.Page(SearchURL(site, target)), 3, 20)

		got, err := InitScrollDiscoverer(s, noPause(), testConfig(), logging.Discard()).Discover(context.Background(), target)
		require.NoError(t, err)
		require.Len(t, got, 7)
		assert.Equal(t, site+"/moscow/firm/1", got[0].CanonicalURL)
		assert.Equal(t, site+"/moscow/firm/7", got[6].CanonicalURL)
	})

	t.Run("stops after consecutive scrolls without new items", func(t *testing.T) {
		t.Parallel()
		s := chrometest.New()
		p := s.Page(SearchURL(site, target))
		p.Add(itemLinkSelector.CSS, firmLinks(1, 2)...)
		p.Add(itemLinkSelector.CSS, firmLinks(1, 2)...)

		got, err := InitScrollDiscoverer(s, noPause(), testConfig(), logging.Discard()).Discover(context.Background(), target)
		require.NoError(t, err)
		assert.Equal(t, []string{site + "/moscow/firm/1", site + "/moscow/firm/2"}, urls(got))
		// 第一轮有新链接,之后三轮没有,第三轮后停止且不再滚动
		assert.Equal(t, 3, s.PageDowns)
	})

	t.Run("url query is navigated directly", func(t *testing.T) {
		t.Parallel()
		rubric := param.DiscoveryTarget{Region: "moscow", QueryTerm: site + "/moscow/rubricId/164", ItemCap: 2}
		s := chrometest.New()
		virtualList(s.Page(rubric.QueryTerm), 2, 2)

		got, err := InitScrollDiscoverer(s, noPause(), testConfig(), logging.Discard()).Discover(context.Background(), rubric)
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Equal(t, []string{rubric.QueryTerm}, s.Navigations)
	})

	t.Run("rate limited search page", func(t *testing.T) {
		t.Parallel()
		s := chrometest.New()
		p := s.Page(SearchURL(site, target))
		p.Add(chrome.RateLimitCSS, chrometest.Text("Слишком много запросов"))

		_, err := InitScrollDiscoverer(s, noPause(), testConfig(), logging.Discard()).Discover(context.Background(), target)
		assert.True(t, chrome.IsRateLimited(err))
	})

	t.Run("navigation failure", func(t *testing.T) {
		t.Parallel()
		s := chrometest.New()
		_, err := InitScrollDiscoverer(s, noPause(), testConfig(), logging.Discard()).Discover(context.Background(), target)
		var navErr *chrome.NavigationError
		assert.ErrorAs(t, err, &navErr)
	})
}

// scriptless 没有脚本与键盘能力的会话,例如静态渲染
type scriptless struct {
	chrome.Surface
}

func TestScrollDiscovererWithoutScripts(t *testing.T) {
	t.Parallel()

	target := param.DiscoveryTarget{Region: "moscow", QueryTerm: "аптека", ItemCap: 10}
	fake := chrometest.New()
	p := fake.Page(SearchURL(site, target))
	p.Add(itemLinkSelector.CSS, firmLinks(1, 4)...)
	p.Script = func(*chrometest.Page, *chrometest.Element, string, []any) (any, error) {
		return nil, chrome.ErrScriptUnsupported
	}

	got, err := InitScrollDiscoverer(scriptless{fake}, noPause(), testConfig(), logging.Discard()).Discover(context.Background(), target)
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestScrollStimuliFireTogether(t *testing.T) {
	t.Parallel()

	s := chrometest.New()
	p := s.Page("https://2gis.test/list")
	var fired []string
	p.Script = func(_ *chrometest.Page, _ *chrometest.Element, fn string, _ []any) (any, error) {
		switch fn {
		case wheelJS:
			fired = append(fired, "wheel")
		case scrollTopJS:
			fired = append(fired, "scroll_top")
		case scrollIntoViewJS:
			fired = append(fired, "scroll_into_view")
		}
		return true, nil
	}
	require.NoError(t, s.Navigate(context.Background(), p.URL))

	sd := &scrollDiscoverer{surface: s, stimuli: DefaultStimuli, logger: logging.Discard()}
	ok := sd.fire(context.Background(), ScrollState{Container: &chrometest.Element{}, Last: &chrometest.Element{}}, logging.Discard())
	assert.True(t, ok)
	assert.Equal(t, []string{"wheel", "scroll_top", "scroll_into_view"}, fired)
	assert.Equal(t, 1, s.PageDowns)
}

func TestPaginationDiscoverer(t *testing.T) {
	t.Parallel()

	target := param.DiscoveryTarget{Region: "moscow", QueryTerm: "цветы", ItemCap: 100}
	base := SearchURL(site, target)

	t.Run("stops at end marker", func(t *testing.T) {
		t.Parallel()
		s := chrometest.New()
		s.Page(PageURL(base, 1)).Add(itemLinkSelector.CSS, firmLinks(1, 3)...)
		s.Page(PageURL(base, 2)).Add(itemLinkSelector.CSS, firmLinks(4, 6)...)
		last := s.Page(PageURL(base, 3))
		last.Add(itemLinkSelector.CSS, firmLinks(7, 7)...)
		last.Add(endMarkerSelector.CSS, chrometest.Text("Ничего не нашлось"))
		s.Page(PageURL(base, 4)).Add(itemLinkSelector.CSS, firmLinks(8, 9)...)

		got, err := InitPaginationDiscoverer(s, noPause(), testConfig(), logging.Discard()).Discover(context.Background(), target)
		require.NoError(t, err)
		assert.Len(t, got, 7)
		assert.Zero(t, s.NavigationCount(PageURL(base, 4)))
	})

	t.Run("tolerates transient empty pages", func(t *testing.T) {
		t.Parallel()
		s := chrometest.New()
		s.Page(PageURL(base, 1)).Add(itemLinkSelector.CSS, firmLinks(1, 2)...)
		// 第二页临时失败,第三页重复,第四页又有新数据
		s.Page(PageURL(base, 2))
		s.NavErrs[PageURL(base, 2)] = []error{&chrome.NavigationError{URL: "p2", Err: errors.New("timeout")}}
		s.Page(PageURL(base, 3)).Add(itemLinkSelector.CSS, firmLinks(1, 2)...)
		s.Page(PageURL(base, 4)).Add(itemLinkSelector.CSS, firmLinks(3, 5)...)

		got, err := InitPaginationDiscoverer(s, noPause(), testConfig(), logging.Discard()).Discover(context.Background(), target)
		require.NoError(t, err)
		assert.Len(t, got, 5)
		// 5,6,7 页不存在,连续三次空页后停止
		assert.Equal(t, 1, s.NavigationCount(PageURL(base, 7)))
		assert.Zero(t, s.NavigationCount(PageURL(base, 8)))
	})

	t.Run("stops at cap", func(t *testing.T) {
		t.Parallel()
		capped := target
		capped.ItemCap = 4
		s := chrometest.New()
		s.Page(PageURL(base, 1)).Add(itemLinkSelector.CSS, firmLinks(1, 3)...)
		s.Page(PageURL(base, 2)).Add(itemLinkSelector.CSS, firmLinks(4, 6)...)

		got, err := InitPaginationDiscoverer(s, noPause(), testConfig(), logging.Discard()).Discover(context.Background(), capped)
		require.NoError(t, err)
		assert.Len(t, got, 4)
		assert.Zero(t, s.NavigationCount(PageURL(base, 3)))
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s := chrometest.New()
		_, err := InitPaginationDiscoverer(s, noPause(), testConfig(), logging.Discard()).Discover(ctx, target)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPageURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://2gis.test/moscow/search/x", PageURL("https://2gis.test/moscow/search/x", 1))
	assert.Equal(t, "https://2gis.test/moscow/search/x/page/3", PageURL("https://2gis.test/moscow/search/x/", 3))
}

type fakeCatalog struct {
	pages  map[int][]entity.CatalogItem
	total  int
	errs   map[int]error
	called []int
}

func (fc *fakeCatalog) Search(ctx context.Context, query, regionID string, page int) (*entity.CatalogResponse, error) {
	fc.called = append(fc.called, page)
	if err := fc.errs[page]; err != nil {
		delete(fc.errs, page)
		return nil, err
	}
	resp := &entity.CatalogResponse{}
	resp.Result.Total = fc.total
	resp.Result.Items = fc.pages[page]
	return resp, nil
}

func (fc *fakeCatalog) PageSize() int { return 2 }

func branches(ids ...string) []entity.CatalogItem {
	out := make([]entity.CatalogItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, entity.CatalogItem{ID: id + "_hash", Type: "branch"})
	}
	return out
}

func TestAPIDiscoverer(t *testing.T) {
	t.Parallel()

	target := param.DiscoveryTarget{Region: "moscow", RegionID: "32", QueryTerm: "кафе", ItemCap: 10}

	t.Run("stops at total hint", func(t *testing.T) {
		t.Parallel()
		fc := &fakeCatalog{total: 3, pages: map[int][]entity.CatalogItem{
			1: branches("1", "2"),
			2: append(branches("3"), entity.CatalogItem{ID: "9", Type: "building"}),
			3: branches("4"),
		}}
		got, err := InitAPIDiscoverer(fc, noPause(), site, 0, logging.Discard()).Discover(context.Background(), target)
		require.NoError(t, err)
		assert.Equal(t, []string{site + "/moscow/firm/1", site + "/moscow/firm/2", site + "/moscow/firm/3"}, urls(got))
		assert.Equal(t, []int{1, 2}, fc.called)
	})

	t.Run("two empty pages end paging", func(t *testing.T) {
		t.Parallel()
		fc := &fakeCatalog{pages: map[int][]entity.CatalogItem{1: branches("1", "2")}}
		got, err := InitAPIDiscoverer(fc, noPause(), site, 0, logging.Discard()).Discover(context.Background(), target)
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Equal(t, []int{1, 2, 3}, fc.called)
	})

	t.Run("short page ends paging without total", func(t *testing.T) {
		t.Parallel()
		fc := &fakeCatalog{pages: map[int][]entity.CatalogItem{
			1: branches("1", "2"),
			2: branches("3"),
			3: branches("4", "5"),
		}}
		got, err := InitAPIDiscoverer(fc, noPause(), site, 0, logging.Discard()).Discover(context.Background(), target)
		require.NoError(t, err)
		assert.Equal(t, []string{site + "/moscow/firm/1", site + "/moscow/firm/2", site + "/moscow/firm/3"}, urls(got))
		assert.Equal(t, []int{1, 2}, fc.called)
	})

	t.Run("rate limit is retried", func(t *testing.T) {
		t.Parallel()
		fc := &fakeCatalog{total: 2,
			pages: map[int][]entity.CatalogItem{1: branches("1", "2")},
			errs:  map[int]error{1: &chrome.RateLimitError{URL: "api", Reason: "429"}},
		}
		got, err := InitAPIDiscoverer(fc, noPause(), site, 0, logging.Discard()).Discover(context.Background(), target)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("hard error returned", func(t *testing.T) {
		t.Parallel()
		fc := &fakeCatalog{errs: map[int]error{1: errors.New("403 forbidden")}}
		got, err := InitAPIDiscoverer(fc, noPause(), site, 0, logging.Discard()).Discover(context.Background(), target)
		assert.Error(t, err)
		assert.Empty(t, got)
	})

	t.Run("url targets are skipped", func(t *testing.T) {
		t.Parallel()
		fc := &fakeCatalog{}
		got, err := InitAPIDiscoverer(fc, noPause(), site, 0, logging.Discard()).Discover(context.Background(),
			param.DiscoveryTarget{Region: "moscow", QueryTerm: site + "/moscow/rubricId/1", ItemCap: 5})
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Empty(t, fc.called)
	})
}

func TestInitDiscovererFallsBackToBrowser(t *testing.T) {
	t.Parallel()

	target := param.DiscoveryTarget{Region: "moscow", QueryTerm: "кафе", ItemCap: 5}
	s := chrometest.New()
	s.Page(PageURL(SearchURL(site, target), 1)).Add(itemLinkSelector.CSS, firmLinks(1, 2)...)

	cfg := &config.Config{
		Crawl:     config.CrawlConfig{Strategy: param.StrategyPagination, UseAPI: true},
		Discovery: testConfig(),
	}
	fc := &fakeCatalog{errs: map[int]error{1: errors.New("access denied")}}
	d, err := InitDiscoverer(cfg, s, noPause(), fc, logging.Discard())
	require.NoError(t, err)

	got, err := d.Discover(context.Background(), target)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, []int{1}, fc.called)
}

func TestInitDiscovererRejectsAPIAsBrowserStrategy(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Crawl: config.CrawlConfig{Strategy: param.StrategyAPI}}
	_, err := InitDiscoverer(cfg, chrometest.New(), noPause(), nil, logging.Discard())
	assert.Error(t, err)
}

func TestExpander(t *testing.T) {
	t.Parallel()

	target := param.DiscoveryTarget{Region: "moscow", QueryTerm: "стоматология", ItemCap: 5}

	t.Run("collects and filters suggestions", func(t *testing.T) {
		t.Parallel()
		s := chrometest.New()
		p := s.Page(SearchURL(site, target))
		p.Add("a[href*='/rubric/']",
			chrometest.Text("Стоматологические поликлиники"),
			chrometest.Text("Стоматология"),
			chrometest.Text("ЛОР"),
			chrometest.Text("Тверская 12, Москва"),
			chrometest.Text("стоматологические поликлиники"),
		)
		p.Script = func(_ *chrometest.Page, _ *chrometest.Element, fn string, _ []any) (any, error) {
			if fn == labelledLinksJS {
				return []any{"Зуботехнические лаборатории", 42}, nil
			}
			return nil, nil
		}

		got := InitExpander(s, noPause(), testConfig(), logging.Discard()).Expand(context.Background(), target)
		assert.Equal(t, []string{"Стоматологические поликлиники", "Зуботехнические лаборатории"}, got)
	})

	t.Run("max suggestions", func(t *testing.T) {
		t.Parallel()
		s := chrometest.New()
		s.Page(SearchURL(site, target)).Add("a[href*='/rubric/']",
			chrometest.Text("Детская стоматология"), chrometest.Text("Ортодонтия"), chrometest.Text("Имплантация"))
		cfg := testConfig()
		cfg.MaxSuggestions = 2

		got := InitExpander(s, noPause(), cfg, logging.Discard()).Expand(context.Background(), target)
		assert.Equal(t, []string{"Детская стоматология", "Ортодонтия"}, got)
	})

	t.Run("failure keeps original query", func(t *testing.T) {
		t.Parallel()
		got := InitExpander(chrometest.New(), noPause(), testConfig(), logging.Discard()).Expand(context.Background(), target)
		assert.Nil(t, got)
	})
}

func TestSearchURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://2gis.test/moscow/search/%D0%BA%D0%B0%D1%84%D0%B5",
		SearchURL(site+"/", param.DiscoveryTarget{Region: "moscow", QueryTerm: "кафе"}))
	assert.Equal(t, "https://2gis.test/spb/firm/1",
		SearchURL(site, param.DiscoveryTarget{Region: "spb", QueryTerm: "https://2gis.test/spb/firm/1"}))
}
