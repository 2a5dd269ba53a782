package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LouYuanbo1/dirscraper/internal/config"
	"github.com/LouYuanbo1/dirscraper/internal/domain/model"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/chrome"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/chrome/chrometest"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/pacer"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/parallel"
	"github.com/LouYuanbo1/dirscraper/internal/infra/logging"
	"github.com/LouYuanbo1/dirscraper/internal/service/discovery"
	"github.com/LouYuanbo1/dirscraper/internal/service/orchestrator"
	"github.com/LouYuanbo1/dirscraper/param"
)

const site = "https://2gis.test"

func testConfig() *config.Config {
	return &config.Config{
		Crawl: config.CrawlConfig{Strategy: param.StrategyPagination},
		Discovery: config.DiscoveryConfig{
			SiteURL:        site,
			NoNewLimit:     2,
			MaxIterations:  10,
			EmptyPageLimit: 1,
		},
		Extract: config.ExtractConfig{MaxAttempts: 2, WebsiteCap: 3},
	}
}

func firmURL(n int) string {
	return fmt.Sprintf("%s/moscow/firm/%d", site, n)
}

// directory 一个假的目录站点: 每个查询词一页搜索结果,每个条目一个详情页
type directory struct {
	results map[string][2]int
	broken  map[int]bool
	noName  map[int]bool
}

func (d directory) build(s *chrometest.Surface) {
	for query, span := range d.results {
		target := param.DiscoveryTarget{Region: "moscow", QueryTerm: query}
		p := s.Page(discovery.SearchURL(site, target))
		for n := span[0]; n <= span[1]; n++ {
			p.Add("a[href*='/firm/']", chrometest.Link(fmt.Sprintf("/moscow/firm/%d?from=search", n), ""))
			detail := s.Page(firmURL(n))
			if !d.noName[n] {
				detail.Add("h1", chrometest.Text(fmt.Sprintf("Фирма %d", n)))
			} else {
				detail.Add("h1", chrometest.Text(" "))
			}
			if d.broken[n] {
				s.NavErrs[firmURL(n)] = []error{
					&chrome.NavigationError{URL: firmURL(n), Err: errors.New("timeout")},
					&chrome.NavigationError{URL: firmURL(n), Err: errors.New("timeout")},
				}
			}
		}
	}
}

type fakeFactory struct {
	dir directory
	// failAfter 之后的 Open 全部失败,0 表示不失败
	failAfter int

	mu    sync.Mutex
	opens int
}

func (f *fakeFactory) Open(ctx context.Context, workerID int) (*parallel.Session, error) {
	f.mu.Lock()
	f.opens++
	n := f.opens
	f.mu.Unlock()
	if f.failAfter > 0 && n > f.failAfter {
		return nil, &chrome.SessionInitError{Worker: workerID, Err: errors.New("chrome crashed")}
	}
	s := chrometest.New()
	f.dir.build(s)
	return &parallel.Session{ID: workerID, Surface: s, Pacer: pacer.New(config.PacerConfig{})}, nil
}

type memSink struct {
	name string
	err  error

	mu      sync.Mutex
	jobID   string
	records []model.Record
	calls   int
}

func (m *memSink) Name() string { return m.name }

func (m *memSink) Write(ctx context.Context, jobID string, records []model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.jobID = jobID
	m.records = append([]model.Record(nil), records...)
	return nil
}

func sourceURLs(records []model.Record) map[string]bool {
	out := make(map[string]bool, len(records))
	for _, r := range records {
		out[r.SourceURL] = true
	}
	return out
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{dir: directory{
		results: map[string][2]int{"кафе": {1, 12}, "аптека": {8, 20}},
		broken:  map[int]bool{5: true},
		noName:  map[int]bool{9: true},
	}}
	primary := &memSink{name: "xlsx"}
	secondary := &memSink{name: "es", err: errors.New("connection refused")}

	var mu sync.Mutex
	last := map[orchestrator.State]int{}
	monotonic := true
	progress := func(phase orchestrator.State, collected, total int) {
		mu.Lock()
		defer mu.Unlock()
		if collected < last[phase] {
			monotonic = false
		}
		last[phase] = collected
	}

	o := orchestrator.InitOrchestrator(testConfig(), factory, logging.Discard(),
		orchestrator.WithSinks(primary, secondary), orchestrator.WithProgress(progress))
	job := param.NewCrawlJob("moscow", "32", "Москва", "Россия", []string{"кафе", "аптека"}, 20, 3, "out.xlsx")

	res, err := o.Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StateDone, o.State())

	assert.Equal(t, 20, res.Discovered)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Records, 18)
	urls := sourceURLs(res.Records)
	assert.Len(t, urls, 18)
	assert.False(t, urls[firmURL(5)])
	assert.False(t, urls[firmURL(9)])
	for _, r := range res.Records {
		assert.NotEmpty(t, r.Name)
		assert.Equal(t, "Москва", r.City)
		assert.Equal(t, "Россия", r.Country)
	}

	assert.Equal(t, res.JobID, primary.jobID)
	assert.Len(t, primary.records, 18)
	assert.Equal(t, 1, secondary.calls)
	assert.True(t, monotonic)
	assert.Equal(t, 18, last[orchestrator.StateExtracting])
	assert.Equal(t, 20, last[orchestrator.StateDiscovering])
}

func TestRunRespectsCap(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{dir: directory{results: map[string][2]int{"кафе": {1, 30}}}}
	o := orchestrator.InitOrchestrator(testConfig(), factory, logging.Discard())
	job := param.NewCrawlJob("moscow", "", "Москва", "Россия", []string{"кафе"}, 20, 2, "")

	res, err := o.Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 20, res.Discovered)
	assert.Len(t, res.Records, 20)
}

func TestRunNoLinks(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{dir: directory{results: map[string][2]int{}}}
	primary := &memSink{name: "xlsx"}
	o := orchestrator.InitOrchestrator(testConfig(), factory, logging.Discard(), orchestrator.WithSinks(primary))

	_, err := o.Run(context.Background(), param.NewCrawlJob("moscow", "", "", "", []string{"кафе"}, 5, 1, ""))
	require.ErrorIs(t, err, orchestrator.ErrNoData)
	assert.Zero(t, primary.calls)
}

func TestRunAllWorkersLost(t *testing.T) {
	t.Parallel()

	// 只有发现阶段的会话能启动
	factory := &fakeFactory{dir: directory{results: map[string][2]int{"кафе": {1, 6}}}, failAfter: 1}
	o := orchestrator.InitOrchestrator(testConfig(), factory, logging.Discard())

	res, err := o.Run(context.Background(), param.NewCrawlJob("moscow", "", "", "", []string{"кафе"}, 10, 2, ""))
	require.ErrorIs(t, err, orchestrator.ErrNoData)
	assert.ErrorIs(t, err, parallel.ErrAllSessionsLost)
	assert.Equal(t, 6, res.Discovered)
	assert.Empty(t, res.Records)
}

func TestRunSomeWorkersLost(t *testing.T) {
	t.Parallel()

	// 发现会话和第一个 worker 能启动,其余 worker 失败
	factory := &fakeFactory{dir: directory{results: map[string][2]int{"кафе": {1, 15}}}, failAfter: 2}
	o := orchestrator.InitOrchestrator(testConfig(), factory, logging.Discard())

	res, err := o.Run(context.Background(), param.NewCrawlJob("moscow", "", "", "", []string{"кафе"}, 15, 3, ""))
	require.NoError(t, err)
	assert.Len(t, res.Records, 15)
}

func TestRunDiscoverySessionLost(t *testing.T) {
	t.Parallel()

	o := orchestrator.InitOrchestrator(testConfig(), failingFactory{}, logging.Discard())

	_, err := o.Run(context.Background(), param.NewCrawlJob("moscow", "", "", "", []string{"кафе"}, 5, 1, ""))
	require.ErrorIs(t, err, orchestrator.ErrNoData)
	var initErr *chrome.SessionInitError
	assert.ErrorAs(t, err, &initErr)
}

type failingFactory struct{}

func (failingFactory) Open(ctx context.Context, workerID int) (*parallel.Session, error) {
	return nil, &chrome.SessionInitError{Worker: workerID, Err: errors.New("no chrome binary")}
}

func TestRunCancelledKeepsPartialResults(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 两个 worker 只有一个能启动,它处理完第一个块后取消
	factory := &fakeFactory{dir: directory{results: map[string][2]int{"кафе": {1, 10}}}, failAfter: 2}
	primary := &memSink{name: "xlsx"}
	progress := func(phase orchestrator.State, collected, total int) {
		if phase == orchestrator.StateExtracting {
			cancel()
		}
	}
	o := orchestrator.InitOrchestrator(testConfig(), factory, logging.Discard(),
		orchestrator.WithSinks(primary), orchestrator.WithProgress(progress))

	res, err := o.Run(ctx, param.NewCrawlJob("moscow", "", "", "", []string{"кафе"}, 10, 2, ""))
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, res.Records, 5)
	assert.Len(t, primary.records, 5)
}

func TestRunPrimarySinkFailure(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{dir: directory{results: map[string][2]int{"кафе": {1, 3}}}}
	primary := &memSink{name: "xlsx", err: errors.New("disk full")}
	o := orchestrator.InitOrchestrator(testConfig(), factory, logging.Discard(), orchestrator.WithSinks(primary))

	_, err := o.Run(context.Background(), param.NewCrawlJob("moscow", "", "", "", []string{"кафе"}, 5, 1, ""))
	assert.ErrorContains(t, err, "disk full")
}

func TestRunExpandsQueries(t *testing.T) {
	t.Parallel()

	dir := directory{results: map[string][2]int{"Кофейни": {1, 3}, "Кондитерские": {3, 5}}}
	factory := &fakeFactory{dir: dir}
	cfg := testConfig()
	cfg.Crawl.Expand = true

	o := orchestrator.InitOrchestrator(cfg, expandingFactory{fakeFactory: factory}, logging.Discard())
	res, err := o.Run(context.Background(), param.NewCrawlJob("moscow", "", "", "", []string{"кафе"}, 10, 1, ""))
	require.NoError(t, err)
	assert.Equal(t, 5, res.Discovered)
}

// expandingFactory 在搜索页 "кафе" 上放两个分类建议
type expandingFactory struct {
	*fakeFactory
}

func (ef expandingFactory) Open(ctx context.Context, workerID int) (*parallel.Session, error) {
	sess, err := ef.fakeFactory.Open(ctx, workerID)
	if err != nil {
		return nil, err
	}
	s := sess.Surface.(*chrometest.Surface)
	s.Page(discovery.SearchURL(site, param.DiscoveryTarget{Region: "moscow", QueryTerm: "кафе"})).
		Add("a[href*='/rubric/']", chrometest.Text("Кофейни"), chrometest.Text("Кондитерские"))
	return sess, nil
}

func TestRunRejectsInvalidJob(t *testing.T) {
	t.Parallel()

	o := orchestrator.InitOrchestrator(testConfig(), &fakeFactory{}, logging.Discard())
	_, err := o.Run(context.Background(), &param.CrawlJob{})
	assert.Error(t, err)
}

func TestChunk(t *testing.T) {
	t.Parallel()

	urls := make([]string, 23)
	for i := range urls {
		urls[i] = firmURL(i)
	}
	tests := []struct {
		name    string
		workers int
		sizes   []int
	}{
		{name: "min chunk size five", workers: 10, sizes: []int{5, 5, 5, 5, 3}},
		{name: "total over workers", workers: 2, sizes: []int{11, 11, 1}},
		{name: "single worker", workers: 1, sizes: []int{23}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			chunks := orchestrator.Chunk(urls, tt.workers)
			var sizes []int
			var flat []string
			for _, c := range chunks {
				sizes = append(sizes, len(c))
				flat = append(flat, c...)
			}
			assert.Equal(t, tt.sizes, sizes)
			assert.Equal(t, urls, flat)
		})
	}
	assert.Nil(t, orchestrator.Chunk(nil, 3))
}

func TestMerge(t *testing.T) {
	t.Parallel()

	in := []model.Record{
		{Name: "A", SourceURL: firmURL(1)},
		{Name: "", SourceURL: firmURL(2)},
		{Name: "A again", SourceURL: firmURL(1)},
		{Name: "B", SourceURL: firmURL(3)},
		{Name: "  ", SourceURL: firmURL(4)},
	}
	once := orchestrator.Merge(in)
	assert.Equal(t, []model.Record{{Name: "A", SourceURL: firmURL(1)}, {Name: "B", SourceURL: firmURL(3)}}, once)
	assert.Equal(t, once, orchestrator.Merge(once))
}
