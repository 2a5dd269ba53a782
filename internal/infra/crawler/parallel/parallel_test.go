package parallel_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LouYuanbo1/dirscraper/internal/config"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/chrome"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/chrome/chrometest"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/pacer"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/parallel"
	"github.com/LouYuanbo1/dirscraper/internal/infra/logging"
)

type fakeFactory struct {
	mu      sync.Mutex
	fail    map[int]bool
	opened  []*chrometest.Surface
	openErr error
}

func (f *fakeFactory) Open(ctx context.Context, workerID int) (*parallel.Session, error) {
	if f.fail[workerID] {
		return nil, errors.New("chrome not found")
	}
	if f.openErr != nil {
		return nil, f.openErr
	}
	s := chrometest.New()
	f.mu.Lock()
	f.opened = append(f.opened, s)
	f.mu.Unlock()
	return &parallel.Session{ID: workerID, Surface: s, Pacer: pacer.New(config.PacerConfig{})}, nil
}

func double(ctx context.Context, s *parallel.Session, n int) int {
	return n * 2
}

func TestRunProcessesEveryTask(t *testing.T) {
	t.Parallel()

	f := &fakeFactory{}
	got, err := parallel.Run(context.Background(), f, 3, []int{1, 2, 3, 4, 5}, logging.Discard(), double)
	require.NoError(t, err)
	sort.Ints(got)
	assert.Equal(t, []int{2, 4, 6, 8, 10}, got)

	require.Len(t, f.opened, 3)
	for _, s := range f.opened {
		assert.True(t, s.Closed)
	}
}

func TestRunWorkersCappedByTasks(t *testing.T) {
	t.Parallel()

	f := &fakeFactory{}
	_, err := parallel.Run(context.Background(), f, 8, []int{1, 2}, logging.Discard(), double)
	require.NoError(t, err)
	assert.Len(t, f.opened, 2)
}

func TestRunSurvivesLostSession(t *testing.T) {
	t.Parallel()

	f := &fakeFactory{fail: map[int]bool{0: true}}
	got, err := parallel.Run(context.Background(), f, 2, []int{1, 2, 3}, logging.Discard(), double)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestRunReportsReducedParallelism(t *testing.T) {
	t.Parallel()

	logger, hook := logtest.NewNullLogger()
	f := &fakeFactory{fail: map[int]bool{1: true, 2: true}}
	got, err := parallel.Run(context.Background(), f, 3, []int{1, 2, 3, 4}, logger, double)
	require.NoError(t, err)
	assert.Len(t, got, 4)

	var summary *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "run finished with reduced parallelism" {
			summary = e
		}
	}
	require.NotNil(t, summary)
	assert.Equal(t, logrus.WarnLevel, summary.Level)
	assert.Equal(t, 2, summary.Data["lost"])
	assert.Equal(t, 3, summary.Data["workers"])
	var initErr *chrome.SessionInitError
	assert.ErrorAs(t, summary.Data[logrus.ErrorKey].(error), &initErr)
}

func TestRunAllSessionsLost(t *testing.T) {
	t.Parallel()

	f := &fakeFactory{openErr: &chrome.SessionInitError{Worker: 0, Err: errors.New("boom")}}
	got, err := parallel.Run(context.Background(), f, 2, []int{1, 2, 3}, logging.Discard(), double)
	require.ErrorIs(t, err, parallel.ErrAllSessionsLost)
	var initErr *chrome.SessionInitError
	assert.ErrorAs(t, err, &initErr)
	assert.Empty(t, got)
}

func TestRunCancelledKeepsCompleted(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &fakeFactory{}
	handle := func(ctx context.Context, s *parallel.Session, n int) int {
		if n == 1 {
			cancel()
		}
		return n
	}
	got, err := parallel.Run(ctx, f, 1, []int{1, 2, 3, 4}, logging.Discard(), handle)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int{1}, got)
}

func TestRunNoTasks(t *testing.T) {
	t.Parallel()

	f := &fakeFactory{}
	got, err := parallel.Run(context.Background(), f, 3, []int(nil), logging.Discard(), double)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, f.opened)
}

func TestSessionFactoryStaticEngine(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Crawl: config.CrawlConfig{Engine: config.EngineStatic}}
	factory, err := parallel.InitSessionFactory(cfg, logging.Discard())
	require.NoError(t, err)

	sess, err := factory.Open(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, 4, sess.ID)
	assert.NotEmpty(t, sess.Profile.UserAgent)
	assert.Equal(t, "ru-RU", sess.Profile.Locale)
	require.NoError(t, sess.Close())
}

func TestSessionFactoryRejectsUnknownEngine(t *testing.T) {
	t.Parallel()

	_, err := parallel.InitSessionFactory(&config.Config{Crawl: config.CrawlConfig{Engine: "phantom"}}, logging.Discard())
	assert.Error(t, err)
}

func TestSessionFactoryCancelledContext(t *testing.T) {
	t.Parallel()

	factory, err := parallel.InitSessionFactory(&config.Config{Crawl: config.CrawlConfig{Engine: config.EngineStatic}}, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = factory.Open(ctx, 0)
	var initErr *chrome.SessionInitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, 0, initErr.Worker)
}
