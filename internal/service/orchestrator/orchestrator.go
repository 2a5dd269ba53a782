package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/LouYuanbo1/dirscraper/internal/config"
	"github.com/LouYuanbo1/dirscraper/internal/domain/model"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/chrome"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/collector"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/pacer"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/parallel"
	"github.com/LouYuanbo1/dirscraper/internal/service/discovery"
	"github.com/LouYuanbo1/dirscraper/internal/service/extract"
	"github.com/LouYuanbo1/dirscraper/param"
)

// State 任务状态: Idle → Discovering → Deduplicating → Extracting → Merged → Done
type State string

const (
	StateIdle          State = "idle"
	StateDiscovering   State = "discovering"
	StateDeduplicating State = "deduplicating"
	StateExtracting    State = "extracting"
	StateMerged        State = "merged"
	StateDone          State = "done"
)

// ErrNoData 没有发现任何链接,或者所有 worker 都丢失,没有可写出的记录
var ErrNoData = errors.New("no data collected")

// 发现阶段独占的会话编号,抽取阶段开始前关闭
const discoveryWorkerID = 0

// ProgressFunc 每个阶段单调递增的已收集数量
type ProgressFunc func(phase State, collected, total int)

// Sink 接收最终的记录列表
type Sink interface {
	Name() string
	Write(ctx context.Context, jobID string, records []model.Record) error
}

type Result struct {
	JobID string
	// Discovered 去重后的链接数
	Discovered int
	// Failed 重试耗尽后放弃的页面数
	Failed  int
	Records []model.Record
}

type Orchestrator interface {
	Run(ctx context.Context, job *param.CrawlJob) (*Result, error)
	State() State
}

type Option func(o *orchestrator)

func WithProgress(fn ProgressFunc) Option {
	return func(o *orchestrator) {
		if fn != nil {
			o.progress = fn
		}
	}
}

// WithCatalog 启用数据接口发现
func WithCatalog(client collector.CatalogClient) Option {
	return func(o *orchestrator) {
		o.catalog = client
	}
}

// WithSinks primary 写失败时 Run 返回错误,secondary 失败只记录日志
func WithSinks(primary Sink, secondary ...Sink) Option {
	return func(o *orchestrator) {
		o.primary = primary
		o.secondary = secondary
	}
}

type orchestrator struct {
	cfg       *config.Config
	factory   parallel.SessionFactory
	catalog   collector.CatalogClient
	primary   Sink
	secondary []Sink
	progress  ProgressFunc
	logger    logrus.FieldLogger

	mu    sync.Mutex
	state State
}

func InitOrchestrator(cfg *config.Config, factory parallel.SessionFactory, logger logrus.FieldLogger, opts ...Option) Orchestrator {
	o := &orchestrator{
		cfg:     cfg,
		factory: factory,
		logger:  logger,
		state:   StateIdle,
	}
	o.progress = o.logProgress
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.logger.WithField("state", s).Debug("job state changed")
}

func (o *orchestrator) logProgress(phase State, collected, total int) {
	fields := logrus.Fields{"phase": phase, "collected": collected}
	if total > 0 {
		fields["total"] = total
	}
	o.logger.WithFields(fields).Info("progress")
}

func (o *orchestrator) Run(ctx context.Context, job *param.CrawlJob) (*Result, error) {
	if !job.IsValid() {
		return nil, fmt.Errorf("invalid crawl job")
	}
	res := &Result{JobID: uuid.NewString()}
	log := o.logger.WithField("job_id", res.JobID)
	defer o.setState(StateDone)

	o.setState(StateDiscovering)
	handles, err := o.discover(ctx, job, log)
	if err != nil {
		return res, err
	}

	o.setState(StateDeduplicating)
	urls := make([]string, 0, len(handles))
	for _, h := range handles {
		urls = append(urls, h.CanonicalURL)
	}
	res.Discovered = len(urls)
	log.WithField("unique_links", len(urls)).Info("discovery phase finished")
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if len(urls) == 0 {
		return res, ErrNoData
	}

	o.setState(StateExtracting)
	records, failed, runErr := o.extract(ctx, job, urls, log)
	res.Failed = failed

	o.setState(StateMerged)
	res.Records = Merge(records)
	log.WithFields(logrus.Fields{"records": len(res.Records), "failed": failed}).Info("extraction phase finished")

	if len(res.Records) == 0 {
		if runErr != nil {
			return res, fmt.Errorf("%w: %w", ErrNoData, runErr)
		}
		return res, ErrNoData
	}
	// 取消后仍然写出已合并的部分结果
	if err := o.write(context.WithoutCancel(ctx), res, log); err != nil {
		return res, err
	}
	return res, runErr
}

// discover 在一个会话上按顺序处理所有查询词,跨查询词去重
func (o *orchestrator) discover(ctx context.Context, job *param.CrawlJob, log logrus.FieldLogger) ([]model.ItemHandle, error) {
	d, expander, closeSession, err := o.discoverer(ctx, log)
	if err != nil {
		return nil, err
	}
	defer closeSession()

	seen := make(map[string]struct{})
	var all []model.ItemHandle
	for _, target := range o.expandTargets(ctx, expander, job.Targets) {
		if ctx.Err() != nil {
			break
		}
		handles, err := d.Discover(ctx, target)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).WithField("query", target.QueryTerm).Warn("discovery failed, keeping collected links")
		}
		for _, h := range handles {
			if _, ok := seen[h.CanonicalURL]; ok {
				continue
			}
			seen[h.CanonicalURL] = struct{}{}
			all = append(all, h)
		}
		o.progress(StateDiscovering, len(all), 0)
	}
	return all, nil
}

// discoverer 打开发现阶段的会话;会话启动失败但数据接口可用时只使用接口
func (o *orchestrator) discoverer(ctx context.Context, log logrus.FieldLogger) (discovery.Discoverer, discovery.Expander, func(), error) {
	sess, err := o.factory.Open(ctx, discoveryWorkerID)
	if err != nil {
		if o.cfg.Crawl.UseAPI && o.catalog != nil {
			log.WithError(err).Warn("discovery session lost, using catalog api only")
			p := pacer.New(o.cfg.Pacer)
			return discovery.InitAPIDiscoverer(o.catalog, p, o.cfg.Discovery.SiteURL, o.cfg.Catalog.MaxPages, log), nil, func() {}, nil
		}
		return nil, nil, nil, fmt.Errorf("%w: %w", ErrNoData, err)
	}
	closeSession := func() {
		if err := sess.Close(); err != nil {
			log.WithError(err).Debug("close discovery session")
		}
	}
	d, err := discovery.InitDiscoverer(o.cfg, sess.Surface, sess.Pacer, o.catalog, log)
	if err != nil {
		closeSession()
		return nil, nil, nil, err
	}
	var expander discovery.Expander
	if o.cfg.Crawl.Expand {
		expander = discovery.InitExpander(sess.Surface, sess.Pacer, o.cfg.Discovery, log)
	}
	return d, expander, closeSession, nil
}

// expandTargets 有分类建议时用建议替换原查询词
func (o *orchestrator) expandTargets(ctx context.Context, expander discovery.Expander, targets []param.DiscoveryTarget) []param.DiscoveryTarget {
	if expander == nil {
		return targets
	}
	var out []param.DiscoveryTarget
	for _, t := range targets {
		suggestions := expander.Expand(ctx, t)
		if len(suggestions) == 0 {
			out = append(out, t)
			continue
		}
		for _, s := range suggestions {
			expanded := t
			expanded.QueryTerm = s
			out = append(out, expanded)
		}
	}
	return out
}

type chunkResult struct {
	records []model.Record
	failed  int
}

func (o *orchestrator) extract(ctx context.Context, job *param.CrawlJob, urls []string, log logrus.FieldLogger) ([]model.Record, int, error) {
	chunks := Chunk(urls, job.WorkerCount)
	locality := extract.Locality{City: job.City, Country: job.Country}
	log.WithFields(logrus.Fields{"workers": job.WorkerCount, "chunks": len(chunks)}).Info("starting extraction")

	var (
		mu        sync.Mutex
		collected int
	)
	handle := func(ctx context.Context, sess *parallel.Session, chunk []string) chunkResult {
		wlog := log.WithField("worker_id", sess.ID)
		ex := extract.InitExtractor(sess.Surface, sess.Pacer, o.cfg.Extract, o.cfg.Discovery.RateLimitMarker, locality, wlog)
		var cr chunkResult
		for _, u := range chunk {
			if ctx.Err() != nil {
				break
			}
			rec, err := ex.Extract(ctx, u)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					cr.failed++
					wlog.WithError(err).Warn("page dropped")
				}
				continue
			}
			if !rec.Valid() {
				cr.failed++
				wlog.WithField("url", u).Warn("record without name dropped")
				continue
			}
			cr.records = append(cr.records, *rec)
		}
		mu.Lock()
		collected += len(cr.records)
		o.progress(StateExtracting, collected, len(urls))
		mu.Unlock()
		return cr
	}

	results, err := parallel.Run(ctx, o.factory, job.WorkerCount, chunks, log, handle)
	var records []model.Record
	failed := 0
	for _, cr := range results {
		records = append(records, cr.records...)
		failed += cr.failed
	}
	if err != nil {
		var initErr *chrome.SessionInitError
		if errors.As(err, &initErr) {
			log.WithError(err).Error("all extraction sessions failed")
		}
	}
	return records, failed, err
}

func (o *orchestrator) write(ctx context.Context, res *Result, log logrus.FieldLogger) error {
	if o.primary != nil {
		if err := o.primary.Write(ctx, res.JobID, res.Records); err != nil {
			return fmt.Errorf("write %s: %w", o.primary.Name(), err)
		}
		log.WithField("sink", o.primary.Name()).Info("records written")
	}
	for _, s := range o.secondary {
		if err := s.Write(ctx, res.JobID, res.Records); err != nil {
			log.WithError(err).WithField("sink", s.Name()).Warn("secondary sink failed")
			continue
		}
		log.WithField("sink", s.Name()).Info("records written")
	}
	return nil
}

// Chunk 把链接切成连续的块,块大小 max(5, total/workers)
func Chunk(urls []string, workers int) [][]string {
	if len(urls) == 0 {
		return nil
	}
	size := max(5, len(urls)/max(1, workers))
	chunks := make([][]string, 0, (len(urls)+size-1)/size)
	for i := 0; i < len(urls); i += size {
		chunks = append(chunks, urls[i:min(i+size, len(urls))])
	}
	return chunks
}

// Merge 按 SourceURL 去重并丢弃没有名称的记录,对已合并的列表再次调用结果不变
func Merge(records []model.Record) []model.Record {
	out := make([]model.Record, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for i := range records {
		rec := records[i]
		if !rec.Valid() {
			continue
		}
		if _, ok := seen[rec.SourceURL]; ok {
			continue
		}
		seen[rec.SourceURL] = struct{}{}
		out = append(out, rec)
	}
	return out
}
