package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/LouYuanbo1/dirscraper/internal/config"
	"github.com/LouYuanbo1/dirscraper/internal/domain/model"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/collector"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/parallel"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/profile"
	"github.com/LouYuanbo1/dirscraper/internal/infra/embedding"
	"github.com/LouYuanbo1/dirscraper/internal/infra/export"
	"github.com/LouYuanbo1/dirscraper/internal/infra/logging"
	"github.com/LouYuanbo1/dirscraper/internal/infra/persistence/es"
	"github.com/LouYuanbo1/dirscraper/internal/infra/persistence/sqlite"
	"github.com/LouYuanbo1/dirscraper/internal/service/orchestrator"
	"github.com/LouYuanbo1/dirscraper/internal/service/region"
	"github.com/LouYuanbo1/dirscraper/param"
)

type crawlOptions struct {
	city     string
	queries  []string
	cap      int
	workers  int
	output   string
	country  string
	strategy string
	engine   string
	api      bool
	expand   bool
}

func NewCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Discover and extract companies for the given search terms",
		Example: `  dirscraper crawl --city moscow --query кафе --query аптека --cap 30
  dirscraper crawl --city spb --query all --workers 4 --output spb.xlsx
  dirscraper crawl --city kazan --query "https://2gis.ru/kazan/rubricId/164" --engine chromedp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runCrawl(cmd, cfg, opts)
		},
	}

	opts.bindFlags(cmd)
	_ = cmd.MarkFlagRequired("city")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func (o *crawlOptions) bindFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&o.city, "city", "c", "", "city name or region slug, e.g. moscow or Казань")
	f.StringSliceVarP(&o.queries, "query", "q", nil, `search terms or listing URLs, comma separated or repeated; "all" expands to popular niches`)
	f.IntVarP(&o.cap, "cap", "n", 0, "maximum companies per search term")
	f.IntVarP(&o.workers, "workers", "w", 0, "parallel browser sessions for extraction")
	f.StringVarP(&o.output, "output", "o", "", "spreadsheet path (.xlsx, or .csv)")
	f.StringVar(&o.country, "country", "", "country written to every record")
	f.StringVar(&o.strategy, "strategy", "", "link discovery strategy: scroll or pagination")
	f.StringVar(&o.engine, "engine", "", "render engine: rod, chromedp or static")
	f.BoolVar(&o.api, "api", false, "discover through the catalog data API, falling back to the browser")
	f.BoolVar(&o.expand, "expand", false, "replace each term with the directory's rubric suggestions")
}

// apply 只覆盖命令行显式给出的项
func (o *crawlOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("cap") {
		cfg.Crawl.PerTargetCap = o.cap
	}
	if f.Changed("workers") {
		cfg.Crawl.Workers = o.workers
	}
	if f.Changed("output") {
		cfg.Crawl.Output = o.output
	}
	if f.Changed("country") {
		cfg.Crawl.Country = o.country
	}
	if f.Changed("strategy") {
		cfg.Crawl.Strategy = param.Strategy(strings.ToLower(o.strategy))
	}
	if f.Changed("engine") {
		cfg.Crawl.Engine = strings.ToLower(o.engine)
	}
	if f.Changed("api") {
		cfg.Crawl.UseAPI = o.api
	}
	if f.Changed("expand") {
		cfg.Crawl.Expand = o.expand
	}
}

// buildJob 解析城市;未知城市回退到默认区域并把城市名并入查询词
func buildJob(cfg *config.Config, city string, rawQueries []string) (*param.CrawlJob, error) {
	queries := param.ParseQueries(rawQueries)
	if len(queries) == 0 {
		return nil, errors.New("no search terms given")
	}
	r, ok := region.Resolve(city)
	display := r.Name
	if !ok {
		queries = region.QualifyQueries(queries, city)
		display = region.DisplayCity(city)
	}
	job := param.NewCrawlJob(r.Slug, r.ID, display, cfg.Crawl.Country, queries, cfg.Crawl.PerTargetCap, cfg.Crawl.Workers, cfg.Crawl.Output)
	if !job.IsValid() {
		return nil, errors.New("invalid crawl job")
	}
	return job, nil
}

func runCrawl(cmd *cobra.Command, cfg *config.Config, opts *crawlOptions) error {
	logger := logging.New(cfg.Log)
	logger.SetOutput(cmd.ErrOrStderr())

	job, err := buildJob(cfg, opts.city, opts.queries)
	if err != nil {
		return err
	}
	if _, ok := region.Resolve(opts.city); !ok {
		logger.WithField("city", opts.city).Warn("unknown city, searching the default region with the city in each query")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	factory, err := parallel.InitSessionFactory(cfg, logger)
	if err != nil {
		return err
	}

	spreadsheet := export.InitExporter(cfg.Crawl.Output, logger)
	secondary, closeSinks, err := openSecondarySinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	orchOpts := []orchestrator.Option{orchestrator.WithSinks(spreadsheet, secondary...)}
	if cfg.Crawl.UseAPI {
		orchOpts = append(orchOpts, orchestrator.WithCatalog(collector.InitCatalogClient(cfg, profile.New(cfg.Session))))
	}
	orch := orchestrator.InitOrchestrator(cfg, factory, logger, orchOpts...)

	logger.WithFields(logrus.Fields{
		"region":   job.Targets[0].Region,
		"city":     job.City,
		"terms":    len(job.Targets),
		"workers":  job.WorkerCount,
		"engine":   cfg.Crawl.Engine,
		"strategy": cfg.Crawl.Strategy,
	}).Info("crawl started")

	res, err := orch.Run(ctx, job)
	if res != nil {
		summary := logger.WithFields(logrus.Fields{
			"job_id":     res.JobID,
			"discovered": res.Discovered,
			"records":    len(res.Records),
			"failed":     res.Failed,
		})
		if path := spreadsheet.Written(); path != "" {
			summary = summary.WithField("output", path)
			fmt.Fprintf(cmd.OutOrStdout(), "%d companies saved to %s\n", len(res.Records), path)
		}
		summary.Info("crawl finished")
	}
	if errors.Is(err, context.Canceled) && spreadsheet.Written() != "" {
		logger.Warn("crawl interrupted, partial results were saved")
		return nil
	}
	return err
}

// openSecondarySinks 辅助存储初始化失败时直接报错,避免任务跑完才发现无法写入
func openSecondarySinks(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) ([]orchestrator.Sink, func(), error) {
	var (
		sinks   []orchestrator.Sink
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.Sqlite.Enabled {
		store, err := sqlite.Open(cfg.Sqlite.Path)
		if err != nil {
			return nil, closeAll, fmt.Errorf("open sqlite store: %w", err)
		}
		sinks = append(sinks, store)
		closers = append(closers, func() {
			if err := store.Close(); err != nil {
				logger.WithError(err).Warn("close sqlite store failed")
			}
		})
	}

	if cfg.Elasticsearch.Enabled {
		client, err := es.InitTypedEsClient[*model.RecordDoc](&cfg.Elasticsearch, logger)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		var embedder embedding.Embedder
		if cfg.Embedder.Enabled {
			embedder, err = embedding.InitEmbedder(ctx, &cfg.Embedder)
			if err != nil {
				closeAll()
				return nil, func() {}, fmt.Errorf("init embedder: %w", err)
			}
		}
		sinks = append(sinks, es.InitRecordSink(client, embedder, logger))
	}
	return sinks, closeAll, nil
}
