package config

import (
	"fmt"

	"github.com/LouYuanbo1/dirscraper/param"
)

// 渲染引擎
const (
	EngineRod      = "rod"
	EngineChromedp = "chromedp"
	EngineStatic   = "static"
)

type Viewport struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`

	// text 或 json
	Format string `json:"format" yaml:"format"`
}

type CrawlConfig struct {
	Engine       string         `json:"engine" yaml:"engine"`
	Strategy     param.Strategy `json:"strategy" yaml:"strategy"`
	UseAPI       bool           `json:"use_api" yaml:"use_api"`
	Expand       bool           `json:"expand" yaml:"expand"`
	Workers      int            `json:"workers" yaml:"workers"`
	PerTargetCap int            `json:"per_target_cap" yaml:"per_target_cap"`
	Country      string         `json:"country" yaml:"country"`
	Output       string         `json:"output" yaml:"output"`
}

// SessionConfig 浏览器会话身份的随机化范围
type SessionConfig struct {
	Locale     string     `json:"locale" yaml:"locale"`
	Viewports  []Viewport `json:"viewports" yaml:"viewports"`
	UserAgents []string   `json:"user_agents" yaml:"user_agents"`
	Proxy      string     `json:"proxy" yaml:"proxy"`

	// NavigationTimeout 单次导航的超时
	NavigationTimeout Duration `json:"navigation_timeout" yaml:"navigation_timeout"`
}

type RodConfig struct {
	UserMode                         bool   `json:"user_mode" yaml:"user_mode"`
	UserDataDir                      string `json:"user_data_dir" yaml:"user_data_dir"`
	Headless                         bool   `json:"headless" yaml:"headless"`
	DisableBlinkFeatures             string `json:"disable_blink_features" yaml:"disable_blink_features"`
	Incognito                        bool   `json:"incognito" yaml:"incognito"`
	DisableDevShmUsage               bool   `json:"disable_dev_shm_usage" yaml:"disable_dev_shm_usage"`
	NoSandbox                        bool   `json:"no_sandbox" yaml:"no_sandbox"`
	Leakless                         bool   `json:"leakless" yaml:"leakless"`
	DisableBackgroundNetworking      bool   `json:"disable_background_networking" yaml:"disable_background_networking"`
	DisableBackgroundTimerThrottling bool   `json:"disable_background_timer_throttling" yaml:"disable_background_timer_throttling"`
	BasicRemoteDebuggingPort         int    `json:"basic_remote_debugging_port" yaml:"basic_remote_debugging_port"`
	Bin                              string `json:"bin" yaml:"bin"`
	Trace                            bool   `json:"trace" yaml:"trace"`
}

type ChromedpConfig struct {
	UserDataDir          string `json:"user_data_dir" yaml:"user_data_dir"`
	Headless             bool   `json:"headless" yaml:"headless"`
	DisableBlinkFeatures string `json:"disable_blink_features" yaml:"disable_blink_features"`
	Incognito            bool   `json:"incognito" yaml:"incognito"`
	DisableDevShmUsage   bool   `json:"disable_dev_shm_usage" yaml:"disable_dev_shm_usage"`
	NoSandbox            bool   `json:"no_sandbox" yaml:"no_sandbox"`
}

type CollyConfig struct {
	UserAgent       string   `json:"user_agent" yaml:"user_agent"`
	IgnoreRobotsTxt bool     `json:"ignore_robots_txt" yaml:"ignore_robots_txt"`
	RequestTimeout  Duration `json:"request_timeout" yaml:"request_timeout"`
}

// CatalogConfig 目录后端数据接口
type CatalogConfig struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Key      string `json:"key" yaml:"key"`
	PageSize int    `json:"page_size" yaml:"page_size"`
	MaxPages int    `json:"max_pages" yaml:"max_pages"`
}

// PacerConfig 请求节奏: 令牌桶 + 随机抖动 + 限流惩罚
type PacerConfig struct {
	RequestsPerSecond float64  `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int      `json:"burst" yaml:"burst"`
	StandardSleep     Duration `json:"standard_sleep" yaml:"standard_sleep"`
	RandomDelay       Duration `json:"random_delay" yaml:"random_delay"`
	Penalty           Duration `json:"penalty" yaml:"penalty"`
}

type DiscoveryConfig struct {
	SiteURL         string   `json:"site_url" yaml:"site_url"`
	NoNewLimit      int      `json:"no_new_limit" yaml:"no_new_limit"`
	MaxIterations   int      `json:"max_iterations" yaml:"max_iterations"`
	EmptyPageLimit  int      `json:"empty_page_limit" yaml:"empty_page_limit"`
	MaxPages        int      `json:"max_pages" yaml:"max_pages"`
	Zoom            float64  `json:"zoom" yaml:"zoom"`
	WaitTimeout     Duration `json:"wait_timeout" yaml:"wait_timeout"`
	MaxSuggestions  int      `json:"max_suggestions" yaml:"max_suggestions"`
	RateLimitMarker []string `json:"rate_limit_marker" yaml:"rate_limit_marker"`
}

type ExtractConfig struct {
	MaxAttempts    int      `json:"max_attempts" yaml:"max_attempts"`
	Backoff        Duration `json:"backoff" yaml:"backoff"`
	HeadingTimeout Duration `json:"heading_timeout" yaml:"heading_timeout"`
	RevealDelay    Duration `json:"reveal_delay" yaml:"reveal_delay"`
	WebsiteCap     int      `json:"website_cap" yaml:"website_cap"`
}

type SqliteConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

type ElasticsearchConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	Address  string `json:"address" yaml:"address"`
	Index    string `json:"index" yaml:"index"`
}

type EmbedderConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Host      string `json:"host" yaml:"host"`
	Port      int    `json:"port" yaml:"port"`
	Model     string `json:"model" yaml:"model"`
	BatchSize int    `json:"batch_size" yaml:"batch_size"`
}

type Config struct {
	Log           LogConfig           `json:"log" yaml:"log"`
	Crawl         CrawlConfig         `json:"crawl" yaml:"crawl"`
	Session       SessionConfig       `json:"session" yaml:"session"`
	Rod           RodConfig           `json:"rod" yaml:"rod"`
	Chromedp      ChromedpConfig      `json:"chromedp" yaml:"chromedp"`
	Colly         CollyConfig         `json:"colly" yaml:"colly"`
	Catalog       CatalogConfig       `json:"catalog" yaml:"catalog"`
	Pacer         PacerConfig         `json:"pacer" yaml:"pacer"`
	Discovery     DiscoveryConfig     `json:"discovery" yaml:"discovery"`
	Extract       ExtractConfig       `json:"extract" yaml:"extract"`
	Sqlite        SqliteConfig        `json:"sqlite" yaml:"sqlite"`
	Elasticsearch ElasticsearchConfig `json:"elasticsearch" yaml:"elasticsearch"`
	Embedder      EmbedderConfig      `json:"embedder" yaml:"embedder"`
}

// Validate 检查引擎、策略以及各项上限
func (c *Config) Validate() error {
	switch c.Crawl.Engine {
	case EngineRod, EngineChromedp, EngineStatic:
	default:
		return fmt.Errorf("unknown engine %q", c.Crawl.Engine)
	}
	if c.Crawl.Strategy == param.StrategyAPI || !c.Crawl.Strategy.IsKnown() {
		return fmt.Errorf("unknown browser strategy %q", c.Crawl.Strategy)
	}
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Crawl.Workers)
	}
	if c.Crawl.PerTargetCap <= 0 {
		return fmt.Errorf("per_target_cap must be positive, got %d", c.Crawl.PerTargetCap)
	}
	if c.Discovery.NoNewLimit <= 0 || c.Discovery.MaxIterations <= 0 || c.Discovery.EmptyPageLimit <= 0 {
		return fmt.Errorf("discovery limits must be positive")
	}
	if c.Extract.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive, got %d", c.Extract.MaxAttempts)
	}
	if c.Extract.WebsiteCap <= 0 {
		return fmt.Errorf("website_cap must be positive, got %d", c.Extract.WebsiteCap)
	}
	if c.Crawl.UseAPI && c.Catalog.Endpoint == "" {
		return fmt.Errorf("use_api requires catalog.endpoint")
	}
	if c.Elasticsearch.Enabled && c.Elasticsearch.Address == "" {
		return fmt.Errorf("elasticsearch sink requires an address")
	}
	return nil
}
