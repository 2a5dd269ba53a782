package param

import (
	"strings"
)

// Strategy 链接发现策略
type Strategy string

// 限制可能的值
const (
	StrategyScroll     Strategy = "scroll"
	StrategyPagination Strategy = "pagination"
	StrategyAPI        Strategy = "api"
)

// IsKnown 判断策略名称是否受支持
func (s Strategy) IsKnown() bool {
	switch s {
	case StrategyScroll, StrategyPagination, StrategyAPI:
		return true
	default:
		return false
	}
}

// DiscoveryTarget 一次链接发现的输入,创建后不可修改
type DiscoveryTarget struct {
	// Region 目录中的区域标识,例如 "moscow"
	Region string `json:"region"`
	// RegionID 后端数据接口使用的数字区域ID,为空时使用默认区域
	RegionID  string `json:"region_id"`
	QueryTerm string `json:"query_term"`
	ItemCap   int    `json:"item_cap"`
}

func (dt DiscoveryTarget) IsValid() bool {
	return dt.Region != "" && strings.TrimSpace(dt.QueryTerm) != "" && dt.ItemCap > 0
}

// IsURL 查询词本身是一个链接时直接导航
func (dt DiscoveryTarget) IsURL() bool {
	return strings.HasPrefix(dt.QueryTerm, "http")
}

// CrawlJob 一次完整抓取任务,只归编排器所有
type CrawlJob struct {
	Targets      []DiscoveryTarget `json:"targets"`
	WorkerCount  int               `json:"worker_count"`
	PerTargetCap int               `json:"per_target_cap"`
	// City 和 Country 会写入每条记录
	City       string `json:"city"`
	Country    string `json:"country"`
	OutputPath string `json:"output_path"`
}

func (cj *CrawlJob) IsValid() bool {
	if len(cj.Targets) == 0 ||
		cj.WorkerCount <= 0 ||
		cj.PerTargetCap <= 0 {
		return false
	}
	for _, t := range cj.Targets {
		if !t.IsValid() {
			return false
		}
	}
	return true
}

// NewCrawlJob 根据城市与查询词构建任务,每个查询词对应一个 DiscoveryTarget
func NewCrawlJob(region, regionID, city, country string, queries []string, perTargetCap, workerCount int, outputPath string) *CrawlJob {
	targets := make([]DiscoveryTarget, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		targets = append(targets, DiscoveryTarget{
			Region:    region,
			RegionID:  regionID,
			QueryTerm: q,
			ItemCap:   perTargetCap,
		})
	}
	return &CrawlJob{
		Targets:      targets,
		WorkerCount:  workerCount,
		PerTargetCap: perTargetCap,
		City:         city,
		Country:      country,
		OutputPath:   outputPath,
	}
}

// DefaultNiches 输入 "all" 时使用的热门分类
var DefaultNiches = []string{
	"кафе", "ресторан", "аптека", "продукты", "салон красоты",
	"автосервис", "цветы", "стоматология", "фитнес", "отель",
}

// ParseQueries 解析逗号分隔的查询词,"all" 展开为默认分类
func ParseQueries(raw []string) []string {
	var out []string
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if strings.EqualFold(part, "all") {
				out = append(out, DefaultNiches...)
				continue
			}
			out = append(out, part)
		}
	}
	return out
}
