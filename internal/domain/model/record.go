package model

import "strings"

// ItemHandle 发现阶段产出的条目,CanonicalURL 是整个流程的去重键
type ItemHandle struct {
	CanonicalURL string `json:"canonical_url"`
}

// Record 一个详情页抽取出的商户记录,字段缺失时为空值
type Record struct {
	Name    string   `json:"name"`
	Address string   `json:"address"`
	Phones  []string `json:"phones"`
	Emails  []string `json:"emails"`
	// Websites 按可能性排序,最可能的官网在前
	Websites  []string `json:"websites"`
	SourceURL string   `json:"source_url"`
	City      string   `json:"city"`
	Country   string   `json:"country"`
}

// Valid 没有名称的记录视为抽取失败
func (r *Record) Valid() bool {
	return r != nil && strings.TrimSpace(r.Name) != ""
}
