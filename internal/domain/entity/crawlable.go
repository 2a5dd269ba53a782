package entity

import (
	"fmt"
	"strings"

	"github.com/LouYuanbo1/dirscraper/internal/domain/model"
	"github.com/LouYuanbo1/dirscraper/internal/service/normalize"
)

// Crawlable 可以转换为待抓取条目的原始实体
type Crawlable interface {
	ToItemHandle(siteURL, region string) (model.ItemHandle, bool)
}

// CatalogResponse 目录数据接口的分页响应
type CatalogResponse struct {
	Meta struct {
		Code  int `json:"code"`
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"meta"`
	Result struct {
		Total int           `json:"total"`
		Items []CatalogItem `json:"items"`
	} `json:"result"`
}

type CatalogItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// FirmID 接口返回的ID形如 "70000001006615234_hash",详情页只使用下划线前的部分
func (ci *CatalogItem) FirmID() string {
	id, _, _ := strings.Cut(ci.ID, "_")
	return id
}

func (ci *CatalogItem) ToItemHandle(siteURL, region string) (model.ItemHandle, bool) {
	id := ci.FirmID()
	if id == "" || (ci.Type != "" && ci.Type != "branch") {
		return model.ItemHandle{}, false
	}
	// 与 DOM 发现走同一条规范化路径,两种来源的同一商户才能去重
	canonical, ok := normalize.CanonicalURL(siteURL, fmt.Sprintf("/%s/firm/%s", region, id))
	if !ok {
		return model.ItemHandle{}, false
	}
	return model.ItemHandle{CanonicalURL: canonical}, true
}
