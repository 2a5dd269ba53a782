package es

import (
	"context"

	"github.com/LouYuanbo1/dirscraper/internal/domain/model"
)

type TypedEsClient[D model.Document] interface {
	Index() string
	CreateIndexWithMapping(ctx context.Context) error
	BulkIndexDocsWithID(ctx context.Context, docs []D) error
	// CountDocs 索引当前文档总数
	CountDocs(ctx context.Context) (int64, error)
}
