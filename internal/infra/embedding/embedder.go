package embedding

import (
	"context"
	"fmt"

	"github.com/LouYuanbo1/dirscraper/internal/domain/model"
)

// Embedder 文本向量化
type Embedder interface {
	BatchSize() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedDocs 按批次为文档生成向量,某一批失败时已完成的批次保留向量
func EmbedDocs[D model.Document](ctx context.Context, e Embedder, docs []D) error {
	batch := e.BatchSize()
	if batch <= 0 {
		batch = len(docs)
	}
	texts := make([]string, 0, len(docs))
	for _, doc := range docs {
		texts = append(texts, doc.GetEmbeddingString())
	}
	for i := 0; i < len(texts); i += batch {
		end := min(i+batch, len(texts))
		vectors, err := e.Embed(ctx, texts[i:end])
		if err != nil {
			return fmt.Errorf("embed docs %d-%d: %w", i, end, err)
		}
		if len(vectors) != end-i {
			return fmt.Errorf("embed docs %d-%d: got %d vectors", i, end, len(vectors))
		}
		for j, v := range vectors {
			docs[i+j].SetEmbedding(v)
		}
	}
	return nil
}
