package embedding

import (
	"context"
	"strconv"

	"github.com/cloudwego/eino-ext/components/embedding/ollama"

	"github.com/LouYuanbo1/dirscraper/internal/config"
)

type embedder struct {
	model     *ollama.Embedder
	batchSize int
}

// InitEmbedder 基于本地 ollama 服务
func InitEmbedder(ctx context.Context, cfg *config.EmbedderConfig) (Embedder, error) {
	model, err := ollama.NewEmbedder(ctx, &ollama.EmbeddingConfig{
		Model:   cfg.Model,
		BaseURL: cfg.Host + ":" + strconv.Itoa(cfg.Port),
	})
	if err != nil {
		return nil, err
	}
	return &embedder{model: model, batchSize: cfg.BatchSize}, nil
}

func (e *embedder) BatchSize() int {
	return e.batchSize
}

// Embed ollama 返回 float64,索引使用 float32
func (e *embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := e.model.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, 0, len(vectors))
	for _, v := range vectors {
		f32 := make([]float32, len(v))
		for i, f := range v {
			f32[i] = float32(f)
		}
		out = append(out, f32)
	}
	return out, nil
}
