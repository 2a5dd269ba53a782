package model

import (
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v9/typedapi/types"
	"github.com/google/uuid"
)

type RecordDoc struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Phones    []string  `json:"phones"`
	Emails    []string  `json:"emails"`
	Websites  []string  `json:"websites"`
	SourceURL string    `json:"source_url"`
	City      string    `json:"city"`
	Country   string    `json:"country"`
	CrawledAt time.Time `json:"crawled_at"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// NewRecordDoc 文档ID由来源链接派生,同一商户重复抓取会覆盖旧文档
func NewRecordDoc(jobID string, r *Record, crawledAt time.Time) *RecordDoc {
	return &RecordDoc{
		ID:        uuid.NewSHA1(uuid.NameSpaceURL, []byte(r.SourceURL)).String(),
		JobID:     jobID,
		Name:      r.Name,
		Address:   r.Address,
		Phones:    r.Phones,
		Emails:    r.Emails,
		Websites:  r.Websites,
		SourceURL: r.SourceURL,
		City:      r.City,
		Country:   r.Country,
		CrawledAt: crawledAt,
	}
}

func (d *RecordDoc) GetID() string {
	return d.ID
}

func (d *RecordDoc) GetTypeMapping() *types.TypeMapping {
	dims := 768
	return &types.TypeMapping{
		Properties: map[string]types.Property{
			"id":         types.NewKeywordProperty(),
			"job_id":     types.NewKeywordProperty(),
			"name":       types.NewTextProperty(),
			"address":    types.NewTextProperty(),
			"phones":     types.NewKeywordProperty(),
			"emails":     types.NewKeywordProperty(),
			"websites":   types.NewKeywordProperty(),
			"source_url": types.NewKeywordProperty(),
			"city":       types.NewKeywordProperty(),
			"country":    types.NewKeywordProperty(),
			"crawled_at": types.NewDateProperty(),
			"embedding": &types.DenseVectorProperty{
				Dims: &dims,
			},
		},
	}
}

// GetEmbeddingString 用于生成向量的文本
func (d *RecordDoc) GetEmbeddingString() string {
	parts := []string{d.Name, d.Address, d.City}
	parts = append(parts, d.Websites...)
	return strings.Join(parts, " ")
}

func (d *RecordDoc) SetEmbedding(embedding []float32) {
	d.Embedding = embedding
}

func (d *RecordDoc) GetEmbedding() []float32 {
	return d.Embedding
}
