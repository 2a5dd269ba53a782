package es

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/LouYuanbo1/dirscraper/internal/domain/model"
	"github.com/LouYuanbo1/dirscraper/internal/infra/embedding"
)

// RecordSink 把合并后的记录写入 Elasticsearch,embedder 为 nil 时不写向量
type RecordSink struct {
	client   TypedEsClient[*model.RecordDoc]
	embedder embedding.Embedder
	logger   logrus.FieldLogger
	now      func() time.Time
}

func InitRecordSink(client TypedEsClient[*model.RecordDoc], embedder embedding.Embedder, logger logrus.FieldLogger) *RecordSink {
	return &RecordSink{client: client, embedder: embedder, logger: logger, now: time.Now}
}

func (s *RecordSink) Name() string {
	return "elasticsearch"
}

func (s *RecordSink) Write(ctx context.Context, jobID string, records []model.Record) error {
	if err := s.client.CreateIndexWithMapping(ctx); err != nil {
		return err
	}
	crawledAt := s.now()
	docs := make([]*model.RecordDoc, 0, len(records))
	for i := range records {
		docs = append(docs, model.NewRecordDoc(jobID, &records[i], crawledAt))
	}
	if s.embedder != nil {
		// 向量失败不影响记录入库
		if err := embedding.EmbedDocs(ctx, s.embedder, docs); err != nil {
			s.logger.WithError(err).WithField("job_id", jobID).Warn("embedding failed, indexing without vectors")
		}
	}
	if err := s.client.BulkIndexDocsWithID(ctx, docs); err != nil {
		return err
	}
	// 计数只用于日志,失败不影响写入结果
	total, err := s.client.CountDocs(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("job_id", jobID).Warn("count documents failed")
		return nil
	}
	s.logger.WithFields(logrus.Fields{
		"job_id": jobID,
		"index":  s.client.Index(),
		"docs":   total,
	}).Info("records indexed")
	return nil
}
