package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esutil"
	"github.com/sirupsen/logrus"

	"github.com/LouYuanbo1/dirscraper/internal/config"
	"github.com/LouYuanbo1/dirscraper/internal/domain/model"
)

type typedEsClient[D model.Document] struct {
	client *elasticsearch.TypedClient
	index  string
	logger logrus.FieldLogger
	// 仅用于读取映射,不存数据
	schemaDoc D
}

func InitTypedEsClient[D model.Document](cfg *config.ElasticsearchConfig, logger logrus.FieldLogger) (TypedEsClient[D], error) {
	index := cfg.Index
	if index == "" {
		index = "dirscraper-records"
	}
	typedClient, err := elasticsearch.NewTypedClient(elasticsearch.Config{
		Username:  cfg.Username,
		Password:  cfg.Password,
		Addresses: []string{cfg.Address},
		Transport: &http.Transport{
			MaxIdleConnsPerHost:   10,
			ResponseHeaderTimeout: 30 * time.Second,
			IdleConnTimeout:       90 * time.Second,
			// 开发环境的自签名证书
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize elasticsearch client: %w", err)
	}
	return &typedEsClient[D]{
		client: typedClient,
		index:  index,
		logger: logger.WithField("index", index),
	}, nil
}

func (tec *typedEsClient[D]) Index() string {
	return tec.index
}

func (tec *typedEsClient[D]) CreateIndexWithMapping(ctx context.Context) error {
	exists, err := tec.client.Indices.Exists(tec.index).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check index existence in es: %w", err)
	}
	if exists {
		tec.logger.Debug("index already exists, skip create")
		return nil
	}

	mapping := tec.schemaDoc.GetTypeMapping()
	if mapping == nil {
		_, err = tec.client.Indices.Create(tec.index).Do(ctx)
	} else {
		_, err = tec.client.Indices.Create(tec.index).Mappings(mapping).Do(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to create index in es: %w", err)
	}
	tec.logger.Info("index created")
	return nil
}

// BulkIndexDocsWithID 以文档ID写入,任何一条失败都会返回错误
func (tec *typedEsClient[D]) BulkIndexDocsWithID(ctx context.Context, docs []D) error {
	if len(docs) == 0 {
		return nil
	}
	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Index:         tec.index,
		Client:        tec.client,
		NumWorkers:    2,
		FlushBytes:    5 * 1024 * 1024,
		FlushInterval: 30 * time.Second,
		OnError: func(ctx context.Context, err error) {
			tec.logger.WithError(err).Error("bulk indexer error")
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create bulk indexer: %w", err)
	}

	for _, doc := range docs {
		data, err := json.Marshal(doc)
		if err != nil {
			tec.logger.WithError(err).WithField("doc_id", doc.GetID()).Warn("marshal document failed")
			continue
		}
		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: doc.GetID(),
			Body:       bytes.NewReader(data),
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				entry := tec.logger.WithField("doc_id", item.DocumentID)
				if err != nil {
					entry.WithError(err).Warn("index document failed")
				} else {
					entry.WithField("reason", res.Error.Reason).Warn("index document rejected")
				}
			},
		})
		if err != nil {
			_ = bi.Close(ctx)
			return fmt.Errorf("failed to add document to bulk indexer: %w", err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return fmt.Errorf("failed to close bulk indexer: %w", err)
	}

	stats := bi.Stats()
	tec.logger.WithFields(logrus.Fields{"indexed": stats.NumIndexed, "failed": stats.NumFailed}).Info("bulk indexing completed")
	if stats.NumFailed > 0 {
		return fmt.Errorf("%d of %d documents failed to index", stats.NumFailed, len(docs))
	}
	return nil
}

func (tec *typedEsClient[D]) CountDocs(ctx context.Context) (int64, error) {
	resp, err := tec.client.Count().Index(tec.index).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count docs in es: %w", err)
	}
	return resp.Count, nil
}
