package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

type ElasticsearchSink struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchSink(client *elasticsearch.Client, index string) *ElasticsearchSink {
	return &ElasticsearchSink{client: client, index: index}
}

func (s *ElasticsearchSink) Name() string { return "elasticsearch" }

func (s *ElasticsearchSink) Write(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}

	// The request ID is client-controlled, so it stays a field and
	// Elasticsearch assigns the document ID.
	req := esapi.IndexRequest{
		Index: s.index,
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("index audit record: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index audit record: %s", res.Status())
	}
	return nil
}
