// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package es

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/4d11/company-search/metrics"
)

type Config struct {
	URL    string
	APIKey string
	// Transport overrides the HTTP transport, used by tests to fake the
	// engine.
	Transport http.RoundTripper
}

// Client wraps the low-level Elasticsearch client with the narrow surface the
// pipeline needs: search, msearch, document and index administration.
type Client struct {
	es      *elasticsearch.Client
	log     *logrus.Logger
	metrics metrics.Metrics
}

func NewClient(cfg Config, log *logrus.Logger, m metrics.Metrics) (*Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.URL},
	}
	if cfg.APIKey != "" {
		esCfg.APIKey = cfg.APIKey
	}
	if cfg.Transport != nil {
		esCfg.Transport = cfg.Transport
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create elasticsearch client")
	}

	return &Client{
		es:      client,
		log:     log,
		metrics: m,
	}, nil
}

// Ping reports whether the engine answers at all.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "elasticsearch ping failed")
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.Errorf("elasticsearch ping returned %s", res.Status())
	}
	return nil
}

type searchHit struct {
	ID     string          `json:"_id"`
	Score  float64         `json:"_score"`
	Source json.RawMessage `json:"_source"`
}

type searchHits struct {
	Hits []searchHit `json:"hits"`
}

type searchResult struct {
	Hits  searchHits      `json:"hits"`
	Error json.RawMessage `json:"error"`
}

type msearchResult struct {
	Responses []searchResult `json:"responses"`
}

func (c *Client) search(ctx context.Context, index string, body map[string]any) (*searchResult, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, errors.Wrap(err, "failed to encode search body")
	}

	start := time.Now()
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(&buf),
	)
	c.metrics.ObserveEngineRequestDuration(index, "search", time.Since(start).Seconds())
	if err != nil {
		c.metrics.IncrementEngineErrors(index, "search")
		return nil, errors.Wrapf(err, "search against %s failed", index)
	}
	defer res.Body.Close()

	if res.IsError() {
		c.metrics.IncrementEngineErrors(index, "search")
		return nil, errors.Errorf("search against %s returned %s: %s", index, res.Status(), readBodyForError(res.Body))
	}

	var out searchResult
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "failed to decode search response")
	}
	return &out, nil
}

// msearch posts newline-delimited header/body pairs and returns one result
// per pair, errors included in place.
func (c *Client) msearch(ctx context.Context, lines []any) (*msearchResult, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, line := range lines {
		if err := enc.Encode(line); err != nil {
			return nil, errors.Wrap(err, "failed to encode msearch line")
		}
	}

	start := time.Now()
	res, err := c.es.Msearch(&buf, c.es.Msearch.WithContext(ctx))
	c.metrics.ObserveEngineRequestDuration("_all", "msearch", time.Since(start).Seconds())
	if err != nil {
		c.metrics.IncrementEngineErrors("_all", "msearch")
		return nil, errors.Wrap(err, "msearch failed")
	}
	defer res.Body.Close()

	if res.IsError() {
		c.metrics.IncrementEngineErrors("_all", "msearch")
		return nil, errors.Errorf("msearch returned %s: %s", res.Status(), readBodyForError(res.Body))
	}

	var out msearchResult
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "failed to decode msearch response")
	}
	return &out, nil
}

func (c *Client) indexExists(ctx context.Context, name string) (bool, error) {
	res, err := c.es.Indices.Exists([]string{name}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, errors.Wrapf(err, "exists check for %s failed", name)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if res.IsError() {
		return false, errors.Errorf("exists check for %s returned %s", name, res.Status())
	}
	return true, nil
}

func (c *Client) createIndex(ctx context.Context, name string, mapping map[string]any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(mapping); err != nil {
		return errors.Wrap(err, "failed to encode index mapping")
	}

	res, err := c.es.Indices.Create(
		name,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(&buf),
	)
	if err != nil {
		return errors.Wrapf(err, "create index %s failed", name)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.Errorf("create index %s returned %s: %s", name, res.Status(), readBodyForError(res.Body))
	}
	return nil
}

func (c *Client) deleteIndex(ctx context.Context, name string) error {
	res, err := c.es.Indices.Delete([]string{name}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return errors.Wrapf(err, "delete index %s failed", name)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return errors.Errorf("delete index %s returned %s", name, res.Status())
	}
	return nil
}

func (c *Client) indexDocument(ctx context.Context, index, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to encode document")
	}

	res, err := c.es.Index(
		index,
		bytes.NewReader(body),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(id),
	)
	if err != nil {
		return errors.Wrapf(err, "index document into %s failed", index)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.Errorf("index document into %s returned %s: %s", index, res.Status(), readBodyForError(res.Body))
	}
	return nil
}

// bulk posts pre-encoded NDJSON action/source lines.
func (c *Client) bulk(ctx context.Context, lines []any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, line := range lines {
		if err := enc.Encode(line); err != nil {
			return errors.Wrap(err, "failed to encode bulk line")
		}
	}

	res, err := c.es.Bulk(&buf, c.es.Bulk.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "bulk request failed")
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.Errorf("bulk request returned %s: %s", res.Status(), readBodyForError(res.Body))
	}

	var out struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int             `json:"status"`
			Error  json.RawMessage `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return errors.Wrap(err, "failed to decode bulk response")
	}
	if out.Errors {
		failed := 0
		for _, item := range out.Items {
			for _, op := range item {
				if op.Status >= 300 {
					failed++
				}
			}
		}
		return errors.Errorf("bulk request had %d failed items", failed)
	}
	return nil
}

// readBodyForError drains up to a small cap for inclusion in error text.
func readBodyForError(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 2048))
	if err != nil {
		return ""
	}
	return string(b)
}
