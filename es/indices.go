// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package es

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/4d11/company-search/filters"
)

const CompanyIndexName = "companies"

// Per-segment vocabulary indices used for fuzzy canonicalization.
const (
	IndustriesIndex     = "industries"
	LocationsIndex      = "locations"
	TargetMarketsIndex  = "target_markets"
	BusinessModelsIndex = "business_models"
	RevenueModelsIndex  = "revenue_models"
)

var segmentIndexNames = map[string]string{
	filters.SegmentIndustries:     IndustriesIndex,
	filters.SegmentLocation:       LocationsIndex,
	filters.SegmentTargetMarkets:  TargetMarketsIndex,
	filters.SegmentBusinessModels: BusinessModelsIndex,
	filters.SegmentRevenueModels:  RevenueModelsIndex,
}

// SegmentIndexName maps a segment to its vocabulary index, empty when the
// segment has none (funding_stage validates against the relational table).
func SegmentIndexName(segment string) string {
	return segmentIndexNames[segment]
}

// segmentMapping builds the vocabulary index mapping. When synonym rows are
// given ("canonical, syn1, syn2"), a search-time synonym analyzer is injected
// so alternative surface forms score like the canonical token.
func segmentMapping(synonyms []string) map[string]any {
	nameField := map[string]any{
		"type":     "text",
		"analyzer": "standard",
		"fields": map[string]any{
			"keyword": map[string]any{"type": "keyword"},
		},
	}

	analysis := map[string]any{
		"analyzer": map[string]any{},
		"filter":   map[string]any{},
	}

	if len(synonyms) > 0 {
		analysis["analyzer"].(map[string]any)["synonym_analyzer"] = map[string]any{
			"type":      "custom",
			"tokenizer": "standard",
			"filter":    []string{"lowercase", "synonym_filter"},
		}
		analysis["filter"].(map[string]any)["synonym_filter"] = map[string]any{
			"type":     "synonym",
			"synonyms": synonyms,
		}
		nameField["search_analyzer"] = "synonym_analyzer"
	}

	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
			"analysis":           analysis,
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"name": nameField,
			},
		},
	}
}

// companyMapping builds the companies index mapping. dims is the embedding
// dimensionality, the single source of truth from configuration.
func companyMapping(dims int) map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"company_id":   map[string]any{"type": "long"},
				"company_name": map[string]any{"type": "text", "fields": map[string]any{"keyword": map[string]any{"type": "keyword"}}},
				"description":  map[string]any{"type": "text"},
				"website_url":  map[string]any{"type": "keyword", "index": false},
				"location":     map[string]any{"type": "keyword"},
				"industries":   map[string]any{"type": "keyword"},
				"target_markets":  map[string]any{"type": "keyword"},
				"business_models": map[string]any{"type": "keyword"},
				"revenue_models":  map[string]any{"type": "keyword"},
				"funding_stage":   map[string]any{"type": "keyword"},
				"stage_order":     map[string]any{"type": "integer"},
				"employee_count":  map[string]any{"type": "integer"},
				"funding_amount":  map[string]any{"type": "long"},
				"description_vector": map[string]any{
					"type":       "dense_vector",
					"dims":       dims,
					"index":      true,
					"similarity": "cosine",
				},
			},
		},
	}
}

// SegmentValue is one vocabulary entry to index.
type SegmentValue struct {
	ID   int64
	Name string
}

// CompanyDoc is the engine-side projection of a company. Field names are the
// semantic names the translator emits; they are never remapped.
type CompanyDoc struct {
	ID                int64     `json:"-"`
	CompanyID         int64     `json:"company_id"`
	CompanyName       string    `json:"company_name"`
	Description       string    `json:"description,omitempty"`
	WebsiteURL        string    `json:"website_url,omitempty"`
	Location          string    `json:"location,omitempty"`
	Industries        []string  `json:"industries,omitempty"`
	TargetMarkets     []string  `json:"target_markets,omitempty"`
	BusinessModels    []string  `json:"business_models,omitempty"`
	RevenueModels     []string  `json:"revenue_models,omitempty"`
	FundingStage      string    `json:"funding_stage,omitempty"`
	StageOrder        *int      `json:"stage_order,omitempty"`
	EmployeeCount     *int      `json:"employee_count,omitempty"`
	FundingAmount     *int64    `json:"funding_amount,omitempty"`
	DescriptionVector []float32 `json:"description_vector,omitempty"`
}

// EnsureCompanyIndex recreates the companies index with the vector mapping.
// Existing data is dropped; the seeder repopulates both stores together.
func (c *Client) EnsureCompanyIndex(ctx context.Context, dims int) error {
	exists, err := c.indexExists(ctx, CompanyIndexName)
	if err != nil {
		return err
	}
	if exists {
		c.log.WithField("index", CompanyIndexName).Info("Index already exists, deleting")
		if err := c.deleteIndex(ctx, CompanyIndexName); err != nil {
			return err
		}
	}

	if err := c.createIndex(ctx, CompanyIndexName, companyMapping(dims)); err != nil {
		return err
	}
	c.log.WithField("index", CompanyIndexName).Info("Created index")
	return nil
}

// EnsureSegmentIndex recreates one vocabulary index, injecting the segment's
// synonym rows when present.
func (c *Client) EnsureSegmentIndex(ctx context.Context, segment string, synonyms []string) error {
	index := SegmentIndexName(segment)
	if index == "" {
		return errors.Errorf("segment %q has no vocabulary index", segment)
	}

	exists, err := c.indexExists(ctx, index)
	if err != nil {
		return err
	}
	if exists {
		c.log.WithField("index", index).Info("Index already exists, deleting")
		if err := c.deleteIndex(ctx, index); err != nil {
			return err
		}
	}

	if err := c.createIndex(ctx, index, segmentMapping(synonyms)); err != nil {
		return err
	}
	c.log.WithField("index", index).Info("Created index")
	return nil
}

// PopulateSegmentIndex bulk-indexes the vocabulary values, keyed by their
// relational ids.
func (c *Client) PopulateSegmentIndex(ctx context.Context, segment string, values []SegmentValue) error {
	index := SegmentIndexName(segment)
	if index == "" {
		return errors.Errorf("segment %q has no vocabulary index", segment)
	}
	if len(values) == 0 {
		return nil
	}

	lines := make([]any, 0, len(values)*2)
	for _, v := range values {
		lines = append(lines,
			map[string]any{"index": map[string]any{"_index": index, "_id": strconv.FormatInt(v.ID, 10)}},
			map[string]any{"name": v.Name},
		)
	}
	if err := c.bulk(ctx, lines); err != nil {
		return err
	}

	c.log.WithField("index", index).WithField("count", len(values)).Info("Indexed segment values")
	return nil
}

// IndexSegmentValue writes one vocabulary document, used when an admin
// approves an unknown extraction into the vocabulary.
func (c *Client) IndexSegmentValue(ctx context.Context, segment string, value SegmentValue) error {
	index := SegmentIndexName(segment)
	if index == "" {
		return errors.Errorf("segment %q has no vocabulary index", segment)
	}
	return c.indexDocument(ctx, index, strconv.FormatInt(value.ID, 10), map[string]any{"name": value.Name})
}

// BulkIndexCompanies indexes company documents keyed by their relational ids.
func (c *Client) BulkIndexCompanies(ctx context.Context, docs []CompanyDoc) error {
	if len(docs) == 0 {
		return nil
	}

	lines := make([]any, 0, len(docs)*2)
	for i := range docs {
		lines = append(lines,
			map[string]any{"index": map[string]any{"_index": CompanyIndexName, "_id": strconv.FormatInt(docs[i].ID, 10)}},
			&docs[i],
		)
	}
	if err := c.bulk(ctx, lines); err != nil {
		return err
	}

	c.log.WithField("count", len(docs)).Info("Bulk indexed companies")
	return nil
}
