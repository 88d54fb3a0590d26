// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package es

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/4d11/company-search/filters"
	"github.com/4d11/company-search/metrics"
)

// DefaultThreshold is the minimum similarity accepted when the caller does
// not supply one.
const DefaultThreshold = 0.80

// Segments whose extended strategy set includes token-AND, partial and
// edit-distance matching. These are the segments seeded with synonym rows.
var synonymSegments = map[string]bool{
	filters.SegmentIndustries:     true,
	filters.SegmentBusinessModels: true,
	filters.SegmentRevenueModels:  true,
}

// Canonicalizer resolves raw extracted values ("fintech", "healthcare
// startups") to canonical vocabulary strings via the per-segment indices.
type Canonicalizer struct {
	client  *Client
	log     *logrus.Logger
	metrics metrics.Metrics
}

func NewCanonicalizer(client *Client, log *logrus.Logger, m metrics.Metrics) *Canonicalizer {
	return &Canonicalizer{
		client:  client,
		log:     log,
		metrics: m,
	}
}

// Canonicalize resolves a single raw value. Segments without a vocabulary
// index pass through unchanged in a single-element slice; their validation
// happens against the relational vocabulary table.
func (c *Canonicalizer) Canonicalize(ctx context.Context, segment, value string, threshold float64) []string {
	return c.CanonicalizeBatch(ctx, segment, []string{value}, threshold)[value]
}

// CanonicalizeBatch resolves many raw values for one segment in a single
// engine round trip. The returned map holds every input value; unmatched
// values map to nil. Engine failures degrade to an all-nil map so the
// request can proceed without the affected rules.
func (c *Canonicalizer) CanonicalizeBatch(ctx context.Context, segment string, values []string, threshold float64) map[string][]string {
	if len(values) == 0 {
		return map[string][]string{}
	}

	results := make(map[string][]string, len(values))

	index := SegmentIndexName(segment)
	if index == "" {
		if filters.KnownSegment(segment) {
			for _, value := range values {
				results[value] = []string{value}
			}
			return results
		}
		c.log.WithField("segment", segment).Warn("No vocabulary index for segment")
		for _, value := range values {
			results[value] = nil
		}
		return results
	}

	lines := make([]any, 0, len(values)*2)
	for _, value := range values {
		lines = append(lines, map[string]any{"index": index})
		lines = append(lines, map[string]any{
			"query":     matchQuery(segment, value),
			"size":      50,
			"_source":   []string{"name"},
			"min_score": 1.0,
		})
	}

	res, err := c.client.msearch(ctx, lines)
	if err != nil {
		c.log.WithError(err).WithField("segment", segment).Error("Batch canonicalization failed")
		for _, value := range values {
			results[value] = nil
		}
		return results
	}

	for i, value := range values {
		if i >= len(res.Responses) {
			results[value] = nil
			continue
		}
		resp := res.Responses[i]
		if len(resp.Error) > 0 {
			c.log.WithFields(logrus.Fields{
				"segment": segment,
				"value":   value,
				"error":   string(resp.Error),
			}).Error("Canonicalization response error")
			results[value] = nil
			continue
		}

		matches := filterByQuality(value, resp.Hits.Hits, threshold)
		if len(matches) == 0 {
			c.metrics.IncrementCanonicalizerMisses(segment)
			c.log.WithFields(logrus.Fields{
				"segment": segment,
				"value":   value,
			}).Debug("No canonical match")
			results[value] = nil
			continue
		}

		results[value] = matches
		c.log.WithFields(logrus.Fields{
			"segment": segment,
			"value":   value,
			"matches": matches,
		}).Debug("Canonicalized value")
	}

	return results
}

// matchQuery combines the lookup strategies for one raw value. Keyword exact
// match dominates, phrase prefix next; synonym-bearing segments add
// token-AND, 75% partial, edit-distance, and for short inputs a keyword
// wildcard. Other segments get only the edit-distance extra.
func matchQuery(segment, value string) map[string]any {
	normalized := strings.TrimSpace(value)
	length := utf8.RuneCountInString(normalized)

	should := []any{
		map[string]any{
			"match": map[string]any{
				"name.keyword": map[string]any{"query": normalized, "boost": 3.0},
			},
		},
		map[string]any{
			"match_phrase_prefix": map[string]any{
				"name": map[string]any{"query": normalized, "boost": 2.0},
			},
		},
	}

	if synonymSegments[segment] {
		should = append(should,
			map[string]any{
				"match": map[string]any{
					"name": map[string]any{"query": normalized, "operator": "and", "boost": 1.5},
				},
			},
			map[string]any{
				"match": map[string]any{
					"name": map[string]any{"query": normalized, "minimum_should_match": "75%", "boost": 1.2},
				},
			},
			map[string]any{
				"fuzzy": map[string]any{
					"name": map[string]any{"value": normalized, "fuzziness": "AUTO", "boost": 0.8},
				},
			},
		)
		if length <= 5 {
			should = append(should, map[string]any{
				"wildcard": map[string]any{
					"name.keyword": map[string]any{"value": normalized + "*", "boost": 1.5},
				},
			})
		}
	} else {
		should = append(should, map[string]any{
			"fuzzy": map[string]any{
				"name": map[string]any{"value": normalized, "fuzziness": "AUTO", "boost": 1.0},
			},
		})
	}

	return map[string]any{
		"bool": map[string]any{"should": should},
	}
}

// filterByQuality keeps candidates whose composite quality clears the floor.
// Scores are normalized by the top hit so thresholds stay comparable across
// queries, and token overlap guards against synonym hits that share no
// surface tokens with the input.
func filterByQuality(value string, hits []searchHit, threshold float64) []string {
	if len(hits) == 0 {
		return nil
	}

	normalized := strings.TrimSpace(value)
	queryTokens := tokenSet(normalized)

	floor := threshold
	if utf8.RuneCountInString(normalized) <= 3 {
		floor = math.Max(0.60, 0.8*threshold)
	}

	maxScore := hits[0].Score
	var matches []string
	for _, hit := range hits {
		var source struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(hit.Source, &source); err != nil || source.Name == "" {
			continue
		}

		normalizedScore := 0.0
		if maxScore > 0 {
			normalizedScore = hit.Score / maxScore
		}

		overlap := 0.0
		if len(queryTokens) > 0 {
			shared := 0
			for token := range tokenSet(source.Name) {
				if queryTokens[token] {
					shared++
				}
			}
			overlap = float64(shared) / float64(len(queryTokens))
		}

		quality := normalizedScore*0.7 + overlap*0.3
		if quality >= floor {
			matches = append(matches, source.Name)
		}
	}
	return matches
}

func tokenSet(s string) map[string]bool {
	tokens := map[string]bool{}
	for _, token := range strings.Fields(strings.ToLower(s)) {
		tokens[token] = true
	}
	return tokens
}
