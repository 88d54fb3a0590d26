// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package es

import (
	"github.com/4d11/company-search/filters"
)

// BuildSearchBody translates the filter DSL plus an optional query vector
// into one of four engine query shapes:
//
//  1. filters only: a boolean predicate tree
//  2. filters plus vector: the tree wrapped in a script_score whose cosine
//     similarity is shifted by +1.0 so scores stay non-negative
//  3. vector only: a pure kNN clause with k = size, num_candidates = 10*k
//  4. neither: match_all
//
// The body carries size and disables _source; callers hydrate records from
// the relational store by document id.
func BuildSearchBody(qf filters.QueryFilters, queryVector []float32, size int) map[string]any {
	clauses := make([]any, 0, len(qf.Filters))
	for _, sf := range qf.Filters {
		if clause := convertSegmentFilter(sf); clause != nil {
			clauses = append(clauses, clause)
		}
	}

	if len(clauses) == 0 {
		if queryVector != nil {
			return map[string]any{
				"knn": map[string]any{
					"field":          "description_vector",
					"query_vector":   queryVector,
					"k":              size,
					"num_candidates": size * 10,
				},
				"size":    size,
				"_source": false,
			}
		}
		return map[string]any{
			"query":   map[string]any{"match_all": map[string]any{}},
			"size":    size,
			"_source": false,
		}
	}

	filterQuery := combineClauses(clauses, qf.Logic)

	if queryVector != nil {
		return map[string]any{
			"query": map[string]any{
				"script_score": map[string]any{
					"query": filterQuery,
					"script": map[string]any{
						"source": "cosineSimilarity(params.query_vector, 'description_vector') + 1.0",
						"params": map[string]any{"query_vector": queryVector},
					},
				},
			},
			"size":    size,
			"_source": false,
		}
	}

	return map[string]any{
		"query":   filterQuery,
		"size":    size,
		"_source": false,
	}
}

// convertSegmentFilter builds the clause for one segment. Rules combine
// under the segment's logic; a single rule skips the bool wrapper.
func convertSegmentFilter(sf filters.SegmentFilter) map[string]any {
	clauses := make([]any, 0, len(sf.Rules))
	for _, rule := range sf.Rules {
		if clause := convertRule(sf.Segment, rule); clause != nil {
			clauses = append(clauses, clause)
		}
	}
	if len(clauses) == 0 {
		return nil
	}
	return combineClauses(clauses, sf.Logic)
}

func convertRule(segment string, rule filters.Rule) map[string]any {
	switch rule.Op {
	case filters.OpEQ:
		return map[string]any{"term": map[string]any{segment: rule.Value}}
	case filters.OpNEQ:
		return map[string]any{
			"bool": map[string]any{
				"must_not": map[string]any{"term": map[string]any{segment: rule.Value}},
			},
		}
	case filters.OpGT:
		return rangeClause(segment, "gt", rule.Value)
	case filters.OpGTE:
		return rangeClause(segment, "gte", rule.Value)
	case filters.OpLT:
		return rangeClause(segment, "lt", rule.Value)
	case filters.OpLTE:
		return rangeClause(segment, "lte", rule.Value)
	}
	return nil
}

func rangeClause(segment, bound string, value any) map[string]any {
	return map[string]any{
		"range": map[string]any{segment: map[string]any{bound: value}},
	}
}

func combineClauses(clauses []any, logic filters.Logic) map[string]any {
	if len(clauses) == 1 {
		if m, ok := clauses[0].(map[string]any); ok {
			return m
		}
	}
	if logic == filters.LogicOr {
		return map[string]any{
			"bool": map[string]any{"should": clauses, "minimum_should_match": 1},
		}
	}
	return map[string]any{
		"bool": map[string]any{"must": clauses},
	}
}
