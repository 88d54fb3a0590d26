// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package store

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/4d11/company-search/filters"
)

// InsertSearchLog appends one query to the analytics log. filtersJSON is the
// serialized applied-filters object, may be nil.
func (s *Store) InsertSearchLog(ctx context.Context, query string, filtersJSON []byte, resultCount int) error {
	var jsonArg any
	if len(filtersJSON) > 0 {
		jsonArg = string(filtersJSON)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_logs (query, filters_applied, result_count)
		VALUES ($1, $2, $3)`,
		query, jsonArg, resultCount)
	if err != nil {
		return errors.Wrap(err, "failed to insert search log")
	}
	return nil
}

// SegmentQueryStat is one aggregated query for a segment: the query text,
// the EQ values it filtered on, and how often it ran.
type SegmentQueryStat struct {
	Query  string   `json:"query"`
	Values []string `json:"values"`
	Count  int      `json:"count"`
}

// Analytics summarizes the search log.
type Analytics struct {
	TotalSearches       int64                         `json:"total_searches"`
	SearchesLast7Days   int64                         `json:"searches_last_7_days"`
	SearchesLast30Days  int64                         `json:"searches_last_30_days"`
	TopQueriesBySegment map[string][]SegmentQueryStat `json:"top_queries_by_segment"`
}

type searchLogRow struct {
	Query          string `db:"query"`
	FiltersApplied []byte `db:"filters_applied"`
}

// SearchAnalytics computes totals plus the top ten queries per segment,
// grouped by the EQ values their applied filters carried.
func (s *Store) SearchAnalytics(ctx context.Context) (*Analytics, error) {
	analytics := &Analytics{
		TopQueriesBySegment: map[string][]SegmentQueryStat{},
	}

	now := time.Now().UTC()
	counts := []struct {
		dest  *int64
		since *time.Time
	}{
		{dest: &analytics.TotalSearches},
		{dest: &analytics.SearchesLast7Days, since: timePtr(now.AddDate(0, 0, -7))},
		{dest: &analytics.SearchesLast30Days, since: timePtr(now.AddDate(0, 0, -30))},
	}
	for _, c := range counts {
		builder := s.builder.Select("COUNT(*)").From("search_logs")
		if c.since != nil {
			builder = builder.Where(sq.GtOrEq{"timestamp": *c.since})
		}
		query, args, err := builder.ToSql()
		if err != nil {
			return nil, errors.Wrap(err, "failed to build analytics count")
		}
		if err := s.db.GetContext(ctx, c.dest, query, args...); err != nil {
			return nil, errors.Wrap(err, "failed to count search logs")
		}
	}

	var rows []searchLogRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT query, filters_applied FROM search_logs
		WHERE query IS NOT NULL AND query != '' AND filters_applied IS NOT NULL`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load search logs")
	}

	analytics.TopQueriesBySegment = topQueriesBySegment(rows)
	return analytics, nil
}

// topQueriesBySegment groups logged queries by the segments their applied
// filters touched and keeps the ten most frequent per segment. Only EQ
// values count; unparseable filter payloads are skipped.
func topQueriesBySegment(rows []searchLogRow) map[string][]SegmentQueryStat {
	type queryAgg struct {
		values map[string]bool
		count  int
	}
	segmentQueries := map[string]map[string]*queryAgg{}

	for _, row := range rows {
		var applied filters.QueryFilters
		if err := json.Unmarshal(row.FiltersApplied, &applied); err != nil {
			continue
		}
		for _, sf := range applied.Filters {
			var values []string
			for _, rule := range sf.Rules {
				if rule.Op == filters.OpEQ {
					values = append(values, filters.ValueKey(rule.Value))
				}
			}
			if sf.Segment == "" || len(values) == 0 {
				continue
			}
			if segmentQueries[sf.Segment] == nil {
				segmentQueries[sf.Segment] = map[string]*queryAgg{}
			}
			agg := segmentQueries[sf.Segment][row.Query]
			if agg == nil {
				agg = &queryAgg{values: map[string]bool{}}
				segmentQueries[sf.Segment][row.Query] = agg
			}
			for _, v := range values {
				agg.values[v] = true
			}
			agg.count++
		}
	}

	top := make(map[string][]SegmentQueryStat, len(segmentQueries))
	for segment, queries := range segmentQueries {
		stats := make([]SegmentQueryStat, 0, len(queries))
		for query, agg := range queries {
			values := make([]string, 0, len(agg.values))
			for v := range agg.values {
				values = append(values, v)
			}
			sort.Strings(values)
			stats = append(stats, SegmentQueryStat{Query: query, Values: values, Count: agg.count})
		}
		sort.SliceStable(stats, func(i, j int) bool { return stats[i].Count > stats[j].Count })
		if len(stats) > 10 {
			stats = stats[:10]
		}
		top[segment] = stats
	}
	return top
}

func timePtr(t time.Time) *time.Time {
	return &t
}
