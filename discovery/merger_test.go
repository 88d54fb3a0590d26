// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4d11/company-search/filters"
)

func textSegment(segment string, logic filters.Logic, values ...string) filters.SegmentFilter {
	rules := make([]filters.Rule, 0, len(values))
	for _, value := range values {
		rules = append(rules, filters.Rule{Op: filters.OpEQ, Value: value})
	}
	return filters.SegmentFilter{Segment: segment, Kind: filters.KindText, Logic: logic, Rules: rules}
}

func TestMergeFilters(t *testing.T) {
	t.Run("disjoint segments combine", func(t *testing.T) {
		user := filters.QueryFilters{
			Logic:   filters.LogicAnd,
			Filters: []filters.SegmentFilter{textSegment(filters.SegmentLocation, filters.LogicAnd, "San Francisco")},
		}
		extracted := filters.QueryFilters{
			Logic:   filters.LogicAnd,
			Filters: []filters.SegmentFilter{textSegment(filters.SegmentIndustries, filters.LogicOr, "AI/ML")},
		}

		merged := MergeFilters(&user, extracted, nil)

		require.Len(t, merged.Filters, 2)
		assert.True(t, merged.HasSegment(filters.SegmentLocation))
		assert.True(t, merged.HasSegment(filters.SegmentIndustries))
	})

	t.Run("user segment wins whole", func(t *testing.T) {
		user := filters.QueryFilters{
			Logic:   filters.LogicAnd,
			Filters: []filters.SegmentFilter{textSegment(filters.SegmentIndustries, filters.LogicAnd, "HealthTech")},
		}
		extracted := filters.QueryFilters{
			Logic:   filters.LogicAnd,
			Filters: []filters.SegmentFilter{textSegment(filters.SegmentIndustries, filters.LogicOr, "FinTech", "InsurTech")},
		}

		merged := MergeFilters(&user, extracted, nil)

		require.Len(t, merged.Filters, 1)
		assert.Equal(t, []filters.Rule{{Op: filters.OpEQ, Value: "HealthTech"}}, merged.Filters[0].Rules)
	})

	t.Run("nil user filters keep extraction", func(t *testing.T) {
		extracted := filters.QueryFilters{
			Logic:   filters.LogicOr,
			Filters: []filters.SegmentFilter{textSegment(filters.SegmentIndustries, filters.LogicOr, "FinTech")},
		}

		merged := MergeFilters(nil, extracted, nil)

		require.Len(t, merged.Filters, 1)
		assert.Equal(t, filters.LogicOr, merged.Logic)
	})

	t.Run("user logic beats extracted logic", func(t *testing.T) {
		user := filters.QueryFilters{
			Logic:   filters.LogicOr,
			Filters: []filters.SegmentFilter{textSegment(filters.SegmentLocation, filters.LogicAnd, "Berlin")},
		}
		extracted := filters.QueryFilters{
			Logic:   filters.LogicAnd,
			Filters: []filters.SegmentFilter{textSegment(filters.SegmentIndustries, filters.LogicOr, "FinTech")},
		}

		merged := MergeFilters(&user, extracted, nil)

		assert.Equal(t, filters.LogicOr, merged.Logic)
	})

	t.Run("invalid logic defaults to AND", func(t *testing.T) {
		extracted := filters.QueryFilters{
			Logic:   filters.Logic("MAYBE"),
			Filters: []filters.SegmentFilter{textSegment(filters.SegmentIndustries, filters.LogicOr, "FinTech")},
		}

		merged := MergeFilters(nil, extracted, nil)

		assert.Equal(t, filters.LogicAnd, merged.Logic)
	})

	t.Run("excluded values strip both sides", func(t *testing.T) {
		user := filters.QueryFilters{
			Logic: filters.LogicAnd,
			Filters: []filters.SegmentFilter{
				textSegment(filters.SegmentIndustries, filters.LogicOr, "FinTech", "HealthTech"),
			},
		}
		extracted := filters.QueryFilters{
			Logic: filters.LogicAnd,
			Filters: []filters.SegmentFilter{
				textSegment(filters.SegmentLocation, filters.LogicAnd, "Berlin"),
				textSegment(filters.SegmentTargetMarkets, filters.LogicOr, "SMB"),
			},
		}
		excluded := []filters.ExcludedFilterValue{
			{Segment: filters.SegmentIndustries, Op: filters.OpEQ, Value: "FinTech"},
			{Segment: filters.SegmentLocation, Op: filters.OpEQ, Value: "Berlin"},
		}

		merged := MergeFilters(&user, extracted, excluded)

		require.Len(t, merged.Filters, 2)
		industries := merged.Get(filters.SegmentIndustries)
		require.NotNil(t, industries)
		assert.Equal(t, []filters.Rule{{Op: filters.OpEQ, Value: "HealthTech"}}, industries.Rules)
		assert.False(t, merged.HasSegment(filters.SegmentLocation))
		assert.True(t, merged.HasSegment(filters.SegmentTargetMarkets))
	})

	t.Run("exclusion is op sensitive", func(t *testing.T) {
		extracted := filters.QueryFilters{
			Logic: filters.LogicAnd,
			Filters: []filters.SegmentFilter{
				{
					Segment: filters.SegmentEmployeeCount,
					Kind:    filters.KindNumeric,
					Logic:   filters.LogicAnd,
					Rules:   []filters.Rule{{Op: filters.OpGTE, Value: float64(50)}},
				},
			},
		}
		excluded := []filters.ExcludedFilterValue{
			{Segment: filters.SegmentEmployeeCount, Op: filters.OpLTE, Value: float64(50)},
		}

		merged := MergeFilters(nil, extracted, excluded)

		assert.True(t, merged.HasSegment(filters.SegmentEmployeeCount))
	})

	t.Run("empty inputs yield empty AND", func(t *testing.T) {
		merged := MergeFilters(nil, filters.Empty(), nil)

		assert.True(t, merged.IsEmpty())
		assert.Equal(t, filters.LogicAnd, merged.Logic)
	})
}
