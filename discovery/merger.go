// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package discovery

import (
	"github.com/4d11/company-search/filters"
)

// MergeFilters combines user-provided filters with extracted ones.
//
// Dismissed (segment, op, value) triples are removed from both inputs first,
// and segments that become empty are dropped. A user filter on a segment then
// replaces the extracted filter for that segment in full: a user who filtered
// a segment explicitly has made a precise choice, and the model's inference
// for it is noise. Top-level logic prefers the user's, then the extracted
// side's, then AND.
func MergeFilters(userFilters *filters.QueryFilters, extracted filters.QueryFilters, excluded []filters.ExcludedFilterValue) filters.QueryFilters {
	extracted = withoutExcluded(extracted, excluded)

	var user filters.QueryFilters
	if userFilters != nil {
		user = withoutExcluded(*userFilters, excluded)
	}

	logic := filters.LogicAnd
	switch {
	case userFilters != nil && (user.Logic == filters.LogicAnd || user.Logic == filters.LogicOr):
		logic = user.Logic
	case extracted.Logic == filters.LogicAnd || extracted.Logic == filters.LogicOr:
		logic = extracted.Logic
	}

	merged := filters.QueryFilters{
		Logic:   logic,
		Filters: make([]filters.SegmentFilter, 0, len(user.Filters)+len(extracted.Filters)),
	}
	merged.Filters = append(merged.Filters, user.Filters...)
	for _, sf := range extracted.Filters {
		if !user.HasSegment(sf.Segment) {
			merged.Filters = append(merged.Filters, sf)
		}
	}

	return merged
}

// withoutExcluded returns a copy of qf with every dismissed rule removed and
// emptied segments dropped.
func withoutExcluded(qf filters.QueryFilters, excluded []filters.ExcludedFilterValue) filters.QueryFilters {
	out := filters.QueryFilters{Logic: qf.Logic, Filters: make([]filters.SegmentFilter, 0, len(qf.Filters))}
	for _, sf := range qf.Filters {
		kept := make([]filters.Rule, 0, len(sf.Rules))
		for _, rule := range sf.Rules {
			dismissed := false
			for _, ev := range excluded {
				if ev.Matches(sf.Segment, rule) {
					dismissed = true
					break
				}
			}
			if !dismissed {
				kept = append(kept, rule)
			}
		}
		if len(kept) > 0 {
			out.Filters = append(out.Filters, filters.SegmentFilter{
				Segment: sf.Segment,
				Kind:    sf.Kind,
				Logic:   sf.Logic,
				Rules:   kept,
			})
		}
	}
	return out
}
