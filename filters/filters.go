// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package filters

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind discriminates the value type a segment accepts.
type Kind string

const (
	KindText    Kind = "text"
	KindNumeric Kind = "numeric"
)

// Op is a comparison operator on a filter rule.
type Op string

const (
	OpEQ  Op = "EQ"
	OpNEQ Op = "NEQ"
	OpGT  Op = "GT"
	OpGTE Op = "GTE"
	OpLT  Op = "LT"
	OpLTE Op = "LTE"
)

// Logic combines rules within a segment or segments within a query.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Segment names. Text segments carry canonical vocabulary values, numeric
// segments carry integer comparisons. funding_amount is whole US dollars.
const (
	SegmentLocation       = "location"
	SegmentIndustries     = "industries"
	SegmentTargetMarkets  = "target_markets"
	SegmentFundingStage   = "funding_stage"
	SegmentBusinessModels = "business_models"
	SegmentRevenueModels  = "revenue_models"
	SegmentEmployeeCount  = "employee_count"
	SegmentFundingAmount  = "funding_amount"
	SegmentStageOrder     = "stage_order"
)

var textSegments = map[string]bool{
	SegmentLocation:       true,
	SegmentIndustries:     true,
	SegmentTargetMarkets:  true,
	SegmentFundingStage:   true,
	SegmentBusinessModels: true,
	SegmentRevenueModels:  true,
}

var numericSegments = map[string]bool{
	SegmentEmployeeCount: true,
	SegmentFundingAmount: true,
	SegmentStageOrder:    true,
}

var textOps = map[Op]bool{OpEQ: true, OpNEQ: true}

var numericOps = map[Op]bool{
	OpEQ: true, OpNEQ: true,
	OpGT: true, OpGTE: true,
	OpLT: true, OpLTE: true,
}

// IsTextSegment reports whether the segment holds canonical string values.
func IsTextSegment(segment string) bool {
	return textSegments[segment]
}

// IsNumericSegment reports whether the segment holds numeric values.
func IsNumericSegment(segment string) bool {
	return numericSegments[segment]
}

// KnownSegment reports whether the segment name is part of the DSL at all.
func KnownSegment(segment string) bool {
	return textSegments[segment] || numericSegments[segment]
}

// TextSegments returns the text segment names in sorted order.
func TextSegments() []string {
	out := make([]string, 0, len(textSegments))
	for s := range textSegments {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// AllSegments returns every known segment name in sorted order.
func AllSegments() []string {
	out := make([]string, 0, len(textSegments)+len(numericSegments))
	for s := range textSegments {
		out = append(out, s)
	}
	for s := range numericSegments {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// SegmentKind returns the kind for a known segment and false for unknown ones.
func SegmentKind(segment string) (Kind, bool) {
	switch {
	case textSegments[segment]:
		return KindText, true
	case numericSegments[segment]:
		return KindNumeric, true
	}
	return "", false
}

// Rule is a single comparison. Value is a string for text segments and a
// number for numeric segments; JSON decoding yields float64 for numbers.
type Rule struct {
	Op    Op  `json:"op"`
	Value any `json:"value"`
}

// SegmentFilter holds every rule applied to one segment, combined under
// Logic.
type SegmentFilter struct {
	Segment string `json:"segment"`
	Kind    Kind   `json:"type"`
	Logic   Logic  `json:"logic"`
	Rules   []Rule `json:"rules"`
}

// QueryFilters is the full structured constraint set for one search.
type QueryFilters struct {
	Logic   Logic           `json:"logic"`
	Filters []SegmentFilter `json:"filters"`
}

// ExcludedFilterValue names one (segment, op, value) triple a user dismissed.
// Matching rules must not reappear in merged filters.
type ExcludedFilterValue struct {
	Segment string `json:"segment"`
	Op      Op     `json:"op"`
	Value   any    `json:"value"`
}

// Empty returns filters that constrain nothing.
func Empty() QueryFilters {
	return QueryFilters{Logic: LogicAnd, Filters: []SegmentFilter{}}
}

// IsEmpty reports whether no segment carries a rule.
func (q QueryFilters) IsEmpty() bool {
	for _, f := range q.Filters {
		if len(f.Rules) > 0 {
			return false
		}
	}
	return true
}

// Get returns the filter for segment, or nil when the segment is unfiltered.
func (q QueryFilters) Get(segment string) *SegmentFilter {
	for i := range q.Filters {
		if q.Filters[i].Segment == segment {
			return &q.Filters[i]
		}
	}
	return nil
}

// HasSegment reports whether any filter targets segment.
func (q QueryFilters) HasSegment(segment string) bool {
	return q.Get(segment) != nil
}

// RemoveSegment returns a copy of q without any filter on segment.
func (q QueryFilters) RemoveSegment(segment string) QueryFilters {
	out := QueryFilters{Logic: q.Logic, Filters: make([]SegmentFilter, 0, len(q.Filters))}
	for _, f := range q.Filters {
		if f.Segment != segment {
			out.Filters = append(out.Filters, f)
		}
	}
	return out
}

// MergeSegment returns a copy of q with sf added, replacing any existing
// filter on the same segment.
func (q QueryFilters) MergeSegment(sf SegmentFilter) QueryFilters {
	out := q.RemoveSegment(sf.Segment)
	out.Filters = append(out.Filters, sf)
	return out
}

// Validate checks the DSL invariants: known segment, kind consistent with the
// segment, operators and value types consistent with the kind, at least one
// rule, and AND/OR logic tokens only.
func (q QueryFilters) Validate() error {
	if q.Logic != LogicAnd && q.Logic != LogicOr {
		return fmt.Errorf("invalid logic %q: must be AND or OR", q.Logic)
	}
	for _, f := range q.Filters {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a single segment filter against the DSL invariants.
func (f SegmentFilter) Validate() error {
	if !KnownSegment(f.Segment) {
		return fmt.Errorf("invalid segment %q: must be one of %s", f.Segment, strings.Join(AllSegments(), ", "))
	}
	if f.Logic != LogicAnd && f.Logic != LogicOr {
		return fmt.Errorf("segment %q: invalid logic %q: must be AND or OR", f.Segment, f.Logic)
	}
	switch f.Kind {
	case KindText:
		if !textSegments[f.Segment] {
			return fmt.Errorf("segment %q is numeric but type is %q", f.Segment, f.Kind)
		}
	case KindNumeric:
		if !numericSegments[f.Segment] {
			return fmt.Errorf("segment %q is text but type is %q", f.Segment, f.Kind)
		}
	default:
		return fmt.Errorf("segment %q: invalid type %q: must be text or numeric", f.Segment, f.Kind)
	}
	if len(f.Rules) == 0 {
		return fmt.Errorf("segment %q: at least one rule must be provided", f.Segment)
	}
	for _, r := range f.Rules {
		if err := r.validateFor(f.Segment, f.Kind); err != nil {
			return err
		}
	}
	return nil
}

func (r Rule) validateFor(segment string, kind Kind) error {
	switch kind {
	case KindText:
		if !textOps[r.Op] {
			return fmt.Errorf("segment %q: operator %q not allowed for text segments", segment, r.Op)
		}
		if _, ok := r.Value.(string); !ok {
			return fmt.Errorf("segment %q: value must be a string, got %T", segment, r.Value)
		}
	case KindNumeric:
		if !numericOps[r.Op] {
			return fmt.Errorf("segment %q: operator %q not allowed for numeric segments", segment, r.Op)
		}
		if _, ok := NumericValue(r.Value); !ok {
			return fmt.Errorf("segment %q: value must be a number, got %T", segment, r.Value)
		}
	}
	return nil
}

// NumericValue coerces a rule value decoded from JSON or built in code to a
// float64.
func NumericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// ValueKey renders a rule value the way exclusion triples compare it:
// strings verbatim, numbers without a trailing ".0" when integral.
func ValueKey(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1e15 {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	}
	return fmt.Sprintf("%v", v)
}

// Matches reports whether a rule on segment matches the exclusion triple.
func (e ExcludedFilterValue) Matches(segment string, r Rule) bool {
	return e.Segment == segment && e.Op == r.Op && ValueKey(e.Value) == ValueKey(r.Value)
}
