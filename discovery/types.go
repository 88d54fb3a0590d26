// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package discovery

import (
	"github.com/4d11/company-search/filters"
	"github.com/4d11/company-search/store"
)

// Query classes. Everything that is not a portfolio query is an explicit
// search; conceptual theses are a flavor of explicit search.
const (
	ClassExplicitSearch    = "explicit_search"
	ClassPortfolioAnalysis = "portfolio_analysis"
)

// Classification is the classifier's verdict on a query. It is advisory:
// downstream stages treat it as a routing hint, never as a hard gate.
type Classification struct {
	Class        string
	IsConceptual bool
	Confidence   float64
	Reasoning    string
}

// Thesis context type tags.
const (
	ThesisTypePortfolio  = "portfolio"
	ThesisTypeConceptual = "conceptual"
)

// CoreConcepts decomposes an abstract thesis into searchable terms.
type CoreConcepts struct {
	Technology    []string `json:"technology"`
	BusinessModel []string `json:"business_model"`
	Industries    []string `json:"industries"`
	UseCase       string   `json:"use_case"`
}

// ThesisContext is the strategic analysis returned alongside thesis-query
// results. It is a tagged union: portfolio contexts carry Themes, Gaps,
// ComplementaryAreas and StrategicReasoning; conceptual contexts carry
// CoreConcepts and StrategicFocus. Purely informational, returned verbatim.
type ThesisContext struct {
	Type               string        `json:"type"`
	Summary            string        `json:"summary"`
	Themes             []string      `json:"themes,omitempty"`
	Gaps               []string      `json:"gaps,omitempty"`
	ComplementaryAreas []string      `json:"complementary_areas,omitempty"`
	StrategicReasoning string        `json:"strategic_reasoning,omitempty"`
	CoreConcepts       *CoreConcepts `json:"core_concepts,omitempty"`
	StrategicFocus     string        `json:"strategic_focus,omitempty"`
}

// Result pairs a hydrated company with its engine score and explanation.
type Result struct {
	Company     store.Company
	Score       float64
	Explanation string
}

// SearchRequest is one orchestrated search.
type SearchRequest struct {
	Query          string
	UserFilters    *filters.QueryFilters
	ExcludedValues []filters.ExcludedFilterValue
	Size           int
}

// SearchResponse carries the ranked results, the filters that were actually
// applied after extraction and merging, and the thesis context when the
// query took a thesis path.
type SearchResponse struct {
	Results        []Result
	AppliedFilters filters.QueryFilters
	ThesisContext  *ThesisContext
}
