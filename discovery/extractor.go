// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package discovery

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/4d11/company-search/es"
	"github.com/4d11/company-search/filters"
	"github.com/4d11/company-search/llm"
	"github.com/4d11/company-search/metrics"
	"github.com/4d11/company-search/prompts"
	"github.com/4d11/company-search/store"
)

// ValueCanonicalizer resolves raw extracted strings to canonical vocabulary
// values. Implemented by es.Canonicalizer.
type ValueCanonicalizer interface {
	CanonicalizeBatch(ctx context.Context, segment string, values []string, threshold float64) map[string][]string
}

// StageStore supplies the funding-stage vocabulary for exact validation.
type StageStore interface {
	FundingStages(ctx context.Context) ([]store.Stage, error)
}

// ExtractionLog records raw values that failed canonicalization so admins
// can review vocabulary gaps.
type ExtractionLog interface {
	UpsertUnknownExtraction(ctx context.Context, rawValue, segment string) error
}

// Extractor turns a natural-language query into validated QueryFilters.
// Every extracted text value is resolved against the vocabulary before it is
// allowed into a filter; values that resolve to nothing are dropped and
// logged for review.
type Extractor struct {
	completer     llm.Completer
	prompts       *llm.Prompts
	canonicalizer ValueCanonicalizer
	stages        StageStore
	extractions   ExtractionLog
	log           *logrus.Logger
	metrics       metrics.Metrics
}

func NewExtractor(
	completer llm.Completer,
	promptSet *llm.Prompts,
	canonicalizer ValueCanonicalizer,
	stages StageStore,
	extractions ExtractionLog,
	log *logrus.Logger,
	m metrics.Metrics,
) *Extractor {
	return &Extractor{
		completer:     completer,
		prompts:       promptSet,
		canonicalizer: canonicalizer,
		stages:        stages,
		extractions:   extractions,
		log:           log,
		metrics:       m,
	}
}

// rawQueryFilters mirrors the wire shape of the model response with loose
// logic fields, so common model mistakes can be patched before validation.
type rawQueryFilters struct {
	Logic   string             `json:"logic"`
	Filters []rawSegmentFilter `json:"filters"`
}

type rawSegmentFilter struct {
	Segment string         `json:"segment"`
	Kind    string         `json:"type"`
	Logic   string         `json:"logic"`
	Rules   []filters.Rule `json:"rules"`
}

// Extract never fails: any model, validation, or engine problem yields empty
// filters and the search proceeds with user filters alone.
func (e *Extractor) Extract(ctx context.Context, query string, excluded []filters.ExcludedFilterValue) filters.QueryFilters {
	extracted, ok := e.callModel(ctx, query)
	if !ok {
		return filters.Empty()
	}

	for i := range extracted.Filters {
		sf := &extracted.Filters[i]
		if sf.Kind != filters.KindText {
			continue
		}
		if sf.Segment == filters.SegmentFundingStage {
			sf.Rules = e.validateFundingStages(ctx, sf.Rules)
			continue
		}
		sf.Rules = e.canonicalizeRules(ctx, sf.Segment, sf.Rules)
	}

	dropExcludedRules(&extracted, excluded)

	kept := extracted.Filters[:0]
	for _, sf := range extracted.Filters {
		if len(sf.Rules) > 0 {
			kept = append(kept, sf)
		}
	}
	extracted.Filters = kept

	return extracted
}

// callModel runs the extraction completion and patches the usual mistakes
// before strict validation. A top-level failure here means the response is
// unusable; segment-level problems are repaired in place.
func (e *Extractor) callModel(ctx context.Context, query string) (filters.QueryFilters, bool) {
	system, err := e.prompts.Format(prompts.PromptExtractFiltersSystem, nil)
	if err != nil {
		e.log.WithError(err).Warn("failed to render extraction system prompt")
		e.metrics.IncrementPipelineFallbacks("extract_filters")
		return filters.Empty(), false
	}
	user, err := e.prompts.Format(prompts.PromptExtractFiltersUser, map[string]any{"Query": query})
	if err != nil {
		e.log.WithError(err).Warn("failed to render extraction user prompt")
		e.metrics.IncrementPipelineFallbacks("extract_filters")
		return filters.Empty(), false
	}

	start := time.Now()
	completion, err := e.completer.Complete(ctx, llm.CompletionRequest{
		System:      system,
		User:        user,
		MaxTokens:   1024,
		Temperature: pipelineTemperature,
	})
	e.metrics.ObserveLLMRequestDuration("extract_filters", time.Since(start).Seconds())
	if err != nil {
		e.metrics.IncrementLLMRequests("extract_filters", "error")
		e.metrics.IncrementPipelineFallbacks("extract_filters")
		e.log.WithError(err).Warn("filter extraction failed, proceeding without extracted filters")
		return filters.Empty(), false
	}
	e.metrics.IncrementLLMRequests("extract_filters", "ok")

	var raw rawQueryFilters
	if err := unmarshalCompletion(completion, &raw); err != nil {
		e.metrics.IncrementPipelineFallbacks("extract_filters")
		e.log.WithError(err).Warn("unparseable extraction response, proceeding without extracted filters")
		return filters.Empty(), false
	}

	// Models regularly leak an operator into a segment's logic slot; patch
	// to AND rather than rejecting the whole extraction.
	result := filters.QueryFilters{
		Logic:   filters.Logic(raw.Logic),
		Filters: make([]filters.SegmentFilter, 0, len(raw.Filters)),
	}
	for _, sf := range raw.Filters {
		logic := filters.Logic(sf.Logic)
		if logic != filters.LogicAnd && logic != filters.LogicOr {
			e.log.WithFields(logrus.Fields{
				"segment": sf.Segment,
				"logic":   sf.Logic,
			}).Warn("invalid segment logic in extraction, fixing to AND")
			logic = filters.LogicAnd
		}
		result.Filters = append(result.Filters, filters.SegmentFilter{
			Segment: sf.Segment,
			Kind:    filters.Kind(sf.Kind),
			Logic:   logic,
			Rules:   sf.Rules,
		})
	}

	if err := result.Validate(); err != nil {
		e.metrics.IncrementPipelineFallbacks("extract_filters")
		e.log.WithError(err).Warn("invalid extraction response, proceeding without extracted filters")
		return filters.Empty(), false
	}

	return result, true
}

// validateFundingStages matches each value against the stage vocabulary by
// exact case-insensitive comparison, replacing it with the canonical name.
// Unmatched values are dropped; duplicates collapse to one rule.
func (e *Extractor) validateFundingStages(ctx context.Context, rules []filters.Rule) []filters.Rule {
	stages, err := e.stages.FundingStages(ctx)
	if err != nil {
		e.log.WithError(err).Warn("failed to load funding stages, dropping stage rules")
		return nil
	}

	validated := make([]filters.Rule, 0, len(rules))
	seen := map[string]bool{}
	for _, rule := range rules {
		value := filters.ValueKey(rule.Value)
		matched := ""
		for _, stage := range stages {
			if strings.EqualFold(stage.Name, value) {
				matched = stage.Name
				break
			}
		}
		if matched == "" || seen[matched] {
			continue
		}
		validated = append(validated, filters.Rule{Op: rule.Op, Value: matched})
		seen[matched] = true
	}
	return validated
}

// canonicalizeRules resolves every value of one segment in a single engine
// round trip. Each input that resolves expands to one rule per canonical
// match, deduplicated within the segment; inputs that resolve to nothing are
// recorded in the unknown-extraction log and dropped.
func (e *Extractor) canonicalizeRules(ctx context.Context, segment string, rules []filters.Rule) []filters.Rule {
	values := make([]string, 0, len(rules))
	for _, rule := range rules {
		values = append(values, filters.ValueKey(rule.Value))
	}
	matches := e.canonicalizer.CanonicalizeBatch(ctx, segment, values, es.DefaultThreshold)

	validated := make([]filters.Rule, 0, len(rules))
	seen := map[string]bool{}
	for _, rule := range rules {
		value := filters.ValueKey(rule.Value)
		canonical := matches[value]
		if len(canonical) == 0 {
			e.log.WithFields(logrus.Fields{
				"segment": segment,
				"value":   value,
			}).Info("no vocabulary match for extracted value, skipping")
			if err := e.extractions.UpsertUnknownExtraction(ctx, value, segment); err != nil {
				e.log.WithError(err).Warn("failed to record unknown extraction")
			}
			continue
		}
		for _, match := range canonical {
			if seen[match] {
				continue
			}
			validated = append(validated, filters.Rule{Op: rule.Op, Value: match})
			seen[match] = true
		}
	}

	// A company tagged with a SaaS specialization always carries the parent
	// category, so queries for the child must also accept the parent.
	if segment == filters.SegmentBusinessModels {
		hasSpecialized := false
		for _, rule := range validated {
			if rule.Value == "Vertical SaaS" || rule.Value == "Horizontal SaaS" {
				hasSpecialized = true
				break
			}
		}
		if hasSpecialized && !seen["SaaS"] {
			validated = append(validated, filters.Rule{Op: filters.OpEQ, Value: "SaaS"})
		}
	}

	return validated
}

// dropExcludedRules removes every rule matching a dismissed
// (segment, op, value) triple.
func dropExcludedRules(qf *filters.QueryFilters, excluded []filters.ExcludedFilterValue) {
	if len(excluded) == 0 {
		return
	}
	for i := range qf.Filters {
		sf := &qf.Filters[i]
		kept := sf.Rules[:0]
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
		sf.Rules = kept
	}
}
