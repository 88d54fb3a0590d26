// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/4d11/company-search/filters"
	"github.com/4d11/company-search/llm"
	"github.com/4d11/company-search/metrics"
	"github.com/4d11/company-search/prompts"
	"github.com/4d11/company-search/store"
)

// explainCompany is the per-company record handed to the model.
type explainCompany struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Industries     []string `json:"industries"`
	TargetMarkets  []string `json:"target_markets"`
	BusinessModels []string `json:"business_models"`
	RevenueModels  []string `json:"revenue_models"`
	Location       string   `json:"location,omitempty"`
	Stage          string   `json:"stage,omitempty"`
	FundingAmount  *int64   `json:"funding_amount"`
	EmployeeCount  *int64   `json:"employee_count"`
}

// explanationItem is one entry of the model's response array.
type explanationItem struct {
	CompanyID   int64  `json:"company_id"`
	Explanation string `json:"explanation"`
}

// Explainer writes one short explanation per result: why this company for
// this query. One batched model call covers the cache misses; anything the
// model skips gets a deterministic rule-based write-up instead.
type Explainer struct {
	completer llm.Completer
	prompts   *llm.Prompts
	cache     *ExplanationCache // nil disables caching
	log       *logrus.Logger
	metrics   metrics.Metrics
}

func NewExplainer(completer llm.Completer, promptSet *llm.Prompts, cache *ExplanationCache, log *logrus.Logger, m metrics.Metrics) *Explainer {
	return &Explainer{
		completer: completer,
		prompts:   promptSet,
		cache:     cache,
		log:       log,
		metrics:   m,
	}
}

// ExplainResults returns an explanation for every result id, from cache,
// from one batched model call, or from the rule-based fallback, in that
// order of preference.
func (e *Explainer) ExplainResults(ctx context.Context, results []Result, query string, applied filters.QueryFilters, thesis *ThesisContext) map[int64]string {
	if len(results) == 0 {
		return map[int64]string{}
	}

	ids := make([]int64, 0, len(results))
	for _, result := range results {
		ids = append(ids, result.Company.ID)
	}

	explanations := map[int64]string{}
	if e.cache != nil {
		explanations = e.cache.GetBatch(ids, query)
		if len(explanations) > 0 {
			e.log.WithFields(logrus.Fields{
				"cached": len(explanations),
				"total":  len(results),
			}).Debug("explanation cache hits")
		}
	}

	var missing []Result
	for _, result := range results {
		if _, ok := explanations[result.Company.ID]; !ok {
			missing = append(missing, result)
		}
	}
	if len(missing) == 0 {
		return explanations
	}

	generated := e.generate(ctx, missing, query, applied)
	if e.cache != nil && len(generated) > 0 {
		e.cache.SetBatch(generated, query)
	}
	for id, explanation := range generated {
		explanations[id] = explanation
	}

	// Whatever the model failed to cover still gets an explanation.
	// Fallbacks are not cached; a later attempt may do better.
	for _, result := range missing {
		if _, ok := explanations[result.Company.ID]; !ok {
			explanations[result.Company.ID] = fallbackExplanation(result, applied, thesis)
		}
	}
	return explanations
}

// generate runs the single batched model call for the given results and
// returns whatever usable per-company explanations came back, keyed by
// company id. Ids the model invented are dropped.
func (e *Explainer) generate(ctx context.Context, results []Result, query string, applied filters.QueryFilters) map[int64]string {
	records := make([]explainCompany, 0, len(results))
	requested := make(map[int64]bool, len(results))
	for _, result := range results {
		records = append(records, explainRecord(result.Company))
		requested[result.Company.ID] = true
	}

	companiesJSON, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		e.log.WithError(err).Warn("failed to serialize companies for explanation prompt")
		e.metrics.IncrementPipelineFallbacks("explain")
		return nil
	}

	system, err := e.prompts.Format(prompts.PromptExplainCompaniesSystem, nil)
	if err != nil {
		e.log.WithError(err).Warn("failed to render explainer system prompt")
		e.metrics.IncrementPipelineFallbacks("explain")
		return nil
	}
	user, err := e.prompts.Format(prompts.PromptExplainCompaniesUser, map[string]any{
		"Query":         query,
		"FilterSummary": appliedFilterSummary(applied),
		"CompaniesJSON": string(companiesJSON),
	})
	if err != nil {
		e.log.WithError(err).Warn("failed to render explainer user prompt")
		e.metrics.IncrementPipelineFallbacks("explain")
		return nil
	}

	// No response schema here: the model answers with a JSON array, and
	// structured-output modes only accept object roots.
	start := time.Now()
	completion, err := e.completer.Complete(ctx, llm.CompletionRequest{
		System:      system,
		User:        user,
		MaxTokens:   4096,
		Temperature: pipelineTemperature,
	})
	e.metrics.ObserveLLMRequestDuration("explain", time.Since(start).Seconds())
	if err != nil {
		e.metrics.IncrementLLMRequests("explain", "error")
		e.metrics.IncrementPipelineFallbacks("explain")
		e.log.WithError(err).Warn("batch explanation failed, using rule-based fallbacks")
		return nil
	}
	e.metrics.IncrementLLMRequests("explain", "ok")

	items, err := parseExplanationItems(completion)
	if err != nil {
		e.metrics.IncrementPipelineFallbacks("explain")
		e.log.WithError(err).Warn("unparseable explanation response, using rule-based fallbacks")
		return nil
	}

	generated := make(map[int64]string, len(items))
	for _, item := range items {
		explanation := strings.TrimSpace(item.Explanation)
		if explanation == "" {
			continue
		}
		if !requested[item.CompanyID] {
			e.log.WithField("company_id", item.CompanyID).Debug("explanation for unrequested company dropped")
			continue
		}
		generated[item.CompanyID] = explanation
	}
	return generated
}

// parseExplanationItems accepts the documented array shape plus the wrapper
// shapes models actually produce: an object keyed "explanations" or
// "companies", or a bare single-item object.
func parseExplanationItems(completion string) ([]explanationItem, error) {
	var items []explanationItem
	if err := unmarshalCompletion(completion, &items); err == nil {
		return items, nil
	}

	var wrapper map[string]json.RawMessage
	if err := unmarshalCompletion(completion, &wrapper); err != nil {
		return nil, err
	}
	for _, key := range []string{"explanations", "companies"} {
		raw, ok := wrapper[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &items); err == nil {
			return items, nil
		}
	}

	var single explanationItem
	if err := unmarshalCompletion(completion, &single); err == nil && single.CompanyID != 0 && single.Explanation != "" {
		return []explanationItem{single}, nil
	}
	return nil, errors.New("unrecognized explanation payload shape")
}

func explainRecord(c store.Company) explainCompany {
	record := explainCompany{
		ID:             c.ID,
		Name:           c.CompanyName,
		Description:    "No description available",
		Industries:     c.Industries,
		TargetMarkets:  c.TargetMarkets,
		BusinessModels: c.BusinessModels,
		RevenueModels:  c.RevenueModels,
	}
	if c.Description.Valid && c.Description.String != "" {
		record.Description = c.Description.String
	}
	if c.Location.Valid {
		record.Location = c.Location.String
	} else if c.City.Valid {
		record.Location = c.City.String
	}
	if c.FundingStage.Valid {
		record.Stage = c.FundingStage.String
	}
	if c.FundingAmount.Valid {
		amount := c.FundingAmount.Int64
		record.FundingAmount = &amount
	}
	if c.EmployeeCount.Valid {
		count := c.EmployeeCount.Int64
		record.EmployeeCount = &count
	}
	return record
}

// appliedFilterSummary renders the applied filters for the prompt, with
// readable labels and collapsed numeric ranges.
func appliedFilterSummary(qf filters.QueryFilters) string {
	var parts []string
	for _, sf := range qf.Filters {
		if len(sf.Rules) == 0 {
			continue
		}
		switch sf.Segment {
		case filters.SegmentLocation:
			parts = append(parts, "Location: "+ruleValueList(sf.Rules))
		case filters.SegmentIndustries:
			parts = append(parts, "Industries: "+ruleValueList(sf.Rules))
		case filters.SegmentTargetMarkets:
			parts = append(parts, "Target Markets: "+ruleValueList(sf.Rules))
		case filters.SegmentFundingStage:
			parts = append(parts, "Stage: "+ruleValueList(sf.Rules))
		case filters.SegmentBusinessModels:
			parts = append(parts, "Business Models: "+ruleValueList(sf.Rules))
		case filters.SegmentRevenueModels:
			parts = append(parts, "Revenue Models: "+ruleValueList(sf.Rules))
		case filters.SegmentEmployeeCount:
			if summary := numericRangeSummary(sf.Rules, "Employees: ", func(v float64) string {
				return filters.ValueKey(v)
			}); summary != "" {
				parts = append(parts, summary)
			}
		case filters.SegmentFundingAmount:
			if summary := numericRangeSummary(sf.Rules, "Funding: ", formatCurrency); summary != "" {
				parts = append(parts, summary)
			}
		}
	}
	if len(parts) == 0 {
		return "No specific filters applied"
	}
	return strings.Join(parts, "; ")
}

func ruleValueList(rules []filters.Rule) string {
	values := make([]string, 0, len(rules))
	for _, rule := range rules {
		values = append(values, filters.ValueKey(rule.Value))
	}
	return strings.Join(values, ", ")
}

// numericRangeSummary collapses a numeric segment's bound rules into
// "label min-max", "label min+", or "label <max".
func numericRangeSummary(rules []filters.Rule, label string, format func(float64) string) string {
	var lower, upper *float64
	for _, rule := range rules {
		value, ok := filters.NumericValue(rule.Value)
		if !ok {
			continue
		}
		switch rule.Op {
		case filters.OpGT, filters.OpGTE:
			if lower == nil {
				v := value
				lower = &v
			}
		case filters.OpLT, filters.OpLTE:
			if upper == nil {
				v := value
				upper = &v
			}
		}
	}

	switch {
	case lower != nil && upper != nil:
		return label + format(*lower) + "-" + format(*upper)
	case lower != nil:
		return label + format(*lower) + "+"
	case upper != nil:
		return label + "<" + format(*upper)
	}
	return ""
}

// --- rule-based fallback ---

// fallbackExplanation composes a deterministic explanation from the filters
// the company actually matched, the engine score, and the thesis context.
func fallbackExplanation(result Result, applied filters.QueryFilters, thesis *ThesisContext) string {
	var parts []string

	if lead := thesisFitSentence(result.Company, thesis); lead != "" {
		parts = append(parts, lead)
	}

	var matched []string
	for _, sf := range applied.Filters {
		if description := describeSegmentMatch(sf, result.Company); description != "" {
			matched = append(matched, description)
		}
	}
	if len(matched) > 0 {
		parts = append(parts, "Matched filters: "+strings.Join(matched, ", "))
	}

	score := normalizeScore(result.Score)
	parts = append(parts, fmt.Sprintf("Semantic similarity: %.2f (%s relevance to query)", score, relevanceBand(score)))

	return strings.Join(parts, ". ") + "."
}

// describeSegmentMatch explains how the company satisfies one segment
// filter, or returns "" when it does not.
func describeSegmentMatch(sf filters.SegmentFilter, c store.Company) string {
	var matched []string
	for _, rule := range sf.Rules {
		if !ruleMatchesCompany(sf, rule, c) {
			continue
		}
		matched = append(matched, formatOperator(rule.Op)+" "+formatFilterValue(rule.Value, sf.Segment))
	}
	if len(matched) == 0 {
		return ""
	}

	connector := " and "
	if sf.Logic == filters.LogicOr {
		connector = " or "
	}
	return sf.Segment + " " + strings.Join(matched, connector)
}

func ruleMatchesCompany(sf filters.SegmentFilter, rule filters.Rule, c store.Company) bool {
	if sf.Kind == filters.KindNumeric {
		companyValue, ok := numericCompanyValue(sf.Segment, c)
		if !ok {
			return false
		}
		filterValue, ok := filters.NumericValue(rule.Value)
		if !ok {
			return false
		}
		switch rule.Op {
		case filters.OpEQ:
			return companyValue == filterValue
		case filters.OpNEQ:
			return companyValue != filterValue
		case filters.OpGT:
			return companyValue > filterValue
		case filters.OpGTE:
			return companyValue >= filterValue
		case filters.OpLT:
			return companyValue < filterValue
		case filters.OpLTE:
			return companyValue <= filterValue
		}
		return false
	}

	value := filters.ValueKey(rule.Value)
	if list, ok := listCompanyValue(sf.Segment, c); ok {
		contains := false
		for _, item := range list {
			if item == value {
				contains = true
				break
			}
		}
		switch rule.Op {
		case filters.OpEQ:
			return contains
		case filters.OpNEQ:
			return !contains
		}
		return false
	}

	single, ok := singleCompanyValue(sf.Segment, c)
	if !ok {
		return false
	}
	switch rule.Op {
	case filters.OpEQ:
		return single == value
	case filters.OpNEQ:
		return single != value
	}
	return false
}

func listCompanyValue(segment string, c store.Company) ([]string, bool) {
	switch segment {
	case filters.SegmentIndustries:
		return c.Industries, true
	case filters.SegmentTargetMarkets:
		return c.TargetMarkets, true
	case filters.SegmentBusinessModels:
		return c.BusinessModels, true
	case filters.SegmentRevenueModels:
		return c.RevenueModels, true
	}
	return nil, false
}

func singleCompanyValue(segment string, c store.Company) (string, bool) {
	switch segment {
	case filters.SegmentLocation:
		if c.Location.Valid {
			return c.Location.String, true
		}
		if c.City.Valid {
			return c.City.String, true
		}
	case filters.SegmentFundingStage:
		if c.FundingStage.Valid {
			return c.FundingStage.String, true
		}
	}
	return "", false
}

func numericCompanyValue(segment string, c store.Company) (float64, bool) {
	switch segment {
	case filters.SegmentEmployeeCount:
		if c.EmployeeCount.Valid {
			return float64(c.EmployeeCount.Int64), true
		}
	case filters.SegmentFundingAmount:
		if c.FundingAmount.Valid {
			return float64(c.FundingAmount.Int64), true
		}
	case filters.SegmentStageOrder:
		if c.StageOrder.Valid {
			return float64(c.StageOrder.Int64), true
		}
	}
	return 0, false
}

func formatOperator(op filters.Op) string {
	switch op {
	case filters.OpEQ:
		return "="
	case filters.OpNEQ:
		return "≠"
	case filters.OpGT:
		return ">"
	case filters.OpGTE:
		return ">="
	case filters.OpLT:
		return "<"
	case filters.OpLTE:
		return "<="
	}
	return string(op)
}

func formatFilterValue(value any, segment string) string {
	if segment == filters.SegmentFundingAmount {
		if amount, ok := filters.NumericValue(value); ok {
			return formatCurrency(amount)
		}
	}
	return filters.ValueKey(value)
}

func formatCurrency(amount float64) string {
	switch {
	case amount >= 1e6:
		return fmt.Sprintf("$%.1fM", amount/1e6)
	case amount >= 1e3:
		return fmt.Sprintf("$%.1fK", amount/1e3)
	default:
		return "$" + filters.ValueKey(amount)
	}
}

// normalizeScore maps an engine score to [0,1]. Hybrid scores arrive as
// cosine+1 in [0,2]; pure kNN scores arrive already within [0,1].
func normalizeScore(score float64) float64 {
	if score > 1 {
		score--
	}
	return math.Max(0, math.Min(1, score))
}

func relevanceBand(normalized float64) string {
	switch {
	case normalized >= 0.75:
		return "high"
	case normalized >= 0.35:
		return "good"
	default:
		return "some"
	}
}

// thesisFitSentence leads the fallback with the thesis angle: which
// complementary area or core concept this company lines up with.
func thesisFitSentence(c store.Company, thesis *ThesisContext) string {
	if thesis == nil {
		return ""
	}

	haystack := companyHaystack(c)

	switch thesis.Type {
	case ThesisTypePortfolio:
		for _, area := range thesis.ComplementaryAreas {
			if mentionsPhrase(haystack, area) {
				return fmt.Sprintf("Strategic fit: complements the portfolio in %s", area)
			}
		}
	case ThesisTypeConceptual:
		if thesis.CoreConcepts == nil {
			return ""
		}
		var concepts []string
		concepts = append(concepts, thesis.CoreConcepts.Technology...)
		concepts = append(concepts, thesis.CoreConcepts.Industries...)
		concepts = append(concepts, thesis.CoreConcepts.BusinessModel...)

		var hit []string
		for _, concept := range concepts {
			if mentionsPhrase(haystack, concept) {
				hit = append(hit, concept)
				if len(hit) == 2 {
					break
				}
			}
		}
		switch len(hit) {
		case 1:
			return fmt.Sprintf("Strategic fit: matches the thesis concept %s", hit[0])
		case 2:
			return fmt.Sprintf("Strategic fit: matches the thesis concepts %s and %s", hit[0], hit[1])
		}
	}
	return ""
}

func companyHaystack(c store.Company) string {
	fields := []string{c.CompanyName}
	if c.Description.Valid {
		fields = append(fields, c.Description.String)
	}
	fields = append(fields, c.Industries...)
	fields = append(fields, c.TargetMarkets...)
	fields = append(fields, c.BusinessModels...)
	fields = append(fields, c.RevenueModels...)
	return strings.ToLower(strings.Join(fields, " "))
}

// mentionsPhrase matches the whole phrase, or failing that any of its
// non-trivial tokens, against the lowercased haystack.
func mentionsPhrase(haystack, phrase string) bool {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return false
	}
	if strings.Contains(haystack, phrase) {
		return true
	}
	for _, token := range strings.Fields(phrase) {
		if len(token) >= 4 && strings.Contains(haystack, token) {
			return true
		}
	}
	return false
}
