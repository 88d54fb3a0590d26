// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package discovery

import (
	"context"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/sirupsen/logrus"

	"github.com/4d11/company-search/llm"
	"github.com/4d11/company-search/metrics"
	"github.com/4d11/company-search/prompts"
)

// PortfolioAnalysis is the model's strategic read of a portfolio query:
// what the user holds, where the gaps are, and an expanded query describing
// complementary companies.
type PortfolioAnalysis struct {
	PortfolioSummary   string   `json:"portfolio_summary"`
	Themes             []string `json:"themes"`
	Gaps               []string `json:"gaps"`
	ComplementaryAreas []string `json:"complementary_areas"`
	ExpandedQuery      string   `json:"expanded_query"`
	StrategicReasoning string   `json:"strategic_reasoning"`
}

// Context converts the analysis into the output-only thesis context.
func (a *PortfolioAnalysis) Context() *ThesisContext {
	return &ThesisContext{
		Type:               ThesisTypePortfolio,
		Summary:            a.PortfolioSummary,
		Themes:             a.Themes,
		Gaps:               a.Gaps,
		ComplementaryAreas: a.ComplementaryAreas,
		StrategicReasoning: a.StrategicReasoning,
	}
}

// ThesisExpansion decomposes an abstract thesis into concrete searchable
// concepts and an expanded query.
type ThesisExpansion struct {
	ThesisSummary  string       `json:"thesis_summary"`
	CoreConcepts   CoreConcepts `json:"core_concepts"`
	ExpandedQuery  string       `json:"expanded_query"`
	StrategicFocus string       `json:"strategic_focus"`
}

// Context converts the expansion into the output-only thesis context.
func (e *ThesisExpansion) Context() *ThesisContext {
	concepts := e.CoreConcepts
	return &ThesisContext{
		Type:           ThesisTypeConceptual,
		Summary:        e.ThesisSummary,
		CoreConcepts:   &concepts,
		StrategicFocus: e.StrategicFocus,
	}
}

// ThesisExpander runs the two thesis flows. Both return nil on any failure;
// the pipeline then proceeds with the original query and no thesis context.
type ThesisExpander struct {
	completer llm.Completer
	prompts   *llm.Prompts
	log       *logrus.Logger
	metrics   metrics.Metrics
}

func NewThesisExpander(completer llm.Completer, promptSet *llm.Prompts, log *logrus.Logger, m metrics.Metrics) *ThesisExpander {
	return &ThesisExpander{
		completer: completer,
		prompts:   promptSet,
		log:       log,
		metrics:   m,
	}
}

// AnalyzePortfolio extracts holdings and gaps from a portfolio query and
// proposes complementary areas.
func (t *ThesisExpander) AnalyzePortfolio(ctx context.Context, query string) *PortfolioAnalysis {
	var analysis PortfolioAnalysis
	ok := t.expand(ctx, expandCall{
		stage:          "portfolio_analysis",
		systemTemplate: prompts.PromptAnalyzePortfolioSystem,
		userTemplate:   prompts.PromptAnalyzePortfolioUser,
		schemaName:     "portfolio_analysis",
		schema:         llm.NewJSONSchemaFromStruct[PortfolioAnalysis](),
		query:          query,
	}, &analysis)
	if !ok {
		return nil
	}

	t.log.WithFields(logrus.Fields{
		"themes":              analysis.Themes,
		"gaps":                analysis.Gaps,
		"complementary_areas": analysis.ComplementaryAreas,
		"expanded_query":      analysis.ExpandedQuery,
	}).Info("portfolio analyzed")

	return &analysis
}

// ExpandConceptual turns an abstract thesis into concrete search terms.
func (t *ThesisExpander) ExpandConceptual(ctx context.Context, query string) *ThesisExpansion {
	var expansion ThesisExpansion
	ok := t.expand(ctx, expandCall{
		stage:          "conceptual_expansion",
		systemTemplate: prompts.PromptExpandThesisSystem,
		userTemplate:   prompts.PromptExpandThesisUser,
		schemaName:     "thesis_expansion",
		schema:         llm.NewJSONSchemaFromStruct[ThesisExpansion](),
		query:          query,
	}, &expansion)
	if !ok {
		return nil
	}

	t.log.WithFields(logrus.Fields{
		"technology":     expansion.CoreConcepts.Technology,
		"industries":     expansion.CoreConcepts.Industries,
		"expanded_query": expansion.ExpandedQuery,
	}).Info("conceptual thesis expanded")

	return &expansion
}

type expandCall struct {
	stage          string
	systemTemplate string
	userTemplate   string
	schemaName     string
	schema         *jsonschema.Schema
	query          string
}

func (t *ThesisExpander) expand(ctx context.Context, call expandCall, out any) bool {
	system, err := t.prompts.Format(call.systemTemplate, nil)
	if err != nil {
		t.log.WithError(err).WithField("stage", call.stage).Warn("failed to render thesis system prompt")
		t.metrics.IncrementPipelineFallbacks(call.stage)
		return false
	}
	user, err := t.prompts.Format(call.userTemplate, map[string]any{"Query": call.query})
	if err != nil {
		t.log.WithError(err).WithField("stage", call.stage).Warn("failed to render thesis user prompt")
		t.metrics.IncrementPipelineFallbacks(call.stage)
		return false
	}

	start := time.Now()
	completion, err := t.completer.Complete(ctx, llm.CompletionRequest{
		System:      system,
		User:        user,
		Schema:      call.schema,
		SchemaName:  call.schemaName,
		MaxTokens:   1024,
		Temperature: pipelineTemperature,
	})
	t.metrics.ObserveLLMRequestDuration(call.stage, time.Since(start).Seconds())
	if err != nil {
		t.metrics.IncrementLLMRequests(call.stage, "error")
		t.metrics.IncrementPipelineFallbacks(call.stage)
		t.log.WithError(err).WithField("stage", call.stage).Warn("thesis expansion failed")
		return false
	}
	t.metrics.IncrementLLMRequests(call.stage, "ok")

	if err := unmarshalCompletion(completion, out); err != nil {
		t.metrics.IncrementPipelineFallbacks(call.stage)
		t.log.WithError(err).WithField("stage", call.stage).Warn("unparseable thesis expansion response")
		return false
	}

	return true
}
