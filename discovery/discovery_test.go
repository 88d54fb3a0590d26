// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package discovery

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/4d11/company-search/es"
	"github.com/4d11/company-search/llm"
	"github.com/4d11/company-search/metrics"
	"github.com/4d11/company-search/prompts"
	"github.com/4d11/company-search/store"
)

// Stage names used to script the fake completer.
const (
	stageClassify   = "classify"
	stagePortfolio  = "portfolio"
	stageConceptual = "conceptual"
	stageExtract    = "extract"
	stageRewrite    = "rewrite"
	stageExplain    = "explain"
)

// Canned stage replies shared across tests.
const (
	classifyExplicit   = `{"classification": "explicit_search", "is_conceptual": false, "confidence": 0.9, "reasoning": "plain search"}`
	classifyPortfolio  = `{"classification": "portfolio_analysis", "is_conceptual": false, "confidence": 0.95, "reasoning": "describes holdings"}`
	classifyConceptual = `{"classification": "explicit_search", "is_conceptual": true, "confidence": 0.85, "reasoning": "abstract thesis"}`
	extractNothing     = `{"logic": "AND", "filters": []}`
)

// scriptedCompleter returns one canned completion per pipeline stage and
// records every request it saw.
type scriptedCompleter struct {
	replies  map[string]string
	failures map[string]error
	requests []llm.CompletionRequest
}

func newScriptedCompleter() *scriptedCompleter {
	return &scriptedCompleter{
		replies:  map[string]string{},
		failures: map[string]error{},
	}
}

func (s *scriptedCompleter) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	s.requests = append(s.requests, req)
	stage := completionStage(req)
	if err, ok := s.failures[stage]; ok {
		return "", err
	}
	if reply, ok := s.replies[stage]; ok {
		return reply, nil
	}
	return "", errors.Errorf("no scripted reply for stage %q", stage)
}

// completionStage identifies the pipeline stage behind a request, by schema
// name where one is set and by prompt content otherwise.
func completionStage(req llm.CompletionRequest) string {
	switch req.SchemaName {
	case "query_classification":
		return stageClassify
	case "portfolio_analysis":
		return stagePortfolio
	case "thesis_expansion":
		return stageConceptual
	case "query_rewrite":
		return stageRewrite
	}
	if strings.Contains(req.User, "COMPANIES TO EXPLAIN") {
		return stageExplain
	}
	return stageExtract
}

func (s *scriptedCompleter) stageRequests(stage string) []llm.CompletionRequest {
	var matched []llm.CompletionRequest
	for _, req := range s.requests {
		if completionStage(req) == stage {
			matched = append(matched, req)
		}
	}
	return matched
}

type canonicalizeCall struct {
	segment string
	values  []string
}

// fakeCanonicalizer resolves values from a fixed segment -> raw -> canonical
// table.
type fakeCanonicalizer struct {
	matches map[string]map[string][]string
	calls   []canonicalizeCall
}

func (f *fakeCanonicalizer) CanonicalizeBatch(_ context.Context, segment string, values []string, _ float64) map[string][]string {
	f.calls = append(f.calls, canonicalizeCall{segment: segment, values: values})
	out := map[string][]string{}
	for _, value := range values {
		if canonical, ok := f.matches[segment][value]; ok {
			out[value] = canonical
		}
	}
	return out
}

type fakeStageStore struct {
	stages []store.Stage
	err    error
}

func (f *fakeStageStore) FundingStages(context.Context) ([]store.Stage, error) {
	return f.stages, f.err
}

type fakeExtractionLog struct {
	recorded []canonicalizeCall
	err      error
}

func (f *fakeExtractionLog) UpsertUnknownExtraction(_ context.Context, rawValue, segment string) error {
	f.recorded = append(f.recorded, canonicalizeCall{segment: segment, values: []string{rawValue}})
	return f.err
}

type fakeEngine struct {
	hits   []es.Hit
	err    error
	bodies []map[string]any
}

func (f *fakeEngine) SearchCompanies(_ context.Context, body map[string]any) ([]es.Hit, error) {
	f.bodies = append(f.bodies, body)
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

// fakeLoader mirrors the real store contract: passed order preserved,
// unknown ids dropped.
type fakeLoader struct {
	companies map[int64]store.Company
	err       error
	requested [][]int64
}

func (f *fakeLoader) CompaniesByIDs(_ context.Context, ids []int64) ([]store.Company, error) {
	f.requested = append(f.requested, ids)
	if f.err != nil {
		return nil, f.err
	}
	ordered := make([]store.Company, 0, len(ids))
	for _, id := range ids {
		if c, ok := f.companies[id]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered, nil
}

type fakeEmbedder struct {
	vector []float32
	err    error
	texts  []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.texts = append(f.texts, texts...)
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = f.vector
	}
	return vectors, nil
}

func (f *fakeEmbedder) Dimensions() int {
	return len(f.vector)
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testPrompts(t *testing.T) *llm.Prompts {
	t.Helper()
	promptSet, err := llm.NewPrompts(prompts.PromptsFolder)
	require.NoError(t, err)
	return promptSet
}

func testMetrics() metrics.Metrics {
	return metrics.NewMetrics(metrics.InstanceInfo{})
}

// testCompany builds a hydrated company with enough fields populated for
// explanations.
func testCompany(id int64, name string) store.Company {
	return store.Company{
		ID:            id,
		CompanyName:   name,
		Description:   sql.NullString{String: name + " builds developer tooling", Valid: true},
		City:          sql.NullString{String: "Berlin", Valid: true},
		Location:      sql.NullString{String: "Berlin", Valid: true},
		FundingStage:  sql.NullString{String: "Series A", Valid: true},
		StageOrder:    sql.NullInt64{Int64: 3, Valid: true},
		EmployeeCount: sql.NullInt64{Int64: 40, Valid: true},
		FundingAmount: sql.NullInt64{Int64: 5000000, Valid: true},
		Industries:    []string{"FinTech"},
		TargetMarkets: []string{"Enterprise"},
	}
}

// pipelineHarness wires a full orchestrator over fakes. Tests adjust the
// fakes before calling Search.
type pipelineHarness struct {
	completer *scriptedCompleter
	canonical *fakeCanonicalizer
	stages    *fakeStageStore
	unknowns  *fakeExtractionLog
	engine    *fakeEngine
	loader    *fakeLoader
	embedder  *fakeEmbedder
	orch      *Orchestrator
}

func newPipelineHarness(t *testing.T, completer *scriptedCompleter, conceptual bool) *pipelineHarness {
	t.Helper()

	log := testLogger()
	m := testMetrics()
	promptSet := testPrompts(t)

	harness := &pipelineHarness{
		completer: completer,
		canonical: &fakeCanonicalizer{matches: map[string]map[string][]string{}},
		stages:    &fakeStageStore{},
		unknowns:  &fakeExtractionLog{},
		engine:    &fakeEngine{},
		loader:    &fakeLoader{companies: map[int64]store.Company{}},
		embedder:  &fakeEmbedder{vector: []float32{0.1, 0.2, 0.3}},
	}

	harness.orch = NewOrchestrator(OrchestratorParams{
		Classifier: NewClassifier(completer, promptSet, log, m),
		Thesis:     NewThesisExpander(completer, promptSet, log, m),
		Extractor:  NewExtractor(completer, promptSet, harness.canonical, harness.stages, harness.unknowns, log, m),
		Rewriter:   NewRewriter(completer, promptSet, log, m),
		Explainer:  NewExplainer(completer, promptSet, NewExplanationCache(100, time.Hour, m), log, m),
		Embedder:   harness.embedder,
		Engine:     harness.engine,
		Store:      harness.loader,
		Config:     Config{ConceptualExpansion: conceptual},
		Log:        log,
		Metrics:    m,
	})
	return harness
}
