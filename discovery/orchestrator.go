// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package discovery

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/4d11/company-search/es"
	"github.com/4d11/company-search/filters"
	"github.com/4d11/company-search/llm"
	"github.com/4d11/company-search/metrics"
	"github.com/4d11/company-search/store"
)

// DefaultSize is how many results a search returns when the caller does not
// ask for a count.
const DefaultSize = 20

// CompanySearcher executes one engine query and returns ranked hits.
type CompanySearcher interface {
	SearchCompanies(ctx context.Context, body map[string]any) ([]es.Hit, error)
}

// CompanyLoader hydrates companies by id, preserving the order passed.
type CompanyLoader interface {
	CompaniesByIDs(ctx context.Context, ids []int64) ([]store.Company, error)
}

// Config toggles optional pipeline behavior.
type Config struct {
	// ConceptualExpansion gates the conceptual thesis path; portfolio
	// analysis is always on.
	ConceptualExpansion bool
}

// OrchestratorParams wires a pipeline together.
type OrchestratorParams struct {
	Classifier *Classifier
	Thesis     *ThesisExpander
	Extractor  *Extractor
	Rewriter   *Rewriter
	Explainer  *Explainer
	Embedder   llm.Embedder
	Engine     CompanySearcher
	Store      CompanyLoader
	Config     Config
	Log        *logrus.Logger
	Metrics    metrics.Metrics
}

// Orchestrator chains the full discovery pipeline: classification, thesis
// expansion, filter extraction, merging, rewriting, embedding, the hybrid
// engine query, hydration, and explanations. Model stages degrade to
// passthroughs on failure; only the engine and the store abort a search.
type Orchestrator struct {
	classifier *Classifier
	thesis     *ThesisExpander
	extractor  *Extractor
	rewriter   *Rewriter
	explainer  *Explainer
	embedder   llm.Embedder
	engine     CompanySearcher
	store      CompanyLoader
	config     Config
	log        *logrus.Logger
	metrics    metrics.Metrics
}

func NewOrchestrator(params OrchestratorParams) *Orchestrator {
	return &Orchestrator{
		classifier: params.Classifier,
		thesis:     params.Thesis,
		extractor:  params.Extractor,
		rewriter:   params.Rewriter,
		explainer:  params.Explainer,
		embedder:   params.Embedder,
		engine:     params.Engine,
		store:      params.Store,
		config:     params.Config,
		log:        params.Log,
		metrics:    params.Metrics,
	}
}

// Search runs one discovery query end to end. An empty query with empty
// filters is still a valid search: it returns the top companies unranked by
// semantics. Engine or store failures are the only errors returned.
func (o *Orchestrator) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	start := time.Now()

	originalQuery := strings.TrimSpace(req.Query)
	searchQuery := originalQuery

	var thesisContext *ThesisContext
	thesisPath := false

	if searchQuery != "" {
		classification := o.classifier.Classify(ctx, searchQuery)
		switch {
		case classification.Class == ClassPortfolioAnalysis:
			if analysis := o.thesis.AnalyzePortfolio(ctx, searchQuery); analysis != nil && strings.TrimSpace(analysis.ExpandedQuery) != "" {
				searchQuery = strings.TrimSpace(analysis.ExpandedQuery)
				thesisContext = analysis.Context()
				thesisPath = true
			}
		case classification.IsConceptual && o.config.ConceptualExpansion:
			if expansion := o.thesis.ExpandConceptual(ctx, searchQuery); expansion != nil && strings.TrimSpace(expansion.ExpandedQuery) != "" {
				searchQuery = strings.TrimSpace(expansion.ExpandedQuery)
				thesisContext = expansion.Context()
				thesisPath = true
			}
		}
	}

	// Extraction sees the expanded query so thesis-derived terms can become
	// filters too.
	extracted := filters.Empty()
	if searchQuery != "" {
		extracted = o.extractor.Extract(ctx, searchQuery, req.ExcludedValues)
	}

	applied := MergeFilters(req.UserFilters, extracted, req.ExcludedValues)

	// Thesis expansions already produce clean search text; everything else
	// gets the meta-text stripped before embedding.
	if searchQuery != "" && !thesisPath {
		searchQuery = o.rewriter.Rewrite(ctx, searchQuery, extracted)
	}

	var queryVector []float32
	if searchQuery != "" {
		vector, err := o.embedder.Embed(ctx, searchQuery)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Wrap(err, "search canceled while embedding query")
			}
			o.metrics.IncrementPipelineFallbacks("embed")
			o.log.WithError(err).Warn("query embedding failed, falling back to filter-only search")
		} else {
			queryVector = vector
		}
	}

	size := req.Size
	if size <= 0 {
		size = DefaultSize
	}

	body := es.BuildSearchBody(applied, queryVector, size)
	hits, err := o.engine.SearchCompanies(ctx, body)
	if err != nil {
		return nil, errors.Wrap(err, "company search failed")
	}

	ids := make([]int64, 0, len(hits))
	scores := make(map[int64]float64, len(hits))
	for _, hit := range hits {
		if _, seen := scores[hit.ID]; seen {
			continue
		}
		scores[hit.ID] = hit.Score
		ids = append(ids, hit.ID)
	}

	companies, err := o.store.CompaniesByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hydrate search results")
	}

	results := make([]Result, 0, len(companies))
	for _, company := range companies {
		results = append(results, Result{Company: company, Score: scores[company.ID]})
	}

	// Explanations key off the query as the user typed it; that is also the
	// cache key, so reworded repeats hit.
	explanations := o.explainer.ExplainResults(ctx, results, originalQuery, applied, thesisContext)
	for i := range results {
		results[i].Explanation = explanations[results[i].Company.ID]
	}

	o.log.WithFields(logrus.Fields{
		"query":        originalQuery,
		"thesis":       thesisPath,
		"result_count": len(results),
		"took_ms":      time.Since(start).Milliseconds(),
	}).Info("search completed")

	return &SearchResponse{
		Results:        results,
		AppliedFilters: applied,
		ThesisContext:  thesisContext,
	}, nil
}
