// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/4d11/company-search/filters"
	"github.com/4d11/company-search/llm"
	"github.com/4d11/company-search/metrics"
	"github.com/4d11/company-search/prompts"
)

// rewriteSchema is the JSON object the model is asked to return.
type rewriteSchema struct {
	RewrittenQuery string `json:"rewritten_query"`
}

// Rewriter strips portfolio framing and meta-instructions from a query so
// the embedding sees only searchable terms. Thesis-expanded queries skip
// this stage; the expansion already produced clean search text.
type Rewriter struct {
	completer llm.Completer
	prompts   *llm.Prompts
	log       *logrus.Logger
	metrics   metrics.Metrics
}

func NewRewriter(completer llm.Completer, promptSet *llm.Prompts, log *logrus.Logger, m metrics.Metrics) *Rewriter {
	return &Rewriter{
		completer: completer,
		prompts:   promptSet,
		log:       log,
		metrics:   m,
	}
}

// Rewrite returns the query to embed. Any failure, and any empty rewrite,
// falls back to the original query unchanged.
func (r *Rewriter) Rewrite(ctx context.Context, query string, extracted filters.QueryFilters) string {
	system, err := r.prompts.Format(prompts.PromptRewriteQuerySystem, nil)
	if err != nil {
		r.log.WithError(err).Warn("failed to render rewriter system prompt")
		r.metrics.IncrementPipelineFallbacks("rewrite")
		return query
	}
	user, err := r.prompts.Format(prompts.PromptRewriteQueryUser, map[string]any{
		"Query":         query,
		"FilterSummary": extractedFilterSummary(extracted),
	})
	if err != nil {
		r.log.WithError(err).Warn("failed to render rewriter user prompt")
		r.metrics.IncrementPipelineFallbacks("rewrite")
		return query
	}

	start := time.Now()
	completion, err := r.completer.Complete(ctx, llm.CompletionRequest{
		System:      system,
		User:        user,
		Schema:      llm.NewJSONSchemaFromStruct[rewriteSchema](),
		SchemaName:  "query_rewrite",
		MaxTokens:   256,
		Temperature: pipelineTemperature,
	})
	r.metrics.ObserveLLMRequestDuration("rewrite", time.Since(start).Seconds())
	if err != nil {
		r.metrics.IncrementLLMRequests("rewrite", "error")
		r.metrics.IncrementPipelineFallbacks("rewrite")
		r.log.WithError(err).Warn("query rewrite failed, keeping original query")
		return query
	}
	r.metrics.IncrementLLMRequests("rewrite", "ok")

	var parsed rewriteSchema
	if err := unmarshalCompletion(completion, &parsed); err != nil {
		r.metrics.IncrementPipelineFallbacks("rewrite")
		r.log.WithError(err).Warn("unparseable rewrite response, keeping original query")
		return query
	}

	rewritten := strings.TrimSpace(parsed.RewrittenQuery)
	if rewritten == "" {
		r.metrics.IncrementPipelineFallbacks("rewrite")
		r.log.Warn("model returned an empty rewrite, keeping original query")
		return query
	}

	if rewritten != query {
		r.log.WithFields(logrus.Fields{
			"original":  query,
			"rewritten": rewritten,
		}).Info("query rewritten for semantic search")
	}
	return rewritten
}

// extractedFilterSummary renders one "segment: v1, v2" line per populated
// segment, giving the model filter context without raw JSON.
func extractedFilterSummary(qf filters.QueryFilters) string {
	var lines []string
	for _, sf := range qf.Filters {
		if len(sf.Rules) == 0 {
			continue
		}
		values := make([]string, 0, len(sf.Rules))
		for _, rule := range sf.Rules {
			values = append(values, filters.ValueKey(rule.Value))
		}
		lines = append(lines, fmt.Sprintf("%s: %s", sf.Segment, strings.Join(values, ", ")))
	}
	return strings.Join(lines, "\n")
}
