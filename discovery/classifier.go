// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package discovery

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/4d11/company-search/llm"
	"github.com/4d11/company-search/metrics"
	"github.com/4d11/company-search/prompts"
)

// pipelineTemperature keeps stage outputs consistent across retries of the
// same query.
const pipelineTemperature = 0.1

// classificationSchema is the JSON object the model is asked to return.
type classificationSchema struct {
	Classification string  `json:"classification"`
	IsConceptual   bool    `json:"is_conceptual"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
}

// Classifier routes queries between the explicit-search and
// portfolio-analysis paths.
type Classifier struct {
	completer llm.Completer
	prompts   *llm.Prompts
	log       *logrus.Logger
	metrics   metrics.Metrics
}

func NewClassifier(completer llm.Completer, promptSet *llm.Prompts, log *logrus.Logger, m metrics.Metrics) *Classifier {
	return &Classifier{
		completer: completer,
		prompts:   promptSet,
		log:       log,
		metrics:   m,
	}
}

// Classify never fails: any error yields the explicit-search fallback so the
// pipeline degrades to a plain search instead of aborting.
func (c *Classifier) Classify(ctx context.Context, query string) Classification {
	fallback := Classification{
		Class:        ClassExplicitSearch,
		IsConceptual: false,
		Confidence:   0.5,
		Reasoning:    "fallback",
	}

	system, err := c.prompts.Format(prompts.PromptClassifyQuerySystem, nil)
	if err != nil {
		c.log.WithError(err).Warn("failed to render classifier system prompt")
		c.metrics.IncrementPipelineFallbacks("classify")
		return fallback
	}
	user, err := c.prompts.Format(prompts.PromptClassifyQueryUser, map[string]any{"Query": query})
	if err != nil {
		c.log.WithError(err).Warn("failed to render classifier user prompt")
		c.metrics.IncrementPipelineFallbacks("classify")
		return fallback
	}

	start := time.Now()
	completion, err := c.completer.Complete(ctx, llm.CompletionRequest{
		System:      system,
		User:        user,
		Schema:      llm.NewJSONSchemaFromStruct[classificationSchema](),
		SchemaName:  "query_classification",
		MaxTokens:   512,
		Temperature: pipelineTemperature,
	})
	c.metrics.ObserveLLMRequestDuration("classify", time.Since(start).Seconds())
	if err != nil {
		c.metrics.IncrementLLMRequests("classify", "error")
		c.metrics.IncrementPipelineFallbacks("classify")
		c.log.WithError(err).Warn("query classification failed, defaulting to explicit search")
		return fallback
	}
	c.metrics.IncrementLLMRequests("classify", "ok")

	// Parse loosely and coerce: models leak wrong types into these fields
	// often enough that a strict decode would turn good verdicts into
	// fallbacks.
	var raw map[string]any
	if err := unmarshalCompletion(completion, &raw); err != nil {
		c.metrics.IncrementPipelineFallbacks("classify")
		c.log.WithError(err).Warn("unparseable classification response, defaulting to explicit search")
		return fallback
	}

	class, _ := raw["classification"].(string)
	if class != ClassExplicitSearch && class != ClassPortfolioAnalysis {
		c.log.WithField("classification", class).Warn("unknown classification, defaulting to explicit search")
		class = ClassExplicitSearch
	}

	confidence := coerceFloat(raw["confidence"], 0.5)
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	reasoning, _ := raw["reasoning"].(string)
	if reasoning == "" {
		reasoning = "No reasoning provided"
	}

	result := Classification{
		Class:        class,
		IsConceptual: coerceBool(raw["is_conceptual"]),
		Confidence:   confidence,
		Reasoning:    reasoning,
	}

	c.log.WithFields(logrus.Fields{
		"classification": result.Class,
		"is_conceptual":  result.IsConceptual,
		"confidence":     result.Confidence,
	}).Info("query classified")

	return result
}

func coerceBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		return err == nil && parsed
	case float64:
		return b != 0
	}
	return false
}

func coerceFloat(v any, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}
	return def
}
