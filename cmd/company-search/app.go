// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/4d11/company-search/anthropic"
	"github.com/4d11/company-search/bedrock"
	"github.com/4d11/company-search/config"
	"github.com/4d11/company-search/discovery"
	"github.com/4d11/company-search/es"
	"github.com/4d11/company-search/llm"
	"github.com/4d11/company-search/metrics"
	"github.com/4d11/company-search/openai"
	"github.com/4d11/company-search/prompts"
	"github.com/4d11/company-search/research"
	"github.com/4d11/company-search/seeder"
	"github.com/4d11/company-search/store"
	"github.com/4d11/company-search/websearch"
)

// llmRequestTimeout bounds a single provider round trip. Batched explanation
// completions can run long, so this stays generous.
const llmRequestTimeout = 120 * time.Second

// app holds every wired component a subcommand can need. Subcommands build
// it once and pick what they use.
type app struct {
	cfg        *config.Config
	log        *logrus.Logger
	metrics    metrics.Metrics
	store      *store.Store
	engine     *es.Client
	embedder   llm.Embedder
	searcher   *discovery.Orchestrator
	researcher *research.Researcher
	seeder     *seeder.Seeder
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.NewMetrics(metrics.InstanceInfo{Version: version})

	st, err := store.New(cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}

	engine, err := es.NewClient(es.Config{
		URL:    cfg.ElasticsearchURL,
		APIKey: cfg.ElasticsearchAPIKey,
	}, log, m)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	httpClient := &http.Client{Timeout: llmRequestTimeout}

	embedder := openai.NewCompatible(openai.Config{
		APIKey:              cfg.EmbeddingAPIKey,
		APIURL:              cfg.EmbeddingBaseURL,
		EmbeddingModel:      cfg.EmbeddingModel,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
	}, httpClient)

	completer, err := newCompleter(ctx, cfg, httpClient)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	promptSet, err := llm.NewPrompts(prompts.PromptsFolder)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var cache *discovery.ExplanationCache
	if cfg.ExplanationCacheEnabled {
		cache = discovery.NewExplanationCache(cfg.ExplanationCacheSize, cfg.ExplanationCacheTTL, m)
	}

	canonicalizer := es.NewCanonicalizer(engine, log, m)
	searcher := discovery.NewOrchestrator(discovery.OrchestratorParams{
		Classifier: discovery.NewClassifier(completer, promptSet, log, m),
		Thesis:     discovery.NewThesisExpander(completer, promptSet, log, m),
		Extractor:  discovery.NewExtractor(completer, promptSet, canonicalizer, st, st, log, m),
		Rewriter:   discovery.NewRewriter(completer, promptSet, log, m),
		Explainer:  discovery.NewExplainer(completer, promptSet, cache, log, m),
		Embedder:   embedder,
		Engine:     engine,
		Store:      st,
		Config:     discovery.Config{ConceptualExpansion: cfg.ConceptualExpansion},
		Log:        log,
		Metrics:    m,
	})

	web, err := websearch.New(websearch.Config{
		Provider:             cfg.WebSearchProvider,
		BraveAPIKey:          cfg.BraveAPIKey,
		GoogleAPIKey:         cfg.GoogleAPIKey,
		GoogleSearchEngineID: cfg.GoogleSearchEngineID,
	}, httpClient, log)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &app{
		cfg:        cfg,
		log:        log,
		metrics:    m,
		store:      st,
		engine:     engine,
		embedder:   embedder,
		searcher:   searcher,
		researcher: research.NewResearcher(completer, promptSet, web, st, cfg.ResearchTimeout, log, m),
		seeder:     seeder.New(st, engine, embedder, log),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.WithError(err).Warn("failed to close store")
	}
}

func newLogger(cfg *config.Config) (*logrus.Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid LOG_LEVEL %q", cfg.LogLevel)
	}
	log.SetLevel(level)

	switch cfg.LogFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, errors.Errorf("unknown LOG_FORMAT %q", cfg.LogFormat)
	}

	return log, nil
}

func newCompleter(ctx context.Context, cfg *config.Config, httpClient *http.Client) (llm.Completer, error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		oa := openai.Config{
			APIKey:       cfg.LLMAPIKey,
			APIURL:       cfg.LLMBaseURL,
			DefaultModel: cfg.LLMModel,
		}
		if cfg.LLMBaseURL != "" {
			return openai.NewCompatible(oa, httpClient), nil
		}
		return openai.New(oa, httpClient), nil
	case config.ProviderAnthropic:
		return anthropic.New(anthropic.Config{
			APIKey:       cfg.LLMAPIKey,
			DefaultModel: cfg.LLMModel,
		}, httpClient), nil
	case config.ProviderBedrock:
		return bedrock.New(ctx, bedrock.Config{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			APIKey:          cfg.LLMAPIKey,
			DefaultModel:    cfg.LLMModel,
		}, httpClient)
	}
	return nil, errors.Errorf("unknown LLM provider %q", cfg.LLMProvider)
}
