// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/4d11/company-search/discovery"
	"github.com/4d11/company-search/es"
	"github.com/4d11/company-search/metrics"
	"github.com/4d11/company-search/store"
)

// Searcher runs one orchestrated company search.
type Searcher interface {
	Search(ctx context.Context, req discovery.SearchRequest) (*discovery.SearchResponse, error)
}

// Researcher produces per-company research briefs.
type Researcher interface {
	ResearchCompanies(ctx context.Context, companyIDs []int64, query string) (map[int64]string, error)
}

// Store is the relational surface the handlers use.
type Store interface {
	Ping(ctx context.Context) error
	InsertSearchLog(ctx context.Context, query string, filtersJSON []byte, resultCount int) error
	SearchAnalytics(ctx context.Context) (*store.Analytics, error)
	ListExtractions(ctx context.Context, status, segment string) ([]store.Extraction, error)
	ApproveExtraction(ctx context.Context, extractionID int64, approvedName string) (*store.Approval, error)
	MapExtraction(ctx context.Context, extractionID, vocabularyID int64) (string, error)
	VocabularyEntries(ctx context.Context, segment string) ([]store.VocabularyEntry, error)
	VocabularyNames(ctx context.Context, segment string) ([]string, error)
	FundingStages(ctx context.Context) ([]store.Stage, error)
}

// Engine is the search-engine surface the handlers use.
type Engine interface {
	Ping(ctx context.Context) error
	IndexSegmentValue(ctx context.Context, segment string, value es.SegmentValue) error
}

// API wires the HTTP surface to the search orchestrator, the researcher and
// the stores.
type API struct {
	searcher   Searcher
	researcher Researcher
	store      Store
	engine     Engine
	log        *logrus.Logger
	metrics    metrics.Metrics
}

func New(searcher Searcher, researcher Researcher, st Store, engine Engine, log *logrus.Logger, m metrics.Metrics) *API {
	return &API{
		searcher:   searcher,
		researcher: researcher,
		store:      st,
		engine:     engine,
		log:        log,
		metrics:    m,
	}
}

// Register attaches all routes to the router.
func (a *API) Register(router *gin.Engine) {
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.metrics.GetRegistry(), promhttp.HandlerOpts{})))

	group := router.Group("/api")
	group.POST("/submit-query", a.handleSubmitQuery)
	group.GET("/filter-options", a.handleFilterOptions)
	group.POST("/research", a.handleResearch)
	group.GET("/health", a.handleHealth)

	admin := group.Group("/admin")
	admin.GET("/search-analytics", a.handleSearchAnalytics)
	admin.GET("/unknown-extractions", a.handleListExtractions)
	admin.POST("/unknown-extractions/:id/approve", a.handleApproveExtraction)
	admin.POST("/unknown-extractions/:id/map", a.handleMapExtraction)
	admin.GET("/vocabulary/:segment", a.handleVocabulary)
}

// handleHealth reports readiness: both data planes must answer.
func (a *API) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	health := gin.H{"database": "ok", "search_engine": "ok"}
	status := http.StatusOK

	if err := a.store.Ping(ctx); err != nil {
		health["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := a.engine.Ping(ctx); err != nil {
		health["search_engine"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, health)
}
