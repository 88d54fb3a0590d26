// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/4d11/company-search/discovery"
	"github.com/4d11/company-search/filters"
)

// QueryRequest is the body of POST /api/submit-query. Everything is
// optional: a bare query extracts filters from language, bare filters skip
// the language model entirely, and both together merge.
type QueryRequest struct {
	Query          string                        `json:"query"`
	Filters        *filters.QueryFilters         `json:"filters,omitempty"`
	ExcludedValues []filters.ExcludedFilterValue `json:"excluded_values,omitempty"`
	Size           int                           `json:"size,omitempty"`
}

// CompanyResponse is the wire shape of one ranked company.
type CompanyResponse struct {
	ID            int64    `json:"id"`
	CompanyName   string   `json:"company_name"`
	CompanyID     *int64   `json:"company_id,omitempty"`
	City          *string  `json:"city,omitempty"`
	Description   *string  `json:"description,omitempty"`
	WebsiteURL    *string  `json:"website_url,omitempty"`
	EmployeeCount *int64   `json:"employee_count,omitempty"`
	Stage         *string  `json:"stage,omitempty"`
	FundingAmount *int64   `json:"funding_amount,omitempty"`
	Location      *string  `json:"location,omitempty"`
	Industries    []string `json:"industries"`
	TargetMarkets []string `json:"target_markets"`
	Explanation   string   `json:"explanation,omitempty"`
}

// QueryResponse is the body of a successful search.
type QueryResponse struct {
	Companies      []CompanyResponse        `json:"companies"`
	AppliedFilters filters.QueryFilters     `json:"applied_filters"`
	ThesisContext  *discovery.ThesisContext `json:"thesis_context,omitempty"`
}

func (a *API) handleSubmitQuery(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}
	if req.Filters != nil {
		if err := req.Filters.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	resp, err := a.searcher.Search(c.Request.Context(), discovery.SearchRequest{
		Query:          req.Query,
		UserFilters:    req.Filters,
		ExcludedValues: req.ExcludedValues,
		Size:           req.Size,
	})
	if err != nil {
		a.log.WithError(err).Error("search failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	companies := make([]CompanyResponse, 0, len(resp.Results))
	for _, result := range resp.Results {
		companies = append(companies, companyResponse(result))
	}

	a.logSearch(c.Request.Context(), req.Query, resp.AppliedFilters, len(companies))

	c.JSON(http.StatusOK, QueryResponse{
		Companies:      companies,
		AppliedFilters: resp.AppliedFilters,
		ThesisContext:  resp.ThesisContext,
	})
}

// logSearch records the search for analytics. Log writes never fail the
// request.
func (a *API) logSearch(ctx context.Context, query string, applied filters.QueryFilters, resultCount int) {
	filtersJSON, err := json.Marshal(applied)
	if err != nil {
		a.log.WithError(err).Warn("failed to encode applied filters for the search log")
		return
	}
	if err := a.store.InsertSearchLog(ctx, query, filtersJSON, resultCount); err != nil {
		a.log.WithError(err).Warn("failed to record search log")
	}
}

// FilterOptionsResponse lists every canonical value per segment for the
// filter pickers. Stages come in funding-round order, everything else
// alphabetical.
type FilterOptionsResponse struct {
	Locations      []string `json:"locations"`
	Industries     []string `json:"industries"`
	TargetMarkets  []string `json:"target_markets"`
	BusinessModels []string `json:"business_models"`
	RevenueModels  []string `json:"revenue_models"`
	Stages         []string `json:"stages"`
}

func (a *API) handleFilterOptions(c *gin.Context) {
	ctx := c.Request.Context()
	var resp FilterOptionsResponse

	segments := []struct {
		segment string
		dest    *[]string
	}{
		{filters.SegmentLocation, &resp.Locations},
		{filters.SegmentIndustries, &resp.Industries},
		{filters.SegmentTargetMarkets, &resp.TargetMarkets},
		{filters.SegmentBusinessModels, &resp.BusinessModels},
		{filters.SegmentRevenueModels, &resp.RevenueModels},
	}
	for _, s := range segments {
		names, err := a.store.VocabularyNames(ctx, s.segment)
		if err != nil {
			a.log.WithError(err).Error("failed to load filter options")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load filter options"})
			return
		}
		*s.dest = names
	}

	stages, err := a.store.FundingStages(ctx)
	if err != nil {
		a.log.WithError(err).Error("failed to load funding stages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load filter options"})
		return
	}
	resp.Stages = make([]string, 0, len(stages))
	for _, stage := range stages {
		resp.Stages = append(resp.Stages, stage.Name)
	}

	c.JSON(http.StatusOK, resp)
}

func companyResponse(result discovery.Result) CompanyResponse {
	company := result.Company
	return CompanyResponse{
		ID:            company.ID,
		CompanyName:   company.CompanyName,
		CompanyID:     nullInt(company.CompanyID),
		City:          nullStr(company.City),
		Description:   nullStr(company.Description),
		WebsiteURL:    nullStr(company.WebsiteURL),
		EmployeeCount: nullInt(company.EmployeeCount),
		Stage:         nullStr(company.FundingStage),
		FundingAmount: nullInt(company.FundingAmount),
		Location:      nullStr(company.Location),
		Industries:    stringList(company.Industries),
		TargetMarkets: stringList(company.TargetMarkets),
		Explanation:   result.Explanation,
	}
}

func nullStr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func nullInt(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	return &ni.Int64
}

func stringList(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
