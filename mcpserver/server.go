// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/4d11/company-search/discovery"
	"github.com/4d11/company-search/filters"
	"github.com/4d11/company-search/store"
)

const serverVersion = "0.1.0"

// maxSize caps how many companies one tool call may return.
const maxSize = 50

// Searcher is the pipeline surface the tools call.
type Searcher interface {
	Search(ctx context.Context, req discovery.SearchRequest) (*discovery.SearchResponse, error)
}

// Store lists the vocabulary values behind get_filter_options.
type Store interface {
	VocabularyNames(ctx context.Context, segment string) ([]string, error)
	FundingStages(ctx context.Context) ([]store.Stage, error)
}

// Server exposes company search over MCP stdio. It drives the same pipeline
// as the HTTP API; all tools are read-only.
type Server struct {
	searcher Searcher
	store    Store
	log      *logrus.Logger
}

func New(searcher Searcher, st Store, log *logrus.Logger) *Server {
	return &Server{
		searcher: searcher,
		store:    st,
		log:      log,
	}
}

// Run serves MCP over stdio until the context ends or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "company-search",
		Version: serverVersion,
	}, nil)
	s.registerTools(server)

	s.log.Info("mcp server listening on stdio")
	return server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_companies",
		Description: "Search for companies using natural language. The query may name industries, locations, funding stages, head counts, or an investment thesis (e.g. 'fintech startups in Boston past Series A', 'companies similar to our portfolio').\n\nArgs:\n  query: Natural language description of the companies to find\n  size: Number of results (default 20, max 50)\n\nReturns ranked companies as JSON with the filters that were applied.",
	}, s.handleSearchCompanies)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_filter_options",
		Description: "List every canonical filter value the search understands: locations, industries, target markets, business models, revenue models, and funding stages in ladder order. Use this to see what vocabulary search_companies queries can reference.",
	}, s.handleGetFilterOptions)
}

// Tool input types

type searchCompaniesInput struct {
	Query string `json:"query" jsonschema:"Natural language description of the companies to find"`
	Size  int    `json:"size,omitempty" jsonschema:"Number of results (default 20, max 50)"`
}

type emptyInput struct{}

// companyResult is the compact projection returned to MCP clients.
type companyResult struct {
	ID            int64    `json:"id"`
	CompanyName   string   `json:"company_name"`
	Description   string   `json:"description,omitempty"`
	WebsiteURL    string   `json:"website_url,omitempty"`
	Location      string   `json:"location,omitempty"`
	FundingStage  string   `json:"funding_stage,omitempty"`
	EmployeeCount *int64   `json:"employee_count,omitempty"`
	Industries    []string `json:"industries,omitempty"`
	TargetMarkets []string `json:"target_markets,omitempty"`
	Score         float64  `json:"score"`
	Explanation   string   `json:"explanation,omitempty"`
}

type searchCompaniesOutput struct {
	Companies      []companyResult          `json:"companies"`
	AppliedFilters filters.QueryFilters     `json:"applied_filters"`
	ThesisContext  *discovery.ThesisContext `json:"thesis_context,omitempty"`
}

type filterOptionsOutput struct {
	Locations      []string `json:"locations"`
	Industries     []string `json:"industries"`
	TargetMarkets  []string `json:"target_markets"`
	BusinessModels []string `json:"business_models"`
	RevenueModels  []string `json:"revenue_models"`
	Stages         []string `json:"stages"`
}

// Tool handlers

func (s *Server) handleSearchCompanies(ctx context.Context, _ *mcp.CallToolRequest, input searchCompaniesInput) (*mcp.CallToolResult, any, error) {
	if input.Query == "" {
		return textResult("Error: query is required."), nil, nil
	}

	resp, err := s.searcher.Search(ctx, discovery.SearchRequest{
		Query: input.Query,
		Size:  clampSize(input.Size),
	})
	if err != nil {
		s.log.WithError(err).Error("mcp search failed")
		return textResult(fmt.Sprintf("Search error: %v", err)), nil, nil
	}

	out := searchCompaniesOutput{
		Companies:      make([]companyResult, 0, len(resp.Results)),
		AppliedFilters: resp.AppliedFilters,
		ThesisContext:  resp.ThesisContext,
	}
	for _, r := range resp.Results {
		out.Companies = append(out.Companies, toCompanyResult(r))
	}
	if len(out.Companies) == 0 {
		return textResult("No companies matched. Try a broader query, or get_filter_options to see the known vocabulary."), nil, nil
	}

	data, _ := json.MarshalIndent(out, "", "  ")
	return textResult(string(data)), nil, nil
}

func (s *Server) handleGetFilterOptions(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	out := filterOptionsOutput{}
	for _, target := range []struct {
		segment string
		dest    *[]string
	}{
		{filters.SegmentLocation, &out.Locations},
		{filters.SegmentIndustries, &out.Industries},
		{filters.SegmentTargetMarkets, &out.TargetMarkets},
		{filters.SegmentBusinessModels, &out.BusinessModels},
		{filters.SegmentRevenueModels, &out.RevenueModels},
	} {
		names, err := s.store.VocabularyNames(ctx, target.segment)
		if err != nil {
			s.log.WithError(err).Error("mcp filter options failed")
			return textResult(fmt.Sprintf("Error loading filter options: %v", err)), nil, nil
		}
		*target.dest = names
	}

	stages, err := s.store.FundingStages(ctx)
	if err != nil {
		s.log.WithError(err).Error("mcp filter options failed")
		return textResult(fmt.Sprintf("Error loading filter options: %v", err)), nil, nil
	}
	out.Stages = make([]string, 0, len(stages))
	for _, stage := range stages {
		out.Stages = append(out.Stages, stage.Name)
	}

	data, _ := json.MarshalIndent(out, "", "  ")
	return textResult(string(data)), nil, nil
}

// Helpers

func toCompanyResult(r discovery.Result) companyResult {
	c := r.Company
	result := companyResult{
		ID:            c.ID,
		CompanyName:   c.CompanyName,
		Industries:    c.Industries,
		TargetMarkets: c.TargetMarkets,
		Score:         r.Score,
		Explanation:   r.Explanation,
	}
	if c.Description.Valid {
		result.Description = c.Description.String
	}
	if c.WebsiteURL.Valid {
		result.WebsiteURL = c.WebsiteURL.String
	}
	if c.Location.Valid {
		result.Location = c.Location.String
	}
	if c.FundingStage.Valid {
		result.FundingStage = c.FundingStage.String
	}
	if c.EmployeeCount.Valid {
		count := c.EmployeeCount.Int64
		result.EmployeeCount = &count
	}
	return result
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// clampSize bounds the result count; zero lets the pipeline default apply.
func clampSize(size int) int {
	if size < 0 {
		return 0
	}
	if size > maxSize {
		return maxSize
	}
	return size
}
