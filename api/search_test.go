// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package api

import (
	"database/sql"
	"net/http"
	"testing"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4d11/company-search/discovery"
	"github.com/4d11/company-search/filters"
	"github.com/4d11/company-search/store"
)

func searchFixture() *discovery.SearchResponse {
	return &discovery.SearchResponse{
		Results: []discovery.Result{
			{
				Company: store.Company{
					ID:            1,
					CompanyName:   "Acme Pay",
					City:          sql.NullString{String: "Berlin", Valid: true},
					Description:   sql.NullString{String: "Payment rails for SMBs", Valid: true},
					WebsiteURL:    sql.NullString{String: "https://acme.example", Valid: true},
					EmployeeCount: sql.NullInt64{Int64: 42, Valid: true},
					FundingAmount: sql.NullInt64{Int64: 1500000, Valid: true},
					Location:      sql.NullString{String: "Berlin", Valid: true},
					FundingStage:  sql.NullString{String: "Seed", Valid: true},
					Industries:    pq.StringArray{"FinTech"},
					TargetMarkets: pq.StringArray{"SMB"},
				},
				Score:       1.82,
				Explanation: "Strong fintech match.",
			},
			{
				Company: store.Company{ID: 2, CompanyName: "Bare Co"},
				Score:   1.41,
			},
		},
		AppliedFilters: filters.QueryFilters{
			Logic: filters.LogicAnd,
			Filters: []filters.SegmentFilter{{
				Segment: filters.SegmentIndustries,
				Kind:    filters.KindText,
				Logic:   filters.LogicOr,
				Rules:   []filters.Rule{{Op: filters.OpEQ, Value: "FinTech"}},
			}},
		},
	}
}

func TestSubmitQuery(t *testing.T) {
	t.Run("returns ranked companies", func(t *testing.T) {
		searcher := &fakeSearcher{resp: searchFixture()}
		st := &fakeStore{}
		router := newTestRouter(t, searcher, &fakeResearcher{}, st, &fakeEngine{})

		w := perform(router, http.MethodPost, "/api/submit-query", QueryRequest{Query: "fintech companies in berlin"})

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeJSON[QueryResponse](t, w)
		require.Len(t, resp.Companies, 2)

		acme := resp.Companies[0]
		assert.EqualValues(t, 1, acme.ID)
		assert.Equal(t, "Acme Pay", acme.CompanyName)
		require.NotNil(t, acme.City)
		assert.Equal(t, "Berlin", *acme.City)
		require.NotNil(t, acme.Stage)
		assert.Equal(t, "Seed", *acme.Stage)
		require.NotNil(t, acme.FundingAmount)
		assert.EqualValues(t, 1500000, *acme.FundingAmount)
		assert.Equal(t, []string{"FinTech"}, acme.Industries)
		assert.Equal(t, "Strong fintech match.", acme.Explanation)

		bare := resp.Companies[1]
		assert.Nil(t, bare.City)
		assert.Nil(t, bare.FundingAmount)
		assert.Equal(t, []string{}, bare.Industries)

		require.Len(t, resp.AppliedFilters.Filters, 1)
		assert.Equal(t, filters.SegmentIndustries, resp.AppliedFilters.Filters[0].Segment)
		assert.Nil(t, resp.ThesisContext)
	})

	t.Run("records the search log", func(t *testing.T) {
		searcher := &fakeSearcher{resp: searchFixture()}
		st := &fakeStore{}
		router := newTestRouter(t, searcher, &fakeResearcher{}, st, &fakeEngine{})

		w := perform(router, http.MethodPost, "/api/submit-query", QueryRequest{Query: "fintech"})

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, st.logCalls)
		assert.Equal(t, "fintech", st.loggedQuery)
		assert.Equal(t, 2, st.loggedCount)
		assert.Contains(t, string(st.loggedFilters), `"segment":"industries"`)
	})

	t.Run("log failure does not fail the request", func(t *testing.T) {
		searcher := &fakeSearcher{resp: searchFixture()}
		st := &fakeStore{insertLogErr: errors.New("disk full")}
		router := newTestRouter(t, searcher, &fakeResearcher{}, st, &fakeEngine{})

		w := perform(router, http.MethodPost, "/api/submit-query", QueryRequest{Query: "fintech"})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, st.logCalls)
	})

	t.Run("passes filters and size through", func(t *testing.T) {
		searcher := &fakeSearcher{resp: searchFixture()}
		router := newTestRouter(t, searcher, &fakeResearcher{}, &fakeStore{}, &fakeEngine{})

		userFilters := &filters.QueryFilters{
			Logic: filters.LogicAnd,
			Filters: []filters.SegmentFilter{{
				Segment: filters.SegmentLocation,
				Kind:    filters.KindText,
				Logic:   filters.LogicAnd,
				Rules:   []filters.Rule{{Op: filters.OpEQ, Value: "Berlin"}},
			}},
		}
		excluded := []filters.ExcludedFilterValue{{Segment: filters.SegmentIndustries, Op: filters.OpEQ, Value: "Gambling"}}

		w := perform(router, http.MethodPost, "/api/submit-query", QueryRequest{
			Query:          "payments",
			Filters:        userFilters,
			ExcludedValues: excluded,
			Size:           5,
		})

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "payments", searcher.lastReq.Query)
		require.NotNil(t, searcher.lastReq.UserFilters)
		assert.Equal(t, filters.SegmentLocation, searcher.lastReq.UserFilters.Filters[0].Segment)
		require.Len(t, searcher.lastReq.ExcludedValues, 1)
		assert.Equal(t, "Gambling", searcher.lastReq.ExcludedValues[0].Value)
		assert.Equal(t, 5, searcher.lastReq.Size)
	})

	t.Run("thesis context is returned verbatim", func(t *testing.T) {
		resp := searchFixture()
		resp.ThesisContext = &discovery.ThesisContext{
			Type:               discovery.ThesisTypePortfolio,
			Summary:            "Consumer fintech portfolio",
			ComplementaryAreas: []string{"B2B financial APIs"},
		}
		router := newTestRouter(t, &fakeSearcher{resp: resp}, &fakeResearcher{}, &fakeStore{}, &fakeEngine{})

		w := perform(router, http.MethodPost, "/api/submit-query", QueryRequest{Query: "companies like my portfolio"})

		require.Equal(t, http.StatusOK, w.Code)
		out := decodeJSON[QueryResponse](t, w)
		require.NotNil(t, out.ThesisContext)
		assert.Equal(t, discovery.ThesisTypePortfolio, out.ThesisContext.Type)
		assert.Equal(t, []string{"B2B financial APIs"}, out.ThesisContext.ComplementaryAreas)
	})

	t.Run("invalid JSON rejected", func(t *testing.T) {
		st := &fakeStore{}
		router := newTestRouter(t, &fakeSearcher{}, &fakeResearcher{}, st, &fakeEngine{})

		w := performRaw(router, http.MethodPost, "/api/submit-query", "{not json")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid JSON")
		assert.Zero(t, st.logCalls)
	})

	t.Run("invalid filters rejected", func(t *testing.T) {
		searcher := &fakeSearcher{resp: searchFixture()}
		router := newTestRouter(t, searcher, &fakeResearcher{}, &fakeStore{}, &fakeEngine{})

		w := perform(router, http.MethodPost, "/api/submit-query", QueryRequest{
			Query: "whatever",
			Filters: &filters.QueryFilters{
				Logic: filters.LogicAnd,
				Filters: []filters.SegmentFilter{{
					Segment: "vibes",
					Kind:    filters.KindText,
					Logic:   filters.LogicAnd,
					Rules:   []filters.Rule{{Op: filters.OpEQ, Value: "good"}},
				}},
			},
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid segment")
		assert.Zero(t, searcher.calls)
	})

	t.Run("search failure returns 500", func(t *testing.T) {
		st := &fakeStore{}
		router := newTestRouter(t, &fakeSearcher{err: errors.New("engine down")}, &fakeResearcher{}, st, &fakeEngine{})

		w := perform(router, http.MethodPost, "/api/submit-query", QueryRequest{Query: "fintech"})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "search failed")
		assert.Zero(t, st.logCalls)
	})

	t.Run("request id is attached to the response", func(t *testing.T) {
		router := newTestRouter(t, &fakeSearcher{resp: searchFixture()}, &fakeResearcher{}, &fakeStore{}, &fakeEngine{})

		w := perform(router, http.MethodPost, "/api/submit-query", QueryRequest{Query: "fintech"})

		assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
	})
}

func TestFilterOptions(t *testing.T) {
	t.Run("lists every segment", func(t *testing.T) {
		st := &fakeStore{
			names: map[string][]string{
				filters.SegmentLocation:       {"Austin", "Berlin"},
				filters.SegmentIndustries:     {"FinTech", "HealthTech"},
				filters.SegmentTargetMarkets:  {"Enterprise", "SMB"},
				filters.SegmentBusinessModels: {"B2B", "B2C"},
				filters.SegmentRevenueModels:  {"SaaS"},
			},
			stages: []store.Stage{
				{ID: 1, Name: "Pre-Seed", OrderIndex: 0},
				{ID: 2, Name: "Seed", OrderIndex: 1},
				{ID: 3, Name: "Series A", OrderIndex: 2},
			},
		}
		router := newTestRouter(t, &fakeSearcher{}, &fakeResearcher{}, st, &fakeEngine{})

		w := perform(router, http.MethodGet, "/api/filter-options", nil)

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeJSON[FilterOptionsResponse](t, w)
		assert.Equal(t, []string{"Austin", "Berlin"}, resp.Locations)
		assert.Equal(t, []string{"FinTech", "HealthTech"}, resp.Industries)
		assert.Equal(t, []string{"Enterprise", "SMB"}, resp.TargetMarkets)
		assert.Equal(t, []string{"B2B", "B2C"}, resp.BusinessModels)
		assert.Equal(t, []string{"SaaS"}, resp.RevenueModels)
		assert.Equal(t, []string{"Pre-Seed", "Seed", "Series A"}, resp.Stages)
	})

	t.Run("store failure returns 500", func(t *testing.T) {
		st := &fakeStore{namesErr: errors.New("connection refused")}
		router := newTestRouter(t, &fakeSearcher{}, &fakeResearcher{}, st, &fakeEngine{})

		w := perform(router, http.MethodGet, "/api/filter-options", nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "failed to load filter options")
	})
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		router := newTestRouter(t, &fakeSearcher{}, &fakeResearcher{}, &fakeStore{}, &fakeEngine{})

		w := perform(router, http.MethodGet, "/api/health", nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"database":"ok"`)
		assert.Contains(t, w.Body.String(), `"search_engine":"ok"`)
	})

	t.Run("database down", func(t *testing.T) {
		st := &fakeStore{pingErr: errors.New("connection refused")}
		router := newTestRouter(t, &fakeSearcher{}, &fakeResearcher{}, st, &fakeEngine{})

		w := perform(router, http.MethodGet, "/api/health", nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "connection refused")
	})

	t.Run("engine down", func(t *testing.T) {
		engine := &fakeEngine{pingErr: errors.New("no living nodes")}
		router := newTestRouter(t, &fakeSearcher{}, &fakeResearcher{}, &fakeStore{}, engine)

		w := perform(router, http.MethodGet, "/api/health", nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "no living nodes")
	})
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, &fakeSearcher{}, &fakeResearcher{}, &fakeStore{}, &fakeEngine{})

	w := perform(router, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "company_search_http_requests_total")
}
