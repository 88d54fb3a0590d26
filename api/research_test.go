// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package api

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResearch(t *testing.T) {
	t.Run("returns briefs keyed by company id", func(t *testing.T) {
		researcher := &fakeResearcher{results: map[int64]string{
			1: "Acme builds payment rails.",
			2: "Error: Unable to research this company. model down",
		}}
		router := newTestRouter(t, &fakeSearcher{}, researcher, &fakeStore{}, &fakeEngine{})

		w := perform(router, http.MethodPost, "/api/research",
			ResearchRequest{CompanyIDs: []int64{1, 2}, Query: "what do they build?"})

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []int64{1, 2}, researcher.lastIDs)
		assert.Equal(t, "what do they build?", researcher.lastQuery)

		resp := decodeJSON[ResearchResponse](t, w)
		assert.Equal(t, "Acme builds payment rails.", resp.Results[1])
		assert.Equal(t, "Error: Unable to research this company. model down", resp.Results[2])
	})

	t.Run("query is optional", func(t *testing.T) {
		researcher := &fakeResearcher{results: map[int64]string{1: "Overview."}}
		router := newTestRouter(t, &fakeSearcher{}, researcher, &fakeStore{}, &fakeEngine{})

		w := perform(router, http.MethodPost, "/api/research", ResearchRequest{CompanyIDs: []int64{1}})

		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, researcher.lastQuery)
	})

	t.Run("empty company ids rejected", func(t *testing.T) {
		router := newTestRouter(t, &fakeSearcher{}, &fakeResearcher{}, &fakeStore{}, &fakeEngine{})

		w := perform(router, http.MethodPost, "/api/research", ResearchRequest{Query: "anything"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "company_ids is required")
	})

	t.Run("invalid JSON rejected", func(t *testing.T) {
		router := newTestRouter(t, &fakeSearcher{}, &fakeResearcher{}, &fakeStore{}, &fakeEngine{})

		w := performRaw(router, http.MethodPost, "/api/research", "{{")

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("research failure returns 500", func(t *testing.T) {
		researcher := &fakeResearcher{err: errors.New("store down")}
		router := newTestRouter(t, &fakeSearcher{}, researcher, &fakeStore{}, &fakeEngine{})

		w := perform(router, http.MethodPost, "/api/research", ResearchRequest{CompanyIDs: []int64{1}})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "research failed")
	})
}
