// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package es

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4d11/company-search/filters"
	"github.com/4d11/company-search/metrics"
)

func newTestCanonicalizer(t *testing.T, handler roundTripperFunc) *Canonicalizer {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewCanonicalizer(newTestClient(t, handler), log, metrics.NewMetrics(metrics.InstanceInfo{}))
}

func msearchBody(t *testing.T, responses ...string) string {
	t.Helper()
	return `{"responses":[` + joinJSON(responses) + `]}`
}

func joinJSON(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

func TestCanonicalizeBatch(t *testing.T) {
	t.Run("matched and unmatched values in one round trip", func(t *testing.T) {
		body := msearchBody(t,
			`{"hits":{"hits":[{"_id":"1","_score":12.5,"_source":{"name":"Fintech"}}]}}`,
			`{"hits":{"hits":[]}}`,
		)
		c := newTestCanonicalizer(t, func(r *http.Request) (*http.Response, error) {
			require.Contains(t, r.URL.Path, "_msearch")
			return engineResponse(http.StatusOK, body), nil
		})

		results := c.CanonicalizeBatch(context.Background(), filters.SegmentIndustries,
			[]string{"fintech", "underwater basket weaving"}, DefaultThreshold)

		assert.Equal(t, []string{"Fintech"}, results["fintech"])
		assert.Nil(t, results["underwater basket weaving"])
	})

	t.Run("synonym hit with no shared tokens is rejected", func(t *testing.T) {
		// Top hit scores highest via the synonym analyzer but shares no
		// surface tokens: quality = 0.7*1.0 + 0.3*0 = 0.7 < 0.8.
		body := msearchBody(t,
			`{"hits":{"hits":[{"_id":"1","_score":9.0,"_source":{"name":"Machine Learning"}}]}}`,
		)
		c := newTestCanonicalizer(t, func(r *http.Request) (*http.Response, error) {
			return engineResponse(http.StatusOK, body), nil
		})

		results := c.CanonicalizeBatch(context.Background(), filters.SegmentIndustries,
			[]string{"Artificial"}, DefaultThreshold)

		assert.Nil(t, results["Artificial"])
	})

	t.Run("short inputs use the relaxed floor", func(t *testing.T) {
		// Same zero-overlap shape, but a 2-char input lowers the floor to
		// max(0.60, 0.8*0.8) = 0.64, which 0.7 clears.
		body := msearchBody(t,
			`{"hits":{"hits":[{"_id":"1","_score":9.0,"_source":{"name":"Artificial Intelligence"}}]}}`,
		)
		c := newTestCanonicalizer(t, func(r *http.Request) (*http.Response, error) {
			return engineResponse(http.StatusOK, body), nil
		})

		results := c.CanonicalizeBatch(context.Background(), filters.SegmentIndustries,
			[]string{"AI"}, DefaultThreshold)

		assert.Equal(t, []string{"Artificial Intelligence"}, results["AI"])
	})

	t.Run("lower-ranked hits filter on normalized score", func(t *testing.T) {
		body := msearchBody(t,
			`{"hits":{"hits":[
				{"_id":"1","_score":10.0,"_source":{"name":"Healthcare"}},
				{"_id":"2","_score":2.0,"_source":{"name":"Health Insurance"}}
			]}}`,
		)
		c := newTestCanonicalizer(t, func(r *http.Request) (*http.Response, error) {
			return engineResponse(http.StatusOK, body), nil
		})

		results := c.CanonicalizeBatch(context.Background(), filters.SegmentIndustries,
			[]string{"healthcare"}, DefaultThreshold)

		// Second hit: 0.7*0.2 + 0.3*0 = 0.14, far below threshold.
		assert.Equal(t, []string{"Healthcare"}, results["healthcare"])
	})

	t.Run("per-item engine errors drop only the affected value", func(t *testing.T) {
		body := msearchBody(t,
			`{"error":{"type":"search_phase_execution_exception"}}`,
			`{"hits":{"hits":[{"_id":"1","_score":5.0,"_source":{"name":"Berlin"}}]}}`,
		)
		c := newTestCanonicalizer(t, func(r *http.Request) (*http.Response, error) {
			return engineResponse(http.StatusOK, body), nil
		})

		results := c.CanonicalizeBatch(context.Background(), filters.SegmentLocation,
			[]string{"broken", "berlin"}, DefaultThreshold)

		assert.Nil(t, results["broken"])
		assert.Equal(t, []string{"Berlin"}, results["berlin"])
	})

	t.Run("engine unreachable degrades to an all-nil mapping", func(t *testing.T) {
		c := newTestCanonicalizer(t, func(r *http.Request) (*http.Response, error) {
			return engineResponse(http.StatusInternalServerError, `{"error":"boom"}`), nil
		})

		results := c.CanonicalizeBatch(context.Background(), filters.SegmentIndustries,
			[]string{"fintech", "saas"}, DefaultThreshold)

		require.Len(t, results, 2)
		assert.Nil(t, results["fintech"])
		assert.Nil(t, results["saas"])
	})

	t.Run("funding stage passes through untouched", func(t *testing.T) {
		c := newTestCanonicalizer(t, func(r *http.Request) (*http.Response, error) {
			t.Fatal("no engine call expected")
			return nil, nil
		})

		results := c.CanonicalizeBatch(context.Background(), filters.SegmentFundingStage,
			[]string{"Series A"}, DefaultThreshold)

		assert.Equal(t, []string{"Series A"}, results["Series A"])
	})

	t.Run("unknown segment maps everything to nil", func(t *testing.T) {
		c := newTestCanonicalizer(t, func(r *http.Request) (*http.Response, error) {
			t.Fatal("no engine call expected")
			return nil, nil
		})

		results := c.CanonicalizeBatch(context.Background(), "favorite_color", []string{"red"}, DefaultThreshold)

		require.Len(t, results, 1)
		assert.Nil(t, results["red"])
	})

	t.Run("empty input short-circuits", func(t *testing.T) {
		c := newTestCanonicalizer(t, func(r *http.Request) (*http.Response, error) {
			t.Fatal("no engine call expected")
			return nil, nil
		})

		assert.Empty(t, c.CanonicalizeBatch(context.Background(), filters.SegmentIndustries, nil, DefaultThreshold))
	})
}

func TestMatchQueryStrategies(t *testing.T) {
	strategyKeys := func(query map[string]any) []string {
		should := query["bool"].(map[string]any)["should"].([]any)
		keys := make([]string, 0, len(should))
		for _, clause := range should {
			for key := range clause.(map[string]any) {
				keys = append(keys, key)
			}
		}
		return keys
	}

	t.Run("synonym segments add token and fuzzy strategies", func(t *testing.T) {
		keys := strategyKeys(matchQuery(filters.SegmentIndustries, "financial technology"))
		assert.Equal(t, []string{"match", "match_phrase_prefix", "match", "match", "fuzzy"}, keys)
	})

	t.Run("short synonym-segment inputs add a keyword wildcard", func(t *testing.T) {
		keys := strategyKeys(matchQuery(filters.SegmentIndustries, "saas"))
		assert.Contains(t, keys, "wildcard")
	})

	t.Run("plain segments get exact, prefix and fuzzy only", func(t *testing.T) {
		keys := strategyKeys(matchQuery(filters.SegmentLocation, "New York"))
		assert.Equal(t, []string{"match", "match_phrase_prefix", "fuzzy"}, keys)
	})
}

func TestCanonicalizeSingleValue(t *testing.T) {
	body := msearchBody(t,
		`{"hits":{"hits":[{"_id":"1","_score":7.0,"_source":{"name":"Fintech"}}]}}`,
	)
	c := newTestCanonicalizer(t, func(r *http.Request) (*http.Response, error) {
		return engineResponse(http.StatusOK, body), nil
	})

	matches := c.Canonicalize(context.Background(), filters.SegmentIndustries, "fintech", DefaultThreshold)

	assert.Equal(t, []string{"Fintech"}, matches)
}

func TestMsearchRequestShape(t *testing.T) {
	var captured []string
	body := msearchBody(t, `{"hits":{"hits":[]}}`)
	c := newTestCanonicalizer(t, func(r *http.Request) (*http.Response, error) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		captured = append(captured, strings.Split(strings.TrimSpace(string(raw)), "\n")...)
		return engineResponse(http.StatusOK, body), nil
	})

	c.CanonicalizeBatch(context.Background(), filters.SegmentIndustries, []string{"fintech"}, DefaultThreshold)

	require.Len(t, captured, 2)

	var header struct {
		Index string `json:"index"`
	}
	require.NoError(t, json.Unmarshal([]byte(captured[0]), &header))
	assert.Equal(t, IndustriesIndex, header.Index)

	var search struct {
		Size     int      `json:"size"`
		MinScore float64  `json:"min_score"`
		Source   []string `json:"_source"`
	}
	require.NoError(t, json.Unmarshal([]byte(captured[1]), &search))
	assert.Equal(t, 50, search.Size)
	assert.Equal(t, 1.0, search.MinScore)
	assert.Equal(t, []string{"name"}, search.Source)
}
