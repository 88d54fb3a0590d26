// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const defaultBraveEndpoint = "https://api.search.brave.com"

// Brave summarizer results are not returned instantly; the key has to be
// polled until the summary reports complete.
const (
	bravePollTimeout  = 10 * time.Second
	bravePollInterval = 250 * time.Millisecond
)

// citationMarker matches Brave's inline [1], [2] citation markers. Research
// briefs are plain prose with no citation UI, so the markers are stripped.
var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// BraveProvider searches via the Brave Search API. When the plan includes
// the summarizer, the search runs in two steps: the web search returns a
// summarizer key, and polling that key yields a pre-written answer.
type BraveProvider struct {
	apiKey       string
	apiURL       string
	httpClient   *http.Client
	log          *logrus.Logger
	pollTimeout  time.Duration
	pollInterval time.Duration
}

func NewBraveProvider(apiKey, apiURL string, httpClient *http.Client, log *logrus.Logger) *BraveProvider {
	if apiURL == "" {
		apiURL = defaultBraveEndpoint
	}
	return &BraveProvider{
		apiKey:       apiKey,
		apiURL:       apiURL,
		httpClient:   httpClient,
		log:          log,
		pollTimeout:  bravePollTimeout,
		pollInterval: bravePollInterval,
	}
}

// Search runs the web search and, when a summarizer key comes back, upgrades
// the response with the summarized answer. Summarizer failures degrade to the
// plain web results.
func (b *BraveProvider) Search(ctx context.Context, query string, limit int) (*SearchResponse, error) {
	if limit <= 0 {
		limit = 5
	}
	if limit > 10 {
		limit = 10
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(b.apiURL, "/")+"/res/v1/web/search", nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create brave search request")
	}
	values := url.Values{}
	values.Set("q", query)
	values.Set("summary", "1")
	req.URL.RawQuery = values.Encode()
	req.Header.Set("X-Subscription-Token", b.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := b.client().Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "brave search request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("brave search request failed: status %s", resp.Status)
	}

	var search braveSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&search); err != nil {
		return nil, errors.Wrap(err, "failed to decode brave search response")
	}

	results := make([]SearchResult, 0, limit)
	for i, item := range search.Web.Results {
		if i >= limit {
			break
		}
		results = append(results, SearchResult{
			Title:   strings.TrimSpace(item.Title),
			URL:     strings.TrimSpace(item.URL),
			Snippet: strings.TrimSpace(item.Description),
		})
	}

	if search.Summarizer.Key == "" {
		b.log.Debug("brave returned no summarizer key, using web results only")
		return &SearchResponse{Results: results}, nil
	}

	summary, err := b.fetchSummary(ctx, search.Summarizer.Key)
	if err != nil {
		b.log.WithError(err).Warn("brave summarizer failed, using web results only")
		return &SearchResponse{Results: results}, nil
	}

	answer := strings.TrimSpace(citationMarker.ReplaceAllString(summary.Enrichments.Raw, ""))
	if answer == "" {
		return &SearchResponse{Results: results}, nil
	}

	// The summarizer's own source list replaces the raw web results when
	// present; those are the pages the answer was written from.
	if len(summary.Enrichments.Context) > 0 {
		sources := make([]SearchResult, 0, len(summary.Enrichments.Context))
		for _, item := range summary.Enrichments.Context {
			sources = append(sources, SearchResult{
				Title: strings.TrimSpace(item.Title),
				URL:   strings.TrimSpace(item.URL),
			})
		}
		results = sources
	}

	return &SearchResponse{Answer: answer, Results: results}, nil
}

// fetchSummary polls the summarizer endpoint until the summary is complete
// or the poll window closes.
func (b *BraveProvider) fetchSummary(ctx context.Context, key string) (*braveSummaryResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(b.apiURL, "/")+"/res/v1/summarizer/search", nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create summarizer request")
	}
	values := url.Values{}
	values.Set("key", key)
	values.Set("entity_info", "1")
	req.URL.RawQuery = values.Encode()
	req.Header.Set("X-Subscription-Token", b.apiKey)
	req.Header.Set("Accept", "application/json")

	deadline := time.Now().Add(b.pollTimeout)
	for {
		if time.Now().After(deadline) {
			return nil, errors.Errorf("summarizer polling timed out after %v", b.pollTimeout)
		}

		resp, err := b.client().Do(req)
		if err != nil {
			return nil, errors.Wrap(err, "summarizer request failed")
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, errors.Errorf("summarizer request failed: status %s", resp.Status)
		}

		var summary braveSummaryResponse
		err = json.NewDecoder(resp.Body).Decode(&summary)
		resp.Body.Close()
		if err != nil {
			return nil, errors.Wrap(err, "failed to decode summarizer response")
		}

		if summary.Status == "complete" {
			return &summary, nil
		}
		b.log.WithField("status", summary.Status).Debug("brave summary not ready, polling again")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.pollInterval):
		}
	}
}

func (b *BraveProvider) client() *http.Client {
	if b.httpClient != nil {
		return b.httpClient
	}
	return http.DefaultClient
}

type braveSearchResponse struct {
	Summarizer struct {
		Key string `json:"key"`
	} `json:"summarizer"`
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

type braveSummaryResponse struct {
	Status      string `json:"status"`
	Enrichments struct {
		Raw     string `json:"raw"`
		Context []struct {
			Title string `json:"title"`
			URL   string `json:"url"`
		} `json:"context"`
	} `json:"enrichments"`
}
