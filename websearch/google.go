// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const defaultGoogleEndpoint = "https://www.googleapis.com/customsearch/v1"

// GoogleProvider searches via the Google Custom Search API. Google has no
// summarizer; responses carry results only.
type GoogleProvider struct {
	apiKey         string
	searchEngineID string
	apiURL         string
	httpClient     *http.Client
	log            *logrus.Logger
}

func NewGoogleProvider(apiKey, searchEngineID, apiURL string, httpClient *http.Client, log *logrus.Logger) *GoogleProvider {
	if apiURL == "" {
		apiURL = defaultGoogleEndpoint
	}
	return &GoogleProvider{
		apiKey:         apiKey,
		searchEngineID: searchEngineID,
		apiURL:         apiURL,
		httpClient:     httpClient,
		log:            log,
	}
}

func (g *GoogleProvider) Search(ctx context.Context, query string, limit int) (*SearchResponse, error) {
	if limit <= 0 {
		limit = 5
	}
	if limit > 10 {
		limit = 10
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create google search request")
	}
	values := url.Values{}
	values.Set("key", g.apiKey)
	values.Set("cx", g.searchEngineID)
	values.Set("q", query)
	values.Set("num", strconv.Itoa(limit))
	req.URL.RawQuery = values.Encode()
	req.Header.Set("Accept", "application/json")

	client := g.httpClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "google search request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("google search request failed: status %s", resp.Status)
	}

	var payload googleSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "failed to decode google search response")
	}

	results := make([]SearchResult, 0, len(payload.Items))
	for _, item := range payload.Items {
		results = append(results, SearchResult{
			Title:   strings.TrimSpace(item.Title),
			URL:     strings.TrimSpace(item.Link),
			Snippet: strings.TrimSpace(item.Snippet),
		})
	}

	return &SearchResponse{Results: results}, nil
}

type googleSearchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}
