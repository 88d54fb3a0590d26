// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package websearch

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Provider names accepted in configuration. An empty name disables web
// search; research briefs then rely on model knowledge alone.
const (
	ProviderBrave  = "brave"
	ProviderGoogle = "google"
)

// SearchResponse is what a provider returns for one query.
type SearchResponse struct {
	// Answer is a pre-formatted summary when the provider offers one
	// (Brave's summarizer); empty otherwise.
	Answer  string
	Results []SearchResult
}

// SearchResult is a single web hit.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// Provider runs one web search. Implementations cap limit at 10.
type Provider interface {
	Search(ctx context.Context, query string, limit int) (*SearchResponse, error)
}

// Config selects and credentials a provider.
type Config struct {
	Provider             string
	BraveAPIKey          string
	GoogleAPIKey         string
	GoogleSearchEngineID string
}

// New builds the configured provider. An empty provider name returns
// (nil, nil): web search is off.
func New(cfg Config, httpClient *http.Client, log *logrus.Logger) (Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case ProviderBrave:
		if cfg.BraveAPIKey == "" {
			return nil, errors.New("brave web search requires BRAVE_API_KEY")
		}
		return NewBraveProvider(cfg.BraveAPIKey, "", httpClient, log), nil
	case ProviderGoogle:
		if cfg.GoogleAPIKey == "" || cfg.GoogleSearchEngineID == "" {
			return nil, errors.New("google web search requires GOOGLE_API_KEY and GOOGLE_SEARCH_ENGINE_ID")
		}
		return NewGoogleProvider(cfg.GoogleAPIKey, cfg.GoogleSearchEngineID, "", httpClient, log), nil
	}
	return nil, errors.Errorf("unknown web search provider %q", cfg.Provider)
}
