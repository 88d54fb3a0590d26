// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Accepted LLM_PROVIDER values.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// Config carries every runtime setting. All values come from the
// environment; a .env file in the working directory is honored when present.
type Config struct {
	DatabaseURL string

	ElasticsearchURL    string
	ElasticsearchAPIKey string

	EmbeddingBaseURL    string
	EmbeddingAPIKey     string
	EmbeddingModel      string
	EmbeddingDimensions int

	LLMProvider string
	LLMBaseURL  string
	LLMAPIKey   string
	LLMModel    string

	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	ExplanationCacheEnabled bool
	ExplanationCacheSize    int
	ExplanationCacheTTL     time.Duration

	ConceptualExpansion bool

	ResearchTimeout time.Duration

	WebSearchProvider    string
	BraveAPIKey          string
	GoogleAPIKey         string
	GoogleSearchEngineID string

	ServerAddr string
	LogLevel   string
	LogFormat  string
}

// Load reads the environment into a Config. Missing required keys and
// unparseable values fail immediately so a misconfigured process never
// starts serving.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		ElasticsearchURL:     getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
		ElasticsearchAPIKey:  os.Getenv("ELASTICSEARCH_API_KEY"),
		EmbeddingBaseURL:     os.Getenv("EMBEDDING_BASE_URL"),
		EmbeddingAPIKey:      os.Getenv("EMBEDDING_API_KEY"),
		EmbeddingModel:       getEnv("EMBEDDING_MODEL", "BAAI/bge-m3"),
		LLMProvider:          strings.ToLower(getEnv("LLM_PROVIDER", ProviderOpenAI)),
		LLMBaseURL:           os.Getenv("LLM_BASE_URL"),
		LLMAPIKey:            os.Getenv("LLM_API_KEY"),
		LLMModel:             getEnv("LLM_MODEL", "gpt-4o-mini"),
		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:       os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey:   os.Getenv("AWS_SECRET_ACCESS_KEY"),
		WebSearchProvider:    strings.ToLower(os.Getenv("WEB_SEARCH_PROVIDER")),
		BraveAPIKey:          os.Getenv("BRAVE_API_KEY"),
		GoogleAPIKey:         os.Getenv("GOOGLE_API_KEY"),
		GoogleSearchEngineID: os.Getenv("GOOGLE_SEARCH_ENGINE_ID"),
		ServerAddr:           getEnv("SERVER_ADDR", ":8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.EmbeddingDimensions, err = intEnv("EMBEDDING_DIMENSIONS", 1024); err != nil {
		return nil, err
	}
	if cfg.ExplanationCacheEnabled, err = boolEnv("EXPLANATION_CACHE_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.ExplanationCacheSize, err = intEnv("EXPLANATION_CACHE_SIZE", 1000); err != nil {
		return nil, err
	}
	if cfg.ExplanationCacheTTL, err = durationEnv("EXPLANATION_CACHE_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.ConceptualExpansion, err = boolEnv("CONCEPTUAL_EXPANSION_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.ResearchTimeout, err = durationEnv("RESEARCH_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.EmbeddingBaseURL == "" {
		return errors.New("EMBEDDING_BASE_URL is required")
	}
	if c.EmbeddingDimensions <= 0 {
		return errors.Errorf("EMBEDDING_DIMENSIONS must be positive, got %d", c.EmbeddingDimensions)
	}

	switch c.LLMProvider {
	case ProviderOpenAI, ProviderAnthropic:
		if c.LLMAPIKey == "" {
			return errors.Errorf("LLM_API_KEY is required for provider %q", c.LLMProvider)
		}
	case ProviderBedrock:
		// Credentials may come from the default AWS chain, so none are required.
	default:
		return errors.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}

	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s %q", key, raw)
	}
	return v, nil
}

func boolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.Wrapf(err, "invalid %s %q", key, raw)
	}
	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s %q", key, raw)
	}
	return v, nil
}
