// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"DATABASE_URL",
	"ELASTICSEARCH_URL",
	"ELASTICSEARCH_API_KEY",
	"EMBEDDING_BASE_URL",
	"EMBEDDING_API_KEY",
	"EMBEDDING_MODEL",
	"EMBEDDING_DIMENSIONS",
	"LLM_PROVIDER",
	"LLM_BASE_URL",
	"LLM_API_KEY",
	"LLM_MODEL",
	"AWS_REGION",
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"EXPLANATION_CACHE_ENABLED",
	"EXPLANATION_CACHE_SIZE",
	"EXPLANATION_CACHE_TTL",
	"CONCEPTUAL_EXPANSION_ENABLED",
	"RESEARCH_TIMEOUT",
	"WEB_SEARCH_PROVIDER",
	"BRAVE_API_KEY",
	"GOOGLE_API_KEY",
	"GOOGLE_SEARCH_ENGINE_ID",
	"SERVER_ADDR",
	"LOG_LEVEL",
	"LOG_FORMAT",
}

// loadWith clears every config key, applies env, and loads. t.Setenv
// restores the host environment when the test finishes.
func loadWith(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
	return Load()
}

func requiredEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":       "postgres://localhost:5432/companies?sslmode=disable",
		"EMBEDDING_BASE_URL": "http://localhost:8001/v1",
		"LLM_API_KEY":        "test-key",
	}
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadWith(t, requiredEnv())
		require.NoError(t, err)

		assert.Equal(t, "postgres://localhost:5432/companies?sslmode=disable", cfg.DatabaseURL)
		assert.Equal(t, "http://localhost:9200", cfg.ElasticsearchURL)
		assert.Equal(t, "BAAI/bge-m3", cfg.EmbeddingModel)
		assert.Equal(t, 1024, cfg.EmbeddingDimensions)
		assert.Equal(t, ProviderOpenAI, cfg.LLMProvider)
		assert.Equal(t, "gpt-4o-mini", cfg.LLMModel)
		assert.Equal(t, "us-east-1", cfg.AWSRegion)
		assert.True(t, cfg.ExplanationCacheEnabled)
		assert.Equal(t, 1000, cfg.ExplanationCacheSize)
		assert.Equal(t, time.Hour, cfg.ExplanationCacheTTL)
		assert.True(t, cfg.ConceptualExpansion)
		assert.Equal(t, 30*time.Second, cfg.ResearchTimeout)
		assert.Empty(t, cfg.WebSearchProvider)
		assert.Equal(t, ":8080", cfg.ServerAddr)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, "text", cfg.LogFormat)
	})

	t.Run("overrides", func(t *testing.T) {
		env := requiredEnv()
		env["ELASTICSEARCH_URL"] = "https://es.internal:9243"
		env["ELASTICSEARCH_API_KEY"] = "es-key"
		env["EMBEDDING_MODEL"] = "text-embedding-3-small"
		env["EMBEDDING_DIMENSIONS"] = "1536"
		env["LLM_PROVIDER"] = "anthropic"
		env["LLM_MODEL"] = "claude-sonnet-4-20250514"
		env["EXPLANATION_CACHE_ENABLED"] = "false"
		env["EXPLANATION_CACHE_SIZE"] = "250"
		env["EXPLANATION_CACHE_TTL"] = "90m"
		env["CONCEPTUAL_EXPANSION_ENABLED"] = "false"
		env["RESEARCH_TIMEOUT"] = "45s"
		env["WEB_SEARCH_PROVIDER"] = "brave"
		env["BRAVE_API_KEY"] = "brave-key"
		env["SERVER_ADDR"] = ":9090"
		env["LOG_LEVEL"] = "debug"
		env["LOG_FORMAT"] = "json"

		cfg, err := loadWith(t, env)
		require.NoError(t, err)

		assert.Equal(t, "https://es.internal:9243", cfg.ElasticsearchURL)
		assert.Equal(t, "es-key", cfg.ElasticsearchAPIKey)
		assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
		assert.Equal(t, 1536, cfg.EmbeddingDimensions)
		assert.Equal(t, ProviderAnthropic, cfg.LLMProvider)
		assert.Equal(t, "claude-sonnet-4-20250514", cfg.LLMModel)
		assert.False(t, cfg.ExplanationCacheEnabled)
		assert.Equal(t, 250, cfg.ExplanationCacheSize)
		assert.Equal(t, 90*time.Minute, cfg.ExplanationCacheTTL)
		assert.False(t, cfg.ConceptualExpansion)
		assert.Equal(t, 45*time.Second, cfg.ResearchTimeout)
		assert.Equal(t, "brave", cfg.WebSearchProvider)
		assert.Equal(t, "brave-key", cfg.BraveAPIKey)
		assert.Equal(t, ":9090", cfg.ServerAddr)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "json", cfg.LogFormat)
	})

	t.Run("provider name is case insensitive", func(t *testing.T) {
		env := requiredEnv()
		env["LLM_PROVIDER"] = "Anthropic"

		cfg, err := loadWith(t, env)
		require.NoError(t, err)
		assert.Equal(t, ProviderAnthropic, cfg.LLMProvider)
	})

	t.Run("database url is required", func(t *testing.T) {
		env := requiredEnv()
		delete(env, "DATABASE_URL")

		_, err := loadWith(t, env)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DATABASE_URL")
	})

	t.Run("embedding base url is required", func(t *testing.T) {
		env := requiredEnv()
		delete(env, "EMBEDDING_BASE_URL")

		_, err := loadWith(t, env)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "EMBEDDING_BASE_URL")
	})

	t.Run("llm api key required for openai", func(t *testing.T) {
		env := requiredEnv()
		delete(env, "LLM_API_KEY")

		_, err := loadWith(t, env)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "LLM_API_KEY")
	})

	t.Run("bedrock allows missing api key", func(t *testing.T) {
		env := requiredEnv()
		delete(env, "LLM_API_KEY")
		env["LLM_PROVIDER"] = "bedrock"

		cfg, err := loadWith(t, env)
		require.NoError(t, err)
		assert.Equal(t, ProviderBedrock, cfg.LLMProvider)
	})

	t.Run("unknown provider rejected", func(t *testing.T) {
		env := requiredEnv()
		env["LLM_PROVIDER"] = "llama-farm"

		_, err := loadWith(t, env)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown LLM_PROVIDER "llama-farm"`)
	})

	t.Run("invalid integer rejected", func(t *testing.T) {
		env := requiredEnv()
		env["EMBEDDING_DIMENSIONS"] = "lots"

		_, err := loadWith(t, env)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "EMBEDDING_DIMENSIONS")
	})

	t.Run("negative dimensions rejected", func(t *testing.T) {
		env := requiredEnv()
		env["EMBEDDING_DIMENSIONS"] = "-5"

		_, err := loadWith(t, env)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "EMBEDDING_DIMENSIONS must be positive")
	})

	t.Run("invalid duration rejected", func(t *testing.T) {
		env := requiredEnv()
		env["RESEARCH_TIMEOUT"] = "soon"

		_, err := loadWith(t, env)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "RESEARCH_TIMEOUT")
	})

	t.Run("invalid bool rejected", func(t *testing.T) {
		env := requiredEnv()
		env["EXPLANATION_CACHE_ENABLED"] = "sure"

		_, err := loadWith(t, env)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "EXPLANATION_CACHE_ENABLED")
	})
}
