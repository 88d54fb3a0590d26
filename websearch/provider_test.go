// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package websearch

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestNew(t *testing.T) {
	t.Run("empty provider disables web search", func(t *testing.T) {
		provider, err := New(Config{}, nil, testLogger())
		require.NoError(t, err)
		assert.Nil(t, provider)
	})

	t.Run("brave requires an api key", func(t *testing.T) {
		_, err := New(Config{Provider: ProviderBrave}, nil, testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "BRAVE_API_KEY")
	})

	t.Run("google requires key and engine id", func(t *testing.T) {
		_, err := New(Config{Provider: ProviderGoogle, GoogleAPIKey: "k"}, nil, testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "GOOGLE_SEARCH_ENGINE_ID")
	})

	t.Run("unknown provider is rejected", func(t *testing.T) {
		_, err := New(Config{Provider: "askjeeves"}, nil, testLogger())
		require.Error(t, err)
	})

	t.Run("configured providers construct", func(t *testing.T) {
		brave, err := New(Config{Provider: ProviderBrave, BraveAPIKey: "k"}, nil, testLogger())
		require.NoError(t, err)
		assert.IsType(t, &BraveProvider{}, brave)

		google, err := New(Config{
			Provider:             ProviderGoogle,
			GoogleAPIKey:         "k",
			GoogleSearchEngineID: "cx",
		}, nil, testLogger())
		require.NoError(t, err)
		assert.IsType(t, &GoogleProvider{}, google)
	})
}
