// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package es

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/4d11/company-search/metrics"
)

// roundTripperFunc fakes the engine at the HTTP layer.
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// engineResponse builds a response the client accepts as genuine.
func engineResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header: http.Header{
			"X-Elastic-Product": []string{"Elasticsearch"},
			"Content-Type":      []string{"application/json"},
		},
		Body: io.NopCloser(strings.NewReader(body)),
	}
}

func newTestClient(t *testing.T, handler roundTripperFunc) *Client {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	client, err := NewClient(Config{
		URL:       "http://localhost:9200",
		Transport: handler,
	}, log, metrics.NewMetrics(metrics.InstanceInfo{}))
	require.NoError(t, err)
	return client
}
