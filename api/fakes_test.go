// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/4d11/company-search/discovery"
	"github.com/4d11/company-search/es"
	"github.com/4d11/company-search/metrics"
	"github.com/4d11/company-search/store"
)

type fakeSearcher struct {
	resp    *discovery.SearchResponse
	err     error
	lastReq discovery.SearchRequest
	calls   int
}

func (f *fakeSearcher) Search(_ context.Context, req discovery.SearchRequest) (*discovery.SearchResponse, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeResearcher struct {
	results   map[int64]string
	err       error
	lastIDs   []int64
	lastQuery string
}

func (f *fakeResearcher) ResearchCompanies(_ context.Context, ids []int64, query string) (map[int64]string, error) {
	f.lastIDs = ids
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeStore struct {
	pingErr error

	insertLogErr  error
	loggedQuery   string
	loggedFilters []byte
	loggedCount   int
	logCalls      int

	analytics    *store.Analytics
	analyticsErr error

	extractions []store.Extraction
	listErr     error
	lastStatus  string
	lastSegment string

	approval     *store.Approval
	approveErr   error
	approvedID   int64
	approvedName string

	mapResult     string
	mapErr        error
	mappedID      int64
	mappedVocabID int64

	vocabEntries map[string][]store.VocabularyEntry
	vocabErr     error

	names    map[string][]string
	namesErr error

	stages    []store.Stage
	stagesErr error
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) InsertSearchLog(_ context.Context, query string, filtersJSON []byte, resultCount int) error {
	f.logCalls++
	f.loggedQuery = query
	f.loggedFilters = filtersJSON
	f.loggedCount = resultCount
	return f.insertLogErr
}

func (f *fakeStore) SearchAnalytics(context.Context) (*store.Analytics, error) {
	if f.analyticsErr != nil {
		return nil, f.analyticsErr
	}
	return f.analytics, nil
}

func (f *fakeStore) ListExtractions(_ context.Context, status, segment string) ([]store.Extraction, error) {
	f.lastStatus = status
	f.lastSegment = segment
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.extractions, nil
}

func (f *fakeStore) ApproveExtraction(_ context.Context, extractionID int64, approvedName string) (*store.Approval, error) {
	f.approvedID = extractionID
	f.approvedName = approvedName
	if f.approveErr != nil {
		return nil, f.approveErr
	}
	return f.approval, nil
}

func (f *fakeStore) MapExtraction(_ context.Context, extractionID, vocabularyID int64) (string, error) {
	f.mappedID = extractionID
	f.mappedVocabID = vocabularyID
	if f.mapErr != nil {
		return "", f.mapErr
	}
	return f.mapResult, nil
}

func (f *fakeStore) VocabularyEntries(_ context.Context, segment string) ([]store.VocabularyEntry, error) {
	if f.vocabErr != nil {
		return nil, f.vocabErr
	}
	return f.vocabEntries[segment], nil
}

func (f *fakeStore) VocabularyNames(_ context.Context, segment string) ([]string, error) {
	if f.namesErr != nil {
		return nil, f.namesErr
	}
	return f.names[segment], nil
}

func (f *fakeStore) FundingStages(context.Context) ([]store.Stage, error) {
	if f.stagesErr != nil {
		return nil, f.stagesErr
	}
	return f.stages, nil
}

type fakeEngine struct {
	pingErr        error
	indexErr       error
	indexedSegment string
	indexedValue   es.SegmentValue
	indexCalls     int
}

func (f *fakeEngine) Ping(context.Context) error { return f.pingErr }

func (f *fakeEngine) IndexSegmentValue(_ context.Context, segment string, value es.SegmentValue) error {
	f.indexCalls++
	f.indexedSegment = segment
	f.indexedValue = value
	return f.indexErr
}

func newTestRouter(t *testing.T, searcher Searcher, researcher Researcher, st Store, engine Engine) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logrus.New()
	log.SetOutput(io.Discard)
	m := metrics.NewMetrics(metrics.InstanceInfo{})

	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), Logging(log), Metrics(m))
	New(searcher, researcher, st, engine, log, m).Register(router)
	return router
}

func perform(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			panic(err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func performRaw(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return out
}
