// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/4d11/company-search/es"
	"github.com/4d11/company-search/filters"
	"github.com/4d11/company-search/store"
)

func (a *API) handleSearchAnalytics(c *gin.Context) {
	analytics, err := a.store.SearchAnalytics(c.Request.Context())
	if err != nil {
		a.log.WithError(err).Error("failed to load search analytics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load search analytics"})
		return
	}
	c.JSON(http.StatusOK, analytics)
}

// ExtractionResponse is one logged vocabulary miss.
type ExtractionResponse struct {
	ID        int64     `json:"id"`
	RawValue  string    `json:"raw_value"`
	Segment   string    `json:"segment"`
	MatchedTo string    `json:"matched_to,omitempty"`
	Count     int       `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Status    string    `json:"status"`
}

func (a *API) handleListExtractions(c *gin.Context) {
	extractions, err := a.store.ListExtractions(c.Request.Context(), c.Query("status"), c.Query("segment"))
	if err != nil {
		a.log.WithError(err).Error("failed to list unknown extractions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list unknown extractions"})
		return
	}

	out := make([]ExtractionResponse, 0, len(extractions))
	for _, e := range extractions {
		out = append(out, ExtractionResponse{
			ID:        e.ID,
			RawValue:  e.RawValue,
			Segment:   e.Segment,
			MatchedTo: e.MatchedTo.String,
			Count:     e.Count,
			FirstSeen: e.FirstSeen,
			LastSeen:  e.LastSeen,
			Status:    e.Status,
		})
	}
	c.JSON(http.StatusOK, out)
}

// ApproveExtractionRequest optionally renames the raw value on its way into
// the vocabulary.
type ApproveExtractionRequest struct {
	ApprovedName string `json:"approved_name"`
}

func (a *API) handleApproveExtraction(c *gin.Context) {
	id, ok := extractionID(c)
	if !ok {
		return
	}

	var req ApproveExtractionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
			return
		}
	}

	approval, err := a.store.ApproveExtraction(c.Request.Context(), id, req.ApprovedName)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "extraction not found"})
		case errors.Is(err, store.ErrAlreadyExists):
			c.JSON(http.StatusConflict, gin.H{"error": "value is already in the vocabulary"})
		default:
			a.log.WithError(err).Error("failed to approve extraction")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to approve extraction"})
		}
		return
	}

	// New vocabulary must be findable by the canonicalizer immediately.
	err = a.engine.IndexSegmentValue(c.Request.Context(), approval.Segment, es.SegmentValue{
		ID:   approval.VocabularyID,
		Name: approval.Name,
	})
	if err != nil {
		a.log.WithError(err).WithField("segment", approval.Segment).
			Warn("approved value not yet indexed, reindex required")
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"vocabulary_id": approval.VocabularyID,
		"name":          approval.Name,
	})
}

// MapExtractionRequest points a raw value at an existing vocabulary entry.
type MapExtractionRequest struct {
	VocabularyID int64 `json:"vocabulary_id"`
}

func (a *API) handleMapExtraction(c *gin.Context) {
	id, ok := extractionID(c)
	if !ok {
		return
	}

	var req MapExtractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}
	if req.VocabularyID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vocabulary_id is required"})
		return
	}

	mappedTo, err := a.store.MapExtraction(c.Request.Context(), id, req.VocabularyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "extraction or vocabulary entry not found"})
			return
		}
		a.log.WithError(err).Error("failed to map extraction")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to map extraction"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"extraction_id": id,
		"mapped_to":     mappedTo,
	})
}

// VocabularyItem is one row of the mapping picker.
type VocabularyItem struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (a *API) handleVocabulary(c *gin.Context) {
	segment := c.Param("segment")
	if !filters.IsTextSegment(segment) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown segment: " + segment})
		return
	}

	entries, err := a.store.VocabularyEntries(c.Request.Context(), segment)
	if err != nil {
		a.log.WithError(err).Error("failed to load vocabulary")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load vocabulary"})
		return
	}

	out := make([]VocabularyItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, VocabularyItem{ID: e.ID, Name: e.Name})
	}
	c.JSON(http.StatusOK, out)
}

func extractionID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid extraction id"})
		return 0, false
	}
	return id, true
}
