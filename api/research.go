// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ResearchRequest asks for briefs on a set of companies. The query is
// optional; without one the briefs are general overviews.
type ResearchRequest struct {
	CompanyIDs []int64 `json:"company_ids"`
	Query      string  `json:"query"`
}

// ResearchResponse maps company id to its brief, or to an error string when
// that company's research failed.
type ResearchResponse struct {
	Results map[int64]string `json:"results"`
}

func (a *API) handleResearch(c *gin.Context) {
	var req ResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}
	if len(req.CompanyIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "company_ids is required"})
		return
	}

	results, err := a.researcher.ResearchCompanies(c.Request.Context(), req.CompanyIDs, req.Query)
	if err != nil {
		a.log.WithError(err).Error("research failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "research failed"})
		return
	}

	c.JSON(http.StatusOK, ResearchResponse{Results: results})
}
