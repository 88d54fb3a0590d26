// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package es

import (
	"context"
	"strconv"
)

// Hit is one ranked company from the engine. ID is the relational primary
// key the document was indexed under; Score is the engine relevance score
// (cosine-shifted to [0,2] on the script_score path).
type Hit struct {
	ID    int64
	Score float64
}

// SearchCompanies runs a translated query body against the companies index
// and returns ranked ids. Rank order is authoritative; hydration must not
// reorder.
func (c *Client) SearchCompanies(ctx context.Context, body map[string]any) ([]Hit, error) {
	res, err := c.search(ctx, CompanyIndexName, body)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			c.log.WithField("id", hit.ID).Warn("Skipping non-numeric document id")
			continue
		}
		hits = append(hits, Hit{ID: id, Score: hit.Score})
	}
	return hits, nil
}
