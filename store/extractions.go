// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// Extraction statuses.
const (
	ExtractionStatusPending  = "pending"
	ExtractionStatusApproved = "approved"
	ExtractionStatusMapped   = "mapped"
	ExtractionStatusIgnored  = "ignored"
)

// Extraction is one language-model-extracted value that failed
// canonicalization, logged for review.
type Extraction struct {
	ID        int64          `db:"id"`
	RawValue  string         `db:"raw_value"`
	Segment   string         `db:"segment"`
	MatchedTo sql.NullString `db:"matched_to"`
	Count     int            `db:"count"`
	FirstSeen time.Time      `db:"first_seen"`
	LastSeen  time.Time      `db:"last_seen"`
	Status    string         `db:"status"`
}

// UpsertUnknownExtraction records a vocabulary miss. Repeats bump the count
// and refresh last_seen.
func (s *Store) UpsertUnknownExtraction(ctx context.Context, rawValue, segment string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_extractions (raw_value, segment)
		VALUES ($1, $2)
		ON CONFLICT (raw_value, segment)
		DO UPDATE SET count = llm_extractions.count + 1, last_seen = NOW()`,
		rawValue, segment)
	if err != nil {
		return errors.Wrapf(err, "failed to upsert unknown extraction %q", rawValue)
	}
	return nil
}

// ListExtractions returns extractions filtered by status and segment,
// most frequent first.
func (s *Store) ListExtractions(ctx context.Context, status, segment string) ([]Extraction, error) {
	builder := s.builder.
		Select("id", "raw_value", "segment", "matched_to", "count", "first_seen", "last_seen", "status").
		From("llm_extractions").
		OrderBy("count DESC")
	if status != "" {
		builder = builder.Where("status = ?", status)
	}
	if segment != "" {
		builder = builder.Where("segment = ?", segment)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build extractions query")
	}

	var extractions []Extraction
	if err := s.db.SelectContext(ctx, &extractions, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list extractions")
	}
	return extractions, nil
}

func (s *Store) extractionByID(ctx context.Context, id int64) (*Extraction, error) {
	var e Extraction
	err := s.db.GetContext(ctx, &e, `
		SELECT id, raw_value, segment, matched_to, count, first_seen, last_seen, status
		FROM llm_extractions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "failed to load extraction %d", id)
	}
	return &e, nil
}

// Approval reports the vocabulary value an approved extraction created.
type Approval struct {
	VocabularyID int64
	Name         string
	Segment      string
}

// ApproveExtraction promotes an unknown value into its segment's vocabulary.
// An empty approvedName keeps the raw value. Fails with ErrAlreadyExists when
// the name is already canonical.
func (s *Store) ApproveExtraction(ctx context.Context, extractionID int64, approvedName string) (*Approval, error) {
	extraction, err := s.extractionByID(ctx, extractionID)
	if err != nil {
		return nil, err
	}
	if approvedName == "" {
		approvedName = extraction.RawValue
	}

	st, ok := segmentTables[extraction.Segment]
	if !ok {
		return nil, errors.Errorf("unknown segment: %s", extraction.Segment)
	}

	var exists bool
	checkQuery := `SELECT EXISTS (SELECT 1 FROM ` + st.table + ` WHERE ` + st.nameColumn + ` = $1)`
	if err := s.db.GetContext(ctx, &exists, checkQuery, approvedName); err != nil {
		return nil, errors.Wrap(err, "failed to check vocabulary")
	}
	if exists {
		return nil, ErrAlreadyExists
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var vocabID int64
	insertQuery := `INSERT INTO ` + st.table + ` (` + st.nameColumn + `) VALUES ($1) RETURNING id`
	if err := tx.GetContext(ctx, &vocabID, insertQuery, approvedName); err != nil {
		return nil, errors.Wrapf(err, "failed to insert vocabulary value %q", approvedName)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE llm_extractions SET status = $1, matched_to = $2 WHERE id = $3`,
		ExtractionStatusApproved, approvedName, extractionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update extraction status")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit approval")
	}
	return &Approval{VocabularyID: vocabID, Name: approvedName, Segment: extraction.Segment}, nil
}

// MapExtraction marks an unknown value as an alias of an existing vocabulary
// entry and returns the canonical name it mapped to.
func (s *Store) MapExtraction(ctx context.Context, extractionID, vocabularyID int64) (string, error) {
	extraction, err := s.extractionByID(ctx, extractionID)
	if err != nil {
		return "", err
	}

	st, ok := segmentTables[extraction.Segment]
	if !ok {
		return "", errors.Errorf("unknown segment: %s", extraction.Segment)
	}

	var name string
	nameQuery := `SELECT ` + st.nameColumn + ` FROM ` + st.table + ` WHERE id = $1`
	if err := s.db.GetContext(ctx, &name, nameQuery, vocabularyID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", errors.Wrapf(err, "failed to load vocabulary value %d", vocabularyID)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE llm_extractions SET status = $1, matched_to = $2 WHERE id = $3`,
		ExtractionStatusMapped, name, extractionID)
	if err != nil {
		return "", errors.Wrap(err, "failed to update extraction status")
	}
	return name, nil
}
