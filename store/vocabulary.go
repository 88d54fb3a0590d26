// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/4d11/company-search/filters"
)

// VocabularyEntry is one canonical value of a segment vocabulary.
type VocabularyEntry struct {
	ID       int64          `db:"id"`
	Name     string         `db:"name"`
	Synonyms pq.StringArray `db:"synonyms"`
}

// Stage is a funding stage with its strictly increasing order index.
type Stage struct {
	ID         int64  `db:"id"`
	Name       string `db:"name"`
	OrderIndex int    `db:"order_index"`
}

type segmentTable struct {
	table       string
	nameColumn  string
	hasSynonyms bool
}

var segmentTables = map[string]segmentTable{
	filters.SegmentLocation:       {table: "locations", nameColumn: "city"},
	filters.SegmentIndustries:     {table: "industries", nameColumn: "name", hasSynonyms: true},
	filters.SegmentTargetMarkets:  {table: "target_markets", nameColumn: "name"},
	filters.SegmentBusinessModels: {table: "business_models", nameColumn: "name", hasSynonyms: true},
	filters.SegmentRevenueModels:  {table: "revenue_models", nameColumn: "name", hasSynonyms: true},
	filters.SegmentFundingStage:   {table: "funding_stages", nameColumn: "name"},
}

// VocabularyEntries returns all canonical values for a segment, sorted by
// name.
func (s *Store) VocabularyEntries(ctx context.Context, segment string) ([]VocabularyEntry, error) {
	st, ok := segmentTables[segment]
	if !ok {
		return nil, errors.Errorf("unknown segment: %s", segment)
	}

	columns := []string{"id", st.nameColumn + " AS name"}
	if st.hasSynonyms {
		columns = append(columns, "synonyms")
	}

	query, args, err := s.builder.
		Select(columns...).
		From(st.table).
		OrderBy(st.nameColumn).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build vocabulary query")
	}

	var entries []VocabularyEntry
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, errors.Wrapf(err, "failed to load %s vocabulary", segment)
	}
	return entries, nil
}

// VocabularyNames returns only the sorted canonical names for a segment.
func (s *Store) VocabularyNames(ctx context.Context, segment string) ([]string, error) {
	entries, err := s.VocabularyEntries(ctx, segment)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names, nil
}

// FundingStages returns all stages ordered by their order index.
func (s *Store) FundingStages(ctx context.Context) ([]Stage, error) {
	query, args, err := s.builder.
		Select("id", "name", "order_index").
		From("funding_stages").
		OrderBy("order_index").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build funding stages query")
	}

	var stages []Stage
	if err := s.db.SelectContext(ctx, &stages, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to load funding stages")
	}
	return stages, nil
}

// StageByName resolves a funding stage by case-insensitive name.
func (s *Store) StageByName(ctx context.Context, name string) (*Stage, error) {
	query, args, err := s.builder.
		Select("id", "name", "order_index").
		From("funding_stages").
		Where("LOWER(name) = LOWER(?)", name).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build stage query")
	}

	var stage Stage
	if err := s.db.GetContext(ctx, &stage, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "failed to resolve stage %q", name)
	}
	return &stage, nil
}

// SynonymRows renders a segment's synonym lists as search-engine filter rows
// of the shape "canonical, syn1, syn2". Entries without synonyms produce no
// row.
func (s *Store) SynonymRows(ctx context.Context, segment string) ([]string, error) {
	st, ok := segmentTables[segment]
	if !ok || !st.hasSynonyms {
		return nil, nil
	}

	entries, err := s.VocabularyEntries(ctx, segment)
	if err != nil {
		return nil, err
	}

	var rows []string
	for _, e := range entries {
		if len(e.Synonyms) == 0 {
			continue
		}
		rows = append(rows, e.Name+", "+strings.Join(e.Synonyms, ", "))
	}
	return rows, nil
}

// EnsureVocabularyValue inserts a canonical value if missing and returns its
// id either way.
func (s *Store) EnsureVocabularyValue(ctx context.Context, segment, name string) (int64, error) {
	st, ok := segmentTables[segment]
	if !ok {
		return 0, errors.Errorf("unknown segment: %s", segment)
	}

	var id int64
	query := `INSERT INTO ` + st.table + ` (` + st.nameColumn + `) VALUES ($1)
		ON CONFLICT (` + st.nameColumn + `) DO UPDATE SET ` + st.nameColumn + ` = EXCLUDED.` + st.nameColumn + `
		RETURNING id`
	if err := s.db.GetContext(ctx, &id, query, name); err != nil {
		return 0, errors.Wrapf(err, "failed to ensure %s value %q", segment, name)
	}
	return id, nil
}

// EnsureFundingStage inserts a stage with its order index if missing.
func (s *Store) EnsureFundingStage(ctx context.Context, name string, orderIndex int) (int64, error) {
	var id int64
	query := `INSERT INTO funding_stages (name, order_index) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET order_index = EXCLUDED.order_index
		RETURNING id`
	if err := s.db.GetContext(ctx, &id, query, name, orderIndex); err != nil {
		return 0, errors.Wrapf(err, "failed to ensure funding stage %q", name)
	}
	return id, nil
}

// SetSynonyms replaces the synonym list for one canonical value.
func (s *Store) SetSynonyms(ctx context.Context, segment, name string, synonyms []string) error {
	st, ok := segmentTables[segment]
	if !ok {
		return errors.Errorf("unknown segment: %s", segment)
	}
	if !st.hasSynonyms {
		return errors.Errorf("segment %s carries no synonyms", segment)
	}

	query := `UPDATE ` + st.table + ` SET synonyms = $1 WHERE ` + st.nameColumn + ` = $2`
	res, err := s.db.ExecContext(ctx, query, pq.Array(synonyms), name)
	if err != nil {
		return errors.Wrapf(err, "failed to set synonyms for %q", name)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
