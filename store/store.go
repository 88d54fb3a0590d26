// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package store

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when an insert collides with an existing
// vocabulary name.
var ErrAlreadyExists = errors.New("already exists")

// Store is the relational side of the system: company records, segment
// vocabularies, the unknown-extraction log and search logs. The search
// engine owns ranking; the store owns truth.
type Store struct {
	db      *sqlx.DB
	log     *logrus.Logger
	builder sq.StatementBuilderType
}

func New(databaseURL string, log *logrus.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	return NewWithDB(db, log), nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(db *sqlx.DB, log *logrus.Logger) *Store {
	return &Store{
		db:      db,
		log:     log,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// TruncateCompanies clears all company rows and their join rows. The seeder
// reloads companies from scratch; vocabularies survive.
func (s *Store) TruncateCompanies(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `TRUNCATE companies CASCADE`); err != nil {
		return errors.Wrap(err, "failed to truncate companies")
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS locations (
		id SERIAL PRIMARY KEY,
		city TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS industries (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		synonyms TEXT[]
	)`,
	`CREATE TABLE IF NOT EXISTS target_markets (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS business_models (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		synonyms TEXT[]
	)`,
	`CREATE TABLE IF NOT EXISTS revenue_models (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		synonyms TEXT[]
	)`,
	`CREATE TABLE IF NOT EXISTS funding_stages (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		order_index INTEGER NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS companies (
		id SERIAL PRIMARY KEY,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		company_name TEXT NOT NULL,
		company_id BIGINT,
		city TEXT,
		description TEXT,
		website_url TEXT,
		website_text TEXT,
		employee_count INTEGER,
		funding_amount BIGINT, -- whole US dollars
		location_id INTEGER REFERENCES locations(id),
		funding_stage_id INTEGER REFERENCES funding_stages(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_companies_company_name ON companies(company_name)`,
	`CREATE INDEX IF NOT EXISTS idx_companies_employee_count ON companies(employee_count)`,
	`CREATE INDEX IF NOT EXISTS idx_companies_funding_amount ON companies(funding_amount)`,
	`CREATE INDEX IF NOT EXISTS idx_companies_location_id ON companies(location_id)`,
	`CREATE INDEX IF NOT EXISTS idx_companies_funding_stage_id ON companies(funding_stage_id)`,
	`CREATE TABLE IF NOT EXISTS company_industries (
		company_id INTEGER NOT NULL REFERENCES companies(id),
		industry_id INTEGER NOT NULL REFERENCES industries(id),
		PRIMARY KEY (company_id, industry_id)
	)`,
	`CREATE TABLE IF NOT EXISTS company_target_markets (
		company_id INTEGER NOT NULL REFERENCES companies(id),
		target_market_id INTEGER NOT NULL REFERENCES target_markets(id),
		PRIMARY KEY (company_id, target_market_id)
	)`,
	`CREATE TABLE IF NOT EXISTS company_business_models (
		company_id INTEGER NOT NULL REFERENCES companies(id),
		business_model_id INTEGER NOT NULL REFERENCES business_models(id),
		PRIMARY KEY (company_id, business_model_id)
	)`,
	`CREATE TABLE IF NOT EXISTS company_revenue_models (
		company_id INTEGER NOT NULL REFERENCES companies(id),
		revenue_model_id INTEGER NOT NULL REFERENCES revenue_models(id),
		PRIMARY KEY (company_id, revenue_model_id)
	)`,
	`CREATE TABLE IF NOT EXISTS search_logs (
		id SERIAL PRIMARY KEY,
		query TEXT,
		filters_applied JSONB,
		result_count INTEGER NOT NULL DEFAULT 0,
		timestamp TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_search_logs_timestamp ON search_logs(timestamp)`,
	`CREATE TABLE IF NOT EXISTS llm_extractions (
		id SERIAL PRIMARY KEY,
		raw_value TEXT NOT NULL,
		segment TEXT NOT NULL,
		matched_to TEXT,
		count INTEGER NOT NULL DEFAULT 1,
		first_seen TIMESTAMP NOT NULL DEFAULT NOW(),
		last_seen TIMESTAMP NOT NULL DEFAULT NOW(),
		status TEXT NOT NULL DEFAULT 'pending',
		UNIQUE (raw_value, segment)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_llm_extractions_status ON llm_extractions(status)`,
	`CREATE INDEX IF NOT EXISTS idx_llm_extractions_last_seen ON llm_extractions(last_seen)`,
}

// EnsureSchema creates all tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to ensure schema")
		}
	}
	return nil
}
