// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// Company is a fully hydrated company record: the base row joined with its
// location, funding stage, and the four many-to-many vocabularies.
type Company struct {
	ID            int64          `db:"id"`
	CreatedAt     time.Time      `db:"created_at"`
	CompanyName   string         `db:"company_name"`
	CompanyID     sql.NullInt64  `db:"company_id"`
	City          sql.NullString `db:"city"`
	Description   sql.NullString `db:"description"`
	WebsiteURL    sql.NullString `db:"website_url"`
	WebsiteText   sql.NullString `db:"website_text"`
	EmployeeCount sql.NullInt64  `db:"employee_count"`
	FundingAmount sql.NullInt64  `db:"funding_amount"` // whole US dollars
	Location      sql.NullString `db:"location"`
	FundingStage  sql.NullString `db:"funding_stage"`
	StageOrder    sql.NullInt64  `db:"stage_order"`

	Industries     pq.StringArray `db:"industries"`
	TargetMarkets  pq.StringArray `db:"target_markets"`
	BusinessModels pq.StringArray `db:"business_models"`
	RevenueModels  pq.StringArray `db:"revenue_models"`
}

const companySelect = `
SELECT
	c.id, c.created_at, c.company_name, c.company_id, c.city, c.description,
	c.website_url, c.website_text, c.employee_count, c.funding_amount,
	l.city AS location,
	fs.name AS funding_stage,
	fs.order_index AS stage_order,
	COALESCE((SELECT array_agg(i.name ORDER BY i.name)
		FROM industries i JOIN company_industries ci ON ci.industry_id = i.id
		WHERE ci.company_id = c.id), '{}') AS industries,
	COALESCE((SELECT array_agg(tm.name ORDER BY tm.name)
		FROM target_markets tm JOIN company_target_markets ctm ON ctm.target_market_id = tm.id
		WHERE ctm.company_id = c.id), '{}') AS target_markets,
	COALESCE((SELECT array_agg(bm.name ORDER BY bm.name)
		FROM business_models bm JOIN company_business_models cbm ON cbm.business_model_id = bm.id
		WHERE cbm.company_id = c.id), '{}') AS business_models,
	COALESCE((SELECT array_agg(rm.name ORDER BY rm.name)
		FROM revenue_models rm JOIN company_revenue_models crm ON crm.revenue_model_id = rm.id
		WHERE crm.company_id = c.id), '{}') AS revenue_models
FROM companies c
LEFT JOIN locations l ON l.id = c.location_id
LEFT JOIN funding_stages fs ON fs.id = c.funding_stage_id`

// CompaniesByIDs hydrates the given ids and returns them in the order the
// ids were passed, dropping any id with no row. The engine's rank order is
// authoritative; callers pass ranked ids.
func (s *Store) CompaniesByIDs(ctx context.Context, ids []int64) ([]Company, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []Company
	if err := s.db.SelectContext(ctx, &rows, companySelect+` WHERE c.id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, errors.Wrap(err, "failed to hydrate companies")
	}

	byID := make(map[int64]Company, len(rows))
	for _, c := range rows {
		byID[c.ID] = c
	}

	ordered := make([]Company, 0, len(rows))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered, nil
}

// AllCompanies streams every company, used by the reindex job.
func (s *Store) AllCompanies(ctx context.Context) ([]Company, error) {
	var rows []Company
	if err := s.db.SelectContext(ctx, &rows, companySelect+` ORDER BY c.id`); err != nil {
		return nil, errors.Wrap(err, "failed to load companies")
	}
	return rows, nil
}

// CompanyInput is the seed-path shape for inserting one company with its
// vocabulary relations already resolved to ids.
type CompanyInput struct {
	CompanyName      string
	CompanyID        *int64
	City             *string
	Description      *string
	WebsiteURL       *string
	WebsiteText      *string
	EmployeeCount    *int
	FundingAmount    *int64
	LocationID       *int64
	FundingStageID   *int64
	IndustryIDs      []int64
	TargetMarketIDs  []int64
	BusinessModelIDs []int64
	RevenueModelIDs  []int64
}

// InsertCompany writes the base row and all join rows in one transaction and
// returns the new id.
func (s *Store) InsertCompany(ctx context.Context, input CompanyInput) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var id int64
	err = tx.GetContext(ctx, &id, `
		INSERT INTO companies (
			company_name, company_id, city, description, website_url, website_text,
			employee_count, funding_amount, location_id, funding_stage_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		input.CompanyName, input.CompanyID, input.City, input.Description,
		input.WebsiteURL, input.WebsiteText, input.EmployeeCount,
		input.FundingAmount, input.LocationID, input.FundingStageID)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to insert company %q", input.CompanyName)
	}

	joins := []struct {
		table  string
		column string
		ids    []int64
	}{
		{"company_industries", "industry_id", input.IndustryIDs},
		{"company_target_markets", "target_market_id", input.TargetMarketIDs},
		{"company_business_models", "business_model_id", input.BusinessModelIDs},
		{"company_revenue_models", "revenue_model_id", input.RevenueModelIDs},
	}
	for _, join := range joins {
		for _, vocabID := range join.ids {
			query := `INSERT INTO ` + join.table + ` (company_id, ` + join.column + `) VALUES ($1, $2) ON CONFLICT DO NOTHING`
			if _, err := tx.ExecContext(ctx, query, id, vocabID); err != nil {
				return 0, errors.Wrapf(err, "failed to link %s for company %d", join.table, id)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit company insert")
	}
	return id, nil
}
