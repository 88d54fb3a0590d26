// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package seeder

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/4d11/company-search/filters"
)

// Column headers recognized in the company CSV. Multi-valued columns separate
// entries with ";".
const (
	colCompanyName    = "Company Name"
	colCompanyID      = "Company ID"
	colCity           = "City"
	colDescription    = "Description"
	colWebsiteURL     = "Website URL"
	colWebsiteText    = "Website Text"
	colLocation       = "Location"
	colEmployeeCount  = "Employee Count"
	colFundingStage   = "Funding Stage"
	colFundingAmount  = "Funding Amount"
	colIndustries     = "Industries"
	colTargetMarkets  = "Target Markets"
	colBusinessModels = "Business Models"
	colRevenueModels  = "Revenue Models"
)

// companyRow is one parsed CSV line. Empty strings and nil pointers mean the
// column was absent or blank.
type companyRow struct {
	CompanyName   string
	CompanyID     *int64
	City          string
	Description   string
	WebsiteURL    string
	WebsiteText   string
	Location      string
	EmployeeCount *int
	FundingStage  string
	FundingAmount *int64

	Industries     []string
	TargetMarkets  []string
	BusinessModels []string
	RevenueModels  []string
}

// values returns the row's entries for one vocabulary segment.
func (r companyRow) values(segment string) []string {
	switch segment {
	case filters.SegmentLocation:
		if r.Location == "" {
			return nil
		}
		return []string{r.Location}
	case filters.SegmentIndustries:
		return r.Industries
	case filters.SegmentTargetMarkets:
		return r.TargetMarkets
	case filters.SegmentBusinessModels:
		return r.BusinessModels
	case filters.SegmentRevenueModels:
		return r.RevenueModels
	}
	return nil
}

// readCompanyCSV parses a company export: an optional title line, a header
// line naming the columns, then one company per record. Only Company Name is
// required; records without one are skipped. Numeric columns that fail to
// parse are treated as absent, matching the lenient handling of hand-edited
// exports.
func readCompanyCSV(r io.Reader) ([]companyRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	columns, err := readHeader(reader)
	if err != nil {
		return nil, err
	}

	var rows []companyRow
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to read csv record")
		}

		rec := record{columns: columns, fields: fields}
		row := companyRow{
			CompanyName:    rec.get(colCompanyName),
			CompanyID:      rec.int64Value(colCompanyID),
			City:           rec.get(colCity),
			Description:    rec.get(colDescription),
			WebsiteURL:     rec.get(colWebsiteURL),
			WebsiteText:    rec.get(colWebsiteText),
			Location:       rec.get(colLocation),
			EmployeeCount:  rec.intValue(colEmployeeCount),
			FundingStage:   rec.get(colFundingStage),
			FundingAmount:  rec.int64Value(colFundingAmount),
			Industries:     rec.list(colIndustries),
			TargetMarkets:  rec.list(colTargetMarkets),
			BusinessModels: rec.list(colBusinessModels),
			RevenueModels:  rec.list(colRevenueModels),
		}
		if row.CompanyName == "" {
			continue
		}
		if row.Location == "" {
			row.Location = row.City
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// readHeader locates the header line. Exports sometimes carry a title line
// above it, so when the first line has no Company Name column the next one
// gets a chance.
func readHeader(reader *csv.Reader) (map[string]int, error) {
	for attempt := 0; attempt < 2; attempt++ {
		fields, err := reader.Read()
		if err != nil {
			return nil, errors.Wrap(err, "failed to read csv header")
		}
		columns := map[string]int{}
		for i, name := range fields {
			name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
			if name != "" {
				columns[name] = i
			}
		}
		if _, ok := columns[colCompanyName]; ok {
			return columns, nil
		}
	}
	return nil, errors.Errorf("csv header has no %q column", colCompanyName)
}

type record struct {
	columns map[string]int
	fields  []string
}

func (r record) get(column string) string {
	idx, ok := r.columns[column]
	if !ok || idx >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[idx])
}

func (r record) list(column string) []string {
	raw := r.get(column)
	if raw == "" {
		return nil
	}
	var values []string
	for _, part := range strings.Split(raw, ";") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}

func (r record) intValue(column string) *int {
	raw := r.get(column)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &n
}

func (r record) int64Value(column string) *int64 {
	raw := r.get(column)
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
