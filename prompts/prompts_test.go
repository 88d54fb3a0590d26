// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package prompts_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4d11/company-search/llm"
	"github.com/4d11/company-search/prompts"
)

func TestAllTemplatesParse(t *testing.T) {
	p, err := llm.NewPrompts(prompts.PromptsFolder)
	require.NoError(t, err)

	names := []string{
		prompts.PromptAnalyzePortfolioSystem,
		prompts.PromptAnalyzePortfolioUser,
		prompts.PromptClassifyQuerySystem,
		prompts.PromptClassifyQueryUser,
		prompts.PromptExpandThesisSystem,
		prompts.PromptExpandThesisUser,
		prompts.PromptExplainCompaniesSystem,
		prompts.PromptExplainCompaniesUser,
		prompts.PromptExtractFiltersSystem,
		prompts.PromptExtractFiltersUser,
		prompts.PromptResearchCompanySystem,
		prompts.PromptResearchCompanyUser,
		prompts.PromptRewriteQuerySystem,
		prompts.PromptRewriteQueryUser,
	}

	data := map[string]any{
		"Query":         "AI companies in Berlin",
		"CompanyName":   "TestCo",
		"Description":   "An analytics platform",
		"FilterSummary": "industries: AI/ML",
		"CompaniesJSON": `[{"id": 1}]`,
	}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			out, err := p.Format(name, data)
			require.NoError(t, err)
			assert.NotEmpty(t, out)
		})
	}
}

func TestRewriteQueryUserFilterBranches(t *testing.T) {
	p, err := llm.NewPrompts(prompts.PromptsFolder)
	require.NoError(t, err)

	withFilters, err := p.Format(prompts.PromptRewriteQueryUser, map[string]any{
		"Query":         "AI companies",
		"FilterSummary": "industries: AI/ML, FinTech",
	})
	require.NoError(t, err)
	assert.Contains(t, withFilters, `Original query: "AI companies"`)
	assert.Contains(t, withFilters, "Extracted filters:\nindustries: AI/ML, FinTech")

	withoutFilters, err := p.Format(prompts.PromptRewriteQueryUser, map[string]any{
		"Query": "AI companies",
	})
	require.NoError(t, err)
	assert.Contains(t, withoutFilters, "No filters extracted.")
	assert.NotContains(t, withoutFilters, "Extracted filters")
}

func TestExplainCompaniesUserLayout(t *testing.T) {
	p, err := llm.NewPrompts(prompts.PromptsFolder)
	require.NoError(t, err)

	out, err := p.Format(prompts.PromptExplainCompaniesUser, map[string]any{
		"Query":         "fintech in NYC",
		"FilterSummary": "Location: New York",
		"CompaniesJSON": `[{"id": 7, "name": "PayCo"}]`,
	})
	require.NoError(t, err)

	assert.Contains(t, out, `USER QUERY: "fintech in NYC"`)
	assert.Contains(t, out, "APPLIED FILTERS: Location: New York")
	assert.Contains(t, out, `"name": "PayCo"`)
	require.True(t, strings.Index(out, "USER QUERY") < strings.Index(out, "COMPANIES TO EXPLAIN"))
}
