// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package prompts

// Automatically generated convenience vars for the filenames in prompts/
const (
	PromptAnalyzePortfolioSystem = "analyze_portfolio_system"
	PromptAnalyzePortfolioUser   = "analyze_portfolio_user"
	PromptClassifyQuerySystem    = "classify_query_system"
	PromptClassifyQueryUser      = "classify_query_user"
	PromptExpandThesisSystem     = "expand_thesis_system"
	PromptExpandThesisUser       = "expand_thesis_user"
	PromptExplainCompaniesSystem = "explain_companies_system"
	PromptExplainCompaniesUser   = "explain_companies_user"
	PromptExtractFiltersSystem   = "extract_filters_system"
	PromptExtractFiltersUser     = "extract_filters_user"
	PromptResearchCompanySystem  = "research_company_system"
	PromptResearchCompanyUser    = "research_company_user"
	PromptRewriteQuerySystem     = "rewrite_query_system"
	PromptRewriteQueryUser       = "rewrite_query_user"
)
