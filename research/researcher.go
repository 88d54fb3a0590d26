// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package research

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/4d11/company-search/llm"
	"github.com/4d11/company-search/metrics"
	"github.com/4d11/company-search/prompts"
	"github.com/4d11/company-search/store"
	"github.com/4d11/company-search/websearch"
)

const (
	// DefaultTimeout bounds one company's research task when config leaves it
	// unset.
	DefaultTimeout = 30 * time.Second

	// maxConcurrent caps parallel research tasks; briefs are slow model calls
	// and the batch sizes are small.
	maxConcurrent = 4

	// webResultLimit is how many web hits feed one brief.
	webResultLimit = 5

	researchTemperature = 0.3
)

// defaultQuery is used when the caller asks for briefs without a question.
const defaultQuery = "Give a general overview: what the company does, its product, market, and competitors."

// CompanyLoader hydrates companies by id.
type CompanyLoader interface {
	CompaniesByIDs(ctx context.Context, ids []int64) ([]store.Company, error)
}

// Researcher writes short per-company research briefs. Each company gets its
// own bounded task: an optional web search for fresh context, then one model
// call. A failed task turns into an error string for that company; the batch
// itself only fails when the store does.
type Researcher struct {
	completer llm.Completer
	prompts   *llm.Prompts
	web       websearch.Provider // nil means model knowledge only
	store     CompanyLoader
	timeout   time.Duration
	log       *logrus.Logger
	metrics   metrics.Metrics
}

func NewResearcher(
	completer llm.Completer,
	promptSet *llm.Prompts,
	web websearch.Provider,
	loader CompanyLoader,
	timeout time.Duration,
	log *logrus.Logger,
	m metrics.Metrics,
) *Researcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Researcher{
		completer: completer,
		prompts:   promptSet,
		web:       web,
		store:     loader,
		timeout:   timeout,
		log:       log,
		metrics:   m,
	}
}

// ResearchCompanies fans out one brief per requested company and returns them
// keyed by company id. Ids the store no longer knows are skipped with a
// warning; per-company failures become error strings in the result.
func (r *Researcher) ResearchCompanies(ctx context.Context, companyIDs []int64, query string) (map[int64]string, error) {
	if len(companyIDs) == 0 {
		return map[int64]string{}, nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		query = defaultQuery
	}

	companies, err := r.store.CompaniesByIDs(ctx, companyIDs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load companies for research")
	}
	if len(companies) < len(companyIDs) {
		found := make(map[int64]bool, len(companies))
		for _, company := range companies {
			found[company.ID] = true
		}
		var missing []int64
		for _, id := range companyIDs {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		r.log.WithField("company_ids", missing).Warn("research requested for unknown companies")
	}

	results := make(map[int64]string, len(companies))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for _, company := range companies {
		g.Go(func() error {
			brief := r.researchOne(gctx, company, query)
			mu.Lock()
			results[company.ID] = brief
			mu.Unlock()
			return nil
		})
	}
	// Tasks never return errors; per-company failures are error strings.
	_ = g.Wait()

	r.log.WithFields(logrus.Fields{
		"requested": len(companyIDs),
		"briefed":   len(results),
	}).Info("company research completed")

	return results, nil
}

// researchOne produces the brief, or an error string, for one company within
// its own timeout.
func (r *Researcher) researchOne(ctx context.Context, company store.Company, query string) string {
	taskCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	description := ""
	if company.Description.Valid {
		description = company.Description.String
	}

	system, err := r.prompts.Format(prompts.PromptResearchCompanySystem, nil)
	if err != nil {
		return researchError(err)
	}
	user, err := r.prompts.Format(prompts.PromptResearchCompanyUser, map[string]any{
		"CompanyName": company.CompanyName,
		"Description": description,
		"Query":       query,
		"WebContext":  r.webContext(taskCtx, company.CompanyName, query),
	})
	if err != nil {
		return researchError(err)
	}

	start := time.Now()
	completion, err := r.completer.Complete(taskCtx, llm.CompletionRequest{
		System:      system,
		User:        user,
		MaxTokens:   1024,
		Temperature: researchTemperature,
	})
	r.metrics.ObserveLLMRequestDuration("research", time.Since(start).Seconds())
	if err != nil {
		r.metrics.IncrementLLMRequests("research", "error")
		r.log.WithError(err).WithFields(logrus.Fields{
			"company_id":   company.ID,
			"company_name": company.CompanyName,
		}).Warn("company research failed")
		return researchError(err)
	}
	r.metrics.IncrementLLMRequests("research", "ok")

	return strings.TrimSpace(completion)
}

// webContext searches the web for the company and renders the hits as prompt
// context. Empty when no provider is configured or the search fails; the
// brief then leans on model knowledge.
func (r *Researcher) webContext(ctx context.Context, companyName, query string) string {
	if r.web == nil {
		return ""
	}

	resp, err := r.web.Search(ctx, companyName+" "+query, webResultLimit)
	if err != nil {
		r.log.WithError(err).WithField("company_name", companyName).Warn("web search failed, researching from model knowledge")
		return ""
	}

	var b strings.Builder
	if answer := strings.TrimSpace(resp.Answer); answer != "" {
		b.WriteString(answer)
		b.WriteString("\n")
	}
	for _, result := range resp.Results {
		b.WriteString("- ")
		b.WriteString(result.Title)
		if result.Snippet != "" {
			b.WriteString(": ")
			b.WriteString(result.Snippet)
		}
		b.WriteString(" (")
		b.WriteString(result.URL)
		b.WriteString(")\n")
	}
	return strings.TrimSpace(b.String())
}

func researchError(err error) string {
	return fmt.Sprintf("Error: Unable to research this company. %v", err)
}
