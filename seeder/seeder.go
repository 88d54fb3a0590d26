// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package seeder

import (
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/sync/errgroup"

	"github.com/4d11/company-search/es"
	"github.com/4d11/company-search/filters"
	"github.com/4d11/company-search/llm"
	"github.com/4d11/company-search/store"
)

const (
	// embedChunkSize caps the text embedded per company. Descriptions fit in
	// one chunk; long website dumps contribute their head chunk only.
	embedChunkSize = 2000

	embedBatchSize      = 32
	maxConcurrentEmbeds = 4
)

// canonicalStages is the funding ladder in ascending order. Stages the CSV
// mentions beyond these are appended after, in first-seen order, so ladder
// comparisons ("Series B or later") stay meaningful for the known rungs.
var canonicalStages = []string{
	"Stealth",
	"Pre-Seed",
	"Seed",
	"Series A",
	"Series B",
	"Series C",
	"Series D+",
	"Growth",
	"Public",
}

// Store is the relational surface the seeder writes through.
type Store interface {
	EnsureSchema(ctx context.Context) error
	EnsureVocabularyValue(ctx context.Context, segment, name string) (int64, error)
	EnsureFundingStage(ctx context.Context, name string, orderIndex int) (int64, error)
	TruncateCompanies(ctx context.Context) error
	InsertCompany(ctx context.Context, input store.CompanyInput) (int64, error)
	AllCompanies(ctx context.Context) ([]store.Company, error)
	VocabularyEntries(ctx context.Context, segment string) ([]store.VocabularyEntry, error)
	SynonymRows(ctx context.Context, segment string) ([]string, error)
}

// Engine is the search-engine surface the seeder rebuilds.
type Engine interface {
	EnsureCompanyIndex(ctx context.Context, dims int) error
	EnsureSegmentIndex(ctx context.Context, segment string, synonyms []string) error
	PopulateSegmentIndex(ctx context.Context, segment string, values []es.SegmentValue) error
	BulkIndexCompanies(ctx context.Context, docs []es.CompanyDoc) error
}

// Seeder rebuilds both stores from a company CSV: vocabularies and company
// rows in the relational store, the vector and vocabulary indices in the
// engine.
type Seeder struct {
	store    Store
	engine   Engine
	embedder llm.Embedder
	splitter textsplitter.RecursiveCharacter
	log      *logrus.Logger
}

func New(st Store, engine Engine, embedder llm.Embedder, log *logrus.Logger) *Seeder {
	return &Seeder{
		store:    st,
		engine:   engine,
		embedder: embedder,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(embedChunkSize),
			textsplitter.WithChunkOverlap(0),
		),
		log: log,
	}
}

// Run executes a full seed from the CSV at path. Vocabulary values are
// upserted in place so ids referenced by approved extractions survive
// re-seeding; company rows are truncated and reloaded, then every engine
// index is rebuilt.
func (s *Seeder) Run(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	rows, err := readCompanyCSV(f)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return errors.Errorf("no companies in %s", path)
	}
	s.log.WithField("companies", len(rows)).Info("parsed company csv")

	if err := s.store.EnsureSchema(ctx); err != nil {
		return err
	}

	vocab, err := s.seedVocabularies(ctx, rows)
	if err != nil {
		return err
	}

	if err := s.store.TruncateCompanies(ctx); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := s.store.InsertCompany(ctx, vocab.companyInput(row)); err != nil {
			return err
		}
	}
	s.log.WithField("companies", len(rows)).Info("loaded companies")

	return s.Reindex(ctx)
}

// Reindex rebuilds the company index and every segment vocabulary index from
// the relational store. It performs no relational writes, so it also serves
// as the standalone reindex path after approving extraction values.
func (s *Seeder) Reindex(ctx context.Context) error {
	companies, err := s.store.AllCompanies(ctx)
	if err != nil {
		return err
	}

	vectors, err := s.embedCompanies(ctx, companies)
	if err != nil {
		return err
	}

	if err := s.engine.EnsureCompanyIndex(ctx, s.embedder.Dimensions()); err != nil {
		return err
	}
	docs := make([]es.CompanyDoc, 0, len(companies))
	for i, c := range companies {
		docs = append(docs, companyDoc(c, vectors[i]))
	}
	if len(docs) > 0 {
		if err := s.engine.BulkIndexCompanies(ctx, docs); err != nil {
			return err
		}
	}
	s.log.WithField("companies", len(docs)).Info("indexed companies")

	return s.populateSegmentIndices(ctx)
}

// seedVocabularies upserts every distinct vocabulary value the rows mention
// and returns the resulting name-to-id mapping. Values differing only in case
// collapse onto the first surface form seen.
func (s *Seeder) seedVocabularies(ctx context.Context, rows []companyRow) (*vocabulary, error) {
	v := &vocabulary{segments: map[string]map[string]int64{}}

	for _, segment := range []string{
		filters.SegmentLocation,
		filters.SegmentIndustries,
		filters.SegmentTargetMarkets,
		filters.SegmentBusinessModels,
		filters.SegmentRevenueModels,
	} {
		ids := map[string]int64{}
		for _, name := range distinctValues(rows, segment) {
			id, err := s.store.EnsureVocabularyValue(ctx, segment, name)
			if err != nil {
				return nil, err
			}
			ids[strings.ToLower(name)] = id
		}
		v.segments[segment] = ids
		s.log.WithFields(logrus.Fields{"segment": segment, "values": len(ids)}).Info("seeded vocabulary")
	}

	stages, err := s.seedStages(ctx, rows)
	if err != nil {
		return nil, err
	}
	v.stages = stages
	return v, nil
}

// seedStages writes the canonical funding ladder plus any extra stages the
// CSV mentions, with order indices matching list position.
func (s *Seeder) seedStages(ctx context.Context, rows []companyRow) (map[string]int64, error) {
	names := append([]string{}, canonicalStages...)
	known := map[string]bool{}
	for _, name := range names {
		known[strings.ToLower(name)] = true
	}
	for _, row := range rows {
		key := strings.ToLower(row.FundingStage)
		if row.FundingStage == "" || known[key] {
			continue
		}
		known[key] = true
		names = append(names, row.FundingStage)
	}

	ids := map[string]int64{}
	for i, name := range names {
		id, err := s.store.EnsureFundingStage(ctx, name, i)
		if err != nil {
			return nil, err
		}
		ids[strings.ToLower(name)] = id
	}
	s.log.WithField("stages", len(ids)).Info("seeded funding stages")
	return ids, nil
}

// embedCompanies returns one vector per company, positions aligned with the
// input. Companies without any text keep a nil vector and are indexed without
// one.
func (s *Seeder) embedCompanies(ctx context.Context, companies []store.Company) ([][]float32, error) {
	vectors := make([][]float32, len(companies))

	var indices []int
	var texts []string
	for i, c := range companies {
		text := s.embedText(c)
		if text == "" {
			continue
		}
		indices = append(indices, i)
		texts = append(texts, text)
	}
	if len(texts) == 0 {
		return vectors, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentEmbeds)
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		g.Go(func() error {
			got, err := s.embedder.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return errors.Wrap(err, "failed to embed company batch")
			}
			if len(got) != end-start {
				return errors.Errorf("embedding batch returned %d vectors for %d texts", len(got), end-start)
			}
			// Batches cover disjoint ranges of vectors, so no lock is needed.
			for j, vec := range got {
				vectors[indices[start+j]] = vec
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.log.WithField("companies", len(texts)).Info("embedded company descriptions")
	return vectors, nil
}

// embedText assembles the text whose embedding represents the company:
// description plus website text, cut to the first recursive-character chunk
// so one company costs one embedding.
func (s *Seeder) embedText(c store.Company) string {
	var parts []string
	if text := strings.TrimSpace(c.Description.String); c.Description.Valid && text != "" {
		parts = append(parts, text)
	}
	if text := strings.TrimSpace(c.WebsiteText.String); c.WebsiteText.Valid && text != "" {
		parts = append(parts, text)
	}
	text := strings.Join(parts, "\n\n")
	if text == "" {
		return ""
	}

	chunks, err := s.splitter.SplitText(text)
	if err != nil || len(chunks) == 0 {
		if err != nil {
			s.log.WithError(err).WithField("company", c.CompanyName).Warn("text split failed, embedding truncated text")
		}
		if runes := []rune(text); len(runes) > embedChunkSize {
			return string(runes[:embedChunkSize])
		}
		return text
	}
	return chunks[0]
}

// populateSegmentIndices rebuilds the per-segment vocabulary indices the
// canonicalizer fuzzy-matches against. Funding stages have no vocabulary
// index; they resolve against the relational ladder.
func (s *Seeder) populateSegmentIndices(ctx context.Context) error {
	for _, segment := range filters.TextSegments() {
		if es.SegmentIndexName(segment) == "" {
			continue
		}

		synonyms, err := s.store.SynonymRows(ctx, segment)
		if err != nil {
			return err
		}
		if err := s.engine.EnsureSegmentIndex(ctx, segment, synonyms); err != nil {
			return err
		}

		entries, err := s.store.VocabularyEntries(ctx, segment)
		if err != nil {
			return err
		}
		values := make([]es.SegmentValue, 0, len(entries))
		for _, e := range entries {
			values = append(values, es.SegmentValue{ID: e.ID, Name: e.Name})
		}
		if err := s.engine.PopulateSegmentIndex(ctx, segment, values); err != nil {
			return err
		}
		s.log.WithFields(logrus.Fields{"segment": segment, "values": len(values)}).Info("populated segment index")
	}
	return nil
}

// vocabulary maps canonical values to their upserted ids, keyed by lowercased
// name.
type vocabulary struct {
	segments map[string]map[string]int64
	stages   map[string]int64
}

func (v *vocabulary) ids(segment string, names []string) []int64 {
	var out []int64
	for _, name := range names {
		if id, ok := v.segments[segment][strings.ToLower(name)]; ok {
			out = append(out, id)
		}
	}
	return out
}

// companyInput resolves one row's vocabulary references to ids. Every value
// was upserted from these same rows, so lookups cannot miss.
func (v *vocabulary) companyInput(row companyRow) store.CompanyInput {
	input := store.CompanyInput{
		CompanyName:      row.CompanyName,
		CompanyID:        row.CompanyID,
		City:             optStr(row.City),
		Description:      optStr(row.Description),
		WebsiteURL:       optStr(row.WebsiteURL),
		WebsiteText:      optStr(row.WebsiteText),
		EmployeeCount:    row.EmployeeCount,
		FundingAmount:    row.FundingAmount,
		IndustryIDs:      v.ids(filters.SegmentIndustries, row.Industries),
		TargetMarketIDs:  v.ids(filters.SegmentTargetMarkets, row.TargetMarkets),
		BusinessModelIDs: v.ids(filters.SegmentBusinessModels, row.BusinessModels),
		RevenueModelIDs:  v.ids(filters.SegmentRevenueModels, row.RevenueModels),
	}
	if row.Location != "" {
		if id, ok := v.segments[filters.SegmentLocation][strings.ToLower(row.Location)]; ok {
			input.LocationID = &id
		}
	}
	if row.FundingStage != "" {
		if id, ok := v.stages[strings.ToLower(row.FundingStage)]; ok {
			input.FundingStageID = &id
		}
	}
	return input
}

// distinctValues dedupes a segment's values across rows case-insensitively,
// preserving first-seen order and surface form.
func distinctValues(rows []companyRow, segment string) []string {
	seen := map[string]bool{}
	var out []string
	for _, row := range rows {
		for _, name := range row.values(segment) {
			key := strings.ToLower(name)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, name)
		}
	}
	return out
}

// companyDoc projects a hydrated company row into its engine document.
func companyDoc(c store.Company, vector []float32) es.CompanyDoc {
	doc := es.CompanyDoc{
		ID:                c.ID,
		CompanyName:       c.CompanyName,
		Industries:        c.Industries,
		TargetMarkets:     c.TargetMarkets,
		BusinessModels:    c.BusinessModels,
		RevenueModels:     c.RevenueModels,
		DescriptionVector: vector,
	}
	if c.CompanyID.Valid {
		doc.CompanyID = c.CompanyID.Int64
	}
	if c.Description.Valid {
		doc.Description = c.Description.String
	}
	if c.WebsiteURL.Valid {
		doc.WebsiteURL = c.WebsiteURL.String
	}
	if c.Location.Valid {
		doc.Location = c.Location.String
	}
	if c.FundingStage.Valid {
		doc.FundingStage = c.FundingStage.String
	}
	if c.StageOrder.Valid {
		order := int(c.StageOrder.Int64)
		doc.StageOrder = &order
	}
	if c.EmployeeCount.Valid {
		count := int(c.EmployeeCount.Int64)
		doc.EmployeeCount = &count
	}
	if c.FundingAmount.Valid {
		amount := c.FundingAmount.Int64
		doc.FundingAmount = &amount
	}
	return doc
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
