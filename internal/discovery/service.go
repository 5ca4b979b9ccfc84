package discovery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/store"
)

// Service executes the extraction, keyword, and phrase stages against the
// store, producing the stage payloads the pipeline records.
type Service struct {
	store     store.Store
	extractor Extractor
	keywords  KeywordDiscoverer
	phrases   PhraseGenerator
}

// NewService creates a discovery service.
func NewService(st store.Store, ex Extractor, kd KeywordDiscoverer, pg PhraseGenerator) *Service {
	return &Service{store: st, extractor: ex, keywords: kd, phrases: pg}
}

// RunExtraction fetches and strips the domain's public pages.
func (s *Service) RunExtraction(ctx context.Context, domainURL string) (*model.ExtractionData, *SiteContent, error) {
	content, err := s.extractor.Extract(ctx, domainURL)
	if err != nil {
		return nil, nil, err
	}
	zap.L().Info("discovery: extracted site content",
		zap.String("url", domainURL),
		zap.Int("pages", content.Pages),
		zap.Int("chars", len(content.Text)),
	)
	return &model.ExtractionData{
		Pages:   content.Pages,
		Summary: content.Title,
	}, content, nil
}

// RunKeywordDiscovery proposes keywords from the extracted content and
// persists them for the version.
func (s *Service) RunKeywordDiscovery(ctx context.Context, versionID, domainURL, brandName string, content *SiteContent) (*model.KeywordDiscoveryData, error) {
	terms, usage, err := s.keywords.DiscoverKeywords(ctx, KeywordInput{
		DomainURL: domainURL,
		BrandName: brandName,
		Content:   content,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	keywords := make([]model.Keyword, len(terms))
	for i, term := range terms {
		keywords[i] = model.Keyword{
			ID:              uuid.New().String(),
			DomainVersionID: versionID,
			Term:            term,
			CreatedAt:       now,
		}
	}
	if err := s.store.InsertKeywords(ctx, keywords); err != nil {
		return nil, err
	}

	zap.L().Info("discovery: keywords stored",
		zap.String("domain_version_id", versionID),
		zap.Int("count", len(keywords)),
	)
	return &model.KeywordDiscoveryData{Terms: terms, TokenUsage: usage}, nil
}

// RunPhraseGeneration generates query phrases for the version's stored
// keywords and persists them.
func (s *Service) RunPhraseGeneration(ctx context.Context, versionID, domainURL, brandName string) (*model.PhraseGenerationData, error) {
	keywords, err := s.store.ListKeywords(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if len(keywords) == 0 {
		return nil, eris.New("discovery: no keywords stored for this run")
	}

	terms := make([]string, len(keywords))
	byTerm := make(map[string]string, len(keywords))
	for i, kw := range keywords {
		terms[i] = kw.Term
		byTerm[kw.Term] = kw.ID
	}

	generated, usage, err := s.phrases.GeneratePhrases(ctx, PhraseInput{
		DomainURL: domainURL,
		BrandName: brandName,
		Terms:     terms,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var phrases []model.Phrase
	for _, term := range terms {
		for _, text := range generated[term] {
			phrases = append(phrases, model.Phrase{
				ID:              uuid.New().String(),
				KeywordID:       byTerm[term],
				DomainVersionID: versionID,
				Text:            text,
				CreatedAt:       now,
			})
		}
	}
	if len(phrases) == 0 {
		return nil, eris.New("discovery: no phrases generated")
	}
	if err := s.store.InsertPhrases(ctx, phrases); err != nil {
		return nil, err
	}

	zap.L().Info("discovery: phrases stored",
		zap.String("domain_version_id", versionID),
		zap.Int("count", len(phrases)),
	)
	return &model.PhraseGenerationData{PhraseCount: len(phrases), TokenUsage: usage}, nil
}
