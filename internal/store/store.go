// Package store persists domains, query results, pipeline progress, and
// computed analysis artifacts.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-cli/internal/model"
)

// ErrConflict is returned when a guarded write loses a race: either an
// optimistic step check on onboarding progress failed, or a concurrent
// writer got there first. Callers should re-read instead of retrying the
// write blindly.
var ErrConflict = eris.New("store: write conflict")

// ErrStaleVersion is returned when an artifact write for an older domain
// version is skipped because a newer version's artifact is already cached.
var ErrStaleVersion = eris.New("store: stale version write skipped")

// Store defines the persistence interface for the visibility pipeline.
// Read methods for cached artifacts return (nil, nil) on a miss; the cache
// layer owns the distinction between "not computed yet" and a data error.
type Store interface {
	// Domains and versions
	CreateDomain(ctx context.Context, url string) (*model.Domain, error)
	GetDomain(ctx context.Context, domainID string) (*model.Domain, error)
	GetDomainByURL(ctx context.Context, url string) (*model.Domain, error)
	CreateVersion(ctx context.Context, domainID string) (*model.DomainVersion, error)
	GetVersion(ctx context.Context, versionID string) (*model.DomainVersion, error)
	GetLatestVersion(ctx context.Context, domainID string) (*model.DomainVersion, error)

	// Keywords and phrases (written during discovery, read-only afterward)
	InsertKeywords(ctx context.Context, keywords []model.Keyword) error
	InsertPhrases(ctx context.Context, phrases []model.Phrase) error
	ListKeywords(ctx context.Context, versionID string) ([]model.Keyword, error)
	ListPhrases(ctx context.Context, versionID string) ([]model.Phrase, error)

	// Query results (append-only per analysis run)
	InsertQueryResults(ctx context.Context, results []model.AIQueryResult) error
	ListQueryResults(ctx context.Context, versionID string) ([]model.AIQueryResult, error)

	// Onboarding progress, one row per (domain, version)
	GetProgress(ctx context.Context, domainID, versionID string) (*model.OnboardingProgress, error)
	InitProgress(ctx context.Context, domainID, versionID string) (*model.OnboardingProgress, error)
	UpdateProgress(ctx context.Context, p *model.OnboardingProgress, expectStep model.Step) error

	// Dashboard artifact, unique per domain
	GetDashboardAnalysis(ctx context.Context, domainID string) (*model.DashboardAnalysis, error)
	UpsertDashboardAnalysis(ctx context.Context, a *model.DashboardAnalysis) error
	SetDashboardStale(ctx context.Context, domainID string, stale bool) error

	// Competitor artifact, unique per domain
	GetCompetitorAnalysis(ctx context.Context, domainID string) (*model.CompetitorAnalysis, error)
	UpsertCompetitorAnalysis(ctx context.Context, a *model.CompetitorAnalysis) error

	// Suggested competitors, replaced wholesale on regeneration
	ListSuggestedCompetitors(ctx context.Context, domainID string) ([]model.SuggestedCompetitor, error)
	ReplaceSuggestedCompetitors(ctx context.Context, domainID string, suggestions []model.SuggestedCompetitor) error

	// Run history for the visibility trend series
	UpsertRunSnapshot(ctx context.Context, snap model.RunSnapshot) error
	ListRunSnapshots(ctx context.Context, domainID string) ([]model.RunSnapshot, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
