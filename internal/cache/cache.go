// Package cache owns the computed-artifact lifecycle: dashboard and
// competitor analyses are computed at most once per trigger, cached in the
// store, and served from cache until explicitly invalidated.
package cache

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/visibility-cli/internal/aggregate"
	"github.com/sells-group/visibility-cli/internal/insight"
	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/store"
)

// ErrCacheMiss is returned when no cached artifact exists and the read path
// is not allowed to compute one.
var ErrCacheMiss = eris.New("cache: no cached artifact")

// ErrConcurrencyConflict is returned when an explicit recompute is rejected
// because another compute for the same domain is in flight.
var ErrConcurrencyConflict = eris.New("cache: compute already in progress")

// ErrNotFound is returned when the referenced domain does not exist.
var ErrNotFound = eris.New("cache: domain not found")

// Manager coordinates artifact computation over the store.
type Manager struct {
	store     store.Store
	insighter insight.Insighter
	analyzer  insight.CompetitorAnalyzer
	suggester insight.Suggester

	group singleflight.Group

	mu     sync.Mutex
	inWork map[string]bool
}

// NewManager creates a cache manager.
func NewManager(st store.Store, ins insight.Insighter, an insight.CompetitorAnalyzer, sg insight.Suggester) *Manager {
	return &Manager{
		store:     st,
		insighter: ins,
		analyzer:  an,
		suggester: sg,
		inWork:    make(map[string]bool),
	}
}

// GetOrCompute returns the cached dashboard artifact, computing it from the
// latest completed run when absent. Concurrent callers for the same domain
// share one computation.
func (m *Manager) GetOrCompute(ctx context.Context, domainID string) (*model.DashboardAnalysis, error) {
	cached, err := m.store.GetDashboardAnalysis(ctx, domainID)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}

	v, err, _ := m.group.Do(domainID, func() (any, error) {
		// Double check: another caller may have finished while we queued.
		cached, err := m.store.GetDashboardAnalysis(ctx, domainID)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			return cached, nil
		}
		return m.computeFromLatestRun(ctx, domainID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.DashboardAnalysis), nil
}

// FirstTimeAnalysis computes and caches the dashboard artifact when a
// pipeline run completes. Safe to call repeatedly: once the artifact for the
// version exists, later calls are no-ops.
func (m *Manager) FirstTimeAnalysis(ctx context.Context, domainID, versionID string) error {
	cached, err := m.store.GetDashboardAnalysis(ctx, domainID)
	if err != nil {
		return err
	}
	if cached != nil && cached.DomainVersionID == versionID && !cached.Stale {
		return nil
	}

	_, err, _ = m.group.Do(domainID, func() (any, error) {
		return m.compute(ctx, domainID, versionID)
	})
	return err
}

// MarkStale flags the cached dashboard artifact as pending recompute, e.g.
// when a new analysis run starts. Serving stale data beats serving nothing.
func (m *Manager) MarkStale(ctx context.Context, domainID string) error {
	return m.store.SetDashboardStale(ctx, domainID, true)
}

// computeFromLatestRun resolves the newest completed version and computes
// its artifact.
func (m *Manager) computeFromLatestRun(ctx context.Context, domainID string) (*model.DashboardAnalysis, error) {
	version, err := m.store.GetLatestVersion(ctx, domainID)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, ErrCacheMiss
	}
	progress, err := m.store.GetProgress(ctx, domainID, version.ID)
	if err != nil {
		return nil, err
	}
	if progress == nil || !progress.IsCompleted {
		return nil, ErrCacheMiss
	}
	return m.compute(ctx, domainID, version.ID)
}

// GetForVersion returns the dashboard artifact for an explicit version,
// computing it when the cached artifact belongs to a different run. An older
// version's artifact is served without displacing a newer cached one.
func (m *Manager) GetForVersion(ctx context.Context, domainID, versionID string) (*model.DashboardAnalysis, error) {
	if versionID == "" {
		return m.GetOrCompute(ctx, domainID)
	}

	cached, err := m.store.GetDashboardAnalysis(ctx, domainID)
	if err != nil {
		return nil, err
	}
	if cached != nil && cached.DomainVersionID == versionID {
		return cached, nil
	}

	progress, err := m.store.GetProgress(ctx, domainID, versionID)
	if err != nil {
		return nil, err
	}
	if progress == nil || !progress.IsCompleted {
		return nil, ErrCacheMiss
	}

	artifact, err := m.buildArtifact(ctx, domainID, versionID)
	if err != nil {
		return nil, err
	}
	if err := m.store.UpsertDashboardAnalysis(ctx, artifact); err != nil && !errors.Is(err, store.ErrStaleVersion) {
		return nil, err
	}
	return artifact, nil
}

func (m *Manager) compute(ctx context.Context, domainID, versionID string) (*model.DashboardAnalysis, error) {
	artifact, err := m.buildArtifact(ctx, domainID, versionID)
	if err != nil {
		return nil, err
	}

	if err := m.store.UpsertDashboardAnalysis(ctx, artifact); err != nil {
		if errors.Is(err, store.ErrStaleVersion) {
			// A newer version won the race. Serve whatever it wrote.
			zap.L().Info("cache: dashboard write superseded",
				zap.String("domain_id", domainID),
				zap.String("domain_version_id", versionID),
			)
			current, readErr := m.store.GetDashboardAnalysis(ctx, domainID)
			if readErr != nil {
				return nil, readErr
			}
			if current != nil {
				return current, nil
			}
			return nil, err
		}
		return nil, err
	}
	return artifact, nil
}

func (m *Manager) buildArtifact(ctx context.Context, domainID, versionID string) (*model.DashboardAnalysis, error) {
	domain, err := m.store.GetDomain(ctx, domainID)
	if err != nil {
		return nil, err
	}
	if domain == nil {
		return nil, ErrNotFound
	}

	keywords, err := m.store.ListKeywords(ctx, versionID)
	if err != nil {
		return nil, err
	}
	phrases, err := m.store.ListPhrases(ctx, versionID)
	if err != nil {
		return nil, err
	}
	results, err := m.store.ListQueryResults(ctx, versionID)
	if err != nil {
		return nil, err
	}

	metrics := aggregate.Compute(aggregate.Inputs{
		Keywords: keywords,
		Phrases:  phrases,
		Results:  results,
	})

	now := time.Now().UTC()
	if err := m.store.UpsertRunSnapshot(ctx, model.RunSnapshot{
		DomainID:        domainID,
		DomainVersionID: versionID,
		VisibilityScore: metrics.VisibilityScore,
		MentionRate:     metrics.MentionRate,
		ComputedAt:      now,
	}); err != nil {
		return nil, err
	}
	history, err := m.store.ListRunSnapshots(ctx, domainID)
	if err != nil {
		return nil, err
	}
	metrics.PerformanceData = aggregate.TimeSeries(history)

	artifact := &model.DashboardAnalysis{
		DomainID:        domainID,
		DomainVersionID: versionID,
		Metrics:         metrics,
		ComputedAt:      now,
	}

	terms := make([]string, len(keywords))
	for i, k := range keywords {
		terms[i] = k.Term
	}
	insights, industry, err := m.insighter.GenerateInsights(ctx, insight.InsightInput{
		DomainURL: domain.URL,
		BrandName: BrandFromURL(domain.URL),
		Keywords:  terms,
		Metrics:   metrics,
	})
	if err != nil {
		// Metrics are still worth caching; the narrative stays empty.
		zap.L().Warn("cache: insight generation failed",
			zap.String("domain_id", domainID),
			zap.Error(err),
		)
	} else {
		artifact.Insights = *insights
		artifact.IndustryAnalysis = *industry
	}

	return artifact, nil
}

// GetCompetitors returns the cached competitor artifact without computing.
func (m *Manager) GetCompetitors(ctx context.Context, domainID string) (*model.CompetitorAnalysis, error) {
	a, err := m.store.GetCompetitorAnalysis(ctx, domainID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrCacheMiss
	}
	return a, nil
}

// RecomputeCompetitors analyzes the given competitor list and replaces the
// cached artifact. An unchanged list returns the cached artifact untouched.
// A concurrent recompute for the same domain is rejected, not queued.
func (m *Manager) RecomputeCompetitors(ctx context.Context, domainID string, competitors []string) (*model.CompetitorAnalysis, error) {
	domain, err := m.store.GetDomain(ctx, domainID)
	if err != nil {
		return nil, err
	}
	if domain == nil {
		return nil, ErrNotFound
	}

	list := insight.DedupeNames(competitors)
	if len(list) == 0 {
		return nil, eris.New("cache: empty competitor list")
	}

	cached, err := m.store.GetCompetitorAnalysis(ctx, domainID)
	if err != nil {
		return nil, err
	}
	if cached != nil && sameList(cached.CompetitorList, list) {
		return cached, nil
	}

	if !m.tryAcquire(domainID) {
		return nil, ErrConcurrencyConflict
	}
	defer m.release(domainID)

	analysis, err := m.analyzer.Analyze(ctx, insight.CompetitorInput{
		DomainURL:   domain.URL,
		BrandName:   BrandFromURL(domain.URL),
		Competitors: list,
	})
	if err != nil {
		return nil, err
	}
	analysis.DomainID = domainID
	analysis.ComputedAt = time.Now().UTC()

	if err := m.store.UpsertCompetitorAnalysis(ctx, analysis); err != nil {
		return nil, err
	}
	return analysis, nil
}

// SuggestedCompetitors returns the cached suggestion list, generating it on
// first request or when refresh is set.
func (m *Manager) SuggestedCompetitors(ctx context.Context, domainID string, refresh bool) ([]model.SuggestedCompetitor, error) {
	if !refresh {
		cached, err := m.store.ListSuggestedCompetitors(ctx, domainID)
		if err != nil {
			return nil, err
		}
		if len(cached) > 0 {
			return cached, nil
		}
	}

	domain, err := m.store.GetDomain(ctx, domainID)
	if err != nil {
		return nil, err
	}
	if domain == nil {
		return nil, ErrNotFound
	}

	if !m.tryAcquire(domainID) {
		return nil, ErrConcurrencyConflict
	}
	defer m.release(domainID)

	var exclude []string
	if current, err := m.store.GetCompetitorAnalysis(ctx, domainID); err == nil && current != nil {
		exclude = current.CompetitorList
	}
	var industry string
	if dash, err := m.store.GetDashboardAnalysis(ctx, domainID); err == nil && dash != nil {
		industry = dash.IndustryAnalysis.Industry
	}

	suggestions, err := m.suggester.Suggest(ctx, insight.SuggestInput{
		DomainURL: domain.URL,
		BrandName: BrandFromURL(domain.URL),
		Industry:  industry,
		Exclude:   exclude,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := range suggestions {
		suggestions[i].DomainID = domainID
		suggestions[i].CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
	}
	if err := m.store.ReplaceSuggestedCompetitors(ctx, domainID, suggestions); err != nil {
		return nil, err
	}
	return m.store.ListSuggestedCompetitors(ctx, domainID)
}

func (m *Manager) tryAcquire(domainID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inWork[domainID] {
		return false
	}
	m.inWork[domainID] = true
	return true
}

func (m *Manager) release(domainID string) {
	m.mu.Lock()
	delete(m.inWork, domainID)
	m.mu.Unlock()
}

func sameList(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if insight.CanonicalName(a[i]) != insight.CanonicalName(b[i]) {
			return false
		}
	}
	return true
}

// BrandFromURL derives a display brand from a domain URL: the registrable
// label, title-cased.
func BrandFromURL(rawURL string) string {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if idx := strings.Index(host, "."); idx > 0 {
		host = host[:idx]
	}
	return insight.DisplayName(host)
}
