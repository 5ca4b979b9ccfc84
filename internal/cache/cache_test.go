package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visibility-cli/internal/insight"
	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/store"
)

type fakeInsighter struct {
	calls atomic.Int64
	delay time.Duration
	err   error
}

func (f *fakeInsighter) GenerateInsights(ctx context.Context, in insight.InsightInput) (*model.Insights, *model.IndustryAnalysis, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, nil, f.err
	}
	return &model.Insights{Summary: "visible enough"},
		&model.IndustryAnalysis{Industry: "DevTools"}, nil
}

type fakeAnalyzer struct {
	calls atomic.Int64
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, in insight.CompetitorInput) (*model.CompetitorAnalysis, error) {
	f.calls.Add(1)
	return &model.CompetitorAnalysis{
		CompetitiveAnalysis: "tight race",
		CompetitorList:      in.Competitors,
	}, nil
}

type fakeSuggester struct {
	calls atomic.Int64
	names []string
}

func (f *fakeSuggester) Suggest(ctx context.Context, in insight.SuggestInput) ([]model.SuggestedCompetitor, error) {
	f.calls.Add(1)
	out := make([]model.SuggestedCompetitor, len(f.names))
	for i, n := range f.names {
		out[i] = model.SuggestedCompetitor{Name: n, Domain: "example.com", Reason: "adjacent"}
	}
	return out, nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// seedCompletedRun creates a domain with one completed analysis run carrying
// two scored query results.
func seedCompletedRun(t *testing.T, st store.Store) (domainID, versionID string) {
	t.Helper()
	ctx := context.Background()

	d, err := st.CreateDomain(ctx, "https://"+uuid.New().String()+".example.com")
	require.NoError(t, err)
	v, err := st.CreateVersion(ctx, d.ID)
	require.NoError(t, err)

	kw := model.Keyword{ID: uuid.New().String(), DomainVersionID: v.ID, Term: "observability", CreatedAt: time.Now().UTC()}
	require.NoError(t, st.InsertKeywords(ctx, []model.Keyword{kw}))
	phrases := []model.Phrase{
		{ID: uuid.New().String(), KeywordID: kw.ID, DomainVersionID: v.ID, Text: "best observability tools", CreatedAt: time.Now().UTC()},
		{ID: uuid.New().String(), KeywordID: kw.ID, DomainVersionID: v.ID, Text: "how to monitor services", CreatedAt: time.Now().UTC()},
	}
	require.NoError(t, st.InsertPhrases(ctx, phrases))
	require.NoError(t, st.InsertQueryResults(ctx, []model.AIQueryResult{
		{
			ID: uuid.New().String(), DomainVersionID: v.ID, PhraseID: phrases[0].ID,
			Model: "m1", Status: model.QueryStatusOK, Response: "Acme leads.",
			Scores:    &model.ScoreSet{Presence: 1, Relevance: 4, Accuracy: 4, Sentiment: 4, Overall: 4},
			CreatedAt: time.Now().UTC(),
		},
		{
			ID: uuid.New().String(), DomainVersionID: v.ID, PhraseID: phrases[1].ID,
			Model: "m1", Status: model.QueryStatusOK, Response: "No mention.",
			Scores:    &model.ScoreSet{Presence: 0, Relevance: 2, Accuracy: 3, Sentiment: 3, Overall: 2},
			CreatedAt: time.Now().UTC(),
		},
	}))

	p, err := st.InitProgress(ctx, d.ID, v.ID)
	require.NoError(t, err)
	p.CurrentStep = model.TerminalStep
	p.IsCompleted = true
	require.NoError(t, st.UpdateProgress(ctx, p, model.StepSubmission))
	return d.ID, v.ID
}

func TestGetOrCompute_MissWithoutCompletedRun(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	d, err := st.CreateDomain(ctx, "https://fresh.example.com")
	require.NoError(t, err)

	m := NewManager(st, &fakeInsighter{}, &fakeAnalyzer{}, &fakeSuggester{})

	// No version at all.
	_, err = m.GetOrCompute(ctx, d.ID)
	assert.ErrorIs(t, err, ErrCacheMiss)

	// Version exists but the run never finished.
	v, err := st.CreateVersion(ctx, d.ID)
	require.NoError(t, err)
	_, err = st.InitProgress(ctx, d.ID, v.ID)
	require.NoError(t, err)
	_, err = m.GetOrCompute(ctx, d.ID)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestGetOrCompute_ComputesOnceThenServesCache(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	domainID, versionID := seedCompletedRun(t, st)

	ins := &fakeInsighter{}
	m := NewManager(st, ins, &fakeAnalyzer{}, &fakeSuggester{})

	first, err := m.GetOrCompute(ctx, domainID)
	require.NoError(t, err)
	assert.Equal(t, versionID, first.DomainVersionID)
	assert.Equal(t, "visible enough", first.Insights.Summary)
	assert.Equal(t, 2, first.Metrics.TotalQueries)
	assert.Equal(t, 50.0, first.Metrics.MentionRate)
	require.Len(t, first.Metrics.PerformanceData, 1)
	assert.Equal(t, 1, first.Metrics.PerformanceData[0].Runs)

	second, err := m.GetOrCompute(ctx, domainID)
	require.NoError(t, err)
	assert.Equal(t, first.ComputedAt.Unix(), second.ComputedAt.Unix())
	assert.Equal(t, int64(1), ins.calls.Load())

	// The run landed in history.
	history, err := st.ListRunSnapshots(ctx, domainID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, versionID, history[0].DomainVersionID)
}

func TestGetOrCompute_ConcurrentCallersShareOneCompute(t *testing.T) {
	st := newTestStore(t)
	domainID, _ := seedCompletedRun(t, st)

	ins := &fakeInsighter{delay: 50 * time.Millisecond}
	m := NewManager(st, ins, &fakeAnalyzer{}, &fakeSuggester{})

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.GetOrCompute(context.Background(), domainID)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), ins.calls.Load())
}

func TestFirstTimeAnalysis_Idempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	domainID, versionID := seedCompletedRun(t, st)

	ins := &fakeInsighter{}
	m := NewManager(st, ins, &fakeAnalyzer{}, &fakeSuggester{})

	require.NoError(t, m.FirstTimeAnalysis(ctx, domainID, versionID))
	require.NoError(t, m.FirstTimeAnalysis(ctx, domainID, versionID))
	assert.Equal(t, int64(1), ins.calls.Load())

	// Exactly one snapshot despite the repeat call.
	history, err := st.ListRunSnapshots(ctx, domainID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestGetOrCompute_InsightFailureStillCachesMetrics(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	domainID, _ := seedCompletedRun(t, st)

	ins := &fakeInsighter{err: errors.New("model unavailable")}
	m := NewManager(st, ins, &fakeAnalyzer{}, &fakeSuggester{})

	a, err := m.GetOrCompute(ctx, domainID)
	require.NoError(t, err)
	assert.Empty(t, a.Insights.Summary)
	assert.Equal(t, 2, a.Metrics.TotalQueries)

	// Cached: the second read does not retry the insight call.
	_, err = m.GetOrCompute(ctx, domainID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ins.calls.Load())
}

func TestMarkStale(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	domainID, _ := seedCompletedRun(t, st)

	m := NewManager(st, &fakeInsighter{}, &fakeAnalyzer{}, &fakeSuggester{})
	_, err := m.GetOrCompute(ctx, domainID)
	require.NoError(t, err)

	require.NoError(t, m.MarkStale(ctx, domainID))
	a, err := m.GetOrCompute(ctx, domainID)
	require.NoError(t, err)
	assert.True(t, a.Stale)
}

// completeSecondRun adds a later completed run with a single mentioned query.
func completeSecondRun(t *testing.T, st store.Store, domainID string) (versionID string) {
	t.Helper()
	ctx := context.Background()

	time.Sleep(5 * time.Millisecond)
	v, err := st.CreateVersion(ctx, domainID)
	require.NoError(t, err)

	kw := model.Keyword{ID: uuid.New().String(), DomainVersionID: v.ID, Term: "tracing", CreatedAt: time.Now().UTC()}
	require.NoError(t, st.InsertKeywords(ctx, []model.Keyword{kw}))
	ph := model.Phrase{ID: uuid.New().String(), KeywordID: kw.ID, DomainVersionID: v.ID, Text: "best tracing tools", CreatedAt: time.Now().UTC()}
	require.NoError(t, st.InsertPhrases(ctx, []model.Phrase{ph}))
	require.NoError(t, st.InsertQueryResults(ctx, []model.AIQueryResult{{
		ID: uuid.New().String(), DomainVersionID: v.ID, PhraseID: ph.ID,
		Model: "m1", Status: model.QueryStatusOK, Response: "Acme again.",
		Scores:    &model.ScoreSet{Presence: 1, Relevance: 4, Accuracy: 4, Sentiment: 4, Overall: 4},
		CreatedAt: time.Now().UTC(),
	}}))

	p, err := st.InitProgress(ctx, domainID, v.ID)
	require.NoError(t, err)
	p.CurrentStep = model.TerminalStep
	p.IsCompleted = true
	require.NoError(t, st.UpdateProgress(ctx, p, model.StepSubmission))
	return v.ID
}

func TestGetForVersion_HistoricalRunDoesNotClobberCache(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	domainID, oldVersion := seedCompletedRun(t, st)
	newVersion := completeSecondRun(t, st, domainID)

	m := NewManager(st, &fakeInsighter{}, &fakeAnalyzer{}, &fakeSuggester{})

	latest, err := m.GetOrCompute(ctx, domainID)
	require.NoError(t, err)
	assert.Equal(t, newVersion, latest.DomainVersionID)
	assert.Equal(t, 100.0, latest.Metrics.MentionRate)

	// The historical run is rebuilt and served without replacing the cache.
	old, err := m.GetForVersion(ctx, domainID, oldVersion)
	require.NoError(t, err)
	assert.Equal(t, oldVersion, old.DomainVersionID)
	assert.Equal(t, 50.0, old.Metrics.MentionRate)

	cached, err := m.GetOrCompute(ctx, domainID)
	require.NoError(t, err)
	assert.Equal(t, newVersion, cached.DomainVersionID)
}

func TestGetForVersion_EmptyVersionServesLatest(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	domainID, versionID := seedCompletedRun(t, st)

	m := NewManager(st, &fakeInsighter{}, &fakeAnalyzer{}, &fakeSuggester{})
	a, err := m.GetForVersion(ctx, domainID, "")
	require.NoError(t, err)
	assert.Equal(t, versionID, a.DomainVersionID)
}

func TestGetForVersion_IncompleteRunMisses(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	domainID, _ := seedCompletedRun(t, st)

	v, err := st.CreateVersion(ctx, domainID)
	require.NoError(t, err)
	_, err = st.InitProgress(ctx, domainID, v.ID)
	require.NoError(t, err)

	m := NewManager(st, &fakeInsighter{}, &fakeAnalyzer{}, &fakeSuggester{})
	_, err = m.GetForVersion(ctx, domainID, v.ID)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestGetCompetitors_Miss(t *testing.T) {
	st := newTestStore(t)
	domainID, _ := seedCompletedRun(t, st)

	m := NewManager(st, &fakeInsighter{}, &fakeAnalyzer{}, &fakeSuggester{})
	_, err := m.GetCompetitors(context.Background(), domainID)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRecomputeCompetitors_UnchangedListServesCache(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	domainID, _ := seedCompletedRun(t, st)

	an := &fakeAnalyzer{}
	m := NewManager(st, &fakeInsighter{}, an, &fakeSuggester{})

	first, err := m.RecomputeCompetitors(ctx, domainID, []string{"Rival Inc", "Other Co"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Rival Inc", "Other Co"}, first.CompetitorList)
	assert.Equal(t, int64(1), an.calls.Load())

	// Same list modulo casing and legal suffixes: no recompute.
	_, err = m.RecomputeCompetitors(ctx, domainID, []string{"rival, inc.", "OTHER CO"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), an.calls.Load())

	// A changed list replaces the artifact.
	second, err := m.RecomputeCompetitors(ctx, domainID, []string{"Rival Inc", "New Co"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), an.calls.Load())
	assert.Equal(t, []string{"Rival Inc", "New Co"}, second.CompetitorList)

	cached, err := m.GetCompetitors(ctx, domainID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Rival Inc", "New Co"}, cached.CompetitorList)
}

func TestRecomputeCompetitors_EmptyListRejected(t *testing.T) {
	st := newTestStore(t)
	domainID, _ := seedCompletedRun(t, st)

	m := NewManager(st, &fakeInsighter{}, &fakeAnalyzer{}, &fakeSuggester{})
	_, err := m.RecomputeCompetitors(context.Background(), domainID, []string{"", "  "})
	require.Error(t, err)
}

func TestRecomputeCompetitors_ConflictWhileInFlight(t *testing.T) {
	st := newTestStore(t)
	domainID, _ := seedCompletedRun(t, st)

	m := NewManager(st, &fakeInsighter{}, &fakeAnalyzer{}, &fakeSuggester{})
	require.True(t, m.tryAcquire(domainID))
	defer m.release(domainID)

	_, err := m.RecomputeCompetitors(context.Background(), domainID, []string{"Rival Inc"})
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
}

func TestRecomputeCompetitors_UnknownDomain(t *testing.T) {
	st := newTestStore(t)
	m := NewManager(st, &fakeInsighter{}, &fakeAnalyzer{}, &fakeSuggester{})

	_, err := m.RecomputeCompetitors(context.Background(), uuid.New().String(), []string{"Rival Inc"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSuggestedCompetitors_CachedUntilRefresh(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	domainID, _ := seedCompletedRun(t, st)

	sg := &fakeSuggester{names: []string{"Fresh Co", "Third Co"}}
	m := NewManager(st, &fakeInsighter{}, &fakeAnalyzer{}, sg)

	first, err := m.SuggestedCompetitors(ctx, domainID, false)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "Fresh Co", first[0].Name)
	assert.Equal(t, domainID, first[0].DomainID)
	assert.NotEmpty(t, first[0].ID)

	// Second read is served from the store.
	second, err := m.SuggestedCompetitors(ctx, domainID, false)
	require.NoError(t, err)
	assert.Len(t, second, 2)
	assert.Equal(t, int64(1), sg.calls.Load())

	// Refresh regenerates and replaces.
	sg.names = []string{"Fourth Co"}
	third, err := m.SuggestedCompetitors(ctx, domainID, true)
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, "Fourth Co", third[0].Name)
	assert.Equal(t, int64(2), sg.calls.Load())
}

func TestBrandFromURL(t *testing.T) {
	assert.Equal(t, "Acme", BrandFromURL("https://www.acme.dev"))
	assert.Equal(t, "Acme", BrandFromURL("acme.dev"))
	assert.Equal(t, "Acme", BrandFromURL("https://acme.dev/path"))
}
