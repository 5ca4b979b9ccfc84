package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visibility-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetDomain_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, url, created_at FROM domains WHERE id = \$1`).
		WithArgs("missing-domain").
		WillReturnError(pgx.ErrNoRows)

	d, err := s.GetDomain(context.Background(), "missing-domain")
	require.NoError(t, err)
	assert.Nil(t, d)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLatestVersion(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, domain_id, created_at FROM domain_versions WHERE domain_id = \$1 ORDER BY created_at DESC`).
		WithArgs("dom-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "domain_id", "created_at"}).
			AddRow("ver-2", "dom-1", now))

	v, err := s.GetLatestVersion(context.Background(), "dom-1")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "ver-2", v.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProgress(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	stepsJSON := []byte(`{"submission":{"url":"https://acme.dev"}}`)
	mock.ExpectQuery(`SELECT domain_id, domain_version_id, current_step, is_completed, steps, updated_at FROM onboarding_progress`).
		WithArgs("dom-1", "ver-1").
		WillReturnRows(pgxmock.NewRows([]string{"domain_id", "domain_version_id", "current_step", "is_completed", "steps", "updated_at"}).
			AddRow("dom-1", "ver-1", 1, false, stepsJSON, now))

	p, err := s.GetProgress(context.Background(), "dom-1", "ver-1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, model.StepExtraction, p.CurrentStep)
	require.NotNil(t, p.Steps.Submission)
	assert.Equal(t, "https://acme.dev", p.Steps.Submission.URL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProgress_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT domain_id, domain_version_id, current_step, is_completed, steps, updated_at FROM onboarding_progress`).
		WithArgs("dom-1", "ver-404").
		WillReturnError(pgx.ErrNoRows)

	p, err := s.GetProgress(context.Background(), "dom-1", "ver-404")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateProgress_Conflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE onboarding_progress SET current_step = \$1`).
		WithArgs(2, false, pgxmock.AnyArg(), pgxmock.AnyArg(), "dom-1", "ver-1", 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	p := &model.OnboardingProgress{
		DomainID:        "dom-1",
		DomainVersionID: "ver-1",
		CurrentStep:     model.StepKeywordDiscovery,
	}
	err := s.UpdateProgress(context.Background(), p, model.StepExtraction)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateProgress_OK(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE onboarding_progress SET current_step = \$1`).
		WithArgs(1, false, pgxmock.AnyArg(), pgxmock.AnyArg(), "dom-1", "ver-1", 0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	p := &model.OnboardingProgress{
		DomainID:        "dom-1",
		DomainVersionID: "ver-1",
		CurrentStep:     model.StepExtraction,
	}
	require.NoError(t, s.UpdateProgress(context.Background(), p, model.StepSubmission))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertDashboardAnalysis_StaleVersionSkipped(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO dashboard_analysis`).
		WithArgs(pgxmock.AnyArg(), "dom-1", "ver-old",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), false, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	a := &model.DashboardAnalysis{
		DomainID:        "dom-1",
		DomainVersionID: "ver-old",
		ComputedAt:      time.Now().UTC(),
	}
	err := s.UpsertDashboardAnalysis(context.Background(), a)
	assert.ErrorIs(t, err, ErrStaleVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetDashboardAnalysis_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT domain_id, domain_version_id, metrics, insights, industry, stale, computed_at FROM dashboard_analysis`).
		WithArgs("dom-1").
		WillReturnError(pgx.ErrNoRows)

	a, err := s.GetDashboardAnalysis(context.Background(), "dom-1")
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCompetitorAnalysis(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	payload := []byte(`{"competitors":[{"name":"Rival Inc","domain":"rival.com"}],"market_insights":["crowded"],"strategic_recommendations":[],"competitive_analysis":"tight race"}`)
	mock.ExpectQuery(`SELECT domain_id, payload, competitor_list, computed_at FROM competitor_analysis`).
		WithArgs("dom-1").
		WillReturnRows(pgxmock.NewRows([]string{"domain_id", "payload", "competitor_list", "computed_at"}).
			AddRow("dom-1", payload, "Rival Inc, Other Co", now))

	a, err := s.GetCompetitorAnalysis(context.Background(), "dom-1")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, []string{"Rival Inc", "Other Co"}, a.CompetitorList)
	require.Len(t, a.Competitors, 1)
	assert.Equal(t, "Rival Inc", a.Competitors[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertRunSnapshot(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO run_history`).
		WithArgs("dom-1", "ver-1", 42.5, 35.0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertRunSnapshot(context.Background(), model.RunSnapshot{
		DomainID:        "dom-1",
		DomainVersionID: "ver-1",
		VisibilityScore: 42.5,
		MentionRate:     35.0,
		ComputedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSplitCompetitorList(t *testing.T) {
	assert.Nil(t, SplitCompetitorList(""))
	assert.Nil(t, SplitCompetitorList("   "))
	assert.Equal(t, []string{"A", "B"}, SplitCompetitorList("A, B"))
	assert.Equal(t, []string{"A", "B"}, SplitCompetitorList("A,,B,"))
}
