package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/visibility-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Used for local
// development and single-node deployments where Postgres is overkill.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqldb.Exec(pragma); err != nil {
			sqldb.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqldb}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS domains (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS domain_versions (
	id         TEXT PRIMARY KEY,
	domain_id  TEXT NOT NULL REFERENCES domains(id),
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_domain_versions_domain ON domain_versions(domain_id, created_at DESC);

CREATE TABLE IF NOT EXISTS keywords (
	id                TEXT PRIMARY KEY,
	domain_version_id TEXT NOT NULL REFERENCES domain_versions(id),
	term              TEXT NOT NULL,
	search_volume     INTEGER,
	difficulty        REAL,
	cpc               REAL,
	created_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_keywords_version ON keywords(domain_version_id);

CREATE TABLE IF NOT EXISTS phrases (
	id                TEXT PRIMARY KEY,
	keyword_id        TEXT NOT NULL REFERENCES keywords(id),
	domain_version_id TEXT NOT NULL REFERENCES domain_versions(id),
	text              TEXT NOT NULL,
	created_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_phrases_version ON phrases(domain_version_id);

CREATE TABLE IF NOT EXISTS ai_query_results (
	id                TEXT PRIMARY KEY,
	domain_version_id TEXT NOT NULL REFERENCES domain_versions(id),
	phrase_id         TEXT NOT NULL REFERENCES phrases(id),
	model             TEXT NOT NULL,
	status            TEXT NOT NULL,
	response          TEXT,
	latency_ms        INTEGER NOT NULL DEFAULT 0,
	cost_usd          REAL NOT NULL DEFAULT 0,
	error             TEXT,
	scores            TEXT,
	created_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_version ON ai_query_results(domain_version_id);

CREATE TABLE IF NOT EXISTS onboarding_progress (
	domain_id         TEXT NOT NULL REFERENCES domains(id),
	domain_version_id TEXT NOT NULL REFERENCES domain_versions(id),
	current_step      INTEGER NOT NULL DEFAULT 0,
	is_completed      INTEGER NOT NULL DEFAULT 0,
	steps             TEXT NOT NULL DEFAULT '{}',
	updated_at        DATETIME NOT NULL,
	PRIMARY KEY (domain_id, domain_version_id)
);

CREATE TABLE IF NOT EXISTS dashboard_analysis (
	id                TEXT PRIMARY KEY,
	domain_id         TEXT NOT NULL UNIQUE REFERENCES domains(id),
	domain_version_id TEXT NOT NULL REFERENCES domain_versions(id),
	metrics           TEXT NOT NULL,
	insights          TEXT NOT NULL,
	industry          TEXT NOT NULL,
	stale             INTEGER NOT NULL DEFAULT 0,
	computed_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS competitor_analysis (
	id              TEXT PRIMARY KEY,
	domain_id       TEXT NOT NULL UNIQUE REFERENCES domains(id),
	payload         TEXT NOT NULL,
	competitor_list TEXT NOT NULL DEFAULT '',
	computed_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS suggested_competitors (
	id         TEXT PRIMARY KEY,
	domain_id  TEXT NOT NULL REFERENCES domains(id),
	name       TEXT NOT NULL,
	domain     TEXT NOT NULL DEFAULT '',
	reason     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_suggested_domain ON suggested_competitors(domain_id);

CREATE TABLE IF NOT EXISTS run_history (
	domain_id         TEXT NOT NULL REFERENCES domains(id),
	domain_version_id TEXT NOT NULL UNIQUE REFERENCES domain_versions(id),
	visibility_score  REAL NOT NULL,
	mention_rate      REAL NOT NULL,
	computed_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_history_domain ON run_history(domain_id, computed_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Domains and versions

func (s *SQLiteStore) CreateDomain(ctx context.Context, url string) (*model.Domain, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO domains (id, url, created_at) VALUES (?, ?, ?)`,
		id, url, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert domain")
	}
	return &model.Domain{ID: id, URL: url, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetDomain(ctx context.Context, domainID string) (*model.Domain, error) {
	var d model.Domain
	err := s.db.QueryRowContext(ctx,
		`SELECT id, url, created_at FROM domains WHERE id = ?`,
		domainID,
	).Scan(&d.ID, &d.URL, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get domain %s", domainID)
	}
	return &d, nil
}

func (s *SQLiteStore) GetDomainByURL(ctx context.Context, url string) (*model.Domain, error) {
	var d model.Domain
	err := s.db.QueryRowContext(ctx,
		`SELECT id, url, created_at FROM domains WHERE url = ?`,
		url,
	).Scan(&d.ID, &d.URL, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get domain by url")
	}
	return &d, nil
}

func (s *SQLiteStore) CreateVersion(ctx context.Context, domainID string) (*model.DomainVersion, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO domain_versions (id, domain_id, created_at) VALUES (?, ?, ?)`,
		id, domainID, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert version for domain %s", domainID)
	}
	return &model.DomainVersion{ID: id, DomainID: domainID, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetVersion(ctx context.Context, versionID string) (*model.DomainVersion, error) {
	var v model.DomainVersion
	err := s.db.QueryRowContext(ctx,
		`SELECT id, domain_id, created_at FROM domain_versions WHERE id = ?`,
		versionID,
	).Scan(&v.ID, &v.DomainID, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get version %s", versionID)
	}
	return &v, nil
}

func (s *SQLiteStore) GetLatestVersion(ctx context.Context, domainID string) (*model.DomainVersion, error) {
	var v model.DomainVersion
	err := s.db.QueryRowContext(ctx,
		`SELECT id, domain_id, created_at FROM domain_versions WHERE domain_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		domainID,
	).Scan(&v.ID, &v.DomainID, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest version for domain %s", domainID)
	}
	return &v, nil
}

// Keywords and phrases

func (s *SQLiteStore) InsertKeywords(ctx context.Context, keywords []model.Keyword) error {
	if len(keywords) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert keywords")
	}
	defer tx.Rollback()

	for _, k := range keywords {
		var volume *int
		var difficulty, cpc *float64
		if k.Market != nil {
			volume = &k.Market.SearchVolume
			difficulty = &k.Market.Difficulty
			cpc = &k.Market.CPC
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO keywords (id, domain_version_id, term, search_volume, difficulty, cpc, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			k.ID, k.DomainVersionID, k.Term, volume, difficulty, cpc, k.CreatedAt,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert keyword")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit insert keywords")
}

func (s *SQLiteStore) InsertPhrases(ctx context.Context, phrases []model.Phrase) error {
	if len(phrases) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert phrases")
	}
	defer tx.Rollback()

	for _, p := range phrases {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO phrases (id, keyword_id, domain_version_id, text, created_at) VALUES (?, ?, ?, ?, ?)`,
			p.ID, p.KeywordID, p.DomainVersionID, p.Text, p.CreatedAt,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert phrase")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit insert phrases")
}

func (s *SQLiteStore) ListKeywords(ctx context.Context, versionID string) ([]model.Keyword, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, domain_version_id, term, search_volume, difficulty, cpc, created_at FROM keywords WHERE domain_version_id = ? ORDER BY created_at ASC, id ASC`,
		versionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list keywords")
	}
	defer rows.Close()

	var keywords []model.Keyword
	for rows.Next() {
		var k model.Keyword
		var volume sql.NullInt64
		var difficulty, cpc sql.NullFloat64
		if err := rows.Scan(&k.ID, &k.DomainVersionID, &k.Term, &volume, &difficulty, &cpc, &k.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan keyword")
		}
		if volume.Valid || difficulty.Valid || cpc.Valid {
			k.Market = &model.MarketData{
				SearchVolume: int(volume.Int64),
				Difficulty:   difficulty.Float64,
				CPC:          cpc.Float64,
			}
		}
		keywords = append(keywords, k)
	}
	return keywords, eris.Wrap(rows.Err(), "sqlite: list keywords iterate")
}

func (s *SQLiteStore) ListPhrases(ctx context.Context, versionID string) ([]model.Phrase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, keyword_id, domain_version_id, text, created_at FROM phrases WHERE domain_version_id = ? ORDER BY created_at ASC, id ASC`,
		versionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list phrases")
	}
	defer rows.Close()

	var phrases []model.Phrase
	for rows.Next() {
		var p model.Phrase
		if err := rows.Scan(&p.ID, &p.KeywordID, &p.DomainVersionID, &p.Text, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan phrase")
		}
		phrases = append(phrases, p)
	}
	return phrases, eris.Wrap(rows.Err(), "sqlite: list phrases iterate")
}

// Query results

func (s *SQLiteStore) InsertQueryResults(ctx context.Context, results []model.AIQueryResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert results")
	}
	defer tx.Rollback()

	for _, r := range results {
		var scoresJSON *string
		if r.Scores != nil {
			b, err := json.Marshal(r.Scores)
			if err != nil {
				return eris.Wrap(err, "sqlite: marshal scores")
			}
			str := string(b)
			scoresJSON = &str
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ai_query_results (id, domain_version_id, phrase_id, model, status, response, latency_ms, cost_usd, error, scores, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.DomainVersionID, r.PhraseID, r.Model, string(r.Status),
			r.Response, r.LatencyMs, r.CostUSD, r.Error, scoresJSON, r.CreatedAt,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert query result")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit insert results")
}

func (s *SQLiteStore) ListQueryResults(ctx context.Context, versionID string) ([]model.AIQueryResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, domain_version_id, phrase_id, model, status, response, latency_ms, cost_usd, error, scores, created_at
		 FROM ai_query_results WHERE domain_version_id = ? ORDER BY created_at ASC, id ASC`,
		versionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list query results")
	}
	defer rows.Close()

	var results []model.AIQueryResult
	for rows.Next() {
		var r model.AIQueryResult
		var status string
		var response, errMsg, scoresJSON sql.NullString
		if err := rows.Scan(&r.ID, &r.DomainVersionID, &r.PhraseID, &r.Model, &status,
			&response, &r.LatencyMs, &r.CostUSD, &errMsg, &scoresJSON, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan query result")
		}
		r.Status = model.QueryStatus(status)
		r.Response = response.String
		r.Error = errMsg.String
		if scoresJSON.Valid && scoresJSON.String != "" {
			r.Scores = &model.ScoreSet{}
			if err := json.Unmarshal([]byte(scoresJSON.String), r.Scores); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal scores")
			}
		}
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "sqlite: list query results iterate")
}

// Onboarding progress

func (s *SQLiteStore) GetProgress(ctx context.Context, domainID, versionID string) (*model.OnboardingProgress, error) {
	var p model.OnboardingProgress
	var step int
	var stepsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT domain_id, domain_version_id, current_step, is_completed, steps, updated_at FROM onboarding_progress WHERE domain_id = ? AND domain_version_id = ?`,
		domainID, versionID,
	).Scan(&p.DomainID, &p.DomainVersionID, &step, &p.IsCompleted, &stepsJSON, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get progress")
	}
	p.CurrentStep = model.Step(step)
	if err := json.Unmarshal([]byte(stepsJSON), &p.Steps); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal steps")
	}
	return &p, nil
}

func (s *SQLiteStore) InitProgress(ctx context.Context, domainID, versionID string) (*model.OnboardingProgress, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO onboarding_progress (domain_id, domain_version_id, current_step, is_completed, steps, updated_at)
		 VALUES (?, ?, ?, 0, '{}', ?)
		 ON CONFLICT (domain_id, domain_version_id) DO NOTHING`,
		domainID, versionID, int(model.StepSubmission), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: init progress")
	}
	return s.GetProgress(ctx, domainID, versionID)
}

func (s *SQLiteStore) UpdateProgress(ctx context.Context, p *model.OnboardingProgress, expectStep model.Step) error {
	stepsJSON, err := json.Marshal(p.Steps)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal steps")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE onboarding_progress SET current_step = ?, is_completed = ?, steps = ?, updated_at = ?
		 WHERE domain_id = ? AND domain_version_id = ? AND current_step = ?`,
		int(p.CurrentStep), p.IsCompleted, string(stepsJSON), time.Now().UTC(),
		p.DomainID, p.DomainVersionID, int(expectStep),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update progress")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// Dashboard artifact

func (s *SQLiteStore) GetDashboardAnalysis(ctx context.Context, domainID string) (*model.DashboardAnalysis, error) {
	var a model.DashboardAnalysis
	var metricsJSON, insightsJSON, industryJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT domain_id, domain_version_id, metrics, insights, industry, stale, computed_at FROM dashboard_analysis WHERE domain_id = ?`,
		domainID,
	).Scan(&a.DomainID, &a.DomainVersionID, &metricsJSON, &insightsJSON, &industryJSON, &a.Stale, &a.ComputedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get dashboard analysis")
	}
	if err := json.Unmarshal([]byte(metricsJSON), &a.Metrics); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal metrics")
	}
	if err := json.Unmarshal([]byte(insightsJSON), &a.Insights); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal insights")
	}
	if err := json.Unmarshal([]byte(industryJSON), &a.IndustryAnalysis); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal industry analysis")
	}
	return &a, nil
}

func (s *SQLiteStore) UpsertDashboardAnalysis(ctx context.Context, a *model.DashboardAnalysis) error {
	metricsJSON, err := json.Marshal(a.Metrics)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal metrics")
	}
	insightsJSON, err := json.Marshal(a.Insights)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal insights")
	}
	industryJSON, err := json.Marshal(a.IndustryAnalysis)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal industry analysis")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert dashboard")
	}
	defer tx.Rollback()

	// A write for an older version must not clobber a newer version's artifact.
	var currentVersion string
	err = tx.QueryRowContext(ctx,
		`SELECT domain_version_id FROM dashboard_analysis WHERE domain_id = ?`, a.DomainID,
	).Scan(&currentVersion)
	if err != nil && err != sql.ErrNoRows {
		return eris.Wrap(err, "sqlite: read current dashboard version")
	}
	if currentVersion != "" && currentVersion != a.DomainVersionID {
		var currentAt, incomingAt time.Time
		if err := tx.QueryRowContext(ctx,
			`SELECT created_at FROM domain_versions WHERE id = ?`, currentVersion,
		).Scan(&currentAt); err != nil && err != sql.ErrNoRows {
			return eris.Wrap(err, "sqlite: read current version stamp")
		}
		if err := tx.QueryRowContext(ctx,
			`SELECT created_at FROM domain_versions WHERE id = ?`, a.DomainVersionID,
		).Scan(&incomingAt); err != nil && err != sql.ErrNoRows {
			return eris.Wrap(err, "sqlite: read incoming version stamp")
		}
		if incomingAt.Before(currentAt) {
			return ErrStaleVersion
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO dashboard_analysis (id, domain_id, domain_version_id, metrics, insights, industry, stale, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (domain_id) DO UPDATE SET
		   domain_version_id = excluded.domain_version_id, metrics = excluded.metrics,
		   insights = excluded.insights, industry = excluded.industry,
		   stale = excluded.stale, computed_at = excluded.computed_at`,
		uuid.New().String(), a.DomainID, a.DomainVersionID,
		string(metricsJSON), string(insightsJSON), string(industryJSON), a.Stale, a.ComputedAt,
	); err != nil {
		return eris.Wrap(err, "sqlite: upsert dashboard analysis")
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit upsert dashboard")
}

func (s *SQLiteStore) SetDashboardStale(ctx context.Context, domainID string, stale bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE dashboard_analysis SET stale = ? WHERE domain_id = ?`,
		stale, domainID,
	)
	return eris.Wrap(err, "sqlite: set dashboard stale")
}

// Competitor artifact

func (s *SQLiteStore) GetCompetitorAnalysis(ctx context.Context, domainID string) (*model.CompetitorAnalysis, error) {
	var a model.CompetitorAnalysis
	var payloadJSON, list string
	err := s.db.QueryRowContext(ctx,
		`SELECT domain_id, payload, competitor_list, computed_at FROM competitor_analysis WHERE domain_id = ?`,
		domainID,
	).Scan(&a.DomainID, &payloadJSON, &list, &a.ComputedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get competitor analysis")
	}

	var payload competitorPayload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal competitor payload")
	}
	a.Competitors = payload.Competitors
	a.MarketInsights = payload.MarketInsights
	a.StrategicRecommendations = payload.StrategicRecommendations
	a.CompetitiveAnalysis = payload.CompetitiveAnalysis
	a.CompetitorList = SplitCompetitorList(list)
	return &a, nil
}

func (s *SQLiteStore) UpsertCompetitorAnalysis(ctx context.Context, a *model.CompetitorAnalysis) error {
	payloadJSON, err := json.Marshal(competitorPayload{
		Competitors:              a.Competitors,
		MarketInsights:           a.MarketInsights,
		StrategicRecommendations: a.StrategicRecommendations,
		CompetitiveAnalysis:      a.CompetitiveAnalysis,
	})
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal competitor payload")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO competitor_analysis (id, domain_id, payload, competitor_list, computed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (domain_id) DO UPDATE SET
		   payload = excluded.payload, competitor_list = excluded.competitor_list, computed_at = excluded.computed_at`,
		uuid.New().String(), a.DomainID, string(payloadJSON), JoinCompetitorList(a.CompetitorList), a.ComputedAt,
	)
	return eris.Wrap(err, "sqlite: upsert competitor analysis")
}

// Suggested competitors

func (s *SQLiteStore) ListSuggestedCompetitors(ctx context.Context, domainID string) ([]model.SuggestedCompetitor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, domain_id, name, domain, reason, created_at FROM suggested_competitors WHERE domain_id = ? ORDER BY created_at ASC, id ASC`,
		domainID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list suggested competitors")
	}
	defer rows.Close()

	var suggestions []model.SuggestedCompetitor
	for rows.Next() {
		var sc model.SuggestedCompetitor
		if err := rows.Scan(&sc.ID, &sc.DomainID, &sc.Name, &sc.Domain, &sc.Reason, &sc.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan suggested competitor")
		}
		suggestions = append(suggestions, sc)
	}
	return suggestions, eris.Wrap(rows.Err(), "sqlite: list suggested competitors iterate")
}

func (s *SQLiteStore) ReplaceSuggestedCompetitors(ctx context.Context, domainID string, suggestions []model.SuggestedCompetitor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace suggested")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM suggested_competitors WHERE domain_id = ?`, domainID); err != nil {
		return eris.Wrap(err, "sqlite: clear suggested competitors")
	}
	for _, sc := range suggestions {
		if sc.ID == "" {
			sc.ID = uuid.New().String()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO suggested_competitors (id, domain_id, name, domain, reason, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			sc.ID, domainID, sc.Name, sc.Domain, sc.Reason, sc.CreatedAt,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert suggested competitor")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace suggested")
}

// Run history

func (s *SQLiteStore) UpsertRunSnapshot(ctx context.Context, snap model.RunSnapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_history (domain_id, domain_version_id, visibility_score, mention_rate, computed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (domain_version_id) DO UPDATE SET
		   visibility_score = excluded.visibility_score, mention_rate = excluded.mention_rate, computed_at = excluded.computed_at`,
		snap.DomainID, snap.DomainVersionID, snap.VisibilityScore, snap.MentionRate, snap.ComputedAt,
	)
	return eris.Wrap(err, "sqlite: upsert run snapshot")
}

func (s *SQLiteStore) ListRunSnapshots(ctx context.Context, domainID string) ([]model.RunSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT domain_id, domain_version_id, visibility_score, mention_rate, computed_at FROM run_history WHERE domain_id = ? ORDER BY computed_at ASC`,
		domainID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list run snapshots")
	}
	defer rows.Close()

	var snaps []model.RunSnapshot
	for rows.Next() {
		var snap model.RunSnapshot
		if err := rows.Scan(&snap.DomainID, &snap.DomainVersionID, &snap.VisibilityScore, &snap.MentionRate, &snap.ComputedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run snapshot")
		}
		snaps = append(snaps, snap)
	}
	return snaps, eris.Wrap(rows.Err(), "sqlite: list run snapshots iterate")
}
