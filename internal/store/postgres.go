package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-cli/internal/db"
	"github.com/sells-group/visibility-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection. These
// are the hot paths: progress reads and writes fire on every pipeline call,
// artifact reads on every dashboard request.
var preparedStatements = map[string]string{
	"get_progress":      `SELECT domain_id, domain_version_id, current_step, is_completed, steps, updated_at FROM onboarding_progress WHERE domain_id = $1 AND domain_version_id = $2`,
	"update_progress":   `UPDATE onboarding_progress SET current_step = $1, is_completed = $2, steps = $3, updated_at = $4 WHERE domain_id = $5 AND domain_version_id = $6 AND current_step = $7`,
	"get_dashboard":     `SELECT domain_id, domain_version_id, metrics, insights, industry, stale, computed_at FROM dashboard_analysis WHERE domain_id = $1`,
	"get_competitors":   `SELECT domain_id, payload, competitor_list, computed_at FROM competitor_analysis WHERE domain_id = $1`,
	"list_suggested":    `SELECT id, domain_id, name, domain, reason, created_at FROM suggested_competitors WHERE domain_id = $1 ORDER BY created_at ASC, id ASC`,
	"get_latest_version": `SELECT id, domain_id, created_at FROM domain_versions WHERE domain_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS domains (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	url        TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS domain_versions (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	domain_id  TEXT NOT NULL REFERENCES domains(id) ON DELETE RESTRICT ON UPDATE CASCADE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_domain_versions_domain ON domain_versions(domain_id, created_at DESC);

CREATE TABLE IF NOT EXISTS keywords (
	id                TEXT PRIMARY KEY,
	domain_version_id TEXT NOT NULL REFERENCES domain_versions(id) ON DELETE RESTRICT ON UPDATE CASCADE,
	term              TEXT NOT NULL,
	search_volume     INTEGER,
	difficulty        DOUBLE PRECISION,
	cpc               DOUBLE PRECISION,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_keywords_version ON keywords(domain_version_id);

CREATE TABLE IF NOT EXISTS phrases (
	id                TEXT PRIMARY KEY,
	keyword_id        TEXT NOT NULL REFERENCES keywords(id) ON DELETE RESTRICT ON UPDATE CASCADE,
	domain_version_id TEXT NOT NULL REFERENCES domain_versions(id) ON DELETE RESTRICT ON UPDATE CASCADE,
	text              TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_phrases_version ON phrases(domain_version_id);

CREATE TABLE IF NOT EXISTS ai_query_results (
	id                TEXT PRIMARY KEY,
	domain_version_id TEXT NOT NULL REFERENCES domain_versions(id) ON DELETE RESTRICT ON UPDATE CASCADE,
	phrase_id         TEXT NOT NULL REFERENCES phrases(id) ON DELETE RESTRICT ON UPDATE CASCADE,
	model             TEXT NOT NULL,
	status            TEXT NOT NULL,
	response          TEXT,
	latency_ms        BIGINT NOT NULL DEFAULT 0,
	cost_usd          DOUBLE PRECISION NOT NULL DEFAULT 0,
	error             TEXT,
	scores            JSONB,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_results_version ON ai_query_results(domain_version_id);
CREATE INDEX IF NOT EXISTS idx_results_phrase ON ai_query_results(phrase_id);

CREATE TABLE IF NOT EXISTS onboarding_progress (
	domain_id         TEXT NOT NULL REFERENCES domains(id) ON DELETE RESTRICT ON UPDATE CASCADE,
	domain_version_id TEXT NOT NULL REFERENCES domain_versions(id) ON DELETE RESTRICT ON UPDATE CASCADE,
	current_step      INTEGER NOT NULL DEFAULT 0,
	is_completed      BOOLEAN NOT NULL DEFAULT false,
	steps             JSONB NOT NULL DEFAULT '{}',
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (domain_id, domain_version_id)
);

CREATE TABLE IF NOT EXISTS dashboard_analysis (
	id                TEXT PRIMARY KEY,
	domain_id         TEXT NOT NULL UNIQUE REFERENCES domains(id) ON DELETE RESTRICT ON UPDATE CASCADE,
	domain_version_id TEXT NOT NULL REFERENCES domain_versions(id) ON DELETE RESTRICT ON UPDATE CASCADE,
	metrics           JSONB NOT NULL,
	insights          JSONB NOT NULL,
	industry          JSONB NOT NULL,
	stale             BOOLEAN NOT NULL DEFAULT false,
	computed_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS competitor_analysis (
	id              TEXT PRIMARY KEY,
	domain_id       TEXT NOT NULL UNIQUE REFERENCES domains(id) ON DELETE RESTRICT ON UPDATE CASCADE,
	payload         JSONB NOT NULL,
	competitor_list TEXT NOT NULL DEFAULT '',
	computed_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS suggested_competitors (
	id         TEXT PRIMARY KEY,
	domain_id  TEXT NOT NULL REFERENCES domains(id) ON DELETE RESTRICT ON UPDATE CASCADE,
	name       TEXT NOT NULL,
	domain     TEXT NOT NULL DEFAULT '',
	reason     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_suggested_domain ON suggested_competitors(domain_id);

CREATE TABLE IF NOT EXISTS run_history (
	domain_id         TEXT NOT NULL REFERENCES domains(id) ON DELETE RESTRICT ON UPDATE CASCADE,
	domain_version_id TEXT NOT NULL UNIQUE REFERENCES domain_versions(id) ON DELETE RESTRICT ON UPDATE CASCADE,
	visibility_score  DOUBLE PRECISION NOT NULL,
	mention_rate      DOUBLE PRECISION NOT NULL,
	computed_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_history_domain ON run_history(domain_id, computed_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Domains and versions

func (s *PostgresStore) CreateDomain(ctx context.Context, url string) (*model.Domain, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO domains (id, url, created_at) VALUES ($1, $2, $3)`,
		id, url, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert domain")
	}
	return &model.Domain{ID: id, URL: url, CreatedAt: now}, nil
}

func (s *PostgresStore) GetDomain(ctx context.Context, domainID string) (*model.Domain, error) {
	var d model.Domain
	err := s.pool.QueryRow(ctx,
		`SELECT id, url, created_at FROM domains WHERE id = $1`,
		domainID,
	).Scan(&d.ID, &d.URL, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get domain %s", domainID)
	}
	return &d, nil
}

func (s *PostgresStore) GetDomainByURL(ctx context.Context, url string) (*model.Domain, error) {
	var d model.Domain
	err := s.pool.QueryRow(ctx,
		`SELECT id, url, created_at FROM domains WHERE url = $1`,
		url,
	).Scan(&d.ID, &d.URL, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get domain by url")
	}
	return &d, nil
}

func (s *PostgresStore) CreateVersion(ctx context.Context, domainID string) (*model.DomainVersion, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO domain_versions (id, domain_id, created_at) VALUES ($1, $2, $3)`,
		id, domainID, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert version for domain %s", domainID)
	}
	return &model.DomainVersion{ID: id, DomainID: domainID, CreatedAt: now}, nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, versionID string) (*model.DomainVersion, error) {
	var v model.DomainVersion
	err := s.pool.QueryRow(ctx,
		`SELECT id, domain_id, created_at FROM domain_versions WHERE id = $1`,
		versionID,
	).Scan(&v.ID, &v.DomainID, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get version %s", versionID)
	}
	return &v, nil
}

func (s *PostgresStore) GetLatestVersion(ctx context.Context, domainID string) (*model.DomainVersion, error) {
	var v model.DomainVersion
	err := s.pool.QueryRow(ctx,
		`SELECT id, domain_id, created_at FROM domain_versions WHERE domain_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		domainID,
	).Scan(&v.ID, &v.DomainID, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: latest version for domain %s", domainID)
	}
	return &v, nil
}

// Keywords and phrases

func (s *PostgresStore) InsertKeywords(ctx context.Context, keywords []model.Keyword) error {
	rows := make([][]any, 0, len(keywords))
	for _, k := range keywords {
		var volume *int
		var difficulty, cpc *float64
		if k.Market != nil {
			volume = &k.Market.SearchVolume
			difficulty = &k.Market.Difficulty
			cpc = &k.Market.CPC
		}
		rows = append(rows, []any{k.ID, k.DomainVersionID, k.Term, volume, difficulty, cpc, k.CreatedAt})
	}
	_, err := db.CopyFrom(ctx, s.pool, "keywords",
		[]string{"id", "domain_version_id", "term", "search_volume", "difficulty", "cpc", "created_at"},
		rows,
	)
	return eris.Wrap(err, "postgres: insert keywords")
}

func (s *PostgresStore) InsertPhrases(ctx context.Context, phrases []model.Phrase) error {
	rows := make([][]any, 0, len(phrases))
	for _, p := range phrases {
		rows = append(rows, []any{p.ID, p.KeywordID, p.DomainVersionID, p.Text, p.CreatedAt})
	}
	_, err := db.CopyFrom(ctx, s.pool, "phrases",
		[]string{"id", "keyword_id", "domain_version_id", "text", "created_at"},
		rows,
	)
	return eris.Wrap(err, "postgres: insert phrases")
}

func (s *PostgresStore) ListKeywords(ctx context.Context, versionID string) ([]model.Keyword, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, domain_version_id, term, search_volume, difficulty, cpc, created_at FROM keywords WHERE domain_version_id = $1 ORDER BY created_at ASC, id ASC`,
		versionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list keywords")
	}
	defer rows.Close()

	var keywords []model.Keyword
	for rows.Next() {
		var k model.Keyword
		var volume *int
		var difficulty, cpc *float64
		if err := rows.Scan(&k.ID, &k.DomainVersionID, &k.Term, &volume, &difficulty, &cpc, &k.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan keyword")
		}
		if volume != nil || difficulty != nil || cpc != nil {
			k.Market = &model.MarketData{}
			if volume != nil {
				k.Market.SearchVolume = *volume
			}
			if difficulty != nil {
				k.Market.Difficulty = *difficulty
			}
			if cpc != nil {
				k.Market.CPC = *cpc
			}
		}
		keywords = append(keywords, k)
	}
	return keywords, eris.Wrap(rows.Err(), "postgres: list keywords iterate")
}

func (s *PostgresStore) ListPhrases(ctx context.Context, versionID string) ([]model.Phrase, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, keyword_id, domain_version_id, text, created_at FROM phrases WHERE domain_version_id = $1 ORDER BY created_at ASC, id ASC`,
		versionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list phrases")
	}
	defer rows.Close()

	var phrases []model.Phrase
	for rows.Next() {
		var p model.Phrase
		if err := rows.Scan(&p.ID, &p.KeywordID, &p.DomainVersionID, &p.Text, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan phrase")
		}
		phrases = append(phrases, p)
	}
	return phrases, eris.Wrap(rows.Err(), "postgres: list phrases iterate")
}

// Query results

func (s *PostgresStore) InsertQueryResults(ctx context.Context, results []model.AIQueryResult) error {
	rows := make([][]any, 0, len(results))
	for _, r := range results {
		var scoresJSON []byte
		if r.Scores != nil {
			var err error
			scoresJSON, err = json.Marshal(r.Scores)
			if err != nil {
				return eris.Wrap(err, "postgres: marshal scores")
			}
		}
		rows = append(rows, []any{
			r.ID, r.DomainVersionID, r.PhraseID, r.Model, string(r.Status),
			r.Response, r.LatencyMs, r.CostUSD, r.Error, scoresJSON, r.CreatedAt,
		})
	}
	_, err := db.CopyFrom(ctx, s.pool, "ai_query_results",
		[]string{"id", "domain_version_id", "phrase_id", "model", "status", "response", "latency_ms", "cost_usd", "error", "scores", "created_at"},
		rows,
	)
	return eris.Wrap(err, "postgres: insert query results")
}

func (s *PostgresStore) ListQueryResults(ctx context.Context, versionID string) ([]model.AIQueryResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, domain_version_id, phrase_id, model, status, response, latency_ms, cost_usd, error, scores, created_at
		 FROM ai_query_results WHERE domain_version_id = $1 ORDER BY created_at ASC, id ASC`,
		versionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list query results")
	}
	defer rows.Close()

	var results []model.AIQueryResult
	for rows.Next() {
		var r model.AIQueryResult
		var response, errMsg *string
		var scoresJSON []byte
		if err := rows.Scan(&r.ID, &r.DomainVersionID, &r.PhraseID, &r.Model, &r.Status,
			&response, &r.LatencyMs, &r.CostUSD, &errMsg, &scoresJSON, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan query result")
		}
		if response != nil {
			r.Response = *response
		}
		if errMsg != nil {
			r.Error = *errMsg
		}
		if len(scoresJSON) > 0 {
			r.Scores = &model.ScoreSet{}
			if err := json.Unmarshal(scoresJSON, r.Scores); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal scores")
			}
		}
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "postgres: list query results iterate")
}

// Onboarding progress

func (s *PostgresStore) GetProgress(ctx context.Context, domainID, versionID string) (*model.OnboardingProgress, error) {
	var p model.OnboardingProgress
	var step int
	var stepsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT domain_id, domain_version_id, current_step, is_completed, steps, updated_at FROM onboarding_progress WHERE domain_id = $1 AND domain_version_id = $2`,
		domainID, versionID,
	).Scan(&p.DomainID, &p.DomainVersionID, &step, &p.IsCompleted, &stepsJSON, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get progress")
	}
	p.CurrentStep = model.Step(step)
	if err := json.Unmarshal(stepsJSON, &p.Steps); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal steps")
	}
	return &p, nil
}

func (s *PostgresStore) InitProgress(ctx context.Context, domainID, versionID string) (*model.OnboardingProgress, error) {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO onboarding_progress (domain_id, domain_version_id, current_step, is_completed, steps, updated_at)
		 VALUES ($1, $2, $3, false, '{}', $4)
		 ON CONFLICT (domain_id, domain_version_id) DO NOTHING`,
		domainID, versionID, int(model.StepSubmission), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: init progress")
	}
	return s.GetProgress(ctx, domainID, versionID)
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, p *model.OnboardingProgress, expectStep model.Step) error {
	stepsJSON, err := json.Marshal(p.Steps)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal steps")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE onboarding_progress SET current_step = $1, is_completed = $2, steps = $3, updated_at = $4
		 WHERE domain_id = $5 AND domain_version_id = $6 AND current_step = $7`,
		int(p.CurrentStep), p.IsCompleted, stepsJSON, time.Now().UTC(),
		p.DomainID, p.DomainVersionID, int(expectStep),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update progress")
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// Dashboard artifact

func (s *PostgresStore) GetDashboardAnalysis(ctx context.Context, domainID string) (*model.DashboardAnalysis, error) {
	var a model.DashboardAnalysis
	var metricsJSON, insightsJSON, industryJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT domain_id, domain_version_id, metrics, insights, industry, stale, computed_at FROM dashboard_analysis WHERE domain_id = $1`,
		domainID,
	).Scan(&a.DomainID, &a.DomainVersionID, &metricsJSON, &insightsJSON, &industryJSON, &a.Stale, &a.ComputedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get dashboard analysis")
	}
	if err := json.Unmarshal(metricsJSON, &a.Metrics); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal metrics")
	}
	if err := json.Unmarshal(insightsJSON, &a.Insights); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal insights")
	}
	if err := json.Unmarshal(industryJSON, &a.IndustryAnalysis); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal industry analysis")
	}
	return &a, nil
}

func (s *PostgresStore) UpsertDashboardAnalysis(ctx context.Context, a *model.DashboardAnalysis) error {
	metricsJSON, err := json.Marshal(a.Metrics)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal metrics")
	}
	insightsJSON, err := json.Marshal(a.Insights)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal insights")
	}
	industryJSON, err := json.Marshal(a.IndustryAnalysis)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal industry analysis")
	}

	// The WHERE clause on the conflict arm keeps a slow batch for an old
	// version from clobbering the artifact a newer version already wrote.
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO dashboard_analysis (id, domain_id, domain_version_id, metrics, insights, industry, stale, computed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (domain_id) DO UPDATE SET
		   domain_version_id = EXCLUDED.domain_version_id, metrics = EXCLUDED.metrics,
		   insights = EXCLUDED.insights, industry = EXCLUDED.industry,
		   stale = EXCLUDED.stale, computed_at = EXCLUDED.computed_at
		 WHERE dashboard_analysis.domain_version_id = EXCLUDED.domain_version_id
		    OR (SELECT created_at FROM domain_versions WHERE id = EXCLUDED.domain_version_id) >=
		       (SELECT created_at FROM domain_versions WHERE id = dashboard_analysis.domain_version_id)`,
		uuid.New().String(), a.DomainID, a.DomainVersionID,
		metricsJSON, insightsJSON, industryJSON, a.Stale, a.ComputedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: upsert dashboard analysis")
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleVersion
	}
	return nil
}

func (s *PostgresStore) SetDashboardStale(ctx context.Context, domainID string, stale bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE dashboard_analysis SET stale = $1 WHERE domain_id = $2`,
		stale, domainID,
	)
	return eris.Wrap(err, "postgres: set dashboard stale")
}

// Competitor artifact

// competitorPayload is the JSONB shape of the competitor_analysis payload
// column. The competitor list itself lives in a flat column so it can be
// compared without decoding the blob.
type competitorPayload struct {
	Competitors              []model.Competitor `json:"competitors"`
	MarketInsights           []string           `json:"market_insights"`
	StrategicRecommendations []string           `json:"strategic_recommendations"`
	CompetitiveAnalysis      string             `json:"competitive_analysis"`
}

func (s *PostgresStore) GetCompetitorAnalysis(ctx context.Context, domainID string) (*model.CompetitorAnalysis, error) {
	var a model.CompetitorAnalysis
	var payloadJSON []byte
	var list string
	err := s.pool.QueryRow(ctx,
		`SELECT domain_id, payload, competitor_list, computed_at FROM competitor_analysis WHERE domain_id = $1`,
		domainID,
	).Scan(&a.DomainID, &payloadJSON, &list, &a.ComputedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get competitor analysis")
	}

	var payload competitorPayload
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal competitor payload")
	}
	a.Competitors = payload.Competitors
	a.MarketInsights = payload.MarketInsights
	a.StrategicRecommendations = payload.StrategicRecommendations
	a.CompetitiveAnalysis = payload.CompetitiveAnalysis
	a.CompetitorList = SplitCompetitorList(list)
	return &a, nil
}

func (s *PostgresStore) UpsertCompetitorAnalysis(ctx context.Context, a *model.CompetitorAnalysis) error {
	payloadJSON, err := json.Marshal(competitorPayload{
		Competitors:              a.Competitors,
		MarketInsights:           a.MarketInsights,
		StrategicRecommendations: a.StrategicRecommendations,
		CompetitiveAnalysis:      a.CompetitiveAnalysis,
	})
	if err != nil {
		return eris.Wrap(err, "postgres: marshal competitor payload")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO competitor_analysis (id, domain_id, payload, competitor_list, computed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (domain_id) DO UPDATE SET
		   payload = EXCLUDED.payload, competitor_list = EXCLUDED.competitor_list, computed_at = EXCLUDED.computed_at`,
		uuid.New().String(), a.DomainID, payloadJSON, JoinCompetitorList(a.CompetitorList), a.ComputedAt,
	)
	return eris.Wrap(err, "postgres: upsert competitor analysis")
}

// Suggested competitors

func (s *PostgresStore) ListSuggestedCompetitors(ctx context.Context, domainID string) ([]model.SuggestedCompetitor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, domain_id, name, domain, reason, created_at FROM suggested_competitors WHERE domain_id = $1 ORDER BY created_at ASC, id ASC`,
		domainID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list suggested competitors")
	}
	defer rows.Close()

	var suggestions []model.SuggestedCompetitor
	for rows.Next() {
		var sc model.SuggestedCompetitor
		if err := rows.Scan(&sc.ID, &sc.DomainID, &sc.Name, &sc.Domain, &sc.Reason, &sc.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan suggested competitor")
		}
		suggestions = append(suggestions, sc)
	}
	return suggestions, eris.Wrap(rows.Err(), "postgres: list suggested competitors iterate")
}

func (s *PostgresStore) ReplaceSuggestedCompetitors(ctx context.Context, domainID string, suggestions []model.SuggestedCompetitor) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace suggested")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM suggested_competitors WHERE domain_id = $1`, domainID); err != nil {
		return eris.Wrap(err, "postgres: clear suggested competitors")
	}
	for _, sc := range suggestions {
		if sc.ID == "" {
			sc.ID = uuid.New().String()
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO suggested_competitors (id, domain_id, name, domain, reason, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			sc.ID, domainID, sc.Name, sc.Domain, sc.Reason, sc.CreatedAt,
		); err != nil {
			return eris.Wrap(err, "postgres: insert suggested competitor")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace suggested")
}

// Run history

func (s *PostgresStore) UpsertRunSnapshot(ctx context.Context, snap model.RunSnapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_history (domain_id, domain_version_id, visibility_score, mention_rate, computed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (domain_version_id) DO UPDATE SET
		   visibility_score = EXCLUDED.visibility_score, mention_rate = EXCLUDED.mention_rate, computed_at = EXCLUDED.computed_at`,
		snap.DomainID, snap.DomainVersionID, snap.VisibilityScore, snap.MentionRate, snap.ComputedAt,
	)
	return eris.Wrap(err, "postgres: upsert run snapshot")
}

func (s *PostgresStore) ListRunSnapshots(ctx context.Context, domainID string) ([]model.RunSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT domain_id, domain_version_id, visibility_score, mention_rate, computed_at FROM run_history WHERE domain_id = $1 ORDER BY computed_at ASC`,
		domainID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list run snapshots")
	}
	defer rows.Close()

	var snaps []model.RunSnapshot
	for rows.Next() {
		var snap model.RunSnapshot
		if err := rows.Scan(&snap.DomainID, &snap.DomainVersionID, &snap.VisibilityScore, &snap.MentionRate, &snap.ComputedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run snapshot")
		}
		snaps = append(snaps, snap)
	}
	return snaps, eris.Wrap(rows.Err(), "postgres: list run snapshots iterate")
}

// JoinCompetitorList flattens a competitor list into the stored comma form.
func JoinCompetitorList(list []string) string {
	return strings.Join(list, ", ")
}

// SplitCompetitorList parses the stored comma form back into a list.
func SplitCompetitorList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
