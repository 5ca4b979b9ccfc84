package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/resilience"
	"github.com/sells-group/visibility-cli/internal/scoring"
)

// ErrBatchTimeout marks query attempts abandoned because the batch deadline
// expired before they could run.
var ErrBatchTimeout = eris.New("orchestrator: batch deadline exceeded")

// Config tunes the fan-out behavior.
type Config struct {
	// MaxConcurrent bounds in-flight queries across all models. Default: 4.
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`

	// BatchTimeout bounds one whole RunBatch call. Default: 10m.
	BatchTimeout time.Duration `yaml:"batch_timeout" mapstructure:"batch_timeout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 4,
		BatchTimeout:  10 * time.Minute,
	}
}

// BatchInput describes one fan-out run: every phrase is sent to every model.
type BatchInput struct {
	DomainVersionID string
	DomainURL       string
	BrandName       string
	Phrases         []model.Phrase
	// Models restricts the run to the named registry IDs; empty means all.
	Models []string
}

// BatchResult is the outcome of a fan-out run. A batch with failures is not
// an error: callers persist whatever completed and flag partial coverage.
type BatchResult struct {
	Results         []model.AIQueryResult
	Attempted       int
	Succeeded       int
	Failed          int
	PartialCoverage bool
	TotalCostUSD    float64
}

// Orchestrator runs query batches against the configured model backends.
type Orchestrator struct {
	registry  *Registry
	providers map[string]ProviderClient
	scorer    scoring.Scorer
	breakers  *resilience.ModelBreakers
	limiters  map[string]*rate.Limiter
	retry     resilience.RetryConfig
	cfg       Config
}

// New creates an Orchestrator. The providers map is keyed by provider name
// (anthropic, openai, perplexity); models whose provider is missing fail at
// query time, not construction.
func New(registry *Registry, providers map[string]ProviderClient, scorer scoring.Scorer, cfg Config) *Orchestrator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Minute
	}

	limiters := make(map[string]*rate.Limiter, len(registry.Models))
	for _, m := range registry.Models {
		limiters[m.ID] = rate.NewLimiter(rate.Limit(m.RPS), m.Burst)
	}

	return &Orchestrator{
		registry:  registry,
		providers: providers,
		scorer:    scorer,
		breakers:  resilience.NewModelBreakers(resilience.DefaultBreakerConfig()),
		limiters:  limiters,
		retry:     resilience.DefaultRetryConfig(),
		cfg:       cfg,
	}
}

type task struct {
	phrase  model.Phrase
	modelID string
}

// RunBatch fans every phrase out to every requested model. It returns an
// error only for unusable input; per-query failures come back as failed
// result rows.
func (o *Orchestrator) RunBatch(ctx context.Context, in BatchInput) (*BatchResult, error) {
	if len(in.Phrases) == 0 {
		return nil, eris.New("orchestrator: batch has no phrases")
	}
	modelIDs := in.Models
	if len(modelIDs) == 0 {
		modelIDs = o.registry.IDs()
	}
	for _, id := range modelIDs {
		if _, ok := o.registry.Get(id); !ok {
			return nil, eris.Errorf("orchestrator: unknown model %s", id)
		}
	}

	tasks := make([]task, 0, len(in.Phrases)*len(modelIDs))
	for _, p := range in.Phrases {
		for _, id := range modelIDs {
			tasks = append(tasks, task{phrase: p, modelID: id})
		}
	}

	zap.L().Info("orchestrator: batch start",
		zap.String("domain_version_id", in.DomainVersionID),
		zap.Int("phrases", len(in.Phrases)),
		zap.Int("models", len(modelIDs)),
		zap.Int("queries", len(tasks)),
	)

	batchCtx, cancel := context.WithTimeout(ctx, o.cfg.BatchTimeout)
	defer cancel()

	results := make([]model.AIQueryResult, len(tasks))
	g, gctx := errgroup.WithContext(batchCtx)
	g.SetLimit(o.cfg.MaxConcurrent)
	for i, t := range tasks {
		g.Go(func() error {
			results[i] = o.queryOne(gctx, in, t)
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	out := &BatchResult{Results: results, Attempted: len(results)}
	for _, r := range results {
		if r.Status == model.QueryStatusOK {
			out.Succeeded++
		} else {
			out.Failed++
		}
		out.TotalCostUSD += r.CostUSD
	}
	out.PartialCoverage = out.Failed > 0

	zap.L().Info("orchestrator: batch done",
		zap.String("domain_version_id", in.DomainVersionID),
		zap.Int("attempted", out.Attempted),
		zap.Int("succeeded", out.Succeeded),
		zap.Int("failed", out.Failed),
		zap.Float64("total_cost_usd", out.TotalCostUSD),
	)
	return out, nil
}

func (o *Orchestrator) queryOne(ctx context.Context, in BatchInput, t task) model.AIQueryResult {
	res := model.AIQueryResult{
		ID:              uuid.New().String(),
		DomainVersionID: in.DomainVersionID,
		PhraseID:        t.phrase.ID,
		Model:           t.modelID,
		Status:          model.QueryStatusFailed,
		CreatedAt:       time.Now().UTC(),
	}

	spec, _ := o.registry.Get(t.modelID)
	provider, ok := o.providers[spec.Provider]
	if !ok {
		res.Error = "no client configured for provider " + spec.Provider
		return res
	}

	breaker := o.breakers.Get(t.modelID)
	if err := breaker.Allow(); err != nil {
		res.Error = err.Error()
		return res
	}

	if err := o.limiters[t.modelID].Wait(ctx); err != nil {
		res.Error = o.describeAbort(ctx, err)
		return res
	}

	retryCfg := o.retry
	retryCfg.OnRetry = resilience.RetryLogger(t.modelID)

	start := time.Now()
	out, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*QueryOutput, error) {
		callCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
		return provider.Query(callCtx, spec, t.phrase.Text)
	})
	res.LatencyMs = time.Since(start).Milliseconds()
	breaker.Record(err)
	if err != nil {
		res.Error = o.describeAbort(ctx, err)
		zap.L().Warn("orchestrator: query failed",
			zap.String("model", t.modelID),
			zap.String("phrase_id", t.phrase.ID),
			zap.Error(err),
		)
		return res
	}

	res.Response = out.Text
	res.CostUSD = spec.Cost(out.InputTokens, out.OutputTokens)

	scores, err := o.scorer.Score(ctx, scoring.Input{
		DomainURL: in.DomainURL,
		BrandName: in.BrandName,
		Phrase:    t.phrase.Text,
		Response:  out.Text,
	})
	if err != nil {
		// The response survived; only the grade is missing. The row stays
		// failed so averages never see ungraded answers.
		res.Error = eris.ToString(err, false)
		return res
	}

	res.Status = model.QueryStatusOK
	res.Scores = scores
	return res
}

// describeAbort folds a batch-deadline hit into the sentinel message so
// abandoned rows are distinguishable from real provider failures.
func (o *Orchestrator) describeAbort(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrBatchTimeout.Error()
	}
	return eris.ToString(err, false)
}
