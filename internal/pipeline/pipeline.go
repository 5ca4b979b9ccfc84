// Package pipeline drives the resumable onboarding flow: a fixed stage list
// per domain version, advanced one step at a time with optimistic writes so
// concurrent clients cannot double-advance a run.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/cache"
	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/orchestrator"
	"github.com/sells-group/visibility-cli/internal/store"
)

// ErrInvalidTransition is returned when a requested step change is not legal
// from the run's current position.
var ErrInvalidTransition = eris.New("pipeline: invalid step transition")

// ErrNotFound is returned when the referenced domain or version is missing.
var ErrNotFound = eris.New("pipeline: domain or version not found")

// Batcher runs the query fan-out stage.
type Batcher interface {
	RunBatch(ctx context.Context, in orchestrator.BatchInput) (*orchestrator.BatchResult, error)
}

// Analyzer receives pipeline lifecycle notifications. *cache.Manager
// satisfies it.
type Analyzer interface {
	FirstTimeAnalysis(ctx context.Context, domainID, versionID string) error
	MarkStale(ctx context.Context, domainID string) error
}

// Machine advances onboarding runs.
type Machine struct {
	store    store.Store
	batcher  Batcher
	analyzer Analyzer
	// models restricts the fan-out stage to these registry IDs; empty means
	// every configured model.
	models []string
}

// NewMachine creates a pipeline machine.
func NewMachine(st store.Store, batcher Batcher, analyzer Analyzer, models []string) *Machine {
	return &Machine{store: st, batcher: batcher, analyzer: analyzer, models: models}
}

// Resume returns the run's progress, creating the row at the submission stage
// on first contact. Calling it repeatedly is harmless.
func (m *Machine) Resume(ctx context.Context, domainID, versionID string) (*model.OnboardingProgress, error) {
	if err := m.checkRun(ctx, domainID, versionID); err != nil {
		return nil, err
	}
	return m.store.InitProgress(ctx, domainID, versionID)
}

// Advance completes the run's current stage with the given payload and moves
// to the next one. The payload must carry the current stage's variant (or
// nothing). Completing the query stage runs the model fan-out synchronously;
// reaching the report stage marks the run completed and triggers the
// first-time dashboard analysis.
func (m *Machine) Advance(ctx context.Context, domainID, versionID string, payload model.StepData) (*model.OnboardingProgress, error) {
	p, err := m.store.GetProgress(ctx, domainID, versionID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	if p.IsCompleted {
		return nil, eris.Wrap(ErrInvalidTransition, "run already completed")
	}

	current := p.CurrentStep
	if err := payload.ValidateFor(current); err != nil {
		return nil, eris.Wrap(ErrInvalidTransition, err.Error())
	}
	p.Steps.Merge(payload)

	if current == model.StepAIQuerying && p.Steps.Querying == nil {
		if err := m.runQueries(ctx, p); err != nil {
			return nil, err
		}
	}

	next := current + 1
	p.CurrentStep = next
	if next == model.TerminalStep {
		p.IsCompleted = true
		if p.Steps.Report == nil {
			p.Steps.Report = &model.ReportData{FirstCompletedAt: time.Now().UTC()}
		}
	}

	if err := m.store.UpdateProgress(ctx, p, current); err != nil {
		return nil, err
	}

	if p.IsCompleted && m.analyzer != nil {
		// The dashboard read path recomputes lazily, so a failure here only
		// delays the artifact.
		if err := m.analyzer.FirstTimeAnalysis(ctx, domainID, versionID); err != nil {
			zap.L().Warn("pipeline: first-time analysis failed",
				zap.String("domain_id", domainID),
				zap.String("domain_version_id", versionID),
				zap.Error(err),
			)
		}
	}
	return p, nil
}

// Rewind moves a run back one stage, clearing completion. At the first stage
// it is a no-op. Payloads recorded for later stages are kept; re-advancing
// overwrites them.
func (m *Machine) Rewind(ctx context.Context, domainID, versionID string) (*model.OnboardingProgress, error) {
	p, err := m.store.GetProgress(ctx, domainID, versionID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	if p.CurrentStep == model.StepSubmission {
		return p, nil
	}

	current := p.CurrentStep
	wasCompleted := p.IsCompleted
	p.CurrentStep = current - 1
	p.IsCompleted = false

	if err := m.store.UpdateProgress(ctx, p, current); err != nil {
		return nil, err
	}

	if wasCompleted && m.analyzer != nil {
		if err := m.analyzer.MarkStale(ctx, domainID); err != nil {
			zap.L().Warn("pipeline: mark stale failed",
				zap.String("domain_id", domainID),
				zap.Error(err),
			)
		}
	}
	return p, nil
}

// runQueries executes the fan-out for the run's stored phrases and records
// the stage summary. The results are persisted before progress moves on, so
// a crash between the two re-runs the stage rather than losing data.
func (m *Machine) runQueries(ctx context.Context, p *model.OnboardingProgress) error {
	if m.batcher == nil {
		return eris.New("pipeline: no query orchestrator configured")
	}

	domain, err := m.store.GetDomain(ctx, p.DomainID)
	if err != nil {
		return err
	}
	if domain == nil {
		return ErrNotFound
	}
	phrases, err := m.store.ListPhrases(ctx, p.DomainVersionID)
	if err != nil {
		return err
	}
	if len(phrases) == 0 {
		return eris.New("pipeline: no phrases generated for this run")
	}

	batch, err := m.batcher.RunBatch(ctx, orchestrator.BatchInput{
		DomainVersionID: p.DomainVersionID,
		DomainURL:       domain.URL,
		BrandName:       cache.BrandFromURL(domain.URL),
		Phrases:         phrases,
		Models:          m.models,
	})
	if err != nil {
		return err
	}
	if err := m.store.InsertQueryResults(ctx, batch.Results); err != nil {
		return err
	}

	p.Steps.Querying = &model.AIQueryingData{
		Attempted:       batch.Attempted,
		Succeeded:       batch.Succeeded,
		Failed:          batch.Failed,
		PartialCoverage: batch.PartialCoverage,
		TotalCostUSD:    batch.TotalCostUSD,
	}
	return nil
}

// checkRun verifies the (domain, version) pair exists and matches.
func (m *Machine) checkRun(ctx context.Context, domainID, versionID string) error {
	v, err := m.store.GetVersion(ctx, versionID)
	if err != nil {
		return err
	}
	if v == nil || v.DomainID != domainID {
		return ErrNotFound
	}
	return nil
}
