package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Step is an index into the fixed onboarding stage list.
type Step int

const (
	StepSubmission Step = iota
	StepExtraction
	StepKeywordDiscovery
	StepPhraseGeneration
	StepAIQuerying
	StepReport
)

// TerminalStep is the final stage; IsCompleted implies CurrentStep == TerminalStep.
const TerminalStep = StepReport

func (s Step) String() string {
	switch s {
	case StepSubmission:
		return "submission"
	case StepExtraction:
		return "extraction"
	case StepKeywordDiscovery:
		return "keyword_discovery"
	case StepPhraseGeneration:
		return "phrase_generation"
	case StepAIQuerying:
		return "ai_querying"
	case StepReport:
		return "report"
	default:
		return "unknown"
	}
}

// Valid reports whether s is within the fixed stage list.
func (s Step) Valid() bool {
	return s >= StepSubmission && s <= StepReport
}

// TokenUsage tracks token consumption for an LLM-backed stage.
type TokenUsage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Add accumulates usage from another stage.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// SubmissionData is the payload recorded when the submission stage completes.
type SubmissionData struct {
	URL string `json:"url"`
}

// ExtractionData summarizes the content-extraction stage.
type ExtractionData struct {
	Pages      int        `json:"pages"`
	Summary    string     `json:"summary,omitempty"`
	TokenUsage TokenUsage `json:"tokenUsage"`
}

// KeywordDiscoveryData records the discovered keyword terms.
type KeywordDiscoveryData struct {
	Terms      []string   `json:"terms"`
	TokenUsage TokenUsage `json:"tokenUsage"`
}

// PhraseGenerationData records how many phrases were generated per keyword.
type PhraseGenerationData struct {
	PhraseCount int        `json:"phraseCount"`
	TokenUsage  TokenUsage `json:"tokenUsage"`
}

// AIQueryingData summarizes the query fan-out stage.
type AIQueryingData struct {
	Attempted       int     `json:"attempted"`
	Succeeded       int     `json:"succeeded"`
	Failed          int     `json:"failed"`
	PartialCoverage bool    `json:"partialCoverage"`
	TotalCostUSD    float64 `json:"totalCostUsd"`
}

// ReportData marks the terminal stage.
type ReportData struct {
	FirstCompletedAt time.Time `json:"firstCompletedAt"`
}

// StepData is the closed union of per-stage payloads. Each stage owns exactly
// one variant; a payload submitted for a stage must set that stage's variant
// and no other.
type StepData struct {
	Submission *SubmissionData       `json:"submission,omitempty"`
	Extraction *ExtractionData       `json:"extraction,omitempty"`
	Keywords   *KeywordDiscoveryData `json:"keywords,omitempty"`
	Phrases    *PhraseGenerationData `json:"phrases,omitempty"`
	Querying   *AIQueryingData       `json:"querying,omitempty"`
	Report     *ReportData           `json:"report,omitempty"`
}

// variants returns the set flags in stage order.
func (d StepData) variants() [6]bool {
	return [6]bool{
		d.Submission != nil,
		d.Extraction != nil,
		d.Keywords != nil,
		d.Phrases != nil,
		d.Querying != nil,
		d.Report != nil,
	}
}

// Empty reports whether no variant is set.
func (d StepData) Empty() bool {
	for _, set := range d.variants() {
		if set {
			return false
		}
	}
	return true
}

// ValidateFor checks that d carries either nothing or exactly the variant
// belonging to the given stage.
func (d StepData) ValidateFor(step Step) error {
	if !step.Valid() {
		return eris.Errorf("model: invalid step %d", int(step))
	}
	for i, set := range d.variants() {
		if set && Step(i) != step {
			return eris.Errorf("model: payload for stage %s submitted at stage %s", Step(i), step)
		}
	}
	return nil
}

// Merge copies the set variants of other into d, overwriting per stage.
func (d *StepData) Merge(other StepData) {
	if other.Submission != nil {
		d.Submission = other.Submission
	}
	if other.Extraction != nil {
		d.Extraction = other.Extraction
	}
	if other.Keywords != nil {
		d.Keywords = other.Keywords
	}
	if other.Phrases != nil {
		d.Phrases = other.Phrases
	}
	if other.Querying != nil {
		d.Querying = other.Querying
	}
	if other.Report != nil {
		d.Report = other.Report
	}
}

// OnboardingProgress tracks where a domain version sits in the onboarding
// pipeline. Exactly one row exists per (domain, version) pair; the row is
// advanced or rewound, never deleted.
type OnboardingProgress struct {
	DomainID        string    `json:"domainId"`
	DomainVersionID string    `json:"domainVersionId"`
	CurrentStep     Step      `json:"currentStep"`
	IsCompleted     bool      `json:"isCompleted"`
	Steps           StepData  `json:"steps"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
