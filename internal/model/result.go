package model

import "time"

// QueryStatus marks whether a single (phrase, model) query attempt produced
// a scorable response.
type QueryStatus string

const (
	QueryStatusOK     QueryStatus = "ok"
	QueryStatusFailed QueryStatus = "failed"
)

// ScoreSet holds the five scalar scores assigned to a successful query
// response. Presence is binary; the remaining dimensions use a 1-5 scale.
type ScoreSet struct {
	Presence  int     `json:"presence"`
	Relevance float64 `json:"relevance"`
	Accuracy  float64 `json:"accuracy"`
	Sentiment float64 `json:"sentiment"`
	Overall   float64 `json:"overall"`
}

// AIQueryResult is one row per (phrase, model) query attempt. Rows are
// append-only per analysis run and immutable once written. Failed attempts
// carry no Scores and are excluded from score averages but still count
// toward attempted totals.
type AIQueryResult struct {
	ID              string      `json:"id"`
	DomainVersionID string      `json:"domainVersionId"`
	PhraseID        string      `json:"phraseId"`
	Model           string      `json:"model"`
	Status          QueryStatus `json:"status"`
	Response        string      `json:"response,omitempty"`
	LatencyMs       int64       `json:"latencyMs"`
	CostUSD         float64     `json:"costUsd"`
	Error           string      `json:"error,omitempty"`
	Scores          *ScoreSet   `json:"scores,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// Scored reports whether the attempt produced usable scores.
func (r AIQueryResult) Scored() bool {
	return r.Status == QueryStatusOK && r.Scores != nil
}

// RunSnapshot is a month-stampable summary of one completed analysis run,
// kept so the dashboard can chart visibility over time.
type RunSnapshot struct {
	DomainID        string    `json:"domainId"`
	DomainVersionID string    `json:"domainVersionId"`
	VisibilityScore float64   `json:"visibilityScore"`
	MentionRate     float64   `json:"mentionRate"`
	ComputedAt      time.Time `json:"computedAt"`
}
