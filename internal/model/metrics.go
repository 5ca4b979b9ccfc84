package model

// DashboardMetrics is the aggregated view of a domain version's query
// results. Produced deterministically by the aggregator; an empty result set
// yields the zero value, never an error.
type DashboardMetrics struct {
	VisibilityScore float64 `json:"visibilityScore"`
	MentionRate     float64 `json:"mentionRate"`
	AvgRelevance    float64 `json:"avgRelevance"`
	AvgAccuracy     float64 `json:"avgAccuracy"`
	AvgSentiment    float64 `json:"avgSentiment"`
	AvgOverall      float64 `json:"avgOverall"`

	TotalQueries      int  `json:"totalQueries"`
	SuccessfulQueries int  `json:"successfulQueries"`
	FailedQueries     int  `json:"failedQueries"`
	PartialCoverage   bool `json:"partialCoverage"`

	ModelPerformance   []ModelPerformance   `json:"modelPerformance"`
	KeywordPerformance []KeywordPerformance `json:"keywordPerformance"`
	TopPhrases         []PhraseRank         `json:"topPhrases"`
	PerformanceData    []PerformancePoint   `json:"performanceData"`
}

// ModelPerformance is the per-model rollup of query results.
type ModelPerformance struct {
	Model        string  `json:"model"`
	Queries      int     `json:"queries"`
	Mentions     int     `json:"mentions"`
	MentionRate  float64 `json:"mentionRate"`
	AvgRelevance float64 `json:"avgRelevance"`
	AvgAccuracy  float64 `json:"avgAccuracy"`
	AvgSentiment float64 `json:"avgSentiment"`
	AvgOverall   float64 `json:"avgOverall"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
	TotalCostUSD float64 `json:"totalCostUsd"`
}

// KeywordPerformance aggregates a keyword's phrases, joined with optional
// market data. Market fields stay nil when no market data was supplied.
type KeywordPerformance struct {
	KeywordID   string   `json:"keywordId"`
	Term        string   `json:"term"`
	Phrases     int      `json:"phrases"`
	Queries     int      `json:"queries"`
	Mentions    int      `json:"mentions"`
	MentionRate float64  `json:"mentionRate"`
	AvgOverall  float64  `json:"avgOverall"`
	SearchVolume *int    `json:"searchVolume,omitempty"`
	Difficulty  *float64 `json:"difficulty,omitempty"`
	CPC         *float64 `json:"cpc,omitempty"`
}

// PhraseRank is one entry in the top-phrases ranking. Ties are broken by
// phrase ID so the ordering is deterministic.
type PhraseRank struct {
	PhraseID   string  `json:"phraseId"`
	Text       string  `json:"text"`
	Mentions   int     `json:"mentions"`
	AvgOverall float64 `json:"avgOverall"`
}

// PerformancePoint is one calendar-month sample in the visibility trend
// series. A single analysis run produces a single-point series.
type PerformancePoint struct {
	Month           string  `json:"month"` // "2006-01"
	VisibilityScore float64 `json:"visibilityScore"`
	MentionRate     float64 `json:"mentionRate"`
	Runs            int     `json:"runs"`
}
