package aggregate

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visibility-cli/internal/model"
)

func scoredResult(phraseID, modelID string, presence int, overall float64) model.AIQueryResult {
	return model.AIQueryResult{
		ID:       phraseID + "-" + modelID,
		PhraseID: phraseID,
		Model:    modelID,
		Status:   model.QueryStatusOK,
		Scores: &model.ScoreSet{
			Presence:  presence,
			Relevance: overall,
			Accuracy:  overall,
			Sentiment: overall,
			Overall:   overall,
		},
	}
}

func failedResult(phraseID, modelID string) model.AIQueryResult {
	return model.AIQueryResult{
		ID:       phraseID + "-" + modelID,
		PhraseID: phraseID,
		Model:    modelID,
		Status:   model.QueryStatusFailed,
		Error:    "provider down",
	}
}

func TestCompute_Empty(t *testing.T) {
	m := Compute(Inputs{})
	assert.Equal(t, model.DashboardMetrics{}, m)
}

func TestCompute_MentionRate(t *testing.T) {
	// 7 mentions out of 20 attempts.
	var results []model.AIQueryResult
	for i := 0; i < 20; i++ {
		presence := 0
		if i < 7 {
			presence = 1
		}
		results = append(results, scoredResult(fmt.Sprintf("ph-%02d", i), "m1", presence, 3))
	}

	m := Compute(Inputs{Results: results})
	assert.Equal(t, 35.0, m.MentionRate)
	assert.Equal(t, 20, m.TotalQueries)
	assert.False(t, m.PartialCoverage)
}

func TestCompute_MentionRateRounding(t *testing.T) {
	// 4 of 7: 57.142... rounds to 57.1.
	var results []model.AIQueryResult
	for i := 0; i < 7; i++ {
		presence := 0
		if i < 4 {
			presence = 1
		}
		results = append(results, scoredResult(fmt.Sprintf("ph-%d", i), "m1", presence, 3))
	}

	m := Compute(Inputs{Results: results})
	assert.Equal(t, 57.1, m.MentionRate)
}

func TestCompute_FailedResultsCountTowardAttemptedOnly(t *testing.T) {
	results := []model.AIQueryResult{
		scoredResult("ph-1", "m1", 1, 5),
		scoredResult("ph-2", "m1", 1, 3),
		failedResult("ph-3", "m1"),
		failedResult("ph-4", "m1"),
	}

	m := Compute(Inputs{Results: results})
	assert.Equal(t, 4, m.TotalQueries)
	assert.Equal(t, 2, m.SuccessfulQueries)
	assert.Equal(t, 2, m.FailedQueries)
	assert.True(t, m.PartialCoverage)
	// Mention rate and averages divide by the scored subset only.
	assert.Equal(t, 100.0, m.MentionRate)
	assert.Equal(t, 4.0, m.AvgOverall)
}

func TestCompute_PartialBatchMentionRate(t *testing.T) {
	// 10 attempts, 3 fail permanently, 4 of the 7 successes mention the
	// brand: 100*4/7 rounds to 57.1.
	var results []model.AIQueryResult
	for i := 0; i < 7; i++ {
		presence := 0
		if i < 4 {
			presence = 1
		}
		results = append(results, scoredResult(fmt.Sprintf("ph-%02d", i), "m1", presence, 3))
	}
	for i := 7; i < 10; i++ {
		results = append(results, failedResult(fmt.Sprintf("ph-%02d", i), "m1"))
	}

	m := Compute(Inputs{Results: results})
	assert.Equal(t, 57.1, m.MentionRate)
	assert.Equal(t, 10, m.TotalQueries)
	assert.Equal(t, 7, m.SuccessfulQueries)
	assert.Equal(t, 3, m.FailedQueries)
	assert.True(t, m.PartialCoverage)
}

func TestCompute_VisibilityScoreBounds(t *testing.T) {
	perfect := []model.AIQueryResult{scoredResult("ph-1", "m1", 1, 5)}
	m := Compute(Inputs{Results: perfect})
	assert.Equal(t, 100.0, m.VisibilityScore)

	invisible := []model.AIQueryResult{scoredResult("ph-1", "m1", 0, 1)}
	m = Compute(Inputs{Results: invisible})
	assert.Equal(t, 0.0, m.VisibilityScore)
}

func TestCompute_VisibilityScoreWeighting(t *testing.T) {
	// 100% mentions at quality 3: 0.4*100 + 0.6*((3-1)/4*100) = 70.
	results := []model.AIQueryResult{
		scoredResult("ph-1", "m1", 1, 3),
		scoredResult("ph-2", "m1", 1, 3),
	}
	m := Compute(Inputs{Results: results})
	assert.Equal(t, 70.0, m.VisibilityScore)
}

func TestCompute_Deterministic(t *testing.T) {
	inputs := Inputs{
		Keywords: []model.Keyword{
			{ID: "kw-1", Term: "alpha"},
			{ID: "kw-2", Term: "beta"},
		},
		Phrases: []model.Phrase{
			{ID: "ph-1", KeywordID: "kw-1", Text: "a"},
			{ID: "ph-2", KeywordID: "kw-2", Text: "b"},
		},
		Results: []model.AIQueryResult{
			scoredResult("ph-1", "m2", 1, 4),
			scoredResult("ph-2", "m1", 0, 2),
			failedResult("ph-1", "m1"),
		},
	}

	first := Compute(inputs)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Compute(inputs))
	}
}

func TestCompute_ModelRollup(t *testing.T) {
	results := []model.AIQueryResult{
		scoredResult("ph-1", "m1", 1, 4),
		scoredResult("ph-2", "m1", 0, 2),
		scoredResult("ph-1", "m2", 1, 5),
		failedResult("ph-2", "m2"),
	}
	results[0].LatencyMs = 100
	results[1].LatencyMs = 300
	results[0].CostUSD = 0.01
	results[1].CostUSD = 0.01

	m := Compute(Inputs{Results: results})
	require.Len(t, m.ModelPerformance, 2)

	m1 := m.ModelPerformance[0]
	assert.Equal(t, "m1", m1.Model)
	assert.Equal(t, 2, m1.Queries)
	assert.Equal(t, 1, m1.Mentions)
	assert.Equal(t, 50.0, m1.MentionRate)
	assert.Equal(t, 3.0, m1.AvgOverall)
	assert.Equal(t, 200.0, m1.AvgLatencyMs)
	assert.InDelta(t, 0.02, m1.TotalCostUSD, 1e-9)

	m2 := m.ModelPerformance[1]
	assert.Equal(t, "m2", m2.Model)
	assert.Equal(t, 2, m2.Queries)
	// The failed query is excluded from the per-model mention rate.
	assert.Equal(t, 100.0, m2.MentionRate)
	assert.Equal(t, 5.0, m2.AvgOverall)
}

func TestCompute_KeywordRollupWithMarketData(t *testing.T) {
	volume := 4400
	inputs := Inputs{
		Keywords: []model.Keyword{
			{ID: "kw-2", Term: "zeta", Market: &model.MarketData{SearchVolume: volume, Difficulty: 60, CPC: 2.5}},
			{ID: "kw-1", Term: "alpha"},
		},
		Phrases: []model.Phrase{
			{ID: "ph-1", KeywordID: "kw-1", Text: "a"},
			{ID: "ph-2", KeywordID: "kw-2", Text: "z1"},
			{ID: "ph-3", KeywordID: "kw-2", Text: "z2"},
		},
		Results: []model.AIQueryResult{
			scoredResult("ph-2", "m1", 1, 4),
			scoredResult("ph-3", "m1", 1, 5),
			scoredResult("ph-1", "m1", 0, 2),
		},
	}

	m := Compute(inputs)
	require.Len(t, m.KeywordPerformance, 2)
	// Sorted by term.
	assert.Equal(t, "alpha", m.KeywordPerformance[0].Term)
	assert.Nil(t, m.KeywordPerformance[0].SearchVolume)

	zeta := m.KeywordPerformance[1]
	assert.Equal(t, 2, zeta.Phrases)
	assert.Equal(t, 2, zeta.Queries)
	assert.Equal(t, 2, zeta.Mentions)
	assert.Equal(t, 100.0, zeta.MentionRate)
	assert.Equal(t, 4.5, zeta.AvgOverall)
	require.NotNil(t, zeta.SearchVolume)
	assert.Equal(t, 4400, *zeta.SearchVolume)
}

func TestCompute_TopPhrasesOrderingAndLimit(t *testing.T) {
	var phrases []model.Phrase
	var results []model.AIQueryResult
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("ph-%02d", i)
		phrases = append(phrases, model.Phrase{ID: id, KeywordID: "kw", Text: id})
		overall := float64(i%5) + 1
		results = append(results, scoredResult(id, "m1", 1, overall))
	}

	m := Compute(Inputs{Phrases: phrases, Results: results})
	require.Len(t, m.TopPhrases, 10)
	// Descending by average overall; ties broken by phrase ID ascending.
	assert.Equal(t, 5.0, m.TopPhrases[0].AvgOverall)
	for i := 1; i < len(m.TopPhrases); i++ {
		prev, cur := m.TopPhrases[i-1], m.TopPhrases[i]
		ordered := prev.AvgOverall > cur.AvgOverall ||
			(prev.AvgOverall == cur.AvgOverall && prev.PhraseID < cur.PhraseID)
		assert.True(t, ordered, "rank %d out of order", i)
	}
}

func TestTimeSeries_GroupsByMonth(t *testing.T) {
	jan := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)
	history := []model.RunSnapshot{
		{DomainVersionID: "v1", VisibilityScore: 40, MentionRate: 30, ComputedAt: jan},
		{DomainVersionID: "v2", VisibilityScore: 60, MentionRate: 50, ComputedAt: jan.Add(48 * time.Hour)},
		{DomainVersionID: "v3", VisibilityScore: 70, MentionRate: 55, ComputedAt: feb},
	}

	series := TimeSeries(history)
	require.Len(t, series, 2)
	assert.Equal(t, "2026-01", series[0].Month)
	assert.Equal(t, 50.0, series[0].VisibilityScore)
	assert.Equal(t, 2, series[0].Runs)
	assert.Equal(t, "2026-02", series[1].Month)
	assert.Equal(t, 1, series[1].Runs)

	assert.Nil(t, TimeSeries(nil))
}
