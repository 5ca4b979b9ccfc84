// Package aggregate turns raw query results into dashboard metrics. All
// computations are pure and deterministic: the same inputs always produce
// the same metrics, and an empty input produces the zero value.
package aggregate

import (
	"math"
	"sort"

	"github.com/sells-group/visibility-cli/internal/model"
)

// topPhraseLimit caps the phrase ranking length.
const topPhraseLimit = 10

// Visibility score weights. Mention rate dominates; the four quality
// dimensions split the remainder evenly.
const (
	mentionWeight = 0.40
	qualityWeight = 0.15
)

// Inputs is everything Compute needs. History is optional; without it the
// trend series contains at most the current run.
type Inputs struct {
	Keywords []model.Keyword
	Phrases  []model.Phrase
	Results  []model.AIQueryResult
	History  []model.RunSnapshot
}

// Compute aggregates query results into dashboard metrics.
func Compute(in Inputs) model.DashboardMetrics {
	var m model.DashboardMetrics
	if len(in.Results) == 0 {
		return m
	}

	m.TotalQueries = len(in.Results)

	var mentions int
	var relSum, accSum, senSum, ovrSum float64
	var scored int
	for _, r := range in.Results {
		if r.Status == model.QueryStatusOK {
			m.SuccessfulQueries++
		} else {
			m.FailedQueries++
		}
		if !r.Scored() {
			continue
		}
		scored++
		if r.Scores.Presence == 1 {
			mentions++
		}
		relSum += r.Scores.Relevance
		accSum += r.Scores.Accuracy
		senSum += r.Scores.Sentiment
		ovrSum += r.Scores.Overall
	}
	m.PartialCoverage = m.FailedQueries > 0

	// Rates are computed over the scored subset. Failed attempts only count
	// toward coverage, not against the mention rate.
	if scored > 0 {
		m.MentionRate = Round1(100 * float64(mentions) / float64(scored))
		m.AvgRelevance = Round1(relSum / float64(scored))
		m.AvgAccuracy = Round1(accSum / float64(scored))
		m.AvgSentiment = Round1(senSum / float64(scored))
		m.AvgOverall = Round1(ovrSum / float64(scored))
	}
	m.VisibilityScore = visibility(m.MentionRate, m.AvgRelevance, m.AvgAccuracy, m.AvgSentiment, m.AvgOverall)

	m.ModelPerformance = modelRollup(in.Results)
	m.KeywordPerformance = keywordRollup(in.Keywords, in.Phrases, in.Results)
	m.TopPhrases = topPhrases(in.Phrases, in.Results)
	m.PerformanceData = TimeSeries(in.History)
	return m
}

// visibility combines mention rate with the scaled quality averages. The
// 1-5 averages are mapped onto 0-100 before weighting; the result is clamped
// so downstream consumers can rely on the 0-100 range.
func visibility(mentionRate, avgRel, avgAcc, avgSen, avgOvr float64) float64 {
	v := mentionWeight * mentionRate
	for _, avg := range []float64{avgOvr, avgRel, avgAcc, avgSen} {
		v += qualityWeight * scaleQuality(avg)
	}
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return Round1(v)
}

// scaleQuality maps a 1-5 average onto 0-100. An unset average (no scored
// results) contributes zero.
func scaleQuality(avg float64) float64 {
	if avg <= 0 {
		return 0
	}
	return (avg - 1) / 4 * 100
}

func modelRollup(results []model.AIQueryResult) []model.ModelPerformance {
	type acc struct {
		queries, mentions, scored            int
		relSum, accSum, senSum, ovrSum, cost float64
		latencySum                           int64
	}
	byModel := make(map[string]*acc)
	for _, r := range results {
		a := byModel[r.Model]
		if a == nil {
			a = &acc{}
			byModel[r.Model] = a
		}
		a.queries++
		a.latencySum += r.LatencyMs
		a.cost += r.CostUSD
		if !r.Scored() {
			continue
		}
		a.scored++
		if r.Scores.Presence == 1 {
			a.mentions++
		}
		a.relSum += r.Scores.Relevance
		a.accSum += r.Scores.Accuracy
		a.senSum += r.Scores.Sentiment
		a.ovrSum += r.Scores.Overall
	}

	names := make([]string, 0, len(byModel))
	for name := range byModel {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]model.ModelPerformance, 0, len(names))
	for _, name := range names {
		a := byModel[name]
		mp := model.ModelPerformance{
			Model:        name,
			Queries:      a.queries,
			Mentions:     a.mentions,
			AvgLatencyMs: Round1(float64(a.latencySum) / float64(a.queries)),
			TotalCostUSD: a.cost,
		}
		if a.scored > 0 {
			mp.MentionRate = Round1(100 * float64(a.mentions) / float64(a.scored))
			mp.AvgRelevance = Round1(a.relSum / float64(a.scored))
			mp.AvgAccuracy = Round1(a.accSum / float64(a.scored))
			mp.AvgSentiment = Round1(a.senSum / float64(a.scored))
			mp.AvgOverall = Round1(a.ovrSum / float64(a.scored))
		}
		out = append(out, mp)
	}
	return out
}

func keywordRollup(keywords []model.Keyword, phrases []model.Phrase, results []model.AIQueryResult) []model.KeywordPerformance {
	phraseKeyword := make(map[string]string, len(phrases))
	phrasesPerKeyword := make(map[string]int, len(keywords))
	for _, p := range phrases {
		phraseKeyword[p.ID] = p.KeywordID
		phrasesPerKeyword[p.KeywordID]++
	}

	type acc struct {
		queries, mentions, scored int
		ovrSum                    float64
	}
	byKeyword := make(map[string]*acc)
	for _, r := range results {
		kid, ok := phraseKeyword[r.PhraseID]
		if !ok {
			continue
		}
		a := byKeyword[kid]
		if a == nil {
			a = &acc{}
			byKeyword[kid] = a
		}
		a.queries++
		if !r.Scored() {
			continue
		}
		a.scored++
		if r.Scores.Presence == 1 {
			a.mentions++
		}
		a.ovrSum += r.Scores.Overall
	}

	sorted := make([]model.Keyword, len(keywords))
	copy(sorted, keywords)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Term != sorted[j].Term {
			return sorted[i].Term < sorted[j].Term
		}
		return sorted[i].ID < sorted[j].ID
	})

	out := make([]model.KeywordPerformance, 0, len(sorted))
	for _, k := range sorted {
		kp := model.KeywordPerformance{
			KeywordID: k.ID,
			Term:      k.Term,
			Phrases:   phrasesPerKeyword[k.ID],
		}
		if k.Market != nil {
			volume, difficulty, cpc := k.Market.SearchVolume, k.Market.Difficulty, k.Market.CPC
			kp.SearchVolume = &volume
			kp.Difficulty = &difficulty
			kp.CPC = &cpc
		}
		if a := byKeyword[k.ID]; a != nil {
			kp.Queries = a.queries
			kp.Mentions = a.mentions
			if a.scored > 0 {
				kp.MentionRate = Round1(100 * float64(a.mentions) / float64(a.scored))
				kp.AvgOverall = Round1(a.ovrSum / float64(a.scored))
			}
		}
		out = append(out, kp)
	}
	return out
}

func topPhrases(phrases []model.Phrase, results []model.AIQueryResult) []model.PhraseRank {
	type acc struct {
		mentions, scored int
		ovrSum           float64
	}
	byPhrase := make(map[string]*acc)
	for _, r := range results {
		a := byPhrase[r.PhraseID]
		if a == nil {
			a = &acc{}
			byPhrase[r.PhraseID] = a
		}
		if !r.Scored() {
			continue
		}
		a.scored++
		if r.Scores.Presence == 1 {
			a.mentions++
		}
		a.ovrSum += r.Scores.Overall
	}

	ranks := make([]model.PhraseRank, 0, len(byPhrase))
	for _, p := range phrases {
		a, ok := byPhrase[p.ID]
		if !ok {
			continue
		}
		rank := model.PhraseRank{PhraseID: p.ID, Text: p.Text, Mentions: a.mentions}
		if a.scored > 0 {
			rank.AvgOverall = Round1(a.ovrSum / float64(a.scored))
		}
		ranks = append(ranks, rank)
	}

	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].AvgOverall != ranks[j].AvgOverall {
			return ranks[i].AvgOverall > ranks[j].AvgOverall
		}
		if ranks[i].Mentions != ranks[j].Mentions {
			return ranks[i].Mentions > ranks[j].Mentions
		}
		return ranks[i].PhraseID < ranks[j].PhraseID
	})
	if len(ranks) > topPhraseLimit {
		ranks = ranks[:topPhraseLimit]
	}
	return ranks
}

// TimeSeries folds run snapshots into a per-calendar-month trend. Months are
// averaged when multiple runs land in the same month and sorted ascending.
func TimeSeries(history []model.RunSnapshot) []model.PerformancePoint {
	if len(history) == 0 {
		return nil
	}

	type acc struct {
		visSum, mentionSum float64
		runs               int
	}
	byMonth := make(map[string]*acc)
	for _, snap := range history {
		month := snap.ComputedAt.UTC().Format("2006-01")
		a := byMonth[month]
		if a == nil {
			a = &acc{}
			byMonth[month] = a
		}
		a.visSum += snap.VisibilityScore
		a.mentionSum += snap.MentionRate
		a.runs++
	}

	months := make([]string, 0, len(byMonth))
	for month := range byMonth {
		months = append(months, month)
	}
	sort.Strings(months)

	out := make([]model.PerformancePoint, 0, len(months))
	for _, month := range months {
		a := byMonth[month]
		out = append(out, model.PerformancePoint{
			Month:           month,
			VisibilityScore: Round1(a.visSum / float64(a.runs)),
			MentionRate:     Round1(a.mentionSum / float64(a.runs)),
			Runs:            a.runs,
		})
	}
	return out
}

// Round1 rounds to one decimal place, the precision every reported rate and
// average uses.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
