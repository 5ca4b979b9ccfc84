// Package insight generates the narrative layers of analysis artifacts:
// dashboard insights, competitor intelligence, and competitor suggestions.
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/pkg/anthropic"
)

// InsightInput summarizes a computed run for the insight writer.
type InsightInput struct {
	DomainURL string
	BrandName string
	Keywords  []string
	Metrics   model.DashboardMetrics
}

// Insighter produces the dashboard narrative for a computed run.
type Insighter interface {
	GenerateInsights(ctx context.Context, in InsightInput) (*model.Insights, *model.IndustryAnalysis, error)
}

// CompetitorInput is a competitor-analysis request for an explicit list.
type CompetitorInput struct {
	DomainURL   string
	BrandName   string
	Competitors []string
}

// CompetitorAnalyzer produces a competitive-landscape analysis.
type CompetitorAnalyzer interface {
	Analyze(ctx context.Context, in CompetitorInput) (*model.CompetitorAnalysis, error)
}

// SuggestInput asks for competitor recommendations.
type SuggestInput struct {
	DomainURL string
	BrandName string
	Industry  string
	Exclude   []string
	Limit     int
}

// Suggester recommends competitors worth tracking.
type Suggester interface {
	Suggest(ctx context.Context, in SuggestInput) ([]model.SuggestedCompetitor, error)
}

// Generator implements all three insight surfaces with a Claude model.
type Generator struct {
	client anthropic.Client
	model  string
}

// NewGenerator creates a Generator using the given model.
func NewGenerator(client anthropic.Client, modelID string) *Generator {
	return &Generator{client: client, model: modelID}
}

const insightSystemPrompt = `You are an AI-visibility analyst. Given a brand's visibility metrics
across AI assistants, write the dashboard narrative. Respond with a single JSON object:
{"summary": "...", "strengths": ["..."], "weaknesses": ["..."], "recommendations": ["..."],
 "industry": {"industry": "...", "market_position": "...", "trends": ["..."]}}`

type insightPayload struct {
	Summary         string   `json:"summary"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Recommendations []string `json:"recommendations"`
	Industry        struct {
		Industry       string   `json:"industry"`
		MarketPosition string   `json:"market_position"`
		Trends         []string `json:"trends"`
	} `json:"industry"`
}

func (g *Generator) GenerateInsights(ctx context.Context, in InsightInput) (*model.Insights, *model.IndustryAnalysis, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Brand: %s (%s)\n", in.BrandName, in.DomainURL)
	fmt.Fprintf(&b, "Visibility score: %.1f/100, mention rate: %.1f%%\n", in.Metrics.VisibilityScore, in.Metrics.MentionRate)
	fmt.Fprintf(&b, "Queries: %d total, %d successful, %d failed\n", in.Metrics.TotalQueries, in.Metrics.SuccessfulQueries, in.Metrics.FailedQueries)
	fmt.Fprintf(&b, "Quality averages (1-5): relevance %.1f, accuracy %.1f, sentiment %.1f, overall %.1f\n",
		in.Metrics.AvgRelevance, in.Metrics.AvgAccuracy, in.Metrics.AvgSentiment, in.Metrics.AvgOverall)
	if len(in.Keywords) > 0 {
		fmt.Fprintf(&b, "Tracked keywords: %s\n", strings.Join(in.Keywords, ", "))
	}
	for _, mp := range in.Metrics.ModelPerformance {
		fmt.Fprintf(&b, "Model %s: %d queries, %.1f%% mention rate\n", mp.Model, mp.Queries, mp.MentionRate)
	}

	raw, err := g.complete(ctx, insightSystemPrompt, b.String())
	if err != nil {
		return nil, nil, eris.Wrap(err, "insight: generate insights")
	}

	var payload insightPayload
	if err := json.Unmarshal([]byte(cleanJSONValue(raw)), &payload); err != nil {
		return nil, nil, eris.Wrap(err, "insight: parse insights")
	}

	insights := &model.Insights{
		Summary:         payload.Summary,
		Strengths:       payload.Strengths,
		Weaknesses:      payload.Weaknesses,
		Recommendations: payload.Recommendations,
	}
	industry := &model.IndustryAnalysis{
		Industry:       payload.Industry.Industry,
		MarketPosition: payload.Industry.MarketPosition,
		Trends:         payload.Industry.Trends,
	}
	return insights, industry, nil
}

const competitorSystemPrompt = `You are a competitive-intelligence analyst. Analyze the named
competitors relative to the brand. Respond with a single JSON object:
{"competitors": [{"name": "...", "domain": "...", "strengths": ["..."], "weaknesses": ["..."], "positioning": "..."}],
 "market_insights": ["..."], "strategic_recommendations": ["..."], "competitive_analysis": "..."}`

type competitorPayload struct {
	Competitors              []model.Competitor `json:"competitors"`
	MarketInsights           []string           `json:"market_insights"`
	StrategicRecommendations []string           `json:"strategic_recommendations"`
	CompetitiveAnalysis      string             `json:"competitive_analysis"`
}

func (g *Generator) Analyze(ctx context.Context, in CompetitorInput) (*model.CompetitorAnalysis, error) {
	list := DedupeNames(in.Competitors)
	if len(list) == 0 {
		return nil, eris.New("insight: empty competitor list")
	}

	prompt := fmt.Sprintf("Brand: %s (%s)\nCompetitors to analyze: %s",
		in.BrandName, in.DomainURL, strings.Join(list, ", "))
	raw, err := g.complete(ctx, competitorSystemPrompt, prompt)
	if err != nil {
		return nil, eris.Wrap(err, "insight: competitor analysis")
	}

	var payload competitorPayload
	if err := json.Unmarshal([]byte(cleanJSONValue(raw)), &payload); err != nil {
		return nil, eris.Wrap(err, "insight: parse competitor analysis")
	}

	return &model.CompetitorAnalysis{
		Competitors:              payload.Competitors,
		MarketInsights:           payload.MarketInsights,
		StrategicRecommendations: payload.StrategicRecommendations,
		CompetitiveAnalysis:      payload.CompetitiveAnalysis,
		CompetitorList:           list,
	}, nil
}

const suggestSystemPrompt = `You recommend competitors a brand should track in AI-visibility
monitoring. Respond with a single JSON array:
[{"name": "...", "domain": "...", "reason": "..."}]`

type suggestionPayload struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Reason string `json:"reason"`
}

func (g *Generator) Suggest(ctx context.Context, in SuggestInput) ([]model.SuggestedCompetitor, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 5
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Brand: %s (%s)\n", in.BrandName, in.DomainURL)
	if in.Industry != "" {
		fmt.Fprintf(&b, "Industry: %s\n", in.Industry)
	}
	if len(in.Exclude) > 0 {
		fmt.Fprintf(&b, "Already tracked (do not repeat): %s\n", strings.Join(in.Exclude, ", "))
	}
	fmt.Fprintf(&b, "Suggest up to %d competitors.", limit)

	raw, err := g.complete(ctx, suggestSystemPrompt, b.String())
	if err != nil {
		return nil, eris.Wrap(err, "insight: suggest competitors")
	}

	var payload []suggestionPayload
	if err := json.Unmarshal([]byte(cleanJSONValue(raw)), &payload); err != nil {
		return nil, eris.Wrap(err, "insight: parse suggestions")
	}

	exclude := make(map[string]bool, len(in.Exclude))
	for _, n := range in.Exclude {
		exclude[CanonicalName(n)] = true
	}

	seen := make(map[string]bool, len(payload))
	out := make([]model.SuggestedCompetitor, 0, limit)
	for _, p := range payload {
		canon := CanonicalName(p.Name)
		if canon == "" || seen[canon] || exclude[canon] {
			continue
		}
		seen[canon] = true
		out = append(out, model.SuggestedCompetitor{
			Name:   DisplayName(p.Name),
			Domain: strings.ToLower(strings.TrimSpace(p.Domain)),
			Reason: p.Reason,
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (g *Generator) complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.model,
		MaxTokens: 2048,
		System:    system,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(g.model, "insight")
	return resp.Text(), nil
}

// cleanJSONValue extracts a JSON object or array from text that may carry
// markdown fences or prose around it.
func cleanJSONValue(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	objStart := strings.Index(text, "{")
	arrStart := strings.Index(text, "[")
	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		if end := strings.LastIndex(text, "]"); end > arrStart {
			return strings.TrimSpace(text[arrStart : end+1])
		}
	}
	if objStart >= 0 {
		if end := strings.LastIndex(text, "}"); end > objStart {
			return strings.TrimSpace(text[objStart : end+1])
		}
	}
	return text
}
