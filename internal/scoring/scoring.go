// Package scoring grades AI model responses for brand visibility.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/pkg/anthropic"
)

// Input carries everything the scorer needs to judge one response.
type Input struct {
	DomainURL string
	BrandName string
	Phrase    string
	Response  string
}

// Scorer grades a single model response against the domain being analyzed.
type Scorer interface {
	Score(ctx context.Context, in Input) (*model.ScoreSet, error)
}

// ClaudeScorer scores responses with a Claude judge model.
type ClaudeScorer struct {
	client anthropic.Client
	model  string
}

// NewClaudeScorer creates a scorer backed by the given judge model.
func NewClaudeScorer(client anthropic.Client, judgeModel string) *ClaudeScorer {
	return &ClaudeScorer{client: client, model: judgeModel}
}

const scoreSystemPrompt = `You grade how visible a brand is in an AI assistant's answer.
Respond with a single JSON object and nothing else:
{"present": 0 or 1, "relevance": 1-5, "accuracy": 1-5, "sentiment": 1-5, "overall": 1-5}
present: 1 if the brand or its domain is mentioned in the answer, else 0.
relevance: how relevant the mention is to the question (1 = absent or off-topic, 5 = central).
accuracy: how factually accurate the statements about the brand are (use 3 if nothing is claimed).
sentiment: how favorably the brand is portrayed (3 = neutral).
overall: your overall visibility judgment.`

type scorePayload struct {
	Present   int     `json:"present"`
	Relevance float64 `json:"relevance"`
	Accuracy  float64 `json:"accuracy"`
	Sentiment float64 `json:"sentiment"`
	Overall   float64 `json:"overall"`
}

// Score asks the judge model to grade the response, with a deterministic
// substring check backing up the presence call.
func (s *ClaudeScorer) Score(ctx context.Context, in Input) (*model.ScoreSet, error) {
	prompt := fmt.Sprintf("Brand: %s\nDomain: %s\nQuestion asked: %s\n\nAI answer to grade:\n%s",
		in.BrandName, in.DomainURL, in.Phrase, in.Response)

	temp := 0.0
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       s.model,
		MaxTokens:   256,
		System:      scoreSystemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "scoring: judge call")
	}

	var payload scorePayload
	raw := cleanJSON(resp.Text())
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		zap.L().Warn("scoring: unparseable judge output",
			zap.String("model", s.model),
			zap.String("raw", raw),
		)
		return nil, eris.Wrap(err, "scoring: parse judge output")
	}

	set := &model.ScoreSet{
		Presence:  clampPresence(payload.Present),
		Relevance: clampScale(payload.Relevance),
		Accuracy:  clampScale(payload.Accuracy),
		Sentiment: clampScale(payload.Sentiment),
		Overall:   clampScale(payload.Overall),
	}
	if payload.Overall == 0 {
		set.Overall = clampScale((set.Relevance + set.Accuracy + set.Sentiment) / 3)
	}
	if set.Presence == 0 && MentionsDomain(in.Response, in.DomainURL, in.BrandName) {
		set.Presence = 1
	}
	return set, nil
}

// MentionsDomain reports whether the response plainly names the domain host
// or the brand. A literal hit overrides a judge miss; the reverse never
// happens.
func MentionsDomain(response, domainURL, brand string) bool {
	lower := strings.ToLower(response)
	if brand != "" && strings.Contains(lower, strings.ToLower(brand)) {
		return true
	}
	host := domainURL
	if u, err := url.Parse(domainURL); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	return host != "" && strings.Contains(lower, host)
}

func clampScale(v float64) float64 {
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}

func clampPresence(v int) int {
	if v >= 1 {
		return 1
	}
	return 0
}
