// Package discovery implements the content-driven stages of onboarding:
// site text extraction, keyword discovery, and query phrase generation.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/pkg/anthropic"
)

const (
	defaultKeywordLimit = 10
	defaultPerKeyword   = 3
)

// KeywordInput asks for search topics a brand should be visible for.
type KeywordInput struct {
	DomainURL string
	BrandName string
	Content   *SiteContent
	// Limit caps the number of terms. Default: 10.
	Limit int
}

// KeywordDiscoverer proposes keyword terms from site content.
type KeywordDiscoverer interface {
	DiscoverKeywords(ctx context.Context, in KeywordInput) ([]string, model.TokenUsage, error)
}

// PhraseInput asks for natural-language queries per keyword term.
type PhraseInput struct {
	DomainURL string
	BrandName string
	Terms     []string
	// PerKeyword caps phrases per term. Default: 3.
	PerKeyword int
}

// PhraseGenerator turns keyword terms into the questions a user would ask an
// AI assistant.
type PhraseGenerator interface {
	GeneratePhrases(ctx context.Context, in PhraseInput) (map[string][]string, model.TokenUsage, error)
}

// Generator implements keyword and phrase generation with a Claude model.
type Generator struct {
	client anthropic.Client
	model  string
}

// NewGenerator creates a Generator using the given model.
func NewGenerator(client anthropic.Client, modelID string) *Generator {
	return &Generator{client: client, model: modelID}
}

const keywordSystemPrompt = `You are an SEO and AI-visibility strategist. Given a website's content,
identify the search topics the brand should be visible for in AI assistant answers.
Respond with a single JSON array of keyword strings, most important first.`

func (g *Generator) DiscoverKeywords(ctx context.Context, in KeywordInput) ([]string, model.TokenUsage, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = defaultKeywordLimit
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Brand: %s (%s)\n", in.BrandName, in.DomainURL)
	if in.Content != nil {
		if in.Content.Title != "" {
			fmt.Fprintf(&b, "Page title: %s\n", in.Content.Title)
		}
		fmt.Fprintf(&b, "Site content:\n%s\n", in.Content.Text)
	}
	fmt.Fprintf(&b, "Return up to %d keywords.", limit)

	raw, usage, err := g.complete(ctx, keywordSystemPrompt, b.String())
	if err != nil {
		return nil, usage, eris.Wrap(err, "discovery: keywords")
	}

	var terms []string
	if err := json.Unmarshal([]byte(cleanJSONArray(raw)), &terms); err != nil {
		return nil, usage, eris.Wrap(err, "discovery: parse keywords")
	}

	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, limit)
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" || seen[term] {
			continue
		}
		seen[term] = true
		out = append(out, term)
		if len(out) == limit {
			break
		}
	}
	if len(out) == 0 {
		return nil, usage, eris.New("discovery: no keywords returned")
	}
	return out, usage, nil
}

const phraseSystemPrompt = `You write the questions real users ask AI assistants. For each keyword,
produce the natural-language queries whose answers should mention the brand's domain.
Respond with a single JSON object mapping each keyword to an array of phrase strings.`

func (g *Generator) GeneratePhrases(ctx context.Context, in PhraseInput) (map[string][]string, model.TokenUsage, error) {
	if len(in.Terms) == 0 {
		return nil, model.TokenUsage{}, eris.New("discovery: no keyword terms")
	}
	perKeyword := in.PerKeyword
	if perKeyword <= 0 {
		perKeyword = defaultPerKeyword
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Brand: %s (%s)\n", in.BrandName, in.DomainURL)
	fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(in.Terms, ", "))
	fmt.Fprintf(&b, "Generate up to %d phrases per keyword.", perKeyword)

	raw, usage, err := g.complete(ctx, phraseSystemPrompt, b.String())
	if err != nil {
		return nil, usage, eris.Wrap(err, "discovery: phrases")
	}

	var byTerm map[string][]string
	if err := json.Unmarshal([]byte(cleanJSONObject(raw)), &byTerm); err != nil {
		return nil, usage, eris.Wrap(err, "discovery: parse phrases")
	}

	out := make(map[string][]string, len(in.Terms))
	for _, term := range in.Terms {
		phrases := byTerm[term]
		if len(phrases) > perKeyword {
			phrases = phrases[:perKeyword]
		}
		cleaned := make([]string, 0, len(phrases))
		for _, ph := range phrases {
			ph = strings.TrimSpace(ph)
			if ph != "" {
				cleaned = append(cleaned, ph)
			}
		}
		if len(cleaned) > 0 {
			out[term] = cleaned
		}
	}
	if len(out) == 0 {
		return nil, usage, eris.New("discovery: no phrases returned")
	}
	return out, usage, nil
}

func (g *Generator) complete(ctx context.Context, system, prompt string) (string, model.TokenUsage, error) {
	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.model,
		MaxTokens: 2048,
		System:    system,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", model.TokenUsage{}, err
	}
	resp.Usage.LogCost(g.model, "discovery")
	usage := model.TokenUsage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}
	return resp.Text(), usage, nil
}

func cleanJSONArray(text string) string {
	return cleanJSONBetween(text, "[", "]")
}

func cleanJSONObject(text string) string {
	return cleanJSONBetween(text, "{", "}")
}

// cleanJSONBetween extracts the outermost open..close span from text that may
// carry markdown fences or prose around it.
func cleanJSONBetween(text, open, close string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	start := strings.Index(text, open)
	end := strings.LastIndex(text, close)
	if start >= 0 && end > start {
		return strings.TrimSpace(text[start : end+1])
	}
	return text
}
