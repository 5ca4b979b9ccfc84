package orchestrator

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-cli/internal/resilience"
	"github.com/sells-group/visibility-cli/pkg/anthropic"
	"github.com/sells-group/visibility-cli/pkg/openaichat"
)

// QueryOutput is the normalized result of one provider call.
type QueryOutput struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// ProviderClient sends one phrase to one model backend.
type ProviderClient interface {
	Query(ctx context.Context, spec ModelSpec, prompt string) (*QueryOutput, error)
}

// AnthropicProvider adapts the Anthropic client to the provider interface.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider wraps an Anthropic client.
func NewAnthropicProvider(client anthropic.Client) *AnthropicProvider {
	return &AnthropicProvider{client: client}
}

func (p *AnthropicProvider) Query(ctx context.Context, spec ModelSpec, prompt string) (*QueryOutput, error) {
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     spec.Model,
		MaxTokens: 1024,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "orchestrator: anthropic query %s", spec.ID)
	}
	return &QueryOutput{
		Text:         resp.Text(),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}

// ChatProvider adapts an OpenAI-compatible chat client to the provider
// interface. Non-200 responses are classified by HTTP status so the retry
// layer and circuit breaker can tell transient from permanent.
type ChatProvider struct {
	client openaichat.Client
}

// NewChatProvider wraps an OpenAI-compatible chat client.
func NewChatProvider(client openaichat.Client) *ChatProvider {
	return &ChatProvider{client: client}
}

func (p *ChatProvider) Query(ctx context.Context, spec ModelSpec, prompt string) (*QueryOutput, error) {
	resp, err := p.client.ChatCompletion(ctx, openaichat.ChatCompletionRequest{
		Model:    spec.Model,
		Messages: []openaichat.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		var apiErr *openaichat.APIError
		if errors.As(err, &apiErr) {
			return nil, resilience.ClassifyHTTPStatus(
				eris.Wrapf(err, "orchestrator: chat query %s", spec.ID), apiErr.StatusCode)
		}
		return nil, eris.Wrapf(err, "orchestrator: chat query %s", spec.ID)
	}
	if len(resp.Choices) == 0 {
		return nil, resilience.NewPermanentError(
			eris.Errorf("orchestrator: chat query %s returned no choices", spec.ID), 0)
	}
	return &QueryOutput{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
