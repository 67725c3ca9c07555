package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentkernel/agentkernel/internal/kernelagent"
	"github.com/agentkernel/agentkernel/pkg/adapters"
	"github.com/agentkernel/agentkernel/pkg/kernel"
)

// PromptPayload is the expected payload shape for adapter-backed agents.
type PromptPayload struct {
	Prompt string `json:"prompt"`
}

// CompletionPayload is the normalized output payload shape.
type CompletionPayload struct {
	Text         string `json:"text"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
}

// providerBody adapts a Provider into a kernelagent.Body: input is
// either a PromptPayload-shaped map/JSON or a bare string prompt.
type providerBody struct {
	provider adapters.Provider
	model    string
}

// AgentFromProvider wraps a provider adapter as a kernelagent.Body an
// orchestrator can register directly.
func AgentFromProvider(provider adapters.Provider, model string) kernelagent.Body {
	return &providerBody{provider: provider, model: model}
}

func (a *providerBody) Run(ctx context.Context, input any) (any, error) {
	if a.provider == nil {
		return nil, fmt.Errorf("provider is nil")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	prompt, err := extractPrompt(input)
	if err != nil {
		return nil, err
	}
	resp, err := a.provider.Generate(ctx, adapters.GenerateRequest{Model: a.model, Prompt: prompt})
	if err != nil {
		return nil, err
	}

	return CompletionPayload{
		Text:         resp.Text,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		Provider:     a.provider.Name(),
		Model:        a.model,
	}, nil
}

func (a *providerBody) HandleMessage(ctx context.Context, msg kernel.Message) kernel.Result {
	return kernelagent.DefaultHandleMessage(kernelagent.NewBase(kernel.AgentConfig{ID: a.provider.Name()}, a), ctx, msg)
}

func extractPrompt(input any) (string, error) {
	switch v := input.(type) {
	case string:
		if strings.TrimSpace(v) != "" {
			return v, nil
		}
	case []byte:
		return extractPromptBytes(v)
	case PromptPayload:
		if strings.TrimSpace(v.Prompt) != "" {
			return v.Prompt, nil
		}
	case map[string]any:
		if p, ok := v["prompt"].(string); ok && strings.TrimSpace(p) != "" {
			return p, nil
		}
	}
	if b, err := json.Marshal(input); err == nil {
		if p, err := extractPromptBytes(b); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("prompt not found in payload")
}

func extractPromptBytes(payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("empty payload")
	}

	var p PromptPayload
	if err := json.Unmarshal(payload, &p); err == nil && strings.TrimSpace(p.Prompt) != "" {
		return p.Prompt, nil
	}

	trimmed := strings.TrimSpace(string(payload))
	if trimmed != "" && trimmed != "{}" {
		return trimmed, nil
	}
	return "", fmt.Errorf("prompt not found in payload")
}
