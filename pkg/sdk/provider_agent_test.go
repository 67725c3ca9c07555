package sdk

import (
	"context"
	"testing"

	"github.com/agentkernel/agentkernel/pkg/adapters"
)

type fakeProvider struct{}

func (fakeProvider) Name() string { return "fake" }
func (fakeProvider) Generate(_ context.Context, req adapters.GenerateRequest) (adapters.GenerateResponse, error) {
	return adapters.GenerateResponse{Text: "echo:" + req.Prompt, InputTokens: 1, OutputTokens: 2}, nil
}

func TestAgentFromProvider(t *testing.T) {
	agent := AgentFromProvider(fakeProvider{}, "fake-model")
	out, err := agent.Run(context.Background(), map[string]any{"prompt": "hello"})
	if err != nil {
		t.Fatalf("agent failed: %v", err)
	}

	payload, ok := out.(CompletionPayload)
	if !ok {
		t.Fatalf("unexpected output type: %T", out)
	}
	if payload.Text != "echo:hello" || payload.Provider != "fake" || payload.Model != "fake-model" {
		t.Fatalf("unexpected output payload: %+v", payload)
	}
}
