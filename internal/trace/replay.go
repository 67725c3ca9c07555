package trace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/agentkernel/agentkernel/internal/kernelagent"
	"github.com/agentkernel/agentkernel/pkg/kernel"
)

// ResolveAgentFn resolves an agent id to the live agent instance a
// replay should re-execute against.
type ResolveAgentFn func(agentID string) (*kernelagent.Base, bool)

// ReplayAndCompare re-executes the final recorded attempt of every
// invocation in tr and validates that each one reproduces the same
// success/failure outcome and, on success, the same output.
func ReplayAndCompare(ctx context.Context, tr ExecutionTrace, timeout time.Duration, resolve ResolveAgentFn) error {
	if len(tr.Steps) == 0 {
		return errors.New("trace replay: no steps to replay")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	expectedByInvocation := make(map[string]Step)
	for _, s := range tr.Steps {
		prev, ok := expectedByInvocation[s.InvocationID]
		if !ok || s.Attempt >= prev.Attempt {
			expectedByInvocation[s.InvocationID] = s
		}
	}

	invocationIDs := make([]string, 0, len(expectedByInvocation))
	for id := range expectedByInvocation {
		invocationIDs = append(invocationIDs, id)
	}
	sort.Strings(invocationIDs)

	for _, invID := range invocationIDs {
		expected := expectedByInvocation[invID]
		agent, ok := resolve(expected.AgentID)
		if !ok {
			return fmt.Errorf("trace replay: agent not found: %s", expected.AgentID)
		}

		runCtx, cancel := context.WithTimeout(ctx, timeout)
		invCtx := kernel.InvocationContext{AgentID: expected.AgentID, RequestID: expected.RequestID}
		actual := agent.Execute(runCtx, invCtx, expected.Input)
		cancel()

		if !expected.Result.Success {
			if actual.Success {
				return fmt.Errorf("trace replay: invocation %s expected failure but got success", invID)
			}
			if actual.Error.Code != expected.Result.Error.Code {
				return fmt.Errorf("trace replay: invocation %s error code mismatch: got %q want %q", invID, actual.Error.Code, expected.Result.Error.Code)
			}
			continue
		}

		if !actual.Success {
			return fmt.Errorf("trace replay: invocation %s unexpected failure: %v", invID, actual.Error)
		}
		if dataHash(actual.Data) != dataHash(expected.Result.Data) {
			return fmt.Errorf("trace replay: invocation %s output mismatch", invID)
		}
	}

	return nil
}
