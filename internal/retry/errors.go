package retry

import "github.com/agentkernel/agentkernel/pkg/kernel"

// ErrCircuitOpen builds the CIRCUIT_OPEN KernelError reporting that the
// breaker for agentID is currently OPEN.
func ErrCircuitOpen(agentID string) error {
	return kernel.NewKernelError(kernel.CodeCircuitOpen, "circuit open for agent "+agentID, nil)
}
