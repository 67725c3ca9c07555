package kernelagent

import (
	"fmt"
	"sync"

	"github.com/agentkernel/agentkernel/pkg/kernel"
)

// Registry stores registered agent instances by id. It is exclusively
// owned by the Orchestrator (spec.md §3, "Ownership").
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Base
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Base)}
}

// Register stores agent under its own configured id. It fails with a
// kernel.CodeAlreadyRegistered error if the id already has an agent.
func (r *Registry) Register(agent *Base) error {
	id := agent.ID()
	if id == "" {
		return kernel.NewKernelError(kernel.CodeAgentNotFound, "agent id is empty", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[id]; exists {
		return kernel.NewKernelError(kernel.CodeAlreadyRegistered, fmt.Sprintf("agent %q already registered", id), nil)
	}
	r.agents[id] = agent
	return nil
}

// Unregister removes id from the registry. Idempotent.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, id)
}

// Get returns the registered agent for id, if any.
func (r *Registry) Get(id string) (*Base, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// IDs returns every currently registered agent id, unordered.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.agents))
	for id := range r.agents {
		out = append(out, id)
	}
	return out
}
