package config

import (
	"os"
	"strconv"
	"time"

	"github.com/agentkernel/agentkernel/internal/orchestrator"
	"github.com/agentkernel/agentkernel/internal/planner"
)

// RuntimeConfig bundles the Orchestrator and Planner settings a
// process needs at startup.
type RuntimeConfig struct {
	Orchestrator orchestrator.Config
	Planner      planner.Config
}

// FromEnv loads baseline runtime config from the environment with
// safe defaults; the manifest may still override per-agent settings.
func FromEnv() RuntimeConfig {
	cfg := RuntimeConfig{
		Orchestrator: orchestrator.Config{
			MaxConcurrentAgents: orchestrator.DefaultMaxConcurrentAgents,
			DefaultTimeout:      orchestrator.DefaultTimeout,
			FallbackEnabled:     true,
		},
		Planner: planner.Config{
			WorkerPoolSize: 10,
			ChannelBuffer:  100,
			DefaultTimeout: 30 * time.Second,
		},
	}

	if v := os.Getenv("MAX_CONCURRENT_AGENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Orchestrator.MaxConcurrentAgents = n
		}
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Planner.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("CHANNEL_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Planner.ChannelBuffer = n
		}
	}
	if v := os.Getenv("DEFAULT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Planner.DefaultTimeout = d
			cfg.Orchestrator.DefaultTimeout = d
		}
	}
	if v := os.Getenv("FALLBACK_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Orchestrator.FallbackEnabled = b
		}
	}

	return cfg
}
