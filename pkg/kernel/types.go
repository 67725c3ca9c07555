// Package kernel defines the data model shared by every layer of the
// execution and routing kernel: agent configuration, invocation
// context, results, metrics, and inter-agent messages.
package kernel

import "time"

// AgentStatus is the lifecycle state of one Agent instance.
type AgentStatus string

const (
	StatusIdle      AgentStatus = "IDLE"
	StatusRunning   AgentStatus = "RUNNING"
	StatusCompleted AgentStatus = "COMPLETED"
	StatusFailed    AgentStatus = "FAILED"
	StatusSuspended AgentStatus = "SUSPENDED"
)

// BackoffMultiplier and delay defaults applied when a RetryPolicy field is left zero.
const (
	DefaultMaxAttempts       = 1
	DefaultInitialDelay      = time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultMaxDelay          = 30 * time.Second
)

// RetryPolicy configures the FallbackManager's bounded retry loop.
// A zero-value RetryPolicy means "no retries": exactly one attempt.
type RetryPolicy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
}

// WithDefaults returns a copy of p with zero fields replaced by the
// spec's documented defaults.
func (p RetryPolicy) WithDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.BackoffMultiplier < 1.0 {
		p.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = DefaultMaxDelay
	}
	return p
}

// CircuitBreakerConfig configures one agent's CircuitBreaker.
type CircuitBreakerConfig struct {
	Threshold         int
	OpenTimeout       time.Duration
	HalfOpenSuccesses int
}

const (
	DefaultThreshold         = 5
	DefaultOpenTimeout       = 60 * time.Second
	DefaultHalfOpenSuccesses = 3
)

// WithDefaults returns a copy of c with zero fields replaced by defaults.
func (c CircuitBreakerConfig) WithDefaults() CircuitBreakerConfig {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = DefaultOpenTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	return c
}

// CircuitPhase is one of the three CircuitBreaker states.
type CircuitPhase string

const (
	CircuitClosed   CircuitPhase = "CLOSED"
	CircuitOpen     CircuitPhase = "OPEN"
	CircuitHalfOpen CircuitPhase = "HALF_OPEN"
)

// CircuitState is a point-in-time snapshot of one agent's breaker.
type CircuitState struct {
	State         CircuitPhase
	FailureCount  int
	SuccessCount  int
	LastFailureAt time.Time
}

// AgentConfig is immutable once an agent is registered. ID is the sole
// identity key: two configs with the same ID cannot coexist in one
// orchestrator.
type AgentConfig struct {
	ID              string
	Name            string
	Type            string
	Timeout         time.Duration
	RetryPolicy     *RetryPolicy
	CircuitBreaker  *CircuitBreakerConfig
	FallbackAgentID string
	Memory          string
	Metadata        map[string]string
}

// Copy returns a deep-enough copy so callers cannot mutate the
// registered config through accessors on the Agent base.
func (c AgentConfig) Copy() AgentConfig {
	out := c
	if c.RetryPolicy != nil {
		rp := *c.RetryPolicy
		out.RetryPolicy = &rp
	}
	if c.CircuitBreaker != nil {
		cb := *c.CircuitBreaker
		out.CircuitBreaker = &cb
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// InvocationContext is the per-invocation value threaded through user
// code. It is opaque to the kernel beyond the fields below.
type InvocationContext struct {
	AgentID       string
	RequestID     string
	Timestamp     time.Time
	CorrelationID string
	Metadata      map[string]string
}

// ErrorInfo is the structured error carried by a failed Result.
type ErrorInfo struct {
	Code    string
	Message string
	Details any
	Stack   string
}

func (e *ErrorInfo) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Metrics accompanies every Result, success or failure.
type Metrics struct {
	ExecutionTime     time.Duration
	MemoryUsed        *int64
	RetryCount        *int
	MessagesProcessed *int
}

// Result is the outcome of one Agent.Execute or
// FallbackManager.ExecuteWithFallback call. Exactly one of Data/Error
// is meaningful, discriminated by Success.
type Result struct {
	Success bool
	Data    any
	Error   *ErrorInfo
	Metrics Metrics
}

// Failure builds a failed Result carrying a stable error code.
func Failure(code, message string, metrics Metrics) Result {
	return Result{Success: false, Error: &ErrorInfo{Code: code, Message: message}, Metrics: metrics}
}

// Succeed builds a successful Result.
func Succeed(data any, metrics Metrics) Result {
	return Result{Success: true, Data: data, Metrics: metrics}
}

// Priority classifies a Message for transports that honor it as a hint.
// It carries no kernel-level scheduling guarantee (spec.md §4.2).
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityNormal   Priority = "NORMAL"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Message is the unit transferred over the Bus. After the Bus has
// accepted a Message, ID, From, To, Type, Priority, and Timestamp are
// always present.
type Message struct {
	ID            string
	From          string
	To            string
	Type          string
	Payload       []byte
	Priority      Priority
	Timestamp     time.Time
	CorrelationID string
	ReplyTo       string
	Metadata      map[string]string
}
