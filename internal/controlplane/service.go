// Package controlplane exposes tenant/usage administration and
// read-only orchestrator introspection over HTTP, separate from the
// pipeline-execution surface in internal/app.
package controlplane

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/agentkernel/agentkernel/internal/billing"
	"github.com/agentkernel/agentkernel/internal/orchestrator"
	"github.com/agentkernel/agentkernel/internal/security"
)

// Service owns tenant registration, usage accounting, and an optional
// Orchestrator to report on. Orch may be nil: a Service used only for
// tenant/usage administration need not carry a live orchestrator.
type Service struct {
	mu      sync.Mutex
	tenants map[string]struct{}
	usage   map[string]int64
	orch    *orchestrator.Orchestrator
	rate    billing.RateCard
}

// NewService returns a Service with no orchestrator attached and the
// default rate card (free); call WithOrchestrator and WithRateCard to
// configure both.
func NewService() *Service {
	return &Service{tenants: make(map[string]struct{}), usage: make(map[string]int64)}
}

// WithRateCard attaches the usage-based rate card /billing/invoice
// applies against a tenant's tracked usage.
func (s *Service) WithRateCard(rate billing.RateCard) *Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = rate
	return s
}

// WithOrchestrator attaches orch so the /agents endpoints report on
// its registry, admission counter, and circuit breaker state.
func (s *Service) WithOrchestrator(orch *orchestrator.Orchestrator) *Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orch = orch
	return s
}

func (s *Service) AddTenant(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		return fmt.Errorf("tenant id is empty")
	}
	if _, exists := s.tenants[id]; exists {
		return fmt.Errorf("tenant %q already exists", id)
	}
	s.tenants[id] = struct{}{}
	return nil
}

func (s *Service) ListTenants() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tenants))
	for id := range s.tenants {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Service) AddUsage(tenantID string, invocations int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[tenantID]; !ok {
		return fmt.Errorf("tenant %q not found", tenantID)
	}
	s.usage[tenantID] += invocations
	return nil
}

func (s *Service) Usage(tenantID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage[tenantID]
}

func (s *Service) orchestrator() (*orchestrator.Orchestrator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orch, s.orch != nil
}

func (s *Service) Handler() http.Handler {
	policy := security.DefaultPolicy()

	requireAdmin := func(w http.ResponseWriter, r *http.Request) bool {
		role, err := security.ParseRole(r.Header.Get("X-Role"))
		if err != nil {
			role = security.RoleViewer
		}
		if !policy.IsAllowed(role, security.ActionAdmin) {
			http.Error(w, "rbac denied", http.StatusForbidden)
			return false
		}
		return true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/tenants", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{"tenants": s.ListTenants()})
		case http.MethodPost:
			if !requireAdmin(w, r) {
				return
			}
			var req struct {
				ID string `json:"id"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := s.AddTenant(req.ID); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/usage", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			tenantID := r.URL.Query().Get("tenant_id")
			_ = json.NewEncoder(w).Encode(map[string]any{"tenant_id": tenantID, "invocations": s.Usage(tenantID)})
		case http.MethodPost:
			if !requireAdmin(w, r) {
				return
			}
			var req struct {
				TenantID    string `json:"tenant_id"`
				Invocations int64  `json:"invocations"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := s.AddUsage(req.TenantID, req.Invocations); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusAccepted)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/billing/invoice", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		tenantID := r.URL.Query().Get("tenant_id")
		if tenantID == "" {
			http.Error(w, "tenant_id is required", http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		rate := s.rate
		s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(rate.Invoice(tenantID, s.Usage(tenantID)))
	})

	mux.HandleFunc("/agents", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		orch, ok := s.orchestrator()
		if !ok {
			http.Error(w, "no orchestrator attached", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"agents":  orch.GetRegisteredAgents(),
			"running": orch.GetRunningAgentCount(),
		})
	})

	mux.HandleFunc("/agents/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		orch, ok := s.orchestrator()
		if !ok {
			http.Error(w, "no orchestrator attached", http.StatusServiceUnavailable)
			return
		}
		id := r.URL.Query().Get("agent_id")
		status, found := orch.GetAgentStatus(id)
		if !found {
			http.Error(w, fmt.Sprintf("agent %q not registered", id), http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"agent_id": id, "status": status})
	})

	mux.HandleFunc("/agents/circuit", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		orch, ok := s.orchestrator()
		if !ok {
			http.Error(w, "no orchestrator attached", http.StatusServiceUnavailable)
			return
		}
		id := r.URL.Query().Get("agent_id")
		_ = json.NewEncoder(w).Encode(orch.GetCircuitState(id))
	})

	return mux
}

func StartServer(ctx context.Context, addr string, svc *Service) error {
	if addr == "" {
		addr = ":8081"
	}
	s := &http.Server{Addr: addr, Handler: svc.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = s.Shutdown(context.Background())
	}()
	return s.ListenAndServe()
}

// StartServerTLS runs the control plane HTTP server behind TLS,
// requiring client certificates when requireClientCert is set.
func StartServerTLS(ctx context.Context, addr string, svc *Service, certFile string, keyFile string, caFile string, requireClientCert bool) error {
	if addr == "" {
		addr = ":8081"
	}
	cfg, err := security.BuildServerTLSConfig(certFile, keyFile, caFile, requireClientCert)
	if err != nil {
		return err
	}
	s := &http.Server{Addr: addr, Handler: svc.Handler(), ReadHeaderTimeout: 5 * time.Second, TLSConfig: cfg}
	go func() {
		<-ctx.Done()
		_ = s.Shutdown(context.Background())
	}()
	ln, err := tls.Listen("tcp", addr, cfg)
	if err != nil {
		return fmt.Errorf("controlplane tls listen: %w", err)
	}
	return s.Serve(ln)
}
