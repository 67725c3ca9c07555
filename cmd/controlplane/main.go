package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"strconv"

	"github.com/agentkernel/agentkernel/internal/billing"
	"github.com/agentkernel/agentkernel/internal/bus"
	"github.com/agentkernel/agentkernel/internal/config"
	"github.com/agentkernel/agentkernel/internal/controlplane"
	"github.com/agentkernel/agentkernel/internal/kernelagent"
	"github.com/agentkernel/agentkernel/internal/orchestrator"
	"github.com/agentkernel/agentkernel/internal/transport"
	"github.com/agentkernel/agentkernel/internal/version"
	"github.com/agentkernel/agentkernel/pkg/kernel"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-v" || os.Args[1] == "--version" || os.Args[1] == "version") {
		fmt.Println(version.String())
		return
	}

	addr := os.Getenv("CONTROLPLANE_ADDR")
	if addr == "" {
		addr = ":8081"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc := controlplane.NewService()
	if v := os.Getenv("CONTROLPLANE_RATE_USD_PER_1000"); v != "" {
		if usd, err := strconv.ParseFloat(v, 64); err == nil {
			if rate, err := billing.NewRateCard(usd); err == nil {
				svc.WithRateCard(rate)
			}
		}
	}
	if manifestPath := os.Getenv("CONTROLPLANE_MANIFEST"); manifestPath != "" {
		orch, err := orchestratorFromManifest(ctx, manifestPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "controlplane: manifest introspection disabled: %v\n", err)
		} else {
			svc.WithOrchestrator(orch)
		}
	}

	tlsEnabled := os.Getenv("CONTROLPLANE_TLS_ENABLED") == "true"
	var err error
	if tlsEnabled {
		err = controlplane.StartServerTLS(
			ctx,
			addr,
			svc,
			os.Getenv("CONTROLPLANE_TLS_CERT_FILE"),
			os.Getenv("CONTROLPLANE_TLS_KEY_FILE"),
			os.Getenv("CONTROLPLANE_TLS_CA_FILE"),
			os.Getenv("CONTROLPLANE_TLS_REQUIRE_CLIENT_CERT") == "true",
		)
	} else {
		err = controlplane.StartServer(ctx, addr, svc)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "controlplane failed: %v\n", err)
		os.Exit(1)
	}
}

// orchestratorFromManifest registers every agent named in manifestPath
// under an echo body, giving the control plane's /agents endpoints
// something real to report without running any pipeline.
func orchestratorFromManifest(ctx context.Context, manifestPath string) (*orchestrator.Orchestrator, error) {
	manifest, err := config.LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	orch := orchestrator.New(bus.New(transport.NewInMemory()), config.FromEnv().Orchestrator)
	for _, binding := range manifest.Agents {
		body := echoBody{}
		agent := kernelagent.NewBase(binding.ToAgentConfig(), body)
		if err := orch.RegisterAgent(ctx, agent); err != nil {
			return nil, fmt.Errorf("register agent %q: %w", binding.ID, err)
		}
	}
	return orch, nil
}

type echoBody struct{}

func (echoBody) Run(_ context.Context, input any) (any, error) { return input, nil }

func (a echoBody) HandleMessage(ctx context.Context, msg kernel.Message) kernel.Result {
	return kernelagent.DefaultHandleMessage(kernelagent.NewBase(kernel.AgentConfig{ID: msg.To}, a), ctx, msg)
}
