// Command opsmind runs the DevOps assistant: an HTTP chat API by default,
// or an MCP server over stdio with -mcp.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/opsmind/opsmind/adapters/argocd"
	"github.com/opsmind/opsmind/adapters/grafana"
	"github.com/opsmind/opsmind/adapters/k6"
	"github.com/opsmind/opsmind/adapters/loki"
	"github.com/opsmind/opsmind/adapters/milvus"
	"github.com/opsmind/opsmind/adapters/sonarqube"
	"github.com/opsmind/opsmind/adapters/tempo"
	"github.com/opsmind/opsmind/adapters/weather"
	"github.com/opsmind/opsmind/agents"
	"github.com/opsmind/opsmind/graph"
	"github.com/opsmind/opsmind/internal/config"
	"github.com/opsmind/opsmind/internal/logging"
	"github.com/opsmind/opsmind/llm"
	"github.com/opsmind/opsmind/mcpserver"
	"github.com/opsmind/opsmind/observe"
	observeotel "github.com/opsmind/opsmind/observe/otel"
	observestore "github.com/opsmind/opsmind/observe/store"
	observesqlite "github.com/opsmind/opsmind/observe/store/sqlite"
	"github.com/opsmind/opsmind/orchestration"
	"github.com/opsmind/opsmind/pipeline"
	providerfactory "github.com/opsmind/opsmind/providers/factory"
	"github.com/opsmind/opsmind/server"
	"github.com/opsmind/opsmind/session"
	statefactory "github.com/opsmind/opsmind/state/factory"
	"github.com/opsmind/opsmind/tools"
)

const defaultRAGCollection = "opsmind_docs"

func main() {
	mcpMode := flag.Bool("mcp", false, "serve the tool registry over MCP stdio instead of HTTP")
	envFile := flag.String("env", ".env", "path to the .env file")
	agentsFile := flag.String("agents", "agents.yaml", "path to the specialist catalog")
	flag.Parse()

	if err := run(*mcpMode, *envFile, *agentsFile); err != nil {
		fmt.Fprintln(os.Stderr, "opsmind:", err)
		os.Exit(1)
	}
}

func run(mcpMode bool, envFile, agentsFile string) error {
	// Missing .env is fine; the environment may carry everything.
	_ = godotenv.Load(envFile)
	logging.Initialize(config.Getenv("OPSMIND_LOG_LEVEL", "info"))
	log := logging.GetLogger("main")
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clients := buildClients(cfg)
	toolRegistry := tools.NewRegistry()
	if err := registerTools(toolRegistry, clients, defaultRAGCollection, cfg.DefaultTimeRange); err != nil {
		return err
	}

	if mcpMode {
		mcpSrv, err := mcpserver.New(mcpserver.Config{
			Name:     "opsmind",
			Version:  cfg.Version,
			Registry: toolRegistry,
		})
		if err != nil {
			return err
		}
		log.Info("serving mcp over stdio", "version", cfg.Version)
		return mcpSrv.ServeStdio()
	}

	provider, err := providerfactory.FromEnv()
	if err != nil {
		log.Warn("no llm provider configured, running with fallbacks only", "error", err)
		provider = nil
	}

	catalog, err := agents.LoadCatalog(agentsFile)
	if err != nil {
		return fmt.Errorf("failed to load agent catalog: %w", err)
	}
	agentRegistry, err := buildAgents(cfg, catalog, clients, toolRegistry, provider)
	if err != nil {
		return err
	}

	tracerProvider := sdktrace.NewTracerProvider()
	defer func() { _ = tracerProvider.Shutdown(context.Background()) }()

	var traceStore observestore.Store
	if tracePath := config.Getenv("OPSMIND_TRACE_DB", ""); tracePath != "" {
		traceStore, err = observesqlite.New(tracePath)
		if err != nil {
			return fmt.Errorf("failed to open trace store: %w", err)
		}
		defer func() { _ = traceStore.Close() }()
	}
	sink := observe.NewAsyncSink(observe.NewMultiSink(
		observeotel.NewSink(tracerProvider),
		observestore.NewSink(traceStore),
	), 256)
	defer sink.Close()

	conversationGraph, err := orchestration.BuildGraph(orchestration.GraphConfig{
		Registry:        agentRegistry,
		Provider:        provider,
		Model:           cfg.OrchestratorModel,
		SupervisorModel: cfg.SupervisorModel,
		PlanningModel:   cfg.PlanningModel,
		ValidationModel: cfg.ValidationModel,
		Events:          sink,
	})
	if err != nil {
		return err
	}

	stateStore, err := statefactory.FromEnv(ctx)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer func() { _ = stateStore.Close() }()

	sessions, err := session.NewSQLiteStore(cfg.SessionsPath)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer func() { _ = sessions.Close() }()

	srv, err := server.New(server.Config{
		Addr:     cfg.ListenAddr,
		Version:  cfg.Version,
		Sessions: sessions,
		NewRunner: func(sessionID string) (server.Runner, error) {
			return graph.NewExecutor(conversationGraph,
				graph.WithStore(stateStore),
				graph.WithSessionID(sessionID),
				graph.WithObserver(sink),
				graph.WithRecursionLimit(cfg.RecursionLimit),
				graph.WithRunBudget(cfg.RunBudget),
			)
		},
		ToolsFor: toolsForFunc(catalog, toolRegistry),
		Traces:   traceStore,
	})
	if err != nil {
		return err
	}
	log.Info("starting", "addr", cfg.ListenAddr, "version", cfg.Version, "agents", agentRegistry.Names())
	return srv.ListenAndServe(ctx)
}

func buildClients(cfg config.Config) backendClients {
	return backendClients{
		loki: loki.New(loki.Config{
			BaseURL:      cfg.Loki.URL,
			AuthUser:     cfg.Loki.AuthUser,
			AuthPassword: cfg.Loki.AuthPassword,
			DefaultLimit: cfg.DefaultLogLimit,
		}),
		tempo: tempo.New(tempo.Config{
			BaseURL:      cfg.Tempo.URL,
			AuthUser:     cfg.Tempo.AuthUser,
			AuthPassword: cfg.Tempo.AuthPassword,
			DefaultLimit: cfg.DefaultTraceLimit,
		}),
		grafana:   grafana.New(grafana.Config{BaseURL: cfg.Grafana.URL, Token: cfg.Grafana.Token}),
		argocd:    argocd.New(argocd.Config{BaseURL: cfg.ArgoCD.URL, Token: cfg.ArgoCD.Token}),
		sonarqube: sonarqube.New(sonarqube.Config{BaseURL: cfg.SonarQube.URL, Token: cfg.SonarQube.Token}),
		milvus:    milvus.New(milvus.Config{BaseURL: cfg.Milvus.URL, Token: cfg.Milvus.Token}, milvus.NewHashEmbedder(0)),
		weather:   weather.New(weather.Config{BaseURL: cfg.Weather.URL, APIKey: cfg.Weather.Token}),
		k6: k6.NewRunner(k6.Config{
			RemoteWriteURL: config.Getenv("K6_PROMETHEUS_RW_SERVER_URL", ""),
			DashboardURL:   config.Getenv("K6_DASHBOARD_URL", ""),
		}),
	}
}

func buildAgents(
	cfg config.Config,
	catalog agents.Catalog,
	clients backendClients,
	toolRegistry *tools.Registry,
	provider llm.Provider,
) (*agents.Registry, error) {
	analysisPipeline := pipeline.New(provider, clients.loki, clients.tempo, pipeline.Config{
		Model:         cfg.OrchestratorModel,
		LogLimit:      cfg.DefaultLogLimit,
		TraceLimit:    cfg.DefaultTraceLimit,
		DefaultWindow: cfg.DefaultTimeRange,
	})

	registry := agents.NewRegistry()
	all := []agents.Specialist{
		agents.NewSearchAgent(provider, cfg.OrchestratorModel),
		agents.NewWeatherAgent(clients.weather, provider, cfg.OrchestratorModel),
		agents.NewObservabilityAgent(analysisPipeline),
		agents.NewGrafanaAnalysisAgent(clients.grafana, clients.tempo),
		agents.NewRendererAgent(clients.grafana),
		agents.NewLokiTempoAgent(clients.loki, clients.tempo),
		agents.NewArgoCDAgent(clients.argocd),
		agents.NewSonarQubeAgent(clients.sonarqube),
		agents.NewMilvusRAGAgent(clients.milvus, defaultRAGCollection),
		agents.NewK6Agent(clients.k6),
		agents.NewMCPGenericAgent(toolRegistry),
	}
	log := logging.GetLogger("main")
	for _, specialist := range all {
		if !catalog.Enabled(specialist.Name()) {
			log.Info("specialist disabled by catalog", "agent", specialist.Name())
			continue
		}
		if err := registry.Register(specialist); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// toolsForFunc reports the tool names behind one specialist, preferring the
// catalog's explicit mapping over the registry bundles.
func toolsForFunc(catalog agents.Catalog, toolRegistry *tools.Registry) func(string) []string {
	bundles := map[string][]string{}
	for _, bundle := range toolRegistry.BundleCatalog() {
		bundles[bundle.Name] = bundle.Tools
	}
	return func(agent string) []string {
		if fromCatalog := catalog.ToolsFor(agent); len(fromCatalog) > 0 {
			return fromCatalog
		}
		return bundles[agent]
	}
}
