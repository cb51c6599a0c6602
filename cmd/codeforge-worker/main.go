// Package main is the entry point for the CodeForge worker: a NATS
// JetStream consumer that drives repo mapping, hybrid retrieval, code-graph
// search, agent runs, quality gates, memory, handoff, and evaluation
// passthrough for one project workspace at a time.
//
// # Basic usage
//
//	codeforge-worker serve
//	codeforge-worker healthcheck
//
// # Environment variables
//
//   - NATS_URL: JetStream connection URL
//   - LITELLM_URL / LITELLM_MASTER_KEY: OpenAI-compatible LLM gateway
//   - DATABASE_URL: Postgres DSN shared by the code graph and memory stores
//   - CODEFORGE_WORKER_LOG_LEVEL / CODEFORGE_WORKER_LOG_SERVICE
//   - CODEFORGE_WORKER_HEALTH_PORT
//   - OTEL_EXPORTER_OTLP_ENDPOINT: enables tracing when set
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Strob0t/CodeForge-sub000/internal/bus"
	"github.com/Strob0t/CodeForge-sub000/internal/codegraph"
	"github.com/Strob0t/CodeForge-sub000/internal/config"
	"github.com/Strob0t/CodeForge-sub000/internal/evaluation"
	"github.com/Strob0t/CodeForge-sub000/internal/handoff"
	"github.com/Strob0t/CodeForge-sub000/internal/history"
	"github.com/Strob0t/CodeForge-sub000/internal/llmgateway"
	"github.com/Strob0t/CodeForge-sub000/internal/memory"
	"github.com/Strob0t/CodeForge-sub000/internal/memory/embeddings"
	"github.com/Strob0t/CodeForge-sub000/internal/memory/embeddings/openai"
	"github.com/Strob0t/CodeForge-sub000/internal/observability"
	"github.com/Strob0t/CodeForge-sub000/internal/qualitygate"
	"github.com/Strob0t/CodeForge-sub000/internal/repomap"
	"github.com/Strob0t/CodeForge-sub000/internal/retrieval"
	"github.com/Strob0t/CodeForge-sub000/internal/runexec"
	"github.com/Strob0t/CodeForge-sub000/internal/tools/exec"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "codeforge-worker",
		Short:        "CodeForge agent-execution worker",
		Version:      fmt.Sprintf("%s (commit %s)", version, commit),
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd(), buildHealthcheckCmd())
	return root
}

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the worker's bus consumer and health/metrics server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func buildHealthcheckCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe a running worker's /health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
			resp, err := http.Get(url)
			if err != nil {
				return fmt.Errorf("healthcheck: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("healthcheck: unhealthy status %d", resp.StatusCode)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 8090, "Health server port")
	return cmd
}

// deps bundles every handler's resolved dependency, so runServe's wiring
// and its cleanup stay next to each other.
type deps struct {
	logger       *observability.Logger
	metrics      *observability.Metrics
	shutdownOTel func(context.Context) error

	consumer *bus.Consumer

	codegraphStore *codegraph.Store
	memoryStore    memory.Store
	hashStore      *retrieval.HashStore
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(observability.LogConfig{Level: cfg.Log.Level, Service: cfg.Log.Service})
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	// The returned *Tracer is not used and the worker creates no spans of
	// its own; NewTracer's shutdown hook is still honored so an OTLP
	// exporter (when configured via OTEL_EXPORTER_OTLP_ENDPOINT) flushes
	// cleanly on shutdown.
	_, shutdownOTel := observability.NewTracer(observability.TraceConfig{
		ServiceName: cfg.Log.Service,
		Environment: cfg.AppEnv,
		Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	})

	d, err := wireDependencies(cfg, logger, metrics)
	if err != nil {
		return fmt.Errorf("wire dependencies: %w", err)
	}
	d.shutdownOTel = shutdownOTel

	defer func() {
		if d.codegraphStore != nil {
			_ = d.codegraphStore.Close()
		}
		if d.memoryStore != nil {
			_ = d.memoryStore.Close()
		}
		if d.hashStore != nil {
			_ = d.hashStore.Close()
		}
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.shutdownOTel(shutCtx); err != nil {
			logger.Warn(shutCtx, "otel shutdown failed", "error", err)
		}
	}()

	httpServer := startHealthServer(logger, reg, cfg.Health.Port)
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutCtx); err != nil {
			logger.Warn(shutCtx, "health server shutdown failed", "error", err)
		}
	}()

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info(runCtx, "codeforge-worker starting", "nats_url", cfg.Bus.URL, "health_port", cfg.Health.Port)
	if err := d.consumer.Start(runCtx); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	<-runCtx.Done()
	logger.Info(context.Background(), "codeforge-worker shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return d.consumer.Stop(stopCtx)
}

// wireDependencies builds every handler and registers its subscriptions on
// a fresh bus.Consumer. Kept separate from runServe so the subscription
// table itself reads as one list. Building it dials NATS and Postgres, so
// it needs both to be reachable.
func wireDependencies(cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) (*deps, error) {
	consumer, err := bus.NewConsumer(cfg.Bus.URL, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("new bus consumer: %w", err)
	}

	llmClient, err := llmgateway.New(llmgateway.Config{BaseURL: cfg.LLM.URL, MasterKey: cfg.LLM.MasterKey})
	if err != nil {
		return nil, fmt.Errorf("new llm gateway client: %w", err)
	}

	codegraphStore, err := codegraph.New(codegraph.Config{DSN: cfg.DB.URL})
	if err != nil {
		return nil, fmt.Errorf("new codegraph store: %w", err)
	}

	memoryStore, err := memory.NewPostgresStore(memory.StoreConfig{DSN: cfg.DB.URL})
	if err != nil {
		return nil, fmt.Errorf("new memory store: %w", err)
	}

	hashStore, err := retrieval.NewHashStore(hashStorePath())
	if err != nil {
		return nil, fmt.Errorf("new retrieval hash store: %w", err)
	}

	embedder := buildEmbedder(logger)

	retriever := retrieval.NewHybridRetriever(embedder, hashStore, logger)
	subagent := retrieval.NewSubagent(retriever, llmClient)
	historyMgr := history.NewManager(history.DefaultConfig(), logger)

	js := consumer.JetStream()

	repomapHandler := repomap.NewHandler(js, logger)
	codegraphHandler := codegraph.NewHandler(js, codegraphStore, logger)
	retrievalHandler := retrieval.NewHandler(js, retriever, subagent, logger)
	qualitygateHandler := qualitygate.NewHandler(js, exec.NewManager(""), logger)
	memoryHandler := memory.NewHandler(js, memoryStore, embedder, logger)
	handoffHandler := handoff.NewHandler(js, logger)
	evaluationHandler := evaluation.NewHandler(js, logger)
	runexecHandler := runexec.NewHandler(js, llmClient, historyMgr, logger)

	consumer.Register(bus.Subscription{Subject: bus.SubjectRepoMapRequest, Handler: repomapHandler.Handle, DurableName: "repomap-generate"})

	consumer.Register(bus.Subscription{Subject: bus.SubjectGraphBuildRequest, Handler: codegraphHandler.HandleBuild, DurableName: "graph-build"})
	consumer.Register(bus.Subscription{Subject: bus.SubjectGraphSearchRequest, Handler: codegraphHandler.HandleSearch, FailSafe: codegraphHandler, DurableName: "graph-search"})

	consumer.Register(bus.Subscription{Subject: bus.SubjectRetrievalIndexRequest, Handler: retrievalHandler.HandleIndex, DurableName: "retrieval-index"})
	consumer.Register(bus.Subscription{Subject: bus.SubjectRetrievalSearchRequest, Handler: retrievalHandler.HandleSearch, FailSafe: retrievalHandler, DurableName: "retrieval-search"})
	consumer.Register(bus.Subscription{Subject: bus.SubjectSubagentSearchRequest, Handler: retrievalHandler.HandleSubagent, FailSafe: retrievalHandler.SubagentFailSafe(), DurableName: "retrieval-subagent"})

	consumer.Register(bus.Subscription{Subject: bus.SubjectQualityGateRequest, Handler: qualitygateHandler.Handle, FailSafe: qualitygateHandler, DurableName: "runs-qualitygate"})

	consumer.Register(bus.Subscription{Subject: bus.SubjectMemoryStore, Handler: memoryHandler.HandleStore, DurableName: "memory-store"})
	consumer.Register(bus.Subscription{Subject: bus.SubjectMemoryRecall, Handler: memoryHandler.HandleRecall, FailSafe: memoryHandler, DurableName: "memory-recall"})

	consumer.Register(bus.Subscription{Subject: bus.SubjectHandoffRequest, Handler: handoffHandler.Handle, DurableName: "handoff-request"})

	consumer.Register(bus.Subscription{Subject: bus.SubjectEvalGemmasRequest, Handler: evaluationHandler.Handle, FailSafe: evaluationHandler, DurableName: "evaluation-gemmas"})

	consumer.Register(bus.Subscription{Subject: bus.SubjectRunStart, Handler: runexecHandler.HandleRunStart, DurableName: "runs-start"})
	consumer.Register(bus.Subscription{Subject: bus.SubjectConversationRunStart, Handler: runexecHandler.HandleConversationStart, DurableName: "conversation-run-start"})

	return &deps{
		logger:         logger,
		metrics:        metrics,
		consumer:       consumer,
		codegraphStore: codegraphStore,
		memoryStore:    memoryStore,
		hashStore:      hashStore,
	}, nil
}

// buildEmbedder returns an OpenAI-compatible embedding provider when an
// API key is configured, or nil otherwise. memory.Handler and
// retrieval.HybridRetriever both accept a nil embedder, storing/searching
// without vectors rather than failing a run over an optional capability.
func buildEmbedder(logger *observability.Logger) embeddings.Provider {
	apiKey := os.Getenv("EMBEDDINGS_API_KEY")
	if apiKey == "" {
		logger.Warn(context.Background(), "EMBEDDINGS_API_KEY not set, running without an embedding provider")
		return nil
	}
	provider, err := openai.New(openai.Config{
		APIKey: apiKey,
		Model:  os.Getenv("EMBEDDINGS_MODEL"),
	})
	if err != nil {
		logger.Warn(context.Background(), "embedding provider init failed, continuing without it", "error", err)
		return nil
	}
	return provider
}

func hashStorePath() string {
	if path := os.Getenv("CODEFORGE_WORKER_HASHSTORE_PATH"); path != "" {
		return path
	}
	return "codeforge-retrieval-hashes.json"
}

func startHealthServer(logger *observability.Logger, reg *prometheus.Registry, port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", handleHealthz)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "health server error", "error", err)
		}
	}()
	return server
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
