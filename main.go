package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"google.golang.org/genai"

	"github.com/freshcart/support-agent/internal/agent"
	"github.com/freshcart/support-agent/internal/agent/graph"
	"github.com/freshcart/support-agent/internal/agent/graph/nodes"
	"github.com/freshcart/support-agent/internal/agent/graph/tools"
	"github.com/freshcart/support-agent/internal/agent/model"
	"github.com/freshcart/support-agent/internal/agent/repo"
	"github.com/freshcart/support-agent/internal/agent/sessions"
	"github.com/freshcart/support-agent/internal/core"
	"github.com/freshcart/support-agent/internal/eval"
	"github.com/freshcart/support-agent/internal/guardrail"
	"github.com/freshcart/support-agent/internal/inventory"
	"github.com/freshcart/support-agent/internal/retrieval"
	"github.com/freshcart/support-agent/internal/server"
	logx "github.com/freshcart/support-agent/pkg/logger"
	pkgredis "github.com/freshcart/support-agent/pkg/redis"
)

// AppConfig defines all configurable parameters for the service, sourced
// from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Redis pkgredis.Config
	// SessionStore selects "redis" or "memory" persistence.
	SessionStore string `envconfig:"SESSION_STORE" default:"redis"`

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Classifier model.ClassifierModelConfig
	Responder  model.ResponderModelConfig
	Prompt     model.PromptConfig
	Session    model.SessionConfig
	Guardrail  guardrail.Config
	Retrieval  retrieval.Config
	Tools      tools.Config
	Inventory  inventory.Config
	Server     server.Config
	Eval       eval.Config

	// Data files
	ProductsPath string `envconfig:"PRODUCTS_PATH" default:"data/products.json"`
	OrdersPath   string `envconfig:"ORDERS_PATH" default:"data/orders.json"`
	FAQPath      string `envconfig:"FAQ_PATH" default:"data/faqs.json"`
}

func main() {
	mode := flag.String("mode", "serve", "run mode: serve, chat, or eval")
	flag.Parse()

	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment)})

	orchestrator, evaluator, evalCases, cleanup, err := buildApp(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build application: %v", err)
	}
	defer cleanup()

	switch *mode {
	case "serve":
		runServe(ctx, cfg, orchestrator, evaluator, evalCases)
	case "chat":
		runChat(ctx, orchestrator)
	case "eval":
		runEval(ctx, evaluator, evalCases)
	default:
		log.Fatalf("Unknown mode %q (want serve, chat, or eval)", *mode)
	}
}

func buildApp(ctx context.Context, cfg AppConfig) (*agent.Orchestrator, *eval.Evaluator, []eval.Case, func(), error) {
	cleanup := func() {}

	// Session store and refund ledger
	var sessionRepo model.SessionRepository
	var ledger tools.RefundLedger
	switch cfg.SessionStore {
	case "memory":
		sessionRepo = repo.NewMemorySessionRepository(0)
		ledger = tools.NewMemoryRefundLedger()
	default:
		ttl, err := time.ParseDuration(cfg.Session.TTL)
		if err != nil {
			return nil, nil, nil, cleanup, fmt.Errorf("invalid SESSION_TTL %q: %w", cfg.Session.TTL, err)
		}
		rdb, err := cfg.Redis.New()
		if err != nil {
			return nil, nil, nil, cleanup, fmt.Errorf("connect redis: %w", err)
		}
		cleanup = func() { _ = rdb.Close() }
		sessionRepo = repo.NewRedisSessionRepository(rdb, ttl)
		ledger = tools.NewRedisRefundLedger(rdb)
	}

	sm := sessions.NewManager(sessionRepo, cfg.Session)

	// Business data
	catalog, err := tools.LoadCatalog(cfg.ProductsPath)
	if err != nil {
		return nil, nil, nil, cleanup, fmt.Errorf("load product catalog: %w", err)
	}
	orders, err := tools.LoadOrders(cfg.OrdersPath)
	if err != nil {
		return nil, nil, nil, cleanup, fmt.Errorf("load orders: %w", err)
	}

	// Gemini client shared by chat models and the embedder
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, nil, nil, cleanup, fmt.Errorf("create gemini client: %w", err)
	}

	chatModels, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		Client:     client,
		Classifier: &cfg.Classifier,
		Responder:  &cfg.Responder,
	})
	if err != nil {
		return nil, nil, nil, cleanup, err
	}

	// Knowledge base
	embedder := retrieval.NewGeminiEmbedder(client, cfg.Retrieval.EmbeddingModel)
	store := retrieval.NewStore()
	if err := retrieval.IngestFiles(ctx, embedder, store, cfg.FAQPath, cfg.ProductsPath); err != nil {
		return nil, nil, nil, cleanup, fmt.Errorf("ingest knowledge base: %w", err)
	}
	retriever := retrieval.NewRetriever(embedder, store, cfg.Retrieval)

	registry := tools.NewRegistry(catalog, orders, ledger, inventory.NewClient(cfg.Inventory), cfg.Tools)

	runner, err := graph.BuildGraph(ctx, &graph.GraphConfig{
		ChatModels:   chatModels,
		Sessions:     sm,
		Guardrail:    guardrail.NewFilter(cfg.Guardrail),
		Retriever:    retriever,
		Tools:        registry,
		PromptConfig: cfg.Prompt,
		ToolMaxCalls: cfg.Session.Tools.MaxCalls,
	})
	if err != nil {
		return nil, nil, nil, cleanup, fmt.Errorf("build graph: %w", err)
	}

	orchestrator := agent.NewOrchestrator(sm, runner)
	evaluator := eval.NewEvaluator(orchestrator, cfg.Eval)

	evalCases, err := eval.LoadCases(cfg.Eval.CasesPath)
	if err != nil {
		logx.Warn().Err(err).Str("path", cfg.Eval.CasesPath).Msg("evaluation cases not loaded, using built-in defaults")
		evalCases = eval.DefaultCases()
	}

	return orchestrator, evaluator, evalCases, cleanup, nil
}

func runServe(ctx context.Context, cfg AppConfig, orchestrator *agent.Orchestrator, evaluator *eval.Evaluator, evalCases []eval.Case) {
	srv := server.New(cfg.Server, orchestrator, evaluator, evalCases)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-stop:
		logx.Info().Str("signal", sig.String()).Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Fatalf("Shutdown error: %v", err)
		}
	}
}

func runChat(ctx context.Context, orchestrator *agent.Orchestrator) {
	sessionID := "chat-" + uuid.NewString()
	fmt.Println("FreshCart support chat. Type 'quit' to exit.")
	fmt.Printf("Session: %s\n\n", sessionID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		reply, err := orchestrator.HandleMessage(ctx, sessionID, line)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		fmt.Printf("bot [%s/%s]> %s\n\n", reply.Intent, reply.Agent, reply.Text)
	}
}

func runEval(ctx context.Context, evaluator *eval.Evaluator, evalCases []eval.Case) {
	if len(evalCases) == 0 {
		log.Fatal("No evaluation cases loaded")
	}

	report, err := evaluator.RunAll(ctx, evalCases)
	if err != nil {
		log.Fatalf("Evaluation failed: %v", err)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("Failed to render report: %v", err)
	}
	fmt.Println(string(out))

	fmt.Printf("\nPass rate: %.1f%% (%d/%d), average score %.2f\n",
		report.PassRate*100, report.Passed, report.TotalCases, report.AverageScore)
	if report.Failed > 0 {
		os.Exit(1)
	}
}
