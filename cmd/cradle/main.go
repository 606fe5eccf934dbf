// Command cradle is the daemon's process entrypoint: it wires every
// subsystem in dependency order, starts the chat transport and the
// heartbeat, and blocks until a shutdown signal or a self-evolution/repo
// drift restart request fires.
//
// Usage:
//
//	cradle run       # start the agent (default with no arguments)
//	cradle version   # print build version information
//	cradle health    # check a running instance's /healthz endpoint
//	cradle help      # show usage
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agenthatchery/cradle/audit"
	"github.com/agenthatchery/cradle/evolve"
	"github.com/agenthatchery/cradle/heartbeat"
	"github.com/agenthatchery/cradle/internal/config"
	"github.com/agenthatchery/cradle/internal/logging"
	"github.com/agenthatchery/cradle/llm"
	"github.com/agenthatchery/cradle/llm/providers/gemini"
	"github.com/agenthatchery/cradle/llm/providers/openaicompat"
	"github.com/agenthatchery/cradle/memory"
	"github.com/agenthatchery/cradle/metrics"
	"github.com/agenthatchery/cradle/repo"
	"github.com/agenthatchery/cradle/sandbox"
	"github.com/agenthatchery/cradle/skills"
	"github.com/agenthatchery/cradle/store"
	"github.com/agenthatchery/cradle/task"
	"github.com/agenthatchery/cradle/telegrambot"
)

// Version, BuildTime, and GitCommit are injected at build time via
// -ldflags; see the Dockerfile.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		runAgent()
		return
	}

	switch os.Args[1] {
	case "run", "serve":
		runAgent()
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("cradle %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`cradle - self-evolving autonomous agent daemon

Usage:
  cradle <command>

Commands:
  run       Start the agent (default with no arguments)
  version   Show version information
  health    Check a running instance's health endpoint
  help      Show this help message

Options for 'health':
  --addr <url>   Metrics server base address (default http://localhost:9090)`)
}

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:9090", "Metrics server base address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/healthz")
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}
	fmt.Println("OK")
}

func runAgent() {
	cfg := config.FromEnv()

	logger, err := logging.New(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting cradle",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)
	for _, w := range cfg.Validate() {
		logger.Warn("configuration warning", zap.String("warning", w))
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal("failed to create data dir", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, err := metrics.InitTracing(ctx, cfg.OTLPEndpoint, "cradle", logger)
	if err != nil {
		logger.Warn("failed to init tracing, continuing without spans", zap.Error(err))
	}
	defer tracer.Shutdown(context.Background())

	collector := metrics.NewCollector(metrics.DefaultNamespace, logger)

	router := buildRouter(cfg, logger)
	router.SetMetrics(collector)
	logger.Info("llm providers configured", zap.Strings("providers", router.Providers()))

	sbox := sandbox.NewDriver(logger)
	sbox.SetMetrics(collector)

	memClient := memory.New(memory.Config{
		BaseURL:    cfg.AgentPlaybooksBaseURL,
		APIKey:     cfg.AgentPlaybooksAPIKey,
		GUID:       cfg.AgentPlaybooksAgentID,
		PlaybookID: cfg.AgentPlaybooksPlaybookID,
		Logger:     logger,
	})

	skillCatalog, err := skills.NewCatalog(memClient, logger)
	if err != nil {
		logger.Fatal("failed to load builtin skills", zap.Error(err))
	}
	if err := skillCatalog.Refresh(ctx); err != nil {
		logger.Warn("initial skill refresh failed", zap.Error(err))
	}

	taskEngine := task.New(task.Config{
		LLM:        router,
		Sandbox:    sbox,
		Skills:     skillCatalog,
		Memory:     memClient,
		Metrics:    collector,
		Logger:     logger,
		GitHubOrg:  cfg.GitHubOrg,
		GitHubRepo: cfg.GitHubRepo,
	})
	if persona, ok, err := memClient.FetchPersona(ctx); err != nil {
		logger.Warn("failed to fetch persona, using built-in default", zap.Error(err))
	} else if ok {
		taskEngine.DynamicPersona = persona
	}

	repoClient := repo.New(repo.Config{
		Org:    cfg.GitHubOrg,
		Repo:   cfg.GitHubRepo,
		PAT:    cfg.GitHubPAT,
		Logger: logger,
	})

	auditStore, err := audit.Open(cfg.AuditDBDSN, logger)
	if err != nil {
		logger.Fatal("failed to open audit store", zap.Error(err))
	}
	defer auditStore.Close()

	evolver := evolve.New(evolve.Config{SourceDir: "."}, router, sbox, repoClient, memClient, auditStore, logger)

	fileStore, err := store.NewFileStore(cfg.DataDir)
	if err != nil {
		logger.Fatal("failed to init file store", zap.Error(err))
	}
	var mirror *store.RedisMirror
	if cfg.RedisURL != "" {
		mirror, err = store.NewRedisMirror(ctx, cfg.RedisURL, "")
		if err != nil {
			logger.Warn("redis mirror unavailable, continuing without it", zap.Error(err))
			mirror = nil
		}
	}
	state := store.NewState(fileStore, mirror, logger)
	defer state.Close()

	metricsServer := metrics.NewServer(cfg.MetricsAddr, collector, cfg.StatusJWTSecret, logger)
	if err := metricsServer.Start(); err != nil {
		logger.Fatal("failed to start metrics server", zap.Error(err))
	}

	var bot *telegrambot.Bot
	if cfg.TelegramBotToken != "" {
		bot, err = telegrambot.New(cfg.TelegramBotToken, cfg.AllowedChatHandle, telegrambot.Handlers{}, logger)
		if err != nil {
			logger.Warn("failed to start telegram bot, chat transport disabled", zap.Error(err))
			bot = nil
		}
	} else {
		logger.Info("telegram bot token not set, chat transport disabled")
	}

	scheduler := heartbeat.New(heartbeat.Config{
		Interval:      time.Duration(cfg.HeartbeatInterval) * time.Second,
		DataDir:       cfg.DataDir,
		DefaultBranch: "main",
		GitSHA:        cfg.GitSHA,
		Engine:        taskEngine,
		Evolver:       evolver,
		State:         state,
		Skills:        skillCatalog,
		Repo:          repoClient,
		Memory:        memClient,
		Chat:          chatNotifier(bot),
		Metrics:       collector,
		Logger:        logger,
	})

	evolver.RequestRestart = func() { os.Exit(42) }
	taskEngine.RequestRestart = func() { os.Exit(42) }
	scheduler.RequestExit = func(code int) { os.Exit(code) }

	if bot != nil {
		wireBotHandlers(bot, taskEngine, scheduler, evolver, router)
		if err := bot.Start(ctx); err != nil {
			logger.Warn("failed to start telegram polling", zap.Error(err))
		}
	}

	logger.Info("cradle online",
		zap.Duration("heartbeat_interval", time.Duration(cfg.HeartbeatInterval)*time.Second),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	err = scheduler.Start(ctx)
	if err != nil && err != context.Canceled {
		logger.Warn("heartbeat loop exited with error", zap.Error(err))
	}

	logger.Info("shutting down")
	if bot != nil {
		bot.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", zap.Error(err))
	}
	logger.Info("cradle stopped")
}

// buildRouter constructs one llm.Provider per configured dialect and
// returns a Router that fails over between them in priority order.
func buildRouter(cfg *config.Config, logger *zap.Logger) *llm.Router {
	specs := make([]llm.ProviderSpec, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		var provider llm.Provider
		switch p.Dialect {
		case "gemini":
			provider = gemini.New(gemini.Config{
				Name:      p.Name,
				APIKey:    p.APIKey,
				BaseURL:   p.BaseURL,
				Model:     p.Model,
				CostPer1K: p.CostPer1K,
			})
		case "openaicompat":
			compatCfg := openaicompat.Config{
				Name:      p.Name,
				APIKey:    p.APIKey,
				BaseURL:   p.BaseURL,
				Model:     p.Model,
				CostPer1K: p.CostPer1K,
			}
			if p.Name == "openrouter" {
				compatCfg.BuildHeaders = openaicompat.OpenRouterHeaders
			}
			provider = openaicompat.New(compatCfg)
		default:
			logger.Warn("unknown provider dialect, skipping", zap.String("provider", p.Name), zap.String("dialect", p.Dialect))
			continue
		}
		specs = append(specs, llm.ProviderSpec{Provider: provider, Priority: p.Priority, RPM: p.RPM})
	}
	return llm.NewRouter(specs, logger)
}

// chatNotifier adapts a possibly-nil *telegrambot.Bot to the
// heartbeat.ChatNotifier interface; a nil bot means no chat transport is
// configured and every notify becomes a no-op.
func chatNotifier(bot *telegrambot.Bot) heartbeat.ChatNotifier {
	if bot == nil {
		return nil
	}
	return bot
}

// wireBotHandlers connects chat commands to their orchestrator targets.
func wireBotHandlers(bot *telegrambot.Bot, engine *task.Engine, scheduler *heartbeat.Scheduler, evolver *evolve.Evolver, router *llm.Router) {
	bot.SetHandlers(telegrambot.Handlers{
		OnTask: func(ctx context.Context, text string) (string, error) {
			submitted := engine.AddTask(taskTitle(text), text, "", "user")
			// Process immediately instead of waiting for the next heartbeat.
			processed, err := engine.ProcessNext(ctx)
			if err != nil {
				return "", err
			}
			if processed == nil {
				return fmt.Sprintf("Task queued: [%s] %s", submitted.ID, submitted.Title), nil
			}
			if processed.Error != "" {
				return "", fmt.Errorf("[%s] %s", processed.ID, processed.Error)
			}
			return fmt.Sprintf("[%s] %s\n\n%s", processed.ID, processed.Title, processed.Result), nil
		},
		OnStatus: func(ctx context.Context) (string, error) {
			return scheduler.Status(), nil
		},
		OnCost: func(ctx context.Context) (string, error) {
			return formatUsage(router.UsageStats()), nil
		},
		OnEvolve: func(ctx context.Context) (string, error) {
			return evolver.Evolve(ctx), nil
		},
	})
}

// taskTitle derives a short title from a free-text task description,
// mirroring how the bootstrap tasks name themselves.
func taskTitle(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= 60 {
		return text
	}
	return text[:57] + "..."
}

// formatUsage renders the router's per-provider usage snapshot as a
// human-readable report for the /cost command.
func formatUsage(usage []llm.Usage) string {
	if len(usage) == 0 {
		return "No LLM providers configured."
	}
	var b strings.Builder
	b.WriteString("LLM usage\n")
	for _, u := range usage {
		status := "healthy"
		if !u.Healthy {
			status = fmt.Sprintf("demoted until %s", u.DemotedUntil.Format(time.RFC3339))
		}
		fmt.Fprintf(&b, "- %s: %d calls, %d failures, %d in/%d out tokens, $%.4f (%s)\n",
			u.Provider, u.TotalCalls, u.TotalFailures, u.TotalInputTokens, u.TotalOutputTokens, u.TotalCostUSD, status)
	}
	return b.String()
}
