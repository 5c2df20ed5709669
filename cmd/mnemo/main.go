// Command mnemo runs the hierarchical memory engine: the retrieval service
// and the rollup scheduler, backed by Postgres/pgvector and an optional
// Redis session cache.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/lunavale/mnemo/internal/config"
	"github.com/lunavale/mnemo/internal/observe"
	"github.com/lunavale/mnemo/internal/retrieval"
	"github.com/lunavale/mnemo/internal/rollup"
	"github.com/lunavale/mnemo/internal/service"
	"github.com/lunavale/mnemo/internal/sessioncache"
	"github.com/lunavale/mnemo/pkg/memory/postgres"
	"github.com/lunavale/mnemo/pkg/provider/embeddings"
	oaembed "github.com/lunavale/mnemo/pkg/provider/embeddings/openai"
	"github.com/lunavale/mnemo/pkg/provider/llm"
	oaillm "github.com/lunavale/mnemo/pkg/provider/llm/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "mnemo: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "mnemo: %v\n", err)
		}
		return 1
	}
	config.ApplyDefaults(cfg)

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("mnemo starting",
		"config", *configPath,
		"bot", cfg.Bot.Name,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "mnemo"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	m := observe.DefaultMetrics()

	if cfg.Server.MetricsAddr != "" {
		go serveMetrics(cfg.Server.MetricsAddr)
	}

	// ── Model providers ───────────────────────────────────────────────────────
	llmProvider, err := buildLLMProvider(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to build llm provider", "err", err)
		return 1
	}
	embedProvider, err := buildEmbeddingsProvider(cfg.Providers.Embeddings)
	if err != nil {
		slog.Error("failed to build embeddings provider", "err", err)
		return 1
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	store, err := postgres.NewStore(ctx, cfg.Memory.PostgresDSN, embedProvider, cfg.Memory.EmbeddingDimensions)
	if err != nil {
		slog.Error("failed to open memory store", "err", err)
		return 1
	}
	defer store.Close()
	slog.Info("memory store ready", "embedding_dimensions", cfg.Memory.EmbeddingDimensions)

	var cache *sessioncache.Cache
	if cfg.Cache.RedisAddr != "" {
		cache = sessioncache.New(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword,
			cfg.Cache.RedisDB, cfg.Cache.SessionWindow, logger)
		defer cache.Close()
		if err := cache.Ping(ctx); err != nil {
			slog.Warn("session cache unreachable — continuing without it", "err", err)
		} else {
			slog.Info("session cache ready", "addr", cfg.Cache.RedisAddr)
		}
	}

	// ── Retrieval engine ──────────────────────────────────────────────────────
	engine := retrieval.NewEngine(
		store.Turns(),
		store.Semantic(),
		store.Raw(),
		retrieval.NewClassifier(llmProvider, logger),
		retrieval.NewTimeRangeExtractor(llmProvider, logger, nil),
		logger,
		retrieval.WithMaxLines(cfg.Memory.ContextLines),
		retrieval.WithMetrics(m),
	)

	// ── Rollup pipeline and scheduler ─────────────────────────────────────────
	pipeline := rollup.NewPipeline(
		store.Turns(), store.Summaries(), store.Timeline(), store,
		llmProvider, logger, nil,
	)
	scheduler := rollup.NewScheduler(pipeline, store.Checkpoints(), logger,
		rollup.WithTriggerHour(cfg.Rollup.Hour),
		rollup.WithDowntimeThreshold(time.Duration(cfg.Rollup.DowntimeThresholdHours)*time.Hour),
	)

	// ── Service ───────────────────────────────────────────────────────────────
	svcOpts := []service.Option{
		service.WithBotName(cfg.Bot.Name),
		service.WithMetrics(m),
	}
	if cache != nil {
		svcOpts = append(svcOpts, service.WithSessionCache(cache))
	}
	svc := service.New(store.Turns(), store, store.Semantic(), engine, pipeline, scheduler, logger, svcOpts...)

	slog.Info("server ready — press Ctrl+C to shut down",
		"listen_addr", cfg.Server.ListenAddr,
		"trigger_hour", cfg.Rollup.Hour)

	// The scheduler records the startup checkpoint, reconciles missed
	// rollups, then blocks on calendar triggers; the API server handles live
	// traffic. Both stop on signal-context cancellation.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := scheduler.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return newAPIServer(svc, logger).serve(gctx, cfg.Server.ListenAddr)
	})
	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildLLMProvider constructs the completion provider from its config entry.
// All supported names speak the OpenAI chat-completions protocol; non-OpenAI
// providers are reached through their compatible endpoints via base_url.
func buildLLMProvider(entry config.ProviderEntry) (llm.Provider, error) {
	var opts []oaillm.Option
	if entry.BaseURL != "" {
		opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
	}
	p, err := oaillm.New(entry.APIKey, entry.Model, opts...)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", entry.Name, "model", entry.Model)
	return p, nil
}

// buildEmbeddingsProvider constructs the embeddings provider from its config
// entry.
func buildEmbeddingsProvider(entry config.ProviderEntry) (embeddings.Provider, error) {
	var opts []oaembed.Option
	if entry.BaseURL != "" {
		opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
	}
	p, err := oaembed.New(entry.APIKey, entry.Model, opts...)
	if err != nil {
		return nil, fmt.Errorf("create embeddings provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "embeddings", "name", entry.Name, "model", p.ModelID())
	return p, nil
}

// ── Metrics endpoint ──────────────────────────────────────────────────────────

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Warn("metrics endpoint error", "err", err)
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
