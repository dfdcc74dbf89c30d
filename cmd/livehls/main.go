package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/use-agent/livehls/api"
	"github.com/use-agent/livehls/api/handler"
	"github.com/use-agent/livehls/cache"
	"github.com/use-agent/livehls/config"
	"github.com/use-agent/livehls/engine"
	"github.com/use-agent/livehls/observability"
	"github.com/use-agent/livehls/player"
	"github.com/use-agent/livehls/probe"
	"github.com/use-agent/livehls/resolver"
	"github.com/use-agent/livehls/scraper"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("livehls starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"browser", cfg.Browser.Enabled,
		"offlinePolicy", cfg.Resolver.OfflinePolicy,
	)

	// ── 3. Fetch tiers ──────────────────────────────────────────────
	static := engine.NewHTTPEngine(cfg.Browser.DefaultProxy)

	var (
		rendered engine.Engine
		pool     handler.PoolReporter
	)
	if cfg.Browser.Enabled {
		sc, err := scraper.NewScraper(cfg.Browser, cfg.Pool)
		if err != nil {
			slog.Error("failed to initialise scraper", "error", err)
			os.Exit(1)
		}
		defer sc.Close()

		// sc.Open is injected as a callback so engine/ never imports scraper/.
		rendered = engine.NewRodEngine(sc.Open, cfg.Browser.Stealth)
		pool = sc
	}

	// ── 4. Resolver ─────────────────────────────────────────────────
	opts := []resolver.Option{
		resolver.WithObserver(resolver.Multi(
			resolver.SlogObserver{Logger: slog.Default()},
			observability.MetricsObserver{},
		)),
	}
	if cfg.Resolver.PlayerFallback {
		opts = append(opts, resolver.WithPlayerFallback(player.New(cfg.Resolver.StaticTimeout)))
	}
	if cfg.Resolver.ProbeManifest {
		opts = append(opts, resolver.WithProbe(probe.New(nil, cfg.Resolver.StaticTimeout)))
	}
	core := resolver.New(resolver.ConfigFrom(cfg.Resolver), static, rendered, opts...)
	slog.Info("resolver ready",
		"static", static.Name(),
		"rendered", core.RenderedAvailable(),
		"playerFallback", cfg.Resolver.PlayerFallback,
		"probe", cfg.Resolver.ProbeManifest,
	)
	var res cache.Resolver = core

	// ── 4b. Outcome cache ───────────────────────────────────────────
	if cfg.Cache.TTL > 0 {
		cc := cache.New(cfg.Cache.TTL, cfg.Cache.MaxEntries, dialRedis(cfg.Cache.RedisURL))
		defer cc.Close()
		res = cache.Wrap(res, cc)
	}

	// ── 5. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(res, pool, cfg, startTime)

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Resolver.ResolveTimeout + 5*time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// In-flight resolutions get their full budget to finish.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Resolver.ResolveTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// sc.Close() runs via defer: drains the tab pool and kills Chrome.
	slog.Info("livehls stopped")
}

// dialRedis returns nil, running memory-only, when url is empty or Redis is
// unreachable.
func dialRedis(url string) *redis.Client {
	if url == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb, err := cache.Dial(ctx, url)
	if err != nil {
		slog.Warn("cache: L2 disabled", "error", err)
		return nil
	}
	slog.Info("cache: L2 redis connected")
	return rdb
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(h))
}
