package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gyaneshwarpardhi/flowdag/internal/api"
	"github.com/gyaneshwarpardhi/flowdag/internal/config"
	"github.com/gyaneshwarpardhi/flowdag/internal/dag"
	"github.com/gyaneshwarpardhi/flowdag/internal/engine"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	cfgPath := flag.String("config", "workflows/workflow.yaml", "Path to workflow file (.yaml or .hcl)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	printPlan := flag.Bool("plan", false, "Print the dispatch plan as JSON and exit")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load workflow", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		slog.Error("workflow validation failed", "err", err)
		os.Exit(1)
	}

	// ── Build initial DAG ─────────────────────────────────────────────────────
	g, err := dag.Build(cfg)
	if err != nil {
		slog.Error("failed to build DAG", "err", err)
		os.Exit(1)
	}
	slog.Info("DAG built", "workflow", cfg.Workflow.Name, "nodes", g.Len())

	if *printPlan {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(engine.Plan(g)); err != nil {
			slog.Error("failed to print plan", "err", err)
			os.Exit(1)
		}
		return
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := engine.New(ctx, g, *cfg.Workflow.Dispatch)

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.WorkflowConfig) {
		if err := config.Validate(newCfg); err != nil {
			slog.Warn("hot-reload skipped: workflow invalid", "err", err)
			return
		}
		newGraph, err := dag.Build(newCfg)
		if err != nil {
			slog.Warn("hot-reload skipped: DAG build failed", "err", err)
			return
		}
		eng.Swap(newGraph, *newCfg.Workflow.Dispatch)
		slog.Info("DAG hot-reloaded", "workflow", newCfg.Workflow.Name, "nodes", newGraph.Len())
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.New(eng, loader)
	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	cancel() // stop worker pool
	eng.Shutdown()
	slog.Info("goodbye")
}
