// Command marketsim runs agent-based market simulations from YAML scenarios.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/talgya/market-abm/internal/api"
	"github.com/talgya/market-abm/internal/config"
	"github.com/talgya/market-abm/internal/engine"
	"github.com/talgya/market-abm/internal/entropy"
	"github.com/talgya/market-abm/internal/export"
	"github.com/talgya/market-abm/internal/metrics"
	"github.com/talgya/market-abm/internal/persistence"
	"github.com/talgya/market-abm/internal/scenario"
)

const usage = `usage:
  marketsim run <config.yaml>   run a scenario
  marketsim kinds               list registered environment and agent kinds`

func main() {
	setLogger(slog.LevelInfo)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		if len(os.Args) != 3 {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		os.Exit(run(os.Args[2]))
	case "kinds":
		printKinds(scenario.Defaults())
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func setLogger(level slog.Level) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}

func printKinds(c *scenario.Catalog) {
	fmt.Println("environments:", strings.Join(c.Environments.Kinds(), ", "))
	fmt.Println("agents:      ", strings.Join(c.Agents.Kinds(), ", "))
}

// run executes one scenario and returns the process exit code.
func run(path string) int {
	// ── Configuration ─────────────────────────────────────────────────
	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("failed to load config", "path", path, "error", err)
		return 1
	}
	setLogger(cfg.LogLevel())

	if cfg.Seed == 0 {
		cfg.Seed = entropy.CryptoSeed()
		slog.Info("no seed configured, chose one", "seed", cfg.Seed)
	}

	// ── Scenario ──────────────────────────────────────────────────────
	env, err := scenario.Build(cfg)
	if err != nil {
		slog.Error("failed to build scenario", "error", err)
		return 1
	}

	started := time.Now()
	dir, err := export.RunDir(cfg.Output.Dir, cfg.Tag(), started)
	if err != nil {
		slog.Error("failed to create output dir", "error", err)
		return 1
	}

	eng, err := engine.New(env, cfg.Engine(filepath.Join(dir, export.ResultsFile)))
	if err != nil {
		slog.Error("invalid engine config", "error", err)
		return 1
	}

	manifest := export.NewManifest(started)
	manifest.Name = cfg.Name
	manifest.Seed = cfg.Seed
	manifest.Environment = cfg.Environment.Kind
	manifest.Agents = len(env.Agents())
	manifest.Cycles = cfg.Steps
	manifest.Config = cfg

	slog.Info("scenario ready",
		"name", cfg.Name,
		"run_id", manifest.RunID,
		"environment", cfg.Environment.Kind,
		"agents", manifest.Agents,
		"seed", cfg.Seed,
		"dir", dir,
	)

	// ── Database ──────────────────────────────────────────────────────
	var db *persistence.DB
	if cfg.Output.SQLite != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Output.SQLite), 0755); err != nil {
			slog.Error("failed to create database dir", "error", err)
			return 1
		}
		db, err = persistence.Open(cfg.Output.SQLite)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			return 1
		}
		defer db.Close()
		slog.Info("database opened", "path", cfg.Output.SQLite)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	var apiServer *api.Server
	if cfg.API.Addr != "" {
		apiServer = api.NewServer(cfg.Name, manifest.RunID, cfg.Steps)
		apiServer.DB = db
		if err := apiServer.Start(cfg.API.Addr); err != nil {
			slog.Error("failed to start API", "addr", cfg.API.Addr, "error", err)
			return 1
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			apiServer.Shutdown(ctx)
		}()
		eng.OnCycle = apiServer.Publish
		fmt.Printf("API: http://%s/api/v1/status\n", apiServer.Addr())
	}

	// ── Run ───────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, runErr := eng.Run(ctx)
	if apiServer != nil {
		apiServer.Complete(res, runErr)
	}
	manifest.Finish(res, runErr)

	// ── Outputs ───────────────────────────────────────────────────────
	h := env.History()
	report := metrics.Summarize(h.Prices, env.Extras())
	if err := export.WriteRun(dir, h, report, manifest); err != nil {
		slog.Error("failed to write outputs", "error", err)
		return 1
	}
	if db != nil {
		if err := db.SaveRunArchive(manifest, env); err != nil {
			slog.Error("archive failed", "error", err)
		}
	}

	fmt.Println(renderSummary(manifest, report, dir))

	if runErr != nil {
		return 1
	}
	return 0
}
