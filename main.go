package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/murmursim/murmur/config"
	"github.com/murmursim/murmur/runner"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	serve := flag.Bool("serve", false, "Stream frames over a websocket server")
	addr := flag.String("addr", "", "Server listen address (empty = use config)")
	logStats := flag.Bool("log-stats", false, "Output window stats via slog")
	statsWindow := flag.Float64("stats-window", 0, "Stats window size in seconds (0 = use config)")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxSteps := flag.Int("max-steps", 0, "Stop after N steps (0 = unlimited)")
	agents := flag.Int("agents", 0, "Agent count override (0 = use config)")

	flag.Parse()

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	if *seed != 0 {
		cfg.Simulation.Seed = *seed
	} else if cfg.Simulation.Seed == 0 {
		cfg.Simulation.Seed = time.Now().UnixNano()
	}
	if *statsWindow > 0 {
		cfg.Telemetry.StatsWindow = *statsWindow
		cfg.Derived.WindowSteps = int(*statsWindow / cfg.Simulation.DT)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *agents > 0 {
		cfg.Simulation.Agents = *agents
		cfg.Population.Counts = nil
		cfg.Derived.TotalAgents = *agents
	}
	steps := *maxSteps
	if steps == 0 {
		steps = cfg.Simulation.Steps
	}

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	r, err := runner.New(cfg, logger, runner.Options{
		OutputDir: *outputDir,
		Serve:     *serve,
		MaxSteps:  steps,
		LogStats:  *logStats,
	})
	if err != nil {
		logger.Error("failed to build simulation", "error", err)
		os.Exit(1)
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting simulation",
		"agents", cfg.Derived.TotalAgents,
		"seed", cfg.Simulation.Seed,
		"dt", cfg.Simulation.DT,
		"serve", *serve,
		"max_steps", steps,
	)

	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("simulation stopped", "error", err)
		os.Exit(1)
	}
}
