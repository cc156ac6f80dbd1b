package runner

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/murmursim/murmur/config"
	"github.com/murmursim/murmur/server"
)

func newTestRunner(t *testing.T, mutate func(cfg *config.Config)) *Runner {
	t.Helper()

	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Population.Counts = map[string]int{"follower": 6, "leader": 1, "predator": 1}
	cfg.Derived.TotalAgents = 10
	cfg.Derived.WindowSteps = 4
	cfg.Resource.Patches = 3
	if mutate != nil {
		mutate(cfg)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r, err := New(cfg, log, Options{OutputDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.Close)
	return r
}

func TestStepAdvancesSimulation(t *testing.T) {
	r := newTestRunner(t, nil)

	for i := 0; i < 3; i++ {
		r.Step()
	}
	if got := r.sim.StepCount(); got != 3 {
		t.Errorf("step count = %d, want 3", got)
	}
}

func TestWindowOutputWritten(t *testing.T) {
	r := newTestRunner(t, nil)
	dir := r.opts.OutputDir

	for i := 0; i < 8; i++ {
		r.Step()
	}

	data, err := os.ReadFile(filepath.Join(dir, "telemetry.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	// Header plus a record at steps 4 and 8.
	if len(lines) != 3 {
		t.Errorf("telemetry.csv has %d lines, want 3", len(lines))
	}
	if !strings.HasPrefix(lines[0], "window_end,") {
		t.Errorf("unexpected header %q", lines[0])
	}

	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("config snapshot missing: %v", err)
	}
}

func TestGroupDetectionSchedule(t *testing.T) {
	r := newTestRunner(t, func(cfg *config.Config) {
		cfg.Telemetry.GroupEvery = 2
	})

	r.Step()
	if r.lastGroups != nil {
		t.Error("groups detected before schedule")
	}
	r.Step()
	labels := r.sim.GroupLabels()
	if len(labels) != 10 {
		t.Fatalf("labels length = %d, want 10", len(labels))
	}
}

func TestPauseAndResumeCommands(t *testing.T) {
	r := newTestRunner(t, nil)

	r.handleCommand(server.Command{Type: "pause"})
	if !r.paused {
		t.Error("pause command did not pause")
	}
	r.handleCommand(server.Command{Type: "start"})
	if r.paused {
		t.Error("start command did not resume")
	}
}

func TestUpdateParamsCommand(t *testing.T) {
	r := newTestRunner(t, nil)

	r.handleCommand(server.Command{
		Type:   "update_params",
		Params: map[string]float64{"beta": 3.5, "eta": 0.4},
	})
	p := r.sim.Params()
	if p.Beta != 3.5 {
		t.Errorf("beta = %v, want 3.5", p.Beta)
	}
	if p.Eta != 0.4 {
		t.Errorf("eta = %v, want 0.4", p.Eta)
	}
}

func TestUpdateParamsRejectsInvalid(t *testing.T) {
	r := newTestRunner(t, nil)

	before := r.sim.Params()
	r.handleCommand(server.Command{
		Type:   "update_params",
		Params: map[string]float64{"rc": -1},
	})
	if got := r.sim.Params(); got != before {
		t.Error("invalid update mutated parameters")
	}
}

func TestResetCommandRestartsRun(t *testing.T) {
	r := newTestRunner(t, nil)

	for i := 0; i < 5; i++ {
		r.Step()
	}
	r.handleCommand(server.Command{Type: "reset"})
	if got := r.sim.StepCount(); got != 0 {
		t.Errorf("step count after reset = %d, want 0", got)
	}
	if got := r.eco.Alive(); got != 8 {
		t.Errorf("alive after reset = %d, want 8", got)
	}
}

func TestRunStopsAtMaxSteps(t *testing.T) {
	r := newTestRunner(t, nil)
	r.opts.MaxSteps = 6

	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := r.sim.StepCount(); got != 6 {
		t.Errorf("step count = %d, want 6", got)
	}
}

func TestRunHonorsContextCancel(t *testing.T) {
	r := newTestRunner(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
