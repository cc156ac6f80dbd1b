// Package runner wires the simulation core, ecology, telemetry, and the
// streaming server into a stepping loop.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/murmursim/murmur/config"
	"github.com/murmursim/murmur/ecology"
	"github.com/murmursim/murmur/perception"
	"github.com/murmursim/murmur/server"
	"github.com/murmursim/murmur/steering"
	"github.com/murmursim/murmur/swarm"
	"github.com/murmursim/murmur/telemetry"
)

// Options configures a Runner beyond what the config file carries.
type Options struct {
	OutputDir string
	Serve     bool
	MaxSteps  int
	LogStats  bool
}

// Runner owns one simulation run.
type Runner struct {
	cfg  *config.Config
	opts Options
	log  *slog.Logger

	sim       *swarm.Simulation
	eco       *ecology.World
	goals     *steering.GoalField
	obstacles *steering.ObstacleField

	collector *telemetry.Collector
	output    *telemetry.OutputManager
	perf      *telemetry.PerfCollector

	srv *server.Server
	ser server.Serializer

	// Reused per-frame buffers
	castes   []uint8
	energies []float32

	lastGroups []swarm.Group
	lastStats  swarm.Stats
	paused     bool

	// Set by the frame ticker; the next Step broadcasts and clears it so
	// streaming time is attributed to the step it happened in.
	pendingFrame bool
}

// New builds a runner from the loaded config.
func New(cfg *config.Config, log *slog.Logger, opts Options) (*Runner, error) {
	r := &Runner{cfg: cfg, opts: opts, log: log}

	if err := r.buildSimulation(); err != nil {
		return nil, err
	}

	r.collector = telemetry.NewCollector(cfg.Derived.WindowSteps, cfg.Simulation.DT)
	r.perf = telemetry.NewPerfCollector(cfg.Derived.WindowSteps)

	output, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	r.output = output
	if err := r.output.WriteConfig(cfg); err != nil {
		return nil, fmt.Errorf("writing config snapshot: %w", err)
	}

	if opts.Serve {
		r.srv = server.New(cfg.Server.Addr, log)
		r.srv.Start()
	}
	return r, nil
}

// buildSimulation constructs the core, steering fields, and ecology from
// scratch. Reset calls it again to start over.
func (r *Runner) buildSimulation() error {
	cfg := r.cfg
	n := cfg.Derived.TotalAgents

	table := &swarm.ParamTable{
		Beta: make([]float32, n),
		Eta:  make([]float32, n),
		V0:   make([]float32, n),
		Mass: make([]float32, n),
	}
	r.goals = steering.NewGoalField(n)

	contributors := []swarm.ForceContributor{r.goals}
	if len(cfg.Obstacles) > 0 {
		spheres := make([]steering.Sphere, len(cfg.Obstacles))
		strength, decay := float32(4.0), float32(1.0)
		for i, o := range cfg.Obstacles {
			spheres[i] = steering.Sphere{
				Center: swarm.Vec3{X: float32(o.X), Y: float32(o.Y), Z: float32(o.Z)},
				Radius: float32(o.Radius),
			}
			if o.Strength > 0 {
				strength = float32(o.Strength)
			}
			if o.Decay > 0 {
				decay = float32(o.Decay)
			}
		}
		r.obstacles = steering.NewObstacleField(spheres, strength, decay)
		contributors = append(contributors, r.obstacles)
	}

	var visible swarm.VisibilityFunc
	if cfg.Perception.Enabled {
		visible = perception.NewFieldOfView(float32(cfg.Perception.FOVAngle)).Func()
	}

	sim, err := swarm.New(swarm.Options{
		N:            n,
		Params:       cfg.Physics,
		Dt:           cfg.Derived.DT32,
		Seed:         cfg.Simulation.Seed,
		SpawnHalf:    float32(cfg.Simulation.SpawnHalf),
		Workers:      cfg.Simulation.Workers,
		Groups:       cfg.Grouping,
		Visibility:   visible,
		Contributors: contributors,
		Table:        table,
	})
	if err != nil {
		return err
	}

	eco, err := ecology.NewWorld(cfg, sim, table, r.goals)
	if err != nil {
		sim.Close()
		return err
	}

	r.sim = sim
	r.eco = eco
	r.castes = make([]uint8, n)
	r.energies = make([]float32, n)
	r.lastGroups = nil
	r.lastStats = swarm.Stats{}
	return nil
}

// Step advances the run by one tick: physics, ecology, periodic group
// detection, and telemetry.
func (r *Runner) Step() {
	r.perf.StartStep()

	r.perf.StartPhase(telemetry.PhasePhysics)
	r.sim.Step()

	r.perf.StartPhase(telemetry.PhaseEcology)
	r.eco.Update(r.sim.Dt())

	step := r.sim.StepCount()
	groupEvery := uint64(r.cfg.Telemetry.GroupEvery)
	if groupEvery > 0 && step%groupEvery == 0 {
		r.perf.StartPhase(telemetry.PhaseGrouping)
		r.lastGroups = r.sim.UpdateGroups()
	}

	r.perf.StartPhase(telemetry.PhaseTelemetry)
	ev := r.eco.TakeEvents()
	r.collector.RecordEvents(ev.Births, ev.Deaths, ev.Kills, ev.AttacksAttempted, float64(ev.EnergyForaged))
	r.lastStats = r.sim.Stats()

	if r.collector.WindowDue(step) {
		r.emitWindow(step)
	}

	if r.pendingFrame {
		r.perf.StartPhase(telemetry.PhaseStreaming)
		r.broadcastFrame()
		r.pendingFrame = false
	}
	r.perf.EndStep()
}

func (r *Runner) emitWindow(step uint64) {
	ws := r.collector.EmitWindow(step, telemetry.Snapshot{
		Stats:         r.lastStats,
		Groups:        r.lastGroups,
		Energies:      r.eco.EnergyValues(),
		Predators:     r.eco.PredatorCount(),
		TotalResource: float64(r.eco.Resources().Total()),
	})

	if r.opts.LogStats {
		r.log.Info("window", "stats", ws, "perf", r.perf.Stats())
	}
	if err := r.output.WriteTelemetry(ws); err != nil {
		r.log.Error("telemetry output failed", "error", err)
	}
	if err := r.output.WriteGroups(step, r.lastGroups); err != nil {
		r.log.Error("group output failed", "error", err)
	}
	if err := r.output.WritePerf(r.perf.Stats().ToCSV(step)); err != nil {
		r.log.Error("perf output failed", "error", err)
	}
}

// broadcastFrame serializes the current state and pushes it to clients.
func (r *Runner) broadcastFrame() {
	if r.srv == nil || r.srv.ClientCount() == 0 {
		return
	}
	r.eco.FillCastes(r.castes)
	r.eco.FillEnergies(r.energies)

	var obstacles []steering.Sphere
	if r.obstacles != nil {
		obstacles = r.obstacles.Spheres()
	}
	frame := r.ser.Serialize(server.Frame{
		Step:      r.sim.StepCount(),
		Store:     r.sim.Store(),
		Castes:    r.castes,
		Energies:  r.energies,
		Labels:    r.sim.GroupLabels(),
		Stats:     r.lastStats,
		NumGroups: len(r.lastGroups),
		Resources: r.eco.Resources(),
		Obstacles: obstacles,
	})
	r.srv.Broadcast(frame)
}

// handleCommand applies one client control message.
func (r *Runner) handleCommand(cmd server.Command) {
	switch cmd.Type {
	case "start":
		r.paused = false
	case "pause":
		r.paused = true
	case "reset":
		r.log.Info("resetting simulation")
		r.sim.Close()
		if err := r.buildSimulation(); err != nil {
			r.log.Error("reset failed", "error", err)
		}
	case "update_params":
		p := r.sim.Params()
		applyParamOverrides(&p, cmd.Params)
		if err := r.sim.SetParams(p); err != nil {
			r.log.Warn("rejected parameter update", "error", err)
			return
		}
		r.log.Info("parameters updated", "params", cmd.Params)
	default:
		r.log.Warn("unknown command", "type", cmd.Type)
	}
}

func applyParamOverrides(p *swarm.Params, overrides map[string]float64) {
	for key, v := range overrides {
		f := float32(v)
		switch key {
		case "ca":
			p.Ca = f
		case "cr":
			p.Cr = f
		case "la":
			p.La = f
		case "lr":
			p.Lr = f
		case "rc":
			p.Rc = f
		case "alpha":
			p.Alpha = f
		case "v0":
			p.V0 = f
		case "beta":
			p.Beta = f
		case "eta":
			p.Eta = f
		}
	}
}

// Run drives the loop until the context is canceled or MaxSteps is
// reached. With a server attached, frames are paced to the configured rate;
// otherwise steps run back to back.
func (r *Runner) Run(ctx context.Context) error {
	var frameTick <-chan time.Time
	var commands <-chan server.Command
	if r.srv != nil {
		rate := r.cfg.Server.FrameRate
		if rate <= 0 {
			rate = 30
		}
		interval := time.Duration(float64(time.Second) / rate)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		frameTick = ticker.C
		commands = r.srv.Commands()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-commands:
			r.handleCommand(cmd)
			continue
		case <-frameTick:
			if r.paused {
				r.broadcastFrame()
			} else {
				r.pendingFrame = true
			}
		default:
		}

		if r.paused {
			// Idle politely while paused; commands still arrive above.
			time.Sleep(10 * time.Millisecond)
			continue
		}

		r.Step()

		if r.opts.MaxSteps > 0 && int(r.sim.StepCount()) >= r.opts.MaxSteps {
			r.log.Info("max steps reached", "step", r.sim.StepCount())
			return nil
		}
	}
}

// Close releases the worker pool, output files, and the server.
func (r *Runner) Close() {
	if r.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.srv.Shutdown(ctx); err != nil {
			r.log.Warn("server shutdown", "error", err)
		}
	}
	if err := r.output.Close(); err != nil {
		r.log.Warn("closing outputs", "error", err)
	}
	r.sim.Close()
}
