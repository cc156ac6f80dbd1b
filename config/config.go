// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/murmursim/murmur/swarm"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Simulation   SimulationConfig   `yaml:"simulation"`
	Physics      swarm.Params       `yaml:"physics"`
	Grouping     swarm.GroupParams  `yaml:"grouping"`
	Perception   PerceptionConfig   `yaml:"perception"`
	Population   PopulationConfig   `yaml:"population"`
	Castes       []CasteConfig      `yaml:"castes"`
	Energy       EnergyConfig       `yaml:"energy"`
	Resource     ResourceConfig     `yaml:"resource"`
	Predation    PredationConfig    `yaml:"predation"`
	Reproduction ReproductionConfig `yaml:"reproduction"`
	Obstacles    []ObstacleConfig   `yaml:"obstacles"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Server       ServerConfig       `yaml:"server"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimulationConfig holds run-level settings.
type SimulationConfig struct {
	Agents    int     `yaml:"agents"`
	DT        float64 `yaml:"dt"`
	Seed      int64   `yaml:"seed"`
	Workers   int     `yaml:"workers"`    // 0 = one per CPU
	SpawnHalf float64 `yaml:"spawn_half"` // 0 = box/4
	Steps     int     `yaml:"steps"`      // 0 = run until stopped
}

// PerceptionConfig holds field-of-view settings.
type PerceptionConfig struct {
	Enabled  bool    `yaml:"enabled"`
	FOVAngle float64 `yaml:"fov_angle"` // full cone opening, radians
}

// PopulationConfig holds per-caste population counts.
type PopulationConfig struct {
	Counts map[string]int `yaml:"counts"` // caste name -> initial count
}

// CasteConfig defines a behavioral template for agents. Zero fields fall
// back to the homogeneous physics values.
type CasteConfig struct {
	Name         string  `yaml:"name"`
	Beta         float64 `yaml:"beta"`          // alignment strength
	Eta          float64 `yaml:"eta"`           // noise amplitude
	V0           float64 `yaml:"v0"`            // cruise speed
	Mass         float64 `yaml:"mass"`
	GoalStrength float64 `yaml:"goal_strength"` // leaders only
	Predator     bool    `yaml:"predator"`
}

// EnergyConfig holds the metabolic cost model.
type EnergyConfig struct {
	Initial        float64 `yaml:"initial"`
	Max            float64 `yaml:"max"`
	BaseCost       float64 `yaml:"base_cost"`       // drain per second for existing
	VelocityFactor float64 `yaml:"velocity_factor"` // extra drain per unit speed
}

// ResourceConfig holds forage patch parameters.
type ResourceConfig struct {
	Patches         int     `yaml:"patches"`
	Amount          float64 `yaml:"amount"`           // initial and maximum energy per patch
	RegenRate       float64 `yaml:"regen_rate"`       // energy per second
	FeedRadius      float64 `yaml:"feed_radius"`      // agents inside this radius can feed
	FeedRate        float64 `yaml:"feed_rate"`        // energy per second transferred
	HungerThreshold float64 `yaml:"hunger_threshold"` // seek food below this energy
}

// PredationConfig holds hunting parameters.
type PredationConfig struct {
	HuntRange      float64 `yaml:"hunt_range"`
	AttackRange    float64 `yaml:"attack_range"`
	SuccessRate    float64 `yaml:"success_rate"`
	TransferRatio  float64 `yaml:"transfer_ratio"`  // fraction of prey energy gained on a kill
	FailPenalty    float64 `yaml:"fail_penalty"`    // energy lost on a missed attack
	AttackCooldown float64 `yaml:"attack_cooldown"` // seconds between attacks
}

// ReproductionConfig holds reproduction parameters.
type ReproductionConfig struct {
	Threshold      float64 `yaml:"threshold"`       // minimum energy to reproduce
	Cooldown       float64 `yaml:"cooldown"`        // seconds between births
	OffspringRatio float64 `yaml:"offspring_ratio"` // fraction of parent energy given to child
	SpawnOffset    float64 `yaml:"spawn_offset"`    // distance the child spawns from the parent
}

// ObstacleConfig defines one spherical obstacle.
type ObstacleConfig struct {
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Z        float64 `yaml:"z"`
	Radius   float64 `yaml:"radius"`
	Strength float64 `yaml:"strength"`
	Decay    float64 `yaml:"decay"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow float64 `yaml:"stats_window"` // seconds per aggregation window
	OutputDir   string  `yaml:"output_dir"`   // empty disables CSV output
	GroupEvery  int     `yaml:"group_every"`  // steps between group detection passes
}

// ServerConfig holds streaming server parameters.
type ServerConfig struct {
	Addr      string  `yaml:"addr"`
	FrameRate float64 `yaml:"frame_rate"` // frames pushed per second
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	DT32        float32        // Simulation.DT as float32
	TotalAgents int            // sum of per-caste counts, or Simulation.Agents
	CasteIndex  map[string]int // name -> index for caste lookup
	WindowSteps int            // telemetry window in steps
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Physics.Validate(); err != nil {
		return nil, fmt.Errorf("validating physics: %w", err)
	}

	// Compute derived values
	cfg.computeDerived()

	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.DT32 = float32(c.Simulation.DT)

	// Synthesize default castes if none specified
	if len(c.Castes) == 0 {
		c.Castes = []CasteConfig{
			{Name: "follower", Beta: 1.5, Eta: 0.05, V0: 1.0, Mass: 1.0},
			{Name: "explorer", Beta: 0.5, Eta: 0.3, V0: 1.3, Mass: 0.8},
			{Name: "leader", Beta: 1.0, Eta: 0.15, V0: 1.4, Mass: 1.2, GoalStrength: 2.0},
			{Name: "predator", Beta: 0, Eta: 0.1, V0: 1.3, Mass: 1.5, Predator: true},
		}
	}

	// Apply physics fallbacks to castes that leave fields unset
	for i := range c.Castes {
		caste := &c.Castes[i]
		if caste.Beta == 0 && !caste.Predator {
			caste.Beta = float64(c.Physics.Beta)
		}
		if caste.V0 == 0 {
			caste.V0 = float64(c.Physics.V0)
		}
		if caste.Mass == 0 {
			caste.Mass = float64(c.Physics.Mass)
		}
	}

	// Build caste index for fast lookup
	c.Derived.CasteIndex = make(map[string]int, len(c.Castes))
	for i, caste := range c.Castes {
		c.Derived.CasteIndex[caste.Name] = i
	}

	// Total population: explicit caste counts win over the flat agent count
	total := 0
	for _, n := range c.Population.Counts {
		total += n
	}
	if total == 0 {
		total = c.Simulation.Agents
	}
	c.Derived.TotalAgents = total

	if c.Simulation.DT > 0 {
		c.Derived.WindowSteps = int(c.Telemetry.StatsWindow / c.Simulation.DT)
	}
	if c.Derived.WindowSteps < 1 {
		c.Derived.WindowSteps = 1
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
