package swarm

import "fmt"

// BoundaryMode selects how the integrator treats the box faces.
type BoundaryMode uint8

const (
	// BoundaryPeriodic wraps positions modulo the box length. Pair distances
	// use the minimum-image convention.
	BoundaryPeriodic BoundaryMode = iota
	// BoundaryReflective clamps positions to the box face and negates the
	// normal velocity component.
	BoundaryReflective
	// BoundaryAbsorbing freezes agents that would leave the box: velocity is
	// zeroed and the position keeps its last valid value.
	BoundaryAbsorbing
)

var boundaryNames = map[BoundaryMode]string{
	BoundaryPeriodic:   "periodic",
	BoundaryReflective: "reflective",
	BoundaryAbsorbing:  "absorbing",
}

func (m BoundaryMode) String() string {
	if s, ok := boundaryNames[m]; ok {
		return s
	}
	return fmt.Sprintf("BoundaryMode(%d)", uint8(m))
}

// ParseBoundaryMode maps a config string to a BoundaryMode.
func ParseBoundaryMode(s string) (BoundaryMode, error) {
	switch s {
	case "periodic", "pbc", "":
		return BoundaryPeriodic, nil
	case "reflective":
		return BoundaryReflective, nil
	case "absorbing":
		return BoundaryAbsorbing, nil
	}
	return 0, fmt.Errorf("unknown boundary mode %q", s)
}

// MarshalYAML implements yaml.Marshaler.
func (m BoundaryMode) MarshalYAML() (any, error) {
	s, ok := boundaryNames[m]
	if !ok {
		return nil, fmt.Errorf("invalid boundary mode %d", uint8(m))
	}
	return s, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *BoundaryMode) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	mode, err := ParseBoundaryMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Params holds the global physics parameters shared by all agents. Values are
// immutable for the duration of a run; derived structures (grid resolution)
// are built from them at construction time.
type Params struct {
	// Morse potential: attraction/repulsion amplitudes and length scales,
	// plus the interaction cutoff radius.
	Ca float32 `yaml:"ca"`
	Cr float32 `yaml:"cr"`
	La float32 `yaml:"la"`
	Lr float32 `yaml:"lr"`
	Rc float32 `yaml:"rc"`

	// Rayleigh friction: strength and target speed.
	Alpha float32 `yaml:"alpha"`
	V0    float32 `yaml:"v0"`

	// Cucker-Smale alignment strength.
	Beta float32 `yaml:"beta"`

	// Vicsek noise amplitude in radians. Zero disables noise.
	Eta float32 `yaml:"eta"`

	// Domain: cube side length centered on the origin, boundary policy and
	// soft-wall strength (reflective mode only).
	BoxSize       float32      `yaml:"box_size"`
	Boundary      BoundaryMode `yaml:"boundary"`
	WallStiffness float32      `yaml:"wall_stiffness"`

	// Agent mass. Per-agent overrides come from a ParamTable.
	Mass float32 `yaml:"mass"`
}

// DefaultParams returns the canonical parameter set: long-range attraction
// dominated at short range by repulsion (La > Lr), friction toward unit
// speed, mild alignment, no noise, periodic box.
func DefaultParams() Params {
	return Params{
		Ca:            1.5,
		Cr:            2.0,
		La:            2.5,
		Lr:            0.5,
		Rc:            15.0,
		Alpha:         2.0,
		V0:            1.0,
		Beta:          0.1,
		Eta:           0.0,
		BoxSize:       50.0,
		Boundary:      BoundaryPeriodic,
		WallStiffness: 10.0,
		Mass:          1.0,
	}
}

// Validate reports configuration errors. It is the only place the core is
// allowed to fail; Step and UpdateGroups are total over validated parameters.
func (p Params) Validate() error {
	if p.Rc <= 0 {
		return fmt.Errorf("cutoff radius rc must be positive, got %v", p.Rc)
	}
	if p.BoxSize <= 0 {
		return fmt.Errorf("box size must be positive, got %v", p.BoxSize)
	}
	if p.La <= 0 || p.Lr <= 0 {
		return fmt.Errorf("morse lengths must be positive, got la=%v lr=%v", p.La, p.Lr)
	}
	if p.Mass <= 0 {
		return fmt.Errorf("mass must be positive, got %v", p.Mass)
	}
	if p.V0 <= 0 {
		return fmt.Errorf("target speed v0 must be positive, got %v", p.V0)
	}
	if p.WallStiffness < 0 {
		return fmt.Errorf("wall stiffness must be non-negative, got %v", p.WallStiffness)
	}
	if _, ok := boundaryNames[p.Boundary]; !ok {
		return fmt.Errorf("unknown boundary mode %d", uint8(p.Boundary))
	}
	return nil
}
