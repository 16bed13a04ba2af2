package genome

import (
	"fmt"
	"math"

	"github.com/san-kum/cellsim/internal/geom"
)

const (
	DefaultSplitRatio      = 0.5
	DefaultMaxSplits       = -1
	DefaultRestLengthScale = 1.0
	DefaultStiffness       = 50.0
	DefaultDamping         = 2.0
	DefaultBreakStrain     = 1.0
)

// RawGenome is the ingestion shape produced by the file collaborator. Pointer
// fields are optional and take defaults when nil.
type RawGenome struct {
	Name               string     `yaml:"name" json:"name"`
	InitialMode        int        `yaml:"initial_mode" json:"initial_mode"`
	InitialOrientation *geom.Quat `yaml:"initial_orientation,omitempty" json:"initial_orientation,omitempty"`
	Modes              []RawMode  `yaml:"modes" json:"modes"`
}

type RawMode struct {
	Name          string    `yaml:"name" json:"name"`
	Color         geom.Vec3 `yaml:"color" json:"color"`
	CellType      int       `yaml:"cell_type" json:"cell_type"`
	SplitMass     float64   `yaml:"split_mass" json:"split_mass"`
	SplitInterval float64   `yaml:"split_interval" json:"split_interval"`
	MaxAdhesions  int       `yaml:"max_adhesions" json:"max_adhesions"`
	MinAdhesions  int       `yaml:"min_adhesions" json:"min_adhesions"`

	SplitRatio   *float64     `yaml:"split_ratio,omitempty" json:"split_ratio,omitempty"`
	MaxSplits    *int         `yaml:"max_splits,omitempty" json:"max_splits,omitempty"`
	SplitAxis    *geom.Vec3   `yaml:"split_axis,omitempty" json:"split_axis,omitempty"`
	GrowthRate   float64      `yaml:"growth_rate,omitempty" json:"growth_rate,omitempty"`
	MaxMass      float64      `yaml:"max_mass,omitempty" json:"max_mass,omitempty"`
	MakeAdhesion *bool        `yaml:"make_adhesion,omitempty" json:"make_adhesion,omitempty"`
	Adhesion     *RawAdhesion `yaml:"adhesion,omitempty" json:"adhesion,omitempty"`
	ChildA       *RawChild    `yaml:"child_a,omitempty" json:"child_a,omitempty"`
	ChildB       *RawChild    `yaml:"child_b,omitempty" json:"child_b,omitempty"`
}

type RawAdhesion struct {
	RestLengthScale *float64 `yaml:"rest_length_scale,omitempty" json:"rest_length_scale,omitempty"`
	Stiffness       *float64 `yaml:"stiffness,omitempty" json:"stiffness,omitempty"`
	Damping         *float64 `yaml:"damping,omitempty" json:"damping,omitempty"`
	CanBreak        bool     `yaml:"can_break,omitempty" json:"can_break,omitempty"`
	BreakStrain     *float64 `yaml:"break_strain,omitempty" json:"break_strain,omitempty"`
}

type RawChild struct {
	Mode         *int       `yaml:"mode,omitempty" json:"mode,omitempty"`
	Orientation  *geom.Quat `yaml:"orientation,omitempty" json:"orientation,omitempty"`
	KeepAdhesion *bool      `yaml:"keep_adhesion,omitempty" json:"keep_adhesion,omitempty"`
}

// Load validates raw and builds the immutable mode table. All problems are
// collected into one *ValidationError.
func Load(raw RawGenome) (*Genome, error) {
	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	n := len(raw.Modes)
	if n == 0 {
		report("genome has no modes")
	}
	if n > 0 && (raw.InitialMode < 0 || raw.InitialMode >= n) {
		report("initial_mode %d out of range [0,%d)", raw.InitialMode, n)
	}

	orientation := geom.Identity
	if raw.InitialOrientation != nil {
		q := *raw.InitialOrientation
		if !q.IsFinite() || q.Len() == 0 {
			report("initial_orientation must be a finite non-zero quaternion")
		} else {
			orientation = q.Normalize()
		}
	}

	modes := make([]Mode, n)
	for i, rm := range raw.Modes {
		modes[i] = buildMode(i, n, rm, report)
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	return &Genome{
		name:               raw.Name,
		initialMode:        raw.InitialMode,
		initialOrientation: orientation,
		modes:              modes,
		raw:                raw.clone(),
	}, nil
}

// MustLoad is Load for statically known genomes such as presets and tests.
func MustLoad(raw RawGenome) *Genome {
	g, err := Load(raw)
	if err != nil {
		panic(err)
	}
	return g
}

func buildMode(idx, n int, rm RawMode, report func(string, ...any)) Mode {
	label := rm.Name
	if label == "" {
		label = fmt.Sprintf("#%d", idx)
	}
	nonNegative := func(field string, v float64) {
		if math.IsNaN(v) || v < 0 {
			report("mode %s: %s must be >= 0, got %v", label, field, v)
		}
	}

	m := Mode{
		Name:          rm.Name,
		Color:         rm.Color,
		CellType:      CellType(rm.CellType),
		SplitMass:     rm.SplitMass,
		SplitInterval: rm.SplitInterval,
		SplitRatio:    DefaultSplitRatio,
		MaxSplits:     DefaultMaxSplits,
		SplitAxis:     geom.V(1, 0, 0),
		GrowthRate:    rm.GrowthRate,
		MaxMass:       rm.MaxMass,
		MaxAdhesions:  rm.MaxAdhesions,
		MinAdhesions:  rm.MinAdhesions,
		MakeAdhesion:  true,
		Adhesion: AdhesionSettings{
			RestLengthScale: DefaultRestLengthScale,
			Stiffness:       DefaultStiffness,
			Damping:         DefaultDamping,
			BreakStrain:     DefaultBreakStrain,
		},
		ChildA: ChildSettings{Mode: idx, Orientation: geom.Identity, KeepAdhesion: true},
		ChildB: ChildSettings{Mode: idx, Orientation: geom.Identity, KeepAdhesion: true},
	}

	if rm.CellType < 0 || CellType(rm.CellType) >= numCellTypes {
		report("mode %s: unknown cell_type %d", label, rm.CellType)
	}
	nonNegative("split_mass", rm.SplitMass)
	nonNegative("split_interval", rm.SplitInterval)
	nonNegative("growth_rate", rm.GrowthRate)
	nonNegative("max_mass", rm.MaxMass)
	if math.IsInf(rm.GrowthRate, 0) || math.IsInf(rm.MaxMass, 0) {
		report("mode %s: growth_rate and max_mass must be finite", label)
	}
	if rm.MaxAdhesions < 0 || rm.MinAdhesions < 0 {
		report("mode %s: adhesion limits must be >= 0", label)
	}
	if rm.MinAdhesions > rm.MaxAdhesions {
		report("mode %s: min_adhesions %d exceeds max_adhesions %d", label, rm.MinAdhesions, rm.MaxAdhesions)
	}

	if rm.SplitRatio != nil {
		m.SplitRatio = *rm.SplitRatio
		if math.IsNaN(m.SplitRatio) || m.SplitRatio < 0 || m.SplitRatio > 1 {
			report("mode %s: split_ratio must be within [0,1], got %v", label, m.SplitRatio)
		}
	}
	if rm.MaxSplits != nil {
		m.MaxSplits = *rm.MaxSplits
		if m.MaxSplits < -1 {
			report("mode %s: max_splits must be >= -1, got %d", label, m.MaxSplits)
		}
	}
	if rm.SplitAxis != nil {
		if axis := rm.SplitAxis.Normalize(); !axis.IsZero() {
			m.SplitAxis = axis
		}
	}
	if rm.MakeAdhesion != nil {
		m.MakeAdhesion = *rm.MakeAdhesion
	}

	if a := rm.Adhesion; a != nil {
		if a.RestLengthScale != nil {
			m.Adhesion.RestLengthScale = *a.RestLengthScale
			nonNegative("adhesion.rest_length_scale", m.Adhesion.RestLengthScale)
		}
		if a.Stiffness != nil {
			m.Adhesion.Stiffness = *a.Stiffness
			nonNegative("adhesion.stiffness", m.Adhesion.Stiffness)
		}
		if a.Damping != nil {
			m.Adhesion.Damping = *a.Damping
			nonNegative("adhesion.damping", m.Adhesion.Damping)
		}
		if a.BreakStrain != nil {
			m.Adhesion.BreakStrain = *a.BreakStrain
			if math.IsNaN(m.Adhesion.BreakStrain) || m.Adhesion.BreakStrain <= 0 {
				report("mode %s: adhesion.break_strain must be > 0", label)
			}
		}
		m.Adhesion.CanBreak = a.CanBreak
	}

	m.ChildA = buildChild(label, "child_a", n, m.ChildA, rm.ChildA, report)
	m.ChildB = buildChild(label, "child_b", n, m.ChildB, rm.ChildB, report)
	return m
}

func buildChild(label, field string, n int, def ChildSettings, rc *RawChild, report func(string, ...any)) ChildSettings {
	if rc == nil {
		return def
	}
	c := def
	if rc.Mode != nil {
		c.Mode = *rc.Mode
		if c.Mode < 0 || c.Mode >= n {
			report("mode %s: %s.mode %d out of range [0,%d)", label, field, c.Mode, n)
		}
	}
	if rc.Orientation != nil {
		q := *rc.Orientation
		if !q.IsFinite() || q.Len() == 0 {
			report("mode %s: %s.orientation must be a finite non-zero quaternion", label, field)
		} else {
			c.Orientation = q.Normalize()
		}
	}
	if rc.KeepAdhesion != nil {
		c.KeepAdhesion = *rc.KeepAdhesion
	}
	return c
}

func (r RawGenome) clone() RawGenome {
	out := r
	if r.InitialOrientation != nil {
		q := *r.InitialOrientation
		out.InitialOrientation = &q
	}
	out.Modes = make([]RawMode, len(r.Modes))
	for i, m := range r.Modes {
		out.Modes[i] = m.clone()
	}
	return out
}

func (m RawMode) clone() RawMode {
	out := m
	out.SplitRatio = clonePtr(m.SplitRatio)
	out.MaxSplits = clonePtr(m.MaxSplits)
	out.SplitAxis = clonePtr(m.SplitAxis)
	out.MakeAdhesion = clonePtr(m.MakeAdhesion)
	if m.Adhesion != nil {
		a := *m.Adhesion
		a.RestLengthScale = clonePtr(a.RestLengthScale)
		a.Stiffness = clonePtr(a.Stiffness)
		a.Damping = clonePtr(a.Damping)
		a.BreakStrain = clonePtr(a.BreakStrain)
		out.Adhesion = &a
	}
	out.ChildA = m.ChildA.clone()
	out.ChildB = m.ChildB.clone()
	return out
}

func (c *RawChild) clone() *RawChild {
	if c == nil {
		return nil
	}
	return &RawChild{
		Mode:         clonePtr(c.Mode),
		Orientation:  clonePtr(c.Orientation),
		KeepAdhesion: clonePtr(c.KeepAdhesion),
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
