package genome

import (
	"fmt"
	"math"
	"sort"
)

// Live-tunable mode fields accepted by WithParam.
const (
	ParamSplitMass       = "split_mass"
	ParamSplitInterval   = "split_interval"
	ParamSplitRatio      = "split_ratio"
	ParamMaxSplits       = "max_splits"
	ParamGrowthRate      = "growth_rate"
	ParamMaxMass         = "max_mass"
	ParamMaxAdhesions    = "max_adhesions"
	ParamMinAdhesions    = "min_adhesions"
	ParamMakeAdhesion    = "make_adhesion"
	ParamStiffness       = "stiffness"
	ParamDamping         = "damping"
	ParamRestLengthScale = "rest_length_scale"
	ParamChildAMode      = "child_a_mode"
	ParamChildBMode      = "child_b_mode"
)

var paramSetters = map[string]func(m *RawMode, v float64) error{
	ParamSplitMass:     func(m *RawMode, v float64) error { m.SplitMass = v; return nil },
	ParamSplitInterval: func(m *RawMode, v float64) error { m.SplitInterval = v; return nil },
	ParamSplitRatio:    func(m *RawMode, v float64) error { m.SplitRatio = &v; return nil },
	ParamGrowthRate:    func(m *RawMode, v float64) error { m.GrowthRate = v; return nil },
	ParamMaxMass:       func(m *RawMode, v float64) error { m.MaxMass = v; return nil },
	ParamMaxSplits: func(m *RawMode, v float64) error {
		n, err := integral(v)
		m.MaxSplits = &n
		return err
	},
	ParamMaxAdhesions: func(m *RawMode, v float64) error {
		n, err := integral(v)
		m.MaxAdhesions = n
		return err
	},
	ParamMinAdhesions: func(m *RawMode, v float64) error {
		n, err := integral(v)
		m.MinAdhesions = n
		return err
	},
	ParamMakeAdhesion: func(m *RawMode, v float64) error {
		b := v != 0
		m.MakeAdhesion = &b
		return nil
	},
	ParamStiffness: func(m *RawMode, v float64) error {
		adhesion(m).Stiffness = &v
		return nil
	},
	ParamDamping: func(m *RawMode, v float64) error {
		adhesion(m).Damping = &v
		return nil
	},
	ParamRestLengthScale: func(m *RawMode, v float64) error {
		adhesion(m).RestLengthScale = &v
		return nil
	},
	ParamChildAMode: func(m *RawMode, v float64) error {
		n, err := integral(v)
		child(&m.ChildA).Mode = &n
		return err
	},
	ParamChildBMode: func(m *RawMode, v float64) error {
		n, err := integral(v)
		child(&m.ChildB).Mode = &n
		return err
	},
}

// Params lists the field names WithParam understands.
func Params() []string {
	names := make([]string, 0, len(paramSetters))
	for k := range paramSetters {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// WithParam returns a validated copy of g with one mode field changed. g is
// left untouched, so cells holding the old genome keep a consistent view.
func (g *Genome) WithParam(mode int, field string, value float64) (*Genome, error) {
	if mode < 0 || mode >= len(g.modes) {
		return nil, &ValidationError{Problems: []string{fmt.Sprintf("mode index %d out of range [0,%d)", mode, len(g.modes))}}
	}
	set, ok := paramSetters[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParam, field)
	}
	raw := g.Raw()
	if err := set(&raw.Modes[mode], value); err != nil {
		return nil, &ValidationError{Problems: []string{fmt.Sprintf("%s: %v", field, err)}}
	}
	return Load(raw)
}

func integral(v float64) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, fmt.Errorf("expected an integer, got %v", v)
	}
	return int(v), nil
}

func adhesion(m *RawMode) *RawAdhesion {
	if m.Adhesion == nil {
		m.Adhesion = &RawAdhesion{}
	}
	return m.Adhesion
}

func child(c **RawChild) *RawChild {
	if *c == nil {
		*c = &RawChild{}
	}
	return *c
}

// Param reads the current value of a tunable field from a built mode.
func (m Mode) Param(field string) (float64, error) {
	b2f := func(b bool) float64 {
		if b {
			return 1
		}
		return 0
	}
	switch field {
	case ParamSplitMass:
		return m.SplitMass, nil
	case ParamSplitInterval:
		return m.SplitInterval, nil
	case ParamSplitRatio:
		return m.SplitRatio, nil
	case ParamMaxSplits:
		return float64(m.MaxSplits), nil
	case ParamGrowthRate:
		return m.GrowthRate, nil
	case ParamMaxMass:
		return m.MaxMass, nil
	case ParamMaxAdhesions:
		return float64(m.MaxAdhesions), nil
	case ParamMinAdhesions:
		return float64(m.MinAdhesions), nil
	case ParamMakeAdhesion:
		return b2f(m.MakeAdhesion), nil
	case ParamStiffness:
		return m.Adhesion.Stiffness, nil
	case ParamDamping:
		return m.Adhesion.Damping, nil
	case ParamRestLengthScale:
		return m.Adhesion.RestLengthScale, nil
	case ParamChildAMode:
		return float64(m.ChildA.Mode), nil
	case ParamChildBMode:
		return float64(m.ChildB.Mode), nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownParam, field)
}

// Discrete reports whether field only accepts whole numbers.
func Discrete(field string) bool {
	switch field {
	case ParamMaxSplits, ParamMaxAdhesions, ParamMinAdhesions, ParamMakeAdhesion, ParamChildAMode, ParamChildBMode:
		return true
	}
	return false
}
