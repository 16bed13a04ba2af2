package config

import (
	"math"
	"sort"

	"github.com/san-kum/cellsim/internal/genome"
	"github.com/san-kum/cellsim/internal/geom"
	"github.com/san-kum/cellsim/internal/physics"
)

func ptr[T any](v T) *T { return &v }

var quarterTurn = geom.AxisAngle(geom.V(0, 0, 1), math.Pi/2)

// Genomes are the built-in genomes addressable by name from a config file.
var Genomes = map[string]genome.RawGenome{
	"default": genome.Default().Raw(),
	"chain": {
		Name: "Chain",
		Modes: []genome.RawMode{{
			Name: "link", Color: geom.V(0.9, 0.6, 0.2),
			SplitMass: 2.0, GrowthRate: 0.25, MaxAdhesions: 2,
			Adhesion: &genome.RawAdhesion{Stiffness: ptr(80.0)},
		}},
	},
	"cluster": {
		Name: "Cluster",
		Modes: []genome.RawMode{{
			Name: "blob", Color: geom.V(0.4, 0.9, 0.5),
			SplitMass: 1.5, GrowthRate: 0.3, MaxAdhesions: 6,
			ChildB: &genome.RawChild{Orientation: &quarterTurn},
		}},
	},
	"alternating": {
		Name: "Alternating",
		Modes: []genome.RawMode{
			{
				Name: "red", Color: geom.V(1, 0.3, 0.3),
				SplitMass: 1.5, GrowthRate: 0.3, MaxAdhesions: 4,
				ChildB: &genome.RawChild{Mode: ptr(1)},
			},
			{
				Name: "blue", Color: geom.V(0.3, 0.4, 1),
				SplitMass: 1.5, GrowthRate: 0.3, MaxAdhesions: 4,
				ChildA: &genome.RawChild{Mode: ptr(0)},
				ChildB: &genome.RawChild{Orientation: &quarterTurn},
			},
		},
	},
	"loner": {
		Name: "Loner",
		Modes: []genome.RawMode{{
			Name: "free", Color: geom.V(0.8, 0.8, 0.8),
			SplitMass: 1.2, GrowthRate: 0.3, MaxAdhesions: 0,
		}},
	},
	"stem": {
		Name: "Stem",
		Modes: []genome.RawMode{
			{
				Name: "stem", Color: geom.V(1, 1, 0.4),
				SplitMass: 1.5, GrowthRate: 0.3, MaxAdhesions: 8,
				SplitRatio: ptr(0.6),
				ChildB:     &genome.RawChild{Mode: ptr(1)},
			},
			{
				Name: "differentiated", Color: geom.V(0.6, 0.3, 0.8),
				GrowthRate: 0.05, MaxMass: 2, MaxAdhesions: 3,
				MaxSplits: ptr(0),
			},
		},
	},
}

// GetGenome builds a built-in genome by name.
func GetGenome(name string) (*genome.Genome, bool) {
	raw, ok := Genomes[name]
	if !ok {
		return nil, false
	}
	return genome.MustLoad(raw), true
}

func ListGenomes() []string {
	names := make([]string, 0, len(Genomes))
	for name := range Genomes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var stiff = physics.Params{Damping: 2.0, CollisionStiffness: 0.9}

var Presets = map[string]map[string]*Config{
	"default": {
		"single": {
			Genome: "default", Dt: 0.1, Steps: 300, RootMass: 1,
			Roots: []geom.Vec3{{}},
		},
		"pair": {
			Genome: "default", Dt: 0.1, Steps: 300, RootMass: 1,
			Roots: []geom.Vec3{{X: -3}, {X: 3}},
		},
	},
	"chain": {
		"filament": {
			Genome: "chain", Dt: 0.05, Steps: 600, RootMass: 1,
			Roots: []geom.Vec3{{}},
		},
		"damped": {
			Genome: "chain", Dt: 0.05, Steps: 600, RootMass: 1,
			Roots: []geom.Vec3{{}}, Solver: stiff,
		},
	},
	"cluster": {
		"colony": {
			Genome: "cluster", Dt: 0.05, Steps: 500, RootMass: 1, Capacity: 512,
			Roots: []geom.Vec3{{}},
		},
		"aging": {
			Genome: "cluster", Dt: 0.05, Steps: 800, RootMass: 1, Capacity: 512,
			Roots: []geom.Vec3{{}},
			Death: DeathConfig{Policy: "max_age", Threshold: 12},
		},
	},
	"alternating": {
		"stripes": {
			Genome: "alternating", Dt: 0.05, Steps: 500, RootMass: 1, Capacity: 256,
			Roots: []geom.Vec3{{}},
		},
	},
	"loner": {
		"gas": {
			Genome: "loner", Dt: 0.05, Steps: 400, RootMass: 1, Capacity: 256,
			Roots: []geom.Vec3{{}},
		},
	},
	"stem": {
		"niche": {
			Genome: "stem", Dt: 0.05, Steps: 600, RootMass: 1, Capacity: 256,
			Roots: []geom.Vec3{{}},
		},
	},
}

// GetPreset returns a copy of the named preset with unset fields filled from
// DefaultConfig.
func GetPreset(genomeName, preset string) *Config {
	genomePresets, ok := Presets[genomeName]
	if !ok {
		return nil
	}
	p, ok := genomePresets[preset]
	if !ok {
		return nil
	}
	cfg := *p
	cfg.Roots = append([]geom.Vec3(nil), p.Roots...)
	if cfg.Solver == (physics.Params{}) {
		cfg.Solver = physics.DefaultParams()
	}
	cfg.Solver = cfg.Solver.Normalize()
	if cfg.History.Every == 0 {
		cfg.History.Every = DefaultHistoryEvery
	}
	if cfg.Death.Policy == "" {
		cfg.Death.Policy = "none"
	}
	return &cfg
}

func ListPresets(genomeName string) []string {
	genomePresets, ok := Presets[genomeName]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(genomePresets))
	for name := range genomePresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
