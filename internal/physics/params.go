package physics

import (
	"fmt"
	"math"
)

// Params configure the solver. Zero values are replaced by the defaults in
// Normalize.
type Params struct {
	// Damping is the velocity decay rate in 1/s.
	Damping float64 `yaml:"damping" json:"damping"`
	// CollisionStiffness is the fraction of the overlap removed per step.
	CollisionStiffness float64 `yaml:"collision_stiffness" json:"collision_stiffness"`
	RadiusScale        float64 `yaml:"radius_scale" json:"radius_scale"`
	MinRadius          float64 `yaml:"min_radius" json:"min_radius"`
	MinMass            float64 `yaml:"min_mass" json:"min_mass"`
	// CellSize is the grid edge. Zero sizes the grid to the largest diameter.
	CellSize float64 `yaml:"cell_size" json:"cell_size"`
	// MaxSubsteps caps the bond substeps taken per step. Bonds too stiff to
	// resolve within the cap are softened for that step.
	MaxSubsteps int `yaml:"max_substeps" json:"max_substeps"`
	Workers     int `yaml:"workers" json:"workers"`
}

func DefaultParams() Params {
	return Params{
		Damping:            0.5,
		CollisionStiffness: 0.5,
		RadiusScale:        1.0,
		MinRadius:          0.05,
		MinMass:            1e-4,
		MaxSubsteps:        64,
	}
}

// Normalize fills unset fields with defaults.
func (p Params) Normalize() Params {
	d := DefaultParams()
	if p.RadiusScale == 0 {
		p.RadiusScale = d.RadiusScale
	}
	if p.MinRadius == 0 {
		p.MinRadius = d.MinRadius
	}
	if p.MinMass == 0 {
		p.MinMass = d.MinMass
	}
	if p.MaxSubsteps == 0 {
		p.MaxSubsteps = d.MaxSubsteps
	}
	return p
}

func (p Params) Validate() error {
	switch {
	case p.Damping < 0 || math.IsNaN(p.Damping):
		return fmt.Errorf("damping must be non-negative, got %v", p.Damping)
	case p.CollisionStiffness < 0 || p.CollisionStiffness > 1:
		return fmt.Errorf("collision_stiffness must be in [0,1], got %v", p.CollisionStiffness)
	case p.RadiusScale <= 0:
		return fmt.Errorf("radius_scale must be positive, got %v", p.RadiusScale)
	case p.MinRadius <= 0:
		return fmt.Errorf("min_radius must be positive, got %v", p.MinRadius)
	case p.MinMass <= 0:
		return fmt.Errorf("min_mass must be positive, got %v", p.MinMass)
	case p.MaxSubsteps < 0:
		return fmt.Errorf("max_substeps must be non-negative, got %d", p.MaxSubsteps)
	case p.CellSize < 0:
		return fmt.Errorf("cell_size must be non-negative, got %v", p.CellSize)
	}
	return nil
}

// Radius derives the collision radius from mass, treating cells as spheres
// of uniform density.
func (p Params) Radius(mass float64) float64 {
	r := p.RadiusScale * math.Cbrt(math.Max(mass, p.MinMass))
	if !(r >= p.MinRadius) {
		return p.MinRadius
	}
	return r
}
