package division

import (
	"fmt"
	"math"

	"github.com/san-kum/cellsim/internal/adhesion"
	"github.com/san-kum/cellsim/internal/cells"
	"github.com/san-kum/cellsim/internal/genome"
)

// DeathPolicy decides whether a cell is removed at the start of its update.
type DeathPolicy interface {
	Name() string
	Dies(c cells.Cell, m genome.Mode) bool
}

type NoDeath struct{}

func (NoDeath) Name() string                      { return "none" }
func (NoDeath) Dies(cells.Cell, genome.Mode) bool { return false }

// MaxAge kills cells whose age since their last division exceeds Age.
type MaxAge struct {
	Age float64
}

func (p MaxAge) Name() string { return "max_age" }

func (p MaxAge) Dies(c cells.Cell, _ genome.Mode) bool {
	return p.Age > 0 && c.Age > p.Age
}

// Starvation kills cells whose mass fell below MinMass.
type Starvation struct {
	MinMass float64
}

func (p Starvation) Name() string { return "starvation" }

func (p Starvation) Dies(c cells.Cell, _ genome.Mode) bool {
	return c.Mass < p.MinMass
}

// NewDeathPolicy builds a policy by name. threshold is the age or mass limit
// of the chosen policy.
func NewDeathPolicy(name string, threshold float64) (DeathPolicy, error) {
	switch name {
	case "", "none":
		return NoDeath{}, nil
	case "max_age":
		if !(threshold > 0) {
			return nil, fmt.Errorf("max_age threshold must be positive, got %v", threshold)
		}
		return MaxAge{Age: threshold}, nil
	case "starvation":
		if !(threshold >= 0) || math.IsInf(threshold, 0) {
			return nil, fmt.Errorf("starvation threshold must be finite and non-negative, got %v", threshold)
		}
		return Starvation{MinMass: threshold}, nil
	default:
		return nil, fmt.Errorf("unknown death policy %q", name)
	}
}

// Limits reports each live cell's max_adhesions from its current mode in gen.
func Limits(st *cells.Store, gen *genome.Genome) adhesion.Limits {
	return adhesion.LimitFunc(func(id cells.CellID) (int, error) {
		c, err := st.Get(id)
		if err != nil {
			return 0, err
		}
		if c.Mode < 0 || c.Mode >= gen.Len() {
			return 0, fmt.Errorf("cell %d has mode %d outside genome", id, c.Mode)
		}
		return gen.ModeAt(c.Mode).MaxAdhesions, nil
	})
}
