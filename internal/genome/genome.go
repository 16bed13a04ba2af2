package genome

import "github.com/san-kum/cellsim/internal/geom"

type CellType int

const (
	CellTypeTest CellType = iota
	CellTypePhagocyte
	CellTypeFlagellocyte
	numCellTypes
)

func (c CellType) String() string {
	switch c {
	case CellTypeTest:
		return "test"
	case CellTypePhagocyte:
		return "phagocyte"
	case CellTypeFlagellocyte:
		return "flagellocyte"
	default:
		return "unknown"
	}
}

// AdhesionSettings parameterise the bonds a mode creates on division.
type AdhesionSettings struct {
	RestLengthScale float64
	Stiffness       float64
	Damping         float64
	CanBreak        bool
	BreakStrain     float64
}

// ChildSettings describe one of the two cells leaving a division. Child A is
// the parent itself, child B is the newly spawned cell. The pair forms the
// mode's child mode assignment.
type ChildSettings struct {
	Mode         int
	Orientation  geom.Quat
	KeepAdhesion bool
}

// Mode is one row of the genome's transition table.
type Mode struct {
	Name     string
	Color    geom.Vec3
	CellType CellType

	SplitMass     float64
	SplitInterval float64
	SplitRatio    float64
	MaxSplits     int
	SplitAxis     geom.Vec3

	GrowthRate float64
	MaxMass    float64

	MaxAdhesions int
	MinAdhesions int
	MakeAdhesion bool
	Adhesion     AdhesionSettings

	ChildA ChildSettings
	ChildB ChildSettings
}

// Divides reports whether any division trigger is enabled for the mode.
func (m Mode) Divides() bool {
	return (m.SplitMass > 0 || m.SplitInterval > 0) && m.MaxSplits != 0
}

// Genome is an immutable, validated mode table. Values are shared read-only
// by every cell and by every worker of the parallel pass.
type Genome struct {
	name               string
	initialMode        int
	initialOrientation geom.Quat
	modes              []Mode
	raw                RawGenome
}

func (g *Genome) Name() string                  { return g.name }
func (g *Genome) InitialMode() int              { return g.initialMode }
func (g *Genome) InitialOrientation() geom.Quat { return g.initialOrientation }
func (g *Genome) Len() int                      { return len(g.modes) }

// ModeAt returns the mode at index i. An out of range index is a programming
// error and panics.
func (g *Genome) ModeAt(i int) Mode {
	if i < 0 || i >= len(g.modes) {
		panic("genome: mode index out of range")
	}
	return g.modes[i]
}

// Modes returns a copy of the mode table.
func (g *Genome) Modes() []Mode {
	out := make([]Mode, len(g.modes))
	copy(out, g.modes)
	return out
}

// Raw returns the ingestion form the genome was loaded from, suitable for
// saving or editing and reloading.
func (g *Genome) Raw() RawGenome {
	return g.raw.clone()
}
