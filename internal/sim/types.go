package sim

import (
	"log/slog"

	"github.com/san-kum/cellsim/internal/adhesion"
	"github.com/san-kum/cellsim/internal/cells"
	"github.com/san-kum/cellsim/internal/division"
	"github.com/san-kum/cellsim/internal/geom"
	"github.com/san-kum/cellsim/internal/physics"
)

type Config struct {
	// Capacity bounds the live population; zero is unbounded.
	Capacity int
	// RootMass is the mass given to cells created by SpawnRoot.
	RootMass float64
	Solver   physics.Params
	Death    division.DeathPolicy
	Logger   *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		Solver: physics.DefaultParams(),
		Death:  division.NoDeath{},
	}
}

// CellView is the per-cell record handed to renderers.
type CellView struct {
	ID          cells.CellID `json:"id"`
	Parent      cells.CellID `json:"parent"`
	Position    geom.Vec3    `json:"position"`
	Velocity    geom.Vec3    `json:"velocity"`
	Orientation geom.Quat    `json:"orientation"`
	Color       geom.Vec3    `json:"color"`
	Radius      float64      `json:"radius"`
	Mass        float64      `json:"mass"`
	Age         float64      `json:"age"`
	Mode        int          `json:"mode"`
	Splits      int          `json:"splits"`
	Bonds       int          `json:"bonds"`
}

type Link struct {
	Bond adhesion.BondID `json:"bond"`
	A    cells.CellID    `json:"a"`
	B    cells.CellID    `json:"b"`
}

// Snapshot is a read-only copy of one committed generation. Cells and links
// are in ascending id order.
type Snapshot struct {
	Step  int        `json:"step"`
	Time  float64    `json:"time"`
	Cells []CellView `json:"cells"`
	Links []Link     `json:"links"`
}

// StepReport describes a committed step.
type StepReport struct {
	Step       int
	Time       float64
	Dt         float64
	Population int
	Bonds      int
	TotalMass  float64
	Divisions  int
	Deaths     int
	Physics    physics.Stats
	Events     []division.Event
}

type Metric interface {
	Name() string
	Observe(r StepReport)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(r StepReport)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(r StepReport)

func (f ObserverFunc) OnStep(r StepReport) { f(r) }

type Result struct {
	StepsTaken int
	Times      []float64
	Population []int
	Bonds      []int
	Energy     []float64
	Mass       []float64
	Events     []division.Event
	Metrics    map[string]float64
	Errors     []error
}
