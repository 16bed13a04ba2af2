package metrics

import (
	"math"

	"github.com/san-kum/cellsim/internal/division"
	"github.com/san-kum/cellsim/internal/sim"
)

type PeakPopulation struct {
	name string
	peak int
}

func NewPeakPopulation() *PeakPopulation {
	return &PeakPopulation{name: "peak_population"}
}

func (p *PeakPopulation) Name() string { return p.name }

func (p *PeakPopulation) Observe(r sim.StepReport) {
	if r.Population > p.peak {
		p.peak = r.Population
	}
}

func (p *PeakPopulation) Value() float64 { return float64(p.peak) }

func (p *PeakPopulation) Reset() { p.peak = 0 }

// EventCount counts scheduler events of one kind.
type EventCount struct {
	name  string
	kind  division.EventKind
	count int
}

func NewEventCount(kind division.EventKind) *EventCount {
	return &EventCount{name: kind.String() + "s", kind: kind}
}

func (e *EventCount) Name() string { return e.name }

func (e *EventCount) Observe(r sim.StepReport) {
	for _, ev := range r.Events {
		if ev.Kind == e.kind {
			e.count++
		}
	}
}

func (e *EventCount) Value() float64 { return float64(e.count) }

func (e *EventCount) Reset() { e.count = 0 }

type MeanKineticEnergy struct {
	name    string
	total   float64
	samples int
}

func NewMeanKineticEnergy() *MeanKineticEnergy {
	return &MeanKineticEnergy{name: "mean_kinetic_energy"}
}

func (m *MeanKineticEnergy) Name() string { return m.name }

func (m *MeanKineticEnergy) Observe(r sim.StepReport) {
	m.total += r.Physics.KineticEnergy
	m.samples++
}

func (m *MeanKineticEnergy) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.total / float64(m.samples)
}

func (m *MeanKineticEnergy) Reset() {
	m.total = 0
	m.samples = 0
}

// Stability is the fraction of steps that needed no numeric guard and kept
// every cell below the speed threshold.
type Stability struct {
	name       string
	maxSpeed   float64
	violations int
	samples    int
}

func NewStability(maxSpeed float64) *Stability {
	return &Stability{name: "stability", maxSpeed: maxSpeed}
}

func (s *Stability) Name() string { return s.name }

func (s *Stability) Observe(r sim.StepReport) {
	s.samples++
	if r.Physics.Guards > 0 || r.Physics.MaxSpeed > s.maxSpeed || math.IsNaN(r.Physics.MaxSpeed) {
		s.violations++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}

// MassDrift tracks the largest relative change in total mass between
// consecutive steps, which for a colony without growth should stay near zero.
type MassDrift struct {
	name     string
	last     float64
	maxDrift float64
	samples  int
}

func NewMassDrift() *MassDrift {
	return &MassDrift{name: "mass_drift"}
}

func (m *MassDrift) Name() string { return m.name }

func (m *MassDrift) Observe(r sim.StepReport) {
	if m.samples > 0 && m.last != 0 {
		drift := math.Abs(r.TotalMass-m.last) / math.Abs(m.last)
		m.maxDrift = math.Max(m.maxDrift, drift)
	}
	m.last = r.TotalMass
	m.samples++
}

func (m *MassDrift) Value() float64 { return m.maxDrift }

func (m *MassDrift) Reset() {
	m.last = 0
	m.maxDrift = 0
	m.samples = 0
}

// Standard returns the metrics attached to every CLI run.
func Standard() []sim.Metric {
	return []sim.Metric{
		NewPeakPopulation(),
		NewEventCount(division.EventDivision),
		NewEventCount(division.EventDeath),
		NewEventCount(division.EventBondBroken),
		NewMeanKineticEnergy(),
		NewStability(100),
	}
}
