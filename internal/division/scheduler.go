package division

import (
	"errors"
	"fmt"

	"github.com/san-kum/cellsim/internal/adhesion"
	"github.com/san-kum/cellsim/internal/cells"
	"github.com/san-kum/cellsim/internal/genome"
	"github.com/san-kum/cellsim/internal/geom"
	"github.com/san-kum/cellsim/internal/physics"
)

// Tolerance absorbs binary rounding when a threshold is reached through
// repeated decimal increments (0.6 + 4*0.1 < 1.0 in float64).
const Tolerance = 1e-9

type EventKind int

const (
	EventDivision EventKind = iota
	EventDeath
	EventBondBroken
)

func (k EventKind) String() string {
	switch k {
	case EventDivision:
		return "division"
	case EventDeath:
		return "death"
	case EventBondBroken:
		return "bond_broken"
	default:
		return "unknown"
	}
}

// Event records one structural change made by the scheduler.
type Event struct {
	Kind  EventKind
	Cell  cells.CellID
	Child cells.CellID
	Bond  adhesion.BondID
	// Bonded is false when a division wanted a parent-child bond but either
	// cell was saturated.
	Bonded bool
	Mass   float64
}

// Scheduler runs the sequential pass of a step: death, growth, division and
// bond maintenance. It is not safe for concurrent use.
type Scheduler struct {
	params physics.Params
	death  DeathPolicy
}

func NewScheduler(p physics.Params, death DeathPolicy) *Scheduler {
	if death == nil {
		death = NoDeath{}
	}
	return &Scheduler{params: p.Normalize(), death: death}
}

func (s *Scheduler) Death() DeathPolicy { return s.death }

func (s *Scheduler) SetParams(p physics.Params) { s.params = p.Normalize() }

// Triggered reports whether a cell in mode m has reached a division
// threshold. Disabled triggers (zero) never fire.
func Triggered(c cells.Cell, m genome.Mode) bool {
	byMass := m.SplitMass > 0 && c.Mass >= m.SplitMass-Tolerance
	byAge := m.SplitInterval > 0 && c.Age >= m.SplitInterval-Tolerance
	return byMass || byAge
}

// CanDivide applies the split budget and adhesion gates on top of the
// triggers. Root cells (no parent) are exempt from min_adhesions.
func CanDivide(c cells.Cell, m genome.Mode, degree int) bool {
	if !m.Divides() || !Triggered(c, m) {
		return false
	}
	if m.MaxSplits >= 0 && c.Splits >= m.MaxSplits {
		return false
	}
	if c.Parent != 0 && degree < m.MinAdhesions {
		return false
	}
	return true
}

// Run advances every live cell present at entry in ascending id order.
// Children created during the pass are not advanced until the next step.
// broken names bonds reported by the solver; they are removed first.
func (s *Scheduler) Run(st *cells.Store, g *adhesion.Graph, gen *genome.Genome, dt float64, broken []adhesion.BondID) ([]Event, error) {
	var events []Event
	for _, id := range broken {
		if err := g.Unbond(id); err != nil && !errors.Is(err, adhesion.ErrAlreadyRemoved) {
			return events, err
		}
		events = append(events, Event{Kind: EventBondBroken, Bond: id})
	}

	for _, id := range st.IDs() {
		c, err := st.Get(id)
		if err != nil {
			return events, err
		}
		mode := gen.ModeAt(c.Mode)

		if s.death.Dies(c, mode) {
			if err := st.Kill(id); err != nil {
				return events, err
			}
			events = append(events, Event{Kind: EventDeath, Cell: id, Mass: c.Mass})
			continue
		}

		c.Mass += mode.GrowthRate * dt
		if mode.MaxMass > 0 && c.Mass > mode.MaxMass {
			c.Mass = mode.MaxMass
		}
		c.Age += dt
		if err := st.Update(id, func(dst *cells.Cell) {
			dst.Mass = c.Mass
			dst.Age = c.Age
		}); err != nil {
			return events, err
		}

		if !CanDivide(c, mode, g.Degree(id)) {
			continue
		}
		ev, ok, err := s.divide(st, g, gen, c, mode)
		if err != nil {
			return events, fmt.Errorf("divide cell %d: %w", id, err)
		}
		if ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

// divide splits c into itself (child A) and a new cell (child B). It reports
// ok=false without changes when the population is at capacity.
func (s *Scheduler) divide(st *cells.Store, g *adhesion.Graph, gen *genome.Genome, c cells.Cell, m genome.Mode) (Event, bool, error) {
	ratio := m.SplitRatio
	massA := c.Mass * ratio
	massB := c.Mass - massA
	rA := s.params.Radius(massA)
	rB := s.params.Radius(massB)

	axis := c.Orientation.Rotate(m.SplitAxis.Normalize())
	if axis.IsZero() {
		axis = geom.V(1, 0, 0)
	}
	offset := axis.Scale((rA + rB) / 4)

	child, err := st.Insert(cells.Cell{
		Parent:      c.ID,
		Position:    c.Position.Add(offset),
		Velocity:    c.Velocity,
		Orientation: c.Orientation.Mul(m.ChildB.Orientation).Normalize(),
		Mass:        massB,
		Mode:        m.ChildB.Mode,
	})
	if errors.Is(err, cells.ErrCapacity) {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, err
	}

	if err := st.Update(c.ID, func(dst *cells.Cell) {
		dst.Position = c.Position.Sub(offset)
		dst.Orientation = c.Orientation.Mul(m.ChildA.Orientation).Normalize()
		dst.Mass = massA
		dst.Mode = m.ChildA.Mode
		dst.Age = 0
		dst.Splits++
	}); err != nil {
		return Event{}, false, err
	}

	if err := s.inherit(st, g, c, child, axis, m); err != nil {
		return Event{}, false, err
	}
	if err := trim(g, c.ID, gen.ModeAt(m.ChildA.Mode).MaxAdhesions); err != nil {
		return Event{}, false, err
	}

	ev := Event{Kind: EventDivision, Cell: c.ID, Child: child, Mass: c.Mass}
	if !m.MakeAdhesion {
		return ev, true, nil
	}
	spring := adhesion.Spring{
		RestLength:  m.Adhesion.RestLengthScale * (rA + rB),
		Stiffness:   m.Adhesion.Stiffness,
		Damping:     m.Adhesion.Damping,
		CanBreak:    m.Adhesion.CanBreak,
		BreakStrain: m.Adhesion.BreakStrain,
	}
	bond, err := g.Bond(c.ID, child, spring)
	switch {
	case errors.Is(err, adhesion.ErrCapacityExceeded):
	case err != nil:
		return Event{}, false, err
	default:
		ev.Bond = bond
		ev.Bonded = true
	}
	return ev, true, nil
}

// inherit hands the parent's existing bonds to the child on the positive
// side of the split plane and keeps the rest on the parent, subject to each
// child's keep_adhesion flag. Bonds that cannot move are dropped.
func (s *Scheduler) inherit(st *cells.Store, g *adhesion.Graph, parent cells.Cell, child cells.CellID, axis geom.Vec3, m genome.Mode) error {
	for _, bid := range g.BondsOf(parent.ID) {
		other, err := g.Partner(bid, parent.ID)
		if err != nil {
			return err
		}
		n, err := st.Get(other)
		if err != nil {
			return err
		}
		side := n.Position.Sub(parent.Position).Dot(axis)
		if side > 0 {
			if !m.ChildB.KeepAdhesion {
				if err := g.Unbond(bid); err != nil {
					return err
				}
				continue
			}
			err := g.Rewire(bid, parent.ID, child)
			if errors.Is(err, adhesion.ErrCapacityExceeded) || errors.Is(err, adhesion.ErrDuplicateBond) {
				err = g.Unbond(bid)
			}
			if err != nil {
				return err
			}
			continue
		}
		if !m.ChildA.KeepAdhesion {
			if err := g.Unbond(bid); err != nil {
				return err
			}
		}
	}
	return nil
}

// trim drops bonds above limit, newest first.
func trim(g *adhesion.Graph, id cells.CellID, limit int) error {
	ids := g.BondsOf(id)
	for i := len(ids) - 1; i >= 0 && i >= limit; i-- {
		if err := g.Unbond(ids[i]); err != nil {
			return err
		}
	}
	return nil
}

// TotalMass sums the mass of every live cell.
func TotalMass(st *cells.Store) float64 {
	total := 0.0
	for c := range st.All() {
		total += c.Mass
	}
	return total
}
