package physics

import (
	"math"

	"github.com/san-kum/cellsim/internal/adhesion"
	"github.com/san-kum/cellsim/internal/cells"
	"github.com/san-kum/cellsim/internal/compute"
	"github.com/san-kum/cellsim/internal/geom"
)

const minBondLength = 1e-12

// Stats summarise one solver pass.
type Stats struct {
	Bonds         int
	Contacts      int
	Guards        int
	KineticEnergy float64
	MaxSpeed      float64
	// Substeps is the number of bond integration substeps taken.
	Substeps int
	// Softening is the factor applied to bond stiffness when even
	// MaxSubsteps could not resolve the stiffest bond; 1 means none.
	Softening float64
	// Broken lists bonds whose strain exceeded their break limit, in
	// ascending id order.
	Broken []adhesion.BondID
}

// Solver advances cell motion by one step. It reads the committed store and
// a frozen topology and writes a fresh Frame; its inputs are never modified.
type Solver struct {
	params  Params
	backend compute.Backend
	pool    *FramePool
	grid    *Grid

	radius  []float64
	invMass []float64
	corr    []geom.Vec3
	guards  []int32
	touches []int32
}

func NewSolver(p Params, backend compute.Backend) *Solver {
	if backend == nil {
		backend = compute.New(p.Workers)
	}
	return &Solver{
		params:  p.Normalize(),
		backend: backend,
		pool:    NewFramePool(),
		grid:    NewGrid(1),
	}
}

func (s *Solver) Params() Params { return s.params }

// SetParams swaps the parameters used by subsequent steps.
func (s *Solver) SetParams(p Params) { s.params = p.Normalize() }

func (s *Solver) Backend() compute.Backend { return s.backend }

// Release hands a frame back to the solver's pool once its contents have
// been copied out.
func (s *Solver) Release(f *Frame) { s.pool.Put(f) }

// Step integrates every live cell of st over dt. Bond forces use the
// snapshot top, collisions exclude bonded pairs of the same snapshot.
func (s *Solver) Step(st *cells.Store, top *adhesion.Topology, dt float64) (*Frame, Stats) {
	col := st.Columns()
	n := len(col.IDs)
	out := s.pool.Get(n)
	s.prepare(col)

	sub, kScale, cScale := s.substeps(st, top, col, dt)
	h := dt / float64(sub)

	// Pass 1: bond forces and semi-implicit Euler, repeated sub times. The
	// buffers alternate so the last substep lands in out and the store
	// columns are only read.
	scratch := s.pool.Get(n)
	damp := math.Exp(-s.params.Damping * h)
	srcPos, srcVel := col.Position, col.Velocity
	for k := 0; k < sub; k++ {
		dst := out
		if (sub-1-k)%2 == 1 {
			dst = scratch
		}
		s.backend.ParallelFor(n, func(start, end int) {
			for i := start; i < end; i++ {
				if !col.Alive[i] {
					dst.Position[i] = col.Position[i]
					dst.Velocity[i] = col.Velocity[i]
					continue
				}
				force := s.bondForce(st, top, col, srcPos, srcVel, i, kScale, cScale)
				v := srcVel[i].AddScaled(force, s.invMass[i]*h).Scale(damp)
				p := srcPos[i].AddScaled(v, h)
				if !p.IsFinite() || !v.IsFinite() {
					p, v = srcPos[i], geom.Vec3{}
					s.guards[i]++
				}
				dst.Position[i] = p
				dst.Velocity[i] = v
			}
		})
		srcPos, srcVel = dst.Position, dst.Velocity
	}
	s.pool.Put(scratch)
	for i := range col.IDs {
		out.Orientation[i] = col.Orientation[i]
		if col.Alive[i] {
			out.Orientation[i] = out.Orientation[i].Normalize()
		}
	}

	// Pass 2: collision correction on the integrated positions.
	if s.params.CollisionStiffness > 0 {
		s.grid.size = s.cellSize()
		s.grid.Build(out.Position, func(i int) bool { return !col.Alive[i] })
		s.backend.ParallelFor(n, func(start, end int) {
			for i := start; i < end; i++ {
				if col.Alive[i] {
					s.corr[i] = s.separation(top, col, out, i)
				}
			}
		})
		s.backend.ParallelFor(n, func(start, end int) {
			for i := start; i < end; i++ {
				if !col.Alive[i] {
					continue
				}
				p := out.Position[i].Add(s.corr[i])
				if p.IsFinite() {
					out.Position[i] = p
				} else {
					s.guards[i]++
				}
			}
		})
	}

	stats := s.collect(st, top, col, out)
	stats.Substeps = sub
	stats.Softening = kScale
	return out, stats
}

// substeps picks the substep count that keeps semi-implicit Euler stable for
// the stiffest bond network in the colony. The bound comes from the row sums
// of the mass-scaled stiffness and damping matrices: every mode then has
// h*omega <= 1 and h*gamma <= 1. When MaxSubsteps is not enough, stiffness and
// bond damping are scaled down until the bound holds at the capped count.
func (s *Solver) substeps(st *cells.Store, top *adhesion.Topology, col cells.Columns, dt float64) (n int, kScale, cScale float64) {
	var lamK, lamC float64
	for i, id := range col.IDs {
		if !col.Alive[i] {
			continue
		}
		var k, c float64
		for _, e := range top.Incident(id) {
			b := top.Bond(e)
			if _, ok := st.Slot(b.Other(id)); !ok {
				continue
			}
			k += math.Max(b.Stiffness, 0)
			c += math.Max(b.Damping, 0)
		}
		lamK = math.Max(lamK, 2*k*s.invMass[i])
		lamC = math.Max(lamC, 2*c*s.invMass[i])
	}

	need := math.Ceil(dt * math.Max(math.Sqrt(lamK), lamC))
	if !(need >= 1) {
		return 1, 1, 1
	}
	limit := s.params.MaxSubsteps
	if need <= float64(limit) {
		return int(need), 1, 1
	}
	h := dt / float64(limit)
	kScale, cScale = 1, 1
	if h*h*lamK > 1 {
		kScale = 1 / (h * h * lamK)
	}
	if h*lamC > 1 {
		cScale = 1 / (h * lamC)
	}
	return limit, kScale, cScale
}

func (s *Solver) prepare(col cells.Columns) {
	n := len(col.IDs)
	s.radius = grow(s.radius, n)
	s.invMass = grow(s.invMass, n)
	s.corr = grow(s.corr, n)
	s.guards = grow(s.guards, n)
	s.touches = grow(s.touches, n)
	for i := 0; i < n; i++ {
		s.corr[i] = geom.Vec3{}
		s.guards[i] = 0
		s.touches[i] = 0
		m := col.Mass[i]
		if !(m >= s.params.MinMass) {
			m = s.params.MinMass
			if col.Alive[i] {
				s.guards[i]++
			}
		}
		s.invMass[i] = 1 / m
		s.radius[i] = s.params.Radius(m)
	}
}

// bondForce sums the spring and damper forces of every bond on slot i. The
// partner evaluates the same expression with the bond vector negated, which
// yields the exact negation, so each bond applies equal and opposite forces.
func (s *Solver) bondForce(st *cells.Store, top *adhesion.Topology, col cells.Columns, pos, vel []geom.Vec3, i int, kScale, cScale float64) geom.Vec3 {
	id := col.IDs[i]
	var f geom.Vec3
	for _, k := range top.Incident(id) {
		b := top.Bond(k)
		j, ok := st.Slot(b.Other(id))
		if !ok {
			continue
		}
		d := pos[j].Sub(pos[i])
		l := d.Len()
		if !(l > minBondLength) {
			s.guards[i]++
			continue
		}
		dir := d.Scale(1 / l)
		rest := math.Max(b.RestLength, 0)
		rel := vel[j].Sub(vel[i]).Dot(dir)
		mag := kScale*b.Stiffness*(l-rest) + cScale*b.Damping*rel
		if math.IsNaN(mag) || math.IsInf(mag, 0) {
			s.guards[i]++
			continue
		}
		f = f.AddScaled(dir, mag)
	}
	return f
}

// separation gathers the positional correction for slot i from every
// overlapping, unbonded neighbour. The overlap is shared by inverse mass.
func (s *Solver) separation(top *adhesion.Topology, col cells.Columns, out *Frame, i int) geom.Vec3 {
	id := col.IDs[i]
	pi := out.Position[i]
	var c geom.Vec3
	s.grid.Neighbors(pi, func(j int) bool {
		if j == i || top.Bonded(id, col.IDs[j]) {
			return true
		}
		d := pi.Sub(out.Position[j])
		dist := d.Len()
		overlap := s.radius[i] + s.radius[j] - dist
		if overlap <= 0 {
			return true
		}
		var n geom.Vec3
		if dist > minBondLength {
			n = d.Scale(1 / dist)
		} else {
			// Coincident centres: push apart along x, lower slot towards -x.
			n = geom.V(1, 0, 0)
			if i < j {
				n = n.Neg()
			}
			s.guards[i]++
		}
		share := s.invMass[i] / (s.invMass[i] + s.invMass[j])
		c = c.AddScaled(n, overlap*share*s.params.CollisionStiffness)
		s.touches[i]++
		return true
	})
	return c
}

func (s *Solver) cellSize() float64 {
	if s.params.CellSize > 0 {
		return s.params.CellSize
	}
	maxR := s.params.MinRadius
	for _, r := range s.radius {
		maxR = math.Max(maxR, r)
	}
	return 2 * maxR
}

func (s *Solver) collect(st *cells.Store, top *adhesion.Topology, col cells.Columns, out *Frame) Stats {
	stats := Stats{Bonds: top.Len()}
	for i := range col.IDs {
		if !col.Alive[i] {
			continue
		}
		stats.Guards += int(s.guards[i])
		stats.Contacts += int(s.touches[i])
		v2 := out.Velocity[i].Len2()
		stats.KineticEnergy += 0.5 * v2 / s.invMass[i]
		stats.MaxSpeed = math.Max(stats.MaxSpeed, math.Sqrt(v2))
	}
	stats.Contacts /= 2

	for k := 0; k < top.Len(); k++ {
		b := top.Bond(k)
		if !b.CanBreak || b.RestLength <= 0 {
			continue
		}
		ia, okA := st.Slot(b.A)
		ib, okB := st.Slot(b.B)
		if !okA || !okB {
			continue
		}
		l := out.Position[ia].Dist(out.Position[ib])
		if math.Abs(l-b.RestLength)/b.RestLength > b.BreakStrain {
			stats.Broken = append(stats.Broken, b.ID)
		}
	}
	return stats
}
