package physics

import (
	"math"
	"math/rand"
	"testing"

	"github.com/san-kum/cellsim/internal/adhesion"
	"github.com/san-kum/cellsim/internal/cells"
	"github.com/san-kum/cellsim/internal/compute"
	"github.com/san-kum/cellsim/internal/geom"
)

func noCollisions() Params {
	p := DefaultParams()
	p.CollisionStiffness = 0
	return p
}

func pair(t *testing.T, gap float64, massA, massB float64) (*cells.Store, *adhesion.Graph, cells.CellID, cells.CellID) {
	t.Helper()
	st := cells.New(0)
	a, _ := st.Spawn(geom.V(0, 0, 0), geom.Identity, 0, massA)
	b, _ := st.Spawn(geom.V(gap, 0, 0), geom.Identity, 0, massB)
	return st, adhesion.New(nil), a, b
}

func TestBondForce_EqualAndOpposite(t *testing.T) {
	st, g, a, b := pair(t, 3, 1, 1)
	g.Bond(a, b, adhesion.Spring{RestLength: 2, Stiffness: 10, Damping: 1})

	s := NewSolver(noCollisions(), compute.Serial{})
	out, stats := s.Step(st, g.Snapshot(), 0.01)

	ia, _ := st.Slot(a)
	ib, _ := st.Slot(b)
	if out.Velocity[ia] != out.Velocity[ib].Neg() {
		t.Errorf("expected opposite velocities, got %v and %v", out.Velocity[ia], out.Velocity[ib])
	}
	if out.Velocity[ia].X <= 0 {
		t.Errorf("stretched bond should pull a towards b, got %v", out.Velocity[ia])
	}
	if stats.Bonds != 1 {
		t.Errorf("expected 1 bond, got %d", stats.Bonds)
	}
}

func TestBondForce_MomentumConserved(t *testing.T) {
	st, g, a, b := pair(t, 1, 1, 4)
	g.Bond(a, b, adhesion.Spring{RestLength: 2, Stiffness: 25})

	s := NewSolver(noCollisions(), compute.Serial{})
	out, _ := s.Step(st, g.Snapshot(), 0.01)

	ia, _ := st.Slot(a)
	ib, _ := st.Slot(b)
	p := out.Velocity[ia].Scale(1).Add(out.Velocity[ib].Scale(4))
	if p.Len() > 1e-12 {
		t.Errorf("expected zero net momentum, got %v", p)
	}
	if out.Velocity[ia].X >= 0 {
		t.Errorf("compressed bond should push a away from b, got %v", out.Velocity[ia])
	}
}

func TestStep_DoesNotWriteInput(t *testing.T) {
	st, g, a, b := pair(t, 3, 1, 1)
	g.Bond(a, b, adhesion.Spring{RestLength: 1, Stiffness: 10})
	_ = st.Update(a, func(c *cells.Cell) { c.Velocity = geom.V(1, 0, 0) })

	s := NewSolver(DefaultParams(), compute.Serial{})
	out, _ := s.Step(st, g.Snapshot(), 0.1)

	c, _ := st.Get(a)
	if c.Position != geom.V(0, 0, 0) || c.Velocity != geom.V(1, 0, 0) {
		t.Errorf("input store was modified: %+v", c)
	}
	ia, _ := st.Slot(a)
	if out.Position[ia] == c.Position {
		t.Error("expected the output frame to move the cell")
	}
}

func TestCollision_SeparatesUnbonded(t *testing.T) {
	st, g, a, b := pair(t, 1, 1, 1)
	p := DefaultParams()
	p.Damping = 0

	s := NewSolver(p, compute.Serial{})
	out, stats := s.Step(st, g.Snapshot(), 0.01)

	ia, _ := st.Slot(a)
	ib, _ := st.Slot(b)
	before := 1.0
	after := out.Position[ia].Dist(out.Position[ib])
	if after <= before {
		t.Errorf("expected overlap to shrink, distance %v -> %v", before, after)
	}
	if stats.Contacts != 1 {
		t.Errorf("expected 1 contact, got %d", stats.Contacts)
	}
	mid := out.Position[ia].Add(out.Position[ib]).Scale(0.5)
	if math.Abs(mid.X-0.5) > 1e-12 {
		t.Errorf("equal masses should separate symmetrically, midpoint %v", mid)
	}
	if out.Velocity[ia] != (geom.Vec3{}) {
		t.Errorf("collision response must be positional, got velocity %v", out.Velocity[ia])
	}
}

func TestCollision_IgnoresBondedPairs(t *testing.T) {
	st, g, a, b := pair(t, 1, 1, 1)
	g.Bond(a, b, adhesion.Spring{RestLength: 1, Stiffness: 0})

	s := NewSolver(DefaultParams(), compute.Serial{})
	out, stats := s.Step(st, g.Snapshot(), 0.01)

	ia, _ := st.Slot(a)
	ib, _ := st.Slot(b)
	if d := out.Position[ia].Dist(out.Position[ib]); d != 1 {
		t.Errorf("bonded pair should not be separated, distance %v", d)
	}
	if stats.Contacts != 0 {
		t.Errorf("expected no contacts, got %d", stats.Contacts)
	}
}

func TestGuards(t *testing.T) {
	tests := []struct {
		name  string
		gap   float64
		massA float64
		bond  bool
	}{
		{"zero mass", 3, 0, true},
		{"coincident bonded", 0, 1, true},
		{"coincident unbonded", 0, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, g, a, b := pair(t, tt.gap, tt.massA, 1)
			if tt.bond {
				g.Bond(a, b, adhesion.Spring{RestLength: 0, Stiffness: 10})
			}
			s := NewSolver(DefaultParams(), compute.Serial{})
			out, stats := s.Step(st, g.Snapshot(), 0.01)

			for i := 0; i < out.Len(); i++ {
				if !out.Position[i].IsFinite() || !out.Velocity[i].IsFinite() {
					t.Fatalf("non-finite output at slot %d", i)
				}
			}
			if stats.Guards == 0 {
				t.Error("expected a guard activation")
			}
		})
	}
}

func TestBrokenBonds(t *testing.T) {
	st, g, a, b := pair(t, 3, 1, 1)
	weak, _ := g.Bond(a, b, adhesion.Spring{RestLength: 1, CanBreak: true, BreakStrain: 0.5})

	s := NewSolver(noCollisions(), compute.Serial{})
	_, stats := s.Step(st, g.Snapshot(), 0.01)
	if len(stats.Broken) != 1 || stats.Broken[0] != weak {
		t.Errorf("expected bond %d to break, got %v", weak, stats.Broken)
	}
}

func randomColony(n int) (*cells.Store, *adhesion.Graph) {
	r := rand.New(rand.NewSource(7))
	st := cells.New(0)
	g := adhesion.New(nil)
	var ids []cells.CellID
	for i := 0; i < n; i++ {
		p := geom.V(r.Float64()*10, r.Float64()*10, r.Float64()*10)
		id, _ := st.Spawn(p, geom.Identity, 0, 0.2+r.Float64())
		ids = append(ids, id)
	}
	for i := 1; i < n; i += 2 {
		g.Bond(ids[i-1], ids[i], adhesion.Spring{RestLength: 1, Stiffness: 20, Damping: 0.5})
	}
	_ = st.Kill(ids[n/2])
	return st, g
}

func TestDeterministicAcrossWorkers(t *testing.T) {
	st, g := randomColony(300)
	top := g.Snapshot()

	serial := NewSolver(DefaultParams(), compute.Serial{})
	parallel := NewSolver(DefaultParams(), compute.NewCPUBackend(4).WithMinChunk(1))

	a, sa := serial.Step(st, top, 0.02)
	b, sb := parallel.Step(st, top, 0.02)

	for i := 0; i < a.Len(); i++ {
		if a.Position[i] != b.Position[i] || a.Velocity[i] != b.Velocity[i] {
			t.Fatalf("slot %d differs: %v vs %v", i, a.Position[i], b.Position[i])
		}
	}
	if sa.KineticEnergy != sb.KineticEnergy || sa.Contacts != sb.Contacts {
		t.Errorf("stats differ: %+v vs %+v", sa, sb)
	}
}

func TestRadius(t *testing.T) {
	p := DefaultParams()
	tests := []struct {
		mass float64
		want float64
	}{
		{1, 1},
		{8, 2},
		{0, p.MinRadius},
		{math.NaN(), p.MinRadius},
	}
	for _, tt := range tests {
		if got := p.Radius(tt.mass); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Radius(%v): expected %v, got %v", tt.mass, tt.want, got)
		}
	}
}

func TestGridNeighbors(t *testing.T) {
	g := NewGrid(1)
	pos := []geom.Vec3{geom.V(0.1, 0.1, 0.1), geom.V(0.9, 0.2, 0), geom.V(5, 5, 5), geom.V(math.NaN(), 0, 0)}
	g.Build(pos, nil)

	var got []int
	g.Neighbors(pos[0], func(slot int) bool {
		got = append(got, slot)
		return true
	})
	if len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("expected slots [0 1], got %v", got)
	}
}

func TestStiffBond_LargeStepStaysBounded(t *testing.T) {
	tests := []struct {
		name        string
		maxSubsteps int
		soft        bool
	}{
		{"substepped", 0, false},
		{"softened", 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, g, a, b := pair(t, 3, 1, 1)
			g.Bond(a, b, adhesion.Spring{RestLength: 2, Stiffness: 50, Damping: 2})
			p := noCollisions()
			p.MaxSubsteps = tt.maxSubsteps
			s := NewSolver(p, compute.Serial{})
			top := g.Snapshot()

			stored := 0.5 * 50 * 1.0
			var stats Stats
			for step := 0; step < 40; step++ {
				var out *Frame
				out, stats = s.Step(st, top, 1)
				st.SetMotion(out.Position, out.Velocity, out.Orientation)
				s.Release(out)
				if stats.KineticEnergy > stored {
					t.Fatalf("step %d: kinetic energy %v exceeds stored energy %v", step, stats.KineticEnergy, stored)
				}
			}
			if tt.soft && !(stats.Softening < 1) {
				t.Errorf("expected softened stiffness, got %v", stats.Softening)
			}
			if !tt.soft && (stats.Substeps < 2 || stats.Softening != 1) {
				t.Errorf("expected substeps without softening, got %d/%v", stats.Substeps, stats.Softening)
			}
			ca, _ := st.Get(a)
			cb, _ := st.Get(b)
			if d := ca.Position.Dist(cb.Position); math.Abs(d-2) > 0.1 {
				t.Errorf("expected the bond to settle near its rest length, got %v", d)
			}
		})
	}
}

func TestSubsteps_SmallStepUnchanged(t *testing.T) {
	st, g, a, b := pair(t, 3, 1, 1)
	g.Bond(a, b, adhesion.Spring{RestLength: 2, Stiffness: 10})
	s := NewSolver(noCollisions(), compute.Serial{})
	_, stats := s.Step(st, g.Snapshot(), 0.01)
	if stats.Substeps != 1 || stats.Softening != 1 {
		t.Errorf("expected a single full-strength step, got %d/%v", stats.Substeps, stats.Softening)
	}
}

func TestGridKey_Saturates(t *testing.T) {
	g := NewGrid(1)
	tests := []struct {
		p    geom.Vec3
		want binKey
	}{
		{geom.V(1.5, -0.5, 0), binKey{1, -1, 0}},
		{geom.V(1e30, -1e30, 0), binKey{binLimit, -binLimit, 0}},
		{geom.V(3e9, 0, -3e9), binKey{binLimit, 0, -binLimit}},
	}
	for _, tt := range tests {
		if got := g.key(tt.p); got != tt.want {
			t.Errorf("key(%v): expected %v, got %v", tt.p, tt.want, got)
		}
	}

	pos := []geom.Vec3{geom.V(1e30, 0, 0), geom.V(-1e30, 0, 0)}
	g.Build(pos, nil)
	var got []int
	g.Neighbors(pos[0], func(slot int) bool {
		got = append(got, slot)
		return true
	})
	if len(got) != 1 || got[0] != 0 {
		t.Errorf("far cells must stay in separate bins, got %v", got)
	}
}
