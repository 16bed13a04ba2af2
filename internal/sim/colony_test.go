package sim_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/cellsim/internal/adhesion"
	"github.com/san-kum/cellsim/internal/cells"
	"github.com/san-kum/cellsim/internal/genome"
	"github.com/san-kum/cellsim/internal/geom"
	"github.com/san-kum/cellsim/internal/sim"
)

func singleMode(m genome.RawMode) *genome.Genome {
	return genome.MustLoad(genome.RawGenome{Name: "suite", Modes: []genome.RawMode{m}})
}

func degrees(s sim.Snapshot) map[cells.CellID]int {
	d := make(map[cells.CellID]int)
	for _, l := range s.Links {
		d[l.A]++
		d[l.B]++
	}
	return d
}

var _ = Describe("World", func() {
	var (
		ctx context.Context
		cfg sim.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = sim.DefaultConfig()
	})

	Describe("division", func() {
		It("divides exactly when mass first reaches split_mass", func() {
			cfg.RootMass = 0.6
			w, err := sim.New(singleMode(genome.RawMode{Name: "m", SplitMass: 1.0, GrowthRate: 0.1, MaxAdhesions: 6}), cfg)
			Expect(err).NotTo(HaveOccurred())
			_, err = w.SpawnRoot(nil, geom.Vec3{})
			Expect(err).NotTo(HaveOccurred())

			for i := 1; i <= 3; i++ {
				r, err := w.Step(ctx, 1)
				Expect(err).NotTo(HaveOccurred())
				Expect(r.Divisions).To(BeZero(), "step %d", i)
			}
			r, err := w.Step(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Divisions).To(Equal(1))
			Expect(r.Population).To(Equal(2))
			Expect(r.TotalMass).To(BeNumerically("~", 1.0, 1e-9))
			Expect(r.Bonds).To(Equal(1))
		})

		It("never divides when both triggers are disabled", func() {
			cfg.RootMass = 1
			w, err := sim.New(singleMode(genome.RawMode{Name: "inert", GrowthRate: 1, MaxAdhesions: 2}), cfg)
			Expect(err).NotTo(HaveOccurred())
			w.SpawnRoot(nil, geom.Vec3{})

			res, err := w.Run(ctx, 20, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Population).To(HaveEach(1))
			Expect(res.Mass[len(res.Mass)-1]).To(BeNumerically("~", 21, 1e-9))
		})

		It("divides on the interval when split_mass is disabled", func() {
			w, err := sim.New(singleMode(genome.RawMode{Name: "timer", SplitInterval: 2, MaxAdhesions: 6}), cfg)
			Expect(err).NotTo(HaveOccurred())
			w.SpawnRoot(nil, geom.Vec3{})

			res, err := w.Run(ctx, 4, 0.5)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Population).To(Equal([]int{1, 1, 1, 1, 2}))
		})
	})

	Describe("adhesion invariants", func() {
		It("keeps every degree within max_adhesions and the graph symmetric", func() {
			cfg.RootMass = 1
			gen := singleMode(genome.RawMode{Name: "m", SplitMass: 1.5, GrowthRate: 0.4, MaxAdhesions: 3})
			w, err := sim.New(gen, cfg)
			Expect(err).NotTo(HaveOccurred())
			w.SpawnRoot(nil, geom.Vec3{})

			for i := 0; i < 15; i++ {
				_, err := w.Step(ctx, 0.5)
				Expect(err).NotTo(HaveOccurred())

				snap := w.Snapshot()
				deg := degrees(snap)
				for _, c := range snap.Cells {
					Expect(c.Bonds).To(Equal(deg[c.ID]), "cell %d", c.ID)
					Expect(c.Bonds).To(BeNumerically("<=", 3))
				}
			}
			Expect(w.Len()).To(BeNumerically(">", 4))
		})

		It("never bonds in a mode with max_adhesions = 0", func() {
			cfg.RootMass = 1
			w, err := sim.New(singleMode(genome.RawMode{Name: "loner", SplitMass: 1, GrowthRate: 0.5}), cfg)
			Expect(err).NotTo(HaveOccurred())
			w.SpawnRoot(nil, geom.Vec3{})

			res, err := w.Run(ctx, 6, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Bonds).To(HaveEach(0))
			Expect(res.Population[len(res.Population)-1]).To(BeNumerically(">", 1))
		})
	})

	Describe("determinism", func() {
		run := func() sim.Snapshot {
			cfg.RootMass = 1
			w, err := sim.New(genome.Default(), cfg)
			Expect(err).NotTo(HaveOccurred())
			w.SpawnRoot(nil, geom.V(0, 0, 0))
			w.SpawnRoot(nil, geom.V(2.5, 0.5, 0))
			_, err = w.Run(ctx, 120, 0.1)
			Expect(err).NotTo(HaveOccurred())
			return w.Snapshot()
		}

		It("produces identical snapshots from identical inputs", func() {
			a := run()
			b := run()
			Expect(a.Cells).NotTo(BeEmpty())
			Expect(b).To(Equal(a))
		})
	})

	Describe("rollback", func() {
		It("leaves the committed generation visible after an invalid step", func() {
			cfg.RootMass = 1
			w, err := sim.New(genome.Default(), cfg)
			Expect(err).NotTo(HaveOccurred())
			w.SpawnRoot(nil, geom.Vec3{})
			before := w.Snapshot()

			_, err = w.Step(ctx, math.NaN())
			var se *sim.StepError
			Expect(err).To(BeAssignableToTypeOf(se))
			Expect(err).To(MatchError(sim.ErrInvalidDt))
			Expect(w.Snapshot()).To(Equal(before))
		})
	})

	Describe("bond bookkeeping", func() {
		It("reports stale ids as not found after a kill", func() {
			cfg.RootMass = 2
			w, err := sim.New(singleMode(genome.RawMode{Name: "m", SplitMass: 2, MaxAdhesions: 6}), cfg)
			Expect(err).NotTo(HaveOccurred())
			root, _ := w.SpawnRoot(nil, geom.Vec3{})
			_, err = w.Step(ctx, 0.1)
			Expect(err).NotTo(HaveOccurred())

			bonds, err := w.BondsOf(root)
			Expect(err).NotTo(HaveOccurred())
			Expect(bonds).To(HaveLen(1))

			Expect(w.Kill(root)).To(Succeed())
			_, err = w.Cell(root)
			Expect(err).To(MatchError(cells.ErrNotFound))
			Expect(w.Bonds()).To(BeZero())
		})

		It("treats a second unbond as already removed", func() {
			g := adhesion.New(nil)
			id, err := g.Bond(1, 2, adhesion.Spring{RestLength: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Unbond(id)).To(Succeed())
			Expect(g.Unbond(id)).To(MatchError(adhesion.ErrAlreadyRemoved))
			Expect(g.Verify()).To(Succeed())
		})
	})
})
