package sim

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/san-kum/cellsim/internal/adhesion"
	"github.com/san-kum/cellsim/internal/cells"
	"github.com/san-kum/cellsim/internal/division"
	"github.com/san-kum/cellsim/internal/genome"
	"github.com/san-kum/cellsim/internal/geom"
)

func growingGenome(t *testing.T, splitMass, growth float64, maxAdhesions int) *genome.Genome {
	t.Helper()
	g, err := genome.Load(genome.RawGenome{
		Name: "growing",
		Modes: []genome.RawMode{{
			Name:          "grow",
			SplitMass:     splitMass,
			SplitInterval: math.Inf(1),
			MaxAdhesions:  maxAdhesions,
			GrowthRate:    growth,
		}},
	})
	if err != nil {
		t.Fatalf("load genome: %v", err)
	}
	return g
}

func newWorld(t *testing.T, gen *genome.Genome, rootMass float64) *World {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RootMass = rootMass
	w, err := New(gen, cfg)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	return w
}

func TestScenario_SingleModeSplitsOnStepTwo(t *testing.T) {
	w := newWorld(t, growingGenome(t, 2.0, 0.5, 6), 1.0)
	if _, err := w.SpawnRoot(nil, geom.Vec3{}); err != nil {
		t.Fatalf("spawn root: %v", err)
	}
	ctx := context.Background()

	r1, err := w.Step(ctx, 1)
	if err != nil {
		t.Fatalf("step 1: %v", err)
	}
	if r1.Population != 1 || r1.Divisions != 0 {
		t.Errorf("step 1: expected 1 cell and no division, got %d/%d", r1.Population, r1.Divisions)
	}

	r2, err := w.Step(ctx, 1)
	if err != nil {
		t.Fatalf("step 2: %v", err)
	}
	if r2.Population != 2 || r2.Divisions != 1 {
		t.Fatalf("step 2: expected 2 cells after one division, got %d/%d", r2.Population, r2.Divisions)
	}
	if r2.Bonds != 1 {
		t.Errorf("expected 1 bond, got %d", r2.Bonds)
	}
	for _, c := range w.Snapshot().Cells {
		if c.Mass != 1.0 {
			t.Errorf("cell %d: expected mass 1.0, got %v", c.ID, c.Mass)
		}
	}
}

func TestScenario_LargeStepStaysBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RootMass = 1
	cfg.Capacity = 256
	w, err := New(growingGenome(t, 2.0, 0.5, 6), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.SpawnRoot(nil, geom.Vec3{}); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for step := 1; step <= 20; step++ {
		r, err := w.Step(ctx, 1)
		if err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		if perCell := r.Physics.KineticEnergy / float64(r.Population); perCell > 100 {
			t.Fatalf("step %d: kinetic energy per cell %v", step, perCell)
		}
		if r.Physics.Guards != 0 {
			t.Errorf("step %d: expected no numeric guards, got %d", step, r.Physics.Guards)
		}
		for _, c := range w.Snapshot().Cells {
			if c.Position.Len() > 1e3 {
				t.Fatalf("step %d: cell %d escaped to %v", step, c.ID, c.Position)
			}
		}
	}
	if w.Len() < 64 {
		t.Errorf("expected the colony to keep dividing, got %d cells", w.Len())
	}
}

func TestStep_InvalidDt(t *testing.T) {
	w := newWorld(t, genome.Default(), 1)
	w.SpawnRoot(nil, geom.Vec3{})

	for _, dt := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := w.Step(context.Background(), dt)
		var se *StepError
		if !errors.As(err, &se) || !errors.Is(err, ErrInvalidDt) {
			t.Errorf("dt=%v: expected StepError wrapping ErrInvalidDt, got %v", dt, err)
		}
	}
	if w.StepCount() != 0 {
		t.Errorf("expected no committed steps, got %d", w.StepCount())
	}
}

func TestStep_RollbackOnInvariant(t *testing.T) {
	w := newWorld(t, growingGenome(t, 2.0, 0.5, 6), 1.5)
	w.SpawnRoot(nil, geom.V(1, 2, 3))
	before := w.Snapshot()

	broken := errors.New("asymmetric graph")
	w.check = func(*cells.Store, *adhesion.Graph, *genome.Genome) error { return broken }

	_, err := w.Step(context.Background(), 1)
	var se *StepError
	if !errors.As(err, &se) || se.Step != 1 || !errors.Is(err, broken) {
		t.Fatalf("expected StepError for step 1, got %v", err)
	}
	if after := w.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Errorf("state changed by a rolled back step:\nbefore %+v\nafter  %+v", before, after)
	}

	w.check = verifyGeneration
	if _, err := w.Step(context.Background(), 1); err != nil {
		t.Fatalf("step after rollback: %v", err)
	}
	if w.Len() != 2 {
		t.Errorf("expected the retried step to divide, got %d cells", w.Len())
	}
}

type cancelOnUpdate struct{ cancel context.CancelFunc }

func (p cancelOnUpdate) Name() string { return "cancel" }

func (p cancelOnUpdate) Dies(cells.Cell, genome.Mode) bool {
	p.cancel()
	return false
}

func TestStep_CancelledMidStepRollsBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := DefaultConfig()
	cfg.RootMass = 2
	cfg.Death = cancelOnUpdate{cancel: cancel}
	w, err := New(growingGenome(t, 2.0, 0, 6), cfg)
	if err != nil {
		t.Fatal(err)
	}
	w.SpawnRoot(nil, geom.Vec3{})

	_, err = w.Step(ctx, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if w.Len() != 1 || w.StepCount() != 0 {
		t.Errorf("cancelled step leaked: %d cells at step %d", w.Len(), w.StepCount())
	}
}

func TestMaxAdhesionsZero_NeverBonds(t *testing.T) {
	w := newWorld(t, growingGenome(t, 1.0, 0.5, 0), 1.0)
	w.SpawnRoot(nil, geom.Vec3{})

	for i := 0; i < 8; i++ {
		if _, err := w.Step(context.Background(), 1); err != nil {
			t.Fatalf("step %d: %v", i+1, err)
		}
	}
	if w.Len() < 4 {
		t.Errorf("expected the colony to keep dividing, got %d cells", w.Len())
	}
	if w.Bonds() != 0 {
		t.Errorf("expected no bonds, got %d", w.Bonds())
	}
}

func TestDeterminism(t *testing.T) {
	run := func(workers int) Snapshot {
		cfg := DefaultConfig()
		cfg.RootMass = 1
		cfg.Solver.Workers = workers
		w, err := New(growingGenome(t, 2.0, 0.3, 4), cfg)
		if err != nil {
			t.Fatal(err)
		}
		for _, p := range []geom.Vec3{geom.V(0, 0, 0), geom.V(3, 0, 0), geom.V(0, 3, 1)} {
			w.SpawnRoot(nil, p)
		}
		for i := 0; i < 25; i++ {
			if _, err := w.Step(context.Background(), 0.5); err != nil {
				t.Fatalf("step %d: %v", i+1, err)
			}
		}
		return w.Snapshot()
	}

	a, b, c := run(1), run(1), run(4)
	if len(a.Cells) <= 3 {
		t.Fatalf("expected divisions, got %d cells", len(a.Cells))
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("two identical runs diverged")
	}
	if !reflect.DeepEqual(a, c) {
		t.Error("worker count changed the result")
	}
}

func TestSetParam(t *testing.T) {
	w := newWorld(t, growingGenome(t, 2.0, 0.5, 6), 2.0)
	w.SpawnRoot(nil, geom.Vec3{})
	w.SpawnRoot(nil, geom.V(5, 0, 0))
	w.Step(context.Background(), 0.1)
	if w.Bonds() != 2 {
		t.Fatalf("expected 2 bonds after the first divisions, got %d", w.Bonds())
	}

	if err := w.SetParam(0, genome.ParamMaxAdhesions, 0); err != nil {
		t.Fatalf("set max_adhesions: %v", err)
	}
	if w.Bonds() != 0 {
		t.Errorf("lowering max_adhesions should trim bonds, %d left", w.Bonds())
	}
	if w.Genome().ModeAt(0).MaxAdhesions != 0 {
		t.Error("genome not updated")
	}

	if err := w.SetParam(0, "bogus", 1); !errors.Is(err, genome.ErrUnknownParam) {
		t.Errorf("expected ErrUnknownParam, got %v", err)
	}
	if err := w.SetParam(0, genome.ParamSplitMass, -1); !errors.Is(err, genome.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestSpawnRoot(t *testing.T) {
	gen := genome.Default()
	w := newWorld(t, gen, 0)

	id, err := w.SpawnRoot(nil, geom.V(1, 1, 1))
	if err != nil {
		t.Fatal(err)
	}
	c, _ := w.Cell(id)
	if c.Mass != 0 || c.Mode != gen.InitialMode() || c.Orientation != gen.InitialOrientation() {
		t.Errorf("unexpected root: %+v", c)
	}
	if _, err := w.Step(context.Background(), 0.1); err != nil {
		t.Errorf("zero-mass root should be guarded, got %v", err)
	}

	other := growingGenome(t, 2, 0, 1)
	if _, err := w.SpawnRoot(other, geom.Vec3{}); !errors.Is(err, ErrGenomeInUse) {
		t.Errorf("expected ErrGenomeInUse, got %v", err)
	}
	if _, err := w.SpawnRoot(nil, geom.V(math.NaN(), 0, 0)); err == nil {
		t.Error("expected an error for a non-finite position")
	}
}

func TestReset(t *testing.T) {
	w := newWorld(t, growingGenome(t, 1.0, 0.5, 6), 1.0)
	first, _ := w.SpawnRoot(nil, geom.Vec3{})
	w.Run(context.Background(), 5, 1)

	w.Reset(nil)
	if w.Len() != 0 || w.Bonds() != 0 || w.StepCount() != 0 || w.Time() != 0 {
		t.Errorf("reset left state behind: cells=%d bonds=%d step=%d", w.Len(), w.Bonds(), w.StepCount())
	}
	id, _ := w.SpawnRoot(nil, geom.Vec3{})
	if id != first {
		t.Errorf("expected ids to restart at %d, got %d", first, id)
	}
}

func TestKill(t *testing.T) {
	w := newWorld(t, growingGenome(t, 2.0, 0, 6), 2.0)
	w.SpawnRoot(nil, geom.Vec3{})
	r, _ := w.Step(context.Background(), 0.1)
	child := r.Events[0].Child

	if err := w.Kill(child); err != nil {
		t.Fatalf("kill: %v", err)
	}
	if w.Bonds() != 0 {
		t.Errorf("bonds of a killed cell must go with it, %d left", w.Bonds())
	}
	if err := w.Kill(child); !errors.Is(err, cells.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := w.BondsOf(child); !errors.Is(err, cells.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReplay(t *testing.T) {
	w := newWorld(t, growingGenome(t, 2.0, 0.25, 6), 1.0)
	w.SpawnRoot(nil, geom.Vec3{})
	ctx := context.Background()

	var at5 Snapshot
	for i := 1; i <= 12; i++ {
		if i == 9 {
			w.SetParam(0, genome.ParamGrowthRate, 0.5)
		}
		if _, err := w.Step(ctx, 0.5); err != nil {
			t.Fatal(err)
		}
		if i == 5 {
			at5 = w.Snapshot()
		}
	}

	r, err := w.Replay(ctx, 5)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !reflect.DeepEqual(r.Snapshot(), at5) {
		t.Error("replayed generation differs from the recorded one")
	}

	full, err := w.Replay(ctx, 12)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !reflect.DeepEqual(full.Snapshot(), w.Snapshot()) {
		t.Error("full replay differs from the live world")
	}
	if _, err := w.Replay(ctx, 13); err == nil {
		t.Error("expected an error replaying past the current step")
	}
}

type countMetric struct{ n int }

func (m *countMetric) Name() string         { return "steps" }
func (m *countMetric) Observe(_ StepReport) { m.n++ }
func (m *countMetric) Value() float64       { return float64(m.n) }
func (m *countMetric) Reset()               { m.n = 0 }

func TestRun(t *testing.T) {
	w := newWorld(t, growingGenome(t, 2.0, 0.5, 6), 1.0)
	w.SpawnRoot(nil, geom.Vec3{})
	w.AddMetric(&countMetric{})
	divisions := 0
	w.AddObserver(ObserverFunc(func(r StepReport) { divisions += r.Divisions }))

	res, err := w.Run(context.Background(), 6, 1)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.StepsTaken != 6 || len(res.Population) != 7 || len(res.Times) != 7 {
		t.Errorf("unexpected series lengths: steps=%d pop=%d times=%d", res.StepsTaken, len(res.Population), len(res.Times))
	}
	if res.Metrics["steps"] != 6 {
		t.Errorf("expected metric value 6, got %v", res.Metrics["steps"])
	}
	if divisions == 0 || divisions != countKind(res, division.EventDivision) {
		t.Errorf("observer saw %d divisions, result has %d events", divisions, len(res.Events))
	}
	if res.Population[0] != 1 || res.Population[6] <= 1 {
		t.Errorf("unexpected population series %v", res.Population)
	}

	if _, err := w.Run(context.Background(), 0, 1); err == nil {
		t.Error("expected error for zero steps")
	}
}

func countKind(r *Result, kind division.EventKind) int {
	n := 0
	for _, e := range r.Events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func TestRun_Cancelled(t *testing.T) {
	w := newWorld(t, genome.Default(), 1.0)
	w.SpawnRoot(nil, geom.Vec3{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := w.Run(ctx, 10, 0.1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if res == nil || res.StepsTaken != 0 {
		t.Errorf("expected an empty partial result, got %+v", res)
	}
}

func TestEnsemble(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RootMass = 1
	e := &Ensemble{
		Genome:   growingGenome(t, 2.0, 0.5, 6),
		Config:   cfg,
		Roots:    []geom.Vec3{{}, geom.V(4, 0, 0)},
		Runs:     4,
		Parallel: 2,
	}
	results, err := e.Run(context.Background(), 6, 0.5)
	if err != nil {
		t.Fatalf("ensemble: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	for i := 1; i < len(results); i++ {
		if !reflect.DeepEqual(results[0].Population, results[i].Population) ||
			!reflect.DeepEqual(results[0].Energy, results[i].Energy) {
			t.Errorf("run %d diverged from run 0 without jitter", i)
		}
	}
}
