package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/cellsim/internal/adhesion"
	"github.com/san-kum/cellsim/internal/cells"
	"github.com/san-kum/cellsim/internal/division"
	"github.com/san-kum/cellsim/internal/genome"
	"github.com/san-kum/cellsim/internal/geom"
	"github.com/san-kum/cellsim/internal/physics"
)

// World owns one simulated colony: the committed cell store and adhesion
// graph, the genome they follow, and the solver and scheduler that advance
// them. A World is not safe for concurrent use.
type World struct {
	cfg    Config
	gen    *genome.Genome
	store  *cells.Store
	graph  *adhesion.Graph
	solver *physics.Solver
	sched  *division.Scheduler
	log    *slog.Logger

	step int
	time float64

	journal   journal
	metrics   []Metric
	observers []Observer

	// check validates a staged generation before it is committed.
	check func(st *cells.Store, g *adhesion.Graph, gen *genome.Genome) error
}

func New(gen *genome.Genome, cfg Config) (*World, error) {
	if gen == nil {
		return nil, ErrNoGenome
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	cfg.Solver = cfg.Solver.Normalize()
	if cfg.Death == nil {
		cfg.Death = division.NoDeath{}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	w := &World{
		cfg:    cfg,
		gen:    gen,
		store:  cells.New(cfg.Capacity),
		solver: physics.NewSolver(cfg.Solver, nil),
		sched:  division.NewScheduler(cfg.Solver, cfg.Death),
		log:    log,
		check:  verifyGeneration,
	}
	w.graph = adhesion.New(division.Limits(w.store, gen))
	bind(w.store, w.graph)
	w.journal.reset(gen, cfg.Solver)
	return w, nil
}

func validateConfig(cfg Config) error {
	if cfg.Capacity < 0 {
		return fmt.Errorf("capacity must be non-negative, got %d", cfg.Capacity)
	}
	if cfg.RootMass < 0 || math.IsNaN(cfg.RootMass) || math.IsInf(cfg.RootMass, 0) {
		return fmt.Errorf("root mass must be finite and non-negative, got %v", cfg.RootMass)
	}
	if err := cfg.Solver.Normalize().Validate(); err != nil {
		return fmt.Errorf("solver: %w", err)
	}
	return nil
}

func bind(st *cells.Store, g *adhesion.Graph) {
	st.OnKill(func(id cells.CellID) { g.RemoveCell(id) })
}

func (w *World) AddMetric(m Metric)     { w.metrics = append(w.metrics, m) }
func (w *World) AddObserver(o Observer) { w.observers = append(w.observers, o) }

func (w *World) Genome() *genome.Genome { return w.gen }
func (w *World) Config() Config         { return w.cfg }
func (w *World) StepCount() int         { return w.step }
func (w *World) Time() float64          { return w.time }
func (w *World) Len() int               { return w.store.Len() }
func (w *World) Bonds() int             { return w.graph.Len() }

// Cell returns a copy of a live cell.
func (w *World) Cell(id cells.CellID) (cells.Cell, error) { return w.store.Get(id) }

// BondsOf returns the bond ids of a live cell.
func (w *World) BondsOf(id cells.CellID) ([]adhesion.BondID, error) {
	if !w.store.Has(id) {
		return nil, cells.ErrNotFound
	}
	return w.graph.BondsOf(id), nil
}

// Step advances the world by dt. The physics pass reads the committed
// generation, the scheduler mutates a staged copy, and the copy is committed
// only if it passes verification. On failure the committed generation is
// unchanged and the error is a *StepError.
func (w *World) Step(ctx context.Context, dt float64) (StepReport, error) {
	next := w.step + 1
	if err := ctx.Err(); err != nil {
		return StepReport{}, w.rollback(next, err)
	}
	if !(dt > 0) || math.IsInf(dt, 0) {
		return StepReport{}, w.rollback(next, fmt.Errorf("%w: %v", ErrInvalidDt, dt))
	}

	top := w.graph.Snapshot()
	frame, stats := w.solver.Step(w.store, top, dt)

	stage := w.store.Clone()
	staged := w.graph.Clone(division.Limits(stage, w.gen))
	bind(stage, staged)
	stage.SetMotion(frame.Position, frame.Velocity, frame.Orientation)
	w.solver.Release(frame)

	events, err := w.sched.Run(stage, staged, w.gen, dt, stats.Broken)
	if err != nil {
		return StepReport{}, w.rollback(next, err)
	}
	if err := ctx.Err(); err != nil {
		return StepReport{}, w.rollback(next, err)
	}
	if err := w.check(stage, staged, w.gen); err != nil {
		return StepReport{}, w.rollback(next, err)
	}
	if stage.Slots() > 2*stage.Len()+64 {
		stage.Compact()
	}

	w.store, w.graph = stage, staged
	w.step = next
	w.time += dt
	w.journal.record(op{kind: opStep, dt: dt})

	report := StepReport{
		Step:       w.step,
		Time:       w.time,
		Dt:         dt,
		Population: stage.Len(),
		Bonds:      staged.Len(),
		TotalMass:  division.TotalMass(stage),
		Physics:    stats,
		Events:     events,
	}
	for _, e := range events {
		switch e.Kind {
		case division.EventDivision:
			report.Divisions++
		case division.EventDeath:
			report.Deaths++
		}
	}
	if stats.Guards > 0 {
		w.log.Debug("numeric guards applied", "step", w.step, "count", stats.Guards)
	}
	return report, nil
}

func (w *World) rollback(step int, cause error) error {
	err := &StepError{Step: step, Cause: cause}
	w.log.Warn("step rolled back", "step", step, "err", cause)
	return err
}

// verifyGeneration checks graph symmetry, degree bounds and that every cell
// has a finite state and a mode inside the genome.
func verifyGeneration(st *cells.Store, g *adhesion.Graph, gen *genome.Genome) error {
	if err := g.Verify(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvariant, err)
	}
	for c := range st.All() {
		if c.Mode < 0 || c.Mode >= gen.Len() {
			return fmt.Errorf("%w: cell %d has mode %d", ErrInvariant, c.ID, c.Mode)
		}
		if !c.Position.IsFinite() || !c.Velocity.IsFinite() || !c.Orientation.IsFinite() {
			return fmt.Errorf("%w: cell %d has a non-finite state", ErrInvariant, c.ID)
		}
		if math.IsNaN(c.Mass) || c.Mass < 0 {
			return fmt.Errorf("%w: cell %d has mass %v", ErrInvariant, c.ID, c.Mass)
		}
	}
	return nil
}

// Reset clears every cell and bond and restarts ids. A nil genome keeps the
// current one.
func (w *World) Reset(gen *genome.Genome) {
	if gen != nil {
		w.gen = gen
	}
	w.store.Reset()
	w.graph.Reset()
	w.graph.SetLimits(division.Limits(w.store, w.gen))
	w.step = 0
	w.time = 0
	w.journal.reset(w.gen, w.cfg.Solver)
}

// SpawnRoot seeds a cell in the genome's initial mode and orientation. A nil
// genome uses the current one; a different genome is adopted only while the
// world is empty, and adopting it resets the world.
func (w *World) SpawnRoot(gen *genome.Genome, position geom.Vec3) (cells.CellID, error) {
	if gen != nil && gen != w.gen {
		if w.store.Len() > 0 {
			return 0, ErrGenomeInUse
		}
		w.Reset(gen)
	}
	if !position.IsFinite() {
		return 0, fmt.Errorf("root position must be finite, got %v", position)
	}
	id, err := w.store.Spawn(position, w.gen.InitialOrientation(), w.gen.InitialMode(), w.cfg.RootMass)
	if err != nil {
		return 0, err
	}
	w.journal.record(op{kind: opSpawn, pos: position})
	return id, nil
}

// SetParam swaps in a genome with one mode field changed. Bonds left above a
// lowered max_adhesions are trimmed, newest first.
func (w *World) SetParam(mode int, field string, value float64) error {
	gen, err := w.gen.WithParam(mode, field, value)
	if err != nil {
		return err
	}
	w.gen = gen
	w.graph.SetLimits(division.Limits(w.store, gen))
	for c := range w.store.All() {
		limit := gen.ModeAt(c.Mode).MaxAdhesions
		ids := w.graph.BondsOf(c.ID)
		for i := len(ids) - 1; i >= limit; i-- {
			_ = w.graph.Unbond(ids[i])
		}
	}
	w.journal.record(op{kind: opParam, mode: mode, field: field, value: value})
	w.log.Info("parameter changed", "mode", mode, "field", field, "value", value)
	return nil
}

// SetSolver replaces the physics parameters used from the next step.
func (w *World) SetSolver(p physics.Params) error {
	if err := p.Normalize().Validate(); err != nil {
		return err
	}
	w.cfg.Solver = p.Normalize()
	w.solver.SetParams(p)
	w.sched.SetParams(p)
	w.journal.record(op{kind: opSolver, solver: w.cfg.Solver})
	return nil
}

// Kill removes a cell from outside the death policy, dropping its bonds.
func (w *World) Kill(id cells.CellID) error {
	if err := w.store.Kill(id); err != nil {
		return err
	}
	w.journal.record(op{kind: opKill, id: id})
	return nil
}

// Snapshot copies the committed generation for rendering.
func (w *World) Snapshot() Snapshot {
	p := w.solver.Params()
	snap := Snapshot{
		Step:  w.step,
		Time:  w.time,
		Cells: make([]CellView, 0, w.store.Len()),
	}
	for c := range w.store.All() {
		snap.Cells = append(snap.Cells, CellView{
			ID:          c.ID,
			Parent:      c.Parent,
			Position:    c.Position,
			Velocity:    c.Velocity,
			Orientation: c.Orientation,
			Color:       w.gen.ModeAt(c.Mode).Color,
			Radius:      p.Radius(c.Mass),
			Mass:        c.Mass,
			Age:         c.Age,
			Mode:        c.Mode,
			Splits:      c.Splits,
			Bonds:       w.graph.Degree(c.ID),
		})
	}
	bonds := w.graph.Bonds()
	snap.Links = make([]Link, len(bonds))
	for i, b := range bonds {
		snap.Links[i] = Link{Bond: b.ID, A: b.A, B: b.B}
	}
	return snap
}
