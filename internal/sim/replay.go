package sim

import (
	"context"
	"fmt"

	"github.com/san-kum/cellsim/internal/cells"
	"github.com/san-kum/cellsim/internal/genome"
	"github.com/san-kum/cellsim/internal/geom"
	"github.com/san-kum/cellsim/internal/physics"
)

type opKind int

const (
	opStep opKind = iota
	opSpawn
	opParam
	opSolver
	opKill
)

type op struct {
	kind   opKind
	dt     float64
	pos    geom.Vec3
	mode   int
	field  string
	value  float64
	solver physics.Params
	id     cells.CellID
}

// journal records every control call since the last reset. Steps are
// deterministic, so replaying the journal rebuilds any past generation.
type journal struct {
	gen    *genome.Genome
	solver physics.Params
	ops    []op
}

func (j *journal) reset(gen *genome.Genome, solver physics.Params) {
	j.gen = gen
	j.solver = solver
	j.ops = nil
}

func (j *journal) record(o op) { j.ops = append(j.ops, o) }

// Replay rebuilds the world as it was after step target, counted from the
// last reset. The receiver is not modified.
func (w *World) Replay(ctx context.Context, target int) (*World, error) {
	if target < 0 || target > w.step {
		return nil, fmt.Errorf("replay target %d outside [0,%d]", target, w.step)
	}
	cfg := w.cfg
	cfg.Solver = w.journal.solver
	r, err := New(w.journal.gen, cfg)
	if err != nil {
		return nil, err
	}

	for _, o := range w.journal.ops {
		if o.kind == opStep && r.step == target {
			break
		}
		if err := r.apply(ctx, o); err != nil {
			return nil, fmt.Errorf("replay at step %d: %w", r.step, err)
		}
	}
	return r, nil
}

func (w *World) apply(ctx context.Context, o op) error {
	switch o.kind {
	case opStep:
		_, err := w.Step(ctx, o.dt)
		return err
	case opSpawn:
		_, err := w.SpawnRoot(nil, o.pos)
		return err
	case opParam:
		return w.SetParam(o.mode, o.field, o.value)
	case opSolver:
		return w.SetSolver(o.solver)
	case opKill:
		return w.Kill(o.id)
	}
	return nil
}
