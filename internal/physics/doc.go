// Package physics advances cell motion for one step.
//
// A [Solver] reads the committed cell store and a frozen adhesion
// [adhesion.Topology] and writes a fresh [Frame] of positions, velocities and
// orientations. Bonds act as damped springs between adhered cells and may
// break past their strain limit. Velocities decay exponentially with the
// damping rate. Overlapping cells, found through a [Grid], are pushed apart
// by a position correction after integration.
//
// Each pass is split across a [compute.Backend]; each worker writes only
// its own slots, so a step gives the same result for any worker count.
//
//	solver := physics.NewSolver(physics.DefaultParams(), nil)
//	frame, stats := solver.Step(store, graph.Snapshot(), dt)
//	defer solver.Release(frame)
//
// Non-finite results are clamped to the previous state and counted in
// [Stats].Guards.
package physics
