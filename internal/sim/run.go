package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Run steps the world up to steps times, feeding every committed step to the
// registered metrics and observers. A rolled back step ends the run early and
// is recorded in Result.Errors; cancellation returns the partial result along
// with ctx.Err().
func (w *World) Run(ctx context.Context, steps int, dt float64) (*Result, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("steps must be positive, got %d", steps)
	}
	if !(dt > 0) || math.IsInf(dt, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDt, dt)
	}

	result := &Result{
		Times:      make([]float64, 0, steps+1),
		Population: make([]int, 0, steps+1),
		Bonds:      make([]int, 0, steps+1),
		Energy:     make([]float64, 0, steps+1),
		Mass:       make([]float64, 0, steps+1),
		Metrics:    make(map[string]float64),
	}

	for _, m := range w.metrics {
		m.Reset()
	}

	snap := w.Snapshot()
	result.Times = append(result.Times, w.time)
	result.Population = append(result.Population, len(snap.Cells))
	result.Bonds = append(result.Bonds, len(snap.Links))
	result.Energy = append(result.Energy, kinetic(snap))
	result.Mass = append(result.Mass, totalMass(snap))

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			w.finish(result)
			return result, ctx.Err()
		default:
		}

		report, err := w.Step(ctx, dt)
		if err != nil {
			result.Errors = append(result.Errors, err)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				w.finish(result)
				return result, ctx.Err()
			}
			break
		}

		for _, m := range w.metrics {
			m.Observe(report)
		}
		for _, obs := range w.observers {
			obs.OnStep(report)
		}

		result.StepsTaken++
		result.Times = append(result.Times, report.Time)
		result.Population = append(result.Population, report.Population)
		result.Bonds = append(result.Bonds, report.Bonds)
		result.Energy = append(result.Energy, report.Physics.KineticEnergy)
		result.Mass = append(result.Mass, report.TotalMass)
		result.Events = append(result.Events, report.Events...)
	}

	w.finish(result)
	return result, nil
}

func (w *World) finish(result *Result) {
	for _, m := range w.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
}

func kinetic(s Snapshot) float64 {
	e := 0.0
	for _, c := range s.Cells {
		e += 0.5 * c.Mass * c.Velocity.Len2()
	}
	return e
}

func totalMass(s Snapshot) float64 {
	m := 0.0
	for _, c := range s.Cells {
		m += c.Mass
	}
	return m
}
