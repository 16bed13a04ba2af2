package automation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/cellsim/internal/cells"
	"github.com/san-kum/cellsim/internal/division"
	"github.com/san-kum/cellsim/internal/genome"
	"github.com/san-kum/cellsim/internal/geom"
	"github.com/san-kum/cellsim/internal/physics"
	"github.com/san-kum/cellsim/internal/sim"
)

// Scenario is a scripted sequence of control calls against one world.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep applies its edits in field order (reset, genome, solver,
// params, kills, spawns) and then advances the world Run steps.
type ScenarioStep struct {
	Label  string          `yaml:"label"`
	Reset  bool            `yaml:"reset"`
	Genome string          `yaml:"genome"`
	Solver *physics.Params `yaml:"solver"`
	Params []ParamChange   `yaml:"params"`
	Kill   []uint32        `yaml:"kill"`
	Spawn  []geom.Vec3     `yaml:"spawn"`
	Run    int             `yaml:"run"`
	Dt     float64         `yaml:"dt"`
}

type ParamChange struct {
	Mode  int     `yaml:"mode"`
	Field string  `yaml:"field"`
	Value float64 `yaml:"value"`
}

// GenomeResolver maps a scenario genome reference to a genome.
type GenomeResolver func(ref string) (*genome.Genome, error)

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, errors.New("automation: scenario has no steps")
	}
	return &scenario, nil
}

// StepOutcome is the state of the world after one scenario step.
type StepOutcome struct {
	Label    string
	Result   *sim.Result
	Snapshot sim.Snapshot
}

// RunScenario executes the scenario against w. Progress lines go to out,
// which may be nil.
func RunScenario(ctx context.Context, scenario *Scenario, w *sim.World, resolve GenomeResolver, out io.Writer) ([]StepOutcome, error) {
	if out == nil {
		out = io.Discard
	}
	outcomes := make([]StepOutcome, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		label := step.Label
		if label == "" {
			label = fmt.Sprintf("step %d", i+1)
		}
		fmt.Fprintf(out, "Running %s (%d/%d)\n", label, i+1, len(scenario.Steps))

		if err := apply(w, step, resolve); err != nil {
			return outcomes, fmt.Errorf("%s: %w", label, err)
		}

		outcome := StepOutcome{Label: label}
		if step.Run > 0 {
			dt := step.Dt
			if dt == 0 {
				dt = 0.05
			}
			res, err := w.Run(ctx, step.Run, dt)
			if err != nil {
				return outcomes, fmt.Errorf("%s run: %w", label, err)
			}
			if len(res.Errors) > 0 {
				return outcomes, fmt.Errorf("%s run: %w", label, res.Errors[0])
			}
			outcome.Result = res
		}
		outcome.Snapshot = w.Snapshot()
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func apply(w *sim.World, step ScenarioStep, resolve GenomeResolver) error {
	if step.Reset {
		w.Reset(nil)
	}
	if step.Genome != "" {
		if resolve == nil {
			return fmt.Errorf("genome %q: no resolver", step.Genome)
		}
		g, err := resolve(step.Genome)
		if err != nil {
			return fmt.Errorf("genome %q: %w", step.Genome, err)
		}
		if w.Len() > 0 {
			return fmt.Errorf("genome %q: %w", step.Genome, sim.ErrGenomeInUse)
		}
		w.Reset(g)
	}
	if step.Solver != nil {
		if err := w.SetSolver(*step.Solver); err != nil {
			return err
		}
	}
	for _, p := range step.Params {
		if err := w.SetParam(p.Mode, p.Field, p.Value); err != nil {
			return err
		}
	}
	for _, id := range step.Kill {
		if err := w.Kill(cells.CellID(id)); err != nil {
			return fmt.Errorf("kill %d: %w", id, err)
		}
	}
	for _, p := range step.Spawn {
		if _, err := w.SpawnRoot(nil, p); err != nil {
			return err
		}
	}
	return nil
}

// ParameterSweep varies one mode field across worlds started from the same
// genome and roots.
type ParameterSweep struct {
	Genome    *genome.Genome
	Config    sim.Config
	Roots     []geom.Vec3
	Mode      int
	ParamName string
	ParamMin  float64
	ParamMax  float64
	NumSteps  int
	Steps     int
	Dt        float64
	Parallel  int
}

type SweepResult struct {
	ParamValue     float64
	Population     int
	Bonds          int
	TotalMass      float64
	PeakPopulation int
	Divisions      int
	Errors         int
}

// RunSweep runs one world per parameter value concurrently. Results are in
// parameter order. Progress lines go to out, which may be nil.
func RunSweep(ctx context.Context, sweep *ParameterSweep, out io.Writer) ([]SweepResult, error) {
	if sweep.NumSteps < 1 {
		return nil, fmt.Errorf("sweep needs at least one value, got %d", sweep.NumSteps)
	}
	if out == nil {
		out = io.Discard
	}
	// Reject unknown fields before starting any world.
	if _, err := sweep.Genome.WithParam(sweep.Mode, sweep.ParamName, sweep.ParamMin); err != nil {
		return nil, err
	}

	paramStep := 0.0
	if sweep.NumSteps > 1 {
		paramStep = (sweep.ParamMax - sweep.ParamMin) / float64(sweep.NumSteps-1)
	}

	results := make([]SweepResult, sweep.NumSteps)
	progress := make(chan int)
	done := make(chan struct{})
	go func() {
		defer close(done)
		n := 0
		for i := range progress {
			n++
			fmt.Fprintf(out, "Sweep %d/%d: %s=%.4f\n", n, sweep.NumSteps, sweep.ParamName, results[i].ParamValue)
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	if sweep.Parallel > 0 {
		g.SetLimit(sweep.Parallel)
	}
	for i := 0; i < sweep.NumSteps; i++ {
		value := sweep.ParamMin + float64(i)*paramStep
		g.Go(func() error {
			res, err := sweepOne(ctx, sweep, value)
			if err != nil {
				return fmt.Errorf("%s=%v: %w", sweep.ParamName, value, err)
			}
			results[i] = res
			progress <- i
			return nil
		})
	}
	err := g.Wait()
	close(progress)
	<-done
	if err != nil {
		return nil, err
	}
	return results, nil
}

func sweepOne(ctx context.Context, sweep *ParameterSweep, value float64) (SweepResult, error) {
	gen, err := sweep.Genome.WithParam(sweep.Mode, sweep.ParamName, value)
	if err != nil {
		return SweepResult{}, err
	}
	w, err := sim.New(gen, sweep.Config)
	if err != nil {
		return SweepResult{}, err
	}
	for _, p := range sweep.Roots {
		if _, err := w.SpawnRoot(nil, p); err != nil {
			return SweepResult{}, err
		}
	}
	res, err := w.Run(ctx, sweep.Steps, sweep.Dt)
	if err != nil {
		return SweepResult{}, err
	}

	out := SweepResult{
		ParamValue: value,
		Population: w.Len(),
		Bonds:      w.Bonds(),
		Errors:     len(res.Errors),
	}
	if n := len(res.Mass); n > 0 {
		out.TotalMass = res.Mass[n-1]
	}
	for _, p := range res.Population {
		out.PeakPopulation = max(out.PeakPopulation, p)
	}
	for _, e := range res.Events {
		if e.Kind == division.EventDivision {
			out.Divisions++
		}
	}
	return out, nil
}

// MonteCarloConfig runs an ensemble with jittered root positions.
type MonteCarloConfig struct {
	Genome       *genome.Genome
	Config       sim.Config
	Roots        []geom.Vec3
	Perturbation float64
	NumTrials    int
	Steps        int
	Dt           float64
	Seed         int64
}

type MonteCarloResult struct {
	TrialID    int
	Population int
	Bonds      int
	Stable     bool
}

// RunMonteCarlo runs NumTrials worlds with roots jittered by up to
// Perturbation. A trial is stable when it finished without a rolled back
// step and its energy stayed finite.
func RunMonteCarlo(ctx context.Context, cfg *MonteCarloConfig) ([]MonteCarloResult, error) {
	ens := &sim.Ensemble{
		Genome:    cfg.Genome,
		Config:    cfg.Config,
		Roots:     cfg.Roots,
		Runs:      cfg.NumTrials,
		SeedStart: cfg.Seed,
		Jitter:    cfg.Perturbation,
	}
	runs, err := ens.Run(ctx, cfg.Steps, cfg.Dt)
	if err != nil {
		return nil, err
	}

	results := make([]MonteCarloResult, len(runs))
	for i, r := range runs {
		stable := len(r.Errors) == 0
		for _, e := range r.Energy {
			if math.IsNaN(e) || math.IsInf(e, 0) {
				stable = false
				break
			}
		}
		results[i] = MonteCarloResult{
			TrialID:    i,
			Population: last(r.Population),
			Bonds:      last(r.Bonds),
			Stable:     stable,
		}
	}
	return results, nil
}

func last(s []int) int {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

func MonteCarloStats(results []MonteCarloResult) (stableCount int, unstableCount int) {
	for _, r := range results {
		if r.Stable {
			stableCount++
		} else {
			unstableCount++
		}
	}
	return
}
