package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/cellsim/internal/analysis"
	"github.com/san-kum/cellsim/internal/automation"
	"github.com/san-kum/cellsim/internal/cells"
	"github.com/san-kum/cellsim/internal/config"
	"github.com/san-kum/cellsim/internal/export"
	"github.com/san-kum/cellsim/internal/genome"
	"github.com/san-kum/cellsim/internal/history"
	"github.com/san-kum/cellsim/internal/metrics"
	"github.com/san-kum/cellsim/internal/sim"
	"github.com/san-kum/cellsim/internal/storage"
	"github.com/san-kum/cellsim/internal/viz"
)

var (
	dataDir string
	verbose bool

	configFile  string
	genomeRef   string
	preset      string
	dt          float64
	steps       int
	capacity    int
	historyPath string
	historyN    int
	metricsAddr string

	// sweep
	sweepMode   int
	sweepField  string
	sweepMin    float64
	sweepMax    float64
	sweepValues int
	parallel    int

	// montecarlo
	trials int
	jitter float64
	mcSeed int64

	outFile   string
	svgWidth  int
	svgHeight int
	svgSeries string
	frameStep int
	maxStep   int
	layoutW   int
	layoutH   int
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "cellsim",
		Short:        "genome driven cell colony simulator",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := tea.NewProgram(viz.NewMenu(), tea.WithAltScreen()).Run()
			return err
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".cellsim", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a colony and store the result",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	worldFlags(runCmd)
	runCmd.Flags().StringVar(&historyPath, "history", "", "record frames to this sqlite database")
	runCmd.Flags().IntVar(&historyN, "every", config.DefaultHistoryEvery, "record every n steps")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run a colony in the terminal viewer",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	worldFlags(liveCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot population, bonds and energy of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "growth and oscillation analysis of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().IntVar(&layoutW, "width", 60, "layout width")
	analyzeCmd.Flags().IntVar(&layoutH, "height", 20, "layout height")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "print run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "write the step series of a run as CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default stdout)")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "write metadata, series and final cells as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default stdout)")

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "render the final colony or a series as SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default stdout)")
	exportSVGCmd.Flags().IntVar(&svgWidth, "width", 800, "image width")
	exportSVGCmd.Flags().IntVar(&svgHeight, "height", 600, "image height")
	exportSVGCmd.Flags().StringVar(&svgSeries, "series", "", "plot a series (population, bonds, energy, mass) instead of the colony")

	validateCmd := &cobra.Command{
		Use:   "validate [genome]",
		Short: "load a genome file or built-in and print its modes",
		Args:  cobra.ExactArgs(1),
		RunE:  validateGenome,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [genome]",
		Short: "list built-in genomes and their presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a scripted scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	worldFlags(scenarioCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "vary one mode parameter across parallel worlds",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
	worldFlags(sweepCmd)
	sweepCmd.Flags().IntVar(&sweepMode, "mode", 0, "mode index")
	sweepCmd.Flags().StringVar(&sweepField, "param", "split_mass", "mode field")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 1, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 3, "last value")
	sweepCmd.Flags().IntVar(&sweepValues, "n", 5, "number of values")
	sweepCmd.Flags().IntVar(&parallel, "parallel", 0, "worker limit (0 = one per cpu)")

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo",
		Short: "run trials with jittered roots",
		Args:  cobra.NoArgs,
		RunE:  runMonteCarlo,
	}
	worldFlags(monteCarloCmd)
	monteCarloCmd.Flags().IntVar(&trials, "trials", 16, "number of trials")
	monteCarloCmd.Flags().Float64Var(&jitter, "jitter", 0.1, "root position jitter")
	monteCarloCmd.Flags().Int64Var(&mcSeed, "seed", 1, "random seed")

	framesCmd := &cobra.Command{
		Use:   "frames [db]",
		Short: "list frames in a history database",
		Args:  cobra.ExactArgs(1),
		RunE:  listFrames,
	}

	frameCmd := &cobra.Command{
		Use:   "frame [db]",
		Short: "show the recorded frame at or before a step",
		Args:  cobra.ExactArgs(1),
		RunE:  showFrame,
	}
	frameCmd.Flags().IntVar(&frameStep, "step", 0, "step to show")
	frameCmd.Flags().IntVar(&layoutW, "width", 60, "layout width")
	frameCmd.Flags().IntVar(&layoutH, "height", 20, "layout height")

	inspectCmd := &cobra.Command{
		Use:   "inspect [db] [cell_id]",
		Short: "trace one cell through a history database",
		Args:  cobra.ExactArgs(2),
		RunE:  inspectCell,
	}

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "run a colony, then rebuild it as of an earlier step",
		Args:  cobra.NoArgs,
		RunE:  replayWorld,
	}
	worldFlags(replayCmd)
	replayCmd.Flags().IntVar(&maxStep, "to", 0, "step to rebuild")
	replayCmd.Flags().IntVar(&layoutW, "width", 60, "layout width")
	replayCmd.Flags().IntVar(&layoutH, "height", 20, "layout height")

	rootCmd.AddCommand(runCmd, liveCmd, listCmd, plotCmd, analyzeCmd, exportCmd, exportCSVCmd, exportJSONCmd,
		exportSVGCmd, validateCmd, presetsCmd, scenarioCmd, sweepCmd, monteCarloCmd, framesCmd, frameCmd,
		inspectCmd, replayCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func worldFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&genomeRef, "genome", "default", "built-in genome name or genome file")
	cmd.Flags().StringVar(&preset, "preset", "", "use a preset of the genome")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep")
	cmd.Flags().IntVar(&steps, "steps", config.DefaultSteps, "number of steps")
	cmd.Flags().IntVar(&capacity, "capacity", 0, "population cap (0 = unbounded)")
}

func logger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// resolveConfig layers the preset, then the config file, then any flag set
// on the command line.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		p := config.GetPreset(genomeRef, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(genomeRef))
		}
		cfg = p
	}
	if configFile != "" {
		c, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
	}

	if cmd.Flags().Changed("genome") || (preset == "" && configFile == "") {
		cfg.Genome = genomeRef
	}
	if cmd.Flags().Changed("dt") {
		cfg.Dt = dt
	}
	if cmd.Flags().Changed("steps") {
		cfg.Steps = steps
	}
	if cmd.Flags().Changed("capacity") {
		cfg.Capacity = capacity
	}
	if f := cmd.Flags().Lookup("history"); f != nil && f.Changed {
		cfg.History.Path = historyPath
	}
	if f := cmd.Flags().Lookup("every"); f != nil && f.Changed {
		cfg.History.Every = historyN
	}
	if f := cmd.Flags().Lookup("metrics-addr"); f != nil && f.Changed {
		cfg.Metrics.Addr = metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func output(cmd *cobra.Command) (io.Writer, func() error, error) {
	if outFile == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(outFile)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	log := logger()
	ctx := cmd.Context()

	world, err := cfg.NewWorld(log)
	if err != nil {
		return err
	}
	for _, m := range metrics.Standard() {
		world.AddMetric(m)
	}

	if cfg.Metrics.Addr != "" {
		collector := metrics.NewCollector(world.Genome().Name())
		world.AddObserver(collector)
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: collector.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", "err", err)
			}
		}()
		defer func() {
			shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdown)
		}()
		log.Info("serving metrics", "addr", cfg.Metrics.Addr)
	}

	var tap *history.Tap
	if cfg.History.Path != "" {
		rec, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer rec.Close()
		if err := rec.Record(ctx, world.Snapshot()); err != nil {
			return err
		}
		tap = rec.Observer(ctx, world, cfg.History.Every)
		world.AddObserver(tap)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "running %s for %d steps (dt=%g)\n", world.Genome().Name(), cfg.Steps, cfg.Dt)
	start := time.Now()
	result, err := world.Run(ctx, cfg.Steps, cfg.Dt)
	if err != nil && result == nil {
		return err
	}
	if tap != nil && tap.Err() != nil {
		log.Warn("history recording stopped", "err", tap.Err())
	}
	elapsed := time.Since(start)

	st := storage.New(dataDir)
	runID, serr := st.Save(storage.Run{
		Meta: storage.RunMetadata{
			Genome:    world.Genome().Name(),
			Timestamp: start,
			Dt:        cfg.Dt,
			Steps:     cfg.Steps,
			Capacity:  cfg.Capacity,
			RootMass:  cfg.RootMass,
			Roots:     len(cfg.Roots),
			Solver:    cfg.Solver,
			Death:     cfg.Death.Policy,
		},
		Genome: world.Genome().Raw(),
		Result: result,
		Final:  world.Snapshot(),
	})
	if serr != nil {
		return serr
	}

	fmt.Fprintf(out, "run %s: %d steps in %s\n", runID, result.StepsTaken, elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "population %d, bonds %d\n", world.Len(), world.Bonds())
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, name := range sortedKeys(result.Metrics) {
		fmt.Fprintf(w, "  %s\t%.4g\n", name, result.Metrics[name])
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for _, e := range result.Errors {
		fmt.Fprintf(out, "error: %v\n", e)
	}
	return err
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	world, err := cfg.NewWorld(nil)
	if err != nil {
		return err
	}
	title := world.Genome().Name()
	if preset != "" {
		title += " / " + preset
	}
	m := viz.NewModel(world, cfg.Roots, cfg.Dt, title)
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tGENOME\tTIME\tSTEPS\tDT\tCELLS\tBONDS")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.4f\t%d\t%d\n",
			run.ID,
			run.Genome,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.StepsTaken,
			run.Dt,
			run.Population,
			run.Bonds,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	series, err := st.LoadSeries(runID)
	if err != nil {
		return err
	}
	if series.Len() == 0 {
		return fmt.Errorf("no data to plot")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run: %s\n", meta.ID)
	fmt.Fprintf(out, "genome: %s\n", meta.Genome)
	fmt.Fprintf(out, "samples: %d\n\n", series.Len())

	plots := []struct {
		caption string
		data    []float64
	}{
		{"population", series.Population},
		{"bonds", series.Bonds},
		{"kinetic energy", series.Energy},
	}
	for _, p := range plots {
		graph := asciigraph.Plot(p.data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(p.caption),
		)
		fmt.Fprintln(out, graph)
		fmt.Fprintln(out)
	}
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	series, err := st.LoadSeries(runID)
	if err != nil {
		return err
	}
	if series.Len() < 2 {
		return fmt.Errorf("no data")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "analysis: %s\n", meta.ID)
	fmt.Fprintf(out, "genome: %s\n\n", meta.Genome)

	if rate, doubling, ok := analysis.GrowthRate(series.Times, series.Population); ok {
		fmt.Fprintf(out, "growth rate: %.4f /t\n", rate)
		fmt.Fprintf(out, "doubling time: %.3f\n", doubling)
	} else {
		fmt.Fprintln(out, "growth rate: n/a")
	}
	if period, ok := analysis.DominantPeriod(series.Energy, meta.Dt); ok {
		fmt.Fprintf(out, "kinetic energy period: %.3f\n", period)
	} else {
		fmt.Fprintln(out, "kinetic energy period: none")
	}

	bins := analysis.Spectrum(series.Energy, meta.Dt)
	if len(bins) > 4 {
		power := make([]float64, len(bins)/2)
		for i := range power {
			power[i] = bins[i].Power
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, asciigraph.Plot(power,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption("power spectrum (kinetic energy)"),
		))
	}

	cs, err := st.LoadCells(runID)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, analysis.Layout(cs, layoutW, layoutH))
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), meta)
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	series, err := st.LoadSeries(args[0])
	if err != nil {
		return err
	}
	w, done, err := output(cmd)
	if err != nil {
		return err
	}
	result := &sim.Result{
		Times:  series.Times,
		Energy: series.Energy,
		Mass:   series.Mass,
	}
	for i := range series.Times {
		result.Population = append(result.Population, int(series.Population[i]))
		result.Bonds = append(result.Bonds, int(series.Bonds[i]))
	}
	if err := storage.WriteSeriesCSV(w, result); err != nil {
		done()
		return err
	}
	return done()
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	w, done, err := output(cmd)
	if err != nil {
		return err
	}
	if err := st.ExportJSON(w, args[0]); err != nil {
		done()
		return err
	}
	return done()
}

func exportSVG(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	w, done, err := output(cmd)
	if err != nil {
		return err
	}

	if svgSeries != "" {
		series, err := st.LoadSeries(runID)
		if err != nil {
			done()
			return err
		}
		var values []float64
		switch svgSeries {
		case "population":
			values = series.Population
		case "bonds":
			values = series.Bonds
		case "energy":
			values = series.Energy
		case "mass":
			values = series.Mass
		default:
			done()
			return fmt.Errorf("unknown series: %s", svgSeries)
		}
		if err := export.SeriesSVG(w, series.Times, values, svgWidth, svgHeight, "#00ff88"); err != nil {
			done()
			return err
		}
		return done()
	}

	cs, err := st.LoadCells(runID)
	if err != nil {
		done()
		return err
	}
	snap := sim.Snapshot{Step: meta.StepsTaken, Time: float64(meta.StepsTaken) * meta.Dt, Cells: cs}
	if err := export.ColonySVG(w, snap, svgWidth, svgHeight); err != nil {
		done()
		return err
	}
	return done()
}

func validateGenome(cmd *cobra.Command, args []string) error {
	g, ok := config.GetGenome(args[0])
	if !ok {
		var err error
		g, err = genome.ReadFile(args[0])
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "genome: %s (%d modes, initial mode %d)\n", g.Name(), g.Len(), g.InitialMode())
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODE\tNAME\tSPLIT_MASS\tINTERVAL\tGROWTH\tMAX_ADH\tCHILD_A\tCHILD_B")
	for i := 0; i < g.Len(); i++ {
		m := g.ModeAt(i)
		fmt.Fprintf(w, "%d\t%s\t%g\t%g\t%g\t%d\t%d\t%d\n",
			i, m.Name, m.SplitMass, m.SplitInterval, m.GrowthRate, m.MaxAdhesions, m.ChildA.Mode, m.ChildB.Mode)
	}
	return w.Flush()
}

func listPresets(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	names := config.ListGenomes()
	if len(args) == 1 {
		if _, ok := config.GetGenome(args[0]); !ok {
			return fmt.Errorf("unknown genome: %s (available: %v)", args[0], names)
		}
		names = args
	}
	for _, g := range names {
		fmt.Fprintf(out, "%s:\n", g)
		for _, p := range config.ListPresets(g) {
			cfg := config.GetPreset(g, p)
			fmt.Fprintf(out, "  %-10s roots=%d steps=%d dt=%g\n", p, len(cfg.Roots), cfg.Steps, cfg.Dt)
		}
	}
	return nil
}

func resolveGenome(ref string) (*genome.Genome, error) {
	if g, ok := config.GetGenome(ref); ok {
		return g, nil
	}
	return genome.ReadFile(ref)
}

func runScenario(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	world, err := cfg.NewWorld(logger())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	outcomes, err := automation.RunScenario(cmd.Context(), scenario, world, resolveGenome, out)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tCELLS\tBONDS\tTIME")
	for _, o := range outcomes {
		fmt.Fprintf(w, "%s\t%d\t%d\t%.3f\n", o.Label, len(o.Snapshot.Cells), len(o.Snapshot.Links), o.Snapshot.Time)
	}
	return w.Flush()
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	gen, err := cfg.LoadGenome()
	if err != nil {
		return err
	}
	scfg, err := cfg.SimConfig(nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	results, err := automation.RunSweep(cmd.Context(), &automation.ParameterSweep{
		Genome:    gen,
		Config:    scfg,
		Roots:     cfg.Roots,
		Mode:      sweepMode,
		ParamName: sweepField,
		ParamMin:  sweepMin,
		ParamMax:  sweepMax,
		NumSteps:  sweepValues,
		Steps:     cfg.Steps,
		Dt:        cfg.Dt,
		Parallel:  parallel,
	}, out)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tCELLS\tPEAK\tBONDS\tMASS\tDIVISIONS\tERRORS\n", sweepField)
	for _, r := range results {
		fmt.Fprintf(w, "%.4f\t%d\t%d\t%d\t%.3f\t%d\t%d\n",
			r.ParamValue, r.Population, r.PeakPopulation, r.Bonds, r.TotalMass, r.Divisions, r.Errors)
	}
	return w.Flush()
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	gen, err := cfg.LoadGenome()
	if err != nil {
		return err
	}
	scfg, err := cfg.SimConfig(nil)
	if err != nil {
		return err
	}

	results, err := automation.RunMonteCarlo(cmd.Context(), &automation.MonteCarloConfig{
		Genome:       gen,
		Config:       scfg,
		Roots:        cfg.Roots,
		Perturbation: jitter,
		NumTrials:    trials,
		Steps:        cfg.Steps,
		Dt:           cfg.Dt,
		Seed:         mcSeed,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	stable, unstable := automation.MonteCarloStats(results)
	pop := make([]float64, len(results))
	for i, r := range results {
		pop[i] = float64(r.Population)
	}
	fmt.Fprintf(out, "trials: %d  stable: %d  unstable: %d\n", len(results), stable, unstable)
	fmt.Fprintf(out, "final population: %s\n", viz.Sparkline(pop, len(pop)))
	return nil
}

func listFrames(cmd *cobra.Command, args []string) error {
	rec, err := history.Open(args[0])
	if err != nil {
		return err
	}
	defer rec.Close()

	frames, err := rec.Frames(cmd.Context())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tTIME\tCELLS\tBONDS")
	for _, f := range frames {
		fmt.Fprintf(w, "%d\t%.3f\t%d\t%d\n", f.Step, f.Time, f.Population, f.Bonds)
	}
	return w.Flush()
}

func showFrame(cmd *cobra.Command, args []string) error {
	rec, err := history.Open(args[0])
	if err != nil {
		return err
	}
	defer rec.Close()

	snap, err := rec.Frame(cmd.Context(), frameStep)
	if err != nil {
		return err
	}
	printSnapshot(cmd.OutOrStdout(), snap)
	return nil
}

func inspectCell(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid cell id %q: %w", args[1], err)
	}
	rec, err := history.Open(args[0])
	if err != nil {
		return err
	}
	defer rec.Close()

	trace, err := rec.Trace(cmd.Context(), cells.CellID(id))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(trace) == 0 {
		fmt.Fprintf(out, "cell %d not recorded\n", id)
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tPARENT\tMODE\tMASS\tAGE\tBONDS\tPOSITION")
	for _, p := range trace {
		fmt.Fprintf(w, "%d\t%d\t%d\t%.3f\t%.3f\t%d\t(%.2f, %.2f, %.2f)\n",
			p.Step, p.Parent, p.Mode, p.Mass, p.Age, p.Bonds, p.Position.X, p.Position.Y, p.Position.Z)
	}
	return w.Flush()
}

func replayWorld(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	world, err := cfg.NewWorld(logger())
	if err != nil {
		return err
	}
	if _, err := world.Run(cmd.Context(), cfg.Steps, cfg.Dt); err != nil {
		return err
	}
	past, err := world.Replay(cmd.Context(), maxStep)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "now: step %d, %d cells, %d bonds\n", world.StepCount(), world.Len(), world.Bonds())
	printSnapshot(out, past.Snapshot())
	return nil
}

func printSnapshot(out io.Writer, snap sim.Snapshot) {
	fmt.Fprintf(out, "step %d  t=%.3f  cells %d  bonds %d\n\n", snap.Step, snap.Time, len(snap.Cells), len(snap.Links))
	fmt.Fprint(out, analysis.Layout(snap.Cells, layoutW, layoutH))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
