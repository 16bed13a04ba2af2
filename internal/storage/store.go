package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/cellsim/internal/genome"
	"github.com/san-kum/cellsim/internal/physics"
	"github.com/san-kum/cellsim/internal/sim"
)

const (
	metadataFile = "metadata.json"
	seriesFile   = "series.csv"
	cellsFile    = "cells.csv"
	genomeFile   = "genome.yaml"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Genome     string             `json:"genome"`
	Timestamp  time.Time          `json:"timestamp"`
	Dt         float64            `json:"dt"`
	Steps      int                `json:"steps"`
	StepsTaken int                `json:"steps_taken"`
	Capacity   int                `json:"capacity"`
	RootMass   float64            `json:"root_mass"`
	Roots      int                `json:"roots"`
	Solver     physics.Params     `json:"solver"`
	Death      string             `json:"death"`
	Population int                `json:"population"`
	Bonds      int                `json:"bonds"`
	Metrics    map[string]float64 `json:"metrics"`
	Errors     []string           `json:"errors,omitempty"`
}

// Run is everything a finished run leaves behind.
type Run struct {
	Meta   RunMetadata
	Genome genome.RawGenome
	Result *sim.Result
	Final  sim.Snapshot
}

// Series is the per-step record stored in series.csv.
type Series struct {
	Times      []float64
	Population []float64
	Bonds      []float64
	Energy     []float64
	Mass       []float64
}

func (s Series) Len() int { return len(s.Times) }

// Save writes a run directory and returns its id. The id is derived from the
// genome label and the start time, with a numeric suffix on collision.
func (s *Store) Save(run Run) (string, error) {
	if run.Result == nil {
		return "", errors.New("storage: run has no result")
	}
	if err := s.Init(); err != nil {
		return "", err
	}
	if run.Meta.Timestamp.IsZero() {
		run.Meta.Timestamp = time.Now()
	}

	base := fmt.Sprintf("%s_%d", slug(run.Meta.Genome), run.Meta.Timestamp.Unix())
	runID := base
	for i := 2; ; i++ {
		err := os.Mkdir(filepath.Join(s.baseDir, runID), 0755)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrExist) {
			return "", err
		}
		runID = fmt.Sprintf("%s_%d", base, i)
	}
	runDir := filepath.Join(s.baseDir, runID)

	meta := run.Meta
	meta.ID = runID
	meta.StepsTaken = run.Result.StepsTaken
	meta.Metrics = run.Result.Metrics
	meta.Population = len(run.Final.Cells)
	meta.Bonds = len(run.Final.Links)
	for _, err := range run.Result.Errors {
		meta.Errors = append(meta.Errors, err.Error())
	}

	if err := writeFile(filepath.Join(runDir, metadataFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	}); err != nil {
		return "", err
	}
	if err := writeFile(filepath.Join(runDir, seriesFile), func(w io.Writer) error {
		return WriteSeriesCSV(w, run.Result)
	}); err != nil {
		return "", err
	}
	if err := writeFile(filepath.Join(runDir, cellsFile), func(w io.Writer) error {
		return WriteCellsCSV(w, run.Final.Cells)
	}); err != nil {
		return "", err
	}
	if len(run.Genome.Modes) > 0 {
		if err := genome.WriteFile(filepath.Join(runDir, genomeFile), run.Genome); err != nil {
			return "", err
		}
	}
	return runID, nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func slug(label string) string {
	label = strings.TrimSuffix(filepath.Base(label), filepath.Ext(label))
	label = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, label)
	if label == "" || label == "_" || label == "." {
		return "run"
	}
	return label
}

// List returns the stored runs, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadGenome(runID string) (*genome.Genome, error) {
	return genome.ReadFile(filepath.Join(s.baseDir, runID, genomeFile))
}

func (s *Store) LoadSeries(runID string) (Series, error) {
	records, err := readCSV(filepath.Join(s.baseDir, runID, seriesFile))
	if err != nil {
		return Series{}, err
	}

	var series Series
	for i, record := range records {
		if i == 0 || len(record) < 5 {
			continue
		}
		vals, err := parseFloats(record[:5])
		if err != nil {
			return Series{}, fmt.Errorf("series row %d: %w", i, err)
		}
		series.Times = append(series.Times, vals[0])
		series.Population = append(series.Population, vals[1])
		series.Bonds = append(series.Bonds, vals[2])
		series.Energy = append(series.Energy, vals[3])
		series.Mass = append(series.Mass, vals[4])
	}
	return series, nil
}

func (s *Store) LoadCells(runID string) ([]sim.CellView, error) {
	records, err := readCSV(filepath.Join(s.baseDir, runID, cellsFile))
	if err != nil {
		return nil, err
	}
	out := make([]sim.CellView, 0, len(records))
	for i, record := range records {
		if i == 0 {
			continue
		}
		c, err := parseCell(record)
		if err != nil {
			return nil, fmt.Errorf("cells row %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	return r.ReadAll()
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
