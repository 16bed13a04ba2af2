package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/cellsim/internal/genome"
	"github.com/san-kum/cellsim/internal/geom"
	"github.com/san-kum/cellsim/internal/sim"
)

func testRun() Run {
	return Run{
		Meta: RunMetadata{Genome: "Default Genome", Dt: 0.1, Steps: 2, Timestamp: time.Unix(1700000000, 0)},
		Genome: genome.Default().Raw(),
		Result: &sim.Result{
			StepsTaken: 2,
			Times:      []float64{0, 0.1, 0.2},
			Population: []int{1, 1, 2},
			Bonds:      []int{0, 0, 1},
			Energy:     []float64{0, 0.5, 0.25},
			Mass:       []float64{1, 1.1, 1.2},
			Metrics:    map[string]float64{"divisions": 1},
			Errors:     []error{errors.New("boom")},
		},
		Final: sim.Snapshot{
			Step: 2,
			Cells: []sim.CellView{
				{ID: 1, Mode: 0, Mass: 0.6, Radius: 0.84, Bonds: 1, Position: geom.V(-0.5, 0, 0), Orientation: geom.Identity, Color: geom.V(0.5, 0.7, 1)},
				{ID: 2, Parent: 1, Mode: 0, Mass: 0.6, Radius: 0.84, Bonds: 1, Splits: 0, Position: geom.V(0.5, 0, 0), Velocity: geom.V(0.1, 0, 0), Orientation: geom.Identity},
			},
			Links: []sim.Link{{Bond: 1, A: 1, B: 2}},
		},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save(testRun())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID != "default_genome_1700000000" {
		t.Errorf("expected default_genome_1700000000, got %s", runID)
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.StepsTaken != 2 {
		t.Errorf("expected 2 steps, got %d", meta.StepsTaken)
	}
	if meta.Population != 2 || meta.Bonds != 1 {
		t.Errorf("expected 2 cells and 1 bond, got %d and %d", meta.Population, meta.Bonds)
	}
	if meta.Metrics["divisions"] != 1 {
		t.Errorf("expected divisions 1, got %f", meta.Metrics["divisions"])
	}
	if len(meta.Errors) != 1 || meta.Errors[0] != "boom" {
		t.Errorf("expected [boom], got %v", meta.Errors)
	}

	series, err := st.LoadSeries(runID)
	if err != nil {
		t.Fatalf("load series failed: %v", err)
	}
	if series.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", series.Len())
	}
	if series.Population[2] != 2 || series.Mass[1] != 1.1 {
		t.Errorf("unexpected series %+v", series)
	}

	cs, err := st.LoadCells(runID)
	if err != nil {
		t.Fatalf("load cells failed: %v", err)
	}
	if len(cs) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(cs))
	}
	if cs[1] != testRun().Final.Cells[1] {
		t.Errorf("expected %+v, got %+v", testRun().Final.Cells[1], cs[1])
	}

	g, err := st.LoadGenome(runID)
	if err != nil {
		t.Fatalf("load genome failed: %v", err)
	}
	if g.Name() != "Default Genome" {
		t.Errorf("expected Default Genome, got %s", g.Name())
	}
}

func TestStoreSave_Collision(t *testing.T) {
	st := New(t.TempDir())
	a, err := st.Save(testRun())
	if err != nil {
		t.Fatal(err)
	}
	b, err := st.Save(testRun())
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Errorf("expected distinct ids, got %s twice", a)
	}
	if !strings.HasSuffix(b, "_2") {
		t.Errorf("expected _2 suffix, got %s", b)
	}
}

func TestStoreList(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)

	runs, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}

	late := testRun()
	late.Meta.Timestamp = time.Unix(1800000000, 0)
	if _, err := st.Save(late); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Save(testRun()); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "junk"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if !runs[0].Timestamp.Before(runs[1].Timestamp) {
		t.Error("expected runs ordered oldest first")
	}
}

func TestExportJSON(t *testing.T) {
	st := New(t.TempDir())
	runID, err := st.Save(testRun())
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := st.ExportJSON(&buf, runID); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	var data ExportData
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if data.Meta.ID != runID {
		t.Errorf("expected id %s, got %s", runID, data.Meta.ID)
	}
	if len(data.Times) != 3 || len(data.Cells) != 2 {
		t.Errorf("expected 3 times and 2 cells, got %d and %d", len(data.Times), len(data.Cells))
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in, expected string
	}{
		{"Default Genome", "default_genome"},
		{"genomes/chain.yaml", "chain"},
		{"", "run"},
	}
	for _, tt := range tests {
		if got := slug(tt.in); got != tt.expected {
			t.Errorf("slug(%q): expected %s, got %s", tt.in, tt.expected, got)
		}
	}
}
