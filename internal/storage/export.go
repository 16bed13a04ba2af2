package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/san-kum/cellsim/internal/cells"
	"github.com/san-kum/cellsim/internal/geom"
	"github.com/san-kum/cellsim/internal/sim"
)

var cellHeader = []string{
	"id", "parent", "mode", "mass", "age", "radius", "splits", "bonds",
	"x", "y", "z", "vx", "vy", "vz", "qx", "qy", "qz", "qw", "r", "g", "b",
}

func ff(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func WriteSeriesCSV(w io.Writer, r *sim.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "population", "bonds", "kinetic_energy", "total_mass"}); err != nil {
		return err
	}
	for i := range r.Times {
		row := []string{
			ff(r.Times[i]),
			strconv.Itoa(at(r.Population, i)),
			strconv.Itoa(at(r.Bonds, i)),
			ff(at(r.Energy, i)),
			ff(at(r.Mass, i)),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func at[T int | float64](s []T, i int) T {
	if i < len(s) {
		return s[i]
	}
	var zero T
	return zero
}

func WriteCellsCSV(w io.Writer, cs []sim.CellView) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(cellHeader); err != nil {
		return err
	}
	for _, c := range cs {
		row := []string{
			strconv.FormatUint(uint64(c.ID), 10),
			strconv.FormatUint(uint64(c.Parent), 10),
			strconv.Itoa(c.Mode),
			ff(c.Mass), ff(c.Age), ff(c.Radius),
			strconv.Itoa(c.Splits),
			strconv.Itoa(c.Bonds),
			ff(c.Position.X), ff(c.Position.Y), ff(c.Position.Z),
			ff(c.Velocity.X), ff(c.Velocity.Y), ff(c.Velocity.Z),
			ff(c.Orientation.X), ff(c.Orientation.Y), ff(c.Orientation.Z), ff(c.Orientation.W),
			ff(c.Color.X), ff(c.Color.Y), ff(c.Color.Z),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func parseCell(record []string) (sim.CellView, error) {
	if len(record) != len(cellHeader) {
		return sim.CellView{}, fmt.Errorf("expected %d fields, got %d", len(cellHeader), len(record))
	}
	ints := make([]uint64, 0, 5)
	for _, i := range []int{0, 1, 2, 6, 7} {
		v, err := strconv.ParseUint(record[i], 10, 32)
		if err != nil {
			return sim.CellView{}, fmt.Errorf("%s: %w", cellHeader[i], err)
		}
		ints = append(ints, v)
	}
	floats := make([]float64, 0, 16)
	for _, i := range []int{3, 4, 5, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20} {
		v, err := strconv.ParseFloat(record[i], 64)
		if err != nil {
			return sim.CellView{}, fmt.Errorf("%s: %w", cellHeader[i], err)
		}
		floats = append(floats, v)
	}
	return sim.CellView{
		ID:          cells.CellID(ints[0]),
		Parent:      cells.CellID(ints[1]),
		Mode:        int(ints[2]),
		Splits:      int(ints[3]),
		Bonds:       int(ints[4]),
		Mass:        floats[0],
		Age:         floats[1],
		Radius:      floats[2],
		Position:    geom.V(floats[3], floats[4], floats[5]),
		Velocity:    geom.V(floats[6], floats[7], floats[8]),
		Orientation: geom.Quat{X: floats[9], Y: floats[10], Z: floats[11], W: floats[12]},
		Color:       geom.V(floats[13], floats[14], floats[15]),
	}, nil
}

type ExportData struct {
	Meta   RunMetadata    `json:"meta"`
	Times  []float64      `json:"times"`
	Series map[string]any `json:"series"`
	Cells  []sim.CellView `json:"cells"`
}

// ExportJSON writes a stored run as one JSON document.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	series, err := s.LoadSeries(runID)
	if err != nil {
		return err
	}
	cs, err := s.LoadCells(runID)
	if err != nil {
		return err
	}

	data := ExportData{
		Meta:  *meta,
		Times: series.Times,
		Series: map[string]any{
			"population":     series.Population,
			"bonds":          series.Bonds,
			"kinetic_energy": series.Energy,
			"total_mass":     series.Mass,
		},
		Cells: cs,
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
