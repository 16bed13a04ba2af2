package export

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"testing"

	"github.com/san-kum/cellsim/internal/geom"
	"github.com/san-kum/cellsim/internal/sim"
)

func wellFormed(t *testing.T, data []byte) {
	t.Helper()
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return
		}
		if err != nil {
			t.Fatalf("malformed svg: %v", err)
		}
	}
}

func TestColonySVG(t *testing.T) {
	snap := sim.Snapshot{
		Step: 7,
		Cells: []sim.CellView{
			{ID: 1, Position: geom.V(-1, 0, 0), Radius: 1, Color: geom.V(1, 0, 0)},
			{ID: 2, Position: geom.V(1, 0, 0), Radius: 1, Color: geom.V(0, 0, 1)},
		},
		Links: []sim.Link{{Bond: 1, A: 1, B: 2}, {Bond: 2, A: 1, B: 9}},
	}

	var buf bytes.Buffer
	if err := ColonySVG(&buf, snap, 200, 100); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	wellFormed(t, buf.Bytes())

	if n := strings.Count(out, "<circle"); n != 2 {
		t.Errorf("expected 2 circles, got %d", n)
	}
	if n := strings.Count(out, "<line"); n != 1 {
		t.Errorf("expected 1 line, dangling links skipped, got %d", n)
	}
	if !strings.Contains(out, `fill="#ff0000"`) || !strings.Contains(out, "step 7") {
		t.Errorf("missing colour or caption in\n%s", out)
	}
}

func TestColonySVG_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := ColonySVG(&buf, sim.Snapshot{}, 100, 100); err != nil {
		t.Fatal(err)
	}
	wellFormed(t, buf.Bytes())
	if strings.Contains(buf.String(), "<circle") {
		t.Error("expected no circles")
	}
}

func TestSeriesSVG(t *testing.T) {
	var buf bytes.Buffer
	err := SeriesSVG(&buf, []float64{0, 1, 2}, []float64{1, 2, 4}, 300, 100, "#00ff00")
	if err != nil {
		t.Fatal(err)
	}
	wellFormed(t, buf.Bytes())
	if strings.Count(buf.String(), " L") != 2 {
		t.Errorf("expected 2 segments in\n%s", buf.String())
	}

	if err := SeriesSVG(&buf, []float64{0}, []float64{1}, 10, 10, "#fff"); err == nil {
		t.Error("expected error for a single sample")
	}
}
