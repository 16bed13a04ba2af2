package export

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/san-kum/cellsim/internal/cells"
	"github.com/san-kum/cellsim/internal/geom"
	"github.com/san-kum/cellsim/internal/sim"
)

type bounds struct {
	minX, minY, rangeX, rangeY float64
}

// fit pads the box around the points by ten percent per side.
func fit(minX, maxX, minY, maxY float64) bounds {
	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	return bounds{
		minX:   minX - rangeX*0.1,
		minY:   minY - rangeY*0.1,
		rangeX: rangeX * 1.2,
		rangeY: rangeY * 1.2,
	}
}

func header(sb *strings.Builder, width, height int) {
	fmt.Fprintf(sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)
}

func rgb(c geom.Vec3) string {
	ch := func(v float64) int {
		if math.IsNaN(v) {
			return 0
		}
		return int(math.Round(math.Max(0, math.Min(1, v)) * 255))
	}
	return fmt.Sprintf("#%02x%02x%02x", ch(c.X), ch(c.Y), ch(c.Z))
}

// ColonySVG draws a top-down view of the snapshot: bonds as lines and cells
// as discs in their mode colour, keeping the aspect ratio.
func ColonySVG(w io.Writer, snap sim.Snapshot, width, height int) error {
	var sb strings.Builder
	header(&sb, width, height)

	if len(snap.Cells) > 0 {
		c0 := snap.Cells[0]
		minX, maxX := c0.Position.X-c0.Radius, c0.Position.X+c0.Radius
		minY, maxY := c0.Position.Y-c0.Radius, c0.Position.Y+c0.Radius
		for _, c := range snap.Cells {
			minX = math.Min(minX, c.Position.X-c.Radius)
			maxX = math.Max(maxX, c.Position.X+c.Radius)
			minY = math.Min(minY, c.Position.Y-c.Radius)
			maxY = math.Max(maxY, c.Position.Y+c.Radius)
		}
		b := fit(minX, maxX, minY, maxY)
		scale := math.Min(float64(width)/b.rangeX, float64(height)/b.rangeY)
		offX := (float64(width) - b.rangeX*scale) / 2
		offY := (float64(height) - b.rangeY*scale) / 2
		project := func(p geom.Vec3) (float64, float64) {
			return offX + (p.X-b.minX)*scale, float64(height) - offY - (p.Y-b.minY)*scale
		}

		at := make(map[cells.CellID]geom.Vec3, len(snap.Cells))
		for _, c := range snap.Cells {
			at[c.ID] = c.Position
		}
		sb.WriteString(`<g stroke="#888888" stroke-width="1">` + "\n")
		for _, l := range snap.Links {
			pa, okA := at[l.A]
			pb, okB := at[l.B]
			if !okA || !okB {
				continue
			}
			x1, y1 := project(pa)
			x2, y2 := project(pb)
			fmt.Fprintf(&sb, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f"/>`+"\n", x1, y1, x2, y2)
		}
		sb.WriteString("</g>\n<g fill-opacity=\"0.8\">\n")
		for _, c := range snap.Cells {
			x, y := project(c.Position)
			fmt.Fprintf(&sb, `<circle cx="%.1f" cy="%.1f" r="%.1f" fill="%s"/>`+"\n", x, y, c.Radius*scale, rgb(c.Color))
		}
		sb.WriteString("</g>\n")
	}

	fmt.Fprintf(&sb, `<text x="8" y="16" fill="#cccccc" font-family="monospace" font-size="12">step %d  t=%.2f  cells %d  bonds %d</text>`+"\n",
		snap.Step, snap.Time, len(snap.Cells), len(snap.Links))
	sb.WriteString("</svg>\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

// SeriesSVG plots values against times as a single polyline.
func SeriesSVG(w io.Writer, times, values []float64, width, height int, strokeColor string) error {
	n := min(len(times), len(values))
	if n < 2 {
		return fmt.Errorf("export: need at least two samples, got %d", n)
	}

	minX, maxX := times[0], times[0]
	minY, maxY := values[0], values[0]
	for i := 0; i < n; i++ {
		minX = math.Min(minX, times[i])
		maxX = math.Max(maxX, times[i])
		minY = math.Min(minY, values[i])
		maxY = math.Max(maxY, values[i])
	}
	b := fit(minX, maxX, minY, maxY)

	var sb strings.Builder
	header(&sb, width, height)
	fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="M`, strokeColor)
	for i := 0; i < n; i++ {
		x := (times[i] - b.minX) / b.rangeX * float64(width)
		y := float64(height) - (values[i]-b.minY)/b.rangeY*float64(height)
		if i == 0 {
			fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
		} else {
			fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
		}
	}
	sb.WriteString("\"/>\n</svg>\n")
	_, err := io.WriteString(w, sb.String())
	return err
}
