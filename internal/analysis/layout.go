package analysis

import (
	"strings"

	"github.com/san-kum/cellsim/internal/sim"
)

// Layout draws a top-down (x, y) projection of the cells into a width by
// height character grid. Bonds are not drawn.
func Layout(cells []sim.CellView, width, height int) string {
	if len(cells) == 0 || width < 2 || height < 2 {
		return ""
	}

	minX, maxX := cells[0].Position.X, cells[0].Position.X
	minY, maxY := cells[0].Position.Y, cells[0].Position.Y
	for _, c := range cells {
		minX = min(minX, c.Position.X-c.Radius)
		maxX = max(maxX, c.Position.X+c.Radius)
		minY = min(minY, c.Position.Y-c.Radius)
		maxY = max(maxY, c.Position.Y+c.Radius)
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	minY -= rangeY * 0.1
	rangeX *= 1.2
	rangeY *= 1.2

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}

	for _, c := range cells {
		col := int((c.Position.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((c.Position.Y-minY)/rangeY*float64(height-1))
		if row < 0 || row >= height || col < 0 || col >= width {
			continue
		}
		switch canvas[row][col] {
		case ' ':
			canvas[row][col] = glyph(c.Mode)
		default:
			canvas[row][col] = '#'
		}
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(strings.TrimRight(string(row), " "))
		sb.WriteRune('\n')
	}
	return sb.String()
}

var glyphs = []rune("o*+x%@&")

func glyph(mode int) rune {
	if mode < 0 {
		return '?'
	}
	return glyphs[mode%len(glyphs)]
}
