package viz

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/cellsim/internal/geom"
)

// Theme is the palette of the live view.
type Theme struct {
	Name    string
	Primary lipgloss.Color
	Accent  lipgloss.Color
	Text    lipgloss.Color
	Muted   lipgloss.Color
	Warning lipgloss.Color
}

var Themes = []Theme{
	{Name: "lab", Primary: "#00ffff", Accent: "#ff00ff", Text: "#ffffff", Muted: "#666688", Warning: "#ffaa00"},
	{Name: "agar", Primary: "#f2d388", Accent: "#c98474", Text: "#fff7e6", Muted: "#8c7a6b", Warning: "#ff6b6b"},
	{Name: "phosphor", Primary: "#00ff00", Accent: "#88ff88", Text: "#00ff00", Muted: "#005500", Warning: "#ffff00"},
}

func GetTheme(name string) Theme {
	for _, t := range Themes {
		if t.Name == name {
			return t
		}
	}
	return Themes[0]
}

func nextTheme(current string) Theme {
	for i, t := range Themes {
		if t.Name == current {
			return Themes[(i+1)%len(Themes)]
		}
	}
	return Themes[0]
}

type styles struct {
	canvas, stats, header, label, value, active, graph, help, paused lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		canvas: lipgloss.NewStyle().Padding(1, 2).Foreground(t.Text),
		stats: lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(t.Muted).Padding(1, 2).Width(46),
		header: lipgloss.NewStyle().Foreground(t.Primary).Bold(true).MarginBottom(1),
		label:  lipgloss.NewStyle().Foreground(t.Muted).Width(12),
		value:  lipgloss.NewStyle().Foreground(t.Text),
		active: lipgloss.NewStyle().Foreground(t.Accent).Bold(true),
		graph:  lipgloss.NewStyle().Foreground(t.Primary).Padding(1, 0),
		help:   lipgloss.NewStyle().Foreground(t.Muted).MarginTop(1),
		paused: lipgloss.NewStyle().Foreground(t.Warning).Bold(true),
	}
}

// ModeColor converts a genome colour in [0,1] to a terminal colour.
func ModeColor(c geom.Vec3) lipgloss.Color {
	channel := func(v float64) int {
		if math.IsNaN(v) {
			return 0
		}
		return int(math.Round(math.Max(0, math.Min(1, v)) * 255))
	}
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", channel(c.X), channel(c.Y), channel(c.Z)))
}

// Sparkline renders values as a one-line bar chart, sampling to width.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return strings.Repeat("─", max(width, 0))
	}
	chars := []rune("▁▂▃▄▅▆▇█")

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}

	step := max(len(values)/width, 1)
	var b strings.Builder
	for i := 0; i < width && i*step < len(values); i++ {
		idx := int((values[i*step] - lo) / span * float64(len(chars)-1))
		idx = max(0, min(idx, len(chars)-1))
		b.WriteRune(chars[idx])
	}
	return b.String()
}
