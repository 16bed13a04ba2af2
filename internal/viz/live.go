package viz

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/cellsim/internal/genome"
	"github.com/san-kum/cellsim/internal/geom"
	"github.com/san-kum/cellsim/internal/sim"
)

const (
	width           = 72
	height          = 24
	historyCapacity = 600
	frameCapacity   = 300
)

type TickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second/30, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// Model drives a world from the bubbletea loop and renders it.
type Model struct {
	world *sim.World
	roots []geom.Vec3
	dt    float64
	title string

	canvas    *Canvas
	camera    *Camera
	autoFrame bool
	theme     Theme
	styles    styles

	running  bool
	showHelp bool
	lastErr  error

	population []float64
	energy     []float64
	frames     []sim.Snapshot
	playHead   int

	params   []string
	selected int
	mode     int
}

// NewModel wraps w. roots are respawned on reset.
func NewModel(w *sim.World, roots []geom.Vec3, dt float64, title string) Model {
	theme := Themes[0]
	return Model{
		world:      w,
		roots:      append([]geom.Vec3(nil), roots...),
		dt:         dt,
		title:      title,
		canvas:     NewCanvas(width, height),
		camera:     NewCamera(),
		autoFrame:  true,
		theme:      theme,
		styles:     newStyles(theme),
		running:    true,
		population: make([]float64, 0, historyCapacity),
		energy:     make([]float64, 0, historyCapacity),
		frames:     make([]sim.Snapshot, 0, frameCapacity),
		playHead:   -1,
		params:     genome.Params(),
	}
}

func (m Model) Init() tea.Cmd { return tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			m.reset()
		case "[":
			m.scrub(-1)
		case "]":
			m.scrub(1)
		case "tab":
			m.selected = (m.selected + 1) % len(m.params)
		case "m":
			m.mode = (m.mode + 1) % m.world.Genome().Len()
		case "up", "k":
			m.adjust(1)
		case "down", "j":
			m.adjust(-1)
		case "x":
			m.camera.RotateX(0.1)
		case "X":
			m.camera.RotateX(-0.1)
		case "y":
			m.camera.RotateY(0.1)
		case "Y":
			m.camera.RotateY(-0.1)
		case "z":
			m.camera.RotateZ(0.1)
		case "Z":
			m.camera.RotateZ(-0.1)
		case "+", "=":
			m.autoFrame = false
			m.camera.ZoomIn()
		case "-", "_":
			m.autoFrame = false
			m.camera.ZoomOut()
		case "f":
			m.autoFrame = !m.autoFrame
		case "t":
			m.theme = nextTheme(m.theme.Name)
			m.styles = newStyles(m.theme)
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		if m.running {
			if m.playHead == -1 {
				m.step()
			} else {
				m.playHead++
				if m.playHead >= len(m.frames) {
					m.playHead = -1
				}
			}
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) step() {
	report, err := m.world.Step(context.Background(), m.dt)
	if err != nil {
		m.lastErr = err
		m.running = false
		return
	}
	m.lastErr = nil
	m.population = appendCapped(m.population, float64(report.Population), historyCapacity)
	m.energy = appendCapped(m.energy, report.Physics.KineticEnergy, historyCapacity)
	m.frames = appendCapped(m.frames, m.world.Snapshot(), frameCapacity)
}

func appendCapped[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if len(s) > limit {
		s = s[1:]
	}
	return s
}

// scrub moves the playback position through the recorded frames. Leaving the
// newest frame returns to live stepping.
func (m *Model) scrub(dir int) {
	if m.playHead == -1 {
		if len(m.frames) == 0 {
			return
		}
		m.playHead = len(m.frames) - 1
		m.running = false
	}
	m.playHead += dir
	if m.playHead < 0 {
		m.playHead = 0
	}
	if m.playHead >= len(m.frames) {
		m.playHead = -1
	}
}

func (m *Model) reset() {
	m.world.Reset(nil)
	for _, p := range m.roots {
		if _, err := m.world.SpawnRoot(nil, p); err != nil {
			m.lastErr = err
		}
	}
	m.population = m.population[:0]
	m.energy = m.energy[:0]
	m.frames = m.frames[:0]
	m.playHead = -1
}

// adjust nudges the selected field of the current mode: whole-number fields
// by one, the rest by five percent.
func (m *Model) adjust(dir int) {
	field := m.params[m.selected]
	cur, err := m.world.Genome().ModeAt(m.mode).Param(field)
	if err != nil {
		m.lastErr = err
		return
	}
	next := cur + float64(dir)
	if !genome.Discrete(field) {
		if cur == 0 {
			cur = 1e-3
		}
		next = cur * (1 + 0.05*float64(dir))
	}
	if err := m.world.SetParam(m.mode, field, next); err != nil {
		m.lastErr = err
		return
	}
	m.lastErr = nil
}

func (m Model) current() (sim.Snapshot, string) {
	if m.playHead >= 0 && m.playHead < len(m.frames) {
		snap := m.frames[m.playHead]
		return snap, fmt.Sprintf("REPLAY step %d", snap.Step)
	}
	status := "RUNNING"
	if !m.running {
		status = "PAUSED"
	}
	return m.world.Snapshot(), status
}

func (m Model) View() string {
	snap, status := m.current()
	if m.autoFrame {
		m.camera.Frame(snap)
	}
	m.canvas.Clear()
	Render(m.canvas, snap, m.camera)
	canvasView := m.styles.canvas.Render(m.canvas.String())

	st := m.styles
	var s strings.Builder
	s.WriteString(st.header.Render(strings.ToUpper(m.title)) + "\n")
	if m.running && m.playHead == -1 {
		s.WriteString(status + "\n\n")
	} else {
		s.WriteString(st.paused.Render(status) + "\n\n")
	}
	if len(m.population) > 1 {
		chart := asciigraph.Plot(m.population, asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("Population"))
		s.WriteString(st.graph.Render(chart) + "\n")
	}
	row := func(label, value string) {
		s.WriteString(st.label.Render(label) + st.value.Render(value) + "\n")
	}
	mass := 0.0
	for _, c := range snap.Cells {
		mass += c.Mass
	}
	row("Step", fmt.Sprintf("%d", snap.Step))
	row("Time", fmt.Sprintf("%.2f", snap.Time))
	row("Cells", fmt.Sprintf("%d", len(snap.Cells)))
	row("Bonds", fmt.Sprintf("%d", len(snap.Links)))
	row("Mass", fmt.Sprintf("%.3f", mass))
	row("Energy", Sparkline(m.energy, 20))
	if m.lastErr != nil {
		s.WriteString(st.paused.Render(m.lastErr.Error()) + "\n")
	}

	gen := m.world.Genome()
	mode := gen.ModeAt(m.mode)
	swatch := lipgloss.NewStyle().Foreground(ModeColor(mode.Color)).Render("●")
	s.WriteString(fmt.Sprintf("\nMODE %d/%d %s %s\n", m.mode+1, gen.Len(), swatch, mode.Name))
	lo := max(0, min(m.selected-3, len(m.params)-7))
	for i := lo; i < min(lo+7, len(m.params)); i++ {
		v, _ := mode.Param(m.params[i])
		line := fmt.Sprintf("%-18s %g", m.params[i], v)
		if i == m.selected {
			s.WriteString(st.active.Render("> "+line) + "\n")
		} else {
			s.WriteString("  " + st.value.Render(line) + "\n")
		}
	}
	s.WriteString(st.help.Render("SP:Pause R:Reset Q:Quit ?:Help\nTab:Param M:Mode ↑↓:Tune [ ]:Scrub"))

	mainView := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, st.stats.Render(s.String()))
	if m.showHelp {
		return helpText + "\n" + mainView
	}
	return mainView
}

const helpText = `Space  pause or resume      R      reset to the roots
Tab    next parameter        M      next mode
Up/K   raise parameter       Down/J lower parameter
[ ]    step through frames   F      toggle auto framing
x y z  rotate (shift: back)  + -    zoom
T      cycle theme           Q      quit`
