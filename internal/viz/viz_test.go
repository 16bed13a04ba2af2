package viz

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/cellsim/internal/genome"
	"github.com/san-kum/cellsim/internal/geom"
	"github.com/san-kum/cellsim/internal/sim"
)

func TestCanvasSet(t *testing.T) {
	c := NewCanvas(2, 1)
	c.Set(0, 0)
	c.Set(3, 3)
	c.Set(-1, 0)
	c.Set(4, 0)

	if c.Grid[0][0] != 0x2801 {
		t.Errorf("expected dot 1, got %U", c.Grid[0][0])
	}
	if c.Grid[0][1] != 0x2880 {
		t.Errorf("expected dot 8, got %U", c.Grid[0][1])
	}
	if !c.IsSet(3, 3) || c.IsSet(2, 0) {
		t.Error("unexpected IsSet result")
	}

	c.Clear()
	if c.String() != "⠀⠀\n" {
		t.Errorf("expected blank canvas, got %q", c.String())
	}
}

func TestCanvasCircle(t *testing.T) {
	c := NewCanvas(10, 5)
	c.Circle(10, 10, 4)
	for _, p := range [][2]int{{14, 10}, {6, 10}, {10, 14}, {10, 6}} {
		if !c.IsSet(p[0], p[1]) {
			t.Errorf("expected (%d,%d) on the circle", p[0], p[1])
		}
	}
	if c.IsSet(10, 10) {
		t.Error("centre should be empty")
	}
}

func TestCanvasLine(t *testing.T) {
	c := NewCanvas(5, 2)
	c.DrawLine(0, 0, 9, 7)
	if !c.IsSet(0, 0) || !c.IsSet(9, 7) {
		t.Error("expected both endpoints set")
	}
}

func TestCameraProject(t *testing.T) {
	cam := NewCamera()
	x, y, _, _, ok := cam.Project(geom.Vec3{}, 100, 80)
	if !ok || x != 50 || y != 40 {
		t.Errorf("expected origin at centre, got (%d,%d) ok=%v", x, y, ok)
	}
	x2, y2, _, _, _ := cam.Project(geom.V(1, 1, 0), 100, 80)
	if x2 <= x || y2 >= y {
		t.Errorf("expected +x right and +y up, got (%d,%d)", x2, y2)
	}
	if _, _, _, _, ok := cam.Project(geom.V(0, 0, 100), 100, 80); ok {
		t.Error("expected points behind the camera to be hidden")
	}
}

func TestCameraFrame(t *testing.T) {
	cam := NewCamera()
	cam.Frame(sim.Snapshot{Cells: []sim.CellView{
		{Position: geom.V(10, 0, 0), Radius: 1},
		{Position: geom.V(12, 0, 0), Radius: 1},
	}})
	if cam.Target != geom.V(11, 0, 0) {
		t.Errorf("expected target (11,0,0), got %v", cam.Target)
	}
}

func TestRender(t *testing.T) {
	c := NewCanvas(20, 10)
	snap := sim.Snapshot{
		Cells: []sim.CellView{
			{ID: 1, Position: geom.V(-2, 0, 0), Radius: 1},
			{ID: 2, Position: geom.V(2, 0, 0), Radius: 1},
		},
		Links: []sim.Link{{Bond: 1, A: 1, B: 2}},
	}
	cam := NewCamera()
	Render(c, snap, cam)

	w, h := c.Dots()
	x, y, _, _, _ := cam.Project(geom.Vec3{}, w, h)
	if !c.IsSet(x, y) {
		t.Error("expected the bond to pass through the origin")
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline(nil, 3); got != "───" {
		t.Errorf("expected empty line, got %q", got)
	}
	if got := Sparkline([]float64{0, 1}, 10); got != "▁█" {
		t.Errorf("expected ▁█, got %q", got)
	}
}

func TestModeColor(t *testing.T) {
	tests := []struct {
		in       geom.Vec3
		expected string
	}{
		{geom.V(1, 0, 0), "#ff0000"},
		{geom.V(0.5, 2, -1), "#80ff00"},
	}
	for _, tt := range tests {
		if got := string(ModeColor(tt.in)); got != tt.expected {
			t.Errorf("expected %s, got %s", tt.expected, got)
		}
	}
}

func liveModel(t *testing.T) Model {
	t.Helper()
	cfg := sim.DefaultConfig()
	cfg.RootMass = 1
	w, err := sim.New(genome.Default(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	roots := []geom.Vec3{{}}
	if _, err := w.SpawnRoot(nil, roots[0]); err != nil {
		t.Fatal(err)
	}
	return NewModel(w, roots, 0.1, "test")
}

func send(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func key(s string) tea.KeyMsg {
	switch s {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelTickSteps(t *testing.T) {
	m := liveModel(t)
	for i := 0; i < 5; i++ {
		m = send(m, TickMsg{})
	}
	if m.world.StepCount() != 5 {
		t.Errorf("expected 5 steps, got %d", m.world.StepCount())
	}
	if len(m.frames) != 5 || len(m.population) != 5 {
		t.Errorf("expected 5 recorded frames, got %d", len(m.frames))
	}

	m = send(m, key(" "))
	m = send(m, TickMsg{})
	if m.world.StepCount() != 5 {
		t.Error("paused model should not step")
	}
}

func TestModelScrubAndReset(t *testing.T) {
	m := liveModel(t)
	for i := 0; i < 3; i++ {
		m = send(m, TickMsg{})
	}
	m = send(m, key("["))
	if m.playHead != 1 || m.running {
		t.Errorf("expected paused replay at frame 1, got %d running=%v", m.playHead, m.running)
	}
	if snap, _ := m.current(); snap.Step != 2 {
		t.Errorf("expected replayed step 2, got %d", snap.Step)
	}
	m = send(m, key("]"))
	m = send(m, key("]"))
	if m.playHead != -1 {
		t.Errorf("expected live view, got playhead %d", m.playHead)
	}

	m = send(m, key("r"))
	if m.world.StepCount() != 0 || m.world.Len() != 1 || len(m.frames) != 0 {
		t.Errorf("expected a fresh world with one root, got step %d cells %d", m.world.StepCount(), m.world.Len())
	}
}

func TestModelAdjustParam(t *testing.T) {
	m := liveModel(t)
	for m.params[m.selected] != genome.ParamGrowthRate {
		m = send(m, key("tab"))
	}
	before := m.world.Genome().ModeAt(0).GrowthRate
	m = send(m, key("up"))
	after := m.world.Genome().ModeAt(0).GrowthRate
	if after <= before {
		t.Errorf("expected growth rate to rise from %v, got %v", before, after)
	}

	for m.params[m.selected] != genome.ParamMaxAdhesions {
		m = send(m, key("tab"))
	}
	m = send(m, key("up"))
	if got := m.world.Genome().ModeAt(0).MaxAdhesions; got != 11 {
		t.Errorf("expected max_adhesions 11, got %d", got)
	}
}

func TestModelView(t *testing.T) {
	m := liveModel(t)
	m = send(m, TickMsg{})
	m = send(m, TickMsg{})
	out := m.View()
	for _, want := range []string{"TEST", "Cells", "MODE 1/1"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in view", want)
		}
	}
}

func TestMenu(t *testing.T) {
	menu := NewMenu()
	if len(menu.entries) == 0 {
		t.Fatal("expected presets in the menu")
	}
	next, cmd := menu.Update(tea.KeyMsg{Type: tea.KeyEnter})
	menu = next.(Menu)
	if menu.live == nil {
		t.Fatalf("expected the live view to open, err=%v", menu.err)
	}
	if cmd == nil {
		t.Error("expected a tick command")
	}
	if menu.live.world.Len() == 0 {
		t.Error("expected preset roots to be spawned")
	}
}
