package viz

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/cellsim/internal/config"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type entry struct {
	genome, preset string
}

// Menu lists the built-in presets and opens the live view on the chosen one.
type Menu struct {
	entries []entry
	cursor  int
	live    *Model
	err     error
}

func NewMenu() Menu {
	var entries []entry
	for _, g := range config.ListGenomes() {
		for _, p := range config.ListPresets(g) {
			entries = append(entries, entry{genome: g, preset: p})
		}
	}
	return Menu{entries: entries}
}

func (m Menu) Init() tea.Cmd { return nil }

func (m Menu) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.live != nil {
		next, cmd := m.live.Update(msg)
		live := next.(Model)
		m.live = &live
		return m, cmd
	}

	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case "enter":
		if len(m.entries) == 0 {
			return m, nil
		}
		e := m.entries[m.cursor]
		cfg := config.GetPreset(e.genome, e.preset)
		w, err := cfg.NewWorld(nil)
		if err != nil {
			m.err = err
			return m, nil
		}
		live := NewModel(w, cfg.Roots, cfg.Dt, fmt.Sprintf("%s / %s", e.genome, e.preset))
		m.live = &live
		return m, live.Init()
	}
	return m, nil
}

func (m Menu) View() string {
	if m.live != nil {
		return m.live.View()
	}
	var s strings.Builder
	s.WriteString(cyan.Render("cellsim") + dim.Render("  choose a preset") + "\n\n")
	for i, e := range m.entries {
		line := fmt.Sprintf("%-12s %s", e.genome, e.preset)
		if i == m.cursor {
			s.WriteString(yellow.Render("> "+line) + "\n")
		} else {
			s.WriteString("  " + line + "\n")
		}
	}
	if m.err != nil {
		s.WriteString("\n" + red.Render(m.err.Error()) + "\n")
	}
	s.WriteString("\n" + dim.Render("↑↓ move  enter open  q quit"))
	return s.String()
}
