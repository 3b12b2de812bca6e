package browser

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/toolmesh/routecore/internal/orchestrator"
)

// Result is the terminal outcome of a browser session: the hit the user
// selected with Enter, or nil if they quit without selecting one.
type Result struct {
	Selected *orchestrator.Hit
}

type model struct {
	hits     []orchestrator.Hit
	cursor   int
	styles   styles
	quitting bool
	picked   *orchestrator.Hit
}

func newModel(hits []orchestrator.Hit) model {
	return model{hits: hits, styles: defaultStyles()}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch keyMsg.String() {
	case "ctrl+c", "q", "esc":
		m.quitting = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.hits)-1 {
			m.cursor++
		}
	case "enter":
		if m.cursor < len(m.hits) {
			h := m.hits[m.cursor]
			m.picked = &h
		}
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	if len(m.hits) == 0 {
		return m.styles.dim.Render("no results\n")
	}

	var b strings.Builder
	b.WriteString(m.styles.header.Render(fmt.Sprintf("%d results", len(m.hits))))
	b.WriteString("\n\n")

	for i, h := range m.hits {
		line := fmt.Sprintf("%s.%s", h.SkillName, h.CommandName)
		confStyle, ok := m.styles.confidence[string(h.Confidence)]
		if !ok {
			confStyle = m.styles.dim
		}
		bar := scoreBar(m.styles.scoreBar, h.FinalScore)

		prefix := "  "
		render := m.styles.dim.Render
		if i == m.cursor {
			prefix = "▸ "
			render = m.styles.selected.Render
		}

		b.WriteString(fmt.Sprintf("%s%s  %s  %s\n", prefix, render(line), bar, confStyle.Render(string(h.Confidence))))
	}

	b.WriteString("\n")
	b.WriteString(m.styles.help.Render("↑/↓ move · enter select · q quit"))
	b.WriteString("\n")
	return b.String()
}

// Run launches the interactive result browser over hits and blocks until
// the user quits or selects one. Requires the output to be a TTY; callers
// should check that before invoking Run.
func Run(hits []orchestrator.Hit) (*Result, error) {
	p := tea.NewProgram(newModel(hits))
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("browser session failed: %w", err)
	}

	m, ok := final.(model)
	if !ok {
		return &Result{}, nil
	}
	return &Result{Selected: m.picked}, nil
}
