package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/opensymbolicai/opensymbolicai-cli/internal/scanner"
)

var detailsKeys = struct {
	Up, Down, PageUp, PageDown, Back key.Binding
}{
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/↓", "method")),
	Down:     key.NewBinding(key.WithKeys("down", "j")),
	PageUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup/pgdn", "scroll source")),
	PageDown: key.NewBinding(key.WithKeys("pgdown")),
	Back:     key.NewBinding(key.WithKeys("esc", "q"), key.WithHelp("esc", "back")),
}

// detailsScreen browses an agent's primitives and decompositions with
// their source.
type detailsScreen struct {
	agent   scanner.Agent
	methods []scanner.Method
	cursor  int
	source  viewport.Model

	width, height int
}

func newDetailsScreen(a scanner.Agent) *detailsScreen {
	d := &detailsScreen{
		agent:   a,
		methods: append(a.Primitives(), a.Decompositions()...),
		source:  viewport.New(60, 20),
	}
	d.showMethod()
	return d
}

func (d *detailsScreen) Init() tea.Cmd { return nil }

func (d *detailsScreen) Title() string { return "Agent: " + d.agent.Name }

func (d *detailsScreen) Keys() []key.Binding {
	return []key.Binding{detailsKeys.Up, detailsKeys.PageUp, detailsKeys.Back}
}

func (d *detailsScreen) SetSize(w, h int) {
	d.width, d.height = w, h
	d.source.Width = max(w*2/3-4, 20)
	d.source.Height = max(h-4, 3)
}

func (d *detailsScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return d, nil
	}
	switch {
	case key.Matches(km, detailsKeys.Back):
		return d, pop
	case key.Matches(km, detailsKeys.Up):
		if d.cursor > 0 {
			d.cursor--
			d.showMethod()
		}
	case key.Matches(km, detailsKeys.Down):
		if d.cursor < len(d.methods)-1 {
			d.cursor++
			d.showMethod()
		}
	case key.Matches(km, detailsKeys.PageUp, detailsKeys.PageDown):
		var cmd tea.Cmd
		d.source, cmd = d.source.Update(msg)
		return d, cmd
	}
	return d, nil
}

func (d *detailsScreen) current() (scanner.Method, bool) {
	if d.cursor >= len(d.methods) {
		return scanner.Method{}, false
	}
	return d.methods[d.cursor], true
}

func (d *detailsScreen) showMethod() {
	m, ok := d.current()
	if !ok || m.Source == "" {
		d.source.SetContent(dimStyle.Render("Source code not available"))
		return
	}
	d.source.SetContent(numberLines(m.Source, m.Line))
	d.source.GotoTop()
}

// numberLines prefixes each source line with its line number in the file.
func numberLines(src string, first int) string {
	if first < 1 {
		first = 1
	}
	lines := strings.Split(src, "\n")
	width := len(fmt.Sprint(first + len(lines) - 1))
	for i, l := range lines {
		lines[i] = dimStyle.Render(fmt.Sprintf("%*d │ ", width, first+i)) + l
	}
	return strings.Join(lines, "\n")
}

func methodIcon(m scanner.Method) string {
	if m.Kind == scanner.KindPrimitive {
		return "●"
	}
	return "↳"
}

func (d *detailsScreen) View() string {
	leftWidth := max(d.width/3, 30)
	rightWidth := max(d.width-leftWidth-4, 30)
	innerHeight := max(d.height-2, 3)

	var left strings.Builder
	left.WriteString(panelTitleStyle.Render("Methods"))
	left.WriteByte('\n')
	left.WriteString(dimStyle.Render("● primitive  ↳ decomposition"))
	left.WriteString("\n\n")
	for i, m := range d.methods {
		line := methodIcon(m) + " " + m.Name
		if m.ReadOnly {
			line += dimStyle.Render(" (ro)")
		}
		if i == d.cursor {
			line = selectedStyle.Render(methodIcon(m)+" "+m.Name) + strings.TrimPrefix(line, methodIcon(m)+" "+m.Name)
		}
		left.WriteString(line)
		left.WriteByte('\n')
	}
	if m, ok := d.current(); ok {
		left.WriteByte('\n')
		left.WriteString(methodInfo(m))
	}

	right := panelTitleStyle.Render("Source Code") + "\n" + d.source.View()

	return lipgloss.JoinHorizontal(lipgloss.Top,
		panelStyle.Width(leftWidth-2).Height(innerHeight).Render(left.String()),
		secondaryPanelStyle.Width(rightWidth-2).Height(innerHeight).Render(right),
	)
}

// methodInfo summarises a method's kind, intent and signature.
func methodInfo(m scanner.Method) string {
	inputs, returns := scanner.ParseSignature(m.Signature)

	lines := []string{
		boldStyle.Render(m.Name),
		"Type: " + m.Kind,
	}
	if m.Kind == scanner.KindPrimitive {
		ro := "No"
		if m.ReadOnly {
			ro = "Yes"
		}
		lines = append(lines, "Read-only: "+ro)
	} else if m.Intent != "" {
		lines = append(lines, "Intent: "+m.Intent)
		if m.ExpandedIntent != "" {
			lines = append(lines, "Expanded: "+m.ExpandedIntent)
		}
	}
	if m.Docstring != "" {
		first, _, _ := strings.Cut(m.Docstring, "\n")
		lines = append(lines, mutedStyle.Render(first))
	}

	lines = append(lines, "", boldStyle.Render("Inputs:"))
	if len(inputs) == 0 {
		lines = append(lines, dimStyle.Render("  (none)"))
	}
	for _, in := range inputs {
		lines = append(lines, "  • "+in)
	}
	lines = append(lines, "", boldStyle.Render("Returns:")+" "+returns)
	return strings.Join(lines, "\n")
}
