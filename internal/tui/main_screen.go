package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/opensymbolicai/opensymbolicai-cli/internal/scanner"
)

type scanState int

const (
	scanFound scanState = iota
	scanNoFolder
	scanMissing
	scanEmpty
	scanFailed
)

type agentsScannedMsg struct {
	dir    string
	state  scanState
	agents []scanner.Agent
	err    error
	// quiet scans come from the folder watcher and keep the selection.
	quiet bool
}

var mainKeys = struct {
	Up, Down, Run, Details, Settings, Refresh, Help, Quit key.Binding
}{
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Run:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "run")),
	Details:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "details")),
	Settings: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "settings")),
	Refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:     key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
}

// mainScreen lists discovered agents next to the selected agent's summary.
type mainScreen struct {
	env    *env
	agents []scanner.Agent
	cursor int
	state  scanState

	width, height int
}

func newMainScreen(e *env) *mainScreen {
	return &mainScreen{env: e, state: scanNoFolder}
}

func (m *mainScreen) Init() tea.Cmd { return m.rescan(false) }

func (m *mainScreen) Title() string { return "" }

func (m *mainScreen) SetSize(w, h int) { m.width, m.height = w, h }

func (m *mainScreen) Keys() []key.Binding {
	k := mainKeys
	return []key.Binding{k.Run, k.Details, k.Settings, k.Refresh, k.Help, k.Quit}
}

// rescan scans the configured agents folder in the background.
func (m *mainScreen) rescan(quiet bool) tea.Cmd {
	dir := m.env.settings.AgentsDir()
	sc := m.env.opts.Scanner
	return func() tea.Msg {
		msg := agentsScannedMsg{dir: dir, quiet: quiet}
		if dir == "" {
			msg.state = scanNoFolder
			return msg
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			msg.state = scanMissing
			return msg
		}
		agents, err := sc.ScanDirectory(dir)
		switch {
		case err != nil:
			msg.state, msg.err = scanFailed, err
		case len(agents) == 0:
			msg.state = scanEmpty
		default:
			msg.state, msg.agents = scanFound, agents
		}
		return msg
	}
}

func (m *mainScreen) selected() (scanner.Agent, bool) {
	if m.cursor < 0 || m.cursor >= len(m.agents) {
		return scanner.Agent{}, false
	}
	return m.agents[m.cursor], true
}

func (m *mainScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case agentsScannedMsg:
		return m, m.applyScan(msg)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, mainKeys.Quit):
			return m, tea.Quit
		case key.Matches(msg, mainKeys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, mainKeys.Down):
			if m.cursor < len(m.agents)-1 {
				m.cursor++
			}
		case key.Matches(msg, mainKeys.Refresh):
			return m, m.rescan(false)
		case key.Matches(msg, mainKeys.Help):
			return m, notify("Help: q=quit, d=details, s=settings, r=refresh, enter=run, ?=help")
		case key.Matches(msg, mainKeys.Settings):
			return m, push(newSettingsScreen(m.env))
		case key.Matches(msg, mainKeys.Details):
			a, ok := m.selected()
			if !ok {
				return m, notify("No agent selected")
			}
			if len(a.Methods) == 0 {
				return m, notify("No methods found for this agent")
			}
			return m, push(newDetailsScreen(a))
		case key.Matches(msg, mainKeys.Run):
			a, ok := m.selected()
			if !ok {
				return m, notify("No agent selected")
			}
			return m, push(newRunScreen(m.env, a))
		}
	}
	return m, nil
}

func (m *mainScreen) applyScan(msg agentsScannedMsg) tea.Cmd {
	// A scan of a folder that is no longer configured finished late.
	if msg.dir != m.env.settings.AgentsDir() {
		m.env.log.Debug().Str("dir", msg.dir).Msg("dropping stale scan")
		return nil
	}
	prev, hadPrev := m.selected()
	m.state = msg.state
	m.agents = msg.agents
	m.cursor = 0
	if msg.quiet && hadPrev {
		for i, a := range m.agents {
			if a.FilePath == prev.FilePath && a.ClassName == prev.ClassName {
				m.cursor = i
				break
			}
		}
	}
	m.env.log.Debug().Str("dir", msg.dir).Int("agents", len(m.agents)).Msg("agents scanned")

	if msg.quiet && msg.state == scanFound {
		return nil
	}
	switch msg.state {
	case scanNoFolder:
		return notify("No agents folder configured. Press 's' to set one.")
	case scanMissing:
		return notifyError("Agents folder not found: " + msg.dir)
	case scanEmpty:
		return notify("No agents found in the configured folder.")
	case scanFailed:
		return notifyError(fmt.Sprintf("Scanning %s failed: %v", msg.dir, msg.err))
	}
	text := fmt.Sprintf("Found %d agent(s)", len(m.agents))
	if env := m.missingKey(); env != "" {
		return notifyError(fmt.Sprintf("%s. Set %s to run agents with %s.", text, env, m.env.settings.DefaultProvider))
	}
	return notify(text)
}

func (m *mainScreen) missingKey() string {
	return m.env.settings.MissingAPIKey(m.env.settings.DefaultProvider)
}

func (m *mainScreen) View() string {
	sideWidth := max(m.width/4, 24)
	mainWidth := max(m.width-sideWidth-4, 30)
	innerHeight := max(m.height-2, 3)

	side := panelStyle.Width(sideWidth - 2).Height(innerHeight).Render(m.sidebarView(innerHeight))
	details := secondaryPanelStyle.Width(mainWidth - 2).Height(innerHeight).Render(m.detailsView())
	return lipgloss.JoinHorizontal(lipgloss.Top, side, details)
}

func (m *mainScreen) sidebarView(height int) string {
	var b strings.Builder
	b.WriteString(panelTitleStyle.Render("Agents"))
	b.WriteByte('\n')

	rows := max(height-2, 1)
	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	for i := start; i < len(m.agents) && i < start+rows; i++ {
		name := m.agents[i].Name
		if i == m.cursor {
			b.WriteString(selectedStyle.Render(" " + name + " "))
		} else {
			b.WriteString(" " + name)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (m *mainScreen) detailsView() string {
	var b strings.Builder
	b.WriteString(panelTitleStyle.Render("Agent Details"))
	b.WriteByte('\n')

	if env := m.missingKey(); env != "" {
		b.WriteString(warningStyle.Render(fmt.Sprintf("⚠ %s is not set. Runs with %s will fail.", env, m.env.settings.DefaultProvider)))
		b.WriteString("\n\n")
	}

	a, ok := m.selected()
	if !ok {
		b.WriteString(italicStyle.Render("Select an agent to view details"))
		return b.String()
	}
	b.WriteString(agentSummary(a))
	return b.String()
}

// agentSummary renders the high-level facts about an agent.
func agentSummary(a scanner.Agent) string {
	var lines []string
	lines = append(lines, panelTitleStyle.UnsetMarginBottom().Render(a.Name))
	if a.Description != "" {
		lines = append(lines, mutedStyle.Render(a.Description), "")
	}
	lines = append(lines,
		"Class: "+boldStyle.Render(a.ClassName),
		"Base: "+a.BaseClass,
	)
	if a.Version != "" {
		lines = append(lines, "Version: "+a.Version)
	}
	lines = append(lines, "File: "+filepath.Base(a.FilePath), "")

	caps := a.Capabilities()
	lines = append(lines,
		boldStyle.Foreground(pink).Render("Capabilities"),
		fmt.Sprintf("  Primitives: %d", caps.Primitives),
	)
	if caps.Primitives > 0 {
		lines = append(lines,
			fmt.Sprintf("    Read-only: %d", caps.ReadOnly),
			fmt.Sprintf("    Mutable: %d", caps.Mutable),
		)
	}
	lines = append(lines, fmt.Sprintf("  Decompositions: %d", caps.Decompositions))
	return strings.Join(lines, "\n")
}
