// Package tui is the interactive agent runner: an agent list, a settings
// screen, a method browser and a conversation screen for running queries.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/opensymbolicai/opensymbolicai-cli/internal/config"
	"github.com/opensymbolicai/opensymbolicai-cli/internal/llm"
	"github.com/opensymbolicai/opensymbolicai-cli/internal/logging"
	"github.com/opensymbolicai/opensymbolicai-cli/internal/runtime"
	"github.com/opensymbolicai/opensymbolicai-cli/internal/scanner"
	"github.com/opensymbolicai/opensymbolicai-cli/internal/store"
)

const (
	appTitle       = "OpenSymbolicAI Agent Runner"
	noticeDuration = 4 * time.Second
)

// AgentSession runs queries against one loaded agent.
type AgentSession interface {
	Start(ctx context.Context, req runtime.StartRequest) error
	Run(ctx context.Context, query string, onMutation runtime.MutationHandler) (*runtime.Result, error)
	Close() error
}

// Options wires the application to its services. Zero-valued fields get
// working defaults.
type Options struct {
	Settings     config.Settings
	SettingsPath string
	Scanner      *scanner.Scanner
	// Models caches provider model lists; nil queries providers every time.
	Models *store.ModelCache
	// Providers builds the provider clients for the given settings.
	Providers func(config.Settings) *llm.Registry
	// NewSession creates the execution session for a run screen.
	NewSession func(config.Settings) AgentSession
	// Watch rescans the agents folder when its Python files change.
	Watch bool
	Log   *logging.Logger
}

// env is the state shared by every screen. Only App.Update mutates it.
type env struct {
	opts     Options
	settings config.Settings
	log      *logging.Logger
}

func (e *env) registry() *llm.Registry {
	return e.opts.Providers(e.settings)
}

// screen is one page of the application.
type screen interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (screen, tea.Cmd)
	View() string
	SetSize(width, height int)
	Title() string
	Keys() []key.Binding
}

// closer is implemented by screens holding resources.
type closer interface {
	Close() tea.Cmd
}

type (
	pushMsg   struct{ s screen }
	popMsg    struct{}
	noticeMsg struct {
		text string
		err  bool
	}
	noticeExpiredMsg struct{ seq int }

	// saveSettingsMsg persists settings and optionally rescans the agents.
	saveSettingsMsg struct {
		settings config.Settings
		notice   string
		rescan   bool
	}
	agentsChangedMsg struct{ gen int }
)

func push(s screen) tea.Cmd { return func() tea.Msg { return pushMsg{s} } }

func pop() tea.Msg { return popMsg{} }

func notify(text string) tea.Cmd {
	return func() tea.Msg { return noticeMsg{text: text} }
}

func notifyError(text string) tea.Cmd {
	return func() tea.Msg { return noticeMsg{text: text, err: true} }
}

// App is the root Bubble Tea model. It owns the screen stack and routes
// messages to the screen on top.
type App struct {
	env   *env
	main  *mainScreen
	stack []screen
	help  help.Model

	width, height int

	notice    string
	noticeErr bool
	noticeSeq int

	watchCancel context.CancelFunc
	watchGen    int
	changes     chan int
}

// New creates the application model.
func New(opts Options) *App {
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}
	log := opts.Log.Sub("tui")
	if opts.Scanner == nil {
		opts.Scanner = scanner.New(opts.Log)
	}
	if opts.Providers == nil {
		hc := llm.NewHTTPClient(opts.Log)
		opts.Providers = func(s config.Settings) *llm.Registry {
			return llm.NewRegistryFromSettings(s, hc, opts.Log)
		}
	}
	if opts.NewSession == nil {
		opts.NewSession = func(s config.Settings) AgentSession {
			return runtime.NewSession(runtime.ConfigFromSettings(s), opts.Log)
		}
	}

	e := &env{opts: opts, settings: opts.Settings, log: log}
	m := newMainScreen(e)
	return &App{
		env:     e,
		main:    m,
		stack:   []screen{m},
		help:    help.New(),
		changes: make(chan int, 1),
	}
}

// Run starts the interactive program and blocks until the user quits or
// ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	app := New(opts)
	defer app.Close()
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// Close stops the folder watcher and releases every open screen.
func (a *App) Close() {
	a.stopWatch()
	for i := len(a.stack) - 1; i >= 0; i-- {
		if c, ok := a.stack[i].(closer); ok {
			if cmd := c.Close(); cmd != nil {
				cmd()
			}
		}
	}
	a.stack = a.stack[:1]
}

func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{tea.SetWindowTitle(appTitle), a.main.Init()}
	if a.env.opts.Watch {
		a.restartWatch()
		cmds = append(cmds, a.waitForChange())
	}
	return tea.Batch(cmds...)
}

func (a *App) top() screen { return a.stack[len(a.stack)-1] }

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.help.Width = msg.Width
		for _, s := range a.stack {
			s.SetSize(a.contentSize())
		}
		return a, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return a, tea.Quit
		}

	case pushMsg:
		msg.s.SetSize(a.contentSize())
		a.stack = append(a.stack, msg.s)
		return a, msg.s.Init()

	case popMsg:
		if len(a.stack) == 1 {
			return a, nil
		}
		s := a.top()
		a.stack = a.stack[:len(a.stack)-1]
		if c, ok := s.(closer); ok {
			return a, c.Close()
		}
		return a, nil

	case noticeMsg:
		a.noticeSeq++
		a.notice, a.noticeErr = msg.text, msg.err
		if msg.err {
			a.env.log.Warn().Msg(msg.text)
		}
		seq := a.noticeSeq
		return a, tea.Tick(noticeDuration, func(time.Time) tea.Msg { return noticeExpiredMsg{seq} })

	case noticeExpiredMsg:
		if msg.seq == a.noticeSeq {
			a.notice = ""
		}
		return a, nil

	case saveSettingsMsg:
		return a, a.saveSettings(msg)

	case agentsChangedMsg:
		if msg.gen != a.watchGen {
			return a, a.waitForChange()
		}
		a.env.log.Debug().Msg("agents folder changed")
		return a, tea.Batch(a.main.rescan(true), a.waitForChange())

	case agentsScannedMsg:
		// Scan results always belong to the main screen.
		s, cmd := a.main.Update(msg)
		a.main = s.(*mainScreen)
		a.stack[0] = a.main
		return a, cmd
	}

	s, cmd := a.top().Update(msg)
	a.stack[len(a.stack)-1] = s
	if len(a.stack) == 1 {
		a.main = s.(*mainScreen)
	}
	return a, cmd
}

// saveSettings applies msg.settings and persists the fields that changed.
func (a *App) saveSettings(msg saveSettingsMsg) tea.Cmd {
	prev := a.env.settings
	prevDir := prev.AgentsDir()
	a.env.settings = msg.settings
	var cmds []tea.Cmd
	if path := a.env.opts.SettingsPath; path != "" {
		if err := config.SaveChanges(path, prev, msg.settings); err != nil {
			a.env.log.Error().Err(err).Str("path", path).Msg("saving settings")
			cmds = append(cmds, notifyError(fmt.Sprintf("Could not save settings: %v", err)))
		} else if msg.notice != "" {
			cmds = append(cmds, notify(msg.notice))
		}
	} else if msg.notice != "" {
		cmds = append(cmds, notify(msg.notice))
	}
	if msg.rescan {
		cmds = append(cmds, a.main.rescan(false))
		if a.env.opts.Watch && a.env.settings.AgentsDir() != prevDir {
			a.restartWatch()
		}
	}
	return tea.Batch(cmds...)
}

// restartWatch watches the current agents folder, replacing any previous
// watcher. Change notifications carry a generation so stale ones are
// dropped.
func (a *App) restartWatch() {
	a.stopWatch()
	a.watchGen++
	dir := a.env.settings.AgentsDir()
	if dir == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.watchCancel = cancel
	gen := a.watchGen
	changes := a.changes
	sc := a.env.opts.Scanner
	log := a.env.log

	go func() {
		err := sc.Watch(ctx, dir, 0, func() {
			select {
			case changes <- gen:
			default:
			}
		})
		if err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("agents folder watcher stopped")
		}
	}()
}

func (a *App) stopWatch() {
	if a.watchCancel != nil {
		a.watchCancel()
		a.watchCancel = nil
	}
}

func (a *App) waitForChange() tea.Cmd {
	changes := a.changes
	return func() tea.Msg {
		return agentsChangedMsg{gen: <-changes}
	}
}

// contentSize is the area left for a screen below the title bar and above
// the notice and help lines.
func (a *App) contentSize() (int, int) {
	return a.width, max(a.height-3, 0)
}

func (a *App) View() string {
	s := a.top()

	title := appTitleStyle.Render(appTitle)
	if t := s.Title(); t != "" {
		title += screenTitleStyle.Render(t)
	}

	notice := ""
	if a.notice != "" {
		if a.noticeErr {
			notice = noticeErrorStyle.Render(a.notice)
		} else {
			notice = noticeStyle.Render(a.notice)
		}
	}

	body := s.View()
	if _, h := a.contentSize(); h > 0 {
		body = lipgloss.NewStyle().Height(h).MaxHeight(h).Render(body)
	}

	return strings.Join([]string{
		title,
		body,
		notice,
		a.help.ShortHelpView(s.Keys()),
	}, "\n")
}
