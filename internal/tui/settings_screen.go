package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/opensymbolicai/opensymbolicai-cli/internal/config"
	"github.com/opensymbolicai/opensymbolicai-cli/internal/llm"
	"github.com/opensymbolicai/opensymbolicai-cli/internal/store"
)

const (
	modelsTimeout = 15 * time.Second
	pingTimeout   = 30 * time.Second
	loadingModels = "Loading..."
	noModels      = "No models available"
)

type settingsField int

const (
	fieldFolder settingsField = iota
	fieldProvider
	fieldModel
	fieldCount
)

type (
	modelsLoadedMsg struct {
		seq      int
		provider string
		models   []string
		err      error
	}
	pingDoneMsg struct {
		result *llm.PingResult
		err    error
	}
)

var settingsKeys = struct {
	Next, Prev, Left, Right, Browse, Reload, Test, Save, Cancel key.Binding
}{
	Next:   key.NewBinding(key.WithKeys("tab", "down"), key.WithHelp("tab", "next field")),
	Prev:   key.NewBinding(key.WithKeys("shift+tab", "up"), key.WithHelp("shift+tab", "prev field")),
	Left:   key.NewBinding(key.WithKeys("left"), key.WithHelp("←/→", "change")),
	Right:  key.NewBinding(key.WithKeys("right")),
	Browse: key.NewBinding(key.WithKeys("ctrl+b"), key.WithHelp("ctrl+b", "browse")),
	Reload: key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "reload models")),
	Test:   key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "test")),
	Save:   key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "save")),
	Cancel: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
}

// settingsScreen edits the agents folder and the provider and model used
// for runs.
type settingsScreen struct {
	env *env

	folder   textinput.Model
	browsing bool
	browser  dirBrowser

	focus       settingsField
	providers   []string
	providerIdx int

	models      []string
	modelIdx    int
	modelStatus string
	loadSeq     int

	testing  bool
	spinner  spinner.Model
	spinning bool

	width, height int
}

func newSettingsScreen(e *env) *settingsScreen {
	ti := textinput.New()
	ti.Placeholder = "Not set"
	ti.Prompt = ""
	ti.CharLimit = 4096
	ti.SetValue(e.settings.AgentsFolder)
	ti.Focus()

	s := &settingsScreen{
		env:       e,
		folder:    ti,
		providers: config.KnownProviders,
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
	if i := slices.Index(s.providers, e.settings.DefaultProvider); i >= 0 {
		s.providerIdx = i
	}
	return s
}

func (s *settingsScreen) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, s.loadModels(false))
}

func (s *settingsScreen) Title() string { return "Settings" }

func (s *settingsScreen) SetSize(w, h int) {
	s.width, s.height = w, h
	s.folder.Width = max(w-24, 20)
	s.browser.height = max(h-16, 4)
}

func (s *settingsScreen) Keys() []key.Binding {
	k := settingsKeys
	return []key.Binding{k.Next, k.Left, k.Browse, k.Reload, k.Test, k.Save, k.Cancel}
}

func (s *settingsScreen) provider() string { return s.providers[s.providerIdx] }

func (s *settingsScreen) model() string {
	if s.modelIdx < 0 || s.modelIdx >= len(s.models) {
		return ""
	}
	return s.models[s.modelIdx]
}

// loadModels fetches the selected provider's models in the background.
// Only the reply to the latest request is applied.
func (s *settingsScreen) loadModels(refresh bool) tea.Cmd {
	s.loadSeq++
	seq := s.loadSeq
	provider := s.provider()
	s.models, s.modelIdx, s.modelStatus = nil, 0, loadingModels

	reg := s.env.registry()
	cache := s.env.opts.Models
	load := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), modelsTimeout)
		defer cancel()

		var lister store.ModelLister
		if c, err := reg.Get(provider); err == nil {
			lister = c
		}
		var (
			models []string
			err    error
		)
		switch {
		case cache != nil:
			models, err = cache.Models(ctx, provider, lister, refresh)
		case lister == nil:
			err = fmt.Errorf("unknown provider: %s", provider)
		default:
			models, err = lister.ListModels(ctx)
		}
		return modelsLoadedMsg{seq: seq, provider: provider, models: models, err: err}
	}
	return tea.Batch(load, s.spin())
}

func (s *settingsScreen) spin() tea.Cmd {
	if s.spinning {
		return nil
	}
	s.spinning = true
	return s.spinner.Tick
}

func (s *settingsScreen) busy() bool {
	return s.testing || s.modelStatus == loadingModels
}

func (s *settingsScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if !s.busy() {
			s.spinning = false
			return s, nil
		}
		var cmd tea.Cmd
		s.spinner, cmd = s.spinner.Update(msg)
		return s, cmd

	case modelsLoadedMsg:
		return s, s.applyModels(msg)

	case pingDoneMsg:
		s.testing = false
		if msg.err != nil {
			return s, notifyError("Connection failed: " + msg.err.Error())
		}
		r := msg.result
		return s, notify(fmt.Sprintf("Connection OK: %s/%s replied in %s", r.Provider, r.Model, r.Latency.Round(time.Millisecond)))

	case tea.KeyMsg:
		return s.handleKey(msg)
	}

	if s.focus == fieldFolder && !s.browsing {
		var cmd tea.Cmd
		s.folder, cmd = s.folder.Update(msg)
		return s, cmd
	}
	return s, nil
}

func (s *settingsScreen) applyModels(msg modelsLoadedMsg) tea.Cmd {
	if msg.seq != s.loadSeq {
		return nil
	}
	if msg.err != nil {
		s.models = nil
		s.modelStatus = "Error: " + msg.err.Error()
		var mk *llm.MissingKeyError
		if errors.As(msg.err, &mk) {
			return notifyError(fmt.Sprintf("Set %s environment variable", mk.EnvVar))
		}
		return notifyError("Error loading models: " + msg.err.Error())
	}
	if len(msg.models) == 0 {
		s.models = nil
		s.modelStatus = noModels
		return nil
	}
	s.models = msg.models
	s.modelStatus = ""
	s.modelIdx = max(slices.Index(s.models, s.env.settings.DefaultModel), 0)
	return nil
}

func (s *settingsScreen) handleKey(msg tea.KeyMsg) (screen, tea.Cmd) {
	if s.browsing {
		if key.Matches(msg, settingsKeys.Cancel) || key.Matches(msg, settingsKeys.Browse) {
			s.browsing = false
			return s, nil
		}
		if dir, ok := s.browser.update(msg); ok {
			s.folder.SetValue(dir)
			s.folder.CursorEnd()
			s.browsing = false
		}
		return s, nil
	}

	switch {
	case key.Matches(msg, settingsKeys.Cancel):
		return s, pop
	case key.Matches(msg, settingsKeys.Save):
		return s, s.save()
	case key.Matches(msg, settingsKeys.Browse):
		s.browsing = true
		s.browser = newDirBrowser(config.ExpandHome(strings.TrimSpace(s.folder.Value())))
		s.browser.height = max(s.height-16, 4)
		return s, nil
	case key.Matches(msg, settingsKeys.Reload):
		return s, s.loadModels(true)
	case key.Matches(msg, settingsKeys.Test):
		return s, s.testConnection()
	case key.Matches(msg, settingsKeys.Next):
		s.setFocus((s.focus + 1) % fieldCount)
		return s, nil
	case key.Matches(msg, settingsKeys.Prev):
		s.setFocus((s.focus + fieldCount - 1) % fieldCount)
		return s, nil
	}

	switch s.focus {
	case fieldProvider:
		if d := direction(msg); d != 0 {
			s.providerIdx = (s.providerIdx + d + len(s.providers)) % len(s.providers)
			return s, s.loadModels(false)
		}
	case fieldModel:
		if d := direction(msg); d != 0 && len(s.models) > 0 {
			s.modelIdx = (s.modelIdx + d + len(s.models)) % len(s.models)
		}
	default:
		var cmd tea.Cmd
		s.folder, cmd = s.folder.Update(msg)
		return s, cmd
	}
	return s, nil
}

func direction(msg tea.KeyMsg) int {
	switch {
	case key.Matches(msg, settingsKeys.Left):
		return -1
	case key.Matches(msg, settingsKeys.Right):
		return 1
	}
	return 0
}

func (s *settingsScreen) setFocus(f settingsField) {
	s.focus = f
	if f == fieldFolder {
		s.folder.Focus()
	} else {
		s.folder.Blur()
	}
}

func (s *settingsScreen) testConnection() tea.Cmd {
	if s.testing {
		return nil
	}
	provider, model := s.provider(), s.model()
	if model == "" {
		return notify("Select a model first")
	}
	client, err := s.env.registry().Get(provider)
	if err != nil {
		return notifyError(err.Error())
	}
	s.testing = true
	ping := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		res, err := llm.Ping(ctx, client, model)
		return pingDoneMsg{result: res, err: err}
	}
	return tea.Batch(ping, s.spin())
}

// save hands the edited settings to the app and closes the screen. The
// previous model is kept when the provider is unchanged and its model
// list never arrived.
func (s *settingsScreen) save() tea.Cmd {
	next := s.env.settings
	next.AgentsFolder = strings.TrimSpace(s.folder.Value())
	next.DefaultProvider = s.provider()
	switch {
	case s.model() != "":
		next.DefaultModel = s.model()
	case s.modelStatus == loadingModels && next.DefaultProvider == s.env.settings.DefaultProvider:
	default:
		next.DefaultModel = ""
	}

	notice := fmt.Sprintf("Settings saved: %s/%s", next.DefaultProvider, next.DefaultModel)
	save := func() tea.Msg {
		return saveSettingsMsg{settings: next, notice: notice, rescan: true}
	}
	return tea.Sequence(pop, save)
}

func (s *settingsScreen) label(f settingsField, text string) string {
	if s.focus == f && !s.browsing {
		return labelStyle.Foreground(accent).Bold(true).Render("› " + text)
	}
	return labelStyle.Render("  " + text)
}

func (s *settingsScreen) View() string {
	var b strings.Builder
	b.WriteString(panelTitleStyle.Render("Settings"))
	b.WriteByte('\n')

	b.WriteString(s.label(fieldFolder, "Agents Folder:"))
	b.WriteString(s.folder.View())
	b.WriteString(dimStyle.Render("  ctrl+b browse"))
	b.WriteByte('\n')
	if s.browsing {
		b.WriteByte('\n')
		b.WriteString(panelStyle.Render(s.browser.view()))
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	b.WriteString(boldStyle.Render("Inference Settings"))
	b.WriteByte('\n')
	b.WriteString(s.label(fieldProvider, "Provider:"))
	b.WriteString(selector(s.provider(), s.providerIdx, len(s.providers)))
	if env := s.env.settings.MissingAPIKey(s.provider()); env != "" {
		b.WriteString(warningStyle.Render("  " + env + " not set"))
	}
	b.WriteByte('\n')

	b.WriteString(s.label(fieldModel, "Model:"))
	switch {
	case s.modelStatus == loadingModels:
		b.WriteString(s.spinner.View() + " " + loadingModels)
	case s.modelStatus != "":
		b.WriteString(mutedStyle.Render(s.modelStatus))
	default:
		b.WriteString(selector(s.model(), s.modelIdx, len(s.models)))
	}
	b.WriteByte('\n')

	if s.testing {
		b.WriteString("\n" + s.spinner.View() + " Testing connection...")
	}
	return b.String()
}

// selector renders a cycling choice with its position.
func selector(value string, idx, n int) string {
	return fmt.Sprintf("‹ %s › %s", boldStyle.Render(value), dimStyle.Render(fmt.Sprintf("(%d/%d)", idx+1, n)))
}
