package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/opensymbolicai/opensymbolicai-cli/internal/llm"
	"github.com/opensymbolicai/opensymbolicai-cli/internal/runtime"
	"github.com/opensymbolicai/opensymbolicai-cli/internal/scanner"
)

const tracePanelWidth = 50

type messageKind int

const (
	kindSystem messageKind = iota
	kindUser
	kindAssistant
	kindError
)

type chatMessage struct {
	kind messageKind
	text string
}

var messageStyles = map[messageKind]lipgloss.Style{
	kindSystem:    messageStyle(warning).Foreground(muted),
	kindUser:      messageStyle(accent),
	kindAssistant: messageStyle(success),
	kindError:     messageStyle(danger),
}

func messageStyle(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.ThickBorder(), false, false, false, true).
		BorderForeground(c).
		PaddingLeft(1).
		MarginBottom(1)
}

type (
	sessionStartedMsg struct{ err error }
	runFinishedMsg    struct {
		result *runtime.Result
		err    error
	}
	mutationPromptMsg struct{ ask mutationAsk }
)

// mutationAsk is a mutation waiting for the user's answer.
type mutationAsk struct {
	req   runtime.MutationRequest
	reply chan bool
}

var runKeys = struct {
	Send, Trace, Clear, Back, PageUp, PageDown, Continue, Abort key.Binding
}{
	Send:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
	Trace:    key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "trace")),
	Clear:    key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "clear")),
	Back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	PageUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup/pgdn", "scroll")),
	PageDown: key.NewBinding(key.WithKeys("pgdown")),
	Continue: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "continue")),
	Abort:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "abort")),
}

// runScreen is a conversation with one agent.
type runScreen struct {
	env     *env
	agent   scanner.Agent
	session AgentSession
	ctx     context.Context
	cancel  context.CancelFunc

	starting bool
	loaded   bool
	running  bool
	runDone  chan struct{}
	asks     chan mutationAsk
	pending  *mutationAsk

	showPlan   bool
	showTrace  bool
	lastResult *runtime.Result
	messages   []chatMessage

	input   textinput.Model
	conv    viewport.Model
	spinner spinner.Model

	width, height int
}

func newRunScreen(e *env, a scanner.Agent) *runScreen {
	ti := textinput.New()
	ti.Placeholder = "Type your query and press Enter..."
	ti.Prompt = "> "
	ti.Focus()

	ctx, cancel := context.WithCancel(context.Background())
	r := &runScreen{
		env:     e,
		agent:   a,
		session: e.opts.NewSession(e.settings),
		ctx:     ctx,
		cancel:  cancel,
		asks:    make(chan mutationAsk),
		input:   ti,
		conv:    viewport.New(80, 20),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
	r.addMessage(kindSystem, fmt.Sprintf("Agent %s loaded. Type your query below.", boldStyle.Render(a.Name)))
	return r
}

func (r *runScreen) Init() tea.Cmd {
	s := r.env.settings
	req := runtime.StartRequest{
		Agent:    r.agent,
		Provider: s.DefaultProvider,
		Model:    s.DefaultModel,
		Debug:    s.DebugMode,
	}
	sess, ctx := r.session, r.ctx
	r.starting = true
	r.env.log.Debug().Str("agent", r.agent.Name).Msg("loading agent")
	start := func() tea.Msg {
		return sessionStartedMsg{err: sess.Start(ctx, req)}
	}
	return tea.Batch(textinput.Blink, start, r.spinner.Tick)
}

func (r *runScreen) Title() string { return "Run: " + r.agent.Name }

func (r *runScreen) Keys() []key.Binding {
	if r.pending != nil {
		return []key.Binding{runKeys.Continue, runKeys.Abort}
	}
	return []key.Binding{runKeys.Send, runKeys.Trace, runKeys.Clear, runKeys.PageUp, runKeys.Back}
}

func (r *runScreen) SetSize(w, h int) {
	r.width, r.height = w, h
	r.input.Width = max(r.convWidth()-4, 10)
	r.conv.Width = r.convWidth()
	r.conv.Height = max(h-r.headerHeight()-4, 3)
	r.refresh()
}

func (r *runScreen) convWidth() int {
	w := r.width
	if r.showTrace {
		w -= tracePanelWidth + 1
	}
	return max(w, 20)
}

func (r *runScreen) headerHeight() int {
	if r.agent.Description != "" {
		return 2
	}
	return 1
}

// Close cancels any running query and stops the agent process.
func (r *runScreen) Close() tea.Cmd {
	r.cancel()
	r.answer(false)
	sess := r.session
	return func() tea.Msg {
		_ = sess.Close()
		return nil
	}
}

func (r *runScreen) addMessage(kind messageKind, text string) {
	r.messages = append(r.messages, chatMessage{kind: kind, text: text})
	r.refresh()
}

// refresh re-renders the conversation and scrolls to the newest message.
func (r *runScreen) refresh() {
	width := max(r.conv.Width-2, 10)
	parts := make([]string, len(r.messages))
	for i, m := range r.messages {
		parts[i] = messageStyles[m.kind].Width(width).Render(m.text)
	}
	r.conv.SetContent(strings.Join(parts, "\n"))
	r.conv.GotoBottom()
}

func (r *runScreen) spin() tea.Cmd {
	return r.spinner.Tick
}

func (r *runScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if !r.starting && !r.running {
			return r, nil
		}
		var cmd tea.Cmd
		r.spinner, cmd = r.spinner.Update(msg)
		return r, cmd

	case sessionStartedMsg:
		r.starting = false
		r.handleStarted(msg.err)
		return r, nil

	case mutationPromptMsg:
		ask := msg.ask
		r.pending = &ask
		r.input.Blur()
		return r, nil

	case runFinishedMsg:
		r.running = false
		r.runDone = nil
		r.handleFinished(msg.result, msg.err)
		return r, nil

	case tea.KeyMsg:
		return r.handleKey(msg)
	}

	var cmd tea.Cmd
	r.input, cmd = r.input.Update(msg)
	return r, cmd
}

func (r *runScreen) handleStarted(err error) {
	var (
		mk *llm.MissingKeyError
		ee *runtime.ExecutionError
	)
	s := r.env.settings
	switch {
	case err == nil:
		r.loaded = true
		r.addMessage(kindSystem, fmt.Sprintf("Agent initialized with %s/%s", s.DefaultProvider, s.DefaultModel))
	case errors.Is(err, context.Canceled):
	case errors.Is(err, runtime.ErrNotConfigured):
		r.addMessage(kindError, "Provider or model not configured. Press 's' in main screen to configure settings.")
	case errors.As(err, &mk):
		r.addMessage(kindError, fmt.Sprintf("Set %s environment variable to run agents with %s.", mk.EnvVar, mk.Provider))
	case errors.As(err, &ee):
		r.addMessage(kindError, ee.Message)
	default:
		r.addMessage(kindError, "Failed to load agent: "+err.Error())
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		r.env.log.Warn().Err(err).Str("agent", r.agent.Name).Msg("agent failed to load")
	}
}

func (r *runScreen) handleKey(msg tea.KeyMsg) (screen, tea.Cmd) {
	if r.pending != nil {
		switch {
		case key.Matches(msg, runKeys.Continue):
			return r, r.answer(true)
		case key.Matches(msg, runKeys.Abort):
			return r, r.answer(false)
		}
		return r, nil
	}

	switch {
	case key.Matches(msg, runKeys.Back):
		return r, pop
	case key.Matches(msg, runKeys.Clear):
		r.messages = nil
		r.addMessage(kindSystem, fmt.Sprintf("Agent %s ready. Type your query below.", boldStyle.Render(r.agent.Name)))
		return r, nil
	case key.Matches(msg, runKeys.Trace):
		return r, r.toggleTrace()
	case key.Matches(msg, runKeys.PageUp, runKeys.PageDown):
		var cmd tea.Cmd
		r.conv, cmd = r.conv.Update(msg)
		return r, cmd
	case key.Matches(msg, runKeys.Send):
		return r, r.submit()
	}

	var cmd tea.Cmd
	r.input, cmd = r.input.Update(msg)
	return r, cmd
}

// answer resolves the pending mutation and resumes listening for more.
func (r *runScreen) answer(approved bool) tea.Cmd {
	if r.pending == nil {
		return nil
	}
	r.pending.reply <- approved
	r.pending = nil
	r.input.Focus()
	if r.runDone == nil {
		return nil
	}
	return r.waitForMutation(r.runDone)
}

func (r *runScreen) submit() tea.Cmd {
	query := strings.TrimSpace(r.input.Value())
	if query == "" {
		return nil
	}
	r.input.SetValue("")

	switch strings.ToLower(query) {
	case "/plan":
		r.showPlan = !r.showPlan
		if r.showPlan {
			return notify("Plan shown")
		}
		return notify("Plan hidden")
	case "/debug":
		next := r.env.settings
		next.DebugMode = !next.DebugMode
		mode := "disabled"
		if next.DebugMode {
			mode = "enabled"
		}
		return func() tea.Msg {
			return saveSettingsMsg{settings: next, notice: "Debug mode " + mode}
		}
	case "/trace":
		return r.toggleTrace()
	}

	r.addMessage(kindUser, boldStyle.Render("You:")+" "+query)
	if !r.loaded {
		r.addMessage(kindError, "Agent not loaded. Check settings and try again.")
		return nil
	}
	if r.running {
		return notify("A query is already running")
	}
	return r.execute(query)
}

// execute runs query in the background. Mutation requests from the agent
// arrive through r.asks and block the run until answered.
func (r *runScreen) execute(query string) tea.Cmd {
	r.running = true
	done := make(chan struct{})
	r.runDone = done

	sess, ctx, asks := r.session, r.ctx, r.asks
	handler := func(req runtime.MutationRequest) (bool, error) {
		reply := make(chan bool, 1)
		select {
		case asks <- mutationAsk{req: req, reply: reply}:
		case <-ctx.Done():
			return false, ctx.Err()
		}
		select {
		case ok := <-reply:
			return ok, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	run := func() tea.Msg {
		defer close(done)
		res, err := sess.Run(ctx, query, handler)
		return runFinishedMsg{result: res, err: err}
	}
	return tea.Batch(run, r.waitForMutation(done), r.spin())
}

func (r *runScreen) waitForMutation(done <-chan struct{}) tea.Cmd {
	asks, ctx := r.asks, r.ctx
	return func() tea.Msg {
		select {
		case a := <-asks:
			return mutationPromptMsg{ask: a}
		case <-done:
		case <-ctx.Done():
		}
		return nil
	}
}

func (r *runScreen) toggleTrace() tea.Cmd {
	r.showTrace = !r.showTrace
	r.SetSize(r.width, r.height)
	if r.showTrace {
		return notify("Trace panel shown")
	}
	return notify("Trace panel hidden")
}

func (r *runScreen) handleFinished(res *runtime.Result, err error) {
	// The run can end while a mutation prompt is still open when the
	// bridge dies; release the waiting handler and drop the prompt.
	r.answer(false)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		if errors.Is(err, runtime.ErrNotStarted) {
			r.loaded = false
		}
		r.addMessage(kindError, errorStyle.Render("Exception:")+" "+err.Error())
		return
	}
	r.lastResult = res

	if r.showPlan {
		for i, code := range res.PlanAttempts {
			if code == "" {
				continue
			}
			r.addMessage(kindSystem, dimStyle.Render(fmt.Sprintf("--- Plan Attempt %d ---", i+1)))
			r.addMessage(kindSystem, codeStyle.Render(code))
		}
	}

	if r.env.settings.DebugMode {
		if info := debugInfo(res); info != "" {
			r.addMessage(kindSystem, info)
		}
	}

	if res.Success {
		r.addMessage(kindAssistant, successStyle.Render("Result:")+" "+res.Output)
		return
	}
	text := errorStyle.Render("Error:") + " " + res.Error
	if res.Plan != "" {
		text += "\n\n" + dimStyle.Render("Plan attempted:") + "\n" + res.Plan
	}
	r.addMessage(kindError, text)
}

// debugInfo summarises timing, token usage and the final plan.
func debugInfo(res *runtime.Result) string {
	var parts []string
	label := boldStyle.Foreground(lipgloss.Color("51"))
	if m := res.Metrics; m != nil {
		parts = append(parts,
			label.Render("Time:")+" "+m.TimeSummary(),
			label.Render("Tokens:")+" "+m.TokenSummary(),
		)
	}
	if res.Plan != "" {
		parts = append(parts, label.Render("Plan:")+"\n"+res.Plan)
	}
	if len(parts) == 0 {
		return ""
	}
	return dimStyle.Render("--- Debug Info ---") + "\n" + strings.Join(parts, "\n")
}

func (r *runScreen) statusLine() string {
	switch {
	case r.running:
		return r.spinner.View() + " " + warningStyle.Render("Processing...")
	case r.starting:
		return r.spinner.View() + " " + mutedStyle.Render("Loading agent...")
	}
	s := r.env.settings
	provider, model := s.DefaultProvider, s.DefaultModel
	if provider == "" {
		provider = "not set"
	}
	if model == "" {
		model = "not set"
	}
	return mutedStyle.Render(fmt.Sprintf("Provider: %s | Model: %s | Plan: ", provider, model)) +
		onOff(r.showPlan) + mutedStyle.Render(" | Debug: ") +
		onOff(s.DebugMode) + mutedStyle.Render(" | Trace: ") +
		onOff(r.showTrace)
}

func (r *runScreen) View() string {
	header := boldStyle.Render(r.agent.Name)
	if r.agent.Description != "" {
		header += "\n" + mutedStyle.Render(r.agent.Description)
	}

	if r.pending != nil {
		body := lipgloss.Place(r.width, max(r.height-r.headerHeight(), 10),
			lipgloss.Center, lipgloss.Center, mutationModal(r.pending.req))
		return header + "\n" + body
	}

	left := lipgloss.JoinVertical(lipgloss.Left,
		r.conv.View(),
		panelStyle.Width(r.convWidth()-2).Render(r.input.View()),
		r.statusLine(),
	)
	body := left
	if r.showTrace {
		panel := secondaryPanelStyle.
			Width(tracePanelWidth - 2).
			Height(max(r.height-r.headerHeight()-2, 3)).
			Render(traceView(r.lastResult))
		body = lipgloss.JoinHorizontal(lipgloss.Top, left, " ", panel)
	}
	return header + "\n" + body
}

func mutationModal(req runtime.MutationRequest) string {
	title := warningStyle.Width(56).Align(lipgloss.Center).Render("⚠  Mutation Detected")
	details := lipgloss.NewStyle().
		Border(lipgloss.ThickBorder(), false, false, false, true).
		BorderForeground(accent).
		PaddingLeft(1).
		Render(successStyle.Render("Method: "+req.Method+"()") + "\n" + mutedStyle.Render("Args: "+req.FormatArgs()))
	buttons := lipgloss.NewStyle().Width(56).Align(lipgloss.Center).Render(
		successStyle.Render("[enter] Continue") + "   " + errorStyle.Render("[esc] Abort"))
	return modalStyle.Render(title + "\n\n" + details + "\n\n" + buttons)
}

// traceView renders the executed plan steps of the last result.
func traceView(res *runtime.Result) string {
	var b strings.Builder
	b.WriteString(panelTitleStyle.Render("Execution Trace"))
	b.WriteByte('\n')
	if res == nil || res.Trace == nil {
		b.WriteString(italicStyle.Render("No trace available. Run a query first."))
		return b.String()
	}
	for _, step := range res.Trace.Steps {
		b.WriteString(boldStyle.Render(step.Header()))
		b.WriteByte('\n')
		b.WriteString(codeStyle.Render(step.ShortStatement()))
		b.WriteByte('\n')
		if step.Success {
			b.WriteString("→ " + step.ShortValue())
		} else {
			b.WriteString(errorStyle.Render("✗ " + step.Error))
		}
		b.WriteByte('\n')
		b.WriteString(dimStyle.Render(fmt.Sprintf("%.3fs", step.Seconds)))
		b.WriteString("\n\n")
	}
	b.WriteString(boldStyle.Render(fmt.Sprintf("Total: %.3fs", res.Trace.TotalSeconds)))
	return b.String()
}
