package runtime

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensymbolicai/opensymbolicai-cli/internal/config"
	"github.com/opensymbolicai/opensymbolicai-cli/internal/llm"
	"github.com/opensymbolicai/opensymbolicai-cli/internal/logging"
)

//go:embed bridge.py
var bridgeScript string

const (
	defaultPython = "python3"
	maxLineBytes  = 4 << 20
	stderrLines   = 20
	closeTimeout  = 2 * time.Second
)

// Config controls how the bridge process is launched.
type Config struct {
	// Python is the interpreter with the framework installed.
	Python string
	// Args are extra interpreter arguments placed before the bridge script.
	Args []string
	// Timeout bounds a single query; zero means no limit.
	Timeout time.Duration
	// Env is appended to the inherited environment.
	Env []string
	// MissingKey reports the unset API key variable for a provider, or "".
	MissingKey func(provider string) string
}

// ConfigFromSettings derives the bridge configuration from settings. API
// keys configured in the settings file are exported to the bridge under
// their conventional variable names.
func ConfigFromSettings(s config.Settings) Config {
	cfg := Config{
		Python:     s.Runner.Python,
		Timeout:    s.RunTimeout(),
		MissingKey: s.MissingAPIKey,
	}
	for _, p := range config.KnownProviders {
		env := config.APIKeyEnv(p)
		if env == "" {
			continue
		}
		if key := s.APIKey(p); key != "" && os.Getenv(env) != key {
			cfg.Env = append(cfg.Env, env+"="+key)
		}
	}
	return cfg
}

// Session hosts one agent in a bridge process and runs queries against it
// one at a time.
type Session struct {
	cfg Config
	log *logging.Logger

	mu      sync.Mutex
	proc    *process
	req     StartRequest
	busy    bool
	closed  bool
	nextID  int
	history []RunRecord
}

// NewSession creates an idle session.
func NewSession(cfg Config, log *logging.Logger) *Session {
	if cfg.Python == "" {
		cfg.Python = defaultPython
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Session{cfg: cfg, log: log.Sub("runtime")}
}

// Start launches the bridge and loads the agent, replacing any process the
// session already runs. It fails before launching anything when the
// provider or model is unset or the provider's API key is missing.
func (s *Session) Start(ctx context.Context, req StartRequest) error {
	if req.Provider == "" || req.Model == "" {
		return ErrNotConfigured
	}
	if s.cfg.MissingKey != nil {
		if env := s.cfg.MissingKey(req.Provider); env != "" {
			return &llm.MissingKeyError{Provider: req.Provider, EnvVar: env}
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.busy = true
	old := s.proc
	s.proc = nil
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	if old != nil {
		old.stop()
	}

	p, err := s.launch(req)
	if err != nil {
		return err
	}

	select {
	case ev, ok := <-p.events:
		switch {
		case !ok:
			p.stop()
			return fmt.Errorf("agent process exited: %s", p.failure())
		case ev.Type == "ready":
		case ev.Type == "error":
			p.stop()
			return &ExecutionError{Message: ev.Message}
		default:
			p.stop()
			return fmt.Errorf("unexpected %q message from bridge", ev.Type)
		}
	case <-ctx.Done():
		p.stop()
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		p.stop()
		return ErrClosed
	}
	s.proc = p
	s.req = req
	s.log.Info().
		Str("agent", req.Agent.Name).
		Str("provider", req.Provider).
		Str("model", req.Model).
		Msg("agent loaded")
	return nil
}

func (s *Session) launch(req StartRequest) (*process, error) {
	args := append([]string{}, s.cfg.Args...)
	args = append(args, "-u", "-c", bridgeScript,
		"--file", req.Agent.FilePath,
		"--class", req.Agent.ClassName,
		"--provider", req.Provider,
		"--model", req.Model,
	)
	if req.Debug {
		args = append(args, "--debug")
	}

	cmd := exec.Command(s.cfg.Python, args...)
	cmd.Dir = filepath.Dir(req.Agent.FilePath)
	cmd.Env = append(os.Environ(), s.cfg.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	s.log.Debug().
		Str("python", s.cfg.Python).
		Str("file", req.Agent.FilePath).
		Str("class", req.Agent.ClassName).
		Msg("starting bridge")

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", s.cfg.Python, err)
	}

	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		events: make(chan event, 64),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
		stderr: &tail{max: stderrLines},
		log:    s.log,
	}
	p.run(stdout, stderr)
	return p, nil
}

// Run sends query to the agent and waits for its result. Mutation requests
// raised while the query runs are passed to onMutation; a nil handler or
// a handler error rejects them. Cancelling ctx stops the bridge process.
func (s *Session) Run(ctx context.Context, query string, onMutation MutationHandler) (*Result, error) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return nil, ErrClosed
	case s.busy:
		s.mu.Unlock()
		return nil, ErrBusy
	case s.proc == nil:
		s.mu.Unlock()
		return nil, ErrNotStarted
	}
	s.busy = true
	s.nextID++
	id := s.nextID
	p := s.proc
	agentName := s.req.Agent.Name
	s.mu.Unlock()

	record := RunRecord{
		ID:        uuid.NewString(),
		Agent:     agentName,
		Query:     query,
		StartedAt: time.Now(),
	}
	res, err := s.run(ctx, p, id, query, onMutation)
	record.Duration = time.Since(record.StartedAt)
	record.Result = res
	if err != nil {
		record.Err = err.Error()
	}

	s.mu.Lock()
	s.busy = false
	s.history = append(s.history, record)
	if err != nil && p.dead() && s.proc == p {
		s.proc = nil
	}
	s.mu.Unlock()

	s.log.Info().
		Str("run", record.ID).
		Str("agent", agentName).
		Dur("duration", record.Duration).
		Bool("success", res != nil && res.Success).
		AnErr("error", err).
		Msg("query finished")
	return res, err
}

func (s *Session) run(ctx context.Context, p *process, id int, query string, onMutation MutationHandler) (*Result, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	if err := p.send(request{Type: "query", ID: id, Query: query}); err != nil {
		p.stop()
		return nil, fmt.Errorf("agent process stopped: %s", p.failure())
	}

	for {
		select {
		case <-ctx.Done():
			p.stop()
			return nil, ctx.Err()
		case ev, ok := <-p.events:
			if !ok {
				return nil, fmt.Errorf("agent process exited: %s", p.failure())
			}
			switch ev.Type {
			case "mutation":
				approved, reason, err := s.askMutation(ctx, p, ev, onMutation)
				if err != nil {
					return nil, err
				}
				if err := p.send(request{Type: "mutation_reply", ID: ev.ID, Approved: approved, Reason: reason}); err != nil {
					p.stop()
					return nil, fmt.Errorf("agent process stopped: %s", p.failure())
				}
			case "result":
				if ev.ID != id {
					continue
				}
				res := ev.Result
				return &res, nil
			case "error":
				return nil, &ExecutionError{Message: ev.Message}
			default:
				s.log.Debug().Str("type", ev.Type).Msg("ignoring bridge message")
			}
		}
	}
}

// askMutation runs the handler while watching for cancellation and for the
// bridge dying underneath it.
func (s *Session) askMutation(ctx context.Context, p *process, ev event, onMutation MutationHandler) (bool, string, error) {
	req := MutationRequest{Method: ev.Method}
	for _, a := range ev.Args {
		req.Args = append(req.Args, Arg{Name: a[0], Value: a[1]})
	}
	s.log.Debug().Str("method", req.Method).Msg("mutation requested")

	if onMutation == nil {
		return false, RejectedReason, nil
	}

	type answer struct {
		ok  bool
		err error
	}
	done := make(chan answer, 1)
	go func() {
		ok, err := onMutation(req)
		done <- answer{ok, err}
	}()

	select {
	case a := <-done:
		if a.err != nil || !a.ok {
			if a.err != nil {
				s.log.Debug().Err(a.err).Msg("mutation handler failed")
			}
			return false, RejectedReason, nil
		}
		return true, "", nil
	case <-ctx.Done():
		p.stop()
		return false, "", ctx.Err()
	case <-p.exited:
		return false, "", fmt.Errorf("agent process exited: %s", p.failure())
	}
}

// Running reports whether an agent is loaded.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc != nil && !s.proc.dead()
}

// History returns the queries issued in this session, oldest first.
func (s *Session) History() []RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RunRecord(nil), s.history...)
}

// Close stops the bridge process. The session cannot be reused.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	p := s.proc
	s.proc = nil
	s.mu.Unlock()

	if p != nil {
		_ = p.send(request{Type: "shutdown"})
		p.stop()
	}
	return nil
}

// event is a message from the bridge.
type event struct {
	Type    string      `json:"type"`
	ID      int         `json:"id,omitempty"`
	Message string      `json:"message,omitempty"`
	Method  string      `json:"method,omitempty"`
	Args    [][2]string `json:"args,omitempty"`
	Result
}

// request is a message to the bridge.
type request struct {
	Type     string `json:"type"`
	ID       int    `json:"id,omitempty"`
	Query    string `json:"query,omitempty"`
	Approved bool   `json:"approved,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// process is a running bridge.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	events chan event
	quit   chan struct{}
	exited chan struct{}
	stderr *tail
	log    *logging.Logger

	writeMu  sync.Mutex
	stopOnce sync.Once
	waitErr  error
}

func (p *process) run(stdout, stderr io.Reader) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		sc := bufio.NewScanner(stderr)
		sc.Buffer(make([]byte, 64*1024), maxLineBytes)
		for sc.Scan() {
			line := sc.Text()
			p.stderr.add(line)
			p.log.Debug().Str("stream", "stderr").Msg(line)
		}
	}()

	go func() {
		defer wg.Done()
		sc := bufio.NewScanner(stdout)
		sc.Buffer(make([]byte, 256*1024), maxLineBytes)
		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}
			var ev event
			if err := json.Unmarshal(line, &ev); err != nil {
				p.log.Debug().Err(err).Msg("skipping unparseable bridge line")
				continue
			}
			select {
			case p.events <- ev:
			case <-p.quit:
				return
			}
		}
		if err := sc.Err(); err != nil {
			p.stderr.add(err.Error())
		}
	}()

	go func() {
		wg.Wait()
		p.waitErr = p.cmd.Wait()
		close(p.exited)
		close(p.events)
	}()
}

func (p *process) send(r request) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err = p.stdin.Write(append(data, '\n'))
	return err
}

func (p *process) dead() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// stop closes stdin and waits briefly for a clean exit before killing.
func (p *process) stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
		_ = p.stdin.Close()
		select {
		case <-p.exited:
		case <-time.After(closeTimeout):
			_ = p.cmd.Process.Kill()
			<-p.exited
		}
	})
}

// failure describes why the process is gone, preferring its stderr.
func (p *process) failure() string {
	select {
	case <-p.exited:
	case <-time.After(closeTimeout):
	}
	if msg := p.stderr.last(); msg != "" {
		return msg
	}
	if p.dead() && p.waitErr != nil {
		return p.waitErr.Error()
	}
	return "no output"
}

// tail keeps the last lines written to the bridge's stderr.
type tail struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func (t *tail) add(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

// last returns the final stderr line, which for a Python traceback is the
// exception itself.
func (t *tail) last() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.lines) == 0 {
		return ""
	}
	return t.lines[len(t.lines)-1]
}
