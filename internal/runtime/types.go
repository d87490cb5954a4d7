// Package runtime runs discovered agents inside the Python framework that
// defines them, through a small bridge process speaking JSON lines.
package runtime

import (
	"errors"
	"time"

	"github.com/opensymbolicai/opensymbolicai-cli/internal/scanner"
)

// Session errors.
var (
	ErrBusy          = errors.New("a query is already running")
	ErrNotConfigured = errors.New("provider or model not configured")
	ErrClosed        = errors.New("session closed")
	ErrNotStarted    = errors.New("agent not loaded")
)

// RejectedReason is reported to the agent when a mutation is refused.
const RejectedReason = "User aborted the mutation"

// StartRequest selects the agent and model a session runs.
type StartRequest struct {
	Agent    scanner.Agent
	Provider string
	Model    string
	Debug    bool
}

// Result is the outcome of one query.
type Result struct {
	Success      bool     `json:"success"`
	Output       string   `json:"output"`
	Error        string   `json:"error,omitempty"`
	Plan         string   `json:"plan,omitempty"`
	PlanAttempts []string `json:"planAttempts,omitempty"`
	Trace        *Trace   `json:"trace,omitempty"`
	Metrics      *Metrics `json:"metrics,omitempty"`
}

// Trace lists the plan statements the agent executed.
type Trace struct {
	Steps        []TraceStep `json:"steps"`
	TotalSeconds float64     `json:"totalSeconds"`
}

// TraceStep is one executed plan statement.
type TraceStep struct {
	Number    int     `json:"number"`
	Statement string  `json:"statement"`
	Primitive string  `json:"primitive,omitempty"`
	Success   bool    `json:"success"`
	Value     string  `json:"value,omitempty"`
	Error     string  `json:"error,omitempty"`
	Seconds   float64 `json:"seconds"`
}

// Metrics reports timing and planner token usage.
type Metrics struct {
	TotalSeconds   float64 `json:"totalSeconds"`
	PlanSeconds    float64 `json:"planSeconds"`
	ExecuteSeconds float64 `json:"executeSeconds"`
	InputTokens    int     `json:"inputTokens"`
	OutputTokens   int     `json:"outputTokens"`
	TotalTokens    int     `json:"totalTokens"`
}

// Arg is a mutation argument with its Python repr.
type Arg struct {
	Name  string
	Value string
}

// MutationRequest asks for approval before a state-changing primitive runs.
type MutationRequest struct {
	Method string
	Args   []Arg
}

// MutationHandler decides whether a mutation may proceed. It may block
// until the user answers.
type MutationHandler func(req MutationRequest) (approved bool, err error)

// RunRecord is one query issued in a session. Records live only as long
// as the session.
type RunRecord struct {
	ID        string
	Agent     string
	Query     string
	StartedAt time.Time
	Duration  time.Duration
	Result    *Result
	Err       string
}

// ExecutionError is an exception raised by the agent while handling a
// query.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string { return e.Message }
