package runtime

import (
	"fmt"
	"strings"
)

const (
	statementWidth = 60
	valueWidth     = 50
)

// truncate shortens s to width runes, ending with "..." when cut.
func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}

// ShortStatement returns the statement clipped for the trace panel.
func (s TraceStep) ShortStatement() string {
	return truncate(s.Statement, statementWidth)
}

// ShortValue returns the step's value clipped for the trace panel.
func (s TraceStep) ShortValue() string {
	return truncate(s.Value, valueWidth)
}

// Header is "Step N", followed by the primitive called, if any.
func (s TraceStep) Header() string {
	if s.Primitive == "" {
		return fmt.Sprintf("Step %d", s.Number)
	}
	return fmt.Sprintf("Step %d - %s()", s.Number, s.Primitive)
}

// TimeSummary renders the run's time split.
func (m Metrics) TimeSummary() string {
	return fmt.Sprintf("%.2fs (plan: %.2fs, exec: %.2fs)", m.TotalSeconds, m.PlanSeconds, m.ExecuteSeconds)
}

// TokenSummary renders planner token usage.
func (m Metrics) TokenSummary() string {
	return fmt.Sprintf("%d (input: %d, output: %d)", m.TotalTokens, m.InputTokens, m.OutputTokens)
}

// FormatArgs renders mutation arguments as "name=value, ...", or "(none)".
func (r MutationRequest) FormatArgs() string {
	if len(r.Args) == 0 {
		return "(none)"
	}
	parts := make([]string, len(r.Args))
	for i, a := range r.Args {
		parts[i] = a.Name + "=" + a.Value
	}
	return strings.Join(parts, ", ")
}
