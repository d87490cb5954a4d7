package runtime

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraceStepFormatting(t *testing.T) {
	step := TraceStep{
		Number:    3,
		Statement: strings.Repeat("x", 61),
		Primitive: "add",
		Value:     strings.Repeat("é", 50),
	}
	assert.Equal(t, "Step 3 - add()", step.Header())
	assert.Equal(t, strings.Repeat("x", 57)+"...", step.ShortStatement())
	assert.Equal(t, strings.Repeat("é", 50), step.ShortValue())

	step.Value += "!"
	assert.Equal(t, strings.Repeat("é", 47)+"...", step.ShortValue())

	step.Primitive = ""
	step.Statement = "x = 1"
	assert.Equal(t, "Step 3", step.Header())
	assert.Equal(t, "x = 1", step.ShortStatement())
}

func TestMetricsSummaries(t *testing.T) {
	m := Metrics{TotalSeconds: 1.234, PlanSeconds: 1, ExecuteSeconds: 0.234, InputTokens: 10, OutputTokens: 5, TotalTokens: 15}
	assert.Equal(t, "1.23s (plan: 1.00s, exec: 0.23s)", m.TimeSummary())
	assert.Equal(t, "15 (input: 10, output: 5)", m.TokenSummary())
}

func TestFormatArgs(t *testing.T) {
	assert.Equal(t, "(none)", MutationRequest{Method: "reset"}.FormatArgs())
	req := MutationRequest{Args: []Arg{{"a", "1"}, {"name", "'bob'"}}}
	assert.Equal(t, "a=1, name='bob'", req.FormatArgs())
}
