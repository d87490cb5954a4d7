package runtime

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensymbolicai/opensymbolicai-cli/internal/scanner"
)

// stubLLM stands in for the framework's LLM config so the bridge can load
// agents without the real package installed.
const stubLLM = `class LLMConfig:
    def __init__(self, provider, model):
        self.provider = provider
        self.model = model
`

const calcAgent = `from types import SimpleNamespace as NS


class Calc:
    def __init__(self, llm):
        self.llm = llm
        self.config = NS(on_mutation=None)

    def run(self, query):
        print("planning", query)
        if query == "boom":
            raise ValueError("boom")
        if query == "whoami":
            return NS(success=True, result=self.llm.provider + "/" + self.llm.model)
        if query == "store":
            reason = self.config.on_mutation(NS(method_name="store", args={"value": 42, "label": "x"}))
            if reason is None:
                return NS(success=True, result="stored")
            return NS(success=False, result=None, error=reason, plan="store(42)")
        steps = [
            NS(step_number=1, statement="x = add(2, 3)", primitive_called="add",
               success=True, result_value=5, error=None, time_seconds=0.25),
            NS(step_number=2, statement="y = x / 0", primitive_called="divide",
               success=False, result_value=None, error="division by zero", time_seconds=0.01),
        ]
        return NS(
            success=True,
            result=5,
            error=None,
            plan="x = add(2, 3)",
            plan_attempts=[
                NS(plan_generation=None),
                NS(plan_generation=NS(extracted_code="x = add(2, 3)")),
            ],
            trace=NS(steps=steps, total_time_seconds=0.5),
            metrics=NS(
                total_time_seconds=1.5,
                plan_time_seconds=1.0,
                execute_time_seconds=0.5,
                plan_tokens=NS(input_tokens=100, output_tokens=20, total_tokens=120),
            ),
        )
`

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// pythonSession starts the embedded bridge under a real interpreter
// against a stub framework package.
func pythonSession(t *testing.T, class string) (*Session, error) {
	t.Helper()
	python, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not available")
	}

	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "opensymbolicai", "__init__.py"), "")
	writeTestFile(t, filepath.Join(dir, "opensymbolicai", "llm.py"), stubLLM)
	agentFile := filepath.Join(dir, "calc.py")
	writeTestFile(t, agentFile, calcAgent)

	s := NewSession(Config{Python: python}, nil)
	t.Cleanup(func() { _ = s.Close() })
	err = s.Start(context.Background(), StartRequest{
		Agent:    scanner.Agent{Name: "calc", ClassName: class, FilePath: agentFile},
		Provider: "ollama",
		Model:    "llama3",
	})
	return s, err
}

func TestBridgeEncodesResult(t *testing.T) {
	s, err := pythonSession(t, "Calc")
	require.NoError(t, err)

	res, err := s.Run(context.Background(), "add", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "5", res.Output)
	assert.Empty(t, res.Error)
	assert.Equal(t, "x = add(2, 3)", res.Plan)
	assert.Equal(t, []string{"", "x = add(2, 3)"}, res.PlanAttempts)

	require.NotNil(t, res.Trace)
	assert.Equal(t, 0.5, res.Trace.TotalSeconds)
	assert.Equal(t, []TraceStep{
		{Number: 1, Statement: "x = add(2, 3)", Primitive: "add", Success: true, Value: "5", Seconds: 0.25},
		{Number: 2, Statement: "y = x / 0", Primitive: "divide", Value: "None", Error: "division by zero", Seconds: 0.01},
	}, res.Trace.Steps)

	require.NotNil(t, res.Metrics)
	assert.Equal(t, Metrics{
		TotalSeconds: 1.5, PlanSeconds: 1, ExecuteSeconds: 0.5,
		InputTokens: 100, OutputTokens: 20, TotalTokens: 120,
	}, *res.Metrics)

	res, err = s.Run(context.Background(), "whoami", nil)
	require.NoError(t, err)
	assert.Equal(t, "ollama/llama3", res.Output)
	assert.Nil(t, res.Trace)
	assert.Nil(t, res.Metrics)
	assert.Empty(t, res.PlanAttempts)
}

func TestBridgeMutationRoundTrip(t *testing.T) {
	s, err := pythonSession(t, "Calc")
	require.NoError(t, err)

	var got MutationRequest
	res, err := s.Run(context.Background(), "store", func(req MutationRequest) (bool, error) {
		got = req
		return true, nil
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "stored", res.Output)
	assert.Equal(t, "store", got.Method)
	assert.Equal(t, []Arg{{Name: "value", Value: "42"}, {Name: "label", Value: "'x'"}}, got.Args)

	res, err = s.Run(context.Background(), "store", func(MutationRequest) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, RejectedReason, res.Error)
	assert.Equal(t, "store(42)", res.Plan)
}

func TestBridgeAgentException(t *testing.T) {
	s, err := pythonSession(t, "Calc")
	require.NoError(t, err)

	_, err = s.Run(context.Background(), "boom", nil)
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "boom", ee.Message)
	assert.True(t, s.Running())
}

func TestBridgeUnknownClass(t *testing.T) {
	_, err := pythonSession(t, "Missing")
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "Failed to load agent: Could not find class Missing in module", ee.Message)
}
