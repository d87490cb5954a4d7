// Package scanner discovers OpenSymbolicAI agents by reading Python sources
// under an agents folder.
package scanner

// Method kinds recognised on agent classes.
const (
	KindPrimitive     = "primitive"
	KindDecomposition = "decomposition"
)

// Base classes that mark a class as a runnable agent.
var agentBases = map[string]bool{
	"PlanExecute": true,
	"Planner":     true,
}

// Agent describes an agent class discovered in a Python file.
type Agent struct {
	Name        string   `json:"name"`
	ClassName   string   `json:"className"`
	FilePath    string   `json:"filePath"`
	Description string   `json:"description,omitempty"`
	Version     string   `json:"version,omitempty"`
	BaseClass   string   `json:"baseClass"` // "PlanExecute" | "Planner"
	Line        int      `json:"line"`
	Methods     []Method `json:"methods,omitempty"`
}

// Method is a @primitive or @decomposition method of an agent.
type Method struct {
	Name           string `json:"name"`
	Kind           string `json:"kind"`
	Docstring      string `json:"docstring,omitempty"`
	Signature      string `json:"signature,omitempty"`
	Source         string `json:"source,omitempty"`
	Line           int    `json:"line"`
	ReadOnly       bool   `json:"readOnly,omitempty"`
	Intent         string `json:"intent,omitempty"`
	ExpandedIntent string `json:"expandedIntent,omitempty"`
}

// Primitives returns the agent's primitive methods in source order.
func (a Agent) Primitives() []Method {
	return a.methodsOfKind(KindPrimitive)
}

// Decompositions returns the agent's decomposition methods in source order.
func (a Agent) Decompositions() []Method {
	return a.methodsOfKind(KindDecomposition)
}

// Capabilities summarises the agent's methods.
type Capabilities struct {
	Primitives     int
	ReadOnly       int
	Mutable        int
	Decompositions int
}

// Capabilities counts primitives (split by read-only) and decompositions.
func (a Agent) Capabilities() Capabilities {
	var c Capabilities
	for _, m := range a.Methods {
		switch m.Kind {
		case KindPrimitive:
			c.Primitives++
			if m.ReadOnly {
				c.ReadOnly++
			} else {
				c.Mutable++
			}
		case KindDecomposition:
			c.Decompositions++
		}
	}
	return c
}

func (a Agent) methodsOfKind(kind string) []Method {
	var out []Method
	for _, m := range a.Methods {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}
