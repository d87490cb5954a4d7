package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSignature(t *testing.T) {
	tests := []struct {
		name    string
		sig     string
		inputs  []string
		returns string
	}{
		{
			name:    "simple",
			sig:     "def add(self, a: float, b: float) -> float:",
			inputs:  []string{"a: float", "b: float"},
			returns: "float",
		},
		{
			name:    "no annotation",
			sig:     "def reset(self):",
			returns: "None",
		},
		{
			name:    "nested brackets",
			sig:     "def lookup(self, keys: dict[str, list[int]], default: tuple = (1, 2)) -> list[str]:",
			inputs:  []string{"keys: dict[str, list[int]]", "default: tuple = (1, 2)"},
			returns: "list[str]",
		},
		{
			name:    "multiline",
			sig:     "def store(\n        self,\n        value: float,\n    ) -> None:",
			inputs:  []string{"value: float"},
			returns: "None",
		},
		{
			name:    "keyword only and varargs",
			sig:     "def call(self, *args, flag: bool = False, **kwargs) -> Optional[dict]:",
			inputs:  []string{"*args", "flag: bool = False", "**kwargs"},
			returns: "Optional[dict]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputs, returns := ParseSignature(tt.sig)
			assert.Equal(t, tt.inputs, inputs)
			assert.Equal(t, tt.returns, returns)
		})
	}
}
