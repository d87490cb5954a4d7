package scanner

import (
	"regexp"
	"strings"
)

var returnPattern = regexp.MustCompile(`(?s)^\s*->\s*(.+?)\s*:`)

// ParseSignature splits a def header into its parameters (without self)
// and its return annotation. A missing annotation reports "None".
func ParseSignature(sig string) (inputs []string, returns string) {
	returns = "None"
	lines := splitLogical(sig)
	if len(lines) == 0 {
		return nil, returns
	}
	ll := lines[0]
	open := strings.IndexByte(ll.masked, '(')
	if open < 0 {
		return nil, returns
	}
	closeIdx := closingParen(ll.masked, open)
	if closeIdx < 0 {
		closeIdx = len(ll.code)
	} else if m := returnPattern.FindStringSubmatch(ll.code[closeIdx+1:]); m != nil {
		returns = m[1]
	}

	for _, p := range splitTopLevel(ll.code[open+1:closeIdx], ll.masked[open+1:closeIdx]) {
		p = strings.Join(strings.Fields(p), " ")
		if p == "" || p == "self" {
			continue
		}
		inputs = append(inputs, p)
	}
	return inputs, returns
}
