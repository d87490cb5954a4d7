package scanner

import (
	"strings"
)

// logicalLine is one Python statement (or statement header) after joining
// bracketed and backslash continuations.
type logicalLine struct {
	start  int // first physical line, 1-based
	end    int // last physical line, 1-based
	indent int
	code   string // comments removed
	masked string // code with string literal bodies blanked; same byte offsets as code
}

// splitLogical breaks Python source into logical lines. Blank and
// comment-only lines are dropped. Triple-quoted strings spanning several
// physical lines stay inside the logical line that opened them.
func splitLogical(src string) []logicalLine {
	var (
		out      []logicalLine
		code     strings.Builder
		masked   strings.Builder
		line     = 1
		start    = 1
		depth    = 0
		quote    byte
		triple   bool
		inString bool
		atStart  = true
		indent   = 0
		col      = 0
	)

	flush := func(endLine int) {
		c := code.String()
		if strings.TrimSpace(c) != "" {
			out = append(out, logicalLine{
				start:  start,
				end:    endLine,
				indent: indent,
				code:   c,
				masked: masked.String(),
			})
		}
		code.Reset()
		masked.Reset()
		depth = 0
		atStart = true
		indent = 0
		col = 0
	}

	emit := func(b byte, blank bool) {
		code.WriteByte(b)
		if blank && b != '\n' {
			masked.WriteByte(' ')
		} else {
			masked.WriteByte(b)
		}
	}

	for i := 0; i < len(src); i++ {
		c := src[i]

		if atStart {
			switch c {
			case ' ':
				col++
				continue
			case '\t':
				col = (col/8 + 1) * 8
				continue
			case '\r':
				continue
			case '\n':
				line++
				col = 0
				continue
			case '#':
				for i < len(src) && src[i] != '\n' {
					i++
				}
				i--
				continue
			}
			atStart = false
			start = line
			indent = col
		}

		if inString {
			if c == '\\' && i+1 < len(src) {
				emit(c, true)
				i++
				if src[i] == '\n' {
					line++
				}
				emit(src[i], true)
				continue
			}
			if c == '\n' {
				line++
				emit(c, true)
				if !triple {
					// Unterminated single-quoted string; recover at end of line.
					inString = false
					if depth == 0 {
						flush(line - 1)
					}
				}
				continue
			}
			if c == quote {
				if !triple {
					inString = false
					emit(c, false)
					continue
				}
				if strings.HasPrefix(src[i:], strings.Repeat(string(quote), 3)) {
					inString = false
					emit(c, false)
					emit(c, false)
					emit(c, false)
					i += 2
					continue
				}
			}
			emit(c, true)
			continue
		}

		switch c {
		case '#':
			for i+1 < len(src) && src[i+1] != '\n' {
				i++
			}
		case '"', '\'':
			quote = c
			inString = true
			triple = strings.HasPrefix(src[i:], strings.Repeat(string(c), 3))
			emit(c, false)
			if triple {
				emit(c, false)
				emit(c, false)
				i += 2
			}
		case '(', '[', '{':
			depth++
			emit(c, false)
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
			emit(c, false)
		case '\\':
			if i+1 < len(src) && src[i+1] == '\n' {
				emit(' ', false)
				i++
				line++
				continue
			}
			emit(c, false)
		case '\r':
		case '\n':
			line++
			if depth > 0 {
				emit(c, false)
				continue
			}
			flush(line - 1)
		default:
			emit(c, false)
		}
	}
	flush(line)
	return out
}

// stringLiteral decodes a single Python string literal expression, which
// may be a concatenation of adjacent literals. It reports false for
// anything else, including f-strings and bytes.
func stringLiteral(expr string) (string, bool) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return "", false
	}
	var out strings.Builder
	for s != "" {
		raw := false
		j := 0
		for j < len(s) && j < 2 && strings.ContainsRune("rRuU", rune(s[j])) {
			if s[j] == 'r' || s[j] == 'R' {
				raw = true
			}
			j++
		}
		s = s[j:]
		if s == "" || (s[0] != '"' && s[0] != '\'') {
			return "", false
		}
		q := s[:1]
		if strings.HasPrefix(s, strings.Repeat(q, 3)) {
			q = strings.Repeat(q, 3)
		}
		body, rest, ok := cutLiteral(s[len(q):], q)
		if !ok {
			return "", false
		}
		if raw {
			out.WriteString(body)
		} else {
			out.WriteString(unescape(body))
		}
		s = strings.TrimSpace(rest)
	}
	return out.String(), true
}

// cutLiteral finds the closing quote, honouring backslash escapes.
func cutLiteral(s, q string) (body, rest string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if strings.HasPrefix(s[i:], q) {
			return s[:i], s[i+len(q):], true
		}
	}
	return "", "", false
}

func unescape(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\', '\'', '"':
			b.WriteByte(s[i])
		case '\n':
			// line continuation inside the literal
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// constantValue renders a literal expression the way Python's str() would
// render the constant: strings decoded, other literals verbatim.
func constantValue(expr string) (string, bool) {
	if s, ok := stringLiteral(expr); ok {
		return s, true
	}
	e := strings.TrimSpace(expr)
	switch e {
	case "True", "False", "None":
		return e, true
	}
	if e == "" || !strings.ContainsAny(e[:1], "-.0123456789") {
		return "", false
	}
	for i, r := range e {
		if (r >= '0' && r <= '9') || r == '.' || r == '_' || (i == 0 && r == '-') {
			continue
		}
		if r == 'e' || r == 'E' || r == 'x' || r == 'X' {
			continue
		}
		return "", false
	}
	return e, true
}

// truthy mirrors Python truthiness for a literal constant.
func truthy(expr string) bool {
	v, ok := constantValue(expr)
	if !ok {
		return false
	}
	if _, isStr := stringLiteral(expr); isStr {
		return v != ""
	}
	switch v {
	case "False", "None", "0", "0.0":
		return false
	}
	return true
}

// splitTopLevel splits s at commas that are not nested inside brackets or
// string literals. masked must be s with string bodies blanked.
func splitTopLevel(s, masked string) []string {
	var parts []string
	depth, last := 0, 0
	inStr := byte(0)
	for i := 0; i < len(masked); i++ {
		c := masked[i]
		if inStr != 0 {
			if c == inStr {
				inStr = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			inStr = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	if tail := s[last:]; strings.TrimSpace(tail) != "" {
		parts = append(parts, tail)
	}
	return parts
}

// closingParen returns the index of the bracket closing the one at open,
// or -1. Offsets are taken from masked so brackets in strings are ignored.
func closingParen(masked string, open int) int {
	depth := 0
	inStr := byte(0)
	for i := open; i < len(masked); i++ {
		c := masked[i]
		if inStr != 0 {
			if c == inStr {
				inStr = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			inStr = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// callArgs holds the parsed arguments of a call expression.
type callArgs struct {
	positional []string
	keywords   map[string]string
}

// parseArgs splits the text between a call's parentheses.
func parseArgs(code, masked string) callArgs {
	args := callArgs{keywords: map[string]string{}}
	offset := 0
	for _, part := range splitTopLevel(code, masked) {
		pm := masked[offset : offset+len(part)]
		offset += len(part) + 1
		if eq := keywordSplit(pm); eq > 0 {
			name := strings.TrimSpace(part[:eq])
			args.keywords[name] = strings.TrimSpace(part[eq+1:])
			continue
		}
		args.positional = append(args.positional, strings.TrimSpace(part))
	}
	return args
}

// keywordSplit returns the index of the '=' in "name=value", or -1.
func keywordSplit(masked string) int {
	eq := strings.IndexByte(masked, '=')
	if eq <= 0 || (eq+1 < len(masked) && masked[eq+1] == '=') {
		return -1
	}
	if !isIdentifier(strings.TrimSpace(masked[:eq])) {
		return -1
	}
	return eq
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r > 127 {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return true
}

// cleandoc normalises docstring indentation the way Python's
// inspect.cleandoc does.
func cleandoc(doc string) string {
	lines := strings.Split(strings.ReplaceAll(doc, "\t", "        "), "\n")
	margin := -1
	for _, l := range lines[1:] {
		content := strings.TrimLeft(l, " ")
		if content == "" {
			continue
		}
		if ind := len(l) - len(content); margin < 0 || ind < margin {
			margin = ind
		}
	}
	lines[0] = strings.TrimLeft(lines[0], " ")
	if margin > 0 {
		for i := 1; i < len(lines); i++ {
			if len(lines[i]) >= margin {
				lines[i] = lines[i][margin:]
			} else {
				lines[i] = strings.TrimLeft(lines[i], " ")
			}
		}
	}
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
