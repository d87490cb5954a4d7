package scanner

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/opensymbolicai/opensymbolicai-cli/internal/logging"
)

// maxFileSize bounds how much of a single source file is read.
const maxFileSize = 4 << 20

// maxSignatureLines bounds how far a def header is followed.
const maxSignatureLines = 10

var (
	identPattern      = regexp.MustCompile(`^[A-Za-z_]\w*$`)
	dottedPattern     = regexp.MustCompile(`^[A-Za-z_][\w.]*$`)
	defPattern        = regexp.MustCompile(`^def\s+([A-Za-z_]\w*)\s*\(`)
	decoratorCall     = regexp.MustCompile(`^([A-Za-z_]\w*)\s*\(`)
	initCallPattern   = regexp.MustCompile(`\.__init__\s*\(`)
	manifestCallRegex = regexp.MustCompile(`(?:^|[^.\w])load_manifest\s*\(`)
)

// Scanner finds agent classes in Python source trees.
type Scanner struct {
	log *logging.Logger
}

// New creates a Scanner. A nil logger discards output.
func New(log *logging.Logger) *Scanner {
	if log == nil {
		log = logging.Nop()
	}
	return &Scanner{log: log.Sub("scanner")}
}

// ScanDirectory scans dir with a silent scanner.
func ScanDirectory(dir string) ([]Agent, error) {
	return New(nil).ScanDirectory(dir)
}

// ScanDirectory walks dir recursively and returns every agent found in its
// .py files, ordered by file path then line. A missing or non-directory
// root yields an empty list. Files that cannot be read are skipped.
func (s *Scanner) ScanDirectory(dir string) ([]Agent, error) {
	agents := []Agent{}
	if dir == "" {
		return agents, nil
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		s.log.Debug().Str("dir", dir).Msg("agents folder unavailable")
		return agents, nil
	}

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.log.Debug().Err(err).Str("path", path).Msg("skipping unreadable path")
			return nil
		}
		if d.IsDir() {
			if path != dir && skipDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".py") {
			return nil
		}
		found, err := s.ScanFile(path)
		if err != nil {
			s.log.Debug().Err(err).Str("file", path).Msg("skipping file")
			return nil
		}
		agents = append(agents, found...)
		return nil
	})
	if err != nil {
		return agents, fmt.Errorf("scanning %s: %w", dir, err)
	}

	sort.SliceStable(agents, func(i, j int) bool {
		if agents[i].FilePath != agents[j].FilePath {
			return agents[i].FilePath < agents[j].FilePath
		}
		return agents[i].Line < agents[j].Line
	})
	s.log.Debug().Str("dir", dir).Int("agents", len(agents)).Msg("scan complete")
	return agents, nil
}

func skipDir(name string) bool {
	switch name {
	case "__pycache__", "site-packages", "node_modules":
		return true
	}
	return strings.HasPrefix(name, ".")
}

// ScanFile returns the agents defined in a single Python file.
func (s *Scanner) ScanFile(path string) ([]Agent, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("file too large (%d bytes)", info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, fmt.Errorf("not a text file")
	}
	return parseAgents(path, string(data)), nil
}

// parseAgents extracts agent classes from Python source.
func parseAgents(path, src string) []Agent {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	src = strings.ReplaceAll(src, "\r", "\n")
	lines := splitLogical(src)
	physical := strings.Split(src, "\n")

	var agents []Agent
	for i, ll := range lines {
		className, bases, ok := parseClassHeader(ll)
		if !ok {
			continue
		}
		base := agentBase(bases)
		if base == "" {
			continue
		}

		end := blockEnd(lines, i)
		agent := Agent{
			Name:      className,
			ClassName: className,
			FilePath:  path,
			BaseClass: base,
			Line:      ll.start,
		}

		applyInitMetadata(&agent, lines[i:end])
		if name, ok := manifestReference(lines[i:end], path); ok {
			m, err := LoadManifest(filepath.Join(filepath.Dir(path), name))
			if err == nil {
				m.apply(&agent)
			}
		}

		body := lines[i+1 : end]
		if agent.Description == "" && len(body) > 0 {
			if doc, ok := docstring(body[0]); ok {
				first, _, _ := strings.Cut(doc, "\n")
				agent.Description = strings.TrimSpace(first)
			}
		}

		agent.Methods = parseMethods(body, physical)
		agents = append(agents, agent)
	}
	return agents
}

// parseClassHeader recognises "class Name(bases):" and returns the base
// expressions.
func parseClassHeader(ll logicalLine) (string, []string, bool) {
	rest, ok := strings.CutPrefix(ll.code, "class")
	if !ok || rest == "" || (rest[0] != ' ' && rest[0] != '\t') {
		return "", nil, false
	}
	offset := len(ll.code) - len(rest)
	trimmed := strings.TrimLeft(rest, " \t")
	offset += len(rest) - len(trimmed)

	n := 0
	for n < len(trimmed) && (trimmed[n] == '_' || isAlnum(trimmed[n])) {
		n++
	}
	name := trimmed[:n]
	if !identPattern.MatchString(name) {
		return "", nil, false
	}
	offset += n
	for offset < len(ll.code) && (ll.code[offset] == ' ' || ll.code[offset] == '\t') {
		offset++
	}
	if offset >= len(ll.code) || ll.code[offset] != '(' {
		return name, nil, true
	}
	closeIdx := closingParen(ll.masked, offset)
	if closeIdx < 0 {
		return "", nil, false
	}
	args := parseArgs(ll.code[offset+1:closeIdx], ll.masked[offset+1:closeIdx])
	return name, args.positional, true
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// agentBase returns the recognised base class name, or "".
func agentBase(bases []string) string {
	for _, b := range bases {
		if !dottedPattern.MatchString(b) {
			continue
		}
		name := b[strings.LastIndexByte(b, '.')+1:]
		if agentBases[name] {
			return name
		}
	}
	return ""
}

// blockEnd returns the index one past the last logical line nested under
// lines[i].
func blockEnd(lines []logicalLine, i int) int {
	j := i + 1
	for j < len(lines) && lines[j].indent > lines[i].indent {
		j++
	}
	return j
}

// docstring returns the cleaned docstring when ll is a bare string literal.
func docstring(ll logicalLine) (string, bool) {
	s, ok := stringLiteral(ll.code)
	if !ok {
		return "", false
	}
	return cleandoc(s), true
}

// applyInitMetadata reads name/description/version keyword constants from
// any X.__init__(...) call inside the class.
func applyInitMetadata(agent *Agent, block []logicalLine) {
	for _, ll := range block {
		for _, loc := range initCallPattern.FindAllStringIndex(ll.masked, -1) {
			args, ok := callAt(ll, loc[1]-1)
			if !ok {
				continue
			}
			if v, ok := constantValue(args.keywords["name"]); ok {
				agent.Name = v
			}
			if v, ok := constantValue(args.keywords["description"]); ok {
				agent.Description = v
			}
			if v, ok := constantValue(args.keywords["version"]); ok {
				agent.Version = v
			}
		}
	}
}

// manifestReference finds a load_manifest(...) call in the class and
// returns the manifest file name it refers to.
func manifestReference(block []logicalLine, path string) (string, bool) {
	for _, ll := range block {
		loc := manifestCallRegex.FindStringIndex(ll.masked)
		if loc == nil {
			continue
		}
		args, ok := callAt(ll, loc[1]-1)
		if !ok {
			continue
		}
		if len(args.positional) >= 2 {
			if v, ok := stringLiteral(args.positional[1]); ok && v != "" {
				return v, true
			}
		}
		if v, ok := stringLiteral(args.keywords["manifest_name"]); ok && v != "" {
			return v, true
		}
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		return stem + ".manifest.json", true
	}
	return "", false
}

// callAt parses the arguments of the call whose "(" is at open.
func callAt(ll logicalLine, open int) (callArgs, bool) {
	closeIdx := closingParen(ll.masked, open)
	if closeIdx < 0 {
		return callArgs{}, false
	}
	return parseArgs(ll.code[open+1:closeIdx], ll.masked[open+1:closeIdx]), true
}

// parseMethods collects decorated methods declared directly in a class body.
func parseMethods(body []logicalLine, physical []string) []Method {
	if len(body) == 0 {
		return nil
	}
	indent := body[0].indent

	var (
		methods    []Method
		decorators []logicalLine
	)
	for j := 0; j < len(body); j++ {
		ll := body[j]
		if ll.indent != indent {
			continue
		}
		if strings.HasPrefix(ll.code, "@") {
			decorators = append(decorators, logicalLine{code: ll.code[1:], masked: ll.masked[1:]})
			continue
		}
		m := defPattern.FindStringSubmatch(ll.code)
		if m == nil {
			decorators = nil
			continue
		}

		method, ok := decorate(decorators)
		decorators = nil
		if !ok {
			continue
		}
		method.Name = m[1]
		method.Line = ll.start

		end := blockEnd(body, j)
		lastLine := body[end-1].end
		if end > j+1 {
			if doc, ok := docstring(body[j+1]); ok {
				method.Docstring = doc
			}
		}
		method.Signature = signatureAt(physical, ll.start)
		method.Source = strings.Join(physical[ll.start-1:min(lastLine, len(physical))], "\n")
		methods = append(methods, method)
	}
	return methods
}

// decorate interprets a method's decorator list. It reports false when
// neither @primitive nor @decomposition is present.
func decorate(decorators []logicalLine) (Method, bool) {
	var m Method
	for _, d := range decorators {
		lead := len(d.code) - len(strings.TrimLeft(d.code, " \t"))
		d = logicalLine{code: strings.TrimSpace(d.code[lead:]), masked: d.masked[lead:]}
		d.masked = d.masked[:len(d.code)]

		name := d.code
		var args callArgs
		if loc := decoratorCall.FindStringSubmatchIndex(d.code); loc != nil {
			name = d.code[loc[2]:loc[3]]
			var ok bool
			if args, ok = callAt(d, loc[1]-1); !ok {
				continue
			}
		} else if !identPattern.MatchString(name) {
			continue
		}

		switch name {
		case KindPrimitive:
			m.Kind = KindPrimitive
			if v, ok := args.keywords["read_only"]; ok {
				m.ReadOnly = truthy(v)
			}
		case KindDecomposition:
			m.Kind = KindDecomposition
			if len(args.positional) > 0 {
				if v, ok := constantValue(args.positional[0]); ok {
					m.Intent = v
				}
			}
			if v, ok := constantValue(args.keywords["intent"]); ok {
				m.Intent = v
			}
			if v, ok := constantValue(args.keywords["expanded_intent"]); ok {
				m.ExpandedIntent = v
			}
		}
	}
	return m, m.Kind != ""
}

// signatureAt returns the def header starting at the 1-based line,
// following continuation lines until the parameter list closes.
func signatureAt(physical []string, line int) string {
	var out []string
	for i := line - 1; i < len(physical) && i < line-1+maxSignatureLines; i++ {
		l := physical[i]
		out = append(out, l)
		if strings.Contains(l, "):") || strings.Contains(l, ") ->") {
			break
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
