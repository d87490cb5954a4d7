package tui

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

const useFolderLabel = "✓ Use this folder"

var browserKeys = struct {
	Up, Down, Open, Parent key.Binding
}{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Open:   key.NewBinding(key.WithKeys("enter", "right", "l"), key.WithHelp("enter", "open/choose")),
	Parent: key.NewBinding(key.WithKeys("backspace", "left", "h"), key.WithHelp("←", "parent")),
}

// dirBrowser navigates the filesystem one directory at a time. The first
// row chooses the directory being shown.
type dirBrowser struct {
	dir     string
	entries []string
	cursor  int
	err     error
	height  int
}

func newDirBrowser(start string) dirBrowser {
	if info, err := os.Stat(start); start == "" || err != nil || !info.IsDir() {
		start, _ = os.UserHomeDir()
		if start == "" {
			start = string(filepath.Separator)
		}
	}
	b := dirBrowser{height: 12}
	b.open(start)
	return b
}

// open switches to dir and lists its subdirectories.
func (b *dirBrowser) open(dir string) {
	b.dir = filepath.Clean(dir)
	b.entries = nil
	b.cursor = 0
	b.err = nil

	items, err := os.ReadDir(b.dir)
	if err != nil {
		b.err = err
		return
	}
	for _, it := range items {
		if it.IsDir() {
			b.entries = append(b.entries, it.Name())
			continue
		}
		if it.Type()&os.ModeSymlink != 0 {
			if info, err := os.Stat(filepath.Join(b.dir, it.Name())); err == nil && info.IsDir() {
				b.entries = append(b.entries, it.Name())
			}
		}
	}
}

func (b *dirBrowser) hasParent() bool {
	return filepath.Dir(b.dir) != b.dir
}

// rows are the selectable lines: choose, parent, then subdirectories.
func (b *dirBrowser) rows() []string {
	rows := []string{useFolderLabel}
	if b.hasParent() {
		rows = append(rows, "..")
	}
	for _, e := range b.entries {
		rows = append(rows, e+string(filepath.Separator))
	}
	return rows
}

// update handles a key and reports the chosen directory, if any.
func (b *dirBrowser) update(msg tea.KeyMsg) (string, bool) {
	rows := b.rows()
	switch {
	case key.Matches(msg, browserKeys.Up):
		if b.cursor > 0 {
			b.cursor--
		}
	case key.Matches(msg, browserKeys.Down):
		if b.cursor < len(rows)-1 {
			b.cursor++
		}
	case key.Matches(msg, browserKeys.Parent):
		if b.hasParent() {
			b.open(filepath.Dir(b.dir))
		}
	case key.Matches(msg, browserKeys.Open):
		switch {
		case b.cursor == 0:
			return b.dir, true
		case rows[b.cursor] == "..":
			b.open(filepath.Dir(b.dir))
		default:
			name := strings.TrimSuffix(rows[b.cursor], string(filepath.Separator))
			b.open(filepath.Join(b.dir, name))
		}
	}
	return "", false
}

func (b *dirBrowser) view() string {
	var sb strings.Builder
	sb.WriteString(boldStyle.Render(b.dir))
	sb.WriteByte('\n')
	if b.err != nil {
		sb.WriteString(errorStyle.Render(b.err.Error()))
		sb.WriteByte('\n')
	}

	rows := b.rows()
	start := 0
	if b.cursor >= b.height {
		start = b.cursor - b.height + 1
	}
	for i := start; i < len(rows) && i < start+b.height; i++ {
		line := "  " + rows[i]
		if i == b.cursor {
			line = selectedStyle.Render("> " + rows[i])
		} else if i == 0 {
			line = successStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}
