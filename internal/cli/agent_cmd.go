package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/opensymbolicai/opensymbolicai-cli/internal/scanner"
)

var errNoAgentsFolder = errors.New("no agents folder configured (set agentsFolder or pass --agents-folder)")

func newAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agents",
		Aliases: []string{"agent"},
		Short:   "Inspect the agents in the agents folder",
	}

	cmd.AddCommand(newAgentsListCmd())
	cmd.AddCommand(newAgentsShowCmd())
	return cmd
}

// scanAgents scans the configured agents folder.
func scanAgents() ([]scanner.Agent, error) {
	dir := settings.AgentsDir()
	if dir == "" {
		return nil, errNoAgentsFolder
	}
	agents, err := scanner.New(log).ScanDirectory(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	log.Debug().Str("dir", dir).Int("agents", len(agents)).Msg("scanned agents folder")
	return agents, nil
}

// findAgent matches name against agent names, then class names, ignoring case.
func findAgent(agents []scanner.Agent, name string) (scanner.Agent, error) {
	for _, a := range agents {
		if strings.EqualFold(a.Name, name) {
			return a, nil
		}
	}
	for _, a := range agents {
		if strings.EqualFold(a.ClassName, name) {
			return a, nil
		}
	}
	return scanner.Agent{}, fmt.Errorf("agent not found: %s", name)
}

func newAgentsListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			agents, err := scanAgents()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if asJSON {
				if agents == nil {
					agents = []scanner.Agent{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(agents)
			}

			if len(agents) == 0 {
				fmt.Fprintln(out, "No agents found in", settings.AgentsDir())
				return nil
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("NAME", "CLASS", "BASE", "PRIMITIVES", "DECOMPOSITIONS", "FILE")
			for _, a := range agents {
				c := a.Capabilities()
				rel, err := filepath.Rel(settings.AgentsDir(), a.FilePath)
				if err != nil {
					rel = a.FilePath
				}
				t.Row(a.Name, a.ClassName, a.BaseClass,
					fmt.Sprintf("%d (%d ro)", c.Primitives, c.ReadOnly),
					strconv.Itoa(c.Decompositions), rel)
			}
			fmt.Fprintln(out, t.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print agents as JSON")
	return cmd
}

func newAgentsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show an agent's primitives and decompositions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agents, err := scanAgents()
			if err != nil {
				return err
			}
			a, err := findAgent(agents, args[0])
			if err != nil {
				return err
			}
			printAgent(cmd.OutOrStdout(), a)
			return nil
		},
	}
}

func printAgent(w io.Writer, a scanner.Agent) {
	fmt.Fprintf(w, "Agent: %s\n", a.Name)
	if a.Description != "" {
		fmt.Fprintf(w, "  Description: %s\n", a.Description)
	}
	fmt.Fprintf(w, "  Class:       %s (%s)\n", a.ClassName, a.BaseClass)
	if a.Version != "" {
		fmt.Fprintf(w, "  Version:     %s\n", a.Version)
	}
	fmt.Fprintf(w, "  File:        %s:%d\n", a.FilePath, a.Line)

	c := a.Capabilities()
	fmt.Fprintf(w, "\nPrimitives (%d, %d read-only):\n", c.Primitives, c.ReadOnly)
	for _, m := range a.Primitives() {
		inputs, returns := scanner.ParseSignature(m.Signature)
		line := fmt.Sprintf("  ● %s(%s) -> %s", m.Name, strings.Join(inputs, ", "), returns)
		if m.ReadOnly {
			line += "  [read-only]"
		}
		fmt.Fprintln(w, line)
		if m.Docstring != "" {
			first, _, _ := strings.Cut(m.Docstring, "\n")
			fmt.Fprintf(w, "      %s\n", first)
		}
	}

	fmt.Fprintf(w, "\nDecompositions (%d):\n", c.Decompositions)
	for _, m := range a.Decompositions() {
		if m.Intent != "" {
			fmt.Fprintf(w, "  ↳ %s: %q\n", m.Name, m.Intent)
		} else {
			fmt.Fprintf(w, "  ↳ %s\n", m.Name)
		}
		if m.ExpandedIntent != "" {
			fmt.Fprintf(w, "      %s\n", m.ExpandedIntent)
		}
	}
}
