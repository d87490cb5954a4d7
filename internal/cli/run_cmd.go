package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opensymbolicai/opensymbolicai-cli/internal/runtime"
)

func newRunCmd() *cobra.Command {
	var (
		yes      bool
		asJSON   bool
		provider string
		model    string
		debug    bool
	)

	cmd := &cobra.Command{
		Use:   "run <agent> <query...>",
		Short: "Run a query against an agent and print the result",
		Long: "Run a single query without the terminal UI. Mutations requested by the agent\n" +
			"are rejected unless --yes is given.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args[1:], " ")

			agents, err := scanAgents()
			if err != nil {
				return err
			}
			agent, err := findAgent(agents, args[0])
			if err != nil {
				return err
			}

			s := settings
			if provider != "" {
				s.DefaultProvider = provider
			}
			if model != "" {
				s.DefaultModel = model
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sess := runtime.NewSession(runtime.ConfigFromSettings(s), log)
			defer sess.Close()

			if err := sess.Start(ctx, runtime.StartRequest{
				Agent:    agent,
				Provider: s.DefaultProvider,
				Model:    s.DefaultModel,
				Debug:    debug || s.DebugMode,
			}); err != nil {
				if errors.Is(err, runtime.ErrNotConfigured) {
					return errors.New("provider or model not configured (set defaultProvider and defaultModel, or pass --provider and --model)")
				}
				return err
			}

			stderr := cmd.ErrOrStderr()
			approve := func(req runtime.MutationRequest) (bool, error) {
				fmt.Fprintf(stderr, "Mutation requested: %s(%s)\n", req.Method, req.FormatArgs())
				if !yes {
					fmt.Fprintln(stderr, "Rejected (pass --yes to allow mutations)")
				}
				return yes, nil
			}

			res, err := sess.Run(ctx, query, approve)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return errors.New("interrupted")
				}
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else if res.Success {
				fmt.Fprintln(out, res.Output)
			}

			if debug && res.Metrics != nil {
				fmt.Fprintf(stderr, "Time:   %s\nTokens: %s\n", res.Metrics.TimeSummary(), res.Metrics.TokenSummary())
			}
			if !res.Success {
				if res.Plan != "" && !asJSON {
					fmt.Fprintf(stderr, "Plan attempted:\n%s\n", res.Plan)
				}
				return fmt.Errorf("query failed: %s", res.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "approve every mutation the agent requests")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result, including plan and trace, as JSON")
	cmd.Flags().StringVar(&provider, "provider", "", "provider for this run (overrides settings)")
	cmd.Flags().StringVar(&model, "model", "", "model for this run (overrides settings)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable the framework's debug mode and print timing")

	return cmd
}
