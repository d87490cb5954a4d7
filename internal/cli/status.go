package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opensymbolicai/opensymbolicai-cli/internal/config"
	"github.com/opensymbolicai/opensymbolicai-cli/internal/version"
)

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show paths, settings and provider key status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, version.Info())
			fmt.Fprintln(out)

			fmt.Fprintf(out, "Settings: %s\n", paths.Settings)
			if _, err := os.Stat(paths.Settings); os.IsNotExist(err) {
				fmt.Fprintln(out, "          not found (using defaults)")
			}
			if envFile != "" {
				fmt.Fprintf(out, "Env file: %s\n", envFile)
			}
			fmt.Fprintf(out, "Logs:     %s\n", logFile())
			fmt.Fprintf(out, "Cache:    %s\n", paths.ModelCache)
			fmt.Fprintln(out)

			fmt.Fprintf(out, "Agents:   %s\n", orNotSet(settings.AgentsFolder))
			fmt.Fprintf(out, "Provider: %s\n", orNotSet(settings.DefaultProvider))
			fmt.Fprintf(out, "Model:    %s\n", orNotSet(settings.DefaultModel))
			fmt.Fprintf(out, "Debug:    %v\n", settings.DebugMode)
			fmt.Fprintf(out, "Python:   %s\n", settings.Runner.Python)
			fmt.Fprintln(out)

			fmt.Fprintln(out, "API keys:")
			for _, p := range config.KnownProviders {
				env := config.APIKeyEnv(p)
				switch {
				case env == "":
					fmt.Fprintf(out, "  %-10s no key needed\n", p)
				case settings.MissingAPIKey(p) != "":
					fmt.Fprintf(out, "  %-10s %s not set\n", p, env)
				default:
					fmt.Fprintf(out, "  %-10s ok\n", p)
				}
			}

			if settingsErr != nil {
				fmt.Fprintf(out, "\nSettings error: %v\n", settingsErr)
			}
			issues := config.Validate(&settings)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}
			return nil
		},
	}
}
