package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensymbolicai/opensymbolicai-cli/internal/config"
	"github.com/opensymbolicai/opensymbolicai-cli/internal/llm"
)

const modelsTimeout = 30 * time.Second

func newModelsCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:       "models [provider]",
		Short:     "List the models a provider offers",
		Long:      "List the models a provider offers. Results are cached for the day; --refresh queries the provider again.",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: config.KnownProviders,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := settings.DefaultProvider
			if len(args) > 0 {
				provider = args[0]
			}
			if !config.IsKnownProvider(provider) {
				return fmt.Errorf("unknown provider: %s (known: %v)", provider, config.KnownProviders)
			}

			client, err := llm.NewRegistryFromSettings(settings, nil, log).Get(provider)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), modelsTimeout)
			defer cancel()

			var models []string
			cache, closeCache := openModelCache()
			defer closeCache()
			if cache != nil {
				models, err = cache.Models(ctx, provider, client, refresh)
			} else {
				models, err = client.ListModels(ctx)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(models) == 0 {
				fmt.Fprintln(out, "No models available")
				return nil
			}
			for _, m := range models {
				marker := "  "
				if provider == settings.DefaultProvider && m == settings.DefaultModel {
					marker = "* "
				}
				fmt.Fprintln(out, marker+m)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the model cache")
	return cmd
}
