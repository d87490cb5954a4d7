// Package cli wires the cobra command tree: the interactive terminal UI
// plus headless subcommands for scripting.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opensymbolicai/opensymbolicai-cli/internal/config"
	"github.com/opensymbolicai/opensymbolicai-cli/internal/logging"
	"github.com/opensymbolicai/opensymbolicai-cli/internal/store"
	"github.com/opensymbolicai/opensymbolicai-cli/internal/tui"
	"github.com/opensymbolicai/opensymbolicai-cli/internal/version"
)

var (
	cfgFile      string
	logLevel     string
	agentsFolder string

	// loaded before every command
	paths       config.Paths
	settings    config.Settings
	settingsErr error
	envFile     string
	log         *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "opensymbolicai",
		Short: "Browse and run OpenSymbolicAI agents",
		Long: "opensymbolicai discovers OpenSymbolicAI agents in a folder, shows their primitives and\n" +
			"decompositions, and runs queries against them with the configured LLM provider.\n\n" +
			"Without a subcommand it starts the interactive terminal UI.",
		Args: cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			settingsErr = nil
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Settings = cfgFile
			}

			// Keys from .env must be in place before ${VAR} expansion.
			envFile, err = config.LoadEnvFile(".env", paths.EnvFile)
			if err != nil {
				settingsErr = err
			}
			var loadErr error
			settings, loadErr = config.Load(paths.Settings)
			if loadErr != nil {
				settingsErr = loadErr
			}
			if agentsFolder != "" {
				settings.AgentsFolder = agentsFolder
			}

			// The interactive UI owns the terminal and logs to a file instead.
			if cmd.HasParent() {
				log = logging.New(nil, level())
				if settingsErr != nil {
					log.Warn().Err(settingsErr).Msg("using default settings")
				}
			}
			return nil
		},
		RunE:          runTUI,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (default ~/.config/opensymbolicai-cli/settings.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")
	cmd.PersistentFlags().StringVar(&agentsFolder, "agents-folder", "", "agents folder for this invocation (overrides settings)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newAgentsCmd())
	cmd.AddCommand(newModelsCmd())
	cmd.AddCommand(newRunCmd())

	return cmd
}

// level is the --log-level flag, else the configured level.
func level() string {
	if logLevel != "" {
		return logLevel
	}
	return settings.Logging.Level
}

func logFile() string {
	if settings.Logging.File != "" {
		return config.ExpandHome(settings.Logging.File)
	}
	return paths.LogFile
}

func runTUI(cmd *cobra.Command, _ []string) error {
	if err := paths.EnsureDirs(); err != nil {
		return err
	}
	flog, closer, err := logging.NewFile(logFile(), level())
	if err != nil {
		return err
	}
	defer closer.Close()
	log = flog

	log.Info().Str("version", version.Version).Str("settings", paths.Settings).Msg("starting terminal UI")
	if envFile != "" {
		log.Debug().Str("path", envFile).Msg("loaded environment file")
	}
	if settingsErr != nil {
		log.Warn().Err(settingsErr).Msg("using default settings")
	}

	models, closeCache := openModelCache()
	defer closeCache()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return tui.Run(ctx, tui.Options{
		Settings:     settings,
		SettingsPath: paths.Settings,
		Models:       models,
		Watch:        true,
		Log:          log,
	})
}

// openModelCache opens the SQLite model cache. Listing still works without
// it, so a failure is logged and a nil cache returned.
func openModelCache() (*store.ModelCache, func()) {
	db, err := store.Open(paths.ModelCache, log)
	if err != nil {
		log.Warn().Err(err).Str("path", paths.ModelCache).Msg("model cache unavailable")
		return nil, func() {}
	}
	return store.NewModelCache(db), func() { _ = db.Close() }
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().ExecuteContext(context.Background())
}
