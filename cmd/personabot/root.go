package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/edgard/personabot/internal/app"
	"github.com/edgard/personabot/internal/config"
	"github.com/edgard/personabot/internal/logger"
)

// Build information, set with -ldflags.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

type rootOptions struct {
	configFile string
	envFile    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "personabot",
		Short:         "Persona chat bot for Discord and Telegram",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "path to config file (default ./config.yaml if present)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level")

	cmd.AddCommand(
		newRunCmd(opts),
		newMigrateCmd(opts),
		newProfilesCmd(opts),
		newPromptCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// load reads the configuration and installs the process logger.
func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	loadOpts := config.Options{ConfigFile: o.configFile, EnvFile: o.envFile}
	if o.logLevel != "" {
		loadOpts.Overrides = map[string]any{"log.level": o.logLevel}
	}
	cfg, err := config.Load(loadOpts)
	if err != nil {
		return nil, nil, err
	}
	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	return cfg, log, nil
}

// withApp loads the configuration, builds the App and hands it to fn.
func (o *rootOptions) withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, log, err := o.load()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize application", "error", err)
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
