package main

import (
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/logger"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "textindex",
		Short:         "Build and inspect persistent full-text index segments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	cmd.AddCommand(newBuildCmd(opts), newInspectCmd(opts), newCheckCmd(opts))
	return cmd
}

// loadConfig reads the config file and sets up logging from it.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidConfig, err, "loading config")
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

func usageError(err error) error {
	return apperrors.Wrap(apperrors.ErrInvalidConfig, err, "usage")
}
