package main

import (
	"fmt"
	"io"
	"strings"

	"cdr.dev/slog/v3"
	"cdr.dev/slog/v3/sloggers/sloghuman"
	"github.com/spf13/cobra"

	"ecoleafdrive/internal/config"
)

type rootOptions struct {
	configPath     string
	s3ConfigPath   string
	authConfigPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "ecoleafdrive",
		Short:         "Ecoleaf Drive storage backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", ".app.env", "application config file")
	cmd.PersistentFlags().StringVar(&opts.s3ConfigPath, "s3-config", ".s3.env", "object storage config file")
	cmd.PersistentFlags().StringVar(&opts.authConfigPath, "auth-config", ".auth.env", "auth config file")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newReconcileCmd(opts),
	)
	return cmd
}

// load читает конфигурацию и создает логгер
func (o *rootOptions) load(out io.Writer) (*config.Config, slog.Logger, error) {
	cfg, err := config.NewConfig(o.configPath)
	if err != nil {
		return nil, slog.Logger{}, fmt.Errorf("failed to load config: %w", err)
	}

	level, err := parseLevel(cfg.Log.Level)
	if err != nil {
		return nil, slog.Logger{}, err
	}
	logger := slog.Make(sloghuman.Sink(out)).Leveled(level)
	return cfg, logger, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
