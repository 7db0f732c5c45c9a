// Package cmd holds the firecommand command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fire/command/internal/config"
	"fire/command/internal/server"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "firecommand",
	Short:        "Fire command dispatch state and notification engine",
	Long:         "Runs the dispatch engine behind an HTTP API and a WebSocket event stream. Settings come from the environment.",
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("init server")
		return err
	}
	defer srv.Close()

	if err := srv.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server stopped")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newLogger writes to stdout, pretty printed in development, and also to
// LOG_FILE as JSON when it is set.
func newLogger(cfg config.Config) (zerolog.Logger, func(), error) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if cfg.Env == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC822}
	}

	closeFn := func() {}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("open log file: %w", err)
		}
		out = zerolog.MultiLevelWriter(out, f)
		closeFn = func() { _ = f.Close() }
	}

	logger := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("env", cfg.Env).
		Str("app", cfg.AppName).
		Logger()
	return logger, closeFn, nil
}
