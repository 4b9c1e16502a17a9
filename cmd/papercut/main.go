package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/papercut/internal/logging"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	flags      Config
	cfg        Config
	logger     *slog.Logger
	logCloser  io.Closer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorMsg("%s", describe(err)))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "papercut",
		Short:         "Generate paper-cut patterns and drive the cutting machine",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runShell(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Settings file (default: ~/.papercut/settings.{yaml,json})")
	pf.StringVar(&a.flags.ServerURL, "server-url", "", "Backend service base URL")
	pf.DurationVar((*time.Duration)(&a.flags.RequestTimeout), "timeout", 0, "Per-request timeout")
	pf.StringVar(&a.flags.ExportDir, "export-dir", "", "Directory receiving downloads")
	pf.StringVar(&a.flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&a.flags.LogFormat, "log-format", "", "Log format: text or json")
	pf.StringVar(&a.flags.LogFile, "log-file", "", "Rotate logs into this file instead of stderr")
	pf.StringVar(&a.flags.JournalPath, "journal", "", "Persist the session journal to this libSQL file")
	pf.StringVar(&a.flags.Heartbeat, "heartbeat", "", `Machine probe schedule while cutting, "off" disables`)
	pf.StringVar(&a.flags.PrintCommand, "print-command", "", "Command receiving the print document path")

	root.AddCommand(
		&cobra.Command{
			Use:   "shell",
			Short: "Interactive session (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.runShell(cmd)
			},
		},
		newRunCmd(a),
		newMCPCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				printVersion(cmd.OutOrStdout())
			},
		},
	)
	return root
}

// setup resolves the configuration and configures logging.
func (a *app) setup(cmd *cobra.Command) error {
	getenv, err := envLookup(dotenvFiles()...)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(a.configPath, getenv)
	if err != nil {
		return err
	}
	a.cfg = applyFlags(cfg, a.flags, cmd.Flags().Changed)
	if err := a.cfg.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, closer, err := logging.New(logging.Options{
		Level:  a.cfg.LogLevel,
		Format: a.cfg.LogFormat,
		File:   a.cfg.LogFile,
	})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	a.logger, a.logCloser = logger, closer
	setupColor()
	return nil
}

// applyFlags overlays the flags the user set on cfg.
func applyFlags(cfg, flags Config, changed func(string) bool) Config {
	if changed("server-url") {
		cfg.ServerURL = flags.ServerURL
	}
	if changed("timeout") {
		cfg.RequestTimeout = flags.RequestTimeout
	}
	if changed("export-dir") {
		cfg.ExportDir = flags.ExportDir
	}
	if changed("log-level") {
		cfg.LogLevel = flags.LogLevel
	}
	if changed("log-format") {
		cfg.LogFormat = flags.LogFormat
	}
	if changed("log-file") {
		cfg.LogFile = flags.LogFile
	}
	if changed("journal") {
		cfg.JournalPath = flags.JournalPath
	}
	if changed("heartbeat") {
		cfg.Heartbeat = flags.Heartbeat
	}
	if changed("print-command") {
		cfg.PrintCommand = flags.PrintCommand
	}
	if cfg.Heartbeat == "off" {
		cfg.Heartbeat = ""
	}
	return cfg
}
