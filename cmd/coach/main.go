// Command coach grades essays: interactively, over HTTP, or from a watched
// inbox directory.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/go-writecoach/internal/config"
)

// exitError carries a process exit code other than 1.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

type rootOptions struct {
	configFile string
	envFile    string
	logLevel   string

	cfg *config.Config
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	cancel()

	if err == nil {
		return
	}
	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			fmt.Fprintln(os.Stderr, "Error:", exit.err)
		}
		os.Exit(exit.code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "coach",
		Short:         "Grade essays with rubric scores and written feedback",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "YAML config file (default $COACH_CONFIG or "+config.DefaultFile+")")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file with API keys")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newGradeCommand(opts),
		newServeCommand(opts),
		newWatchCommand(opts),
		newHistoryCommand(opts),
	)
	return root
}

// setup loads configuration and installs the logger on the command context.
func (o *rootOptions) setup(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg, err := config.LoadFrom(ctx, config.Source{File: o.configFile, DotEnv: o.envFile})
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}

	logger := clog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	cmd.SetContext(clog.WithLogger(ctx, logger))
	o.cfg = cfg
	return nil
}
