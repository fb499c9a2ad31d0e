// Package cli implements the spverify command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kuitang/spverify/internal/browser"
	"github.com/kuitang/spverify/internal/config"
	"github.com/kuitang/spverify/internal/errs"
	"github.com/kuitang/spverify/internal/obs"
	"github.com/kuitang/spverify/internal/suite"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// Launcher hands out browser contexts and owns the browser process.
type Launcher interface {
	suite.ContextFactory
	Close() error
}

// Deps are the process-level collaborators commands use.
type Deps struct {
	Launch func(opts browser.Options) (Launcher, error)
}

// DefaultDeps launches a real Playwright browser.
func DefaultDeps() Deps {
	return Deps{
		Launch: func(opts browser.Options) (Launcher, error) {
			l, err := browser.Launch(opts)
			if err != nil {
				return nil, err
			}
			return l, nil
		},
	}
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile  string
	LogLevel string
}

// ExitError carries a specific process exit status out of a command.
// A nil Err means the command already reported the failure.
type ExitError struct {
	Status int
	Err    error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Status)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewRootCommand creates the root command.
func NewRootCommand(deps Deps) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "spverify",
		Short: "Browser verification for the service provider dashboard",
		Long: `spverify drives scripted browser scenarios against the service provider
admin dashboard and portal, mocking selected API routes, and records
screenshots and reports as evidence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			obs.Init()
			if opts.LogLevel != "" {
				obs.SetLevel(obs.ParseLevel(opts.LogLevel))
			}
			if err := config.LoadDotEnv(opts.EnvFile); err != nil {
				return errs.Wrap(errs.InvalidArgument, "load env file", err)
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errs.Wrap(errs.InvalidArgument, "invalid flags", err)
	})

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "load environment variables from this file when it exists")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewRunCommand(opts, deps))
	cmd.AddCommand(NewListCommand())
	cmd.AddCommand(NewAPICheckCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// Execute runs the command line and returns the process exit status.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer, deps Deps) int {
	cmd := NewRootCommand(deps)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		if exit.Err != nil {
			fmt.Fprintln(stderr, "Error:", errs.Format(exit.Err))
		}
		return exit.Status
	}
	fmt.Fprintln(stderr, "Error:", errs.Format(err))
	return errs.ExitCode(errs.CodeOf(err))
}

func loadConfig(o config.Overrides) (*config.Config, error) {
	cfg, err := config.Load(o)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "load configuration", err)
	}
	obs.SetLevel(obs.ParseLevel(cfg.LogLevel))
	return cfg, nil
}
