// Package cli implements the secureguard command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"secureguard-lab/internal/config"
	"secureguard-lab/pkg/logger"
)

const version = "0.1.0"

type rootOptions struct {
	ConfigPath string
	LogLevel   string
	JSONLogs   bool
}

// Execute builds the root command tree and runs the CLI
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd returns the command tree
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "secureguard",
		Short:         "Threat detection for installed Android applications",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	rootCmd.SetVersionTemplate("secureguard version {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Path to config.yaml (optional)")
	rootCmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Override logger.level")
	rootCmd.PersistentFlags().BoolVar(&opts.JSONLogs, "json-logs", false, "Emit JSON logs")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newScanCmd(opts),
		newThreatsCmd(opts),
		newWhitelistCmd(opts),
		newInventoryCmd(opts),
		newWatchCmd(opts),
	)

	return rootCmd
}

// load reads config and builds the logger. Logs go to stderr so command
// output on stdout stays machine-readable.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, nil, err
	}

	logCfg := logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		TimeFormat: cfg.Logger.TimeFormat,
		Output:     cmd.ErrOrStderr(),
	}
	if o.LogLevel != "" {
		logCfg.Level = o.LogLevel
	}
	if o.JSONLogs {
		logCfg.Format = "json"
	}

	return cfg, logger.New(logCfg), nil
}

// withApp loads config, wires the stack, runs fn and tears down
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, log, err := o.load(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// ExitOnError prints err and exits non-zero; nil is a no-op
func ExitOnError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	os.Exit(1)
}
