// Package main implements the relay CLI - the Tool Facade and pulse
// runner entry point for the relay coordination kernel.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relaykit/relay/config"
)

// Build information (set via ldflags).
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		root       string
		configPath string
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:     "relay",
		Short:   "Two-role architect/engineer coordination kernel",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if root == "" {
				cwd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("determine working directory: %w", err)
				}
				root = discoverRoot(cwd)
			}
			abs, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("resolve root: %w", err)
			}
			root = abs
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&root, "root", "", "Workspace root (default: nearest ancestor with a .relay/ directory, else the current directory)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a .relay.yaml config file, overriding layered discovery")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")

	logger := func() *slog.Logger {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	loadConfig := func() (*config.Config, error) {
		if configPath != "" {
			return config.LoadFromFile(configPath)
		}
		return config.NewLoader(logger()).Load(root)
	}

	rootCmd.AddCommand(
		newStartTaskCmd(&root, loadConfig, logger),
		newSubmitDirectiveCmd(&root, loadConfig, logger),
		newSubmitReportCmd(&root, loadConfig, logger),
		newPulseCmd(&root, loadConfig, logger),
		newServeMetricsCmd(&root, loadConfig, logger),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var exit exitCodeError
		if errors.As(err, &exit) {
			return exit.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// exitCodeError lets a subcommand's RunE select the process exit code
// spec.md §6 defines (0/1/2) without main printing a redundant "Error:"
// line for outcomes (like a rejected report) that already logged their
// own explanation.
type exitCodeError struct{ code int }

func (e exitCodeError) Error() string { return fmt.Sprintf("exit code %d", e.code) }

func exitCode(code int) error { return exitCodeError{code: code} }
