package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/relaykit/relay/config"
	"github.com/relaykit/relay/metrics"
	"github.com/relaykit/relay/reducer"
	"github.com/relaykit/relay/runner"
	relaystate "github.com/relaykit/relay/state"
)

func newPulseCmd(root *string, loadConfig func() (*config.Config, error), logger func() *slog.Logger) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "pulse",
		Short: "Run one architect or engineer decision cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			r, err := parseRole(role)
			if err != nil {
				return err
			}

			var reg *metrics.Registry
			if cfg.Metrics.Enabled {
				reg = metrics.New()
				if cfg.Metrics.ListenAddr != "" {
					srvCtx, stop := context.WithCancel(cmd.Context())
					defer stop()
					go func() {
						if err := metrics.Serve(srvCtx, cfg.Metrics.ListenAddr, reg); err != nil {
							logger().Warn("metrics server", "error", err)
						}
					}()
				}
			}

			code := runner.Pulse(runner.Config{
				Root:         *root,
				Role:         r,
				Logger:       logger(),
				LockTimeout:  cfg.Lock.Timeout(),
				StaleAfter:   cfg.Lock.StaleAfter(),
				RefreshEvery: cfg.Lock.RefreshEvery(),
				PollInterval: cfg.Poll.Interval(),
				Submit:       submitFromFlags(cmd, *root),
				Metrics:      reg,
			})
			if code != 0 {
				return exitCode(code)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "architect|engineer")
	cmd.Flags().String("submit-task", "", "Task id a --submit-file's content belongs to")
	cmd.Flags().String("submit-file", "", "Draft file content to submit this pulse, if any")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func parseRole(s string) (relaystate.Role, error) {
	switch s {
	case string(relaystate.RoleArchitect):
		return relaystate.RoleArchitect, nil
	case string(relaystate.RoleEngineer):
		return relaystate.RoleEngineer, nil
	default:
		return "", fmt.Errorf("--role must be %q or %q", relaystate.RoleArchitect, relaystate.RoleEngineer)
	}
}

// submitFromFlags builds a SubmitIntent from --submit-task/--submit-file
// when both are set, letting `relay pulse` double as the submission
// path for drivers that prefer one command over start-task/submit-*.
func submitFromFlags(cmd *cobra.Command, root string) *reducer.SubmitIntent {
	task, _ := cmd.Flags().GetString("submit-task")
	file, _ := cmd.Flags().GetString("submit-file")
	if task == "" || file == "" {
		return nil
	}
	content, err := readSubmission(root, file)
	if err != nil {
		return nil
	}
	return &reducer.SubmitIntent{TaskID: task, Content: content}
}
