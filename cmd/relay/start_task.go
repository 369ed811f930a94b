package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/relaykit/relay/config"
	"github.com/relaykit/relay/facade"
	"github.com/relaykit/relay/store"
)

func newStartTaskCmd(root *string, loadConfig func() (*config.Config, error), logger func() *slog.Logger) *cobra.Command {
	var id, title string

	cmd := &cobra.Command{
		Use:   "start-task",
		Short: "Begin a relay for a task, minting an id if one isn't given",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if title == "" {
				return fmt.Errorf("--title is required")
			}

			s := store.New(*root)
			s.LockTimeout = cfg.Lock.Timeout()

			next, err := facade.StartTask(s, id, title, time.Now())
			if err != nil {
				fmt.Fprintf(os.Stderr, "start-task failed: %v\n", err)
				return exitCode(1)
			}
			logger().Info("started task", "taskId", *next.ActiveTaskID, "status", next.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Existing backlog task id to reuse (default: mint a fresh id)")
	cmd.Flags().StringVar(&title, "title", "", "Task title")
	return cmd
}
