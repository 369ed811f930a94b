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

func newSubmitReportCmd(root *string, loadConfig func() (*config.Config, error), logger func() *slog.Logger) *cobra.Command {
	var task, file, status string

	cmd := &cobra.Command{
		Use:   "submit-report",
		Short: "Submit an engineer report from a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if task == "" || file == "" {
				return fmt.Errorf("--task and --file are required")
			}

			content, err := readSubmission(*root, file)
			if err != nil {
				return err
			}

			s := store.New(*root)
			s.LockTimeout = cfg.Lock.Timeout()

			next, err := facade.SubmitReport(s, task, content, time.Now())
			if err != nil {
				fmt.Fprintf(os.Stderr, "submit-report failed: %v\n", err)
				return exitCode(1)
			}
			logger().Info("submitted report", "taskId", task, "status", next.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&task, "task", "", "Task id the report is for")
	cmd.Flags().StringVar(&file, "file", "", "Path to the report text")
	cmd.Flags().StringVar(&status, "status", "", "COMPLETED|FAILED|BLOCKED, for operator reference only")
	return cmd
}
