package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/relaykit/relay/config"
	"github.com/relaykit/relay/facade"
	"github.com/relaykit/relay/safeio"
	"github.com/relaykit/relay/store"
)

func newSubmitDirectiveCmd(root *string, loadConfig func() (*config.Config, error), logger func() *slog.Logger) *cobra.Command {
	var task, file, decision string

	cmd := &cobra.Command{
		Use:   "submit-directive",
		Short: "Submit an architect directive from a file",
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

			next, err := facade.SubmitDirective(s, task, content, time.Now())
			if err != nil {
				fmt.Fprintf(os.Stderr, "submit-directive failed: %v\n", err)
				return exitCode(1)
			}
			logger().Info("submitted directive", "taskId", task, "status", next.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&task, "task", "", "Task id the directive is for")
	cmd.Flags().StringVar(&file, "file", "", "Path to the directive text")
	cmd.Flags().StringVar(&decision, "decision", "", "APPROVE|REJECT, for operator reference only")
	return cmd
}

// readSubmission reads a human-authored submission file through
// safeio so a --file pointing outside the workspace is rejected the
// same way the reducer's own artifact reads are.
func readSubmission(root, path string) (string, error) {
	rel, err := relPathWithinRoot(root, path)
	if err != nil {
		return "", err
	}
	content, err := safeio.ReadSafe(root, rel)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if content == nil {
		return "", fmt.Errorf("%s: not found", path)
	}
	if *content == safeio.FileTooLargeSentinel {
		return "", fmt.Errorf("%s: file too large", path)
	}
	return *content, nil
}
