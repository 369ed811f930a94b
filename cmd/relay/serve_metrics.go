package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/relaykit/relay/config"
	"github.com/relaykit/relay/metrics"
)

func newServeMetricsCmd(root *string, loadConfig func() (*config.Config, error), logger func() *slog.Logger) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Expose the Prometheus metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			listenAddr := addr
			if listenAddr == "" {
				listenAddr = cfg.Metrics.ListenAddr
			}
			if listenAddr == "" {
				return fmt.Errorf("no metrics listen address configured: set metrics.listenAddr or pass --addr")
			}

			reg := metrics.New()
			logger().Info("serving metrics", "addr", listenAddr)
			return metrics.Serve(cmd.Context(), listenAddr, reg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Override metrics.listenAddr from config")
	return cmd
}
