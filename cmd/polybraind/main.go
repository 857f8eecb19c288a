package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/PolybrainAI/polybrain-core/internal/config"
	"github.com/PolybrainAI/polybrain-core/internal/daemon"
	"github.com/PolybrainAI/polybrain-core/internal/logging"
	"github.com/PolybrainAI/polybrain-core/internal/mcpserver"
	"github.com/PolybrainAI/polybrain-core/internal/version"
)

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:     "polybraind",
		Short:   "Polybrain session daemon",
		Version: version.Full(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server, err := daemon.NewServer(ctx, cfg, logger)
			if err != nil {
				return err
			}
			return server.Run(ctx)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to config file (default: configs/config.yaml)")

	root.AddCommand(&cobra.Command{
		Use:   "mcp",
		Short: "Serve the session ledger to MCP clients over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			ledger, err := daemon.OpenLedger(cfg.Store)
			if err != nil {
				return err
			}
			defer ledger.Close()
			return mcpserver.ServeStdio(ledger)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
