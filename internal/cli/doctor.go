package cli

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/PolybrainAI/polybrain-core/internal/credentials"
	"github.com/PolybrainAI/polybrain-core/internal/llm/configbuilder"
	"github.com/PolybrainAI/polybrain-core/internal/prompts"
)

// NewDoctorCmd returns a health-check command validating config and environment.
func NewDoctorCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if _, err := configbuilder.BuildRegistryFromConfig(cfg); err != nil {
				return fmt.Errorf("model registry: %w", err)
			}
			if _, err := prompts.Load(); err != nil {
				return fmt.Errorf("prompts: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. Providers: %d, models: %d\n", len(cfg.Providers), len(cfg.Models))
			fmt.Fprintf(out, "Ceilings: clarifier %d, planner %d, coder %d, repair %d\n",
				cfg.Pipeline.ClarifierMaxTurns, cfg.Pipeline.PlannerMaxIterations,
				cfg.Pipeline.CoderMaxIterations, cfg.Pipeline.RepairMaxAttempts)
			fmt.Fprintf(out, "Transport: %s, metrics: %v, ledger: %v\n",
				cfg.Server.Transport, cfg.Server.MetricsEnabled, cfg.Store.Enabled)

			if _, err := exec.LookPath(cfg.Executor.Interpreter); err != nil {
				fmt.Fprintf(out, "Warning: interpreter %q not found on PATH\n", cfg.Executor.Interpreter)
			}
			if _, err := credentials.FromConfig(cfg.Credentials); err != nil {
				fmt.Fprintf(out, "Warning: %v\n", err)
			}
			return nil
		},
	}
}
