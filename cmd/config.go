package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective SwiftLens configuration",
	Long:  `Print the configuration that would be used for the detected project: defaults, overridden by the global and local config files, overridden by SWIFTLENS_* environment variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := currentProjectRoot()
		if err != nil {
			return fmt.Errorf("detect project: %w", err)
		}
		cfg, err := loadConfig(root.Path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		fmt.Printf("batch_workers   = %d\n", cfg.BatchWorkers)
		fmt.Printf("lsp_path        = %s\n", cfg.LSPPath)
		fmt.Printf("telemetry_db    = %s\n", cfg.TelemetryDB)
		fmt.Printf("dashboard_port  = %d\n", cfg.DashboardPort)
		return nil
	},
}
