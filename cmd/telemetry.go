package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"swiftlens/internal/telemetry"
)

// serveTelemetryCmd prints the current telemetry stats once and exits.
// It does not open a network port: the HTTP/WebSocket dashboard is an
// external consumer of internal/telemetry, out of scope here.
var serveTelemetryCmd = &cobra.Command{
	Use:   "serve-telemetry",
	Short: "Print current telemetry statistics from the local sink",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := currentProjectRoot()
		if err != nil {
			return fmt.Errorf("detect project: %w", err)
		}
		cfg, err := loadConfig(root.Path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sink, err := telemetry.New(telemetry.Config{DBPath: cfg.TelemetryDB})
		if err != nil {
			return fmt.Errorf("open telemetry sink: %w", err)
		}
		defer sink.Close()

		stats, err := sink.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("read telemetry stats: %w", err)
		}

		fmt.Printf("Total tool calls: %d\n", stats.TotalToolCalls)
		fmt.Printf("Active sessions: %d\n", stats.ActiveSessions)
		fmt.Printf("Dropped entries: %d\n", stats.DroppedEntries)
		if len(stats.ToolUsage) > 0 {
			fmt.Println("\nTool usage:")
			for name, count := range stats.ToolUsage {
				fmt.Printf("  %s: %d\n", name, count)
			}
		}
		if len(stats.StatusCounts) > 0 {
			fmt.Println("\nStatus breakdown:")
			for status, count := range stats.StatusCounts {
				fmt.Printf("  %s: %d\n", status, count)
			}
		}
		return nil
	},
}
