package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"swiftlens/internal/analyzer"
	"swiftlens/internal/project"
	"swiftlens/internal/supervisor"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a single Swift code intelligence query against sourcekit-lsp",
}

var analyzeSymbolsCmd = &cobra.Command{
	Use:   "symbols <file>",
	Short: "Print the document symbol tree for a Swift file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		root, err := currentProjectRoot()
		if err != nil {
			return fmt.Errorf("detect project: %w", err)
		}
		cfg, err := loadConfig(root.Path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		discoverer := project.NewDiscoverer()
		sup := supervisor.New(supervisor.DefaultConfig(cfg.LSPPath))
		defer sup.Shutdown()

		a := analyzer.New(discoverer, sup)
		symbols, err := a.AnalyzeFileSymbols(context.Background(), path)
		if err != nil {
			return fmt.Errorf("analyze symbols: %w", err)
		}

		out, err := json.MarshalIndent(symbols, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	analyzeCmd.AddCommand(analyzeSymbolsCmd)
}
