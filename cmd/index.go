package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"swiftlens/internal/index"
	"swiftlens/internal/swifterr"
)

var indexScheme string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the SourceKit index store for the current project",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the index store for the detected project root",
	Run: func(cmd *cobra.Command, args []string) {
		root, err := currentProjectRoot()
		if err != nil {
			fmt.Printf("Error detecting project: %v\n", err)
			return
		}

		fmt.Printf("Building index for %s (%s)\n", root.Path, root.Kind)
		start := time.Now()

		b := index.New()
		res, err := b.Build(context.Background(), root, indexScheme, 0)
		if err != nil {
			if se, ok := err.(*swifterr.Error); ok && se.Details != "" {
				fmt.Printf("Error building index: %v\n%s\n", err, se.Details)
			} else {
				fmt.Printf("Error building index: %v\n", err)
			}
			return
		}

		fmt.Printf("Index built in %v\n", time.Since(start))
		fmt.Printf("Project type: %s\n", res.ProjectType)
		if res.IndexPath != "" {
			fmt.Printf("Index store: %s\n", res.IndexPath)
		}
	},
}

func init() {
	indexBuildCmd.Flags().StringVar(&indexScheme, "scheme", "", "Xcode scheme (auto-detected when omitted)")
	indexCmd.AddCommand(indexBuildCmd)
}
