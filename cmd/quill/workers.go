package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quillworks/quill/internal/registry"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "List the worker catalog",
	Long:  `Display the workers declared in the catalog with their capabilities.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(catalogDir(), "workers.yaml")
		catalog, err := registry.LoadWorkerCatalog(path)
		if err != nil {
			return fmt.Errorf("worker catalog: %w", err)
		}
		if len(catalog.Workers) == 0 {
			fmt.Printf("No workers declared in %s.\n", path)
			return nil
		}

		for _, w := range catalog.Workers {
			line := fmt.Sprintf("  %-16s %s", w.ID, strings.Join(w.Capabilities, ", "))
			if w.MaxComplexity != "" {
				line += fmt.Sprintf("  (up to %s)", w.MaxComplexity)
			}
			fmt.Println(line)
		}
		return nil
	},
}
