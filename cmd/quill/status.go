package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillworks/quill/internal/ledger"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent workflows from the ledger",
	Long: `Display the most recent workflows recorded in the audit ledger,
with their external IDs and terminal status.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "Number of workflows to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	dbPath := ledger.DefaultDBPath()
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No ledger yet. Run 'quill submit <task>' to start.")
		return nil
	}

	db, err := ledger.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate ledger: %w", err)
	}

	records, err := db.RecentWorkflows(statusLimit)
	if err != nil {
		return fmt.Errorf("list workflows: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No workflows recorded.")
		return nil
	}

	fmt.Println("Recent workflows:")
	for _, r := range records {
		ext := ""
		if r.ExternalID != "" {
			ext = fmt.Sprintf(" (external: %s)", r.ExternalID)
		}
		fmt.Printf("  %s  %-20s %s ago%s\n", r.WorkflowID, r.Status, formatDuration(time.Since(r.CreatedAt)), ext)
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dd", int(d.Hours())/24)
}
