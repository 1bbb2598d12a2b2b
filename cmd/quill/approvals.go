package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillworks/quill/internal/ledger"
	"github.com/quillworks/quill/pkg/models"
)

var (
	approvalsSubject string
	approvalsSince   time.Duration
)

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Show the approval audit trail for a subject",
	Long: `Display approval and quota events recorded in the ledger for a subject,
newest window first. This is the audit view; live pending approvals are
resolved in 'quill submit'.`,
	RunE: runApprovals,
}

func init() {
	approvalsCmd.Flags().StringVar(&approvalsSubject, "subject", os.Getenv("USER"), "Subject to audit")
	approvalsCmd.Flags().DurationVar(&approvalsSince, "since", 24*time.Hour, "Window to look back")
}

func runApprovals(cmd *cobra.Command, args []string) error {
	if approvalsSubject == "" {
		return fmt.Errorf("--subject is required")
	}

	dbPath := ledger.DefaultDBPath()
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No ledger yet.")
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

	now := time.Now()
	entries, err := db.BySubject(approvalsSubject, now.Add(-approvalsSince), now)
	if err != nil {
		return fmt.Errorf("query ledger: %w", err)
	}

	shown := 0
	for _, e := range entries {
		switch e.Kind {
		case models.LedgerApprovalCreated, models.LedgerApprovalPending,
			models.LedgerApprovalApproved, models.LedgerApprovalDenied,
			models.LedgerApprovalExpired, models.LedgerApprovalConsumed,
			models.LedgerQuotaCharged:
		default:
			continue
		}
		shown++
		line := fmt.Sprintf("  %s  %-20s %s", e.Timestamp.Format("15:04:05"), e.Kind, e.ApprovalID)
		if e.Kind == models.LedgerQuotaCharged {
			line += fmt.Sprintf("  %d units  $%.4f", e.Units, e.Cost)
		}
		if e.Detail != "" {
			line += "  " + e.Detail
		}
		fmt.Println(line)
	}
	if shown == 0 {
		fmt.Printf("No approval activity for %s in the last %s.\n", approvalsSubject, approvalsSince)
	}
	return nil
}
