package tui

import (
	"fmt"
	"sort"

	"github.com/quillworks/quill/pkg/models"
)

// Board tracks workflow snapshots for the workflows tab.
type Board struct {
	workflows map[string]models.Workflow
}

// NewBoard creates an empty Board.
func NewBoard() *Board {
	return &Board{workflows: make(map[string]models.Workflow)}
}

// Upsert stores the latest snapshot of a workflow.
func (b *Board) Upsert(wf models.Workflow) {
	b.workflows[wf.ID] = wf
}

// Len returns the number of tracked workflows.
func (b *Board) Len() int {
	return len(b.workflows)
}

// View renders one line per workflow, newest first.
func (b *Board) View() string {
	if len(b.workflows) == 0 {
		return dimStyle.Render("No workflows")
	}

	sorted := make([]models.Workflow, 0, len(b.workflows))
	for _, wf := range b.workflows {
		sorted = append(sorted, wf)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	var view string
	for _, wf := range sorted {
		succeeded := 0
		for _, inv := range wf.Invocations {
			if inv.Status == models.InvocationSucceeded {
				succeeded++
			}
		}
		line := fmt.Sprintf("  %s  %s  %d/%d invocations",
			wf.ID, statusBadge(wf.Status), succeeded, len(wf.Invocations))
		if wf.FailureReason != "" {
			line += "  " + dimStyle.Render(truncateLine(wf.FailureReason, 60))
		}
		view += line + "\n"
	}
	return view
}

// statusBadge colors a workflow status.
func statusBadge(s models.WorkflowStatus) string {
	switch s {
	case models.WorkflowCompleted:
		return okStyle.Render(string(s))
	case models.WorkflowPartiallyCompleted:
		return warnStyle.Render(string(s))
	case models.WorkflowFailed, models.WorkflowCancelled:
		return errStyle.Render(string(s))
	default:
		return string(s)
	}
}

func truncateLine(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
