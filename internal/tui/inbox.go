package tui

import (
	"fmt"
	"time"

	"github.com/quillworks/quill/pkg/models"
)

// Inbox is the pending-approvals list with a selection cursor.
type Inbox struct {
	requests []models.ApprovalRequest
	cursor   int
}

// NewInbox creates an empty Inbox.
func NewInbox() *Inbox {
	return &Inbox{}
}

// Upsert adds a request or refreshes it in place.
func (in *Inbox) Upsert(req models.ApprovalRequest) {
	for i, existing := range in.requests {
		if existing.ID == req.ID {
			in.requests[i] = req
			return
		}
	}
	in.requests = append(in.requests, req)
}

// Remove drops a resolved request and keeps the cursor in bounds.
func (in *Inbox) Remove(approvalID string) {
	for i, existing := range in.requests {
		if existing.ID == approvalID {
			in.requests = append(in.requests[:i], in.requests[i+1:]...)
			break
		}
	}
	if in.cursor >= len(in.requests) && in.cursor > 0 {
		in.cursor = len(in.requests) - 1
	}
}

// Selected returns the highlighted request, or nil when the inbox is empty.
func (in *Inbox) Selected() *models.ApprovalRequest {
	if len(in.requests) == 0 {
		return nil
	}
	return &in.requests[in.cursor]
}

// Next moves the cursor down.
func (in *Inbox) Next() {
	if in.cursor < len(in.requests)-1 {
		in.cursor++
	}
}

// Prev moves the cursor up.
func (in *Inbox) Prev() {
	if in.cursor > 0 {
		in.cursor--
	}
}

// Len returns the number of pending requests.
func (in *Inbox) Len() int {
	return len(in.requests)
}

// View renders the inbox.
func (in *Inbox) View() string {
	if len(in.requests) == 0 {
		return dimStyle.Render("No pending approvals")
	}

	var view string
	for i, req := range in.requests {
		marker := "  "
		if i == in.cursor {
			marker = selectedStyle.Render("> ")
		}
		remaining := time.Until(req.ExpiresAt).Round(time.Second)
		line := fmt.Sprintf("%s%s  %s/%s  %d units  $%.4f  expires in %s",
			marker, req.ID, req.SubjectID, req.Capability, req.Units, req.Cost, remaining)
		if i == in.cursor {
			view += selectedStyle.Render(line) + "\n"
		} else {
			view += line + "\n"
		}
	}
	return view
}
