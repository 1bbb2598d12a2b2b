// Package ledger provides the append-only usage/audit ledger.
package ledger

import (
	"io"
	"time"

	"github.com/quillworks/quill/pkg/models"
)

// Appender records audit events. Append is the only mutation the ledger
// supports and must be safe for concurrent use.
type Appender interface {
	// Append durably records an entry and returns it with Seq assigned.
	Append(entry models.LedgerEntry) (models.LedgerEntry, error)
}

// Querier reads back recorded events.
type Querier interface {
	// BySubject returns entries for a subject within [from, to), oldest first.
	BySubject(subjectID string, from, to time.Time) ([]models.LedgerEntry, error)
	// ByInvocation returns all entries for an invocation, oldest first.
	ByInvocation(invocationID string) ([]models.LedgerEntry, error)
	// SumCharges returns the committed units and cost charged against a grant
	// for a subject within [from, to). Only quota_charged entries count.
	SumCharges(subjectID, grantID string, from, to time.Time) (units int64, cost float64, err error)
}

// WorkflowIndex maps externally supplied task identifiers to workflow IDs,
// backing idempotent submission.
type WorkflowIndex interface {
	// BindWorkflow records the external-ID-to-workflow binding. If the
	// external ID is already bound, the existing workflow ID is returned
	// with ok=false and no new binding is written.
	BindWorkflow(externalID, workflowID string) (boundID string, ok bool, err error)
	// LookupWorkflow returns the workflow bound to an external ID, or "" if
	// none exists.
	LookupWorkflow(externalID string) (string, error)
	// RecentWorkflows returns the most recent workflow bindings, newest first.
	RecentWorkflows(limit int) ([]WorkflowRecord, error)
}

// WorkflowRecord is one row of the workflow index.
type WorkflowRecord struct {
	WorkflowID string
	ExternalID string
	SubjectID  string
	Status     string
	CreatedAt  time.Time
}

// Ledger is the full ledger contract consumed by the permission manager and
// the orchestrator.
type Ledger interface {
	io.Closer
	Appender
	Querier
	WorkflowIndex
	// UpdateWorkflowStatus records the terminal status on the workflow index
	// row. The audit trail itself stays append-only.
	UpdateWorkflowStatus(workflowID, status string) error
}

// Compile-time verification that both implementations satisfy the contract.
var (
	_ Ledger = (*DB)(nil)
	_ Ledger = (*Memory)(nil)
)
