package models

import "time"

// LedgerEventKind classifies an audit record.
type LedgerEventKind string

const (
	// LedgerWorkflowCreated records a new workflow accepted for execution.
	LedgerWorkflowCreated LedgerEventKind = "workflow_created"
	// LedgerWorkflowFinished records a workflow reaching a terminal state.
	LedgerWorkflowFinished LedgerEventKind = "workflow_finished"
	// LedgerApprovalCreated records a new approval request.
	LedgerApprovalCreated LedgerEventKind = "approval_created"
	// LedgerApprovalPending records the transition to pending.
	LedgerApprovalPending LedgerEventKind = "approval_pending"
	// LedgerApprovalApproved records an approval, human or automatic.
	LedgerApprovalApproved LedgerEventKind = "approval_approved"
	// LedgerApprovalDenied records an explicit rejection.
	LedgerApprovalDenied LedgerEventKind = "approval_denied"
	// LedgerApprovalExpired records an unresolved request passing ExpiresAt.
	LedgerApprovalExpired LedgerEventKind = "approval_expired"
	// LedgerApprovalConsumed records the final quota charge for an approval.
	LedgerApprovalConsumed LedgerEventKind = "approval_consumed"
	// LedgerInvocationExecuting records a provider call starting.
	LedgerInvocationExecuting LedgerEventKind = "invocation_executing"
	// LedgerInvocationAttempt records one provider attempt finishing.
	LedgerInvocationAttempt LedgerEventKind = "invocation_attempt"
	// LedgerInvocationFinished records an invocation reaching a terminal state.
	LedgerInvocationFinished LedgerEventKind = "invocation_finished"
	// LedgerQuotaCharged records committed units/cost against a grant.
	LedgerQuotaCharged LedgerEventKind = "quota_charged"
)

// LedgerEntry is an immutable audit record of one decision or execution
// event. Entries are only ever appended, never mutated or deleted.
type LedgerEntry struct {
	// Seq is the append sequence number, assigned by the ledger.
	Seq int64 `json:"seq"`
	// Timestamp is when the event was recorded.
	Timestamp time.Time `json:"timestamp"`
	// Kind classifies the event.
	Kind LedgerEventKind `json:"kind"`
	// SubjectID is the user the event is attributed to.
	SubjectID string `json:"subject_id"`
	// WorkflowID is the related workflow, if any.
	WorkflowID string `json:"workflow_id,omitempty"`
	// InvocationID is the related invocation, if any.
	InvocationID string `json:"invocation_id,omitempty"`
	// ApprovalID is the related approval request, if any.
	ApprovalID string `json:"approval_id,omitempty"`
	// GrantID is the related permission grant, if any.
	GrantID string `json:"grant_id,omitempty"`
	// Detail is a human-readable description of the event.
	Detail string `json:"detail,omitempty"`
	// Units is the unit count associated with the event, if any.
	Units int64 `json:"units,omitempty"`
	// Cost is the USD cost associated with the event, if any.
	Cost float64 `json:"cost,omitempty"`
}
