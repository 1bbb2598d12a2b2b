package models

import "time"

// Priority represents how urgently a task should be scheduled.
type Priority string

const (
	// PriorityLow is for background work with no deadline pressure.
	PriorityLow Priority = "low"
	// PriorityNormal is the default priority.
	PriorityNormal Priority = "normal"
	// PriorityHigh is for deadline-sensitive work.
	PriorityHigh Priority = "high"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	default:
		return false
	}
}

// DocumentScope identifies the portion of a document a task operates on.
// It is resolved through the external document/context provider and is
// carried opaquely by the core.
type DocumentScope struct {
	// DocumentID identifies the document being worked on.
	DocumentID string `json:"document_id,omitempty"`
	// RangeRef references the range within the document (provider-defined).
	RangeRef string `json:"range_ref,omitempty"`
	// PriorContentRef references prior content used as context.
	PriorContentRef string `json:"prior_content_ref,omitempty"`
}

// Task represents a unit of writing work submitted for processing.
// Tasks are immutable once submitted; retries create a new Task.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// ExternalID is the caller-supplied identifier used for idempotent submission.
	ExternalID string `json:"external_id,omitempty"`
	// SubjectID identifies the user the task is executed on behalf of.
	SubjectID string `json:"subject_id"`
	// Description is the free-text description of the work.
	Description string `json:"description"`
	// Scope is the declared document context for the task.
	Scope DocumentScope `json:"scope,omitempty"`
	// DomainHint is an optional caller-declared domain (e.g. "legal").
	DomainHint string `json:"domain_hint,omitempty"`
	// Priority controls scheduling urgency.
	Priority Priority `json:"priority"`
	// Deadline is an optional completion deadline.
	Deadline *time.Time `json:"deadline,omitempty"`
	// CreatedAt is when the task was submitted.
	CreatedAt time.Time `json:"created_at"`
}
