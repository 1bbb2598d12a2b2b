package models

import "time"

// WorkflowStatus represents the state of a workflow.
type WorkflowStatus string

const (
	// WorkflowPending means the workflow is created but not yet running.
	WorkflowPending WorkflowStatus = "pending"
	// WorkflowRunning means invocations are being executed.
	WorkflowRunning WorkflowStatus = "running"
	// WorkflowCompleted means all required invocations succeeded and
	// validation passed.
	WorkflowCompleted WorkflowStatus = "completed"
	// WorkflowPartiallyCompleted means the primary succeeded but one or more
	// supporting invocations failed.
	WorkflowPartiallyCompleted WorkflowStatus = "partially_completed"
	// WorkflowFailed means the primary invocation or validation failed.
	WorkflowFailed WorkflowStatus = "failed"
	// WorkflowCancelled means the workflow was cancelled explicitly or a
	// non-optional approval was denied.
	WorkflowCancelled WorkflowStatus = "cancelled"
)

// Terminal returns true if the status is final.
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case WorkflowCompleted, WorkflowPartiallyCompleted, WorkflowFailed, WorkflowCancelled:
		return true
	default:
		return false
	}
}

// Valid returns true if the status is a known value.
func (s WorkflowStatus) Valid() bool {
	switch s {
	case WorkflowPending, WorkflowRunning, WorkflowCompleted,
		WorkflowPartiallyCompleted, WorkflowFailed, WorkflowCancelled:
		return true
	default:
		return false
	}
}

// Workflow is the full plan of invocations needed to satisfy one task,
// plus the aggregated result. One workflow exists per submitted task.
type Workflow struct {
	// ID is the unique identifier for this workflow.
	ID string `json:"id"`
	// TaskID is the task the workflow executes.
	TaskID string `json:"task_id"`
	// ExternalTaskID is the caller-supplied task identifier, if any.
	ExternalTaskID string `json:"external_task_id,omitempty"`
	// SubjectID is the user the workflow runs on behalf of.
	SubjectID string `json:"subject_id"`
	// Classification is the cached classification driving worker selection.
	Classification Classification `json:"classification"`
	// Status is the current state of the workflow.
	Status WorkflowStatus `json:"status"`
	// Invocations are the planned executions, in stage order.
	Invocations []*Invocation `json:"invocations"`
	// Output is the validated aggregate output on completion.
	Output string `json:"output,omitempty"`
	// FailureReason is the structured reason for a failed or cancelled
	// workflow, naming the invocation or approval request that caused it.
	FailureReason string `json:"failure_reason,omitempty"`
	// Violations lists the specific validation checks that failed, if any.
	Violations []string `json:"violations,omitempty"`
	// CreatedAt is when the workflow was created.
	CreatedAt time.Time `json:"created_at"`
	// FinishedAt is when the workflow reached a terminal state.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Primary returns the primary invocation, or nil if none is planned.
func (w *Workflow) Primary() *Invocation {
	for _, inv := range w.Invocations {
		if inv.Role == RolePrimary {
			return inv
		}
	}
	return nil
}
