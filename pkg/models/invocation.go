package models

import "time"

// InvocationStatus represents the state of a single worker execution.
type InvocationStatus string

const (
	// InvocationPending means the invocation is created but not yet approved.
	InvocationPending InvocationStatus = "pending"
	// InvocationApproved means the approval gate passed and quota is reserved.
	InvocationApproved InvocationStatus = "approved"
	// InvocationExecuting means a provider call is in flight.
	InvocationExecuting InvocationStatus = "executing"
	// InvocationSucceeded means execution finished and output was accepted.
	InvocationSucceeded InvocationStatus = "succeeded"
	// InvocationFailed means execution failed after exhausting fallbacks.
	InvocationFailed InvocationStatus = "failed"
	// InvocationDenied means the approval request was rejected.
	InvocationDenied InvocationStatus = "denied"
	// InvocationExpired means the approval request expired unresolved.
	InvocationExpired InvocationStatus = "expired"
	// InvocationCancelled means the owning workflow was cancelled.
	InvocationCancelled InvocationStatus = "cancelled"
)

// Terminal returns true if the status is final.
func (s InvocationStatus) Terminal() bool {
	switch s {
	case InvocationSucceeded, InvocationFailed, InvocationDenied, InvocationExpired, InvocationCancelled:
		return true
	default:
		return false
	}
}

// Valid returns true if the status is a known value.
func (s InvocationStatus) Valid() bool {
	switch s {
	case InvocationPending, InvocationApproved, InvocationExecuting,
		InvocationSucceeded, InvocationFailed, InvocationDenied,
		InvocationExpired, InvocationCancelled:
		return true
	default:
		return false
	}
}

// InvocationRole distinguishes the primary worker from supporting ones.
type InvocationRole string

const (
	// RolePrimary is the invocation whose output the workflow requires.
	RolePrimary InvocationRole = "primary"
	// RoleSupporting is an optional invocation feeding the shared context.
	RoleSupporting InvocationRole = "supporting"
)

// Attempt records one provider call made for an invocation. Failover never
// swaps the provider mid-flight; each retry is a new attempt with its own
// provider binding.
type Attempt struct {
	// Number is the 1-indexed attempt number.
	Number int `json:"number"`
	// ProviderID is the provider this attempt was bound to.
	ProviderID string `json:"provider_id"`
	// Err is the failure message, empty on success.
	Err string `json:"err,omitempty"`
	// StartedAt is when the provider call began.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is when the provider call returned.
	FinishedAt time.Time `json:"finished_at"`
}

// Invocation is one bound execution of a worker against a provider for part
// of a task. It is owned exclusively by the workflow that created it.
type Invocation struct {
	// ID is the unique identifier for this invocation.
	ID string `json:"id"`
	// WorkflowID is the owning workflow.
	WorkflowID string `json:"workflow_id"`
	// TaskID is the task this invocation serves.
	TaskID string `json:"task_id"`
	// WorkerID is the worker bound to this invocation.
	WorkerID string `json:"worker_id"`
	// ProviderID is the provider of the successful (or last) attempt.
	ProviderID string `json:"provider_id,omitempty"`
	// Role marks the invocation as primary or supporting.
	Role InvocationRole `json:"role"`
	// Stage is the index of the workflow stage the invocation runs in.
	Stage int `json:"stage"`
	// DependsOn lists invocation IDs whose output this one reads from the
	// shared context.
	DependsOn []string `json:"depends_on,omitempty"`
	// EstimatedUnits is the unit estimate used for the approval request.
	EstimatedUnits int64 `json:"estimated_units"`
	// EstimatedCost is the USD estimate used for the approval request.
	EstimatedCost float64 `json:"estimated_cost"`
	// Units is the actual unit consumption once execution finishes.
	Units int64 `json:"units"`
	// Cost is the actual USD cost once execution finishes.
	Cost float64 `json:"cost"`
	// Status is the current state of the invocation.
	Status InvocationStatus `json:"status"`
	// Attempts records each provider call made for this invocation.
	Attempts []Attempt `json:"attempts,omitempty"`
	// Output is the produced content on success.
	Output string `json:"output,omitempty"`
	// Error is the failure message on a terminal failure.
	Error string `json:"error,omitempty"`
	// StartedAt is when execution began, if it did.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// FinishedAt is when the invocation reached a terminal state.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
