// Package orchestrator executes workflows: it sequences invocations into
// stages, applies approval checkpoints, routes providers with fallback, and
// aggregates validated output.
package orchestrator

import (
	"time"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventWorkflowStarted indicates a workflow was accepted and is running.
	EventWorkflowStarted EventType = "workflow_started"
	// EventWorkflowFinished indicates a workflow reached a terminal state.
	EventWorkflowFinished EventType = "workflow_finished"
	// EventStageStarted indicates a stage of invocations began executing.
	EventStageStarted EventType = "stage_started"
	// EventApprovalNeeded indicates an invocation is waiting on approval.
	EventApprovalNeeded EventType = "approval_needed"
	// EventApprovalResolved indicates an approval request was resolved.
	EventApprovalResolved EventType = "approval_resolved"
	// EventInvocationStarted indicates a provider call started.
	EventInvocationStarted EventType = "invocation_started"
	// EventInvocationRetried indicates an attempt failed and the next
	// fallback provider is being tried.
	EventInvocationRetried EventType = "invocation_retried"
	// EventInvocationFinished indicates an invocation reached a terminal state.
	EventInvocationFinished EventType = "invocation_finished"
	// EventValidationFailed indicates aggregated output failed validation.
	EventValidationFailed EventType = "validation_failed"
)

// Event is emitted by the orchestrator for subscribers such as the TUI and
// the metrics sink. Emission is best-effort and never on the critical path.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// WorkflowID is the related workflow.
	WorkflowID string
	// InvocationID is the related invocation, if applicable.
	InvocationID string
	// ApprovalID is the related approval request, if applicable.
	ApprovalID string
	// WorkerID is the related worker, if applicable.
	WorkerID string
	// ProviderID is the related provider, if applicable.
	ProviderID string
	// Stage is the stage index, for stage events.
	Stage int
	// Message provides additional context.
	Message string
	// Err carries error details for failure events.
	Err error
	// Units and Cost carry consumption for finished invocations.
	Units int64
	Cost  float64
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
