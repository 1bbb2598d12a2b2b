package models

import "time"

// ApprovalPolicyKind selects when an invocation needs explicit human approval.
type ApprovalPolicyKind string

const (
	// PolicyAlways requires explicit approval for every invocation.
	PolicyAlways ApprovalPolicyKind = "always"
	// PolicyThreshold auto-approves invocations under a unit threshold.
	PolicyThreshold ApprovalPolicyKind = "per_unit_threshold"
	// PolicyMilestone requires approval only at milestone invocations
	// (the primary invocation of a workflow).
	PolicyMilestone ApprovalPolicyKind = "per_milestone"
	// PolicyNever auto-approves everything that passes the quota check.
	PolicyNever ApprovalPolicyKind = "never"
)

// Valid returns true if the kind is a known value.
func (k ApprovalPolicyKind) Valid() bool {
	switch k {
	case PolicyAlways, PolicyThreshold, PolicyMilestone, PolicyNever:
		return true
	default:
		return false
	}
}

// ApprovalPolicy is the approval rule attached to a grant.
type ApprovalPolicy struct {
	// Kind selects the policy behavior.
	Kind ApprovalPolicyKind `json:"kind" yaml:"kind"`
	// UnitThreshold is the auto-approval ceiling for PolicyThreshold.
	UnitThreshold int64 `json:"unit_threshold,omitempty" yaml:"unit_threshold"`
	// Timeout is how long a pending request stays open before expiring.
	// Zero means the deployment default.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout"`
}

// Quota bounds what a grant allows a subject to consume.
type Quota struct {
	// MaxUnitsPerInvocation caps units for a single invocation.
	MaxUnitsPerInvocation int64 `json:"max_units_per_invocation" yaml:"max_units_per_invocation"`
	// MaxUnitsPerDay caps total units committed within a rolling day.
	MaxUnitsPerDay int64 `json:"max_units_per_day" yaml:"max_units_per_day"`
	// MaxCostPerInvocation caps the USD cost of a single invocation.
	MaxCostPerInvocation float64 `json:"max_cost_per_invocation" yaml:"max_cost_per_invocation"`
}

// PermissionGrant authorizes a subject to use a worker (or worker class)
// within a capability set and quota. Grants are versioned; a newer grant
// supersedes an older one but does not retroactively alter invocations that
// were already approved under it.
type PermissionGrant struct {
	// ID is the unique identifier for this grant.
	ID string `json:"id" yaml:"id"`
	// Version increments each time the grant is superseded.
	Version int `json:"version" yaml:"version"`
	// SubjectID is the user the grant applies to. "*" matches any subject.
	SubjectID string `json:"subject_id" yaml:"subject_id"`
	// WorkerID is the worker or worker class the grant covers. "*" matches
	// any worker.
	WorkerID string `json:"worker_id" yaml:"worker_id"`
	// Capabilities is the set of capability tags the subject may exercise.
	Capabilities []string `json:"capabilities" yaml:"capabilities"`
	// Quotas bound consumption under this grant.
	Quotas Quota `json:"quotas" yaml:"quotas"`
	// Policy is the approval rule for invocations under this grant.
	Policy ApprovalPolicy `json:"policy" yaml:"policy"`
	// CreatedAt is when this grant version was issued.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Allows returns true if the grant's capability set covers the given tag.
// A grant with the wildcard capability "*" covers everything.
func (g PermissionGrant) Allows(capability string) bool {
	for _, c := range g.Capabilities {
		if c == capability || c == "*" {
			return true
		}
	}
	return false
}

// Covers returns true if the grant applies to the given subject and worker.
func (g PermissionGrant) Covers(subjectID, workerID string) bool {
	if g.SubjectID != "*" && g.SubjectID != subjectID {
		return false
	}
	if g.WorkerID != "*" && g.WorkerID != workerID {
		return false
	}
	return true
}

// ApprovalState represents the state of an approval request.
type ApprovalState string

const (
	// ApprovalCreated is the initial state before the policy is evaluated.
	ApprovalCreated ApprovalState = "created"
	// ApprovalPending means the request is waiting for a resolution.
	ApprovalPending ApprovalState = "pending"
	// ApprovalApproved means the request was approved (by a human or the policy).
	ApprovalApproved ApprovalState = "approved"
	// ApprovalDenied means the request was explicitly rejected.
	ApprovalDenied ApprovalState = "denied"
	// ApprovalExpired means no resolution arrived before ExpiresAt.
	ApprovalExpired ApprovalState = "expired"
	// ApprovalConsumed means the approved invocation finished and its quota
	// charge was finalized.
	ApprovalConsumed ApprovalState = "consumed"
)

// Terminal returns true if no further transition is allowed from the state.
// Approved is not terminal: it still transitions to Consumed.
func (s ApprovalState) Terminal() bool {
	switch s {
	case ApprovalDenied, ApprovalExpired, ApprovalConsumed:
		return true
	default:
		return false
	}
}

// Valid returns true if the state is a known value.
func (s ApprovalState) Valid() bool {
	switch s {
	case ApprovalCreated, ApprovalPending, ApprovalApproved, ApprovalDenied, ApprovalExpired, ApprovalConsumed:
		return true
	default:
		return false
	}
}

// ApprovalRequest is a pending authorization decision gating an invocation.
// At most one outstanding request exists per invocation; a denied or expired
// request terminates its invocation.
type ApprovalRequest struct {
	// ID is the unique identifier for this request.
	ID string `json:"id"`
	// InvocationID is the invocation the request gates.
	InvocationID string `json:"invocation_id"`
	// WorkflowID is the workflow the invocation belongs to.
	WorkflowID string `json:"workflow_id"`
	// SubjectID is the user on whose behalf the invocation runs.
	SubjectID string `json:"subject_id"`
	// GrantID is the grant version the request was evaluated against.
	GrantID string `json:"grant_id"`
	// Capability is the capability tag being exercised.
	Capability string `json:"capability"`
	// Units is the estimated unit consumption being authorized.
	Units int64 `json:"units"`
	// Cost is the estimated USD cost being authorized.
	Cost float64 `json:"cost"`
	// State is the current state of the request.
	State ApprovalState `json:"state"`
	// CreatedAt is when the request was created.
	CreatedAt time.Time `json:"created_at"`
	// ExpiresAt is when an unresolved request expires.
	ExpiresAt time.Time `json:"expires_at"`
	// ResolvedBy identifies the approver, or "auto" for policy approvals.
	ResolvedBy string `json:"resolved_by,omitempty"`
	// Reason is the resolution reason, set on denial or expiry.
	Reason string `json:"reason,omitempty"`
}
